package cli

import (
	"strings"

	"github.com/mfateev/temporal-agent-loop/internal/llm"
)

// DetectProvider infers the provider from a model name, so that --model
// alone selects the right API. It returns "" for names it does not know.
func DetectProvider(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "claude-"):
		return llm.ProviderAnthropic
	case strings.HasPrefix(m, "gemini-"):
		return llm.ProviderGemini
	case strings.HasPrefix(m, "gpt-"), strings.HasPrefix(m, "chatgpt-"):
		return llm.ProviderOpenAI
	case len(m) >= 2 && m[0] == 'o' && m[1] >= '1' && m[1] <= '9':
		return llm.ProviderOpenAI
	default:
		return ""
	}
}
