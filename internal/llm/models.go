package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/generative-ai-go/genai"
	"github.com/openai/openai-go/v3"
	openaiopt "github.com/openai/openai-go/v3/option"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// AvailableModel is one entry of a provider's model catalog.
type AvailableModel struct {
	Provider    string
	ID          string
	DisplayName string // empty for OpenAI
}

type catalog struct {
	apiKey func() string
	list   func(ctx context.Context, apiKey string) ([]AvailableModel, error)
}

var catalogs = map[string]catalog{
	ProviderAnthropic: {apiKey: envKey("ANTHROPIC_API_KEY"), list: listAnthropicModels},
	ProviderOpenAI:    {apiKey: envKey("OPENAI_API_KEY"), list: listOpenAIModels},
	ProviderGemini:    {apiKey: geminiAPIKey, list: listGeminiModels},
}

// ListModels queries the catalogs of the named providers, or of all of them
// when none are named. Providers without an API key are skipped. A failing
// provider does not hide the others: its error is joined into the returned
// error alongside whatever was listed.
func ListModels(ctx context.Context, providers ...string) ([]AvailableModel, error) {
	if len(providers) == 0 {
		providers = []string{ProviderAnthropic, ProviderGemini, ProviderOpenAI}
	}

	var all []AvailableModel
	var errs []error
	for _, name := range providers {
		c, ok := catalogs[name]
		if !ok {
			errs = append(errs, fmt.Errorf("unsupported LLM provider: %s", name))
			continue
		}
		key := c.apiKey()
		if key == "" {
			continue
		}
		found, err := c.list(ctx, key)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		all = append(all, found...)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Provider != all[j].Provider {
			return all[i].Provider < all[j].Provider
		}
		return all[i].ID < all[j].ID
	})
	return all, errors.Join(errs...)
}

func listOpenAIModels(ctx context.Context, apiKey string) ([]AvailableModel, error) {
	client := openai.NewClient(openaiopt.WithAPIKey(apiKey))
	page, err := client.Models.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []AvailableModel
	for _, m := range page.Data {
		if agentCapableOpenAIModel(m.ID) {
			out = append(out, AvailableModel{Provider: ProviderOpenAI, ID: m.ID})
		}
	}
	return out, nil
}

var (
	openAIChatPrefixes = []string{"gpt-", "chatgpt-", "o1", "o3", "o4"}

	// Families that cannot drive a tool loop, plus aliases and variants
	// that only duplicate a base model in a listing.
	openAISkipPrefixes  = []string{"ft:", "gpt-audio", "gpt-image", "chatgpt-image"}
	openAISkipFragments = []string{
		"-tts", "-realtime", "-transcribe", "-instruct",
		"-preview", "-audio-", "-search", "-deep-research", "-chat-latest", "-16k",
	}

	// Snapshot ids: -2024-05-13 anywhere, or a trailing -0613.
	openAISnapshot = regexp.MustCompile(`-20\d\d-|-\d{4,}$`)
)

func agentCapableOpenAIModel(id string) bool {
	hasPrefix := func(p string) bool { return strings.HasPrefix(id, p) }
	if !slices.ContainsFunc(openAIChatPrefixes, hasPrefix) || slices.ContainsFunc(openAISkipPrefixes, hasPrefix) {
		return false
	}
	if slices.ContainsFunc(openAISkipFragments, func(f string) bool { return strings.Contains(id, f) }) {
		return false
	}
	return !openAISnapshot.MatchString(id)
}

func listAnthropicModels(ctx context.Context, apiKey string) ([]AvailableModel, error) {
	client := anthropic.NewClient(anthropicopt.WithAPIKey(apiKey))
	pager := client.Models.ListAutoPaging(ctx, anthropic.ModelListParams{})
	var out []AvailableModel
	for pager.Next() {
		m := pager.Current()
		out = append(out, AvailableModel{Provider: ProviderAnthropic, ID: m.ID, DisplayName: m.DisplayName})
	}
	if err := pager.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func listGeminiModels(ctx context.Context, apiKey string) ([]AvailableModel, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	defer client.Close()

	var out []AvailableModel
	it := client.ListModels(ctx)
	for {
		m, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if !slices.Contains(m.SupportedGenerationMethods, "generateContent") {
			continue
		}
		out = append(out, AvailableModel{
			Provider:    ProviderGemini,
			ID:          strings.TrimPrefix(m.Name, "models/"),
			DisplayName: m.DisplayName,
		})
	}
}

func envKey(name string) func() string {
	return func() string { return os.Getenv(name) }
}

func geminiAPIKey() string {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return key
	}
	return os.Getenv("GOOGLE_API_KEY")
}
