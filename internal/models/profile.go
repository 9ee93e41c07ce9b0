package models

// ModelProfile is one layer of the profile resolution chain.
// Nil pointer fields mean "inherit from parent"; non-nil means "override".
//
// Resolution order: default → provider → model (regexp match).
type ModelProfile struct {
	// Provider matches a provider name ("openai", "anthropic", "gemini").
	// Empty string means this is the default profile.
	Provider string

	// ModelPattern is a regexp that matches model names.
	// Empty string means this profile applies to all models for the provider.
	ModelPattern string

	// ContextWindow is the model's declared context window in tokens.
	ContextWindow *int

	// MaxTokens is the default output token limit.
	MaxTokens *int

	// Temperature overrides the default temperature.
	Temperature *float64

	// PromptSuffix is appended after the system preamble. Additive across layers.
	PromptSuffix string

	// ProjectDocNames overrides the project doc filename list.
	ProjectDocNames []string
}

// ResolvedProfile is a fully merged profile with defaults applied.
type ResolvedProfile struct {
	ContextWindow   int
	MaxTokens       int
	Temperature     *float64
	PromptSuffix    string
	ProjectDocNames []string
}

func intPtr(v int) *int { return &v }

var defaultProfile = ModelProfile{
	ContextWindow:   intPtr(128_000),
	MaxTokens:       intPtr(4096),
	ProjectDocNames: []string{"AGENTS.override.md", "AGENTS.md"},
}

var anthropicProfile = ModelProfile{
	Provider:        "anthropic",
	ContextWindow:   intPtr(200_000),
	MaxTokens:       intPtr(8192),
	ProjectDocNames: []string{"CLAUDE.md", "AGENTS.override.md", "AGENTS.md"},
}

var openaiProfile = ModelProfile{
	Provider: "openai",
}

var openaiLongContextProfile = ModelProfile{
	Provider:      "openai",
	ModelPattern:  `^gpt-4\.1`,
	ContextWindow: intPtr(1_047_576),
	MaxTokens:     intPtr(32_768),
}

var openaiReasoningProfile = ModelProfile{
	Provider:      "openai",
	ModelPattern:  `^(o1|o3|o4|codex)-`,
	ContextWindow: intPtr(200_000),
	MaxTokens:     intPtr(16_384),
	PromptSuffix:  "Keep reasoning internal; reply with tool calls or a short final answer.",
}

var geminiProfile = ModelProfile{
	Provider:      "gemini",
	ContextWindow: intPtr(1_048_576),
	MaxTokens:     intPtr(8192),
}

// builtinProfiles returns all built-in profiles in resolution order.
func builtinProfiles() []ModelProfile {
	return []ModelProfile{
		defaultProfile,
		anthropicProfile,
		openaiProfile,
		openaiLongContextProfile,
		openaiReasoningProfile,
		geminiProfile,
	}
}

// mergeProfiles merges overlay on top of base. PromptSuffix is additive.
func mergeProfiles(base, overlay ModelProfile) ModelProfile {
	result := base

	if overlay.ContextWindow != nil {
		result.ContextWindow = overlay.ContextWindow
	}
	if overlay.MaxTokens != nil {
		result.MaxTokens = overlay.MaxTokens
	}
	if overlay.Temperature != nil {
		result.Temperature = overlay.Temperature
	}
	if overlay.PromptSuffix != "" {
		if result.PromptSuffix != "" {
			result.PromptSuffix = result.PromptSuffix + "\n\n" + overlay.PromptSuffix
		} else {
			result.PromptSuffix = overlay.PromptSuffix
		}
	}
	if overlay.ProjectDocNames != nil {
		result.ProjectDocNames = overlay.ProjectDocNames
	}

	return result
}
