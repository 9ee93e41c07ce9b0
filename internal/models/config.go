package models

import "time"

// ModelConfig selects the provider and model for a session.
type ModelConfig struct {
	Provider    string  `json:"provider" yaml:"provider"` // "anthropic", "openai", "gemini"
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"` // Max tokens to generate; 0 = profile default
}

// DefaultModelConfig returns a sensible default configuration.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Provider:    "anthropic",
		Model:       "claude-sonnet-4-5-20250929",
		Temperature: 0,
	}
}

// ContextConfig holds the token budget parameters for one budget check.
//
// It is a value type: callers derive a fresh copy per request with
// WithMaxContextTokens and never mutate a shared instance.
type ContextConfig struct {
	MaxContextTokens     int     `json:"max_context_tokens" yaml:"-"`
	ReservedOutputTokens int     `json:"reserved_output_tokens" yaml:"reserved_output_tokens"`
	CompactThreshold     float64 `json:"compact_threshold" yaml:"compact_threshold"`
	PruneThreshold       float64 `json:"prune_threshold" yaml:"prune_threshold"`
	MessagesToKeep       int     `json:"messages_to_keep" yaml:"messages_to_keep"`
	BufferPercentage     float64 `json:"buffer_percentage" yaml:"buffer_percentage"`
}

// DefaultContextConfig returns the default budget. MaxContextTokens is left
// at zero; it is filled in from the model profile before every check.
func DefaultContextConfig() ContextConfig {
	return ContextConfig{
		ReservedOutputTokens: 8192,
		CompactThreshold:     0.8,
		PruneThreshold:       0.7,
		MessagesToKeep:       6,
		BufferPercentage:     0.1,
	}
}

// WithMaxContextTokens returns a copy with MaxContextTokens replaced.
func (c ContextConfig) WithMaxContextTokens(n int) ContextConfig {
	c.MaxContextTokens = n
	return c
}

// Available returns the tokens usable for conversation history.
func (c ContextConfig) Available() int {
	return c.MaxContextTokens - c.ReservedOutputTokens
}

// TerminationConfig bounds the agent loop.
type TerminationConfig struct {
	MaxRounds        int           `json:"max_rounds" yaml:"max_rounds"`
	Timeout          time.Duration `json:"timeout" yaml:"timeout"` // 0 disables the wall-clock rule
	RepeatThreshold  int           `json:"repeat_threshold" yaml:"repeat_threshold"`
	FailureThreshold int           `json:"failure_threshold" yaml:"failure_threshold"`
}

// DefaultTerminationConfig returns the default loop bounds.
func DefaultTerminationConfig() TerminationConfig {
	return TerminationConfig{
		MaxRounds:        25,
		Timeout:          10 * time.Minute,
		RepeatThreshold:  3,
		FailureThreshold: 3,
	}
}

// LoopConfig configures one invocation of the agent loop.
type LoopConfig struct {
	Model       ModelConfig       `json:"model" yaml:"model"`
	Termination TerminationConfig `json:"termination" yaml:"termination"`

	// MaxHallucinationRetries caps how many times per invocation a round whose
	// text describes a tool call (without making one) is retried with a
	// corrective message. 0 means unbounded: only MaxRounds applies.
	MaxHallucinationRetries int `json:"max_hallucination_retries" yaml:"max_hallucination_retries"`

	// SystemPrompt is sent ahead of the conversation on every round.
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"-"`
}

// DefaultLoopConfig returns the default loop configuration.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		Model:       DefaultModelConfig(),
		Termination: DefaultTerminationConfig(),
	}
}
