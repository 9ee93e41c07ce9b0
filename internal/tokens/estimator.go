// Package tokens estimates token counts for text and message sets.
//
// The default estimator approximates one token per four characters; context
// thresholds are tuned against that approximation.
package tokens

import (
	"fmt"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkoukk/tiktoken-go"

	"github.com/mfateev/temporal-agent-loop/internal/models"
)

// CharsPerToken is the divisor used by CharEstimator.
const CharsPerToken = 4

// Estimator approximates the token count of a piece of text.
type Estimator interface {
	Count(text string) int
}

// CharEstimator estimates tokens as characters / 4, rounded up.
type CharEstimator struct{}

// Count implements Estimator.
func (CharEstimator) Count(text string) int {
	return CharsToTokens(utf8.RuneCountInString(text))
}

// CharsToTokens converts a character count to estimated tokens.
func CharsToTokens(chars int) int {
	if chars <= 0 {
		return 0
	}
	return (chars + CharsPerToken - 1) / CharsPerToken
}

// TiktokenEstimator counts tokens with a BPE encoding. Counts are memoised
// per distinct string since message bodies are re-counted on every check.
type TiktokenEstimator struct {
	encoding *tiktoken.Tiktoken
	cache    *lru.Cache[string, int]
}

// NewTiktokenEstimator loads the named encoding (e.g. "cl100k_base").
func NewTiktokenEstimator(encodingName string, cacheSize int) (*TiktokenEstimator, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", encodingName, err)
	}
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	cache, err := lru.New[string, int](cacheSize)
	if err != nil {
		return nil, err
	}
	return &TiktokenEstimator{encoding: enc, cache: cache}, nil
}

// Count implements Estimator.
func (t *TiktokenEstimator) Count(text string) int {
	if text == "" {
		return 0
	}
	if n, ok := t.cache.Get(text); ok {
		return n
	}
	n := len(t.encoding.Encode(text, nil, nil))
	t.cache.Add(text, n)
	return n
}

// New returns the estimator for a config name: "tiktoken" or "chars" (default).
func New(name string) (Estimator, error) {
	switch name {
	case "", "chars":
		return CharEstimator{}, nil
	case "tiktoken":
		return NewTiktokenEstimator("cl100k_base", 0)
	default:
		return nil, fmt.Errorf("unknown token estimator %q (supported: chars, tiktoken)", name)
	}
}

// MessageTokens estimates the tokens of one message, including tool calls and
// tool results it carries.
func MessageTokens(est Estimator, m models.Message) int {
	n := est.Count(m.Content)
	for _, c := range m.ToolCalls {
		n += est.Count(c.Name) + est.Count(string(c.Input))
	}
	for _, r := range m.ToolResults {
		n += est.Count(r.Content)
	}
	return n
}

// Usage recomputes token usage over the full message set. Assistant messages
// count as output; everything else counts as input.
func Usage(est Estimator, messages []models.Message) models.TokenUsage {
	var u models.TokenUsage
	for _, m := range messages {
		n := MessageTokens(est, m)
		if m.Role == models.RoleAssistant {
			u.Output += n
		} else {
			u.Input += n
		}
	}
	return u
}
