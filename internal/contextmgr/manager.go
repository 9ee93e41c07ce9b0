// Package contextmgr keeps a session's stored history inside the model's
// context window.
//
// Manage runs a fixed pipeline over the stored message set:
//
//  1. prune: shorten oversized message bodies;
//  2. compact: replace older messages with one generated summary;
//  3. truncate: drop older messages behind a marker.
//
// Each stage re-measures usage on the previous stage's output and runs only
// when its threshold is still exceeded. Nothing is ever deleted from the
// stored set: summarized and truncated messages are tagged, and
// EffectiveHistory filters them out.
package contextmgr

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.temporal.io/sdk/log"

	"github.com/mfateev/temporal-agent-loop/internal/logging"
	"github.com/mfateev/temporal-agent-loop/internal/models"
	"github.com/mfateev/temporal-agent-loop/internal/tokens"
)

const (
	// PruneMinChars is the content length above which a message is pruned.
	PruneMinChars = 1000
	// PruneKeepChars is how much of a pruned message is kept.
	PruneKeepChars = 500
	// PrunedMarker is appended to pruned content.
	PrunedMarker = "\n\n[content pruned]"
	// TruncateThreshold is the usage rate that triggers truncation after
	// compaction.
	TruncateThreshold = 0.95
)

// ErrSummaryFailed wraps the error reported when compaction could not
// produce a summary.
var ErrSummaryFailed = errors.New("summary generation failed")

// Summarizer produces a digest of a message range.
type Summarizer interface {
	Summarize(ctx context.Context, messages []models.Message) (string, error)
}

// SummarizerFunc adapts a function to Summarizer.
type SummarizerFunc func(ctx context.Context, messages []models.Message) (string, error)

// Summarize implements Summarizer.
func (f SummarizerFunc) Summarize(ctx context.Context, messages []models.Message) (string, error) {
	return f(ctx, messages)
}

// PruneResult reports the prune stage.
type PruneResult struct {
	PrunedCount int `json:"pruned_count"`
	TokensSaved int `json:"tokens_saved"`
}

// CompactResult reports the compact stage.
type CompactResult struct {
	CondenseID      string `json:"condense_id"`
	SummarizedCount int    `json:"summarized_count"`
	TokensSaved     int    `json:"tokens_saved"`
}

// TruncateResult reports the truncate stage.
type TruncateResult struct {
	TruncationID string `json:"truncation_id"`

	// DroppedCount counts the messages the model no longer sees;
	// RemovedCount also includes condensed originals removed from storage.
	DroppedCount int `json:"dropped_count"`
	RemovedCount int `json:"removed_count"`
	TokensSaved  int `json:"tokens_saved"`
}

// Result is the outcome of Manage. Stage results are nil when the stage did
// not run.
type Result struct {
	// Messages is the new stored message set.
	Messages []models.Message `json:"messages"`

	Prune    *PruneResult    `json:"prune,omitempty"`
	Compact  *CompactResult  `json:"compact,omitempty"`
	Truncate *TruncateResult `json:"truncate,omitempty"`

	UsageBefore float64 `json:"usage_before"`
	UsageAfter  float64 `json:"usage_after"`

	// WithinBudget reports whether UsageAfter leaves BufferPercentage of
	// the available window free.
	WithinBudget bool `json:"within_budget"`

	// SummaryFailed is set when compaction failed. Messages is then the
	// unmodified input and SummaryErr wraps ErrSummaryFailed.
	SummaryFailed bool  `json:"summary_failed,omitempty"`
	SummaryErr    error `json:"-"`
}

// Manager runs budget checks and the management pipeline. It holds no
// per-session state; every call receives the message set and a ContextConfig
// value.
type Manager struct {
	summarizer Summarizer
	estimator  tokens.Estimator
	logger     log.Logger
	newID      func() string
	now        func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithEstimator overrides the default chars/4 estimator.
func WithEstimator(est tokens.Estimator) Option {
	return func(m *Manager) { m.estimator = est }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(m *Manager) { m.logger = logging.OrNop(l) }
}

// WithIDGenerator overrides uuid generation for summary and marker ids.
func WithIDGenerator(f func() string) Option {
	return func(m *Manager) { m.newID = f }
}

// WithClock overrides the time source used to stamp inserted messages.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a Manager.
func New(s Summarizer, opts ...Option) *Manager {
	m := &Manager{
		summarizer: s,
		estimator:  tokens.CharEstimator{},
		logger:     logging.Nop(),
		newID:      uuid.NewString,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Usage recomputes token usage over the effective history of messages.
func (m *Manager) Usage(messages []models.Message, cfg models.ContextConfig) models.TokenUsage {
	return tokens.Usage(m.estimator, EffectiveHistory(messages, cfg.MessagesToKeep))
}

// UsageRate returns usage divided by the tokens available for history.
// When nothing is available the rate is 1.
func (m *Manager) UsageRate(messages []models.Message, cfg models.ContextConfig) float64 {
	available := cfg.Available()
	if available <= 0 {
		return 1.0
	}
	return float64(m.Usage(messages, cfg).Total()) / float64(available)
}

// ShouldManage reports whether the usage rate reaches either the prune or
// the compact threshold.
func (m *Manager) ShouldManage(messages []models.Message, cfg models.ContextConfig) bool {
	rate := m.UsageRate(messages, cfg)
	return rate >= cfg.PruneThreshold || rate >= cfg.CompactThreshold
}

// Manage runs prune, then compact, then truncate. The input slice is not
// modified.
func (m *Manager) Manage(ctx context.Context, messages []models.Message, cfg models.ContextConfig) Result {
	work := cloneMessages(messages)
	before := m.UsageRate(work, cfg)
	result := Result{UsageBefore: before}

	work, prune := Prune(work)
	if prune.PrunedCount > 0 {
		result.Prune = &prune
		m.logStage("prune", before, m.UsageRate(work, cfg), prune.TokensSaved)
	}

	if rate := m.UsageRate(work, cfg); rate >= cfg.CompactThreshold {
		compacted, compact, ok, err := m.compact(ctx, work, cfg.MessagesToKeep)
		if err != nil {
			m.logger.Warn("Context compaction failed; keeping history uncompacted", "error", err)
			return Result{
				Messages:      cloneMessages(messages),
				UsageBefore:   before,
				UsageAfter:    before,
				WithinBudget:  withinBudget(before, cfg),
				SummaryFailed: true,
				SummaryErr:    fmt.Errorf("%w: %v", ErrSummaryFailed, err),
			}
		}
		if ok {
			work = compacted
			result.Compact = &compact
			m.logStage("compact", rate, m.UsageRate(work, cfg), compact.TokensSaved)
		}
	}

	if rate := m.UsageRate(work, cfg); rate >= TruncateThreshold {
		truncated, trunc, ok := m.truncate(work, cfg.MessagesToKeep)
		if ok {
			work = truncated
			result.Truncate = &trunc
			m.logStage("truncate", rate, m.UsageRate(work, cfg), trunc.TokensSaved)
		}
	}

	result.Messages = work
	result.UsageAfter = m.UsageRate(work, cfg)
	result.WithinBudget = withinBudget(result.UsageAfter, cfg)
	return result
}

func (m *Manager) logStage(stage string, before, after float64, saved int) {
	m.logger.Info("Context management stage completed",
		"stage", stage,
		"usage_before", before,
		"usage_after", after,
		"tokens_saved", saved)
}

func withinBudget(rate float64, cfg models.ContextConfig) bool {
	return rate <= 1-cfg.BufferPercentage
}

// Prune shortens every non-marker message whose content, or any of whose
// tool results, exceeds PruneMinChars characters. Tool call inputs are left
// intact so they remain valid JSON. The input slice is not modified.
func Prune(messages []models.Message) ([]models.Message, PruneResult) {
	out := cloneMessages(messages)
	var res PruneResult
	savedChars := 0
	for i := range out {
		if out[i].IsMarker() {
			continue
		}
		pruned := false
		if s, delta, ok := pruneText(out[i].Content); ok {
			out[i].Content = s
			savedChars += delta
			pruned = true
		}
		for j := range out[i].ToolResults {
			if s, delta, ok := pruneText(out[i].ToolResults[j].Content); ok {
				out[i].ToolResults[j].Content = s
				savedChars += delta
				pruned = true
			}
		}
		if pruned {
			res.PrunedCount++
		}
	}
	res.TokensSaved = tokens.CharsToTokens(savedChars)
	return out, res
}

func pruneText(s string) (string, int, bool) {
	n := utf8.RuneCountInString(s)
	if n <= PruneMinChars {
		return s, 0, false
	}
	kept := string([]rune(s)[:PruneKeepChars]) + PrunedMarker
	return kept, n - utf8.RuneCountInString(kept), true
}

// splitOlder returns the stored indices of effective messages older than
// the anchor window of keep messages. The boundary moves earlier while it
// would separate a tool-result message from the assistant call it answers.
func splitOlder(messages []models.Message, keep int) []int {
	var eff []int
	for i := range messages {
		if effective(messages, i, keep) {
			eff = append(eff, i)
		}
	}
	if keep < 0 {
		keep = 0
	}
	split := len(eff) - keep
	if split <= 0 {
		return nil
	}
	for split > 0 && messages[eff[split]].Role == models.RoleTool {
		split--
	}
	return eff[:split]
}

func (m *Manager) compact(ctx context.Context, messages []models.Message, keep int) ([]models.Message, CompactResult, bool, error) {
	older := splitOlder(messages, keep)
	if len(older) == 0 {
		return messages, CompactResult{}, false, nil
	}
	subset := make([]models.Message, 0, len(older))
	for _, i := range older {
		subset = append(subset, messages[i])
	}

	if m.summarizer == nil {
		return nil, CompactResult{}, false, errors.New("no summarizer configured")
	}
	text, err := m.summarizer.Summarize(ctx, subset)
	if err != nil {
		return nil, CompactResult{}, false, err
	}

	id := m.newID()
	summary := models.Message{
		Role:         models.RoleSystem,
		Content:      "Summary of the earlier conversation:\n" + text,
		SequenceTime: m.now(),
		IsSummary:    true,
		CondenseID:   id,
	}
	for _, i := range older {
		messages[i].CondenseParent = id
	}
	out := insertAfter(messages, older[len(older)-1], summary)

	saved := tokens.Usage(m.estimator, subset).Total() - tokens.MessageTokens(m.estimator, summary)
	return out, CompactResult{CondenseID: id, SummarizedCount: len(older), TokensSaved: saved}, true, nil
}

// truncate replaces everything before the kept window with one marker.
// Condensed originals of dropped summaries go with them, so the stored set
// shrinks.
func (m *Manager) truncate(messages []models.Message, keep int) ([]models.Message, TruncateResult, bool) {
	older := splitOlder(messages, keep)
	if len(older) == 0 {
		return messages, TruncateResult{}, false
	}
	dropped := make([]models.Message, 0, len(older))
	for _, i := range older {
		dropped = append(dropped, messages[i])
	}
	last := older[len(older)-1]
	marker := models.Message{
		Role:               models.RoleSystem,
		Content:            fmt.Sprintf("[%d earlier messages were removed to fit the context window]", len(older)),
		SequenceTime:       m.now(),
		IsTruncationMarker: true,
		TruncationID:       m.newID(),
	}
	out := make([]models.Message, 0, len(messages)-last)
	out = append(out, marker)
	out = append(out, messages[last+1:]...)

	saved := tokens.Usage(m.estimator, dropped).Total() - tokens.MessageTokens(m.estimator, marker)
	return out, TruncateResult{
		TruncationID: marker.TruncationID,
		DroppedCount: len(older),
		RemovedCount: last + 1,
		TokensSaved:  saved,
	}, true
}

// EffectiveHistory returns the messages that should be sent to the model:
// everything not subsumed by a summary or truncation marker, plus the most
// recent keep messages regardless of tagging.
func EffectiveHistory(messages []models.Message, keep int) []models.Message {
	out := make([]models.Message, 0, len(messages))
	for i, msg := range messages {
		if effective(messages, i, keep) {
			out = append(out, msg)
		}
	}
	return out
}

func effective(messages []models.Message, i, keep int) bool {
	return !messages[i].Subsumed() || i >= len(messages)-keep
}

func insertAfter(messages []models.Message, idx int, msg models.Message) []models.Message {
	out := make([]models.Message, 0, len(messages)+1)
	out = append(out, messages[:idx+1]...)
	out = append(out, msg)
	return append(out, messages[idx+1:]...)
}

func cloneMessages(messages []models.Message) []models.Message {
	out := make([]models.Message, len(messages))
	for i, msg := range messages {
		msg.ToolCalls = append([]models.ToolCall(nil), msg.ToolCalls...)
		msg.ToolResults = append([]models.ToolResult(nil), msg.ToolResults...)
		out[i] = msg
	}
	return out
}
