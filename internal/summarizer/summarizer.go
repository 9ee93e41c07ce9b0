// Package summarizer produces a short digest of a message range with one
// non-streaming model call. The context manager uses it during compaction.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.temporal.io/sdk/log"

	"github.com/mfateev/temporal-agent-loop/internal/llm"
	"github.com/mfateev/temporal-agent-loop/internal/logging"
	"github.com/mfateev/temporal-agent-loop/internal/models"
)

// SystemPrompt instructs the model how to summarize.
const SystemPrompt = `You are compacting the transcript of a session between a user and a coding agent that uses tools.
Write a concise summary that lets the agent continue the task without the original messages.
Keep: the user's goal and constraints, decisions made, files and commands involved, important tool results and errors, and what remains to be done.
Drop: pleasantries, repeated output, and details that no longer matter.
Reply with the summary only.`

// maxEntryChars bounds how much of any single message or tool result is
// included in the transcript sent for summarization.
const maxEntryChars = 4000

// ErrEmptySummary is returned when the model replies with no text.
var ErrEmptySummary = errors.New("model returned an empty summary")

// Summarizer generates summaries through an llm.Client.
type Summarizer struct {
	client llm.Client
	model  models.ModelConfig
	logger log.Logger
}

// New creates a Summarizer that calls client with the given model.
func New(client llm.Client, model models.ModelConfig, logger log.Logger) *Summarizer {
	return &Summarizer{client: client, model: model, logger: logging.OrNop(logger)}
}

// Summarize returns a digest of messages.
func (s *Summarizer) Summarize(ctx context.Context, messages []models.Message) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("nothing to summarize")
	}
	resp, err := s.client.Complete(ctx, llm.Request{
		Messages: []models.Message{{Role: models.RoleUser, Content: Transcript(messages)}},
		System:   SystemPrompt,
		Model:    s.model,
	})
	if err != nil {
		return "", fmt.Errorf("summary call failed: %w", err)
	}
	summary := strings.TrimSpace(resp.Text)
	if summary == "" {
		return "", ErrEmptySummary
	}
	s.logger.Debug("Summary generated",
		"messages", len(messages),
		"summary_chars", utf8.RuneCountInString(summary),
		"input_tokens", resp.Usage.Input,
		"output_tokens", resp.Usage.Output)
	return summary, nil
}

// Transcript renders messages as plain text for the summarization request.
func Transcript(messages []models.Message) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case models.RoleTool:
			for _, r := range m.ToolResults {
				status := "ok"
				if r.IsError {
					status = "error"
				}
				fmt.Fprintf(&b, "[tool result %s, %s]\n%s\n\n", r.Name, status, clip(r.Content))
			}
		default:
			label := string(m.Role)
			if m.IsSummary {
				label = "earlier summary"
			}
			if m.Content != "" {
				fmt.Fprintf(&b, "[%s]\n%s\n\n", label, clip(m.Content))
			}
			for _, c := range m.ToolCalls {
				fmt.Fprintf(&b, "[tool call %s]\n%s\n\n", c.Name, clip(string(c.Input)))
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func clip(s string) string {
	if utf8.RuneCountInString(s) <= maxEntryChars {
		return s
	}
	r := []rune(s)
	return string(r[:maxEntryChars]) + " …"
}
