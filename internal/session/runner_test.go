package session

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfateev/temporal-agent-loop/internal/agent"
	"github.com/mfateev/temporal-agent-loop/internal/approval"
	"github.com/mfateev/temporal-agent-loop/internal/history"
	"github.com/mfateev/temporal-agent-loop/internal/llm"
	"github.com/mfateev/temporal-agent-loop/internal/models"
	"github.com/mfateev/temporal-agent-loop/internal/tools"
	"github.com/mfateev/temporal-agent-loop/internal/tools/handlers"
)

// hookTools runs every call through exec.
type hookTools struct {
	exec func(call models.ToolCall) models.ToolResult
}

func (h hookTools) Specs() []tools.ToolSpec { return []tools.ToolSpec{tools.NewListDirToolSpec()} }
func (h hookTools) Names() []string         { return []string{"list_dir"} }

func (h hookTools) IsConsequential(models.ToolCall) bool { return false }

func (h hookTools) Execute(_ context.Context, call models.ToolCall) models.ToolResult {
	return h.exec(call)
}

func completingClient(system *string) llm.ClientFunc {
	return llm.ClientFunc{
		StreamFunc: func(ctx context.Context, req llm.Request, onEvent func(llm.StreamEvent)) (llm.Response, error) {
			if system != nil {
				*system = req.System
			}
			call := models.ToolCall{ID: "c1", Name: "task_complete", Input: json.RawMessage(`{"summary":"done"}`)}
			onEvent(llm.StreamEvent{Type: llm.EventTextDelta, Text: "All set."})
			onEvent(llm.StreamEvent{Type: llm.EventToolUseEnd, Call: call})
			return llm.Response{Text: "All set.", ToolCalls: []models.ToolCall{call}}, nil
		},
	}
}

func taskCompleteTools() *tools.Executor {
	reg := tools.NewToolRegistry()
	reg.Register(handlers.NewTaskCompleteTool(), tools.NewTaskCompleteToolSpec())
	return tools.NewExecutor(reg)
}

func TestRunTurn_SavesNewMessages(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AGENTS.md"), []byte("run make lint"), 0o644))

	store := history.NewMemory()
	var system string
	r := &Runner{
		Store:  store,
		Client: completingClient(&system),
		Tools:  taskCompleteTools(),
		Gate:   approval.AutoApprove{},
		Cwd:    dir,
	}

	var events []agent.EventType
	res, err := r.RunTurn(context.Background(), Turn{
		SessionID:    "s1",
		Prompt:       "tidy up",
		Model:        models.ModelConfig{Provider: "anthropic", Model: "claude-sonnet-4-5"},
		Loop:         models.DefaultLoopConfig(),
		Context:      models.DefaultContextConfig(),
		SystemPrompt: "You maintain this repo.",
	}, nil, func(ev agent.Event) { events = append(events, ev.Type) })
	require.NoError(t, err)

	assert.Equal(t, models.ReasonTaskComplete, res.Summary.Reason)
	assert.Equal(t, "All set.", res.Summary.Text)
	assert.False(t, res.Managed)
	assert.Equal(t, 3, res.Stored)
	assert.Contains(t, events, agent.EventAgentComplete)

	assert.Contains(t, system, "You maintain this repo.")
	assert.Contains(t, system, "run make lint")

	saved, err := store.Load(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, saved, 3)
	assert.Equal(t, models.RoleUser, saved[0].Role)
	assert.Equal(t, "tidy up", saved[0].Content)
	assert.Equal(t, []string{"c1"}, saved[2].ResultIDs())
}

func TestRunTurn_AppendsToExistingSession(t *testing.T) {
	store := history.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "s1", []models.Message{
		{Role: models.RoleUser, Content: "first"},
		{Role: models.RoleAssistant, Content: "ok"},
	}))

	r := &Runner{Store: store, Client: completingClient(nil), Tools: taskCompleteTools(), Gate: approval.AutoApprove{}}
	res, err := r.RunTurn(ctx, Turn{SessionID: "s1", Prompt: "second", Loop: models.DefaultLoopConfig()}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Stored)

	saved, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "first", saved[0].Content)
	assert.Equal(t, "second", saved[2].Content)
}

func TestRunTurn_CompactsLongSession(t *testing.T) {
	store := history.NewMemory()
	ctx := context.Background()
	old := make([]models.Message, 10)
	for i := range old {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		old[i] = models.Message{Role: role, Content: strings.Repeat("w", 400)}
	}
	require.NoError(t, store.Save(ctx, "long", old))

	window := 1000
	client := completingClient(nil)
	client.CompleteFunc = func(ctx context.Context, req llm.Request) (llm.Response, error) {
		return llm.Response{Text: "earlier work on w"}, nil
	}
	r := &Runner{
		Store:    store,
		Client:   client,
		Tools:    taskCompleteTools(),
		Gate:     approval.AutoApprove{},
		Profiles: models.NewRegistry(models.ModelProfile{ContextWindow: &window}),
	}

	res, err := r.RunTurn(ctx, Turn{
		SessionID: "long",
		Prompt:    "continue",
		Loop:      models.DefaultLoopConfig(),
		Context: models.ContextConfig{
			CompactThreshold: 0.8,
			PruneThreshold:   0.7,
			MessagesToKeep:   2,
			BufferPercentage: 0.1,
		},
	}, nil, nil)
	require.NoError(t, err)
	assert.True(t, res.Managed)
	assert.NoError(t, res.SummaryErr)
	assert.Less(t, res.UsageAfter, res.UsageBefore)

	saved, err := store.Load(ctx, "long")
	require.NoError(t, err)
	var summaries int
	for _, m := range saved {
		if m.IsSummary {
			summaries++
		}
	}
	assert.Equal(t, 1, summaries)
	// the subsumed originals stay in storage next to the summary
	assert.Len(t, saved, 14)
	assert.Equal(t, len(saved), res.Stored)
}

func TestRunTurn_CancelStopsAtRoundBoundary(t *testing.T) {
	cancel := make(chan struct{})
	var streams int
	client := llm.ClientFunc{
		StreamFunc: func(ctx context.Context, req llm.Request, onEvent func(llm.StreamEvent)) (llm.Response, error) {
			streams++
			call := models.ToolCall{ID: "c1", Name: "list_dir", Input: json.RawMessage(`{"path":"."}`)}
			onEvent(llm.StreamEvent{Type: llm.EventToolUseEnd, Call: call})
			return llm.Response{ToolCalls: []models.ToolCall{call}}, nil
		},
	}
	runner := hookTools{exec: func(call models.ToolCall) models.ToolResult {
		close(cancel)
		// let the watcher observe the close before the next round starts
		time.Sleep(50 * time.Millisecond)
		return models.ToolResult{ToolUseID: call.ID, Name: call.Name, Content: "a.go"}
	}}

	store := history.NewMemory()
	r := &Runner{Store: store, Client: client, Tools: runner, Gate: approval.AutoApprove{}}
	res, err := r.RunTurn(context.Background(), Turn{SessionID: "c", Prompt: "look", Loop: models.DefaultLoopConfig()}, cancel, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ReasonUserCancel, res.Summary.Reason)
	assert.Equal(t, 1, streams)
	// user, assistant and tool messages all survive
	assert.Equal(t, 3, res.Stored)
}

func TestRunTurn_AbortStillSaves(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := llm.ClientFunc{
		StreamFunc: func(ctx context.Context, req llm.Request, onEvent func(llm.StreamEvent)) (llm.Response, error) {
			cancel()
			return llm.Response{}, ctx.Err()
		},
	}

	store := history.NewMemory()
	r := &Runner{Store: store, Client: client, Tools: taskCompleteTools()}
	res, err := r.RunTurn(ctx, Turn{SessionID: "a", Prompt: "hello", Loop: models.DefaultLoopConfig()}, nil, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, res.Summary.Err, context.Canceled)

	saved, err := store.Load(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "hello", saved[0].Content)
}

type failingStore struct {
	*history.Memory
}

func (failingStore) Save(context.Context, string, []models.Message) error {
	return errors.New("disk full")
}

func TestRunTurn_SaveFailure(t *testing.T) {
	r := &Runner{Store: failingStore{history.NewMemory()}, Client: completingClient(nil), Tools: taskCompleteTools(), Gate: approval.AutoApprove{}}
	res, err := r.RunTurn(context.Background(), Turn{SessionID: "f", Prompt: "hi", Loop: models.DefaultLoopConfig()}, nil, nil)
	require.ErrorContains(t, err, "disk full")
	assert.Equal(t, models.ReasonTaskComplete, res.Summary.Reason)
	assert.Zero(t, res.Stored)
}
