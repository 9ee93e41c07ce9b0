package activities

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/mfateev/temporal-agent-loop/internal/approval"
	"github.com/mfateev/temporal-agent-loop/internal/history"
	"github.com/mfateev/temporal-agent-loop/internal/instructions"
	"github.com/mfateev/temporal-agent-loop/internal/llm"
	"github.com/mfateev/temporal-agent-loop/internal/models"
	"github.com/mfateev/temporal-agent-loop/internal/tools"
	"github.com/mfateev/temporal-agent-loop/internal/tools/handlers"
)

func windowRegistry(window int) *models.ProfileRegistry {
	return models.NewRegistry(models.ModelProfile{ContextWindow: &window})
}

func smallContext() models.ContextConfig {
	return models.ContextConfig{
		ReservedOutputTokens: 0,
		CompactThreshold:     0.8,
		PruneThreshold:       0.7,
		MessagesToKeep:       2,
		BufferPercentage:     0.1,
	}
}

func longConversation(n int) []models.Message {
	msgs := make([]models.Message, n)
	for i := range msgs {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		msgs[i] = models.Message{Role: role, Content: strings.Repeat("w", 400)}
	}
	return msgs
}

type ActivitiesTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env   *testsuite.TestActivityEnvironment
	store *history.Memory
}

func TestActivitiesSuite(t *testing.T) {
	suite.Run(t, new(ActivitiesTestSuite))
}

func (s *ActivitiesTestSuite) SetupTest() {
	s.env = s.NewTestActivityEnvironment()
	s.store = history.NewMemory()
}

func (s *ActivitiesTestSuite) register(deps Deps) {
	deps.Store = s.store
	s.env.RegisterActivity(New(deps))
}

func (s *ActivitiesTestSuite) TestLoadHistory_NewSession() {
	s.register(Deps{})

	val, err := s.env.ExecuteActivity("LoadHistory", LoadHistoryInput{SessionID: "fresh"})
	s.Require().NoError(err)
	var out LoadHistoryOutput
	s.Require().NoError(val.Get(&out))
	s.Empty(out.Messages)
}

func (s *ActivitiesTestSuite) TestSaveThenLoad() {
	s.register(Deps{})
	msgs := []models.Message{{Role: models.RoleUser, Content: "hello"}}

	_, err := s.env.ExecuteActivity("SaveHistory", SaveHistoryInput{SessionID: "s1", Messages: msgs})
	s.Require().NoError(err)

	val, err := s.env.ExecuteActivity("LoadHistory", LoadHistoryInput{SessionID: "s1"})
	s.Require().NoError(err)
	var out LoadHistoryOutput
	s.Require().NoError(val.Get(&out))
	s.Require().Len(out.Messages, 1)
	s.Equal("hello", out.Messages[0].Content)
}

func (s *ActivitiesTestSuite) TestManageContext_UnderBudget() {
	s.register(Deps{Profiles: windowRegistry(100_000)})
	msgs := longConversation(4)

	val, err := s.env.ExecuteActivity("ManageContext", ManageContextInput{Messages: msgs, Context: smallContext()})
	s.Require().NoError(err)
	var out ManageContextOutput
	s.Require().NoError(val.Get(&out))
	s.False(out.Managed)
	s.Len(out.Messages, 4)
	s.Len(out.Effective, 4)
	s.Equal(out.UsageBefore, out.UsageAfter)
}

func (s *ActivitiesTestSuite) TestManageContext_Compacts() {
	var summarized int
	client := llm.ClientFunc{
		CompleteFunc: func(ctx context.Context, req llm.Request) (llm.Response, error) {
			summarized++
			return llm.Response{Text: "they talked about w"}, nil
		},
	}
	s.register(Deps{Client: client, Profiles: windowRegistry(1000)})

	val, err := s.env.ExecuteActivity("ManageContext", ManageContextInput{
		Messages: longConversation(10),
		Context:  smallContext(),
	})
	s.Require().NoError(err)
	var out ManageContextOutput
	s.Require().NoError(val.Get(&out))

	s.True(out.Managed)
	s.Equal(1, summarized)
	s.Require().NotNil(out.Compact)
	s.Equal(8, out.Compact.SummarizedCount)
	s.Empty(out.SummaryError)
	s.Less(out.UsageAfter, out.UsageBefore)
	s.Len(out.Messages, 11)
	s.Require().Len(out.Effective, 3)
	s.True(out.Effective[0].IsSummary)
}

func (s *ActivitiesTestSuite) TestManageContext_SummaryFailureKeepsMessages() {
	client := llm.ClientFunc{
		CompleteFunc: func(ctx context.Context, req llm.Request) (llm.Response, error) {
			return llm.Response{}, errors.New("model unavailable")
		},
	}
	s.register(Deps{Client: client, Profiles: windowRegistry(1000)})
	msgs := longConversation(10)

	val, err := s.env.ExecuteActivity("ManageContext", ManageContextInput{Messages: msgs, Context: smallContext()})
	s.Require().NoError(err)
	var out ManageContextOutput
	s.Require().NoError(val.Get(&out))

	s.True(out.Managed)
	s.Contains(out.SummaryError, "model unavailable")
	s.Nil(out.Compact)
	s.Len(out.Messages, 10)
}

func taskCompleteRegistry() *tools.Executor {
	reg := tools.NewToolRegistry()
	reg.Register(handlers.NewTaskCompleteTool(), tools.NewTaskCompleteToolSpec())
	return tools.NewExecutor(reg)
}

func (s *ActivitiesTestSuite) TestRunAgentLoop_TaskComplete() {
	client := llm.ClientFunc{
		StreamFunc: func(ctx context.Context, req llm.Request, onEvent func(llm.StreamEvent)) (llm.Response, error) {
			call := models.ToolCall{ID: "c1", Name: "task_complete", Input: json.RawMessage(`{"summary":"all done"}`)}
			onEvent(llm.StreamEvent{Type: llm.EventTextDelta, Text: "Finished."})
			onEvent(llm.StreamEvent{Type: llm.EventToolUseEnd, Call: call})
			return llm.Response{Text: "Finished.", ToolCalls: []models.ToolCall{call}}, nil
		},
	}
	s.register(Deps{Client: client, Tools: taskCompleteRegistry(), Gate: approval.AutoApprove{}})

	val, err := s.env.ExecuteActivity("RunAgentLoop", RunAgentLoopInput{
		Messages: []models.Message{{Role: models.RoleUser, Content: "wrap up"}},
		Config:   models.DefaultLoopConfig(),
	})
	s.Require().NoError(err)
	var out RunAgentLoopOutput
	s.Require().NoError(val.Get(&out))

	s.Equal(models.ReasonTaskComplete, out.Reason)
	s.Equal(1, out.Rounds)
	s.Equal(1, out.ToolCalls)
	s.Zero(out.ToolErrors)
	s.Equal("Finished.", out.Text)
	s.Empty(out.Error)
	s.Require().Len(out.NewMessages, 2)
	s.Equal(models.RoleAssistant, out.NewMessages[0].Role)
	s.Equal([]string{"c1"}, out.NewMessages[1].ResultIDs())
}

func (s *ActivitiesTestSuite) TestRunAgentLoop_ErrorBeforeOutputFailsActivity() {
	client := llm.ClientFunc{
		StreamFunc: func(ctx context.Context, req llm.Request, onEvent func(llm.StreamEvent)) (llm.Response, error) {
			return llm.Response{}, models.NewFatalError("invalid api key")
		},
	}
	s.register(Deps{Client: client, Tools: taskCompleteRegistry()})

	_, err := s.env.ExecuteActivity("RunAgentLoop", RunAgentLoopInput{
		Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
		Config:   models.DefaultLoopConfig(),
	})
	s.Require().Error(err)
	var appErr *temporal.ApplicationError
	s.Require().ErrorAs(err, &appErr)
	s.True(appErr.NonRetryable())
	s.Equal("Fatal", appErr.Type())
}

func (s *ActivitiesTestSuite) TestRunAgentLoop_ErrorAfterOutputIsReported() {
	rounds := 0
	client := llm.ClientFunc{
		StreamFunc: func(ctx context.Context, req llm.Request, onEvent func(llm.StreamEvent)) (llm.Response, error) {
			rounds++
			if rounds > 1 {
				return llm.Response{}, models.NewTransientError("connection reset")
			}
			onEvent(llm.StreamEvent{Type: llm.EventTextDelta, Text: "I'll check that now"})
			return llm.Response{Text: "I'll check that now"}, nil
		},
	}
	s.register(Deps{Client: client, Tools: taskCompleteRegistry()})

	val, err := s.env.ExecuteActivity("RunAgentLoop", RunAgentLoopInput{
		Messages: []models.Message{{Role: models.RoleUser, Content: "check"}},
		Config:   models.DefaultLoopConfig(),
	})
	s.Require().NoError(err)
	var out RunAgentLoopOutput
	s.Require().NoError(val.Get(&out))
	s.Contains(out.Error, "connection reset")
	s.Equal("Transient", out.ErrorType)
	s.Len(out.NewMessages, 1)
	s.Contains(out.String(), "error after 2 rounds")
}

func TestBuildSystemPrompt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AGENTS.md"), []byte("use tabs"), 0o644))

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(New(Deps{Cwd: dir}))

	val, err := env.ExecuteActivity("BuildSystemPrompt", BuildSystemPromptInput{
		Model: models.ModelConfig{Provider: "openai", Model: "gpt-4o"},
		Base:  "You review Go code.",
	})
	require.NoError(t, err)
	var out BuildSystemPromptOutput
	require.NoError(t, val.Get(&out))

	assert.True(t, out.ProjectDocs)
	assert.True(t, strings.HasPrefix(out.SystemPrompt, instructions.Preamble))
	assert.Contains(t, out.SystemPrompt, "You review Go code.")
	assert.Contains(t, out.SystemPrompt, "use tabs")
	assert.Contains(t, out.SystemPrompt, dir)
}

func TestBuildSystemPrompt_NoWorkspace(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(New(Deps{}))

	val, err := env.ExecuteActivity("BuildSystemPrompt", BuildSystemPromptInput{})
	require.NoError(t, err)
	var out BuildSystemPromptOutput
	require.NoError(t, val.Get(&out))
	assert.False(t, out.ProjectDocs)
	assert.True(t, strings.HasPrefix(out.SystemPrompt, instructions.Preamble))
}

func TestApplicationError(t *testing.T) {
	plain := errors.New("disk full")
	assert.Same(t, plain, applicationError(plain))

	var appErr *temporal.ApplicationError
	require.ErrorAs(t, applicationError(models.NewAPILimitError("slow down")), &appErr)
	assert.False(t, appErr.NonRetryable())
	assert.Equal(t, "APILimit", appErr.Type())
}
