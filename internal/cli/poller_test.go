package cli

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/converter"

	"github.com/mfateev/temporal-agent-loop/internal/workflow"
)

type jsonValue struct{ v interface{} }

func (j jsonValue) HasValue() bool { return j.v != nil }

func (j jsonValue) Get(ptr interface{}) error {
	data, err := json.Marshal(j.v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, ptr)
}

// scriptedQuerier answers status queries from a fixed script; the last
// entry repeats.
type scriptedQuerier struct {
	mu      sync.Mutex
	answers []answer
	calls   int
}

type answer struct {
	status workflow.SessionStatus
	err    error
}

func (q *scriptedQuerier) QueryWorkflow(ctx context.Context, workflowID, runID, queryType string, args ...interface{}) (converter.EncodedValue, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if queryType != workflow.QueryGetStatus {
		return nil, errors.New("unexpected query " + queryType)
	}
	a := q.answers[min(q.calls, len(q.answers)-1)]
	q.calls++
	if a.err != nil {
		return nil, a.err
	}
	return jsonValue{a.status}, nil
}

func TestPoller_WaitForTurn(t *testing.T) {
	q := &scriptedQuerier{answers: []answer{
		{status: workflow.SessionStatus{SessionID: "s", Phase: workflow.PhaseRunningLoop, TurnCount: 1}},
		{err: serviceerror.NewQueryFailed("busy")},
		{status: workflow.SessionStatus{
			SessionID: "s",
			Phase:     workflow.PhaseWaitingForInput,
			TurnCount: 2,
			LastTurn:  &workflow.TurnResult{Turn: 2, Text: "done"},
		}},
	}}
	p := NewPoller(q, "s", time.Millisecond)

	var phases []workflow.TurnPhase
	res, err := p.WaitForTurn(context.Background(), 2, func(st workflow.SessionStatus) {
		phases = append(phases, st.Phase)
	})
	require.NoError(t, err)
	assert.Equal(t, "done", res.Text)
	assert.Equal(t, []workflow.TurnPhase{workflow.PhaseRunningLoop, workflow.PhaseWaitingForInput}, phases)
	assert.Equal(t, 3, q.calls)
}

func TestPoller_SkipsOlderTurns(t *testing.T) {
	q := &scriptedQuerier{answers: []answer{
		{status: workflow.SessionStatus{LastTurn: &workflow.TurnResult{Turn: 1}}},
		{status: workflow.SessionStatus{LastTurn: &workflow.TurnResult{Turn: 2, Text: "second"}}},
	}}
	res, err := NewPoller(q, "s", time.Millisecond).WaitForTurn(context.Background(), 2, nil)
	require.NoError(t, err)
	assert.Equal(t, "second", res.Text)
}

func TestPoller_SessionEnded(t *testing.T) {
	q := &scriptedQuerier{answers: []answer{{err: serviceerror.NewNotFound("gone")}}}
	_, err := NewPoller(q, "s", time.Millisecond).WaitForTurn(context.Background(), 1, nil)
	assert.ErrorIs(t, err, ErrSessionEnded)
}

func TestPoller_FatalError(t *testing.T) {
	q := &scriptedQuerier{answers: []answer{{err: errors.New("permission denied")}}}
	_, err := NewPoller(q, "s", time.Millisecond).WaitForTurn(context.Background(), 1, nil)
	assert.ErrorContains(t, err, "permission denied")
}

func TestPoller_ContextCancelled(t *testing.T) {
	q := &scriptedQuerier{answers: []answer{{status: workflow.SessionStatus{}}}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewPoller(q, "s", 5*time.Millisecond).WaitForTurn(ctx, 1, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClassifyPollError(t *testing.T) {
	assert.Equal(t, pollErrorCompleted, classifyPollError(serviceerror.NewNotFound("x")))
	assert.Equal(t, pollErrorTransient, classifyPollError(serviceerror.NewWorkflowNotReady("x")))
	assert.Equal(t, pollErrorTransient, classifyPollError(serviceerror.NewQueryFailed("x")))
	assert.Equal(t, pollErrorTransient, classifyPollError(serviceerror.NewUnavailable("x")))
	assert.Equal(t, pollErrorCompleted, classifyPollError(errors.New("workflow execution already completed")))
	assert.Equal(t, pollErrorFatal, classifyPollError(errors.New("boom")))
}
