package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/converter"

	"github.com/mfateev/temporal-agent-loop/internal/workflow"
)

// queryTimeout bounds a single status query.
const queryTimeout = 5 * time.Second

// ErrSessionEnded is returned when the session workflow is no longer
// running.
var ErrSessionEnded = errors.New("session has ended")

// StatusQuerier is the part of client.Client the poller needs.
type StatusQuerier interface {
	QueryWorkflow(ctx context.Context, workflowID, runID, queryType string, args ...interface{}) (converter.EncodedValue, error)
}

// Poller follows a durable session through its status query.
type Poller struct {
	client    StatusQuerier
	sessionID string
	interval  time.Duration
}

// NewPoller creates a poller for the session workflow with the given id.
func NewPoller(c StatusQuerier, sessionID string, interval time.Duration) *Poller {
	return &Poller{client: c, sessionID: sessionID, interval: interval}
}

// Poll queries the session status once.
func (p *Poller) Poll(ctx context.Context) (workflow.SessionStatus, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var status workflow.SessionStatus
	resp, err := p.client.QueryWorkflow(queryCtx, p.sessionID, "", workflow.QueryGetStatus)
	if err != nil {
		return status, err
	}
	if err := resp.Get(&status); err != nil {
		return status, fmt.Errorf("decode session status: %w", err)
	}
	return status, nil
}

// WaitForTurn polls until turn has finished and returns its result.
// onStatus, when set, sees every status in between. Transient query
// failures are retried on the next tick.
func (p *Poller) WaitForTurn(ctx context.Context, turn int, onStatus func(workflow.SessionStatus)) (*workflow.TurnResult, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		status, err := p.Poll(ctx)
		if err != nil {
			switch classifyPollError(err) {
			case pollErrorCompleted:
				return nil, ErrSessionEnded
			case pollErrorFatal:
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, err
			}
		} else {
			if onStatus != nil {
				onStatus(status)
			}
			if status.LastTurn != nil && status.LastTurn.Turn >= turn {
				return status.LastTurn, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

type pollErrorKind int

const (
	pollErrorTransient pollErrorKind = iota
	pollErrorCompleted
	pollErrorFatal
)

// classifyPollError sorts query failures by what the poller should do next.
func classifyPollError(err error) pollErrorKind {
	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		return pollErrorCompleted
	}
	var notReady *serviceerror.WorkflowNotReady
	if errors.As(err, &notReady) {
		return pollErrorTransient
	}
	var queryFailed *serviceerror.QueryFailed
	if errors.As(err, &queryFailed) {
		return pollErrorTransient
	}
	var unavailable *serviceerror.Unavailable
	if errors.As(err, &unavailable) {
		return pollErrorTransient
	}
	if strings.Contains(err.Error(), "workflow execution already completed") {
		return pollErrorCompleted
	}
	return pollErrorFatal
}
