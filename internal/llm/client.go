// Package llm adapts model providers to the two capabilities the agent loop
// consumes: a streaming round (Stream) and a single non-streaming call
// (Complete) used for summaries.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mfateev/temporal-agent-loop/internal/models"
	"github.com/mfateev/temporal-agent-loop/internal/tools"
)

// defaultMaxTokens is used when neither the request nor the profile sets one.
const defaultMaxTokens = 4096

// Request is one model call.
type Request struct {
	Messages []models.Message   `json:"messages"`
	Tools    []tools.ToolSpec   `json:"tools,omitempty"`
	System   string             `json:"system,omitempty"`
	Model    models.ModelConfig `json:"model"`
}

// EventType identifies a StreamEvent variant.
type EventType string

const (
	EventTextDelta    EventType = "text_delta"
	EventToolUseStart EventType = "tool_use_start"
	EventToolUseEnd   EventType = "tool_use_end"
)

// StreamEvent is one incremental piece of a streamed response. Call.ID is
// the same on the start and end events of a tool call; Call.Input is only
// populated on EventToolUseEnd.
type StreamEvent struct {
	Type EventType
	Text string
	Call models.ToolCall
}

// Response is the final result of a call.
type Response struct {
	Text       string            `json:"text"`
	ToolCalls  []models.ToolCall `json:"tool_calls,omitempty"`
	Usage      models.TokenUsage `json:"usage"`
	StopReason string            `json:"stop_reason,omitempty"`
}

// Message returns the response as an assistant message.
func (r Response) Message() models.Message {
	return models.Message{
		Role:      models.RoleAssistant,
		Content:   r.Text,
		ToolCalls: r.ToolCalls,
	}
}

// Client is implemented by every provider adapter.
//
// Stream invokes onEvent synchronously, in arrival order, for every text
// delta and tool-call boundary. A non-nil error means the stream failed; any
// events already delivered stand.
type Client interface {
	Stream(ctx context.Context, req Request, onEvent func(StreamEvent)) (Response, error)
	Complete(ctx context.Context, req Request) (Response, error)
}

// ClientFunc adapts a pair of functions to Client. Useful in tests.
type ClientFunc struct {
	StreamFunc   func(ctx context.Context, req Request, onEvent func(StreamEvent)) (Response, error)
	CompleteFunc func(ctx context.Context, req Request) (Response, error)
}

func (f ClientFunc) Stream(ctx context.Context, req Request, onEvent func(StreamEvent)) (Response, error) {
	if f.StreamFunc == nil {
		return Response{}, models.NewFatalError("streaming not supported")
	}
	return f.StreamFunc(ctx, req, onEvent)
}

func (f ClientFunc) Complete(ctx context.Context, req Request) (Response, error) {
	if f.CompleteFunc == nil {
		return Response{}, models.NewFatalError("completion not supported")
	}
	return f.CompleteFunc(ctx, req)
}

func maxTokens(mc models.ModelConfig) int64 {
	if mc.MaxTokens > 0 {
		return int64(mc.MaxTokens)
	}
	return defaultMaxTokens
}

// classifyByStatusCode maps an HTTP status code to the appropriate LoopError.
// Shared by all provider error classifiers.
//
// Classification:
//   - 429 (Too Many Requests): rate limit, retryable with delay
//   - 408 (Request Timeout), 409 (Conflict): transient, retryable
//   - Other 4xx: fatal client error, non-retryable (e.g., 400, 401, 403, 404)
//   - 5xx: transient server error, retryable
func classifyByStatusCode(statusCode int, err error) *models.LoopError {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return models.NewAPILimitError(fmt.Sprintf("rate limit (%d): %v", statusCode, err))
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusConflict:
		return models.NewTransientError(fmt.Sprintf("retryable error (%d): %v", statusCode, err))
	case statusCode >= 400 && statusCode < 500:
		return models.NewFatalError(fmt.Sprintf("client error (%d): %v", statusCode, err))
	case statusCode >= 500:
		return models.NewTransientError(fmt.Sprintf("server error (%d): %v", statusCode, err))
	default:
		return models.NewTransientError(fmt.Sprintf("unexpected status (%d): %v", statusCode, err))
	}
}

var contextOverflowMarkers = []string{
	"context_length",
	"maximum context length",
	"too many tokens",
	"prompt is too long",
	"exceeds the maximum number of tokens",
}

// isContextOverflow reports whether a provider error message describes a
// request that does not fit the model's context window.
func isContextOverflow(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, m := range contextOverflowMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// classifyUntyped handles errors that carry no status code.
func classifyUntyped(provider string, err error) *models.LoopError {
	if isContextOverflow(err) {
		return models.NewContextOverflowError(err.Error())
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "rate_limit") || strings.Contains(msg, "rate limit") {
		return models.NewAPILimitError(err.Error())
	}
	return models.NewTransientError(fmt.Sprintf("%s API error: %v", provider, err))
}
