package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mfateev/temporal-agent-loop/internal/models"
	"github.com/mfateev/temporal-agent-loop/internal/tools"
)

// AnthropicClient implements Client using Anthropic's Messages API.
type AnthropicClient struct {
	client anthropic.Client
}

// NewAnthropicClient creates an Anthropic client. The API key is read from
// ANTHROPIC_API_KEY; extra options are applied after it.
func NewAnthropicClient(opts ...option.RequestOption) *AnthropicClient {
	opts = append([]option.RequestOption{option.WithAPIKey(os.Getenv("ANTHROPIC_API_KEY"))}, opts...)
	return &AnthropicClient{client: anthropic.NewClient(opts...)}
}

// Stream runs one streamed round. Text deltas are forwarded as they arrive;
// a tool call is announced when its content block starts and completed when
// the block stops, with the accumulated input JSON.
func (c *AnthropicClient) Stream(ctx context.Context, req Request, onEvent func(StreamEvent)) (Response, error) {
	params := buildAnthropicParams(req)
	stream := c.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	type partialCall struct {
		id   string
		name string
		args strings.Builder
	}
	partials := map[int64]*partialCall{}

	msg := anthropic.Message{}
	var text strings.Builder
	var calls []models.ToolCall

	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return Response{}, models.NewTransientError(fmt.Sprintf("anthropic stream: %v", err))
		}
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if ev.ContentBlock.Type != "tool_use" {
				continue
			}
			pc := &partialCall{id: ev.ContentBlock.ID, name: ev.ContentBlock.Name}
			partials[ev.Index] = pc
			onEvent(StreamEvent{Type: EventToolUseStart, Call: models.ToolCall{ID: pc.id, Name: pc.name}})

		case anthropic.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text == "" {
					continue
				}
				text.WriteString(delta.Text)
				onEvent(StreamEvent{Type: EventTextDelta, Text: delta.Text})
			case anthropic.InputJSONDelta:
				if pc := partials[ev.Index]; pc != nil {
					pc.args.WriteString(delta.PartialJSON)
				}
			}

		case anthropic.ContentBlockStopEvent:
			pc := partials[ev.Index]
			if pc == nil {
				continue
			}
			delete(partials, ev.Index)
			raw := strings.TrimSpace(pc.args.String())
			if raw == "" {
				idx := int(ev.Index)
				if idx >= 0 && idx < len(msg.Content) {
					if tu, ok := msg.Content[idx].AsAny().(anthropic.ToolUseBlock); ok {
						raw = string(tu.Input)
					}
				}
			}
			call := models.ToolCall{ID: pc.id, Name: pc.name, Input: rawInput(raw)}
			calls = append(calls, call)
			onEvent(StreamEvent{Type: EventToolUseEnd, Call: call})
		}
	}
	if err := stream.Err(); err != nil {
		return Response{}, classifyAnthropicError(err)
	}

	return Response{
		Text:       text.String(),
		ToolCalls:  calls,
		Usage:      anthropicUsage(msg.Usage),
		StopReason: string(msg.StopReason),
	}, nil
}

// Complete sends a single non-streaming request.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (Response, error) {
	msg, err := c.client.Messages.New(ctx, buildAnthropicParams(req))
	if err != nil {
		return Response{}, classifyAnthropicError(err)
	}

	var resp Response
	var text strings.Builder
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			resp.ToolCalls = append(resp.ToolCalls, models.ToolCall{
				ID:    b.ID,
				Name:  b.Name,
				Input: rawInput(string(b.Input)),
			})
		}
	}
	resp.Text = text.String()
	resp.Usage = anthropicUsage(msg.Usage)
	resp.StopReason = string(msg.StopReason)
	return resp, nil
}

func anthropicUsage(u anthropic.Usage) models.TokenUsage {
	return models.TokenUsage{
		Input:      int(u.InputTokens),
		Output:     int(u.OutputTokens),
		CacheRead:  int(u.CacheReadInputTokens),
		CacheWrite: int(u.CacheCreationInputTokens),
	}
}

func buildAnthropicParams(req Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     selectAnthropicModel(req.Model.Model),
		MaxTokens: maxTokens(req.Model),
		Messages:  buildAnthropicMessages(req.Messages),
	}
	if req.System != "" {
		// The preamble is identical on every round of a session, so it is
		// marked cacheable.
		params.System = []anthropic.TextBlockParam{{
			Text: req.System,
			CacheControl: anthropic.CacheControlEphemeralParam{
				TTL: anthropic.CacheControlEphemeralTTLTTL5m,
			},
		}}
	}
	if req.Model.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Model.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = buildAnthropicTools(req.Tools)
	}
	return params
}

// selectAnthropicModel maps short model aliases to Anthropic model ids.
// Unknown names are passed through unchanged.
func selectAnthropicModel(modelName string) anthropic.Model {
	switch modelName {
	case "":
		return anthropic.ModelClaudeSonnet4_5_20250929
	case "claude-sonnet-4.5", "claude-sonnet-4-5":
		return anthropic.ModelClaudeSonnet4_5_20250929
	case "claude-opus-4.6", "claude-opus-4-6":
		return anthropic.ModelClaudeOpus4_6
	case "claude-haiku-4.5", "claude-haiku-4-5":
		return anthropic.ModelClaudeHaiku4_5_20251001
	default:
		return anthropic.Model(modelName)
	}
}

// buildAnthropicMessages converts history to Anthropic messages. Tool calls
// become tool_use blocks on the assistant turn; tool results become
// tool_result blocks at the head of the following user turn.
func buildAnthropicMessages(history []models.Message) []anthropic.MessageParam {
	turns := buildTurns(history)
	out := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		var content []anthropic.ContentBlockParamUnion
		for _, r := range t.results {
			content = append(content, anthropic.ContentBlockParamUnion{
				OfToolResult: &anthropic.ToolResultBlockParam{
					ToolUseID: r.ToolUseID,
					Content: []anthropic.ToolResultBlockParamContentUnion{{
						OfText: &anthropic.TextBlockParam{Text: nonEmpty(r.Content)},
					}},
					IsError: anthropic.Bool(r.IsError),
				},
			})
		}
		for _, text := range t.texts {
			content = append(content, anthropic.ContentBlockParamUnion{
				OfText: &anthropic.TextBlockParam{Text: text},
			})
		}
		for _, call := range t.calls {
			content = append(content, anthropic.ContentBlockParamUnion{
				OfToolUse: &anthropic.ToolUseBlockParam{
					ID:    call.ID,
					Name:  call.Name,
					Input: callArguments(call),
				},
			})
		}

		role := anthropic.MessageParamRoleUser
		if t.role == turnAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: content})
	}
	return out
}

// buildAnthropicTools converts ToolSpecs to Anthropic tool definitions.
func buildAnthropicTools(specs []tools.ToolSpec) []anthropic.ToolUnionParam {
	defs := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		schema := anthropic.ToolInputSchemaParam{Properties: spec.Properties()}
		if required := spec.RequiredParams(); len(required) > 0 {
			schema.Required = required
		}
		defs = append(defs, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        spec.Name,
				Description: anthropic.String(spec.Description),
				InputSchema: schema,
			},
		})
	}
	return defs
}

// nonEmpty substitutes a placeholder for empty tool output, which the API
// rejects.
func nonEmpty(s string) string {
	if s == "" {
		return "(no output)"
	}
	return s
}

// classifyAnthropicError categorizes an Anthropic API error using the HTTP
// status code when available, falling back to message-based heuristics.
func classifyAnthropicError(err error) error {
	if isContextOverflow(err) {
		return models.NewContextOverflowError(err.Error())
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return classifyByStatusCode(apiErr.StatusCode, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return classifyUntyped("Anthropic", err)
}
