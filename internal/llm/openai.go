package llm

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"

	"github.com/mfateev/temporal-agent-loop/internal/models"
	"github.com/mfateev/temporal-agent-loop/internal/tools"
)

// OpenAIClient implements Client using OpenAI's Responses API.
type OpenAIClient struct {
	client openai.Client
}

// NewOpenAIClient creates an OpenAI client. The API key is read from
// OPENAI_API_KEY; extra options are applied after it.
func NewOpenAIClient(opts ...option.RequestOption) *OpenAIClient {
	opts = append([]option.RequestOption{option.WithAPIKey(os.Getenv("OPENAI_API_KEY"))}, opts...)
	return &OpenAIClient{client: openai.NewClient(opts...)}
}

// Stream runs one streamed round. A function call is announced when its
// output item is added and completed when the item is done; the done item
// carries the full argument string.
func (c *OpenAIClient) Stream(ctx context.Context, req Request, onEvent func(StreamEvent)) (Response, error) {
	stream := c.client.Responses.NewStreaming(ctx, buildOpenAIParams(req))
	defer stream.Close()

	var text strings.Builder
	var calls []models.ToolCall
	var resp Response
	started := map[string]bool{}

	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case responses.ResponseTextDeltaEvent:
			if ev.Delta == "" {
				continue
			}
			text.WriteString(ev.Delta)
			onEvent(StreamEvent{Type: EventTextDelta, Text: ev.Delta})

		case responses.ResponseOutputItemAddedEvent:
			if ev.Item.Type != "function_call" {
				continue
			}
			started[ev.Item.ID] = true
			onEvent(StreamEvent{Type: EventToolUseStart, Call: models.ToolCall{ID: ev.Item.CallID, Name: ev.Item.Name}})

		case responses.ResponseOutputItemDoneEvent:
			if ev.Item.Type != "function_call" {
				continue
			}
			call := models.ToolCall{ID: ev.Item.CallID, Name: ev.Item.Name, Input: rawInput(ev.Item.Arguments)}
			if !started[ev.Item.ID] {
				onEvent(StreamEvent{Type: EventToolUseStart, Call: models.ToolCall{ID: call.ID, Name: call.Name}})
			}
			calls = append(calls, call)
			onEvent(StreamEvent{Type: EventToolUseEnd, Call: call})

		case responses.ResponseCompletedEvent:
			resp.Usage = openAIUsage(ev.Response.Usage)
			resp.StopReason = string(ev.Response.Status)
		}
	}
	if err := stream.Err(); err != nil {
		return Response{}, classifyOpenAIError(err)
	}

	resp.Text = text.String()
	resp.ToolCalls = calls
	return resp, nil
}

// Complete sends a single non-streaming request.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	out, err := c.client.Responses.New(ctx, buildOpenAIParams(req))
	if err != nil {
		return Response{}, classifyOpenAIError(err)
	}
	return parseOpenAIOutput(out), nil
}

// parseOpenAIOutput uses the flat fields of ResponseOutputItemUnion rather
// than the As* accessors, which depend on the raw JSON being retained.
func parseOpenAIOutput(out *responses.Response) Response {
	var resp Response
	var text strings.Builder
	for _, item := range out.Output {
		switch item.Type {
		case "message":
			for _, content := range item.Content {
				if content.Type == "output_text" {
					text.WriteString(content.Text)
				}
			}
		case "function_call":
			resp.ToolCalls = append(resp.ToolCalls, models.ToolCall{
				ID:    item.CallID,
				Name:  item.Name,
				Input: rawInput(item.Arguments),
			})
		}
	}
	resp.Text = text.String()
	resp.Usage = openAIUsage(out.Usage)
	resp.StopReason = string(out.Status)
	return resp
}

func openAIUsage(u responses.ResponseUsage) models.TokenUsage {
	return models.TokenUsage{
		Input:     int(u.InputTokens),
		Output:    int(u.OutputTokens),
		CacheRead: int(u.InputTokensDetails.CachedTokens),
	}
}

func buildOpenAIParams(req Request) responses.ResponseNewParams {
	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(req.Model.Model),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: buildOpenAIInput(req.Messages),
		},
		MaxOutputTokens: openai.Int(maxTokens(req.Model)),
		Store:           openai.Bool(false),
	}
	if req.System != "" {
		params.Instructions = openai.String(req.System)
	}
	if req.Model.Temperature > 0 {
		params.Temperature = openai.Float(req.Model.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = buildOpenAITools(req.Tools)
	}
	return params
}

// buildOpenAIInput converts history to Responses API input items.
//
// Type mapping:
//   - user message → easy input message, role user
//   - system message → easy input message, role system
//   - assistant text → easy input message, role assistant
//   - assistant tool call → function_call item
//   - tool result → function_call_output item
func buildOpenAIInput(history []models.Message) responses.ResponseInputParam {
	items := make(responses.ResponseInputParam, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case models.RoleUser:
			if m.Content != "" {
				items = append(items, responses.ResponseInputItemParamOfMessage(m.Content, responses.EasyInputMessageRoleUser))
			}
		case models.RoleSystem:
			if m.Content != "" {
				items = append(items, responses.ResponseInputItemParamOfMessage(m.Content, responses.EasyInputMessageRoleSystem))
			}
		case models.RoleAssistant:
			if m.Content != "" {
				items = append(items, responses.ResponseInputItemParamOfMessage(m.Content, responses.EasyInputMessageRoleAssistant))
			}
			for _, call := range m.ToolCalls {
				args := string(call.Input)
				if args == "" {
					args = "{}"
				}
				items = append(items, responses.ResponseInputItemParamOfFunctionCall(args, call.ID, call.Name))
			}
		case models.RoleTool:
			for _, r := range m.ToolResults {
				items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(r.ToolUseID, r.Content))
			}
		}
	}
	return items
}

// buildOpenAITools converts ToolSpecs to Responses API function tools.
func buildOpenAITools(specs []tools.ToolSpec) []responses.ToolUnionParam {
	defs := make([]responses.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		tool := responses.ToolParamOfFunction(spec.Name, spec.JSONSchema(), false)
		if tool.OfFunction != nil && spec.Description != "" {
			tool.OfFunction.Description = openai.String(spec.Description)
		}
		defs = append(defs, tool)
	}
	return defs
}

// classifyOpenAIError categorizes an OpenAI API error using the HTTP status
// code when available, falling back to message-based heuristics.
func classifyOpenAIError(err error) error {
	if isContextOverflow(err) {
		return models.NewContextOverflowError(err.Error())
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return classifyByStatusCode(apiErr.StatusCode, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return classifyUntyped("OpenAI", err)
}
