package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/mfateev/temporal-agent-loop/internal/models"
	"github.com/mfateev/temporal-agent-loop/internal/tools"
)

// GeminiClient implements Client using the Google Gemini API. The underlying
// client is created on first use because construction needs a context.
type GeminiClient struct {
	opts []option.ClientOption

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiClient creates a Gemini client. The API key is read from
// GEMINI_API_KEY (falling back to GOOGLE_API_KEY).
func NewGeminiClient(opts ...option.ClientOption) *GeminiClient {
	return &GeminiClient{opts: append([]option.ClientOption{option.WithAPIKey(geminiAPIKey())}, opts...)}
}

func (c *GeminiClient) genaiClient(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	client, err := genai.NewClient(ctx, c.opts...)
	if err != nil {
		return nil, models.NewFatalError(fmt.Sprintf("failed to create gemini client: %v", err))
	}
	c.client = client
	return client, nil
}

// Close releases the underlying client, if one was created.
func (c *GeminiClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// Stream runs one streamed round. Gemini delivers function calls whole, so
// each one produces a start and an end event back to back. Calls carry no
// ids on the wire; one is generated per call.
func (c *GeminiClient) Stream(ctx context.Context, req Request, onEvent func(StreamEvent)) (Response, error) {
	cs, last, err := c.startChat(ctx, req)
	if err != nil {
		return Response{}, err
	}

	var resp Response
	var text strings.Builder
	iter := cs.SendMessageStream(ctx, last...)
	for {
		chunk, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return Response{}, classifyGeminiError(err)
		}
		for _, cand := range chunk.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				switch p := part.(type) {
				case genai.Text:
					if p == "" {
						continue
					}
					text.WriteString(string(p))
					onEvent(StreamEvent{Type: EventTextDelta, Text: string(p)})
				case genai.FunctionCall:
					call := geminiToolCall(p)
					onEvent(StreamEvent{Type: EventToolUseStart, Call: models.ToolCall{ID: call.ID, Name: call.Name}})
					resp.ToolCalls = append(resp.ToolCalls, call)
					onEvent(StreamEvent{Type: EventToolUseEnd, Call: call})
				}
			}
			if cand.FinishReason != genai.FinishReasonUnspecified {
				resp.StopReason = cand.FinishReason.String()
			}
		}
		if chunk.UsageMetadata != nil {
			resp.Usage = geminiUsage(chunk.UsageMetadata)
		}
	}
	resp.Text = text.String()
	return resp, nil
}

// Complete sends a single non-streaming request.
func (c *GeminiClient) Complete(ctx context.Context, req Request) (Response, error) {
	cs, last, err := c.startChat(ctx, req)
	if err != nil {
		return Response{}, err
	}
	out, err := cs.SendMessage(ctx, last...)
	if err != nil {
		return Response{}, classifyGeminiError(err)
	}

	var resp Response
	var text strings.Builder
	for _, cand := range out.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				text.WriteString(string(p))
			case genai.FunctionCall:
				resp.ToolCalls = append(resp.ToolCalls, geminiToolCall(p))
			}
		}
	}
	resp.Text = text.String()
	if out.UsageMetadata != nil {
		resp.Usage = geminiUsage(out.UsageMetadata)
	}
	return resp, nil
}

// startChat configures a model for the request and returns a chat session
// holding all but the last turn, plus the parts of the last turn.
func (c *GeminiClient) startChat(ctx context.Context, req Request) (*genai.ChatSession, []genai.Part, error) {
	client, err := c.genaiClient(ctx)
	if err != nil {
		return nil, nil, err
	}
	contents := buildGeminiContents(req.Messages)
	if len(contents) == 0 {
		return nil, nil, models.NewFatalError("gemini: request has no messages")
	}

	name := req.Model.Model
	if name == "" {
		name = "gemini-2.5-pro"
	}
	gm := client.GenerativeModel(name)
	gm.SetMaxOutputTokens(int32(maxTokens(req.Model)))
	if req.Model.Temperature > 0 {
		gm.SetTemperature(float32(req.Model.Temperature))
	}
	if req.System != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if len(req.Tools) > 0 {
		gm.Tools = []*genai.Tool{{FunctionDeclarations: buildGeminiFunctions(req.Tools)}}
	}

	cs := gm.StartChat()
	cs.History = contents[:len(contents)-1]
	return cs, contents[len(contents)-1].Parts, nil
}

func geminiToolCall(fc genai.FunctionCall) models.ToolCall {
	input, err := jsonObject(fc.Args)
	if err != nil {
		input = rawInput("")
	}
	return models.ToolCall{ID: "call_" + uuid.NewString(), Name: fc.Name, Input: input}
}

func geminiUsage(u *genai.UsageMetadata) models.TokenUsage {
	return models.TokenUsage{
		Input:     int(u.PromptTokenCount),
		Output:    int(u.CandidatesTokenCount),
		CacheRead: int(u.CachedContentTokenCount),
	}
}

// buildGeminiContents converts history to Gemini contents. Assistant turns
// use the "model" role; tool results are function responses on a user turn.
func buildGeminiContents(history []models.Message) []*genai.Content {
	turns := buildTurns(history)
	out := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		var parts []genai.Part
		for _, r := range t.results {
			parts = append(parts, genai.FunctionResponse{
				Name: r.Name,
				Response: map[string]any{
					"content":  r.Content,
					"is_error": r.IsError,
				},
			})
		}
		for _, text := range t.texts {
			parts = append(parts, genai.Text(text))
		}
		for _, call := range t.calls {
			parts = append(parts, genai.FunctionCall{Name: call.Name, Args: callArguments(call)})
		}
		role := "user"
		if t.role == turnAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}
	return out
}

func buildGeminiFunctions(specs []tools.ToolSpec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  geminiSchema(spec.JSONSchema()),
		})
	}
	return decls
}

// geminiSchema converts a JSON schema object to genai.Schema. Keywords that
// Gemini does not support are dropped.
func geminiSchema(s map[string]interface{}) *genai.Schema {
	out := &genai.Schema{}
	if t, ok := s["type"].(string); ok {
		out.Type = geminiType(t)
	}
	if d, ok := s["description"].(string); ok {
		out.Description = d
	}
	if enum, ok := s["enum"].([]interface{}); ok {
		for _, v := range enum {
			if str, ok := v.(string); ok {
				out.Enum = append(out.Enum, str)
			}
		}
	}
	if items, ok := s["items"].(map[string]interface{}); ok {
		out.Items = geminiSchema(items)
	}
	if props, ok := s["properties"].(map[string]interface{}); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]interface{}); ok {
				out.Properties[name] = geminiSchema(pm)
			}
		}
	}
	switch req := s["required"].(type) {
	case []string:
		out.Required = append(out.Required, req...)
	case []interface{}:
		for _, v := range req {
			if str, ok := v.(string); ok {
				out.Required = append(out.Required, str)
			}
		}
	}
	return out
}

func geminiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

// classifyGeminiError uses the HTTP status carried by API errors, falling
// back to message heuristics.
func classifyGeminiError(err error) error {
	if isContextOverflow(err) {
		return models.NewContextOverflowError(err.Error())
	}
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPCode() > 0 {
		return classifyByStatusCode(apiErr.HTTPCode(), err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return classifyUntyped("Gemini", err)
}
