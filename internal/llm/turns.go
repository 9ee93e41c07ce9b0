package llm

import (
	"encoding/json"

	"github.com/mfateev/temporal-agent-loop/internal/models"
)

// systemNotePrefix marks system messages (summaries, truncation markers,
// corrective notes) that appear inside the history. Providers only accept a
// single leading system prompt, so these are delivered as user text.
const systemNotePrefix = "[system note] "

// continuationText opens a conversation whose effective history begins with
// an assistant turn, which some providers reject.
const continuationText = "(continuing the conversation)"

type turnRole int

const (
	turnUser turnRole = iota
	turnAssistant
)

// turn is a provider-neutral conversation turn. Adjacent messages from the
// same side are merged so that user/assistant turns strictly alternate.
type turn struct {
	role    turnRole
	results []models.ToolResult
	texts   []string
	calls   []models.ToolCall
}

// buildTurns converts history into alternating turns. Empty messages are
// dropped. Within a user turn, tool results precede text.
func buildTurns(messages []models.Message) []turn {
	var out []turn
	push := func(role turnRole) *turn {
		if n := len(out); n > 0 && out[n-1].role == role {
			return &out[n-1]
		}
		out = append(out, turn{role: role})
		return &out[len(out)-1]
	}

	for _, m := range messages {
		switch m.Role {
		case models.RoleAssistant:
			if m.Content == "" && len(m.ToolCalls) == 0 {
				continue
			}
			t := push(turnAssistant)
			if m.Content != "" {
				t.texts = append(t.texts, m.Content)
			}
			t.calls = append(t.calls, m.ToolCalls...)
		case models.RoleTool:
			if len(m.ToolResults) == 0 {
				continue
			}
			t := push(turnUser)
			t.results = append(t.results, m.ToolResults...)
		case models.RoleSystem:
			if m.Content == "" {
				continue
			}
			t := push(turnUser)
			t.texts = append(t.texts, systemNotePrefix+m.Content)
		default:
			if m.Content == "" {
				continue
			}
			t := push(turnUser)
			t.texts = append(t.texts, m.Content)
		}
	}

	if len(out) > 0 && out[0].role == turnAssistant {
		out = append([]turn{{role: turnUser, texts: []string{continuationText}}}, out...)
	}
	return out
}

// callArguments decodes a tool call input for providers that take a map.
// Malformed input becomes an empty object.
func callArguments(c models.ToolCall) map[string]interface{} {
	args, err := c.Arguments()
	if err != nil {
		return map[string]interface{}{}
	}
	return args
}

// rawInput normalizes provider-supplied argument JSON. Empty or invalid
// arguments become "{}".
func rawInput(raw string) json.RawMessage {
	if raw == "" || !json.Valid([]byte(raw)) {
		return json.RawMessage("{}")
	}
	return json.RawMessage(raw)
}

// jsonObject encodes decoded provider arguments back to JSON. A nil map
// encodes as "{}".
func jsonObject(args map[string]interface{}) (json.RawMessage, error) {
	if args == nil {
		return json.RawMessage("{}"), nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
