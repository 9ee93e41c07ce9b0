package approval

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfateev/temporal-agent-loop/internal/execpolicy"
	"github.com/mfateev/temporal-agent-loop/internal/models"
)

func shellRequest(command string) Request {
	input, _ := json.Marshal(map[string]string{"command": command})
	return NewRequest(models.ToolCall{ID: "c1", Name: "shell", Input: input})
}

// recordingAsker answers with a fixed value and remembers what it was asked.
type recordingAsker struct {
	answer bool
	asked  []RiskLevel
}

func (a *recordingAsker) Ask(_ context.Context, _ Request, risk RiskLevel, _ string) (bool, error) {
	a.asked = append(a.asked, risk)
	return a.answer, nil
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "shell: ls -la", Describe("shell", json.RawMessage(`{"command":"ls -la"}`)))
	assert.Equal(t, "read_file: /etc/hosts", Describe("read_file", json.RawMessage(`{"path":"/etc/hosts"}`)))
	assert.Equal(t, `custom {"x":1}`, Describe("custom", json.RawMessage(`{"x":1}`)))
	assert.Equal(t, "custom", Describe("custom", json.RawMessage(`{bad`)))
	assert.Equal(t, "custom", Describe("custom", nil))
}

func TestAutoApproveAndDenyAll(t *testing.T) {
	d, err := AutoApprove{}.Validate(context.Background(), shellRequest("rm -rf /"))
	require.NoError(t, err)
	assert.True(t, d.Approved)

	d, err = DenyAll{}.Validate(context.Background(), shellRequest("ls"))
	require.NoError(t, err)
	assert.False(t, d.Approved)
	assert.NotEmpty(t, d.Reason)
}

func TestPolicyGate_Heuristics(t *testing.T) {
	asker := &recordingAsker{answer: true}
	gate := NewPolicyGate(nil, asker, nil)

	d, err := gate.Validate(context.Background(), shellRequest("git status"))
	require.NoError(t, err)
	assert.True(t, d.Approved)
	assert.Equal(t, RiskLow, d.RiskLevel)
	assert.Empty(t, asker.asked)

	d, err = gate.Validate(context.Background(), shellRequest("git push --force"))
	require.NoError(t, err)
	assert.True(t, d.Approved)
	assert.Equal(t, RiskHigh, d.RiskLevel)

	d, err = gate.Validate(context.Background(), shellRequest("make build"))
	require.NoError(t, err)
	assert.Equal(t, RiskMedium, d.RiskLevel)
	assert.Equal(t, []RiskLevel{RiskHigh, RiskMedium}, asker.asked)
}

func TestPolicyGate_UserRejects(t *testing.T) {
	gate := NewPolicyGate(nil, FixedAnswer(false), nil)
	d, err := gate.Validate(context.Background(), shellRequest("touch x"))
	require.NoError(t, err)
	assert.False(t, d.Approved)
	assert.Equal(t, "rejected by user", d.Reason)
}

func TestPolicyGate_NoAsker(t *testing.T) {
	gate := NewPolicyGate(nil, nil, nil)
	d, err := gate.Validate(context.Background(), shellRequest("touch x"))
	require.NoError(t, err)
	assert.False(t, d.Approved)
	assert.Contains(t, d.Reason, "no approver")
}

func TestPolicyGate_PolicyRules(t *testing.T) {
	policy, err := execpolicy.Parse("test.rules", `
prefix_rule(["make"], decision = "allow", justification = "builds are fine")
prefix_rule(["git", "status"], decision = "forbidden", justification = "no git here")
prefix_rule(["curl"], decision = "prompt")
tool_rule("mcp__db__*", decision = "forbidden")
`)
	require.NoError(t, err)
	asker := &recordingAsker{answer: true}
	gate := NewPolicyGate(policy, asker, nil)

	d, err := gate.Validate(context.Background(), shellRequest("make build"))
	require.NoError(t, err)
	assert.True(t, d.Approved)
	assert.Equal(t, "builds are fine", d.Reason)

	// policy beats the read-only heuristic
	d, err = gate.Validate(context.Background(), shellRequest("git status"))
	require.NoError(t, err)
	assert.False(t, d.Approved)
	assert.Equal(t, "no git here", d.Reason)

	// forbidden still applies to scripts the tokenizer rejects
	d, err = gate.Validate(context.Background(), shellRequest("git status > $OUT"))
	require.NoError(t, err)
	assert.False(t, d.Approved)

	d, err = gate.Validate(context.Background(), shellRequest("curl example.com"))
	require.NoError(t, err)
	assert.True(t, d.Approved)
	assert.Equal(t, []RiskLevel{RiskMedium}, asker.asked)

	d, err = gate.Validate(context.Background(), NewRequest(models.ToolCall{Name: "mcp__db__drop", Input: json.RawMessage(`{}`)}))
	require.NoError(t, err)
	assert.False(t, d.Approved)
}

func TestPolicyGate_AskerError(t *testing.T) {
	gate := NewPolicyGate(nil, AskerFunc(func(context.Context, Request, RiskLevel, string) (bool, error) {
		return false, errors.New("tty closed")
	}), nil)
	_, err := gate.Validate(context.Background(), shellRequest("touch x"))
	assert.EqualError(t, err, "tty closed")
}

func TestGateFunc(t *testing.T) {
	var g Gate = GateFunc(func(_ context.Context, req Request) (Decision, error) {
		return Decision{Approved: req.ToolName == "ok"}, nil
	})
	d, _ := g.Validate(context.Background(), Request{ToolName: "ok"})
	assert.True(t, d.Approved)
}
