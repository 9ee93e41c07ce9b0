// Package approval implements the validation gate consulted before the
// agent loop runs a consequential tool call.
package approval

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/mfateev/temporal-agent-loop/internal/models"
)

// RiskLevel grades how much damage a call could do.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Request describes a pending tool call.
type Request struct {
	CallID      string
	ToolName    string
	Input       json.RawMessage
	Description string
}

// Decision is the gate's verdict.
type Decision struct {
	Approved  bool
	Reason    string
	RiskLevel RiskLevel
}

// Gate decides whether a consequential tool call may run.
type Gate interface {
	Validate(ctx context.Context, req Request) (Decision, error)
}

// GateFunc adapts a function to Gate.
type GateFunc func(ctx context.Context, req Request) (Decision, error)

func (f GateFunc) Validate(ctx context.Context, req Request) (Decision, error) {
	return f(ctx, req)
}

// NewRequest builds a Request for a tool call, with a one-line description
// naming the command or path the call acts on.
func NewRequest(call models.ToolCall) Request {
	return Request{
		CallID:      call.ID,
		ToolName:    call.Name,
		Input:       call.Input,
		Description: Describe(call.Name, call.Input),
	}
}

// Describe renders "tool: detail" for a call, where detail is the command
// or path argument when the input has one.
func Describe(tool string, input json.RawMessage) string {
	if len(input) == 0 || !gjson.ValidBytes(input) {
		return tool
	}
	for _, field := range []string{"command", "path", "file_path", "url"} {
		if v := gjson.GetBytes(input, field); v.Exists() && v.String() != "" {
			return fmt.Sprintf("%s: %s", tool, v.String())
		}
	}
	return fmt.Sprintf("%s %s", tool, string(input))
}

// AutoApprove approves everything.
type AutoApprove struct{}

func (AutoApprove) Validate(context.Context, Request) (Decision, error) {
	return Decision{Approved: true, Reason: "auto-approved", RiskLevel: RiskLow}, nil
}

// DenyAll rejects every consequential call.
type DenyAll struct {
	Reason string
}

func (d DenyAll) Validate(context.Context, Request) (Decision, error) {
	reason := d.Reason
	if reason == "" {
		reason = "consequential tool calls are disabled"
	}
	return Decision{Approved: false, Reason: reason, RiskLevel: RiskHigh}, nil
}
