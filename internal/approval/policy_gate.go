package approval

import (
	"context"

	"github.com/tidwall/gjson"
	"go.temporal.io/sdk/log"

	"github.com/mfateev/temporal-agent-loop/internal/command_safety"
	"github.com/mfateev/temporal-agent-loop/internal/execpolicy"
	"github.com/mfateev/temporal-agent-loop/internal/logging"
)

// Asker asks a human whether a call may run.
type Asker interface {
	Ask(ctx context.Context, req Request, risk RiskLevel, reason string) (bool, error)
}

// AskerFunc adapts a function to Asker.
type AskerFunc func(ctx context.Context, req Request, risk RiskLevel, reason string) (bool, error)

func (f AskerFunc) Ask(ctx context.Context, req Request, risk RiskLevel, reason string) (bool, error) {
	return f(ctx, req, risk, reason)
}

// FixedAnswer is an Asker for non-interactive runs.
type FixedAnswer bool

func (a FixedAnswer) Ask(context.Context, Request, RiskLevel, string) (bool, error) {
	return bool(a), nil
}

// PolicyGate consults the exec policy first, then the built-in command
// heuristics. Anything neither settles goes to the Asker.
type PolicyGate struct {
	policy *execpolicy.Policy
	asker  Asker
	logger log.Logger
}

// NewPolicyGate creates a gate. A nil policy is treated as empty; a nil
// asker rejects whatever would have been asked.
func NewPolicyGate(policy *execpolicy.Policy, asker Asker, logger log.Logger) *PolicyGate {
	if policy == nil {
		policy = execpolicy.NewPolicy()
	}
	return &PolicyGate{policy: policy, asker: asker, logger: logging.OrNop(logger)}
}

func (g *PolicyGate) Validate(ctx context.Context, req Request) (Decision, error) {
	var (
		ev        execpolicy.Evaluation
		heuristic = command_safety.VerdictUnknown
	)
	if req.ToolName == "shell" {
		script := gjson.GetBytes(req.Input, "command").String()
		cmds, exact := command_safety.Commands(script)
		ev = g.policy.CheckCommands(cmds)
		if !exact && ev.Decision != execpolicy.DecisionForbidden {
			// rules only vouch for scripts we could fully parse
			ev = execpolicy.Evaluation{}
		}
		heuristic = command_safety.Classify(script)
	} else {
		ev = g.policy.CheckTool(req.ToolName)
	}

	if ev.Matched {
		switch ev.Decision {
		case execpolicy.DecisionForbidden:
			return g.reject(req, reasonOr(ev.Justification, "forbidden by exec policy"), RiskHigh), nil
		case execpolicy.DecisionAllow:
			return Decision{Approved: true, Reason: reasonOr(ev.Justification, "allowed by exec policy"), RiskLevel: RiskLow}, nil
		default:
			return g.ask(ctx, req, RiskMedium, reasonOr(ev.Justification, "exec policy requires approval"))
		}
	}

	switch heuristic {
	case command_safety.VerdictSafe:
		return Decision{Approved: true, Reason: "known read-only command", RiskLevel: RiskLow}, nil
	case command_safety.VerdictDangerous:
		return g.ask(ctx, req, RiskHigh, "command looks destructive")
	default:
		return g.ask(ctx, req, RiskMedium, "command has side effects")
	}
}

func (g *PolicyGate) ask(ctx context.Context, req Request, risk RiskLevel, reason string) (Decision, error) {
	if g.asker == nil {
		return g.reject(req, reason+"; no approver available", risk), nil
	}
	ok, err := g.asker.Ask(ctx, req, risk, reason)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return g.reject(req, "rejected by user", risk), nil
	}
	return Decision{Approved: true, Reason: "approved by user", RiskLevel: risk}, nil
}

func (g *PolicyGate) reject(req Request, reason string, risk RiskLevel) Decision {
	g.logger.Info("Tool call rejected", "tool", req.ToolName, "reason", reason, "risk", risk)
	return Decision{Approved: false, Reason: reason, RiskLevel: risk}
}

func reasonOr(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
