// Package execpolicy evaluates commands and tool calls against user-written
// Starlark rules. A rule's decision is allow, prompt, or forbidden; when
// several rules match, the strictest wins.
package execpolicy

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Decision is ordered: Allow < Prompt < Forbidden.
type Decision int

const (
	DecisionAllow Decision = iota
	DecisionPrompt
	DecisionForbidden
)

func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionPrompt:
		return "prompt"
	case DecisionForbidden:
		return "forbidden"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// ParseDecision accepts "allow", "prompt" or "forbidden" in any case.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(s) {
	case "allow":
		return DecisionAllow, nil
	case "prompt":
		return DecisionPrompt, nil
	case "forbidden":
		return DecisionForbidden, nil
	default:
		return DecisionAllow, fmt.Errorf("invalid decision %q: must be allow, prompt, or forbidden", s)
	}
}

// Token matches one argv position. A token with several alternatives
// matches any of them.
type Token []string

func (t Token) matches(arg string) bool {
	for _, alt := range t {
		if alt == arg {
			return true
		}
	}
	return false
}

// PrefixRule matches commands whose leading arguments match Pattern. The
// program name is compared by base name so /usr/bin/git matches "git".
type PrefixRule struct {
	Pattern       []Token
	Decision      Decision
	Justification string
}

func (r PrefixRule) Match(argv []string) bool {
	if len(argv) < len(r.Pattern) || len(r.Pattern) == 0 {
		return false
	}
	if !r.Pattern[0].matches(argv[0]) && !r.Pattern[0].matches(filepath.Base(argv[0])) {
		return false
	}
	for i := 1; i < len(r.Pattern); i++ {
		if !r.Pattern[i].matches(argv[i]) {
			return false
		}
	}
	return true
}

// ToolRule matches a non-shell tool call by name. A trailing "*" in Name
// matches any suffix, so "mcp__github__*" covers a whole MCP server.
type ToolRule struct {
	Name          string
	Decision      Decision
	Justification string
}

func (r ToolRule) Match(tool string) bool {
	if prefix, ok := strings.CutSuffix(r.Name, "*"); ok {
		return strings.HasPrefix(tool, prefix)
	}
	return r.Name == tool
}

// Evaluation is the result of checking a command or tool against a Policy.
type Evaluation struct {
	Decision      Decision
	Justification string
	// Matched is false when no rule applied; Decision is then the caller's
	// fallback.
	Matched bool
}

func (e *Evaluation) consider(d Decision, justification string) {
	if !e.Matched || d > e.Decision {
		e.Decision = d
		e.Justification = justification
	}
	e.Matched = true
}

// Policy is a set of prefix and tool rules.
type Policy struct {
	prefixRules []PrefixRule
	toolRules   []ToolRule
}

// NewPolicy creates an empty policy.
func NewPolicy() *Policy {
	return &Policy{}
}

func (p *Policy) AddPrefixRule(r PrefixRule) { p.prefixRules = append(p.prefixRules, r) }
func (p *Policy) AddToolRule(r ToolRule) { p.toolRules = append(p.toolRules, r) }

// Len returns the number of rules.
func (p *Policy) Len() int {
	return len(p.prefixRules) + len(p.toolRules)
}

// Merge appends all rules of other.
func (p *Policy) Merge(other *Policy) {
	p.prefixRules = append(p.prefixRules, other.prefixRules...)
	p.toolRules = append(p.toolRules, other.toolRules...)
}

// CheckCommand evaluates one argv.
func (p *Policy) CheckCommand(argv []string) Evaluation {
	var ev Evaluation
	for _, r := range p.prefixRules {
		if r.Match(argv) {
			ev.consider(r.Decision, r.Justification)
		}
	}
	return ev
}

// CheckCommands evaluates every command of a script. The result is
// Matched only when every command matched some rule; an unmatched command
// leaves the decision to the caller's heuristics, unless another command
// was already forbidden.
func (p *Policy) CheckCommands(cmds [][]string) Evaluation {
	var agg Evaluation
	all := len(cmds) > 0
	for _, cmd := range cmds {
		ev := p.CheckCommand(cmd)
		if !ev.Matched {
			all = false
			continue
		}
		agg.consider(ev.Decision, ev.Justification)
	}
	if agg.Decision == DecisionForbidden {
		return agg
	}
	if !all {
		return Evaluation{}
	}
	return agg
}

// CheckTool evaluates a tool call by name.
func (p *Policy) CheckTool(name string) Evaluation {
	var ev Evaluation
	for _, r := range p.toolRules {
		if r.Match(name) {
			ev.consider(r.Decision, r.Justification)
		}
	}
	return ev
}
