// Package termination decides, round by round, whether the agent loop is
// finished, stuck, or should continue.
//
// The detector is a prioritized rule table: rules are evaluated in order and
// the first rule that returns a verdict wins. The default verdict is
// "continue".
package termination

import (
	"fmt"
	"strings"
	"time"

	"github.com/mfateev/temporal-agent-loop/internal/models"
)

// Phase is the point in a round at which the detector runs.
type Phase string

const (
	// PhaseAfterAIResponse runs once the model's stream has completed.
	PhaseAfterAIResponse Phase = "after_ai_response"
	// PhaseAfterToolExecution runs once the round's tools have executed.
	PhaseAfterToolExecution Phase = "after_tool_execution"
)

// Input bundles everything a rule may inspect.
type Input struct {
	State     *models.AgentState
	ToolCalls []models.ToolCall
	Results   []models.ToolResult
	Config    models.TerminationConfig
	Phase     Phase
	ToolNames []string
	Now       time.Time
}

// Rule evaluates one termination condition. ok=false means the rule does not
// apply and evaluation moves to the next rule.
type Rule struct {
	Name  string
	Check func(in Input) (result models.TerminationResult, ok bool)
}

// TextRule maps a pattern family to the verdict returned when it matches.
type TextRule struct {
	Name     string
	Classify TextClassifier
	Verdict  models.TerminationResult
}

// DefaultTextRules is the ordered pattern cascade applied to rounds that made
// no tool calls.
func DefaultTextRules() []TextRule {
	return []TextRule{
		{
			Name:     "incomplete_intent",
			Classify: IsIncompleteIntent,
			Verdict: models.TerminationResult{
				Reason:  models.ReasonNoTools,
				Message: "model announced further work; continuing",
			},
		},
		{
			Name:     "mentioned_tool",
			Classify: MentionsTool,
			Verdict: models.TerminationResult{
				Reason:  models.ReasonMentionedTool,
				Message: "model mentioned a tool without calling it; continuing",
			},
		},
		{
			Name:     "summarizing",
			Classify: IsSummarizing,
			Verdict:  models.Stop(models.ReasonSummarizing, "model is summarizing its work"),
		},
	}
}

// DefaultRules returns the standard rule table in priority order.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "task_complete", Check: taskComplete},
		{Name: "no_tool_calls", Check: noToolCalls(DefaultTextRules())},
		{Name: "repeated_tool", Check: repeatedTool},
		{Name: "high_failure_rate", Check: highFailureRate},
		{Name: "timeout", Check: timedOut},
		{Name: "max_rounds", Check: maxRounds},
		{Name: "empty_response", Check: emptyResponse},
	}
}

// Detector evaluates a rule table. The zero value uses DefaultRules.
type Detector struct {
	Rules []Rule
}

// NewDetector returns a detector with the default rule table.
func NewDetector() *Detector {
	return &Detector{Rules: DefaultRules()}
}

// Check evaluates the rules in order; the first match wins.
func (d *Detector) Check(in Input) models.TerminationResult {
	rules := d.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	if in.State == nil {
		in.State = &models.AgentState{}
	}
	if in.Now.IsZero() {
		in.Now = time.Now()
	}
	for _, r := range rules {
		if res, ok := r.Check(in); ok {
			return res
		}
	}
	return models.Continue()
}

// Check evaluates the default rule table.
func Check(in Input) models.TerminationResult {
	return (&Detector{}).Check(in)
}

func taskComplete(in Input) (models.TerminationResult, bool) {
	for _, r := range in.Results {
		if r.TaskComplete {
			msg := r.Content
			if msg == "" {
				msg = "task marked complete"
			}
			return models.Stop(models.ReasonTaskComplete, msg), true
		}
	}
	return models.TerminationResult{}, false
}

func noToolCalls(textRules []TextRule) func(Input) (models.TerminationResult, bool) {
	return func(in Input) (models.TerminationResult, bool) {
		if in.Phase != PhaseAfterAIResponse || len(in.ToolCalls) > 0 {
			return models.TerminationResult{}, false
		}
		text := normalize(in.State.LastModelText)
		if text == "" {
			// Nothing to classify; the safety rules get the first say and
			// emptyResponse stops the run after them.
			return models.TerminationResult{}, false
		}
		for _, tr := range textRules {
			if tr.Classify(text, in.ToolNames) {
				return tr.Verdict, true
			}
		}
		return models.Stop(models.ReasonNoTools, "model responded without calling tools"), true
	}
}

// emptyResponse stops a round that produced neither text nor tool calls.
func emptyResponse(in Input) (models.TerminationResult, bool) {
	if in.Phase != PhaseAfterAIResponse || len(in.ToolCalls) > 0 || normalize(in.State.LastModelText) != "" {
		return models.TerminationResult{}, false
	}
	return models.Stop(models.ReasonNoTools, "model responded with neither text nor tool calls"), true
}

func repeatedTool(in Input) (models.TerminationResult, bool) {
	threshold := in.Config.RepeatThreshold
	if threshold <= 0 || len(in.ToolCalls) == 0 {
		return models.TerminationResult{}, false
	}
	window := in.State.RecordsBefore(in.State.CurrentRound, threshold*2)
	for _, call := range in.ToolCalls {
		hash := HashInput(call.Input)
		count := 0
		for _, rec := range window {
			if rec.Name == call.Name && rec.InputHash == hash {
				count++
			}
		}
		if count >= threshold-1 {
			return models.Stop(models.ReasonRepeatedTool,
				fmt.Sprintf("tool %q called with identical input %d times", call.Name, count+1)), true
		}
	}
	return models.TerminationResult{}, false
}

func highFailureRate(in Input) (models.TerminationResult, bool) {
	threshold := in.Config.FailureThreshold
	if threshold <= 0 {
		return models.TerminationResult{}, false
	}
	failures := 0
	for _, rec := range in.State.RecentRecords(threshold * 2) {
		if !rec.Success {
			failures++
		}
	}
	if failures >= threshold {
		return models.Stop(models.ReasonHighFailureRate,
			fmt.Sprintf("%d of the last %d tool calls failed", failures, threshold*2)), true
	}
	return models.TerminationResult{}, false
}

func timedOut(in Input) (models.TerminationResult, bool) {
	if in.Config.Timeout <= 0 || in.State.StartTime.IsZero() {
		return models.TerminationResult{}, false
	}
	if elapsed := in.Now.Sub(in.State.StartTime); elapsed > in.Config.Timeout {
		return models.Stop(models.ReasonTimeout,
			fmt.Sprintf("loop exceeded %s (elapsed %s)", in.Config.Timeout, elapsed.Round(time.Millisecond))), true
	}
	return models.TerminationResult{}, false
}

func maxRounds(in Input) (models.TerminationResult, bool) {
	if in.Config.MaxRounds > 0 && in.State.CurrentRound >= in.Config.MaxRounds {
		return models.Stop(models.ReasonMaxRounds,
			fmt.Sprintf("reached the maximum of %d rounds", in.Config.MaxRounds)), true
	}
	return models.TerminationResult{}, false
}

func normalize(text string) string {
	text = strings.ReplaceAll(text, "’", "'")
	return strings.TrimSpace(text)
}
