package models

// TerminationReason classifies why the loop ended or continued.
type TerminationReason string

const (
	ReasonTaskComplete    TerminationReason = "task_complete"
	ReasonNoTools         TerminationReason = "no_tools"
	ReasonMentionedTool   TerminationReason = "mentioned_tool"
	ReasonSummarizing     TerminationReason = "summarizing"
	ReasonRepeatedTool    TerminationReason = "repeated_tool"
	ReasonHighFailureRate TerminationReason = "high_failure_rate"
	ReasonTimeout         TerminationReason = "timeout"
	ReasonMaxRounds       TerminationReason = "max_rounds"
	ReasonUserCancel      TerminationReason = "user_cancel"
)

// TerminationResult is the verdict of the termination detector. Reason may be
// set even when ShouldTerminate is false (e.g. an incomplete-intent hint).
type TerminationResult struct {
	ShouldTerminate bool              `json:"should_terminate"`
	Reason          TerminationReason `json:"reason,omitempty"`
	Message         string            `json:"message,omitempty"`
}

// Continue is the default "keep going" verdict.
func Continue() TerminationResult {
	return TerminationResult{}
}

// Stop builds a terminating verdict.
func Stop(reason TerminationReason, message string) TerminationResult {
	return TerminationResult{ShouldTerminate: true, Reason: reason, Message: message}
}
