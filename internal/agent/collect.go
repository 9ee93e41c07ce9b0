package agent

import (
	"strings"

	"github.com/mfateev/temporal-agent-loop/internal/models"
)

// RunSummary aggregates an event stream.
type RunSummary struct {
	// Text is the text of the last round that produced any.
	Text        string
	Rounds      int
	Completed   bool
	Reason      models.TerminationReason
	Message     string
	Err         error
	ToolResults []models.ToolResult
	Events      int
}

// Collect drains events until the channel is closed.
func Collect(events <-chan Event) RunSummary {
	return CollectWith(events, nil)
}

// CollectWith drains events, passing each one to onEvent (if non-nil)
// before folding it into the summary.
func CollectWith(events <-chan Event, onEvent func(Event)) RunSummary {
	var s RunSummary
	var round strings.Builder
	for ev := range events {
		if onEvent != nil {
			onEvent(ev)
		}
		s.Events++
		switch ev.Type {
		case EventRoundStart:
			round.Reset()
			s.Rounds = ev.Round
		case EventTextDelta:
			round.WriteString(ev.Text)
		case EventRoundEnd:
			if round.Len() > 0 {
				s.Text = round.String()
			}
		case EventToolExecuted, EventToolError:
			if ev.Result != nil {
				s.ToolResults = append(s.ToolResults, *ev.Result)
			}
		case EventAgentComplete:
			s.Completed = true
			s.Reason = ev.Reason
			s.Message = ev.Message
			s.Rounds = ev.RoundCount
		case EventError:
			s.Err = ev.Err
		}
	}
	return s
}
