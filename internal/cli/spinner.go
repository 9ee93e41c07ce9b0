package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mfateev/temporal-agent-loop/internal/agent"
	"github.com/mfateev/temporal-agent-loop/internal/workflow"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerInterval = 80 * time.Millisecond

// Spinner animates a single status line while the agent works.
type Spinner struct {
	out    io.Writer
	styles Styles

	mu      sync.Mutex
	message string
	active  bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	frame   int
}

// NewSpinner creates a spinner writing to out.
func NewSpinner(out io.Writer, styles Styles) *Spinner {
	return &Spinner{out: out, styles: styles}
}

// Start shows the spinner, or only changes the message when it is already
// running.
func (sp *Spinner) Start(message string) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.message = message
	if sp.active {
		return
	}
	sp.active = true
	sp.stopCh = make(chan struct{})
	sp.doneCh = make(chan struct{})
	go sp.run(sp.stopCh, sp.doneCh)
}

// SetMessage changes the message without restarting the animation.
func (sp *Spinner) SetMessage(message string) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.message = message
}

// Stop hides the spinner and clears its line. Safe to call when stopped.
func (sp *Spinner) Stop() {
	sp.mu.Lock()
	if !sp.active {
		sp.mu.Unlock()
		return
	}
	sp.active = false
	close(sp.stopCh)
	done := sp.doneCh
	sp.mu.Unlock()

	<-done
	fmt.Fprint(sp.out, "\r\033[K")
}

// Active reports whether the spinner is showing.
func (sp *Spinner) Active() bool {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.active
}

func (sp *Spinner) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			sp.mu.Lock()
			msg := sp.styles.SpinnerMessage.Render(sp.message)
			frame := spinnerFrames[sp.frame%len(spinnerFrames)]
			sp.frame++
			sp.mu.Unlock()

			fmt.Fprintf(sp.out, "\r\033[K%s %s", frame, msg)
		}
	}
}

// PhaseMessage returns the spinner text to show after ev, or "" when the
// run is over.
func PhaseMessage(ev agent.Event) string {
	switch ev.Type {
	case agent.EventRoundStart, agent.EventTextDelta, agent.EventRoundEnd:
		return "Thinking..."
	case agent.EventToolUseStart, agent.EventToolUseEnd:
		return "Preparing tool call..."
	case agent.EventToolExecuting:
		if ev.Call != nil {
			return fmt.Sprintf("Running %s...", ev.Call.Name)
		}
		return "Running tool..."
	case agent.EventToolExecuted, agent.EventToolError:
		return "Thinking..."
	case agent.EventAgentComplete, agent.EventError:
		return ""
	default:
		return "Working..."
	}
}

// SessionPhaseMessage returns the spinner text for a durable session phase.
func SessionPhaseMessage(phase workflow.TurnPhase) string {
	switch phase {
	case workflow.PhaseLoadingHistory:
		return "Loading history..."
	case workflow.PhaseManagingContext:
		return "Managing context..."
	case workflow.PhaseRunningLoop:
		return "Running agent loop..."
	case workflow.PhaseSavingHistory:
		return "Saving history..."
	case workflow.PhaseWaitingForInput:
		return "Waiting for the session..."
	default:
		return "Working..."
	}
}
