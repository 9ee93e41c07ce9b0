package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"

	"github.com/mfateev/temporal-agent-loop/internal/cli"
	"github.com/mfateev/temporal-agent-loop/internal/config"
	"github.com/mfateev/temporal-agent-loop/internal/temporalclient"
	"github.com/mfateev/temporal-agent-loop/internal/workflow"
)

const (
	updateTimeout = 30 * time.Second
	pollInterval  = 500 * time.Millisecond
)

var (
	temporalHost      string
	temporalNamespace string

	sessionID      string
	sessionModel   string
	sessionNoWait  bool
	sessionNoColor bool
	sessionIdle    time.Duration
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Drive durable sessions on a Temporal worker",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start [prompt]",
	Short: "Start a durable session, optionally with a first prompt",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSessionStart,
}

var sessionSendCmd = &cobra.Command{
	Use:   "send <session> <prompt>",
	Short: "Queue a prompt on a running session and wait for its turn",
	Args:  cobra.ExactArgs(2),
	RunE:  runSessionSend,
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status <session>",
	Short: "Show the phase and last turn of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionStatus,
}

var sessionModelCmd = &cobra.Command{
	Use:   "model <session> <model>",
	Short: "Switch the model a session uses from its next turn on",
	Args:  cobra.ExactArgs(2),
	RunE:  runSessionModel,
}

var sessionStopCmd = &cobra.Command{
	Use:   "stop <session>",
	Short: "End a session once its queued turns have run",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionStop,
}

func init() {
	sessionCmd.PersistentFlags().StringVar(&temporalHost, "temporal-host", "", "Temporal server address (default from TEMPORAL_ADDRESS or the profile)")
	sessionCmd.PersistentFlags().StringVar(&temporalNamespace, "namespace", "", "Temporal namespace")
	sessionCmd.PersistentFlags().BoolVar(&sessionNoColor, "no-color", false, "Disable colored output")

	sessionStartCmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session ID (default: generated)")
	sessionStartCmd.Flags().StringVarP(&sessionModel, "model", "m", "", "Model name")
	sessionStartCmd.Flags().DurationVar(&sessionIdle, "idle-timeout", workflow.DefaultIdleTimeout, "End the session after this long without input")
	for _, c := range []*cobra.Command{sessionStartCmd, sessionSendCmd} {
		c.Flags().BoolVar(&sessionNoWait, "no-wait", false, "Return once the prompt is queued")
	}

	sessionCmd.AddCommand(sessionStartCmd, sessionSendCmd, sessionStatusCmd, sessionModelCmd, sessionStopCmd)
}

func dialTemporal(cfg *config.File) (client.Client, error) {
	return temporalclient.Dial(temporalclient.Overrides{
		HostPort:  temporalHost,
		Namespace: temporalNamespace,
		Logger:    newLogger(cfg, true),
	})
}

func runSessionStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyModelFlags(cfg, "", sessionModel); err != nil {
		return err
	}
	c, err := dialTemporal(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	id := sessionID
	if id == "" {
		id = uuid.NewString()
	}
	in := workflow.SessionInput{
		SessionID:    id,
		Model:        cfg.ModelConfig(),
		Loop:         cfg.LoopConfig(),
		Context:      cfg.Context,
		SystemPrompt: cfg.SystemPrompt,
		IdleTimeout:  sessionIdle,
	}
	if len(args) == 1 {
		in.InitialPrompt = args[0]
	}

	run, err := c.ExecuteWorkflow(cmd.Context(), client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: cfg.TaskQueue,
	}, workflow.AgentSessionWorkflow, in)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	fmt.Fprintf(os.Stderr, "session %s started (run %s)\n", id, run.GetRunID())
	fmt.Println(id)

	if in.InitialPrompt == "" || sessionNoWait {
		return nil
	}
	return waitForTurn(cmd.Context(), c, id, 1)
}

func runSessionSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := dialTemporal(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	var accepted workflow.UserInputAccepted
	if err := update(cmd.Context(), c, args[0], workflow.UpdateUserInput, workflow.UserInput{Content: args[1]}, &accepted); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "queued as turn %d\n", accepted.Turn)
	if sessionNoWait {
		return nil
	}
	return waitForTurn(cmd.Context(), c, args[0], accepted.Turn)
}

func runSessionStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := dialTemporal(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	st, err := cli.NewPoller(c, args[0], pollInterval).Poll(cmd.Context())
	if err != nil {
		return fmt.Errorf("query session %s: %w", args[0], err)
	}
	r := newRenderer(sessionNoColor, false)
	fmt.Print(r.RenderStatus(st))
	if st.LastTurn != nil {
		fmt.Print(r.RenderTurn(*st.LastTurn))
	}
	return nil
}

func runSessionModel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	provider := cli.DetectProvider(args[1])
	if provider == "" {
		return fmt.Errorf("cannot tell the provider of model %q", args[1])
	}
	c, err := dialTemporal(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	var resp workflow.UpdateModelResponse
	req := workflow.UpdateModelRequest{Provider: provider, Model: args[1]}
	if err := update(cmd.Context(), c, args[0], workflow.UpdateModel, req, &resp); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "model %s/%s → %s/%s\n", resp.Previous.Provider, resp.Previous.Model, provider, args[1])
	return nil
}

func runSessionStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := dialTemporal(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	var resp workflow.ShutdownResponse
	if err := update(cmd.Context(), c, args[0], workflow.UpdateShutdown, workflow.ShutdownRequest{}, &resp); err != nil {
		return err
	}
	if resp.Pending > 0 {
		fmt.Fprintf(os.Stderr, "session %s stops after %d queued turns\n", args[0], resp.Pending)
	} else {
		fmt.Fprintf(os.Stderr, "session %s stopping\n", args[0])
	}
	return nil
}

// update sends a workflow update and waits for its result.
func update(ctx context.Context, c client.Client, id, name string, arg, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, updateTimeout)
	defer cancel()

	handle, err := c.UpdateWorkflow(ctx, client.UpdateWorkflowOptions{
		WorkflowID:   id,
		UpdateName:   name,
		Args:         []interface{}{arg},
		WaitForStage: client.WorkflowUpdateStageCompleted,
	})
	if err != nil {
		return fmt.Errorf("%s on session %s: %w", name, id, err)
	}
	if err := handle.Get(ctx, out); err != nil {
		return fmt.Errorf("%s on session %s: %w", name, id, err)
	}
	return nil
}

// waitForTurn follows the session with a spinner until turn has finished,
// then prints it.
func waitForTurn(ctx context.Context, c client.Client, id string, turn int) error {
	r := newRenderer(sessionNoColor, false)
	var sp *cli.Spinner
	if cli.IsTerminal(os.Stderr) {
		sp = cli.NewSpinner(os.Stderr, r.Styles())
		defer sp.Stop()
	}

	res, err := cli.NewPoller(c, id, pollInterval).WaitForTurn(ctx, turn, func(st workflow.SessionStatus) {
		if sp != nil {
			sp.Start(cli.SessionPhaseMessage(st.Phase))
		}
	})
	if sp != nil {
		sp.Stop()
	}
	if errors.Is(err, cli.ErrSessionEnded) {
		return fmt.Errorf("session %s ended before turn %d finished", id, turn)
	}
	if err != nil {
		return err
	}
	fmt.Print(r.RenderTurn(*res))
	return nil
}
