package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mfateev/temporal-agent-loop/internal/agent"
	"github.com/mfateev/temporal-agent-loop/internal/approval"
	"github.com/mfateev/temporal-agent-loop/internal/cli"
	"github.com/mfateev/temporal-agent-loop/internal/config"
	"github.com/mfateev/temporal-agent-loop/internal/container"
	"github.com/mfateev/temporal-agent-loop/internal/session"
)

var (
	runSession    string
	runModel      string
	runProvider   string
	runApproval   string
	runNoColor    bool
	runNoMarkdown bool
)

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Run turns in-process against a session",
	Long: `Run one turn with the given prompt, or read prompts from the terminal
until "exit" when none is given.

Interrupt once to stop after the current step; interrupt again to abort.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runSession, "session", "s", "", "Session ID (default: a new session)")
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "Model name")
	runCmd.Flags().StringVar(&runProvider, "provider", "", "Model provider (anthropic, openai, gemini)")
	runCmd.Flags().StringVar(&runApproval, "approval", "", "Approval mode for consequential calls (auto, prompt, deny)")
	runCmd.Flags().BoolVar(&runNoColor, "no-color", false, "Disable colored output")
	runCmd.Flags().BoolVar(&runNoMarkdown, "no-markdown", false, "Print model text without markdown rendering")
}

var exitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runApproval != "" {
		cfg.Approval = runApproval
	}
	if err := applyModelFlags(cfg, runProvider, runModel); err != nil {
		return err
	}

	interactive := cli.IsTerminal(os.Stdin)
	renderer := newRenderer(runNoColor, runNoMarkdown)
	var spinner *cli.Spinner
	if cli.IsTerminal(os.Stderr) {
		spinner = cli.NewSpinner(os.Stderr, renderer.Styles())
		renderer.WithSpinner(spinner)
	}

	var asker approval.Asker
	if interactive && cfg.Approval == config.ApprovalPrompt {
		prompt := cli.NewApprovalPrompt(os.Stdin, os.Stdout, renderer.Styles())
		if spinner != nil {
			prompt.BeforeAsk = spinner.Stop
		}
		asker = prompt
	}

	c, err := container.New(cmd.Context(), container.Options{
		Config: cfg,
		Logger: newLogger(cfg, true),
		Asker:  asker,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	sessionID := runSession
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	fmt.Fprintf(os.Stderr, "session %s · %s/%s\n", sessionID, cfg.Provider, cfg.Model)

	base := session.Turn{
		SessionID:    sessionID,
		Model:        cfg.ModelConfig(),
		Loop:         cfg.LoopConfig(),
		Context:      cfg.Context,
		SystemPrompt: cfg.SystemPrompt,
	}
	runner := c.Runner()

	if len(args) == 1 {
		base.Prompt = args[0]
		return runTurn(cmd.Context(), runner, base, renderer)
	}
	if !interactive {
		return fmt.Errorf("no prompt given and stdin is not a terminal")
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if exitCommands[strings.ToLower(line)] {
			return nil
		}
		turn := base
		turn.Prompt = line
		if err := runTurn(cmd.Context(), runner, turn, renderer); err != nil {
			return err
		}
	}
}

// runTurn runs one turn with interrupt handling: the first SIGINT asks the
// loop to stop at the next round boundary, the second aborts it.
func runTurn(parent context.Context, runner *session.Runner, turn session.Turn, renderer *cli.Renderer) error {
	ctx, abort := context.WithCancel(parent)
	defer abort()

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	cancelTurn := make(chan struct{})
	done := make(chan struct{})

	var res session.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		interrupts := 0
		for {
			select {
			case <-sigs:
				interrupts++
				if interrupts == 1 {
					close(cancelTurn)
					fmt.Fprintln(os.Stderr, "\nstopping after the current step (interrupt again to abort)")
					continue
				}
				abort()
				return nil
			case <-done:
				return nil
			case <-gctx.Done():
				return nil
			}
		}
	})
	g.Go(func() error {
		defer close(done)
		var err error
		res, err = runner.RunTurn(ctx, turn, cancelTurn, func(ev agent.Event) {
			renderer.Render(ev)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if res.Managed {
		fmt.Fprintf(os.Stderr, "context %.0f%% → %.0f%%\n", res.UsageBefore*100, res.UsageAfter*100)
	}
	if res.SummaryErr != nil {
		fmt.Fprintf(os.Stderr, "summary failed: %v\n", res.SummaryErr)
	}
	return nil
}
