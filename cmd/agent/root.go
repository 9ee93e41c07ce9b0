package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/log"

	"github.com/mfateev/temporal-agent-loop/internal/cli"
	"github.com/mfateev/temporal-agent-loop/internal/config"
	"github.com/mfateev/temporal-agent-loop/internal/logging"
	"github.com/mfateev/temporal-agent-loop/internal/version"
)

var (
	configPath string
	logLevel   string
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "agent",
	Short: "Tool-using model agent with durable sessions",
	Long: `agent runs a model in a tool-calling loop over a persistent session.

Turns run in-process with "agent run", or durably on a Temporal worker with
the "agent session" commands.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version.String()
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default $"+config.EnvConfigPath+" or the user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level for this command (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(sessionCmd)
}

func loadConfig() (*config.File, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger writes to stderr. Interactive commands stay quiet below warn
// unless --log-level says otherwise.
func newLogger(cfg *config.File, interactive bool) log.Logger {
	level := cfg.LogLevel
	if interactive {
		level = "warn"
	}
	if logLevel != "" {
		level = logLevel
	}
	return logging.New(os.Stderr, level)
}

func newRenderer(noColor, noMarkdown bool) *cli.Renderer {
	if !cli.IsTerminal(os.Stdout) {
		noColor = true
	}
	return cli.NewRenderer(os.Stdout, cli.RendererOptions{NoColor: noColor, NoMarkdown: noMarkdown})
}

// applyModelFlags overrides the configured model. A model given without a
// provider picks the provider from its name.
func applyModelFlags(cfg *config.File, provider, model string) error {
	if model != "" {
		cfg.Model = model
		if provider == "" {
			provider = cli.DetectProvider(model)
		}
	}
	if provider != "" {
		cfg.Provider = provider
	}
	return cfg.Validate()
}
