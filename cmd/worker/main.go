// Worker executable for the durable agent sessions.
//
// It registers the session workflow and its activities on the configured
// task queue and runs until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.temporal.io/sdk/worker"

	"github.com/mfateev/temporal-agent-loop/internal/config"
	"github.com/mfateev/temporal-agent-loop/internal/container"
	"github.com/mfateev/temporal-agent-loop/internal/logging"
	"github.com/mfateev/temporal-agent-loop/internal/temporalclient"
	"github.com/mfateev/temporal-agent-loop/internal/version"
	"github.com/mfateev/temporal-agent-loop/internal/workflow"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Config file (default $"+config.EnvConfigPath+" or the user config dir)")
	temporalHost := flag.String("temporal-host", "", "Temporal server address")
	namespace := flag.String("namespace", "", "Temporal namespace")
	taskQueue := flag.String("task-queue", "", "Task queue (default from config)")
	workspace := flag.String("cwd", "", "Workspace the tools run in (default: current directory)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *taskQueue != "" {
		cfg.TaskQueue = *taskQueue
	}
	logger := logging.New(os.Stderr, cfg.LogLevel)

	var providers []string
	for _, env := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY"} {
		if os.Getenv(env) != "" {
			providers = append(providers, strings.ToLower(strings.TrimSuffix(env, "_API_KEY")))
		}
	}
	if len(providers) == 0 {
		return fmt.Errorf("at least one of ANTHROPIC_API_KEY, OPENAI_API_KEY or GEMINI_API_KEY is required")
	}

	// no asker: calls that need a human are rejected on the worker
	c, err := container.New(context.Background(), container.Options{
		Config: cfg,
		Logger: logger,
		Cwd:    *workspace,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	tc, err := temporalclient.Dial(temporalclient.Overrides{
		HostPort:  *temporalHost,
		Namespace: *namespace,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer tc.Close()

	w := worker.New(tc, cfg.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflow.AgentSessionWorkflow)
	w.RegisterActivity(c.Activities())

	logger.Info("Starting worker",
		"version", version.String(),
		"task_queue", cfg.TaskQueue,
		"providers", strings.Join(providers, ","),
		"tools", len(c.Tools().Names()),
		"approval", cfg.Approval,
		"store", cfg.SessionStore.Kind)

	if err := w.Run(worker.InterruptCh()); err != nil {
		return fmt.Errorf("worker stopped: %w", err)
	}
	logger.Info("Worker stopped")
	return nil
}
