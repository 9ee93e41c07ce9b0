// Package container wires the agent's services using go.uber.org/dig.
package container

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.temporal.io/sdk/log"
	"go.uber.org/dig"

	"github.com/mfateev/temporal-agent-loop/internal/activities"
	"github.com/mfateev/temporal-agent-loop/internal/approval"
	"github.com/mfateev/temporal-agent-loop/internal/config"
	"github.com/mfateev/temporal-agent-loop/internal/execpolicy"
	"github.com/mfateev/temporal-agent-loop/internal/history"
	"github.com/mfateev/temporal-agent-loop/internal/llm"
	"github.com/mfateev/temporal-agent-loop/internal/logging"
	"github.com/mfateev/temporal-agent-loop/internal/mcp"
	"github.com/mfateev/temporal-agent-loop/internal/models"
	"github.com/mfateev/temporal-agent-loop/internal/sandbox"
	"github.com/mfateev/temporal-agent-loop/internal/session"
	"github.com/mfateev/temporal-agent-loop/internal/tokens"
	"github.com/mfateev/temporal-agent-loop/internal/tools"
	"github.com/mfateev/temporal-agent-loop/internal/tools/handlers"
)

// Options are the process-level inputs of New.
type Options struct {
	Config *config.File
	Logger log.Logger

	// Asker answers approval prompts when cfg.Approval is "prompt". A nil
	// Asker rejects every call that needs one.
	Asker approval.Asker

	// Cwd is the workspace tools run in. Defaults to the process working
	// directory.
	Cwd string

	// Client replaces the provider clients, e.g. in tests.
	Client llm.Client
}

// Container holds the resolved service singletons.
type Container struct {
	cfg       *config.File
	logger    log.Logger
	cwd       workspaceDir
	client    llm.Client
	mcp       *mcp.Manager
	executor  *tools.Executor
	gate      approval.Gate
	store     history.Store
	profiles  *models.ProfileRegistry
	estimator tokens.Estimator
	acts      *activities.SessionActivities
}

func (c *Container) Config() *config.File                      { return c.cfg }
func (c *Container) Logger() log.Logger                        { return c.logger }
func (c *Container) Client() llm.Client                        { return c.client }
func (c *Container) MCP() *mcp.Manager                         { return c.mcp }
func (c *Container) Tools() *tools.Executor                    { return c.executor }
func (c *Container) Gate() approval.Gate                       { return c.gate }
func (c *Container) Store() history.Store                      { return c.store }
func (c *Container) Profiles() *models.ProfileRegistry         { return c.profiles }
func (c *Container) Activities() *activities.SessionActivities { return c.acts }

// workspaceDir distinguishes the tool working directory from other strings
// in the graph.
type workspaceDir string

// New builds and wires every service from opts. MCP servers are started
// under ctx.
func New(ctx context.Context, opts Options) (*Container, error) {
	if opts.Config == nil {
		return nil, errors.New("container: config is required")
	}
	cwd := opts.Cwd
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		cwd = wd
	}

	d := dig.New()
	provide := []interface{}{
		func() context.Context { return ctx },
		func() *config.File { return opts.Config },
		func() log.Logger { return logging.OrNop(opts.Logger) },
		func() workspaceDir { return workspaceDir(cwd) },
		func() approval.Asker { return opts.Asker },
		func() llm.Client {
			if opts.Client != nil {
				return opts.Client
			}
			return llm.NewMultiProviderClient()
		},
		models.NewDefaultRegistry,
		newEstimator,
		newMCPManager,
		newToolRegistry,
		newExecutor,
		newGate,
		newStore,
		newActivities,
	}
	for _, ctor := range provide {
		if err := d.Provide(ctor); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(
		cfg *config.File,
		logger log.Logger,
		wd workspaceDir,
		client llm.Client,
		manager *mcp.Manager,
		executor *tools.Executor,
		gate approval.Gate,
		store history.Store,
		profiles *models.ProfileRegistry,
		estimator tokens.Estimator,
		acts *activities.SessionActivities,
	) {
		result = &Container{
			cfg:       cfg,
			logger:    logger,
			cwd:       wd,
			client:    client,
			mcp:       manager,
			executor:  executor,
			gate:      gate,
			store:     store,
			profiles:  profiles,
			estimator: estimator,
			acts:      acts,
		}
	})
	if err != nil {
		return nil, dig.RootCause(err)
	}
	return result, nil
}

// Runner returns a runner for in-process turns over the container's
// services.
func (c *Container) Runner() *session.Runner {
	return &session.Runner{
		Store:     c.store,
		Client:    c.client,
		Tools:     c.executor,
		Gate:      c.gate,
		Profiles:  c.profiles,
		Estimator: c.estimator,
		Logger:    c.logger,
		Cwd:       string(c.cwd),
	}
}

// Close releases the session store, MCP sessions and provider clients.
func (c *Container) Close() error {
	var errs []error
	if err := c.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close session store: %w", err))
	}
	c.mcp.Close()
	if closer, ok := c.client.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close model clients: %w", err))
		}
	}
	return errors.Join(errs...)
}

func newEstimator(cfg *config.File) (tokens.Estimator, error) {
	return tokens.New(cfg.Estimator)
}

func newMCPManager(ctx context.Context, cfg *config.File, logger log.Logger) (*mcp.Manager, error) {
	manager := mcp.NewManager(logger)
	if len(cfg.MCPServers) == 0 {
		return manager, nil
	}
	if _, err := manager.Connect(ctx, cfg.MCPServers); err != nil {
		return nil, err
	}
	return manager, nil
}

func newToolRegistry(cfg *config.File, manager *mcp.Manager, logger log.Logger) *tools.ToolRegistry {
	reg := tools.NewToolRegistry()
	wrapper := sandbox.New()
	if _, none := wrapper.(sandbox.Passthrough); none && cfg.Sandbox.Restricted() {
		logger.Warn("No sandbox launcher found; shell commands will be refused", "mode", cfg.Sandbox.Mode)
	}
	handlers.RegisterBuiltins(reg,
		handlers.WithEnv(cfg.ShellEnv.Environ(os.Environ())),
		handlers.WithSandbox(wrapper, cfg.Sandbox),
	)
	if n := handlers.RegisterMCPTools(reg, manager); n > 0 {
		logger.Info("Registered MCP tools", "count", n)
	}
	return reg
}

func newExecutor(reg *tools.ToolRegistry, wd workspaceDir, logger log.Logger) *tools.Executor {
	return tools.NewExecutor(reg, tools.WithCwd(string(wd)), tools.WithLogger(logger))
}

func newGate(cfg *config.File, asker approval.Asker, logger log.Logger) (approval.Gate, error) {
	switch cfg.Approval {
	case config.ApprovalAuto:
		return approval.AutoApprove{}, nil
	case config.ApprovalDeny:
		return approval.DenyAll{Reason: "approval mode is deny"}, nil
	}
	policy, err := execpolicy.LoadDir(cfg.ExecPolicy)
	if err != nil {
		return nil, fmt.Errorf("load exec policy %s: %w", cfg.ExecPolicy, err)
	}
	logger.Debug("Exec policy loaded", "dir", cfg.ExecPolicy, "rules", policy.Len())
	return approval.NewPolicyGate(policy, asker, logger), nil
}

func newStore(cfg *config.File) (history.Store, error) {
	return history.Open(cfg.SessionStore.Kind, cfg.SessionStore.Path)
}

func newActivities(
	store history.Store,
	client llm.Client,
	executor *tools.Executor,
	gate approval.Gate,
	profiles *models.ProfileRegistry,
	estimator tokens.Estimator,
	wd workspaceDir,
) *activities.SessionActivities {
	return activities.New(activities.Deps{
		Store:     store,
		Client:    client,
		Tools:     executor,
		Gate:      gate,
		Profiles:  profiles,
		Estimator: estimator,
		Cwd:       string(wd),
	})
}
