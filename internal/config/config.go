// Package config loads the agent's YAML configuration file.
//
// Values are read once into a File; per-request settings (loop, model and
// context budget) are derived from it as fresh values so that no request
// ever mutates shared configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mfateev/temporal-agent-loop/internal/execenv"
	"github.com/mfateev/temporal-agent-loop/internal/mcp"
	"github.com/mfateev/temporal-agent-loop/internal/models"
	"github.com/mfateev/temporal-agent-loop/internal/sandbox"
)

// Session store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Approval modes for consequential tool calls.
const (
	ApprovalAuto   = "auto"
	ApprovalPrompt = "prompt"
	ApprovalDeny   = "deny"
)

// EnvConfigPath names the environment variable that overrides DefaultPath.
const EnvConfigPath = "AGENT_LOOP_CONFIG"

// File is the on-disk configuration.
type File struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// Context holds the budget parameters. The context window itself is
	// never configured here; it comes from the model profile.
	Context models.ContextConfig `yaml:"context"`

	Loop LoopSection `yaml:"loop"`

	SessionStore StoreSection `yaml:"session_store"`

	// ExecPolicy is a directory of Starlark *.rules files.
	ExecPolicy string `yaml:"exec_policy"`

	MCPServers map[string]mcp.ServerConfig `yaml:"mcp_servers"`

	// ShellEnv filters the environment of shell tool commands.
	ShellEnv execenv.Policy `yaml:"shell_env"`

	// Sandbox confines shell tool commands.
	Sandbox sandbox.Policy `yaml:"sandbox"`

	// Approval is one of auto, prompt or deny.
	Approval string `yaml:"approval"`

	LogLevel string `yaml:"log_level"`

	// Estimator is "chars" or "tiktoken".
	Estimator string `yaml:"estimator"`

	// TaskQueue is the Temporal task queue used by the worker and the
	// durable session commands.
	TaskQueue string `yaml:"task_queue"`

	// SystemPrompt replaces the default agent guidance. The tool-use
	// preamble is always kept.
	SystemPrompt string `yaml:"system_prompt"`
}

// LoopSection bounds one agent loop invocation.
type LoopSection struct {
	MaxRounds               int           `yaml:"max_rounds"`
	Timeout                 time.Duration `yaml:"timeout"`
	RepeatThreshold         int           `yaml:"repeat_threshold"`
	FailureThreshold        int           `yaml:"failure_threshold"`
	MaxHallucinationRetries int           `yaml:"max_hallucination_retries"`
}

// StoreSection selects where sessions are persisted.
type StoreSection struct {
	Kind string `yaml:"kind"`
	Path string `yaml:"path"`
}

// Default returns the built-in configuration.
func Default() *File {
	mc := models.DefaultModelConfig()
	tc := models.DefaultTerminationConfig()
	return &File{
		Provider:    mc.Provider,
		Model:       mc.Model,
		Temperature: mc.Temperature,
		Context:     models.DefaultContextConfig(),
		Loop: LoopSection{
			MaxRounds:        tc.MaxRounds,
			Timeout:          tc.Timeout,
			RepeatThreshold:  tc.RepeatThreshold,
			FailureThreshold: tc.FailureThreshold,
		},
		SessionStore: StoreSection{
			Kind: StoreFile,
			Path: filepath.Join("${STATE_DIR}", "sessions"),
		},
		ExecPolicy: filepath.Join("${CONFIG_DIR}", "rules"),
		ShellEnv:   execenv.DefaultPolicy(),
		Sandbox:    sandbox.DefaultPolicy(),
		Approval:   ApprovalPrompt,
		LogLevel:   "info",
		Estimator:  "chars",
		TaskQueue:  "agent-loop",
	}
}

// DefaultPath returns $AGENT_LOOP_CONFIG, or config.yaml under the user
// config directory.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return filepath.Join(configDir(), "config.yaml")
}

// Load reads path over the defaults. A missing file at the default path is
// not an error; a missing explicit path is.
func Load(path string) (*File, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.expandPaths()
	cfg.Sandbox = cfg.Sandbox.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid field.
func (f *File) Validate() error {
	var errs []error
	switch f.Provider {
	case "anthropic", "openai", "gemini":
	default:
		errs = append(errs, fmt.Errorf("provider: unsupported value %q", f.Provider))
	}
	switch f.SessionStore.Kind {
	case StoreMemory:
	case StoreFile, StoreSQLite:
		if f.SessionStore.Path == "" {
			errs = append(errs, fmt.Errorf("session_store.path is required for %s", f.SessionStore.Kind))
		}
	default:
		errs = append(errs, fmt.Errorf("session_store.kind: unsupported value %q", f.SessionStore.Kind))
	}
	switch f.Approval {
	case ApprovalAuto, ApprovalPrompt, ApprovalDeny:
	default:
		errs = append(errs, fmt.Errorf("approval: unsupported value %q", f.Approval))
	}
	switch f.Estimator {
	case "chars", "tiktoken":
	default:
		errs = append(errs, fmt.Errorf("estimator: unsupported value %q", f.Estimator))
	}

	c := f.Context
	if c.PruneThreshold <= 0 || c.PruneThreshold > 1 {
		errs = append(errs, fmt.Errorf("context.prune_threshold must be in (0, 1]"))
	}
	if c.CompactThreshold <= 0 || c.CompactThreshold > 1 {
		errs = append(errs, fmt.Errorf("context.compact_threshold must be in (0, 1]"))
	}
	if c.MessagesToKeep < 1 {
		errs = append(errs, fmt.Errorf("context.messages_to_keep must be at least 1"))
	}
	if c.BufferPercentage < 0 || c.BufferPercentage >= 1 {
		errs = append(errs, fmt.Errorf("context.buffer_percentage must be in [0, 1)"))
	}
	if c.ReservedOutputTokens < 0 {
		errs = append(errs, fmt.Errorf("context.reserved_output_tokens must not be negative"))
	}

	if f.Loop.MaxRounds < 1 {
		errs = append(errs, fmt.Errorf("loop.max_rounds must be at least 1"))
	}
	if f.Loop.Timeout < 0 {
		errs = append(errs, fmt.Errorf("loop.timeout must not be negative"))
	}
	if f.Loop.MaxHallucinationRetries < 0 {
		errs = append(errs, fmt.Errorf("loop.max_hallucination_retries must not be negative"))
	}
	if err := f.ShellEnv.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("shell_env.%w", err))
	}
	if err := f.Sandbox.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sandbox.%w", err))
	}
	for name, srv := range f.MCPServers {
		if (srv.Command == "") == (srv.URL == "") {
			errs = append(errs, fmt.Errorf("mcp_servers.%s: exactly one of command or url is required", name))
		}
	}
	return errors.Join(errs...)
}

// ModelConfig returns the model selection.
func (f *File) ModelConfig() models.ModelConfig {
	return models.ModelConfig{
		Provider:    f.Provider,
		Model:       f.Model,
		Temperature: f.Temperature,
		MaxTokens:   f.MaxTokens,
	}
}

// LoopConfig returns the configuration for one loop invocation. The system
// prompt is left for the caller to compose.
func (f *File) LoopConfig() models.LoopConfig {
	return models.LoopConfig{
		Model: f.ModelConfig(),
		Termination: models.TerminationConfig{
			MaxRounds:        f.Loop.MaxRounds,
			Timeout:          f.Loop.Timeout,
			RepeatThreshold:  f.Loop.RepeatThreshold,
			FailureThreshold: f.Loop.FailureThreshold,
		},
		MaxHallucinationRetries: f.Loop.MaxHallucinationRetries,
	}
}

// ContextConfigFor resolves a fresh budget for mc from the profile
// registry. Call it immediately before every budget check.
func (f *File) ContextConfigFor(registry *models.ProfileRegistry, mc models.ModelConfig) models.ContextConfig {
	if registry == nil {
		registry = models.NewDefaultRegistry()
	}
	return registry.ContextConfigFor(mc, f.Context)
}

func (f *File) expandPaths() {
	vars := map[string]string{
		"CONFIG_DIR": configDir(),
		"STATE_DIR":  stateDir(),
	}
	f.SessionStore.Path = expandVars(f.SessionStore.Path, vars)
	f.ExecPolicy = expandVars(f.ExecPolicy, vars)
	for i, root := range f.Sandbox.WritableRoots {
		f.Sandbox.WritableRoots[i] = expandVars(root, vars)
	}
	for name, srv := range f.MCPServers {
		srv.Cwd = expandVars(srv.Cwd, vars)
		f.MCPServers[name] = srv
	}
}

func configDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "temporal-agent-loop")
	}
	return ".temporal-agent-loop"
}

func stateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "temporal-agent-loop")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "temporal-agent-loop")
	}
	return ".temporal-agent-loop"
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}, looking in vars first and
// then the environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, def := parts[1], parts[2]
		if v, ok := vars[name]; ok && v != "" {
			return v
		}
		if v := os.Getenv(name); v != "" {
			return v
		}
		return def
	})
}
