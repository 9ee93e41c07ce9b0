// Package mcp connects to Model Context Protocol servers and exposes their
// tools to the agent loop.
package mcp

import "time"

const (
	DefaultStartupTimeout = 10 * time.Second
	DefaultToolTimeout    = 60 * time.Second
)

// ServerConfig configures one MCP server. Exactly one of Command or URL must
// be set: Command spawns a stdio server, URL dials a streamable HTTP one.
type ServerConfig struct {
	Command string            `yaml:"command,omitempty" json:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Cwd     string            `yaml:"cwd,omitempty" json:"cwd,omitempty"`
	URL     string            `yaml:"url,omitempty" json:"url,omitempty"`

	Disabled bool `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	// Required servers abort Connect when they fail to start.
	Required bool `yaml:"required,omitempty" json:"required,omitempty"`

	StartupTimeout time.Duration `yaml:"startup_timeout,omitempty" json:"startup_timeout,omitempty"`
	ToolTimeout    time.Duration `yaml:"tool_timeout,omitempty" json:"tool_timeout,omitempty"`

	// EnabledTools is an allow-list; empty allows everything.
	EnabledTools  []string `yaml:"enabled_tools,omitempty" json:"enabled_tools,omitempty"`
	DisabledTools []string `yaml:"disabled_tools,omitempty" json:"disabled_tools,omitempty"`
}

func (c ServerConfig) startupTimeout() time.Duration {
	if c.StartupTimeout > 0 {
		return c.StartupTimeout
	}
	return DefaultStartupTimeout
}

func (c ServerConfig) toolTimeout() time.Duration {
	if c.ToolTimeout > 0 {
		return c.ToolTimeout
	}
	return DefaultToolTimeout
}

// Allows reports whether the server's filters expose toolName.
func (c ServerConfig) Allows(toolName string) bool {
	if len(c.EnabledTools) > 0 && !contains(c.EnabledTools, toolName) {
		return false
	}
	return !contains(c.DisabledTools, toolName)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
