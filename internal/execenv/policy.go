// Package execenv builds the environment of commands started by the shell
// tool from the agent's own environment.
package execenv

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// Inherit selects the starting set of variables.
type Inherit string

const (
	InheritAll  Inherit = "all"
	InheritCore Inherit = "core"
	InheritNone Inherit = "none"
)

var coreVars = map[string]bool{
	"HOME":     true,
	"LANG":     true,
	"LOGNAME":  true,
	"PATH":     true,
	"SHELL":    true,
	"TERM":     true,
	"TMPDIR":   true,
	"TEMP":     true,
	"TMP":      true,
	"USER":     true,
	"USERNAME": true,
}

// secretPatterns match variables that usually hold credentials.
var secretPatterns = []string{"*KEY*", "*SECRET*", "*TOKEN*", "*PASSWORD*"}

// Policy filters the environment. Steps run in field order: inherit, drop
// secrets, exclude, set, include_only. Patterns are shell globs matched
// case-insensitively against variable names.
type Policy struct {
	Inherit        Inherit           `yaml:"inherit"`
	ExcludeSecrets bool              `yaml:"exclude_secrets"`
	Exclude        []string          `yaml:"exclude"`
	Set            map[string]string `yaml:"set"`
	IncludeOnly    []string          `yaml:"include_only"`
}

// DefaultPolicy inherits everything except credentials, so provider API
// keys never reach model-issued commands.
func DefaultPolicy() Policy {
	return Policy{Inherit: InheritAll, ExcludeSecrets: true}
}

// Validate reports an unknown inherit mode or a malformed pattern.
func (p Policy) Validate() error {
	switch p.Inherit {
	case "", InheritAll, InheritCore, InheritNone:
	default:
		return fmt.Errorf("inherit: unsupported value %q", p.Inherit)
	}
	for _, list := range [][]string{p.Exclude, p.IncludeOnly} {
		for _, pattern := range list {
			if _, err := path.Match(pattern, ""); err != nil {
				return fmt.Errorf("pattern %q: %w", pattern, err)
			}
		}
	}
	return nil
}

// Environ applies the policy to environ ("KEY=VALUE" entries, as returned
// by os.Environ) and returns the result sorted by name.
func (p Policy) Environ(environ []string) []string {
	env := make(map[string]string, len(environ))
	for _, entry := range environ {
		k, v, ok := strings.Cut(entry, "=")
		if !ok || k == "" {
			continue
		}
		switch p.Inherit {
		case InheritNone:
			continue
		case InheritCore:
			if !coreVars[k] {
				continue
			}
		}
		env[k] = v
	}

	if p.ExcludeSecrets {
		deleteMatching(env, secretPatterns, true)
	}
	deleteMatching(env, p.Exclude, true)
	for k, v := range p.Set {
		env[k] = v
	}
	if len(p.IncludeOnly) > 0 {
		deleteMatching(env, p.IncludeOnly, false)
	}

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// deleteMatching removes the names that match (or, with match false, do not
// match) any of patterns.
func deleteMatching(env map[string]string, patterns []string, match bool) {
	if len(patterns) == 0 {
		return
	}
	for k := range env {
		if matchesAny(k, patterns) == match {
			delete(env, k)
		}
	}
}

func matchesAny(name string, patterns []string) bool {
	name = strings.ToLower(name)
	for _, pattern := range patterns {
		if ok, _ := path.Match(strings.ToLower(pattern), name); ok {
			return true
		}
	}
	return false
}
