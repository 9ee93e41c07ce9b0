// Package sandbox confines shell tool commands to a filesystem and network
// policy by wrapping them with the platform's sandbox launcher: bubblewrap
// on Linux and sandbox-exec on macOS.
package sandbox

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Mode is the level of filesystem restriction.
type Mode string

const (
	ModeFullAccess     Mode = "full-access"
	ModeReadOnly       Mode = "read-only"
	ModeWorkspaceWrite Mode = "workspace-write"
)

// ErrUnavailable is returned when a restricted policy is requested on a
// host without a sandbox launcher.
var ErrUnavailable = errors.New("no sandbox launcher available")

// ParseMode accepts the canonical names and their snake_case spellings. The
// empty string is full access.
func ParseMode(s string) (Mode, error) {
	switch strings.ReplaceAll(s, "_", "-") {
	case "", string(ModeFullAccess):
		return ModeFullAccess, nil
	case string(ModeReadOnly):
		return ModeReadOnly, nil
	case string(ModeWorkspaceWrite):
		return ModeWorkspaceWrite, nil
	default:
		return "", fmt.Errorf("invalid sandbox mode %q: must be full-access, read-only or workspace-write", s)
	}
}

// Policy is the sandbox configuration of the shell tool.
type Policy struct {
	Mode Mode `yaml:"mode"`

	// WritableRoots are extra writable directories in workspace-write mode.
	// The workspace itself is always writable in that mode.
	WritableRoots []string `yaml:"writable_roots"`

	// Network allows network access from restricted commands.
	Network bool `yaml:"network"`
}

// DefaultPolicy runs commands unconfined.
func DefaultPolicy() Policy {
	return Policy{Mode: ModeFullAccess, Network: true}
}

// Normalized returns p with its mode spelled canonically. An invalid mode
// is kept for Validate to report.
func (p Policy) Normalized() Policy {
	if m, err := ParseMode(string(p.Mode)); err == nil {
		p.Mode = m
	}
	return p
}

// Restricted reports whether commands need wrapping.
func (p Policy) Restricted() bool {
	return p.Mode != "" && p.Mode != ModeFullAccess
}

// Validate checks the mode and that every writable root is absolute.
func (p Policy) Validate() error {
	if _, err := ParseMode(string(p.Mode)); err != nil {
		return fmt.Errorf("mode: %w", err)
	}
	for _, root := range p.WritableRoots {
		if !filepath.IsAbs(root) {
			return fmt.Errorf("writable_roots: %q is not absolute", root)
		}
	}
	return nil
}

// writableRoots returns the cleaned, sorted, de-duplicated writable
// directories for a command running in cwd.
func (p Policy) writableRoots(cwd string) []string {
	if p.Mode != ModeWorkspaceWrite {
		return nil
	}
	seen := make(map[string]bool)
	var roots []string
	for _, r := range append([]string{cwd}, p.WritableRoots...) {
		if r == "" {
			continue
		}
		r = filepath.Clean(r)
		if !seen[r] {
			seen[r] = true
			roots = append(roots, r)
		}
	}
	sort.Strings(roots)
	return roots
}

// Wrapper rewrites a command line so that it runs under a policy.
type Wrapper interface {
	Name() string

	// Wrap returns argv unchanged when the policy is unrestricted.
	Wrap(argv []string, cwd string, p Policy) ([]string, error)
}

// New returns the launcher of the current platform, or Passthrough when
// none is installed.
func New() Wrapper {
	if w := platformWrapper(); w != nil {
		return w
	}
	return Passthrough{}
}

// Passthrough runs unrestricted commands as they are and refuses
// restricted ones.
type Passthrough struct{}

func (Passthrough) Name() string { return "none" }

func (Passthrough) Wrap(argv []string, _ string, p Policy) ([]string, error) {
	if p.Restricted() {
		return nil, fmt.Errorf("%s mode: %w", p.Mode, ErrUnavailable)
	}
	return argv, nil
}
