package sandbox

import "fmt"

// Bubblewrap wraps commands with bwrap. The root filesystem is mounted
// read-only with private /tmp, /dev and /proc; writable roots are bound
// back read-write.
type Bubblewrap struct {
	Path string
}

func (b Bubblewrap) Name() string { return "bwrap" }

func (b Bubblewrap) Wrap(argv []string, cwd string, p Policy) ([]string, error) {
	if !p.Restricted() {
		return argv, nil
	}
	switch p.Mode {
	case ModeReadOnly, ModeWorkspaceWrite:
	default:
		return nil, fmt.Errorf("unsupported sandbox mode %q", p.Mode)
	}

	path := b.Path
	if path == "" {
		path = "bwrap"
	}
	args := []string{path,
		"--ro-bind", "/", "/",
		"--dev", "/dev",
		"--proc", "/proc",
		"--tmpfs", "/tmp",
	}
	for _, root := range p.writableRoots(cwd) {
		args = append(args, "--bind", root, root)
	}
	args = append(args, "--unshare-pid", "--die-with-parent")
	if !p.Network {
		args = append(args, "--unshare-net")
	}
	if cwd != "" {
		args = append(args, "--chdir", cwd)
	}
	args = append(args, "--")
	return append(args, argv...), nil
}
