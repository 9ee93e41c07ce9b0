package sandbox

import (
	"fmt"
	"strings"
)

const sandboxExec = "/usr/bin/sandbox-exec"

// Seatbelt wraps commands with macOS sandbox-exec and a generated profile.
type Seatbelt struct{}

func (Seatbelt) Name() string { return "seatbelt" }

func (Seatbelt) Wrap(argv []string, cwd string, p Policy) ([]string, error) {
	if !p.Restricted() {
		return argv, nil
	}
	switch p.Mode {
	case ModeReadOnly, ModeWorkspaceWrite:
	default:
		return nil, fmt.Errorf("unsupported sandbox mode %q", p.Mode)
	}
	args := []string{sandboxExec, "-p", profile(p, cwd), "--"}
	return append(args, argv...), nil
}

// profile renders the SBPL policy: deny by default, read everything, write
// only temp dirs and the writable roots.
func profile(p Policy, cwd string) string {
	var b strings.Builder
	b.WriteString("(version 1)\n")
	b.WriteString("(deny default)\n")
	b.WriteString("(allow process-exec)\n")
	b.WriteString("(allow process-fork)\n")
	b.WriteString("(allow signal (target self))\n")
	b.WriteString("(allow sysctl-read)\n")
	b.WriteString("(allow mach-lookup)\n")
	b.WriteString("(allow file-read*)\n")
	for _, dir := range []string{"/private/tmp", "/private/var/folders", "/dev"} {
		fmt.Fprintf(&b, "(allow file-write* (subpath %q))\n", dir)
	}
	for _, root := range p.writableRoots(cwd) {
		fmt.Fprintf(&b, "(allow file-write* (subpath %q))\n", root)
	}
	if p.Network {
		b.WriteString("(allow network*)\n")
	}
	return b.String()
}
