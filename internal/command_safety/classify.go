package command_safety

import (
	"path/filepath"
	"strings"
)

// Verdict is the outcome of classifying a shell script.
type Verdict int

const (
	VerdictUnknown Verdict = iota
	VerdictSafe
	VerdictDangerous
)

func (v Verdict) String() string {
	switch v {
	case VerdictSafe:
		return "safe"
	case VerdictDangerous:
		return "dangerous"
	default:
		return "unknown"
	}
}

// Classify inspects a bash script. A script is safe only when every simple
// command in it is a known read-only command. It is dangerous when any
// command looks destructive; this check also runs on scripts the tokenizer
// rejects, using a whitespace split.
func Classify(script string) Verdict {
	commands, ok := Commands(script)
	for _, cmd := range commands {
		if IsDangerous(cmd) {
			return VerdictDangerous
		}
	}
	if !ok {
		return VerdictUnknown
	}
	for _, cmd := range commands {
		if !IsKnownSafe(cmd) {
			return VerdictUnknown
		}
	}
	return VerdictSafe
}

// IsKnownSafeScript reports whether the script is made only of read-only
// commands.
func IsKnownSafeScript(script string) bool {
	return Classify(script) == VerdictSafe
}

// Commands splits a script into argv lists. exact is false when the script
// uses constructs SplitPlainCommands rejects; the commands are then a best
// effort whitespace split on control operators.
func Commands(script string) (commands [][]string, exact bool) {
	if cmds, ok := SplitPlainCommands(script); ok {
		return cmds, true
	}
	return roughSplit(script), false
}

func roughSplit(script string) [][]string {
	var out [][]string
	f := func(r rune) bool { return r == ';' || r == '&' || r == '|' || r == '\n' }
	for _, part := range strings.FieldsFunc(script, f) {
		if words := strings.Fields(part); len(words) > 0 {
			out = append(out, words)
		}
	}
	return out
}

// read-only commands whose arguments never matter
var alwaysSafe = map[string]bool{
	"cat": true, "cd": true, "cut": true, "date": true, "diff": true, "dirname": true,
	"basename": true, "du": true, "echo": true, "false": true, "file": true,
	"grep": true, "head": true, "id": true, "ls": true, "nl": true, "printf": true,
	"pwd": true, "realpath": true, "rev": true, "seq": true, "stat": true, "tac": true,
	"tail": true, "tr": true, "tree": true, "true": true, "uname": true, "uniq": true,
	"wc": true, "which": true, "whoami": true,
}

// commands that are read-only unless given one of these flags
var unsafeFlags = map[string][]string{
	"find": {"-exec", "-execdir", "-ok", "-okdir", "-delete", "-fls", "-fprint", "-fprint0", "-fprintf"},
	"rg":   {"--pre", "--hostname-bin", "--search-zip", "-z"},
	"sort": {"-o", "--output"},
}

// IsKnownSafe reports whether a single command (argv form) is read-only.
func IsKnownSafe(argv []string) bool {
	if len(argv) == 0 {
		return false
	}
	name := filepath.Base(argv[0])
	if alwaysSafe[name] {
		return true
	}
	if flags, ok := unsafeFlags[name]; ok {
		return !hasAnyFlag(argv[1:], flags)
	}
	switch name {
	case "git":
		return gitIsReadOnly(argv)
	case "sed":
		// sed -n 10,20p [file]
		return (len(argv) == 3 || len(argv) == 4) && argv[1] == "-n" && isLinePrint(argv[2])
	case "go":
		return len(argv) >= 2 && (argv[1] == "version" || argv[1] == "env" || argv[1] == "list" || argv[1] == "vet")
	}
	return false
}

// IsDangerous reports whether a single command (argv form) is destructive.
func IsDangerous(argv []string) bool {
	if len(argv) == 0 {
		return false
	}
	name := filepath.Base(argv[0])
	switch name {
	case "sudo", "doas":
		return IsDangerous(argv[1:])
	case "rm":
		for _, a := range argv[1:] {
			if shortFlags(a, 'f') || shortFlags(a, 'r') || shortFlags(a, 'R') || a == "--force" || a == "--recursive" {
				return true
			}
		}
		return false
	case "mkfs", "dd", "shred", "shutdown", "reboot":
		return true
	case "chmod", "chown":
		return hasAnyFlag(argv[1:], []string{"-R", "--recursive"})
	case "git":
		idx, sub := gitSubcommand(argv)
		if idx < 0 {
			return false
		}
		rest := argv[idx+1:]
		switch sub {
		case "reset", "rm":
			return true
		case "branch":
			return anyArg(rest, func(a string) bool {
				return a == "--delete" || strings.HasPrefix(a, "--delete=") || shortFlags(a, 'd') || shortFlags(a, 'D')
			})
		case "push":
			return anyArg(rest, func(a string) bool {
				return strings.HasPrefix(a, "--force") || strings.HasPrefix(a, "--delete") ||
					shortFlags(a, 'f') || shortFlags(a, 'd') ||
					(len(a) > 1 && (a[0] == '+' || a[0] == ':'))
			})
		case "clean":
			return anyArg(rest, func(a string) bool {
				return strings.HasPrefix(a, "--force") || shortFlags(a, 'f')
			})
		case "checkout", "restore":
			return anyArg(rest, func(a string) bool { return a == "." || a == "--" })
		}
	}
	return false
}

var gitReadOnly = map[string]bool{
	"status": true, "log": true, "diff": true, "show": true, "blame": true,
	"rev-parse": true, "ls-files": true, "grep": true,
}

func gitIsReadOnly(argv []string) bool {
	// -c/--config-env can point the pager or diff driver at any program
	if anyArg(argv[1:], func(a string) bool {
		return strings.HasPrefix(a, "-c") || strings.HasPrefix(a, "--config-env")
	}) {
		return false
	}
	idx, sub := gitSubcommand(argv)
	if idx < 0 {
		return false
	}
	rest := argv[idx+1:]
	if anyArg(rest, func(a string) bool {
		return strings.HasPrefix(a, "--output") || strings.HasPrefix(a, "--exec") ||
			a == "--ext-diff" || a == "--textconv" || a == "--paginate"
	}) {
		return false
	}
	if sub == "branch" {
		return len(rest) == 0 || !anyArg(rest, func(a string) bool {
			switch a {
			case "--list", "-l", "--show-current", "-a", "--all", "-r", "--remotes", "-v", "-vv", "--verbose":
				return false
			}
			return !strings.HasPrefix(a, "--format=")
		})
	}
	return gitReadOnly[sub]
}

// gitSubcommand returns the index and name of the first non-option token
// after git, skipping global options that take a value.
func gitSubcommand(argv []string) (int, string) {
	if filepath.Base(argv[0]) != "git" {
		return -1, ""
	}
	for i := 1; i < len(argv); i++ {
		a := argv[i]
		switch {
		case a == "-C" || a == "-c" || a == "--git-dir" || a == "--work-tree" || a == "--namespace":
			i++
		case strings.HasPrefix(a, "-"):
		default:
			return i, a
		}
	}
	return -1, ""
}

func hasAnyFlag(args, flags []string) bool {
	return anyArg(args, func(a string) bool {
		for _, f := range flags {
			if a == f || strings.HasPrefix(a, f+"=") {
				return true
			}
		}
		return false
	})
}

func anyArg(args []string, pred func(string) bool) bool {
	for _, a := range args {
		if pred(a) {
			return true
		}
	}
	return false
}

// shortFlags reports whether a "-xyz" style flag group contains c.
func shortFlags(arg string, c byte) bool {
	if len(arg) < 2 || arg[0] != '-' || arg[1] == '-' {
		return false
	}
	return strings.IndexByte(arg[1:], c) >= 0
}

func isLinePrint(arg string) bool {
	if !strings.HasSuffix(arg, "p") {
		return false
	}
	parts := strings.Split(strings.TrimSuffix(arg, "p"), ",")
	if len(parts) > 2 {
		return false
	}
	for _, p := range parts {
		if p == "" || strings.Trim(p, "0123456789") != "" {
			return false
		}
	}
	return true
}
