package exec

import (
	"context"
	"errors"
	"io"
	osexec "os/exec"
	"time"

	"github.com/creack/pty"
)

const ptyDrainTimeout = 200 * time.Millisecond

// Request describes one shell command execution.
type Request struct {
	Script string

	// Argv, when set, is run instead of bash -c Script, e.g. a sandbox
	// launcher wrapping that command.
	Argv []string

	Cwd      string
	Env      []string // nil inherits the current environment
	TTY      bool     // attach to a pseudo-terminal; stderr is merged into stdout
	MaxBytes int      // 0 means MaxOutputBytes
}

// ShellArgv is the command line that runs script.
func ShellArgv(script string) []string {
	return []string{"bash", "-c", script}
}

// Result holds captured output of a finished command.
type Result struct {
	Stdout     []byte
	Stderr     []byte
	Aggregated []byte
	ExitCode   int
	Truncated  bool
	Duration   time.Duration
}

// Run executes the request's command and waits for it to exit. A non-zero
// exit status is reported in Result.ExitCode, not as an error. The returned
// error is non-nil only when the command could not be started or ctx ended.
func Run(ctx context.Context, req Request) (*Result, error) {
	max := req.MaxBytes
	if max <= 0 {
		max = MaxOutputBytes
	}
	argv := req.Argv
	if len(argv) == 0 {
		argv = ShellArgv(req.Script)
	}
	cmd := osexec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = req.Cwd
	if req.Env != nil {
		cmd.Env = req.Env
	}

	stdout := newCappedBuffer(max)
	stderr := newCappedBuffer(max)
	start := time.Now()

	var err error
	if req.TTY {
		err = runWithPTY(cmd, stdout)
	} else {
		cmd.Stdout = stdout
		cmd.Stderr = stderr
		err = cmd.Run()
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	res := &Result{
		Stdout:    stdout.Bytes(),
		Stderr:    stderr.Bytes(),
		Truncated: stdout.Truncated() || stderr.Truncated(),
		Duration:  time.Since(start),
	}
	res.Aggregated = Aggregate(res.Stdout, res.Stderr, max)

	var exitErr *osexec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return nil, err
	}
	return res, nil
}

func runWithPTY(cmd *osexec.Cmd, out io.Writer) error {
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 24, Cols: 120})
	if err != nil {
		return err
	}
	defer ptmx.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// EIO on the master is how Linux reports that the child side closed.
		_, _ = io.Copy(out, ptmx)
	}()
	waitErr := cmd.Wait()

	// Background children may keep the terminal open; give the reader a
	// moment to drain, then close the master to unblock it.
	select {
	case <-done:
	case <-time.After(ptyDrainTimeout):
		_ = ptmx.Close()
		<-done
	}
	return waitErr
}
