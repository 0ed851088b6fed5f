package scheduler

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// DefaultCommandTimeout bounds a single scheduler command.
const DefaultCommandTimeout = 30 * time.Second

// ErrTimeout is returned by a Runner when the command did not exit in time.
var ErrTimeout = errors.New("command timed out")

// Output is what a finished external command produced.
type Output struct {
	ExitCode int
	Text     string
}

// Runner executes an external command and waits for it to exit.
// A non-zero exit is reported in Output with a nil error; the error is
// reserved for commands that could not be started or did not finish.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Output, error)
}

// ExecRunner runs commands with os/exec, killing them after Timeout.
type ExecRunner struct {
	Timeout time.Duration
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// #nosec G204 -- name is a fixed system utility, args are built by this package
	cmd := exec.CommandContext(ctx, name, args...)
	configureSysProcAttr(cmd)
	// stop waiting on inherited pipes once the command is killed
	cmd.WaitDelay = time.Second
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	out := Output{Text: buf.String()}
	if ctx.Err() == context.DeadlineExceeded {
		out.ExitCode = -1
		return out, ErrTimeout
	}
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			out.ExitCode = ee.ExitCode()
			return out, nil
		}
		out.ExitCode = -1
		return out, err
	}
	return out, nil
}
