package probe

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"net/netip"
	"os/exec"
	"strings"
	"time"

	"github.com/anstrom/newhosts/internal/errors"
)

// waitDelay bounds how long a killed tool may keep its output pipes open.
const waitDelay = time.Second

// Output is what an external command produced.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner executes external commands. A non-zero exit status is reported
// through Output.ExitCode; the error is reserved for commands that could
// not run to completion.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Output, error)
}

// ExecRunner runs commands with os/exec. The process is killed when ctx is
// done.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctx.Err() != nil {
		return out, ctx.Err()
	}
	var exitErr *exec.ExitError
	if err != nil && stderrors.As(err, &exitErr) {
		return out, nil
	}
	return out, err
}

// runTool runs one tool invocation and fills the common Result fields.
// The returned exit code is -1 when the command did not complete.
func runTool(ctx context.Context, runner Runner, kind Kind, addr netip.Addr, name string, args []string) (Result, int) {
	result := Result{Command: commandLine(name, args)}

	out, err := runner.Run(ctx, name, args...)
	result.Stdout = string(out.Stdout)
	result.Stderr = string(out.Stderr)
	if err != nil {
		result.Err = classifyRunError(kind, addr, err)
		return result, -1
	}
	return result, out.ExitCode
}

func classifyRunError(kind Kind, addr netip.Addr, err error) error {
	code := errors.CodeProbeFailed
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		code = errors.CodeTimeout
	case stderrors.Is(err, context.Canceled):
		code = errors.CodeCanceled
	case stderrors.Is(err, exec.ErrNotFound):
		code = errors.CodeToolMissing
	}
	return errors.WrapProbeError(code, string(kind), addr.String(), err)
}

// exitError reports an unexpected exit status of a tool whose status 1
// only means "no answer".
func exitError(kind Kind, addr netip.Addr, exitCode int, stderr string) error {
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		msg = "no diagnostic output"
	}
	return errors.WrapProbeError(errors.CodeProbeFailed, string(kind), addr.String(),
		fmt.Errorf("exit status %d: %s", exitCode, msg))
}
