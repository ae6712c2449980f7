/*
Package exec wraps os/exec with timeouts, captured diagnostics and a run
function carried on the context so tests never launch real tools.

	err := exec.Run(ctx, &exec.Command{
		Name:    "sips",
		Args:    []string{"-s", "format", "png", in, "--out", out},
		Timeout: time.Minute,
	})

Substituting the run function in a test:

	mock := exec.CommandCollector{}
	ctx := exec.NewContext(context.Background(), mock.Run)
	_ = exec.Run(ctx, &exec.Command{Name: "touch", Args: []string{"/tmp/file"}})
	assert.Equal(t, "touch /tmp/file", exec.DebugString(mock.Commands()[0]))
*/
package exec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	osexec "os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/pkg/errors"

	"github.com/spherical/office-raster/internal/observability"
)

// ErrTimeout is matched (errors.Is) by errors of commands killed for
// exceeding their time limit.
var ErrTimeout = errors.New("command timed out")

// waitDelay bounds how long Wait blocks on output pipes after a kill.
const waitDelay = 2 * time.Second

type Command struct {
	// Name of the command, as passed to osexec.Command. Can be the path to a binary or the
	// name of a command that osexec.LookPath can find.
	Name string
	// Arguments of the command, not including Name.
	Args []string
	// The environment of the process. If nil, the current process's environment is used.
	Env []string
	// The working directory of the command. If empty, runs in the current process's current
	// directory.
	Dir string
	// See docs for osexec.Cmd.Stdin.
	Stdin io.Reader
	// Sends the stdout of the command to this Writer, e.g. os.File or bytes.Buffer.
	Stdout io.Writer
	// Sends the stderr of the command to this Writer. Stderr is always captured for
	// ExitError as well.
	Stderr io.Writer
	// Sends the combined stdout and stderr of the command to this Writer, in addition to
	// Stdout and Stderr.
	CombinedOutput io.Writer
	// Time limit for the command. No limit beyond the context's deadline if zero.
	Timeout time.Duration
}

// ExitError is returned when a command ran but exited unsuccessfully.
type ExitError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %v: %s", e.Command, e.Err, strings.TrimSpace(e.Stderr))
	}
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Stderr returns the captured standard error of a failed command in err's
// chain, or err's text when the command never produced any.
func Stderr(err error) string {
	if err == nil {
		return ""
	}
	var ee *ExitError
	if errors.As(err, &ee) && ee.Stderr != "" {
		return strings.TrimSpace(ee.Stderr)
	}
	return err.Error()
}

// RunFn executes a command.
type RunFn func(ctx context.Context, command *Command) error

type contextKeyType string

const contextKey contextKeyType = "OfficeRasterExecContext"

// NewContext returns a context whose commands are executed by runFn.
func NewContext(ctx context.Context, runFn RunFn) context.Context {
	return context.WithValue(ctx, contextKey, runFn)
}

func getRunFn(ctx context.Context) RunFn {
	if v := ctx.Value(contextKey); v != nil {
		if fn, ok := v.(RunFn); ok {
			return fn
		}
	}
	return DefaultRun
}

var logger = observability.Nop()

// SetLogger sets the logger used to report command execution.
func SetLogger(l *observability.Logger) {
	logger = l.WithComponent("exec")
}

// DebugString returns the shell-quoted command line of command.
func DebugString(command *Command) string {
	return shellquote.Join(append([]string{command.Name}, command.Args...)...)
}

// Given io.Writers or nils, return a single writer that writes to all, or nil if no non-nil
// writers.
func squashWriters(writers ...io.Writer) io.Writer {
	nonNil := []io.Writer{}
	for _, writer := range writers {
		if writer != nil {
			nonNil = append(nonNil, writer)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return io.MultiWriter(nonNil...)
	}
}

// DefaultRun runs command as a child process.
func DefaultRun(ctx context.Context, command *Command) error {
	if command.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, command.Timeout)
		defer cancel()
	}

	cmd := osexec.CommandContext(ctx, command.Name, command.Args...)
	if len(command.Env) != 0 {
		cmd.Env = command.Env
	}
	cmd.Dir = command.Dir
	cmd.Stdin = command.Stdin
	cmd.WaitDelay = waitDelay

	stderr := &bytes.Buffer{}
	cmd.Stdout = squashWriters(command.Stdout, command.CombinedOutput)
	cmd.Stderr = squashWriters(stderr, command.Stderr, command.CombinedOutput)

	line := DebugString(command)
	logger.Debug().Str("command", line).Msg("Executing")
	start := time.Now()

	err := cmd.Run()
	elapsed := time.Since(start)
	if err == nil {
		logger.Debug().Str("command", line).Dur("elapsed", elapsed).Msg("Command finished")
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		logger.Error().Str("command", line).Dur("elapsed", elapsed).Msg("Command killed after deadline")
		return errors.Wrapf(ErrTimeout, "%s killed after %s", command.Name, elapsed.Round(time.Millisecond))
	}
	if ctx.Err() != nil {
		return errors.Wrapf(ctx.Err(), "%s interrupted", command.Name)
	}

	logger.Debug().Str("command", line).Err(err).Msg("Command failed")
	return &ExitError{
		Command: command.Name,
		Stderr:  stderr.String(),
		Err:     err,
	}
}

// Run runs command with the run function carried by ctx and waits for it to
// finish.
func Run(ctx context.Context, command *Command) error {
	return getRunFn(ctx)(ctx, command)
}

// RunCombinedOutput runs command and returns its combined stdout and stderr.
func RunCombinedOutput(ctx context.Context, command *Command) (string, error) {
	output := bytes.Buffer{}
	command.CombinedOutput = squashWriters(command.CombinedOutput, &output)
	err := Run(ctx, command)
	return output.String(), err
}

// RunStdout runs command and returns its stdout.
func RunStdout(ctx context.Context, command *Command) (string, error) {
	output := bytes.Buffer{}
	command.Stdout = squashWriters(command.Stdout, &output)
	err := Run(ctx, command)
	return output.String(), err
}

// LookPath reports where name would be found on PATH.
func LookPath(name string) (string, error) {
	return osexec.LookPath(name)
}
