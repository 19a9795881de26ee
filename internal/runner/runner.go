// Package runner wraps external package-manager invocations in a
// deadline-aware, cancellable command execution, generalizing the
// teacher's agent/system.CmdV2 streaming go-cmd wrapper from driving a
// single Windows installer to driving apt/yum/dnf/zypper subprocesses
// (spec §4.B, §4.E, §5).
package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	gocmd "github.com/go-cmd/cmd"
	"golang.org/x/sys/unix"
)

// Options configures a single external command invocation.
type Options struct {
	// Name is the executable to run, e.g. "apt-get".
	Name string
	Args []string
	// Env is appended to the invoked process's environment; LANG=C is
	// always forced ahead of it per spec §4.B output-parsing policy.
	Env []string
	// Timeout bounds this single invocation; zero means no timeout beyond
	// the caller's context.
	Timeout time.Duration
	// GraceOnKill is how long SIGTERM is given before SIGKILL follows
	// (spec §4.E "fixed grace (e.g. 15s)").
	GraceOnKill time.Duration
}

// Result is the structured outcome of a command invocation. Runner never
// returns a bare Go error for a failed command exit — only for failure to
// start the command at all — matching spec §4.B "an adapter never raises;
// it always returns a structured outcome".
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	// TimedOut is true when the deadline fired and the process was killed.
	TimedOut bool
	// Cancelled is true when ctx was cancelled externally (SIGTERM from the
	// host, or a NoOperation sequence) rather than the command's own
	// timeout.
	Cancelled bool
}

const defaultGrace = 15 * time.Second

// Run executes opts.Name with opts.Args, streaming stdout/stderr, racing
// completion against ctx and opts.Timeout exactly as the teacher's CmdV2
// raced completion against a context.WithTimeout: on expiry it sends
// SIGTERM, waits opts.GraceOnKill (default 15s per spec §4.E), then SIGKILL.
func Run(ctx context.Context, opts Options) (Result, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	env := append(append(os.Environ(), "LANG=C", "LC_ALL=C"), opts.Env...)

	cmdOptions := gocmd.Options{
		Buffered:  false,
		Streaming: true,
	}
	c := gocmd.NewCmdOptions(cmdOptions, opts.Name, opts.Args...)
	c.Env = env

	var stdoutBuf, stderrBuf bytes.Buffer
	doneChan := make(chan struct{})
	go func() {
		defer close(doneChan)
		for c.Stdout != nil || c.Stderr != nil {
			select {
			case line, open := <-c.Stdout:
				if !open {
					c.Stdout = nil
					continue
				}
				fmt.Fprintln(&stdoutBuf, line)
			case line, open := <-c.Stderr:
				if !open {
					c.Stderr = nil
					continue
				}
				fmt.Fprintln(&stderrBuf, line)
			}
		}
	}()

	statusChan := c.Start()

	grace := opts.GraceOnKill
	if grace <= 0 {
		grace = defaultGrace
	}

	var timedOut, cancelled bool
	killed := make(chan struct{})
	go func() {
		select {
		case <-doneChan:
			return
		case <-runCtx.Done():
			pid := c.Status().PID
			if pid <= 0 {
				return
			}
			if opts.Timeout > 0 && ctx.Err() == nil {
				timedOut = true
			} else {
				cancelled = true
			}
			terminate(pid, grace)
			close(killed)
		}
	}()

	<-doneChan
	select {
	case <-statusChan:
	default:
	}

	status := c.Status()
	res := Result{
		ExitCode:  status.Exit,
		Stdout:    strings.TrimSpace(stdoutBuf.String()),
		Stderr:    strings.TrimSpace(stderrBuf.String()),
		TimedOut:  timedOut,
		Cancelled: cancelled,
	}
	if status.Error != nil && status.PID == 0 {
		// The process never started (e.g. the executable is missing).
		return res, status.Error
	}
	return res, nil
}

// terminate sends SIGTERM to pid, waiting grace before escalating to
// SIGKILL (spec §4.E "sends SIGTERM then SIGKILL to the child after a
// fixed grace").
func terminate(pid int, grace time.Duration) {
	_ = unix.Kill(pid, unix.SIGTERM)
	timer := time.NewTimer(grace)
	defer timer.Stop()
	<-timer.C
	_ = unix.Kill(pid, unix.SIGKILL)
}

// ExitCode extracts the process exit code from an error returned by Quick,
// mirroring the teacher's habit of checking *exec.ExitError directly rather
// than re-running the command to get a status struct.
func ExitCode(err error) (int, bool) {
	var exitErr *exec.ExitError
	if errorsAsExitError(err, &exitErr) {
		return exitErr.ExitCode(), true
	}
	return 0, false
}

func errorsAsExitError(err error, target **exec.ExitError) bool {
	for err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			*target = ee
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Quick runs a short-lived command to completion without streaming,
// intended for fast probes like `systemctl is-system-running` or
// `test -e <path>` equivalents used by reboot detection.
func Quick(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(cmd.Env, "LANG=C")
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}
