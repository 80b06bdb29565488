// SPDX-License-Identifier: MPL-2.0

package toolexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"packmule/pkg/types"
)

// Defaults applied when the corresponding Runner or Invocation field is zero.
const (
	// DefaultTimeout bounds a tool run. Package builds over large trees can
	// legitimately take minutes.
	DefaultTimeout = 5 * time.Minute

	// DefaultBufferCap bounds each captured stream.
	DefaultBufferCap int64 = 10 << 20 // 10 MiB

	// DefaultReaderGrace is how long after process exit the runner waits for
	// the stream readers to drain before force-closing the pipes. A child
	// that leaked its stdout to a still-running grandchild would otherwise
	// hold the readers open forever.
	DefaultReaderGrace = 2 * time.Second

	// DefaultErrorExcerpt bounds the output excerpt embedded in ToolError.
	DefaultErrorExcerpt = 2048
)

// Runner executes external tools. The zero value is usable; fields override
// the package defaults. A single Runner is safe for concurrent use.
type Runner struct {
	// Policies supplies per-tool exit-code policies. Nil means every tool
	// uses the zero-is-success default.
	Policies *PolicyRegistry

	// Timeout is the default time budget for invocations that don't set one.
	Timeout time.Duration

	// BufferCap is the default per-stream capture limit in bytes.
	BufferCap int64

	// ReaderGrace is the post-exit drain allowance per stream.
	ReaderGrace time.Duration

	// ErrorExcerpt is the output excerpt size for synthesized errors.
	ErrorExcerpt int

	// Log receives structured debug records. Nil uses slog.Default().
	Log *slog.Logger
}

// NewRunner returns a Runner with the built-in policy registry and package
// defaults.
func NewRunner() *Runner {
	return &Runner{
		Policies:     NewPolicyRegistry(),
		Timeout:      DefaultTimeout,
		BufferCap:    DefaultBufferCap,
		ReaderGrace:  DefaultReaderGrace,
		ErrorExcerpt: DefaultErrorExcerpt,
	}
}

func (r *Runner) logger() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}

// RunSimple runs a tool with default invocation settings.
func (r *Runner) RunSimple(ctx context.Context, path string, args ...string) (*Result, error) {
	return r.Run(ctx, Invocation{Path: path, Args: args})
}

// Run executes one tool invocation to completion. The returned Result is
// always fully populated when the process started, even if an error is
// returned alongside it; callers that need the output on failure read the
// Result, callers that just propagate read the error.
func (r *Runner) Run(ctx context.Context, inv Invocation) (*Result, error) {
	tool := filepath.Base(inv.Path)

	resolved, err := resolveExecutable(inv.Path)
	if err != nil {
		return nil, err
	}
	if inv.Dir != "" {
		info, statErr := os.Stat(inv.Dir)
		if statErr != nil || !info.IsDir() {
			return nil, &WorkingDirNotFoundError{Dir: inv.Dir}
		}
	}

	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = r.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	bufCap := inv.BufferCap
	if bufCap <= 0 {
		bufCap = r.BufferCap
	}
	if bufCap <= 0 {
		bufCap = DefaultBufferCap
	}

	cmd := exec.Command(resolved, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = mergeEnv(inv.Env)
	setSysProcAttr(cmd)

	// Dedicated pipes per stream. The child writes into the write ends; two
	// goroutines drain the read ends into capped buffers. Draining both
	// streams concurrently is what makes a full-pipe deadlock impossible.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	cmd.Stdin = nil // tools must never wait for input

	start := time.Now()
	if err := cmd.Start(); err != nil {
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
		return nil, &StartError{Tool: tool, Cause: err}
	}
	pid := cmd.Process.Pid

	// The parent's copies of the write ends must close right after start;
	// otherwise the readers would never see EOF.
	stdoutW.Close()
	stderrW.Close()

	r.logger().Debug("starting tool",
		"tool", tool, "path", resolved, "args", inv.Args, "pid", pid,
		"dir", inv.Dir, "timeout", timeout)

	outBuf := newCappedBuffer(bufCap)
	errBuf := newCappedBuffer(bufCap)
	outDone := make(chan struct{})
	errDone := make(chan struct{})
	go func() {
		defer close(outDone)
		_, _ = io.Copy(outBuf, stdoutR)
	}()
	go func() {
		defer close(errDone)
		_, _ = io.Copy(errBuf, stderrR)
	}()

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		waitErr  error
		timedOut bool
		canceled bool
	)
	select {
	case waitErr = <-waitCh:
	case <-runCtx.Done():
		timedOut = errors.Is(runCtx.Err(), context.DeadlineExceeded)
		canceled = !timedOut
		r.logger().Debug("terminating tool process tree", "tool", tool, "pid", pid, "timed_out", timedOut)
		r.killTree(pid, cmd)
		waitErr = <-waitCh // reap; the kill makes this return promptly
	}

	// Bounded drain: a well-behaved tree closed its pipe ends at exit and
	// the readers finish immediately. Stragglers get force-closed.
	grace := r.ReaderGrace
	if grace <= 0 {
		grace = DefaultReaderGrace
	}
	drainReader(outDone, stdoutR, grace)
	drainReader(errDone, stderrR, grace)
	stdoutR.Close()
	stderrR.Close()

	duration := time.Since(start)

	code := types.ExitCode(0)
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = types.ExitCode(exitErr.ExitCode())
		} else if !timedOut && !canceled {
			// Wait failed for an infrastructure reason, not a tool status.
			return nil, &StartError{Tool: tool, Cause: waitErr}
		} else {
			code = types.Killed
		}
	}
	if timedOut || canceled {
		code = types.Killed
	}

	res := &Result{
		Tool:            tool,
		Path:            resolved,
		Args:            inv.Args,
		ExitCode:        code,
		Stdout:          outBuf.String(),
		Stderr:          errBuf.String(),
		StdoutTruncated: outBuf.Truncated(),
		StderrTruncated: errBuf.Truncated(),
		StdoutBytes:     outBuf.Total(),
		StderrBytes:     errBuf.Total(),
		Duration:        duration,
		TimedOut:        timedOut,
	}
	res.Success = !timedOut && !canceled && r.policyFor(tool).Allows(code)

	r.logger().Debug("tool finished",
		"tool", tool, "pid", pid, "exit_code", code.String(), "success", res.Success,
		"duration", duration.Round(time.Millisecond),
		"stdout_bytes", res.StdoutBytes, "stderr_bytes", res.StderrBytes,
		"stdout_truncated", res.StdoutTruncated, "stderr_truncated", res.StderrTruncated)

	switch {
	case timedOut:
		return res, &TimeoutError{Tool: tool, Timeout: timeout, Elapsed: duration}
	case canceled:
		return res, fmt.Errorf("tool %q canceled: %w", tool, ctx.Err())
	case !res.Success && !inv.PassThroughFailure:
		excerptLen := r.ErrorExcerpt
		if excerptLen <= 0 {
			excerptLen = DefaultErrorExcerpt
		}
		return res, &ToolError{
			Tool:          tool,
			Path:          res.Path,
			Args:          res.Args,
			ExitCode:      code,
			StdoutExcerpt: streamExcerpt(res.Stdout, excerptLen),
			StderrExcerpt: streamExcerpt(res.Stderr, excerptLen),
		}
	default:
		return res, nil
	}
}

func (r *Runner) policyFor(tool string) ExitPolicy {
	if r.Policies == nil {
		return ExitPolicy{}
	}
	return r.Policies.For(tool)
}

// resolveExecutable turns the invocation path into something the OS can
// start: bare names go through PATH, explicit paths must stat as a file.
func resolveExecutable(path string) (string, error) {
	if path == "" {
		return "", &ExecutableNotFoundError{Tool: path}
	}
	if !strings.ContainsRune(path, '/') && !strings.ContainsRune(path, filepath.Separator) {
		resolved, err := exec.LookPath(path)
		if err != nil {
			return "", &ExecutableNotFoundError{Tool: path, Cause: err}
		}
		return resolved, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", &ExecutableNotFoundError{Tool: path, Cause: err}
	}
	if info.IsDir() {
		return "", &ExecutableNotFoundError{Tool: path, Cause: fmt.Errorf("%q is a directory", path)}
	}
	return path, nil
}

// drainReader waits up to grace for a stream reader to hit EOF, then
// force-closes the read end to unblock it and waits for it to finish.
func drainReader(done chan struct{}, rd *os.File, grace time.Duration) {
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		rd.Close()
		<-done
	}
}

// mergeEnv overlays entries onto the inherited environment. Later entries
// win, so overlays override inherited values of the same name.
func mergeEnv(overlay map[string]string) []string {
	if len(overlay) == 0 {
		return nil // nil keeps exec's inherit-parent default
	}
	env := os.Environ()
	for k, v := range overlay {
		env = append(env, k+"="+v)
	}
	return env
}

// streamExcerpt returns a bounded tail of one captured stream for error
// messages.
func streamExcerpt(src string, limit int) string {
	src = strings.TrimSpace(src)
	if len(src) <= limit {
		return src
	}
	return "..." + src[len(src)-limit:]
}
