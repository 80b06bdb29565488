// SPDX-License-Identifier: MPL-2.0

// Package hookrun executes user-declared lifecycle hook scripts around
// build and compose operations. Scripts run in an in-process POSIX shell
// interpreter, so hooks behave identically on every platform and need no
// system shell. A hook failure aborts the surrounding operation; hooks
// are the user saying "do not proceed unless this passes".
package hookrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"packmule/internal/toolexec"
)

// DefaultTimeout bounds one hook script.
const DefaultTimeout = 2 * time.Minute

var (
	// ErrHookFailed is wrapped by HookError.
	ErrHookFailed = errors.New("hook script failed")

	// ErrRequirementNotMet is wrapped by RequirementError.
	ErrRequirementNotMet = errors.New("hook tool requirement not met")
)

type (
	// Stage names the lifecycle point a hook runs at.
	Stage string

	// Requirement pins an external tool to a semver constraint, verified
	// before any hook runs.
	Requirement struct {
		// Tool is the executable checked with "<tool> --version".
		Tool string
		// Constraint is a semver range, e.g. ">= 10.0.0".
		Constraint string
	}

	// HookError reports a hook script that failed to parse or exited
	// non-zero.
	HookError struct {
		Stage    Stage
		Script   string
		ExitCode int
		Output   string
		Cause    error
	}

	// RequirementError reports a tool that is absent or outside its
	// declared version constraint.
	RequirementError struct {
		Tool       string
		Constraint string
		Version    string
		Cause      error
	}

	// Runner executes hook scripts and verifies tool requirements.
	Runner struct {
		// Exec captures "--version" probes for requirement checks.
		Exec *toolexec.Runner
		// Timeout bounds each script; zero uses DefaultTimeout.
		Timeout time.Duration
		// Log receives hook diagnostics. Nil uses slog.Default().
		Log *slog.Logger
	}
)

// Hook lifecycle stages.
const (
	StagePreBuild    Stage = "pre_build"
	StagePostBuild   Stage = "post_build"
	StagePreCompose  Stage = "pre_compose"
	StagePostCompose Stage = "post_compose"
)

// Error implements the error interface.
func (e *HookError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("%s hook %s: %v", e.Stage, e.Script, e.Cause)
	case e.Output != "":
		return fmt.Sprintf("%s hook %s exited %d: %s", e.Stage, e.Script, e.ExitCode, strings.TrimSpace(e.Output))
	default:
		return fmt.Sprintf("%s hook %s exited %d", e.Stage, e.Script, e.ExitCode)
	}
}

// Unwrap returns ErrHookFailed for errors.Is.
func (e *HookError) Unwrap() error { return ErrHookFailed }

// Error implements the error interface.
func (e *RequirementError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("hook requirement %s %s: %v", e.Tool, e.Constraint, e.Cause)
	}
	return fmt.Sprintf("hook requirement %s %s not satisfied by installed version %s", e.Tool, e.Constraint, e.Version)
}

// Unwrap returns ErrRequirementNotMet for errors.Is.
func (e *RequirementError) Unwrap() error { return ErrRequirementNotMet }

// NewRunner wires a hook runner over the given tool executor.
func NewRunner(exec *toolexec.Runner) *Runner {
	return &Runner{Exec: exec, Timeout: DefaultTimeout}
}

func (r *Runner) logger() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}

// CheckRequirements verifies every tool constraint. The first failure is
// returned; no hooks should run after it.
func (r *Runner) CheckRequirements(ctx context.Context, reqs []Requirement) error {
	for _, req := range reqs {
		constraint, err := semver.NewConstraint(req.Constraint)
		if err != nil {
			return &RequirementError{Tool: req.Tool, Constraint: req.Constraint,
				Cause: fmt.Errorf("invalid constraint: %w", err)}
		}

		ver, err := r.probeVersion(ctx, req.Tool)
		if err != nil {
			return &RequirementError{Tool: req.Tool, Constraint: req.Constraint, Cause: err}
		}

		if !constraint.Check(ver) {
			return &RequirementError{Tool: req.Tool, Constraint: req.Constraint, Version: ver.String()}
		}
		r.logger().Debug("hook requirement satisfied", "tool", req.Tool, "constraint", req.Constraint, "version", ver)
	}
	return nil
}

// probeVersion captures "<tool> --version" and extracts the first
// semver-ish token from its output.
func (r *Runner) probeVersion(ctx context.Context, tool string) (*semver.Version, error) {
	res, err := r.Exec.Run(ctx, toolexec.Invocation{
		Path:    tool,
		Args:    []string{"--version"},
		Timeout: 15 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("probing version: %w", err)
	}

	out := res.CombinedOutput()
	for _, field := range strings.Fields(out) {
		candidate := strings.TrimPrefix(strings.Trim(field, ",;()"), "v")
		if ver, err := semver.NewVersion(candidate); err == nil {
			return ver, nil
		}
	}
	return nil, fmt.Errorf("no version found in %q output", tool)
}

// RunScript executes the hook script at path for the given stage. The env
// map is overlaid on the inherited environment; operations pass context
// like PACKMULE_SOURCE and PACKMULE_OUTPUT through it. Script stdout and
// stderr are captured and surface only in errors and debug logs.
func (r *Runner) RunScript(ctx context.Context, stage Stage, path string, env map[string]string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &HookError{Stage: stage, Script: path, Cause: fmt.Errorf("reading script: %w", err)}
	}

	prog, err := syntax.NewParser().Parse(bytes.NewReader(data), path)
	if err != nil {
		return &HookError{Stage: stage, Script: path, Cause: fmt.Errorf("parsing script: %w", err)}
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	runner, err := interp.New(
		interp.Env(expand.ListEnviron(overlayEnviron(env)...)),
		interp.StdIO(nil, &stdout, &stderr),
	)
	if err != nil {
		return &HookError{Stage: stage, Script: path, Cause: fmt.Errorf("creating interpreter: %w", err)}
	}

	start := time.Now()
	err = runner.Run(runCtx, prog)
	r.logger().Debug("hook finished", "stage", stage, "script", path,
		"duration", time.Since(start).Round(time.Millisecond), "error", err)

	if err != nil {
		var exitStatus interp.ExitStatus
		if errors.As(err, &exitStatus) {
			return &HookError{Stage: stage, Script: path,
				ExitCode: int(exitStatus), Output: combinedOutput(stdout, stderr)}
		}
		return &HookError{Stage: stage, Script: path, Cause: err}
	}
	return nil
}

// Validate parses the script without running it, for configuration checks.
func Validate(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading hook script %q: %w", path, err)
	}
	if _, err := syntax.NewParser().Parse(bytes.NewReader(data), path); err != nil {
		return fmt.Errorf("hook script %q: %w", path, err)
	}
	return nil
}

func overlayEnviron(overlay map[string]string) []string {
	env := os.Environ()
	for k, v := range overlay {
		env = append(env, k+"="+v)
	}
	return env
}

func combinedOutput(stdout, stderr bytes.Buffer) string {
	if stderr.Len() > 0 {
		return stderr.String()
	}
	return stdout.String()
}
