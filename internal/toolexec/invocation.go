// SPDX-License-Identifier: MPL-2.0

package toolexec

import (
	"time"

	"packmule/pkg/types"
)

// Invocation describes a single tool run. The zero value of every optional
// field means "use the Runner's default". An Invocation is treated as
// immutable once passed to Run.
type Invocation struct {
	// Path is the executable to run: either a bare name resolved via PATH
	// or an explicit path.
	Path string

	// Args are passed to the tool verbatim; no shell is involved.
	Args []string

	// Dir is the working directory. Empty inherits the current process's.
	Dir string

	// Env entries overlay the inherited environment.
	Env map[string]string

	// Timeout bounds the whole run. Zero uses the Runner default.
	Timeout time.Duration

	// BufferCap bounds each captured stream in bytes. Zero uses the Runner
	// default.
	BufferCap int64

	// PassThroughFailure suppresses the synthesized error for non-success
	// exit codes; callers inspect Result.Success themselves. Pre-start
	// failures and timeouts still return errors.
	PassThroughFailure bool
}

// Result is the complete record of one tool run. It is fully populated even
// when Run returns an error alongside it, so callers can always diagnose
// from the captured output.
type Result struct {
	// Tool is the executable base name, used in logs and error messages.
	Tool string

	// Path is the resolved executable path that was started.
	Path string

	// Args echoes the invocation arguments.
	Args []string

	// ExitCode is the tool's exit status; types.Killed when the process was
	// terminated by timeout or cancellation.
	ExitCode types.ExitCode

	// Stdout and Stderr hold the captured streams, each truncated at the
	// buffer cap.
	Stdout string
	Stderr string

	// StdoutTruncated/StderrTruncated report whether the cap dropped bytes.
	StdoutTruncated bool
	StderrTruncated bool

	// StdoutBytes/StderrBytes count everything the tool wrote, including
	// dropped overflow.
	StdoutBytes int64
	StderrBytes int64

	// Duration is wall-clock time from start to process exit.
	Duration time.Duration

	// TimedOut marks runs terminated by the time budget.
	TimedOut bool

	// Success is the exit policy's verdict for ExitCode.
	Success bool
}

// CombinedOutput returns stdout followed by stderr, separated by a newline
// when both are non-empty. Failure-signature matching runs over this.
func (r *Result) CombinedOutput() string {
	switch {
	case r.Stdout == "":
		return r.Stderr
	case r.Stderr == "":
		return r.Stdout
	default:
		out := r.Stdout
		if out[len(out)-1] != '\n' {
			out += "\n"
		}
		return out + r.Stderr
	}
}
