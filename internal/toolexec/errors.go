// SPDX-License-Identifier: MPL-2.0

package toolexec

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"packmule/pkg/types"
)

// Sentinel errors for programmatic detection with errors.Is.
var (
	// ErrExecutableNotFound is wrapped by ExecutableNotFoundError.
	ErrExecutableNotFound = errors.New("executable not found")

	// ErrWorkingDirNotFound is wrapped by WorkingDirNotFoundError.
	ErrWorkingDirNotFound = errors.New("working directory not found")

	// ErrStartFailed is wrapped by StartError.
	ErrStartFailed = errors.New("process start failed")

	// ErrTimeout is wrapped by TimeoutError.
	ErrTimeout = errors.New("tool timed out")

	// ErrToolFailed is wrapped by ToolError.
	ErrToolFailed = errors.New("tool exited with failure status")
)

type (
	// ExecutableNotFoundError is returned before any process is started when
	// the invocation path does not resolve to an existing executable file.
	ExecutableNotFoundError struct {
		Tool  string
		Cause error
	}

	// WorkingDirNotFoundError is returned when the requested working
	// directory does not exist or is not a directory.
	WorkingDirNotFoundError struct {
		Dir string
	}

	// StartError is returned when the OS refuses to start the process.
	StartError struct {
		Tool  string
		Cause error
	}

	// TimeoutError is returned when a tool exceeds its time budget and its
	// process tree is terminated. The accompanying Result still carries
	// whatever output was captured before the kill.
	TimeoutError struct {
		Tool    string
		Timeout time.Duration
		Elapsed time.Duration
	}

	// ToolError is returned when a tool exits with a status its policy does
	// not accept. The excerpts hold bounded tails of the captured streams;
	// the full captures live in the Result returned alongside this error.
	ToolError struct {
		Tool          string
		Path          string
		Args          []string
		ExitCode      types.ExitCode
		StdoutExcerpt string
		StderrExcerpt string
	}
)

// Error implements the error interface.
func (e *ExecutableNotFoundError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("executable %q not found: %v", e.Tool, e.Cause)
	}
	return fmt.Sprintf("executable %q not found", e.Tool)
}

// Unwrap returns ErrExecutableNotFound (and the cause, when present) for errors.Is.
func (e *ExecutableNotFoundError) Unwrap() error { return ErrExecutableNotFound }

// Error implements the error interface.
func (e *WorkingDirNotFoundError) Error() string {
	return fmt.Sprintf("working directory %q not found", e.Dir)
}

// Unwrap returns ErrWorkingDirNotFound for errors.Is.
func (e *WorkingDirNotFoundError) Unwrap() error { return ErrWorkingDirNotFound }

// Error implements the error interface.
func (e *StartError) Error() string {
	return fmt.Sprintf("starting %q: %v", e.Tool, e.Cause)
}

// Unwrap returns ErrStartFailed for errors.Is.
func (e *StartError) Unwrap() error { return ErrStartFailed }

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("tool %q timed out after %s (limit %s); process tree terminated", e.Tool, e.Elapsed.Round(time.Millisecond), e.Timeout)
}

// Unwrap returns ErrTimeout for errors.Is.
func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// CommandLine reconstructs the invocation for error messages.
func (e *ToolError) CommandLine() string {
	if e.Path == "" {
		return ""
	}
	return strings.Join(append([]string{e.Path}, e.Args...), " ")
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	msg := fmt.Sprintf("tool %q exited with code %s", e.Tool, e.ExitCode)
	if cl := e.CommandLine(); cl != "" {
		msg += fmt.Sprintf(" (command: %s)", cl)
	}
	if excerpt := strings.TrimSpace(e.StderrExcerpt); excerpt != "" {
		msg += ": stderr: " + excerpt
	}
	if excerpt := strings.TrimSpace(e.StdoutExcerpt); excerpt != "" {
		msg += ": stdout: " + excerpt
	}
	return msg
}

// Unwrap returns ErrToolFailed for errors.Is.
func (e *ToolError) Unwrap() error { return ErrToolFailed }
