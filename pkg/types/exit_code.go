// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidExitCode is the sentinel error wrapped by InvalidExitCodeError.
var ErrInvalidExitCode = errors.New("invalid exit code")

type (
	// ExitCode represents a process exit status code. Exit codes are in the
	// range 0-255 on POSIX systems; Windows tools stay within that range in
	// practice. The value -1 is the conventional marker for a process that
	// was killed before exiting and is accepted as valid.
	ExitCode int

	// InvalidExitCodeError is returned when an ExitCode is outside the
	// valid range.
	InvalidExitCodeError struct {
		Value ExitCode
	}
)

// Killed is the conventional exit code recorded for a process that was
// terminated before it could exit on its own.
const Killed ExitCode = -1

// Error implements the error interface.
func (e *InvalidExitCodeError) Error() string {
	return fmt.Sprintf("invalid exit code %d (must be -1 or in range 0-255)", e.Value)
}

// Unwrap returns ErrInvalidExitCode so callers can use errors.Is for programmatic detection.
func (e *InvalidExitCodeError) Unwrap() error { return ErrInvalidExitCode }

// Validate returns an error if the ExitCode is outside the valid range.
func (c ExitCode) Validate() error {
	if c != Killed && (c < 0 || c > 255) {
		return &InvalidExitCodeError{Value: c}
	}
	return nil
}

// IsValid returns whether the ExitCode is valid.
func (c ExitCode) IsValid() (bool, []error) {
	if err := c.Validate(); err != nil {
		return false, []error{err}
	}
	return true, nil
}

// IsSuccess returns true if the exit code indicates successful execution
// under the default zero-is-success convention. Tools with wider success
// ranges are handled by per-tool exit policies, not here.
func (c ExitCode) IsSuccess() bool { return c == 0 }

// IsKilled reports whether the code marks a process that was terminated.
func (c ExitCode) IsKilled() bool { return c == Killed }

// String returns the decimal string representation of the ExitCode.
func (c ExitCode) String() string { return strconv.Itoa(int(c)) }
