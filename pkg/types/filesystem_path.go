// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidFilesystemPath is the sentinel error wrapped by InvalidFilesystemPathError.
var ErrInvalidFilesystemPath = errors.New("invalid filesystem path")

type (
	// FilesystemPath represents an absolute or relative filesystem path.
	// A valid path must be non-empty, not whitespace-only, and free of NUL
	// bytes (paths travel into archive entries and external tool argv, where
	// an embedded NUL silently truncates).
	// The zero value ("") is invalid: a path must always point somewhere.
	FilesystemPath string

	// InvalidFilesystemPathError is returned when a FilesystemPath value is
	// empty, whitespace-only, or contains a NUL byte.
	InvalidFilesystemPathError struct {
		Value  FilesystemPath
		Reason string
	}
)

// String returns the string representation of the FilesystemPath.
func (p FilesystemPath) String() string { return string(p) }

// IsBlank reports whether the path is empty or whitespace-only.
func (p FilesystemPath) IsBlank() bool {
	return strings.TrimSpace(string(p)) == ""
}

// IsValid returns whether the FilesystemPath is valid.
func (p FilesystemPath) IsValid() (bool, []error) {
	var errs []error
	if p.IsBlank() {
		errs = append(errs, &InvalidFilesystemPathError{Value: p, Reason: "must be non-empty"})
	}
	if strings.ContainsRune(string(p), 0) {
		errs = append(errs, &InvalidFilesystemPathError{Value: p, Reason: "must not contain NUL bytes"})
	}
	return len(errs) == 0, errs
}

// Error implements the error interface for InvalidFilesystemPathError.
func (e *InvalidFilesystemPathError) Error() string {
	return fmt.Sprintf("invalid filesystem path %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidFilesystemPath for errors.Is() compatibility.
func (e *InvalidFilesystemPathError) Unwrap() error { return ErrInvalidFilesystemPath }
