// SPDX-License-Identifier: MPL-2.0

package builder

import (
	"errors"
	"fmt"

	"packmule/pkg/types"
)

var (
	// ErrSourceInvalid is wrapped by SourceInvalidError.
	ErrSourceInvalid = errors.New("invalid package source")

	// ErrManifestInvalid is wrapped by ManifestInvalidError.
	ErrManifestInvalid = errors.New("package source manifest invalid")

	// ErrInsufficientDiskSpace is wrapped by DiskSpaceError.
	ErrInsufficientDiskSpace = errors.New("insufficient disk space")

	// ErrSourceCopyFailed is wrapped by SourceCopyError.
	ErrSourceCopyFailed = errors.New("copying restricted source failed")

	// ErrBuildToolFailed is wrapped by BuildToolError.
	ErrBuildToolFailed = errors.New("packaging tool failed")
)

type (
	// SourceInvalidError reports a source tree that does not exist or is
	// not a directory.
	SourceInvalidError struct {
		Path   string
		Reason string
	}

	// ManifestInvalidError reports a source whose manifest cannot be read
	// or fails validation in a way that makes packaging pointless.
	ManifestInvalidError struct {
		Path  string
		Cause error
	}

	// DiskSpaceError reports the free-space gate tripping before any
	// packaging backend was invoked.
	DiskSpaceError struct {
		Volume    string
		Required  uint64
		Available uint64
	}

	// SourceCopyError reports that every copy strategy failed for a
	// restricted source tree.
	SourceCopyError struct {
		Source   string
		Attempts []string
	}

	// BuildToolError reports a packaging backend failure, enriched with a
	// diagnostic derived from the tool's output.
	BuildToolError struct {
		Tool       string
		ExitCode   types.ExitCode
		Diagnostic string
		Cause      error
	}
)

// Error implements the error interface.
func (e *SourceInvalidError) Error() string {
	return fmt.Sprintf("invalid package source %q: %s", e.Path, e.Reason)
}

// Unwrap returns ErrSourceInvalid for errors.Is.
func (e *SourceInvalidError) Unwrap() error { return ErrSourceInvalid }

// Error implements the error interface.
func (e *ManifestInvalidError) Error() string {
	return fmt.Sprintf("source manifest at %q: %v", e.Path, e.Cause)
}

// Unwrap returns the underlying manifest error, so errors.Is matches both
// ErrManifestInvalid and the appmanifest sentinels.
func (e *ManifestInvalidError) Unwrap() error { return e.Cause }

// Is reports whether target is ErrManifestInvalid.
func (e *ManifestInvalidError) Is(target error) bool { return target == ErrManifestInvalid }

// Error implements the error interface.
func (e *DiskSpaceError) Error() string {
	return fmt.Sprintf("insufficient disk space on %s: need %d MB, have %d MB",
		e.Volume, e.Required/(1024*1024), e.Available/(1024*1024))
}

// Unwrap returns ErrInsufficientDiskSpace for errors.Is.
func (e *DiskSpaceError) Unwrap() error { return ErrInsufficientDiskSpace }

// Error implements the error interface.
func (e *SourceCopyError) Error() string {
	return fmt.Sprintf("all copy strategies failed for restricted source %q (%d attempted)", e.Source, len(e.Attempts))
}

// Unwrap returns ErrSourceCopyFailed for errors.Is.
func (e *SourceCopyError) Unwrap() error { return ErrSourceCopyFailed }

// Error implements the error interface.
func (e *BuildToolError) Error() string {
	if e.Diagnostic != "" {
		return fmt.Sprintf("%s exited %s: %s", e.Tool, e.ExitCode, e.Diagnostic)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s failed: %v", e.Tool, e.Cause)
	}
	return fmt.Sprintf("%s exited %s", e.Tool, e.ExitCode)
}

// Unwrap returns ErrBuildToolFailed for errors.Is.
func (e *BuildToolError) Unwrap() error { return ErrBuildToolFailed }
