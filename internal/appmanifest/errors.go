// SPDX-License-Identifier: MPL-2.0

package appmanifest

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrManifestNotFound is returned when no manifest document exists at
	// the requested location.
	ErrManifestNotFound = errors.New("package manifest not found")
	// ErrInvalidDocument is returned when a manifest cannot be parsed or
	// has an unrecognized document structure.
	ErrInvalidDocument = errors.New("invalid manifest document")
	// ErrIdentityMissing is returned when a manifest has no Identity
	// element. Unlike missing attributes, this is not defaulted.
	ErrIdentityMissing = errors.New("manifest identity element missing")
)

// ManifestNotFoundError reports the directory searched and the candidate
// file names that were tried.
type ManifestNotFoundError struct {
	Dir   string
	Tried []string
}

func (e *ManifestNotFoundError) Error() string {
	if len(e.Tried) == 0 {
		return fmt.Sprintf("no package manifest in %s", e.Dir)
	}
	return fmt.Sprintf("no package manifest in %s (tried %s)", e.Dir, strings.Join(e.Tried, ", "))
}

func (e *ManifestNotFoundError) Unwrap() error { return ErrManifestNotFound }

// InvalidDocumentError reports a manifest that could not be interpreted.
type InvalidDocumentError struct {
	Path   string
	Reason string
	Cause  error
}

func (e *InvalidDocumentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid manifest %s: %s: %v", e.Path, e.Reason, e.Cause)
	}
	return fmt.Sprintf("invalid manifest %s: %s", e.Path, e.Reason)
}

func (e *InvalidDocumentError) Unwrap() error { return ErrInvalidDocument }

// IdentityMissingError reports a structurally valid manifest without an
// Identity element.
type IdentityMissingError struct {
	Path string
}

func (e *IdentityMissingError) Error() string {
	return fmt.Sprintf("manifest %s has no Identity element", e.Path)
}

func (e *IdentityMissingError) Unwrap() error { return ErrIdentityMissing }
