// SPDX-License-Identifier: MPL-2.0

package fspath

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"packmule/pkg/platform"
	"packmule/pkg/types"
)

// Sentinel errors for path-safety violations.
var (
	// ErrUnsafePath is the sentinel wrapped by UnsafePathError.
	ErrUnsafePath = errors.New("unsafe path")

	// ErrPathEscape is the sentinel wrapped by PathEscapeError.
	ErrPathEscape = errors.New("path escapes containment root")
)

type (
	// UnsafePathError describes a path that failed a safety check.
	UnsafePathError struct {
		Path   types.FilesystemPath
		Reason string
	}

	// PathEscapeError describes a candidate path that resolves outside its
	// containment root (the classic zip-slip shape).
	PathEscapeError struct {
		Root      types.FilesystemPath
		Candidate types.FilesystemPath
	}
)

// Error implements the error interface.
func (e *UnsafePathError) Error() string {
	return fmt.Sprintf("unsafe path %q: %s", e.Path, e.Reason)
}

// Unwrap returns ErrUnsafePath for errors.Is() compatibility.
func (e *UnsafePathError) Unwrap() error { return ErrUnsafePath }

// Error implements the error interface.
func (e *PathEscapeError) Error() string {
	return fmt.Sprintf("path %q escapes containment root %q", e.Candidate, e.Root)
}

// Unwrap returns ErrPathEscape for errors.Is() compatibility.
func (e *PathEscapeError) Unwrap() error { return ErrPathEscape }

// maxSegmentLen is the longest single path segment accepted. NTFS and most
// Unix filesystems cap components at 255 bytes.
const maxSegmentLen = 255

// CheckSafe validates a relative path that is about to become an archive
// entry or a staging destination. It rejects blank paths, NUL bytes, parent
// traversal segments, Windows-reserved segment names, and over-long
// segments. All findings are returned, not just the first.
func CheckSafe(p types.FilesystemPath) []error {
	if valid, errs := p.IsValid(); !valid {
		return errs
	}

	var errs []error
	normalized := filepath.ToSlash(string(p))
	for _, segment := range strings.Split(normalized, "/") {
		switch {
		case segment == "..":
			errs = append(errs, &UnsafePathError{Path: p, Reason: "contains parent traversal segment"})
		case platform.IsWindowsReservedName(segment):
			errs = append(errs, &UnsafePathError{Path: p, Reason: fmt.Sprintf("segment %q is a reserved device name", segment)})
		case len(segment) > maxSegmentLen:
			errs = append(errs, &UnsafePathError{Path: p, Reason: fmt.Sprintf("segment exceeds %d bytes", maxSegmentLen)})
		}
	}
	return errs
}

// EnsureWithin verifies that candidate stays inside root after resolution.
// Both paths are cleaned before comparison; candidate may be absolute or
// relative to root.
func EnsureWithin(root, candidate types.FilesystemPath) error {
	base := filepath.Clean(string(root))
	target := string(candidate)
	if !filepath.IsAbs(target) {
		target = filepath.Join(base, target)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(base, target)
	if err != nil {
		return &PathEscapeError{Root: root, Candidate: candidate}
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return &PathEscapeError{Root: root, Candidate: candidate}
	}
	return nil
}
