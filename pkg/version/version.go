// SPDX-License-Identifier: MPL-2.0

// Package version implements the four-component numeric version format used
// by application package identities (Major.Minor.Build.Revision). This is NOT
// semver: there is no prerelease or build metadata, each component is a
// bounded non-negative integer, and comparison is plain lexicographic over
// the four components.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidVersion is the sentinel error wrapped by ParseError.
var ErrInvalidVersion = errors.New("invalid package version")

type (
	// QuadVersion is a Major.Minor.Build.Revision package version. The zero
	// value renders as "0.0.0.0", which is also the sentinel used for
	// package descriptors that omit a version.
	QuadVersion struct {
		Major    uint16
		Minor    uint16
		Build    uint16
		Revision uint16
	}

	// ParseError is returned when a version string cannot be parsed.
	ParseError struct {
		Input  string
		Reason string
	}
)

// Zero is the sentinel version used when a descriptor carries no version.
var Zero = QuadVersion{}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid package version %q: %s", e.Input, e.Reason)
}

// Unwrap returns ErrInvalidVersion so callers can use errors.Is.
func (e *ParseError) Unwrap() error { return ErrInvalidVersion }

// Parse parses a dotted numeric version with one to four components.
// Missing components are zero-filled, so "1.2" parses as 1.2.0.0.
// Each component must be a decimal integer in the range 0-65535.
func Parse(s string) (QuadVersion, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Zero, &ParseError{Input: s, Reason: "empty string"}
	}

	parts := strings.Split(trimmed, ".")
	if len(parts) > 4 {
		return Zero, &ParseError{Input: s, Reason: fmt.Sprintf("%d components, at most 4 allowed", len(parts))}
	}

	var nums [4]uint16
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 16)
		if err != nil {
			return Zero, &ParseError{Input: s, Reason: fmt.Sprintf("component %d is not a number in 0-65535", i+1)}
		}
		nums[i] = uint16(n)
	}

	return QuadVersion{Major: nums[0], Minor: nums[1], Build: nums[2], Revision: nums[3]}, nil
}

// MustParse parses a version string and panics on failure. Intended for
// literals in tests and defaults.
func MustParse(s string) QuadVersion {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String renders the version in full four-component form.
func (v QuadVersion) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
}

// IsZero reports whether the version is the 0.0.0.0 sentinel.
func (v QuadVersion) IsZero() bool { return v == Zero }

// Compare returns -1, 0, or 1 if v is less than, equal to, or greater
// than other.
func (v QuadVersion) Compare(other QuadVersion) int {
	a := [4]uint16{v.Major, v.Minor, v.Build, v.Revision}
	b := [4]uint16{other.Major, other.Minor, other.Build, other.Revision}
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

// Less reports whether v orders before other.
func (v QuadVersion) Less(other QuadVersion) bool { return v.Compare(other) < 0 }

// MarshalText implements encoding.TextMarshaler.
func (v QuadVersion) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *QuadVersion) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
