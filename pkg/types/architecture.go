// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidArchitecture is the sentinel error wrapped by InvalidArchitectureError.
var ErrInvalidArchitecture = errors.New("invalid architecture")

type (
	// Architecture is a processor architecture as it appears in package
	// identities. Values are the platform's canonical lowercase names.
	Architecture string

	// InvalidArchitectureError is returned when an Architecture value is not
	// one of the recognized names.
	InvalidArchitectureError struct {
		Value Architecture
	}
)

// Recognized architecture values.
const (
	ArchX64     Architecture = "x64"
	ArchX86     Architecture = "x86"
	ArchArm     Architecture = "arm"
	ArchArm64   Architecture = "arm64"
	ArchNeutral Architecture = "neutral"
)

// Error implements the error interface.
func (e *InvalidArchitectureError) Error() string {
	return fmt.Sprintf("invalid architecture %q (must be one of x64, x86, arm, arm64, neutral)", e.Value)
}

// Unwrap returns ErrInvalidArchitecture for errors.Is() compatibility.
func (e *InvalidArchitectureError) Unwrap() error { return ErrInvalidArchitecture }

// ParseArchitecture normalizes an architecture string from a package
// descriptor or inventory record. Matching is case-insensitive and accepts
// the common toolchain aliases (amd64, x86_64, aarch64, i386). An empty
// input maps to neutral, the descriptor default.
func ParseArchitecture(s string) (Architecture, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ArchNeutral, nil
	case "x64", "amd64", "x86_64":
		return ArchX64, nil
	case "x86", "i386", "386":
		return ArchX86, nil
	case "arm":
		return ArchArm, nil
	case "arm64", "aarch64":
		return ArchArm64, nil
	case "neutral", "any":
		return ArchNeutral, nil
	default:
		return "", &InvalidArchitectureError{Value: Architecture(s)}
	}
}

// String returns the canonical string form.
func (a Architecture) String() string { return string(a) }

// IsValid returns whether the Architecture is one of the recognized values.
func (a Architecture) IsValid() (bool, []error) {
	switch a {
	case ArchX64, ArchX86, ArchArm, ArchArm64, ArchNeutral:
		return true, nil
	default:
		return false, []error{&InvalidArchitectureError{Value: a}}
	}
}
