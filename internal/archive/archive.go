// SPDX-License-Identifier: MPL-2.0

// Package archive composes a self-contained restore archive from built
// package artifacts: the packages themselves, any exported signing
// certificates, a machine-readable orchestration manifest, and
// human-readable install instructions, all zipped into one file.
package archive

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Compression selects the archive compression mode.
type Compression string

const (
	// CompressionNormal is the default deflate level.
	CompressionNormal Compression = "normal"
	// CompressionStore disables compression entirely.
	CompressionStore Compression = "store"
	// CompressionFastest trades ratio for speed.
	CompressionFastest Compression = "fastest"
	// CompressionMaximum trades speed for ratio.
	CompressionMaximum Compression = "maximum"
)

// ParseCompression maps a user-supplied mode name to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch Compression(strings.ToLower(strings.TrimSpace(s))) {
	case "", CompressionNormal:
		return CompressionNormal, nil
	case CompressionStore:
		return CompressionStore, nil
	case CompressionFastest:
		return CompressionFastest, nil
	case CompressionMaximum:
		return CompressionMaximum, nil
	}
	return "", fmt.Errorf("unknown compression mode %q (expected store, fastest, normal or maximum)", s)
}

// packageExtensions are the artifact kinds staged under Packages/.
var packageExtensions = map[string]bool{
	".msix":       true,
	".appx":       true,
	".msixbundle": true,
	".appxbundle": true,
}

// certificateExtensions are the files staged under Certificates/.
var certificateExtensions = map[string]bool{
	".cer": true,
	".crt": true,
	".pem": true,
}

var (
	// ErrNoPackages is wrapped by NoPackagesError.
	ErrNoPackages = errors.New("no package artifacts to archive")

	// ErrComposeFailed wraps staging and output failures that are not
	// otherwise classified.
	ErrComposeFailed = errors.New("archive composition failed")
)

// NoPackagesError reports a source directory holding no package artifacts.
type NoPackagesError struct {
	Dir string
}

// Error implements the error interface.
func (e *NoPackagesError) Error() string {
	return fmt.Sprintf("no package artifacts (.msix, .appx, .msixbundle, .appxbundle) found under %q", e.Dir)
}

// Unwrap returns ErrNoPackages for errors.Is.
func (e *NoPackagesError) Unwrap() error { return ErrNoPackages }

type (
	// Settings carries the config-driven knobs.
	Settings struct {
		// StagingRoot overrides where the staging tree is created; empty
		// uses the system temp directory.
		StagingRoot string
		// Compression is the default mode when an input does not set one.
		Compression Compression
	}

	// Composer builds restore archives. Safe for sequential reuse.
	Composer struct {
		Settings Settings
		// Log receives composition diagnostics. Nil uses slog.Default().
		Log *slog.Logger
	}
)

// NewComposer wires a Composer with default settings.
func NewComposer() *Composer {
	return &Composer{Settings: Settings{Compression: CompressionNormal}}
}

func (c *Composer) logger() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}
