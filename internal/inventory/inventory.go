// SPDX-License-Identifier: MPL-2.0

// Package inventory answers "what is installed on this machine" for the
// dependency resolver and the backup pipeline. The real answer comes from
// the platform package deployment service, reached through PowerShell's
// Get-AppxPackage; everywhere that service is absent a StaticProvider
// stands in.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"packmule/internal/appmanifest"
)

var (
	// ErrNotInstalled is returned by Lookup when no package with the
	// requested name is installed.
	ErrNotInstalled = errors.New("package not installed")

	// ErrUnavailable is wrapped by UnavailableError when the inventory
	// backend itself cannot be reached.
	ErrUnavailable = errors.New("package inventory unavailable")
)

type (
	// Installed describes one installed package as reported by the
	// inventory backend.
	Installed struct {
		// Identity is the installed package identity.
		Identity appmanifest.Identity
		// InstallLocation is the package's on-disk root; may be empty for
		// packages the backend reports without a location.
		InstallLocation string
		// SignatureKind is the backend's signature classification
		// (Store, Enterprise, Developer, None); empty when unreported.
		SignatureKind string
		// IsFramework marks shared framework packages.
		IsFramework bool
	}

	// Provider is the live package inventory consumed by the resolver and
	// the backup pipeline. Lookup failure for a missing package is
	// ErrNotInstalled; backend unavailability is an UnavailableError.
	Provider interface {
		// Lookup returns the installed package with the exact name.
		Lookup(ctx context.Context, name string) (*Installed, error)
		// Search returns installed packages whose name starts with prefix.
		Search(ctx context.Context, prefix string) ([]Installed, error)
		// List returns every installed package.
		List(ctx context.Context) ([]Installed, error)
	}

	// UnavailableError reports that the inventory backend cannot serve
	// queries at all, as opposed to a particular package being absent.
	UnavailableError struct {
		Reason string
		Cause  error
	}
)

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("package inventory unavailable: %s: %v", e.Reason, e.Cause)
	}
	return "package inventory unavailable: " + e.Reason
}

// Unwrap returns ErrUnavailable for errors.Is.
func (e *UnavailableError) Unwrap() error { return ErrUnavailable }

// FamilyName returns the derived family name of the installed package.
func (p *Installed) FamilyName() string { return p.Identity.FamilyName() }

// FullName returns the derived full name of the installed package.
func (p *Installed) FullName() string { return p.Identity.FullName() }
