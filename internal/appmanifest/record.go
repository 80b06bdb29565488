// SPDX-License-Identifier: MPL-2.0

package appmanifest

import "packmule/pkg/version"

type (
	// Dependency is a package dependency declared in a manifest.
	Dependency struct {
		// Name is the dependency package name.
		Name string
		// Publisher is the dependency publisher distinguished name; may be
		// empty for framework dependencies resolved by name.
		Publisher string
		// MinVersion is the minimum acceptable dependency version; zero
		// when the manifest does not constrain it.
		MinVersion version.QuadVersion
		// Optional marks dependencies the package can run without.
		Optional bool
	}

	// Application is an app entry declared under Applications.
	Application struct {
		// ID is the application identifier within the package.
		ID string
		// Executable is the relative path of the app's executable.
		Executable string
		// EntryPoint is the activation entry point class, if declared.
		EntryPoint string
	}

	// Record is everything read from one manifest document. Identity is
	// always populated (with sentinel defaults for missing attributes);
	// the slices are filled only when the corresponding Options flag asked
	// for them.
	Record struct {
		// Path is where the manifest was read from; empty for Parse calls
		// without a path.
		Path string
		// IsBundle is true for Bundle documents, false for Package.
		IsBundle bool
		// ModernSchema is true for the windows10 manifest schema family,
		// false for the 2010 schema family.
		ModernSchema bool
		// Identity is the declared package identity.
		Identity Identity
		// DisplayName is the human-readable package name from Properties.
		DisplayName string
		// PublisherDisplayName is the human-readable publisher name.
		PublisherDisplayName string
		// Description is the package description, if declared.
		Description string
		// Logo is the relative path of the store logo asset, if declared.
		Logo string
		// MinOSVersion is the lowest MinVersion across declared target
		// device families; zero when none is declared.
		MinOSVersion version.QuadVersion
		// Dependencies holds declared package dependencies.
		Dependencies []Dependency
		// Capabilities holds declared capability names, deduplicated in
		// document order.
		Capabilities []string
		// Applications holds declared app entries.
		Applications []Application
	}
)
