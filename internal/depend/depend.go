// SPDX-License-Identifier: MPL-2.0

// Package depend resolves the dependency set of a package from its
// manifest declarations plus the live installation inventory.
//
// The result is a flattened, deduplicated list, not a graph: when the same
// dependency is reachable through several paths (a diamond, or a cycle in
// a broken dependency set) it appears once, with the first-seen
// declaration winning. Recursion depth is the primary cycle guard and the
// visited set the secondary one.
package depend

import (
	"packmule/pkg/types"
	"packmule/pkg/version"
)

// Kind classifies how a dependency entered the result.
type Kind string

const (
	// KindDeclared marks dependencies declared in a manifest.
	KindDeclared Kind = "declared"
	// KindFramework marks shared framework packages found by the
	// inventory scan rather than a declaration.
	KindFramework Kind = "framework"
)

type (
	// Entry is one resolved dependency. Entries are never mutated after
	// Resolve returns.
	Entry struct {
		// Name is the dependency package name.
		Name string
		// Publisher is the declared publisher; empty for framework
		// entries whose manifest never named one.
		Publisher string
		// MinVersion is the declared minimum version; zero when the
		// declaration carried none.
		MinVersion version.QuadVersion
		// Architecture is the installed package's architecture when
		// known, neutral otherwise.
		Architecture types.Architecture
		// Kind tells a declared dependency from a framework-scan one.
		Kind Kind
		// Optional marks dependencies the package can run without.
		Optional bool
		// Installed reports whether the inventory knows the package.
		Installed bool
		// InstalledVersion is the inventory-reported version; zero when
		// not installed.
		InstalledVersion version.QuadVersion
		// InstallLocation is the inventory-reported install root; empty
		// when not installed or unreported.
		InstallLocation string
	}

	// Result is the flattened dependency set of one package. Aggregate
	// counts are pure reductions over Entries, computed on demand so they
	// can never disagree with the list.
	Result struct {
		// Package is the identity name of the package that was resolved.
		Package string
		// Entries is the flattened, deduplicated dependency list in
		// first-seen order.
		Entries []Entry
		// Warnings collects degraded-data notes: inventory lookups that
		// failed, sub-resolutions that were skipped, version conflicts
		// between converging declarations.
		Warnings []string
	}
)

// Total returns the number of resolved dependencies.
func (r *Result) Total() int { return len(r.Entries) }

// InstalledCount returns how many entries the inventory reports installed.
func (r *Result) InstalledCount() int {
	n := 0
	for _, e := range r.Entries {
		if e.Installed {
			n++
		}
	}
	return n
}

// MissingCount returns how many entries are not installed. By construction
// InstalledCount()+MissingCount() == Total().
func (r *Result) MissingCount() int { return len(r.Entries) - r.InstalledCount() }

// FrameworkCount returns how many entries came from the framework scan.
func (r *Result) FrameworkCount() int {
	n := 0
	for _, e := range r.Entries {
		if e.Kind == KindFramework {
			n++
		}
	}
	return n
}

// Missing returns the entries the inventory does not report installed.
func (r *Result) Missing() []Entry {
	var missing []Entry
	for _, e := range r.Entries {
		if !e.Installed {
			missing = append(missing, e)
		}
	}
	return missing
}

// Installed returns the entries the inventory reports installed.
func (r *Result) Installed() []Entry {
	var installed []Entry
	for _, e := range r.Entries {
		if e.Installed {
			installed = append(installed, e)
		}
	}
	return installed
}
