// SPDX-License-Identifier: MPL-2.0

package depend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"packmule/internal/appmanifest"
	"packmule/internal/inventory"
	"packmule/pkg/types"
)

// DefaultMaxDepth bounds the transitive walk when Options leaves it zero.
const DefaultMaxDepth = 3

// frameworkPrefixes are the well-known shared framework package families.
// Packages depend on these implicitly; manifests rarely declare them.
var frameworkPrefixes = []string{
	"Microsoft.VCLibs",
	"Microsoft.NET.Native.Framework",
	"Microsoft.NET.Native.Runtime",
	"Microsoft.UI.Xaml",
	"Microsoft.WindowsAppRuntime",
	"Microsoft.Services.Store.Engagement",
}

// Options tunes one resolution pass.
type Options struct {
	// IncludeOptional keeps optional declarations and enables the
	// framework inventory scan.
	IncludeOptional bool
	// SkipFrameworks suppresses the framework inventory scan even when
	// IncludeOptional is set; declared dependencies are unaffected.
	SkipFrameworks bool
	// Recursive walks installed dependencies' own manifests.
	Recursive bool
	// MaxDepth bounds the recursive walk; zero uses DefaultMaxDepth.
	MaxDepth int
}

// Resolver builds dependency Results. Safe for concurrent use as long as
// the inventory Provider is.
type Resolver struct {
	// Inventory answers installed/version/location queries. Required.
	Inventory inventory.Provider
	// Reader parses package manifests. Nil gets a dependency-extracting
	// default.
	Reader *appmanifest.Reader
	// Log receives resolution diagnostics. Nil uses slog.Default().
	Log *slog.Logger
}

// NewResolver wires a resolver over the given inventory provider.
func NewResolver(inv inventory.Provider) *Resolver {
	return &Resolver{
		Inventory: inv,
		Reader:    appmanifest.NewReader(appmanifest.Options{IncludeDependencies: true}),
	}
}

func (r *Resolver) logger() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}

func (r *Resolver) reader() *appmanifest.Reader {
	if r.Reader != nil {
		return r.Reader
	}
	return appmanifest.NewReader(appmanifest.Options{IncludeDependencies: true})
}

// walk carries the state of one resolution pass across recursion levels.
type walk struct {
	result  *Result
	visited map[string]struct{} // lowercase dependency names seen anywhere in the pass
	opts    Options
}

// Resolve reads the manifest at packagePath and produces the flattened
// dependency set. Manifest absence and identity errors propagate
// (errors.Is-matchable against the appmanifest sentinels); inventory
// failures degrade to warnings.
func (r *Resolver) Resolve(ctx context.Context, packagePath string, opts Options) (*Result, error) {
	rec, err := r.reader().ReadDir(packagePath)
	if err != nil {
		return nil, err
	}

	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}

	w := &walk{
		result:  &Result{Package: rec.Identity.Name},
		visited: map[string]struct{}{strings.ToLower(rec.Identity.Name): {}},
		opts:    opts,
	}

	r.collect(ctx, w, rec, 0)

	if opts.IncludeOptional && !opts.SkipFrameworks {
		r.scanFrameworks(ctx, w)
	}

	r.logger().Debug("dependencies resolved",
		"package", rec.Identity.Name,
		"total", w.result.Total(),
		"installed", w.result.InstalledCount(),
		"missing", w.result.MissingCount(),
		"frameworks", w.result.FrameworkCount(),
		"warnings", len(w.result.Warnings))
	return w.result, nil
}

// collect folds one manifest's declarations into the walk, recursing into
// installed dependencies while depth allows.
func (r *Resolver) collect(ctx context.Context, w *walk, rec *appmanifest.Record, depth int) {
	for _, dep := range rec.Dependencies {
		if dep.Optional && !w.opts.IncludeOptional {
			continue
		}

		key := strings.ToLower(dep.Name)
		if _, seen := w.visited[key]; seen {
			r.noteDuplicate(w, dep)
			continue
		}
		w.visited[key] = struct{}{}

		entry := Entry{
			Name:       dep.Name,
			Publisher:  dep.Publisher,
			MinVersion: dep.MinVersion,
			Kind:       KindDeclared,
			Optional:   dep.Optional,
		}
		r.fillFromInventory(ctx, w, &entry)
		w.result.Entries = append(w.result.Entries, entry)

		if w.opts.Recursive && depth < w.opts.MaxDepth && entry.Installed && entry.InstallLocation != "" {
			r.recurse(ctx, w, entry, depth)
		}
	}
}

// fillFromInventory populates the installed state of one entry. A lookup
// failure is degraded data, never fatal: the entry stays marked missing
// and the failure becomes a warning.
func (r *Resolver) fillFromInventory(ctx context.Context, w *walk, entry *Entry) {
	installed, err := r.Inventory.Lookup(ctx, entry.Name)
	switch {
	case err == nil:
		entry.Installed = true
		entry.InstalledVersion = installed.Identity.Version
		entry.InstallLocation = installed.InstallLocation
		entry.Architecture = installed.Identity.Architecture
		if entry.Publisher == "" {
			entry.Publisher = installed.Identity.Publisher
		}
	case errors.Is(err, inventory.ErrNotInstalled):
		// Plain missing dependency; the counts report it.
	default:
		w.result.Warnings = append(w.result.Warnings,
			fmt.Sprintf("inventory lookup for %s failed: %v", entry.Name, err))
		r.logger().Warn("inventory lookup failed, marking dependency missing", "dependency", entry.Name, "error", err)
	}
	if entry.Architecture == "" {
		entry.Architecture = types.ArchNeutral
	}
}

// recurse resolves an installed dependency's own manifest into the same
// walk. Failure to read a sub-manifest degrades to a warning; the walk
// keeps whatever it already has.
func (r *Resolver) recurse(ctx context.Context, w *walk, entry Entry, depth int) {
	subRec, err := r.reader().ReadDir(entry.InstallLocation)
	if err != nil {
		w.result.Warnings = append(w.result.Warnings,
			fmt.Sprintf("skipping transitive dependencies of %s: %v", entry.Name, err))
		r.logger().Debug("transitive manifest unreadable", "dependency", entry.Name, "location", entry.InstallLocation, "error", err)
		return
	}
	r.collect(ctx, w, subRec, depth+1)
}

// noteDuplicate handles multi-path convergence on an already-visited name.
// Identical declarations collapse silently; a different minimum version is
// worth a warning because the flattened result keeps only the first.
func (r *Resolver) noteDuplicate(w *walk, dep appmanifest.Dependency) {
	for _, existing := range w.result.Entries {
		if !strings.EqualFold(existing.Name, dep.Name) {
			continue
		}
		if existing.MinVersion != dep.MinVersion && !dep.MinVersion.IsZero() {
			w.result.Warnings = append(w.result.Warnings,
				fmt.Sprintf("dependency %s declared with both %s and %s; keeping %s",
					dep.Name, existing.MinVersion, dep.MinVersion, existing.MinVersion))
		}
		return
	}
}

// scanFrameworks searches the inventory for the well-known framework
// families and adds any match not already in the result as an optional
// framework entry. Scan failures are warnings; frameworks are best-effort.
func (r *Resolver) scanFrameworks(ctx context.Context, w *walk) {
	for _, prefix := range frameworkPrefixes {
		matches, err := r.Inventory.Search(ctx, prefix)
		if err != nil {
			w.result.Warnings = append(w.result.Warnings,
				fmt.Sprintf("framework scan for %s failed: %v", prefix, err))
			if errors.Is(err, inventory.ErrUnavailable) {
				return // backend is down; further prefixes would fail the same way
			}
			continue
		}
		for _, match := range matches {
			key := strings.ToLower(match.Identity.Name)
			if _, seen := w.visited[key]; seen {
				continue
			}
			w.visited[key] = struct{}{}
			w.result.Entries = append(w.result.Entries, Entry{
				Name:             match.Identity.Name,
				Publisher:        match.Identity.Publisher,
				Architecture:     match.Identity.Architecture,
				Kind:             KindFramework,
				Optional:         true,
				Installed:        true,
				InstalledVersion: match.Identity.Version,
				InstallLocation:  match.InstallLocation,
			})
		}
	}
}
