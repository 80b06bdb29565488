// SPDX-License-Identifier: MPL-2.0

// Package toolchain locates the external packaging tools (makeappx,
// signtool, robocopy, powershell) that other components invoke. Lookups
// walk a fixed chain: explicit config override, cached result, PATH, and
// finally the well-known Windows SDK install roots. A Toolchain is an
// explicit value handed to its callers; there is no process-wide registry.
package toolchain

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"packmule/pkg/version"
)

// ErrToolNotFound reports that a required external tool could not be
// located through any search tier.
var ErrToolNotFound = errors.New("tool not found")

// ToolNotFoundError carries the tool name and the locations that were
// searched before giving up.
type ToolNotFoundError struct {
	Tool     string
	Searched []string
}

func (e *ToolNotFoundError) Error() string {
	if len(e.Searched) == 0 {
		return fmt.Sprintf("tool %q not found in PATH", e.Tool)
	}
	return fmt.Sprintf("tool %q not found in PATH or under %s", e.Tool, strings.Join(e.Searched, ", "))
}

func (e *ToolNotFoundError) Unwrap() error { return ErrToolNotFound }

// Toolchain resolves tool names to executable paths. Safe for concurrent
// use; successful lookups are cached per normalized tool name.
type Toolchain struct {
	mu        sync.Mutex
	overrides map[string]string
	roots     []string
	cache     map[string]string
	log       *slog.Logger
}

// Option customizes a Toolchain.
type Option func(*Toolchain)

// WithOverrides supplies explicit tool paths (config tools.* entries).
// Keys are normalized to lowercase without a .exe suffix.
func WithOverrides(overrides map[string]string) Option {
	return func(tc *Toolchain) {
		for name, path := range overrides {
			tc.overrides[normalizeName(name)] = path
		}
	}
}

// WithSearchRoots adds SDK-style directories to scan after PATH.
func WithSearchRoots(roots ...string) Option {
	return func(tc *Toolchain) {
		tc.roots = append(tc.roots, roots...)
	}
}

// WithLogger sets the logger used for lookup diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(tc *Toolchain) {
		tc.log = log
	}
}

// New builds a Toolchain with the given options.
func New(opts ...Option) *Toolchain {
	tc := &Toolchain{
		overrides: map[string]string{},
		cache:     map[string]string{},
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(tc)
	}
	if runtime.GOOS == "windows" {
		tc.roots = append(tc.roots, windowsKitRoots()...)
	}
	return tc
}

// Locate resolves tool to an absolute executable path.
//
// An override is authoritative: when config names a path for the tool and
// that path does not exist, Locate fails rather than silently falling back
// to a different binary than the one the user asked for.
func (tc *Toolchain) Locate(tool string) (string, error) {
	name := normalizeName(tool)

	tc.mu.Lock()
	defer tc.mu.Unlock()

	if override, ok := tc.overrides[name]; ok {
		info, err := os.Stat(override)
		if err != nil || info.IsDir() {
			return "", &ToolNotFoundError{Tool: tool, Searched: []string{override}}
		}
		return override, nil
	}

	if cached, ok := tc.cache[name]; ok {
		return cached, nil
	}

	if path, err := exec.LookPath(tool); err == nil {
		if abs, absErr := filepath.Abs(path); absErr == nil {
			path = abs
		}
		tc.cache[name] = path
		tc.log.Debug("located tool", "tool", name, "path", path, "via", "PATH")
		return path, nil
	}

	if path, ok := tc.scanRoots(name); ok {
		tc.cache[name] = path
		tc.log.Debug("located tool", "tool", name, "path", path, "via", "sdk")
		return path, nil
	}

	return "", &ToolNotFoundError{Tool: tool, Searched: tc.roots}
}

// scanRoots searches SDK install roots for name. A root may either contain
// versioned subdirectories (Windows Kits "10\bin\10.0.22621.0\x64" layout)
// or hold per-arch binaries directly. When several SDK versions are
// installed the highest one wins.
func (tc *Toolchain) scanRoots(name string) (string, bool) {
	arch := hostArchDir()
	for _, root := range tc.roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}

		var (
			best     version.QuadVersion
			bestPath string
		)
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			ver, err := version.Parse(entry.Name())
			if err != nil {
				continue
			}
			candidate := filepath.Join(root, entry.Name(), arch, name+".exe")
			if !isExecutableFile(candidate) {
				candidate = filepath.Join(root, entry.Name(), arch, name)
				if !isExecutableFile(candidate) {
					continue
				}
			}
			if bestPath == "" || best.Less(ver) {
				best = ver
				bestPath = candidate
			}
		}
		if bestPath != "" {
			return bestPath, true
		}

		// Flat layout without version directories.
		for _, candidate := range []string{
			filepath.Join(root, arch, name+".exe"),
			filepath.Join(root, name+".exe"),
			filepath.Join(root, arch, name),
			filepath.Join(root, name),
		} {
			if isExecutableFile(candidate) {
				return candidate, true
			}
		}
	}
	return "", false
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// windowsKitRoots returns the conventional Windows 10/11 SDK bin roots.
func windowsKitRoots() []string {
	var roots []string
	for _, env := range []string{"ProgramFiles(x86)", "ProgramFiles"} {
		base := os.Getenv(env)
		if base == "" {
			continue
		}
		roots = append(roots, filepath.Join(base, "Windows Kits", "10", "bin"))
	}
	return roots
}

// hostArchDir maps the processor architecture to the SDK bin subdirectory.
func hostArchDir() string {
	switch strings.ToUpper(os.Getenv("PROCESSOR_ARCHITECTURE")) {
	case "ARM64":
		return "arm64"
	case "X86":
		return "x86"
	case "AMD64":
		return "x64"
	}
	switch runtime.GOARCH {
	case "arm64":
		return "arm64"
	case "386":
		return "x86"
	default:
		return "x64"
	}
}

func normalizeName(tool string) string {
	name := strings.ToLower(strings.TrimSpace(tool))
	return strings.TrimSuffix(name, ".exe")
}
