// SPDX-License-Identifier: MPL-2.0

// Package builder materializes a single package artifact from an unpacked
// source tree. The preferred backend is the SDK makeappx tool; when it is
// not discoverable a pure-compression fallback produces a structural
// container instead, loudly flagged as non-installable.
//
// Sources living inside the system package store are usually read-locked
// and carry signature artifacts that would invalidate a repackage, so
// such trees are first copied to a scratch location through a chain of
// increasingly primitive copy strategies, then normalized (stale
// signature parts dropped, content-types part regenerated).
package builder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"packmule/internal/appmanifest"
	"packmule/internal/toolchain"
	"packmule/internal/toolexec"
)

// Defaults for the free-space gate and scratch cleanup.
const (
	DefaultDiskMultiplier = 2.0
	DefaultDiskMarginMB   = 128
	DefaultCleanupRetries = 3
)

// signatureArtifacts are the parts a previous signing pass leaves behind.
// Repackaging with them present fails block-map validation, so they are
// dropped from the scratch copy.
var signatureArtifacts = []string{
	"AppxSignature.p7x",
	"AppxBlockMap.xml",
	"AppxMetadata",
}

// Backend identifies which packaging backend produced an artifact.
type Backend string

const (
	// BackendSDK is the SDK makeappx tool.
	BackendSDK Backend = "sdk"
	// BackendZip is the pure-compression fallback.
	BackendZip Backend = "zip"
)

type (
	// Options tunes one build.
	Options struct {
		// Validate re-checks the built artifact and the manifest's asset
		// references.
		Validate bool
		// Timeout bounds the packaging tool run; zero uses the runner's
		// default.
		Timeout time.Duration
	}

	// Settings carries the config-driven knobs.
	Settings struct {
		// DiskMultiplier scales the source size in the free-space gate.
		DiskMultiplier float64
		// DiskMarginBytes is added on top of the scaled source size.
		DiskMarginBytes uint64
		// ScratchRoot overrides where scratch copies are created; empty
		// uses the system temp directory.
		ScratchRoot string
		// KeepScratch disables scratch cleanup, for debugging.
		KeepScratch bool
		// CleanupRetries bounds scratch removal attempts.
		CleanupRetries int
	}

	// Result describes a completed build.
	Result struct {
		// OutputPath is the built artifact.
		OutputPath string
		// Record is the manifest of the source that was packaged.
		Record *appmanifest.Record
		// Backend tells which backend produced the artifact.
		Backend Backend
		// Bytes is the artifact size.
		Bytes int64
		// Warnings collects degraded-path notes: scratch copies, skipped
		// files, missing assets, cleanup failures.
		Warnings []string
	}

	// Builder builds package artifacts. Safe for sequential reuse.
	Builder struct {
		// Runner executes the packaging and mirroring tools.
		Runner *toolexec.Runner
		// Tools locates makeappx and the mirror tool.
		Tools *toolchain.Toolchain
		// Reader parses source manifests.
		Reader *appmanifest.Reader
		// Settings carries config-driven tuning.
		Settings Settings
		// Log receives build diagnostics. Nil uses slog.Default().
		Log *slog.Logger
	}
)

// New wires a Builder with default settings.
func New(runner *toolexec.Runner, tools *toolchain.Toolchain) *Builder {
	return &Builder{
		Runner: runner,
		Tools:  tools,
		Reader: appmanifest.NewReader(appmanifest.Options{IncludeApplications: true}),
		Settings: Settings{
			DiskMultiplier:  DefaultDiskMultiplier,
			DiskMarginBytes: DefaultDiskMarginMB * 1024 * 1024,
			CleanupRetries:  DefaultCleanupRetries,
		},
	}
}

func (b *Builder) logger() *slog.Logger {
	if b.Log != nil {
		return b.Log
	}
	return slog.Default()
}

// Build packages the tree at sourceDir into outPath.
func (b *Builder) Build(ctx context.Context, sourceDir, outPath string, opts Options) (*Result, error) {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return nil, &SourceInvalidError{Path: sourceDir, Reason: "does not exist"}
	}
	if !info.IsDir() {
		return nil, &SourceInvalidError{Path: sourceDir, Reason: "not a directory"}
	}

	rec, err := b.Reader.ReadDir(sourceDir)
	if err != nil {
		return nil, &ManifestInvalidError{Path: sourceDir, Cause: err}
	}

	res := &Result{OutputPath: outPath, Record: rec}

	if opts.Validate {
		res.Warnings = append(res.Warnings, b.checkAssetReferences(sourceDir, rec)...)
	}

	srcSize, err := treeSize(sourceDir)
	if err != nil {
		return nil, &SourceInvalidError{Path: sourceDir, Reason: fmt.Sprintf("unreadable: %v", err)}
	}
	if err := b.checkDiskSpace(outPath, srcSize, res); err != nil {
		return nil, err
	}

	buildDir := sourceDir
	scratch := ""
	if b.needsScratchCopy(sourceDir) {
		scratch, err = b.stageScratchCopy(ctx, sourceDir, res)
		if err != nil {
			return nil, err
		}
		buildDir = scratch
	}
	defer b.cleanupScratch(scratch, res)

	if scratch != "" {
		b.normalizeStaging(buildDir, res)
	}

	if err := b.runBackend(ctx, buildDir, outPath, opts, res); err != nil {
		return nil, err
	}

	if opts.Validate {
		b.validateArtifact(res)
	}

	b.logger().Debug("package built",
		"package", rec.Identity.Name, "output", outPath,
		"backend", res.Backend, "bytes", res.Bytes, "warnings", len(res.Warnings))
	return res, nil
}

// checkDiskSpace enforces the free-space gate before any backend work. A
// failed probe degrades to a warning; only a confirmed shortage is fatal.
func (b *Builder) checkDiskSpace(outPath string, srcSize uint64, res *Result) error {
	multiplier := b.Settings.DiskMultiplier
	if multiplier < 1.0 {
		multiplier = DefaultDiskMultiplier
	}
	required := uint64(float64(srcSize)*multiplier) + b.Settings.DiskMarginBytes

	volume := filepath.Dir(outPath)
	if volume == "" || volume == "." {
		volume = "."
	}
	available, err := freeSpace(volume)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("free-space probe for %s failed: %v", volume, err))
		b.logger().Warn("free-space probe failed, proceeding without the gate", "volume", volume, "error", err)
		return nil
	}
	if available < required {
		return &DiskSpaceError{Volume: volume, Required: required, Available: available}
	}
	return nil
}

// needsScratchCopy decides whether the source must be replicated before
// packaging: either direct read access fails, or stale signature
// artifacts would invalidate the repackage in place.
func (b *Builder) needsScratchCopy(sourceDir string) bool {
	if _, err := os.ReadDir(sourceDir); err != nil {
		b.logger().Debug("source not directly readable, staging a scratch copy", "source", sourceDir, "error", err)
		return true
	}
	for _, artifact := range signatureArtifacts {
		if _, err := os.Stat(filepath.Join(sourceDir, artifact)); err == nil {
			b.logger().Debug("source carries signature artifacts, staging a scratch copy", "source", sourceDir, "artifact", artifact)
			return true
		}
	}
	// The system package store read-locks entries even when listing works.
	return strings.Contains(strings.ToLower(sourceDir), strings.ToLower(string(filepath.Separator)+"windowsapps"+string(filepath.Separator)))
}

func (b *Builder) stageScratchCopy(ctx context.Context, sourceDir string, res *Result) (string, error) {
	scratch, err := os.MkdirTemp(b.Settings.ScratchRoot, "packmule-build-*")
	if err != nil {
		return "", fmt.Errorf("creating scratch directory: %w", err)
	}

	warnings, err := b.copyToScratch(ctx, sourceDir, scratch)
	if err != nil {
		os.RemoveAll(scratch)
		return "", err
	}
	res.Warnings = append(res.Warnings, warnings...)
	res.Warnings = append(res.Warnings, fmt.Sprintf("source staged to scratch copy %s", scratch))
	return scratch, nil
}

// normalizeStaging drops stale signature artifacts from the scratch copy
// and regenerates the content-types part when absent.
func (b *Builder) normalizeStaging(dir string, res *Result) {
	for _, artifact := range signatureArtifacts {
		path := filepath.Join(dir, artifact)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("could not remove stale %s: %v", artifact, err))
		} else {
			b.logger().Debug("removed stale signature artifact", "artifact", artifact)
		}
	}

	created, err := ensureContentTypes(dir)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("content-types regeneration failed: %v", err))
	} else if created {
		b.logger().Debug("regenerated content types part", "dir", dir)
	}
}

// runBackend packages buildDir into outPath with the SDK tool when
// discoverable, the zip fallback otherwise.
func (b *Builder) runBackend(ctx context.Context, buildDir, outPath string, opts Options, res *Result) error {
	makeappx, err := b.Tools.Locate("makeappx")
	if err != nil {
		if !errors.Is(err, toolchain.ErrToolNotFound) {
			return err
		}
		res.Warnings = append(res.Warnings,
			"makeappx not found: produced a plain compressed container, NOT a signable package; it cannot be installed through the normal deployment path")
		b.logger().Warn("falling back to compression backend", "reason", "makeappx not found")

		size, zipErr := zipTree(buildDir, outPath)
		if zipErr != nil {
			return fmt.Errorf("fallback packaging: %w", zipErr)
		}
		res.Backend = BackendZip
		res.Bytes = size
		return nil
	}

	toolRes, err := b.Runner.Run(ctx, toolexec.Invocation{
		Path:    makeappx,
		Args:    []string{"pack", "/d", buildDir, "/p", outPath, "/o"},
		Timeout: opts.Timeout,
	})
	if err != nil {
		var toolErr *toolexec.ToolError
		if errors.As(err, &toolErr) && toolRes != nil {
			return &BuildToolError{
				Tool:       toolErr.Tool,
				ExitCode:   toolErr.ExitCode,
				Diagnostic: diagnose(toolRes.CombinedOutput()),
				Cause:      err,
			}
		}
		return &BuildToolError{Tool: "makeappx", Cause: err}
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return &BuildToolError{Tool: "makeappx", Cause: fmt.Errorf("tool reported success but produced no output: %w", err)}
	}
	res.Backend = BackendSDK
	res.Bytes = info.Size()
	return nil
}

// checkAssetReferences warns about manifest-referenced files absent from
// the source tree. Missing assets degrade the package but do not block
// the build.
func (b *Builder) checkAssetReferences(sourceDir string, rec *appmanifest.Record) []string {
	var warnings []string
	check := func(kind, rel string) {
		if strings.TrimSpace(rel) == "" {
			return
		}
		path := filepath.Join(sourceDir, filepath.FromSlash(rel))
		if _, err := os.Stat(path); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s %q referenced by the manifest is missing", kind, rel))
		}
	}
	check("logo", rec.Logo)
	for _, app := range rec.Applications {
		check("executable", app.Executable)
	}
	return warnings
}

// validateArtifact re-checks the built output: the zip backend's
// container gets its manifest re-read and compared, the SDK backend gets
// a size sanity check. Mismatches are warnings.
func (b *Builder) validateArtifact(res *Result) {
	if res.Bytes <= 0 {
		res.Warnings = append(res.Warnings, "built artifact is empty")
		return
	}
	if res.Backend != BackendZip {
		return
	}

	staged, err := readManifestFromZip(res.OutputPath)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("artifact manifest check failed: %v", err))
		return
	}
	if staged.Identity.Name != res.Record.Identity.Name || staged.Identity.Version != res.Record.Identity.Version {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"artifact manifest identity %s %s does not match source %s %s",
			staged.Identity.Name, staged.Identity.Version,
			res.Record.Identity.Name, res.Record.Identity.Version))
	}
}

// cleanupScratch removes the scratch copy with bounded retries. Packaging
// tools and virus scanners hold transient locks after they report
// completion, so each retry backs off a little longer. Final failure is a
// warning, never an error.
func (b *Builder) cleanupScratch(scratch string, res *Result) {
	if scratch == "" {
		return
	}
	if b.Settings.KeepScratch {
		res.Warnings = append(res.Warnings, fmt.Sprintf("scratch copy kept at %s", scratch))
		return
	}

	retries := b.Settings.CleanupRetries
	if retries <= 0 {
		retries = DefaultCleanupRetries
	}
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(1<<attempt) * 100 * time.Millisecond)
		}
		if err = os.RemoveAll(scratch); err == nil {
			return
		}
		b.logger().Debug("scratch cleanup failed, retrying", "scratch", scratch, "attempt", attempt+1, "error", err)
	}
	res.Warnings = append(res.Warnings, fmt.Sprintf("scratch copy %s could not be removed: %v", scratch, err))
	b.logger().Warn("scratch cleanup gave up", "scratch", scratch, "error", err)
}

// treeSize sums the regular-file bytes under dir.
func treeSize(dir string) (uint64, error) {
	var total uint64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !d.Type().IsRegular() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += uint64(info.Size())
		return nil
	})
	return total, err
}
