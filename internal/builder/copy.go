// SPDX-License-Identifier: MPL-2.0

package builder

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"packmule/internal/toolexec"
)

// copyStrategy is one way to replicate a source tree into a scratch
// directory. Strategies are tried in order; the first success wins. Each
// returns the warnings it accumulated (per-file skips) on success.
type copyStrategy struct {
	name string
	copy func(ctx context.Context, b *Builder, src, dst string) ([]string, error)
}

// copyStrategies runs from the most capable tool to the most primitive
// per-file loop. The mirror tool handles long paths and ACL oddities the
// plain APIs choke on; the per-file walk tolerates individually unreadable
// entries that abort the bulk APIs.
var copyStrategies = []copyStrategy{
	{name: "mirror-tool", copy: copyWithMirrorTool},
	{name: "copyfs", copy: copyWithCopyFS},
	{name: "per-file", copy: copyPerFile},
}

// copyToScratch replicates src into dst, walking the strategy chain.
func (b *Builder) copyToScratch(ctx context.Context, src, dst string) ([]string, error) {
	var attempts []string
	for _, strategy := range copyStrategies {
		warnings, err := strategy.copy(ctx, b, src, dst)
		if err == nil {
			b.logger().Debug("source copied to scratch", "strategy", strategy.name, "source", src, "scratch", dst)
			return warnings, nil
		}
		attempts = append(attempts, fmt.Sprintf("%s: %v", strategy.name, err))
		b.logger().Debug("copy strategy failed, falling back", "strategy", strategy.name, "error", err)
		// A partial copy must not poison the next strategy.
		if rmErr := os.RemoveAll(dst); rmErr != nil {
			attempts[len(attempts)-1] += fmt.Sprintf(" (scratch reset also failed: %v)", rmErr)
		}
	}
	return nil, &SourceCopyError{Source: src, Attempts: attempts}
}

// copyWithMirrorTool shells out to the platform bulk mirroring tool:
// robocopy on Windows, rsync elsewhere. Tool absence is a failure that
// moves the chain along, not a hard error.
func copyWithMirrorTool(ctx context.Context, b *Builder, src, dst string) ([]string, error) {
	if runtime.GOOS == "windows" {
		robocopy, err := b.Tools.Locate("robocopy")
		if err != nil {
			return nil, err
		}
		// Robocopy's 0-7 success range is registered in the runner's
		// built-in policies.
		_, err = b.Runner.Run(ctx, toolexec.Invocation{
			Path: robocopy,
			Args: []string{src, dst, "/MIR", "/NFL", "/NDL", "/NJH", "/NJS", "/R:2", "/W:1"},
		})
		return nil, err
	}

	rsync, err := b.Tools.Locate("rsync")
	if err != nil {
		return nil, err
	}
	_, err = b.Runner.Run(ctx, toolexec.Invocation{
		Path: rsync,
		Args: []string{"-a", src + string(filepath.Separator), dst + string(filepath.Separator)},
	})
	return nil, err
}

// copyWithCopyFS uses the general file-copy API. All-or-nothing: a single
// unreadable file fails the whole copy.
func copyWithCopyFS(_ context.Context, _ *Builder, src, dst string) ([]string, error) {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return nil, err
	}
	return nil, os.CopyFS(dst, os.DirFS(src))
}

// copyPerFile walks the tree copying one entry at a time, tolerating
// per-item failures. Skipped entries become warnings; the copy fails only
// when nothing at all could be replicated.
func copyPerFile(ctx context.Context, _ *Builder, src, dst string) ([]string, error) {
	var (
		warnings []string
		copied   int
	)

	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, relErr := filepath.Rel(src, path)
		if relErr != nil {
			return relErr
		}
		target := filepath.Join(dst, rel)

		if walkErr != nil {
			warnings = append(warnings, fmt.Sprintf("skipped %s: %v", rel, walkErr))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if mkErr := os.MkdirAll(target, 0o755); mkErr != nil {
				warnings = append(warnings, fmt.Sprintf("skipped directory %s: %v", rel, mkErr))
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			warnings = append(warnings, fmt.Sprintf("skipped non-regular file %s", rel))
			return nil
		}

		if copyErr := copyFile(path, target); copyErr != nil {
			warnings = append(warnings, fmt.Sprintf("skipped %s: %v", rel, copyErr))
			return nil
		}
		copied++
		return nil
	})
	if err != nil {
		return nil, err
	}
	if copied == 0 {
		return nil, fmt.Errorf("no files could be copied from %q", src)
	}
	return warnings, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
