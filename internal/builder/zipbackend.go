// SPDX-License-Identifier: MPL-2.0

package builder

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"packmule/internal/appmanifest"
)

// zipTree packages a directory into a single deflate-compressed zip file.
// This is the fallback backend: structurally a package container, but
// without the block map and signature parts the SDK tool generates, so
// the result is not installable through the normal signed path.
func zipTree(srcDir, outPath string) (int64, error) {
	out, err := os.Create(outPath)
	if err != nil {
		return 0, fmt.Errorf("creating output: %w", err)
	}

	zw := zip.NewWriter(out)
	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		name := filepath.ToSlash(rel)

		if d.IsDir() {
			_, err := zw.Create(name + "/")
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = name
		header.Method = zip.Deflate

		w, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})

	if walkErr != nil {
		zw.Close()
		out.Close()
		os.Remove(outPath)
		return 0, fmt.Errorf("archiving %q: %w", srcDir, walkErr)
	}
	if err := zw.Close(); err != nil {
		out.Close()
		os.Remove(outPath)
		return 0, fmt.Errorf("finalizing archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("closing archive: %w", err)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// readManifestFromZip reads the manifest back out of a built container,
// for post-build validation of the fallback backend's output.
func readManifestFromZip(path string) (*appmanifest.Record, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != appmanifest.ManifestFileName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("reading archived manifest: %w", err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading archived manifest: %w", err)
		}
		return appmanifest.NewReader(appmanifest.Options{}).Parse(data, path)
	}
	return nil, appmanifest.ErrManifestNotFound
}
