// SPDX-License-Identifier: MPL-2.0

package builder

import (
	"archive/zip"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"packmule/internal/toolchain"
	"packmule/internal/toolexec"
)

const testManifest = `<?xml version="1.0" encoding="utf-8"?>
<Package xmlns="http://schemas.microsoft.com/appx/manifest/foundation/windows10">
  <Identity Name="Contoso.Demo" Publisher="CN=Contoso" Version="1.2.3.4" ProcessorArchitecture="x64" />
  <Properties>
    <DisplayName>Contoso Demo</DisplayName>
    <PublisherDisplayName>Contoso</PublisherDisplayName>
    <Logo>Assets\Logo.png</Logo>
  </Properties>
  <Applications>
    <Application Id="App" Executable="demo.exe" />
  </Applications>
</Package>`

// fallbackBuilder returns a Builder whose tool lookups all fail, forcing
// the compression backend and the pure-API copy strategies.
func fallbackBuilder(t *testing.T) *Builder {
	t.Helper()
	missing := filepath.Join(t.TempDir(), "missing")
	b := New(toolexec.NewRunner(), toolchain.New(toolchain.WithOverrides(map[string]string{
		"makeappx": missing,
		"robocopy": missing,
		"rsync":    missing,
	})))
	return b
}

// writeSource lays out a minimal package tree.
func writeSource(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func zipNames(t *testing.T, path string) map[string]bool {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("opening built archive: %v", err)
	}
	defer zr.Close()
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	return names
}

func TestBuildFallbackBackend(t *testing.T) {
	t.Parallel()

	src := writeSource(t, map[string]string{
		"AppxManifest.xml": testManifest,
		"demo.exe":         "binary",
		"Assets/Logo.png":  "png",
	})
	out := filepath.Join(t.TempDir(), "demo.msix")

	res, err := fallbackBuilder(t).Build(context.Background(), src, out, Options{Validate: true})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if res.Backend != BackendZip {
		t.Errorf("Backend = %q, want %q", res.Backend, BackendZip)
	}
	if res.Bytes <= 0 {
		t.Errorf("Bytes = %d, want > 0", res.Bytes)
	}
	if res.Record.Identity.Name != "Contoso.Demo" {
		t.Errorf("Record.Identity.Name = %q, want %q", res.Record.Identity.Name, "Contoso.Demo")
	}

	var flagged bool
	for _, w := range res.Warnings {
		if strings.Contains(w, "NOT a signable package") {
			flagged = true
		}
	}
	if !flagged {
		t.Errorf("Warnings = %v, want a fallback-backend warning", res.Warnings)
	}

	names := zipNames(t, out)
	for _, want := range []string{"AppxManifest.xml", "demo.exe", "Assets/Logo.png"} {
		if !names[want] {
			t.Errorf("archive missing %q (have %v)", want, names)
		}
	}
}

func TestBuildStagesAndNormalizesSignedSource(t *testing.T) {
	t.Parallel()

	src := writeSource(t, map[string]string{
		"AppxManifest.xml":               testManifest,
		"demo.exe":                       "binary",
		"AppxSignature.p7x":              "stale signature",
		"AppxBlockMap.xml":               "stale blockmap",
		"AppxMetadata/CodeIntegrity.cat": "stale metadata",
	})
	out := filepath.Join(t.TempDir(), "demo.msix")

	res, err := fallbackBuilder(t).Build(context.Background(), src, out, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	names := zipNames(t, out)
	for _, stale := range []string{"AppxSignature.p7x", "AppxBlockMap.xml", "AppxMetadata/CodeIntegrity.cat"} {
		if names[stale] {
			t.Errorf("archive still contains stale artifact %q", stale)
		}
	}
	if !names[ContentTypesFileName] {
		t.Errorf("archive missing regenerated %q", ContentTypesFileName)
	}

	// The source itself must be untouched.
	if _, err := os.Stat(filepath.Join(src, "AppxSignature.p7x")); err != nil {
		t.Errorf("source AppxSignature.p7x was modified: %v", err)
	}

	var staged bool
	for _, w := range res.Warnings {
		if strings.Contains(w, "scratch copy") {
			staged = true
		}
	}
	if !staged {
		t.Errorf("Warnings = %v, want a scratch-copy note", res.Warnings)
	}
}

func TestBuildSourceInvalid(t *testing.T) {
	t.Parallel()

	b := fallbackBuilder(t)
	out := filepath.Join(t.TempDir(), "out.msix")

	t.Run("missing directory", func(t *testing.T) {
		t.Parallel()
		_, err := b.Build(context.Background(), filepath.Join(t.TempDir(), "nope"), out, Options{})
		if !errors.Is(err, ErrSourceInvalid) {
			t.Fatalf("Build() error = %v, want ErrSourceInvalid", err)
		}
	})

	t.Run("file instead of directory", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := b.Build(context.Background(), path, out, Options{})
		if !errors.Is(err, ErrSourceInvalid) {
			t.Fatalf("Build() error = %v, want ErrSourceInvalid", err)
		}
	})

	t.Run("no manifest", func(t *testing.T) {
		t.Parallel()
		src := writeSource(t, map[string]string{"readme.txt": "no manifest here"})
		_, err := b.Build(context.Background(), src, out, Options{})
		if !errors.Is(err, ErrManifestInvalid) {
			t.Fatalf("Build() error = %v, want ErrManifestInvalid", err)
		}
	})
}

func TestBuildDiskSpaceGate(t *testing.T) {
	t.Parallel()

	src := writeSource(t, map[string]string{
		"AppxManifest.xml": testManifest,
		"demo.exe":         "binary",
	})
	out := filepath.Join(t.TempDir(), "demo.msix")

	b := fallbackBuilder(t)
	b.Settings.DiskMarginBytes = math.MaxUint64 / 2

	_, err := b.Build(context.Background(), src, out, Options{})
	if !errors.Is(err, ErrInsufficientDiskSpace) {
		t.Fatalf("Build() error = %v, want ErrInsufficientDiskSpace", err)
	}
	var dsErr *DiskSpaceError
	if !errors.As(err, &dsErr) {
		t.Fatalf("Build() error = %T, want *DiskSpaceError", err)
	}
	if dsErr.Required <= dsErr.Available {
		t.Errorf("DiskSpaceError{Required: %d, Available: %d}, want Required > Available", dsErr.Required, dsErr.Available)
	}
	if _, statErr := os.Stat(out); statErr == nil {
		t.Error("output file was created despite the disk-space gate")
	}
}

func TestBuildValidateWarnsOnMissingAssets(t *testing.T) {
	t.Parallel()

	// Manifest references Assets/Logo.png and demo.exe; neither exists.
	src := writeSource(t, map[string]string{
		"AppxManifest.xml": testManifest,
	})
	out := filepath.Join(t.TempDir(), "demo.msix")

	res, err := fallbackBuilder(t).Build(context.Background(), src, out, Options{Validate: true})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	var logo, exe bool
	for _, w := range res.Warnings {
		if strings.Contains(w, "Logo.png") {
			logo = true
		}
		if strings.Contains(w, "demo.exe") {
			exe = true
		}
	}
	if !logo || !exe {
		t.Errorf("Warnings = %v, want missing-asset warnings for the logo and the executable", res.Warnings)
	}
}

func TestBuildKeepScratch(t *testing.T) {
	t.Parallel()

	src := writeSource(t, map[string]string{
		"AppxManifest.xml":  testManifest,
		"AppxSignature.p7x": "stale",
	})
	out := filepath.Join(t.TempDir(), "demo.msix")

	b := fallbackBuilder(t)
	b.Settings.ScratchRoot = t.TempDir()
	b.Settings.KeepScratch = true

	res, err := b.Build(context.Background(), src, out, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	var kept string
	for _, w := range res.Warnings {
		if rest, ok := strings.CutPrefix(w, "scratch copy kept at "); ok {
			kept = rest
		}
	}
	if kept == "" {
		t.Fatalf("Warnings = %v, want a kept-scratch note", res.Warnings)
	}
	if _, err := os.Stat(kept); err != nil {
		t.Errorf("kept scratch %q: %v", kept, err)
	}
}

func TestDiagnose(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		output string
		want   string
	}{
		{
			name:   "access denied",
			output: "MakeAppx : error: Access is denied.",
			want:   "denied access",
		},
		{
			name:   "blockmap",
			output: "error 0x80080205: The file AppxBlockMap.xml is invalid",
			want:   "block map",
		},
		{
			name:   "manifest validation",
			output: "Manifest validation error: Line 4, Column 10",
			want:   "schema validation",
		},
		{
			name:   "hresult access denied",
			output: "error 0x80070005 while opening file",
			want:   "denied access",
		},
		{
			name:   "unknown",
			output: "something entirely unexpected",
			want:   "unrecognized",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := diagnose(tt.output)
			if !strings.Contains(got, tt.want) {
				t.Errorf("diagnose(%q) = %q, want substring %q", tt.output, got, tt.want)
			}
		})
	}
}

func TestEnsureContentTypes(t *testing.T) {
	t.Parallel()

	t.Run("generates defaults per extension", func(t *testing.T) {
		t.Parallel()
		dir := writeSource(t, map[string]string{
			"demo.exe":        "x",
			"Assets/Logo.png": "x",
			"data.custom":     "x",
		})
		created, err := ensureContentTypes(dir)
		if err != nil {
			t.Fatalf("ensureContentTypes() error = %v", err)
		}
		if !created {
			t.Fatal("ensureContentTypes() created = false, want true")
		}
		data, err := os.ReadFile(filepath.Join(dir, ContentTypesFileName))
		if err != nil {
			t.Fatal(err)
		}
		content := string(data)
		for _, want := range []string{
			`Extension="exe"`,
			`Extension="png"`,
			`Extension="custom"`,
			genericContentType,
			contentTypesNamespace,
		} {
			if !strings.Contains(content, want) {
				t.Errorf("content types part missing %q:\n%s", want, content)
			}
		}
	})

	t.Run("leaves an existing part alone", func(t *testing.T) {
		t.Parallel()
		dir := writeSource(t, map[string]string{
			ContentTypesFileName: "<Types/>",
		})
		created, err := ensureContentTypes(dir)
		if err != nil {
			t.Fatalf("ensureContentTypes() error = %v", err)
		}
		if created {
			t.Error("ensureContentTypes() created = true, want false")
		}
		data, _ := os.ReadFile(filepath.Join(dir, ContentTypesFileName))
		if string(data) != "<Types/>" {
			t.Errorf("existing part was rewritten: %q", data)
		}
	})
}

func TestCopyToScratchPerFileTolerance(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("skipping: permission bits do not bind for root")
	}
	t.Parallel()

	src := writeSource(t, map[string]string{
		"AppxManifest.xml": testManifest,
		"ok.txt":           "fine",
		"locked.txt":       "unreadable",
	})
	if err := os.Chmod(filepath.Join(src, "locked.txt"), 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(filepath.Join(src, "locked.txt"), 0o644) })

	b := fallbackBuilder(t)
	dst := filepath.Join(t.TempDir(), "scratch")

	warnings, err := b.copyToScratch(context.Background(), src, dst)
	if err != nil {
		t.Fatalf("copyToScratch() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "ok.txt")); err != nil {
		t.Errorf("ok.txt not copied: %v", err)
	}
	var skipped bool
	for _, w := range warnings {
		if strings.Contains(w, "locked.txt") {
			skipped = true
		}
	}
	if !skipped {
		t.Errorf("warnings = %v, want a skip note for locked.txt", warnings)
	}
}
