// SPDX-License-Identifier: MPL-2.0

package toolchain

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeFakeTool(t *testing.T, dir, name string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLocateOverride(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFakeTool(t, dir, "makeappx")

	tc := New(WithOverrides(map[string]string{"MakeAppx.EXE": path}))

	got, err := tc.Locate("makeappx")
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if got != path {
		t.Errorf("Locate() = %q, want %q", got, path)
	}
}

func TestLocateOverrideMissingIsFatal(t *testing.T) {
	t.Parallel()

	tc := New(WithOverrides(map[string]string{
		"signtool": filepath.Join(t.TempDir(), "nope", "signtool.exe"),
	}))

	_, err := tc.Locate("signtool")
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("Locate() error = %v, want ErrToolNotFound", err)
	}

	var notFound *ToolNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Locate() error = %T, want *ToolNotFoundError", err)
	}
	if notFound.Tool != "signtool" {
		t.Errorf("Tool = %q, want %q", notFound.Tool, "signtool")
	}
}

func TestLocateFromPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell-script stub")
	}

	dir := t.TempDir()
	writeFakeTool(t, dir, "packmule-fake-tool")
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))

	tc := New()
	got, err := tc.Locate("packmule-fake-tool")
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if filepath.Base(got) != "packmule-fake-tool" {
		t.Errorf("Locate() = %q, want basename %q", got, "packmule-fake-tool")
	}
	if !filepath.IsAbs(got) {
		t.Errorf("Locate() = %q, want absolute path", got)
	}
}

func TestLocatePicksHighestSDKVersion(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	arch := hostArchDir()
	writeFakeTool(t, filepath.Join(root, "10.0.19041.0", arch), "makeappx.exe")
	want := writeFakeTool(t, filepath.Join(root, "10.0.22621.0", arch), "makeappx.exe")
	writeFakeTool(t, filepath.Join(root, "10.0.17763.0", arch), "makeappx.exe")

	// Entries that must not confuse version selection.
	writeFakeTool(t, filepath.Join(root, "junk", arch), "makeappx.exe")

	tc := New(WithSearchRoots(root))
	got, ok := tc.scanRoots("makeappx")
	if !ok {
		t.Fatal("scanRoots() found nothing")
	}
	if got != want {
		t.Errorf("scanRoots() = %q, want %q", got, want)
	}
}

func TestLocateFlatRootLayout(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	want := writeFakeTool(t, root, "signtool.exe")

	tc := New(WithSearchRoots(root))
	got, ok := tc.scanRoots("signtool")
	if !ok {
		t.Fatal("scanRoots() found nothing")
	}
	if got != want {
		t.Errorf("scanRoots() = %q, want %q", got, want)
	}
}

func TestLocateCaches(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFakeTool(t, dir, "robocopy")

	tc := New(WithOverrides(map[string]string{"robocopy": path}))
	if _, err := tc.Locate("robocopy"); err != nil {
		t.Fatalf("Locate() error = %v", err)
	}

	// A removed binary keeps resolving from cache for the toolchain's
	// lifetime; callers hold one Toolchain per run.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	got, err := tc.Locate("ROBOCOPY")
	if err == nil {
		// The override tier re-stats; only the cache tier would serve a
		// stale path. Overrides are authoritative, so this must now fail.
		t.Fatalf("Locate() = %q, want error after override target removed", got)
	}
}

func TestLocateNotFound(t *testing.T) {
	t.Parallel()

	tc := New(WithSearchRoots(t.TempDir()))
	_, err := tc.Locate("packmule-definitely-absent-tool")
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("Locate() error = %v, want ErrToolNotFound", err)
	}
}

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"MakeAppx.exe", "makeappx"},
		{"  signtool  ", "signtool"},
		{"ROBOCOPY.EXE", "robocopy"},
		{"powershell", "powershell"},
	}
	for _, tt := range tests {
		if got := normalizeName(tt.in); got != tt.want {
			t.Errorf("normalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
