// SPDX-License-Identifier: MPL-2.0

package inventory

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"packmule/internal/appmanifest"
	"packmule/pkg/types"
	"packmule/pkg/version"
)

func TestDecodeAppxJSON(t *testing.T) {
	t.Parallel()

	t.Run("empty output means no matches", func(t *testing.T) {
		t.Parallel()
		got, err := decodeAppxJSON("   \n", slog.Default())
		if err != nil {
			t.Fatalf("decodeAppxJSON() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected no results, got %d", len(got))
		}
	})

	t.Run("single object", func(t *testing.T) {
		t.Parallel()
		out := `{
			"Name": "Contoso.Demo",
			"Publisher": "CN=Contoso",
			"Version": "1.2.3.4",
			"Architecture": 9,
			"PackageFullName": "Contoso.Demo_1.2.3.4_x64__abc",
			"InstallLocation": "C:\\Apps\\Contoso.Demo",
			"SignatureKind": 3,
			"IsFramework": false
		}`
		got, err := decodeAppxJSON(out, slog.Default())
		if err != nil {
			t.Fatalf("decodeAppxJSON() error = %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 result, got %d", len(got))
		}
		pkg := got[0]
		if pkg.Identity.Name != "Contoso.Demo" {
			t.Errorf("Name = %q", pkg.Identity.Name)
		}
		if pkg.Identity.Version != version.MustParse("1.2.3.4") {
			t.Errorf("Version = %s", pkg.Identity.Version)
		}
		if pkg.Identity.Architecture != types.ArchX64 {
			t.Errorf("Architecture = %s", pkg.Identity.Architecture)
		}
		if pkg.SignatureKind != "Store" {
			t.Errorf("SignatureKind = %q", pkg.SignatureKind)
		}
	})

	t.Run("array with string architecture", func(t *testing.T) {
		t.Parallel()
		out := `[
			{"Name": "A.One", "Version": "1.0.0.0", "Architecture": "X64"},
			{"Name": "B.Two", "Version": "2.0.0.0", "Architecture": "Arm64", "IsFramework": true}
		]`
		got, err := decodeAppxJSON(out, slog.Default())
		if err != nil {
			t.Fatalf("decodeAppxJSON() error = %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 results, got %d", len(got))
		}
		if got[0].Identity.Architecture != types.ArchX64 {
			t.Errorf("got[0].Architecture = %s", got[0].Identity.Architecture)
		}
		if got[1].Identity.Architecture != types.ArchArm64 {
			t.Errorf("got[1].Architecture = %s", got[1].Identity.Architecture)
		}
		if !got[1].IsFramework {
			t.Error("got[1].IsFramework = false, want true")
		}
	})

	t.Run("nameless entries are skipped", func(t *testing.T) {
		t.Parallel()
		got, err := decodeAppxJSON(`[{"Name": ""}, {"Name": "Kept.One"}]`, slog.Default())
		if err != nil {
			t.Fatalf("decodeAppxJSON() error = %v", err)
		}
		if len(got) != 1 || got[0].Identity.Name != "Kept.One" {
			t.Errorf("got %+v, want only Kept.One", got)
		}
	})

	t.Run("degraded fields fall back to sentinels", func(t *testing.T) {
		t.Parallel()
		got, err := decodeAppxJSON(`{"Name": "Odd.Pkg", "Version": "not-a-version", "Architecture": 99}`, slog.Default())
		if err != nil {
			t.Fatalf("decodeAppxJSON() error = %v", err)
		}
		if got[0].Identity.Version != version.Zero {
			t.Errorf("Version = %s, want 0.0.0.0", got[0].Identity.Version)
		}
		if got[0].Identity.Architecture != types.ArchNeutral {
			t.Errorf("Architecture = %s, want neutral", got[0].Identity.Architecture)
		}
	})

	t.Run("malformed JSON is an error", func(t *testing.T) {
		t.Parallel()
		if _, err := decodeAppxJSON(`{"Name": `, slog.Default()); err == nil {
			t.Error("expected decode error")
		}
	})
}

func TestQuotePS(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"Contoso.Demo", "'Contoso.Demo'"},
		{"O'Brien.App", "'O''Brien.App'"},
		{"", "''"},
	}
	for _, tt := range tests {
		if got := quotePS(tt.in); got != tt.want {
			t.Errorf("quotePS(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStaticProvider(t *testing.T) {
	t.Parallel()

	provider := NewStaticProvider(
		Installed{Identity: appIdentity("Microsoft.VCLibs.140.00", "14.0.33519.0"), IsFramework: true},
		Installed{Identity: appIdentity("Microsoft.UI.Xaml.2.8", "8.2310.30001.0"), IsFramework: true},
		Installed{Identity: appIdentity("Contoso.Demo", "1.0.0.0"), InstallLocation: "/opt/contoso"},
	)
	ctx := context.Background()

	t.Run("lookup is case-insensitive", func(t *testing.T) {
		t.Parallel()
		got, err := provider.Lookup(ctx, "contoso.demo")
		if err != nil {
			t.Fatalf("Lookup() error = %v", err)
		}
		if got.InstallLocation != "/opt/contoso" {
			t.Errorf("InstallLocation = %q", got.InstallLocation)
		}
	})

	t.Run("missing package is ErrNotInstalled", func(t *testing.T) {
		t.Parallel()
		_, err := provider.Lookup(ctx, "No.Such.Package")
		if !errors.Is(err, ErrNotInstalled) {
			t.Errorf("Lookup() error = %v, want ErrNotInstalled", err)
		}
	})

	t.Run("search matches prefixes sorted by name", func(t *testing.T) {
		t.Parallel()
		got, err := provider.Search(ctx, "Microsoft.")
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("Search() returned %d packages, want 2", len(got))
		}
		if got[0].Identity.Name != "Microsoft.UI.Xaml.2.8" || got[1].Identity.Name != "Microsoft.VCLibs.140.00" {
			t.Errorf("Search() order = %q, %q", got[0].Identity.Name, got[1].Identity.Name)
		}
	})

	t.Run("list returns everything", func(t *testing.T) {
		t.Parallel()
		got, err := provider.List(ctx)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(got) != 3 {
			t.Errorf("List() returned %d packages, want 3", len(got))
		}
	})
}

func appIdentity(name, ver string) appmanifest.Identity {
	return appmanifest.Identity{
		Name:         name,
		Publisher:    "CN=Test",
		Version:      version.MustParse(ver),
		Architecture: types.ArchX64,
	}
}
