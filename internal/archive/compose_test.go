// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"packmule/internal/appmanifest"
	"packmule/internal/depend"
	"packmule/pkg/types"
	"packmule/pkg/version"
)

func testInput(t *testing.T) ComposeInput {
	t.Helper()
	src := t.TempDir()
	files := map[string]string{
		"Contoso.Demo_2.0.0.0_x64.msix":      "main package bytes",
		"Microsoft.VCLibs_14.0.0.0_x64.appx": "vclibs bytes",
		"Microsoft.UI.Xaml_8.2.0.0_x64.appx": "xaml bytes",
		"Contoso.Demo.cer":                   "cert bytes",
		"unrelated.txt":                      "ignored",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(src, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	return ComposeInput{
		SourceDir:  src,
		OutputPath: filepath.Join(t.TempDir(), "backup.zip"),
		Main: appmanifest.Identity{
			Name:         "Contoso.Demo",
			Publisher:    "CN=Contoso",
			Version:      version.MustParse("2.0.0.0"),
			Architecture: types.ArchX64,
		},
		DisplayName:          "Contoso Demo",
		PublisherDisplayName: "Contoso",
		MinOSVersion:         version.MustParse("10.0.17763.0"),
		Dependencies: []depend.Entry{
			{
				Name:             "Microsoft.VCLibs",
				MinVersion:       version.MustParse("14.0.0.0"),
				InstalledVersion: version.MustParse("14.0.0.0"),
				Architecture:     types.ArchX64,
				Kind:             depend.KindDeclared,
				Installed:        true,
			},
			{
				Name:             "Microsoft.UI.Xaml",
				MinVersion:       version.MustParse("8.0.0.0"),
				InstalledVersion: version.MustParse("8.2.0.0"),
				Architecture:     types.ArchX64,
				Kind:             depend.KindFramework,
				Installed:        true,
			},
		},
		DependencyFiles: map[string]string{
			"Microsoft.VCLibs":  "Microsoft.VCLibs_14.0.0.0_x64.appx",
			"Microsoft.UI.Xaml": "Microsoft.UI.Xaml_8.2.0.0_x64.appx",
		},
	}
}

func readArchive(t *testing.T, path string) map[string][]byte {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}
	defer zr.Close()

	contents := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		contents[f.Name] = data
	}
	return contents
}

func readManifest(t *testing.T, contents map[string][]byte) *RestoreManifest {
	t.Helper()
	data, ok := contents[RestoreManifestFileName]
	if !ok {
		t.Fatalf("archive has no %s", RestoreManifestFileName)
	}
	var m RestoreManifest
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decoding restore manifest: %v", err)
	}
	return &m
}

func TestComposeArchiveLayout(t *testing.T) {
	in := testInput(t)

	res, err := NewComposer().Compose(context.Background(), in)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if res.PackageCount != 3 {
		t.Errorf("PackageCount = %d, want 3", res.PackageCount)
	}
	if res.CertificateCount != 1 {
		t.Errorf("CertificateCount = %d, want 1", res.CertificateCount)
	}
	if res.ArchiveBytes <= 0 {
		t.Errorf("ArchiveBytes = %d, want > 0", res.ArchiveBytes)
	}

	contents := readArchive(t, in.OutputPath)
	for _, want := range []string{
		"Packages/Contoso.Demo_2.0.0.0_x64.msix",
		"Packages/Microsoft.VCLibs_14.0.0.0_x64.appx",
		"Packages/Microsoft.UI.Xaml_8.2.0.0_x64.appx",
		"Certificates/Contoso.Demo.cer",
		RestoreManifestFileName,
		InstructionsFileName,
	} {
		if _, ok := contents[want]; !ok {
			t.Errorf("archive missing %q", want)
		}
	}
	if _, ok := contents["Packages/unrelated.txt"]; ok {
		t.Error("archive staged a non-package file")
	}
}

func TestComposeRestoreManifest(t *testing.T) {
	in := testInput(t)

	fixed := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	orig := nowUTC
	nowUTC = func() time.Time { return fixed }
	t.Cleanup(func() { nowUTC = orig })

	if _, err := NewComposer().Compose(context.Background(), in); err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	m := readManifest(t, readArchive(t, in.OutputPath))

	if m.CreatedUtc != "2026-08-30T12:00:00Z" {
		t.Errorf("CreatedUtc = %q, want %q", m.CreatedUtc, "2026-08-30T12:00:00Z")
	}
	if m.MainPackage.PackageFile != "Contoso.Demo_2.0.0.0_x64.msix" {
		t.Errorf("MainPackage.PackageFile = %q", m.MainPackage.PackageFile)
	}
	if m.MainPackage.CertificateFile == nil || *m.MainPackage.CertificateFile != "Contoso.Demo.cer" {
		t.Errorf("MainPackage.CertificateFile = %v, want Contoso.Demo.cer", m.MainPackage.CertificateFile)
	}
	if !m.RequiresElevation {
		t.Error("RequiresElevation = false, want true when a certificate ships")
	}
	if m.MinimumOSVersion != "10.0.17763.0" {
		t.Errorf("MinimumOSVersion = %q", m.MinimumOSVersion)
	}
	if m.MainPackage.PackageFamilyName != in.Main.FamilyName() {
		t.Errorf("PackageFamilyName = %q, want %q", m.MainPackage.PackageFamilyName, in.Main.FamilyName())
	}

	// Installation order: dependencies in declaration order, main last.
	want := []string{
		"Microsoft.VCLibs_14.0.0.0_x64",
		"Microsoft.UI.Xaml_8.2.0.0_x64",
		"Contoso.Demo_2.0.0.0_x64",
	}
	if len(m.InstallationOrder) != len(want) {
		t.Fatalf("InstallationOrder = %v, want %v", m.InstallationOrder, want)
	}
	for i, key := range want {
		if m.InstallationOrder[i] != key {
			t.Errorf("InstallationOrder[%d] = %q, want %q", i, m.InstallationOrder[i], key)
		}
	}
	if len(m.InstallationOrder) != m.PackageCount {
		t.Errorf("len(InstallationOrder) = %d, PackageCount = %d, want equal",
			len(m.InstallationOrder), m.PackageCount)
	}

	if m.Dependencies[1].DependencyType != "Framework" {
		t.Errorf("Dependencies[1].DependencyType = %q, want Framework", m.Dependencies[1].DependencyType)
	}
	if m.Dependencies[0].InstallOrder != 1 || m.Dependencies[1].InstallOrder != 2 {
		t.Errorf("InstallOrder sequence = %d, %d, want 1, 2",
			m.Dependencies[0].InstallOrder, m.Dependencies[1].InstallOrder)
	}
}

func TestComposeManifestFieldNames(t *testing.T) {
	in := testInput(t)

	if _, err := NewComposer().Compose(context.Background(), in); err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	raw := string(readArchive(t, in.OutputPath)[RestoreManifestFileName])

	// The downstream installer matches these exact keys.
	for _, key := range []string{
		`"ManifestVersion"`, `"CreatedUtc"`, `"MainPackage"`,
		`"PackageFamilyName"`, `"PackageFullName"`, `"CertificateFile"`,
		`"InstallationOrder"`, `"PackageCount"`, `"TotalSizeBytes"`,
		`"TotalSizeMB"`, `"CompressionMode"`, `"RequiresElevation"`,
		`"MinimumOSVersion"`, `"MinimumRuntimeVersion"`, `"ResourceId"`,
	} {
		if !strings.Contains(raw, key) {
			t.Errorf("restore manifest missing key %s", key)
		}
	}
}

func TestComposeInstructions(t *testing.T) {
	in := testInput(t)
	in.DevelopmentMode = true

	if _, err := NewComposer().Compose(context.Background(), in); err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	doc := string(readArchive(t, in.OutputPath)[InstructionsFileName])

	for _, want := range []string{
		"Contoso Demo 2.0.0.0",
		`Import-Certificate -FilePath "Certificates\Contoso.Demo.cer"`,
		`Add-AppxPackage -Path "Packages\Microsoft.VCLibs_14.0.0.0_x64.appx"`,
		`Add-AppxPackage -Path "Packages\Contoso.Demo_2.0.0.0_x64.msix"`,
		"0x800B0109",
		"0x80073CF3",
		"0x80073D02",
		"0x80073CFF",
		"Developer Mode",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("instructions missing %q", want)
		}
	}

	// The dependency table installs the main package after both deps.
	mainRow := strings.Index(doc, "| 3 | Contoso.Demo |")
	depRow := strings.Index(doc, "| 1 | Microsoft.VCLibs |")
	if mainRow < 0 || depRow < 0 || mainRow < depRow {
		t.Errorf("install-order table rows out of order:\n%s", doc)
	}
}

func TestComposeNoPackages(t *testing.T) {
	t.Parallel()

	in := ComposeInput{
		SourceDir:  t.TempDir(),
		OutputPath: filepath.Join(t.TempDir(), "backup.zip"),
		Main:       appmanifest.Identity{Name: "Contoso.Demo"},
	}
	if err := os.WriteFile(filepath.Join(in.SourceDir, "readme.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewComposer().Compose(context.Background(), in)
	if !errors.Is(err, ErrNoPackages) {
		t.Fatalf("Compose() error = %v, want ErrNoPackages", err)
	}
	if _, statErr := os.Stat(in.OutputPath); statErr == nil {
		t.Error("output archive was created despite the empty source")
	}
}

func TestComposeMainFallbackWarns(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "something-else.msix"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	in := ComposeInput{
		SourceDir:  src,
		OutputPath: filepath.Join(t.TempDir(), "backup.zip"),
		Main: appmanifest.Identity{
			Name:    "Contoso.Demo",
			Version: version.MustParse("2.0.0.0"),
		},
	}

	res, err := NewComposer().Compose(context.Background(), in)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}

	m := readManifest(t, readArchive(t, in.OutputPath))
	if m.MainPackage.PackageFile != "something-else.msix" {
		t.Errorf("PackageFile = %q, want the fallback file", m.MainPackage.PackageFile)
	}
	var warned bool
	for _, w := range res.Warnings {
		if strings.Contains(w, "no staged package matches") {
			warned = true
		}
	}
	if !warned {
		t.Errorf("Warnings = %v, want a main-package fallback warning", res.Warnings)
	}
}

func TestComposeWithoutCertificate(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "Contoso.Demo_1.0.0.0_x64.msix"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	in := ComposeInput{
		SourceDir:  src,
		OutputPath: filepath.Join(t.TempDir(), "backup.zip"),
		Main: appmanifest.Identity{
			Name:    "Contoso.Demo",
			Version: version.MustParse("1.0.0.0"),
		},
	}

	res, err := NewComposer().Compose(context.Background(), in)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if res.CertificateCount != 0 {
		t.Errorf("CertificateCount = %d, want 0", res.CertificateCount)
	}

	contents := readArchive(t, in.OutputPath)
	raw := string(contents[RestoreManifestFileName])
	if !strings.Contains(raw, `"CertificateFile": null`) {
		t.Errorf("restore manifest should carry a null CertificateFile:\n%s", raw)
	}
	doc := string(contents[InstructionsFileName])
	if !strings.Contains(doc, "No certificate ships with this archive") {
		t.Error("instructions should explain the missing certificate")
	}
	if strings.Contains(doc, "Import-Certificate") {
		t.Error("instructions should not import an absent certificate")
	}
}

func TestComposeCompressionModes(t *testing.T) {
	t.Parallel()

	// Highly compressible payload so store and deflate differ measurably.
	src := t.TempDir()
	payload := strings.Repeat("packmule ", 20_000)
	if err := os.WriteFile(filepath.Join(src, "Contoso.Demo_1.0.0.0_x64.msix"), []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	sizes := map[Compression]int64{}
	for _, mode := range []Compression{CompressionStore, CompressionMaximum} {
		in := ComposeInput{
			SourceDir:   src,
			OutputPath:  filepath.Join(t.TempDir(), string(mode)+".zip"),
			Main:        appmanifest.Identity{Name: "Contoso.Demo", Version: version.MustParse("1.0.0.0")},
			Compression: mode,
		}
		res, err := NewComposer().Compose(context.Background(), in)
		if err != nil {
			t.Fatalf("Compose(%s) error = %v", mode, err)
		}
		sizes[mode] = res.ArchiveBytes
	}

	if sizes[CompressionMaximum] >= sizes[CompressionStore] {
		t.Errorf("maximum compression (%d bytes) not smaller than store (%d bytes)",
			sizes[CompressionMaximum], sizes[CompressionStore])
	}
}

func TestParseCompression(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Compression
		wantErr bool
	}{
		{"", CompressionNormal, false},
		{"normal", CompressionNormal, false},
		{"Store", CompressionStore, false},
		{"FASTEST", CompressionFastest, false},
		{"maximum", CompressionMaximum, false},
		{"ultra", "", true},
	}
	for _, tt := range tests {
		got, err := ParseCompression(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCompression(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCompression(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
