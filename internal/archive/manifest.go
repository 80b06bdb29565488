// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"encoding/json"
	"os"
	"time"

	"packmule/internal/depend"
)

// RestoreManifestFileName is the orchestration manifest at the archive root.
const RestoreManifestFileName = "RestoreManifest.json"

// manifestVersion is bumped whenever the serialized schema changes shape.
const manifestVersion = "1.0"

// createdTimeFormat is the second-resolution UTC timestamp the downstream
// installer parses.
const createdTimeFormat = "2006-01-02T15:04:05Z"

type (
	// RestoreManifest is the orchestration document the installer consumes.
	// Field names are fixed: the installer round-trips these exact
	// PascalCase keys.
	RestoreManifest struct {
		ManifestVersion       string           `json:"ManifestVersion"`
		CreatedUtc            string           `json:"CreatedUtc"`
		MainPackage           MainPackage      `json:"MainPackage"`
		Dependencies          []DependencyInfo `json:"Dependencies"`
		InstallationOrder     []string         `json:"InstallationOrder"`
		PackageCount          int              `json:"PackageCount"`
		TotalSizeBytes        int64            `json:"TotalSizeBytes"`
		TotalSizeMB           float64          `json:"TotalSizeMB"`
		CompressionMode       string           `json:"CompressionMode"`
		RequiresElevation     bool             `json:"RequiresElevation"`
		MinimumOSVersion      string           `json:"MinimumOSVersion"`
		MinimumRuntimeVersion string           `json:"MinimumRuntimeVersion"`
	}

	// MainPackage describes the package the archive restores.
	MainPackage struct {
		Name                  string  `json:"Name"`
		Version               string  `json:"Version"`
		Architecture          string  `json:"Architecture"`
		Publisher             string  `json:"Publisher"`
		PublisherDisplayName  string  `json:"PublisherDisplayName"`
		ResourceID            string  `json:"ResourceId"`
		PackageFamilyName     string  `json:"PackageFamilyName"`
		PackageFullName       string  `json:"PackageFullName"`
		PackageFile           string  `json:"PackageFile"`
		CertificateFile       *string `json:"CertificateFile"`
		CertificateThumbprint string  `json:"CertificateThumbprint"`
		IsBundle              bool    `json:"IsBundle"`
		DevelopmentMode       bool    `json:"DevelopmentMode"`
	}

	// DependencyInfo describes one dependency in install order.
	DependencyInfo struct {
		Name           string `json:"Name"`
		Version        string `json:"Version"`
		Architecture   string `json:"Architecture"`
		Publisher      string `json:"Publisher"`
		PackageFile    string `json:"PackageFile"`
		InstallOrder   int    `json:"InstallOrder"`
		MinVersion     string `json:"MinVersion"`
		IsOptional     bool   `json:"IsOptional"`
		DependencyType string `json:"DependencyType"`
		IsInstalled    bool   `json:"IsInstalled"`
	}
)

// dependencyType maps a resolver kind to the manifest's vocabulary.
func dependencyType(kind depend.Kind) string {
	if kind == depend.KindFramework {
		return "Framework"
	}
	return "Declared"
}

// writeManifest serializes the manifest with two-space indentation, the
// shape the installer's parser was written against.
func writeManifest(path string, m *RestoreManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// nowUTC is swapped in tests for deterministic timestamps.
var nowUTC = func() time.Time { return time.Now().UTC() }
