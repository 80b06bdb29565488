// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"packmule/internal/appmanifest"
	"packmule/internal/certstore"
	"packmule/internal/depend"
	"packmule/pkg/fspath"
	"packmule/pkg/types"
	"packmule/pkg/version"
)

type (
	// ComposeInput is everything Compose needs about the backup being
	// archived.
	ComposeInput struct {
		// SourceDir holds the built package files and exported
		// certificates, in any layout; the composer finds them by
		// extension.
		SourceDir string
		// OutputPath is the archive to create.
		OutputPath string
		// Main identifies the package the archive restores.
		Main appmanifest.Identity
		// DisplayName and PublisherDisplayName are the human-readable
		// names for the instructions document.
		DisplayName          string
		PublisherDisplayName string
		// MinOSVersion is the main package's declared OS floor.
		MinOSVersion version.QuadVersion
		// MinRuntimeVersion is the framework runtime floor, when known.
		MinRuntimeVersion string
		// IsBundle marks a bundle rather than a plain package.
		IsBundle bool
		// DevelopmentMode marks a capture from a development deployment.
		DevelopmentMode bool
		// Dependencies lists the resolved dependencies in declaration
		// order.
		Dependencies []depend.Entry
		// DependencyFiles maps a dependency name to the base name of its
		// package file under SourceDir, for dependencies that were built.
		DependencyFiles map[string]string
		// Compression overrides the composer's default mode when set.
		Compression Compression
	}

	// ComposeResult describes a completed composition.
	ComposeResult struct {
		ArchivePath      string
		ArchiveBytes     int64
		PackageCount     int
		CertificateCount int
		Warnings         []string
	}
)

// Compose stages packages, certificates, the orchestration manifest, and
// the install instructions, then zips them into in.OutputPath.
func (c *Composer) Compose(ctx context.Context, in ComposeInput) (*ComposeResult, error) {
	if info, err := os.Stat(in.SourceDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: source %q is not a directory", ErrComposeFailed, in.SourceDir)
	}

	mode := in.Compression
	if mode == "" {
		mode = c.Settings.Compression
	}
	if mode == "" {
		mode = CompressionNormal
	}

	staging, err := os.MkdirTemp(c.Settings.StagingRoot, "packmule-archive-*")
	if err != nil {
		return nil, fmt.Errorf("%w: creating staging directory: %v", ErrComposeFailed, err)
	}

	res := &ComposeResult{ArchivePath: in.OutputPath}
	defer func() {
		if rmErr := os.RemoveAll(staging); rmErr != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("staging tree %s could not be removed: %v", staging, rmErr))
		}
	}()

	packages, certificates, payloadBytes, err := c.stageFiles(ctx, in.SourceDir, staging, res)
	if err != nil {
		return nil, err
	}
	if len(packages) == 0 {
		return nil, &NoPackagesError{Dir: in.SourceDir}
	}
	res.PackageCount = len(packages)
	res.CertificateCount = len(certificates)

	mainFile := c.matchMainPackage(packages, in.Main, res)
	certFile, thumbprint := c.matchCertificate(staging, certificates, in.Main.Name, res)

	manifest := c.buildManifest(in, mode, mainFile, certFile, thumbprint, payloadBytes, res)
	if err := writeManifest(filepath.Join(staging, RestoreManifestFileName), manifest); err != nil {
		return nil, fmt.Errorf("%w: writing %s: %v", ErrComposeFailed, RestoreManifestFileName, err)
	}
	if err := writeInstructions(filepath.Join(staging, InstructionsFileName), c.instructionsData(in, mainFile, certFile)); err != nil {
		return nil, fmt.Errorf("%w: writing %s: %v", ErrComposeFailed, InstructionsFileName, err)
	}

	size, err := zipStaging(staging, in.OutputPath, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrComposeFailed, err)
	}
	res.ArchiveBytes = size

	c.logger().Debug("archive composed",
		"archive", in.OutputPath, "bytes", size,
		"packages", res.PackageCount, "certificates", res.CertificateCount,
		"compression", string(mode))
	return res, nil
}

// stageFiles copies package artifacts into Packages/ and certificates into
// Certificates/, keyed by base name. Nested duplicates are skipped with a
// warning. Returns the sorted staged names and the total payload size.
func (c *Composer) stageFiles(ctx context.Context, sourceDir, staging string, res *ComposeResult) (packages, certificates []string, payloadBytes int64, err error) {
	packagesDir := filepath.Join(staging, "Packages")
	certsDir := filepath.Join(staging, "Certificates")
	for _, dir := range []string{packagesDir, certsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, 0, fmt.Errorf("%w: creating staging layout: %v", ErrComposeFailed, err)
		}
	}

	seen := map[string]string{}
	err = filepath.WalkDir(sourceDir, func(path string, d os.DirEntry, walkErr error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if walkErr != nil || d.IsDir() {
			return walkErr
		}

		name := d.Name()
		ext := strings.ToLower(filepath.Ext(name))
		var destDir string
		switch {
		case packageExtensions[ext]:
			destDir = packagesDir
		case certificateExtensions[ext]:
			destDir = certsDir
		default:
			return nil
		}

		if unsafe := fspath.CheckSafe(types.FilesystemPath(name)); len(unsafe) > 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("skipped artifact %s: %v", path, errors.Join(unsafe...)))
			return nil
		}
		if prev, dup := seen[name]; dup {
			res.Warnings = append(res.Warnings, fmt.Sprintf("skipped duplicate artifact %s (already staged from %s)", path, prev))
			return nil
		}
		seen[name] = path

		size, copyErr := copyFile(path, filepath.Join(destDir, name))
		if copyErr != nil {
			return fmt.Errorf("staging %s: %w", name, copyErr)
		}
		payloadBytes += size
		if destDir == packagesDir {
			packages = append(packages, name)
		} else {
			certificates = append(certificates, name)
		}
		return nil
	})
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%w: %v", ErrComposeFailed, err)
	}

	sort.Strings(packages)
	sort.Strings(certificates)
	return packages, certificates, payloadBytes, nil
}

// matchMainPackage finds the staged file for the main package by the
// Name_Version stem. When nothing matches, the first staged file stands in
// for it, loudly.
func (c *Composer) matchMainPackage(packages []string, main appmanifest.Identity, res *ComposeResult) string {
	stem := strings.ToLower(main.Name + "_" + main.Version.String())
	for _, name := range packages {
		if strings.Contains(strings.ToLower(name), stem) {
			return name
		}
	}
	res.Warnings = append(res.Warnings, fmt.Sprintf(
		"no staged package matches %s %s; treating %s as the main package",
		main.Name, main.Version, packages[0]))
	return packages[0]
}

// matchCertificate picks the certificate whose file name starts with the
// main package name and reads its thumbprint. No match means the archive
// ships without a certificate.
func (c *Composer) matchCertificate(staging string, certificates []string, mainName string, res *ComposeResult) (string, string) {
	prefix := strings.ToLower(mainName)
	chosen := ""
	for _, name := range certificates {
		if strings.HasPrefix(strings.ToLower(name), prefix) {
			chosen = name
			break
		}
	}
	if chosen == "" && len(certificates) > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"no certificate matches package %s; archive includes %d unmatched certificate(s)", mainName, len(certificates)))
	}
	if chosen == "" {
		return "", ""
	}

	thumbprint, err := certstore.Thumbprint(filepath.Join(staging, "Certificates", chosen))
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("could not read thumbprint of %s: %v", chosen, err))
		thumbprint = ""
	}
	return chosen, thumbprint
}

func (c *Composer) buildManifest(in ComposeInput, mode Compression, mainFile, certFile, thumbprint string, payloadBytes int64, res *ComposeResult) *RestoreManifest {
	m := &RestoreManifest{
		ManifestVersion: manifestVersion,
		CreatedUtc:      nowUTC().Format(createdTimeFormat),
		MainPackage: MainPackage{
			Name:                  in.Main.Name,
			Version:               in.Main.Version.String(),
			Architecture:          string(in.Main.Architecture),
			Publisher:             in.Main.Publisher,
			PublisherDisplayName:  in.PublisherDisplayName,
			ResourceID:            in.Main.ResourceID,
			PackageFamilyName:     in.Main.FamilyName(),
			PackageFullName:       in.Main.FullName(),
			PackageFile:           mainFile,
			CertificateThumbprint: thumbprint,
			IsBundle:              in.IsBundle,
			DevelopmentMode:       in.DevelopmentMode,
		},
		PackageCount:          res.PackageCount,
		TotalSizeBytes:        payloadBytes,
		TotalSizeMB:           math.Round(float64(payloadBytes)/(1024*1024)*100) / 100,
		CompressionMode:       string(mode),
		RequiresElevation:     certFile != "",
		MinimumOSVersion:      in.MinOSVersion.String(),
		MinimumRuntimeVersion: in.MinRuntimeVersion,
	}
	if certFile != "" {
		m.MainPackage.CertificateFile = &certFile
	}

	seen := map[string]bool{}
	for i, dep := range in.Dependencies {
		info := DependencyInfo{
			Name:           dep.Name,
			Version:        dep.InstalledVersion.String(),
			Architecture:   string(dep.Architecture),
			Publisher:      dep.Publisher,
			PackageFile:    in.DependencyFiles[dep.Name],
			InstallOrder:   i + 1,
			MinVersion:     dep.MinVersion.String(),
			IsOptional:     dep.Optional,
			DependencyType: dependencyType(dep.Kind),
			IsInstalled:    dep.Installed,
		}
		m.Dependencies = append(m.Dependencies, info)

		key := dependencyOrderKey(dep)
		if !seen[key] {
			seen[key] = true
			m.InstallationOrder = append(m.InstallationOrder, key)
		}
	}

	mainKey := in.Main.InstallOrderKey()
	if !seen[mainKey] {
		m.InstallationOrder = append(m.InstallationOrder, mainKey)
	}

	if len(m.InstallationOrder) != m.PackageCount {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"installation order lists %d entries but %d package files are staged",
			len(m.InstallationOrder), m.PackageCount))
	}
	return m
}

// dependencyOrderKey derives the install-order key for a dependency from
// the version that was actually captured.
func dependencyOrderKey(dep depend.Entry) string {
	ver := dep.InstalledVersion
	if ver.IsZero() {
		ver = dep.MinVersion
	}
	id := appmanifest.Identity{Name: dep.Name, Version: ver, Architecture: dep.Architecture}
	return id.InstallOrderKey()
}

func (c *Composer) instructionsData(in ComposeInput, mainFile, certFile string) instructionsData {
	data := instructionsData{
		DisplayName:     in.DisplayName,
		PackageName:     in.Main.Name,
		Version:         in.Main.Version.String(),
		PackageFile:     mainFile,
		CertificateFile: certFile,
		DevelopmentMode: in.DevelopmentMode,
	}
	if data.DisplayName == "" {
		data.DisplayName = in.Main.Name
	}
	for i, dep := range in.Dependencies {
		ver := dep.InstalledVersion
		if ver.IsZero() {
			ver = dep.MinVersion
		}
		data.Dependencies = append(data.Dependencies, instructionsDependency{
			Order:     i + 1,
			Name:      dep.Name,
			Version:   ver.String(),
			File:      in.DependencyFiles[dep.Name],
			Installed: dep.Installed,
		})
	}
	return data
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return n, err
	}
	return n, out.Close()
}
