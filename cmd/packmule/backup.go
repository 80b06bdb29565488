// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"packmule/internal/archive"
	"packmule/internal/builder"
	"packmule/internal/depend"
	"packmule/internal/hookrun"
	"packmule/internal/inventory"
	"packmule/internal/policy"
	"packmule/pkg/fspath"
	"packmule/pkg/types"

	"github.com/spf13/cobra"
)

// newBackupCommand creates the `packmule backup` command: the end-to-end
// pipeline from an installed package name to a restore archive.
func newBackupCommand(app *App) *cobra.Command {
	var opts backupOptions

	backupCmd := &cobra.Command{
		Use:   "backup <package-name>",
		Short: "Back up an installed package into a restore archive",
		Long: `Back up an installed package into a self-contained restore archive.

The package is found in the installed-package inventory, its
dependencies are resolved, the package and every installed dependency
are rebuilt from their install locations, the signing certificate is
exported when possible, and everything is composed into a single
archive with a restore manifest and instructions.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handleRunError(app, cmd, runBackup(cmd.Context(), app, args[0], opts))
		},
	}

	backupCmd.Flags().StringVarP(&opts.output, "output", "o", "", "output archive (default <Name>_backup.zip)")
	backupCmd.Flags().BoolVar(&opts.includeOptional, "include-optional", false, "resolve optional dependencies and scan installed frameworks")
	backupCmd.Flags().BoolVar(&opts.recursive, "recursive", false, "resolve dependencies of installed dependencies")
	backupCmd.Flags().StringVar(&opts.compression, "compression", "", "archive compression (store, fastest, normal, maximum)")
	backupCmd.Flags().BoolVar(&opts.strict, "strict", false, "fail on policy violations instead of warning")
	backupCmd.Flags().BoolVar(&opts.devMode, "dev-mode", false, "mark the archive as a development-mode capture")
	backupCmd.Flags().BoolVar(&opts.skipHooks, "skip-hooks", false, "skip configured lifecycle hooks")
	return backupCmd
}

type backupOptions struct {
	output          string
	includeOptional bool
	recursive       bool
	compression     string
	strict          bool
	devMode         bool
	skipHooks       bool
}

func runBackup(ctx context.Context, app *App, name string, opts backupOptions) error {
	cfg, err := app.loadSettings(ctx)
	if err != nil {
		return err
	}
	svc, err := app.buildServices(cfg)
	if err != nil {
		return err
	}

	installed, err := findInstalled(ctx, app, svc, name)
	if err != nil {
		return wrapServiceError(err, "looking up installed package")
	}
	if installed.InstallLocation == "" {
		return wrapServiceError(
			fmt.Errorf("%w: inventory reports no install location for %s", builder.ErrSourceInvalid, installed.Identity.Name),
			"locating package source")
	}
	fmt.Fprintf(app.stdout, "%s %s %s\n",
		SubtitleStyle.Render("Found"),
		PkgStyle.Render(installed.Identity.Name),
		SubtitleStyle.Render(installed.Identity.Version.String()+" at "+installed.InstallLocation))

	resolved, err := svc.Resolver.Resolve(ctx, installed.InstallLocation, depend.Options{
		IncludeOptional: opts.includeOptional || cfg.Resolve.IncludeOptional,
		SkipFrameworks:  !cfg.Resolve.IncludeFrameworks,
		Recursive:       opts.recursive,
		MaxDepth:        cfg.Resolve.MaxDepth,
	})
	if err != nil {
		return wrapServiceError(err, "resolving dependencies")
	}
	printWarnings(app, resolved.Warnings)
	for _, missing := range resolved.Missing() {
		fmt.Fprintln(app.stderr, WarningStyle.Render("Warning: ")+
			fmt.Sprintf("dependency %s is not installed; the archive will list it as missing", missing.Name))
	}

	output := opts.output
	if output == "" {
		output = installed.Identity.Name + "_backup.zip"
	}

	staging, err := os.MkdirTemp("", "packmule-backup-*")
	if err != nil {
		return wrapServiceError(err, "creating staging directory")
	}
	defer func() {
		if rmErr := os.RemoveAll(staging); rmErr != nil {
			app.Log.Warn("staging cleanup failed", "dir", staging, "error", rmErr)
		}
	}()

	hookEnv := map[string]string{
		"PACKMULE_PACKAGE": installed.Identity.Name,
		"PACKMULE_STAGING": staging,
		"PACKMULE_OUTPUT":  output,
	}
	if err := runBackupHook(ctx, svc, opts, hookrun.StagePreBuild, cfg.Hooks.PreBuild.String(), hookEnv); err != nil {
		return wrapServiceError(err, "pre-build hook")
	}

	depFiles, err := buildStagedPackages(ctx, app, svc, staging, installed, resolved)
	if err != nil {
		return err
	}

	if err := runBackupHook(ctx, svc, opts, hookrun.StagePostBuild, cfg.Hooks.PostBuild.String(), hookEnv); err != nil {
		return wrapServiceError(err, "post-build hook")
	}

	// The installed tree has no package file, but its signature blob
	// carries the signer certificate and Authenticode can read it.
	signatureFile := filepath.Join(installed.InstallLocation, "AppxSignature.p7x")
	if certFile, exportErr := svc.Certs.ExportSigner(ctx, signatureFile, staging); exportErr != nil {
		fmt.Fprintln(app.stderr, WarningStyle.Render("Warning: ")+
			"certificate export failed; the archive will carry no certificate: "+exportErr.Error())
	} else {
		// Rename so the composer can match the certificate to the
		// package by name prefix.
		named := filepath.Join(staging, installed.Identity.Name+"_"+installed.Identity.Version.String()+".cer")
		if renameErr := os.Rename(certFile, named); renameErr == nil {
			certFile = named
		}
		fmt.Fprintf(app.stdout, "%s %s\n", SubtitleStyle.Render("Exported certificate"), filepath.Base(certFile))
	}

	if cfg.Policy.Enabled || opts.strict {
		if err := runBackupPolicy(ctx, app, svc, installed.InstallLocation, cfg.Policy.RulesFile.String(), opts.strict); err != nil {
			return err
		}
	}

	if err := runBackupHook(ctx, svc, opts, hookrun.StagePreCompose, cfg.Hooks.PreCompose.String(), hookEnv); err != nil {
		return wrapServiceError(err, "pre-compose hook")
	}

	mode := svc.Composer.Settings.Compression
	if opts.compression != "" {
		parsed, parseErr := archive.ParseCompression(opts.compression)
		if parseErr != nil {
			return parseErr
		}
		mode = parsed
	}

	input := archive.ComposeInput{
		SourceDir:       staging,
		OutputPath:      output,
		Main:            installed.Identity,
		DisplayName:     installed.Identity.Name,
		IsBundle:        false,
		DevelopmentMode: opts.devMode || installed.SignatureKind == "Developer",
		Dependencies:    resolved.Entries,
		DependencyFiles: depFiles,
		Compression:     mode,
	}
	if rec, readErr := svc.Reader.ReadDir(installed.InstallLocation); readErr == nil {
		input.DisplayName = rec.DisplayName
		input.PublisherDisplayName = rec.PublisherDisplayName
		input.MinOSVersion = rec.MinOSVersion
		input.IsBundle = rec.IsBundle
	}

	res, err := svc.Composer.Compose(ctx, input)
	if err != nil {
		return wrapServiceError(err, "composing archive")
	}
	printWarnings(app, res.Warnings)

	fmt.Fprintf(app.stdout, "%s %s (%d package(s), %d certificate(s), %s)\n",
		SuccessStyle.Render("Backed up"),
		PkgStyle.Render(res.ArchivePath),
		res.PackageCount,
		res.CertificateCount,
		formatBytes(res.ArchiveBytes))

	if err := runBackupHook(ctx, svc, opts, hookrun.StagePostCompose, cfg.Hooks.PostCompose.String(), hookEnv); err != nil {
		return wrapServiceError(err, "post-compose hook")
	}
	return nil
}

// findInstalled resolves a package name to an inventory entry: exact
// lookup first, then a prefix search that must be unambiguous.
func findInstalled(ctx context.Context, app *App, svc *services, name string) (*inventory.Installed, error) {
	installed, err := svc.Invent.Lookup(ctx, name)
	if err == nil {
		return installed, nil
	}
	if !errors.Is(err, inventory.ErrNotInstalled) {
		return nil, err
	}

	matches, searchErr := svc.Invent.Search(ctx, name)
	if searchErr != nil || len(matches) == 0 {
		return nil, err
	}
	if len(matches) > 1 {
		for _, m := range matches {
			fmt.Fprintln(app.stderr, "  "+SubtitleStyle.Render(m.Identity.Name))
		}
		return nil, fmt.Errorf("%w: %q matches %d installed packages; use an exact name", inventory.ErrNotInstalled, name, len(matches))
	}
	fmt.Fprintln(app.stderr, WarningStyle.Render("Note: ")+
		fmt.Sprintf("no exact match for %q; using %s", name, matches[0].Identity.Name))
	return &matches[0], nil
}

// buildStagedPackages builds the main package and every installed
// dependency into the staging directory. The main build is fatal;
// dependency builds degrade to warnings so one broken framework copy
// cannot sink the whole backup.
func buildStagedPackages(ctx context.Context, app *App, svc *services, staging string, installed *inventory.Installed, resolved *depend.Result) (map[string]string, error) {
	mainOut, err := stagedArtifactPath(staging, installed.Identity.Name, installed.Identity.Version.String())
	if err != nil {
		return nil, wrapServiceError(err, "staging package artifact")
	}
	res, err := svc.Builder.Build(ctx, installed.InstallLocation, mainOut, builder.Options{})
	if err != nil {
		return nil, wrapServiceError(err, "building package")
	}
	printWarnings(app, res.Warnings)
	fmt.Fprintf(app.stdout, "%s %s (%s backend, %s)\n",
		SuccessStyle.Render("Built"),
		PkgStyle.Render(filepath.Base(mainOut)),
		res.Backend,
		formatBytes(res.Bytes))

	depFiles := make(map[string]string)
	for _, entry := range resolved.Installed() {
		if entry.InstallLocation == "" {
			fmt.Fprintln(app.stderr, WarningStyle.Render("Warning: ")+
				fmt.Sprintf("dependency %s has no reported install location; skipping its build", entry.Name))
			continue
		}
		depOut, pathErr := stagedArtifactPath(staging, entry.Name, entry.InstalledVersion.String())
		if pathErr != nil {
			fmt.Fprintln(app.stderr, WarningStyle.Render("Warning: ")+
				fmt.Sprintf("dependency %s has an unusable name; skipping its build: %v", entry.Name, pathErr))
			continue
		}
		depRes, depErr := svc.Builder.Build(ctx, entry.InstallLocation, depOut, builder.Options{})
		if depErr != nil {
			fmt.Fprintln(app.stderr, WarningStyle.Render("Warning: ")+
				fmt.Sprintf("dependency %s failed to build and is left out of the archive: %v", entry.Name, depErr))
			continue
		}
		printWarnings(app, depRes.Warnings)
		depFiles[entry.Name] = filepath.Base(depOut)
		fmt.Fprintf(app.stdout, "%s %s (%s backend, %s)\n",
			SuccessStyle.Render("Built"),
			PkgStyle.Render(filepath.Base(depOut)),
			depRes.Backend,
			formatBytes(depRes.Bytes))
	}
	return depFiles, nil
}

// stagedArtifactPath derives the staged artifact filename for a package.
// Names and versions come from manifests and the inventory, so the joined
// path must still resolve inside the staging directory.
func stagedArtifactPath(staging, name, version string) (string, error) {
	out := filepath.Join(staging, name+"_"+version+".msix")
	if err := fspath.EnsureWithin(types.FilesystemPath(staging), types.FilesystemPath(out)); err != nil {
		return "", err
	}
	return out, nil
}

// runBackupHook is runHook gated by --skip-hooks.
func runBackupHook(ctx context.Context, svc *services, opts backupOptions, stage hookrun.Stage, script string, env map[string]string) error {
	if opts.skipHooks {
		return nil
	}
	return runHook(ctx, svc, stage, script, env)
}

// runBackupPolicy evaluates the configured rules against the captured
// package; violations warn unless strict.
func runBackupPolicy(ctx context.Context, app *App, svc *services, packageDir, rulesFile string, strict bool) error {
	violations, err := evaluatePolicy(ctx, svc, app, packageDir, rulesFile)
	if err != nil {
		fmt.Fprintln(app.stderr, WarningStyle.Render("Warning: ")+"policy evaluation failed: "+err.Error())
		return nil
	}
	if len(violations) == 0 {
		return nil
	}
	for _, v := range violations {
		fmt.Fprintln(app.stderr, WarningStyle.Render("Violation: ")+v.String())
	}
	if strict {
		return wrapServiceError(&policy.ViolationsError{Violations: violations}, "policy check")
	}
	return nil
}
