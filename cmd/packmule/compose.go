// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"packmule/internal/appmanifest"
	"packmule/internal/archive"
	"packmule/internal/hookrun"
	"packmule/pkg/version"

	"github.com/spf13/cobra"
)

// newComposeCommand creates the `packmule compose` command: build a
// restore archive from an already-prepared staging directory.
func newComposeCommand(app *App) *cobra.Command {
	var (
		output      string
		name        string
		publisher   string
		versionStr  string
		compression string
		devMode     bool
	)

	composeCmd := &cobra.Command{
		Use:   "compose <staging-dir>",
		Short: "Compose a restore archive from built package files",
		Long: `Compose a restore archive from a directory of built package files.

The directory is scanned for package artifacts (.msix, .appx,
.msixbundle, .appxbundle) and certificates (.cer, .crt, .pem). The main
package identity is read from the staged files when possible; the
--name/--publisher/--pkg-version flags override it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handleRunError(app, cmd, runCompose(cmd.Context(), app, args[0], composeOverrides{
				output:      output,
				name:        name,
				publisher:   publisher,
				version:     versionStr,
				compression: compression,
				devMode:     devMode,
			}))
		},
	}

	composeCmd.Flags().StringVarP(&output, "output", "o", "", "output archive (default <Name>_backup.zip)")
	composeCmd.Flags().StringVar(&name, "name", "", "main package name override")
	composeCmd.Flags().StringVar(&publisher, "publisher", "", "main package publisher override")
	composeCmd.Flags().StringVar(&versionStr, "pkg-version", "", "main package version override")
	composeCmd.Flags().StringVar(&compression, "compression", "", "archive compression (store, fastest, normal, maximum)")
	composeCmd.Flags().BoolVar(&devMode, "dev-mode", false, "mark the archive as a development-mode capture")
	return composeCmd
}

type composeOverrides struct {
	output      string
	name        string
	publisher   string
	version     string
	compression string
	devMode     bool
}

func runCompose(ctx context.Context, app *App, stagingDir string, ov composeOverrides) error {
	cfg, err := app.loadSettings(ctx)
	if err != nil {
		return err
	}
	svc, err := app.buildServices(cfg)
	if err != nil {
		return err
	}

	main, warnings := composeIdentity(svc, stagingDir, ov)
	printWarnings(app, warnings)

	if ov.output == "" {
		ov.output = main.Name + "_backup.zip"
	}

	mode := svc.Composer.Settings.Compression
	if ov.compression != "" {
		parsed, parseErr := archive.ParseCompression(ov.compression)
		if parseErr != nil {
			return parseErr
		}
		mode = parsed
	}

	hookEnv := map[string]string{
		"PACKMULE_SOURCE": stagingDir,
		"PACKMULE_OUTPUT": ov.output,
	}
	if err := runHook(ctx, svc, hookrun.StagePreCompose, cfg.Hooks.PreCompose.String(), hookEnv); err != nil {
		return wrapServiceError(err, "pre-compose hook")
	}

	res, err := svc.Composer.Compose(ctx, archive.ComposeInput{
		SourceDir:       stagingDir,
		OutputPath:      ov.output,
		Main:            main,
		DisplayName:     main.Name,
		Compression:     mode,
		DevelopmentMode: ov.devMode,
	})
	if err != nil {
		return wrapServiceError(err, "composing archive")
	}

	printWarnings(app, res.Warnings)
	fmt.Fprintf(app.stdout, "%s %s (%d package(s), %d certificate(s), %s)\n",
		SuccessStyle.Render("Composed"),
		PkgStyle.Render(res.ArchivePath),
		res.PackageCount,
		res.CertificateCount,
		formatBytes(res.ArchiveBytes))

	if err := runHook(ctx, svc, hookrun.StagePostCompose, cfg.Hooks.PostCompose.String(), hookEnv); err != nil {
		return wrapServiceError(err, "post-compose hook")
	}
	return nil
}

// composeIdentity derives the main package identity: flag overrides win,
// then a manifest found inside the staging directory, then placeholders.
func composeIdentity(svc *services, stagingDir string, ov composeOverrides) (appmanifest.Identity, []string) {
	var warnings []string

	id := appmanifest.Identity{Name: appmanifest.UnknownName, Publisher: appmanifest.UnknownPublisher}
	if rec, err := svc.Reader.ReadDir(stagingDir); err == nil {
		id = rec.Identity
	}

	if ov.name != "" {
		id.Name = ov.name
	}
	if ov.publisher != "" {
		id.Publisher = ov.publisher
	}
	if ov.version != "" {
		if ver, err := version.Parse(ov.version); err == nil {
			id.Version = ver
		} else {
			warnings = append(warnings, fmt.Sprintf("ignoring unparsable --pkg-version %q", ov.version))
		}
	}
	if id.IsPlaceholder() {
		warnings = append(warnings, "staged files carry no usable package identity; pass --name/--publisher/--pkg-version for a precise restore manifest")
	}
	return id, warnings
}
