// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"packmule/internal/builder"
	"packmule/internal/hookrun"

	"github.com/spf13/cobra"
)

// newBuildCommand creates the `packmule build` command: package one
// unpacked source tree into a single artifact.
func newBuildCommand(app *App) *cobra.Command {
	var (
		output   string
		validate bool
	)

	buildCmd := &cobra.Command{
		Use:   "build <source-dir>",
		Short: "Build a package artifact from an unpacked source tree",
		Long: `Build a package artifact from an unpacked source tree.

The source must contain an AppxManifest.xml. The SDK packaging tool is
used when available; otherwise a plain compressed container is produced
and flagged as non-installable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handleRunError(app, cmd, runBuild(cmd.Context(), app, args[0], output, validate))
		},
	}

	buildCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default <Name>_<Version>.msix)")
	buildCmd.Flags().BoolVar(&validate, "validate", false, "re-check the built artifact and manifest asset references")
	return buildCmd
}

func runBuild(ctx context.Context, app *App, sourceDir, output string, validate bool) error {
	cfg, err := app.loadSettings(ctx)
	if err != nil {
		return err
	}
	svc, err := app.buildServices(cfg)
	if err != nil {
		return err
	}

	if output == "" {
		rec, readErr := svc.Reader.ReadDir(sourceDir)
		if readErr != nil {
			return wrapServiceError(readErr, "reading source manifest")
		}
		output = fmt.Sprintf("%s_%s.msix", rec.Identity.Name, rec.Identity.Version)
	}

	hookEnv := map[string]string{
		"PACKMULE_SOURCE": sourceDir,
		"PACKMULE_OUTPUT": output,
	}
	if err := runHook(ctx, svc, hookrun.StagePreBuild, cfg.Hooks.PreBuild.String(), hookEnv); err != nil {
		return wrapServiceError(err, "pre-build hook")
	}

	res, err := svc.Builder.Build(ctx, sourceDir, output, builder.Options{
		Validate: validate || cfg.Build.ValidateAssets,
	})
	if err != nil {
		return wrapServiceError(err, "building package")
	}

	printWarnings(app, res.Warnings)
	fmt.Fprintf(app.stdout, "%s %s (%s backend, %s)\n",
		SuccessStyle.Render("Built"),
		PkgStyle.Render(filepath.Clean(output)),
		res.Backend,
		formatBytes(res.Bytes))

	if err := runHook(ctx, svc, hookrun.StagePostBuild, cfg.Hooks.PostBuild.String(), hookEnv); err != nil {
		return wrapServiceError(err, "post-build hook")
	}
	return nil
}

// runHook runs one lifecycle hook when configured, checking declared tool
// requirements first.
func runHook(ctx context.Context, svc *services, stage hookrun.Stage, script string, env map[string]string) error {
	if script == "" {
		return nil
	}
	reqs := make([]hookrun.Requirement, 0, len(svc.Settings.Hooks.Requires))
	for _, r := range svc.Settings.Hooks.Requires {
		reqs = append(reqs, hookrun.Requirement{Tool: r.Tool, Constraint: r.Constraint})
	}
	if err := svc.Hooks.CheckRequirements(ctx, reqs); err != nil {
		return err
	}
	return svc.Hooks.RunScript(ctx, stage, script, env)
}

// printWarnings renders accumulated degraded-path notes.
func printWarnings(app *App, warnings []string) {
	for _, w := range warnings {
		fmt.Fprintln(app.stderr, WarningStyle.Render("Warning: ")+w)
	}
}

// formatBytes renders a byte count in the nearest sensible unit.
func formatBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.2f GiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.2f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
