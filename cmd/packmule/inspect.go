// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"strings"

	"packmule/internal/appmanifest"

	"github.com/spf13/cobra"
)

// newInspectCommand creates the `packmule inspect` command: dump a
// package's manifest record.
func newInspectCommand(app *App) *cobra.Command {
	var asJSON bool

	inspectCmd := &cobra.Command{
		Use:   "inspect <package-dir-or-manifest>",
		Short: "Show the parsed manifest of a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handleRunError(app, cmd, runInspect(cmd.Context(), app, args[0], asJSON))
		},
	}

	inspectCmd.Flags().BoolVar(&asJSON, "json", false, "emit the record as JSON")
	return inspectCmd
}

func runInspect(ctx context.Context, app *App, path string, asJSON bool) error {
	cfg, err := app.loadSettings(ctx)
	if err != nil {
		return err
	}
	svc, err := app.buildServices(cfg)
	if err != nil {
		return err
	}

	rec, err := readRecord(svc, path)
	if err != nil {
		return wrapServiceError(err, "reading manifest")
	}

	if asJSON {
		return writeJSON(app, rec)
	}
	renderRecord(app, rec)
	return nil
}

// readRecord accepts either a package directory or a manifest file path.
func readRecord(svc *services, path string) (*appmanifest.Record, error) {
	if strings.HasSuffix(strings.ToLower(path), ".xml") {
		return svc.Reader.ReadFile(path)
	}
	return svc.Reader.ReadDir(path)
}

func renderRecord(app *App, rec *appmanifest.Record) {
	kind := "Package"
	if rec.IsBundle {
		kind = "Bundle"
	}
	schema := "windows10"
	if !rec.ModernSchema {
		schema = "2010"
	}

	fmt.Fprintln(app.stdout, TitleStyle.Render(rec.DisplayName)+SubtitleStyle.Render(" ("+kind+", "+schema+" schema)"))
	fmt.Fprintln(app.stdout)

	field := func(key, value string) {
		if value == "" {
			value = SubtitleStyle.Render("(none)")
		}
		fmt.Fprintf(app.stdout, "%s: %s\n", PkgStyle.Render(key), value)
	}

	field("Name", rec.Identity.Name)
	field("Publisher", rec.Identity.Publisher)
	field("PublisherDisplayName", rec.PublisherDisplayName)
	field("Version", rec.Identity.Version.String())
	field("Architecture", string(rec.Identity.Architecture))
	field("ResourceId", rec.Identity.ResourceID)
	field("PackageFamilyName", rec.Identity.FamilyName())
	field("PackageFullName", rec.Identity.FullName())
	if !rec.MinOSVersion.IsZero() {
		field("MinOSVersion", rec.MinOSVersion.String())
	}
	if rec.Description != "" {
		field("Description", rec.Description)
	}

	if len(rec.Dependencies) > 0 {
		fmt.Fprintln(app.stdout)
		fmt.Fprintln(app.stdout, TitleStyle.Render("Dependencies"))
		for _, dep := range rec.Dependencies {
			line := fmt.Sprintf("  %s  >= %s", dep.Name, dep.MinVersion)
			if dep.Optional {
				line += SubtitleStyle.Render("  (optional)")
			}
			fmt.Fprintln(app.stdout, line)
		}
	}

	if len(rec.Capabilities) > 0 {
		fmt.Fprintln(app.stdout)
		fmt.Fprintln(app.stdout, TitleStyle.Render("Capabilities"))
		fmt.Fprintln(app.stdout, "  "+strings.Join(rec.Capabilities, ", "))
	}

	if len(rec.Applications) > 0 {
		fmt.Fprintln(app.stdout)
		fmt.Fprintln(app.stdout, TitleStyle.Render("Applications"))
		for _, a := range rec.Applications {
			fmt.Fprintf(app.stdout, "  %s  %s\n", a.ID, SubtitleStyle.Render(a.Executable))
		}
	}
}
