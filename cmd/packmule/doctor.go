// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"packmule/internal/config"
	"packmule/internal/inventory"
	"packmule/internal/toolexec"

	"github.com/spf13/cobra"
)

// doctorTools are the external tools the pipeline may call, with whether
// the absence of each degrades or blocks.
var doctorTools = []struct {
	name     string
	required bool
	purpose  string
}{
	{"makeappx", false, "SDK packaging backend (compression fallback without it)"},
	{"signtool", false, "artifact signing checks"},
	{"powershell", false, "inventory queries and certificate export"},
	{"robocopy", false, "bulk mirroring of restricted sources"},
}

// toolProbes holds a cheap invocation per tool that prints a version the
// report can show next to the located path. Tools without a clean version
// flag are left out.
var toolProbes = map[string][]string{
	"powershell": {"-NoProfile", "-Command", "$PSVersionTable.PSVersion.ToString()"},
}

// probeToolVersion runs a located tool's version probe and returns the
// first stdout line, or "" when there is no probe or it fails.
func probeToolVersion(ctx context.Context, runner *toolexec.Runner, path string, args []string) string {
	if len(args) == 0 {
		return ""
	}
	res, err := runner.RunSimple(ctx, path, args...)
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(strings.TrimSpace(res.Stdout), "\n")
	return strings.TrimSpace(line)
}

// newDoctorCommand creates the `packmule doctor` command: report on the
// environment the pipeline will run in.
func newDoctorCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment: tools, inventory, configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return handleRunError(app, cmd, runDoctor(cmd.Context(), app))
		},
	}
}

func runDoctor(ctx context.Context, app *App) error {
	cfg, err := app.loadSettings(ctx)
	if err != nil {
		fmt.Fprintln(app.stderr, WarningStyle.Render("Warning: ")+"configuration failed to load: "+err.Error())
		cfg = config.DefaultSettings()
	}
	svc, err := app.buildServices(cfg)
	if err != nil {
		return err
	}

	fmt.Fprintln(app.stdout, TitleStyle.Render("packmule doctor"))
	fmt.Fprintln(app.stdout)

	fmt.Fprintln(app.stdout, TitleStyle.Render("Tools"))
	for _, tool := range doctorTools {
		path, locateErr := svc.Tools.Locate(tool.name)
		switch {
		case locateErr == nil:
			detail := path
			if version := probeToolVersion(ctx, svc.Runner, path, toolProbes[tool.name]); version != "" {
				detail = path + " (" + version + ")"
			}
			fmt.Fprintf(app.stdout, "  %s %-12s %s\n", SuccessStyle.Render("ok"), tool.name, SubtitleStyle.Render(detail))
		case tool.required:
			fmt.Fprintf(app.stdout, "  %s %-12s %s\n", ErrorStyle.Render("!!"), tool.name, tool.purpose)
		default:
			fmt.Fprintf(app.stdout, "  %s %-12s %s\n", WarningStyle.Render("--"), tool.name, SubtitleStyle.Render("not found; "+tool.purpose))
		}
	}

	fmt.Fprintln(app.stdout)
	fmt.Fprintln(app.stdout, TitleStyle.Render("Inventory"))
	switch _, invErr := svc.Invent.List(ctx); {
	case invErr == nil:
		fmt.Fprintln(app.stdout, "  "+SuccessStyle.Render("ok")+" installed-package inventory reachable")
	case errors.Is(invErr, inventory.ErrUnavailable):
		fmt.Fprintln(app.stdout, "  "+WarningStyle.Render("--")+" inventory unavailable: "+SubtitleStyle.Render(invErr.Error()))
	default:
		fmt.Fprintln(app.stdout, "  "+WarningStyle.Render("--")+" inventory query failed: "+SubtitleStyle.Render(invErr.Error()))
	}
	if !hostIsWindows() {
		fmt.Fprintln(app.stdout, "  "+SubtitleStyle.Render("(non-Windows host: backup and inventory operations are expected to degrade)"))
	}

	fmt.Fprintln(app.stdout)
	fmt.Fprintln(app.stdout, TitleStyle.Render("Configuration"))
	if dir, dirErr := config.ConfigDir(); dirErr == nil {
		fmt.Fprintln(app.stdout, "  config dir: "+SubtitleStyle.Render(dir))
	}
	if valid, errs := cfg.IsValid(); !valid {
		for _, e := range errs {
			fmt.Fprintln(app.stdout, "  "+ErrorStyle.Render("!!")+" "+e.Error())
		}
	} else {
		fmt.Fprintln(app.stdout, "  "+SuccessStyle.Render("ok")+" settings valid")
	}

	return nil
}
