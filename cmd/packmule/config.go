// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"path/filepath"

	"packmule/internal/config"

	"github.com/spf13/cobra"
)

// newConfigCommand creates the `packmule config` command group.
func newConfigCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage packmule configuration",
	}
	cmd.AddCommand(newConfigShowCommand(app))
	cmd.AddCommand(newConfigInitCommand(app))
	return cmd
}

func newConfigShowCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long:  "Show the effective configuration after merging defaults, config files, and environment variables, rendered as CUE.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return handleRunError(app, cmd, runConfigShow(app, cmd))
		},
	}
}

func runConfigShow(app *App, cmd *cobra.Command) error {
	cfg, err := app.loadSettings(cmd.Context())
	if err != nil {
		return wrapServiceError(err, "load configuration")
	}
	if dir, dirErr := config.ConfigDir(); dirErr == nil {
		fmt.Fprintln(app.stdout, SubtitleStyle.Render("// config dir: "+dir))
	}
	fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
	return nil
}

func newConfigInitCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file",
		Long:  "Create the configuration directory and write a default config.cue if none exists. An existing file is left untouched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return handleRunError(app, cmd, runConfigInit(app))
		},
	}
}

func runConfigInit(app *App) error {
	if err := config.CreateDefaultConfig(); err != nil {
		return wrapServiceError(err, "create default configuration")
	}
	dir, err := config.ConfigDir()
	if err != nil {
		return wrapServiceError(err, "resolve configuration directory")
	}
	path := filepath.Join(dir, config.ConfigFileName+"."+config.ConfigFileExt)
	fmt.Fprintln(app.stdout, SuccessStyle.Render("Configuration ready: ")+path)
	return nil
}
