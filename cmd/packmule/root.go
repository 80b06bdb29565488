// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for packmule.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"packmule/internal/config"

	"github.com/charmbracelet/fang"
	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// Verbose enables verbose output
	verbose bool
	// cfgFile allows specifying a custom config file
	cfgFile string

	// app is the process-wide composition root; tests build their own.
	app = NewApp(Dependencies{})

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "packmule",
		Short: "Back up installed application packages into restorable archives",
		Long: TitleStyle.Render("packmule") + SubtitleStyle.Render(" - application package backup and restore archiving") + `

packmule captures installed application packages (MSIX/APPX) together
with their dependency chain and signing certificates, repackages them
from their install locations, and composes everything into a single
restore archive with machine- and human-readable install guidance.

` + SubtitleStyle.Render("Quick Start:") + `
  1. Find the package:       packmule resolve <install-dir>
  2. Back it up:             packmule backup <package-name>
  3. Restore elsewhere:      extract the archive and follow
                             INSTALL_INSTRUCTIONS.md

` + SubtitleStyle.Render("Examples:") + `
  packmule backup Contoso.Demo           Full backup pipeline
  packmule build ./extracted-package     Package a single source tree
  packmule resolve ./extracted-package   Dependency report
  packmule inspect ./extracted-package   Manifest dump
  packmule doctor                        Environment check
  packmule config show                   Show current configuration`,
	}
)

func init() {
	cobra.OnInitialize(initRootConfig)

	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/packmule/config.cue)")

	// Add subcommands
	rootCmd.AddCommand(newBackupCommand(app))
	rootCmd.AddCommand(newBuildCommand(app))
	rootCmd.AddCommand(newComposeCommand(app))
	rootCmd.AddCommand(newResolveCommand(app))
	rootCmd.AddCommand(newInspectCommand(app))
	rootCmd.AddCommand(newPolicyCommand(app))
	rootCmd.AddCommand(newDoctorCommand(app))
	rootCmd.AddCommand(newConfigCommand(app))
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	// Use fang.Execute for enhanced Cobra styling
	// Pass version via fang.WithVersion() since fang overrides rootCmd.Version
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(int(exitErr.Code))
		}
		os.Exit(1)
	}
}

// initRootConfig applies global flags and wires the structured logger.
func initRootConfig() {
	cfg, err := app.loadSettings(context.Background())
	if err != nil {
		// Config problems must never hide the command itself; warn and run
		// on defaults.
		fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+formatErrorForDisplay(err, verbose))
		cfg = config.DefaultSettings()
	}

	if !verbose {
		verbose = cfg.UI.Verbose
	}

	level := charmlog.WarnLevel
	if verbose {
		level = charmlog.DebugLevel
	}
	handler := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		Level:           level,
		ReportTimestamp: verbose,
	})
	app.Log = slog.New(handler)
	slog.SetDefault(app.Log)
}
