// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"

	"packmule/internal/appmanifest"
	"packmule/internal/archive"
	"packmule/internal/builder"
	"packmule/internal/certstore"
	"packmule/internal/config"
	"packmule/internal/depend"
	"packmule/internal/hookrun"
	"packmule/internal/inventory"
	"packmule/internal/toolchain"
	"packmule/internal/toolexec"
	"packmule/pkg/platform"
	"packmule/pkg/types"
)

type (
	// App wires CLI services and shared dependencies. It is the composition
	// root for the CLI layer - all Cobra command handlers receive an App
	// reference and build their domain services from it.
	App struct {
		Config config.Provider
		// Inventory overrides the platform provider; tests inject a
		// StaticProvider here.
		Inventory inventory.Provider
		Log       *slog.Logger
		stdout    io.Writer
		stderr    io.Writer
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config    config.Provider
		Inventory inventory.Provider
		Log       *slog.Logger
		Stdout    io.Writer
		Stderr    io.Writer
	}

	// services is one operation's worth of wired domain components, built
	// from the effective settings at command time.
	services struct {
		Settings *config.Settings
		Runner   *toolexec.Runner
		Tools    *toolchain.Toolchain
		Reader   *appmanifest.Reader
		Invent   inventory.Provider
		Resolver *depend.Resolver
		Builder  *builder.Builder
		Composer *archive.Composer
		Certs    *certstore.Store
		Hooks    *hookrun.Runner
	}
)

// NewApp builds an App, substituting production defaults for nil fields.
func NewApp(deps Dependencies) *App {
	app := &App{
		Config:    deps.Config,
		Inventory: deps.Inventory,
		Log:       deps.Log,
		stdout:    deps.Stdout,
		stderr:    deps.Stderr,
	}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.Log == nil {
		app.Log = slog.Default()
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	return app
}

// loadSettings loads the effective configuration, honoring the --config
// flag when set.
func (a *App) loadSettings(ctx context.Context) (*config.Settings, error) {
	opts := config.LoadOptions{}
	if cfgFile != "" {
		opts.ConfigFilePath = types.FilesystemPath(cfgFile)
	}
	return a.Config.Load(ctx, opts)
}

// buildServices wires the domain components from settings. Components are
// cheap to construct; each command builds a fresh set so config changes
// between invocations always take effect.
func (a *App) buildServices(cfg *config.Settings) (*services, error) {
	runner := toolexec.NewRunner()
	runner.Log = a.Log
	if cfg.Exec.TimeoutSeconds > 0 {
		runner.Timeout = cfg.Exec.Timeout()
	}
	if cfg.Exec.OutputCapBytes > 0 {
		runner.BufferCap = int64(cfg.Exec.OutputCapBytes)
	}
	if cfg.Exec.ReaderGraceSeconds > 0 {
		runner.ReaderGrace = cfg.Exec.ReaderGrace()
	}
	if cfg.Exec.ErrorExcerptBytes > 0 {
		runner.ErrorExcerpt = cfg.Exec.ErrorExcerptBytes
	}
	if cfg.Exec.PoliciesFile.IsSet() {
		if err := runner.Policies.LoadFile(cfg.Exec.PoliciesFile.String()); err != nil {
			return nil, err
		}
	}

	tools := toolchain.New(
		toolchain.WithOverrides(cfg.ToolOverrides()),
		toolchain.WithLogger(a.Log),
	)

	reader := appmanifest.NewReader(appmanifest.Options{
		IncludeDependencies: true,
		IncludeCapabilities: true,
		IncludeApplications: true,
	})
	reader.Log = a.Log

	invent := a.Inventory
	if invent == nil {
		invent = inventory.NewPowerShellProvider(runner, tools)
	}

	resolver := depend.NewResolver(invent)
	resolver.Log = a.Log

	b := builder.New(runner, tools)
	b.Log = a.Log
	b.Settings = builder.Settings{
		DiskMultiplier:  cfg.Build.DiskMultiplier,
		DiskMarginBytes: cfg.Build.DiskMarginBytes(),
		ScratchRoot:     cfg.Build.ScratchDir.String(),
		KeepScratch:     cfg.Build.KeepScratch,
		CleanupRetries:  cfg.Build.CleanupRetries,
	}

	composer := archive.NewComposer()
	composer.Log = a.Log
	composer.Settings.StagingRoot = cfg.Archive.StagingDir.String()
	composer.Settings.Compression = compressionFromLevel(cfg.Archive.CompressionLevel)

	hooks := hookrun.NewRunner(runner)
	hooks.Log = a.Log

	return &services{
		Settings: cfg,
		Runner:   runner,
		Tools:    tools,
		Reader:   reader,
		Invent:   invent,
		Resolver: resolver,
		Builder:  b,
		Composer: composer,
		Certs:    certstore.NewStore(runner, tools),
		Hooks:    hooks,
	}, nil
}

// compressionFromLevel maps the config's flate level onto the archive
// compression modes.
func compressionFromLevel(level int) archive.Compression {
	switch {
	case level == 0:
		return archive.CompressionStore
	case level > 0 && level <= 3:
		return archive.CompressionFastest
	case level >= 8:
		return archive.CompressionMaximum
	default:
		return archive.CompressionNormal
	}
}

// hostIsWindows gates the operations that only make sense where the
// platform package stack exists.
func hostIsWindows() bool { return platform.IsWindows() }
