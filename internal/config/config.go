// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"packmule/internal/issue"
	"packmule/pkg/platform"

	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "packmule"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// LocalConfigFileName is the per-directory config file checked in the
	// working directory when no global config exists.
	LocalConfigFileName = "packmule.cue"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the packmule configuration directory using
// platform-specific conventions: Windows uses %APPDATA%, macOS uses
// ~/Library/Application Support, and Linux/others use $XDG_CONFIG_HOME
// (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	// Allow tests to override the config directory
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string

	switch runtime.GOOS {
	case platform.Windows:
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// loadWithOptions performs option-driven config loading without mutating
// package-level cache state. Callers that want caching can wrap this function.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Settings, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v)

	resolvedPath := ""

	// If a custom config file path is set via --config flag, use it exclusively.
	if opts.ConfigFilePath != "" {
		customPath := opts.ConfigFilePath.String()
		if !fileExists(customPath) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(customPath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Check that the file exists and is readable").
				WithSuggestion("Use 'packmule config show' to see default configuration").
				Wrap(fmt.Errorf("config file not found: %s", customPath)).
				BuildError()
		}
		if err := loadCUEIntoViper(v, customPath); err != nil {
			return nil, "", wrapConfigParseError(customPath, err)
		}
		resolvedPath = customPath
	} else {
		cfgDir, err := configDirWithOverride(opts.ConfigDirPath.String())
		if err != nil {
			return nil, "", err
		}

		cuePath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)
		switch {
		case fileExists(cuePath):
			if err := loadCUEIntoViper(v, cuePath); err != nil {
				return nil, "", wrapConfigParseError(cuePath, err)
			}
			resolvedPath = cuePath
		case fileExists(LocalConfigFileName):
			// Fall back to a packmule.cue in the working directory.
			if err := loadCUEIntoViper(v, LocalConfigFileName); err != nil {
				return nil, "", wrapConfigParseError(LocalConfigFileName, err)
			}
			resolvedPath = LocalConfigFileName
		default:
			// No config file found: run on defaults (not an error).
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	// Validate constraints that CUE cannot express across fields.
	if err := validateHookRequirements(settings.Hooks.Requires); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithSuggestion("Ensure each hooks.requires entry names a distinct tool").
			WithSuggestion("Remove or merge duplicate tool requirements").
			Wrap(err).
			BuildError()
	}

	if valid, errs := settings.IsValid(); !valid {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Check the reported fields against 'packmule config show'").
			Wrap(errs[0]).
			BuildError()
	}

	return &settings, resolvedPath, nil
}

// LoadWithPath loads settings like Provider.Load and also reports which
// config file was used ("" when running on defaults).
func LoadWithPath(ctx context.Context, opts LoadOptions) (*Settings, string, error) {
	if err := opts.Validate(); err != nil {
		return nil, "", err
	}
	return loadWithOptions(ctx, opts)
}

// setDefaults seeds viper with the built-in defaults so partial config
// files only override what they mention.
func setDefaults(v *viper.Viper) {
	defaults := DefaultSettings()
	v.SetDefault("exec.timeout_seconds", defaults.Exec.TimeoutSeconds)
	v.SetDefault("exec.output_cap_bytes", defaults.Exec.OutputCapBytes)
	v.SetDefault("exec.reader_grace_seconds", defaults.Exec.ReaderGraceSeconds)
	v.SetDefault("exec.error_excerpt_bytes", defaults.Exec.ErrorExcerptBytes)
	v.SetDefault("exec.policies_file", defaults.Exec.PoliciesFile.String())
	v.SetDefault("build.disk_multiplier", defaults.Build.DiskMultiplier)
	v.SetDefault("build.disk_margin_mb", defaults.Build.DiskMarginMB)
	v.SetDefault("build.scratch_dir", defaults.Build.ScratchDir.String())
	v.SetDefault("build.keep_scratch", defaults.Build.KeepScratch)
	v.SetDefault("build.cleanup_retries", defaults.Build.CleanupRetries)
	v.SetDefault("build.validate_assets", defaults.Build.ValidateAssets)
	v.SetDefault("archive.compression_level", defaults.Archive.CompressionLevel)
	v.SetDefault("archive.staging_dir", defaults.Archive.StagingDir.String())
	v.SetDefault("archive.write_instructions", defaults.Archive.WriteInstructions)
	v.SetDefault("resolve.max_depth", defaults.Resolve.MaxDepth)
	v.SetDefault("resolve.include_frameworks", defaults.Resolve.IncludeFrameworks)
	v.SetDefault("resolve.include_optional", defaults.Resolve.IncludeOptional)
	v.SetDefault("policy.enabled", defaults.Policy.Enabled)
	v.SetDefault("policy.rules_file", defaults.Policy.RulesFile.String())
	v.SetDefault("ui.color_scheme", defaults.UI.ColorScheme.String())
	v.SetDefault("ui.verbose", defaults.UI.Verbose)
}

// wrapConfigParseError decorates CUE parse/validation failures with
// actionable suggestions.
func wrapConfigParseError(path string, err error) error {
	return issue.NewErrorContext().
		WithOperation("load configuration").
		WithResource(path).
		WithSuggestion("Check that the file contains valid CUE syntax").
		WithSuggestion("Verify the configuration values match the expected schema").
		WithSuggestion("See 'packmule config --help' for configuration options").
		Wrap(err).
		BuildError()
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit provider options before platform defaults.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}

	return ConfigDir()
}

// validateHookRequirements checks constraints CUE cannot express:
// requirement tool names must be unique after normalization.
func validateHookRequirements(requires []HookRequirement) error {
	seen := make(map[string]int)
	for i, req := range requires {
		name := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(req.Tool), ".exe"))
		if firstIdx, exists := seen[name]; exists {
			return fmt.Errorf("hooks.requires[%d]: duplicate tool %q (same as hooks.requires[%d])", i, req.Tool, firstIdx)
		}
		seen[name] = i
	}
	return nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	cfgDir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(cfgDir, 0o755)
}

// CreateDefaultConfig creates a default config file if it doesn't exist
func CreateDefaultConfig() error {
	cfgDir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	cfgPath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		return nil // File exists
	}

	defaults := DefaultSettings()
	cueContent := GenerateCUE(defaults)

	if err := os.WriteFile(cfgPath, []byte(cueContent), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Save writes the current configuration to file
func Save(settings *Settings) error {
	cfgDir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	cfgPath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)

	cueContent := GenerateCUE(settings)

	if err := os.WriteFile(cfgPath, []byte(cueContent), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateCUE generates a CUE representation of the configuration
func GenerateCUE(settings *Settings) string {
	var sb strings.Builder

	sb.WriteString("// Packmule Configuration File\n")
	sb.WriteString("// See 'packmule config --help' for documentation.\n\n")

	if len(settings.Tools) > 0 {
		sb.WriteString("tools: {\n")
		for _, tool := range sortedToolNames(settings.Tools) {
			sb.WriteString(fmt.Sprintf("\t%q: %q\n", tool, settings.Tools[tool]))
		}
		sb.WriteString("}\n\n")
	}

	sb.WriteString("exec: {\n")
	sb.WriteString(fmt.Sprintf("\ttimeout_seconds: %d\n", settings.Exec.TimeoutSeconds))
	sb.WriteString(fmt.Sprintf("\toutput_cap_bytes: %d\n", settings.Exec.OutputCapBytes))
	sb.WriteString(fmt.Sprintf("\treader_grace_seconds: %d\n", settings.Exec.ReaderGraceSeconds))
	sb.WriteString(fmt.Sprintf("\terror_excerpt_bytes: %d\n", settings.Exec.ErrorExcerptBytes))
	if settings.Exec.PoliciesFile.IsSet() {
		sb.WriteString(fmt.Sprintf("\tpolicies_file: %q\n", settings.Exec.PoliciesFile))
	}
	sb.WriteString("}\n")

	sb.WriteString("\nbuild: {\n")
	sb.WriteString(fmt.Sprintf("\tdisk_multiplier: %g\n", settings.Build.DiskMultiplier))
	sb.WriteString(fmt.Sprintf("\tdisk_margin_mb: %d\n", settings.Build.DiskMarginMB))
	if settings.Build.ScratchDir.IsSet() {
		sb.WriteString(fmt.Sprintf("\tscratch_dir: %q\n", settings.Build.ScratchDir))
	}
	sb.WriteString(fmt.Sprintf("\tkeep_scratch: %v\n", settings.Build.KeepScratch))
	sb.WriteString(fmt.Sprintf("\tcleanup_retries: %d\n", settings.Build.CleanupRetries))
	sb.WriteString(fmt.Sprintf("\tvalidate_assets: %v\n", settings.Build.ValidateAssets))
	sb.WriteString("}\n")

	sb.WriteString("\narchive: {\n")
	sb.WriteString(fmt.Sprintf("\tcompression_level: %d\n", settings.Archive.CompressionLevel))
	if settings.Archive.StagingDir.IsSet() {
		sb.WriteString(fmt.Sprintf("\tstaging_dir: %q\n", settings.Archive.StagingDir))
	}
	sb.WriteString(fmt.Sprintf("\twrite_instructions: %v\n", settings.Archive.WriteInstructions))
	sb.WriteString("}\n")

	sb.WriteString("\nresolve: {\n")
	sb.WriteString(fmt.Sprintf("\tmax_depth: %d\n", settings.Resolve.MaxDepth))
	sb.WriteString(fmt.Sprintf("\tinclude_frameworks: %v\n", settings.Resolve.IncludeFrameworks))
	sb.WriteString(fmt.Sprintf("\tinclude_optional: %v\n", settings.Resolve.IncludeOptional))
	sb.WriteString("}\n")

	sb.WriteString("\npolicy: {\n")
	sb.WriteString(fmt.Sprintf("\tenabled: %v\n", settings.Policy.Enabled))
	if settings.Policy.RulesFile.IsSet() {
		sb.WriteString(fmt.Sprintf("\trules_file: %q\n", settings.Policy.RulesFile))
	}
	sb.WriteString("}\n")

	if hooksConfigured(settings.Hooks) {
		sb.WriteString("\nhooks: {\n")
		if settings.Hooks.PreBuild.IsSet() {
			sb.WriteString(fmt.Sprintf("\tpre_build: %q\n", settings.Hooks.PreBuild))
		}
		if settings.Hooks.PostBuild.IsSet() {
			sb.WriteString(fmt.Sprintf("\tpost_build: %q\n", settings.Hooks.PostBuild))
		}
		if settings.Hooks.PreCompose.IsSet() {
			sb.WriteString(fmt.Sprintf("\tpre_compose: %q\n", settings.Hooks.PreCompose))
		}
		if settings.Hooks.PostCompose.IsSet() {
			sb.WriteString(fmt.Sprintf("\tpost_compose: %q\n", settings.Hooks.PostCompose))
		}
		if len(settings.Hooks.Requires) > 0 {
			sb.WriteString("\trequires: [\n")
			for _, req := range settings.Hooks.Requires {
				sb.WriteString(fmt.Sprintf("\t\t{tool: %q, constraint: %q},\n", req.Tool, req.Constraint))
			}
			sb.WriteString("\t]\n")
		}
		sb.WriteString("}\n")
	}

	sb.WriteString("\nui: {\n")
	sb.WriteString(fmt.Sprintf("\tcolor_scheme: %q\n", settings.UI.ColorScheme))
	sb.WriteString(fmt.Sprintf("\tverbose: %v\n", settings.UI.Verbose))
	sb.WriteString("}\n")

	return sb.String()
}

func hooksConfigured(hooks HookSettings) bool {
	return hooks.PreBuild.IsSet() || hooks.PostBuild.IsSet() ||
		hooks.PreCompose.IsSet() || hooks.PostCompose.IsSet() ||
		len(hooks.Requires) > 0
}

func sortedToolNames(tools map[string]ToolPath) []string {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
