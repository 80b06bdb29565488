// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// ColorSchemeAuto detects the terminal color scheme automatically.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces dark color scheme.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces light color scheme.
	ColorSchemeLight ColorScheme = "light"
)

var (
	// ErrInvalidColorScheme is returned when a ColorScheme value is not recognized.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrInvalidToolPath is returned when a tools.* override is whitespace-only.
	ErrInvalidToolPath = errors.New("invalid tool path")
	// ErrInvalidOptionalPath is returned when an optional path setting is
	// non-empty but whitespace-only.
	ErrInvalidOptionalPath = errors.New("invalid path setting")
	// ErrInvalidHookRequirement is the sentinel error wrapped by InvalidHookRequirementError.
	ErrInvalidHookRequirement = errors.New("invalid hook requirement")
	// ErrInvalidExecSettings is the sentinel error wrapped by InvalidExecSettingsError.
	ErrInvalidExecSettings = errors.New("invalid exec settings")
	// ErrInvalidBuildSettings is the sentinel error wrapped by InvalidBuildSettingsError.
	ErrInvalidBuildSettings = errors.New("invalid build settings")
	// ErrInvalidArchiveSettings is the sentinel error wrapped by InvalidArchiveSettingsError.
	ErrInvalidArchiveSettings = errors.New("invalid archive settings")
	// ErrInvalidResolveSettings is the sentinel error wrapped by InvalidResolveSettingsError.
	ErrInvalidResolveSettings = errors.New("invalid resolve settings")
	// ErrInvalidHookSettings is the sentinel error wrapped by InvalidHookSettingsError.
	ErrInvalidHookSettings = errors.New("invalid hook settings")
	// ErrInvalidUISettings is the sentinel error wrapped by InvalidUISettingsError.
	ErrInvalidUISettings = errors.New("invalid UI settings")
	// ErrInvalidSettings is the sentinel error wrapped by InvalidSettingsError.
	ErrInvalidSettings = errors.New("invalid settings")
)

type (
	// ColorScheme specifies the terminal color scheme preference.
	ColorScheme string

	// InvalidColorSchemeError is returned when a ColorScheme value is not recognized.
	// It wraps ErrInvalidColorScheme for errors.Is() compatibility.
	InvalidColorSchemeError struct {
		Value ColorScheme
	}

	// ToolPath represents a filesystem path to an external tool executable.
	// A configured override must be non-empty and not whitespace-only.
	ToolPath string

	// InvalidToolPathError is returned when a ToolPath value is whitespace-only.
	InvalidToolPathError struct {
		Tool  string
		Value ToolPath
	}

	// OptionalPath represents a filesystem path setting whose zero value ("")
	// means "use the built-in default location". Non-zero values must not be
	// whitespace-only.
	OptionalPath string

	// InvalidOptionalPathError is returned when an OptionalPath value is
	// non-empty but whitespace-only.
	InvalidOptionalPathError struct {
		Field string
		Value OptionalPath
	}

	// HookRequirement declares that a hook script depends on an external tool
	// satisfying a semver-style version constraint.
	HookRequirement struct {
		// Tool is the executable name checked before hooks run.
		Tool string `json:"tool" mapstructure:"tool"`
		// Constraint is a version range such as ">= 10.0.0" evaluated against
		// the tool's reported version.
		Constraint string `json:"constraint" mapstructure:"constraint"`
	}

	// InvalidHookRequirementError is returned when a HookRequirement has
	// invalid fields. It wraps ErrInvalidHookRequirement for errors.Is().
	InvalidHookRequirementError struct {
		FieldErrors []error
	}

	// ExecSettings tunes external process execution.
	ExecSettings struct {
		// TimeoutSeconds bounds each tool invocation.
		TimeoutSeconds int `json:"timeout_seconds" mapstructure:"timeout_seconds"`
		// OutputCapBytes caps each captured stream buffer.
		OutputCapBytes int `json:"output_cap_bytes" mapstructure:"output_cap_bytes"`
		// ReaderGraceSeconds bounds the post-exit wait for stream drain.
		ReaderGraceSeconds int `json:"reader_grace_seconds" mapstructure:"reader_grace_seconds"`
		// ErrorExcerptBytes caps the output excerpt embedded in tool errors.
		ErrorExcerptBytes int `json:"error_excerpt_bytes" mapstructure:"error_excerpt_bytes"`
		// PoliciesFile optionally points at a TOML file of per-tool exit-code
		// policies merged over the built-in defaults.
		PoliciesFile OptionalPath `json:"policies_file" mapstructure:"policies_file"`
	}

	// InvalidExecSettingsError is returned when ExecSettings has invalid fields.
	InvalidExecSettingsError struct {
		FieldErrors []error
	}

	// BuildSettings tunes package building.
	BuildSettings struct {
		// DiskMultiplier scales the source size in the free-space gate.
		DiskMultiplier float64 `json:"disk_multiplier" mapstructure:"disk_multiplier"`
		// DiskMarginMB is added to the scaled source size in the gate.
		DiskMarginMB int `json:"disk_margin_mb" mapstructure:"disk_margin_mb"`
		// ScratchDir overrides where build staging trees are created.
		ScratchDir OptionalPath `json:"scratch_dir" mapstructure:"scratch_dir"`
		// KeepScratch disables staging-tree cleanup, for debugging builds.
		KeepScratch bool `json:"keep_scratch" mapstructure:"keep_scratch"`
		// CleanupRetries is the number of cleanup attempts before giving up
		// with a warning.
		CleanupRetries int `json:"cleanup_retries" mapstructure:"cleanup_retries"`
		// ValidateAssets enables manifest asset reference checking.
		ValidateAssets bool `json:"validate_assets" mapstructure:"validate_assets"`
	}

	// InvalidBuildSettingsError is returned when BuildSettings has invalid fields.
	InvalidBuildSettingsError struct {
		FieldErrors []error
	}

	// ArchiveSettings tunes restore-archive composition.
	ArchiveSettings struct {
		// CompressionLevel is the flate level used for archive entries.
		// Valid range matches compress/flate: -2 through 9.
		CompressionLevel int `json:"compression_level" mapstructure:"compression_level"`
		// StagingDir overrides where archive staging trees are created.
		StagingDir OptionalPath `json:"staging_dir" mapstructure:"staging_dir"`
		// WriteInstructions controls whether the human-readable install
		// instructions document is added to the archive.
		WriteInstructions bool `json:"write_instructions" mapstructure:"write_instructions"`
	}

	// InvalidArchiveSettingsError is returned when ArchiveSettings has invalid fields.
	InvalidArchiveSettingsError struct {
		FieldErrors []error
	}

	// ResolveSettings tunes dependency resolution.
	ResolveSettings struct {
		// MaxDepth bounds the transitive dependency walk. Zero resolves only
		// directly declared dependencies.
		MaxDepth int `json:"max_depth" mapstructure:"max_depth"`
		// IncludeFrameworks enables the framework package directory scan.
		IncludeFrameworks bool `json:"include_frameworks" mapstructure:"include_frameworks"`
		// IncludeOptional includes optional dependency declarations.
		IncludeOptional bool `json:"include_optional" mapstructure:"include_optional"`
	}

	// InvalidResolveSettingsError is returned when ResolveSettings has invalid fields.
	InvalidResolveSettingsError struct {
		FieldErrors []error
	}

	// PolicySettings configures pre-archive policy evaluation.
	PolicySettings struct {
		// Enabled turns policy evaluation on.
		Enabled bool `json:"enabled" mapstructure:"enabled"`
		// RulesFile points at the YAML rules document consumed by the
		// embedded policy.
		RulesFile OptionalPath `json:"rules_file" mapstructure:"rules_file"`
	}

	// HookSettings declares lifecycle hook scripts and their tool requirements.
	HookSettings struct {
		// PreBuild runs before a package build starts.
		PreBuild OptionalPath `json:"pre_build" mapstructure:"pre_build"`
		// PostBuild runs after a package build succeeds.
		PostBuild OptionalPath `json:"post_build" mapstructure:"post_build"`
		// PreCompose runs before restore-archive composition.
		PreCompose OptionalPath `json:"pre_compose" mapstructure:"pre_compose"`
		// PostCompose runs after restore-archive composition succeeds.
		PostCompose OptionalPath `json:"post_compose" mapstructure:"post_compose"`
		// Requires lists tool version constraints verified before any hook runs.
		Requires []HookRequirement `json:"requires" mapstructure:"requires"`
	}

	// InvalidHookSettingsError is returned when HookSettings has invalid fields.
	InvalidHookSettingsError struct {
		FieldErrors []error
	}

	// UISettings configures the command-line interface.
	UISettings struct {
		// ColorScheme sets the color scheme.
		ColorScheme ColorScheme `json:"color_scheme" mapstructure:"color_scheme"`
		// Verbose enables verbose output.
		Verbose bool `json:"verbose" mapstructure:"verbose"`
	}

	// InvalidUISettingsError is returned when UISettings has invalid fields.
	InvalidUISettingsError struct {
		FieldErrors []error
	}

	// Settings holds the application configuration.
	Settings struct {
		// Tools maps tool names (makeappx, signtool, robocopy, powershell) to
		// explicit executable paths, overriding PATH and SDK discovery.
		Tools map[string]ToolPath `json:"tools" mapstructure:"tools"`
		// Exec tunes external process execution.
		Exec ExecSettings `json:"exec" mapstructure:"exec"`
		// Build tunes package building.
		Build BuildSettings `json:"build" mapstructure:"build"`
		// Archive tunes restore-archive composition.
		Archive ArchiveSettings `json:"archive" mapstructure:"archive"`
		// Resolve tunes dependency resolution.
		Resolve ResolveSettings `json:"resolve" mapstructure:"resolve"`
		// Policy configures pre-archive policy evaluation.
		Policy PolicySettings `json:"policy" mapstructure:"policy"`
		// Hooks declares lifecycle hook scripts.
		Hooks HookSettings `json:"hooks" mapstructure:"hooks"`
		// UI configures the command-line interface.
		UI UISettings `json:"ui" mapstructure:"ui"`
	}

	// InvalidSettingsError is returned when a Settings has invalid fields.
	// It wraps ErrInvalidSettings for errors.Is() compatibility and collects
	// field-level validation errors from all sub-components.
	InvalidSettingsError struct {
		FieldErrors []error
	}
)

// String returns the string representation of the ColorScheme.
func (cs ColorScheme) String() string { return string(cs) }

// IsValid returns whether the ColorScheme is one of the defined color schemes,
// and a list of validation errors if it is not.
func (cs ColorScheme) IsValid() (bool, []error) {
	switch cs {
	case ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return true, nil
	default:
		return false, []error{&InvalidColorSchemeError{Value: cs}}
	}
}

// Error implements the error interface for InvalidColorSchemeError.
func (e *InvalidColorSchemeError) Error() string {
	return fmt.Sprintf("invalid color scheme %q (valid: auto, dark, light)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidColorSchemeError) Unwrap() error { return ErrInvalidColorScheme }

// String returns the string representation of the ToolPath.
func (p ToolPath) String() string { return string(p) }

// Error implements the error interface for InvalidToolPathError.
func (e *InvalidToolPathError) Error() string {
	return fmt.Sprintf("invalid tool path for %q: must be non-empty", e.Tool)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidToolPathError) Unwrap() error { return ErrInvalidToolPath }

// String returns the string representation of the OptionalPath.
func (p OptionalPath) String() string { return string(p) }

// IsSet reports whether a non-default value is configured.
func (p OptionalPath) IsSet() bool { return p != "" }

// IsValid returns whether the OptionalPath is valid. The zero value ("") is
// valid; non-zero values must not be whitespace-only.
func (p OptionalPath) IsValid() (bool, []error) {
	if p == "" {
		return true, nil
	}
	if strings.TrimSpace(string(p)) == "" {
		return false, []error{&InvalidOptionalPathError{Value: p}}
	}
	return true, nil
}

// Error implements the error interface for InvalidOptionalPathError.
func (e *InvalidOptionalPathError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s %q: non-empty value must not be whitespace-only", e.Field, e.Value)
	}
	return fmt.Sprintf("invalid path setting %q: non-empty value must not be whitespace-only", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidOptionalPathError) Unwrap() error { return ErrInvalidOptionalPath }

// IsValid returns whether the HookRequirement has valid fields. Both the tool
// name and the constraint expression must be non-blank; constraint syntax is
// checked where hooks are run.
func (r HookRequirement) IsValid() (bool, []error) {
	var errs []error
	if strings.TrimSpace(r.Tool) == "" {
		errs = append(errs, errors.New("hook requirement tool must be non-empty"))
	}
	if strings.TrimSpace(r.Constraint) == "" {
		errs = append(errs, fmt.Errorf("hook requirement constraint for %q must be non-empty", r.Tool))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidHookRequirementError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidHookRequirementError.
func (e *InvalidHookRequirementError) Error() string {
	return fmt.Sprintf("invalid hook requirement: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidHookRequirement for errors.Is() compatibility.
func (e *InvalidHookRequirementError) Unwrap() error { return ErrInvalidHookRequirement }

// Timeout returns the configured execution timeout as a duration.
func (s ExecSettings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// ReaderGrace returns the configured stream drain grace as a duration.
func (s ExecSettings) ReaderGrace() time.Duration {
	return time.Duration(s.ReaderGraceSeconds) * time.Second
}

// IsValid returns whether the ExecSettings has valid fields.
func (s ExecSettings) IsValid() (bool, []error) {
	var errs []error
	if s.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("exec timeout_seconds must be positive, got %d", s.TimeoutSeconds))
	}
	if s.OutputCapBytes <= 0 {
		errs = append(errs, fmt.Errorf("exec output_cap_bytes must be positive, got %d", s.OutputCapBytes))
	}
	if s.ReaderGraceSeconds < 0 {
		errs = append(errs, fmt.Errorf("exec reader_grace_seconds must not be negative, got %d", s.ReaderGraceSeconds))
	}
	if s.ErrorExcerptBytes <= 0 {
		errs = append(errs, fmt.Errorf("exec error_excerpt_bytes must be positive, got %d", s.ErrorExcerptBytes))
	}
	if valid, fieldErrs := s.PoliciesFile.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidExecSettingsError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidExecSettingsError.
func (e *InvalidExecSettingsError) Error() string {
	return fmt.Sprintf("invalid exec settings: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidExecSettings for errors.Is() compatibility.
func (e *InvalidExecSettingsError) Unwrap() error { return ErrInvalidExecSettings }

// DiskMarginBytes returns the configured margin in bytes.
func (s BuildSettings) DiskMarginBytes() uint64 {
	return uint64(s.DiskMarginMB) * 1024 * 1024
}

// IsValid returns whether the BuildSettings has valid fields.
func (s BuildSettings) IsValid() (bool, []error) {
	var errs []error
	if s.DiskMultiplier < 1.0 {
		errs = append(errs, fmt.Errorf("build disk_multiplier must be at least 1.0, got %g", s.DiskMultiplier))
	}
	if s.DiskMarginMB < 0 {
		errs = append(errs, fmt.Errorf("build disk_margin_mb must not be negative, got %d", s.DiskMarginMB))
	}
	if s.CleanupRetries < 0 || s.CleanupRetries > 10 {
		errs = append(errs, fmt.Errorf("build cleanup_retries must be between 0 and 10, got %d", s.CleanupRetries))
	}
	if valid, fieldErrs := s.ScratchDir.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidBuildSettingsError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidBuildSettingsError.
func (e *InvalidBuildSettingsError) Error() string {
	return fmt.Sprintf("invalid build settings: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidBuildSettings for errors.Is() compatibility.
func (e *InvalidBuildSettingsError) Unwrap() error { return ErrInvalidBuildSettings }

// IsValid returns whether the ArchiveSettings has valid fields.
func (s ArchiveSettings) IsValid() (bool, []error) {
	var errs []error
	if s.CompressionLevel < -2 || s.CompressionLevel > 9 {
		errs = append(errs, fmt.Errorf("archive compression_level must be between -2 and 9, got %d", s.CompressionLevel))
	}
	if valid, fieldErrs := s.StagingDir.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidArchiveSettingsError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidArchiveSettingsError.
func (e *InvalidArchiveSettingsError) Error() string {
	return fmt.Sprintf("invalid archive settings: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidArchiveSettings for errors.Is() compatibility.
func (e *InvalidArchiveSettingsError) Unwrap() error { return ErrInvalidArchiveSettings }

// IsValid returns whether the ResolveSettings has valid fields.
func (s ResolveSettings) IsValid() (bool, []error) {
	var errs []error
	if s.MaxDepth < 0 || s.MaxDepth > 8 {
		errs = append(errs, fmt.Errorf("resolve max_depth must be between 0 and 8, got %d", s.MaxDepth))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidResolveSettingsError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidResolveSettingsError.
func (e *InvalidResolveSettingsError) Error() string {
	return fmt.Sprintf("invalid resolve settings: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidResolveSettings for errors.Is() compatibility.
func (e *InvalidResolveSettingsError) Unwrap() error { return ErrInvalidResolveSettings }

// IsValid returns whether the HookSettings has valid fields. Script paths
// follow the OptionalPath rules; each requirement validates individually.
func (s HookSettings) IsValid() (bool, []error) {
	var errs []error
	for _, script := range []OptionalPath{s.PreBuild, s.PostBuild, s.PreCompose, s.PostCompose} {
		if valid, fieldErrs := script.IsValid(); !valid {
			errs = append(errs, fieldErrs...)
		}
	}
	for _, req := range s.Requires {
		if valid, fieldErrs := req.IsValid(); !valid {
			errs = append(errs, fieldErrs...)
		}
	}
	if len(errs) > 0 {
		return false, []error{&InvalidHookSettingsError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidHookSettingsError.
func (e *InvalidHookSettingsError) Error() string {
	return fmt.Sprintf("invalid hook settings: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidHookSettings for errors.Is() compatibility.
func (e *InvalidHookSettingsError) Unwrap() error { return ErrInvalidHookSettings }

// IsValid returns whether the UISettings has valid fields.
func (s UISettings) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := s.ColorScheme.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidUISettingsError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidUISettingsError.
func (e *InvalidUISettingsError) Error() string {
	return fmt.Sprintf("invalid UI settings: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidUISettings for errors.Is() compatibility.
func (e *InvalidUISettingsError) Unwrap() error { return ErrInvalidUISettings }

// IsValid returns whether the Settings has valid fields. It cascades into
// every sub-section and each tools.* override.
func (s Settings) IsValid() (bool, []error) {
	var errs []error
	for tool, path := range s.Tools {
		if strings.TrimSpace(string(path)) == "" {
			errs = append(errs, &InvalidToolPathError{Tool: tool, Value: path})
		}
	}
	if valid, fieldErrs := s.Exec.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := s.Build.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := s.Archive.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := s.Resolve.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := s.Policy.RulesFile.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := s.Hooks.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := s.UI.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidSettingsError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidSettingsError.
func (e *InvalidSettingsError) Error() string {
	return fmt.Sprintf("invalid settings: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidSettings for errors.Is() compatibility.
func (e *InvalidSettingsError) Unwrap() error { return ErrInvalidSettings }

// ToolOverrides returns the tools.* map as plain strings for toolchain wiring.
func (s Settings) ToolOverrides() map[string]string {
	if len(s.Tools) == 0 {
		return nil
	}
	overrides := make(map[string]string, len(s.Tools))
	for tool, path := range s.Tools {
		overrides[tool] = string(path)
	}
	return overrides
}

// DefaultSettings returns the default configuration.
func DefaultSettings() *Settings {
	return &Settings{
		Tools: map[string]ToolPath{},
		Exec: ExecSettings{
			TimeoutSeconds:     300,
			OutputCapBytes:     10 * 1024 * 1024,
			ReaderGraceSeconds: 2,
			ErrorExcerptBytes:  2048,
			PoliciesFile:       "",
		},
		Build: BuildSettings{
			DiskMultiplier: 2.0,
			DiskMarginMB:   128,
			ScratchDir:     "",
			KeepScratch:    false,
			CleanupRetries: 3,
			ValidateAssets: true,
		},
		Archive: ArchiveSettings{
			CompressionLevel:  6,
			StagingDir:        "",
			WriteInstructions: true,
		},
		Resolve: ResolveSettings{
			MaxDepth:          3,
			IncludeFrameworks: true,
			IncludeOptional:   false,
		},
		Policy: PolicySettings{
			Enabled:   false,
			RulesFile: "",
		},
		Hooks: HookSettings{},
		UI: UISettings{
			ColorScheme: ColorSchemeAuto,
			Verbose:     false,
		},
	}
}
