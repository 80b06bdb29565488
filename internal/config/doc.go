// SPDX-License-Identifier: MPL-2.0

// Package config handles application configuration using Viper with CUE as the file format.
//
// Configuration is loaded from ~/.config/packmule/config.cue (or XDG equivalent on Linux,
// ~/Library/Application Support/packmule/config.cue on macOS, %APPDATA%\packmule\config.cue
// on Windows), falling back to a packmule.cue in the working directory. The package provides
// type-safe access to tool path overrides, process execution limits, build and archive
// tuning, dependency resolution bounds, policy rules, lifecycle hooks, and UI settings.
//
// Configuration validation is performed against a CUE schema (config_schema.cue) to ensure
// type safety and provide clear error messages for invalid configurations.
package config
