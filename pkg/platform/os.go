// SPDX-License-Identifier: MPL-2.0

package platform

import "runtime"

// OS name constants for runtime.GOOS comparisons.
// Centralizes the string literals to avoid scattered magic strings.
const (
	Windows = "windows"
	Darwin  = "darwin"
	Linux   = "linux"
)

// IsWindows reports whether the current OS is Windows. Inventory queries and
// SDK tool discovery only have a native backend there.
func IsWindows() bool { return runtime.GOOS == Windows }
