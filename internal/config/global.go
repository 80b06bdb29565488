// SPDX-License-Identifier: MPL-2.0

package config

// configDirOverride redirects config-directory resolution in tests.
// os.UserHomeDir() does not reliably follow the HOME environment variable
// on every platform (macOS CI in particular), so tests set this instead.
var configDirOverride string

// Reset clears test overrides. Call from test cleanup to restore defaults.
func Reset() {
	configDirOverride = ""
}

// SetConfigDirOverride points config-directory resolution at dir. Intended
// for tests that cannot rely on os.UserHomeDir() honoring HOME.
func SetConfigDirOverride(dir string) {
	configDirOverride = dir
}
