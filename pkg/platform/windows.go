// SPDX-License-Identifier: MPL-2.0

package platform

import "strings"

// WindowsReservedNames is the set of DOS device names that cannot be used as
// file or directory names on Windows, in any case and with any extension.
// Archive staging and package output paths are checked against this set so a
// backup produced on one OS restores cleanly on Windows.
var WindowsReservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// IsWindowsReservedName reports whether name collides with a reserved DOS
// device name. Windows reserves the base name up to the first dot, so
// "con.txt" and "con.tar.gz" are both reserved while "confile" is not.
func IsWindowsReservedName(name string) bool {
	if name == "" {
		return false
	}
	base := name
	if idx := strings.IndexByte(base, '.'); idx >= 0 {
		base = base[:idx]
	}
	return WindowsReservedNames[strings.ToUpper(base)]
}
