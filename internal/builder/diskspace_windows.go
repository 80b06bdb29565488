// SPDX-License-Identifier: MPL-2.0

//go:build windows

package builder

import "golang.org/x/sys/windows"

// freeSpace returns the available bytes on the volume holding path.
func freeSpace(path string) (uint64, error) {
	var free, total, totalFree uint64
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	if err := windows.GetDiskFreeSpaceEx(p, &free, &total, &totalFree); err != nil {
		return 0, err
	}
	return free, nil
}
