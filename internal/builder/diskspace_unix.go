// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package builder

import "golang.org/x/sys/unix"

// freeSpace returns the available bytes on the volume holding path.
func freeSpace(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
