package guard

import "syscall"

// ReadDiskFreeBytes reports free bytes on the filesystem containing path.
// Linux-only, same reasoning as ReadRAMUsedPct: no disk-stats library is
// wired elsewhere in this module, so this stays on syscall.Statfs rather
// than inventing a dependency.
func ReadDiskFreeBytes(path string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
