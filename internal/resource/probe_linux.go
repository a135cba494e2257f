//go:build linux

package resource

import "golang.org/x/sys/unix"

// hostMemory reads total and available memory from sysinfo. Freeram plus
// Bufferram approximates reclaimable memory without parsing /proc/meminfo.
func hostMemory() (total, free uint64, err error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, 0, err
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	total = uint64(info.Totalram) * unit
	free = (uint64(info.Freeram) + uint64(info.Bufferram)) * unit
	return total, free, nil
}

// hostDisk reads filesystem capacity via statfs. Bavail counts blocks
// available to unprivileged users, which is what callers can actually write.
func hostDisk(path string) (total, free uint64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	bsize := uint64(st.Bsize)
	return st.Blocks * bsize, st.Bavail * bsize, nil
}
