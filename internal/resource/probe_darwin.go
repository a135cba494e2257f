//go:build darwin

package resource

import "golang.org/x/sys/unix"

// hostMemory reads total memory from sysctl. Available memory is not cheaply
// observable on darwin without mach calls; free is approximated as total,
// which keeps darwin development machines at LevelOK.
func hostMemory() (total, free uint64, err error) {
	memsize, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return 0, 0, err
	}
	return memsize, memsize, nil
}

// hostDisk reads filesystem capacity via statfs.
func hostDisk(path string) (total, free uint64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	bsize := uint64(st.Bsize)
	return st.Blocks * bsize, st.Bavail * bsize, nil
}
