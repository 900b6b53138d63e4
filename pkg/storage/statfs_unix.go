//go:build linux || darwin

package storage

import "golang.org/x/sys/unix"

// diskUsage returns the size and the space available to unprivileged users
// of the volume holding path.
func diskUsage(path string) (total, free uint64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	bsize := uint64(st.Bsize)
	return st.Blocks * bsize, uint64(st.Bavail) * bsize, nil
}
