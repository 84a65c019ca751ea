//go:build linux || darwin

package service

import "golang.org/x/sys/unix"

// diskAvailable 返回 path 所在文件系统对当前用户可用的字节数。
func diskAvailable(path string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}
