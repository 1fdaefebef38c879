//go:build !windows

package resolve

import (
	"io/fs"

	"golang.org/x/sys/unix"
)

func executable(path string, _ fs.FileInfo) bool {
	return unix.Access(path, unix.X_OK) == nil
}
