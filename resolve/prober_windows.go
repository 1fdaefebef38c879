//go:build windows

package resolve

import "io/fs"

// windows has no execute bit, a regular file reached through PATHEXT is as close as we get.
func executable(_ string, info fs.FileInfo) bool {
	return info.Mode().IsRegular()
}
