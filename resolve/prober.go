package resolve

import (
	"os"

	"github.com/go-git/go-billy/v5"
)

// Prober answers the two filesystem questions asked while resolving the formatter.
type Prober interface {
	// Exists reports whether path names an existing file.
	Exists(path string) bool
	// Executable reports whether path can be executed by the current user.
	Executable(path string) bool
}

// OSProber probes the host filesystem.
type OSProber struct{}

func (OSProber) Exists(path string) bool {
	_, err := os.Stat(path)

	return err == nil
}

func (OSProber) Executable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}

	return executable(path, info)
}

// BillyProber probes a billy filesystem, treating any execute permission bit as executable.
type BillyProber struct {
	FS billy.Filesystem
}

func (b BillyProber) Exists(path string) bool {
	_, err := b.FS.Stat(path)

	return err == nil
}

func (b BillyProber) Executable(path string) bool {
	info, err := b.FS.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}

	return info.Mode().Perm()&0o111 != 0
}
