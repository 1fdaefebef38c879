package walk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

type Type int

const (
	Auto Type = iota
	Filesystem
	Git
)

// Include selects the files which are handed to elm-format.
const Include = "*.elm"

var ErrInvalidType = errors.New("invalid walk type")

func (t Type) String() string {
	switch t {
	case Auto:
		return "auto"
	case Filesystem:
		return "filesystem"
	case Git:
		return "git"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

func TypeString(s string) (Type, error) {
	for _, t := range []Type{Auto, Filesystem, Git} {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}

	return Auto, fmt.Errorf("%w: %q, expected one of <auto|git|filesystem>", ErrInvalidType, s)
}

// File is a path found while walking.
type File struct {
	Path    string
	RelPath string
	Info    fs.FileInfo
}

func (f File) String() string {
	return f.Path
}

type WalkFunc func(file *File) error

// Walker lists the regular files below a set of paths.
type Walker interface {
	Root() string
	Walk(ctx context.Context, paths []string, fn WalkFunc) error
}

// New creates a Walker for root.
// Auto uses the git index when root is inside a git repository and falls back to the filesystem otherwise.
//
//nolint:ireturn
func New(walkerType Type, root string) (Walker, error) {
	switch walkerType {
	case Auto:
		walker, err := NewGit(root)
		if err == nil {
			return walker, nil
		}

		return NewFilesystem(root), nil
	case Filesystem:
		return NewFilesystem(root), nil
	case Git:
		return NewGit(root)
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidType, walkerType)
	}
}

// Filter decides which walked files are formatted.
type Filter struct {
	include  glob.Glob
	excludes []glob.Glob
}

func NewFilter(excludes []string) (*Filter, error) {
	include, err := glob.Compile(Include)
	if err != nil {
		return nil, fmt.Errorf("failed to compile include pattern '%v': %w", Include, err)
	}

	globs := make([]glob.Glob, len(excludes))

	for i, pattern := range excludes {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to compile exclude pattern '%v': %w", pattern, err)
		}

		globs[i] = g
	}

	return &Filter{include: include, excludes: globs}, nil
}

// Excluded reports whether the file matches any exclude pattern.
func (f *Filter) Excluded(file *File) bool {
	relPath := filepath.ToSlash(file.RelPath)

	for _, g := range f.excludes {
		if g.Match(relPath) {
			return true
		}
	}

	return false
}

// Wants reports whether the file is an Elm source which has not been excluded.
func (f *Filter) Wants(file *File) bool {
	return f.include.Match(filepath.ToSlash(file.RelPath)) && !f.Excluded(file)
}

func relPath(root string, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}

	return rel
}
