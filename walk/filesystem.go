package walk

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
)

// skipDirs are never descended into when walking the filesystem.
var skipDirs = map[string]bool{
	".git":         true,
	"elm-stuff":    true,
	"node_modules": true,
}

type filesystemWalker struct {
	root string
}

func (f filesystemWalker) Root() string {
	return f.root
}

func (f filesystemWalker) Walk(ctx context.Context, paths []string, fn WalkFunc) error {
	if len(paths) == 0 {
		paths = []string{f.root}
	}

	walkFn := func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if entry.IsDir() {
			if skipDirs[entry.Name()] {
				return filepath.SkipDir
			}

			return nil
		}

		if !entry.Type().IsRegular() {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}

		return fn(&File{
			Path:    path,
			RelPath: relPath(f.root, path),
			Info:    info,
		})
	}

	for _, path := range paths {
		if err := filepath.WalkDir(path, walkFn); err != nil {
			return fmt.Errorf("failed to walk %s: %w", path, err)
		}
	}

	return nil
}

func NewFilesystem(root string) Walker {
	return filesystemWalker{root}
}
