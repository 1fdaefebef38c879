package walk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/filemode"
)

type gitWalker struct {
	root string
	log  *log.Logger
	repo *git.Repository
}

func (g gitWalker) Root() string {
	return g.root
}

func (g gitWalker) Walk(ctx context.Context, paths []string, fn WalkFunc) error {
	gitIndex, err := g.repo.Storer.Index()
	if err != nil {
		return fmt.Errorf("failed to open git index: %w", err)
	}

	if len(paths) == 0 {
		paths = []string{g.root}
	}

	// index entries are relative to the repository root and use forward slashes
	prefixes := make([]string, len(paths))

	for idx, path := range paths {
		path = filepath.Clean(path)
		if !strings.HasPrefix(path, g.root) {
			return fmt.Errorf("path '%s' is outside of the git repository '%s'", path, g.root)
		}

		prefixes[idx] = filepath.ToSlash(relPath(g.root, path))
	}

	for _, entry := range gitIndex.Entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// we only want regular files, not directories, symlinks or submodules
		if entry.Mode != filemode.Regular && entry.Mode != filemode.Executable {
			continue
		}

		if !underAny(entry.Name, prefixes) {
			continue
		}

		path := filepath.Join(g.root, filepath.FromSlash(entry.Name))

		info, err := os.Lstat(path)
		if os.IsNotExist(err) {
			// the underlying file might have been removed without the change being staged yet
			g.log.Warnf("path %s is in the index but appears to have been removed from the filesystem", path)

			continue
		} else if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}

		if err = fn(&File{
			Path:    path,
			RelPath: filepath.FromSlash(entry.Name),
			Info:    info,
		}); err != nil {
			return err
		}
	}

	return nil
}

func underAny(name string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix == "." || name == prefix || strings.HasPrefix(name, prefix+"/") {
			return true
		}
	}

	return false
}

// NewGit creates a Walker over the git index of the repository containing root.
//
//nolint:ireturn
func NewGit(root string) (Walker, error) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to open git worktree: %w", err)
	}

	return gitWalker{
		root: filepath.Clean(worktree.Filesystem.Root()),
		log:  log.WithPrefix("walk[git]"),
		repo: repo,
	}, nil
}
