// Package resolve locates the elm-format executable for a buffer.
package resolve

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
	"github.com/numtide/elm-format-on-save/config"
	"mvdan.cc/sh/v3/expand"
)

const (
	// Command is the base name of the formatter executable.
	Command = "elm-format"

	// MaxAncestors bounds the upward search for node_modules/.bin, the starting directory included.
	MaxAncestors = 500

	defaultPathExt = ".com;.exe;.bat;.cmd"
)

var (
	// ErrInvalidAbsolutePath is returned when absolute_path is set but is not an absolute path to an executable.
	// Resolution never falls back to the other strategies in that case.
	ErrInvalidAbsolutePath = errors.New("invalid absolute_path")
	// ErrNotFound is matched by NotFoundError.
	ErrNotFound = errors.New("elm-format not found")
)

// NotFoundError is returned when no strategy found the executable.
// Searched lists the PATH directories which were checked, in order.
type NotFoundError struct {
	Searched []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%v: searched %d PATH directories", ErrNotFound, len(e.Searched))
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// Request carries everything a resolution depends on. Nothing is cached between requests.
type Request struct {
	// ViewFile is the path of the buffer being formatted, empty if it has never been saved.
	ViewFile string
	Settings *config.Settings
	// Folders are the project folders open in the editor.
	Folders []string
	// ActiveFile is the path of the editor's active buffer, empty if there is none.
	ActiveFile string
	// Env provides PATH and PATHEXT. Defaults to the process environment.
	Env expand.Environ
	// Home is the fallback project path. Defaults to the user's home directory.
	Home string
}

type Resolver struct {
	Prober Prober
	// GOOS selects the platform rules for PATH splitting and executable suffixes.
	GOOS string

	log *log.Logger
}

func New(prober Prober) *Resolver {
	return &Resolver{
		Prober: prober,
		GOOS:   runtime.GOOS,
		log:    log.WithPrefix("resolve"),
	}
}

// Resolve returns the path of the elm-format executable to use for req.
// The strategies are tried in order and the first match wins:
//  1. absolute_path from the settings, which is terminal when set
//  2. node_modules/.bin in the buffer's directory or any of its ancestors
//  3. node_modules/elm-format/bin in the active project, as installed with --no-bin-links
//  4. the directories listed in PATH
func (r *Resolver) Resolve(req Request) (string, error) {
	if path, ok, err := r.absolutePath(req.Settings); err != nil {
		return "", err
	} else if ok {
		r.log.Debugf("using absolute_path: %s", path)

		return path, nil
	}

	if path, ok := r.ancestorBin(req.ViewFile); ok {
		r.log.Debugf("found in node_modules: %s", path)

		return path, nil
	}

	home := req.Home
	if home == "" {
		home = xdg.Home
	}

	project := ProjectPath(req.Folders, req.ActiveFile, home)

	noBinLinks := filepath.Join(project, "node_modules", Command, "bin", Command)
	if r.Prober.Exists(noBinLinks) {
		r.log.Debugf("found in project node_modules: %s", noBinLinks)

		return noBinLinks, nil
	}

	env := req.Env
	if env == nil {
		env = expand.ListEnviron(os.Environ()...)
	}

	path, searched, ok := r.searchPath(env)
	if !ok {
		return "", &NotFoundError{Searched: searched}
	}

	r.log.Debugf("found on PATH: %s", path)

	return path, nil
}

func (r *Resolver) absolutePath(settings *config.Settings) (string, bool, error) {
	if settings == nil || settings.AbsolutePath == nil {
		return "", false, nil
	}

	given, isString := settings.AbsolutePath.(string)
	if isString && given == "" {
		return "", false, nil
	}

	if isString && filepath.IsAbs(given) && r.Prober.Executable(given) {
		return given, true, nil
	}

	return "", false, fmt.Errorf("%w: %v", ErrInvalidAbsolutePath, settings.AbsolutePath)
}

func (r *Resolver) ancestorBin(viewFile string) (string, bool) {
	if viewFile == "" {
		return "", false
	}

	names := []string{Command}
	if r.GOOS == "windows" {
		names = []string{Command + ".cmd", Command}
	}

	for _, dir := range Ancestors(filepath.Dir(viewFile), MaxAncestors) {
		for _, name := range names {
			candidate := filepath.Join(dir, "node_modules", ".bin", name)
			if r.Prober.Exists(candidate) {
				return candidate, true
			}
		}
	}

	return "", false
}

func (r *Resolver) searchPath(env expand.Environ) (string, []string, bool) {
	sep := ":"
	exts := []string{""}

	if r.GOOS == "windows" {
		sep = ";"

		pathExt := env.Get("PATHEXT").String()
		if pathExt == "" {
			pathExt = defaultPathExt
		}

		exts = splitList(strings.ToLower(pathExt), sep)
	}

	searched := []string{}

	for _, dir := range splitList(env.Get("PATH").String(), sep) {
		searched = append(searched, dir)

		for _, ext := range exts {
			candidate := filepath.Join(dir, Command+ext)
			if r.Prober.Executable(candidate) {
				return candidate, searched, true
			}
		}
	}

	return "", searched, false
}

// Ancestors returns dir followed by its parents, closest first.
// At most limit directories are returned, fewer if the filesystem root is reached first.
func Ancestors(dir string, limit int) []string {
	var dirs []string

	for len(dirs) < limit {
		dirs = append(dirs, dir)

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}

		dir = parent
	}

	return dirs
}

// ProjectPath determines the active project path.
// With a single folder open it is that folder. Otherwise it is the first folder containing activeFile,
// falling back to the directory of activeFile. Without an active file it is the first folder, or home when no
// folders are open at all.
func ProjectPath(folders []string, activeFile string, home string) string {
	if len(folders) == 1 {
		return folders[0]
	}

	if activeFile == "" {
		if len(folders) > 0 {
			return folders[0]
		}

		return home
	}

	// a plain prefix match, so /src also claims /src2/Main.elm
	for _, folder := range folders {
		if strings.HasPrefix(activeFile, folder) {
			return folder
		}
	}

	return filepath.Dir(activeFile)
}

func splitList(list string, sep string) []string {
	var entries []string

	for _, entry := range strings.Split(list, sep) {
		if entry != "" {
			entries = append(entries, entry)
		}
	}

	return entries
}
