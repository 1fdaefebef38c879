package resolve_test

import (
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/numtide/elm-format-on-save/config"
	"github.com/numtide/elm-format-on-save/resolve"
	"github.com/stretchr/testify/require"
	"mvdan.cc/sh/v3/expand"
)

func newFS(t *testing.T, executables []string, plain ...string) billy.Filesystem {
	t.Helper()

	fs := memfs.New()

	for _, path := range executables {
		require.NoError(t, util.WriteFile(fs, path, []byte("#!/bin/sh\n"), 0o755))
	}

	for _, path := range plain {
		require.NoError(t, util.WriteFile(fs, path, []byte("not a program\n"), 0o644))
	}

	return fs
}

func newResolver(fs billy.Filesystem) *resolve.Resolver {
	r := resolve.New(resolve.BillyProber{FS: fs})
	r.GOOS = "linux"

	return r
}

func env(pairs ...string) expand.Environ {
	return expand.ListEnviron(pairs...)
}

func TestAbsolutePath(t *testing.T) {
	as := require.New(t)

	fs := newFS(t,
		[]string{
			"/opt/elm-format",
			"/home/user/project/node_modules/.bin/elm-format",
			"/usr/bin/elm-format",
		},
		"/not/executable",
	)

	r := newResolver(fs)

	base := resolve.Request{
		ViewFile: "/home/user/project/src/Main.elm",
		Folders:  []string{"/home/user/project"},
		Env:      env("PATH=/usr/bin"),
		Home:     "/home/user",
	}

	t.Run("valid", func(t *testing.T) {
		req := base
		req.Settings = &config.Settings{AbsolutePath: "/opt/elm-format"}

		path, err := r.Resolve(req)
		as.NoError(err)
		as.Equal("/opt/elm-format", path)
	})

	t.Run("not executable", func(t *testing.T) {
		req := base
		req.Settings = &config.Settings{AbsolutePath: "/not/executable"}

		_, err := r.Resolve(req)
		as.ErrorIs(err, resolve.ErrInvalidAbsolutePath)
	})

	t.Run("missing", func(t *testing.T) {
		req := base
		req.Settings = &config.Settings{AbsolutePath: "/does/not/exist"}

		_, err := r.Resolve(req)
		as.ErrorIs(err, resolve.ErrInvalidAbsolutePath)
	})

	t.Run("relative", func(t *testing.T) {
		req := base
		req.Settings = &config.Settings{AbsolutePath: "opt/elm-format"}

		_, err := r.Resolve(req)
		as.ErrorIs(err, resolve.ErrInvalidAbsolutePath)
	})

	t.Run("not a string", func(t *testing.T) {
		req := base
		req.Settings = &config.Settings{AbsolutePath: 42}

		_, err := r.Resolve(req)
		as.ErrorIs(err, resolve.ErrInvalidAbsolutePath)
	})

	t.Run("empty falls through", func(t *testing.T) {
		req := base
		req.Settings = &config.Settings{AbsolutePath: ""}

		path, err := r.Resolve(req)
		as.NoError(err)
		as.Equal("/home/user/project/node_modules/.bin/elm-format", path)
	})
}

func TestAncestorNodeModules(t *testing.T) {
	as := require.New(t)

	fs := newFS(t, []string{
		"/work/node_modules/.bin/elm-format",
		"/work/app/node_modules/.bin/elm-format",
		"/usr/bin/elm-format",
	})

	r := newResolver(fs)

	// closest wins
	path, err := r.Resolve(resolve.Request{
		ViewFile: "/work/app/src/Page/Home.elm",
		Env:      env("PATH=/usr/bin"),
		Home:     "/home/user",
	})
	as.NoError(err)
	as.Equal("/work/app/node_modules/.bin/elm-format", path)

	// further up the tree
	path, err = r.Resolve(resolve.Request{
		ViewFile: "/work/lib/src/Lib.elm",
		Env:      env("PATH=/usr/bin"),
		Home:     "/home/user",
	})
	as.NoError(err)
	as.Equal("/work/node_modules/.bin/elm-format", path)

	// an unsaved buffer skips the search
	path, err = r.Resolve(resolve.Request{
		Env:  env("PATH=/usr/bin"),
		Home: "/home/user",
	})
	as.NoError(err)
	as.Equal("/usr/bin/elm-format", path)
}

func TestAncestorWindowsCmd(t *testing.T) {
	as := require.New(t)

	fs := newFS(t, []string{"/work/node_modules/.bin/elm-format.cmd"})

	r := newResolver(fs)
	r.GOOS = "windows"

	path, err := r.Resolve(resolve.Request{
		ViewFile: "/work/src/Main.elm",
		Env:      env("PATH="),
		Home:     "/home/user",
	})
	as.NoError(err)
	as.Equal(filepath.Join("/work", "node_modules", ".bin", "elm-format.cmd"), path)
}

func TestAncestors(t *testing.T) {
	as := require.New(t)

	as.Equal([]string{"/a/b/c", "/a/b", "/a", "/"}, resolve.Ancestors("/a/b/c", resolve.MaxAncestors))
	as.Equal([]string{"/a/b/c", "/a/b"}, resolve.Ancestors("/a/b/c", 2))
	as.Equal([]string{"/"}, resolve.Ancestors("/", resolve.MaxAncestors))
	as.Empty(resolve.Ancestors("/a", 0))
}

func TestNoBinLinks(t *testing.T) {
	as := require.New(t)

	fs := newFS(t, []string{
		"/projects/one/node_modules/elm-format/bin/elm-format",
		"/home/user/node_modules/elm-format/bin/elm-format",
	})

	r := newResolver(fs)

	path, err := r.Resolve(resolve.Request{
		ViewFile: "/elsewhere/Main.elm",
		Folders:  []string{"/projects/one"},
		Env:      env("PATH="),
		Home:     "/home/user",
	})
	as.NoError(err)
	as.Equal("/projects/one/node_modules/elm-format/bin/elm-format", path)

	// no folders and no active file falls back to home
	path, err = r.Resolve(resolve.Request{
		Env:  env("PATH="),
		Home: "/home/user",
	})
	as.NoError(err)
	as.Equal("/home/user/node_modules/elm-format/bin/elm-format", path)
}

func TestPathSearch(t *testing.T) {
	as := require.New(t)

	fs := newFS(t,
		[]string{"/opt/elm/bin/elm-format", "/usr/local/bin/elm-format"},
		"/usr/bin/elm-format",
	)

	r := newResolver(fs)

	path, err := r.Resolve(resolve.Request{
		Env:  env("PATH=/bin:/usr/bin::/usr/local/bin:/opt/elm/bin"),
		Home: "/home/user",
	})
	as.NoError(err)
	as.Equal("/usr/local/bin/elm-format", path)
}

func TestPathSearchWindows(t *testing.T) {
	as := require.New(t)

	fs := newFS(t, []string{"/w2/elm-format.cmd", "/w3/elm-format.exe"})

	r := newResolver(fs)
	r.GOOS = "windows"

	path, err := r.Resolve(resolve.Request{
		Env:  env("PATH=/w1;/w2;/w3", "PATHEXT=.EXE;.CMD"),
		Home: "/home/user",
	})
	as.NoError(err)
	as.Equal(filepath.Join("/w2", "elm-format.cmd"), path)

	// the bare name is not tried on windows
	fs = newFS(t, []string{"/w1/elm-format"})
	r = newResolver(fs)
	r.GOOS = "windows"

	_, err = r.Resolve(resolve.Request{
		Env:  env("PATH=/w1", "PATHEXT=.EXE"),
		Home: "/home/user",
	})
	as.ErrorIs(err, resolve.ErrNotFound)
}

func TestNotFound(t *testing.T) {
	as := require.New(t)

	r := newResolver(newFS(t, nil, "/usr/bin/elm-format"))

	_, err := r.Resolve(resolve.Request{
		ViewFile: "/work/src/Main.elm",
		Env:      env("PATH=/bin:/usr/bin"),
		Home:     "/home/user",
	})
	as.ErrorIs(err, resolve.ErrNotFound)

	var notFound *resolve.NotFoundError
	as.ErrorAs(err, &notFound)
	as.Equal([]string{"/bin", "/usr/bin"}, notFound.Searched)

	// empty PATH searches nothing
	_, err = r.Resolve(resolve.Request{
		ViewFile: "/work/src/Main.elm",
		Env:      env("PATH="),
		Home:     "/home/user",
	})
	as.ErrorAs(err, &notFound)
	as.NotNil(notFound.Searched)
	as.Empty(notFound.Searched)
}

func TestProjectPath(t *testing.T) {
	tests := []struct {
		name       string
		folders    []string
		activeFile string
		expected   string
	}{
		{
			name:       "single folder",
			folders:    []string{"/one"},
			activeFile: "/elsewhere/Main.elm",
			expected:   "/one",
		},
		{
			name:       "matching folder",
			folders:    []string{"/one", "/two"},
			activeFile: "/two/src/Main.elm",
			expected:   "/two",
		},
		{
			name:       "prefix match",
			folders:    []string{"/src", "/other"},
			activeFile: "/src2/Main.elm",
			expected:   "/src",
		},
		{
			name:       "no matching folder",
			folders:    []string{"/one", "/two"},
			activeFile: "/three/src/Main.elm",
			expected:   "/three/src",
		},
		{
			name:     "no active file",
			folders:  []string{"/one", "/two"},
			expected: "/one",
		},
		{
			name:     "nothing open",
			expected: "/home/user",
		},
		{
			name:       "active file without folders",
			activeFile: "/tmp/Main.elm",
			expected:   "/tmp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, resolve.ProjectPath(tt.folders, tt.activeFile, "/home/user"))
		})
	}
}
