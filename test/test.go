package test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	cp "github.com/otiai10/copy"
	"github.com/stretchr/testify/require"
)

// Normalise is a fake elm-format which checks its arguments and collapses the whitespace around `=`.
const Normalise = `
if [ "$1" != "--stdin" ] || [ "$2" != "--yes" ] || [ "$3" != "--elm-version=0.19" ]; then
	echo "unexpected arguments: $*" >&2
	exit 2
fi
sed -e 's/ *= */ = /g'
`

// ParseError is a fake elm-format which reports a coloured error and exits non-zero.
const ParseError = `
cat > /dev/null
printf '\033[31mParse error\033[0m\n' >&2
exit 1
`

// Identity is a fake elm-format for content which is already formatted.
const Identity = `cat`

// WriteSettings encodes settings as TOML into path.
func WriteSettings(t *testing.T, path string, settings map[string]any) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create a new settings file: %v", err)
	}

	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err = encoder.Encode(settings); err != nil {
		t.Fatalf("failed to write to settings file: %v", err)
	}
}

// WriteFormatter writes a shell script named elm-format into dir and returns its path.
func WriteFormatter(t *testing.T, dir string, script string) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake formatters are shell scripts")
	}

	require.NoError(t, os.MkdirAll(dir, 0o755), "failed to create formatter directory")

	path := filepath.Join(dir, "elm-format")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755), "failed to write formatter")

	return path
}

// TempExamples copies the example Elm project into a temporary directory and returns its path.
func TempExamples(t *testing.T) string {
	t.Helper()

	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok, "failed to locate test helpers")

	tempDir := t.TempDir()
	require.NoError(t, cp.Copy(filepath.Join(filepath.Dir(file), "examples"), tempDir), "failed to copy test data")

	return tempDir
}

func TempFile(t *testing.T, dir string, pattern string, contents *string) *os.File {
	t.Helper()

	file, err := os.CreateTemp(dir, pattern)
	require.NoError(t, err, "failed to create temp file")

	if contents == nil {
		return file
	}

	_, err = file.WriteString(*contents)
	require.NoError(t, err, "failed to write contents to temp file")
	require.NoError(t, file.Close(), "failed to close temp file")

	file, err = os.Open(file.Name())
	require.NoError(t, err, "failed to open temp file")

	return file
}

// ChangeWorkDir changes the current working directory for the duration of the test.
func ChangeWorkDir(t *testing.T, dir string) {
	t.Helper()

	cwd, err := os.Getwd()
	require.NoError(t, err, "failed to get current working directory")

	t.Cleanup(func() {
		require.NoError(t, os.Chdir(cwd), "failed to restore working directory")
	})

	require.NoError(t, os.Chdir(dir), "failed to change working directory")
}

// IsolateXDG points the XDG config and cache directories into a temporary directory for the duration of the test.
// It returns the config home.
func IsolateXDG(t *testing.T) string {
	t.Helper()

	// registered first so it runs after the environment has been restored
	t.Cleanup(xdg.Reload)

	home := t.TempDir()

	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "config"))
	t.Setenv("XDG_CONFIG_DIRS", filepath.Join(home, "config-dirs"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(home, "cache"))
	t.Setenv("ELM_FORMAT_ON_SAVE_SETTINGS", "")
	xdg.Reload()

	return filepath.Join(home, "config")
}
