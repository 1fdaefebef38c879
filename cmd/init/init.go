package init

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileName is the settings file created by Run.
const FileName = "elm-format-on-save.toml"

var ErrExists = errors.New("settings file already exists")

// We embed the sample toml file for use with the init command.
//
//go:embed init.toml
var initBytes []byte

// Run writes a sample settings file into dir.
func Run(dir string, out io.Writer) error {
	path := filepath.Join(dir, FileName)

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, path)
	}

	if err := os.WriteFile(path, initBytes, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", FileName, err)
	}

	_, _ = fmt.Fprintf(out, "Generated %s. Now it's your turn to edit it.\n", FileName)

	return nil
}
