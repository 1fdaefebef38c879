package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "elm_format_on_save"

	// KeyAbsolutePath is the settings key overriding executable resolution.
	KeyAbsolutePath = "absolute_path"
	// KeyOnSave is the settings key controlling the pre-save hook.
	KeyOnSave = "on_save"

	xdgSettingsFile = "elm-format-on-save/settings.toml"
	sublimeExt      = ".sublime-settings"
)

var (
	ErrSettingsNotFound = errors.New("could not find a settings file")

	// FileNames are searched for in every directory from the working directory upwards.
	FileNames = []string{
		"elm-format-on-save.toml",
		".elm-format-on-save.toml",
		"elm-format-on-save" + sublimeExt,
	}
)

// Settings holds the values consulted on every format request.
// Both fields are kept as decoded, since a value of the wrong shape is itself a configuration error which must be
// reported rather than coerced.
type Settings struct {
	// AbsolutePath overrides executable resolution when it is a non-empty string.
	AbsolutePath any `mapstructure:"absolute_path"`
	// OnSave is either a bool or a table with optional `including` and `excluding` string lists.
	OnSave any `mapstructure:"on_save"`
}

// Options are the command line options which sit around the settings.
type Options struct {
	SettingsFile     string   `mapstructure:"settings-file"`
	WorkingDirectory string   `mapstructure:"working-dir"`
	Verbose          uint8    `mapstructure:"verbose"`
	Quiet            bool     `mapstructure:"quiet"`
	Projects         []string `mapstructure:"project"`
	Excludes         []string `mapstructure:"excludes"`
	Walk             string   `mapstructure:"walk"`
	NoCache          bool     `mapstructure:"no-cache"`
	ClearCache       bool     `mapstructure:"clear-cache"`
	FailOnChange     bool     `mapstructure:"fail-on-change"`
	Stdin            bool     `mapstructure:"stdin"`
	Stats            bool     `mapstructure:"stats"`
}

// SetFlags appends the flags shared by every command to the provided flag set.
func SetFlags(fs *pflag.FlagSet) {
	fs.String(
		"absolute-path", "",
		"Use the elm-format executable at this absolute path, skipping any lookup. "+
			"(env $ELM_FORMAT_ON_SAVE_ABSOLUTE_PATH)",
	)
	fs.String(
		"settings-file", "",
		"Load settings from the given path (defaults to searching upwards for elm-format-on-save.toml). "+
			"(env $ELM_FORMAT_ON_SAVE_SETTINGS_FILE)",
	)
	fs.StringSlice(
		"project", nil,
		"Project folders used to locate a project-local elm-format (defaults to the working directory). "+
			"(env $ELM_FORMAT_ON_SAVE_PROJECT)",
	)
	fs.CountP(
		"verbose", "v",
		"Set the verbosity of logs e.g. -vv. (env $ELM_FORMAT_ON_SAVE_VERBOSE)",
	)
	fs.BoolP(
		"quiet", "q", false,
		"Only log errors. (env $ELM_FORMAT_ON_SAVE_QUIET)",
	)
	fs.StringP(
		"working-dir", "C", ".",
		"Run as if started in the specified working directory instead of the current working directory. "+
			"(env $ELM_FORMAT_ON_SAVE_WORKING_DIR)",
	)
}

// SetFormatFlags appends the flags which only apply when formatting files from the command line.
func SetFormatFlags(fs *pflag.FlagSet) {
	fs.Bool(
		"stdin", false,
		"Format the content passed in via stdin and write the result to stdout.",
	)
	fs.Bool(
		"no-cache", false,
		"Ignore the format cache entirely. (env $ELM_FORMAT_ON_SAVE_NO_CACHE)",
	)
	fs.BoolP(
		"clear-cache", "c", false,
		"Reset the format cache before running. (env $ELM_FORMAT_ON_SAVE_CLEAR_CACHE)",
	)
	fs.StringSlice(
		"excludes", nil,
		"Exclude files or directories matching the specified globs. (env $ELM_FORMAT_ON_SAVE_EXCLUDES)",
	)
	fs.String(
		"walk", "auto",
		"The method used to find .elm files within directory arguments. Currently supports "+
			"<auto|git|filesystem>. (env $ELM_FORMAT_ON_SAVE_WALK)",
	)
	fs.Bool(
		"fail-on-change", false,
		"Exit with error if any changes were made. Useful for CI. (env $ELM_FORMAT_ON_SAVE_FAIL_ON_CHANGE)",
	)
	fs.Bool(
		"stats", false,
		"Print a summary once all files have been processed.",
	)
}

// NewViper creates a Viper instance pre-configured with the following options:
// * TOML config type
// * `ELM_FORMAT_ON_SAVE_` env prefix for environment variables
// * `on_save` defaulting to true.
//
// Environment overrides are bound explicitly with BindEnv rather than AutomaticEnv, so that `on_save` can only come
// from a settings file where its shape is preserved.
func NewViper() (*viper.Viper, error) {
	v := viper.New()

	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	v.SetDefault(KeyOnSave, true)

	if err := v.BindEnv(KeyAbsolutePath); err != nil {
		return nil, fmt.Errorf("failed to bind %s to env: %w", KeyAbsolutePath, err)
	}

	return v, nil
}

// BindFlags binds every flag in fs to v, along with its environment variable.
// The absolute-path flag is bound to the absolute_path settings key.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	if err := v.BindPFlags(fs); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	var err error

	fs.VisitAll(func(flag *pflag.Flag) {
		if err == nil && flag.Name != "stdin" {
			err = v.BindEnv(flag.Name)
		}
	})

	if err != nil {
		return fmt.Errorf("failed to bind flag env: %w", err)
	}

	if flag := fs.Lookup("absolute-path"); flag != nil {
		if err = v.BindPFlag(KeyAbsolutePath, flag); err != nil {
			return fmt.Errorf("failed to bind absolute-path flag: %w", err)
		}
	}

	return nil
}

// FromViper produces the Settings for a request from the current state of v.
func FromViper(v *viper.Viper) *Settings {
	return &Settings{
		AbsolutePath: v.Get(KeyAbsolutePath),
		OnSave:       v.Get(KeyOnSave),
	}
}

// OptionsFromViper produces the command line Options from v, resolving the working directory and projects to
// absolute paths.
func OptionsFromViper(v *viper.Viper) (*Options, error) {
	opts := &Options{}
	if err := v.Unmarshal(opts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal options: %w", err)
	}

	if opts.WorkingDirectory == "" {
		opts.WorkingDirectory = "."
	}

	var err error

	opts.WorkingDirectory, err = filepath.Abs(opts.WorkingDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for working directory: %w", err)
	}

	for idx, project := range opts.Projects {
		if !filepath.IsAbs(project) {
			opts.Projects[idx] = filepath.Join(opts.WorkingDirectory, project)
		}
	}

	if len(opts.Projects) == 0 {
		opts.Projects = []string{opts.WorkingDirectory}
	}

	return opts, nil
}

// Locate determines which settings file should be read.
// In order: the explicit path, $ELM_FORMAT_ON_SAVE_SETTINGS, a search upwards from workingDir for FileNames, and
// finally the user's XDG config directory. ErrSettingsNotFound is returned if none apply.
func Locate(explicit string, workingDir string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	if path := os.Getenv("ELM_FORMAT_ON_SAVE_SETTINGS"); path != "" {
		return path, nil
	}

	if path, _, err := FindUp(workingDir, FileNames...); err == nil {
		return path, nil
	}

	if path, err := xdg.SearchConfigFile(xdgSettingsFile); err == nil {
		return path, nil
	}

	return "", ErrSettingsNotFound
}

// ReadIn reads the settings file at path into v.
// Sublime Text settings files are JSON, everything else is expected to be TOML.
func ReadIn(v *viper.Viper, path string) error {
	v.SetConfigFile(path)

	if filepath.Ext(path) == sublimeExt {
		v.SetConfigType("json")
	} else {
		v.SetConfigType("toml")
	}

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read settings file '%s': %w", path, err)
	}

	log.WithPrefix("config").Debugf("using settings file: %s", path)

	return nil
}

// Load locates and reads the settings file for workingDir into v.
// A missing settings file is not an error, the defaults apply.
func Load(v *viper.Viper, explicit string, workingDir string) error {
	path, err := Locate(explicit, workingDir)
	if errors.Is(err, ErrSettingsNotFound) {
		log.WithPrefix("config").Debug("no settings file found, using defaults")

		return nil
	} else if err != nil {
		return err
	}

	return ReadIn(v, path)
}

func FindUp(searchDir string, fileNames ...string) (path string, dir string, err error) {
	for _, dir := range eachDir(searchDir) {
		for _, f := range fileNames {
			path := filepath.Join(dir, f)
			if fileExists(path) {
				return path, dir, nil
			}
		}
	}

	return "", "", fmt.Errorf("could not find %s in %s", fileNames, searchDir)
}

func eachDir(path string) (paths []string) {
	path, err := filepath.Abs(path)
	if err != nil {
		return
	}

	for {
		paths = append(paths, path)

		parent := filepath.Dir(path)
		if parent == path {
			return
		}

		path = parent
	}
}

func fileExists(path string) bool {
	// Some broken filesystems like SSHFS return file information on stat() but
	// then cannot open the file. So we use os.Open.
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	// Next, check that the file is a regular file.
	fi, err := f.Stat()
	if err != nil {
		return false
	}

	return fi.Mode().IsRegular()
}
