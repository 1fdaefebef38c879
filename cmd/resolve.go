package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/numtide/elm-format-on-save/config"
	"github.com/numtide/elm-format-on-save/editor"
	"github.com/numtide/elm-format-on-save/resolve"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"mvdan.cc/sh/v3/expand"
)

func runResolve(v *viper.Viper, cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	opts, err := config.OptionsFromViper(v)
	if err != nil {
		return fmt.Errorf("failed to load options: %w", err)
	}

	var path string
	if len(args) == 1 {
		path = args[0]
		if !filepath.IsAbs(path) {
			path = filepath.Join(opts.WorkingDirectory, path)
		}
	}

	executable, err := resolve.New(resolve.OSProber{}).Resolve(resolve.Request{
		ViewFile:   path,
		Settings:   config.FromViper(v),
		Folders:    opts.Projects,
		ActiveFile: path,
		Env:        expand.ListEnviron(os.Environ()...),
	})
	if err != nil {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), editor.Diagnostic(err))

		return fmt.Errorf("failed to resolve elm-format: %w", err)
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), executable)

	return nil
}
