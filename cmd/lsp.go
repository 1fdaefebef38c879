package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/numtide/elm-format-on-save/config"
	"github.com/numtide/elm-format-on-save/format"
	"github.com/numtide/elm-format-on-save/lsp"
	"github.com/numtide/elm-format-on-save/resolve"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"mvdan.cc/sh/v3/expand"
)

// stdio is the client connection, stdout carries the protocol so logs go to stderr.
type stdio struct {
	io.Reader
	io.Writer
}

func (stdio) Close() error {
	return nil
}

func runLSP(v *viper.Viper, cmd *cobra.Command) error {
	cmd.SilenceUsage = true

	opts, err := config.OptionsFromViper(v)
	if err != nil {
		return fmt.Errorf("failed to load options: %w", err)
	}

	handler := lsp.NewHandler(v, resolve.New(resolve.OSProber{}), format.NewInvoker(), opts.Projects)
	handler.Env = func() expand.Environ { return expand.ListEnviron(os.Environ()...) }

	if err = lsp.Serve(cmd.Context(), handler, stdio{cmd.InOrStdin(), cmd.OutOrStdout()}); err != nil {
		return fmt.Errorf("language server failed: %w", err)
	}

	return nil
}
