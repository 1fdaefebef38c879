package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/numtide/elm-format-on-save/build"
	"github.com/numtide/elm-format-on-save/cmd/format"
	_init "github.com/numtide/elm-format-on-save/cmd/init"
	"github.com/numtide/elm-format-on-save/config"
	"github.com/numtide/elm-format-on-save/stats"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NewRoot() (*cobra.Command, *stats.Stats) {
	// create a viper instance for reading in config
	v, err := config.NewViper()
	if err != nil {
		cobra.CheckErr(fmt.Errorf("failed to create viper instance: %w", err))
	}

	// create a new stats instance
	statz := stats.New()

	// create our root command
	cmd := &cobra.Command{
		Use:     build.Name,
		Short:   "Format Elm files with elm-format, the way an editor does on save",
		Version: build.Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return preRunE(v, cmd)
		},
	}

	// update version template
	cmd.SetVersionTemplate(build.Name + " {{.Version}}\n")

	// add our config flags to the root's persistent flag set
	config.SetFlags(cmd.PersistentFlags())

	formatCmd := &cobra.Command{
		Use:   "format [paths...]",
		Short: "Format the given files and directories, or the working directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return format.Run(v, &statz, cmd, args, format.Command)
		},
	}
	config.SetFormatFlags(formatCmd.Flags())

	onSaveCmd := &cobra.Command{
		Use:   "on-save [paths...]",
		Short: "Format the given files as if they were being saved, honouring on_save",
		RunE: func(cmd *cobra.Command, args []string) error {
			return format.Run(v, &statz, cmd, args, format.PreSave)
		},
	}
	config.SetFormatFlags(onSaveCmd.Flags())

	resolveCmd := &cobra.Command{
		Use:   "resolve [path]",
		Short: "Print the elm-format executable which would be used for path",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(v, cmd, args)
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create an " + _init.FileName + " file in the working directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := config.OptionsFromViper(v)
			if err != nil {
				return fmt.Errorf("failed to load options: %w", err)
			}

			cmd.SilenceUsage = true

			return _init.Run(opts.WorkingDirectory, cmd.OutOrStdout()) //nolint:wrapcheck
		},
	}

	completionsCmd := &cobra.Command{
		Use:       "completions <bash|zsh|fish>",
		Short:     "Generate shell completions",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish"},
		RunE:      generateShellCompletions,
	}

	lspCmd := &cobra.Command{
		Use:   "lsp",
		Short: "Run a language server over stdio which formats Elm documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLSP(v, cmd)
		},
	}

	cmd.AddCommand(formatCmd, onSaveCmd, resolveCmd, initCmd, completionsCmd, lspCmd)

	return cmd, &statz
}

func preRunE(v *viper.Viper, cmd *cobra.Command) error {
	// the executing command's flag set includes the persistent flags of its parents
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags to viper: %w", err)
	}

	opts, err := config.OptionsFromViper(v)
	if err != nil {
		return fmt.Errorf("failed to load options: %w", err)
	}

	// configure logging
	log.SetOutput(os.Stderr)
	log.SetReportTimestamp(false)

	if opts.Quiet {
		// if quiet, we only log errors
		log.SetLevel(log.ErrorLevel)
	} else {
		// otherwise, the verbose flag controls the log level
		switch opts.Verbose {
		case 0:
			log.SetLevel(log.WarnLevel)
		case 1:
			log.SetLevel(log.InfoLevel)
		default:
			log.SetLevel(log.DebugLevel)
		}
	}

	if err = config.Load(v, opts.SettingsFile, opts.WorkingDirectory); err != nil {
		cmd.SilenceUsage = true

		return fmt.Errorf("failed to load settings: %w", err)
	}

	return nil
}
