package format

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/numtide/elm-format-on-save/cache"
	"github.com/numtide/elm-format-on-save/config"
	"github.com/numtide/elm-format-on-save/editor"
	"github.com/numtide/elm-format-on-save/format"
	"github.com/numtide/elm-format-on-save/resolve"
	"github.com/numtide/elm-format-on-save/stats"
	"github.com/numtide/elm-format-on-save/walk"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"mvdan.cc/sh/v3/expand"
)

const (
	BatchSize = 1024
)

// Mode selects which entry point of the plugin is used for each file.
type Mode int

const (
	// Command formats every file, like invoking the format command in the editor.
	Command Mode = iota
	// PreSave consults the on_save setting first, like saving the file in the editor.
	PreSave
)

var (
	ErrFailOnChange = errors.New("unexpected changes detected, --fail-on-change is enabled")
	ErrFailed       = errors.New("failed to format one or more files")
)

// Run formats the given paths, or the working directory if there are none.
// With --stdin the content read from standard input is formatted instead, paths then names the buffer.
func Run(v *viper.Viper, statz *stats.Stats, cmd *cobra.Command, paths []string, mode Mode) error {
	cmd.SilenceUsage = true

	opts, err := config.OptionsFromViper(v)
	if err != nil {
		return fmt.Errorf("failed to load options: %w", err)
	}

	// settings are read once and shared by every request in this run
	settings := config.FromViper(v)

	h := &host{
		opts:      opts,
		settings:  func() *config.Settings { return settings },
		resolver:  resolve.New(resolve.OSProber{}),
		formatter: format.NewInvoker(),
		env:       expand.ListEnviron(os.Environ()...),
		stderr:    cmd.ErrOrStderr(),
		mode:      mode,
		stats:     statz,
		log:       log.WithPrefix("format"),
	}

	if opts.Stdin {
		return h.stdin(cmd, paths)
	}

	return h.batch(cmd, paths)
}

type host struct {
	opts      *config.Options
	settings  func() *config.Settings
	resolver  *resolve.Resolver
	formatter *format.Invoker
	env       expand.Environ
	stderr    io.Writer
	mode      Mode
	stats     *stats.Stats
	log       *log.Logger
}

// plugin creates a plugin for a single request, active is the file the request is for.
func (h *host) plugin(active string) *editor.Plugin {
	plugin := editor.NewPlugin(
		h.settings,
		h.resolver,
		h.formatter,
		editor.Folders{Paths: h.opts.Projects, Active: active},
		&editor.WriterPanel{W: h.stderr},
	)
	plugin.Env = func() expand.Environ { return h.env }

	return plugin
}

func (h *host) apply(view editor.View) (editor.Outcome, error) {
	plugin := h.plugin(view.FileName())

	if h.mode == PreSave {
		return plugin.OnPreSave(view)
	}

	if !plugin.Enabled(view) {
		return editor.Skipped, nil
	}

	return plugin.Format(view)
}

// record counts the result of a request, any error counts as a failure.
func (h *host) record(outcome editor.Outcome, err error) {
	if err != nil {
		h.stats.Add(stats.Failed, 1)

		return
	}

	switch outcome {
	case editor.Formatted:
		h.stats.Add(stats.Formatted, 1)
		h.stats.Add(stats.Changed, 1)
	case editor.Unchanged:
		h.stats.Add(stats.Formatted, 1)
	case editor.Skipped:
		h.stats.Add(stats.Skipped, 1)
	case editor.Failed:
		h.stats.Add(stats.Failed, 1)
	}
}

func (h *host) absolute(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}

	return filepath.Join(h.opts.WorkingDirectory, path)
}

func (h *host) stdin(cmd *cobra.Command, paths []string) error {
	if len(paths) > 1 {
		return fmt.Errorf("at most one path should be specified when using the --stdin flag")
	}

	var path string
	if len(paths) == 1 {
		path = h.absolute(paths[0])
	}

	content, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("failed to read stdin: %w", err)
	}

	buffer := editor.NewBuffer(path, string(content))
	if path == "" {
		// an unnamed buffer is assumed to be Elm
		buffer.Syntax = editor.Scope
	}

	h.stats.Add(stats.Traversed, 1)
	h.stats.Add(stats.Matched, 1)

	outcome, formatErr := h.apply(buffer)
	h.record(outcome, formatErr)

	// the buffer is untouched unless formatting succeeded
	if _, err = io.WriteString(cmd.OutOrStdout(), buffer.Content()); err != nil {
		return fmt.Errorf("failed to write to stdout: %w", err)
	}

	if formatErr != nil {
		return fmt.Errorf("%w: %w", ErrFailed, formatErr)
	}

	if h.opts.FailOnChange && outcome == editor.Formatted {
		return ErrFailOnChange
	}

	return nil
}

func (h *host) batch(cmd *cobra.Command, paths []string) error {
	for idx, path := range paths {
		path = h.absolute(path)
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("path %s not found: %w", paths[idx], err)
		}

		paths[idx] = path
	}

	filter, err := walk.NewFilter(h.opts.Excludes)
	if err != nil {
		return fmt.Errorf("failed to compile excludes: %w", err)
	}

	walkerType, err := walk.TypeString(h.opts.Walk)
	if err != nil {
		return fmt.Errorf("invalid walk type: %w", err)
	}

	walker, err := walk.New(walkerType, h.opts.WorkingDirectory)
	if err != nil {
		return fmt.Errorf("failed to create walker: %w", err)
	}

	fileCache := h.openCache(walker.Root())

	defer func() {
		if err := fileCache.Close(); err != nil {
			h.log.Errorf("failed to close cache: %v", err)
		}
	}()

	// create an app context and listen for shutdown
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)

	filesCh := make(chan *walk.File, BatchSize)
	formattedCh := make(chan string, BatchSize)

	eg.Go(h.updateCache(fileCache, formattedCh))
	eg.Go(h.formatFiles(filesCh, formattedCh))
	eg.Go(h.walkFiles(ctx, walker, filter, fileCache, paths, filesCh))

	if err = eg.Wait(); err != nil {
		return err
	}

	if h.opts.Stats {
		h.stats.Print(cmd.OutOrStdout())
	}

	if failed := h.stats.Value(stats.Failed); failed > 0 {
		return fmt.Errorf("%w: %d failed", ErrFailed, failed)
	}

	if h.opts.FailOnChange && h.stats.Value(stats.Changed) != 0 {
		return ErrFailOnChange
	}

	return nil
}

// openCache opens the format cache for root, keyed on the executable resolved for the working directory.
// Any failure disables the cache rather than the run.
func (h *host) openCache(root string) *cache.Cache {
	if h.opts.NoCache {
		return nil
	}

	// the search for a project local executable starts in the directory of the view
	view := filepath.Join(h.opts.WorkingDirectory, "Main.elm")

	executable, err := h.resolver.Resolve(resolve.Request{
		Settings:   h.settings(),
		Folders:    h.opts.Projects,
		ActiveFile: view,
		ViewFile:   view,
		Env:        h.env,
	})
	if err != nil {
		h.log.Debugf("not using the cache, could not resolve elm-format: %v", err)

		return nil
	}

	fileCache, err := cache.Open(root, h.opts.ClearCache, executable)
	if err != nil {
		h.log.Warnf("failed to open cache: %v", err)

		return nil
	}

	return fileCache
}

func (h *host) walkFiles(
	ctx context.Context,
	walker walk.Walker,
	filter *walk.Filter,
	fileCache *cache.Cache,
	paths []string,
	filesCh chan *walk.File,
) func() error {
	return func() error {
		// close the files channel when we're done walking
		defer close(filesCh)

		return walker.Walk(ctx, paths, func(file *walk.File) error {
			h.stats.Add(stats.Traversed, 1)

			if !filter.Wants(file) {
				h.log.Debugf("ignoring path: %s", file.RelPath)

				return nil
			}

			h.stats.Add(stats.Matched, 1)

			if fileCache != nil {
				changed, err := fileCache.Changed(file.Path, file.Info)
				if err != nil {
					return fmt.Errorf("failed to check cache for %s: %w", file.RelPath, err)
				} else if !changed {
					h.log.Debugf("unchanged since last run: %s", file.RelPath)
					h.stats.Add(stats.Skipped, 1)

					return nil
				}
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case filesCh <- file:
				return nil
			}
		})
	}
}

func (h *host) formatFiles(filesCh chan *walk.File, formattedCh chan string) func() error {
	// formatting tasks have no cancel clause, so that running formatters finish
	fg := errgroup.Group{}
	fg.SetLimit(runtime.NumCPU())

	return func() error {
		defer close(formattedCh)

		for file := range filesCh {
			fg.Go(func() error {
				outcome, err := h.formatFile(file)
				h.record(outcome, err)

				if err != nil {
					h.log.Errorf("failed to format %s: %v", file.RelPath, err)

					return nil
				}

				if outcome == editor.Formatted || outcome == editor.Unchanged {
					formattedCh <- file.Path
				}

				return nil
			})
		}

		return fg.Wait()
	}
}

func (h *host) formatFile(file *walk.File) (editor.Outcome, error) {
	content, err := os.ReadFile(file.Path)
	if err != nil {
		return editor.Failed, fmt.Errorf("failed to read file: %w", err)
	}

	buffer := editor.NewBuffer(file.Path, string(content))

	outcome, err := h.apply(buffer)
	if err != nil || outcome != editor.Formatted {
		return outcome, err
	}

	logMethod := h.log.Debug
	if h.opts.FailOnChange {
		// surface the changed file more obviously
		logMethod = h.log.Error
	}

	logMethod("file has changed", "path", file.RelPath)

	if err = os.WriteFile(file.Path, []byte(buffer.Content()), file.Info.Mode().Perm()); err != nil {
		return editor.Failed, fmt.Errorf("failed to write file: %w", err)
	}

	return outcome, nil
}

func (h *host) updateCache(fileCache *cache.Cache, formattedCh chan string) func() error {
	return func() error {
		// used to batch updates for more efficient txs
		batch := make([]string, 0, BatchSize)

		processBatch := func() {
			if fileCache != nil && len(batch) > 0 {
				if err := fileCache.Update(batch...); err != nil {
					h.log.Warnf("failed to update cache: %v", err)
				}
			}

			batch = batch[:0]
		}

		// drain until closed, so formatting never blocks on the cache
		for path := range formattedCh {
			batch = append(batch, path)
			if len(batch) == BatchSize {
				processBatch()
			}
		}

		processBatch()

		return nil
	}
}
