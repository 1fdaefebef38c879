// Package editor connects executable resolution, the save gate and the formatter to a host editor.
package editor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/numtide/elm-format-on-save/config"
	"github.com/numtide/elm-format-on-save/format"
	"github.com/numtide/elm-format-on-save/gate"
	"github.com/numtide/elm-format-on-save/resolve"
	"mvdan.cc/sh/v3/expand"
)

// Scope is the syntax scope of Elm buffers.
const Scope = "source.elm"

var (
	ErrInvalidOnSave     = errors.New("invalid on_save setting")
	ErrFormatterReported = errors.New("elm-format reported errors")
)

// Position is a scroll position within a view.
type Position struct {
	X float64
	Y float64
}

// View is a buffer in the host editor.
type View interface {
	// FileName is the path of the buffer on disk, empty if it has never been saved.
	FileName() string
	// Scope is the syntax scope at the start of the buffer.
	Scope() string
	Content() string
	// Replace swaps the entire content of the buffer.
	Replace(content string)
	Viewport() Position
	SetViewport(pos Position)
}

// Window exposes the project state of the editor.
type Window interface {
	Folders() []string
	// ActiveFile is the path of the active buffer, empty if there is none or it has never been saved.
	ActiveFile() string
}

// Panel is a read-only output surface for diagnostics.
type Panel interface {
	Clear()
	Append(text string)
	Show()
	Hide()
}

type Resolver interface {
	Resolve(req resolve.Request) (string, error)
}

type Formatter interface {
	Format(content string, executable string) (format.Result, error)
}

// Outcome summarises what a request did to a view.
type Outcome int

const (
	// Formatted means the view content was replaced with different content.
	Formatted Outcome = iota
	// Unchanged means the formatter ran and the content was already formatted.
	Unchanged
	// Skipped means the formatter was not run.
	Skipped
	// Failed means a diagnostic was reported and the view left untouched.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Formatted:
		return "formatted"
	case Unchanged:
		return "unchanged"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Plugin implements the format command and the pre-save hook.
type Plugin struct {
	// Settings is called once per request.
	Settings  func() *config.Settings
	Resolver  Resolver
	Formatter Formatter
	Window    Window
	Panel     Panel
	// Env is called once per request to capture PATH and PATHEXT. Defaults to the process environment.
	Env func() expand.Environ
	// Home is the fallback project path, empty for the user's home directory.
	Home string

	log *log.Logger
}

func NewPlugin(
	settings func() *config.Settings,
	resolver Resolver,
	formatter Formatter,
	window Window,
	panel Panel,
) *Plugin {
	return &Plugin{
		Settings:  settings,
		Resolver:  resolver,
		Formatter: formatter,
		Window:    window,
		Panel:     panel,
		log:       log.WithPrefix("editor"),
	}
}

// Enabled reports whether the format command applies to view.
func (p *Plugin) Enabled(view View) bool {
	return strings.Contains(view.Scope(), Scope)
}

// Format runs the formatter over view.
func (p *Plugin) Format(view View) (Outcome, error) {
	return p.format(view, p.Settings())
}

// OnPreSave formats view if on_save allows it.
// An invalid on_save setting is reported and the view is left untouched, so the save goes ahead unformatted.
func (p *Plugin) OnPreSave(view View) (Outcome, error) {
	if !p.Enabled(view) {
		return Skipped, nil
	}

	settings := p.Settings()

	decision := gate.Decide(settings.OnSave, view.FileName())
	p.log.Debugf("on save decision for %q: %v", view.FileName(), decision)

	switch decision {
	case gate.Skip:
		return Skipped, nil
	case gate.Invalid:
		p.report(InvalidSettings)

		return Skipped, ErrInvalidOnSave
	case gate.Run:
	}

	return p.format(view, settings)
}

func (p *Plugin) format(view View, settings *config.Settings) (Outcome, error) {
	req := resolve.Request{
		ViewFile: view.FileName(),
		Settings: settings,
		Home:     p.Home,
	}

	if p.Window != nil {
		req.Folders = p.Window.Folders()
		req.ActiveFile = p.Window.ActiveFile()
	}

	if p.Env != nil {
		req.Env = p.Env()
	}

	executable, err := p.Resolver.Resolve(req)
	if err != nil {
		p.report(Diagnostic(err))

		return Failed, err
	}

	content := view.Content()
	previous := view.Viewport()

	result, err := p.Formatter.Format(content, executable)
	if err != nil {
		p.report(err.Error())

		return Failed, err
	}

	if result.Failed() {
		p.report(result.Diagnostic)

		return Failed, fmt.Errorf("%w: %s", ErrFormatterReported, view.FileName())
	}

	view.Replace(result.Content)
	// replacing everything scrolls to the top, jump back to where the user was
	view.SetViewport(Position{})
	view.SetViewport(previous)

	p.Panel.Hide()

	if result.Content == content {
		return Unchanged, nil
	}

	return Formatted, nil
}

func (p *Plugin) report(text string) {
	p.Panel.Clear()
	p.Panel.Append(text)
	p.Panel.Show()
}

// Diagnostic returns the panel text for a resolution error.
func Diagnostic(err error) string {
	var notFound *resolve.NotFoundError

	switch {
	case errors.Is(err, resolve.ErrInvalidAbsolutePath):
		return BadAbsolutePath
	case errors.As(err, &notFound):
		return CannotFind(notFound.Searched)
	default:
		return err.Error()
	}
}
