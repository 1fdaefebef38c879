package editor_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/numtide/elm-format-on-save/config"
	"github.com/numtide/elm-format-on-save/editor"
	"github.com/numtide/elm-format-on-save/format"
	"github.com/numtide/elm-format-on-save/resolve"
	"github.com/numtide/elm-format-on-save/test"
	"github.com/stretchr/testify/require"
	"mvdan.cc/sh/v3/expand"
)

type recordingView struct {
	*editor.Buffer
	viewports []editor.Position
}

func (v *recordingView) SetViewport(pos editor.Position) {
	v.viewports = append(v.viewports, pos)
	v.Buffer.SetViewport(pos)
}

type fakeFormatter struct {
	result format.Result
	err    error
	calls  int
}

func (f *fakeFormatter) Format(string, string) (format.Result, error) {
	f.calls++

	return f.result, f.err
}

type resolverFunc func(req resolve.Request) (string, error)

func (fn resolverFunc) Resolve(req resolve.Request) (string, error) {
	return fn(req)
}

var found = resolverFunc(func(resolve.Request) (string, error) {
	return "/usr/bin/elm-format", nil
})

func settings(s *config.Settings) func() *config.Settings {
	return func() *config.Settings {
		return s
	}
}

func TestFormatReplacesAndRestoresViewport(t *testing.T) {
	as := require.New(t)

	executable := test.WriteFormatter(t, t.TempDir(), test.Normalise)

	panel := &editor.WriterPanel{}
	plugin := editor.NewPlugin(
		settings(&config.Settings{AbsolutePath: executable}),
		resolve.New(resolve.OSProber{}),
		format.NewInvoker(),
		editor.Folders{},
		panel,
	)

	view := &recordingView{Buffer: editor.NewBuffer("/work/src/Main.elm", "a  =  1\n")}
	view.Pos = editor.Position{X: 3, Y: 40}

	outcome, err := plugin.Format(view)
	as.NoError(err)
	as.Equal(editor.Formatted, outcome)
	as.Equal("a = 1\n", view.Content())
	as.True(view.Dirty())

	as.Equal([]editor.Position{{}, {X: 3, Y: 40}}, view.viewports)
	as.Equal(editor.Position{X: 3, Y: 40}, view.Viewport())
	as.False(panel.Visible())
}

func TestFormatAlreadyFormatted(t *testing.T) {
	as := require.New(t)

	executable := test.WriteFormatter(t, t.TempDir(), test.Identity)

	plugin := editor.NewPlugin(
		settings(&config.Settings{AbsolutePath: executable}),
		resolve.New(resolve.OSProber{}),
		format.NewInvoker(),
		editor.Folders{},
		&editor.WriterPanel{},
	)

	view := editor.NewBuffer("/work/src/Main.elm", "a = 1\n")

	outcome, err := plugin.Format(view)
	as.NoError(err)
	as.Equal(editor.Unchanged, outcome)
	as.Equal("a = 1\n", view.Content())
	as.False(view.Dirty())

	// and again
	outcome, err = plugin.Format(view)
	as.NoError(err)
	as.Equal(editor.Unchanged, outcome)
	as.Equal("a = 1\n", view.Content())
}

func TestFormatterErrorsLeaveBufferUntouched(t *testing.T) {
	as := require.New(t)

	executable := test.WriteFormatter(t, t.TempDir(), test.ParseError)

	panel := &editor.WriterPanel{}
	plugin := editor.NewPlugin(
		settings(&config.Settings{AbsolutePath: executable}),
		resolve.New(resolve.OSProber{}),
		format.NewInvoker(),
		editor.Folders{},
		panel,
	)

	view := &recordingView{Buffer: editor.NewBuffer("/work/src/Main.elm", "main =\n")}

	outcome, err := plugin.Format(view)
	as.ErrorIs(err, editor.ErrFormatterReported)
	as.Equal(editor.Failed, outcome)
	as.Equal("main =\n", view.Content())
	as.Empty(view.viewports)

	as.True(panel.Visible())
	as.Equal("Parse error", panel.Content())
}

func TestInvalidAbsolutePath(t *testing.T) {
	as := require.New(t)

	panel := &editor.WriterPanel{}
	formatter := &fakeFormatter{}
	plugin := editor.NewPlugin(
		settings(&config.Settings{AbsolutePath: "/not/executable"}),
		resolve.New(resolve.BillyProber{FS: memfs.New()}),
		formatter,
		editor.Folders{},
		panel,
	)

	outcome, err := plugin.Format(editor.NewBuffer("/work/src/Main.elm", "main = 1\n"))
	as.ErrorIs(err, resolve.ErrInvalidAbsolutePath)
	as.Equal(editor.Failed, outcome)
	as.Equal(editor.BadAbsolutePath, panel.Content())
	as.Zero(formatter.calls)
}

func TestNotFoundListsSearchedDirectories(t *testing.T) {
	as := require.New(t)

	panel := &editor.WriterPanel{}
	plugin := editor.NewPlugin(
		settings(&config.Settings{}),
		resolve.New(resolve.BillyProber{FS: memfs.New()}),
		&fakeFormatter{},
		editor.Folders{Paths: []string{"/work"}},
		panel,
	)
	plugin.Home = "/home/user"

	t.Run("directories", func(t *testing.T) {
		plugin.Env = func() expand.Environ {
			return expand.ListEnviron("PATH=/bin:/usr/local/bin")
		}

		_, err := plugin.Format(editor.NewBuffer("/work/src/Main.elm", "main = 1\n"))
		as.ErrorIs(err, resolve.ErrNotFound)
		as.Contains(panel.Content(), "ELM-FORMAT NOT FOUND")
		as.Contains(panel.Content(), "\n    /bin\n    /usr/local/bin\n")
	})

	t.Run("empty PATH", func(t *testing.T) {
		plugin.Env = func() expand.Environ {
			return expand.ListEnviron("PATH=")
		}

		_, err := plugin.Format(editor.NewBuffer("/work/src/Main.elm", "main = 1\n"))
		as.ErrorIs(err, resolve.ErrNotFound)
		as.Equal(editor.CannotFind(nil), panel.Content())
		as.Contains(panel.Content(), "following directories:\n\n    \n\nBut I could not find")
	})
}

func TestSpawnFailure(t *testing.T) {
	as := require.New(t)

	panel := &editor.WriterPanel{}
	plugin := editor.NewPlugin(
		settings(&config.Settings{}),
		found,
		&fakeFormatter{err: errors.New("failed to run elm-format: permission denied")},
		editor.Folders{},
		panel,
	)

	outcome, err := plugin.Format(editor.NewBuffer("/work/src/Main.elm", "main = 1\n"))
	as.Error(err)
	as.Equal(editor.Failed, outcome)
	as.Equal("failed to run elm-format: permission denied", panel.Content())
}

func TestPanelIsClearedBetweenRequests(t *testing.T) {
	as := require.New(t)

	formatter := &fakeFormatter{result: format.Result{Diagnostic: "first"}}
	panel := &editor.WriterPanel{}
	plugin := editor.NewPlugin(settings(&config.Settings{}), found, formatter, editor.Folders{}, panel)

	view := editor.NewBuffer("/work/src/Main.elm", "main = 1\n")

	_, err := plugin.Format(view)
	as.Error(err)
	as.Equal("first", panel.Content())

	formatter.result = format.Result{Diagnostic: "second"}

	_, err = plugin.Format(view)
	as.Error(err)
	as.Equal("second", panel.Content())

	// success hides the panel
	formatter.result = format.Result{Content: "main = 1\n"}

	_, err = plugin.Format(view)
	as.NoError(err)
	as.False(panel.Visible())
}

func TestOnPreSave(t *testing.T) {
	tests := []struct {
		name     string
		onSave   any
		path     string
		outcome  editor.Outcome
		err      error
		calls    int
		reported string
	}{
		{
			name:    "default",
			onSave:  nil,
			path:    "/work/src/Main.elm",
			outcome: editor.Formatted,
			calls:   1,
		},
		{
			name:    "disabled",
			onSave:  false,
			path:    "/work/src/Main.elm",
			outcome: editor.Skipped,
		},
		{
			name:    "included",
			onSave:  map[string]any{"including": []any{"src/"}},
			path:    "/work/src/Main.elm",
			outcome: editor.Formatted,
			calls:   1,
		},
		{
			name:    "excluded",
			onSave:  map[string]any{"excluding": []any{"src/"}},
			path:    "/work/src/Main.elm",
			outcome: editor.Skipped,
		},
		{
			name:     "invalid",
			onSave:   map[string]any{"including": "src/"},
			path:     "/work/src/Main.elm",
			outcome:  editor.Skipped,
			err:      editor.ErrInvalidOnSave,
			reported: editor.InvalidSettings,
		},
		{
			name:    "not elm",
			onSave:  true,
			path:    "/work/README.md",
			outcome: editor.Skipped,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			as := require.New(t)

			formatter := &fakeFormatter{result: format.Result{Content: "main = 1\n"}}
			panel := &editor.WriterPanel{}
			plugin := editor.NewPlugin(
				settings(&config.Settings{OnSave: tt.onSave}),
				found,
				formatter,
				editor.Folders{},
				panel,
			)

			view := editor.NewBuffer(tt.path, "main  =  1\n")

			outcome, err := plugin.OnPreSave(view)
			if tt.err != nil {
				as.ErrorIs(err, tt.err)
			} else {
				as.NoError(err)
			}

			as.Equal(tt.outcome, outcome)
			as.Equal(tt.calls, formatter.calls)
			as.Equal(tt.reported, panel.Content())

			if tt.outcome != editor.Formatted {
				as.Equal("main  =  1\n", view.Content())
			}
		})
	}
}

func TestEnabled(t *testing.T) {
	as := require.New(t)

	plugin := editor.NewPlugin(
		settings(&config.Settings{}), found, &fakeFormatter{}, editor.Folders{}, &editor.WriterPanel{},
	)

	as.True(plugin.Enabled(editor.NewBuffer("/work/src/Main.elm", "")))
	as.True(plugin.Enabled(editor.NewBuffer("/work/src/Main.ELM", "")))
	as.False(plugin.Enabled(editor.NewBuffer("/work/src/main.js", "")))
	as.True(plugin.Enabled(&editor.Buffer{Syntax: "source.elm meta.module.elm"}))
}

func TestWriterPanel(t *testing.T) {
	as := require.New(t)

	var sb strings.Builder

	panel := &editor.WriterPanel{W: &sb}
	panel.Clear()
	panel.Append("Parse error\n")
	panel.Show()

	as.Equal("\nParse error\n", sb.String())
}
