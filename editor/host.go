package editor

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
)

// Buffer is an in-memory View.
type Buffer struct {
	Path   string
	Text   string
	Syntax string
	Pos    Position
	dirty  bool
}

// NewBuffer creates a Buffer for path, deriving its scope from the file extension.
func NewBuffer(path string, text string) *Buffer {
	return &Buffer{
		Path:   path,
		Text:   text,
		Syntax: ScopeFor(path),
	}
}

func (b *Buffer) FileName() string         { return b.Path }
func (b *Buffer) Scope() string            { return b.Syntax }
func (b *Buffer) Content() string          { return b.Text }
func (b *Buffer) Viewport() Position       { return b.Pos }
func (b *Buffer) SetViewport(pos Position) { b.Pos = pos }

func (b *Buffer) Replace(content string) {
	b.dirty = b.dirty || content != b.Text
	b.Text = content
}

// Dirty reports whether Replace changed the content.
func (b *Buffer) Dirty() bool {
	return b.dirty
}

// ScopeFor returns the syntax scope for a file name.
func ScopeFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".elm") {
		return Scope
	}

	return "text.plain"
}

// Folders is a static Window.
type Folders struct {
	Paths  []string
	Active string
}

func (f Folders) Folders() []string  { return f.Paths }
func (f Folders) ActiveFile() string { return f.Active }

// WriterPanel renders diagnostics to a writer when shown.
type WriterPanel struct {
	W io.Writer

	mu      sync.Mutex
	content strings.Builder
	visible bool
}

func (p *WriterPanel) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.content.Reset()
}

func (p *WriterPanel) Append(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.content.WriteString(text)
}

func (p *WriterPanel) Show() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.visible = true

	if p.W != nil {
		_, _ = fmt.Fprintf(p.W, "\n%s\n", strings.TrimRight(p.content.String(), "\n"))
	}
}

func (p *WriterPanel) Hide() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.visible = false
}

// Content returns what was last appended since the panel was cleared.
func (p *WriterPanel) Content() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.content.String()
}

func (p *WriterPanel) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.visible
}
