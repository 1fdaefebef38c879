package lsp

import (
	"fmt"
	"net/url"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/numtide/elm-format-on-save/editor"
)

const languageElm = "elm"

// document is an open text document, and the editor.View formatting requests operate on.
type document struct {
	uri        DocumentURI
	path       string
	languageID string
	version    int
	text       string
	viewport   editor.Position
}

func newDocument(item TextDocumentItem) (*document, error) {
	path, err := PathFromURI(item.URI)
	if err != nil {
		return nil, err
	}

	return &document{
		uri:        item.URI,
		path:       path,
		languageID: item.LanguageID,
		version:    item.Version,
		text:       item.Text,
	}, nil
}

func (d *document) FileName() string { return d.path }

func (d *document) Scope() string {
	if d.languageID == languageElm {
		return editor.Scope
	}

	return editor.ScopeFor(d.path)
}

func (d *document) Content() string                 { return d.text }
func (d *document) Replace(content string)          { d.text = content }
func (d *document) Viewport() editor.Position       { return d.viewport }
func (d *document) SetViewport(pos editor.Position) { d.viewport = pos }

// PathFromURI converts a file URI into a local path.
// Untitled documents and other non-file schemes have no path.
func PathFromURI(uri DocumentURI) (string, error) {
	u, err := url.Parse(string(uri))
	if err != nil {
		return "", fmt.Errorf("invalid uri: %v: %w", uri, err)
	}

	if u.Scheme != "file" {
		return "", nil
	}

	path := u.Path
	if runtime.GOOS == "windows" {
		// file:///C:/src/Main.elm
		path = strings.TrimPrefix(path, "/")
	}

	return filepath.FromSlash(path), nil
}

// URIFromPath converts a local path into a file URI.
func URIFromPath(path string) DocumentURI {
	path = filepath.ToSlash(path)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return DocumentURI((&url.URL{Scheme: "file", Path: path}).String())
}
