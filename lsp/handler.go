// Package lsp is a language server host for the editor plugin.
// textDocument/formatting runs the format command and textDocument/willSaveWaitUntil runs the pre-save hook.
package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/numtide/elm-format-on-save/build"
	"github.com/numtide/elm-format-on-save/config"
	"github.com/numtide/elm-format-on-save/editor"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/spf13/viper"
	"mvdan.cc/sh/v3/expand"
)

var ErrDocumentNotFound = errors.New("document not found")

type Handler struct {
	v         *viper.Viper
	resolver  editor.Resolver
	formatter editor.Formatter
	// Env is called once per request to capture PATH and PATHEXT.
	Env func() expand.Environ

	mu        sync.Mutex
	folders   []string
	documents map[DocumentURI]*document
	// client holds settings pushed by the client, they take precedence over v
	client map[string]any

	log *log.Logger
}

// NewHandler creates a Handler reading settings from v.
// folders are used until the client reports its workspace folders.
func NewHandler(v *viper.Viper, resolver editor.Resolver, formatter editor.Formatter, folders []string) *Handler {
	return &Handler{
		v:         v,
		resolver:  resolver,
		formatter: formatter,
		folders:   folders,
		documents: make(map[DocumentURI]*document),
		client:    make(map[string]any),
		log:       log.WithPrefix("lsp"),
	}
}

// Serve handles requests on rwc until the client disconnects or ctx is cancelled.
func Serve(ctx context.Context, h *Handler, rwc io.ReadWriteCloser) error {
	conn := jsonrpc2.NewConn(
		ctx,
		jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{}),
		jsonrpc2.HandlerWithError(h.Handle),
	)

	select {
	case <-ctx.Done():
		_ = conn.Close()

		return ctx.Err()
	case <-conn.DisconnectNotify():
		return nil
	}
}

func (h *Handler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (result any, err error) {
	h.log.Debug("handling request", "method", req.Method)

	switch req.Method {
	case "initialize":
		return h.HandleInitialize(ctx, conn, req)
	case "initialized":
		return
	case "shutdown":
		return
	case "exit":
		_ = conn.Close()

		return
	case "textDocument/didOpen":
		return h.HandleTextDocumentDidOpen(ctx, conn, req)
	case "textDocument/didChange":
		return h.HandleTextDocumentDidChange(ctx, conn, req)
	case "textDocument/didSave":
		return h.HandleTextDocumentDidSave(ctx, conn, req)
	case "textDocument/didClose":
		return h.HandleTextDocumentDidClose(ctx, conn, req)
	case "textDocument/formatting":
		return h.HandleTextDocumentFormatting(ctx, conn, req)
	case "textDocument/willSaveWaitUntil":
		return h.HandleTextDocumentWillSaveWaitUntil(ctx, conn, req)
	case "workspace/didChangeConfiguration":
		return h.HandleWorkspaceDidChangeConfiguration(ctx, conn, req)
	}

	if req.Notif {
		// unknown notifications are dropped
		return nil, nil
	}

	return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: fmt.Sprintf("method not supported: %s", req.Method)}
}

func decode(req *jsonrpc2.Request, params any) error {
	if req.Params == nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams}
	}

	if err := json.Unmarshal(*req.Params, params); err != nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}

	return nil
}

func (h *Handler) HandleInitialize(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	var params InitializeParams
	if err := decode(req, &params); err != nil {
		return nil, err
	}

	var folders []string

	for _, folder := range params.WorkspaceFolders {
		path, err := PathFromURI(folder.URI)
		if err != nil {
			return nil, err
		} else if path != "" {
			folders = append(folders, filepath.Clean(path))
		}
	}

	if len(folders) == 0 && params.RootURI != "" {
		path, err := PathFromURI(params.RootURI)
		if err != nil {
			return nil, err
		} else if path != "" {
			folders = append(folders, filepath.Clean(path))
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if len(folders) > 0 {
		h.folders = folders
	}

	h.mergeSettings(params.InitializationOptions)

	return InitializeResult{
		Capabilities: ServerCapabilities{
			PositionEncoding: UTF16,
			TextDocumentSync: TextDocumentSyncOptions{
				OpenClose:         true,
				Change:            TDSKFull,
				WillSaveWaitUntil: true,
			},
			DocumentFormattingProvider: true,
		},
		ServerInfo: &ServerInfo{
			Name:    build.Name,
			Version: build.Version,
		},
	}, nil
}

func (h *Handler) HandleTextDocumentDidOpen(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	var params DidOpenTextDocumentParams
	if err := decode(req, &params); err != nil {
		return nil, err
	}

	doc, err := newDocument(params.TextDocument)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.documents[doc.uri] = doc

	return nil, nil
}

func (h *Handler) HandleTextDocumentDidChange(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	var params DidChangeTextDocumentParams
	if err := decode(req, &params); err != nil {
		return nil, err
	}

	if len(params.ContentChanges) == 0 {
		return nil, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	doc, ok := h.documents[params.TextDocument.URI]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrDocumentNotFound, params.TextDocument.URI)
	}

	// full sync, the last change holds the entire document
	doc.text = params.ContentChanges[len(params.ContentChanges)-1].Text
	doc.version = params.TextDocument.Version

	return nil, nil
}

func (h *Handler) HandleTextDocumentDidSave(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	var params DidSaveTextDocumentParams
	if err := decode(req, &params); err != nil {
		return nil, err
	}

	if params.Text == nil {
		return nil, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if doc, ok := h.documents[params.TextDocument.URI]; ok {
		doc.text = *params.Text
	}

	return nil, nil
}

func (h *Handler) HandleTextDocumentDidClose(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	var params DidCloseTextDocumentParams
	if err := decode(req, &params); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.documents, params.TextDocument.URI)

	return nil, nil
}

func (h *Handler) HandleTextDocumentFormatting(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	var params DocumentFormattingParams
	if err := decode(req, &params); err != nil {
		return nil, err
	}

	return h.Formatting(ctx, NewNotifier(conn), params.TextDocument.URI, false)
}

func (h *Handler) HandleTextDocumentWillSaveWaitUntil(
	ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request,
) (any, error) {
	var params WillSaveTextDocumentParams
	if err := decode(req, &params); err != nil {
		return nil, err
	}

	return h.Formatting(ctx, NewNotifier(conn), params.TextDocument.URI, true)
}

func (h *Handler) HandleWorkspaceDidChangeConfiguration(
	_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request,
) (any, error) {
	var params DidChangeConfigurationParams
	if err := decode(req, &params); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.mergeSettings(params.Settings)

	return nil, nil
}

// mergeSettings records the settings sent by the client, either at the top level or nested under the program name.
// Callers must hold h.mu.
func (h *Handler) mergeSettings(settings map[string]any) {
	if nested, ok := settings[build.Name].(map[string]any); ok {
		settings = nested
	}

	for _, key := range []string{config.KeyAbsolutePath, config.KeyOnSave} {
		if value, ok := settings[key]; ok {
			h.log.Debug("client setting", "key", key, "value", value)
			h.client[key] = value
		}
	}
}

func (h *Handler) settings() *config.Settings {
	settings := config.FromViper(h.v)

	h.mu.Lock()
	defer h.mu.Unlock()

	if value, ok := h.client[config.KeyAbsolutePath]; ok {
		settings.AbsolutePath = value
	}

	if value, ok := h.client[config.KeyOnSave]; ok {
		settings.OnSave = value
	}

	return settings
}

// Formatting formats a copy of the open document and returns the edits which apply the result.
// Failures are reported to the client by message and produce no edits.
func (h *Handler) Formatting(ctx context.Context, notifier *Notifier, uri DocumentURI, preSave bool) ([]TextEdit, error) {
	h.mu.Lock()

	doc, ok := h.documents[uri]
	if !ok {
		h.mu.Unlock()

		return nil, fmt.Errorf("%w: %v", ErrDocumentNotFound, uri)
	}

	view := *doc
	original := doc.text
	folders := h.folders

	h.mu.Unlock()

	progressToken := NewProgressToken()
	notifier.Progress(ctx, ProgressParams{
		Token: progressToken,
		Value: NewWorkDoneProgressBegin("Formatting document", nil),
	})

	defer notifier.Progress(ctx, ProgressParams{
		Token: progressToken,
		Value: NewWorkDoneProgressEnd(nil),
	})

	plugin := editor.NewPlugin(
		h.settings,
		h.resolver,
		h.formatter,
		editor.Folders{Paths: folders, Active: view.path},
		&panel{ctx: ctx, notifier: notifier},
	)
	plugin.Env = h.Env

	var (
		outcome editor.Outcome
		err     error
	)

	switch {
	case preSave:
		outcome, err = plugin.OnPreSave(&view)
	case plugin.Enabled(&view):
		outcome, err = plugin.Format(&view)
	default:
		outcome = editor.Skipped
	}

	if err != nil {
		h.log.Error("failed to format document", "uri", uri, "err", err)

		return []TextEdit{}, nil
	}

	h.log.Debug("formatted document", "uri", uri, "outcome", outcome)

	if outcome != editor.Formatted {
		return []TextEdit{}, nil
	}

	// the client applies the edits and syncs the result back with didChange
	return ComputeEdits(original, view.text), nil
}
