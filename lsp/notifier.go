package lsp

import (
	"context"

	"github.com/sourcegraph/jsonrpc2"
)

type Notifier struct {
	conn *jsonrpc2.Conn
}

func NewNotifier(conn *jsonrpc2.Conn) *Notifier {
	return &Notifier{conn}
}

func (n *Notifier) LogMessage(ctx context.Context, typ MessageType, message string) {
	_ = n.conn.Notify(
		ctx,
		"window/logMessage",
		&LogMessageParams{
			Type:    typ,
			Message: message,
		})
}

func (n *Notifier) ShowMessage(ctx context.Context, typ MessageType, message string) {
	_ = n.conn.Notify(
		ctx,
		"window/showMessage",
		&ShowMessageParams{
			Type:    typ,
			Message: message,
		})
}

func (n *Notifier) Progress(ctx context.Context, params ProgressParams) {
	_ = n.conn.Notify(
		ctx,
		"$/progress",
		&params)
}

// panel shows diagnostics as a message in the client.
// The client dismisses messages itself, so Hide has nothing to do.
type panel struct {
	ctx      context.Context //nolint:containedctx
	notifier *Notifier
	text     string
}

func (p *panel) Clear() {
	p.text = ""
}

func (p *panel) Append(text string) {
	p.text += text
}

func (p *panel) Show() {
	p.notifier.ShowMessage(p.ctx, MessError, p.text)
	p.notifier.LogMessage(p.ctx, MessError, p.text)
}

func (p *panel) Hide() {}
