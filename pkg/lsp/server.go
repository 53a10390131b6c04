// Package lsp implements a minimal diagnostics-only language server for
// mtl modules: it parses documents on open/change and publishes any
// parse error as an LSP diagnostic. It does not offer completion,
// hover, or go-to-definition.
package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"

	"github.com/mtlforge/mtlgen/internal/mtlerrors"
	"github.com/mtlforge/mtlgen/internal/mtlparse"
	"github.com/mtlforge/mtlgen/internal/mtllog"
)

// Server implements the mtlgen language server.
type Server struct {
	logger *mtllog.Logger

	docsMu sync.RWMutex
	docs   map[protocol.DocumentURI]string

	connMu sync.RWMutex
	conn   jsonrpc2.Conn
	ctx    context.Context
}

// NewServer builds a Server.
func NewServer(logger *mtllog.Logger) *Server {
	return &Server{logger: logger, docs: map[protocol.DocumentURI]string{}}
}

// SetConn stores the connection used to push diagnostics back to the
// client (thread-safe; the handler goroutine and the main goroutine both
// touch it).
func (s *Server) SetConn(conn jsonrpc2.Conn, ctx context.Context) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.conn = conn
	s.ctx = ctx
}

func (s *Server) getConn() (jsonrpc2.Conn, context.Context) {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.conn, s.ctx
}

// Handler returns the jsonrpc2.Handler dispatching requests to this server.
func (s *Server) Handler() jsonrpc2.Handler {
	return jsonrpc2.ReplyHandler(s.handleRequest)
}

func (s *Server) handleRequest(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	s.logger.Debugf("lsp: %s", req.Method())

	switch req.Method() {
	case "initialize":
		return s.handleInitialize(ctx, reply, req)
	case "initialized":
		return reply(ctx, nil, nil)
	case "shutdown":
		return reply(ctx, nil, nil)
	case "exit":
		return reply(ctx, nil, nil)
	case "textDocument/didOpen":
		return s.handleDidOpen(ctx, reply, req)
	case "textDocument/didChange":
		return s.handleDidChange(ctx, reply, req)
	case "textDocument/didClose":
		return s.handleDidClose(ctx, reply, req)
	default:
		return reply(ctx, nil, fmt.Errorf("method not implemented: %s", req.Method()))
	}
}

func (s *Server) handleInitialize(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.InitializeParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return reply(ctx, nil, fmt.Errorf("invalid initialize params: %w", err))
	}

	result := protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.TextDocumentSyncKindFull,
			},
		},
		ServerInfo: &protocol.ServerInfo{
			Name:    "mtlgen-lsp",
			Version: "0.1.0",
		},
	}
	return reply(ctx, result, nil)
}

func (s *Server) handleDidOpen(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidOpenTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return reply(ctx, nil, err)
	}
	s.setDoc(params.TextDocument.URI, params.TextDocument.Text)
	s.validate(ctx, params.TextDocument.URI)
	return reply(ctx, nil, nil)
}

func (s *Server) handleDidChange(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidChangeTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return reply(ctx, nil, err)
	}
	if len(params.ContentChanges) > 0 {
		// Full-document sync only (TextDocumentSyncKindFull): the last
		// change event carries the complete new text.
		last := params.ContentChanges[len(params.ContentChanges)-1]
		s.setDoc(params.TextDocument.URI, last.Text)
		s.validate(ctx, params.TextDocument.URI)
	}
	return reply(ctx, nil, nil)
}

func (s *Server) handleDidClose(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidCloseTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return reply(ctx, nil, err)
	}
	s.docsMu.Lock()
	delete(s.docs, params.TextDocument.URI)
	s.docsMu.Unlock()
	return reply(ctx, nil, nil)
}

func (s *Server) setDoc(uri protocol.DocumentURI, text string) {
	s.docsMu.Lock()
	s.docs[uri] = text
	s.docsMu.Unlock()
}

// validate parses the document at uri and publishes either an empty
// diagnostics set (clearing any prior error) or a single diagnostic
// pointing at the parse error's line and column.
func (s *Server) validate(ctx context.Context, uri protocol.DocumentURI) {
	s.docsMu.RLock()
	text := s.docs[uri]
	s.docsMu.RUnlock()

	var diags []protocol.Diagnostic
	if _, err := mtlparse.Parse(text); err != nil {
		diags = append(diags, diagnosticFor(err))
	}

	conn, connCtx := s.getConn()
	if conn == nil {
		return
	}
	if connCtx != nil {
		ctx = connCtx
	}
	params := protocol.PublishDiagnosticsParams{URI: uri, Diagnostics: diags}
	if err := conn.Notify(ctx, "textDocument/publishDiagnostics", params); err != nil {
		s.logger.Warnf("publishDiagnostics failed: %v", err)
	}
}

func diagnosticFor(err error) protocol.Diagnostic {
	if pe, ok := err.(*mtlerrors.ParseError); ok {
		line := uint32(0)
		if pe.Line > 0 {
			line = uint32(pe.Line - 1)
		}
		col := uint32(0)
		if pe.Column > 0 {
			col = uint32(pe.Column - 1)
		}
		return protocol.Diagnostic{
			Range: protocol.Range{
				Start: protocol.Position{Line: line, Character: col},
				End:   protocol.Position{Line: line, Character: col + 1},
			},
			Severity: protocol.DiagnosticSeverityError,
			Source:   "mtlgen",
			Message:  pe.Message,
		}
	}
	return protocol.Diagnostic{
		Range:    protocol.Range{Start: protocol.Position{Line: 0, Character: 0}, End: protocol.Position{Line: 0, Character: 1}},
		Severity: protocol.DiagnosticSeverityError,
		Source:   "mtlgen",
		Message:  err.Error(),
	}
}
