// Command mtlgen-lsp runs mtlgen's diagnostics-only language server over
// stdio.
package main

import (
	"context"
	"io"
	"os"

	"go.lsp.dev/jsonrpc2"

	"github.com/mtlforge/mtlgen/internal/mtllog"
	"github.com/mtlforge/mtlgen/pkg/lsp"
)

func main() {
	debug := os.Getenv("MTLGEN_LSP_DEBUG") != ""
	logger := mtllog.New(debug)
	defer logger.Sync()

	logger.Infof("starting mtlgen-lsp")

	server := lsp.NewServer(logger)

	rwc := &stdinoutCloser{stdin: os.Stdin, stdout: os.Stdout}
	stream := jsonrpc2.NewStream(rwc)
	conn := jsonrpc2.NewConn(stream)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server.SetConn(conn, ctx)

	conn.Go(ctx, server.Handler())
	<-conn.Done()

	logger.Infof("mtlgen-lsp stopped")
}

type stdinoutCloser struct {
	stdin  *os.File
	stdout *os.File
}

func (s *stdinoutCloser) Read(p []byte) (int, error)  { return s.stdin.Read(p) }
func (s *stdinoutCloser) Write(p []byte) (int, error) { return s.stdout.Write(p) }
func (s *stdinoutCloser) Close() error                { return nil }

var _ io.ReadWriteCloser = (*stdinoutCloser)(nil)
