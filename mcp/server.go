// Package mcp serves the tools of a registry over the Model Context Protocol,
// on the stateless streamable HTTP transport and on stdio.
package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/librarian/tools"
	"github.com/effective-security/xlog"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/librarian", "mcp")

// Server exposes the tools of the registry to MCP clients.
type Server struct {
	registry *tools.Registry
	mcp      *server.MCPServer
	http     *server.StreamableHTTPServer
}

// NewServer returns the Server for the registry.
// Every tool is advertised with its input schema and called through Registry.Call,
// so tool failures are returned as result text.
func NewServer(registry *tools.Registry, name, version string) *Server {
	s := &Server{
		registry: registry,
		mcp: server.NewMCPServer(name, version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}

	for _, def := range registry.Definitions() {
		schema, err := json.Marshal(def.InputSchema)
		if err != nil {
			logger.KV(xlog.ERROR, "reason", "input_schema", "tool", def.Name, "err", err.Error())
			schema = []byte(`{"type":"object"}`)
		}
		s.mcp.AddTool(mcpgo.NewToolWithRawSchema(def.Name, def.Description, schema), s.callTool)
	}

	s.http = server.NewStreamableHTTPServer(s.mcp, server.WithStateLess(true))
	return s
}

func (s *Server) callTool(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	args := "{}"
	if raw := req.GetRawArguments(); raw != nil {
		js, err := json.Marshal(raw)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode arguments")
		}
		args = string(js)
	}

	logger.ContextKV(ctx, xlog.DEBUG, "tool", req.Params.Name, "args", args)
	return mcpgo.NewToolResultText(s.registry.Call(ctx, req.Params.Name, args)), nil
}

// Handle processes one JSON-RPC message,
// it returns nil for notifications.
func (s *Server) Handle(ctx context.Context, msg json.RawMessage) mcpgo.JSONRPCMessage {
	return s.mcp.HandleMessage(ctx, msg)
}

// ServeHTTP implements the stateless streamable HTTP transport.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.http.ServeHTTP(w, r)
}

// ServeStdio reads newline delimited messages from r and writes responses to w,
// until EOF or ctx is done.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(errorWriter{}, "", 0))

	err := stdio.Listen(ctx, r, w)
	if err != nil && !errors.Is(err, context.Canceled) {
		return errors.Wrap(err, "failed to serve stdio")
	}
	return nil
}

// errorWriter sends the transport errors to the package logger.
type errorWriter struct{}

func (errorWriter) Write(p []byte) (int, error) {
	logger.KV(xlog.ERROR, "reason", "stdio", "err", strings.TrimSpace(string(p)))
	return len(p), nil
}
