// Package server hosts the web form UI and the JSON API of the library.
package server

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/librarian/catalog"
	"github.com/effective-security/librarian/chat"
	"github.com/effective-security/librarian/mcp"
	"github.com/effective-security/librarian/store"
	"github.com/effective-security/librarian/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/librarian", "server")

// Version is reported to MCP clients.
var Version = "dev"

// MaxRequestBodyBytes is the limit of a request body.
const MaxRequestBodyBytes = 1 << 20

// Option configures the App.
type Option func(*App)

// WithAssistant enables the chat API.
func WithAssistant(a *chat.Assistant) Option {
	return func(app *App) {
		app.assistant = a
	}
}

// WithHistory enables the chat history API.
func WithHistory(h store.MessageStoreManager) Option {
	return func(app *App) {
		app.history = h
	}
}

// WithShutdownTimeout sets the time given to in-flight requests on Shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(app *App) {
		if d > 0 {
			app.shutdownTimeout = d
		}
	}
}

// App owns the HTTP server.
type App struct {
	catalog   *catalog.Store
	registry  *tools.Registry
	assistant *chat.Assistant
	history   store.MessageStoreManager

	server          *http.Server
	handler         http.Handler
	shutdownTimeout time.Duration
	ready           atomic.Bool
}

// New returns the App listening on addr.
func New(addr string, st *catalog.Store, registry *tools.Registry, opts ...Option) (*App, error) {
	if addr == "" {
		return nil, errors.New("server: empty address")
	}
	if st == nil {
		return nil, errors.New("server: catalog store is required")
	}
	if registry == nil {
		return nil, errors.New("server: tools registry is required")
	}

	a := &App{
		catalog:         st,
		registry:        registry,
		shutdownTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.HandleFunc("GET /readyz", a.handleReadyz)

	mux.HandleFunc("GET /{$}", a.handleIndex)
	mux.HandleFunc("POST /ui/books", a.handleAddBookForm)
	mux.HandleFunc("POST /ui/patrons", a.handleAddPatronForm)
	mux.HandleFunc("POST /ui/borrow", a.handleBorrowForm)
	mux.HandleFunc("POST /ui/return", a.handleReturnForm)

	mux.HandleFunc("GET /v1/tools", a.handleListTools)
	mux.HandleFunc("POST /v1/tools/{name}", a.handleCallTool)
	mux.HandleFunc("GET /v1/catalog", a.handleCatalog)
	mux.HandleFunc("GET /v1/patrons/{id}/loans", a.handlePatronLoans)
	mux.HandleFunc("POST /v1/chat", a.handleChat)
	mux.HandleFunc("GET /v1/chats", a.handleListChats)
	mux.HandleFunc("GET /v1/chats/{id}", a.handleGetChat)
	mux.HandleFunc("DELETE /v1/chats/{id}", a.handleResetChat)
	mux.Handle("POST /mcp", mcp.NewServer(registry, "librarian", Version))

	a.handler = requestLogging(mux)
	a.server = &http.Server{
		Addr:              addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// Handler returns the HTTP handler of the App.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Addr returns the listen address.
func (a *App) Addr() string {
	return a.server.Addr
}

// Start serves until Shutdown is called.
func (a *App) Start() error {
	a.ready.Store(true)
	logger.KV(xlog.NOTICE, "status", "starting", "addr", a.server.Addr)

	err := a.server.ListenAndServe()
	a.ready.Store(false)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return errors.Wrapf(err, "failed to listen on %s", a.server.Addr)
}

// Shutdown stops the server gracefully,
// connections are closed when ctx or the shutdown timeout expires.
func (a *App) Shutdown(ctx context.Context) error {
	a.ready.Store(false)

	ctx, cancel := context.WithTimeout(ctx, a.shutdownTimeout)
	defer cancel()

	err := a.server.Shutdown(ctx)
	if err == nil {
		logger.KV(xlog.NOTICE, "status", "stopped", "addr", a.server.Addr)
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		logger.KV(xlog.WARNING, "reason", "shutdown_timeout")
		if cerr := a.server.Close(); cerr != nil {
			return errors.WithMessage(errors.CombineErrors(err, cerr), "failed to close server")
		}
		return nil
	}
	return errors.WithStack(err)
}

func (a *App) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writePlain(w, http.StatusOK, "ok")
}

func (a *App) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if !a.ready.Load() {
		writePlain(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writePlain(w, http.StatusOK, "ready")
}
