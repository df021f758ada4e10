// Package api provides HTTP handlers and the API server for PustakaBot.
//
// It exposes the core /process-message endpoint consumed by the WhatsApp
// gateway, plus the basic-auth-protected admin endpoints for editing the
// static response table and reading usage statistics.
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/pustakalab/pustakabot/internal/analytics"
	"github.com/pustakalab/pustakabot/internal/models"
	"github.com/pustakalab/pustakabot/internal/responses"
)

// Server configuration constants.
const (
	// DefaultAddr is the default listen address for the API server.
	DefaultAddr = ":3001"
	// DefaultShutdownTimeout bounds graceful shutdown on exit.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultReadHeaderTimeout bounds slow-header clients.
	DefaultReadHeaderTimeout = 10 * time.Second
)

// processor runs one inbound message through the dialogue engine.
type processor interface {
	ProcessMessage(ctx context.Context, from, text, userName string) (models.Reply, error)
}

// summarizer builds the usage dashboard aggregate.
type summarizer interface {
	Summarize(ctx context.Context) (*analytics.Summary, error)
}

// libraryCounter reads headline numbers from the catalog for the dashboard.
type libraryCounter interface {
	CountBooks(ctx context.Context) (int, error)
	CountActiveLoans(ctx context.Context) (int, error)
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr      string
	AdminUser string
	AdminPass string
	Stats     summarizer
	Library   libraryCounter
	Routes    map[string]http.HandlerFunc
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithAdminCredentials sets the basic auth credentials for /admin endpoints.
// Leaving either empty disables the admin panel entirely.
func WithAdminCredentials(user, pass string) Option {
	return func(o *Opts) { o.AdminUser = user; o.AdminPass = pass }
}

// WithStats wires the analytics store into the dashboard endpoint.
func WithStats(s summarizer) Option {
	return func(o *Opts) { o.Stats = s }
}

// WithLibraryCounter wires catalog headline counts into the dashboard.
func WithLibraryCounter(c libraryCounter) Option {
	return func(o *Opts) { o.Library = c }
}

// WithRoute mounts an extra handler on the server's mux, used to expose a
// transport's inbound webhook on the same listener.
func WithRoute(pattern string, handler http.HandlerFunc) Option {
	return func(o *Opts) {
		if o.Routes == nil {
			o.Routes = make(map[string]http.HandlerFunc)
		}
		o.Routes[pattern] = handler
	}
}

// Server is the PustakaBot API server.
type Server struct {
	addr      string
	engine    processor
	responses *responses.Store
	stats     summarizer
	library   libraryCounter
	adminUser string
	adminPass string
	routes    map[string]http.HandlerFunc
}

// NewServer builds the API server around the dialogue engine and the
// response table store.
func NewServer(engine processor, resp *responses.Store, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.AdminUser == "" || cfg.AdminPass == "" {
		slog.Warn("Admin credentials not set; admin panel is disabled")
	}

	return &Server{
		addr:      cfg.Addr,
		engine:    engine,
		responses: resp,
		stats:     cfg.Stats,
		library:   cfg.Library,
		adminUser: cfg.AdminUser,
		adminPass: cfg.AdminPass,
		routes:    cfg.Routes,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/process-message", s.processMessageHandler)
	mux.HandleFunc("/admin/data", s.requireAdmin(s.adminDataHandler))
	mux.HandleFunc("/admin/data/save", s.requireAdmin(s.adminSaveHandler))
	mux.HandleFunc("/admin/data/add-key", s.requireAdmin(s.adminAddKeyHandler))
	mux.HandleFunc("/admin/data/delete-key", s.requireAdmin(s.adminDeleteKeyHandler))
	mux.HandleFunc("/admin/stats/summary", s.requireAdmin(s.adminStatsHandler))
	for pattern, handler := range s.routes {
		mux.HandleFunc(pattern, handler)
	}
	return s.recoverMiddleware(mux)
}

// Run starts the HTTP server and blocks until the context is canceled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// requireAdmin enforces basic auth on admin endpoints. With no credentials
// configured the endpoints answer 503 rather than running unprotected.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.adminUser == "" || s.adminPass == "" {
			writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Admin panel disabled"))
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(s.adminUser)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(s.adminPass)) != 1 {
			slog.Warn("Admin auth rejected", "path", r.URL.Path, "remote", r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Basic realm="PustakaBot Admin"`)
			http.Error(w, "Akses Ditolak: Anda bukan Pustakawan!", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// recoverMiddleware converts handler panics into 500 responses.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("Handler panic recovered", "panic", rec, "path", r.URL.Path)
				writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
