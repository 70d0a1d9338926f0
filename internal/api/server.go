// Package api exposes the OAuth round trip and the mailbox summary over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/joshsymonds/greenbyte/internal/credstore"
	"github.com/joshsymonds/greenbyte/internal/metrics"
	"github.com/joshsymonds/greenbyte/internal/summary"
)

// SummaryRunner produces a mailbox summary for an account.
type SummaryRunner interface {
	Run(ctx context.Context, account string) (summary.Summary, error)
}

// Authorizer issues consent URLs and completes the code exchange.
type Authorizer interface {
	Begin() (string, string)
	Complete(ctx context.Context, state, code string) (credstore.Credentials, error)
}

// CredentialSaver persists credentials after a successful callback.
type CredentialSaver interface {
	Save(ctx context.Context, account string, creds credstore.Credentials) error
}

// Options configures the HTTP surface.
type Options struct {
	Account     string
	FrontendURL string
	CORSOrigins []string
}

// Server wires handlers, middleware and dependencies onto a gin engine.
type Server struct {
	router  *gin.Engine
	opts    Options
	pipe    SummaryRunner
	auth    Authorizer
	creds   CredentialSaver
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewServer builds the engine. A nil logger writes text logs to stderr.
func NewServer(opts Options, pipe SummaryRunner, auth Authorizer, creds CredentialSaver, m *metrics.Metrics, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if m == nil {
		m = metrics.New("greenbyte")
	}
	if opts.Account == "" {
		opts.Account = credstore.DefaultAccount
	}

	s := &Server{
		router:  gin.New(),
		opts:    opts,
		pipe:    pipe,
		auth:    auth,
		creds:   creds,
		metrics: m,
		logger:  logger,
	}
	s.router.HandleMethodNotAllowed = true
	s.router.Use(gin.Recovery())
	s.router.Use(corsMiddleware(opts.CORSOrigins))
	s.router.Use(metrics.Middleware(m, logger))
	s.router.Use(loggingMiddleware(logger))
	s.setupRoutes()
	return s
}

// Router returns the gin engine for tests and for mounting in a server.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/auth", s.handleAuth)
	s.router.GET("/callback", s.handleCallback)
	s.router.GET("/emails/summary", s.handleSummary)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// NewHTTPServer wraps handler with conservative timeouts. The write timeout
// leaves room for a full analysis.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}
}

// GracefulShutdown stops srv, waiting at most timeout for open requests.
func GracefulShutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
