package http

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"pairstream/pkg/http/middleware"
	applogger "pairstream/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerOption overrides a server default.
type ServerOption func(*Server)

// Server is the HTTP front end. It owns an Echo instance with the
// shared middleware chain and the Prometheus scrape endpoint mounted.
type Server struct {
	echo            *echo.Echo
	logger          *applogger.Logger
	host            string
	port            int
	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
	slowThreshold   time.Duration
}

// NewServer builds the server and registers the handler's routes.
// A nil handler leaves only the /metrics endpoint.
func NewServer(handler Handler, opts ...ServerOption) *Server {
	s := &Server{
		host:            "0.0.0.0",
		port:            8080,
		readTimeout:     10 * time.Second,
		writeTimeout:    10 * time.Second,
		shutdownTimeout: 10 * time.Second,
		slowThreshold:   500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover(s.logger))
	e.Use(middleware.Metrics(s.logger, s.slowThreshold))
	e.Use(middleware.RequestLogging(s.logger))
	e.Use(middleware.CORS(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
		},
	}))

	if handler != nil {
		handler.RegisterRoutes(e)
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo = e
	return s
}

// Start begins serving in the background. Listen failures after
// startup are logged, not returned.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.echo.Server.ReadTimeout = s.readTimeout
	s.echo.Server.WriteTimeout = s.writeTimeout

	go func() {
		s.logf("http: listening on %s", addr)
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logf("http: serve: %v", err)
		}
	}()
	return nil
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Info(fmt.Sprintf(format, args...))
		return
	}
	log.Printf(format, args...)
}

// Stop drains in-flight requests, waiting at most the shutdown
// timeout even when ctx has no deadline of its own.
func (s *Server) Stop(ctx context.Context) error {
	if s.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.shutdownTimeout)
		defer cancel()
	}
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("http: shutdown: %w", err)
	}
	return nil
}

// WithLogger routes middleware and lifecycle logs through l.
func WithLogger(l *applogger.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithHost sets the bind address.
func WithHost(host string) ServerOption {
	return func(s *Server) { s.host = host }
}

// WithPort sets the listen port.
func WithPort(port int) ServerOption {
	return func(s *Server) { s.port = port }
}

// WithTimeouts sets the read, write and shutdown timeouts.
func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(s *Server) {
		s.readTimeout = read
		s.writeTimeout = write
		s.shutdownTimeout = shutdown
	}
}
