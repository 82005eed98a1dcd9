// package server contains the local HTTP listener that receives Spotify's OAuth redirect
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spotkit/internal/shared"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an http.Handler that knows the routes it serves.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// RequestLogger logs each request at debug level. Query strings are left out since they carry the code.
func RequestLogger(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug("callback request", "method", r.Method, "path", r.URL.Path, "status", rec.status,
				"took", time.Since(start))
		})
	}
}

// CallbackServer listens on the redirect URI's host for a single OAuth callback.
type CallbackServer struct {
	handler  *OAuthHandler
	listener net.Listener
	srv      *http.Server
	logger   *log.Logger
}

// NewCallbackServer binds the host and port of redirectURI and starts serving h on it.
func NewCallbackServer(redirectURI string, h *OAuthHandler, logger *log.Logger) (*CallbackServer, error) {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: redirect uri %q", shared.ErrInvalidConfig, redirectURI)
	}
	if logger == nil {
		logger = shared.NopLogger()
	}

	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", u.Host, err)
	}

	router := NewBasicRouter()
	router.Use(RequestLogger(logger))
	router.Handler(h)

	s := &CallbackServer{
		handler:  h,
		listener: ln,
		srv:      &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second},
		logger:   logger,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("callback server stopped", "err", err)
		}
	}()
	logger.Debug("waiting for callback", "addr", ln.Addr().String())
	return s, nil
}

// Addr is the bound address, useful when the redirect URI asked for port 0.
func (s *CallbackServer) Addr() string {
	return s.listener.Addr().String()
}

// Wait blocks until the callback completes or ctx ends, then shuts the server down.
func (s *CallbackServer) Wait(ctx context.Context) error {
	defer s.Close()

	select {
	case res := <-s.handler.Result():
		return res.Error()
	case <-ctx.Done():
		return fmt.Errorf("%w: no authorization callback received: %w", shared.ErrTimeout, ctx.Err())
	}
}

// Close stops the server, giving in-flight responses a moment to finish.
func (s *CallbackServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
