package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	goahttp "goa.design/goa/v3/http"
	httpmdlwr "goa.design/goa/v3/http/middleware"
	"goa.design/goa/v3/middleware"

	"fusioncam/internal/auth"
	authmw "fusioncam/internal/middleware"
)

// Server exposes the pipeline over HTTP: JSON API, MJPEG stream, snapshot
// and websocket feed. Every route except /health requires a token when
// authentication is enabled.
type Server struct {
	api    *API
	stream http.Handler
	snap   http.Handler
	ws     http.Handler
	auth   *auth.Authenticator
	logger *log.Logger
}

// Options carries the optional surfaces. Nil handlers are not mounted.
type Options struct {
	Stream   http.Handler
	Snapshot http.Handler
	WS       http.Handler
	Auth     *auth.Authenticator
	Logger   *log.Logger
}

// NewServer creates a server around api
func NewServer(api *API, opts Options) *Server {
	if opts.Auth == nil {
		opts.Auth = auth.NewAuthenticator(false, nil)
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Server{
		api:    api,
		stream: opts.Stream,
		snap:   opts.Snapshot,
		ws:     opts.WS,
		auth:   opts.Auth,
		logger: opts.Logger,
	}
}

// Handler builds the request multiplexer wrapped with logging and request
// IDs
func (s *Server) Handler() http.Handler {
	mux := goahttp.NewMuxer()
	guard := authmw.AuthMiddleware(s.auth)

	mount := func(method, pattern string, h http.Handler, public bool) {
		if h == nil {
			return
		}
		if !public {
			h = guard(h)
		}
		mux.Handle(method, pattern, h.ServeHTTP)
		s.logger.Printf("HTTP mounted on %s %s", method, pattern)
	}

	mount(http.MethodGet, "/health", http.HandlerFunc(s.api.Health), true)
	mount(http.MethodGet, "/api/status", http.HandlerFunc(s.api.Status), false)
	mount(http.MethodGet, "/api/summary", http.HandlerFunc(s.api.Summary), false)
	mount(http.MethodGet, "/api/recent", http.HandlerFunc(s.api.Recent), false)
	mount(http.MethodPost, "/api/commands", http.HandlerFunc(s.api.Command), false)
	mount(http.MethodGet, "/stream", s.stream, false)
	mount(http.MethodGet, "/snapshot", s.snap, false)
	mount(http.MethodGet, "/ws", s.ws, false)

	adapter := middleware.NewLogger(s.logger)
	var handler http.Handler = mux
	{
		handler = httpmdlwr.Log(adapter)(handler)
		handler = httpmdlwr.RequestID()(handler)
	}
	return handler
}

// Run serves on addr until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: time.Second * 60}

	errc := make(chan error, 1)
	go func() {
		s.logger.Printf("HTTP server listening on %q", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Printf("shutting down HTTP server at %q", addr)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
