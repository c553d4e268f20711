// Package mock provides a disposable local HTTP server with the endpoints the
// hitmux tests and the serve command use: echo, delay, cookies, status codes
// and redirects.
package mock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// HTMLContentType is the content type of /print responses
const HTMLContentType = "text/html; charset=UTF-8"

// Server is a mock HTTP server
type Server struct {
	router  *Router
	port    int
	delay   time.Duration
	verbose bool
	logger  zerolog.Logger
}

// Option is a functional option for Server
type Option func(*Server)

// WithPort sets the server port
func WithPort(port int) Option {
	return func(s *Server) {
		s.port = port
	}
}

// WithDelay adds a delay to all responses
func WithDelay(delay time.Duration) Option {
	return func(s *Server) {
		s.delay = delay
	}
}

// WithVerbose enables per-request logging
func WithVerbose(verbose bool) Option {
	return func(s *Server) {
		s.verbose = verbose
	}
}

// WithLogger sets the server logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a mock server with the built-in routes
func NewServer(opts ...Option) *Server {
	s := &Server{
		router: NewRouter(),
		port:   1080,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router.Handle(http.MethodGet, "/", "blank", handleBlank)
	s.router.Handle("", "/print", "print", handlePrint)
	s.router.Handle("", "/sleep", "sleep", handleSleep)
	s.router.Handle(http.MethodGet, "/setcookie", "setcookie", handleSetCookie)
	s.router.Handle("", "/headers", "headers", handleHeaders)
	s.router.Handle("", "/status/{{code}}", "status", handleStatus)
	s.router.Handle(http.MethodGet, "/redirect/{{n}}", "redirect", handleRedirect)

	return s
}

// Router exposes the route table so callers can add routes
func (s *Server) Router() *Router {
	return s.router
}

// Handler returns the server as an http.Handler, e.g. for httptest.NewServer
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleRequest)
}

// Start serves on the configured port until ctx is done
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Int("routes", len(s.router.Routes())).Msg("mock server starting")
	if s.verbose {
		for _, route := range s.router.Routes() {
			method := route.Method
			if method == "" {
				method = "*"
			}
			s.logger.Info().Str("method", method).Str("path", route.PathPattern).Msg("route")
		}
	}

	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	route, params := s.router.Match(r.Method, r.URL.Path)
	if route == nil {
		if s.verbose {
			s.logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", http.StatusNotFound).Dur("elapsed", time.Since(start)).Msg("request")
		}
		http.NotFound(w, r)
		return
	}

	route.Handler(w, r, params)

	if s.verbose {
		s.logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Str("route", route.Name).Dur("elapsed", time.Since(start)).Msg("request")
	}
}

func handleBlank(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	w.WriteHeader(http.StatusOK)
}

// handlePrint echoes the content query parameter.
func handlePrint(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	w.Header().Set("Content-Type", HTMLContentType)
	_, _ = w.Write([]byte(r.URL.Query().Get("content")))
}

func handleSleep(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	ms, err := strconv.Atoi(r.URL.Query().Get("ms"))
	if err != nil || ms < 0 {
		http.Error(w, "ms must be a non-negative integer", http.StatusBadRequest)
		return
	}

	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
	case <-r.Context().Done():
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleSetCookie sets a cookie whose value is query-escaped.
func handleSetCookie(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q := r.URL.Query()
	name := q.Get("name")
	if name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:  name,
		Value: url.QueryEscape(q.Get("value")),
		Path:  "/",
	})
	w.WriteHeader(http.StatusOK)
}

func handleHeaders(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(headers)
}

func handleStatus(w http.ResponseWriter, r *http.Request, params map[string]string) {
	code, err := strconv.Atoi(params["code"])
	if err != nil || code < 100 || code > 999 {
		http.Error(w, "invalid status code", http.StatusBadRequest)
		return
	}
	w.WriteHeader(code)
}

// handleRedirect redirects n times before landing on /.
func handleRedirect(w http.ResponseWriter, r *http.Request, params map[string]string) {
	n, err := strconv.Atoi(params["n"])
	if err != nil || n < 0 {
		http.Error(w, "invalid redirect count", http.StatusBadRequest)
		return
	}

	target := "/"
	if n > 1 {
		target = fmt.Sprintf("/redirect/%d", n-1)
	}
	if n == 0 {
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}
