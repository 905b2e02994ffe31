package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolrouter/agent"
	"github.com/effective-security/toolrouter/callbacks"
	"github.com/effective-security/toolrouter/chatmodel"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolrouter", "server")

// HeaderRequestID is the header carrying the request ID
const HeaderRequestID = "X-Request-ID"

// ServiceName is reported by the health and the index routes
const ServiceName = "toolrouter"

// DefaultShutdownTimeout is the time given to in-flight requests on shutdown
const DefaultShutdownTimeout = 5 * time.Second

// Server serves the Agent over HTTP
type Server struct {
	agent      *agent.Agent
	addr       string
	scratchpad *callbacks.Scratchpad
	server     *http.Server
}

// Option is a function that modifies the Server
type Option func(*Server)

// WithScratchpad records each chat request in the scratchpad,
// the scratchpad must also be registered as the Agent callback.
func WithScratchpad(sp *callbacks.Scratchpad) Option {
	return func(s *Server) {
		s.scratchpad = sp
	}
}

// New returns Server listening on addr
func New(a *agent.Agent, addr string, opts ...Option) *Server {
	s := &Server{
		agent: a,
		addr:  addr,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.addr
}

// Handler returns the HTTP handler with all routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.index)
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /status", s.status)
	mux.HandleFunc("POST /initialize", s.initialize)
	mux.HandleFunc("POST /test", s.selfTest)

	mux.HandleFunc("POST /chat", s.chat(agent.ModeSingle))
	mux.HandleFunc("POST /chat/memory", s.chat(agent.ModeMemory))
	mux.HandleFunc("POST /chat/chain", s.chat(agent.ModeChain))
	mux.HandleFunc("POST /analyze", s.analyze)

	mux.HandleFunc("GET /tools", s.tools)
	mux.HandleFunc("POST /tools/refresh", s.refreshTools)

	mux.HandleFunc("GET /memory/conversations", s.conversations)
	mux.HandleFunc("GET /memory/conversations/{id}", s.conversation)
	mux.HandleFunc("DELETE /memory/conversations/{id}", s.deleteConversation)
	mux.HandleFunc("GET /memory/tool-data/{id}", s.toolData)
	mux.HandleFunc("POST /memory/search/{id}", s.search)
	mux.HandleFunc("GET /memory/entities/{id}", s.entities)
	mux.HandleFunc("POST /memory/rebuild-entities/{id}", s.rebuildEntities)

	return withRequestID(mux)
}

// Start serves until the context is cancelled,
// then in-flight requests are given DefaultShutdownTimeout to complete.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.KV(xlog.INFO, "status", "listening", "addr", s.addr)
		errc <- s.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		logger.KV(xlog.INFO, "status", "shutdown", "addr", s.addr)
		return errors.WithStack(s.server.Shutdown(shutdownCtx))
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.WithStack(err)
	}
}

// Close stops the server immediately
func (s *Server) Close() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

type requestIDKey struct{}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// withRequestID assigns the request ID, echoes it in the response
// and logs the request.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		requestID := values.StringsCoalesce(r.Header.Get(HeaderRequestID), chatmodel.NewRequestID())
		w.Header().Set(HeaderRequestID, requestID)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		next.ServeHTTP(sw, r.WithContext(ctx))

		logger.ContextKV(ctx, xlog.DEBUG,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestID,
			"code", sw.status,
			"elapsed", time.Since(started).String(),
		)
	})
}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.KV(xlog.ERROR, "status", "encode_failed", "err", err.Error())
	}
}

// ErrorResponse is the body of failed requests
type ErrorResponse struct {
	Error   string `json:"error"`
	Success bool   `json:"success"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, &ErrorResponse{Error: msg})
}
