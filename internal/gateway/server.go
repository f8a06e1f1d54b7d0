// Package gateway is the HTTP adapter: the SSE endpoint (C7) plus the
// supporting create/replay/active/healthz surface. It turns Watcher streams
// into SSE, translates Registry state into JSON, and owns the process's one
// net/http.ServeMux.
package gateway

import (
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/agentcore/agentcore/internal/config"
)

// Server wires the Event Store, Registry, and Watcher into an HTTP surface.
// It is built directly against the concrete collaborator types in Deps
// rather than further narrow interfaces: unlike the execution core, the
// gateway is a leaf with one real implementation and no test-double seam to
// protect.
type Server struct {
	logger *slog.Logger
	mux    *http.ServeMux

	// cors is read fresh on every request rather than baked into the
	// middleware chain at construction, so SetCORS can hot-swap the policy
	// (driven by config.Watcher) without rebuilding the listener.
	cors atomic.Pointer[config.CORSConfig]
}

// New builds the gateway's routes from deps (see Deps) and cfg (CORS,
// request-size, watcher poll/wait defaults).
func New(deps Deps, cfg config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{logger: logger, mux: http.NewServeMux()}
	s.cors.Store(&cfg.CORS)

	h := &handlers{deps: deps, cfg: cfg, logger: logger}
	s.mux.HandleFunc("POST /api/chats/{chat_id}/messages", h.createMessage)
	s.mux.HandleFunc("GET /api/chats/{chat_id}/messages/{message_id}/stream", h.stream)
	s.mux.HandleFunc("GET /api/messages/{message_id}/events", h.replay)
	s.mux.HandleFunc("GET /api/agents/active", h.activeAgents)
	s.mux.HandleFunc("GET /healthz", h.healthz)

	if deps.EnableWS {
		s.mux.HandleFunc("GET /ws", h.ServeWS)
	}

	return s
}

// SetCORS swaps the CORS policy enforced by Handler() for every request that
// arrives afterward. Called by the daemon's config.Watcher goroutine when
// config.yaml's cors section changes on disk.
func (s *Server) SetCORS(cors config.CORSConfig) {
	s.cors.Store(&cors)
}

// Handler returns the fully wrapped handler: CORS, then request-size limit,
// then the route mux.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = RequestSizeLimitMiddleware(1 << 20)(h)
	inner := h
	h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		NewCORSMiddleware(*s.cors.Load())(inner).ServeHTTP(w, r)
	})
	return h
}
