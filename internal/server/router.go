package server

import (
	"net/http"

	"github.com/watzon/topiccache/internal/metrics"
	"github.com/watzon/topiccache/internal/server/handlers"
)

type Router struct {
	server      *Server
	mux         *http.ServeMux
	middlewares []Middleware
}

type Middleware func(http.Handler) http.Handler

func NewRouter(srv *Server) *Router {
	r := &Router{
		server: srv,
		mux:    http.NewServeMux(),
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

func (r *Router) setupMiddleware() {
	r.Use(RequestIDMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(LoggingMiddleware)

	if r.server.cfg.Metrics.Enabled {
		r.Use(MetricsMiddleware)
	}
}

func (r *Router) Use(mw Middleware) {
	r.middlewares = append(r.middlewares, mw)
}

func (r *Router) setupRoutes() {
	h := handlers.New(r.server.Listener(), r.server.filters)
	health := handlers.NewHealthHandlers(r.server.Listener(), r.server.Broker(), r.server.version)

	r.mux.HandleFunc("GET /health", r.wrap(health.Health))
	r.mux.HandleFunc("GET /api/stats", r.wrap(health.Stats))

	r.mux.HandleFunc("GET /api/count/{kind}", r.wrap(h.Count))
	r.mux.HandleFunc("GET /api/topics/{kind}", r.wrap(h.Topics))
	r.mux.HandleFunc("GET /api/participants/{kind}/{id}", r.wrap(h.Participant))
	r.mux.Handle("GET /api/debug/cache", CompressionMiddleware(http.HandlerFunc(h.DebugCache)))

	if r.server.cfg.Metrics.Enabled {
		r.mux.Handle("GET /metrics", metrics.Handler())
	}

	if r.server.cfg.Realtime.Enabled && r.server.Broker() != nil {
		rt := handlers.NewRealtimeHandler(r.server.Broker(), r.server.cfg.Realtime.OriginPatterns)
		r.mux.HandleFunc("GET /api/realtime", rt.HandleWebSocket)
	}
}

func (r *Router) wrap(fn handlers.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		fn(w, req)
	}
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	handler := http.Handler(r.mux)

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i](handler)
	}

	handler.ServeHTTP(w, req)
}
