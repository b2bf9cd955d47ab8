package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tradecapture/tradecapture/internal/audit"
	"github.com/tradecapture/tradecapture/internal/config"
	"github.com/tradecapture/tradecapture/internal/store"
)

// Server exposes the trade store over HTTP: the capture operations, the
// audit feed, admin endpoints, and a WebSocket stream of mutations.
type Server struct {
	config     config.ServerConfig
	store      *store.DocumentStore
	auditLog   audit.Log
	cfgLoader  *config.Loader
	rebuild    func(*config.Config) error
	wsHub      *WebSocketHub
	mux        *http.ServeMux
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates the API server. rebuild is invoked after a successful
// config reload to rebuild the validation set from the new snapshot; it may
// be nil when reload-time rebuilding is not wanted.
func NewServer(
	cfg config.ServerConfig,
	st *store.DocumentStore,
	auditLog audit.Log,
	cfgLoader *config.Loader,
	rebuild func(*config.Config) error,
	logger *slog.Logger,
) *Server {
	s := &Server{
		config:    cfg,
		store:     st,
		auditLog:  auditLog,
		cfgLoader: cfgLoader,
		rebuild:   rebuild,
		wsHub:     NewWebSocketHub(logger, cfg.CORS),
		mux:       http.NewServeMux(),
		logger:    logger,
	}

	// Every committed mutation goes out on the WebSocket feed.
	st.OnEvent(s.wsHub.Broadcast)

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	// Trades
	s.mux.HandleFunc("POST /api/trades", s.handleSaveNew)
	s.mux.HandleFunc("PUT /api/trades/{id}", s.handleFullReplace)
	s.mux.HandleFunc("PATCH /api/trades/{id}", s.handlePartial)
	s.mux.HandleFunc("GET /api/trades/{id}", s.handleLoadByID)
	s.mux.HandleFunc("DELETE /api/trades/{id}", s.handleDeleteByID)
	s.mux.HandleFunc("POST /api/trades/load", s.handleLoadByIDs)
	s.mux.HandleFunc("POST /api/trades/query", s.handleQuery)
	s.mux.HandleFunc("POST /api/trades/count", s.handleCount)
	s.mux.HandleFunc("POST /api/trades/delete", s.handleDeleteByGroup)

	// Audit + system
	s.mux.HandleFunc("GET /api/audit", s.handleAudit)
	s.mux.HandleFunc("GET /api/audit/verify", s.handleAuditVerify)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("POST /api/admin/clear", s.handleAdminClear)
	s.mux.HandleFunc("POST /api/config/reload", s.handleConfigReload)

	// Health
	s.mux.HandleFunc("GET /api/health/live", s.handleHealthLive)
	s.mux.HandleFunc("GET /api/health/ready", s.handleHealthReady)

	// WebSocket
	s.mux.HandleFunc("GET /api/ws/events", s.wsHub.HandleWebSocket)
}

// Handler returns the HTTP handler, with CORS applied when configured.
func (s *Server) Handler() http.Handler {
	if s.config.CORS {
		return corsMiddleware(s.mux)
	}
	return s.mux
}

// Start starts the API server on the given address.
func (s *Server) Start(addr string) error {
	go s.wsHub.Run()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("trade capture API listening", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.wsHub.Close()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers for development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// APIAddr makes a listen address from a port.
func APIAddr(port int) string {
	return fmt.Sprintf(":%d", port)
}
