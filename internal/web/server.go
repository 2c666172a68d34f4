package web

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"tradesim/internal/simulator"
	"tradesim/pkg/model"
)

// backtestState is the last backtest started through the API
type backtestState struct {
	Status   string                 `json:"status"` // idle, running, done, failed
	Days     int                    `json:"days,omitempty"`
	Started  time.Time              `json:"started,omitempty"`
	Finished time.Time              `json:"finished,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Results  []model.BacktestResult `json:"results,omitempty"`
}

// Server exposes a session over HTTP
type Server struct {
	session *simulator.Session
	log     *slog.Logger
	now     func() time.Time

	srvMu sync.Mutex
	srv   *http.Server

	ctx    context.Context
	cancel context.CancelFunc

	btMu sync.RWMutex
	bt   backtestState
}

// NewServer creates a new API server for s
func NewServer(s *simulator.Session, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		session: s,
		log:     log,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		bt:      backtestState{Status: "idle"},
	}
}

// Handler returns the routed API
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/assets", s.handleAssets)
	mux.HandleFunc("GET /api/assets/{id}", s.handleAsset)
	mux.HandleFunc("GET /api/assets/{id}/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /api/assets/{id}/patterns", s.handlePatterns)
	mux.HandleFunc("GET /api/portfolio", s.handlePortfolio)
	mux.HandleFunc("POST /api/positions", s.handleAddPosition)
	mux.HandleFunc("PUT /api/positions/{id}", s.handleUpdateShares)
	mux.HandleFunc("DELETE /api/positions/{id}", s.handleRemovePosition)
	mux.HandleFunc("POST /api/trades", s.handleTrade)
	mux.HandleFunc("GET /api/trades", s.handleTransactions)
	mux.HandleFunc("POST /api/backtest", s.handleStartBacktest)
	mux.HandleFunc("GET /api/backtest", s.handleBacktestStatus)
	mux.HandleFunc("GET /api/strategies", s.handleStrategies)
	mux.HandleFunc("POST /api/indicators/{metric}/toggle", s.handleToggle)
	mux.Handle("GET /metrics", s.session.Metrics().Handler())

	return corsMiddleware(mux)
}

// Start serves on addr until Shutdown
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.srvMu.Lock()
	s.srv = srv
	s.srvMu.Unlock()

	s.log.Info("api listening", slog.String("addr", addr))
	return srv.ListenAndServe()
}

// Shutdown stops the listener and cancels a pending backtest
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	s.srvMu.Lock()
	srv := s.srv
	s.srvMu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers for local development
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
