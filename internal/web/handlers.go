package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"tradesim/internal/analyzer"
	"tradesim/internal/backtest"
	"tradesim/internal/portfolio"
	"tradesim/internal/strategy"
	"tradesim/pkg/model"
)

// PositionRequest opens a position
type PositionRequest struct {
	AssetID string  `json:"asset_id"`
	Shares  float64 `json:"shares"`
}

// SharesRequest replaces a held quantity
type SharesRequest struct {
	Shares float64 `json:"shares"`
}

// TradeRequest executes a trade
type TradeRequest struct {
	AssetID  string          `json:"asset_id"`
	Kind     model.TradeKind `json:"kind"`
	Quantity int             `json:"quantity"`
}

// BacktestRequest starts a backtest
type BacktestRequest struct {
	Days int `json:"days"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP status codes
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, portfolio.ErrUnknownAsset):
		status = http.StatusNotFound
	case errors.Is(err, portfolio.ErrInvalidQuantity), errors.Is(err, portfolio.ErrInvalidKind):
		status = http.StatusBadRequest
	case errors.Is(err, portfolio.ErrInsufficientFunds), errors.Is(err, portfolio.ErrInsufficientShares):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, backtest.ErrEmptyPortfolio):
		status = http.StatusConflict
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Reason: portfolio.Reason(err)})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Ledger().Assets())
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	a, ok := s.session.Ledger().Asset(r.PathValue("id"))
	if !ok {
		writeError(w, portfolio.ErrUnknownAsset)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.session.Dashboard(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	patterns, err := s.session.Patterns(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, patterns)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleAddPosition(w http.ResponseWriter, r *http.Request) {
	var req PositionRequest
	if !decode(w, r, &req) {
		return
	}

	added, err := s.session.AddPosition(req.AssetID, portfolio.ClampQuantity(req.Shares))
	if err != nil {
		writeError(w, err)
		return
	}
	if !added {
		writeJSON(w, http.StatusOK, map[string]string{"status": "already_held"})
		return
	}
	a, _ := s.session.Ledger().Asset(req.AssetID)
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleUpdateShares(w http.ResponseWriter, r *http.Request) {
	var req SharesRequest
	if !decode(w, r, &req) {
		return
	}

	id := r.PathValue("id")
	if err := s.session.UpdateShares(id, portfolio.ClampQuantity(req.Shares)); err != nil {
		writeError(w, err)
		return
	}
	a, _ := s.session.Ledger().Asset(id)
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleRemovePosition(w http.ResponseWriter, r *http.Request) {
	s.session.RemovePosition(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if !decode(w, r, &req) {
		return
	}

	tx, err := s.session.Trade(req.AssetID, req.Kind, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Ledger().Transactions())
}

// handleStartBacktest starts an async backtest (POST); clients poll GET /api/backtest
func (s *Server) handleStartBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	if len(s.session.Ledger().Held()) == 0 {
		writeError(w, backtest.ErrEmptyPortfolio)
		return
	}

	s.btMu.Lock()
	if s.bt.Status == "running" {
		s.btMu.Unlock()
		writeJSON(w, http.StatusConflict, map[string]string{"status": "already_running"})
		return
	}
	days := req.Days
	if days <= 0 {
		days = s.session.Config().Backtest.Days
	}
	s.bt = backtestState{Status: "running", Days: days, Started: s.now()}
	s.btMu.Unlock()

	task := s.session.RunBacktest(s.ctx, days)
	task.OnComplete(func(results []model.BacktestResult, err error) {
		s.btMu.Lock()
		defer s.btMu.Unlock()

		s.bt.Finished = s.now()
		if err != nil {
			s.bt.Status = "failed"
			s.bt.Error = err.Error()
			s.log.Warn("api backtest failed", slog.Any("error", err))
			return
		}
		s.bt.Status = "done"
		s.bt.Results = results
	})

	writeJSON(w, http.StatusAccepted, map[string]any{"status": "running", "days": days})
}

func (s *Server) handleBacktestStatus(w http.ResponseWriter, r *http.Request) {
	s.btMu.RLock()
	defer s.btMu.RUnlock()
	writeJSON(w, http.StatusOK, s.bt)
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, strategy.AllInfo())
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	metric := analyzer.Metric(r.PathValue("metric"))
	on, err := s.session.ToggleMetric(metric)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"metric": metric, "enabled": on})
}
