package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/MrRuperto3/TAO-App/internal/analytics"
	apperrors "github.com/MrRuperto3/TAO-App/internal/errors"
	"github.com/MrRuperto3/TAO-App/internal/models"
)

// PerformanceResponse is the body of GET /api/performance
type PerformanceResponse struct {
	Address string `json:"address"`
	*analytics.PerformanceSummary
}

// SignalsResponse is the body of GET /api/signals
type SignalsResponse struct {
	Address string `json:"address"`
	*analytics.SignalsResult
}

// APYResponse is the body of GET /api/positions/apy
type APYResponse struct {
	Address   string                  `json:"address"`
	Windows   []int                   `json:"windows"`
	AsOf      time.Time               `json:"asOf"`
	Positions []analytics.PositionAPY `json:"positions"`
}

// CronRunsResponse is the body of GET /api/cron/runs
type CronRunsResponse struct {
	Runs []models.CronRun `json:"runs"`
}

// intParam reads an optional integer query parameter; absent returns fallback
func intParam(r *http.Request, name string, fallback int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

// handlePerformance handles GET /api/performance?days=N
func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	days, ok := intParam(r, "days", s.analytics.DefaultWindowDays())
	if !ok {
		respondServiceError(w, r, apperrors.NewInvalidParameterError("days", "must be an integer"))
		return
	}

	summary, err := s.analytics.Performance(r.Context(), days)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, PerformanceResponse{Address: s.analytics.Address(), PerformanceSummary: summary})
}

// handleSignals handles GET /api/signals?day=YYYY-MM-DD
func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	result, err := s.analytics.Signals(r.Context(), r.URL.Query().Get("day"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, SignalsResponse{Address: s.analytics.Address(), SignalsResult: result})
}

// handleAPY handles GET /api/positions/apy
func (s *Server) handleAPY(w http.ResponseWriter, r *http.Request) {
	positions, err := s.analytics.APY(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, APYResponse{
		Address:   s.analytics.Address(),
		Windows:   analytics.APYWindows,
		AsOf:      time.Now().UTC(),
		Positions: positions,
	})
}

func (s *Server) handleLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.analytics.LatestSnapshot(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, snap)
}

// handleCronRuns handles GET /api/cron/runs?limit=N
func (s *Server) handleCronRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(r, "limit", 0)
	if !ok {
		respondServiceError(w, r, apperrors.NewInvalidParameterError("limit", "must be an integer"))
		return
	}

	runs, err := s.analytics.CronRuns(r.Context(), limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, CronRunsResponse{Runs: runs})
}
