package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/browsertest/dashboard/internal/api"
	"github.com/browsertest/dashboard/internal/database"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleDashboardAPI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.board.Snapshot())
}

// handleTaskAPI prefers the board's view, which live updates keep current,
// and falls back to asking the backend.
func (s *Server) handleTaskAPI(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if task, ok := s.board.Task(id); ok {
		writeJSON(w, http.StatusOK, task)
		return
	}

	task, err := s.svc.GetTaskStatus(r.Context(), id)
	if err != nil {
		if api.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		s.logger.Warn("Error getting task", zap.String("task_id", id), zap.Error(err))
		writeError(w, http.StatusBadGateway, api.Notice(err))
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleScenariosAPI(w http.ResponseWriter, r *http.Request) {
	scenarios, err := s.svc.GetScenarios(r.Context())
	if err != nil {
		s.logger.Warn("Error getting scenarios", zap.Error(err))
		writeError(w, http.StatusBadGateway, api.Notice(err))
		return
	}
	writeJSON(w, http.StatusOK, scenarios)
}

func (s *Server) handleHealthAPI(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"version":        s.version,
		"live_connected": s.board.Connected(),
	}

	health, err := s.svc.HealthCheck(r.Context())
	if err != nil {
		resp["status"] = "unhealthy"
		resp["error"] = api.Notice(err)
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp["status"] = health.Status
	resp["backend"] = health
	writeJSON(w, http.StatusOK, resp)
}

type historyResponse struct {
	Trends *database.TrendData  `json:"trends"`
	Daily  []database.DataPoint `json:"daily"`
}

func (s *Server) handleHistoryAPI(w http.ResponseWriter, r *http.Request) {
	days := historyDays
	if n, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil && n > 0 {
		days = n
	}

	trends, err := s.db.GetTrends(days)
	if err != nil {
		s.logger.Error("Error getting trends", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}
	daily, err := s.db.GetDailyMetrics(days)
	if err != nil {
		s.logger.Error("Error getting daily metrics", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Trends: trends, Daily: daily})
}
