// Package api provides the edge agent's admin HTTP surface: health,
// metrics, status, and the operator endpoints for prediction and model
// lifecycle control.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shieldterminal/edgecore/internal/health"
	"github.com/shieldterminal/edgecore/internal/infra/registry"
	"github.com/shieldterminal/edgecore/internal/prediction"
	"github.com/shieldterminal/edgecore/internal/sync"
)

// Server is the edge agent's admin HTTP server.
type Server struct {
	predictor      *prediction.Manager
	health         *health.Checker
	syncMgr        *sync.Manager
	metricsEnabled bool
}

// NewServer creates a new admin API server.
func NewServer(predictor *prediction.Manager, checker *health.Checker, syncMgr *sync.Manager) *Server {
	return &Server{predictor: predictor, health: checker, syncMgr: syncMgr}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Post("/predict/{ring}", s.handlePredict)
	r.Post("/rings/{ring}/actual", s.handleRecordActual)
	r.Post("/models/deploy", s.handleDeployModel)
	r.Post("/models/{name}/rollback", s.handleRollback)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}
	statuses := s.health.Statuses()
	status := http.StatusOK
	if !s.health.IsHealthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"healthy": s.health.IsHealthy(),
		"checks":  statuses,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.predictor.GetStatus()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]any{
		"prediction": status,
	}
	if s.syncMgr != nil {
		syncStats, err := s.syncMgr.GetStatistics()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp["sync"] = syncStats
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	ringParam := chi.URLParam(r, "ring")
	ringNumber, err := strconv.ParseInt(ringParam, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ring number")
		return
	}

	var req struct {
		ModelOverride string `json:"model_override"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	pred, err := s.predictor.Predict(ringNumber, req.ModelOverride)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

func (s *Server) handleRecordActual(w http.ResponseWriter, r *http.Request) {
	ringParam := chi.URLParam(r, "ring")
	ringNumber, err := strconv.ParseInt(ringParam, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ring number")
		return
	}

	var req struct {
		ActualSettlement   float64  `json:"actual_settlement"`
		ActualDisplacement *float64 `json:"actual_displacement"`
		ActualGroundwater  *float64 `json:"actual_groundwater"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.predictor.RecordActual(ringNumber, req.ActualSettlement, req.ActualDisplacement, req.ActualGroundwater); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *Server) handleDeployModel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SrcPath             string                     `json:"src_path"`
		Name                string                     `json:"name"`
		Version             string                     `json:"version"`
		ModelType           string                     `json:"model_type"`
		Zone                string                     `json:"zone"`
		Metrics             registry.ValidationMetrics `json:"metrics"`
		FeatureList         []string                   `json:"feature_list"`
		Activate            bool                       `json:"activate"`
		OutputFormatVersion string                     `json:"output_format_version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	meta, err := s.predictor.DeployModel(req.SrcPath, req.Name, req.Version, req.ModelType, req.Zone, req.Metrics, req.FeatureList, req.Activate, req.OutputFormatVersion)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, meta)
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req struct {
		PreviousVersion string `json:"previous_version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.predictor.RollbackModel(name, req.PreviousVersion); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rolled back"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
