// Package prediction implements the Prediction Manager: the orchestrator
// that wires the Model Registry, Inference Service, and Performance
// Monitor together and owns their shared lifecycle.
package prediction

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/shieldterminal/edgecore/internal/domain"
	"github.com/shieldterminal/edgecore/internal/infra/registry"
	"github.com/shieldterminal/edgecore/internal/monitor"
)

// Config carries the orchestrator's fixed thresholds.
type Config struct {
	MonitoringInterval int
}

// DefaultConfig mirrors the manager's documented defaults.
func DefaultConfig() Config {
	return Config{MonitoringInterval: 50}
}

// Manager coordinates the Model Registry, Loader, Inference Service, and
// Performance Monitor. Nothing holds a reference back to Manager; the
// daemon owns it and drives Predict/DeployModel/RollbackModel directly.
type Manager struct {
	cfg       Config
	registry  *registry.Manager
	loader    *registry.Loader
	inference *registry.InferenceService
	perf      *monitor.Monitor
	logger    *slog.Logger

	counter atomic.Int64
	mu      sync.Mutex
}

// New constructs a Prediction Manager from its already-wired components.
func New(cfg Config, reg *registry.Manager, loader *registry.Loader, inference *registry.InferenceService, perf *monitor.Monitor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{cfg: cfg, registry: reg, loader: loader, inference: inference, perf: perf, logger: logger}
}

// Initialize loads every active model into the resident Loader, checksum-
// verified, so the first Predict call never pays the load cost cold.
func (m *Manager) Initialize() error {
	models, err := m.registry.ActiveModels()
	if err != nil {
		return domain.NewError(domain.CategoryStorage, domain.CodeStorageQueryFailed, "list active models", err)
	}
	for _, meta := range models {
		if _, err := m.loader.Load(meta, true, true); err != nil {
			m.logger.Warn("failed to load active model at startup", "model", meta.ModelName, "version", meta.ModelVersion, "error", err)
			if errors.Is(err, domain.ErrChecksumMismatch) {
				if ferr := m.registry.MarkFailed(meta.ModelName, meta.ModelVersion); ferr != nil {
					m.logger.Warn("failed to mark model failed", "model", meta.ModelName, "version", meta.ModelVersion, "error", ferr)
				}
			}
			continue
		}
	}
	return nil
}

// Predict runs inference for ringNumber (modelOverride optional, "" selects
// the zone's active model), then increments the shared prediction counter.
// Once the counter reaches MonitoringInterval, it kicks off an evaluation
// pass over every active model and resets.
func (m *Manager) Predict(ringNumber int64, modelOverride string) (*domain.PredictionRecord, error) {
	pred, err := m.inference.PredictForRing(ringNumber, modelOverride)
	if err != nil {
		return nil, err
	}

	if m.counter.Add(1) >= int64(m.cfg.MonitoringInterval) {
		m.mu.Lock()
		if m.counter.Load() >= int64(m.cfg.MonitoringInterval) {
			m.counter.Store(0)
			go m.evaluateActiveModels()
		}
		m.mu.Unlock()
	}

	return pred, nil
}

func (m *Manager) evaluateActiveModels() {
	models, err := m.registry.ActiveModels()
	if err != nil {
		m.logger.Warn("evaluation sweep: failed to list active models", "error", err)
		return
	}
	for _, meta := range models {
		metric, err := m.perf.EvaluateRolling(meta.ModelName)
		if err != nil {
			m.logger.Warn("evaluation failed", "model", meta.ModelName, "error", err)
			continue
		}
		if metric == nil {
			continue
		}
		if metric.TriggeredRetraining {
			m.logger.Warn("retraining triggered", "model", meta.ModelName, "reason", metric.RetrainingReason, "rmse", metric.RMSE, "r2", metric.R2Score)
		}
	}
}

// DeployModel delegates to the registry, then — when activate is true —
// ensures the newly active model is resident in the Loader.
func (m *Manager) DeployModel(srcPath, name, version, modelType, zone string, metrics registry.ValidationMetrics, featureList []string, activate bool, outputFormatVersion string) (*domain.ModelMetadata, error) {
	meta, err := m.registry.DeployModel(srcPath, name, version, modelType, zone, metrics, featureList, activate, outputFormatVersion)
	if err != nil {
		return nil, err
	}
	if activate {
		if _, err := m.loader.Load(*meta, true, true); err != nil {
			if errors.Is(err, domain.ErrChecksumMismatch) {
				if ferr := m.registry.MarkFailed(meta.ModelName, meta.ModelVersion); ferr != nil {
					m.logger.Warn("failed to mark model failed", "model", meta.ModelName, "version", meta.ModelVersion, "error", ferr)
				}
			}
			return nil, err
		}
	}
	return meta, nil
}

// RollbackModel delegates to the registry and loads the reactivated
// version into the Loader.
func (m *Manager) RollbackModel(name, previousVersion string) error {
	if err := m.registry.Rollback(name, previousVersion); err != nil {
		return err
	}
	meta, err := m.registry.GetModel(name, previousVersion)
	if err != nil {
		return err
	}
	if meta == nil {
		return domain.ErrModelNotFound.WithDetail("model", name).WithDetail("version", previousVersion)
	}
	_, err = m.loader.Load(*meta, true, true)
	return err
}

// RecordActual back-fills an observed settlement (and optionally
// displacement/groundwater) onto the most recent prediction made for
// ringNumber, the entry point the Performance Monitor's evaluation passes
// depend on ever having real data to score.
func (m *Manager) RecordActual(ringNumber int64, actualSettlement float64, actualDisplacement, actualGroundwater *float64) error {
	return m.inference.UpdateActual(ringNumber, actualSettlement, actualDisplacement, actualGroundwater)
}

// Status is the Prediction Manager's aggregate view over every active
// model plus its own orchestration counters.
type Status struct {
	ActiveModels      []domain.ModelMetadata
	PredictionsSinceEval int
	MonitoringInterval int
}

// GetStatus returns the manager's current aggregate view.
func (m *Manager) GetStatus() (Status, error) {
	models, err := m.registry.ActiveModels()
	if err != nil {
		return Status{}, err
	}
	return Status{
		ActiveModels:         models,
		PredictionsSinceEval: int(m.counter.Load()),
		MonitoringInterval:   m.cfg.MonitoringInterval,
	}, nil
}
