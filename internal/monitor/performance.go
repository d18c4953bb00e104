// Package monitor implements the Performance Monitor: back-filling
// actuals, scoring deployed models against them, and flagging drift
// against each model's validation-time baseline.
package monitor

import (
	"math"
	"time"

	"github.com/shieldterminal/edgecore/internal/domain"
	"github.com/shieldterminal/edgecore/internal/infra/sqlite"
)

// Config carries the Performance Monitor's fixed thresholds.
type Config struct {
	MinSamples       int
	DriftThreshold   float64 // fraction, e.g. 0.20 for 20%
	EvaluationWindow int
}

// DefaultConfig mirrors the monitor's documented defaults.
func DefaultConfig() Config {
	return Config{MinSamples: 20, DriftThreshold: 0.20, EvaluationWindow: 50}
}

// Monitor evaluates a model's recent predictions against their back-filled
// actuals and persists a PerformanceMetric row per run.
type Monitor struct {
	db  *sqlite.DB
	cfg Config
}

// New constructs a Performance Monitor.
func New(db *sqlite.DB, cfg Config) *Monitor {
	return &Monitor{db: db, cfg: cfg}
}

// Evaluate scores modelName over predictions with actuals in [since, until)
// (either bound may be nil). Returns nil, nil when fewer than MinSamples
// pairs are available — not an error, just nothing to report yet.
func (m *Monitor) Evaluate(modelName string, since, until *time.Time) (*domain.PerformanceMetric, error) {
	preds, err := m.db.PredictionsForEvaluation(modelName, since, until)
	if err != nil {
		return nil, domain.NewError(domain.CategoryStorage, domain.CodeStorageQueryFailed, "load predictions for evaluation", err)
	}
	return m.evaluateSet(modelName, preds)
}

// EvaluateRolling scores the most recent EvaluationWindow predictions for
// modelName, regardless of when they were made.
func (m *Monitor) EvaluateRolling(modelName string) (*domain.PerformanceMetric, error) {
	preds, err := m.db.PredictionsForEvaluation(modelName, nil, nil)
	if err != nil {
		return nil, domain.NewError(domain.CategoryStorage, domain.CodeStorageQueryFailed, "load predictions for evaluation", err)
	}
	if len(preds) > m.cfg.EvaluationWindow {
		preds = preds[len(preds)-m.cfg.EvaluationWindow:]
	}
	return m.evaluateSet(modelName, preds)
}

func (m *Monitor) evaluateSet(modelName string, preds []domain.PredictionRecord) (*domain.PerformanceMetric, error) {
	if len(preds) < m.cfg.MinSamples {
		return nil, nil
	}

	r2, rmse, mae, mape, coverage := scoreAll(preds)

	var baseline *domain.ModelMetadata
	if len(preds) > 0 {
		meta, err := m.db.GetModelMetadata(preds[0].ModelName, preds[0].ModelVersion)
		if err == nil {
			baseline = meta
		}
	}

	metric := domain.PerformanceMetric{
		ModelName:           modelName,
		EvaluationDate:      time.Now().UTC(),
		EvaluationDataRange: dataRange(preds),
		NumPredictions:      len(preds),
		R2Score:             r2,
		RMSE:                rmse,
		MAE:                 mae,
		MAPE:                mape,
		ConfidenceCoverage:  coverage,
		CreatedAt:           time.Now().UTC(),
	}

	if baseline != nil && baseline.ValidationRMSE != nil && *baseline.ValidationRMSE > 0 {
		baselineRMSE := *baseline.ValidationRMSE
		increase := 100 * (rmse - baselineRMSE) / baselineRMSE
		metric.BaselineRMSE = &baselineRMSE
		metric.RMSEIncreasePercent = &increase

		if increase > 100*m.cfg.DriftThreshold {
			metric.DriftDetected = true
			switch {
			case increase > 50:
				metric.DriftSeverity = domain.DriftSevere
			case increase > 30:
				metric.DriftSeverity = domain.DriftModerate
			default:
				metric.DriftSeverity = domain.DriftMinor
			}
		}
	}

	if metric.DriftDetected || r2 < 0.90 {
		metric.TriggeredRetraining = true
		metric.RetrainingReason = retrainingReason(metric.DriftDetected, r2)
	}

	id, err := m.db.InsertPerformanceMetric(metric)
	if err != nil {
		return nil, domain.NewError(domain.CategoryStorage, domain.CodeStorageWriteFailed, "persist performance metric", err)
	}
	metric.ID = id
	return &metric, nil
}

func retrainingReason(drift bool, r2 float64) string {
	switch {
	case drift && r2 < 0.90:
		return "rmse_drift_and_low_r2"
	case drift:
		return "rmse_drift"
	default:
		return "low_r2"
	}
}

func dataRange(preds []domain.PredictionRecord) string {
	if len(preds) == 0 {
		return ""
	}
	first, last := preds[0].Timestamp, preds[0].Timestamp
	for _, p := range preds {
		if p.Timestamp.Before(first) {
			first = p.Timestamp
		}
		if p.Timestamp.After(last) {
			last = p.Timestamp
		}
	}
	return first.Format(time.RFC3339) + "/" + last.Format(time.RFC3339)
}

// scoreAll computes R², RMSE, MAE, MAPE (over nonzero-actual entries), and
// confidence coverage (the fraction of actuals that fell within their
// predicted [lower, upper] bound) across preds.
func scoreAll(preds []domain.PredictionRecord) (r2, rmse, mae float64, mape *float64, coverage float64) {
	n := float64(len(preds))

	var sumActual float64
	for _, p := range preds {
		sumActual += *p.ActualSettlement
	}
	meanActual := sumActual / n

	var ssRes, ssTot, sumAbs, sumSq float64
	var mapeSum float64
	var mapeCount int
	var covered int

	for _, p := range preds {
		actual := *p.ActualSettlement
		predicted := 0.0
		if p.PredictedSettlement != nil {
			predicted = *p.PredictedSettlement
		}
		errv := predicted - actual
		ssRes += errv * errv
		ssTot += (actual - meanActual) * (actual - meanActual)
		sumAbs += math.Abs(errv)
		sumSq += errv * errv

		if actual != 0 {
			mapeSum += math.Abs(errv/actual) * 100
			mapeCount++
		}

		if p.SettlementLowerBound != nil && p.SettlementUpperBound != nil &&
			actual >= *p.SettlementLowerBound && actual <= *p.SettlementUpperBound {
			covered++
		}
	}

	if ssTot == 0 {
		r2 = 0
	} else {
		r2 = 1 - ssRes/ssTot
	}
	rmse = math.Sqrt(sumSq / n)
	mae = sumAbs / n
	coverage = float64(covered) / n

	if mapeCount > 0 {
		v := mapeSum / float64(mapeCount)
		mape = &v
	}
	return r2, rmse, mae, mape, coverage
}
