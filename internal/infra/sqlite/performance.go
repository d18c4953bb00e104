package sqlite

import (
	"time"

	"github.com/shieldterminal/edgecore/internal/domain"
)

// InsertPerformanceMetric persists one Performance Monitor evaluation run.
func (d *DB) InsertPerformanceMetric(m domain.PerformanceMetric) (int64, error) {
	res, err := d.db.Exec(
		`INSERT INTO model_performance_metrics (
			model_name, evaluation_date, evaluation_data_range, num_predictions,
			r2_score, rmse, mae, mape, confidence_coverage,
			drift_detected, drift_severity, baseline_rmse, rmse_increase_percent,
			triggered_retraining, retraining_reason, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ModelName, m.EvaluationDate.Unix(), m.EvaluationDataRange, m.NumPredictions,
		m.R2Score, m.RMSE, m.MAE, nullableFloat(m.MAPE), m.ConfidenceCoverage,
		boolToInt(m.DriftDetected), string(m.DriftSeverity), nullableFloat(m.BaselineRMSE), nullableFloat(m.RMSEIncreasePercent),
		boolToInt(m.TriggeredRetraining), m.RetrainingReason, m.CreatedAt.Unix(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecentPerformanceMetrics returns the last n evaluation runs for a model,
// most recent first — used for drift alert listings.
func (d *DB) RecentPerformanceMetrics(modelName string, n int) ([]domain.PerformanceMetric, error) {
	rows, err := d.db.Query(
		`SELECT id, model_name, evaluation_date, evaluation_data_range, num_predictions,
			r2_score, rmse, mae, mape, confidence_coverage,
			drift_detected, drift_severity, baseline_rmse, rmse_increase_percent,
			triggered_retraining, retraining_reason, created_at
		 FROM model_performance_metrics WHERE model_name = ?
		 ORDER BY evaluation_date DESC LIMIT ?`, modelName, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PerformanceMetric
	for rows.Next() {
		var m domain.PerformanceMetric
		var evalDate, created int64
		var driftDetected, triggered int
		var severity string
		if err := rows.Scan(&m.ID, &m.ModelName, &evalDate, &m.EvaluationDataRange, &m.NumPredictions,
			&m.R2Score, &m.RMSE, &m.MAE, &m.MAPE, &m.ConfidenceCoverage,
			&driftDetected, &severity, &m.BaselineRMSE, &m.RMSEIncreasePercent,
			&triggered, &m.RetrainingReason, &created); err != nil {
			return nil, err
		}
		m.EvaluationDate = time.Unix(evalDate, 0).UTC()
		m.CreatedAt = time.Unix(created, 0).UTC()
		m.DriftDetected = driftDetected != 0
		m.TriggeredRetraining = triggered != 0
		m.DriftSeverity = domain.DriftSeverity(severity)
		out = append(out, m)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
