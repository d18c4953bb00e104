package sqlite

import (
	"database/sql"
	"time"

	"github.com/shieldterminal/edgecore/internal/domain"
)

// InsertPrediction creates a new prediction_results row. Only the Inference
// Service calls this.
func (d *DB) InsertPrediction(p domain.PredictionRecord) (int64, error) {
	res, err := d.db.Exec(
		`INSERT INTO prediction_results (
			ring_number, timestamp, model_name, model_version, model_type, geological_zone,
			predicted_settlement, settlement_lower_bound, settlement_upper_bound,
			predicted_displacement, displacement_lower_bound, displacement_upper_bound,
			predicted_groundwater_change, groundwater_lower_bound, groundwater_upper_bound,
			prediction_confidence, inference_time_ms, feature_completeness, quality_flag,
			created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.RingNumber, p.Timestamp.Unix(), p.ModelName, p.ModelVersion, p.ModelType, p.GeologicalZone,
		nullableFloat(p.PredictedSettlement), nullableFloat(p.SettlementLowerBound), nullableFloat(p.SettlementUpperBound),
		nullableFloat(p.PredictedDisplacement), nullableFloat(p.DisplacementLowerBound), nullableFloat(p.DisplacementUpperBound),
		nullableFloat(p.PredictedGroundwaterChange), nullableFloat(p.GroundwaterLowerBound), nullableFloat(p.GroundwaterUpperBound),
		p.PredictionConfidence, p.InferenceTimeMs, p.FeatureCompleteness, string(p.QualityFlag),
		p.CreatedAt.Unix(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const predictionSelectCols = `id, ring_number, timestamp, model_name, model_version, model_type, geological_zone,
	predicted_settlement, settlement_lower_bound, settlement_upper_bound,
	predicted_displacement, displacement_lower_bound, displacement_upper_bound,
	predicted_groundwater_change, groundwater_lower_bound, groundwater_upper_bound,
	prediction_confidence, inference_time_ms, feature_completeness, quality_flag,
	actual_settlement, actual_displacement, actual_groundwater_change,
	prediction_error, absolute_error, created_at`

func scanPrediction(s scanner) (domain.PredictionRecord, error) {
	var p domain.PredictionRecord
	var ts, created int64
	var quality string
	err := s.Scan(&p.ID, &p.RingNumber, &ts, &p.ModelName, &p.ModelVersion, &p.ModelType, &p.GeologicalZone,
		&p.PredictedSettlement, &p.SettlementLowerBound, &p.SettlementUpperBound,
		&p.PredictedDisplacement, &p.DisplacementLowerBound, &p.DisplacementUpperBound,
		&p.PredictedGroundwaterChange, &p.GroundwaterLowerBound, &p.GroundwaterUpperBound,
		&p.PredictionConfidence, &p.InferenceTimeMs, &p.FeatureCompleteness, &quality,
		&p.ActualSettlement, &p.ActualDisplacement, &p.ActualGroundwaterChange,
		&p.PredictionError, &p.AbsoluteError, &created,
	)
	if err != nil {
		return p, err
	}
	p.Timestamp = time.Unix(ts, 0).UTC()
	p.CreatedAt = time.Unix(created, 0).UTC()
	p.QualityFlag = domain.QualityFlag(quality)
	return p, nil
}

// GetPrediction fetches a prediction by ID.
func (d *DB) GetPrediction(id int64) (*domain.PredictionRecord, error) {
	row := d.db.QueryRow(`SELECT `+predictionSelectCols+` FROM prediction_results WHERE id = ?`, id)
	p, err := scanPrediction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdatePredictionActual persists a back-filled actual settlement/error.
func (d *DB) UpdatePredictionActual(p domain.PredictionRecord) error {
	_, err := d.db.Exec(
		`UPDATE prediction_results SET
			actual_settlement = ?, actual_displacement = ?, actual_groundwater_change = ?,
			prediction_error = ?, absolute_error = ?
		 WHERE id = ?`,
		nullableFloat(p.ActualSettlement), nullableFloat(p.ActualDisplacement), nullableFloat(p.ActualGroundwaterChange),
		nullableFloat(p.PredictionError), nullableFloat(p.AbsoluteError), p.ID,
	)
	return err
}

// PredictionsForEvaluation returns predictions for a model that have an
// actual settlement recorded (the only ones usable for R2/RMSE/MAE), within
// an optional date range.
func (d *DB) PredictionsForEvaluation(modelName string, since, until *time.Time) ([]domain.PredictionRecord, error) {
	query := `SELECT ` + predictionSelectCols + ` FROM prediction_results
		WHERE model_name = ? AND actual_settlement IS NOT NULL`
	args := []any{modelName}
	if since != nil {
		query += ` AND timestamp >= ?`
		args = append(args, since.Unix())
	}
	if until != nil {
		query += ` AND timestamp < ?`
		args = append(args, until.Unix())
	}
	query += ` ORDER BY timestamp ASC`

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PredictionRecord
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MostRecentPredictionForRing returns the latest prediction made for
// ringNumber, or nil if none exists, used to back-fill an observed actual
// without the caller needing to track a prediction id.
func (d *DB) MostRecentPredictionForRing(ringNumber int64) (*domain.PredictionRecord, error) {
	row := d.db.QueryRow(`SELECT `+predictionSelectCols+` FROM prediction_results
		WHERE ring_number = ? ORDER BY timestamp DESC LIMIT 1`, ringNumber)
	p, err := scanPrediction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// PredictionByRing returns every prediction made for ringNumber, oldest
// first.
func (d *DB) PredictionByRing(ringNumber int64) ([]domain.PredictionRecord, error) {
	rows, err := d.db.Query(`SELECT `+predictionSelectCols+` FROM prediction_results WHERE ring_number = ? ORDER BY timestamp ASC`, ringNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PredictionRecord
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
