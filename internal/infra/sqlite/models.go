package sqlite

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/shieldterminal/edgecore/internal/domain"
)

// UpsertModelMetadata inserts or replaces a model_metadata row, keyed on
// (model_name, model_version). Only the Model Registry calls this.
func (d *DB) UpsertModelMetadata(m domain.ModelMetadata) error {
	featureList, err := json.Marshal(m.FeatureList)
	if err != nil {
		return err
	}
	hyper, err := json.Marshal(m.Hyperparameters)
	if err != nil {
		return err
	}

	var trainingDate sql.NullInt64
	if m.TrainingDate != nil {
		trainingDate = sql.NullInt64{Int64: m.TrainingDate.Unix(), Valid: true}
	}

	now := time.Now()
	_, err = d.db.Exec(
		`INSERT INTO model_metadata (
			model_name, model_version, model_type, onnx_path, onnx_checksum,
			model_size_bytes, training_date, training_data_range, training_project_id,
			geological_zone, validation_r2, validation_rmse, validation_mae,
			feature_list, feature_engineering_version, output_format_version, hyperparameters,
			deployment_status, deployed_at, retired_at, load_time_seconds, avg_inference_time_ms,
			created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(model_name, model_version) DO UPDATE SET
			model_type=excluded.model_type, onnx_path=excluded.onnx_path, onnx_checksum=excluded.onnx_checksum,
			model_size_bytes=excluded.model_size_bytes, training_date=excluded.training_date,
			training_data_range=excluded.training_data_range, training_project_id=excluded.training_project_id,
			geological_zone=excluded.geological_zone,
			validation_r2=excluded.validation_r2, validation_rmse=excluded.validation_rmse, validation_mae=excluded.validation_mae,
			feature_list=excluded.feature_list, feature_engineering_version=excluded.feature_engineering_version,
			output_format_version=excluded.output_format_version, hyperparameters=excluded.hyperparameters,
			deployment_status=excluded.deployment_status, deployed_at=excluded.deployed_at, retired_at=excluded.retired_at,
			load_time_seconds=excluded.load_time_seconds, avg_inference_time_ms=excluded.avg_inference_time_ms,
			updated_at=excluded.updated_at`,
		m.ModelName, m.ModelVersion, m.ModelType, m.ONNXPath, m.ONNXChecksum,
		m.ModelSizeBytes, trainingDate, m.TrainingDataRange, m.TrainingProjectID,
		m.GeologicalZone, nullableFloat(m.ValidationR2), nullableFloat(m.ValidationRMSE), nullableFloat(m.ValidationMAE),
		string(featureList), m.FeatureEngineeringVersion, m.OutputFormatVersion, string(hyper),
		string(m.DeploymentStatus), nullableUnix(m.DeployedAt), nullableUnix(m.RetiredAt),
		nullableFloat(m.LoadTimeSeconds), nullableFloat(m.AvgInferenceTimeMs),
		m.CreatedAt.Unix(), now.Unix(),
	)
	return err
}

const modelSelectCols = `model_name, model_version, model_type, onnx_path, onnx_checksum,
	model_size_bytes, training_date, training_data_range, training_project_id,
	geological_zone, validation_r2, validation_rmse, validation_mae,
	feature_list, feature_engineering_version, output_format_version, hyperparameters,
	deployment_status, deployed_at, retired_at, load_time_seconds, avg_inference_time_ms,
	created_at, updated_at`

func scanModelMetadata(s scanner) (domain.ModelMetadata, error) {
	var m domain.ModelMetadata
	var trainingDate sql.NullInt64
	var deployedAt, retiredAt sql.NullInt64
	var featureList, hyper string
	var status string
	var created, updated int64

	err := s.Scan(&m.ModelName, &m.ModelVersion, &m.ModelType, &m.ONNXPath, &m.ONNXChecksum,
		&m.ModelSizeBytes, &trainingDate, &m.TrainingDataRange, &m.TrainingProjectID,
		&m.GeologicalZone, &m.ValidationR2, &m.ValidationRMSE, &m.ValidationMAE,
		&featureList, &m.FeatureEngineeringVersion, &m.OutputFormatVersion, &hyper,
		&status, &deployedAt, &retiredAt, &m.LoadTimeSeconds, &m.AvgInferenceTimeMs,
		&created, &updated,
	)
	if err != nil {
		return m, err
	}
	if trainingDate.Valid {
		t := time.Unix(trainingDate.Int64, 0).UTC()
		m.TrainingDate = &t
	}
	m.DeploymentStatus = domain.DeploymentStatus(status)
	m.DeployedAt = unixToTimePtr(deployedAt)
	m.RetiredAt = unixToTimePtr(retiredAt)
	m.CreatedAt = time.Unix(created, 0).UTC()
	m.UpdatedAt = time.Unix(updated, 0).UTC()
	_ = json.Unmarshal([]byte(featureList), &m.FeatureList)
	_ = json.Unmarshal([]byte(hyper), &m.Hyperparameters)
	return m, nil
}

// GetModelMetadata fetches one model by name+version.
func (d *DB) GetModelMetadata(name, version string) (*domain.ModelMetadata, error) {
	row := d.db.QueryRow(`SELECT `+modelSelectCols+` FROM model_metadata WHERE model_name = ? AND model_version = ?`, name, version)
	m, err := scanModelMetadata(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ActiveModels returns all model_metadata rows with deployment_status='active'.
func (d *DB) ActiveModels() ([]domain.ModelMetadata, error) {
	rows, err := d.db.Query(`SELECT ` + modelSelectCols + ` FROM model_metadata WHERE deployment_status = 'active'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ModelMetadata
	for rows.Next() {
		m, err := scanModelMetadata(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ActiveModelForZone returns the active model for a geological zone, falling
// back to the "all" zone model if no zone-specific model is active.
func (d *DB) ActiveModelForZone(zone string) (*domain.ModelMetadata, error) {
	row := d.db.QueryRow(
		`SELECT `+modelSelectCols+` FROM model_metadata
		 WHERE deployment_status = 'active' AND geological_zone = ?
		 ORDER BY deployed_at DESC LIMIT 1`, zone)
	m, err := scanModelMetadata(row)
	if err == nil {
		return &m, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	row = d.db.QueryRow(
		`SELECT `+modelSelectCols+` FROM model_metadata
		 WHERE deployment_status = 'active' AND geological_zone = 'all'
		 ORDER BY deployed_at DESC LIMIT 1`)
	m, err = scanModelMetadata(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ModelByNameVersion fetches one model by exact name+version; it is the same
// lookup as GetModelMetadata.
func (d *DB) ModelByNameVersion(name, version string) (*domain.ModelMetadata, error) {
	return d.GetModelMetadata(name, version)
}
