package domain

import "time"

// CompletenessFlag describes how much of a ring's or feature vector's
// inputs were actually observed.
type CompletenessFlag string

const (
	CompletenessComplete   CompletenessFlag = "complete"
	CompletenessPartial    CompletenessFlag = "partial"
	CompletenessAcceptable CompletenessFlag = "acceptable"
	CompletenessIncomplete CompletenessFlag = "incomplete"
)

// DeploymentStatus is a model's position in its lifecycle.
type DeploymentStatus string

const (
	DeploymentStaged   DeploymentStatus = "staged"
	DeploymentActive   DeploymentStatus = "active"
	DeploymentRetired  DeploymentStatus = "retired"
	DeploymentFailed   DeploymentStatus = "failed"
)

// SyncStatus tracks whether a ring record has reached the cloud.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
)

// RingRecord is the aligned, per-ring summary the Aligner exclusively
// creates and closes.
type RingRecord struct {
	RingNumber         int64
	StartTime          time.Time
	EndTime            time.Time
	ThrustMean         *float64
	ThrustStd          *float64
	TorqueMean         *float64
	TorqueStd          *float64
	AdvanceRateMean    *float64
	AdvanceRateStd     *float64
	ChamberPressureMean *float64
	ChamberPressureStd  *float64
	GroutVolume        *float64
	GroutPressureMean  *float64
	PitchMean          *float64
	RollMean           *float64
	YawMean            *float64
	HorizontalDeviation *float64
	VerticalDeviation   *float64
	SpecificEnergy     *float64 // MJ/m^3
	TheoreticalVolume  *float64 // V_t, m^3
	GroundLossRate     *float64 // m^3
	VolumeLossRatio    *float64 // percent
	SettlementValue    *float64 // mm, lagged association
	DataCompletenessFlag CompletenessFlag
	SyncStatus         SyncStatus
	CreatedAt          time.Time
}

// FeatureVector is the in-memory-only output of the Feature Engineer, never
// persisted on its own (it rides inside a PredictionRecord's inference call).
type FeatureVector struct {
	RingNumber     int64
	Names          []string
	Values         []float64
	Completeness   float64
	GeologicalZone string
	QualityFlag    QualityFlag
}

// ModelMetadata describes a deployed inference artifact. Only the Model
// Registry mutates its lifecycle fields.
type ModelMetadata struct {
	ModelName              string
	ModelVersion           string
	ModelType              string
	ONNXPath               string
	ONNXChecksum           string
	ModelSizeBytes         int64
	TrainingDate           *time.Time
	TrainingDataRange      string
	TrainingProjectID      string
	GeologicalZone         string
	ValidationR2           *float64
	ValidationRMSE         *float64
	ValidationMAE          *float64
	FeatureList            []string
	FeatureEngineeringVersion string
	OutputFormatVersion    string // "v1_lower_bound" | "v2_confidence"
	Hyperparameters        map[string]any
	DeploymentStatus       DeploymentStatus
	DeployedAt             *time.Time
	RetiredAt              *time.Time
	LoadTimeSeconds        *float64
	AvgInferenceTimeMs     *float64
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// QualityFlag marks how a feature vector (and the prediction built from it)
// was degraded, if at all. Set by the Feature Engineer itself, not invented
// at the inference boundary: geological fallback and cold-start history are
// both conditions the engineer observes directly while building the vector.
type QualityFlag string

const (
	QualityNormal                    QualityFlag = "normal"
	QualityGeologicalDataIncomplete  QualityFlag = "geological_data_incomplete"
	QualityColdStart                 QualityFlag = "cold_start"
)

// PredictionRecord is a single inference result. Only the Inference Service
// creates these; the Performance Monitor and back-fill path may update the
// actual/error fields afterward.
type PredictionRecord struct {
	ID                         int64
	RingNumber                 int64
	Timestamp                  time.Time
	ModelName                  string
	ModelVersion               string
	ModelType                  string
	GeologicalZone             string
	PredictedSettlement        *float64
	SettlementLowerBound       *float64
	SettlementUpperBound       *float64
	PredictedDisplacement      *float64
	DisplacementLowerBound     *float64
	DisplacementUpperBound     *float64
	PredictedGroundwaterChange *float64
	GroundwaterLowerBound      *float64
	GroundwaterUpperBound      *float64
	PredictionConfidence       float64
	InferenceTimeMs            float64
	FeatureCompleteness        float64
	QualityFlag                QualityFlag
	ActualSettlement           *float64
	ActualDisplacement         *float64
	ActualGroundwaterChange    *float64
	PredictionError            *float64
	AbsoluteError              *float64
	CreatedAt                  time.Time
}

// UpdateWithActual back-fills an observed settlement and recomputes error.
// Idempotent when called again with the same actual.
func (p *PredictionRecord) UpdateWithActual(actualSettlement float64, actualDisplacement, actualGroundwater *float64) {
	p.ActualSettlement = &actualSettlement
	if actualDisplacement != nil {
		p.ActualDisplacement = actualDisplacement
	}
	if actualGroundwater != nil {
		p.ActualGroundwaterChange = actualGroundwater
	}
	if p.PredictedSettlement != nil {
		errVal := *p.PredictedSettlement - actualSettlement
		abs := errVal
		if abs < 0 {
			abs = -abs
		}
		p.PredictionError = &errVal
		p.AbsoluteError = &abs
	}
}

// DriftSeverity buckets a drift detection result.
type DriftSeverity string

const (
	DriftNone     DriftSeverity = ""
	DriftMinor    DriftSeverity = "minor"
	DriftModerate DriftSeverity = "moderate"
	DriftSevere   DriftSeverity = "severe"
)

// PerformanceMetric is one Performance Monitor evaluation run.
type PerformanceMetric struct {
	ID                  int64
	ModelName           string
	EvaluationDate      time.Time
	EvaluationDataRange string
	NumPredictions      int
	R2Score             float64
	RMSE                float64
	MAE                 float64
	MAPE                *float64
	ConfidenceCoverage  float64
	DriftDetected       bool
	DriftSeverity       DriftSeverity
	BaselineRMSE        *float64
	RMSEIncreasePercent *float64
	TriggeredRetraining bool
	RetrainingReason    string
	CreatedAt           time.Time
}

// SyncItemType distinguishes the three item families the buffer carries.
type SyncItemType string

const (
	SyncItemRing       SyncItemType = "ring"
	SyncItemPrediction SyncItemType = "prediction"
	SyncItemWarning    SyncItemType = "warning"
)

// SyncBufferEntry is one durable, restart-surviving store-and-forward row.
type SyncBufferEntry struct {
	ID            int64
	ItemType      SyncItemType
	ItemID        string
	Payload       []byte
	Priority      int
	RetryCount    int
	LastAttemptAt *time.Time
	CreatedAt     time.Time
	Metadata      map[string]any
}

// NetworkState is the Network Monitor's state machine value.
type NetworkState string

const (
	NetworkOnline  NetworkState = "online"
	NetworkOffline NetworkState = "offline"
)

// DiskState is the Disk Monitor's state machine value.
type DiskState string

const (
	DiskNormal   DiskState = "normal"
	DiskWarning  DiskState = "warning"
	DiskCritical DiskState = "critical"
)

// WarningSeverity is the input to the warning-priority mapping the Sync
// Core's queueing path applies before enqueueing into the buffer.
type WarningSeverity string

const (
	WarningCritical WarningSeverity = "critical"
	WarningHigh     WarningSeverity = "high"
	WarningMedium   WarningSeverity = "medium"
	WarningLow      WarningSeverity = "low"
)

// WarningPriority returns the buffer priority for a warning severity,
// defaulting to medium's priority for anything unrecognized.
func WarningPriority(sev WarningSeverity) int {
	switch sev {
	case WarningCritical:
		return 10
	case WarningHigh:
		return 5
	case WarningMedium:
		return 2
	case WarningLow:
		return 1
	default:
		return 2
	}
}
