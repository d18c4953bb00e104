package monitor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shieldterminal/edgecore/internal/domain"
	"github.com/shieldterminal/edgecore/internal/infra/registry"
	"github.com/shieldterminal/edgecore/internal/infra/sqlite"
)

func f64(v float64) *float64 { return &v }

func setupModelWithBaseline(t *testing.T, db *sqlite.DB, baselineRMSE float64) (name, version string) {
	t.Helper()
	manager := registry.NewManager(db, t.TempDir())
	src := filepath.Join(t.TempDir(), "model.bin")
	if err := os.WriteFile(src, []byte("weights"), 0644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	rmse := baselineRMSE
	_, err := manager.DeployModel(src, "settlement_predictor", "1.0.0", "gradient_boost", "all", registry.ValidationMetrics{RMSE: &rmse}, nil, true, "")
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	return "settlement_predictor", "1.0.0"
}

func insertScoredPrediction(t *testing.T, db *sqlite.DB, ring int64, name, version string, predicted, actual float64, ts time.Time) {
	t.Helper()
	p := domain.PredictionRecord{
		RingNumber:           ring,
		Timestamp:            ts,
		ModelName:            name,
		ModelVersion:         version,
		ModelType:            "gradient_boost",
		GeologicalZone:       "all",
		PredictedSettlement:  f64(predicted),
		SettlementLowerBound: f64(predicted - 1),
		SettlementUpperBound: f64(predicted + 1),
		PredictionConfidence: 0.85,
		InferenceTimeMs:      1.0,
		FeatureCompleteness:  1.0,
		QualityFlag:          domain.QualityNormal,
		CreatedAt:            ts,
	}
	id, err := db.InsertPrediction(p)
	if err != nil {
		t.Fatalf("insert prediction: %v", err)
	}
	p.ID = id
	p.UpdateWithActual(actual, nil, nil)
	if err := db.UpdatePredictionActual(p); err != nil {
		t.Fatalf("update actual: %v", err)
	}
}

// TestEvaluateDetectsModerateDriftAtFiftyPercentIncrease exercises the S3
// scenario: baseline RMSE 4mm, 25 predictions with current RMSE 6mm.
func TestEvaluateDetectsModerateDriftAtFiftyPercentIncrease(t *testing.T) {
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	name, version := setupModelWithBaseline(t, db, 4.0)

	base := time.Now().UTC().Add(-25 * time.Hour)
	for i := 0; i < 25; i++ {
		insertScoredPrediction(t, db, int64(i+1), name, version, 16.0, 10.0, base.Add(time.Duration(i)*time.Hour))
	}

	mon := New(db, DefaultConfig())
	metric, err := mon.Evaluate(name, nil, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if metric == nil {
		t.Fatalf("expected a metric result")
	}
	if metric.RMSE < 5.999 || metric.RMSE > 6.001 {
		t.Fatalf("expected rmse ~6.0, got %v", metric.RMSE)
	}
	if metric.RMSEIncreasePercent == nil || *metric.RMSEIncreasePercent < 49.9 || *metric.RMSEIncreasePercent > 50.1 {
		t.Fatalf("expected rmse_increase_percent ~50, got %v", metric.RMSEIncreasePercent)
	}
	if !metric.DriftDetected {
		t.Fatalf("expected drift detected")
	}
	if metric.DriftSeverity != domain.DriftModerate {
		t.Fatalf("expected moderate severity, got %s", metric.DriftSeverity)
	}
	if !metric.TriggeredRetraining {
		t.Fatalf("expected retraining triggered")
	}
}

func TestEvaluateSkipsBelowMinSamples(t *testing.T) {
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	name, version := setupModelWithBaseline(t, db, 4.0)
	insertScoredPrediction(t, db, 1, name, version, 16.0, 10.0, time.Now().UTC())

	mon := New(db, DefaultConfig())
	metric, err := mon.Evaluate(name, nil, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if metric != nil {
		t.Fatalf("expected nil metric below min_samples, got %+v", metric)
	}
}

func TestEvaluateNoDriftWhenWithinThreshold(t *testing.T) {
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	name, version := setupModelWithBaseline(t, db, 4.0)
	base := time.Now().UTC().Add(-25 * time.Hour)
	for i := 0; i < 25; i++ {
		insertScoredPrediction(t, db, int64(i+1), name, version, 14.4, 10.0, base.Add(time.Duration(i)*time.Hour))
	}

	mon := New(db, DefaultConfig())
	metric, err := mon.Evaluate(name, nil, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if metric.DriftDetected {
		t.Fatalf("expected no drift at 10%% rmse increase")
	}
}
