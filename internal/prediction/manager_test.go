package prediction

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shieldterminal/edgecore/internal/domain"
	"github.com/shieldterminal/edgecore/internal/features"
	"github.com/shieldterminal/edgecore/internal/infra/registry"
	"github.com/shieldterminal/edgecore/internal/infra/sqlite"
	"github.com/shieldterminal/edgecore/internal/monitor"
)

type anyZone struct{}

func (anyZone) ZoneForRing(int64) (features.SoilType, bool) { return features.SoilClay, true }

func setupManager(t *testing.T, interval int) (*Manager, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	reg := registry.NewManager(db, t.TempDir())
	src := filepath.Join(t.TempDir(), "model.bin")
	if err := os.WriteFile(src, []byte("weights"), 0644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	if _, err := reg.DeployModel(src, "settlement_predictor", "1.0.0", "gradient_boost", "all", registry.ValidationMetrics{}, nil, true, ""); err != nil {
		t.Fatalf("deploy: %v", err)
	}

	loader := registry.NewLoader(registry.DefaultLoaderConfig(), nil)
	engineer := features.New(features.DefaultConfig(), "1.0.0")
	inf := registry.NewInferenceService(db, reg, loader, engineer, anyZone{}, nil)
	perf := monitor.New(db, monitor.DefaultConfig())

	mgr := New(Config{MonitoringInterval: interval}, reg, loader, inf, perf, nil)
	if err := mgr.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return mgr, db
}

func TestInitializeLoadsActiveModels(t *testing.T) {
	mgr, _ := setupManager(t, 50)
	status, err := mgr.GetStatus()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(status.ActiveModels) != 1 {
		t.Fatalf("expected one active model resident, got %d", len(status.ActiveModels))
	}
}

func TestPredictIncrementsCounterAndResetsAtInterval(t *testing.T) {
	mgr, db := setupManager(t, 3)

	for i := int64(1); i <= 3; i++ {
		ring := domain.RingRecord{RingNumber: i, StartTime: time.Now(), EndTime: time.Now(), ThrustMean: f64(10000), DataCompletenessFlag: domain.CompletenessPartial, CreatedAt: time.Now()}
		if err := db.UpsertRing(ring); err != nil {
			t.Fatalf("upsert ring %d: %v", i, err)
		}
		if _, err := mgr.Predict(i, ""); err != nil {
			t.Fatalf("predict %d: %v", i, err)
		}
	}

	time.Sleep(50 * time.Millisecond) // let the async evaluation sweep run
	status, err := mgr.GetStatus()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.PredictionsSinceEval != 0 {
		t.Fatalf("expected counter reset at interval, got %d", status.PredictionsSinceEval)
	}
}

func f64(v float64) *float64 { return &v }

func TestRollbackModelReactivatesSameNameEarlierVersion(t *testing.T) {
	mgr, db := setupManager(t, 50)

	srcV2 := filepath.Join(t.TempDir(), "model-v2.bin")
	if err := os.WriteFile(srcV2, []byte("weights-v2"), 0644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	if _, err := mgr.DeployModel(srcV2, "settlement_predictor", "2.0.0", "gradient_boost", "all", registry.ValidationMetrics{}, nil, true, ""); err != nil {
		t.Fatalf("deploy v2: %v", err)
	}

	if err := mgr.RollbackModel("settlement_predictor", "1.0.0"); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	status, err := mgr.GetStatus()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	found := false
	for _, m := range status.ActiveModels {
		if m.ModelName == "settlement_predictor" && m.ModelVersion == "1.0.0" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected rollback target active, got %+v", status.ActiveModels)
	}

	ring := domain.RingRecord{RingNumber: 1, StartTime: time.Now(), EndTime: time.Now(), ThrustMean: f64(10000), DataCompletenessFlag: domain.CompletenessPartial, CreatedAt: time.Now()}
	if err := db.UpsertRing(ring); err != nil {
		t.Fatalf("upsert ring: %v", err)
	}
	pred, err := mgr.Predict(1, "")
	if err != nil {
		t.Fatalf("predict after rollback: %v", err)
	}
	if pred.ModelVersion != "1.0.0" {
		t.Fatalf("expected rollback target loaded and serving, got version %s", pred.ModelVersion)
	}
}
