package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shieldterminal/edgecore/internal/domain"
	"github.com/shieldterminal/edgecore/internal/features"
	"github.com/shieldterminal/edgecore/internal/infra/sqlite"
)

type fixedZone struct {
	soil features.SoilType
	ok   bool
}

func (z fixedZone) ZoneForRing(int64) (features.SoilType, bool) { return z.soil, z.ok }

func f64(v float64) *float64 { return &v }

func setupInferenceService(t *testing.T) (*InferenceService, *sqlite.DB, *Manager) {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	manager := NewManager(db, t.TempDir())
	src := filepath.Join(t.TempDir(), "model.bin")
	if err := os.WriteFile(src, []byte("fake-weights"), 0644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	meta, err := manager.DeployModel(src, "settlement_predictor", "1.0.0", "gradient_boost", "soft_clay", ValidationMetrics{}, []string{"thrust_mean"}, true, "")
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}

	loader := NewLoader(DefaultLoaderConfig(), nil)
	if _, err := loader.Load(*meta, true, false); err != nil {
		t.Fatalf("load: %v", err)
	}

	engineer := features.New(features.DefaultConfig(), "1.0.0")
	svc := NewInferenceService(db, manager, loader, engineer, fixedZone{soil: features.SoilClay, ok: true}, nil)
	return svc, db, manager
}

func TestPredictForRingPersistsAndReturnsPrediction(t *testing.T) {
	svc, db, _ := setupInferenceService(t)

	ring := domain.RingRecord{
		RingNumber:           7,
		StartTime:            time.Unix(0, 0).UTC(),
		EndTime:              time.Unix(3600, 0).UTC(),
		ThrustMean:           f64(12000),
		TorqueMean:           f64(2500),
		AdvanceRateMean:      f64(0.03),
		DataCompletenessFlag: domain.CompletenessComplete,
		SyncStatus:           domain.SyncPending,
		CreatedAt:            time.Now().UTC(),
	}
	if err := db.UpsertRing(ring); err != nil {
		t.Fatalf("upsert ring: %v", err)
	}

	pred, err := svc.PredictForRing(7, "")
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if pred.ID == 0 {
		t.Fatalf("expected persisted prediction to have an id")
	}
	if pred.PredictedSettlement == nil {
		t.Fatalf("expected a settlement prediction")
	}
	if pred.ModelName != "settlement_predictor" {
		t.Fatalf("unexpected model name: %s", pred.ModelName)
	}

	stored, err := db.GetPrediction(pred.ID)
	if err != nil || stored == nil {
		t.Fatalf("expected prediction to be retrievable: %v", err)
	}
}

func TestPredictForRingMissingRingReturnsRingNotFound(t *testing.T) {
	svc, _, _ := setupInferenceService(t)
	_, err := svc.PredictForRing(999, "")
	if !errors.Is(err, domain.ErrRingNotFound) {
		t.Fatalf("expected ErrRingNotFound for missing ring, got %v", err)
	}
}

func TestUpdateActualIdempotentOnSameValue(t *testing.T) {
	svc, db, _ := setupInferenceService(t)
	ring := domain.RingRecord{RingNumber: 1, StartTime: time.Now(), EndTime: time.Now(), ThrustMean: f64(10000), DataCompletenessFlag: domain.CompletenessPartial, CreatedAt: time.Now()}
	if err := db.UpsertRing(ring); err != nil {
		t.Fatalf("upsert ring: %v", err)
	}
	pred, err := svc.PredictForRing(1, "")
	if err != nil {
		t.Fatalf("predict: %v", err)
	}

	if err := svc.UpdateActual(1, 5.2, nil, nil); err != nil {
		t.Fatalf("update actual: %v", err)
	}
	first, _ := db.GetPrediction(pred.ID)

	if err := svc.UpdateActual(1, 5.2, nil, nil); err != nil {
		t.Fatalf("update actual again: %v", err)
	}
	second, _ := db.GetPrediction(pred.ID)

	if *first.AbsoluteError != *second.AbsoluteError {
		t.Fatalf("expected idempotent error recomputation, got %v then %v", *first.AbsoluteError, *second.AbsoluteError)
	}
}
