package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shieldterminal/edgecore/internal/infra/sqlite"
)

func openTestManager(t *testing.T) (*Manager, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewManager(db, t.TempDir()), db
}

func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.bin")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func TestDeployModelStagesWithoutActivating(t *testing.T) {
	m, _ := openTestManager(t)
	src := writeArtifact(t, "fake-weights-v1")

	meta, err := m.DeployModel(src, "settlement_predictor", "1.0.0", "gradient_boost", "soft_clay", ValidationMetrics{}, []string{"thrust_mean"}, false, "")
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if meta.DeploymentStatus != "staged" {
		t.Fatalf("expected staged deployment status, got %s", meta.DeploymentStatus)
	}
	if meta.ONNXChecksum == "" {
		t.Fatalf("expected checksum to be computed")
	}
	if _, err := os.Stat(meta.ONNXPath); err != nil {
		t.Fatalf("expected blob on disk: %v", err)
	}
}

func TestActivateRetiresPriorZoneModel(t *testing.T) {
	m, _ := openTestManager(t)
	srcA := writeArtifact(t, "fake-weights-a")
	srcB := writeArtifact(t, "fake-weights-b")

	if _, err := m.DeployModel(srcA, "settlement_predictor", "1.0.0", "gradient_boost", "soft_clay", ValidationMetrics{}, nil, true, ""); err != nil {
		t.Fatalf("deploy a: %v", err)
	}
	if _, err := m.DeployModel(srcB, "settlement_predictor", "2.0.0", "gradient_boost", "soft_clay", ValidationMetrics{}, nil, true, ""); err != nil {
		t.Fatalf("deploy b: %v", err)
	}

	active, err := m.ActiveForZone("soft_clay")
	if err != nil {
		t.Fatalf("active for zone: %v", err)
	}
	if active.ModelVersion != "2.0.0" {
		t.Fatalf("expected version 2.0.0 active, got %s", active.ModelVersion)
	}

	retired, err := m.db.GetModelMetadata("settlement_predictor", "1.0.0")
	if err != nil {
		t.Fatalf("get retired: %v", err)
	}
	if retired.DeploymentStatus != "retired" {
		t.Fatalf("expected prior version retired, got %s", retired.DeploymentStatus)
	}
}

func TestRollbackReactivatesPreviousVersion(t *testing.T) {
	m, _ := openTestManager(t)
	srcPrevious := writeArtifact(t, "fake-weights-previous")
	srcCurrent := writeArtifact(t, "fake-weights-current")

	// Two versions of the SAME model name, the way a real deploy sequence
	// registers them — not a distinct model under a synthetic name.
	if _, err := m.DeployModel(srcPrevious, "settlement_predictor", "1.0.0", "gradient_boost", "all", ValidationMetrics{}, nil, true, ""); err != nil {
		t.Fatalf("deploy previous: %v", err)
	}
	if _, err := m.DeployModel(srcCurrent, "settlement_predictor", "2.0.0", "gradient_boost", "all", ValidationMetrics{}, nil, true, ""); err != nil {
		t.Fatalf("deploy current: %v", err)
	}

	if err := m.Rollback("settlement_predictor", "1.0.0"); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	active, err := m.ActiveForZone("all")
	if err != nil {
		t.Fatalf("active for zone: %v", err)
	}
	if active.ModelName != "settlement_predictor" || active.ModelVersion != "1.0.0" {
		t.Fatalf("expected rollback target active, got %s@%s", active.ModelName, active.ModelVersion)
	}

	retired, err := m.db.GetModelMetadata("settlement_predictor", "2.0.0")
	if err != nil {
		t.Fatalf("get retired: %v", err)
	}
	if retired.DeploymentStatus != "retired" {
		t.Fatalf("expected the version rolled back from to be retired, got %s", retired.DeploymentStatus)
	}
}

func TestActiveForZoneFallsBackToAll(t *testing.T) {
	m, _ := openTestManager(t)
	src := writeArtifact(t, "fake-weights-generic")
	if _, err := m.DeployModel(src, "settlement_predictor", "1.0.0", "gradient_boost", "all", ValidationMetrics{}, nil, true, ""); err != nil {
		t.Fatalf("deploy: %v", err)
	}

	active, err := m.ActiveForZone("hard_rock")
	if err != nil {
		t.Fatalf("expected fallback to all zone, got error: %v", err)
	}
	if active.ModelName != "settlement_predictor" {
		t.Fatalf("unexpected active model: %s", active.ModelName)
	}
}
