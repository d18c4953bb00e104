package sync

import (
	"os"
	"testing"
	"time"

	"github.com/shieldterminal/edgecore/internal/domain"
	"github.com/shieldterminal/edgecore/internal/infra/sqlite"
)

func f64p(v float64) *float64 { return &v }

// TestNormalPurgeSafetyS6 exercises the S6 scenario: a pending ring's raw
// file survives a normal purge even past retention, and is only deleted
// once the ring is marked synced.
func TestNormalPurgeSafetyS6(t *testing.T) {
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	rawDir := t.TempDir()
	purger := NewPurger(db, PurgerConfig{RawDir: rawDir, RetentionDays: 30, MaxAgeDays: 90})

	ring := domain.RingRecord{
		RingNumber:           50,
		StartTime:            time.Now().Add(-40 * 24 * time.Hour),
		EndTime:              time.Now().Add(-40 * 24 * time.Hour),
		ThrustMean:           f64p(10000),
		DataCompletenessFlag: domain.CompletenessComplete,
		SyncStatus:           domain.SyncPending,
		CreatedAt:            time.Now(),
	}
	if err := db.UpsertRing(ring); err != nil {
		t.Fatalf("upsert ring: %v", err)
	}

	path := purger.RingFilePath(50)
	if err := os.WriteFile(path, []byte("raw"), 0644); err != nil {
		t.Fatalf("write raw file: %v", err)
	}
	oldTime := time.Now().Add(-40 * 24 * time.Hour)
	if err := os.Chtimes(path, oldTime, oldTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if _, err := purger.Normal(); err != nil {
		t.Fatalf("normal purge: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected pending ring's file preserved, got: %v", err)
	}

	if err := db.MarkRingSynced(50); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	if _, err := purger.Normal(); err != nil {
		t.Fatalf("normal purge after sync: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file deleted after ring marked synced, got: %v", err)
	}
}

func TestEmergencyPurgeIgnoresSyncStatus(t *testing.T) {
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	rawDir := t.TempDir()
	purger := NewPurger(db, PurgerConfig{RawDir: rawDir, RetentionDays: 30, MaxAgeDays: 90})

	path := purger.RingFilePath(99)
	if err := os.WriteFile(path, []byte("raw"), 0644); err != nil {
		t.Fatalf("write raw file: %v", err)
	}
	oldTime := time.Now().Add(-100 * 24 * time.Hour)
	if err := os.Chtimes(path, oldTime, oldTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	res := purger.Emergency([]int64{99})
	if res.Deleted != 1 {
		t.Fatalf("expected emergency purge to delete stale file regardless of sync status, got %d deleted", res.Deleted)
	}
}
