package sync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shieldterminal/edgecore/internal/domain"
	"github.com/shieldterminal/edgecore/internal/infra/sqlite"
)

func openSyncTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUploaderMarksSyncedOn200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	db := openSyncTestDB(t)
	buf := NewBuffer(db, DefaultBufferConfig())
	if err := buf.QueueRing(domain.RingRecord{RingNumber: 1}); err != nil {
		t.Fatalf("queue ring: %v", err)
	}

	up := NewUploader(domain.SyncItemRing, RingUploaderConfig(), buf, srv.URL, "key", "device-1", "project-1", nil)
	synced, err := up.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if synced != 1 {
		t.Fatalf("expected 1 synced, got %d", synced)
	}
	size, _ := buf.Size()
	if size != 0 {
		t.Fatalf("expected buffer drained, size=%d", size)
	}
}

func TestUploaderDropsOn400WithoutRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	db := openSyncTestDB(t)
	buf := NewBuffer(db, DefaultBufferConfig())
	if err := buf.QueueRing(domain.RingRecord{RingNumber: 1}); err != nil {
		t.Fatalf("queue ring: %v", err)
	}

	up := NewUploader(domain.SyncItemRing, RingUploaderConfig(), buf, srv.URL, "key", "device-1", "project-1", nil)
	if _, err := up.DrainOnce(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	size, _ := buf.Size()
	if size != 0 {
		t.Fatalf("expected permanent rejection to drop the row, size=%d", size)
	}
}

func TestUploaderLeavesQueuedOn401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	db := openSyncTestDB(t)
	buf := NewBuffer(db, DefaultBufferConfig())
	if err := buf.QueueRing(domain.RingRecord{RingNumber: 1}); err != nil {
		t.Fatalf("queue ring: %v", err)
	}

	up := NewUploader(domain.SyncItemRing, RingUploaderConfig(), buf, srv.URL, "key", "device-1", "project-1", nil)
	if _, err := up.DrainOnce(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	size, _ := buf.Size()
	if size != 1 {
		t.Fatalf("expected auth failure to leave item queued, size=%d", size)
	}
}

func TestUploaderFlipsRingSyncStatusOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	db := openSyncTestDB(t)
	if err := db.UpsertRing(domain.RingRecord{RingNumber: 42, SyncStatus: domain.SyncPending, DataCompletenessFlag: domain.CompletenessComplete}); err != nil {
		t.Fatalf("upsert ring: %v", err)
	}
	buf := NewBuffer(db, DefaultBufferConfig())
	if err := buf.QueueRing(domain.RingRecord{RingNumber: 42}); err != nil {
		t.Fatalf("queue ring: %v", err)
	}

	up := NewUploader(domain.SyncItemRing, RingUploaderConfig(), buf, srv.URL, "key", "device-1", "project-1", nil)
	up.OnItemSynced = func(item sqlite.BufferItem) {
		if n, ok := parseRingItemID(item.ItemID); ok {
			_ = db.MarkRingSynced(n)
		}
	}
	if _, err := up.DrainOnce(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}

	ring, err := db.GetRing(42)
	if err != nil || ring == nil {
		t.Fatalf("get ring: %v", err)
	}
	if ring.SyncStatus != domain.SyncSynced {
		t.Fatalf("expected ring sync_status=synced, got %s", ring.SyncStatus)
	}
}
