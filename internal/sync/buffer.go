// Package sync implements the Sync Core: a durable priority buffer, one
// uploader per item family, network/disk state machines, a purger, and the
// orchestrating SyncManager that ties them together with two cooperative
// loops.
package sync

import (
	"encoding/json"
	"sync/atomic"

	"github.com/shieldterminal/edgecore/internal/domain"
	"github.com/shieldterminal/edgecore/internal/infra/sqlite"
)

// BufferConfig carries the buffer's capacity limit.
type BufferConfig struct {
	MaxSize int
}

// DefaultBufferConfig mirrors the documented default.
func DefaultBufferConfig() BufferConfig {
	return BufferConfig{MaxSize: 10000}
}

// Buffer is a thin, stats-tracking wrapper around the SQLite-backed
// durable priority queue, with one QueueX convenience method per item
// family so callers never hand-marshal payloads themselves.
type Buffer struct {
	db  *sqlite.DB
	cfg BufferConfig

	itemsAdded   atomic.Int64
	itemsDropped atomic.Int64
	syncAttempts atomic.Int64
	syncSuccess  atomic.Int64
	syncFailures atomic.Int64
}

// NewBuffer constructs a Buffer over db.
func NewBuffer(db *sqlite.DB, cfg BufferConfig) *Buffer {
	return &Buffer{db: db, cfg: cfg}
}

// QueueRing enqueues a ring summary at a fixed low priority (rings are the
// lowest-priority item family per the sync loop's warning→prediction→ring
// drain order).
func (b *Buffer) QueueRing(ring domain.RingRecord) error {
	payload, err := json.Marshal(ring)
	if err != nil {
		return err
	}
	return b.add(domain.SyncItemRing, ringItemID(ring.RingNumber), payload, 0, nil)
}

// QueuePrediction enqueues a prediction result at a fixed medium priority.
func (b *Buffer) QueuePrediction(pred domain.PredictionRecord) error {
	payload, err := json.Marshal(pred)
	if err != nil {
		return err
	}
	return b.add(domain.SyncItemPrediction, predictionItemID(pred.ID), payload, 3, nil)
}

// QueueWarning enqueues a warning event at the priority its severity maps
// to via domain.WarningPriority.
func (b *Buffer) QueueWarning(itemID string, severity domain.WarningSeverity, payload []byte) error {
	return b.add(domain.SyncItemWarning, itemID, payload, domain.WarningPriority(severity), map[string]any{"severity": string(severity)})
}

func (b *Buffer) add(itemType domain.SyncItemType, itemID string, payload []byte, priority int, metadata map[string]any) error {
	sizeBefore, err := b.db.BufferSize()
	if err == nil && b.cfg.MaxSize > 0 && sizeBefore+1 > b.cfg.MaxSize {
		b.itemsDropped.Add(int64(sizeBefore + 1 - b.cfg.MaxSize))
	}

	err = b.db.AddBufferItem(itemType, itemID, payload, priority, metadata, b.cfg.MaxSize)
	if err != nil {
		if errIs(err, domain.ErrBufferDuplicate) {
			return nil // duplicate enqueue is a no-op, not a failure
		}
		return err
	}
	b.itemsAdded.Add(1)
	return nil
}

func errIs(err, target error) bool {
	type isser interface{ Is(error) bool }
	if e, ok := err.(isser); ok {
		return e.Is(target)
	}
	return err == target
}

// GetBatch returns up to limit items of itemType eligible for upload.
func (b *Buffer) GetBatch(itemType domain.SyncItemType, limit, maxRetries int) ([]sqlite.BufferItem, error) {
	return b.db.GetBatch(itemType, limit, maxRetries)
}

// MarkSynced removes a buffer row and records a sync success.
func (b *Buffer) MarkSynced(id int64) error {
	b.syncAttempts.Add(1)
	if err := b.db.MarkSynced(id); err != nil {
		return err
	}
	b.syncSuccess.Add(1)
	return nil
}

// MarkFailed increments a buffer row's retry count and records a sync
// failure; the row is garbage-collected once retry_count reaches
// maxRetries (tracked as a sync_failures count either way).
func (b *Buffer) MarkFailed(id int64, maxRetries int) error {
	b.syncAttempts.Add(1)
	b.syncFailures.Add(1)
	return b.db.MarkFailed(id, maxRetries)
}

// Stats returns the buffer's lifetime counters.
func (b *Buffer) Stats() sqlite.BufferStats {
	return sqlite.BufferStats{
		ItemsAdded:    b.itemsAdded.Load(),
		ItemsDropped:  b.itemsDropped.Load(),
		SyncAttempts:  b.syncAttempts.Load(),
		SyncSuccesses: b.syncSuccess.Load(),
		SyncFailures:  b.syncFailures.Load(),
	}
}

// Size returns the current number of buffered rows.
func (b *Buffer) Size() (int, error) { return b.db.BufferSize() }

// CountByType returns the current per-type breakdown.
func (b *Buffer) CountByType() (map[domain.SyncItemType]int, error) { return b.db.BufferCountByType() }

func ringItemID(ringNumber int64) string {
	return "ring-" + itoa(ringNumber)
}

func predictionItemID(id int64) string {
	return "prediction-" + itoa(id)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
