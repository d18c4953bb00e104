package sqlite

import (
	"encoding/json"
	"time"

	"github.com/shieldterminal/edgecore/internal/domain"
)

// BufferStats carries the buffer's lifetime counters. sync.Buffer fills them
// from in-memory counters, so they start from zero on each process start;
// ItemsRemoved is not populated.
type BufferStats struct {
	ItemsAdded     int64
	ItemsRemoved   int64
	ItemsDropped   int64
	SyncAttempts   int64
	SyncSuccesses  int64
	SyncFailures   int64
}

// AddBufferItem inserts a durable sync_buffer row, enforcing maxSize by
// evicting the lowest-priority, oldest rows first when the table would
// overflow. Unlike the reference implementation's "+100" margin, eviction
// here removes exactly the overflow amount — each S5-style scenario in this
// module expects max_buffer_size to be the table's hard ceiling after add.
// Duplicate (item_type, item_id) pairs are rejected with ErrBufferDuplicate.
func (d *DB) AddBufferItem(itemType domain.SyncItemType, itemID string, payload []byte, priority int, metadata map[string]any, maxSize int) error {
	var exists int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM sync_buffer WHERE item_type = ? AND item_id = ?`, itemType, itemID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return domain.ErrBufferDuplicate
	}

	if maxSize > 0 {
		var count int
		if err := d.db.QueryRow(`SELECT COUNT(*) FROM sync_buffer`).Scan(&count); err != nil {
			return err
		}
		if count+1 > maxSize {
			toRemove := count + 1 - maxSize
			if err := d.evictLowestPriority(toRemove); err != nil {
				return err
			}
		}
	}

	meta, err := json.Marshal(metadata)
	if err != nil {
		return err
	}

	_, err = d.db.Exec(
		`INSERT INTO sync_buffer (item_type, item_id, payload, priority, retry_count, created_at, metadata)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		itemType, itemID, payload, priority, time.Now().Unix(), string(meta),
	)
	return err
}

func (d *DB) evictLowestPriority(n int) error {
	_, err := d.db.Exec(
		`DELETE FROM sync_buffer WHERE id IN (
			SELECT id FROM sync_buffer ORDER BY priority ASC, created_at ASC LIMIT ?
		)`, n,
	)
	return err
}

// BufferItem is one row read back from the buffer for upload.
type BufferItem struct {
	ID         int64
	ItemType   domain.SyncItemType
	ItemID     string
	Payload    []byte
	Priority   int
	RetryCount int
	CreatedAt  time.Time
}

// GetBatch returns up to limit items of itemType with retry_count below
// maxRetries, ordered priority DESC, created_at ASC — the exact ordering
// the sync loop relies on within a single item type.
func (d *DB) GetBatch(itemType domain.SyncItemType, limit, maxRetries int) ([]BufferItem, error) {
	rows, err := d.db.Query(
		`SELECT id, item_type, item_id, payload, priority, retry_count, created_at
		 FROM sync_buffer WHERE item_type = ? AND retry_count < ?
		 ORDER BY priority DESC, created_at ASC LIMIT ?`,
		itemType, maxRetries, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BufferItem
	for rows.Next() {
		var it BufferItem
		var itemType string
		var created int64
		if err := rows.Scan(&it.ID, &itemType, &it.ItemID, &it.Payload, &it.Priority, &it.RetryCount, &created); err != nil {
			return nil, err
		}
		it.ItemType = domain.SyncItemType(itemType)
		it.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, it)
	}
	return out, rows.Err()
}

// MarkSynced removes a buffer row after a confirmed 2xx upload.
func (d *DB) MarkSynced(id int64) error {
	_, err := d.db.Exec(`DELETE FROM sync_buffer WHERE id = ?`, id)
	return err
}

// MarkFailed increments retry_count and sets last_attempt_at; the row is
// deleted in the same call once retry_count reaches maxRetries.
func (d *DB) MarkFailed(id int64, maxRetries int) error {
	_, err := d.db.Exec(
		`UPDATE sync_buffer SET retry_count = retry_count + 1, last_attempt_at = ? WHERE id = ?`,
		time.Now().Unix(), id,
	)
	if err != nil {
		return err
	}
	_, err = d.db.Exec(`DELETE FROM sync_buffer WHERE id = ? AND retry_count >= ?`, id, maxRetries)
	return err
}

// BufferCountByType returns the number of pending rows per item type.
func (d *DB) BufferCountByType() (map[domain.SyncItemType]int, error) {
	rows, err := d.db.Query(`SELECT item_type, COUNT(*) FROM sync_buffer GROUP BY item_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[domain.SyncItemType]int{}
	for rows.Next() {
		var t string
		var c int
		if err := rows.Scan(&t, &c); err != nil {
			return nil, err
		}
		out[domain.SyncItemType(t)] = c
	}
	return out, rows.Err()
}

// BufferSize returns the total number of pending rows.
func (d *DB) BufferSize() (int, error) {
	var n int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM sync_buffer`).Scan(&n)
	return n, err
}

// ClearBuffer deletes every row (used for tests and manual maintenance).
func (d *DB) ClearBuffer() error {
	_, err := d.db.Exec(`DELETE FROM sync_buffer`)
	return err
}
