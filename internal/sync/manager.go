package sync

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shieldterminal/edgecore/internal/domain"
	"github.com/shieldterminal/edgecore/internal/infra/sqlite"
)

// ManagerConfig carries the orchestration loop cadences.
type ManagerConfig struct {
	SyncInterval  time.Duration
	PurgeInterval time.Duration
}

// DefaultManagerConfig mirrors the orchestrator's documented defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{SyncInterval: 60 * time.Second, PurgeInterval: 3600 * time.Second}
}

// Manager drives the two cooperative loops described in the sync
// orchestration design: a sync loop that drains the buffer in
// warning→prediction→ring priority order while online, and a purge loop
// that runs the normal purge on its own cadence. Neither the network nor
// the disk monitor holds a reference back to Manager; Manager supplies
// their OnStateChange callbacks at construction instead.
type Manager struct {
	cfg     ManagerConfig
	db      *sqlite.DB
	buffer  *Buffer
	ring    *Uploader
	pred    *Uploader
	warn    *Uploader
	network *NetworkMonitor
	disk    *DiskMonitor
	purger  *Purger
	logger  *slog.Logger

	online atomic.Bool
}

// NewManager wires a SyncManager from its already-constructed components.
// The network monitor's online transition is hooked to immediately trigger
// a sync cycle, and the disk monitor's critical transition to an emergency
// purge, per the documented callback contract.
func NewManager(cfg ManagerConfig, db *sqlite.DB, buffer *Buffer, ringUploader, predUploader, warnUploader *Uploader, network *NetworkMonitor, disk *DiskMonitor, purger *Purger, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		cfg: cfg, db: db, buffer: buffer,
		ring: ringUploader, pred: predUploader, warn: warnUploader,
		network: network, disk: disk, purger: purger, logger: logger,
	}

	if ringUploader != nil {
		ringUploader.OnItemSynced = func(item sqlite.BufferItem) {
			if ringNumber, ok := parseRingItemID(item.ItemID); ok {
				if err := db.MarkRingSynced(ringNumber); err != nil {
					logger.Warn("failed to flip ring sync_status after confirmed upload", "ring_number", ringNumber, "error", err)
				}
			}
		}
	}

	network.OnStateChange = func(state string) {
		m.online.Store(state == "online")
		if state == "online" {
			go m.syncCycle(context.Background())
		}
	}
	disk.OnStateChange = func(state string, freeGB float64) {
		logger.Warn("disk state transition", "state", state, "free_gb", freeGB)
		if state == "critical" {
			go m.emergencyPurge()
		} else if state == "warning" {
			go func() {
				if _, err := m.purger.Normal(); err != nil {
					logger.Warn("normal purge from disk-warning callback failed", "error", err)
				}
			}()
		}
	}

	return m
}

// Run starts the network monitor, disk monitor, sync loop, and purge loop,
// all observing ctx as their shared stop signal.
func (m *Manager) Run(ctx context.Context) {
	go m.network.Run(ctx)
	go m.disk.Run(ctx)
	go m.syncLoop(ctx)
	go m.purgeLoop(ctx)
}

func (m *Manager) syncLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.syncCycle(ctx)
		}
	}
}

// syncCycle drains the buffer in warning → prediction → ring order,
// unconditionally, while the network monitor reports online.
func (m *Manager) syncCycle(ctx context.Context) {
	if !m.online.Load() {
		return
	}
	for _, uploader := range []*Uploader{m.warn, m.pred, m.ring} {
		if uploader == nil {
			continue
		}
		for {
			synced, err := uploader.DrainOnce(ctx)
			if err != nil {
				m.logger.Warn("sync batch failed", "item_type", uploader.itemType, "error", err)
				break
			}
			if synced == 0 {
				break
			}
		}
	}
}

func (m *Manager) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.PurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.purger.Normal(); err != nil {
				m.logger.Warn("normal purge failed", "error", err)
			}
		}
	}
}

// emergencyPurge sources candidates from every ring started before the
// purger's emergency cutoff, independent of sync status or completeness:
// disk pressure overrides the normal purge safety invariant entirely.
func (m *Manager) emergencyPurge() {
	cutoff := time.Now().Add(-time.Duration(m.purger.cfg.MaxAgeDays) * 24 * time.Hour)
	rings, err := m.db.AllRingNumbersBefore(cutoff)
	if err != nil {
		m.logger.Warn("emergency purge: failed to list rings", "error", err)
		return
	}
	res := m.purger.Emergency(rings)
	if len(res.Errors) > 0 {
		m.logger.Warn("emergency purge completed with errors", "deleted", res.Deleted, "errors", len(res.Errors))
	}
}

// parseRingItemID extracts the ring number back out of a "ring-<n>" buffer
// item id, the inverse of Buffer.QueueRing's id construction.
func parseRingItemID(itemID string) (int64, bool) {
	const prefix = "ring-"
	if len(itemID) <= len(prefix) || itemID[:len(prefix)] != prefix {
		return 0, false
	}
	var n int64
	for _, c := range itemID[len(prefix):] {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int64(c-'0')
	}
	return n, true
}

// Statistics is the sync core's aggregate view, used by the admin API's
// /status endpoint.
type Statistics struct {
	Online       bool
	DiskState    string
	BufferSize   int
	BufferByType map[domain.SyncItemType]int
	Buffer       sqlite.BufferStats
}

// GetStatistics returns the Sync Core's current aggregate view.
func (m *Manager) GetStatistics() (Statistics, error) {
	size, err := m.buffer.Size()
	if err != nil {
		return Statistics{}, err
	}
	byType, err := m.buffer.CountByType()
	if err != nil {
		return Statistics{}, err
	}
	return Statistics{
		Online:       m.online.Load(),
		DiskState:    m.disk.State(),
		BufferSize:   size,
		BufferByType: byType,
		Buffer:       m.buffer.Stats(),
	}, nil
}
