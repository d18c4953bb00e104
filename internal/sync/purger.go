package sync

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shieldterminal/edgecore/internal/infra/sqlite"
)

// PurgerConfig carries the raw-sample directory and retention windows.
type PurgerConfig struct {
	RawDir        string
	RetentionDays int
	MaxAgeDays    int
}

// DefaultPurgerConfig mirrors the purger's documented defaults.
func DefaultPurgerConfig(rawDir string) PurgerConfig {
	return PurgerConfig{RawDir: rawDir, RetentionDays: 30, MaxAgeDays: 90}
}

// Purger deletes raw per-ring sample files once they are safe to discard.
type Purger struct {
	db  *sqlite.DB
	cfg PurgerConfig
}

// NewPurger constructs a Purger.
func NewPurger(db *sqlite.DB, cfg PurgerConfig) *Purger {
	return &Purger{db: db, cfg: cfg}
}

// Result summarizes one purge pass. Errors is non-empty when individual
// deletions failed; the pass itself still runs to completion.
type Result struct {
	Deleted int
	Errors  []error
}

// RingFilePath returns the raw-sample file path for a ring number. Raw
// files are ring-indexed flat files under RawDir.
func (p *Purger) RingFilePath(ringNumber int64) string {
	return filepath.Join(p.cfg.RawDir, fmt.Sprintf("ring_%d.raw", ringNumber))
}

// Normal deletes raw files older than RetentionDays, but only for rings
// that are both synced and at least acceptably complete — an unsynced or
// poor-quality ring's raw data is never purged by the normal pass.
func (p *Purger) Normal() (Result, error) {
	cutoff := time.Now().Add(-time.Duration(p.cfg.RetentionDays) * 24 * time.Hour)
	rings, err := p.db.SyncedRingsBefore(cutoff)
	if err != nil {
		return Result{}, err
	}
	return p.purgeOlderThan(rings, cutoff), nil
}

// Emergency deletes any raw file older than MaxAgeDays regardless of sync
// status, to recover disk space under a critical disk-state callback.
func (p *Purger) Emergency(candidateRings []int64) Result {
	cutoff := time.Now().Add(-time.Duration(p.cfg.MaxAgeDays) * 24 * time.Hour)
	return p.purgeOlderThan(candidateRings, cutoff)
}

func (p *Purger) purgeOlderThan(ringNumbers []int64, cutoff time.Time) Result {
	var res Result
	for _, n := range ringNumbers {
		path := p.RingFilePath(n)
		info, err := os.Stat(path)
		if err != nil {
			if !os.IsNotExist(err) {
				res.Errors = append(res.Errors, err)
			}
			continue
		}
		if info.ModTime().After(cutoff) {
			continue // re-verified at delete time: file is newer than the cutoff now
		}
		if err := os.Remove(path); err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		res.Deleted++
	}
	return res
}
