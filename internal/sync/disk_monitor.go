package sync

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// DiskMonitorConfig carries the watched paths and the warning/critical
// free-space thresholds, in gigabytes.
type DiskMonitorConfig struct {
	Paths             []string
	CheckInterval     time.Duration
	WarningThreshold  float64
	CriticalThreshold float64
}

// DefaultDiskMonitorConfig mirrors the monitor's documented defaults.
func DefaultDiskMonitorConfig(paths []string) DiskMonitorConfig {
	return DiskMonitorConfig{
		Paths:             paths,
		CheckInterval:     60 * time.Second,
		WarningThreshold:  5.0,
		CriticalThreshold: 2.0,
	}
}

// DiskMonitor polls free space across a set of paths and reports the
// minimum as one of normal/warning/critical. OnStateChange fires only on
// an edge into warning or critical (never on recovery, and never more
// than once per transition) per the monitor's documented callback policy.
type DiskMonitor struct {
	cfg           DiskMonitorConfig
	OnStateChange func(state string, freeGB float64)

	mu    sync.Mutex
	state string
}

// NewDiskMonitor constructs a DiskMonitor, starting in the normal state.
func NewDiskMonitor(cfg DiskMonitorConfig) *DiskMonitor {
	return &DiskMonitor{cfg: cfg, state: "normal"}
}

// State returns the monitor's current state.
func (m *DiskMonitor) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Run drives the periodic disk check until ctx is cancelled.
func (m *DiskMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkOnce()
		}
	}
}

func (m *DiskMonitor) checkOnce() {
	free, err := minFreeGB(m.cfg.Paths)
	if err != nil {
		return
	}

	next := "normal"
	switch {
	case free <= m.cfg.CriticalThreshold:
		next = "critical"
	case free <= m.cfg.WarningThreshold:
		next = "warning"
	}

	m.mu.Lock()
	prev := m.state
	m.state = next
	m.mu.Unlock()

	edgeIntoAlert := (next == "warning" || next == "critical") && next != prev
	if edgeIntoAlert && m.OnStateChange != nil {
		m.OnStateChange(next, free)
	}
}

func minFreeGB(paths []string) (float64, error) {
	const gigabyte = 1 << 30
	min := -1.0
	for _, p := range paths {
		var st unix.Statfs_t
		if err := unix.Statfs(p, &st); err != nil {
			return 0, err
		}
		free := float64(st.Bavail) * float64(st.Bsize) / gigabyte
		if min < 0 || free < min {
			min = free
		}
	}
	if min < 0 {
		return 0, nil
	}
	return min, nil
}
