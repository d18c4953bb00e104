// Package health provides automated health checks with auto-recovery.
package health

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/shieldterminal/edgecore/internal/infra/registry"
	"github.com/shieldterminal/edgecore/internal/infra/sqlite"
)

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
}

// Config carries the resources the standard checks need to reach.
type Config struct {
	ModelsDir     string
	RawDir        string
	HealthURL     string
	MinFreeGB     float64
	CheckInterval time.Duration
}

// NewChecker creates a health checker covering storage, model availability,
// and upstream reachability: the surfaces an edge device can silently fail
// on without an operator noticing until a ring goes unprocessed.
func NewChecker(db *sqlite.DB, reg *registry.Manager, cfg Config) *Checker {
	if cfg.MinFreeGB <= 0 {
		cfg.MinFreeGB = 2.0
	}
	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Checker{
		interval: interval,
		checks: []Check{
			{
				Name: "sqlite",
				CheckFn: func(ctx context.Context) error {
					return db.Ping()
				},
				RecoverFn: func(ctx context.Context) error {
					return nil // SQLite auto-recovers via WAL
				},
			},
			{
				Name: "disk_space",
				CheckFn: func(ctx context.Context) error {
					return checkDiskSpace(cfg.RawDir, cfg.MinFreeGB)
				},
			},
			{
				Name: "models_dir",
				CheckFn: func(ctx context.Context) error {
					return checkModelsDir(cfg.ModelsDir)
				},
			},
			{
				Name: "active_model",
				CheckFn: func(ctx context.Context) error {
					return checkActiveModel(reg)
				},
			},
			{
				Name: "cloud_reachable",
				CheckFn: func(ctx context.Context) error {
					return checkReachable(ctx, cfg.HealthURL)
				},
			},
		},
	}
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.runAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

func (c *Checker) runAll(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now(),
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Healthy = false
			s.Error = err.Error()
			if check.RecoverFn != nil {
				_ = check.RecoverFn(ctx)
			}
		} else {
			s.Healthy = true
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

func checkDiskSpace(dir string, minFreeGB float64) error {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("check disk: %w", err)
	}
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return fmt.Errorf("statfs %s: %w", dir, err)
	}
	freeGB := float64(st.Bavail) * float64(st.Bsize) / (1 << 30)
	if freeGB < minFreeGB {
		return fmt.Errorf("%.2fGB free on %s, below %.2fGB minimum", freeGB, dir, minFreeGB)
	}
	return nil
}

func checkModelsDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // no models deployed yet
		}
		return fmt.Errorf("check models dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("models path %s is not a directory", dir)
	}
	return nil
}

func checkActiveModel(reg *registry.Manager) error {
	if reg == nil {
		return nil
	}
	models, err := reg.ActiveModels()
	if err != nil {
		return fmt.Errorf("list active models: %w", err)
	}
	if len(models) == 0 {
		return fmt.Errorf("no active model deployed")
	}
	return nil
}

func checkReachable(ctx context.Context, healthURL string) error {
	if healthURL == "" {
		return nil
	}
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, healthURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("cloud unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cloud health endpoint returned %d", resp.StatusCode)
	}
	return nil
}
