package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/shieldterminal/edgecore/internal/domain"
)

// LoaderConfig controls session caching and warning thresholds.
type LoaderConfig struct {
	MaxLoadedModels  int
	LoadWarnAfter    time.Duration
	PredictWarnAfter time.Duration
	LatencyRingSize  int
}

// DefaultLoaderConfig mirrors the loader's documented thresholds.
func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{
		MaxLoadedModels:  4,
		LoadWarnAfter:    5 * time.Second,
		PredictWarnAfter: 10 * time.Millisecond,
		LatencyRingSize:  1000,
	}
}

// Loader owns a bounded cache of resident Sessions, grounded on the
// content-addressed checksum-verification idiom the registry manager uses
// for model artifacts, and keeps a bounded per-model latency ring for
// get_performance_stats.
type Loader struct {
	cfg    LoaderConfig
	cache  *lru.Cache[string, Session]
	mu     sync.Mutex
	ring   map[string]*latencyRing
	logger *slog.Logger
}

func cacheKey(name, version string) string { return name + "@" + version }

// NewLoader constructs a Loader with an LRU session cache bounded at
// cfg.MaxLoadedModels, evicting the least-recently-used session (closing it)
// on overflow.
func NewLoader(cfg LoaderConfig, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{cfg: cfg, ring: map[string]*latencyRing{}, logger: logger}
	cache, _ := lru.NewWithEvict[string, Session](cfg.MaxLoadedModels, func(key string, value Session) {
		_ = value.Close()
	})
	l.cache = cache
	return l
}

// Load reads the artifact at meta.ONNXPath, optionally verifying its
// SHA-256 checksum against meta.ONNXChecksum via a streaming hash, builds a
// session, and optionally warms it up with a zero-valued input of
// len(meta.FeatureList). Logs a warning if loading exceeds LoadWarnAfter.
func (l *Loader) Load(meta domain.ModelMetadata, verifyChecksum, warmUp bool) (Session, error) {
	start := time.Now()

	f, err := os.Open(meta.ONNXPath)
	if err != nil {
		return nil, domain.NewError(domain.CategoryStorage, domain.CodeStorageQueryFailed, "open model artifact", err)
	}
	defer f.Close()

	h := sha256.New()
	data, err := io.ReadAll(io.TeeReader(f, h))
	if err != nil {
		return nil, domain.NewError(domain.CategoryStorage, domain.CodeStorageQueryFailed, "read model artifact", err)
	}

	if verifyChecksum {
		sum := hex.EncodeToString(h.Sum(nil))
		if sum != meta.ONNXChecksum {
			return nil, domain.ErrChecksumMismatch.WithDetail("expected", meta.ONNXChecksum).WithDetail("actual", sum)
		}
	}

	numOutputs := outputCountFor(meta)
	session := newInprocSession(data, numOutputs)

	if warmUp {
		zero := make([]float64, len(meta.FeatureList))
		if _, err := session.Predict(zero); err != nil {
			return nil, domain.NewError(domain.CategoryInference, domain.CodeInferenceModelUnavailable, "warm-up predict failed", err)
		}
	}

	elapsed := time.Since(start)
	if elapsed > l.cfg.LoadWarnAfter {
		l.logger.Warn("model load exceeded threshold", "model", meta.ModelName, "version", meta.ModelVersion, "elapsed", elapsed)
	}

	l.mu.Lock()
	l.cache.Add(cacheKey(meta.ModelName, meta.ModelVersion), session)
	if _, ok := l.ring[cacheKey(meta.ModelName, meta.ModelVersion)]; !ok {
		l.ring[cacheKey(meta.ModelName, meta.ModelVersion)] = newLatencyRing(l.cfg.LatencyRingSize)
	}
	l.mu.Unlock()

	return session, nil
}

// Unload evicts a model's session from the cache, closing it.
func (l *Loader) Unload(name, version string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache.Remove(cacheKey(name, version))
}

// Predict runs one forward pass against the resident session for
// name/version, records timing, and returns the raw output vector plus
// elapsed time. Returns ErrModelUnavailable if the session is not loaded.
func (l *Loader) Predict(name, version string, input []float64) ([]float64, time.Duration, error) {
	l.mu.Lock()
	session, ok := l.cache.Get(cacheKey(name, version))
	ring := l.ring[cacheKey(name, version)]
	l.mu.Unlock()
	if !ok {
		return nil, 0, domain.ErrModelUnavailable.WithDetail("model", name).WithDetail("version", version)
	}

	start := time.Now()
	out, err := session.Predict(input)
	elapsed := time.Since(start)
	if err != nil {
		return nil, elapsed, domain.NewError(domain.CategoryInference, domain.CodeInferenceModelUnavailable, "predict failed", err)
	}

	if ring != nil {
		ring.add(elapsed)
	}
	if elapsed > l.cfg.PredictWarnAfter {
		l.logger.Warn("inference exceeded threshold", "model", name, "version", version, "elapsed", elapsed)
	}
	return out, elapsed, nil
}

// PerformanceStats summarizes a model's recorded inference latencies.
type PerformanceStats struct {
	Count  int
	Mean   time.Duration
	Median time.Duration
	P95    time.Duration
	P99    time.Duration
	Min    time.Duration
	Max    time.Duration
}

// GetPerformanceStats computes mean/median/p95/p99/min/max over the
// resident latency ring for name/version.
func (l *Loader) GetPerformanceStats(name, version string) PerformanceStats {
	l.mu.Lock()
	ring := l.ring[cacheKey(name, version)]
	l.mu.Unlock()
	if ring == nil {
		return PerformanceStats{}
	}
	return ring.stats()
}

// outputCountFor chooses the reference session's output width from the
// model's declared output format; real artifacts would carry this in their
// own graph metadata.
func outputCountFor(meta domain.ModelMetadata) int {
	switch meta.OutputFormatVersion {
	case "v2_confidence":
		return 2
	default:
		// "v1_lower_bound", and unset (treated the same way at decode time).
		return 2
	}
}

// latencyRing is a bounded circular buffer of recent inference durations.
type latencyRing struct {
	mu     sync.Mutex
	values []time.Duration
	cap    int
	next   int
	filled bool
}

func newLatencyRing(capacity int) *latencyRing {
	return &latencyRing{values: make([]time.Duration, capacity), cap: capacity}
}

func (r *latencyRing) add(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[r.next] = d
	r.next = (r.next + 1) % r.cap
	if r.next == 0 {
		r.filled = true
	}
}

func (r *latencyRing) stats() PerformanceStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.filled {
		n = r.cap
	}
	if n == 0 {
		return PerformanceStats{}
	}
	vals := make([]time.Duration, n)
	copy(vals, r.values[:n])
	sort.Slice(vals, func(i, j int) bool { return vals[i] < vals[j] })

	var sum time.Duration
	for _, v := range vals {
		sum += v
	}

	pct := func(p float64) time.Duration {
		idx := int(p * float64(n-1))
		return vals[idx]
	}

	return PerformanceStats{
		Count:  n,
		Mean:   sum / time.Duration(n),
		Median: pct(0.5),
		P95:    pct(0.95),
		P99:    pct(0.99),
		Min:    vals[0],
		Max:    vals[n-1],
	}
}
