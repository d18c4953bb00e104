package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shieldterminal/edgecore/internal/aligner"
	"github.com/shieldterminal/edgecore/internal/api"
	"github.com/shieldterminal/edgecore/internal/features"
	"github.com/shieldterminal/edgecore/internal/health"
	_ "github.com/shieldterminal/edgecore/internal/infra/metrics" // register Prometheus metrics
	"github.com/shieldterminal/edgecore/internal/infra/registry"
	"github.com/shieldterminal/edgecore/internal/infra/sqlite"
	"github.com/shieldterminal/edgecore/internal/monitor"
	"github.com/shieldterminal/edgecore/internal/prediction"
	"github.com/shieldterminal/edgecore/internal/sync"
)

// Daemon is the edge agent runtime. It wires together every component from
// a single Config value, once, at startup.
type Daemon struct {
	Config Config
	DB     *sqlite.DB

	Aligner   *aligner.Aligner
	Features  *features.Engineer
	Registry  *registry.Manager
	Loader    *registry.Loader
	Inference *registry.InferenceService
	Monitor   *monitor.Monitor
	Predictor *prediction.Manager

	Buffer        *sync.Buffer
	RingUploader  *sync.Uploader
	PredUploader  *sync.Uploader
	WarnUploader  *sync.Uploader
	NetworkMon    *sync.NetworkMonitor
	DiskMon       *sync.DiskMonitor
	Purger        *sync.Purger
	SyncManager   *sync.Manager

	HealthChecker *health.Checker
	Server        *api.Server

	logger *slog.Logger
	cancel context.CancelFunc
}

// New creates and initializes a Daemon with all services wired, loading
// configuration from the default location.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	logger := newLogger(cfg.Logging)

	db, err := sqlite.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	alignerCfg := aligner.DefaultConfig()
	al := aligner.New(db, alignerCfg)

	featCfg := features.DefaultConfig()
	featCfg.WindowSize = cfg.Features.HistoryWindow
	if soil := features.SoilType(cfg.Features.FallbackSoilType); soil != "" {
		featCfg.FallbackSoilType = soil
	}
	eng := features.New(featCfg, "1.0.0")

	reg := registry.NewManager(db, cfg.Models.Dir)
	loader := registry.NewLoader(registry.DefaultLoaderConfig(), logger)
	inference := registry.NewInferenceService(db, reg, loader, eng, nil, logger)

	monCfg := monitor.DefaultConfig()
	monCfg.MinSamples = cfg.Monitor.MinSamples
	monCfg.DriftThreshold = cfg.Monitor.DriftThreshold
	monCfg.EvaluationWindow = cfg.Monitor.EvaluationWindow
	perf := monitor.New(db, monCfg)

	predCfg := prediction.DefaultConfig()
	predCfg.MonitoringInterval = cfg.Monitor.MonitoringInterval
	predictor := prediction.New(predCfg, reg, loader, inference, perf, logger)

	buf := sync.NewBuffer(db, sync.BufferConfig{MaxSize: cfg.Sync.Buffer.MaxSize})
	ringUploader := sync.NewUploader(
		"ring", sync.RingUploaderConfig(), buf, cfg.Sync.Endpoint, cfg.Sync.APIKey,
		cfg.Sync.EdgeDeviceID, cfg.Sync.ProjectID, logger)
	predUploader := sync.NewUploader(
		"prediction", sync.PredictionUploaderConfig(), buf, cfg.Sync.Endpoint, cfg.Sync.APIKey,
		cfg.Sync.EdgeDeviceID, cfg.Sync.ProjectID, logger)
	warnUploader := sync.NewUploader(
		"warning", sync.WarningUploaderConfig(), buf, cfg.Sync.Endpoint, cfg.Sync.APIKey,
		cfg.Sync.EdgeDeviceID, cfg.Sync.ProjectID, logger)

	networkCfg := sync.DefaultNetworkMonitorConfig(cfg.Sync.Network.HealthURL)
	if d := parseDuration(cfg.Sync.Network.CheckInterval, 0); d > 0 {
		networkCfg.CheckInterval = d
	}
	networkMon := sync.NewNetworkMonitor(networkCfg)

	diskCfg := sync.DefaultDiskMonitorConfig(cfg.Sync.Disk.Paths)
	if cfg.Sync.Disk.WarningThresholdGB > 0 {
		diskCfg.WarningThreshold = cfg.Sync.Disk.WarningThresholdGB
	}
	if cfg.Sync.Disk.CriticalThresholdGB > 0 {
		diskCfg.CriticalThreshold = cfg.Sync.Disk.CriticalThresholdGB
	}
	diskMon := sync.NewDiskMonitor(diskCfg)

	purgerCfg := sync.DefaultPurgerConfig(cfg.Storage.RawDir)
	if cfg.Sync.Purge.RetentionDays > 0 {
		purgerCfg.RetentionDays = cfg.Sync.Purge.RetentionDays
	}
	if cfg.Sync.Purge.MaxAgeDays > 0 {
		purgerCfg.MaxAgeDays = cfg.Sync.Purge.MaxAgeDays
	}
	purger := sync.NewPurger(db, purgerCfg)

	syncMgrCfg := sync.DefaultManagerConfig()
	if d := parseDuration(cfg.Sync.SyncInterval, 0); d > 0 {
		syncMgrCfg.SyncInterval = d
	}
	if d := parseDuration(cfg.Sync.PurgeInterval, 0); d > 0 {
		syncMgrCfg.PurgeInterval = d
	}
	syncMgr := sync.NewManager(syncMgrCfg, db, buf, ringUploader, predUploader, warnUploader, networkMon, diskMon, purger, logger)

	checker := health.NewChecker(db, reg, health.Config{
		ModelsDir: cfg.Models.Dir,
		RawDir:    cfg.Storage.RawDir,
		HealthURL: cfg.Sync.Network.HealthURL,
	})

	srv := api.NewServer(predictor, checker, syncMgr)

	return &Daemon{
		Config:        cfg,
		DB:            db,
		Aligner:       al,
		Features:      eng,
		Registry:      reg,
		Loader:        loader,
		Inference:     inference,
		Monitor:       perf,
		Predictor:     predictor,
		Buffer:        buf,
		RingUploader:  ringUploader,
		PredUploader:  predUploader,
		WarnUploader:  warnUploader,
		NetworkMon:    networkMon,
		DiskMon:       diskMon,
		Purger:        purger,
		SyncManager:   syncMgr,
		HealthChecker: checker,
		Server:        srv,
		logger:        logger,
	}, nil
}

// Serve starts the HTTP server and every background loop, blocking until
// shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.Predictor.Initialize(); err != nil {
		d.logger.Warn("prediction manager initialization had errors", "error", err)
	}

	go d.HealthChecker.Run(ctx)
	d.SyncManager.Run(ctx)

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		_ = httpServer.Shutdown(shutdownCtx)
		_ = d.DB.Close()
	}()

	d.logger.Info("edgecore serving", "addr", addr)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}

func newLogger(cfg LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			handler = slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})
		}
	}
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
