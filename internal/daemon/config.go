// Package daemon manages the edge agent daemon lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds all daemon configuration.
type Config struct {
	Storage   StorageConfig   `toml:"storage"`
	Alignment AlignmentConfig `toml:"alignment"`
	Features  FeaturesConfig  `toml:"features"`
	Models    ModelsConfig    `toml:"models"`
	Inference InferenceConfig `toml:"inference"`
	Monitor   MonitorConfig   `toml:"monitor"`
	Sync      SyncConfig      `toml:"sync"`
	Logging   LoggingConfig   `toml:"logging"`
	API       APIConfig       `toml:"api"`
}

// StorageConfig controls where SQLite and raw sensor streams live.
type StorageConfig struct {
	DataDir string `toml:"data_dir"`
	RawDir  string `toml:"raw_dir"`
}

// AlignmentConfig controls ring alignment windowing.
type AlignmentConfig struct {
	MinSamplesPerRing int     `toml:"min_samples_per_ring"`
	MaxGapSeconds     float64 `toml:"max_gap_seconds"`
}

// FeaturesConfig controls feature engineering window sizes and fallbacks.
type FeaturesConfig struct {
	HistoryWindow       int     `toml:"history_window"`
	FallbackSoilType    string  `toml:"fallback_soil_type"`
	MissingPolicyZeroed bool    `toml:"missing_policy_zeroed"`
	MinCompleteness     float64 `toml:"min_completeness"`
}

// ModelsConfig controls model storage and deployment.
type ModelsConfig struct {
	Dir                 string `toml:"dir"`
	DefaultOutputFormat string `toml:"default_output_format"`
}

// InferenceConfig controls the inference service.
type InferenceConfig struct {
	HistoryWindow int `toml:"history_window"`
}

// MonitorConfig controls performance monitoring and drift detection.
type MonitorConfig struct {
	MinSamples       int     `toml:"min_samples"`
	DriftThreshold   float64 `toml:"drift_threshold"`
	EvaluationWindow int     `toml:"evaluation_window"`
	MonitoringInterval int   `toml:"monitoring_interval"`
}

// SyncConfig controls the sync core: buffer, uploaders, and monitors.
type SyncConfig struct {
	Endpoint      string            `toml:"endpoint"`
	APIKey        string            `toml:"api_key"`
	EdgeDeviceID  string            `toml:"edge_device_id"`
	ProjectID     string            `toml:"project_id"`
	SyncInterval  string            `toml:"sync_interval"`
	PurgeInterval string            `toml:"purge_interval"`
	Buffer        BufferConfig      `toml:"buffer"`
	Network       SyncNetworkConfig `toml:"network"`
	Disk          SyncDiskConfig    `toml:"disk"`
	Purge         PurgeConfig       `toml:"purge"`
}

// BufferConfig controls the durable sync buffer's capacity.
type BufferConfig struct {
	MaxSize int `toml:"max_size"`
}

// SyncNetworkConfig controls the network reachability monitor.
type SyncNetworkConfig struct {
	HealthURL     string `toml:"health_url"`
	CheckInterval string `toml:"check_interval"`
}

// SyncDiskConfig controls the free-space monitor.
type SyncDiskConfig struct {
	Paths             []string `toml:"paths"`
	WarningThresholdGB float64 `toml:"warning_threshold_gb"`
	CriticalThresholdGB float64 `toml:"critical_threshold_gb"`
}

// PurgeConfig controls raw-file retention.
type PurgeConfig struct {
	RetentionDays int `toml:"retention_days"`
	MaxAgeDays    int `toml:"max_age_days"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level     string `toml:"level"`
	File      string `toml:"file"`
	MaxSizeMB int    `toml:"max_size_mb"`
	MaxFiles  int    `toml:"max_files"`
}

// APIConfig controls the admin HTTP API server.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := edgecoreHome()
	return Config{
		Storage: StorageConfig{
			DataDir: homeDir,
			RawDir:  filepath.Join(homeDir, "raw"),
		},
		Alignment: AlignmentConfig{
			MinSamplesPerRing: 30,
			MaxGapSeconds:     5.0,
		},
		Features: FeaturesConfig{
			HistoryWindow:       10,
			FallbackSoilType:    "mixed",
			MissingPolicyZeroed: true,
			MinCompleteness:     0.5,
		},
		Models: ModelsConfig{
			Dir:                 filepath.Join(homeDir, "models"),
			DefaultOutputFormat: "v2_confidence",
		},
		Inference: InferenceConfig{
			HistoryWindow: 10,
		},
		Monitor: MonitorConfig{
			MinSamples:         20,
			DriftThreshold:     0.20,
			EvaluationWindow:   50,
			MonitoringInterval: 50,
		},
		Sync: SyncConfig{
			SyncInterval:  "60s",
			PurgeInterval: "3600s",
			Buffer:        BufferConfig{MaxSize: 10000},
			Network: SyncNetworkConfig{
				CheckInterval: "30s",
			},
			Disk: SyncDiskConfig{
				Paths:               []string{filepath.Join(homeDir, "raw")},
				WarningThresholdGB:  5.0,
				CriticalThresholdGB: 2.0,
			},
			Purge: PurgeConfig{
				RetentionDays: 30,
				MaxAgeDays:    90,
			},
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      filepath.Join(homeDir, "edgecore.log"),
			MaxSizeMB: 50,
			MaxFiles:  5,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
		},
	}
}

// LoadConfig reads config from ~/.edgecore/config.toml, falling back to defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(edgecoreHome(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // No config file yet — use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config to ~/.edgecore/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(edgecoreHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// edgecoreHome returns the edge agent's data directory.
func edgecoreHome() string {
	if env := os.Getenv("EDGECORE_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".edgecore")
}

// EdgecoreHome is exported for use by other packages.
func EdgecoreHome() string {
	return edgecoreHome()
}
