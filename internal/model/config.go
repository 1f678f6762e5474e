package model

import (
	"fmt"
	"os"

	yamlv3 "gopkg.in/yaml.v3"
)

// Config is the full daemon configuration, loaded from config.yaml inside
// the pipeline root and passed by value to each component at construction.
type Config struct {
	Project     ProjectConfig     `yaml:"project"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	Vault       VaultConfig       `yaml:"vault"`
	Watcher     WatcherConfig     `yaml:"watcher"`
	Daemon      DaemonConfig      `yaml:"daemon"`
	Logging     LoggingConfig     `yaml:"logging"`
	Notify      NotifyConfig      `yaml:"notify"`
}

type ProjectConfig struct {
	Name    string `yaml:"name"`
	Created string `yaml:"created"`
}

type PipelineConfig struct {
	// SettleDelayMs guards against partially-flushed writes from the capture
	// side before a voice file is picked up. A fixed delay, not a
	// content-completeness check.
	SettleDelayMs int `yaml:"settle_delay_ms"`
	// VoiceMaxAttempts bounds transcription retries before a voice pair is
	// parked in dead_letters/.
	VoiceMaxAttempts int `yaml:"voice_max_attempts"`
}

type TranscriberConfig struct {
	EnginePath   string `yaml:"engine_path"`
	ModelPath    string `yaml:"model_path"`
	FFmpegPath   string `yaml:"ffmpeg_path"`
	TimeoutSec   int    `yaml:"timeout_sec"`
	SampleRateHz int    `yaml:"sample_rate_hz"`
}

type VaultConfig struct {
	Path              string `yaml:"path"`
	CapturesFolder    string `yaml:"captures_folder"`
	DigestEnabled     bool   `yaml:"digest_enabled"`
	DigestIntervalMin int    `yaml:"digest_interval_min"`
}

type WatcherConfig struct {
	DebounceSec     float64 `yaml:"debounce_sec"`
	ScanIntervalSec int     `yaml:"scan_interval_sec"`
}

type DaemonConfig struct {
	ShutdownTimeoutSec int `yaml:"shutdown_timeout_sec"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type NotifyConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ApplyDefaults fills optional fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Pipeline.SettleDelayMs <= 0 {
		c.Pipeline.SettleDelayMs = 1000
	}
	if c.Pipeline.VoiceMaxAttempts <= 0 {
		c.Pipeline.VoiceMaxAttempts = 3
	}
	if c.Transcriber.FFmpegPath == "" {
		c.Transcriber.FFmpegPath = "ffmpeg"
	}
	if c.Transcriber.TimeoutSec <= 0 {
		c.Transcriber.TimeoutSec = 300
	}
	if c.Transcriber.SampleRateHz <= 0 {
		c.Transcriber.SampleRateHz = 16000
	}
	if c.Vault.CapturesFolder == "" {
		c.Vault.CapturesFolder = "Captures"
	}
	if c.Vault.DigestIntervalMin <= 0 {
		c.Vault.DigestIntervalMin = 60
	}
	if c.Watcher.DebounceSec <= 0 {
		c.Watcher.DebounceSec = 0.5
	}
	if c.Watcher.ScanIntervalSec <= 0 {
		c.Watcher.ScanIntervalSec = 30
	}
	if c.Daemon.ShutdownTimeoutSec <= 0 {
		c.Daemon.ShutdownTimeoutSec = 30
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate rejects configurations no component could run with.
func (c *Config) Validate() error {
	if c.Vault.Path == "" {
		return fmt.Errorf("vault.path is required")
	}
	if c.Transcriber.EnginePath == "" {
		return fmt.Errorf("transcriber.engine_path is required")
	}
	if c.Transcriber.ModelPath == "" {
		return fmt.Errorf("transcriber.model_path is required")
	}
	return nil
}

// LoadConfig reads and validates config.yaml at path.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
