// Package config loads environment configuration and the optional YAML
// overlay tuning file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aristath/helmsman/internal/modules/macro"
)

// Config is the process configuration, sourced from the environment.
type Config struct {
	DatabasePath string
	LogLevel     string
	LogPretty    bool

	AlpacaBaseURL     string
	AlpacaDataBaseURL string

	PipelineCron string
	MonitorCron  string

	OverlayConfigPath string
	Overlay           macro.Config
}

// Load reads .env when present, then the environment, then the overlay
// tuning file named by OVERLAY_CONFIG (missing file means defaults).
func Load() (*Config, error) {
	// A missing .env is fine; the environment may be set by the host.
	_ = godotenv.Load()

	cfg := &Config{
		DatabasePath:      getEnv("DATABASE_PATH", "helmsman.db"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogPretty:         getEnvBool("LOG_PRETTY", false),
		AlpacaBaseURL:     getEnv("ALPACA_BASE_URL", "https://paper-api.alpaca.markets"),
		AlpacaDataBaseURL: getEnv("ALPACA_DATA_BASE_URL", "https://data.alpaca.markets"),
		PipelineCron:      getEnv("PIPELINE_CRON", "30 21 * * 1-5"),
		MonitorCron:       getEnv("MONITOR_CRON", "*/15 14-21 * * 1-5"),
		OverlayConfigPath: getEnv("OVERLAY_CONFIG", ""),
	}

	overlay, err := loadOverlayConfig(cfg.OverlayConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.Overlay = overlay

	return cfg, nil
}

// overlayFile is the YAML shape of the overlay tuning file.
type overlayFile struct {
	MacroOverlay struct {
		Enabled    *bool   `yaml:"enabled"`
		MinSignals int     `yaml:"min_signals"`
		MinScale   float64 `yaml:"min_scale"`
		MaxScale   float64 `yaml:"max_scale"`
	} `yaml:"macro_overlay"`
}

func loadOverlayConfig(path string) (macro.Config, error) {
	cfg := macro.DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read overlay config %s: %w", path, err)
	}

	var file overlayFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("failed to parse overlay config %s: %w", path, err)
	}

	if file.MacroOverlay.Enabled != nil {
		cfg.Enabled = *file.MacroOverlay.Enabled
	}
	if file.MacroOverlay.MinSignals > 0 {
		cfg.MinSignals = file.MacroOverlay.MinSignals
	}
	if file.MacroOverlay.MinScale > 0 {
		cfg.MinScale = file.MacroOverlay.MinScale
	}
	if file.MacroOverlay.MaxScale > 0 {
		cfg.MaxScale = file.MacroOverlay.MaxScale
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
