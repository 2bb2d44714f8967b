package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"banbench/internal/domain"
	"banbench/internal/support"
)

type Config struct {
	Replay struct {
		SpeedFactor     float64 `json:"speed_factor"`
		SleepCapSeconds float64 `json:"sleep_cap_seconds"`
		StatusInterval  int     `json:"status_interval"`
		MaxLines        int     `json:"max_lines"`
		StartYear       int     `json:"start_year"`
		FilterIP        string  `json:"filter_ip"`
	} `json:"replay"`

	Sink struct {
		Command  string `json:"command"`
		Priority string `json:"priority"`
		Tag      string `json:"tag"`
	} `json:"sink"`

	Truth struct {
		Path     string `json:"path"`
		Timezone string `json:"timezone"`
	} `json:"truth"`

	Detector struct {
		Jail          string `json:"jail"`
		ActionsLog    string `json:"actions_log"`
		DetectorLog   string `json:"detector_log"`
		ClientCommand string `json:"client_command"`
		FaketimeEpoch string `json:"faketime_epoch"`
		TailActions   bool   `json:"tail_actions"`
	} `json:"detector"`

	Output struct {
		Dir         string `json:"dir"`
		HistoryDSN  string `json:"history_dsn"`
		HistoryPath string `json:"history_path"`
	} `json:"output"`

	Heartbeat struct {
		Enabled bool `json:"enabled"`
	} `json:"heartbeat"`

	GeoIP struct {
		CountryDBPath string `json:"country_db_path"`
	} `json:"geoip"`
}

const defaultSettingsFilePath = "data/settings.json"

var (
	//go:embed default_settings.json
	defaultConfig []byte

	configValue atomic.Value
)

func init() {
	configValue.Store(Config{})
}

func settingsFilePath() string {
	return support.GetEnv("BANBENCH_SETTINGS", defaultSettingsFilePath)
}

// ReadSettings loads the settings file, creating it from the embedded default
// when absent. The raw document is schema-checked before it is applied so a
// run never starts on a half-formed configuration.
func ReadSettings() error {
	path := settingsFilePath()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("read settings file: %w", err)
		}

		log.Warn("Settings file not found, creating with default configuration", "path", path)

		if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
			return fmt.Errorf("create settings directory: %w", err)
		}
		if err := os.WriteFile(path, defaultConfig, os.ModePerm); err != nil {
			return fmt.Errorf("write default settings file: %w", err)
		}
		data = defaultConfig
	}

	if err := validateSettingsDocument(data); err != nil {
		return &domain.ConfigurationError{Reason: fmt.Sprintf("settings file %s: %v", path, err)}
	}

	var newConfig Config
	if err := json.Unmarshal(data, &newConfig); err != nil {
		return fmt.Errorf("unmarshal settings file: %w", err)
	}

	configValue.Store(newConfig)
	log.Debug("Settings file loaded successfully", "path", path)
	return nil
}

// SetConfig replaces the active configuration and persists it back to disk.
func SetConfig(newConfig Config) error {
	data, err := json.MarshalIndent(newConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal configuration: %w", err)
	}
	if err := validateSettingsDocument(data); err != nil {
		return &domain.ConfigurationError{Reason: err.Error()}
	}

	configValue.Store(newConfig)

	if err := os.WriteFile(settingsFilePath(), data, os.ModePerm); err != nil {
		return fmt.Errorf("write configuration: %w", err)
	}
	return nil
}

func GetConfig() Config {
	return configValue.Load().(Config)
}

// Validate enforces the semantic constraints that the schema alone cannot
// express. Called once before replay starts; any failure is fatal.
func Validate(cfg Config) error {
	if cfg.Replay.SpeedFactor <= 0 {
		return &domain.ConfigurationError{Reason: fmt.Sprintf("speed factor must be > 0, got %v", cfg.Replay.SpeedFactor)}
	}
	if cfg.Replay.SleepCapSeconds < 0 {
		return &domain.ConfigurationError{Reason: fmt.Sprintf("sleep cap must be >= 0, got %v", cfg.Replay.SleepCapSeconds)}
	}
	if cfg.Replay.StatusInterval <= 0 {
		return &domain.ConfigurationError{Reason: fmt.Sprintf("status interval must be > 0, got %d", cfg.Replay.StatusInterval)}
	}
	if cfg.Truth.Path == "" {
		return &domain.ConfigurationError{Reason: "ground-truth dataset path is required"}
	}
	if _, err := TruthLocation(cfg); err != nil {
		return err
	}
	return nil
}

// TruthLocation resolves the configured day-boundary timezone of the
// ground-truth dataset. The convention is unspecified upstream, so it is an
// explicit setting rather than an assumed UTC.
func TruthLocation(cfg Config) (*time.Location, error) {
	name := cfg.Truth.Timezone
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, &domain.ConfigurationError{Reason: fmt.Sprintf("invalid truth timezone %q: %v", name, err)}
	}
	return loc, nil
}

// SleepCap returns the configured cap on a single inter-record sleep.
func SleepCap(cfg Config) time.Duration {
	return time.Duration(cfg.Replay.SleepCapSeconds * float64(time.Second))
}
