package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures environment driven configuration values for the agenda bot.
type Config struct {
	HTTPPort      int
	SQLiteDSN     string
	SweepInterval time.Duration
	DefaultsFile  string
	Defaults      Defaults

	// MessageSinkURL receives warning messages as JSON posts. When empty,
	// messages are logged instead of delivered.
	MessageSinkURL string
	// SessionProbeURL is queried per room for call liveness. When empty,
	// every room is treated as live.
	SessionProbeURL string
}

// Defaults holds the operator supplied global fallback values for rooms
// without overrides. Zero values defer to the builtin defaults.
type Defaults struct {
	TimeMonitoringEnabled *bool    `yaml:"time_monitoring_enabled"`
	WarningThreshold      *float64 `yaml:"warning_threshold"`
	OvertimeThreshold     *float64 `yaml:"overtime_threshold"`
	ResponseMode          string   `yaml:"response_mode"`
	MaxItems              *int     `yaml:"max_items"`
	MaxPlannedMinutes     *int     `yaml:"max_planned_minutes"`
	AutoAdvance           *bool    `yaml:"auto_advance"`
	AutoCleanupOnEnd      *bool    `yaml:"auto_cleanup_on_end"`
	SymbolCurrent         string   `yaml:"symbol_current"`
	SymbolCompleted       string   `yaml:"symbol_completed"`
	SymbolPending         string   `yaml:"symbol_pending"`
	Language              string   `yaml:"language"`
}

// Load parses configuration values from the current process environment.
//
// The loader applies sensible defaults for optional fields while validating
// the values that are present. When AGENDABOT_DEFAULTS_FILE points at a YAML
// file its contents seed the global room defaults.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:      8080,
		SQLiteDSN:     "file:agendabot.db?_foreign_keys=on",
		SweepInterval: 5 * time.Minute,
	}

	invalid := make([]string, 0, 2)

	if portValue := strings.TrimSpace(os.Getenv("AGENDABOT_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 {
			invalid = append(invalid, "AGENDABOT_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("AGENDABOT_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if intervalValue := strings.TrimSpace(os.Getenv("AGENDABOT_SWEEP_INTERVAL")); intervalValue != "" {
		interval, err := time.ParseDuration(intervalValue)
		if err != nil || interval <= 0 {
			invalid = append(invalid, "AGENDABOT_SWEEP_INTERVAL")
		} else {
			cfg.SweepInterval = interval
		}
	}

	cfg.DefaultsFile = strings.TrimSpace(os.Getenv("AGENDABOT_DEFAULTS_FILE"))
	cfg.MessageSinkURL = strings.TrimSpace(os.Getenv("AGENDABOT_MESSAGE_SINK_URL"))
	cfg.SessionProbeURL = strings.TrimSpace(os.Getenv("AGENDABOT_SESSION_PROBE_URL"))

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variable values: %s", strings.Join(invalid, ", "))
	}

	if cfg.DefaultsFile != "" {
		defaults, err := loadDefaultsFile(cfg.DefaultsFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Defaults = defaults
	}

	return cfg, nil
}

func loadDefaultsFile(path string) (Defaults, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Defaults{}, fmt.Errorf("failed to read defaults file %s: %w", path, err)
	}

	var defaults Defaults
	if err := yaml.Unmarshal(raw, &defaults); err != nil {
		return Defaults{}, fmt.Errorf("failed to parse defaults file %s: %w", path, err)
	}

	if defaults.ResponseMode != "" && defaults.ResponseMode != "normal" && defaults.ResponseMode != "silent" {
		return Defaults{}, fmt.Errorf("defaults file %s: response_mode must be normal or silent", path)
	}
	if defaults.WarningThreshold != nil && (*defaults.WarningThreshold <= 0 || *defaults.WarningThreshold >= 1) {
		return Defaults{}, fmt.Errorf("defaults file %s: warning_threshold must be between 0 and 1", path)
	}
	if defaults.OvertimeThreshold != nil && *defaults.OvertimeThreshold <= 1 {
		return Defaults{}, fmt.Errorf("defaults file %s: overtime_threshold must be greater than 1", path)
	}
	return defaults, nil
}
