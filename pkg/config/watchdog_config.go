// Package config provides configuration loading for the watchdog
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/medwise/remedion/pkg/models"
	"github.com/medwise/remedion/pkg/notification"
)

const (
	defaultDeadlockScanSchedule   = "@every 30s"
	defaultIntegritySweepSchedule = "@every 10m"
	defaultAlertCleanupSchedule   = "@every 1h"
	defaultStaleAlertMaxAge       = 24 * time.Hour

	defaultDigestID   = "admin-hourly"
	defaultDigestCron = "0 * * * *"
)

// WatchdogConfigFile represents the structure of the watchdog.yaml file
type WatchdogConfigFile struct {
	DeadlockScanSchedule   string             `yaml:"deadlock_scan_schedule"`
	IntegritySweepSchedule string             `yaml:"integrity_sweep_schedule"`
	AlertCleanupSchedule   string             `yaml:"alert_cleanup_schedule"`
	StaleAlertMaxAge       string             `yaml:"stale_alert_max_age"`
	Digests                []DigestConfigFile `yaml:"digests"`
}

// DigestConfigFile represents a digest schedule in the YAML file
type DigestConfigFile struct {
	ID             string `yaml:"id"`
	Channel        string `yaml:"channel"`
	CronExpression string `yaml:"cron_expression"`
}

// WatchdogConfig is the resolved watchdog configuration. Schedule fields hold
// cron specs (descriptors like "@every 30s" included); StaleAlertMaxAge is the
// age past which an unacknowledged alert is dropped from the active set.
type WatchdogConfig struct {
	DeadlockScanSchedule   string
	IntegritySweepSchedule string
	AlertCleanupSchedule   string
	StaleAlertMaxAge       time.Duration
	Digests                []*models.DigestSchedule
}

// LoadWatchdogConfig loads watchdog configuration from a YAML file
func LoadWatchdogConfig(filepath string) (WatchdogConfig, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return WatchdogConfig{}, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile WatchdogConfigFile
	if err := yaml.Unmarshal(data, &configFile); err != nil {
		return WatchdogConfig{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return buildWatchdogConfig(configFile)
}

// LoadWatchdogConfigOrDefault attempts to load watchdog config from file,
// falling back to the built-in defaults if the file doesn't exist
func LoadWatchdogConfigOrDefault(filepath string) WatchdogConfig {
	config, err := LoadWatchdogConfig(filepath)
	if err != nil {
		return DefaultWatchdogConfig()
	}

	return config
}

// DefaultWatchdogConfig returns the built-in schedule set: frequent deadlock
// scans, a ten-minute integrity sweep and an hourly administrator digest.
func DefaultWatchdogConfig() WatchdogConfig {
	config, err := buildWatchdogConfig(WatchdogConfigFile{})
	if err != nil {
		// The defaults are constants; building them cannot fail.
		panic(fmt.Sprintf("building default watchdog config: %v", err))
	}

	return config
}

func buildWatchdogConfig(configFile WatchdogConfigFile) (WatchdogConfig, error) {
	config := WatchdogConfig{
		DeadlockScanSchedule:   configFile.DeadlockScanSchedule,
		IntegritySweepSchedule: configFile.IntegritySweepSchedule,
		AlertCleanupSchedule:   configFile.AlertCleanupSchedule,
		StaleAlertMaxAge:       defaultStaleAlertMaxAge,
	}

	if config.DeadlockScanSchedule == "" {
		config.DeadlockScanSchedule = defaultDeadlockScanSchedule
	}

	if config.IntegritySweepSchedule == "" {
		config.IntegritySweepSchedule = defaultIntegritySweepSchedule
	}

	if config.AlertCleanupSchedule == "" {
		config.AlertCleanupSchedule = defaultAlertCleanupSchedule
	}

	if configFile.StaleAlertMaxAge != "" {
		maxAge, err := time.ParseDuration(configFile.StaleAlertMaxAge)
		if err != nil {
			return WatchdogConfig{}, fmt.Errorf("invalid stale_alert_max_age %q: %w", configFile.StaleAlertMaxAge, err)
		}

		config.StaleAlertMaxAge = maxAge
	}

	// Every deployment needs at least the administrator digest: without a
	// flush schedule, buffered notices would never reach anyone.
	if len(configFile.Digests) == 0 {
		configFile.Digests = []DigestConfigFile{{
			ID:             defaultDigestID,
			Channel:        notification.AdminChannel,
			CronExpression: defaultDigestCron,
		}}
	}

	config.Digests = make([]*models.DigestSchedule, len(configFile.Digests))

	for i, digest := range configFile.Digests {
		schedule, err := models.NewDigestSchedule(digest.ID, digest.Channel, digest.CronExpression)
		if err != nil {
			return WatchdogConfig{}, fmt.Errorf("digest[%d] %q: %w", i, digest.ID, err)
		}

		config.Digests[i] = schedule
	}

	return config, nil
}

// ValidateWatchdogConfig validates the watchdog configuration
func ValidateWatchdogConfig(config WatchdogConfig) error {
	schedules := map[string]string{
		"deadlock_scan_schedule":   config.DeadlockScanSchedule,
		"integrity_sweep_schedule": config.IntegritySweepSchedule,
		"alert_cleanup_schedule":   config.AlertCleanupSchedule,
	}

	for name, spec := range schedules {
		if spec == "" {
			return fmt.Errorf("%s is required", name)
		}

		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("%s %q: %w", name, spec, err)
		}
	}

	if config.StaleAlertMaxAge <= 0 {
		return fmt.Errorf("stale_alert_max_age must be positive, got %s", config.StaleAlertMaxAge)
	}

	if len(config.Digests) == 0 {
		return fmt.Errorf("at least one digest schedule must be configured")
	}

	for i, digest := range config.Digests {
		if err := digest.Validate(); err != nil {
			return fmt.Errorf("digest[%d] %q: %w", i, digest.ID, err)
		}
	}

	return nil
}
