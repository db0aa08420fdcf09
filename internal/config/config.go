package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds the base server configuration.
type Config struct {
	Host                     string
	Port                     string
	SQLiteDBPath             string
	NodeEnv                  string
	AllowTestMode            bool
	JWTSecret                string
	JWTAccessTokenExpirySec  int
	JWTRefreshTokenExpirySec int

	// Dune-HD polling and reconnect timing.
	DuneHDTimeoutMs int
	PollIntervalMs  int
	BackoffUnitMs   int
	BackoffMaxMs    int
	MinRetryDelayMs int

	// Discovery settings
	SSDPDiscoveryTimeoutMs int
	SSDPDiscoveryPasses    int
	SSDPPassIntervalMs     int
	StaticDeviceAddresses  []string
	// DiscoverySchedule is a cron spec for periodic rescans. Empty disables them.
	DiscoverySchedule string

	// Audit log retention
	AuditRetentionDays int
	AuditPruneSchedule string

	// MQTT state publishing (disabled when MQTTBrokerURL is empty)
	MQTTBrokerURL   string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string
	MQTTQoS         int

	WSPingIntervalSec int
}

// Load reads configuration from environment variables with defaults.
func Load() (Config, error) {
	cfg := Config{
		Host:                     envString("HOST", "0.0.0.0"),
		Port:                     envString("PORT", "9000"),
		SQLiteDBPath:             envString("SQLITE_DB_PATH", "./data/dunehd-hub.db"),
		NodeEnv:                  envString("NODE_ENV", "development"),
		AllowTestMode:            envBool("ALLOW_TEST_MODE", false),
		JWTSecret:                envString("JWT_SECRET", ""),
		JWTAccessTokenExpirySec:  envInt("JWT_ACCESS_TOKEN_EXPIRY", 3600),
		JWTRefreshTokenExpirySec: envInt("JWT_REFRESH_TOKEN_EXPIRY", 2592000),
		DuneHDTimeoutMs:          envInt("DUNEHD_TIMEOUT_MS", 5000),
		PollIntervalMs:           envInt("POLL_INTERVAL_MS", 1000),
		BackoffUnitMs:            envInt("BACKOFF_UNIT_MS", 2000),
		BackoffMaxMs:             envInt("BACKOFF_MAX_MS", 30000),
		MinRetryDelayMs:          envInt("MIN_RETRY_DELAY_MS", 100),
		SSDPDiscoveryTimeoutMs:   envInt("SSDP_DISCOVERY_TIMEOUT_MS", 3000),
		SSDPDiscoveryPasses:      envInt("SSDP_DISCOVERY_PASSES", 2),
		SSDPPassIntervalMs:       envInt("SSDP_PASS_INTERVAL_MS", 1000),
		StaticDeviceAddresses:    envCSV("STATIC_DEVICE_ADDRESSES"),
		DiscoverySchedule:        envString("DISCOVERY_SCHEDULE", ""),
		AuditRetentionDays:       envInt("AUDIT_RETENTION_DAYS", 30),
		AuditPruneSchedule:       envString("AUDIT_PRUNE_SCHEDULE", "0 4 * * *"),
		MQTTBrokerURL:            envString("MQTT_BROKER_URL", ""),
		MQTTClientID:             envString("MQTT_CLIENT_ID", "dunehd-hub"),
		MQTTUsername:             envString("MQTT_USERNAME", ""),
		MQTTPassword:             envString("MQTT_PASSWORD", ""),
		MQTTTopicPrefix:          envString("MQTT_TOPIC_PREFIX", "dunehd"),
		MQTTQoS:                  envInt("MQTT_QOS", 1),
		WSPingIntervalSec:        envInt("WS_PING_INTERVAL_SEC", 30),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c Config) Validate() error {
	if len(strings.TrimSpace(c.JWTSecret)) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.PollIntervalMs <= 0 {
		return fmt.Errorf("POLL_INTERVAL_MS must be positive")
	}
	if c.BackoffUnitMs <= 0 || c.BackoffMaxMs < c.BackoffUnitMs {
		return fmt.Errorf("BACKOFF_UNIT_MS must be positive and not exceed BACKOFF_MAX_MS")
	}
	if c.MinRetryDelayMs <= 0 {
		return fmt.Errorf("MIN_RETRY_DELAY_MS must be positive")
	}
	if c.MQTTQoS < 0 || c.MQTTQoS > 2 {
		return fmt.Errorf("MQTT_QOS must be 0, 1 or 2")
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for key, spec := range map[string]string{
		"DISCOVERY_SCHEDULE":   c.DiscoverySchedule,
		"AUDIT_PRUNE_SCHEDULE": c.AuditPruneSchedule,
	} {
		if spec == "" {
			continue
		}
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("%s: invalid cron spec %q: %w", key, spec, err)
		}
	}
	return nil
}

// DuneHDTimeout returns the per-request timeout for device calls.
func (c Config) DuneHDTimeout() time.Duration {
	return time.Duration(c.DuneHDTimeoutMs) * time.Millisecond
}

func envString(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return strings.EqualFold(val, "true")
}

func envCSV(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return []string{}
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	return result
}
