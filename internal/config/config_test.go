package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a Config that passes Validate() after ApplyDefaults.
func validConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Database.User = "resolver"
	return cfg
}

func TestApplyDefaultsFillsZeroValues(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultDBName, cfg.Database.DBName)
	assert.Equal(t, DefaultRedisAddr, cfg.Redis.Addr)
	assert.Equal(t, []string{DefaultKafkaBroker}, cfg.Kafka.Brokers)
	assert.Equal(t, DefaultDecisionTopic, cfg.Kafka.DecisionTopic)

	assert.InDelta(t, 0.93, cfg.Resolver.AutoAcceptThreshold, 1e-9)
	assert.InDelta(t, 0.75, cfg.Resolver.ReviewThreshold, 1e-9)
	assert.InDelta(t, 0.05, cfg.Resolver.MarginThreshold, 1e-9)
	assert.InDelta(t, 0.84, cfg.Resolver.DisagreementCap, 1e-9)
	assert.InDelta(t, 0.02, cfg.Resolver.VendorBoost, 1e-9)
	assert.Equal(t, 180*24*time.Hour, cfg.Resolver.PriorDecayWindow)
	assert.InDelta(t, 0.90, cfg.Resolver.PriorDecayFloor, 1e-9)
	assert.Equal(t, 2, cfg.Resolver.MaxCollisionCount)
	assert.Equal(t, 7*24*time.Hour, cfg.Resolver.UnstableCooldown)

	assert.Equal(t, 3, cfg.Ingestion.MinConfirmations)
	assert.InDelta(t, 0.06, cfg.Ingestion.DualGateMargin, 1e-9)
	assert.Equal(t, 20, cfg.Ingestion.MaxGlobalSynonymsPerDay)
	assert.InDelta(t, 0.85, cfg.Ingestion.ClusterThreshold, 1e-9)

	assert.InDelta(t, 0.99, cfg.Calibration.TargetPrecision, 1e-9)
	assert.InDelta(t, 0.90, cfg.Calibration.AutoAcceptFloor, 1e-9)
	assert.InDelta(t, 0.02, cfg.Calibration.MarginFloor, 1e-9)
}

func TestApplyDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = 9000
	cfg.Resolver.AutoAcceptThreshold = 0.95
	ApplyDefaults(cfg)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.InDelta(t, 0.95, cfg.Resolver.AutoAcceptThreshold, 1e-9)
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateRejectsBadThresholdOrdering(t *testing.T) {
	cfg := validConfig()
	cfg.Resolver.AutoAcceptThreshold = 0.70 // below review threshold
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auto_accept_threshold")
}

func TestValidateRejectsDisagreementCapOutsideBands(t *testing.T) {
	cfg := validConfig()
	cfg.Resolver.DisagreementCap = 0.95 // above auto-accept
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Resolver.DisagreementCap = 0.60 // below review
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsMissingDatabaseUser(t *testing.T) {
	cfg := validConfig()
	cfg.Database.User = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.user")
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 8181
  mode: release
database:
  user: resolver
  password: secret
resolver:
  auto_accept_threshold: 0.94
ingestion:
  max_global_synonyms_per_day: 10
log:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, "release", cfg.Server.Mode)
	assert.InDelta(t, 0.94, cfg.Resolver.AutoAcceptThreshold, 1e-9)
	assert.Equal(t, 10, cfg.Ingestion.MaxGlobalSynonymsPerDay)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Unset fields fall back to defaults.
	assert.InDelta(t, 0.75, cfg.Resolver.ReviewThreshold, 1e-9)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestMustLoadPanicsOnError(t *testing.T) {
	assert.Panics(t, func() { MustLoad("/nonexistent/config.yaml") })
}
