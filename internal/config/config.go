// Package config defines all configuration structures for the analyte
// resolver.  No I/O or parsing logic lives here — only plain data types and
// validation.
package config

import (
	"fmt"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationPath   string        `mapstructure:"migration_path"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds Apache Kafka producer parameters for decision events.
type KafkaConfig struct {
	Brokers         []string `mapstructure:"brokers"`
	GroupID         string   `mapstructure:"group_id"`
	DecisionTopic   string   `mapstructure:"decision_topic"`
	AutoOffsetReset string   `mapstructure:"auto_offset_reset"` // "earliest" | "latest"
	ProducerRetries int      `mapstructure:"producer_retries"`
	BatchSize       int      `mapstructure:"batch_size"`
}

// OpenSearchConfig holds OpenSearch cluster connection parameters used by the
// review-queue decision search.
type OpenSearchConfig struct {
	Addresses          []string `mapstructure:"addresses"`
	User               string   `mapstructure:"user"`
	Password           string   `mapstructure:"password"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify"`
	BulkBatchSize      int      `mapstructure:"bulk_batch_size"`
	IndexPrefix        string   `mapstructure:"index_prefix"`
}

// MilvusConfig holds Milvus vector-store connection parameters.  Milvus is
// optional: when Addr is empty the resolver falls back to the in-process
// brute-force cosine search over the corpus snapshot.
type MilvusConfig struct {
	Addr               string `mapstructure:"addr"`
	DBName             string `mapstructure:"db_name"`
	EmbeddingDim       int    `mapstructure:"embedding_dim"`
	IndexType          string `mapstructure:"index_type"`
	HNSWM              int    `mapstructure:"hnsw_m"`
	HNSWEfConstruction int    `mapstructure:"hnsw_ef_construction"`
	DefaultTopK        int    `mapstructure:"default_top_k"`
	CollectionPrefix   string `mapstructure:"collection_prefix"`
}

// MinIOConfig holds MinIO / S3-compatible object-storage parameters for
// corpus snapshot artifacts.
type MinIOConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	AccessKey     string        `mapstructure:"access_key"`
	SecretKey     string        `mapstructure:"secret_key"`
	Bucket        string        `mapstructure:"bucket"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
}

// EmbeddingConfig holds parameters for the name-embedding provider.
type EmbeddingConfig struct {
	Provider  string        `mapstructure:"provider"` // "openai" | "none"
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	Dimension int           `mapstructure:"dimension"`
	Timeout   time.Duration `mapstructure:"timeout"`
	BatchSize int           `mapstructure:"batch_size"`
}

// ResolverConfig holds the matching thresholds and prior parameters.
// The zero value is invalid; ApplyDefaults installs the calibrated values.
type ResolverConfig struct {
	AutoAcceptThreshold float64 `mapstructure:"auto_accept_threshold"`
	ReviewThreshold     float64 `mapstructure:"review_threshold"`
	MarginThreshold     float64 `mapstructure:"margin_threshold"`
	DisagreementCap     float64 `mapstructure:"disagreement_cap"`
	RejectFloor         float64 `mapstructure:"reject_floor"`
	FuzzyCandidateTopK  int     `mapstructure:"fuzzy_candidate_top_k"`
	SemanticTopK        int     `mapstructure:"semantic_top_k"`

	VendorBoost        float64       `mapstructure:"vendor_boost"`
	PriorDecayWindow   time.Duration `mapstructure:"prior_decay_window"`
	PriorDecayLambda   float64       `mapstructure:"prior_decay_lambda"`
	PriorDecayFloor    float64       `mapstructure:"prior_decay_floor"`
	UnstableCooldown   time.Duration `mapstructure:"unstable_cooldown"`
	MaxCollisionCount  int           `mapstructure:"max_collision_count"`
	VendorOverrideMinN int           `mapstructure:"vendor_override_min_n"`
}

// IngestionConfig holds synonym-promotion parameters.
type IngestionConfig struct {
	MinConfirmations        int     `mapstructure:"min_confirmations"`
	DualGateMargin          float64 `mapstructure:"dual_gate_margin"`
	MaxGlobalSynonymsPerDay int     `mapstructure:"max_global_synonyms_per_day"`
	ClusterThreshold        float64 `mapstructure:"cluster_threshold"`
}

// CalibrationConfig holds threshold-calibration parameters.
type CalibrationConfig struct {
	TargetPrecision    float64       `mapstructure:"target_precision"`
	MinSampleSize      int           `mapstructure:"min_sample_size"`
	AutoAcceptFloor    float64       `mapstructure:"auto_accept_floor"`
	MarginFloor        float64       `mapstructure:"margin_floor"`
	Interval           time.Duration `mapstructure:"interval"`
	LookbackWindow     time.Duration `mapstructure:"lookback_window"`
}

// WorkerConfig holds background-worker execution parameters.
type WorkerConfig struct {
	Concurrency       int           `mapstructure:"concurrency"`
	RebuildInterval   time.Duration `mapstructure:"rebuild_interval"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level            string `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format           string `mapstructure:"format"` // "json" | "console"
	Output           string `mapstructure:"output"`
	EnableCaller     bool   `mapstructure:"enable_caller"`
	EnableStacktrace bool   `mapstructure:"enable_stacktrace"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure for the resolver.  Every
// infrastructure component and application service reads its settings from
// the relevant sub-struct.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	OpenSearch  OpenSearchConfig  `mapstructure:"opensearch"`
	Milvus      MilvusConfig      `mapstructure:"milvus"`
	MinIO       MinIOConfig       `mapstructure:"minio"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding"`
	Resolver    ResolverConfig    `mapstructure:"resolver"`
	Ingestion   IngestionConfig   `mapstructure:"ingestion"`
	Calibration CalibrationConfig `mapstructure:"calibration"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	Log         LogConfig         `mapstructure:"log"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered; callers should treat any error as
// fatal and refuse to start the application.
func (c *Config) Validate() error {
	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	// Database
	if c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("config: database.user is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("config: database.db_name is required")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("config: database.max_conns must be ≥ 1, got %d", c.Database.MaxConns)
	}

	// Redis
	if c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be ≥ 0, got %d", c.Redis.DB)
	}

	// Kafka
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
	}
	if c.Kafka.DecisionTopic == "" {
		return fmt.Errorf("config: kafka.decision_topic is required")
	}

	// Resolver thresholds.  The auto-accept gate must sit strictly above the
	// review gate, and the review gate above the reject floor, or the band
	// classification degenerates.
	r := c.Resolver
	if r.AutoAcceptThreshold <= r.ReviewThreshold {
		return fmt.Errorf("config: resolver.auto_accept_threshold %.3f must exceed review_threshold %.3f",
			r.AutoAcceptThreshold, r.ReviewThreshold)
	}
	if r.ReviewThreshold <= r.RejectFloor {
		return fmt.Errorf("config: resolver.review_threshold %.3f must exceed reject_floor %.3f",
			r.ReviewThreshold, r.RejectFloor)
	}
	if r.MarginThreshold < 0 || r.MarginThreshold > 1 {
		return fmt.Errorf("config: resolver.margin_threshold %.3f is out of range [0, 1]", r.MarginThreshold)
	}
	if r.DisagreementCap <= r.ReviewThreshold || r.DisagreementCap >= r.AutoAcceptThreshold {
		return fmt.Errorf("config: resolver.disagreement_cap %.3f must lie between review_threshold and auto_accept_threshold",
			r.DisagreementCap)
	}
	if r.VendorBoost < 0 || r.VendorBoost > 0.1 {
		return fmt.Errorf("config: resolver.vendor_boost %.3f is out of range [0, 0.1]", r.VendorBoost)
	}

	// Ingestion
	if c.Ingestion.MinConfirmations < 1 {
		return fmt.Errorf("config: ingestion.min_confirmations must be ≥ 1, got %d", c.Ingestion.MinConfirmations)
	}
	if c.Ingestion.MaxGlobalSynonymsPerDay < 0 {
		return fmt.Errorf("config: ingestion.max_global_synonyms_per_day must be ≥ 0, got %d",
			c.Ingestion.MaxGlobalSynonymsPerDay)
	}
	if c.Ingestion.ClusterThreshold <= 0 || c.Ingestion.ClusterThreshold > 1 {
		return fmt.Errorf("config: ingestion.cluster_threshold %.3f is out of range (0, 1]", c.Ingestion.ClusterThreshold)
	}

	// Calibration
	if c.Calibration.TargetPrecision <= 0 || c.Calibration.TargetPrecision > 1 {
		return fmt.Errorf("config: calibration.target_precision %.3f is out of range (0, 1]", c.Calibration.TargetPrecision)
	}
	if c.Calibration.AutoAcceptFloor > r.AutoAcceptThreshold {
		return fmt.Errorf("config: calibration.auto_accept_floor %.3f exceeds resolver.auto_accept_threshold %.3f",
			c.Calibration.AutoAcceptFloor, r.AutoAcceptThreshold)
	}

	// Worker
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("config: worker.concurrency must be ≥ 1, got %d", c.Worker.Concurrency)
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}
