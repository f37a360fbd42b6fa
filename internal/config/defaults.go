// Package config provides configuration loading, defaults, and validation for
// the analyte resolver.
package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort = 8080
	DefaultServerMode = "debug"

	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBName     = "analyte_resolver"
	DefaultDBMaxConns = 25

	DefaultRedisAddr = "localhost:6379"

	DefaultKafkaBroker   = "localhost:9092"
	DefaultKafkaGroupID  = "analyte-resolver"
	DefaultDecisionTopic = "analyte.match-decisions"

	DefaultMilvusDim  = 384
	DefaultMinIOBucket = "resolver-snapshots"

	DefaultEmbeddingModel = "text-embedding-3-small"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultWorkerConcurrency = 4
)

// Matching threshold defaults.  These are the calibrated production values;
// the calibrator may tighten them upward but never below the safety floors.
const (
	DefaultAutoAcceptThreshold = 0.93
	DefaultReviewThreshold     = 0.75
	DefaultMarginThreshold     = 0.05
	DefaultDisagreementCap     = 0.84
	DefaultRejectFloor         = 0.50
	DefaultVendorBoost         = 0.02

	DefaultPriorDecayLambda  = 0.10
	DefaultPriorDecayFloor   = 0.90
	DefaultMaxCollisionCount = 2
	DefaultVendorOverrideN   = 25

	DefaultMinConfirmations  = 3
	DefaultDualGateMargin    = 0.06
	DefaultGlobalSynonymsCap = 20
	DefaultClusterThreshold  = 0.85

	DefaultTargetPrecision = 0.99
	DefaultAutoAcceptFloor = 0.90
	DefaultMarginFloor     = 0.02
	DefaultMinSampleSize   = 200
)

// ─────────────────────────────────────────────────────────────────────────────
// ApplyDefaults fills zero-value fields in cfg with well-known defaults.
// It must be called after unmarshalling raw config data and before Validate()
// so that optional-but-defaulted fields are never seen as missing.
// ─────────────────────────────────────────────────────────────────────────────

// ApplyDefaults fills every zero-value field in cfg with the resolver default.
// Fields that have already been set by the caller (non-zero values) are left
// unchanged so that explicit configuration always wins.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MigrationPath == "" {
		cfg.Database.MigrationPath = "migrations"
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "resolver:"
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = 10 * time.Minute
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.DecisionTopic == "" {
		cfg.Kafka.DecisionTopic = DefaultDecisionTopic
	}
	if cfg.Kafka.AutoOffsetReset == "" {
		cfg.Kafka.AutoOffsetReset = "earliest"
	}

	// ── Milvus ────────────────────────────────────────────────────────────────
	if cfg.Milvus.EmbeddingDim == 0 {
		cfg.Milvus.EmbeddingDim = DefaultMilvusDim
	}
	if cfg.Milvus.DefaultTopK == 0 {
		cfg.Milvus.DefaultTopK = 10
	}
	if cfg.Milvus.CollectionPrefix == "" {
		cfg.Milvus.CollectionPrefix = "resolver_"
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	// ── Embedding ─────────────────────────────────────────────────────────────
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = DefaultEmbeddingModel
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = DefaultMilvusDim
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 10 * time.Second
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 64
	}

	// ── Resolver ──────────────────────────────────────────────────────────────
	if cfg.Resolver.AutoAcceptThreshold == 0 {
		cfg.Resolver.AutoAcceptThreshold = DefaultAutoAcceptThreshold
	}
	if cfg.Resolver.ReviewThreshold == 0 {
		cfg.Resolver.ReviewThreshold = DefaultReviewThreshold
	}
	if cfg.Resolver.MarginThreshold == 0 {
		cfg.Resolver.MarginThreshold = DefaultMarginThreshold
	}
	if cfg.Resolver.DisagreementCap == 0 {
		cfg.Resolver.DisagreementCap = DefaultDisagreementCap
	}
	if cfg.Resolver.RejectFloor == 0 {
		cfg.Resolver.RejectFloor = DefaultRejectFloor
	}
	if cfg.Resolver.VendorBoost == 0 {
		cfg.Resolver.VendorBoost = DefaultVendorBoost
	}
	if cfg.Resolver.FuzzyCandidateTopK == 0 {
		cfg.Resolver.FuzzyCandidateTopK = 50
	}
	if cfg.Resolver.SemanticTopK == 0 {
		cfg.Resolver.SemanticTopK = 10
	}
	if cfg.Resolver.PriorDecayWindow == 0 {
		cfg.Resolver.PriorDecayWindow = 180 * 24 * time.Hour
	}
	if cfg.Resolver.PriorDecayLambda == 0 {
		cfg.Resolver.PriorDecayLambda = DefaultPriorDecayLambda
	}
	if cfg.Resolver.PriorDecayFloor == 0 {
		cfg.Resolver.PriorDecayFloor = DefaultPriorDecayFloor
	}
	if cfg.Resolver.UnstableCooldown == 0 {
		cfg.Resolver.UnstableCooldown = 7 * 24 * time.Hour
	}
	if cfg.Resolver.MaxCollisionCount == 0 {
		cfg.Resolver.MaxCollisionCount = DefaultMaxCollisionCount
	}
	if cfg.Resolver.VendorOverrideMinN == 0 {
		cfg.Resolver.VendorOverrideMinN = DefaultVendorOverrideN
	}

	// ── Ingestion ─────────────────────────────────────────────────────────────
	if cfg.Ingestion.MinConfirmations == 0 {
		cfg.Ingestion.MinConfirmations = DefaultMinConfirmations
	}
	if cfg.Ingestion.DualGateMargin == 0 {
		cfg.Ingestion.DualGateMargin = DefaultDualGateMargin
	}
	if cfg.Ingestion.MaxGlobalSynonymsPerDay == 0 {
		cfg.Ingestion.MaxGlobalSynonymsPerDay = DefaultGlobalSynonymsCap
	}
	if cfg.Ingestion.ClusterThreshold == 0 {
		cfg.Ingestion.ClusterThreshold = DefaultClusterThreshold
	}

	// ── Calibration ───────────────────────────────────────────────────────────
	if cfg.Calibration.TargetPrecision == 0 {
		cfg.Calibration.TargetPrecision = DefaultTargetPrecision
	}
	if cfg.Calibration.AutoAcceptFloor == 0 {
		cfg.Calibration.AutoAcceptFloor = DefaultAutoAcceptFloor
	}
	if cfg.Calibration.MarginFloor == 0 {
		cfg.Calibration.MarginFloor = DefaultMarginFloor
	}
	if cfg.Calibration.MinSampleSize == 0 {
		cfg.Calibration.MinSampleSize = DefaultMinSampleSize
	}
	if cfg.Calibration.Interval == 0 {
		cfg.Calibration.Interval = 24 * time.Hour
	}
	if cfg.Calibration.LookbackWindow == 0 {
		cfg.Calibration.LookbackWindow = 90 * 24 * time.Hour
	}

	// ── Worker ────────────────────────────────────────────────────────────────
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Worker.RebuildInterval == 0 {
		cfg.Worker.RebuildInterval = time.Hour
	}
	if cfg.Worker.MaxRetries == 0 {
		cfg.Worker.MaxRetries = 3
	}
	if cfg.Worker.RetryBackoff == 0 {
		cfg.Worker.RetryBackoff = 5 * time.Second
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}
