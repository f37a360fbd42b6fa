// Package bootstrap wires configuration, infrastructure, domain and
// application services into one container shared by the apiserver, worker
// and CLI binaries.
package bootstrap

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/envlytics/analyte-resolver/internal/application/calibration"
	"github.com/envlytics/analyte-resolver/internal/application/indexing"
	"github.com/envlytics/analyte-resolver/internal/application/matching"
	"github.com/envlytics/analyte-resolver/internal/application/review"
	"github.com/envlytics/analyte-resolver/internal/config"
	"github.com/envlytics/analyte-resolver/internal/domain/analyte"
	"github.com/envlytics/analyte-resolver/internal/domain/corpus"
	"github.com/envlytics/analyte-resolver/internal/domain/learning"
	"github.com/envlytics/analyte-resolver/internal/domain/resolution"
	"github.com/envlytics/analyte-resolver/internal/domain/vendorprior"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/database/postgres"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/database/postgres/repositories"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/database/redis"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/embedding"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/messaging/kafka"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/prometheus"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/search/milvus"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/search/opensearch"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/storage/minio"
)

// rebuildLockTTL bounds how long a crashed rebuild keeps the lock.
const rebuildLockTTL = 10 * time.Minute

// NewLogger builds the process logger from the resolver log configuration.
func NewLogger(cfg config.LogConfig) (logging.Logger, error) {
	out := cfg.Output
	if out == "" {
		out = "stdout"
	}
	return logging.NewLogger(logging.LogConfig{
		Level:            cfg.Level,
		Format:           cfg.Format,
		OutputPaths:      []string{out},
		ErrorOutputPaths: []string{"stderr"},
	})
}

// Container holds every wired component.  Optional infrastructure (Milvus,
// MinIO, OpenSearch, embeddings) is nil when not configured; the services
// degrade as documented in their packages.
type Container struct {
	Config *config.Config
	Logger logging.Logger

	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Cache    redis.Cache
	Producer *kafka.Producer

	Collector prometheus.MetricsCollector
	Metrics   *prometheus.AppMetrics

	Analytes      analyte.Repository
	Synonyms      analyte.SynonymRepository
	Decisions     analyte.DecisionRepository
	Variants      analyte.VariantRepository
	Confirmations analyte.ConfirmationRepository
	Snapshots     analyte.SnapshotRepository

	Provider   *corpus.Provider
	Thresholds *resolution.ThresholdConfig
	Engine     *resolution.Engine
	Priors     *vendorprior.Service
	Ingestor   *learning.Ingestor

	Milvus     *milvus.Client
	MinIO      *minio.Client
	OpenSearch *opensearch.Client
	Embedder   *embedding.Provider

	Searcher *opensearch.Searcher
	Indexer  *opensearch.Indexer

	Matching    matching.Service
	Review      review.Service
	Calibration calibration.Service
	Indexing    indexing.Service
}

// New connects the infrastructure described by cfg and assembles the
// application services on top of it.  On any error the partially connected
// components are closed before returning.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}

	pool, err := postgres.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	c.Pool = pool

	redisClient, err := redis.NewClient(cfg.Redis, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Redis = redisClient
	c.Cache = redis.NewCache(redisClient, logger, cfg.Redis.DefaultTTL)

	producer, err := kafka.NewProducer(cfg.Kafka, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Producer = producer

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "resolver"}, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Collector = collector
	c.Metrics = prometheus.NewAppMetrics(collector)

	c.Analytes = repositories.NewAnalyteRepository(pool, logger)
	c.Synonyms = repositories.NewSynonymRepository(pool, logger)
	c.Decisions = repositories.NewDecisionRepository(pool, logger)
	c.Variants = repositories.NewVariantRepository(pool, logger)
	c.Confirmations = repositories.NewConfirmationRepository(pool, logger)
	c.Snapshots = repositories.NewSnapshotRepository(pool, logger)

	if err := c.connectOptional(ctx); err != nil {
		c.Close()
		return nil, err
	}

	c.assembleDomain()
	c.assembleServices()
	return c, nil
}

// connectOptional connects the components the resolver can run without.
func (c *Container) connectOptional(ctx context.Context) error {
	cfg := c.Config

	if cfg.Milvus.Addr != "" {
		mc, err := milvus.NewClient(ctx, cfg.Milvus, c.Logger)
		if err != nil {
			return err
		}
		c.Milvus = mc
	}

	if cfg.MinIO.Endpoint != "" {
		store, err := minio.NewClient(cfg.MinIO, c.Logger)
		if err != nil {
			return err
		}
		c.MinIO = store
	}

	if len(cfg.OpenSearch.Addresses) > 0 {
		osc, err := opensearch.NewClient(cfg.OpenSearch, c.Logger)
		if err != nil {
			return err
		}
		c.OpenSearch = osc
		c.Searcher = opensearch.NewSearcher(osc, c.Logger)
		c.Indexer = opensearch.NewIndexer(osc, cfg.OpenSearch.BulkBatchSize, c.Logger)
	}

	if cfg.Embedding.Provider == "openai" {
		provider, err := embedding.New(cfg.Embedding, c.Logger)
		if err != nil {
			return err
		}
		c.Embedder = provider
	}
	return nil
}

func (c *Container) assembleDomain() {
	cfg := c.Config

	c.Provider = corpus.NewProvider()
	c.Thresholds = resolution.NewThresholdConfig(resolution.Thresholds{
		AutoAccept:      cfg.Resolver.AutoAcceptThreshold,
		Review:          cfg.Resolver.ReviewThreshold,
		RejectFloor:     cfg.Resolver.RejectFloor,
		MinMargin:       cfg.Resolver.MarginThreshold,
		DisagreementCap: cfg.Resolver.DisagreementCap,
		VendorBoost:     cfg.Resolver.VendorBoost,
	})

	c.Priors = vendorprior.NewService(c.Variants, c.Confirmations, vendorprior.Params{
		DecayWindow:      cfg.Resolver.PriorDecayWindow,
		DecayLambda:      cfg.Resolver.PriorDecayLambda,
		DecayFloor:       cfg.Resolver.PriorDecayFloor,
		MaxCollisions:    cfg.Resolver.MaxCollisionCount,
		UnstableCooldown: cfg.Resolver.UnstableCooldown,
	}, c.Logger)

	var embedder resolution.Embedder
	if c.Embedder != nil {
		embedder = c.Embedder
	}
	var vectors corpus.VectorSearcher
	if c.Milvus != nil {
		vectors = &vectorRouter{
			client:   c.Milvus,
			provider: c.Provider,
			prefix:   cfg.Milvus.CollectionPrefix,
			logger:   c.Logger,
		}
	}
	c.Engine = resolution.NewEngine(c.Provider, c.Priors, embedder, vectors, c.Logger)

	var capGate learning.CapGate
	if cfg.Ingestion.MaxGlobalSynonymsPerDay > 0 {
		capGate = redis.NewDailyCapGate(c.Redis, c.Logger, cfg.Ingestion.MaxGlobalSynonymsPerDay)
	}
	c.Ingestor = learning.NewIngestor(c.Analytes, c.Synonyms, c.Provider, capGate, c.Logger)
}

func (c *Container) assembleServices() {
	cfg := c.Config

	var builderEmbedder corpus.EmbeddingProvider
	if c.Embedder != nil {
		builderEmbedder = c.Embedder
	}
	builder := corpus.NewBuilder(c.Analytes, c.Synonyms, builderEmbedder, c.Logger)

	var store indexing.ArtifactStore
	if c.MinIO != nil {
		store = minio.NewSnapshotStore(c.MinIO, c.Logger)
	}
	var exporter indexing.VectorExporter
	if c.Milvus != nil {
		exporter = milvus.NewExporter(c.Milvus, c.Logger)
	}
	locker := redis.NewMutex(c.Redis, c.Logger, "corpus-rebuild", rebuildLockTTL)

	c.Indexing = indexing.NewService(builder, c.Provider, c.Snapshots, store, exporter,
		locker, c.Producer, c.Metrics, c.Logger)

	c.Matching = matching.NewService(c.Engine, c.Provider, c.Thresholds, c.Decisions,
		c.Cache, c.Producer, c.Metrics, c.Logger)

	var searcher review.QueueSearcher
	var indexer review.DecisionIndexer
	if c.Searcher != nil {
		searcher = c.Searcher
	}
	if c.Indexer != nil {
		indexer = c.Indexer
	}
	c.Review = review.NewService(c.Decisions, c.Synonyms, c.Priors, c.Ingestor,
		searcher, indexer, c.Producer, c.Metrics, c.Logger)

	c.Calibration = calibration.NewService(c.Decisions, c.Thresholds, cfg.Calibration,
		c.Metrics, c.Logger)
}

// vectorRouter serves semantic queries from the Milvus collection belonging
// to the currently active snapshot.  Collections are content-addressed per
// snapshot hash, so the binding cannot be fixed at startup.
type vectorRouter struct {
	client   *milvus.Client
	provider *corpus.Provider
	prefix   string
	logger   logging.Logger
}

func (r *vectorRouter) SearchVector(ctx context.Context, vec []float32, topK int) ([]corpus.VectorHit, error) {
	snap, err := r.provider.Active()
	if err != nil {
		return nil, err
	}
	collection := milvus.CollectionName(r.prefix, snap.Hash)
	return milvus.NewSearcher(r.client, collection, r.logger).SearchVector(ctx, vec, topK)
}

// Close releases every connected component in reverse order.  Errors are
// logged, not returned; shutdown proceeds regardless.
func (c *Container) Close() {
	if c.Producer != nil {
		if err := c.Producer.Close(); err != nil {
			c.Logger.Warn("kafka producer close failed", logging.Err(err))
		}
	}
	if c.OpenSearch != nil {
		if err := c.OpenSearch.Close(); err != nil {
			c.Logger.Warn("opensearch close failed", logging.Err(err))
		}
	}
	if c.Milvus != nil {
		if err := c.Milvus.Close(); err != nil {
			c.Logger.Warn("milvus close failed", logging.Err(err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("redis close failed", logging.Err(err))
		}
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}
