package milvus

import (
	"context"
	"strconv"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/envlytics/analyte-resolver/internal/domain/corpus"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	"github.com/envlytics/analyte-resolver/pkg/errors"
)

const (
	fieldEntryID   = "entry_id"
	fieldAnalyteID = "analyte_id"
	fieldEmbedding = "embedding"

	insertBatchSize = 1000
)

// CollectionName derives the snapshot-scoped collection name.  Milvus
// identifiers cannot contain dashes, so only the hash prefix is used.
func CollectionName(prefix, hash string) string {
	if prefix == "" {
		prefix = "analyte_corpus"
	}
	if len(hash) > 12 {
		hash = hash[:12]
	}
	return prefix + "_" + hash
}

// Exporter publishes corpus snapshot embeddings into per-snapshot Milvus
// collections.
type Exporter struct {
	client *Client
	logger logging.Logger
}

// NewExporter constructs an Exporter.
func NewExporter(client *Client, logger logging.Logger) *Exporter {
	return &Exporter{client: client, logger: logger}
}

// Export creates a collection for the snapshot, bulk-inserts every entry
// embedding, builds the HNSW index and loads the collection for search.  It
// returns the collection name.  Exporting an unembedded snapshot is an error.
func (e *Exporter) Export(ctx context.Context, snap *corpus.Snapshot) (string, error) {
	if !snap.HasVectors() {
		return "", errors.New(errors.CodeIndexBuildFailed, "snapshot has no embeddings to export")
	}
	name := CollectionName(e.client.cfg.CollectionPrefix, snap.Hash)
	mc := e.client.Raw()

	has, err := mc.HasCollection(ctx, name)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeExternalService, "failed to check collection")
	}
	if has {
		// Snapshot collections are content-addressed; an existing one is
		// already complete.
		return name, nil
	}

	if err := e.createCollection(ctx, name, snap.Dimension()); err != nil {
		return "", err
	}
	if err := e.insertAll(ctx, name, snap); err != nil {
		return "", err
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, e.hnswM(), e.hnswEfConstruction())
	if err != nil {
		return "", errors.Wrap(err, errors.CodeIndexBuildFailed, "failed to build hnsw index spec")
	}
	if err := mc.CreateIndex(ctx, name, fieldEmbedding, idx, false); err != nil {
		return "", errors.Wrap(err, errors.CodeIndexBuildFailed, "failed to create vector index")
	}
	if err := mc.LoadCollection(ctx, name, false); err != nil {
		return "", errors.Wrap(err, errors.CodeIndexBuildFailed, "failed to load collection")
	}

	e.logger.Info("snapshot exported to milvus",
		logging.String("collection", name),
		logging.Int("entries", snap.EntryCount()),
		logging.Int("dim", snap.Dimension()),
	)
	return name, nil
}

// Drop removes a snapshot collection, tolerating one that is already gone.
func (e *Exporter) Drop(ctx context.Context, name string) error {
	mc := e.client.Raw()
	has, err := mc.HasCollection(ctx, name)
	if err != nil {
		return errors.Wrap(err, errors.CodeExternalService, "failed to check collection")
	}
	if !has {
		return nil
	}
	if err := mc.DropCollection(ctx, name); err != nil {
		return errors.Wrap(err, errors.CodeExternalService, "failed to drop collection")
	}
	return nil
}

func (e *Exporter) createCollection(ctx context.Context, name string, dim int) error {
	schema := &entity.Schema{
		CollectionName: name,
		Description:    "analyte corpus entry embeddings",
		Fields: []*entity.Field{
			{Name: fieldEntryID, DataType: entity.FieldTypeInt64, PrimaryKey: true},
			{Name: fieldAnalyteID, DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{
				entity.TypeParamMaxLength: "64",
			}},
			{Name: fieldEmbedding, DataType: entity.FieldTypeFloatVector, TypeParams: map[string]string{
				entity.TypeParamDim: strconv.Itoa(dim),
			}},
		},
	}
	if err := e.client.Raw().CreateCollection(ctx, schema, 2); err != nil {
		return errors.Wrap(err, errors.CodeIndexBuildFailed, "failed to create collection")
	}
	return nil
}

func (e *Exporter) insertAll(ctx context.Context, name string, snap *corpus.Snapshot) error {
	mc := e.client.Raw()
	dim := snap.Dimension()

	for lo := 0; lo < snap.EntryCount(); lo += insertBatchSize {
		hi := lo + insertBatchSize
		if hi > snap.EntryCount() {
			hi = snap.EntryCount()
		}

		ids := make([]int64, 0, hi-lo)
		analytes := make([]string, 0, hi-lo)
		vectors := make([][]float32, 0, hi-lo)
		for i := lo; i < hi; i++ {
			vec := snap.Vector(i)
			if vec == nil {
				continue
			}
			ids = append(ids, int64(i))
			analytes = append(analytes, string(snap.Entry(i).AnalyteID))
			vectors = append(vectors, vec)
		}
		if len(ids) == 0 {
			continue
		}

		_, err := mc.Insert(ctx, name, "",
			entity.NewColumnInt64(fieldEntryID, ids),
			entity.NewColumnVarChar(fieldAnalyteID, analytes),
			entity.NewColumnFloatVector(fieldEmbedding, dim, vectors),
		)
		if err != nil {
			return errors.Wrap(err, errors.CodeIndexBuildFailed, "failed to insert embeddings")
		}
	}

	flushCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := mc.Flush(flushCtx, name, false); err != nil {
		return errors.Wrap(err, errors.CodeIndexBuildFailed, "failed to flush collection")
	}
	return nil
}

func (e *Exporter) hnswM() int {
	if e.client.cfg.HNSWM > 0 {
		return e.client.cfg.HNSWM
	}
	return 16
}

func (e *Exporter) hnswEfConstruction() int {
	if e.client.cfg.HNSWEfConstruction > 0 {
		return e.client.cfg.HNSWEfConstruction
	}
	return 200
}
