package milvus

import (
	"context"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/envlytics/analyte-resolver/internal/domain/corpus"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	"github.com/envlytics/analyte-resolver/pkg/errors"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

// Searcher serves semantic nearest-neighbor queries from one snapshot
// collection.  It implements corpus.VectorSearcher, so the resolution engine
// can use Milvus and the in-process brute-force search interchangeably.
type Searcher struct {
	client     *Client
	collection string
	searchEf   int
	timeout    time.Duration
	logger     logging.Logger
}

// NewSearcher binds a searcher to one collection.
func NewSearcher(client *Client, collection string, logger logging.Logger) *Searcher {
	return &Searcher{
		client:     client,
		collection: collection,
		searchEf:   64,
		timeout:    5 * time.Second,
		logger:     logger,
	}
}

// SearchVector returns the topK nearest entries by cosine similarity.
func (s *Searcher) SearchVector(ctx context.Context, vec []float32, topK int) ([]corpus.VectorHit, error) {
	if len(vec) == 0 {
		return nil, errors.New(errors.CodeVectorSearchFailed, "empty query vector")
	}
	if topK <= 0 {
		topK = 10
	}

	sp, err := entity.NewIndexHNSWSearchParam(s.searchEf)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeVectorSearchFailed, "failed to build search params")
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	results, err := s.client.Raw().Search(searchCtx, s.collection, nil, "",
		[]string{fieldAnalyteID},
		[]entity.Vector{entity.FloatVector(vec)},
		fieldEmbedding, entity.COSINE, topK, sp)
	if err != nil {
		s.client.healthy.Store(false)
		return nil, errors.Wrap(err, errors.CodeVectorSearchFailed, "milvus search failed")
	}

	var hits []corpus.VectorHit
	for _, rs := range results {
		idCol, ok := rs.IDs.(*entity.ColumnInt64)
		if !ok {
			return nil, errors.New(errors.CodeVectorSearchFailed, "unexpected primary key column type")
		}
		analyteCol, ok := rs.Fields.GetColumn(fieldAnalyteID).(*entity.ColumnVarChar)
		if !ok {
			return nil, errors.New(errors.CodeVectorSearchFailed, "missing analyte_id column")
		}
		for i := 0; i < rs.ResultCount; i++ {
			analyteID, err := analyteCol.ValueByIdx(i)
			if err != nil {
				return nil, errors.Wrap(err, errors.CodeVectorSearchFailed, "failed to read analyte_id")
			}
			hits = append(hits, corpus.VectorHit{
				EntryID:   int(idCol.Data()[i]),
				AnalyteID: common.AnalyteID(analyteID),
				Cosine:    float64(rs.Scores[i]),
			})
		}
	}

	s.logger.Debug("milvus vector search",
		logging.String("collection", s.collection),
		logging.Int("hits", len(hits)),
	)
	return hits, nil
}
