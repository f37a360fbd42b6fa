package milvus

import (
	"context"
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envlytics/analyte-resolver/internal/config"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

type mockMilvusClient struct {
	client.Client

	searchFunc        func(ctx context.Context, collName string, partitions []string, expr string, outputFields []string, vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int, sp entity.SearchParam, opts ...client.SearchQueryOptionFunc) ([]client.SearchResult, error)
	hasCollectionFunc func(ctx context.Context, name string) (bool, error)
}

func (m *mockMilvusClient) Search(ctx context.Context, collName string, partitions []string, expr string, outputFields []string, vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int, sp entity.SearchParam, opts ...client.SearchQueryOptionFunc) ([]client.SearchResult, error) {
	return m.searchFunc(ctx, collName, partitions, expr, outputFields, vectors, vectorField, metricType, topK, sp, opts...)
}

func (m *mockMilvusClient) HasCollection(ctx context.Context, name string) (bool, error) {
	return m.hasCollectionFunc(ctx, name)
}

func TestSearchVectorMapsHits(t *testing.T) {
	mock := &mockMilvusClient{
		searchFunc: func(_ context.Context, collName string, _ []string, _ string, _ []string, vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int, _ entity.SearchParam, _ ...client.SearchQueryOptionFunc) ([]client.SearchResult, error) {
			assert.Equal(t, "analyte_corpus_abc123", collName)
			assert.Equal(t, fieldEmbedding, vectorField)
			assert.Equal(t, entity.COSINE, metricType)
			assert.Equal(t, 10, topK)
			assert.Len(t, vectors, 1)
			return []client.SearchResult{{
				ResultCount: 2,
				IDs:         entity.NewColumnInt64(fieldEntryID, []int64{4, 9}),
				Fields:      client.ResultSet{entity.NewColumnVarChar(fieldAnalyteID, []string{"REG153_001", "REG153_044"})},
				Scores:      []float32{0.93, 0.71},
			}}, nil
		},
	}
	c := NewClientWithMilvus(mock, config.MilvusConfig{}, logging.NewNopLogger())
	s := NewSearcher(c, "analyte_corpus_abc123", logging.NewNopLogger())

	hits, err := s.SearchVector(context.Background(), []float32{0.1, 0.2, 0.3}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 4, hits[0].EntryID)
	assert.Equal(t, common.AnalyteID("REG153_001"), hits[0].AnalyteID)
	assert.InDelta(t, 0.93, hits[0].Cosine, 1e-6)
	assert.Equal(t, common.AnalyteID("REG153_044"), hits[1].AnalyteID)
}

func TestSearchVectorEmptyQuery(t *testing.T) {
	c := NewClientWithMilvus(&mockMilvusClient{}, config.MilvusConfig{}, logging.NewNopLogger())
	s := NewSearcher(c, "analyte_corpus_abc123", logging.NewNopLogger())

	_, err := s.SearchVector(context.Background(), nil, 10)
	assert.Error(t, err)
}

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "analyte_corpus_0123456789ab", CollectionName("", "0123456789abcdef"))
	assert.Equal(t, "resolver_abc", CollectionName("resolver", "abc"))
}

func TestExporterSkipsExistingCollection(t *testing.T) {
	mock := &mockMilvusClient{
		hasCollectionFunc: func(_ context.Context, name string) (bool, error) {
			return true, nil
		},
	}
	c := NewClientWithMilvus(mock, config.MilvusConfig{CollectionPrefix: "resolver"}, logging.NewNopLogger())
	e := NewExporter(c, logging.NewNopLogger())

	snap := embeddedTestSnapshot(t)
	name, err := e.Export(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, CollectionName("resolver", snap.Hash), name)
}
