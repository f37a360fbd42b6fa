package embedding

import (
	"context"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envlytics/analyte-resolver/internal/config"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	"github.com/envlytics/analyte-resolver/pkg/errors"
)

type mockOpenAI struct {
	requests []openai.EmbeddingRequest
	err      error
	dim      int
	shuffled bool
}

func (m *mockOpenAI) CreateEmbeddings(_ context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	if m.err != nil {
		return openai.EmbeddingResponse{}, m.err
	}
	req := conv.(openai.EmbeddingRequest)
	m.requests = append(m.requests, req)

	texts := req.Input.([]string)
	resp := openai.EmbeddingResponse{Data: make([]openai.Embedding, len(texts))}
	for i := range texts {
		vec := make([]float32, m.dim)
		vec[0] = float32(i + 1)
		idx := i
		if m.shuffled {
			// Return data out of order; Index must win over position.
			idx = len(texts) - 1 - i
			vec[0] = float32(idx + 1)
		}
		resp.Data[i] = openai.Embedding{Index: idx, Embedding: vec}
	}
	return resp, nil
}

func testConfig() config.EmbeddingConfig {
	return config.EmbeddingConfig{Provider: "openai", APIKey: "k", Dimension: 4, BatchSize: 2}
}

func TestNewDisabledProvider(t *testing.T) {
	p, err := New(config.EmbeddingConfig{Provider: "none"}, logging.NewNopLogger())
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = New(config.EmbeddingConfig{}, logging.NewNopLogger())
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(config.EmbeddingConfig{Provider: "bedrock"}, logging.NewNopLogger())
	assert.Error(t, err)
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(config.EmbeddingConfig{Provider: "openai"}, logging.NewNopLogger())
	assert.Error(t, err)
}

func TestEmbedBatchChunksRequests(t *testing.T) {
	mock := &mockOpenAI{dim: 4}
	p := NewWithClient(mock, testConfig(), logging.NewNopLogger())

	vecs, err := p.EmbedBatch(context.Background(), []string{"benzene", "toluene", "lead"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Len(t, v, 4)
	}
	// Batch size 2 splits three texts into two requests.
	require.Len(t, mock.requests, 2)
	assert.Len(t, mock.requests[0].Input.([]string), 2)
	assert.Len(t, mock.requests[1].Input.([]string), 1)
	assert.Equal(t, 4, mock.requests[0].Dimensions)
}

func TestEmbedBatchHonorsIndexOrder(t *testing.T) {
	mock := &mockOpenAI{dim: 4, shuffled: true}
	p := NewWithClient(mock, config.EmbeddingConfig{Dimension: 4, BatchSize: 8}, logging.NewNopLogger())

	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for i, v := range vecs {
		assert.Equal(t, float32(i+1), v[0])
	}
}

func TestEmbedSingle(t *testing.T) {
	mock := &mockOpenAI{dim: 4}
	p := NewWithClient(mock, testConfig(), logging.NewNopLogger())

	vec, err := p.Embed(context.Background(), "benzene")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
}

func TestEmbedDimensionMismatch(t *testing.T) {
	mock := &mockOpenAI{dim: 3}
	p := NewWithClient(mock, testConfig(), logging.NewNopLogger())

	_, err := p.Embed(context.Background(), "benzene")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeEmbeddingFailed))
}

func TestEmbedRequestFailure(t *testing.T) {
	mock := &mockOpenAI{err: assert.AnError}
	p := NewWithClient(mock, testConfig(), logging.NewNopLogger())

	_, err := p.Embed(context.Background(), "benzene")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeEmbeddingFailed))
}

func TestDefaults(t *testing.T) {
	p := NewWithClient(&mockOpenAI{dim: defaultDimension}, config.EmbeddingConfig{}, logging.NewNopLogger())
	assert.Equal(t, defaultDimension, p.Dimension())
	assert.Equal(t, openai.EmbeddingModel(defaultModel), p.model)
}
