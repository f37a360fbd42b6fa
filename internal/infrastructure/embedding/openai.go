// Package embedding provides the name-embedding provider behind the semantic
// tier.  The OpenAI-compatible backend covers both hosted endpoints and
// self-hosted gateways that speak the same API.
package embedding

import (
	"context"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/envlytics/analyte-resolver/internal/config"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	"github.com/envlytics/analyte-resolver/pkg/errors"
)

const (
	defaultModel     = "text-embedding-3-small"
	defaultDimension = 256
	defaultBatchSize = 128
	defaultTimeout   = 30 * time.Second
)

// OpenAIClient is the slice of the SDK the provider calls.
type OpenAIClient interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Provider computes embeddings for analyte names.  It serves both the corpus
// builder (batch) and the resolver (single query).
type Provider struct {
	client    OpenAIClient
	model     openai.EmbeddingModel
	dimension int
	batchSize int
	timeout   time.Duration
	logger    logging.Logger
}

// New builds a provider from configuration.  A "none" or empty provider
// returns nil without error: the resolver then serves exact and fuzzy tiers
// only.
func New(cfg config.EmbeddingConfig, logger logging.Logger) (*Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "none":
		return nil, nil
	case "openai":
	default:
		return nil, errors.Newf(errors.CodeValidation, "unknown embedding provider %q", cfg.Provider)
	}
	if cfg.APIKey == "" {
		return nil, errors.InvalidParam("embedding api key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return newProvider(openai.NewClientWithConfig(clientConfig), cfg, logger), nil
}

// NewWithClient wires a pre-built client, used by tests.
func NewWithClient(client OpenAIClient, cfg config.EmbeddingConfig, logger logging.Logger) *Provider {
	return newProvider(client, cfg, logger)
}

func newProvider(client OpenAIClient, cfg config.EmbeddingConfig, logger logging.Logger) *Provider {
	p := &Provider{
		client:    client,
		model:     openai.EmbeddingModel(cfg.Model),
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
		timeout:   cfg.Timeout,
		logger:    logger,
	}
	if p.model == "" {
		p.model = defaultModel
	}
	if p.dimension <= 0 {
		p.dimension = defaultDimension
	}
	if p.batchSize <= 0 {
		p.batchSize = defaultBatchSize
	}
	if p.timeout <= 0 {
		p.timeout = defaultTimeout
	}
	return p
}

// Dimension returns the configured embedding width.
func (p *Provider) Dimension() int { return p.dimension }

// Embed computes the embedding of a single query text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch computes embeddings for all texts, preserving order.  Requests
// are chunked to the configured batch size.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.batchSize {
		end := start + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := p.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (p *Provider) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      p.model,
		Dimensions: p.dimension,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeEmbeddingFailed, "embedding request failed")
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.Newf(errors.CodeEmbeddingFailed,
			"embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, errors.Newf(errors.CodeEmbeddingFailed, "embedding index %d out of range", d.Index)
		}
		if len(d.Embedding) != p.dimension {
			return nil, errors.Newf(errors.CodeEmbeddingFailed,
				"embedding has %d dimensions, expected %d", len(d.Embedding), p.dimension)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}
