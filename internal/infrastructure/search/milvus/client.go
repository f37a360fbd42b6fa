// Package milvus adapts the Milvus vector store to the resolver's semantic
// search contract.  Each corpus snapshot gets its own collection, named by
// the snapshot hash, so a rebuild never mutates the collection being served.
package milvus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"

	"github.com/envlytics/analyte-resolver/internal/config"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	"github.com/envlytics/analyte-resolver/pkg/errors"
)

// milvusNewClient is swapped out in unit tests.
var milvusNewClient = client.NewClient

var (
	ErrConnectionFailed = errors.New(errors.CodeExternalService, "milvus connection failed")
	ErrUnhealthy        = errors.New(errors.CodeServiceUnavailable, "milvus unhealthy")
)

// Client manages the Milvus connection and its health state.
type Client struct {
	mc      client.Client
	cfg     config.MilvusConfig
	logger  logging.Logger
	healthy atomic.Bool
	mu      sync.RWMutex
}

// NewClient connects to Milvus and verifies the server is reachable.
func NewClient(ctx context.Context, cfg config.MilvusConfig, logger logging.Logger) (*Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New(errors.CodeInvalidParam, "milvus address is required")
	}
	if cfg.DBName == "" {
		cfg.DBName = "default"
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	mc, err := milvusNewClient(connectCtx, client.Config{
		Address: cfg.Addr,
		DBName:  cfg.DBName,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeExternalService, "failed to create milvus client")
	}

	c := &Client{mc: mc, cfg: cfg, logger: logger}
	if err := c.CheckHealth(ctx); err != nil {
		mc.Close()
		return nil, ErrConnectionFailed
	}

	logger.Info("milvus client connected", logging.String("addr", cfg.Addr))
	return c, nil
}

// NewClientWithMilvus wraps an existing SDK client; used by tests.
func NewClientWithMilvus(mc client.Client, cfg config.MilvusConfig, logger logging.Logger) *Client {
	c := &Client{mc: mc, cfg: cfg, logger: logger}
	c.healthy.Store(true)
	return c
}

// CheckHealth pings the server and records the result.
func (c *Client) CheckHealth(ctx context.Context) error {
	c.mu.RLock()
	mc := c.mc
	c.mu.RUnlock()
	if mc == nil {
		return ErrConnectionFailed
	}
	if _, err := mc.CheckHealth(ctx); err != nil {
		c.healthy.Store(false)
		c.logger.Warn("milvus health check failed", logging.Err(err))
		return ErrUnhealthy
	}
	c.healthy.Store(true)
	return nil
}

// IsHealthy reports the last observed health state.
func (c *Client) IsHealthy() bool { return c.healthy.Load() }

// Raw returns the underlying SDK client.
func (c *Client) Raw() client.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mc
}

// Close shuts the connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mc != nil {
		c.mc.Close()
	}
	c.logger.Info("milvus client closed")
	return nil
}
