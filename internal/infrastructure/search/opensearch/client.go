// Package opensearch indexes match decisions for the review queue.  Reviewers
// search decisions by free text over the observed names and filter by vendor,
// band and validation state; Postgres stays the system of record and the
// index is rebuildable from it.
package opensearch

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/envlytics/analyte-resolver/internal/config"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	"github.com/envlytics/analyte-resolver/pkg/errors"
)

var ErrConnectionFailed = errors.New(errors.CodeExternalService, "opensearch connection failed")

const (
	defaultIndexPrefix  = "resolver"
	defaultMaxRetries   = 3
	defaultRetryBackoff = 100 * time.Millisecond
	healthCheckInterval = 30 * time.Second
)

// Client manages the OpenSearch connection and index naming.
type Client struct {
	client  *opensearch.Client
	cfg     config.OpenSearchConfig
	prefix  string
	logger  logging.Logger
	healthy atomic.Bool
	cancel  context.CancelFunc
}

// NewClient connects to the cluster, verifies it responds and starts a
// background health check.
func NewClient(cfg config.OpenSearchConfig, logger logging.Logger) (*Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.InvalidParam("opensearch addresses are required")
	}

	transport := &http.Transport{MaxIdleConnsPerHost: 10}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	osClient, err := opensearch.NewClient(opensearch.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.User,
		Password:      cfg.Password,
		MaxRetries:    defaultMaxRetries,
		RetryBackoff:  func(int) time.Duration { return defaultRetryBackoff },
		RetryOnStatus: []int{429, 502, 503, 504},
		Transport:     transport,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeExternalService, "failed to create opensearch client")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{client: osClient, cfg: cfg, prefix: cfg.IndexPrefix, logger: logger, cancel: cancel}
	if c.prefix == "" {
		c.prefix = defaultIndexPrefix
	}

	if err := c.Ping(ctx); err != nil {
		cancel()
		return nil, ErrConnectionFailed
	}
	go c.healthLoop(ctx)

	logger.Info("connected to opensearch",
		logging.Any("addresses", cfg.Addresses),
		logging.String("index_prefix", c.prefix),
	)
	return c, nil
}

// Ping checks cluster reachability and updates the health flag.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.client.Ping(c.client.Ping.WithContext(ctx))
	if err != nil {
		c.healthy.Store(false)
		return errors.Wrap(err, errors.CodeExternalService, "opensearch ping failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.IsError() {
		c.healthy.Store(false)
		return errors.Newf(errors.CodeExternalService, "opensearch ping returned status %d", resp.StatusCode)
	}
	c.healthy.Store(true)
	return nil
}

// IsHealthy reports the last observed cluster health.
func (c *Client) IsHealthy() bool { return c.healthy.Load() }

// DecisionIndex returns the name of the match-decision index.
func (c *Client) DecisionIndex() string { return c.prefix + "-decisions" }

// Raw returns the underlying SDK client.
func (c *Client) Raw() *opensearch.Client { return c.client }

// Close stops the background health check.
func (c *Client) Close() error {
	c.cancel()
	c.logger.Info("opensearch client closed")
	return nil
}

func (c *Client) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prev := c.healthy.Load()
			err := c.Ping(ctx)
			curr := c.healthy.Load()
			if prev && !curr {
				c.logger.Error("opensearch became unhealthy", logging.Err(err))
			} else if !prev && curr {
				c.logger.Info("opensearch recovered")
			}
		}
	}
}
