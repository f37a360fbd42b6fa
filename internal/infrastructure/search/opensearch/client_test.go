package opensearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	opensearchgo "github.com/opensearch-project/opensearch-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envlytics/analyte-resolver/internal/config"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
)

// newTestClient builds a Client against an httptest server, skipping the
// startup ping and health loop.
func newTestClient(t *testing.T, serverURL, prefix string) *Client {
	t.Helper()
	osClient, err := opensearchgo.NewClient(opensearchgo.Config{Addresses: []string{serverURL}})
	require.NoError(t, err)

	if prefix == "" {
		prefix = defaultIndexPrefix
	}
	c := &Client{
		client: osClient,
		cfg:    config.OpenSearchConfig{Addresses: []string{serverURL}},
		prefix: prefix,
		logger: logging.NewNopLogger(),
		cancel: func() {},
	}
	c.healthy.Store(true)
	return c
}

func TestNewClientRequiresAddresses(t *testing.T) {
	_, err := NewClient(config.OpenSearchConfig{}, logging.NewNopLogger())
	assert.Error(t, err)
}

func TestPingUpdatesHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "")
	c.healthy.Store(false)
	require.NoError(t, c.Ping(context.Background()))
	assert.True(t, c.IsHealthy())
}

func TestPingFailureMarksUnhealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "")
	assert.Error(t, c.Ping(context.Background()))
	assert.False(t, c.IsHealthy())
}

func TestDecisionIndexName(t *testing.T) {
	c := newTestClient(t, "http://localhost:9200", "")
	assert.Equal(t, "resolver-decisions", c.DecisionIndex())

	c = newTestClient(t, "http://localhost:9200", "envlytics")
	assert.Equal(t, "envlytics-decisions", c.DecisionIndex())
}
