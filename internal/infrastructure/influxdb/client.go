package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/fermentwatch/internal/infrastructure/config"
)

const (
	connectPingTimeout = 10 * time.Second
	healthPingTimeout  = 5 * time.Second
)

// Client is the FermentWatch time-series recorder backed by InfluxDB v2.
//
// Writes are blocking so the control loop learns about every failed
// sample or actuation event and can log it against the project.
//
// All methods are safe for concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	cfg      config.InfluxDBConfig

	mu     sync.RWMutex
	closed bool
}

// Connect creates the client and verifies the server answers a ping.
// It returns ErrDisabled when InfluxDB is switched off in configuration.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	ic := influxdb2.NewClient(cfg.URL, cfg.Token)
	if err := ping(ctx, ic, connectPingTimeout); err != nil {
		ic.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return &Client{
		client:   ic,
		writeAPI: ic.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		queryAPI: ic.QueryAPI(cfg.Org),
		cfg:      cfg,
	}, nil
}

func ping(ctx context.Context, ic influxdb2.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok, err := ic.Ping(ctx)
	switch {
	case err != nil:
		return fmt.Errorf("ping %s: %w", ic.ServerURL(), err)
	case !ok:
		return fmt.Errorf("ping %s: server not ready", ic.ServerURL())
	}
	return nil
}

// Close releases the underlying HTTP resources. Later calls return
// ErrNotConnected. Closing twice is harmless.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.client.Close()
	}
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := ping(ctx, c.client, healthPingTimeout); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// IsConnected reports whether Close has not yet been called.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil && !c.closed
}
