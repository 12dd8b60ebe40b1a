// Package rediscore provides Redis service access: a RESP2/RESP3 wire
// codec, a pooled connection, and topology-aware routing across
// standalone, Sentinel, and Cluster deployments behind one Client.
package rediscore

import (
	"context"
	"fmt"
	"net"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/falkordb/rediscore/config"
	"github.com/falkordb/rediscore/internal/log"
	"github.com/falkordb/rediscore/metrics"
	"github.com/falkordb/rediscore/rediserr"
	"github.com/falkordb/rediscore/resp"
	"github.com/falkordb/rediscore/router"
)

// Client provides command execution against a Redis-compatible
// service, routed by the topology named in its Config. Multiple
// goroutines may invoke methods on a Client simultaneously.
type Client struct {
	// ID uniquely identifies this Client instance across its lifetime;
	// it is attached to every log line as the client_id field.
	ID uuid.UUID

	cfg    config.Config
	router router.Router
	logger *zap.Logger
}

// New builds a Client for cfg, dialing and discovering topology as
// needed. TLS is rejected: spec.md's Non-goals exclude encrypted
// transport, so a Config requesting it fails fast rather than silently
// connecting in the clear.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, m *metrics.Collectors) (*Client, error) {
	cfg = cfg.WithDefaults()
	logger = log.Default(logger)

	if cfg.TLS {
		return nil, rediserr.Newf(rediserr.Protocol, "TLS connections are not yet supported")
	}

	id := uuid.New()
	logger = logger.With(zap.String("client_id", id.String()))

	r, err := buildRouter(ctx, cfg, logger, m)
	if err != nil {
		return nil, err
	}

	return &Client{ID: id, cfg: cfg, router: r, logger: logger}, nil
}

// NewFromURL parses raw as a connection URL (spec.md §6) and builds a
// Client from the resulting Config.
func NewFromURL(ctx context.Context, raw string, logger *zap.Logger, m *metrics.Collectors) (*Client, error) {
	cfg, err := config.ParseURL(raw)
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, logger, m)
}

func buildRouter(ctx context.Context, cfg config.Config, logger *zap.Logger, m *metrics.Collectors) (router.Router, error) {
	switch cfg.Topology {
	case config.Sentinel:
		return router.NewSentinel(ctx, cfg, logger, m)
	case config.Cluster:
		return router.NewCluster(ctx, cfg, logger, m)
	default:
		addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
		return router.NewStandalone(cfg, addr, logger, m), nil
	}
}

// Execute sends one command and waits for its reply.
func (c *Client) Execute(ctx context.Context, args ...[]byte) (resp.Value, error) {
	return c.router.Execute(ctx, args)
}

// Pipeline sends every command and returns one reply per command, in
// the same order, without waiting for each reply before sending the
// next (spec.md §4.7.1).
func (c *Client) Pipeline(ctx context.Context, commands ...[][]byte) ([]resp.Value, error) {
	return c.router.Pipeline(ctx, commands)
}

// PoolIdleCount reports the number of idle connections held across the
// router's pool(s), for diagnostics and tests.
func (c *Client) PoolIdleCount() int { return c.router.PoolIdleCount() }

// PoolAvailable reports the number of unused checkout permits across
// the router's pool(s).
func (c *Client) PoolAvailable() int { return c.router.PoolAvailable() }

// Close releases background resources held by the router (currently
// only the cluster topology's slot-map refresher).
func (c *Client) Close() error { return c.router.Close() }
