// Package router implements the three topology routers of spec.md
// §4.7 — standalone, sentinel, cluster — behind one shared interface
// (C5), plus the pool-dial wiring (AUTH/SELECT/HELLO handshake) they
// all share.
package router

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/falkordb/rediscore/conn"
	"github.com/falkordb/rediscore/config"
	"github.com/falkordb/rediscore/metrics"
	"github.com/falkordb/rediscore/pool"
	"github.com/falkordb/rediscore/resp"
)

// Router is the uniform contract every topology implements: execute
// one command, execute a pipeline, and report pool occupancy
// (spec.md §4.7).
type Router interface {
	Execute(ctx context.Context, args [][]byte) (resp.Value, error)
	Pipeline(ctx context.Context, commands [][][]byte) ([]resp.Value, error)
	PoolIdleCount() int
	PoolAvailable() int
	Close() error
}

// dialer builds a pool.DialFunc bound to one node address, applying
// the shared connection options from cfg.
func dialer(cfg config.Config, addr string, logger *zap.Logger) pool.DialFunc {
	return func(ctx context.Context) (*conn.Conn, error) {
		return conn.Dial(ctx, addr, conn.Options{
			ConnectTimeout:  cfg.ConnectTimeout(),
			ReadTimeout:     cfg.ReadTimeout(),
			MaxBufferSize:   cfg.MaxBufferSize,
			Username:        cfg.Username,
			Password:        cfg.Password,
			DB:              cfg.DB,
			ProtocolVersion: cfg.ProtocolVersion,
			Logger:          logger,
		})
	}
}

// newPool builds a pool.Pool for addr under cfg's shared settings.
func newPool(cfg config.Config, addr string, logger *zap.Logger, m *metrics.Collectors) *pool.Pool {
	return pool.New(pool.Config{
		Size:        cfg.PoolSize,
		IdleTimeout: cfg.IdleTimeout(),
		Logger:      logger,
		Metrics:     m,
		NodeAddr:    addr,
	}, dialer(cfg, addr, logger))
}

// sendAndReceive writes one encoded command on conn and parses the
// single reply frame, per spec.md §4.7.1's standalone execute path.
func sendAndReceive(c *conn.Conn, args [][]byte) (resp.Value, error) {
	if err := c.Send(resp.EncodeCommand(args)); err != nil {
		return resp.Value{}, err
	}
	return c.ReadResponse()
}

// sendPipelineAndReceive writes every command concatenated, then reads
// exactly one frame per command in order — pipelined responses
// correspond position-by-position to input commands, including error
// frames (spec.md §4.7.1).
func sendPipelineAndReceive(c *conn.Conn, commands [][][]byte) ([]resp.Value, error) {
	if err := c.Send(resp.EncodePipeline(commands)); err != nil {
		return nil, err
	}
	out := make([]resp.Value, len(commands))
	for i := range commands {
		v, err := c.ReadResponse()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

const defaultBackgroundRefreshInterval = 30 * time.Second
