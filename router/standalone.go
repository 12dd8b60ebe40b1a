package router

import (
	"context"

	"go.uber.org/zap"

	"github.com/falkordb/rediscore/config"
	"github.com/falkordb/rediscore/internal/log"
	"github.com/falkordb/rediscore/metrics"
	"github.com/falkordb/rediscore/pool"
	"github.com/falkordb/rediscore/resp"
)

// Standalone routes every command to one pool backing one primary
// (spec.md §4.7.1, C6).
type Standalone struct {
	pool   *pool.Pool
	logger *zap.Logger
}

// NewStandalone builds a Standalone router for addr, using cfg's pool
// and connection settings.
func NewStandalone(cfg config.Config, addr string, logger *zap.Logger, m *metrics.Collectors) *Standalone {
	logger = log.Default(logger)
	return &Standalone{pool: newPool(cfg, addr, logger, m), logger: logger}
}

func (r *Standalone) Execute(ctx context.Context, args [][]byte) (resp.Value, error) {
	g, err := r.pool.Checkout(ctx)
	if err != nil {
		return resp.Value{}, err
	}
	v, err := sendAndReceive(g.Conn(), args)
	if err != nil {
		g.Discard()
		return resp.Value{}, err
	}
	g.Release()
	return v, nil
}

func (r *Standalone) Pipeline(ctx context.Context, commands [][][]byte) ([]resp.Value, error) {
	g, err := r.pool.Checkout(ctx)
	if err != nil {
		return nil, err
	}
	out, err := sendPipelineAndReceive(g.Conn(), commands)
	if err != nil {
		g.Discard()
		return nil, err
	}
	g.Release()
	return out, nil
}

func (r *Standalone) PoolIdleCount() int { return r.pool.IdleCount() }
func (r *Standalone) PoolAvailable() int { return r.pool.Available() }
func (r *Standalone) Close() error       { return nil }
