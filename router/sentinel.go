package router

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/falkordb/rediscore/conn"
	"github.com/falkordb/rediscore/config"
	"github.com/falkordb/rediscore/internal/log"
	"github.com/falkordb/rediscore/metrics"
	"github.com/falkordb/rediscore/pool"
	"github.com/falkordb/rediscore/rediserr"
	"github.com/falkordb/rediscore/resp"
)

// Sentinel resolves the current primary for a named master through a
// set of Sentinel processes and routes every command to it, swapping
// its pool to the new primary on READONLY replies or transport errors
// (spec.md §4.7.2, C7).
type Sentinel struct {
	cfg    config.Config
	logger *zap.Logger
	m      *metrics.Collectors

	mu   sync.RWMutex
	addr string
	pool *pool.Pool
}

// NewSentinel resolves the current primary and builds a Sentinel
// router bound to it.
func NewSentinel(ctx context.Context, cfg config.Config, logger *zap.Logger, m *metrics.Collectors) (*Sentinel, error) {
	logger = log.Default(logger)
	s := &Sentinel{cfg: cfg, logger: logger, m: m}

	addr, err := resolvePrimary(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	s.addr = addr
	s.pool = newPool(cfg, addr, logger, m)
	return s, nil
}

// resolvePrimary asks each configured sentinel in turn for
// "SENTINEL get-master-addr-by-name <master>", using the first one
// that answers (spec.md §4.7.2).
func resolvePrimary(ctx context.Context, cfg config.Config, logger *zap.Logger) (string, error) {
	var lastErr error
	for _, sentinelAddr := range cfg.SentinelAddrs {
		addr, err := queryPrimary(ctx, cfg, sentinelAddr, logger)
		if err != nil {
			lastErr = err
			continue
		}
		return addr, nil
	}
	if lastErr == nil {
		lastErr = rediserr.Newf(rediserr.NoSentinelReachable, "no sentinel addresses configured")
	}
	return "", rediserr.New(rediserr.NoSentinelReachable, "no reachable sentinel could resolve "+cfg.MasterName, lastErr)
}

func queryPrimary(ctx context.Context, cfg config.Config, sentinelAddr string, logger *zap.Logger) (string, error) {
	c, err := conn.Dial(ctx, sentinelAddr, conn.Options{
		ConnectTimeout: cfg.ConnectTimeout(),
		ReadTimeout:    cfg.ReadTimeout(),
		MaxBufferSize:  cfg.MaxBufferSize,
		Logger:         logger,
	})
	if err != nil {
		return "", err
	}
	defer c.Close()

	args := [][]byte{[]byte("SENTINEL"), []byte("get-master-addr-by-name"), []byte(cfg.MasterName)}
	v, err := sendAndReceive(c, args)
	if err != nil {
		return "", err
	}
	if v.IsError() {
		return "", rediserr.New(rediserr.PrimaryUnknown, v.AsErrorMsg(), nil)
	}
	if v.IsNull() || len(v.Array) != 2 {
		return "", rediserr.Newf(rediserr.PrimaryUnknown, "sentinel has no primary for %q", cfg.MasterName)
	}
	host, ok1 := v.Array[0].AsStr()
	port, ok2 := v.Array[1].AsStr()
	if !ok1 || !ok2 {
		return "", rediserr.Newf(rediserr.PrimaryUnknown, "malformed get-master-addr-by-name reply")
	}
	return host + ":" + port, nil
}

// currentPool returns the pool for the presently known primary.
func (s *Sentinel) currentPool() *pool.Pool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pool
}

// failover re-resolves the primary and, if it has changed, swaps in a
// fresh pool for it. The old pool is left for its outstanding guards
// to drain naturally; nothing references it afterward.
func (s *Sentinel) failover(ctx context.Context) error {
	addr, err := resolvePrimary(ctx, s.cfg, s.logger)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if addr == s.addr {
		return nil
	}
	s.addr = addr
	s.pool = newPool(s.cfg, addr, s.logger, s.m)
	s.m.IncFailover()
	s.logger.Info("sentinel: primary changed", zap.String("addr", addr))
	return nil
}

// shouldFailover reports whether err indicates the node this router
// reached is no longer (or never was) the primary.
func shouldFailover(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*rediserr.Error); ok {
		return e.Kind == rediserr.ReadOnly
	}
	return true // transport/protocol errors: assume the primary moved
}

func (s *Sentinel) Execute(ctx context.Context, args [][]byte) (resp.Value, error) {
	retries := s.cfg.RetryCount
	if retries < 0 {
		retries = 0
	}
	// spec.md §4.7.2: up to retry_count+1 attempts total.
	attempts := retries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		p := s.currentPool()
		g, err := p.Checkout(ctx)
		if err != nil {
			return resp.Value{}, err
		}
		v, err := sendAndReceive(g.Conn(), args)
		if err != nil {
			g.Discard()
			lastErr = err
			if !shouldFailover(err) {
				return resp.Value{}, err
			}
			if ferr := s.failover(ctx); ferr != nil {
				return resp.Value{}, ferr
			}
			sleepBackoff(ctx, s.cfg.RetryBackoff())
			continue
		}
		if v.IsError() {
			se := rediserr.FromServerLine(v.AsErrorMsg())
			if se.Kind == rediserr.ReadOnly {
				g.Release()
				lastErr = se
				if ferr := s.failover(ctx); ferr != nil {
					return resp.Value{}, ferr
				}
				sleepBackoff(ctx, s.cfg.RetryBackoff())
				continue
			}
		}
		g.Release()
		return v, nil
	}
	return resp.Value{}, lastErr
}

func (s *Sentinel) Pipeline(ctx context.Context, commands [][][]byte) ([]resp.Value, error) {
	p := s.currentPool()
	g, err := p.Checkout(ctx)
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

func (s *Sentinel) PoolIdleCount() int { return s.currentPool().IdleCount() }
func (s *Sentinel) PoolAvailable() int { return s.currentPool().Available() }
func (s *Sentinel) Close() error       { return nil }

func sleepBackoff(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
