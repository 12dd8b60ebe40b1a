// Package pool implements the bounded connection pool of spec.md
// §4.4: semaphore-gated checkout, LIFO idle reuse for cache warmth,
// idle-expiration, and a scoped guard whose release path never
// suspends so it works from an ordinary deferred Close.
package pool

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/falkordb/rediscore/conn"
	"github.com/falkordb/rediscore/metrics"
)

// DialFunc opens a fresh, already-initialized connection.
type DialFunc func(ctx context.Context) (*conn.Conn, error)

// Config controls a Pool's shape.
type Config struct {
	Size        int
	IdleTimeout time.Duration
	Logger      *zap.Logger
	Metrics     *metrics.Collectors
	NodeAddr    string // label only, for metrics/logging
}

// Pool is a bounded, LIFO-reuse connection pool for one node address.
// Invariant: outstanding permits + idle count <= Size at all times
// (spec.md §3 "Pool State").
type Pool struct {
	sem  *semaphore.Weighted
	size int64

	mu   sync.Mutex
	idle *list.List // of *conn.Conn, back = most recently released

	idleTimeout time.Duration
	dial        DialFunc
	logger      *zap.Logger
	metrics     *metrics.Collectors
	nodeAddr    string

	outstanding int64 // atomic; for pool_available()/idle_count() accessors
}

// New creates a Pool of the given size, dialing new connections with dial.
func New(cfg Config, dial DialFunc) *Pool {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Pool{
		sem:         semaphore.NewWeighted(int64(cfg.Size)),
		size:        int64(cfg.Size),
		idle:        list.New(),
		idleTimeout: cfg.IdleTimeout,
		dial:        dial,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		nodeAddr:    cfg.NodeAddr,
	}
}

// Guard is a scoped handle holding one permit and one connection. It
// must be released exactly once, by Release or Discard, or by Take
// when ownership is transferred elsewhere (spec.md GLOSSARY "Pool guard").
type Guard struct {
	pool *Pool
	conn *conn.Conn
	done bool
}

// Conn returns the checked-out connection.
func (g *Guard) Conn() *conn.Conn { return g.conn }

// Checkout acquires one permit (suspending the caller if the pool is
// fully checked out), then reuses a healthy idle connection if one is
// available, discarding any whose idle age exceeds IdleTimeout, or
// dials a fresh connection otherwise.
func (p *Pool) Checkout(ctx context.Context) (*Guard, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	atomic.AddInt64(&p.outstanding, 1)

	if c := p.popHealthyIdle(); c != nil {
		return &Guard{pool: p, conn: c}, nil
	}

	c, err := p.dial(ctx)
	if err != nil {
		p.metrics.IncDial(p.nodeAddr, "failure")
		atomic.AddInt64(&p.outstanding, -1)
		p.sem.Release(1)
		return nil, err
	}
	p.metrics.IncDial(p.nodeAddr, "success")
	return &Guard{pool: p, conn: c}, nil
}

// popHealthyIdle pops from the back of the idle deque (LIFO), skipping
// and closing any connection whose idle age has exceeded IdleTimeout.
func (p *Pool) popHealthyIdle() *conn.Conn {
	for {
		p.mu.Lock()
		back := p.idle.Back()
		if back == nil {
			p.mu.Unlock()
			return nil
		}
		p.idle.Remove(back)
		p.mu.Unlock()

		c := back.Value.(*conn.Conn)
		if p.idleTimeout > 0 && c.IdleFor() > p.idleTimeout {
			c.Close()
			p.recordMetrics()
			continue
		}
		p.recordMetrics()
		return c
	}
}

// Release returns the guard's connection to the idle deque (if still
// healthy and the deque has room) and unconditionally releases the
// permit. Never suspends: safe to call from a plain deferred Close.
func (g *Guard) Release() { g.finish(true) }

// Discard closes the connection instead of returning it — used after
// any I/O error or protocol violation, per spec.md §7 ("Fatal (per
// connection): ... causes the connection to be dropped rather than
// returned").
func (g *Guard) Discard() { g.finish(false) }

// Take transfers ownership of the underlying connection to the
// caller: it will not be returned to the pool, but the permit is
// still released as usual.
func (g *Guard) Take() *conn.Conn {
	if g.done {
		return nil
	}
	g.done = true
	c := g.conn
	atomic.AddInt64(&g.pool.outstanding, -1)
	g.pool.sem.Release(1)
	return c
}

func (g *Guard) finish(healthy bool) {
	if g.done {
		return
	}
	g.done = true
	p := g.pool

	if healthy && (p.idleTimeout == 0 || g.conn.IdleFor() <= p.idleTimeout) {
		p.mu.Lock()
		if int64(p.idle.Len()) < p.size {
			p.idle.PushBack(g.conn)
			p.mu.Unlock()
			atomic.AddInt64(&p.outstanding, -1)
			p.sem.Release(1)
			p.recordMetrics()
			return
		}
		p.mu.Unlock()
	}

	g.conn.Close()
	atomic.AddInt64(&p.outstanding, -1)
	p.sem.Release(1)
	p.recordMetrics()
}

// IdleCount returns the number of connections currently idle.
func (p *Pool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idle.Len()
}

// Available returns the number of permits not currently checked out.
func (p *Pool) Available() int {
	return int(p.size - atomic.LoadInt64(&p.outstanding))
}

// Size returns the pool's configured capacity.
func (p *Pool) Size() int { return int(p.size) }

func (p *Pool) recordMetrics() {
	if p.metrics == nil {
		return
	}
	p.metrics.SetPoolIdle(p.nodeAddr, p.IdleCount())
	p.metrics.SetPoolOutstanding(p.nodeAddr, int(atomic.LoadInt64(&p.outstanding)))
}
