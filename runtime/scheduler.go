// Package runtime provides the scheduler glue spec.md §4.8 calls for,
// reinterpreted for Go's native goroutine model (see SPEC_FULL.md
// §4.8): a small supervisor for named background tasks — the cluster
// router's slot-map refresher is the only consumer today — that shuts
// down cleanly when its owning context is cancelled, standing in for
// the spec's weak-reference-based background-task teardown.
package runtime

import (
	"context"
	"os"
	"strconv"
	gruntime "runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

// WorkerCount resolves the RUNTIME_THREADS environment override
// (spec.md §6), defaulting to runtime.NumCPU() when unset or invalid.
// Go schedules goroutines over OS threads automatically; this value
// only sizes bounded fan-out (e.g. errgroup pools for cluster pipeline
// partitions), it does not gate ordinary command execution.
func WorkerCount() int {
	if v := os.Getenv("RUNTIME_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return gruntime.NumCPU()
}

// Scheduler supervises named background tasks for the lifetime of one
// router, grounded on the teacher's single long-lived `go c.manage()`
// goroutine (pascaldekloe-redis/redis.go), generalized to multiple
// named, individually cancellable tasks.
type Scheduler struct {
	logger *zap.Logger
	wg     sync.WaitGroup
}

// New builds a Scheduler; logger may be nil.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{logger: logger}
}

// Every runs fn once per interval until ctx is cancelled — the pattern
// the cluster router uses for its 30s background slot-map refresh. The
// background refresh must not fire before the caller has finished its
// own synchronous setup; callers spawn Every only as the last step of
// construction, per spec.md §9's ordering requirement.
func (s *Scheduler) Every(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("runtime: background task stopped", zap.String("task", name))
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

// Wait blocks until every task spawned via Every has returned — used
// by tests and graceful-shutdown paths, never by ordinary callers.
func (s *Scheduler) Wait() { s.wg.Wait() }
