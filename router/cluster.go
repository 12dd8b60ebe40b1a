package router

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/falkordb/rediscore/cluster"
	"github.com/falkordb/rediscore/conn"
	"github.com/falkordb/rediscore/config"
	"github.com/falkordb/rediscore/internal/log"
	"github.com/falkordb/rediscore/metrics"
	"github.com/falkordb/rediscore/pool"
	"github.com/falkordb/rediscore/rediserr"
	"github.com/falkordb/rediscore/resp"
	"github.com/falkordb/rediscore/runtime"
)

// maxRedirects bounds how many MOVED/ASK hops one command will follow
// before giving up with a RedirectStorm error, guarding against a
// misbehaving or flapping cluster sending a caller in circles
// (spec.md §4.7.3).
const maxRedirects = 5

// tryAgainDelay is the pause before retrying a command that hit
// TRYAGAIN (a slot mid-migration), per spec.md §4.7.3.
const tryAgainDelay = 50 * time.Millisecond

// Cluster routes by hash slot across a Redis Cluster deployment,
// following MOVED/ASK redirects, retrying TRYAGAIN, splitting
// read-only commands to replicas when configured, and refreshing its
// slot map in the background (spec.md §4.7.3, C8).
type Cluster struct {
	cfg    config.Config
	logger *zap.Logger
	m      *metrics.Collectors

	slots *cluster.SlotMap

	mu    sync.RWMutex
	pools map[string]*pool.Pool // node addr -> pool

	sched  *runtime.Scheduler
	cancel context.CancelFunc
}

// NewCluster discovers the cluster topology from cfg.SeedAddrs via
// CLUSTER SLOTS and starts the background slot-map refresher.
func NewCluster(ctx context.Context, cfg config.Config, logger *zap.Logger, m *metrics.Collectors) (*Cluster, error) {
	logger = log.Default(logger)
	c := &Cluster{
		cfg:    cfg,
		logger: logger,
		m:      m,
		pools:  make(map[string]*pool.Pool),
	}

	ranges, err := fetchSlots(ctx, cfg, cfg.SeedAddrs, logger)
	if err != nil {
		return nil, err
	}
	c.slots = cluster.NewSlotMap(ranges)
	for _, r := range ranges {
		c.poolFor(r.Primary)
		for _, replica := range r.Replicas {
			c.poolFor(replica)
		}
	}

	refreshCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.sched = runtime.New(logger)
	c.sched.Every(refreshCtx, "cluster-slot-refresh", defaultBackgroundRefreshInterval, c.refresh)
	return c, nil
}

// poolFor returns the pool for addr, creating it on first use.
func (c *Cluster) poolFor(addr string) *pool.Pool {
	c.mu.RLock()
	p, ok := c.pools[addr]
	c.mu.RUnlock()
	if ok {
		return p
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pools[addr]; ok {
		return p
	}
	p = newPool(c.cfg, addr, c.logger, c.m)
	c.pools[addr] = p
	return p
}

// seedAddrs returns every node address currently known, for use as
// fallback seeds on a background refresh.
func (c *Cluster) seedAddrs() []string {
	ranges := c.slots.Snapshot()
	seen := make(map[string]bool)
	var addrs []string
	add := func(a string) {
		if a != "" && !seen[a] {
			seen[a] = true
			addrs = append(addrs, a)
		}
	}
	for _, r := range ranges {
		add(r.Primary)
		for _, rep := range r.Replicas {
			add(rep)
		}
	}
	if len(addrs) == 0 {
		return c.cfg.SeedAddrs
	}
	return addrs
}

// refresh re-fetches CLUSTER SLOTS from any known node and swaps it
// into the slot map — the 30s background task spec.md §4.7.3 requires.
func (c *Cluster) refresh(ctx context.Context) {
	ranges, err := fetchSlots(ctx, c.cfg, c.seedAddrs(), c.logger)
	if err != nil {
		c.logger.Warn("cluster: background slot refresh failed", zap.Error(err))
		c.m.IncRefresh("failure")
		return
	}
	c.slots.Swap(ranges)
	for _, r := range ranges {
		c.poolFor(r.Primary)
		for _, replica := range r.Replicas {
			c.poolFor(replica)
		}
	}
	c.m.IncRefresh("success")
}

// fetchSlots tries each address in turn, issuing CLUSTER SLOTS and
// parsing the first successful reply.
func fetchSlots(ctx context.Context, cfg config.Config, addrs []string, logger *zap.Logger) ([]cluster.Range, error) {
	var lastErr error
	for _, addr := range addrs {
		ranges, err := clusterSlotsFrom(ctx, cfg, addr, logger)
		if err != nil {
			lastErr = err
			continue
		}
		return ranges, nil
	}
	if lastErr == nil {
		lastErr = rediserr.Newf(rediserr.NoNodeForSlot, "no seed addresses configured")
	}
	return nil, rediserr.New(rediserr.NoNodeForSlot, "no seed node answered CLUSTER SLOTS", lastErr)
}

func clusterSlotsFrom(ctx context.Context, cfg config.Config, addr string, logger *zap.Logger) ([]cluster.Range, error) {
	c, err := conn.Dial(ctx, addr, conn.Options{
		ConnectTimeout: cfg.ConnectTimeout(),
		ReadTimeout:    cfg.ReadTimeout(),
		MaxBufferSize:  cfg.MaxBufferSize,
		Username:       cfg.Username,
		Password:       cfg.Password,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	defer c.Close()

	v, err := sendAndReceive(c, [][]byte{[]byte("CLUSTER"), []byte("SLOTS")})
	if err != nil {
		return nil, err
	}
	if v.IsError() {
		return nil, rediserr.New(rediserr.NoNodeForSlot, v.AsErrorMsg(), nil)
	}
	return parseClusterSlots(v)
}

// parseClusterSlots converts a CLUSTER SLOTS reply into Range entries.
// Each top-level entry is [start, end, [primary-host, primary-port, ...],
// [replica-host, replica-port, ...]...].
func parseClusterSlots(v resp.Value) ([]cluster.Range, error) {
	ranges := make([]cluster.Range, 0, len(v.Array))
	for _, entry := range v.Array {
		if len(entry.Array) < 3 {
			continue
		}
		start, ok1 := entry.Array[0].AsInt()
		end, ok2 := entry.Array[1].AsInt()
		if !ok1 || !ok2 {
			continue
		}
		r := cluster.Range{Start: uint16(start), End: uint16(end)}
		if addr, ok := nodeAddr(entry.Array[2]); ok {
			r.Primary = addr
		}
		for _, rep := range entry.Array[3:] {
			if addr, ok := nodeAddr(rep); ok {
				r.Replicas = append(r.Replicas, addr)
			}
		}
		ranges = append(ranges, r)
	}
	return ranges, nil
}

func nodeAddr(v resp.Value) (string, bool) {
	if len(v.Array) < 2 {
		return "", false
	}
	host, ok1 := v.Array[0].AsStr()
	port, ok2 := v.Array[1].AsInt()
	if !ok1 || !ok2 || host == "" {
		return "", false
	}
	return host + ":" + strconv.FormatInt(port, 10), true
}

// targetAddr decides which node address serves args: the primary for
// the key's slot, or — when cfg.ReadFromReplicas and the verb is
// read-only — a replica chosen by slot modulo replica count
// (spec.md §4.7.3).
func (c *Cluster) targetAddr(args [][]byte) (addr string, slot uint16, hasSlot bool, err error) {
	verb := string(args[0])
	key, hasKey := cluster.ExtractKey(args)
	if !hasKey {
		if addr, ok := c.slots.AnyPrimary(); ok {
			return addr, 0, false, nil
		}
		return "", 0, false, rediserr.Newf(rediserr.NoNodeForSlot, "no known cluster node")
	}

	slot = cluster.HashSlot(key)
	rng, ok := c.slots.Lookup(slot)
	if !ok {
		return "", slot, true, rediserr.Newf(rediserr.NoNodeForSlot, "no node owns slot %d", slot)
	}

	if c.cfg.ReadFromReplicas && cluster.IsReadOnly(verb) && len(rng.Replicas) > 0 {
		return rng.Replicas[int(slot)%len(rng.Replicas)], slot, true, nil
	}
	return rng.Primary, slot, true, nil
}

func (c *Cluster) Execute(ctx context.Context, args [][]byte) (resp.Value, error) {
	addr, slot, hasSlot, err := c.targetAddr(args)
	if err != nil {
		return resp.Value{}, err
	}
	return c.executeAt(ctx, addr, slot, hasSlot, args, maxRedirects)
}

// executeAt runs args against addr, following MOVED/ASK/TRYAGAIN up to
// budget redirects. Execute calls this with the full maxRedirects
// budget; Pipeline's per-command redirect fallback calls it with one
// fewer, per spec.md §4.7.3's pipeline-internal retry budget.
func (c *Cluster) executeAt(ctx context.Context, addr string, slot uint16, hasSlot bool, args [][]byte, budget int) (resp.Value, error) {
	asking := false
	for redirects := 0; redirects <= budget; redirects++ {
		p := c.poolFor(addr)
		g, gerr := p.Checkout(ctx)
		if gerr != nil {
			return resp.Value{}, gerr
		}

		if asking {
			if _, err := sendAndReceive(g.Conn(), [][]byte{[]byte("ASKING")}); err != nil {
				g.Discard()
				return resp.Value{}, err
			}
			asking = false
		}

		v, err := sendAndReceive(g.Conn(), args)
		if err != nil {
			g.Discard()
			return resp.Value{}, err
		}

		if !v.IsError() {
			g.Release()
			return v, nil
		}

		se := rediserr.FromServerLine(v.AsErrorMsg())
		g.Release()

		switch se.Kind {
		case rediserr.Moved:
			c.m.IncRedirect("moved")
			if hasSlot {
				c.slots.UpdatePrimary(slot, se.Addr)
			}
			addr = se.Addr
			continue
		case rediserr.Ask:
			c.m.IncRedirect("ask")
			addr = se.Addr
			asking = true
			continue
		case rediserr.TryAgain:
			c.m.IncRedirect("tryagain")
			sleepBackoff(ctx, tryAgainDelay)
			continue
		case rediserr.ClusterDown:
			return resp.Value{}, se
		default:
			return v, nil
		}
	}
	return resp.Value{}, rediserr.Newf(rediserr.RedirectStorm, "exceeded %d redirects", budget)
}

// Pipeline partitions commands by target node and sends each
// partition as one batch on one connection, collecting its replies in
// the partition's order, concurrently across partitions and bounded by
// runtime.WorkerCount (spec.md §4.7.3). A reply carrying MOVED/ASK/
// TRYAGAIN is re-executed individually, with a reduced redirect
// budget, so one redirected command never forces the whole batch onto
// a slower per-command path.
func (c *Cluster) Pipeline(ctx context.Context, commands [][][]byte) ([]resp.Value, error) {
	partitions := make(map[string][]int)
	slots := make([]uint16, len(commands))
	hasSlots := make([]bool, len(commands))
	for i, cmd := range commands {
		addr, slot, hasSlot, err := c.targetAddr(cmd)
		if err != nil {
			return nil, err
		}
		partitions[addr] = append(partitions[addr], i)
		slots[i] = slot
		hasSlots[i] = hasSlot
	}

	out := make([]resp.Value, len(commands))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.WorkerCount())

	for addr, idxs := range partitions {
		addr, idxs := addr, idxs
		g.Go(func() error {
			results, err := c.sendPartition(gctx, addr, idxs, commands, slots, hasSlots)
			if err != nil {
				return err
			}
			mu.Lock()
			for j, i := range idxs {
				out[i] = results[j]
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// sendPartition writes every command in idxs as one pipeline on a
// single checked-out connection to addr, reads back one reply per
// command in order, and re-executes any individually redirected
// command through executeAt with a reduced budget.
func (c *Cluster) sendPartition(ctx context.Context, addr string, idxs []int, commands [][][]byte, slots []uint16, hasSlots []bool) ([]resp.Value, error) {
	p := c.poolFor(addr)
	g, err := p.Checkout(ctx)
	if err != nil {
		return nil, err
	}

	batch := make([][][]byte, len(idxs))
	for j, i := range idxs {
		batch[j] = commands[i]
	}

	replies, err := sendPipelineAndReceive(g.Conn(), batch)
	if err != nil {
		g.Discard()
		return nil, err
	}
	g.Release()

	out := make([]resp.Value, len(idxs))
	for j, i := range idxs {
		v := replies[j]
		if v.IsError() {
			se := rediserr.FromServerLine(v.AsErrorMsg())
			if se.Kind.IsRetryable() {
				retried, rerr := c.executeAt(ctx, addr, slots[i], hasSlots[i], commands[i], maxRedirects-1)
				if rerr != nil {
					return nil, rerr
				}
				out[j] = retried
				continue
			}
		}
		out[j] = v
	}
	return out, nil
}

func (c *Cluster) PoolIdleCount() int {
	total := 0
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.pools {
		total += p.IdleCount()
	}
	return total
}

func (c *Cluster) PoolAvailable() int {
	total := 0
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.pools {
		total += p.Available()
	}
	return total
}

func (c *Cluster) Close() error {
	c.cancel()
	return nil
}
