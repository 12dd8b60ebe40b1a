package pool

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/falkordb/rediscore/conn"
)

// startAcceptOnlyServer accepts connections and holds them open,
// without reading or writing, so a real *conn.Conn can be dialed
// against it — conn.Conn.Close() calls through to the underlying
// net.Conn, which must be non-nil.
func startAcceptOnlyServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			t.Cleanup(func() { c.Close() })
		}
	}()
	return ln.Addr().String()
}

// dialCounter counts invocations and hands back a real *conn.Conn
// dialed against an accept-only test server, so Discard/Close exercise
// the actual net.Conn teardown path instead of a nil interface.
type dialCounter struct {
	n    int
	addr string
}

func (d *dialCounter) dial(ctx context.Context) (*conn.Conn, error) {
	d.n++
	return conn.Dial(ctx, d.addr, conn.Options{ConnectTimeout: time.Second})
}

func TestPoolConservation(t *testing.T) {
	d := &dialCounter{addr: startAcceptOnlyServer(t)}
	p := New(Config{Size: 2}, d.dial)

	g1, err := p.Checkout(context.Background())
	require.NoError(t, err)
	g2, err := p.Checkout(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, p.Available())
	assert.LessOrEqual(t, p.Available()+p.IdleCount(), p.Size())

	g1.Release()
	g2.Release()

	assert.Equal(t, 2, p.Available())
	assert.LessOrEqual(t, p.IdleCount(), p.Size())
}

func TestPoolLIFOReuse(t *testing.T) {
	d := &dialCounter{addr: startAcceptOnlyServer(t)}
	p := New(Config{Size: 2}, d.dial)

	g1, err := p.Checkout(context.Background())
	require.NoError(t, err)
	c1 := g1.Conn()
	g1.Release()

	g2, err := p.Checkout(context.Background())
	require.NoError(t, err)
	assert.Same(t, c1, g2.Conn(), "checkout immediately after release must reuse the same connection")
	g2.Release()

	assert.Equal(t, 1, d.n, "second checkout must not have dialed a new connection")
}

func TestPoolCheckoutBlocksWhenFull(t *testing.T) {
	d := &dialCounter{addr: startAcceptOnlyServer(t)}
	p := New(Config{Size: 1}, d.dial)

	g1, err := p.Checkout(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Checkout(ctx)
	assert.Error(t, err, "checkout must block (and time out here) while the pool is fully checked out")

	g1.Release()
}

func TestPoolDiscardDoesNotReturnConnection(t *testing.T) {
	d := &dialCounter{addr: startAcceptOnlyServer(t)}
	p := New(Config{Size: 1}, d.dial)

	g1, err := p.Checkout(context.Background())
	require.NoError(t, err)
	g1.Discard()

	assert.Equal(t, 0, p.IdleCount())
	assert.Equal(t, 1, p.Available())

	_, err = p.Checkout(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, d.n, "discarded connection must not be reused; a fresh dial is required")
}
