// Package conn wraps a single TCP connection to a Redis-compatible
// server with a growable read buffer, idle/read timeouts, and the
// AUTH/SELECT/HELLO handshake run once at checkout (spec.md §4.3).
package conn

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/falkordb/rediscore/resp"
)

// ErrClosed is returned by operations attempted on a connection that
// has already been torn down.
var ErrClosed = stderrors.New("conn: connection closed")

// ErrFrameTooLarge signals that a frame would exceed MaxBufferSize.
var ErrFrameTooLarge = stderrors.New("conn: frame exceeds configured max buffer size")

// Options configures a Conn at dial time. Zero values take the
// defaults listed in spec.md §6.
type Options struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	MaxBufferSize  int

	Username string
	Password string
	DB       int

	// ProtocolVersion selects RESP2 (2, default) or RESP3 (3) via HELLO
	// during Init — the supplemented HELLO negotiation from SPEC_FULL.md §9.
	ProtocolVersion int

	Logger *zap.Logger
}

const (
	defaultConnectTimeout = 5 * time.Second
	defaultReadTimeout    = 30 * time.Second
	defaultMaxBufferSize  = 512 << 20 // 512 MiB
	initialBufferSize     = 4096
)

func (o *Options) withDefaults() Options {
	out := *o
	if out.ConnectTimeout == 0 {
		out.ConnectTimeout = defaultConnectTimeout
	}
	if out.ReadTimeout == 0 {
		out.ReadTimeout = defaultReadTimeout
	}
	if out.MaxBufferSize == 0 {
		out.MaxBufferSize = defaultMaxBufferSize
	}
	if out.ProtocolVersion == 0 {
		out.ProtocolVersion = 2
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	return out
}

// Conn is a single TCP connection plus its growable receive buffer.
// It is not safe for concurrent use — the pool guarantees exclusive
// checkout.
type Conn struct {
	netConn net.Conn
	opts    Options

	buf         []byte
	start, fill int // unconsumed data lives in buf[start:fill]

	lastUsed time.Time
	addr     string
}

// Dial opens a TCP connection to addr, disables Nagle's algorithm, and
// runs the AUTH/SELECT/HELLO handshake per spec.md §4.3.
func Dial(ctx context.Context, addr string, opts Options) (*Conn, error) {
	o := opts.withDefaults()

	dialer := net.Dialer{Timeout: o.ConnectTimeout}
	nc, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "conn: dial %s", addr)
	}
	if tc, ok := nc.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	c := &Conn{
		netConn:  nc,
		opts:     o,
		buf:      make([]byte, initialBufferSize),
		lastUsed: time.Now(),
		addr:     addr,
	}

	if err := c.init(); err != nil {
		nc.Close()
		return nil, err
	}
	o.Logger.Debug("conn: dialed", zap.String("addr", addr))
	return c, nil
}

// Addr returns the remote address this connection was dialed to.
func (c *Conn) Addr() string { return c.addr }

// LastUsed returns the timestamp of the most recently completed send
// or receive on this connection.
func (c *Conn) LastUsed() time.Time { return c.lastUsed }

// IdleFor reports how long this connection has sat unused.
func (c *Conn) IdleFor() time.Duration { return time.Since(c.lastUsed) }

// Close tears down the underlying socket.
func (c *Conn) Close() error {
	return c.netConn.Close()
}

// init performs HELLO 3 (carrying AUTH when a password is configured)
// when RESP3 was requested, otherwise AUTH [username] password when a
// password is configured; then SELECT db when db != 0 (spec.md §4.3
// and §6).
func (c *Conn) init() error {
	if c.opts.ProtocolVersion == 3 {
		args := [][]byte{[]byte("HELLO"), []byte("3")}
		if c.opts.Password != "" {
			args = append(args, []byte("AUTH"))
			if c.opts.Username != "" {
				args = append(args, []byte(c.opts.Username))
			} else {
				args = append(args, []byte("default"))
			}
			args = append(args, []byte(c.opts.Password))
		}
		if err := c.sendCommand(args); err != nil {
			return err
		}
		if _, err := c.ReadResponse(); err != nil {
			return errors.Wrap(err, "conn: HELLO failed")
		}
	} else if c.opts.Password != "" {
		args := [][]byte{[]byte("AUTH")}
		if c.opts.Username != "" {
			args = append(args, []byte(c.opts.Username))
		}
		args = append(args, []byte(c.opts.Password))
		if err := c.sendCommand(args); err != nil {
			return err
		}
		if err := c.expectOK(); err != nil {
			return errors.Wrap(err, "conn: AUTH failed")
		}
	}

	if c.opts.DB != 0 {
		args := [][]byte{[]byte("SELECT"), []byte(fmt.Sprintf("%d", c.opts.DB))}
		if err := c.sendCommand(args); err != nil {
			return err
		}
		if err := c.expectOK(); err != nil {
			return errors.Wrap(err, "conn: SELECT failed")
		}
	}
	return nil
}

func (c *Conn) sendCommand(args [][]byte) error {
	return c.Send(resp.EncodeCommand(args))
}

func (c *Conn) expectOK() error {
	v, err := c.ReadResponse()
	if err != nil {
		return err
	}
	if v.IsError() {
		return fmt.Errorf("conn: %s", v.AsErrorMsg())
	}
	return nil
}

// Ping issues PING and expects a PONG simple string.
func (c *Conn) Ping() error {
	if err := c.sendCommand([][]byte{[]byte("PING")}); err != nil {
		return err
	}
	v, err := c.ReadResponse()
	if err != nil {
		return err
	}
	if s, ok := v.AsStr(); !ok || s != "PONG" {
		return fmt.Errorf("conn: unexpected PING reply: %s", v)
	}
	return nil
}

// Send write-alls bytes to the socket. An I/O failure makes the
// connection unusable; the caller must discard it.
func (c *Conn) Send(b []byte) error {
	if c.netConn == nil {
		return ErrClosed
	}
	_, err := writeAll(c.netConn, b)
	if err != nil {
		return errors.Wrap(err, "conn: send")
	}
	c.lastUsed = time.Now()
	return nil
}

func writeAll(w io.Writer, b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := w.Write(b[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ReadResponse parses one frame from the connection, growing the
// internal buffer (doubling, capped at MaxBufferSize) and performing
// socket reads as needed until a full frame is available.
func (c *Conn) ReadResponse() (resp.Value, error) {
	for {
		v, n, err := resp.Parse(c.buf[c.start:c.fill])
		if err == nil {
			c.start += n
			c.lastUsed = time.Now()
			return v, nil
		}
		if !errors.Is(err, resp.ErrIncomplete) {
			return resp.Value{}, err
		}
		if err := c.fillMore(); err != nil {
			return resp.Value{}, err
		}
	}
}

// ReadRawFrame returns the raw bytes of exactly one frame, without
// building a Value tree, for the fused parser to walk directly. The
// returned slice aliases the connection's internal buffer and is only
// valid until the next Read* call — callers must finish decoding it
// (or copy it) before issuing another read.
func (c *Conn) ReadRawFrame() ([]byte, error) {
	for {
		n, err := resp.ScanFrameLength(c.buf[c.start:c.fill])
		if err == nil {
			frame := c.buf[c.start : c.start+n]
			c.start += n
			c.lastUsed = time.Now()
			return frame, nil
		}
		if !errors.Is(err, resp.ErrIncomplete) {
			return nil, err
		}
		if err := c.fillMore(); err != nil {
			return nil, err
		}
	}
}

// fillMore grows the buffer if needed and performs one socket read,
// appending to the unconsumed tail. The buffer never shrinks within a
// call; a frame larger than MaxBufferSize is rejected.
func (c *Conn) fillMore() error {
	// compact: drop already-consumed bytes at the front. Values returned
	// by earlier reads may alias the consumed region, so the unconsumed
	// tail moves into a fresh buffer instead of being copied over them.
	if c.start > 0 {
		fresh := make([]byte, len(c.buf))
		c.fill = copy(fresh, c.buf[c.start:c.fill])
		c.buf = fresh
		c.start = 0
	}

	if c.fill == len(c.buf) {
		if len(c.buf) >= c.opts.MaxBufferSize {
			return ErrFrameTooLarge
		}
		newSize := len(c.buf) * 2
		if newSize > c.opts.MaxBufferSize {
			newSize = c.opts.MaxBufferSize
		}
		grown := make([]byte, newSize)
		copy(grown, c.buf[:c.fill])
		c.buf = grown
	}

	if c.opts.ReadTimeout > 0 {
		c.netConn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	}
	n, err := c.netConn.Read(c.buf[c.fill:])
	if n == 0 {
		if err == nil || err == io.EOF {
			return ErrClosed
		}
		return errors.Wrap(err, "conn: read")
	}
	c.fill += n
	if err != nil && err != io.EOF {
		return errors.Wrap(err, "conn: read")
	}
	return nil
}
