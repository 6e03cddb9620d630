package transport

import (
	"net"
	"net/url"
	"sync"

	"github.com/yourusername/flowhttp/pkg/flowhttp/pool"
	"github.com/yourusername/flowhttp/pkg/flowhttp/transport/socket"
)

// Conn owns a live socket plus the bookkeeping the ConnectionPool needs to
// reuse or destroy it. Exactly one of {busy, released, closed} holds at any
// time; after released or closed, no further I/O may be issued by the
// caller (spec.md §3 "Connection" invariant).
type Conn struct {
	net.Conn

	key      pool.Key
	proxy    *url.URL
	resource *pool.Resource[*Conn]
	pool     *Pool

	mu       sync.Mutex
	released bool
	closed   bool

	requests int // request counter; nothing in this package updates or reads it
}

// Key returns the pool key (scheme, host, port) this connection was opened for.
func (c *Conn) Key() pool.Key { return c.key }

// Proxy returns the forward proxy URL used to open this connection, if any.
func (c *Conn) Proxy() *url.URL { return c.proxy }

// Closed reports whether Close has taken effect on this connection.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Released reports whether Release has taken effect on this connection.
func (c *Conn) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

// TCPInfo reports Linux TCP_INFO diagnostics (RTT estimate, retransmit
// count) for the underlying socket. ok is false for a TLS or
// proxy-tunneled connection (no bare *net.TCPConn to read a file descriptor
// from) and on non-Linux platforms, where socket.GetTCPInfo is a no-op.
func (c *Conn) TCPInfo() (info socket.TCPInfo, ok bool) {
	fd, ok := socket.FD(c.Conn)
	if !ok {
		return socket.TCPInfo{}, false
	}
	info, err := socket.GetTCPInfo(fd)
	if err != nil {
		return socket.TCPInfo{}, false
	}
	return info, true
}

// Release returns the connection to the pool's idle set for reuse
// (spec.md §4.2 "keep-alive" disposal). Idempotent: a second call, or a
// call after Close, is a no-op.
func (c *Conn) Release() error {
	c.mu.Lock()
	if c.closed || c.released {
		c.mu.Unlock()
		return nil
	}
	c.released = true
	c.mu.Unlock()

	put := c.pool.generic.Put(c.resource, false)
	if put.NeedClose != nil {
		return c.Conn.Close()
	}
	return nil
}

// Close destroys the connection instead of pooling it (spec.md §4.2
// "Connection: close" disposal, and the cancellation/error paths of §5/§7).
// Idempotent, and a no-op if the connection was already Released (the
// already-pooled socket must not be double-freed or closed out from under
// a new owner).
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if c.released {
		c.closed = true
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.released = true
	c.mu.Unlock()

	c.pool.generic.Put(c.resource, true)
	return c.Conn.Close()
}
