// Package transport implements the ConnectionPool layer of spec.md §4.2 on
// top of the generic pool package: dialing, TLS, forward-proxy CONNECT
// tunneling, and peer-closed detection for pooled keep-alive sockets.
//
// Grounded on the *ConnectionPool/*PooledConn design in
// MiraiMindz-watt/shockwave's pkg/shockwave/client/pool.go, adapted from a
// channel-per-host design to sit on top of pool.Pool[T].
package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/flowhttp/pkg/flowhttp/pool"
	"github.com/yourusername/flowhttp/pkg/flowhttp/transport/socket"
)

// Config bounds a Pool the way spec.md's connection-pool config does.
type Config struct {
	MaxPerKey      int
	MaxTotal       int
	ConnectTimeout time.Duration
	KeepAlive      time.Duration // TCP keepalive interval; 0 disables
	Socket         socket.Config
	Logger         zerolog.Logger
}

// DefaultConfig mirrors the conservative defaults of shockwave's
// DefaultPoolConfig, scaled to spec.md's vocabulary.
func DefaultConfig() Config {
	return Config{
		MaxPerKey:      10,
		MaxTotal:       100,
		ConnectTimeout: 10 * time.Second,
		KeepAlive:      30 * time.Second,
		Socket:         socket.DefaultConfig(),
		Logger:         zerolog.Nop(),
	}
}

// Pool hands out pooled *Conn values keyed by scheme/host/port, dialing and
// tearing down sockets as directed by the underlying generic pool.Pool.
type Pool struct {
	cfg     Config
	generic *pool.Pool[*Conn]
	dialer  net.Dialer
}

// New creates a connection Pool with the given bounds.
func New(cfg Config) *Pool {
	p := &Pool{
		cfg: cfg,
		generic: pool.New[*Conn](pool.Config{
			MaxPerKey: cfg.MaxPerKey,
			MaxTotal:  cfg.MaxTotal,
		}),
	}
	p.dialer = net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: cfg.KeepAlive,
	}
	return p
}

// Get acquires a connection for scheme/host/port, reusing an idle one if it
// is still alive, opening a new one if the pool's budget allows, or blocking
// on ctx until a slot frees up. tlsConfig is used (with ServerName defaulted
// to host) when scheme == "https"; proxy, if non-nil, is dialed first and a
// CONNECT tunnel established before TLS is layered on.
func (p *Pool) Get(ctx context.Context, scheme, host, port string, tlsConfig *tls.Config, proxy *url.URL) (*Conn, error) {
	key := pool.Key{Scheme: scheme, Host: host, Port: port}

	for {
		res, waiter, err := p.generic.Get(key)
		if err != nil {
			return nil, err
		}

		switch {
		case res.Idle != nil:
			c := res.Idle.Value
			alive, probeErr := probePeerClosed(c.Conn)
			if probeErr != nil {
				p.cfg.Logger.Debug().Err(probeErr).Str("host", host).Msg("transport: peer-closed probe failed, discarding")
				p.generic.Put(res.Idle, true)
				_ = c.Conn.Close()
				continue
			}
			if !alive {
				ev := p.cfg.Logger.Debug().Str("host", host)
				if info, ok := c.TCPInfo(); ok {
					ev = ev.Uint32("retransmits", info.TotalRetransmit).Uint32("rtt_micros", info.RTTMicros)
				}
				ev.Msg("transport: idle connection was closed by peer, discarding")
				p.generic.Put(res.Idle, true)
				_ = c.Conn.Close()
				continue
			}
			c.mu.Lock()
			c.released = false
			c.mu.Unlock()
			return c, nil

		case res.NeedOpen != nil:
			if res.NeedClose != nil {
				old := res.NeedClose.Value
				go func() { _ = old.Conn.Close() }()
			}
			c, err := p.open(ctx, key, tlsConfig, proxy)
			if err != nil {
				p.generic.Abandon(res.NeedOpen)
				return nil, err
			}
			c.resource = res.NeedOpen
			c.pool = p
			res.NeedOpen.Value = c
			return c, nil

		case waiter != nil:
			got, err := waiter.Wait(ctx)
			if err != nil {
				return nil, err
			}
			if got.Idle != nil {
				c := got.Idle.Value
				alive, probeErr := probePeerClosed(c.Conn)
				if probeErr != nil || !alive {
					p.generic.Put(got.Idle, true)
					_ = c.Conn.Close()
					continue
				}
				c.mu.Lock()
				c.released = false
				c.mu.Unlock()
				return c, nil
			}
			if got.NeedClose != nil {
				old := got.NeedClose.Value
				go func() { _ = old.Conn.Close() }()
			}
			c, err := p.open(ctx, key, tlsConfig, proxy)
			if err != nil {
				p.generic.Abandon(got.NeedOpen)
				return nil, err
			}
			c.resource = got.NeedOpen
			c.pool = p
			got.NeedOpen.Value = c
			return c, nil
		}
	}
}

// Close shuts the pool down. With force=true, all busy connections are also
// closed; outstanding Get callers receive pool.ErrClosed.
func (p *Pool) Close(force bool) {
	toClose, _ := p.generic.Close(force)
	for _, res := range toClose {
		if res.Value != nil && res.Value.Conn != nil {
			_ = res.Value.Conn.Close()
		}
	}
}

// Stats exposes pool occupancy for diagnostics.
func (p *Pool) Stats() pool.Stats { return p.generic.Stats() }

// probePeerClosed performs the non-blocking peer-closed check of spec.md
// §4.2: arm an already-elapsed read deadline and attempt a 1-byte read.
// os.ErrDeadlineExceeded means no data is pending and the peer is presumed
// alive; io.EOF means the peer closed the connection; n>0 is a protocol
// invariant violation (a pooled idle connection must never have unread
// bytes sitting in the kernel buffer).
func probePeerClosed(c net.Conn) (alive bool, err error) {
	if err := c.SetReadDeadline(time.Now()); err != nil {
		return false, err
	}
	defer c.SetReadDeadline(time.Time{})

	var buf [1]byte
	n, rerr := c.Read(buf[:])
	if n > 0 {
		return false, ErrInvariantViolation
	}
	if rerr == nil {
		return false, ErrInvariantViolation
	}
	if errors.Is(rerr, os.ErrDeadlineExceeded) {
		return true, nil
	}
	if errors.Is(rerr, io.EOF) {
		return false, nil
	}
	return false, nil
}

// open dials a new socket for key, optionally tunneling through proxy with
// HTTP CONNECT, then layering TLS when key.Scheme == "https".
func (p *Pool) open(ctx context.Context, key pool.Key, tlsConfig *tls.Config, proxy *url.URL) (*Conn, error) {
	connectCtx := ctx
	if p.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, p.cfg.ConnectTimeout)
		defer cancel()
	}

	dialHost, dialPort := key.Host, key.Port
	if proxy != nil {
		dialHost, dialPort = proxy.Hostname(), proxy.Port()
		if dialPort == "" {
			dialPort = "80"
		}
	}

	raw, err := p.dialer.DialContext(connectCtx, "tcp", net.JoinHostPort(dialHost, dialPort))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrConnectTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	if err := socket.Apply(raw, p.cfg.Socket); err != nil {
		p.cfg.Logger.Debug().Err(err).Msg("transport: socket tuning failed, continuing with OS defaults")
	}

	var netConn net.Conn = raw
	if proxy != nil {
		netConn, err = connectTunnel(connectCtx, raw, key.Host, key.Port, proxy)
		if err != nil {
			_ = raw.Close()
			return nil, err
		}
	}

	if key.Scheme == "https" {
		cfg := tlsConfig
		if cfg == nil {
			cfg = &tls.Config{}
		}
		if cfg.ServerName == "" {
			cfg = cfg.Clone()
			cfg.ServerName = key.Host
		}
		tlsConn := tls.Client(netConn, cfg)
		if err := tlsConn.HandshakeContext(connectCtx); err != nil {
			_ = netConn.Close()
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, ErrConnectTimeout
			}
			return nil, fmt.Errorf("%w: tls handshake: %v", ErrConnectionFailed, err)
		}
		netConn = tlsConn
	}

	return &Conn{Conn: netConn, key: key, proxy: proxy}, nil
}

// connectTunnel issues an HTTP CONNECT request over raw to establish a
// tunnel to host:port, authenticating with proxy's userinfo if present.
// The bufio.Reader used to parse the CONNECT response may have buffered
// bytes belonging to the tunneled stream (the proxy's reply and the first
// bytes of the origin server's data can arrive in the same TCP segment);
// bufReaderConn preserves those bytes for the subsequent read instead of
// discarding them.
func connectTunnel(ctx context.Context, raw net.Conn, host, port string, proxy *url.URL) (net.Conn, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = raw.SetDeadline(dl)
		defer raw.SetDeadline(time.Time{})
	}

	target := net.JoinHostPort(host, port)
	req := "CONNECT " + target + " HTTP/1.1\r\nHost: " + target + "\r\n"
	if proxy.User != nil {
		auth := base64.StdEncoding.EncodeToString([]byte(proxy.User.String()))
		req += "Proxy-Authorization: Basic " + auth + "\r\n"
	}
	req += "\r\n"

	if _, err := io.WriteString(raw, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProxy, err)
	}

	br := newLineReader(raw)
	status, err := br.readLine()
	if err != nil {
		return nil, fmt.Errorf("%w: reading status line: %v", ErrProxy, err)
	}
	if len(status) < 12 || status[9] != '2' {
		return nil, fmt.Errorf("%w: proxy refused tunnel: %s", ErrProxy, status)
	}
	for {
		line, err := br.readLine()
		if err != nil {
			return nil, fmt.Errorf("%w: reading headers: %v", ErrProxy, err)
		}
		if line == "" {
			break
		}
	}

	if br.buffered() == 0 {
		return raw, nil
	}
	return &bufReaderConn{Conn: raw, leftover: br.drain()}, nil
}

// bufReaderConn replays leftover bytes observed while parsing the CONNECT
// response before falling through to the underlying connection's Read.
type bufReaderConn struct {
	net.Conn
	leftover []byte
}

func (b *bufReaderConn) Read(p []byte) (int, error) {
	if len(b.leftover) > 0 {
		n := copy(p, b.leftover)
		b.leftover = b.leftover[n:]
		return n, nil
	}
	return b.Conn.Read(p)
}
