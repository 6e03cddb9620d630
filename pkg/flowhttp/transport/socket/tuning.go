// Package socket applies client-side TCP tuning to pooled connections:
// TCP_NODELAY, buffer sizing, and OS keepalive parameters. Platform-specific
// options live in tuning_linux.go / tuning_other.go.
//
// Grounded on MiraiMindz-watt/shockwave's pkg/shockwave/socket package,
// trimmed to the client-dial side (no listener/accept tuning, since flowhttp
// never accepts connections).
package socket

import (
	"net"
	"syscall"
)

// Config controls the socket options applied to a freshly dialed client
// connection. Zero value means "leave the OS default in place".
type Config struct {
	NoDelay    bool
	RecvBuffer int
	SendBuffer int
	KeepAlive  bool
}

// DefaultConfig mirrors spec.md's suggested connection defaults: disable
// Nagle (outgoing request bytes should hit the wire immediately) and enable
// OS-level keepalive probing for long-lived pooled sockets.
func DefaultConfig() Config {
	return Config{
		NoDelay:    true,
		RecvBuffer: 256 * 1024,
		SendBuffer: 256 * 1024,
		KeepAlive:  true,
	}
}

// FD extracts the raw file descriptor backing conn, for platform
// diagnostics such as GetTCPInfo. Only a bare *net.TCPConn exposes one
// through SyscallConn; a *tls.Conn or a proxy-tunnel wrapper built on top of
// one returns ok=false.
func FD(conn net.Conn) (fd int, ok bool) {
	tcpConn, isTCP := conn.(*net.TCPConn)
	if !isTCP {
		return 0, false
	}
	rawConn, err := tcpConn.SyscallConn()
	if err != nil {
		return 0, false
	}
	var result int
	if err := rawConn.Control(func(f uintptr) { result = int(f) }); err != nil {
		return 0, false
	}
	return result, true
}

// Apply tunes conn per cfg. Non-TCP connections (e.g. a *tls.Conn at this
// point would already have lost direct fd access, so Apply must run on the
// raw *net.TCPConn before TLS is layered on) are left untouched.
func Apply(conn net.Conn, cfg Config) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}

	rawConn, err := tcpConn.SyscallConn()
	if err != nil {
		return err
	}

	var lastErr error
	err = rawConn.Control(func(fd uintptr) {
		if cfg.NoDelay {
			if serr := syscall.SetsockoptInt(int(fd), syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1); serr != nil {
				lastErr = serr
				return
			}
		}
		if cfg.RecvBuffer > 0 {
			_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_RCVBUF, cfg.RecvBuffer)
		}
		if cfg.SendBuffer > 0 {
			_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_SNDBUF, cfg.SendBuffer)
		}
		if cfg.KeepAlive {
			_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_KEEPALIVE, 1)
		}
		applyPlatformOptions(int(fd), cfg)
	})
	if err != nil {
		return err
	}
	return lastErr
}
