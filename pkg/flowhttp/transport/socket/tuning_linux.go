//go:build linux

package socket

import (
	"golang.org/x/sys/unix"
)

// applyPlatformOptions sets Linux keepalive timing and TCP_USER_TIMEOUT so a
// half-open peer is detected well before the pool's peer-closed probe would
// otherwise notice on next reuse.
func applyPlatformOptions(fd int, cfg Config) {
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_USER_TIMEOUT, 10_000)

	if cfg.KeepAlive {
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, 60)
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, 10)
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPCNT, 3)
	}
}

// TCPInfo exposes the subset of Linux's tcp_info struct useful for pool
// diagnostics: current RTT estimate and retransmit count.
type TCPInfo struct {
	RTTMicros       uint32
	RTTVarMicros    uint32
	TotalRetransmit uint32
}

// GetTCPInfo reads TCP_INFO for fd via golang.org/x/sys/unix, which exposes
// the getsockopt(2) struct layout without requiring unsafe in caller code
// (shockwave's own tuning_linux.go left this as a stub noting "In
// production, you'd use golang.org/x/sys/unix for proper TCPInfo access").
func GetTCPInfo(fd int) (TCPInfo, error) {
	info, err := unix.GetsockoptTCPInfo(fd, unix.IPPROTO_TCP, unix.TCP_INFO)
	if err != nil {
		return TCPInfo{}, err
	}
	return TCPInfo{
		RTTMicros:       info.Rtt,
		RTTVarMicros:    info.Rttvar,
		TotalRetransmit: info.Total_retrans,
	}, nil
}
