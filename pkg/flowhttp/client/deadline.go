package client

import (
	"errors"
	"net"
	"os"
	"time"
)

// deadlineReader arms a fresh read deadline on conn immediately before each
// Read, rather than the caller setting one absolute deadline up front.
// spec.md §5 is explicit that the read timeout applies "to each individual
// socket read while parsing (not end-to-end)", and §4.4 requires every
// socket read to be wrapped by timeout_after(read_timeout); a single
// SetDeadline call before the first read would instead budget the entire
// connect-write-parse-drain sequence, including however long a caller
// waits before consuming a streamed body.
type deadlineReader struct {
	conn    net.Conn
	timeout time.Duration
}

func newDeadlineReader(conn net.Conn, timeout time.Duration) *deadlineReader {
	return &deadlineReader{conn: conn, timeout: timeout}
}

func (d *deadlineReader) Read(p []byte) (int, error) {
	if d.timeout > 0 {
		if err := d.conn.SetReadDeadline(time.Now().Add(d.timeout)); err != nil {
			return 0, err
		}
	}
	n, err := d.conn.Read(p)
	if err != nil && isReadTimeout(err) {
		return n, ErrReadTimeout
	}
	return n, err
}

func isReadTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
