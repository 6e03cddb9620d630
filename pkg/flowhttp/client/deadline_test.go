package client

import (
	"context"
	"io"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestReadTimeoutAppliesPerReadNotEndToEnd is the regression test for the
// bug where a single absolute deadline, armed once before the request was
// even written, treated the whole connect-write-parse-drain sequence
// (including however long the caller waits before consuming a streamed
// body) as one budget. The server here writes the full response
// immediately, so the bytes are already sitting in the kernel's receive
// buffer by the time the test simulates a slow consumer sleeping past the
// read timeout before calling Stream. Under the old end-to-end deadline
// this read would fail (the deadline, armed at send time, has already
// elapsed); under a correct per-read deadline it succeeds immediately
// because the data is already available when the read actually happens.
func TestReadTimeoutAppliesPerReadNotEndToEnd(t *testing.T) {
	addr := rawServer(t, func(c net.Conn) {
		defer c.Close()
		readRequestHead(t, c)
		_, _ = io.WriteString(c, "HTTP/1.1 200 OK\r\nConnection: close\r\n\r\nbody-data")
	})

	s := newTestSession(t)
	s.Stream = true
	s.Timeout = NewTimeout(100 * time.Millisecond)

	u, _ := url.Parse("http://" + addr + "/slow-consumer")
	resp, err := s.Send(context.Background(), NewPreparedRequest("GET", u), SendOptions{})
	require.NoError(t, err)

	time.Sleep(250 * time.Millisecond)

	var total []byte
	for c := range resp.Stream(16) {
		require.NoError(t, c.Err)
		total = append(total, c.Data...)
	}
	require.Equal(t, "body-data", string(total))
}

// TestReadTimeoutFiresOnStalledRead confirms a read that genuinely never
// completes within the per-read budget surfaces ErrReadTimeout rather than
// hanging or leaking a raw net.Error.
func TestReadTimeoutFiresOnStalledRead(t *testing.T) {
	addr := rawServer(t, func(c net.Conn) {
		defer c.Close()
		readRequestHead(t, c)
		// Never responds.
		time.Sleep(2 * time.Second)
	})

	s := newTestSession(t)
	s.Timeout = NewTimeout(100 * time.Millisecond)

	u, _ := url.Parse("http://" + addr + "/stalled")
	_, err := s.Send(context.Background(), NewPreparedRequest("GET", u), SendOptions{})
	require.ErrorIs(t, err, ErrReadTimeout)
}
