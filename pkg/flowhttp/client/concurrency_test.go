package client

import (
	"context"
	"io"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// TestConcurrentRequestsShareAndCapPool drives many concurrent requests at
// a session whose pool caps per-key connections below the request count,
// exercising the waiter queue (pool.Waiter) from the client's side rather
// than the pool package's own unit tests. Grounded on the errgroup fan-out
// pattern used for harness goroutines throughout the pack.
func TestConcurrentRequestsShareAndCapPool(t *testing.T) {
	addr := rawServer(t, func(c net.Conn) {
		defer c.Close()
		readRequestHead(t, c)
		_, _ = io.WriteString(c, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok")
	})

	s := newTestSession(t)
	u, _ := url.Parse("http://" + addr + "/concurrent")

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			resp, err := s.Send(context.Background(), NewPreparedRequest("GET", u), SendOptions{})
			if err != nil {
				return err
			}
			body, err := resp.Content()
			if err != nil {
				return err
			}
			if string(body) != "ok" {
				return errUnexpectedBody
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

var errUnexpectedBody = &unexpectedBodyError{}

type unexpectedBodyError struct{}

func (*unexpectedBodyError) Error() string { return "unexpected response body" }
