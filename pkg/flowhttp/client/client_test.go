package client

import (
	"context"
	"io"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yourusername/flowhttp/pkg/flowhttp/transport"
)

// rawServer starts a listener that serves handler's raw bytes for each
// accepted connection, reading and discarding the request line/headers.
// Tests drive this directly (rather than net/http/httptest) so the
// exact wire bytes spec.md's scenarios describe are under test control.
func rawServer(t *testing.T, handler func(conn net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go handler(c)
		}
	}()
	return ln.Addr().String()
}

func readRequestHead(t *testing.T, c net.Conn) string {
	t.Helper()
	buf := make([]byte, 4096)
	var total []byte
	for {
		n, err := c.Read(buf)
		total = append(total, buf[:n]...)
		if len(total) >= 4 && containsDoubleCRLF(total) {
			break
		}
		if err != nil {
			break
		}
	}
	return string(total)
}

func containsDoubleCRLF(b []byte) bool {
	for i := 0; i+3 < len(b); i++ {
		if b[i] == '\r' && b[i+1] == '\n' && b[i+2] == '\r' && b[i+3] == '\n' {
			return true
		}
	}
	return false
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s := NewSession(transport.Config{MaxPerKey: 4, MaxTotal: 8, ConnectTimeout: 2 * time.Second})
	t.Cleanup(s.Close)
	return s
}

func TestGetReturns200AndKeepsAliveConnection(t *testing.T) {
	addr := rawServer(t, func(c net.Conn) {
		defer c.Close()
		readRequestHead(t, c)
		_, _ = io.WriteString(c, "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: 13\r\n\r\n{\"ok\":true}\r\n")
	})

	s := newTestSession(t)
	u, _ := url.Parse("http://" + addr + "/get")
	resp, err := s.Send(context.Background(), NewPreparedRequest("GET", u), SendOptions{})
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	body, err := resp.Content()
	require.NoError(t, err)
	require.Contains(t, string(body), "ok")

	// Content-Length framing without Connection: close, so buffering the
	// body returned the connection to the pool's idle set.
	require.Equal(t, 1, s.Adapters["http"].cfg.Pool.Stats().NumIdle)
}

func TestPostSendsExactContentLength(t *testing.T) {
	var gotHead string
	done := make(chan struct{})
	addr := rawServer(t, func(c net.Conn) {
		defer c.Close()
		gotHead = readRequestHead(t, c)
		_, _ = io.WriteString(c, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok")
		close(done)
	})

	s := newTestSession(t)
	u, _ := url.Parse("http://" + addr + "/post")
	payload := []byte(`{"hello":"world"}`)
	req := NewPreparedRequest("POST", u)
	req.Body = NewBytesBody(payload)

	resp, err := s.Send(context.Background(), req, SendOptions{})
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	<-done
	require.Contains(t, gotHead, "Content-Length: 17\r\n")
	require.Contains(t, gotHead, "POST /post HTTP/1.1\r\n")
}

func TestStreamingResponseClosesConnectionOnConnectionClose(t *testing.T) {
	addr := rawServer(t, func(c net.Conn) {
		defer c.Close()
		readRequestHead(t, c)
		_, _ = io.WriteString(c, "HTTP/1.1 200 OK\r\nConnection: close\r\n\r\nchunk-one")
	})

	s := newTestSession(t)
	s.Stream = true
	u, _ := url.Parse("http://" + addr + "/stream/1")
	resp, err := s.Send(context.Background(), NewPreparedRequest("GET", u), SendOptions{})
	require.NoError(t, err)
	conn := resp.conn
	require.NotNil(t, conn)

	var total []byte
	for c := range resp.Stream(16) {
		require.NoError(t, c.Err)
		total = append(total, c.Data...)
	}
	require.Equal(t, "chunk-one", string(total))
	require.True(t, conn.Closed())
}

func TestRedirectFollowsUpToMaxThenSucceeds(t *testing.T) {
	var addr string
	addr = rawServer(t, func(c net.Conn) {
		defer c.Close()
		head := readRequestHead(t, c)
		switch {
		case contains(head, "/redirect/3"):
			_, _ = io.WriteString(c, "HTTP/1.1 302 Found\r\nLocation: /redirect/2\r\nContent-Length: 0\r\n\r\n")
		case contains(head, "/redirect/2"):
			_, _ = io.WriteString(c, "HTTP/1.1 302 Found\r\nLocation: /redirect/1\r\nContent-Length: 0\r\n\r\n")
		case contains(head, "/redirect/1"):
			_, _ = io.WriteString(c, "HTTP/1.1 302 Found\r\nLocation: /get\r\nContent-Length: 0\r\n\r\n")
		default:
			_, _ = io.WriteString(c, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok")
		}
	})

	s := newTestSession(t)
	s.MaxRedirects = 3
	u, _ := url.Parse("http://" + addr + "/redirect/3")
	resp, err := s.Send(context.Background(), NewPreparedRequest("GET", u), SendOptions{})
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Len(t, resp.History, 3)
}

func TestRedirectExceedingMaxReturnsTooManyRedirects(t *testing.T) {
	addr := rawServer(t, func(c net.Conn) {
		defer c.Close()
		readRequestHead(t, c)
		_, _ = io.WriteString(c, "HTTP/1.1 302 Found\r\nLocation: /next\r\nContent-Length: 0\r\n\r\n")
	})

	s := newTestSession(t)
	s.MaxRedirects = 3
	u, _ := url.Parse("http://" + addr + "/redirect/4")
	_, err := s.Send(context.Background(), NewPreparedRequest("GET", u), SendOptions{})
	require.Error(t, err)

	var tmr *TooManyRedirectsError
	require.ErrorAs(t, err, &tmr)
	require.Len(t, tmr.History, 3)
}

func TestRedirect303DowngradesToGet(t *testing.T) {
	var secondHead string
	hit := 0
	addr := rawServer(t, func(c net.Conn) {
		defer c.Close()
		head := readRequestHead(t, c)
		hit++
		if hit == 1 {
			_, _ = io.WriteString(c, "HTTP/1.1 303 See Other\r\nLocation: /done\r\nContent-Length: 0\r\n\r\n")
			return
		}
		secondHead = head
		_, _ = io.WriteString(c, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok")
	})

	s := newTestSession(t)
	u, _ := url.Parse("http://" + addr + "/form")
	req := NewPreparedRequest("POST", u)
	req.Body = NewBytesBody([]byte("a=1"))

	resp, err := s.Send(context.Background(), req, SendOptions{})
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Contains(t, secondHead, "GET /done HTTP/1.1\r\n")
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
