package client

import (
	"bufio"
	"errors"
	"io"
	"net/url"
	"time"

	"github.com/valyala/bytebufferpool"

	"github.com/yourusername/flowhttp/pkg/flowhttp/encoding"
	"github.com/yourusername/flowhttp/pkg/flowhttp/http1"
	"github.com/yourusername/flowhttp/pkg/flowhttp/transport"
)

// Response is the public result of a send: status, headers, the resolved
// URL, timing, and redirect history, plus a body that may be consumed at
// most once either eagerly (Content) or lazily (Stream/Lines).
//
// Grounded on shockwave's client.go disposal pattern (its
// responseBodyReader wrapper drains and returns the connection on Close);
// adapted here into dispose so that both the buffered and streaming
// consumption paths release/close through the same code.
type Response struct {
	StatusCode int
	Status     string
	Proto      string
	Header     *http1.Header
	Trailer    *http1.Header
	URL        *url.URL
	Encoding   string // Content-Encoding token that was applied, if any
	Elapsed    time.Duration
	History    []*Response

	keepAlive bool
	conn      *transport.Conn
	body      io.ReadCloser

	contentConsumed bool
	isBuffered      bool
	buffered        []byte
	bufferErr       error
	closed          bool
}

// newResponse builds the high-level Response from a parsed wire response,
// wiring up content-decoding and connection disposal.
func newResponse(wire *http1.Response, reqURL *url.URL, conn *transport.Conn) (*Response, error) {
	r := &Response{
		StatusCode: wire.StatusCode,
		Status:     wire.Status,
		Proto:      wire.Proto,
		Header:     wire.Header,
		Trailer:    wire.Trailer,
		URL:        reqURL,
		keepAlive:  !wire.Close && (wire.Chunked || wire.ContentLength >= 0),
		conn:       conn,
	}

	body := wire.Body
	if ce := wire.Header.Get("Content-Encoding"); ce != "" {
		dec, err := encoding.NewDecoder(ce, bufio.NewReader(body))
		if err != nil {
			_ = body.Close()
			_ = conn.Close()
			return nil, &ContentDecodingError{Err: err}
		}
		r.Encoding = ce
		body = &decodedBody{dec: dec, inner: body}
	}
	r.body = body
	return r, nil
}

// decodedBody closes both the decoder and the underlying wire body.
type decodedBody struct {
	dec   io.ReadCloser
	inner io.ReadCloser
}

func (d *decodedBody) Read(p []byte) (int, error) {
	n, err := d.dec.Read(p)
	if err != nil && err != io.EOF {
		if de, ok := err.(*encoding.DecodeError); ok {
			return n, &ContentDecodingError{Err: de}
		}
	}
	return n, err
}

func (d *decodedBody) Close() error {
	_ = d.dec.Close()
	return d.inner.Close()
}

// dispose releases the connection to the pool (keep-alive) or closes it,
// exactly once. Safe to call multiple times.
func (r *Response) dispose() {
	if r.conn == nil {
		return
	}
	if r.keepAlive {
		_ = r.conn.Release()
	} else {
		_ = r.conn.Close()
	}
	r.conn = nil
}

// buffer fully drains the body into memory, then disposes the connection
// (closing it if the drain failed). Called by the adapter for non-streaming
// sends.
func (r *Response) buffer(chunkSize int) {
	if r.contentConsumed {
		return
	}
	r.contentConsumed = true
	r.isBuffered = true
	defer func() {
		_ = r.body.Close()
		r.dispose()
	}()

	if chunkSize <= 0 {
		chunkSize = 32 * 1024
	}

	// bytebufferpool recycles the growable accumulation buffer across
	// requests instead of letting each buffered response allocate and
	// discard its own, sourced from the fasthttp benchmark competitor's
	// own dependency stack (valyala/fasthttp and bytebufferpool ship from
	// the same author and are commonly paired).
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)

	tmp := make([]byte, chunkSize)
	for {
		n, err := r.body.Read(tmp)
		if n > 0 {
			_, _ = bb.Write(tmp[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			r.bufferErr = wrapBodyError(err)
			r.keepAlive = false
			break
		}
	}
	r.buffered = append([]byte(nil), bb.B...)
}

// Content returns the fully buffered body. If the response was produced
// with streaming requested, the body was never buffered and
// ErrContentNotBuffered is returned (spec.md §7.5's RuntimeError case).
func (r *Response) Content() ([]byte, error) {
	if !r.isBuffered {
		return nil, ErrContentNotBuffered
	}
	return r.buffered, r.bufferErr
}

// Chunk is one piece of a streamed body delivered by Stream.
type Chunk struct {
	Data []byte
	Err  error
}

// Stream returns a channel of body chunks of at most chunkSize bytes,
// closing the channel (and disposing the connection) once the body is
// fully consumed or an error occurs. Calling Stream more than once, or
// after the body has already been buffered, yields a single
// ErrStreamConsumed chunk.
//
// This is the Go-idiomatic analogue of spec.md §6's async iter_content:
// consumption is driven by ranging over the channel rather than awaiting
// a generator, and the same single-consumer, non-restartable contract
// applies.
func (r *Response) Stream(chunkSize int) <-chan Chunk {
	out := make(chan Chunk)
	if r.contentConsumed {
		go func() {
			out <- Chunk{Err: ErrStreamConsumed}
			close(out)
		}()
		return out
	}
	r.contentConsumed = true

	if chunkSize <= 0 {
		chunkSize = 32 * 1024
	}
	go func() {
		defer close(out)
		defer func() {
			_ = r.body.Close()
			r.dispose()
		}()
		buf := make([]byte, chunkSize)
		for {
			n, err := r.body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				out <- Chunk{Data: chunk}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				out <- Chunk{Err: wrapBodyError(err)}
				return
			}
		}
	}()
	return out
}

// Lines streams the body split on '\n', stripping a trailing '\r', via the
// same single-consumer channel contract as Stream.
func (r *Response) Lines() <-chan Chunk {
	raw := r.Stream(4096)
	out := make(chan Chunk)
	go func() {
		defer close(out)
		var carry []byte
		for c := range raw {
			if c.Err != nil {
				out <- c
				return
			}
			carry = append(carry, c.Data...)
			for {
				idx := indexByte(carry, '\n')
				if idx < 0 {
					break
				}
				line := carry[:idx]
				if len(line) > 0 && line[len(line)-1] == '\r' {
					line = line[:len(line)-1]
				}
				cp := make([]byte, len(line))
				copy(cp, line)
				out <- Chunk{Data: cp}
				carry = carry[idx+1:]
			}
		}
		if len(carry) > 0 {
			out <- Chunk{Data: carry}
		}
	}()
	return out
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

func wrapBodyError(err error) error {
	if errors.Is(err, ErrReadTimeout) {
		return ErrReadTimeout
	}
	if _, ok := err.(*http1.ProtocolError); ok {
		return &ChunkedEncodingError{Err: err}
	}
	if cd, ok := err.(*ContentDecodingError); ok {
		return cd
	}
	return err
}

// Close closes the body (if not fully consumed) and disposes the
// connection by closing it rather than releasing it — an unconsumed
// streamed body must not return a half-read socket to the idle pool
// (spec.md §8's boundary behavior).
func (r *Response) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	// buffer and Stream dispose of the connection once the body is fully
	// drained, so a connection still held here belongs to a body that was
	// not fully consumed.
	if r.conn != nil {
		r.keepAlive = false
	}
	var err error
	if r.body != nil {
		err = r.body.Close()
	}
	r.dispose()
	return err
}

// Use runs fn with the response and guarantees Close is called on return,
// the Go analogue of spec.md §6's scoped acquisition ("async with").
func (r *Response) Use(fn func(*Response) error) error {
	defer r.Close()
	return fn(r)
}
