package client

import (
	"bytes"
	"io"

	"github.com/yourusername/flowhttp/pkg/flowhttp/http1"
)

// Body is the tagged-variant request body spec.md §9 calls for: bytes,
// file-like (length-known stream), or multipart, unified behind one
// interface so the adapter and redirect driver don't switch on concrete
// type.
type Body interface {
	// ContentLength returns the exact byte length, or -1 if unknown (in
	// which case the adapter falls back to chunked transfer encoding).
	ContentLength() int64
	// Reader returns a fresh (or continued) io.Reader over the body bytes.
	Reader() io.Reader
	// Rewindable reports whether Rewind can reset the body to its start,
	// which the redirect driver requires before replaying a request whose
	// method/body survive a redirect.
	Rewindable() bool
	// Rewind resets the body to its start. Returns UnrewindableBodyError-
	// wrapped failure if Rewindable() is false.
	Rewind() error
}

// BytesBody is an in-memory body: always rewindable since the bytes are
// held directly.
type BytesBody struct {
	data []byte
	r    *bytes.Reader
}

// NewBytesBody wraps a fixed byte slice as a rewindable Body.
func NewBytesBody(data []byte) *BytesBody {
	return &BytesBody{data: data, r: bytes.NewReader(data)}
}

func (b *BytesBody) ContentLength() int64 { return int64(len(b.data)) }
func (b *BytesBody) Reader() io.Reader    { return b.r }
func (b *BytesBody) Rewindable() bool     { return true }
func (b *BytesBody) Rewind() error {
	_, err := b.r.Seek(0, io.SeekStart)
	return err
}

// StreamBody wraps a length-known, non-restartable stream (e.g. a network
// body or pipe) as spec.md §9's "file-like" variant. It is never
// rewindable: once read, it cannot be replayed.
type StreamBody struct {
	r      io.Reader
	length int64
}

// NewStreamBody wraps r with a known content length. length may be -1 if
// the length is genuinely unknown, forcing chunked transfer encoding.
func NewStreamBody(r io.Reader, length int64) *StreamBody {
	return &StreamBody{r: r, length: length}
}

func (s *StreamBody) ContentLength() int64 { return s.length }
func (s *StreamBody) Reader() io.Reader    { return s.r }
func (s *StreamBody) Rewindable() bool     { return false }
func (s *StreamBody) Rewind() error        { return ErrUnrewindableBody }

// MultipartBodyAdapter wraps an http1.MultipartBody as a rewindable Body
// (multipart fields are reconstructed fresh on each Reader() call as long
// as every field's own Reader supports being read more than once; callers
// supplying a one-shot io.Reader field should treat the overall body as
// non-rewindable by using StreamBody instead).
type MultipartBodyAdapter struct {
	mb *http1.MultipartBody
}

// NewMultipartBodyAdapter computes the multipart body's exact length
// (spec.md §4.3's "no chunked transfer" requirement for multipart) and
// wraps it as a Body.
func NewMultipartBodyAdapter(mb *http1.MultipartBody) (*MultipartBodyAdapter, int64, error) {
	n, err := mb.ContentLength()
	if err != nil {
		return nil, 0, err
	}
	return &MultipartBodyAdapter{mb: mb}, n, nil
}

func (m *MultipartBodyAdapter) ContentLength() int64 {
	n, _ := m.mb.ContentLength()
	return n
}
func (m *MultipartBodyAdapter) Reader() io.Reader { return m.mb.Reader() }
func (m *MultipartBodyAdapter) Rewindable() bool  { return true }
func (m *MultipartBodyAdapter) Rewind() error     { return nil }

// BoundaryHeader returns the Content-Type value to set for this multipart
// body: "multipart/form-data; boundary=...".
func (m *MultipartBodyAdapter) BoundaryHeader() string {
	return "multipart/form-data; boundary=" + m.mb.Boundary()
}
