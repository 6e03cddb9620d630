package http1

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"path/filepath"
)

// Field is one ordered part of a multipart/form-data body: either a plain
// form value (Reader nil) or a file part (Reader set, with Filename and
// ContentType describing it).
type Field struct {
	Name        string
	Value       string
	Filename    string
	ContentType string
	Reader      io.Reader
	Size        int64 // required when Reader is set, so Content-Length can be precomputed
}

// MultipartBody builds a multipart/form-data request body whose total
// length is known up front, so callers can set Content-Length instead of
// falling back to chunked transfer encoding for what is almost always a
// small, bounded payload (spec.md §3's multipart requirement).
//
// Grounded on spec.md's multipart section; no example repo builds
// multipart bodies client-side, so the boundary comes from the standard
// library's mime/multipart.Writer while the per-part framing is written by
// partHeader below.
type MultipartBody struct {
	boundary string
	fields   []Field
}

// NewMultipartBody returns a body with a fresh random boundary, computed
// via mime/multipart's own boundary generator so it carries the same
// collision-resistance guarantees as the standard library's own client.
func NewMultipartBody(fields []Field) *MultipartBody {
	var probe bytes.Buffer
	boundary := multipart.NewWriter(&probe).Boundary()
	return &MultipartBody{boundary: boundary, fields: fields}
}

// Boundary returns the boundary string to place in the request's
// Content-Type header: `multipart/form-data; boundary=<Boundary()>`.
func (m *MultipartBody) Boundary() string { return m.boundary }

// ContentLength computes the exact encoded size without writing the body,
// by rendering each part's header preamble and summing its body length.
func (m *MultipartBody) ContentLength() (int64, error) {
	var total int64
	for _, f := range m.fields {
		head := partHeader(m.boundary, f)
		total += int64(len(head))
		if f.Reader != nil {
			if f.Size < 0 {
				return 0, fmt.Errorf("http1: multipart field %q has unknown size", f.Name)
			}
			total += f.Size
		} else {
			total += int64(len(f.Value))
		}
		total += int64(len("\r\n"))
	}
	total += int64(len("--" + m.boundary + "--\r\n"))
	return total, nil
}

// Reader returns a streaming io.Reader over the full encoded body, part by
// part, without buffering the whole thing in memory.
func (m *MultipartBody) Reader() io.Reader {
	readers := make([]io.Reader, 0, len(m.fields)*3+1)
	for _, f := range m.fields {
		readers = append(readers, bytes.NewReader([]byte(partHeader(m.boundary, f))))
		if f.Reader != nil {
			readers = append(readers, f.Reader)
		} else {
			readers = append(readers, bytes.NewReader([]byte(f.Value)))
		}
		readers = append(readers, bytes.NewReader([]byte("\r\n")))
	}
	readers = append(readers, bytes.NewReader([]byte("--"+m.boundary+"--\r\n")))
	return io.MultiReader(readers...)
}

func partHeader(boundary string, f Field) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "--%s\r\n", boundary)
	if f.Filename != "" {
		fmt.Fprintf(&b, "Content-Disposition: form-data; name=%q; filename=%q\r\n", f.Name, f.Filename)
		ct := f.ContentType
		if ct == "" {
			ct = mime.TypeByExtension(filepath.Ext(f.Filename))
		}
		if ct == "" {
			ct = "application/octet-stream"
		}
		fmt.Fprintf(&b, "Content-Type: %s\r\n", ct)
	} else {
		fmt.Fprintf(&b, "Content-Disposition: form-data; name=%q\r\n", f.Name)
	}
	b.WriteString("\r\n")
	return b.String()
}
