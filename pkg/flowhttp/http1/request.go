package http1

import (
	"bufio"
	"io"
	"strconv"
)

// Request is the wire-level representation serialized onto a connection: a
// method, request-target, header set, and an optional body source.
//
// Grounded on the field set of
// MiraiMindz-watt/shockwave's pkg/shockwave/client/request.go's
// ClientRequest, again trading that file's fixed inline byte arrays for
// plain strings/io.Reader — this package serializes one request at a time
// onto a socket rather than parsing thousands of inbound requests per
// second, so the allocation profile that justifies shockwave's layout
// does not apply here.
type Request struct {
	Method string
	Target string // request-target: "/path?query"
	Proto  string // "HTTP/1.1"
	Host   string // used for the mandatory Host header

	Header *Header

	Body          io.Reader
	ContentLength int64 // -1 if unknown and Body must be chunked or pre-buffered
}

// NewRequest builds a Request with a fresh, empty Header and HTTP/1.1 set
// as the wire proto.
func NewRequest(method, target, host string) *Request {
	return &Request{
		Method:        method,
		Target:        target,
		Proto:         "HTTP/1.1",
		Host:          host,
		Header:        NewHeader(),
		ContentLength: -1,
	}
}

// WriteTo serializes the request line, headers (injecting Host and
// Content-Length as needed), and body onto w. Content-Length is taken from
// r.ContentLength when >= 0; otherwise, if a body is present, it is sent
// with Transfer-Encoding: chunked.
func (r *Request) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(r.Method); err != nil {
		return 0, err
	}
	if err := bw.WriteByte(' '); err != nil {
		return 0, err
	}
	if _, err := bw.WriteString(r.Target); err != nil {
		return 0, err
	}
	if err := bw.WriteByte(' '); err != nil {
		return 0, err
	}
	if _, err := bw.WriteString(r.Proto); err != nil {
		return 0, err
	}
	if _, err := bw.WriteString("\r\n"); err != nil {
		return 0, err
	}

	wroteHost := r.Header.Has("Host")
	chunked := r.Body != nil && r.ContentLength < 0

	for _, name := range r.Header.Names() {
		for _, v := range r.Header.Values(name) {
			if err := writeHeaderLine(bw, name, v); err != nil {
				return 0, err
			}
		}
	}
	if !wroteHost {
		if err := writeHeaderLine(bw, "Host", r.Host); err != nil {
			return 0, err
		}
	}
	if r.Body != nil {
		if r.ContentLength >= 0 {
			if err := writeHeaderLine(bw, "Content-Length", strconv.FormatInt(r.ContentLength, 10)); err != nil {
				return 0, err
			}
		} else if chunked {
			if err := writeHeaderLine(bw, "Transfer-Encoding", "chunked"); err != nil {
				return 0, err
			}
		}
	}
	if _, err := bw.WriteString("\r\n"); err != nil {
		return 0, err
	}

	var bodyN int64
	var err error
	if r.Body != nil {
		if chunked {
			bodyN, err = writeChunkedBody(bw, r.Body)
		} else {
			bodyN, err = io.CopyN(bw, r.Body, r.ContentLength)
			if err == io.EOF {
				err = ErrTruncatedBody
			}
		}
		if err != nil {
			return bodyN, err
		}
	}

	if err := bw.Flush(); err != nil {
		return bodyN, err
	}
	return bodyN, nil
}

func writeHeaderLine(w *bufio.Writer, name, value string) error {
	if _, err := w.WriteString(name); err != nil {
		return err
	}
	if _, err := w.WriteString(": "); err != nil {
		return err
	}
	if _, err := w.WriteString(value); err != nil {
		return err
	}
	_, err := w.WriteString("\r\n")
	return err
}

func writeChunkedBody(w *bufio.Writer, body io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, err := io.WriteString(w, strconv.FormatInt(int64(n), 16)+"\r\n"); err != nil {
				return total, err
			}
			if _, err := w.Write(buf[:n]); err != nil {
				return total, err
			}
			if _, err := w.WriteString("\r\n"); err != nil {
				return total, err
			}
			total += int64(n)
		}
		if rerr == io.EOF {
			_, err := w.WriteString("0\r\n\r\n")
			return total, err
		}
		if rerr != nil {
			return total, rerr
		}
	}
}
