package client

import (
	"net/url"
	"strings"

	"github.com/yourusername/flowhttp/pkg/flowhttp/http1"
)

// PreparedRequest is spec.md §3's PreparedRequest: an uppercased method, an
// absolute URL, an ordered-insertion case-insensitive header map, and one
// of {absent, fixed bytes, length-known stream, multipart} bodies.
type PreparedRequest struct {
	Method string
	URL    *url.URL
	Header *http1.Header
	Body   Body // nil means "absent"
}

// NewPreparedRequest builds a PreparedRequest with the method uppercased
// and a fresh header map, per spec.md §3.
func NewPreparedRequest(method string, u *url.URL) *PreparedRequest {
	return &PreparedRequest{
		Method: strings.ToUpper(method),
		URL:    u,
		Header: http1.NewHeader(),
	}
}

// Clone returns a deep-enough copy for redirect replay: a fresh URL value
// and a cloned header map. The Body is carried over by reference since
// Body implementations are rewound in place rather than copied.
func (r *PreparedRequest) Clone() *PreparedRequest {
	u := *r.URL
	return &PreparedRequest{
		Method: r.Method,
		URL:    &u,
		Header: r.Header.Clone(),
		Body:   r.Body,
	}
}

// requestTarget computes path + "?" + raw query, both assumed already
// percent-encoded by the caller (spec.md §4.5 step 1).
func (r *PreparedRequest) requestTarget() string {
	target := r.URL.EscapedPath()
	if target == "" {
		target = "/"
	}
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	return target
}

// hostHeaderValue returns the Host header value: the URL's host, omitting
// the port when it is the scheme's default (spec.md §4.3).
func (r *PreparedRequest) hostHeaderValue() string {
	host := r.URL.Hostname()
	port := r.URL.Port()
	if port == "" {
		return host
	}
	if (r.URL.Scheme == "http" && port == "80") || (r.URL.Scheme == "https" && port == "443") {
		return host
	}
	return host + ":" + port
}
