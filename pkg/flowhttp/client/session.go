package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/yourusername/flowhttp/pkg/flowhttp/transport"
)

// Session is spec.md §6's public entry point: configurable defaults,
// adapters mounted per URL scheme, and a send method that drives the
// redirect loop on top of Adapter.Send.
type Session struct {
	Adapters       map[string]*Adapter // scheme -> adapter
	MaxRedirects   int
	AllowRedirects bool
	Stream         bool
	Timeout        Timeout
	TLS            TLSParams
	Resolver       URLResolver
	CookieJar      CookieJar
	Auth           AuthSigner
	Logger         zerolog.Logger
}

// NewSession builds a Session with http/https adapters backed by
// independent connection pools, matching spec.md's Open-Question
// resolution of "per-adapter pool" rather than one pool shared across
// schemes.
func NewSession(poolCfg transport.Config) *Session {
	httpPool := transport.New(poolCfg)
	httpsPool := transport.New(poolCfg)

	return &Session{
		Adapters: map[string]*Adapter{
			"http":  NewAdapter(Config{Pool: httpPool}),
			"https": NewAdapter(Config{Pool: httpsPool}),
		},
		MaxRedirects:   30,
		AllowRedirects: true,
		Resolver:       DefaultURLResolver,
		Logger:         zerolog.Nop(),
	}
}

// SendOptions carries per-call overrides to Session.Send, mirroring
// spec.md §6's "send(PreparedRequest, overrides...)".
type SendOptions struct {
	Timeout        *Timeout
	TLS            *TLSParams
	Proxy          *url.URL
	Stream         *bool
	AllowRedirects *bool
	ChunkSize      int
}

// Send prepares and sends req, following redirects unless disabled, and
// returns the final Response.
func (s *Session) Send(ctx context.Context, req *PreparedRequest, overrides SendOptions) (*Response, error) {
	adapter, ok := s.Adapters[req.URL.Scheme]
	if !ok {
		return nil, fmt.Errorf("client: no adapter registered for scheme %q", req.URL.Scheme)
	}

	opts := sendOptions{
		timeout:   s.Timeout,
		tls:       s.TLS,
		stream:    s.Stream,
		chunkSize: overrides.ChunkSize,
	}
	if overrides.Timeout != nil {
		opts.timeout = *overrides.Timeout
	}
	if overrides.TLS != nil {
		opts.tls = *overrides.TLS
	}
	if overrides.Proxy != nil {
		opts.proxy = overrides.Proxy
	}
	if overrides.Stream != nil {
		opts.stream = *overrides.Stream
	}

	allowRedirects := s.AllowRedirects
	if overrides.AllowRedirects != nil {
		allowRedirects = *overrides.AllowRedirects
	}

	if s.CookieJar != nil {
		for _, c := range s.CookieJar.Cookies(req.URL) {
			req.Header.Add("Cookie", c.Name+"="+c.Value)
		}
	}
	if s.Auth != nil {
		if err := s.Auth.Sign(req); err != nil {
			return nil, err
		}
	}

	if !allowRedirects {
		resp, err := adapter.Send(ctx, req, opts)
		if err != nil {
			return nil, err
		}
		resp.History = nil
		return resp, nil
	}

	resolver := s.Resolver
	if resolver == nil {
		resolver = DefaultURLResolver
	}
	return sendWithRedirects(ctx, adapter, req, opts, s.MaxRedirects, resolver, s.CookieJar, s.Auth)
}

// Close shuts down every adapter's connection pool.
func (s *Session) Close() {
	for _, a := range s.Adapters {
		a.cfg.Pool.Close(true)
	}
}

// Use runs fn with the session and guarantees Close on return, the Go
// analogue of spec.md §6's "async scoped acquisition with guaranteed
// close() on exit".
func (s *Session) Use(fn func(*Session) error) error {
	defer s.Close()
	return fn(s)
}
