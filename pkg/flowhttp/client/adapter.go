package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/spf13/afero"

	"github.com/yourusername/flowhttp/pkg/flowhttp/http1"
	"github.com/yourusername/flowhttp/pkg/flowhttp/transport"
)

// TLSParams mirrors spec.md §4.5 step 3/§6's TLS parameter shape:
// Verify is true (default trust store), false (skip verification), or a
// path to a CA bundle/directory; Cert is either a combined cert+key path
// or a (cert, key) pair.
type TLSParams struct {
	Verify   any // bool or string path
	CertPath string
	KeyPath  string
}

// Timeout normalizes spec.md §4.5 step 4's "single number or (connect,
// read) pair" timeout shape for Go callers: set Connect and Read
// independently, or use NewTimeout for the single-value case.
type Timeout struct {
	Connect time.Duration
	Read    time.Duration
}

// NewTimeout applies d to both phases, spec.md's single-number case.
func NewTimeout(d time.Duration) Timeout { return Timeout{Connect: d, Read: d} }

// Config bounds one Adapter: its connection pool, the proxy and timeout
// defaults applied when a request doesn't override them, and the
// filesystem TLS material is loaded from.
type Config struct {
	Pool           *transport.Pool
	DefaultTimeout Timeout
	Proxy          *url.URL
	Filesystem     afero.Fs // used to load TLS cert/key/CA material
}

// Adapter implements spec.md §4.5's Adapter.send: per-request orchestration
// of connection acquisition, serialization, parsing, and disposal.
//
// Grounded on shockwave's client.go Client.doHTTP11Optimized (write
// request bytes, parse response, select a body reader by framing,
// dispose), generalized from a single hard-coded client instance into a
// per-scheme adapter a Session can mount multiple of, per spec.md's Open
// Question resolution favoring "per-adapter pool with proxy tunneling".
type Adapter struct {
	cfg Config
}

// NewAdapter builds an Adapter over an already-configured connection pool.
func NewAdapter(cfg Config) *Adapter {
	if cfg.Filesystem == nil {
		cfg.Filesystem = afero.NewOsFs()
	}
	return &Adapter{cfg: cfg}
}

// sendOptions carries the per-call overrides spec.md §6's Session.send
// accepts.
type sendOptions struct {
	timeout   Timeout
	tls       TLSParams
	proxy     *url.URL
	stream    bool
	chunkSize int
}

// Send performs one request/response exchange: steps 1-9 of spec.md §4.5.
// On any error between connection checkout and disposal, the connection is
// closed (never released) before the error propagates.
func (a *Adapter) Send(ctx context.Context, req *PreparedRequest, opts sendOptions) (*Response, error) {
	if req.Header.Get("Host") == "" {
		req.Header.Set("Host", req.hostHeaderValue())
	}

	tlsConfig, err := a.buildTLSConfig(req.URL, opts.tls)
	if err != nil {
		return nil, err
	}

	timeout := opts.timeout
	if timeout.Connect < 0 || timeout.Read < 0 {
		return nil, ErrInvalidTimeout
	}
	if timeout.Connect <= 0 && timeout.Read <= 0 {
		timeout = a.cfg.DefaultTimeout
	}

	connectCtx := ctx
	if timeout.Connect > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, timeout.Connect)
		defer cancel()
	}

	proxy := opts.proxy
	if proxy == nil {
		proxy = a.cfg.Proxy
	}

	port := req.URL.Port()
	if port == "" {
		if req.URL.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}

	conn, err := a.cfg.Pool.Get(connectCtx, req.URL.Scheme, req.URL.Hostname(), port, tlsConfig, proxy)
	if err != nil {
		return nil, mapConnectError(req, err)
	}

	wire := http1.NewRequest(req.Method, req.requestTarget(), req.hostHeaderValue())
	wire.Header = req.Header
	if req.Body != nil {
		wire.Body = req.Body.Reader()
		wire.ContentLength = req.Body.ContentLength()
	}

	if _, err := wire.WriteTo(conn); err != nil {
		_ = conn.Close()
		return nil, &ConnectionError{Method: req.Method, URL: req.URL.String(), Err: err}
	}

	// Each socket read while parsing the header block or draining the body
	// gets its own fresh deadline (spec.md §5), rather than one absolute
	// deadline covering the whole exchange — the parser's bufio.Reader and
	// every body reader built on top of it share this same reader, so later
	// streamed reads are bounded exactly the same way as the header parse.
	reader := newDeadlineReader(conn, timeout.Read)
	parser := http1.NewResponseParser(reader)
	wireResp, err := parser.ParseHead(req.Method == "HEAD")
	if err != nil {
		_ = conn.Close()
		if errors.Is(err, ErrReadTimeout) {
			return nil, ErrReadTimeout
		}
		return nil, &ProtocolError{Err: err}
	}

	resp, err := newResponse(wireResp, req.URL, conn)
	if err != nil {
		return nil, err
	}

	if !opts.stream {
		resp.buffer(opts.chunkSize)
		if resp.bufferErr != nil {
			return resp, resp.bufferErr
		}
	}

	return resp, nil
}

func mapConnectError(req *PreparedRequest, err error) error {
	switch {
	case errors.Is(err, transport.ErrConnectTimeout):
		return transport.ErrConnectTimeout
	case errors.Is(err, transport.ErrProxy):
		return err
	default:
		return &ConnectionError{Method: req.Method, URL: req.URL.String(), Err: err}
	}
}

// buildTLSConfig implements spec.md §4.5 step 3: verify=true uses the
// default trust store; verify=path loads a CA bundle/dir via the
// configured afero filesystem; a falsy verify with no client cert still
// negotiates TLS (HTTPS is never downgraded to plaintext) but skips
// certificate verification; a cert pair loads a client certificate chain.
func (a *Adapter) buildTLSConfig(u *url.URL, params TLSParams) (*tls.Config, error) {
	if u.Scheme != "https" {
		return nil, nil
	}

	cfg := &tls.Config{ServerName: u.Hostname()}

	switch v := params.Verify.(type) {
	case nil:
		// default trust store
	case bool:
		if !v {
			cfg.InsecureSkipVerify = true
		}
	case string:
		pool, err := loadCAPool(a.cfg.Filesystem, v)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}

	if params.CertPath != "" {
		certPEM, err := afero.ReadFile(a.cfg.Filesystem, params.CertPath)
		if err != nil {
			return nil, fmt.Errorf("client: reading TLS cert: %w", err)
		}
		keyPath := params.KeyPath
		if keyPath == "" {
			keyPath = params.CertPath
		}
		keyPEM, err := afero.ReadFile(a.cfg.Filesystem, keyPath)
		if err != nil {
			return nil, fmt.Errorf("client: reading TLS key: %w", err)
		}
		cert, err := tls.X509KeyPair(certPEM, keyPEM)
		if err != nil {
			return nil, fmt.Errorf("client: parsing TLS client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}

// loadCAPool reads a CA bundle file, or every *.pem/*.crt file in a
// directory, via the adapter's afero filesystem — grounded on spec.md's
// "load as file or directory" requirement for verify=path. Sourced through
// afero (per _examples/mick-25-streamnzb's go.mod) rather than bare os.*
// calls so TLS material loading is testable against an in-memory
// filesystem.
func loadCAPool(fs afero.Fs, path string) (*x509.CertPool, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("client: TLS verify path: %w", err)
	}

	pool := x509.NewCertPool()
	if !info.IsDir() {
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, err
		}
		pool.AppendCertsFromPEM(data)
		return pool, nil
	}

	entries, err := afero.ReadDir(fs, path)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := afero.ReadFile(fs, path+string(os.PathSeparator)+e.Name())
		if err != nil {
			continue
		}
		pool.AppendCertsFromPEM(data)
	}
	return pool, nil
}
