package client

import (
	"context"
	"net/url"
	"os"
	"sync"

	"github.com/joho/godotenv"

	"github.com/yourusername/flowhttp/pkg/flowhttp/transport"
)

var (
	defaultSessionOnce sync.Once
	defaultSession     *Session
)

// DefaultSession returns the process-default Session used by the package-
// level convenience verbs, constructing it lazily on first use (spec.md
// §9's "module-level get/post" note: a process-default session, built
// once, is an acceptable and simpler discretion than a fresh session per
// call).
//
// Pool sizing is read from FLOWHTTP_MAX_PER_KEY / FLOWHTTP_MAX_TOTAL
// environment variables when present, loaded via godotenv so a local
// .env file works the same way Sergey-Bar-Alfred's gateway service
// configures itself.
func DefaultSession() *Session {
	defaultSessionOnce.Do(func() {
		_ = godotenv.Load()
		defaultSession = NewSession(envPoolConfig())
	})
	return defaultSession
}

func envPoolConfig() transport.Config {
	cfg := transport.DefaultConfig()
	if v := envInt("FLOWHTTP_MAX_PER_KEY"); v > 0 {
		cfg.MaxPerKey = v
	}
	if v := envInt("FLOWHTTP_MAX_TOTAL"); v > 0 {
		cfg.MaxTotal = v
	}
	return cfg
}

func envInt(name string) int {
	v, ok := os.LookupEnv(name)
	if !ok {
		return 0
	}
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// Get sends a GET request through the process-default Session.
func Get(ctx context.Context, rawURL string) (*Response, error) {
	return do(ctx, "GET", rawURL, nil)
}

// Post sends a POST request with body through the process-default Session.
func Post(ctx context.Context, rawURL string, body Body) (*Response, error) {
	return do(ctx, "POST", rawURL, body)
}

// Put sends a PUT request with body through the process-default Session.
func Put(ctx context.Context, rawURL string, body Body) (*Response, error) {
	return do(ctx, "PUT", rawURL, body)
}

// Patch sends a PATCH request with body through the process-default Session.
func Patch(ctx context.Context, rawURL string, body Body) (*Response, error) {
	return do(ctx, "PATCH", rawURL, body)
}

// Delete sends a DELETE request through the process-default Session.
func Delete(ctx context.Context, rawURL string) (*Response, error) {
	return do(ctx, "DELETE", rawURL, nil)
}

// Head sends a HEAD request through the process-default Session.
func Head(ctx context.Context, rawURL string) (*Response, error) {
	return do(ctx, "HEAD", rawURL, nil)
}

func do(ctx context.Context, method, rawURL string, body Body) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	req := NewPreparedRequest(method, u)
	req.Body = body
	return DefaultSession().Send(ctx, req, SendOptions{})
}
