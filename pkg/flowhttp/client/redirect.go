package client

import (
	"context"
)

// isRedirectStatus reports the status codes spec.md §4.6 treats as
// redirects: 301, 302, 303, 307, 308.
func isRedirectStatus(code int) bool {
	switch code {
	case 301, 302, 303, 307, 308:
		return true
	}
	return false
}

// sendWithRedirects drives spec.md §4.6's multi-hop loop on top of a
// single Adapter.Send call per hop: append to history, resolve the new
// URL, derive the new method, strip body-describing headers unless the
// status preserves the body (307/308), rewind a rewindable body or fail,
// and reapply cookies/auth before the next hop.
func sendWithRedirects(ctx context.Context, adapter *Adapter, req *PreparedRequest, opts sendOptions, maxRedirects int, resolver URLResolver, jar CookieJar, signer AuthSigner) (*Response, error) {
	var history []*Response
	current := req

	for {
		resp, err := adapter.Send(ctx, current, opts)
		if err != nil {
			return nil, err
		}

		if !isRedirectStatus(resp.StatusCode) || resp.Header.Get("Location") == "" {
			resp.History = history
			return resp, nil
		}

		if len(history) >= maxRedirects {
			_ = resp.Close()
			return nil, &TooManyRedirectsError{History: history}
		}

		location := resp.Header.Get("Location")
		newURL, err := resolver.Resolve(current.URL, location)
		if err != nil {
			_ = resp.Close()
			return nil, err
		}

		next := current.Clone()
		next.URL = newURL
		next.Method = redirectMethod(resp.StatusCode, current.Method)

		preserveBody := resp.StatusCode == 307 || resp.StatusCode == 308
		if !preserveBody {
			next.Header.Del("Content-Length")
			next.Header.Del("Content-Type")
			next.Header.Del("Transfer-Encoding")
			next.Body = nil
		} else if next.Body != nil {
			if !next.Body.Rewindable() {
				_ = resp.Close()
				return nil, &UnrewindableBodyError{Method: next.Method, URL: next.URL.String()}
			}
			if err := next.Body.Rewind(); err != nil {
				_ = resp.Close()
				return nil, &UnrewindableBodyError{Method: next.Method, URL: next.URL.String()}
			}
		}

		next.Header.Del("Cookie")
		if jar != nil {
			for _, c := range jar.Cookies(newURL) {
				next.Header.Add("Cookie", c.Name+"="+c.Value)
			}
		}

		if current.URL.Hostname() != newURL.Hostname() {
			next.Header.Del("Authorization")
			if signer != nil {
				if err := signer.Sign(next); err != nil {
					_ = resp.Close()
					return nil, err
				}
			}
		}

		history = append(history, resp)
		current = next
	}
}

// redirectMethod derives the method to use for the next hop per spec.md
// §4.6: 303 always downgrades to GET; 301/302 downgrade POST to GET;
// every other status preserves the method.
func redirectMethod(status int, method string) string {
	if status == 303 {
		return "GET"
	}
	if (status == 301 || status == 302) && method == "POST" {
		return "GET"
	}
	return method
}
