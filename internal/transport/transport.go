// Package transport builds outbound HTTP clients for calls to the storefront API.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Options configures an outbound client.
type Options struct {
	Timeout time.Duration

	// ChromeFingerprint dials TLS with a Chrome ClientHello. Some CDNs
	// throttle Go's default fingerprint (JA3) aggressively; plain HTTP
	// targets are unaffected.
	ChromeFingerprint bool
}

// NewClient returns an http.Client for the API.
func NewClient(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var rt http.RoundTripper
	if opts.ChromeFingerprint {
		rt = NewChromeTransport(timeout)
	} else {
		base := http.DefaultTransport.(*http.Transport).Clone()
		base.ResponseHeaderTimeout = timeout
		rt = base
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: rt,
	}
}

// NewChromeTransport creates an http.RoundTripper with Chrome's TLS
// fingerprint. ALPN decides between HTTP/2 and HTTP/1.1; plain http://
// URLs go through the HTTP/1.1 transport without TLS.
func NewChromeTransport(timeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: timeout}

	h2Transport := &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr)
		},
	}

	h1Transport := &http.Transport{
		DialContext: dialer.DialContext,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr)
		},
		ForceAttemptHTTP2:     false,
		ResponseHeaderTimeout: timeout,
	}

	return &chromeTransport{
		h2: h2Transport,
		h1: h1Transport,
	}
}

type chromeTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

// RoundTrip tries HTTP/2 for https URLs and falls back to HTTP/1.1.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}
	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	// A request body consumed by the failed h2 attempt cannot be replayed.
	if req.Body != nil && req.GetBody == nil {
		return nil, err
	}
	if req.GetBody != nil {
		body, gerr := req.GetBody()
		if gerr != nil {
			return nil, err
		}
		req = req.Clone(req.Context())
		req.Body = body
	}
	return t.h1.RoundTrip(req)
}

func dialChromeTLS(ctx context.Context, dialer *net.Dialer, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host}, utls.HelloChrome_Auto)
	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return tlsConn, nil
}
