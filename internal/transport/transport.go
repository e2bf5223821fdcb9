// Package transport provides the outbound HTTP transport for the gateway:
// a browser-like TLS fingerprint and the cookie jar that carries the
// renewal credential.
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

// =============================================================================
// TLS FINGERPRINT TRANSPORT
// =============================================================================
//
// Go's standard TLS client has a distinctive fingerprint that triggers
// aggressive rate limiting on some CDNs. Storefronts behind such CDNs will
// throttle or block the gateway's calls.
//
// This transport uses uTLS to present a Chrome-like TLS fingerprint with
// full HTTP/2 support:
//
//   1. uTLS with HelloChrome_Auto for Chrome's ClientHello
//   2. ALPN negotiates naturally (h2, http/1.1)
//   3. Go's http2.Transport handles HTTP/2 framing when negotiated
//
// =============================================================================

// NewBrowserTransport creates an http.RoundTripper that presents Chrome's
// TLS fingerprint to the storefront. Supports both HTTP/2 and HTTP/1.1
// based on ALPN negotiation.
func NewBrowserTransport(timeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: timeout}

	h2 := &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dialBrowserTLS(ctx, dialer, network, addr)
		},
	}

	h1 := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialBrowserTLS(ctx, dialer, network, addr)
		},
		ForceAttemptHTTP2: false,
	}

	return &browserTransport{h2: h2, h1: h1}
}

// browserTransport wraps HTTP/2 and HTTP/1.1 transports with the Chrome
// TLS fingerprint.
type browserTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

// RoundTrip implements http.RoundTripper.
// Tries HTTP/2 first, falls back to HTTP/1.1 if the server lacks h2.
func (t *browserTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	return t.h1.RoundTrip(req)
}

// dialBrowserTLS establishes a TLS connection with Chrome's fingerprint.
func dialBrowserTLS(ctx context.Context, dialer *net.Dialer, network, addr string) (net.Conn, error) {
	// Extract hostname for SNI
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
