package model

import "net/http"

// Request describes one outbound storefront call, independent of the
// transport executing it. The dispatcher owns URL construction, credential
// attachment, and envelope handling.
type Request struct {
	Method string
	Path   string            // absolute path, e.g. "/cart/items"
	Query  map[string]string // optional query parameters
	Body   any               // JSON-marshaled when non-nil

	// retried records that this request already went through one renewal
	// replay. Set at most once; a second 401 is terminal for the caller.
	retried bool
}

// MarkRetried flags the request as having been replayed once.
func (r *Request) MarkRetried() { r.retried = true }

// Retried reports whether the request was already replayed after renewal.
func (r *Request) Retried() bool { return r.retried }

// Response is the raw transport result plus the unwrapped payload.
// The renewal path inspects StatusCode directly; everything else should
// use Payload, which has the response envelope already stripped.
type Response struct {
	StatusCode int
	Header     http.Header
	Payload    []byte // envelope-unwrapped body
	Raw        []byte // body exactly as received
}
