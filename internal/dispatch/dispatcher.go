// Package dispatch wraps every outbound storefront call behind one uniform
// contract: credential attachment, response-envelope unwrapping, failure
// classification, and the hand-off of 401s to the renewal coordinator.
// Callers never attach credentials or handle renewal themselves.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"shopagent/internal/model"
	"shopagent/internal/session"
)

// userAgent identifies the gateway to the storefront. Some CDN/WAF setups
// rate-limit requests without a User-Agent.
const userAgent = "ShopAgent/1.0"

// Renewer recovers a request that failed authentication. Implemented by
// session.Coordinator; an interface here so dispatcher tests can fake it.
type Renewer interface {
	HandleUnauthenticated(ctx context.Context, req *model.Request) (*model.Response, error)
}

// Config holds dispatcher construction parameters.
type Config struct {
	Origin      string   // base API origin, e.g. https://shop.example.com/api
	PublicPaths []string // endpoints that never get an Authorization header
	HTTPClient  *http.Client
	Credentials *session.Store
	Logger      *slog.Logger
}

// Dispatcher executes storefront requests. Protected endpoints get the
// current bearer credential attached after sanitization; public endpoints
// (login, renewal, OAuth URL issuance, registration) go out bare.
type Dispatcher struct {
	httpClient *http.Client
	origin     string
	public     map[string]bool
	creds      *session.Store
	renewer    Renewer
	logger     *slog.Logger
}

// New creates a Dispatcher. The renewal coordinator is attached separately
// via SetRenewer because the coordinator's replay path needs the
// dispatcher first.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Origin == "" {
		return nil, fmt.Errorf("API origin is required")
	}
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	public := make(map[string]bool, len(cfg.PublicPaths))
	for _, p := range cfg.PublicPaths {
		public[p] = true
	}
	return &Dispatcher{
		httpClient: httpClient,
		origin:     strings.TrimSuffix(cfg.Origin, "/"),
		public:     public,
		creds:      cfg.Credentials,
		logger:     logger,
	}, nil
}

// SetRenewer attaches the renewal coordinator. Until one is attached,
// 401s surface directly as Unauthenticated errors.
func (d *Dispatcher) SetRenewer(r Renewer) { d.renewer = r }

// IsPublic reports whether path is served without authentication.
func (d *Dispatcher) IsPublic(path string) bool { return d.public[path] }

// Do executes one storefront request.
//
// Success responses are unwrapped to their envelope payload before being
// returned. The one exception is the 401 recovery path, which operates on
// the raw transport status so a payload-level error shape can never be
// mistaken for an authentication expiry.
func (d *Dispatcher) Do(ctx context.Context, req *model.Request) (*model.Response, error) {
	httpReq, err := d.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	httpResp, err := d.httpClient.Do(httpReq)
	if err != nil {
		// No response received at all.
		return nil, model.NewUnreachableError(err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, model.NewUnreachableError(err)
	}

	resp := &model.Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Raw:        body,
	}

	// Authentication expiry on a protected endpoint: hand the original
	// request to the coordinator. Decided on the raw status code.
	if httpResp.StatusCode == http.StatusUnauthorized && !d.IsPublic(req.Path) {
		if d.renewer != nil {
			return d.renewer.HandleUnauthenticated(ctx, req)
		}
		return nil, model.NewUnauthenticatedError(serverMessage(body))
	}

	if httpResp.StatusCode >= 400 {
		return nil, classify(httpResp.StatusCode, body)
	}

	resp.Payload = unwrapEnvelope(body)
	return resp, nil
}

// buildRequest constructs the http.Request, attaching the sanitized bearer
// credential on protected paths. A credential that fails shape validation
// was already purged by the store; the request proceeds without one and
// the server's 401 drives the normal renewal path.
func (d *Dispatcher) buildRequest(ctx context.Context, req *model.Request) (*http.Request, error) {
	var bodyReader io.Reader
	if req.Body != nil {
		jsonBody, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	target := d.origin + req.Path
	if len(req.Query) > 0 {
		q := url.Values{}
		for k, v := range req.Query {
			q.Set(k, v)
		}
		target += "?" + q.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)

	if !d.IsPublic(req.Path) {
		if bearer, ok := d.creds.Bearer(); ok {
			httpReq.Header.Set("Authorization", "Bearer "+bearer)
		}
	}

	return httpReq, nil
}

// classify maps an HTTP failure to the gateway error taxonomy.
func classify(status int, body []byte) error {
	msg := serverMessage(body)
	switch {
	case status == http.StatusUnauthorized:
		return model.NewUnauthenticatedError(msg)
	case status == http.StatusForbidden:
		// Terminal; server reason surfaced verbatim, never retried.
		return model.NewAccessDeniedError(msg)
	case status == http.StatusNotFound:
		return model.NewNotFoundError("resource")
	case status == http.StatusTooManyRequests:
		return model.NewRateLimitError()
	case status >= 500:
		return model.NewServerFaultError(status, msg)
	default:
		if msg == "" {
			msg = "invalid request"
		}
		return model.NewValidationError("request", msg)
	}
}

// envelope is the storefront's response wrapper: status/message fields
// around the actual payload.
type envelope struct {
	Code    *int            `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// unwrapEnvelope strips the response envelope, returning the payload.
// Bodies that are not envelope-shaped pass through untouched.
func unwrapEnvelope(body []byte) []byte {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return body
	}
	if env.Code == nil || env.Data == nil {
		return body
	}
	return env.Data
}

// serverMessage best-effort extracts a human-readable reason from an
// error body, checking the envelope shape first.
func serverMessage(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Message != "" {
		return env.Message
	}
	var plain struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &plain); err == nil {
		if plain.Message != "" {
			return plain.Message
		}
		return plain.Error
	}
	return ""
}

// DecodePayload unmarshals a response's envelope-unwrapped payload into v.
func DecodePayload(resp *model.Response, v any) error {
	if resp == nil || len(resp.Payload) == 0 {
		return fmt.Errorf("empty response payload")
	}
	if err := json.Unmarshal(resp.Payload, v); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}
