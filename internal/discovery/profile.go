// Package discovery fetches and validates the storefront's discovery
// profile. The gateway checks at startup that the storefront speaks a
// compatible API version before any session work begins.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dunglas/httpsfv"
	"golang.org/x/mod/semver"
)

// wellKnownPath is where storefronts publish their discovery profile.
const wellKnownPath = "/.well-known/storefront"

// capabilitiesHeader is the RFC 8941 Dictionary response header
// advertising per-capability API versions, e.g.
//
//	Storefront-Capabilities: api="1.2.0", promotions="1.0.0", cart="2.1.0"
const capabilitiesHeader = "Storefront-Capabilities"

// Profile is the storefront discovery document.
type Profile struct {
	Name         string            `json:"name,omitempty"`
	APIVersion   string            `json:"api_version"`
	Capabilities map[string]string `json:"capabilities,omitempty"` // name → version
}

// Client fetches discovery profiles.
type Client struct {
	httpClient *http.Client
	origin     string
}

// NewClient creates a discovery client for the given storefront origin.
func NewClient(origin string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		origin:     strings.TrimSuffix(origin, "/"),
	}
}

// Fetch retrieves the storefront profile. Capability versions from the
// Storefront-Capabilities header take precedence over the document body;
// older storefronts only send the body.
func (c *Client) Fetch(ctx context.Context) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.origin+wellKnownPath, nil)
	if err != nil {
		return nil, fmt.Errorf("creating discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching storefront profile: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading storefront profile: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("storefront profile returned status %d", resp.StatusCode)
	}

	var profile Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("parsing storefront profile: %w", err)
	}

	if header := resp.Header.Get(capabilitiesHeader); header != "" {
		caps, err := ParseCapabilitiesHeader(header)
		if err != nil {
			return nil, err
		}
		if profile.Capabilities == nil {
			profile.Capabilities = make(map[string]string, len(caps))
		}
		for name, version := range caps {
			profile.Capabilities[name] = version
		}
		if api, ok := caps["api"]; ok {
			profile.APIVersion = api
		}
	}

	return &profile, nil
}

// ParseCapabilitiesHeader parses the Storefront-Capabilities header
// (RFC 8941 Dictionary of string items) into a name→version map.
func ParseCapabilitiesHeader(header string) (map[string]string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, fmt.Errorf("empty %s header", capabilitiesHeader)
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return nil, fmt.Errorf("invalid %s header: %w", capabilitiesHeader, err)
	}

	caps := make(map[string]string)
	for _, name := range dict.Names() {
		member, _ := dict.Get(name)
		item, ok := member.(httpsfv.Item)
		if !ok {
			continue
		}
		version, ok := item.Value.(string)
		if !ok {
			continue
		}
		caps[name] = version
	}
	return caps, nil
}

// CheckCompatibility verifies the storefront's API version satisfies the
// gateway's minimum. Versions are semver; a storefront newer than the
// minimum is fine, an older one is not.
func CheckCompatibility(profile *Profile, minVersion string) error {
	have := normalizeVersion(profile.APIVersion)
	want := normalizeVersion(minVersion)

	if !semver.IsValid(have) {
		return fmt.Errorf("storefront advertises invalid API version %q", profile.APIVersion)
	}
	if !semver.IsValid(want) {
		return fmt.Errorf("invalid minimum API version %q", minVersion)
	}
	if semver.Compare(have, want) < 0 {
		return fmt.Errorf("storefront API version %s is older than required %s",
			profile.APIVersion, minVersion)
	}
	return nil
}

// normalizeVersion adds the "v" prefix semver parsing requires.
func normalizeVersion(v string) string {
	if v == "" {
		return ""
	}
	if v[0] != 'v' {
		return "v" + v
	}
	return v
}
