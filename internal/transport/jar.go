package transport

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"golang.org/x/net/publicsuffix"
)

// The renewal credential lives in a scoped, HTTP-only style cookie set by
// the storefront on login. The application layer never reads its value; the
// jar attaches it to renewal calls and this package can expire it on
// logout or irrecoverable renewal failure.

// NewSessionJar creates the cookie jar holding the renewal cookie.
// Uses the public suffix list so the storefront cannot scope cookies to a
// public suffix.
func NewSessionJar() (*cookiejar.Jar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	return jar, nil
}

// ExpireCookies overwrites the named cookies for origin with already
// expired values, which removes them from the jar. cookiejar has no delete
// primitive, so expiry is the only portable way to drop a cookie.
func ExpireCookies(jar http.CookieJar, origin *url.URL, names ...string) {
	if jar == nil || origin == nil {
		return
	}
	expired := make([]*http.Cookie, 0, len(names))
	for _, name := range names {
		expired = append(expired, &http.Cookie{
			Name:    name,
			Value:   "",
			Path:    "/",
			MaxAge:  -1,
			Expires: time.Unix(0, 0),
		})
	}
	jar.SetCookies(origin, expired)
}
