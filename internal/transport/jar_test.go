package transport

import (
	"net/http"
	"net/url"
	"testing"
)

func TestExpireCookiesRemovesNamedCookie(t *testing.T) {
	jar, err := NewSessionJar()
	if err != nil {
		t.Fatalf("NewSessionJar() = %v", err)
	}

	origin, _ := url.Parse("https://shop.example.com/")
	jar.SetCookies(origin, []*http.Cookie{
		{Name: "shop_renewal", Value: "r-1", Path: "/"},
		{Name: "other", Value: "keep", Path: "/"},
	})

	ExpireCookies(jar, origin, "shop_renewal")

	for _, c := range jar.Cookies(origin) {
		if c.Name == "shop_renewal" {
			t.Errorf("shop_renewal still present with value %q", c.Value)
		}
	}

	found := false
	for _, c := range jar.Cookies(origin) {
		if c.Name == "other" {
			found = true
		}
	}
	if !found {
		t.Error("unrelated cookie was dropped")
	}
}

func TestExpireCookiesNilSafe(t *testing.T) {
	// Must not panic with nil jar or origin.
	ExpireCookies(nil, nil, "shop_renewal")
}
