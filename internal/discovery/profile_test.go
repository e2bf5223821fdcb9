package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchProfileFromBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/storefront" {
			t.Errorf("path = %q, want /.well-known/storefront", r.URL.Path)
		}
		w.Write([]byte(`{"name":"Demo Shop","api_version":"1.2.0"}`))
	}))
	defer srv.Close()

	profile, err := NewClient(srv.URL, nil).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() = %v", err)
	}
	if profile.Name != "Demo Shop" {
		t.Errorf("Name = %q, want Demo Shop", profile.Name)
	}
	if profile.APIVersion != "1.2.0" {
		t.Errorf("APIVersion = %q, want 1.2.0", profile.APIVersion)
	}
}

func TestFetchHeaderOverridesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Storefront-Capabilities", `api="2.0.0", promotions="1.1.0"`)
		w.Write([]byte(`{"api_version":"1.0.0","capabilities":{"cart":"1.0.0"}}`))
	}))
	defer srv.Close()

	profile, err := NewClient(srv.URL, nil).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() = %v", err)
	}
	if profile.APIVersion != "2.0.0" {
		t.Errorf("APIVersion = %q, want header value 2.0.0", profile.APIVersion)
	}
	if profile.Capabilities["promotions"] != "1.1.0" {
		t.Errorf("promotions capability = %q, want 1.1.0", profile.Capabilities["promotions"])
	}
	if profile.Capabilities["cart"] != "1.0.0" {
		t.Errorf("cart capability = %q, want body value kept", profile.Capabilities["cart"])
	}
}

func TestFetchNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, nil).Fetch(context.Background()); err == nil {
		t.Error("Fetch() = nil on 404, want error")
	}
}

func TestParseCapabilitiesHeader(t *testing.T) {
	caps, err := ParseCapabilitiesHeader(`api="1.2.0", cart="2.1.0"`)
	if err != nil {
		t.Fatalf("ParseCapabilitiesHeader() = %v", err)
	}
	if caps["api"] != "1.2.0" || caps["cart"] != "2.1.0" {
		t.Errorf("caps = %v, want api and cart versions", caps)
	}

	if _, err := ParseCapabilitiesHeader(""); err == nil {
		t.Error("empty header parsed without error")
	}
	if _, err := ParseCapabilitiesHeader(`===`); err == nil {
		t.Error("garbage header parsed without error")
	}
}

func TestCheckCompatibility(t *testing.T) {
	tests := []struct {
		name    string
		have    string
		min     string
		wantErr bool
	}{
		{"equal", "1.0.0", "1.0.0", false},
		{"newer storefront", "2.3.0", "1.0.0", false},
		{"older storefront", "0.9.0", "1.0.0", true},
		{"v prefix tolerated", "v1.5.0", "1.0.0", false},
		{"invalid advertised", "not-a-version", "1.0.0", true},
		{"invalid minimum", "1.0.0", "???", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckCompatibility(&Profile{APIVersion: tt.have}, tt.min)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckCompatibility(%q, %q) err = %v, wantErr %v", tt.have, tt.min, err, tt.wantErr)
			}
		})
	}
}
