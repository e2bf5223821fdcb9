package session

import (
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"shopagent/internal/model"
)

// signedToken mints a structurally valid bearer token for tests.
func signedToken(t *testing.T) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1"})
	s, err := tok.SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return s
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "a.b.c", "a.b.c"},
		{"whitespace", "  a.b.c \n", "a.b.c"},
		{"double quotes", `"a.b.c"`, "a.b.c"},
		{"single quotes", `'a.b.c'`, "a.b.c"},
		{"nested quotes", `"'a.b.c'"`, "a.b.c"},
		{"quotes and whitespace", `  "a.b.c"  `, "a.b.c"},
		{"bearer prefix", "Bearer a.b.c", "a.b.c"},
		{"quoted bearer prefix", `"Bearer a.b.c"`, "a.b.c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateShape(t *testing.T) {
	valid := signedToken(t)
	if err := ValidateShape(valid); err != nil {
		t.Errorf("ValidateShape(valid token) = %v, want nil", err)
	}

	invalid := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"two segments", "aaaa.bbbb"},
		{"four segments", "a.b.c.d"},
		{"not base64 json", "!!.!!.!!"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateShape(tt.token)
			if err == nil {
				t.Fatalf("ValidateShape(%q) = nil, want error", tt.token)
			}
			if !errors.Is(err, model.ErrMalformedCredential) {
				t.Errorf("error = %v, want ErrMalformedCredential", err)
			}
		})
	}
}

func TestStoreSetAndBearer(t *testing.T) {
	store := NewStore(nil)
	token := signedToken(t)

	// Stray quotes and whitespace around the token must be stripped before
	// storage.
	if err := store.Set(`  "` + token + `"  `); err != nil {
		t.Fatalf("Set() = %v, want nil", err)
	}

	got, ok := store.Bearer()
	if !ok {
		t.Fatal("Bearer() reported no credential after Set")
	}
	if got != token {
		t.Errorf("Bearer() = %q, want cleanly trimmed %q", got, token)
	}
	if !store.IsAuthenticated() {
		t.Error("IsAuthenticated() = false after successful Set")
	}
}

func TestStoreSetMalformedPurges(t *testing.T) {
	store := NewStore(nil)
	if err := store.Set(signedToken(t)); err != nil {
		t.Fatalf("Set(valid) = %v", err)
	}

	err := store.Set("only.two")
	if err == nil {
		t.Fatal("Set(malformed) = nil, want error")
	}
	if !errors.Is(err, model.ErrMalformedCredential) {
		t.Errorf("error = %v, want ErrMalformedCredential", err)
	}

	if _, ok := store.Bearer(); ok {
		t.Error("previous credential survived a malformed Set, want purge")
	}
	if store.IsAuthenticated() {
		t.Error("IsAuthenticated() = true after malformed Set, want false")
	}
}

func TestStoreClear(t *testing.T) {
	store := NewStore(nil)
	if err := store.Set(signedToken(t)); err != nil {
		t.Fatalf("Set() = %v", err)
	}

	store.Clear()

	if _, ok := store.Bearer(); ok {
		t.Error("Bearer() reported a credential after Clear")
	}
	if store.IsAuthenticated() {
		t.Error("IsAuthenticated() = true after Clear")
	}
}

func TestSubscribeFiresOnTransitionsOnly(t *testing.T) {
	store := NewStore(nil)
	token := signedToken(t)

	var events []bool
	store.Subscribe(func(authed bool) { events = append(events, authed) })

	store.Set(token)  // false→true fires
	store.Set(token)  // already authenticated, no fire
	store.Clear()     // true→false fires
	store.Clear()     // already unauthenticated, no fire
	store.Set(token)  // false→true fires

	want := []bool{true, false, true}
	if len(events) != len(want) {
		t.Fatalf("got %d notifications %v, want %d %v", len(events), events, len(want), want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("notification %d = %v, want %v", i, events[i], want[i])
		}
	}
}

func TestSubscribeRegistrationOrder(t *testing.T) {
	store := NewStore(nil)

	var order []int
	store.Subscribe(func(bool) { order = append(order, 1) })
	store.Subscribe(func(bool) { order = append(order, 2) })

	store.Set(signedToken(t))

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("notification order = %v, want [1 2]", order)
	}
}
