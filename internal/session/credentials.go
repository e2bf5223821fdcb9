// Package session owns the bearer-credential lifecycle: storage and
// sanitization of the short-lived bearer token, the reactive
// authentication signal, and the single-flight renewal coordinator.
package session

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"shopagent/internal/model"
)

// Store holds the current bearer credential. The longer-lived renewal
// credential is never held here; it lives in the transport cookie jar and
// is only ever sent, not read.
//
// A bearer value, if present, must be a three-segment signed token.
// Malformed values are treated as absent and purged on detection.
type Store struct {
	mu     sync.Mutex
	bearer string
	authed bool
	subs   []func(authenticated bool)
	logger *slog.Logger
}

// NewStore creates an empty credential store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{logger: logger}
}

// Sanitize strips whitespace and quoting artifacts from a raw credential
// value. Tokens copied through JSON re-serialization or shell pipelines
// show up wrapped in stray quotes often enough that this is load-bearing.
func Sanitize(raw string) string {
	s := strings.TrimSpace(raw)
	for len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			s = strings.TrimSpace(s[1 : len(s)-1])
			continue
		}
		break
	}
	s = strings.TrimPrefix(s, "Bearer ")
	return strings.TrimSpace(s)
}

// ValidateShape checks that a sanitized credential has the three-segment
// signed-token shape. The signature is NOT verified; that is the server's
// job. This only rejects values that cannot possibly be a signed token.
func ValidateShape(token string) error {
	if token == "" {
		return model.NewMalformedCredentialError("empty credential")
	}
	if strings.Count(token, ".") != 2 {
		return model.NewMalformedCredentialError("credential is not a three-segment token")
	}
	if _, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{}); err != nil {
		return model.NewMalformedCredentialError("credential failed token parsing: " + err.Error())
	}
	return nil
}

// Set sanitizes and validates raw, then stores it and flips the
// authentication signal to true. A malformed value purges any stored
// credential and returns MalformedCredential.
func (s *Store) Set(raw string) error {
	token := Sanitize(raw)
	if err := ValidateShape(token); err != nil {
		s.logger.Warn("rejecting malformed bearer credential")
		s.Clear()
		return err
	}

	s.mu.Lock()
	s.bearer = token
	flipped := !s.authed
	s.authed = true
	subs := s.snapshotSubs()
	s.mu.Unlock()

	if flipped {
		notify(subs, true)
	}
	return nil
}

// Bearer returns the stored credential, revalidating its shape on every
// read. A value that became malformed is purged and reported absent, so
// the caller proceeds without an Authorization header and the server's
// 401 drives the normal renewal path.
func (s *Store) Bearer() (string, bool) {
	s.mu.Lock()
	token := s.bearer
	s.mu.Unlock()

	if token == "" {
		return "", false
	}
	if err := ValidateShape(token); err != nil {
		s.logger.Warn("purging malformed stored credential")
		s.Clear()
		return "", false
	}
	return token, true
}

// Clear removes the credential and flips the authentication signal to
// false. Called on logout, renewal failure, and malformed-shape detection.
func (s *Store) Clear() {
	s.mu.Lock()
	s.bearer = ""
	flipped := s.authed
	s.authed = false
	subs := s.snapshotSubs()
	s.mu.Unlock()

	if flipped {
		notify(subs, false)
	}
}

// IsAuthenticated reports the current authentication signal. True only
// after a successful login, OAuth completion, or renewal; false after
// logout or irrecoverable renewal failure.
func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authed
}

// Subscribe registers fn to run on every false↔true transition of the
// authentication signal. fn is invoked synchronously, outside the store
// lock, in registration order. An already-authenticated session refresh
// does not fire.
func (s *Store) Subscribe(fn func(authenticated bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Store) snapshotSubs() []func(bool) {
	out := make([]func(bool), len(s.subs))
	copy(out, s.subs)
	return out
}

func notify(subs []func(bool), authed bool) {
	for _, fn := range subs {
		fn(authed)
	}
}
