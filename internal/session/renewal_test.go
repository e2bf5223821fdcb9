package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"shopagent/internal/model"
)

type fakeNavigator struct {
	mu      sync.Mutex
	current string
	toLogin int
}

func (n *fakeNavigator) Current() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

func (n *fakeNavigator) ToLogin() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toLogin++
}

func (n *fakeNavigator) loginCalls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.toLogin
}

func TestSingleFlightRenewal(t *testing.T) {
	const followers = 4

	store := NewStore(nil)
	token := signedToken(t)

	var renewCalls int32
	renewStarted := make(chan struct{})
	renewRelease := make(chan struct{})
	renew := func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&renewCalls, 1) == 1 {
			close(renewStarted)
		}
		<-renewRelease
		return token, nil
	}

	var replayMu sync.Mutex
	var replayed []string
	replay := func(ctx context.Context, req *model.Request) (*model.Response, error) {
		replayMu.Lock()
		replayed = append(replayed, req.Path)
		replayMu.Unlock()
		return &model.Response{StatusCode: http.StatusOK}, nil
	}

	coord := NewCoordinator(CoordinatorConfig{
		Store:  store,
		Renew:  renew,
		Replay: replay,
	})

	var wg sync.WaitGroup
	errs := make(chan error, followers+1)

	// Leader arrives first and starts the renewal.
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := coord.HandleUnauthenticated(context.Background(), &model.Request{Path: "/lead"})
		errs <- err
	}()
	<-renewStarted

	// Followers arrive while the renewal is in flight; they must park, not
	// start renewals of their own.
	for i := 0; i < followers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coord.HandleUnauthenticated(context.Background(), &model.Request{Path: "/follow"})
			errs <- err
		}()
	}
	time.Sleep(100 * time.Millisecond)
	close(renewRelease)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("parked request settled with error: %v", err)
		}
	}
	if got := atomic.LoadInt32(&renewCalls); got != 1 {
		t.Errorf("renewal calls = %d, want exactly 1", got)
	}
	if got, want := len(replayed), followers+1; got != want {
		t.Errorf("replayed %d requests, want %d", got, want)
	}
	if len(replayed) > 0 && replayed[0] != "/lead" {
		t.Errorf("first replay = %q, want the leader's request /lead", replayed[0])
	}
	if !store.IsAuthenticated() {
		t.Error("store not authenticated after successful renewal")
	}
}

func TestNoThirdRetry(t *testing.T) {
	coord := NewCoordinator(CoordinatorConfig{
		Store: NewStore(nil),
		Renew: func(ctx context.Context) (string, error) {
			t.Error("renewal started for an already-retried request")
			return "", nil
		},
	})

	req := &model.Request{Path: "/orders"}
	req.MarkRetried()

	_, err := coord.HandleUnauthenticated(context.Background(), req)
	if err == nil {
		t.Fatal("HandleUnauthenticated(retried request) = nil, want terminal error")
	}
	if !errors.Is(err, model.ErrUnauthenticated) {
		t.Errorf("error = %v, want ErrUnauthenticated", err)
	}
}

func TestRenewalFailureRejectsAll(t *testing.T) {
	store := NewStore(nil)
	if err := store.Set(signedToken(t)); err != nil {
		t.Fatalf("Set() = %v", err)
	}

	cookieCleared := false
	nav := &fakeNavigator{current: "/checkout"}
	renewErr := errors.New("renewal credential expired")

	coord := NewCoordinator(CoordinatorConfig{
		Store:              store,
		Renew:              func(ctx context.Context) (string, error) { return "", renewErr },
		Navigator:          nav,
		ClearRenewalCookie: func() { cookieCleared = true },
		PublicRoutes:       []string{"/", "/login"},
	})

	_, err := coord.HandleUnauthenticated(context.Background(), &model.Request{Path: "/orders"})
	if !errors.Is(err, renewErr) {
		t.Errorf("error = %v, want the renewal error", err)
	}
	if _, ok := store.Bearer(); ok {
		t.Error("credential survived renewal failure, want purge")
	}
	if !cookieCleared {
		t.Error("renewal cookie not cleared on failure")
	}
	if nav.loginCalls() != 1 {
		t.Errorf("ToLogin() called %d times, want 1", nav.loginCalls())
	}
}

func TestRenewalFailureNoRedirectOnPublicRoute(t *testing.T) {
	nav := &fakeNavigator{current: "/login"}

	coord := NewCoordinator(CoordinatorConfig{
		Store:        NewStore(nil),
		Renew:        func(ctx context.Context) (string, error) { return "", errors.New("nope") },
		Navigator:    nav,
		PublicRoutes: []string{"/", "/login"},
	})

	coord.HandleUnauthenticated(context.Background(), &model.Request{Path: "/cart"})

	if nav.loginCalls() != 0 {
		t.Errorf("ToLogin() called %d times on a public route, want 0", nav.loginCalls())
	}
}

func TestRenewalSuccessThenSecondCycle(t *testing.T) {
	store := NewStore(nil)
	token := signedToken(t)

	var renewCalls int
	coord := NewCoordinator(CoordinatorConfig{
		Store: store,
		Renew: func(ctx context.Context) (string, error) {
			renewCalls++
			return token, nil
		},
		Replay: func(ctx context.Context, req *model.Request) (*model.Response, error) {
			return &model.Response{StatusCode: http.StatusOK}, nil
		},
	})

	// Sequential cycles are independent: the single-flight guarantee is per
	// in-flight renewal, not once per process.
	for i := 0; i < 2; i++ {
		resp, err := coord.HandleUnauthenticated(context.Background(), &model.Request{Path: "/cart"})
		if err != nil {
			t.Fatalf("cycle %d: HandleUnauthenticated() = %v", i, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("cycle %d: status = %d, want 200", i, resp.StatusCode)
		}
	}
	if renewCalls != 2 {
		t.Errorf("renewal calls = %d, want 2", renewCalls)
	}
}

func TestSubscriberReentrantRenewal(t *testing.T) {
	store := NewStore(nil)
	token := signedToken(t)

	var renewCalls int32
	var coord *Coordinator
	coord = NewCoordinator(CoordinatorConfig{
		Store: store,
		Renew: func(ctx context.Context) (string, error) {
			atomic.AddInt32(&renewCalls, 1)
			return token, nil
		},
		Replay: func(ctx context.Context, req *model.Request) (*model.Response, error) {
			return &model.Response{StatusCode: http.StatusOK}, nil
		},
	})

	// A sign-in subscriber whose own protected call 401s and lands back
	// in the coordinator, the shape the cart reconciler takes when the
	// freshly renewed token has not propagated server side yet.
	nested := make(chan error, 1)
	store.Subscribe(func(authed bool) {
		if !authed {
			return
		}
		_, err := coord.HandleUnauthenticated(context.Background(), &model.Request{Path: "/cart/items"})
		nested <- err
	})

	done := make(chan error, 1)
	go func() {
		_, err := coord.HandleUnauthenticated(context.Background(), &model.Request{Path: "/orders"})
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("leader settled with error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("leader never settled after a subscriber re-entered the coordinator")
	}

	select {
	case err := <-nested:
		if err != nil {
			t.Errorf("re-entrant call settled with error: %v", err)
		}
	default:
		t.Fatal("auth subscriber never ran")
	}
	if got := atomic.LoadInt32(&renewCalls); got != 2 {
		t.Errorf("renewal calls = %d, want 2 (leader cycle plus the re-entrant cycle)", got)
	}
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		want   string
		wantOK bool
	}{
		{"top level", `{"token":"a.b.c"}`, "a.b.c", true},
		{"nested under data", `{"code":0,"data":{"token":"x.y.z"}}`, "x.y.z", true},
		{"top level wins", `{"token":"top.t.t","data":{"token":"nested.t.t"}}`, "top.t.t", true},
		{"neither shape", `{"access_token":"a.b.c"}`, "", false},
		{"empty token", `{"token":""}`, "", false},
		{"not json", `<html>`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractBearer([]byte(tt.body))
			if ok != tt.wantOK {
				t.Fatalf("ExtractBearer(%q) ok = %v, want %v", tt.body, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ExtractBearer(%q) = %q, want %q", tt.body, got, tt.want)
			}
		})
	}
}
