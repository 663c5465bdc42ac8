package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authstatus"
)

type okDoer struct{}

func (okDoer) Do(*http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(`{"ok":true}`)),
	}, nil
}

func buildController(t *testing.T, p *Provider, nav authstatus.Navigator) *authstatus.Controller {
	t.Helper()

	c, err := authstatus.New().
		WithSessionProvider(p).
		WithNavigator(nav).
		WithHTTPClient(okDoer{}).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestUnsubscribeInsideCallbackReturns(t *testing.T) {
	store, _ := newTestStore(t)
	p := NewProvider(store, newTestTokens(t), "laptop")

	ready := make(chan func(), 1)
	returned := make(chan struct{})
	var once sync.Once
	unsubscribe, err := p.Subscribe(context.Background(), func(authstatus.Session) {
		unsub := <-ready
		unsub()
		once.Do(func() { close(returned) })
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	ready <- unsubscribe

	waitClosed(t, returned, "unsubscribe called from the callback")
}

func TestControllerClosesFromNavigator(t *testing.T) {
	store, _ := newTestStore(t)
	p := NewProvider(store, newTestTokens(t), "laptop")

	var c *authstatus.Controller
	closed := make(chan struct{})
	var once sync.Once
	c = buildController(t, p, authstatus.NavigatorFunc(func(string) {
		once.Do(func() {
			c.Close()
			close(closed)
		})
	}))
	// The initial notification can arrive before Start returns, in which case
	// Start already sees the controller closed.
	if err := c.Start(context.Background()); err != nil && !errors.Is(err, authstatus.ErrControllerClosed) {
		t.Fatalf("Start: %v", err)
	}

	waitClosed(t, closed, "Close called from the navigator")

	if err := c.Start(context.Background()); !errors.Is(err, authstatus.ErrControllerClosed) {
		t.Fatalf("Start after Close = %v, want ErrControllerClosed", err)
	}
}

func TestControllerClosesWhenStartContextEnds(t *testing.T) {
	store, _ := newTestStore(t)
	p := NewProvider(store, newTestTokens(t), "laptop")
	c := buildController(t, p, authstatus.NavigatorFunc(func(string) {}))

	ctx, cancel := context.WithCancel(context.Background())
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	states, stop := c.Watch()
	defer stop()

	cancel()

	deadline := time.After(2 * time.Second)
	for open := true; open; {
		select {
		case _, open = <-states:
		case <-deadline:
			t.Fatal("watch channel not closed after the start context ended")
		}
	}

	if _, err := store.SignIn(context.Background(), "laptop", "user-1", "alice@example.com"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if st := c.State(); st.Session != nil || st.Payload != nil {
		t.Fatalf("closed controller observed a sign-in: %+v", st)
	}
	if err := c.Start(context.Background()); !errors.Is(err, authstatus.ErrControllerClosed) {
		t.Fatalf("Start after context end = %v, want ErrControllerClosed", err)
	}
}
