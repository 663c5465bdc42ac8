package authstatus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSession struct {
	id    string
	token string
	err   error
}

func (s *fakeSession) UserID() string { return s.id }

func (s *fakeSession) Credential(context.Context) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.token, nil
}

// fakeProvider hands the callback back to the test so notifications can be
// driven synchronously.
type fakeProvider struct {
	mu           sync.Mutex
	onChange     func(Session)
	initial      Session
	sendInitial  bool
	subscribeErr error
	subscribes   atomic.Int32
	unsubscribes atomic.Int32
}

func (p *fakeProvider) Subscribe(_ context.Context, onChange func(Session)) (func(), error) {
	p.subscribes.Add(1)
	if p.subscribeErr != nil {
		return nil, p.subscribeErr
	}
	p.mu.Lock()
	p.onChange = onChange
	p.mu.Unlock()
	if p.sendInitial {
		onChange(p.initial)
	}
	return func() { p.unsubscribes.Add(1) }, nil
}

func (p *fakeProvider) emit(s Session) {
	p.mu.Lock()
	cb := p.onChange
	p.mu.Unlock()
	cb(s)
}

type recordingNavigator struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNavigator) NavigateTo(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

func (n *recordingNavigator) Paths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

type canned struct {
	status int
	body   string
}

// tokenDoer answers each bearer token with a fixed response.
func tokenDoer(responses map[string]canned) doerFunc {
	return func(req *http.Request) (*http.Response, error) {
		token := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
		resp, ok := responses[token]
		if !ok {
			return nil, errors.New("no response for " + token)
		}
		return jsonResponse(resp.status, resp.body), nil
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestController(t *testing.T, provider SessionProvider, nav Navigator, doer HTTPDoer, mutate func(*Config)) *Controller {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New().
		WithConfig(cfg).
		WithSessionProvider(provider).
		WithNavigator(nav).
		WithHTTPClient(doer).
		WithLogger(discardLogger()).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func startController(t *testing.T, c *Controller) {
	t.Helper()
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
