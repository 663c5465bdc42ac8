package authstatus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestLoadingClearsOnFirstObservation(t *testing.T) {
	provider := &fakeProvider{}
	nav := &recordingNavigator{}
	c := newTestController(t, provider, nav, tokenDoer(nil), nil)

	if !c.State().Loading {
		t.Fatal("expected Loading before the first notification")
	}
	startController(t, c)
	if !c.State().Loading {
		t.Fatal("expected Loading until the provider reports")
	}

	provider.emit(nil)
	if c.State().Loading {
		t.Fatal("expected Loading=false after first notification")
	}

	provider.emit(&fakeSession{id: "u1", token: "tok"})
	if c.State().Loading {
		t.Fatal("Loading must never return to true")
	}
}

func TestAbsentSessionClearsDataAndNavigatesOnce(t *testing.T) {
	provider := &fakeProvider{}
	nav := &recordingNavigator{}
	c := newTestController(t, provider, nav, tokenDoer(map[string]canned{
		"tok": {status: http.StatusOK, body: `{"value":42}`},
	}), nil)
	startController(t, c)

	provider.emit(&fakeSession{id: "u1", token: "tok"})
	waitFor(t, "payload", func() bool { return c.State().Payload != nil })
	if len(nav.Paths()) != 0 {
		t.Fatalf("unexpected navigation with a session present: %v", nav.Paths())
	}

	provider.emit(nil)

	state := c.State()
	if state.Session != nil || state.Authenticated() {
		t.Fatal("expected no session")
	}
	if state.Payload != nil {
		t.Fatalf("expected payload cleared, got %s", state.Payload)
	}
	if state.FetchError != "" {
		t.Fatalf("expected empty fetch error, got %q", state.FetchError)
	}
	paths := nav.Paths()
	if len(paths) != 1 || paths[0] != "/login" {
		t.Fatalf("expected exactly one navigation to /login, got %v", paths)
	}
	if got := c.Metrics().Value(MetricNavigation); got != 1 {
		t.Fatalf("expected navigation metric 1, got %d", got)
	}
}

func TestInitialAbsentSessionNavigates(t *testing.T) {
	provider := &fakeProvider{sendInitial: true}
	nav := &recordingNavigator{}
	c := newTestController(t, provider, nav, tokenDoer(nil), func(cfg *Config) {
		cfg.LoginPath = "/signin"
	})
	startController(t, c)

	if c.State().Loading {
		t.Fatal("expected Loading=false after the initial notification")
	}
	if paths := nav.Paths(); len(paths) != 1 || paths[0] != "/signin" {
		t.Fatalf("expected one navigation to /signin, got %v", paths)
	}
}

func TestFetchSendsBearerCredential(t *testing.T) {
	type seen struct {
		auth, contentType, path string
	}
	got := make(chan seen, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- seen{auth: r.Header.Get("Authorization"), contentType: r.Header.Get("Content-Type"), path: r.URL.Path}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":42}`))
	}))
	defer srv.Close()

	provider := &fakeProvider{}
	c := newTestController(t, provider, &recordingNavigator{}, srv.Client(), func(cfg *Config) {
		cfg.BaseURL = srv.URL
	})
	startController(t, c)

	provider.emit(&fakeSession{id: "u1", token: "tok123"})
	req := <-got

	if req.auth != "Bearer tok123" {
		t.Fatalf("expected Authorization: Bearer tok123, got %q", req.auth)
	}
	if req.contentType != "application/json" {
		t.Fatalf("expected Content-Type application/json, got %q", req.contentType)
	}
	if req.path != "/api/protected-data" {
		t.Fatalf("expected default endpoint, got %q", req.path)
	}
}

func TestFetchSuccessStoresPayload(t *testing.T) {
	provider := &fakeProvider{}
	c := newTestController(t, provider, &recordingNavigator{}, tokenDoer(map[string]canned{
		"tok": {status: http.StatusOK, body: `{"value":42}`},
	}), nil)
	startController(t, c)

	provider.emit(&fakeSession{id: "u1", token: "tok"})
	waitFor(t, "payload", func() bool { return c.State().Payload != nil })

	state := c.State()
	if !bytes.Equal(state.Payload, []byte(`{"value":42}`)) {
		t.Fatalf("unexpected payload %s", state.Payload)
	}
	if state.FetchError != "" {
		t.Fatalf("expected empty fetch error, got %q", state.FetchError)
	}

	var decoded struct {
		Value int `json:"value"`
	}
	if err := state.DecodePayload(&decoded); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if decoded.Value != 42 {
		t.Fatalf("expected value 42, got %d", decoded.Value)
	}
	if got := c.Metrics().Value(MetricFetchSuccess); got != 1 {
		t.Fatalf("expected fetch success metric 1, got %d", got)
	}
}

func TestStatusErrorKeepsPreviousPayload(t *testing.T) {
	provider := &fakeProvider{}
	c := newTestController(t, provider, &recordingNavigator{}, tokenDoer(map[string]canned{
		"good":      {status: http.StatusOK, body: `{"value":42}`},
		"forbidden": {status: http.StatusForbidden, body: `{"message":"forbidden"}`},
	}), nil)
	startController(t, c)

	provider.emit(&fakeSession{id: "u1", token: "good"})
	waitFor(t, "payload", func() bool { return c.State().Payload != nil })

	provider.emit(&fakeSession{id: "u1", token: "forbidden"})
	waitFor(t, "fetch error", func() bool { return c.State().FetchError != "" })

	state := c.State()
	if state.FetchError != "forbidden" {
		t.Fatalf("expected fetch error %q, got %q", "forbidden", state.FetchError)
	}
	if !bytes.Equal(state.Payload, []byte(`{"value":42}`)) {
		t.Fatalf("expected previous payload to survive, got %s", state.Payload)
	}
	if got := c.Metrics().Value(MetricFetchStatusFailure); got != 1 {
		t.Fatalf("expected status failure metric 1, got %d", got)
	}
}

func TestStatusErrorWithoutMessageUsesDefault(t *testing.T) {
	for name, body := range map[string]string{
		"empty":         ``,
		"not json":      `upstream exploded`,
		"blank message": `{"message":""}`,
	} {
		t.Run(name, func(t *testing.T) {
			provider := &fakeProvider{}
			c := newTestController(t, provider, &recordingNavigator{}, tokenDoer(map[string]canned{
				"tok": {status: http.StatusInternalServerError, body: body},
			}), nil)
			startController(t, c)

			provider.emit(&fakeSession{id: "u1", token: "tok"})
			waitFor(t, "fetch error", func() bool { return c.State().FetchError != "" })

			if got := c.State().FetchError; got != DefaultFetchErrorMessage {
				t.Fatalf("expected %q, got %q", DefaultFetchErrorMessage, got)
			}
		})
	}
}

func TestClearPayloadOnError(t *testing.T) {
	provider := &fakeProvider{}
	c := newTestController(t, provider, &recordingNavigator{}, tokenDoer(map[string]canned{
		"good": {status: http.StatusOK, body: `{"value":42}`},
		"bad":  {status: http.StatusUnauthorized, body: `{"message":"expired"}`},
	}), func(cfg *Config) {
		cfg.ClearPayloadOnError = true
	})
	startController(t, c)

	provider.emit(&fakeSession{id: "u1", token: "good"})
	waitFor(t, "payload", func() bool { return c.State().Payload != nil })

	provider.emit(&fakeSession{id: "u1", token: "bad"})
	waitFor(t, "fetch error", func() bool { return c.State().FetchError != "" })

	state := c.State()
	if state.Payload != nil {
		t.Fatalf("expected payload cleared on error, got %s", state.Payload)
	}
	if state.FetchError != "expired" {
		t.Fatalf("expected %q, got %q", "expired", state.FetchError)
	}
}

func TestTransportErrorSurfacesMessage(t *testing.T) {
	provider := &fakeProvider{}
	c := newTestController(t, provider, &recordingNavigator{}, doerFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	}), nil)
	startController(t, c)

	provider.emit(&fakeSession{id: "u1", token: "tok"})
	waitFor(t, "fetch error", func() bool { return c.State().FetchError != "" })

	if got := c.State().FetchError; got != "connection refused" {
		t.Fatalf("expected transport message, got %q", got)
	}
	if got := c.Metrics().Value(MetricFetchTransportFailure); got != 1 {
		t.Fatalf("expected transport failure metric 1, got %d", got)
	}
}

func TestCredentialErrorSkipsRequest(t *testing.T) {
	var requests atomic.Int32
	provider := &fakeProvider{}
	c := newTestController(t, provider, &recordingNavigator{}, doerFunc(func(*http.Request) (*http.Response, error) {
		requests.Add(1)
		return jsonResponse(http.StatusOK, `{}`), nil
	}), nil)
	startController(t, c)

	provider.emit(&fakeSession{id: "u1", err: errors.New("token unavailable")})
	waitFor(t, "fetch error", func() bool { return c.State().FetchError != "" })

	if got := c.State().FetchError; got != "token unavailable" {
		t.Fatalf("expected credential message, got %q", got)
	}
	if requests.Load() != 0 {
		t.Fatal("expected no request without a credential")
	}
	if got := c.Metrics().Value(MetricFetchCredentialFailure); got != 1 {
		t.Fatalf("expected credential failure metric 1, got %d", got)
	}
}

func TestMalformedSuccessBodyIsDecodeFailure(t *testing.T) {
	provider := &fakeProvider{}
	c := newTestController(t, provider, &recordingNavigator{}, tokenDoer(map[string]canned{
		"tok": {status: http.StatusOK, body: `{"value":`},
	}), nil)
	startController(t, c)

	provider.emit(&fakeSession{id: "u1", token: "tok"})
	waitFor(t, "fetch error", func() bool { return c.State().FetchError != "" })

	if c.State().Payload != nil {
		t.Fatal("expected no payload from a malformed body")
	}
	if got := c.Metrics().Value(MetricFetchDecodeFailure); got != 1 {
		t.Fatalf("expected decode failure metric 1, got %d", got)
	}
}

func TestOversizedBodyIsRejected(t *testing.T) {
	provider := &fakeProvider{}
	c := newTestController(t, provider, &recordingNavigator{}, tokenDoer(map[string]canned{
		"tok": {status: http.StatusOK, body: `{"value":"0123456789"}`},
	}), func(cfg *Config) {
		cfg.MaxResponseBytes = 8
	})
	startController(t, c)

	provider.emit(&fakeSession{id: "u1", token: "tok"})
	waitFor(t, "fetch error", func() bool { return c.State().FetchError != "" })

	if got := c.State().FetchError; got != "response body exceeds 8 bytes" {
		t.Fatalf("unexpected fetch error %q", got)
	}
}

func TestSupersededFetchResultIsDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	provider := &fakeProvider{}
	c := newTestController(t, provider, &recordingNavigator{}, doerFunc(func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Authorization") == "Bearer slow" {
			close(started)
			<-release
			return jsonResponse(http.StatusOK, `{"who":"slow"}`), nil
		}
		return jsonResponse(http.StatusOK, `{"who":"fast"}`), nil
	}), func(cfg *Config) {
		cfg.CancelSuperseded = false
	})
	startController(t, c)

	provider.emit(&fakeSession{id: "slow", token: "slow"})
	<-started
	provider.emit(&fakeSession{id: "fast", token: "fast"})
	waitFor(t, "fast payload", func() bool { return c.State().Payload != nil })

	close(release)
	waitFor(t, "superseded metric", func() bool { return c.Metrics().Value(MetricFetchSuperseded) == 1 })

	if got := c.State().Payload; !bytes.Equal(got, []byte(`{"who":"fast"}`)) {
		t.Fatalf("superseded fetch overwrote newer state: %s", got)
	}
}

func TestSupersededFetchIsCancelled(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	provider := &fakeProvider{}
	c := newTestController(t, provider, &recordingNavigator{}, doerFunc(func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Authorization") == "Bearer slow" {
			close(started)
			<-req.Context().Done()
			close(cancelled)
			return nil, req.Context().Err()
		}
		return jsonResponse(http.StatusOK, `{"who":"fast"}`), nil
	}), nil)
	startController(t, c)

	provider.emit(&fakeSession{id: "slow", token: "slow"})
	<-started
	provider.emit(&fakeSession{id: "fast", token: "fast"})
	<-cancelled

	waitFor(t, "fast payload", func() bool { return c.State().Payload != nil })
	waitFor(t, "superseded metric", func() bool { return c.Metrics().Value(MetricFetchSuperseded) == 1 })

	state := c.State()
	if state.FetchError != "" {
		t.Fatalf("cancelled fetch leaked its error: %q", state.FetchError)
	}
	if !bytes.Equal(state.Payload, []byte(`{"who":"fast"}`)) {
		t.Fatalf("unexpected payload %s", state.Payload)
	}
}

func TestAbsentSessionCancelsInflightFetch(t *testing.T) {
	started := make(chan struct{})
	provider := &fakeProvider{}
	c := newTestController(t, provider, &recordingNavigator{}, doerFunc(func(req *http.Request) (*http.Response, error) {
		close(started)
		<-req.Context().Done()
		return nil, req.Context().Err()
	}), nil)
	startController(t, c)

	provider.emit(&fakeSession{id: "u1", token: "tok"})
	<-started
	provider.emit(nil)

	waitFor(t, "superseded metric", func() bool { return c.Metrics().Value(MetricFetchSuperseded) == 1 })
	if got := c.State().FetchError; got != "" {
		t.Fatalf("expected no error after sign-out, got %q", got)
	}
}

func TestCloseStopsStateChanges(t *testing.T) {
	started := make(chan struct{})
	provider := &fakeProvider{}
	nav := &recordingNavigator{}
	c := newTestController(t, provider, nav, doerFunc(func(req *http.Request) (*http.Response, error) {
		close(started)
		<-req.Context().Done()
		return nil, req.Context().Err()
	}), nil)
	startController(t, c)

	provider.emit(&fakeSession{id: "u1", token: "tok"})
	<-started

	c.Close()
	before := c.State()

	provider.emit(nil)

	after := c.State()
	if after.Session != before.Session || after.FetchError != before.FetchError || after.Loading != before.Loading {
		t.Fatalf("state changed after Close: before=%+v after=%+v", before, after)
	}
	if len(nav.Paths()) != 0 {
		t.Fatalf("navigated after Close: %v", nav.Paths())
	}
	if before.FetchError != "" {
		t.Fatalf("cancelled fetch stored an error: %q", before.FetchError)
	}

	c.Close()
	if got := provider.unsubscribes.Load(); got != 1 {
		t.Fatalf("expected exactly one unsubscribe, got %d", got)
	}
}

func TestStartSubscribeErrorIsWrapped(t *testing.T) {
	cause := errors.New("provider offline")
	provider := &fakeProvider{subscribeErr: cause}
	c := newTestController(t, provider, &recordingNavigator{}, tokenDoer(nil), nil)

	err := c.Start(context.Background())
	if !errors.Is(err, ErrSubscribe) {
		t.Fatalf("expected ErrSubscribe, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected provider error in chain, got %v", err)
	}
	if got := provider.subscribes.Load(); got != 1 {
		t.Fatalf("expected a single subscribe attempt, got %d", got)
	}
}

func TestStartLifecycleErrors(t *testing.T) {
	provider := &fakeProvider{}
	c := newTestController(t, provider, &recordingNavigator{}, tokenDoer(nil), nil)
	startController(t, c)

	if err := c.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}

	c.Close()
	if err := c.Start(context.Background()); !errors.Is(err, ErrControllerClosed) {
		t.Fatalf("expected ErrControllerClosed, got %v", err)
	}
	if got := provider.subscribes.Load(); got != 1 {
		t.Fatalf("expected one subscription, got %d", got)
	}
}

func TestCloseWithoutStart(t *testing.T) {
	provider := &fakeProvider{}
	c := newTestController(t, provider, &recordingNavigator{}, tokenDoer(nil), nil)
	c.Close()
	if got := provider.unsubscribes.Load(); got != 0 {
		t.Fatalf("expected no unsubscribe without a subscription, got %d", got)
	}
}

func TestBuildRequiresCapabilities(t *testing.T) {
	if _, err := New().WithNavigator(&recordingNavigator{}).Build(); !errors.Is(err, ErrNilProvider) {
		t.Fatalf("expected ErrNilProvider, got %v", err)
	}
	if _, err := New().WithSessionProvider(&fakeProvider{}).Build(); !errors.Is(err, ErrNilNavigator) {
		t.Fatalf("expected ErrNilNavigator, got %v", err)
	}

	cfg := DefaultConfig()
	cfg.LoginPath = ""
	_, err := New().
		WithConfig(cfg).
		WithSessionProvider(&fakeProvider{}).
		WithNavigator(&recordingNavigator{}).
		Build()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}

	b := New().WithSessionProvider(&fakeProvider{}).WithNavigator(NavigatorFunc(func(string) {}))
	if _, err := b.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestWatchDeliversLatestState(t *testing.T) {
	provider := &fakeProvider{}
	c := newTestController(t, provider, &recordingNavigator{}, tokenDoer(map[string]canned{
		"tok": {status: http.StatusOK, body: `{"value":42}`},
	}), nil)

	states, cancel := c.Watch()
	initial := <-states
	if !initial.Loading {
		t.Fatal("expected initial watched state to be loading")
	}

	startController(t, c)
	provider.emit(&fakeSession{id: "u1", token: "tok"})

	for state := range states {
		if state.Loading {
			t.Fatal("Loading returned to true")
		}
		if state.Payload != nil {
			var decoded map[string]int
			if err := json.Unmarshal(state.Payload, &decoded); err != nil || decoded["value"] != 42 {
				t.Fatalf("unexpected watched payload %s", state.Payload)
			}
			break
		}
	}

	cancel()
	cancel()
	if _, ok := <-states; ok {
		// A buffered state may still be pending; the next receive must see the close.
		if _, ok := <-states; ok {
			t.Fatal("expected channel closed after cancel")
		}
	}
}

func TestWatchClosedByClose(t *testing.T) {
	c := newTestController(t, &fakeProvider{}, &recordingNavigator{}, tokenDoer(nil), nil)
	states, _ := c.Watch()
	<-states

	c.Close()
	if _, ok := <-states; ok {
		t.Fatal("expected channel closed by Close")
	}

	late, _ := c.Watch()
	if _, ok := <-late; ok {
		t.Fatal("expected Watch after Close to return a closed channel")
	}
}

func TestStateIsACopy(t *testing.T) {
	provider := &fakeProvider{}
	c := newTestController(t, provider, &recordingNavigator{}, tokenDoer(map[string]canned{
		"tok": {status: http.StatusOK, body: `{"value":42}`},
	}), nil)
	startController(t, c)

	provider.emit(&fakeSession{id: "u1", token: "tok"})
	waitFor(t, "payload", func() bool { return c.State().Payload != nil })

	state := c.State()
	state.Payload[0] = 'X'
	if c.State().Payload[0] != '{' {
		t.Fatal("mutating a returned State changed the controller")
	}
}

func TestDecodePayloadWithoutPayload(t *testing.T) {
	var v any
	if err := (State{}).DecodePayload(&v); !errors.Is(err, ErrNoPayload) {
		t.Fatalf("expected ErrNoPayload, got %v", err)
	}
}

func TestStartContextCancelClosesController(t *testing.T) {
	provider := &fakeProvider{}
	nav := &recordingNavigator{}
	c := newTestController(t, provider, nav, tokenDoer(nil), nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	waitFor(t, "unsubscribe after context cancel", func() bool {
		return provider.unsubscribes.Load() == 1
	})

	provider.emit(nil)
	if len(nav.Paths()) != 0 {
		t.Fatalf("navigated after context cancel: %v", nav.Paths())
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrControllerClosed) {
		t.Fatalf("expected ErrControllerClosed, got %v", err)
	}
}

func TestCloseFromNavigator(t *testing.T) {
	provider := &fakeProvider{}
	var c *Controller
	calls := 0
	c = newTestController(t, provider, NavigatorFunc(func(string) {
		calls++
		c.Close()
	}), tokenDoer(nil), nil)
	startController(t, c)

	provider.emit(nil)
	provider.emit(&fakeSession{id: "u1", token: "tok"})
	provider.emit(nil)

	if calls != 1 {
		t.Fatalf("expected one navigation, got %d", calls)
	}
	if got := provider.unsubscribes.Load(); got != 1 {
		t.Fatalf("expected one unsubscribe, got %d", got)
	}
	if st := c.State(); st.Session != nil {
		t.Fatalf("session recorded after Close: %+v", st)
	}
}

// hookHandler runs fn when a record with msg is logged.
type hookHandler struct {
	msg string
	fn  func()
}

func (h hookHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h hookHandler) Handle(_ context.Context, r slog.Record) error {
	if r.Message == h.msg {
		h.fn()
	}
	return nil
}

func (h hookHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h hookHandler) WithGroup(string) slog.Handler { return h }

func TestNoNavigationWhenClosedMidNotification(t *testing.T) {
	provider := &fakeProvider{}
	nav := &recordingNavigator{}
	var c *Controller
	var err error
	c, err = New().
		WithSessionProvider(provider).
		WithNavigator(nav).
		WithHTTPClient(tokenDoer(nil)).
		WithLogger(slog.New(hookHandler{msg: "session absent", fn: func() { c.Close() }})).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(c.Close)
	startController(t, c)

	provider.emit(nil)

	if len(nav.Paths()) != 0 {
		t.Fatalf("navigated after Close: %v", nav.Paths())
	}
}
