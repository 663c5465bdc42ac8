package authstatus

import (
	"context"
	"encoding/json"
	"net/http"
)

// Session is an authenticated identity produced by a [SessionProvider].
//
// Implementations are owned by the provider; the controller only references them.
type Session interface {
	// UserID identifies the signed-in user. It is used for logs and audit events only.
	UserID() string
	// Credential returns a short-lived bearer credential proving the session is valid.
	Credential(ctx context.Context) (string, error)
}

// SessionProvider publishes session transitions for the current client.
//
// Subscribe registers onChange and returns a function that removes the
// registration. Providers call onChange with nil when no user is signed in.
// Notifications must be delivered one at a time, in order.
//
// unsubscribe must be safe to call from inside onChange, since Close may run
// from a Navigator. Called from anywhere else it should wait for an in-progress
// onChange to return; a provider that does not wait can still have its last
// callback running, and the controller ignores it once closed.
type SessionProvider interface {
	Subscribe(ctx context.Context, onChange func(Session)) (unsubscribe func(), err error)
}

// Navigator moves the user to another location, typically the login page.
// NavigateTo runs on the provider's notification goroutine and may call
// Controller.Close.
type Navigator interface {
	NavigateTo(path string)
}

// NavigatorFunc adapts a plain function to [Navigator].
type NavigatorFunc func(path string)

// NavigateTo calls f(path).
func (f NavigatorFunc) NavigateTo(path string) {
	f(path)
}

// HTTPDoer sends HTTP requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// State is the snapshot exposed to UI code.
//
// Payload is the raw JSON body of the last successful fetch. FetchError is the
// message of the last failure, or "" when the last fetch succeeded or no session
// is present.
type State struct {
	Session    Session
	Loading    bool
	Payload    json.RawMessage
	FetchError string
}

// Authenticated reports whether a session is present.
func (s State) Authenticated() bool {
	return s.Session != nil
}

// DecodePayload unmarshals the stored payload into v. It returns
// [ErrNoPayload] when no payload has been fetched.
func (s State) DecodePayload(v any) error {
	if len(s.Payload) == 0 {
		return ErrNoPayload
	}
	return json.Unmarshal(s.Payload, v)
}

func (s State) clone() State {
	out := s
	if s.Payload != nil {
		out.Payload = append(json.RawMessage(nil), s.Payload...)
	}
	return out
}
