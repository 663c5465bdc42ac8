package authstatus

import (
	"errors"
	"strconv"
)

var (
	// ErrSubscribe wraps failures returned by SessionProvider.Subscribe.
	ErrSubscribe = errors.New("session subscription failed")
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("controller already started")
	// ErrControllerClosed is returned by Start after Close.
	ErrControllerClosed = errors.New("controller closed")
	// ErrNilProvider is returned by Build without a SessionProvider.
	ErrNilProvider = errors.New("nil session provider")
	// ErrNilNavigator is returned by Build without a Navigator.
	ErrNilNavigator = errors.New("nil navigator")
	// ErrInvalidConfig wraps config validation failures.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrUnexpectedStatus marks non-2xx responses from the protected endpoint.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrNoPayload is returned by State.DecodePayload when nothing was fetched.
	ErrNoPayload = errors.New("no protected payload")
)

// DefaultFetchErrorMessage is used when a non-2xx response carries no message.
const DefaultFetchErrorMessage = "Failed to fetch protected data."

// FetchErrorKind classifies a failed fetch.
type FetchErrorKind string

const (
	// FetchErrorCredential means the session could not produce a credential.
	FetchErrorCredential FetchErrorKind = "credential"
	// FetchErrorTransport means the request could not be built or sent.
	FetchErrorTransport FetchErrorKind = "transport"
	// FetchErrorStatus means the endpoint answered with a non-2xx status.
	FetchErrorStatus FetchErrorKind = "status"
	// FetchErrorDecode means a 2xx body could not be read or parsed.
	FetchErrorDecode FetchErrorKind = "decode"
)

// FetchError describes why a protected-data fetch failed. Its Error method
// returns the message surfaced in State.FetchError.
type FetchError struct {
	Kind    FetchErrorKind
	Status  int
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Status != 0 {
		return "status " + strconv.Itoa(e.Status)
	}
	return DefaultFetchErrorMessage
}

func (e *FetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	if e.Kind == FetchErrorStatus && e.Err == nil {
		return ErrUnexpectedStatus
	}
	return e.Err
}
