package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/MrEthical07/authstatus"
	"github.com/MrEthical07/authstatus/jwt"
)

var (
	_ authstatus.SessionProvider = (*Provider)(nil)
	_ authstatus.Session         = (*Handle)(nil)
)

// Provider delivers session notifications for a single client.
type Provider struct {
	store    *Store
	tokens   *jwt.Manager
	clientID string
	logger   *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger used for notification failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProvider creates a provider for clientID. tokens must be able to sign.
func NewProvider(store *Store, tokens *jwt.Manager, clientID string, opts ...Option) *Provider {
	p := &Provider{
		store:    store,
		tokens:   tokens,
		clientID: clientID,
		logger:   slog.Default().With("component", "session.provider"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subscribe listens on the client's event channel. onChange is called once
// with the current session (nil when signed out) and again after every notice,
// always from the same goroutine.
//
// The returned function closes the subscription and waits for the delivery
// goroutine to exit. Called while onChange is running, for example from inside
// it, it cancels delivery and returns without waiting.
func (p *Provider) Subscribe(ctx context.Context, onChange func(authstatus.Session)) (func(), error) {
	if onChange == nil {
		return nil, errors.New("nil onChange")
	}

	pubsub := p.store.redis.Subscribe(ctx, p.store.EventsChannel(p.clientID))
	// Wait for the subscription to be confirmed so no notice published after
	// Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	messages := pubsub.Channel()

	var delivering atomic.Bool
	deliver := func(s authstatus.Session) {
		delivering.Store(true)
		defer delivering.Store(false)
		onChange(s)
	}

	go func() {
		defer close(done)

		p.emitCurrent(ctx, deliver)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var notice Notice
				if err := json.Unmarshal([]byte(msg.Payload), &notice); err != nil {
					p.logger.Warn("ignoring malformed session notice", "error", err)
					continue
				}
				p.logger.Debug("session notice", "type", string(notice.Type), "session_id", notice.SessionID)
				p.emitCurrent(ctx, deliver)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			_ = pubsub.Close()
			if !delivering.Load() {
				<-done
			}
		})
	}, nil
}

// emitCurrent reads the client's current session and reports it. Redis
// failures skip the notification; the next notice retries the read.
func (p *Provider) emitCurrent(ctx context.Context, onChange func(authstatus.Session)) {
	rec, err := p.store.Current(ctx, p.clientID)
	if ctx.Err() != nil {
		return
	}
	switch {
	case errors.Is(err, ErrSessionNotFound):
		onChange(nil)
	case err != nil:
		p.logger.Error("loading current session failed", "client_id", p.clientID, "error", err)
	default:
		onChange(&Handle{record: *rec, store: p.store, tokens: p.tokens})
	}
}

// Handle is the authstatus.Session handed to the controller.
type Handle struct {
	record Record
	store  *Store
	tokens *jwt.Manager
}

// UserID returns the signed-in user's ID.
func (h *Handle) UserID() string {
	return h.record.UserID
}

// SessionID returns the session's ID.
func (h *Handle) SessionID() string {
	return h.record.ID
}

// Record returns a copy of the stored record as observed at notification time.
func (h *Handle) Record() Record {
	return h.record
}

// Credential signs a fresh access token after checking the session still
// exists. A revoked or expired session yields ErrSessionNotFound.
func (h *Handle) Credential(ctx context.Context) (string, error) {
	ok, err := h.store.Exists(ctx, h.record.ID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrSessionNotFound
	}
	return h.tokens.CreateAccess(h.record.UserID, h.record.ID, h.record.Email)
}
