package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned when a session or client pointer does not exist.
var ErrSessionNotFound = errors.New("session not found")

// ErrRedisUnavailable wraps Redis transport failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrInvalidInput is returned for empty identifiers or a non-positive TTL.
var ErrInvalidInput = errors.New("invalid session input")

// DefaultTTL is the session lifetime used when NewStore gets ttl <= 0.
const DefaultTTL = 24 * time.Hour

// signOutScript drops the client pointer and the session it points to, and
// returns the removed session ID ("" when the client had none).
const signOutScript = `
local sid = redis.call("GET", KEYS[1])
if not sid then
  return ""
end
redis.call("DEL", KEYS[1])
redis.call("DEL", ARGV[1] .. sid)
return sid
`

var signOutLua = redis.NewScript(signOutScript)

// revokeScript deletes a session and the client pointer when it still points at it.
const revokeScript = `
local existed = redis.call("DEL", KEYS[1])
local current = redis.call("GET", KEYS[2])
if current == ARGV[1] then
  redis.call("DEL", KEYS[2])
end
return existed
`

var revokeLua = redis.NewScript(revokeScript)

// Store persists session records in Redis and publishes change notices.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewStore creates a Store under the given key prefix.
func NewStore(client redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "authstatus"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		redis:  client,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *Store) sessionKeyPrefix() string {
	return s.prefix + ":sess:"
}

func (s *Store) sessionKey(sessionID string) string {
	return s.sessionKeyPrefix() + sessionID
}

func (s *Store) clientKey(clientID string) string {
	return s.prefix + ":client:" + clientID
}

// EventsChannel returns the pub/sub channel for clientID.
func (s *Store) EventsChannel(clientID string) string {
	return s.prefix + ":events:" + clientID
}

// SignIn creates a session for userID on clientID, replacing any session the
// client already had, and publishes a sign-in notice.
func (s *Store) SignIn(ctx context.Context, clientID, userID, email string) (*Record, error) {
	if clientID == "" || userID == "" {
		return nil, ErrInvalidInput
	}

	now := s.now().UTC()
	rec := &Record{
		ID:        uuid.NewString(),
		ClientID:  clientID,
		UserID:    userID,
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}

	clientKey := s.clientKey(clientID)
	previous, err := s.redis.Get(ctx, clientKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if previous != "" {
			pipe.Del(ctx, s.sessionKey(previous))
		}
		pipe.Set(ctx, s.sessionKey(rec.ID), data, s.ttl)
		pipe.Set(ctx, clientKey, rec.ID, s.ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if err := s.publish(ctx, clientID, NoticeSignIn, rec.ID); err != nil {
		return nil, err
	}
	return rec, nil
}

// SignOut ends the client's current session. Signing out a client without a
// session is a no-op and publishes nothing.
func (s *Store) SignOut(ctx context.Context, clientID string) error {
	if clientID == "" {
		return ErrInvalidInput
	}

	sid, err := signOutLua.Run(ctx, s.redis, []string{s.clientKey(clientID)}, s.sessionKeyPrefix()).Text()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if sid == "" {
		return nil
	}
	return s.publish(ctx, clientID, NoticeSignOut, sid)
}

// Revoke deletes a session by ID and notifies its client. Unknown sessions
// return ErrSessionNotFound.
func (s *Store) Revoke(ctx context.Context, sessionID string) error {
	rec, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	existed, err := revokeLua.Run(ctx, s.redis,
		[]string{s.sessionKey(sessionID), s.clientKey(rec.ClientID)},
		sessionID,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if existed == 0 {
		return ErrSessionNotFound
	}
	return s.publish(ctx, rec.ClientID, NoticeRevoked, sessionID)
}

// Get loads a session record by ID.
func (s *Store) Get(ctx context.Context, sessionID string) (*Record, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	data, err := s.redis.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &rec, nil
}

// Current loads the session the client is signed in with.
func (s *Store) Current(ctx context.Context, clientID string) (*Record, error) {
	sid, err := s.redis.Get(ctx, s.clientKey(clientID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return s.Get(ctx, sid)
}

// Exists reports whether the session is still stored.
func (s *Store) Exists(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) publish(ctx context.Context, clientID string, kind NoticeType, sessionID string) error {
	data, err := json.Marshal(Notice{Type: kind, SessionID: sessionID, At: s.now().UTC()})
	if err != nil {
		return err
	}
	if err := s.redis.Publish(ctx, s.EventsChannel(clientID), data).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
