package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MrEthical07/authstatus/jwt"
)

// Verifier parses and validates a bearer credential. *jwt.Manager satisfies it.
type Verifier interface {
	ParseAccess(token string) (*jwt.AccessClaims, error)
}

// SessionChecker reports whether a session is still active. *session.Store satisfies it.
type SessionChecker interface {
	Exists(ctx context.Context, sessionID string) (bool, error)
}

const (
	msgMissingCredential = "missing bearer credential"
	msgInvalidCredential = "invalid credential"
	msgSessionRevoked    = "session is no longer active"
	msgBackendDown       = "session backend unavailable"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the claims injected by a guard.
func ClaimsFromContext(ctx context.Context) (*jwt.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*jwt.AccessClaims)
	return claims, ok
}

// Option configures Guard.
type Option func(*guard)

// WithSessionCheck rejects credentials whose session no longer exists.
func WithSessionCheck(checker SessionChecker) Option {
	return func(g *guard) {
		g.sessions = checker
	}
}

// WithLogger sets the logger for rejected requests.
func WithLogger(logger *slog.Logger) Option {
	return func(g *guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

type guard struct {
	verifier Verifier
	sessions SessionChecker
	logger   *slog.Logger
}

// Guard returns middleware that only lets requests with a valid bearer
// credential through.
func Guard(verifier Verifier, opts ...Option) func(http.Handler) http.Handler {
	g := &guard{
		verifier: verifier,
		logger:   slog.Default().With("component", "middleware.guard"),
	}
	for _, opt := range opts {
		opt(g)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g.verifier == nil {
				writeError(w, http.StatusUnauthorized, msgInvalidCredential)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusUnauthorized, msgMissingCredential)
				return
			}

			claims, err := g.verifier.ParseAccess(token)
			if err != nil {
				g.logger.Debug("rejected credential", "error", err, "path", r.URL.Path)
				writeError(w, http.StatusUnauthorized, msgInvalidCredential)
				return
			}

			if g.sessions != nil {
				active, err := g.sessions.Exists(r.Context(), claims.SID)
				if err != nil {
					g.logger.Error("session check failed", "error", err, "session_id", claims.SID)
					writeError(w, http.StatusServiceUnavailable, msgBackendDown)
					return
				}
				if !active {
					writeError(w, http.StatusUnauthorized, msgSessionRevoked)
					return
				}
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

// writeError replies with {"message": msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Message string `json:"message"`
	}{Message: msg})
}
