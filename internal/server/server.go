package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/authstatus/internal/rate"
	"github.com/MrEthical07/authstatus/jwt"
	"github.com/MrEthical07/authstatus/middleware"
	"github.com/MrEthical07/authstatus/password"
	"github.com/MrEthical07/authstatus/session"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

const (
	msgBadRequest         = "invalid request body"
	msgInvalidCredentials = "invalid email or password"
	msgUnavailable        = "session backend unavailable"
	msgTooManyAttempts    = "too many sign-in attempts, try again later"
)

// Server owns the demo handlers.
type Server struct {
	sessions *session.Store
	tokens   *jwt.Manager
	users    *Directory
	hasher   *password.Hasher
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLoginLimiter throttles failed sign-ins per email.
func WithLoginLimiter(l *rate.Limiter) Option {
	return func(s *Server) {
		s.limiter = l
	}
}

// New wires the handlers. logger may be nil.
func New(sessions *session.Store, tokens *jwt.Manager, users *Directory, hasher *password.Hasher, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		sessions: sessions,
		tokens:   tokens,
		users:    users,
		hasher:   hasher,
		logger:   logger.With("component", "server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the router. metrics is mounted at /metrics when non-nil.
func (s *Server) Routes(metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Post("/login", s.login)
	r.Post("/logout", s.logout)
	r.Get("/healthz", s.health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Guard(s.tokens,
			middleware.WithSessionCheck(s.sessions),
			middleware.WithLogger(s.logger),
		))
		r.Get("/api/protected-data", s.protectedData)
	})

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	return r
}

type loginRequest struct {
	ClientID string `json:"client_id"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.ClientID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": msgBadRequest})
		return
	}

	if s.limiter != nil {
		if err := s.limiter.Check(r.Context(), body.Email); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"message": msgTooManyAttempts})
				return
			}
			s.writeStoreError(w, "rate check", err)
			return
		}
	}

	user, ok := s.users.Lookup(body.Email)
	if !ok {
		s.rejectLogin(w, r, body.Email)
		return
	}
	if err := s.hasher.Check(body.Password, user.PasswordHash); err != nil {
		if !errors.Is(err, password.ErrMismatch) {
			s.logger.Error("stored password hash unusable", "user_id", user.ID, "error", err)
		}
		s.rejectLogin(w, r, body.Email)
		return
	}
	if s.limiter != nil {
		if err := s.limiter.Reset(r.Context(), body.Email); err != nil {
			s.logger.Warn("reset sign-in counter failed", "error", err)
		}
	}

	record, err := s.sessions.SignIn(r.Context(), body.ClientID, user.ID, user.Email)
	if err != nil {
		s.writeStoreError(w, "sign in", err)
		return
	}

	s.logger.Info("signed in", "user_id", user.ID, "client_id", body.ClientID, "session_id", record.ID)
	writeJSON(w, http.StatusOK, loginResponse{SessionID: record.ID, ExpiresAt: record.ExpiresAt})
}

func (s *Server) rejectLogin(w http.ResponseWriter, r *http.Request, email string) {
	if s.limiter != nil {
		if _, err := s.limiter.Fail(r.Context(), email); err != nil {
			s.logger.Warn("record failed sign-in", "error", err)
		}
	}
	writeJSON(w, http.StatusUnauthorized, map[string]string{"message": msgInvalidCredentials})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ClientID string `json:"client_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.ClientID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": msgBadRequest})
		return
	}

	if err := s.sessions.SignOut(r.Context(), body.ClientID); err != nil {
		s.writeStoreError(w, "sign out", err)
		return
	}
	s.logger.Info("signed out", "client_id", body.ClientID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) protectedData(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":    claims.UID,
		"session_id": claims.SID,
		"email":      claims.Email,
		"message":    "hello, authenticated user",
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	rtt, err := s.sessions.Ping(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": msgUnavailable})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "redis_rtt_ms": rtt.Milliseconds()})
}

func (s *Server) writeStoreError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, session.ErrInvalidInput) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": msgBadRequest})
		return
	}
	s.logger.Error(op+" failed", "error", err)
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": msgUnavailable})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
