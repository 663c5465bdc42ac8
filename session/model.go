package session

import "time"

// Record is a stored session.
type Record struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NoticeType names a session change.
type NoticeType string

const (
	// NoticeSignIn is published after a client signs in.
	NoticeSignIn NoticeType = "sign_in"
	// NoticeSignOut is published after a client signs out.
	NoticeSignOut NoticeType = "sign_out"
	// NoticeRevoked is published when a session is revoked server side.
	NoticeRevoked NoticeType = "revoked"
)

// Notice is the payload published on a client's event channel.
type Notice struct {
	Type      NoticeType `json:"type"`
	SessionID string     `json:"session_id"`
	At        time.Time  `json:"at"`
}
