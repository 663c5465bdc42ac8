package middleware

import (
	"net/http"
)

// RequireJWTOnly verifies the credential signature and claims only. Revoked
// sessions keep access until their credential expires.
func RequireJWTOnly(verifier Verifier) func(http.Handler) http.Handler {
	return Guard(verifier)
}
