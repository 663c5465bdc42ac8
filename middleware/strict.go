package middleware

import (
	"net/http"
)

// RequireStrict verifies the credential and that its session still exists.
func RequireStrict(verifier Verifier, sessions SessionChecker) func(http.Handler) http.Handler {
	return Guard(verifier, WithSessionCheck(sessions))
}
