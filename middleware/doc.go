// Package middleware guards the protected endpoint that authstatus controllers
// call.
//
// # Guards
//
//   - [Guard]: configurable guard built from options.
//   - [RequireJWTOnly]: stateless JWT verification, no Redis call.
//   - [RequireStrict]: JWT plus a check that the session still exists.
//
// Each guard reads the Authorization header, verifies the bearer credential and
// injects the claims into the request context. Rejections are JSON bodies of the
// form {"message": "..."}, which is what the controller surfaces as its fetch error.
//
// # What this package must NOT do
//
//   - Issue credentials.
//   - Make authorization decisions beyond pass/reject.
package middleware
