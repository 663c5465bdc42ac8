// Package jwt issues and verifies the short-lived bearer credentials that sessions
// hand to the protected endpoint.
package jwt
