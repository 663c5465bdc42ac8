// Package password hashes and verifies passwords with Argon2id.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// The demo server uses it to check sign-in requests before creating a session.
package password
