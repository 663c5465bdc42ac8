// Package session is a Redis-backed session provider.
//
// A [Store] keeps session records and, per client, a pointer to the client's
// current session. Every sign-in, sign-out or revocation is announced on the
// client's pub/sub channel. A [Provider] turns those announcements into
// authstatus session notifications, and a [Handle] mints JWT credentials for the
// session it wraps.
//
// # Architecture boundaries
//
// This package owns Redis keys, channels and the [Record] model. It does NOT
// decide what the client does with a session; that belongs to authstatus.
//
// # Keys
//
//	<prefix>:sess:<sessionID>   JSON record, expires with the session
//	<prefix>:client:<clientID>  current session ID for a client
//	<prefix>:events:<clientID>  pub/sub channel for change notices
package session
