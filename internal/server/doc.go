// Package server assembles the demo HTTP API: sign-in and sign-out backed by
// the Redis session store, and the bearer-guarded protected-data endpoint the
// controller fetches.
package server
