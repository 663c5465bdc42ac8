// Package rate implements fixed-window failure counters in Redis, used by the
// demo server to throttle repeated failed sign-ins per email.
//
// Each key is INCR'd on failure with an EXPIRE on the first hit, so the
// window starts at the first failure.
package rate
