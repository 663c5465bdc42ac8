// Package authstatus keeps a client's view of its authentication session and the
// protected data that session unlocks.
//
// A [Controller] subscribes to a [SessionProvider], records every session
// transition, sends the user to the login destination when the session goes away,
// and fetches a protected JSON resource with the session's bearer credential each
// time the session changes. Consumers read the result through [Controller.State]
// or receive it reactively through [Controller.Watch].
//
// # Architecture boundaries
//
// authstatus is the public surface. It exposes [Controller], [Builder], [Config],
// the capability interfaces ([SessionProvider], [Session], [Navigator], [HTTPDoer])
// and value types ([State], [MetricsSnapshot], [AuditEvent]). Audit buffering lives
// under internal/ and is never exported.
//
// Concrete providers live in sub-packages: session implements a Redis-backed
// provider with pub/sub notifications and JWT credentials, middleware guards the
// protected endpoint on the server side.
//
// # Concurrency
//
// The provider delivers notifications on its own goroutine. The controller hands the
// latest session to a single fetch loop through a one-slot channel; a newer session
// cancels the in-flight request and stale results are discarded. All Controller
// methods are safe for concurrent use.
//
// # What this package must NOT do
//
//   - Validate or refresh credentials. That belongs to the provider.
//   - Retry failed fetches or cache payloads across controllers.
//   - Mutate state after [Controller.Close] returns.
package authstatus
