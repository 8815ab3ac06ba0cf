// Package dispatch provides two supervised concurrency primitives:
// a dynamically bounded parallel executor and a lease-based object pool.
//
// Design goals
//
// The package is designed around the following principles:
//
//   - All scheduling state is owned by exactly one goroutine per component
//   - User code never runs on a supervisor; side effects are handed off
//   - Failures at the edges never unwind into a supervisor's control flow
//   - Bounds are enforced by withholding events, not by rejecting callers
//
// Rather than protecting shared counters with locks, each component
// serializes every state transition through a single select loop and talks
// to the rest of the process over channels.
//
// Architecture overview
//
// Each component is one supervisor goroutine plus short-lived task
// goroutines:
//
//   1. Executor
//      Owns (degree, usage). Dispatches a message only while usage is
//      under degree, reserving the slot before the worker starts. Workers
//      run in their own goroutines and signal completion back over a
//      channel. Recoverable failures are requeued through an unbounded
//      mailbox and redispatched alongside the source, indefinitely.
//
//   2. Pool
//      Owns (available, given). Leases instances to callers, reclaims
//      them on release, evicts instances idle past a deadline, and drains
//      everything on shutdown. Requests are withheld from the select once
//      given reaches capacity, which is the entire backpressure story.
//
// Concurrency ceiling
//
// The executor's degree is a live control: SetDegree rendezvous with the
// supervisor and applies at its next decision. Lowering it never cancels
// in-flight work, so usage may transiently exceed degree while workers
// drain.
//
// Failure model
//
// Worker errors are split in two by the Recoverable marker:
//
//   - Recoverable: the message is requeued with no backoff and no attempt
//     cap. WithRetry layers bounded, backed-off attempts inside the worker
//     when an endless cycle is not acceptable.
//   - Anything else: terminal for the message, reported to the completed
//     sink when one is configured.
//
// Pool-side failures stay at the edge where they happen. A factory error is
// returned to the one requester that triggered it; a disposal error or
// panic is swallowed and logged so that a single misbehaving instance
// cannot stall eviction or shutdown.
//
// Scoped access
//
// Pool instances are only reachable through With, which releases the lease
// on every exit path, turning fn errors and panics into an error result.
// There is no way to hold an instance past the scope, so the drain on
// shutdown can account for every lease.
//
// Intended use cases
//
// dispatch is well suited for:
//
//   - Bounded fan-out over a stream of messages with retry semantics
//   - Pooling expensive handles (connections, sessions, parsers)
//   - Systems that need a live concurrency dial
//
// It is not a general-purpose goroutine replacement and does not coordinate
// across processes; degree and capacity are process-local integers.
package dispatch
