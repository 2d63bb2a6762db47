// Package debug implements the backend-independent core of a debugging session.
//
// A Session drives one debuggee through a Backend (the language-specific
// capabilities) and a pair of transports (synchronous commands, and an
// asynchronous, ordered event feed):
//
//	┌─────────────────────────────────────────────────────────────────┐
//	│                         Session                                  │
//	│  - State machine (disconnected/connecting/running/suspended)     │
//	│  - Breakpoint registry reconciled against the backend            │
//	│  - Event dispatcher, pending evaluations, observers              │
//	└─────────────────────────────────────────────────────────────────┘
//	         │ CommandTransport                   ▲ EventTransport
//	         ▼                                    │
//	┌─────────────────────────────────────────────────────────────────┐
//	│              Backend (jdb, delve, debugpy, node)                 │
//	└─────────────────────────────────────────────────────────────────┘
//
// # States
//
//   - Disconnected: initial state, and the state after teardown
//   - Connecting: Attach is in progress
//   - Running: the debuggee executes
//   - Suspended: stopped at a breakpoint or after a step
//   - Disconnecting: teardown is in progress
//
// Running becomes Suspended only through a breakpoint-activated or
// step-completed event. Resume and the step commands are legal only while
// Suspended. Evaluate is legal only while Suspended and completes when the
// correlated evaluation-result event arrives.
//
// # Serialization
//
// Commands and incoming events are funneled through one sequence point, so a
// command's legality check, its transport call and the resulting transition
// are atomic with respect to events. Observers are notified on that sequence
// point, synchronously and in registration order, after the state has been
// updated. Observers may read the session but must not issue commands from
// inside a callback; hand long work off to another goroutine.
//
// # Breakpoints
//
// Breakpoints are declared in editor space and submitted to the backend in
// backend space through the backend's location.Resolver. Confirmations come
// back as events. Breakpoints survive a disconnect and are re-submitted on
// the next Attach.
//
// # Subpackages
//
//   - location: editor/backend position translation
//   - descriptor: session labels for presentation
//   - backends: jdb, delve, debugpy and node backends
//   - dap, dapbridge: Debug Adapter Protocol client and transport bridge
//   - remote: REST commands plus websocket event feed
//   - store: breakpoint persistence
package debug
