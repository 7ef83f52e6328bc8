// Package reconcile implements the payment confirmation Coordinator.
//
// The Coordinator races two unreliable channels, a fixed-interval poll and a
// push subscription, to decide whether an off-band payment authorization has
// been recorded. It guarantees the success outcome is delivered exactly once,
// bounds the wait, escalates a timeout with at most one alert per identifier,
// and supports a manual retry afterwards.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Every state transition runs on the goroutine executing Run. Producers
// (the immediate probe, poll ticks, the retry probe, push deliveries, the
// deadline timer) and callers (Start, Retry, Close, Snapshot) only Enqueue
// events. This makes "first channel wins, cancel the other" hold by
// construction: whichever event the loop handles first moves the pending
// confirmation out of Processing, and every later event is discarded.
//
// Event Processing Flow:
//  1. Producers enqueue events into an unbounded FIFO
//  2. Run drains every available event into one batch (one scheduling turn)
//  3. Within a turn, push events are handled before probe results
//  4. Events tagged with a stale cycle id are dropped
//  5. Terminal transitions cancel both channels, record an outcome, then
//     notify the Observer
//
// CRITICAL PATTERNS:
//
// Cycle ids:
// Start and Retry each open a new cycle with a fresh id. Probe and deadline
// events carry the id of the cycle that produced them; anything else is
// stale and discarded, which covers late ticks after Close or Retry.
//
// Single alert per identifier:
// The Ledger is consulted before any alert is emitted; PendingConfirmation
// carries AlertSent so Retry cycles never re-alert even without a Ledger hit.
//
// Observer callbacks run on the loop goroutine. They must not block and
// must not call back into the Coordinator synchronously.
package reconcile
