// Package testutil provides deterministic doubles for reconciler tests:
// a manually driven ticker, a scripted prober, recording observers and
// sinks, sequential cycle ids, and a settable wall clock.
package testutil
