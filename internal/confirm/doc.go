// Package confirm defines the data model shared by every part of the
// payment confirmation reconciler.
//
// A PendingConfirmation is the single mutable unit of work. It is owned by
// the reconcile.Coordinator and is never mutated by the poll driver, the
// push listener, or the caller; those only submit Results and PushEvents
// through the coordinator's event loop.
//
// Status lifecycle:
//
//	Idle --Start--> Processing --confirmed--> Success
//	                Processing --exhausted--> Timeout --Retry--> Processing
//	{Processing, Timeout, Success} --Close--> Idle
//
// Identifiers are opaque correlation keys (for example a setup-intent id).
// They are compared only after NormalizeIdentifier so that an identifier
// echoed back by a push transport in a different Unicode form still matches.
package confirm
