// Package harness runs reconciliation scenarios against the real
// Coordinator and compares the produced transition trace with golden files.
//
// A scenario (YAML, see testdata/scenarios) scripts the probe answers and
// drives the Coordinator step by step: start, tick, push, retry, close.
// Time never advances on its own. Poll ticks come from a manual ticker, so
// the transcript is byte-identical on every run.
//
// # Transcript format
//
//	> start si_2                     step header
//	1 start id=si_2 status=processing attempt=0
//	...                              every trace emitted by that step
//	> tick 15 refused                tick with no live ticker
//	= status=success successes=1 ... final summary
//
// After each step the harness waits for the step's own trace and then
// issues a Snapshot as a barrier, so traces are attributed to the step
// that caused them.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
package harness
