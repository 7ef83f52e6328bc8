// Package store provides SQLite-backed durable storage for the reconciler.
//
// Two tables:
//   - alerts: one row per identifier that has been escalated. The primary
//     key on identifier is what makes "at most one alert per identifier"
//     survive process restarts.
//   - outcomes: append-only history of terminal transitions (success,
//     timeout, closed).
//
// # Critical Patterns
//
// Alert idempotency:
//   - INSERT ... ON CONFLICT(identifier) DO NOTHING
//   - MarkAlerted reports first=true only for the inserting call
//
// History order:
//   - Outcome queries order by row id. seq is the in-process trace clock
//     and restarts with every watch run.
//
// Schema changes are append-only entries in migrations, tracked with
// PRAGMA user_version.
package store
