// Package scheduler runs caller-supplied resolvers on cron patterns or at
// absolute instants, inside one process.
//
// A job moves through Created -> Armed -> Running -> Idle (loop) until Stop
// or Delete. Lifecycle events (created, started, completed, error, stopped)
// are delivered synchronously to handlers registered with On.
//
// The scheduler is trigger and lifecycle only:
//   - expressions and time zones are validated once, at Schedule
//   - each armed job owns one timer, re-armed before its resolver runs
//   - late wake-ups beyond the job threshold are skipped, never replayed
//   - resolver failures surface only through Error events
package scheduler
