// Package storage keeps the run history of scheduled jobs.
//
// It supports:
//   - "file": JSON Lines journal with an in-memory tail per job
//   - "sqlite": SQLite database (modernc.org/sqlite, pure Go)
//
// Schedules themselves are never persisted; only finished runs are.
package storage
