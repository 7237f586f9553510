// Package storage persists job run history so operators can look back at
// recent outcomes across restarts. Schedules themselves are never persisted.
//
// Drivers:
//   - "file": JSON Lines, one record per finished run
//   - "sqlite": SQLite database via modernc.org/sqlite (pure Go)
package storage
