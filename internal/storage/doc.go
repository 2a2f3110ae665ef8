// Package storage persists generated schedules per chat user.
//
// Two drivers exist:
//   - "file": JSON snapshot plus append-only journal, compacted periodically
//   - "sqlite": a local SQLite database (modernc.org/sqlite, pure Go)
//
// The package owns its row types and never imports the planner; callers map
// between planner values and records.
package storage
