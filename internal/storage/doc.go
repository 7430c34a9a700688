// Package storage archives terminal tasks after they leave the scheduler's
// in-memory table.
//
// Drivers:
//   - file: append-only JSON Lines
//   - sqlite: embedded database file (modernc.org/sqlite, cgo-free)
//   - postgres: server database via pgx
package storage
