// Package storage persists the subscriber table and the operator audit log.
//
// Drivers:
//   - "memory": process-local, lost on restart
//   - "file": JSON snapshot + append-only journal, audit as JSON Lines
//   - "sqlite": single database file (modernc.org/sqlite, no cgo)
//   - "redis": sorted set of ids + capped audit list
//   - "postgres": pgx connection pool
package storage
