// Package sqlite provides a credential vault persisted in a local SQLite
// database using the pure-Go modernc.org/sqlite driver.
//
// Multi-key writes run inside a single transaction so a crash or error
// never leaves a partially written token set behind.
package sqlite
