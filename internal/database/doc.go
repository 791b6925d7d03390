// Package database provides the SQLite catalog for the media refiner.
//
// It stores:
//   - Assets: the primary file of each upload, its size variants, the
//     quality stamp from the last conversion and extracted image metadata
//   - Metadata: a key-value table holding persisted settings and flags
//   - Activity log: the bounded journal shown to operators
//
// The database uses WAL mode for concurrent reads and creates its schema on
// first open.
package database
