// Package database provides the embedded SQLite storage layer: documents,
// memories, the memory link graph, and their ambient classification and
// metrics tables.
//
// It owns relational CRUD and schema management only. Full-text ranking
// lives in internal/bm25index, approximate nearest-neighbor search in
// internal/vectorstore; both read this package's tables directly rather
// than duplicating storage.
package database
