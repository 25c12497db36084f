package database

import (
	"database/sql"
	"fmt"
	"time"
)

// GetFileHash retrieves the last-indexed content hash for a file. Returns
// (nil, nil) if the file has never been indexed.
func (d *Database) GetFileHash(scopeID, path string) (*FileHash, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var fh FileHash
	err := d.db.QueryRow(`
		SELECT scope_id, path, content_hash, indexed_at FROM file_hashes WHERE scope_id = ? AND path = ?
	`, scopeID, path).Scan(&fh.ScopeID, &fh.Path, &fh.ContentHash, &fh.IndexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file hash: %w", err)
	}
	return &fh, nil
}

// UpsertFileHash records the content hash a file was indexed at, so a
// subsequent ingest of an unchanged file can be skipped.
func (d *Database) UpsertFileHash(fh *FileHash) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if fh.IndexedAt.IsZero() {
		fh.IndexedAt = time.Now()
	}

	_, err := d.db.Exec(`
		INSERT INTO file_hashes (scope_id, path, content_hash, indexed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (scope_id, path) DO UPDATE SET
			content_hash = excluded.content_hash,
			indexed_at = excluded.indexed_at
	`, fh.ScopeID, fh.Path, fh.ContentHash, fh.IndexedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert file hash: %w", err)
	}
	return nil
}

// ListFileHashes retrieves every tracked file hash within a scope, used to
// detect files removed from disk since the last index run.
func (d *Database) ListFileHashes(scopeID string) ([]*FileHash, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`
		SELECT scope_id, path, content_hash, indexed_at FROM file_hashes WHERE scope_id = ?
		ORDER BY path
	`, scopeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list file hashes: %w", err)
	}
	defer rows.Close()

	var hashes []*FileHash
	for rows.Next() {
		var fh FileHash
		if err := rows.Scan(&fh.ScopeID, &fh.Path, &fh.ContentHash, &fh.IndexedAt); err != nil {
			return nil, fmt.Errorf("failed to scan file hash: %w", err)
		}
		hashes = append(hashes, &fh)
	}
	return hashes, nil
}

// DeleteFileHash removes the tracked hash for a file, used alongside
// DeleteDocumentsByPath when a file disappears from disk.
func (d *Database) DeleteFileHash(scopeID, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.Exec(`DELETE FROM file_hashes WHERE scope_id = ? AND path = ?`, scopeID, path)
	if err != nil {
		return fmt.Errorf("failed to delete file hash: %w", err)
	}
	return nil
}
