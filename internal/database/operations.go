package database

import (
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UpsertDocument creates or updates the document identified by
// (scope_id, path, chunk_index), replacing its embedding atomically so no
// stale vector survives the write. Callers are expected to wrap this with
// the companion ANN-index mutation in the same transaction (see
// internal/vectorstore).
func (d *Database) UpsertDocument(doc *Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if doc.ScopeID == "" {
		return fmt.Errorf("document scope_id is required")
	}

	now := time.Now()
	var existingID string
	err := d.db.QueryRow(`
		SELECT id FROM documents WHERE scope_id = ? AND path = ? AND chunk_index = ?
	`, doc.ScopeID, doc.Path, doc.ChunkIndex).Scan(&existingID)

	switch {
	case err == sql.ErrNoRows:
		if doc.ID == "" {
			doc.ID = uuid.New().String()
		}
		doc.CreatedAt = now
		doc.UpdatedAt = now
		_, err = d.db.Exec(`
			INSERT INTO documents (
				id, scope_id, path, chunk_index, content, start_line, end_line,
				embedding, symbol_name, symbol_type, signature, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			doc.ID, doc.ScopeID, doc.Path, doc.ChunkIndex, doc.Content, doc.StartLine, doc.EndLine,
			EncodeEmbedding(doc.Embedding), nullString(doc.SymbolName), nullString(doc.SymbolType),
			nullString(doc.Signature), doc.CreatedAt, doc.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert document: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to check existing document: %w", err)
	}

	doc.ID = existingID
	doc.UpdatedAt = now
	_, err = d.db.Exec(`
		UPDATE documents SET content = ?, start_line = ?, end_line = ?, embedding = ?,
			symbol_name = ?, symbol_type = ?, signature = ?, updated_at = ?
		WHERE id = ?
	`,
		doc.Content, doc.StartLine, doc.EndLine, EncodeEmbedding(doc.Embedding),
		nullString(doc.SymbolName), nullString(doc.SymbolType), nullString(doc.Signature),
		doc.UpdatedAt, doc.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by id. Returns (nil, nil) if not found.
func (d *Database) GetDocument(id string) (*Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var doc Document
	var symbolName, symbolType, signature sql.NullString
	var embedding []byte

	err := d.db.QueryRow(`
		SELECT id, scope_id, path, chunk_index, content, start_line, end_line,
		       embedding, symbol_name, symbol_type, signature, created_at, updated_at
		FROM documents WHERE id = ?
	`, id).Scan(
		&doc.ID, &doc.ScopeID, &doc.Path, &doc.ChunkIndex, &doc.Content, &doc.StartLine, &doc.EndLine,
		&embedding, &symbolName, &symbolType, &signature, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	doc.SymbolName = symbolName.String
	doc.SymbolType = symbolType.String
	doc.Signature = signature.String
	doc.Embedding = DecodeEmbedding(embedding)

	return &doc, nil
}

// ListDocumentsByPath retrieves every chunk of a document, ordered by
// chunk_index.
func (d *Database) ListDocumentsByPath(scopeID, path string) ([]*Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`
		SELECT id, scope_id, path, chunk_index, content, start_line, end_line,
		       embedding, symbol_name, symbol_type, signature, created_at, updated_at
		FROM documents WHERE scope_id = ? AND path = ?
		ORDER BY chunk_index
	`, scopeID, path)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

// ListDocumentsByScope retrieves every document chunk within a scope. Used
// by the ranker's BM25 corpus build, once per scope from
// AllDocumentScopeIDs.
func (d *Database) ListDocumentsByScope(scopeID string) ([]*Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`
		SELECT id, scope_id, path, chunk_index, content, start_line, end_line,
		       embedding, symbol_name, symbol_type, signature, created_at, updated_at
		FROM documents WHERE scope_id = ?
		ORDER BY path, chunk_index
	`, scopeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

// DeleteDocumentsByPath removes every chunk belonging to path and returns
// the ids of the removed rows. Callers must invalidate the code/docs BM25
// corpus and the ANN map for the same ids (spec's "always invalidate on
// delete" policy).
func (d *Database) DeleteDocumentsByPath(scopeID, path string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.db.Query(`SELECT id FROM documents WHERE scope_id = ? AND path = ?`, scopeID, path)
	if err != nil {
		return nil, fmt.Errorf("failed to list document ids: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan document id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()

	if _, err := d.db.Exec(`DELETE FROM documents WHERE scope_id = ? AND path = ?`, scopeID, path); err != nil {
		return nil, fmt.Errorf("failed to delete documents: %w", err)
	}
	if _, err := d.db.Exec(`DELETE FROM file_hashes WHERE scope_id = ? AND path = ?`, scopeID, path); err != nil {
		return nil, fmt.Errorf("failed to delete file hash: %w", err)
	}

	return ids, nil
}

func scanDocuments(rows *sql.Rows) ([]*Document, error) {
	var docs []*Document
	for rows.Next() {
		var doc Document
		var symbolName, symbolType, signature sql.NullString
		var embedding []byte

		err := rows.Scan(
			&doc.ID, &doc.ScopeID, &doc.Path, &doc.ChunkIndex, &doc.Content, &doc.StartLine, &doc.EndLine,
			&embedding, &symbolName, &symbolType, &signature, &doc.CreatedAt, &doc.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc.SymbolName = symbolName.String
		doc.SymbolType = symbolType.String
		doc.Signature = signature.String
		doc.Embedding = DecodeEmbedding(embedding)
		docs = append(docs, &doc)
	}
	return docs, nil
}

// CreateMemory inserts a new memory into the database.
func (d *Database) CreateMemory(m *Memory) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("memory content is required")
	}

	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.ValidFrom.IsZero() {
		m.ValidFrom = m.CreatedAt
	}
	if m.Kind == "" {
		m.Kind = "observation"
	}

	_, err := d.db.Exec(`
		INSERT INTO memories (
			id, scope_id, content, tags, source, kind, quality_score, quality_factors,
			embedding, access_count, last_accessed, valid_from, valid_until,
			invalidated_by, correction_count, is_invariant, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID, nullString(m.ScopeID), m.Content, m.TagsJSON(), nullString(m.Source), m.Kind,
		m.QualityScore, nullString(m.QualityFactorsJSON()), EncodeEmbedding(m.Embedding),
		m.AccessCount, m.LastAccessed, m.ValidFrom, m.ValidUntil, nullString(m.InvalidatedBy),
		m.CorrectionCount, m.IsInvariant, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create memory: %w", err)
	}
	return nil
}

// GetMemory retrieves a memory by id. Returns (nil, nil) if not found.
func (d *Database) GetMemory(id string) (*Memory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	row := d.db.QueryRow(`
		SELECT id, scope_id, content, tags, source, kind, quality_score, quality_factors,
		       embedding, access_count, last_accessed, valid_from, valid_until,
		       invalidated_by, correction_count, is_invariant, created_at
		FROM memories WHERE id = ?
	`, id)
	return scanMemory(row)
}

// ListMemories retrieves memories visible under filters.ScopeID (plus
// global memories when IncludeGlobal is set), applying the temporal
// predicate unless IncludeExpired is set.
func (d *Database) ListMemories(filters *MemoryFilters) ([]*Memory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var whereClauses []string
	var args []interface{}

	if filters.ScopeID != "" {
		if filters.IncludeGlobal {
			whereClauses = append(whereClauses, "(scope_id = ? OR scope_id IS NULL)")
		} else {
			whereClauses = append(whereClauses, "scope_id = ?")
		}
		args = append(args, filters.ScopeID)
	}
	if filters.Kind != "" {
		whereClauses = append(whereClauses, "kind = ?")
		args = append(args, filters.Kind)
	}
	if filters.StartDate != nil {
		whereClauses = append(whereClauses, "created_at >= ?")
		args = append(args, *filters.StartDate)
	}
	if filters.EndDate != nil {
		whereClauses = append(whereClauses, "created_at <= ?")
		args = append(args, *filters.EndDate)
	}
	for _, tag := range filters.Tags {
		whereClauses = append(whereClauses, "tags LIKE ?")
		args = append(args, "%\""+tag+"\"%")
	}

	asOf := time.Now()
	if filters.AsOf != nil {
		asOf = *filters.AsOf
	}
	if !filters.IncludeExpired {
		whereClauses = append(whereClauses, "invalidated_by IS NULL")
		whereClauses = append(whereClauses, "valid_from <= ?")
		args = append(args, asOf)
		whereClauses = append(whereClauses, "(valid_until IS NULL OR ? < valid_until)")
		args = append(args, asOf)
	}

	query := `
		SELECT id, scope_id, content, tags, source, kind, quality_score, quality_factors,
		       embedding, access_count, last_accessed, valid_from, valid_until,
		       invalidated_by, correction_count, is_invariant, created_at
		FROM memories
	`
	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}
	query += " ORDER BY created_at DESC"

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT %d", limit)
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filters.Offset)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// AllDocumentScopeIDs returns every distinct scope that owns at least one
// document, used by the BM25 indexer to assemble a full cross-scope corpus
// snapshot without a single unbounded table scan query shape per caller.
func (d *Database) AllDocumentScopeIDs() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`SELECT DISTINCT scope_id FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("failed to list document scopes: %w", err)
	}
	defer rows.Close()

	var scopes []string
	for rows.Next() {
		var scopeID string
		if err := rows.Scan(&scopeID); err != nil {
			return nil, fmt.Errorf("failed to scan scope id: %w", err)
		}
		scopes = append(scopes, scopeID)
	}
	return scopes, nil
}

// ListMemoriesVisible returns every active memory visible within scopeID
// (its own scope plus global memories), unbounded. Used by the consolidation
// and retention passes to load their working set; unlike ListMemories it
// never applies the default result-page limit.
func (d *Database) ListMemoriesVisible(scopeID string) ([]*Memory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	now := time.Now()
	rows, err := d.db.Query(`
		SELECT id, scope_id, content, tags, source, kind, quality_score, quality_factors,
		       embedding, access_count, last_accessed, valid_from, valid_until,
		       invalidated_by, correction_count, is_invariant, created_at
		FROM memories
		WHERE (scope_id = ? OR scope_id IS NULL)
		  AND invalidated_by IS NULL AND valid_from <= ? AND (valid_until IS NULL OR ? < valid_until)
		ORDER BY created_at DESC
	`, scopeID, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list visible memories: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// AllActiveMemories returns every memory that is active now, across every
// scope, unbounded.
func (d *Database) AllActiveMemories() ([]*Memory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	now := time.Now()
	rows, err := d.db.Query(`
		SELECT id, scope_id, content, tags, source, kind, quality_score, quality_factors,
		       embedding, access_count, last_accessed, valid_from, valid_until,
		       invalidated_by, correction_count, is_invariant, created_at
		FROM memories
		WHERE invalidated_by IS NULL AND valid_from <= ? AND (valid_until IS NULL OR ? < valid_until)
		ORDER BY created_at DESC
	`, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list active memories: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// MemoryUpdate represents optional updates to a memory.
type MemoryUpdate struct {
	Content *string
	Tags    []string
	Source  *string
	Kind    *string
}

// UpdateMemory applies a partial update to a memory.
func (d *Database) UpdateMemory(id string, updates *MemoryUpdate) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var setClauses []string
	var args []interface{}

	if updates.Content != nil {
		setClauses = append(setClauses, "content = ?")
		args = append(args, *updates.Content)
	}
	if updates.Tags != nil {
		m := &Memory{Tags: updates.Tags}
		setClauses = append(setClauses, "tags = ?")
		args = append(args, m.TagsJSON())
	}
	if updates.Source != nil {
		setClauses = append(setClauses, "source = ?")
		args = append(args, *updates.Source)
	}
	if updates.Kind != nil {
		setClauses = append(setClauses, "kind = ?")
		args = append(args, *updates.Kind)
	}
	if len(setClauses) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE memories SET %s WHERE id = ?", strings.Join(setClauses, ", "))
	result, err := d.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update memory: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("memory not found: %s", id)
	}
	return nil
}

// SoftInvalidateMemory marks a memory superseded: sets valid_until=now and
// invalidated_by=supersededBy (NULL when supersededBy is empty). Idempotent
// if already invalidated by the same id.
func (d *Database) SoftInvalidateMemory(id, supersededBy string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	result, err := d.db.Exec(`
		UPDATE memories SET valid_until = ?, invalidated_by = ?
		WHERE id = ?
	`, time.Now(), nullString(supersededBy), id)
	if err != nil {
		return fmt.Errorf("failed to invalidate memory: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("memory not found: %s", id)
	}
	return nil
}

// RestoreMemory clears a memory's invalidation fields, returning it to
// active. No-op error if the memory is not currently invalidated.
func (d *Database) RestoreMemory(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	result, err := d.db.Exec(`
		UPDATE memories SET valid_until = NULL, invalidated_by = NULL
		WHERE id = ? AND (invalidated_by IS NOT NULL OR valid_until IS NOT NULL)
	`, id)
	if err != nil {
		return fmt.Errorf("failed to restore memory: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("memory %s is not currently invalidated", id)
	}
	return nil
}

// AccessMemories increments access_count and bumps last_accessed for every
// id, in one transaction.
func (d *Database) AccessMemories(ids []string, weight float64) error {
	if len(ids) == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	stmt, err := tx.Prepare(`
		UPDATE memories SET access_count = access_count + ?, last_accessed = ? WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare access update: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.Exec(weight, now, id); err != nil {
			return fmt.Errorf("failed to update access count for %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// DeleteMemory removes a memory by ID. ON DELETE CASCADE on memory_links
// removes both incoming and outgoing edges; the ANN map row must be
// cascaded separately by the vector store.
func (d *Database) DeleteMemory(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	result, err := d.db.Exec("DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("memory not found: %s", id)
	}
	return nil
}

func scanMemory(row *sql.Row) (*Memory, error) {
	var m Memory
	var tagsJSON string
	var scopeID, source, qualityFactors, invalidatedBy sql.NullString
	var qualityScore sql.NullFloat64
	var lastAccessed sql.NullTime
	var validUntil sql.NullTime
	var embedding []byte

	err := row.Scan(
		&m.ID, &scopeID, &m.Content, &tagsJSON, &source, &m.Kind, &qualityScore, &qualityFactors,
		&embedding, &m.AccessCount, &lastAccessed, &m.ValidFrom, &validUntil,
		&invalidatedBy, &m.CorrectionCount, &m.IsInvariant, &m.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan memory: %w", err)
	}

	m.ScopeID = scopeID.String
	m.Source = source.String
	m.InvalidatedBy = invalidatedBy.String
	m.Tags = ParseTags(tagsJSON)
	m.Embedding = DecodeEmbedding(embedding)
	if qualityScore.Valid {
		m.QualityScore = &qualityScore.Float64
	}
	if qualityFactors.Valid {
		m.QualityFactors = ParseQualityFactors(qualityFactors.String)
	}
	if lastAccessed.Valid {
		m.LastAccessed = &lastAccessed.Time
	}
	if validUntil.Valid {
		m.ValidUntil = &validUntil.Time
	}

	return &m, nil
}

func scanMemories(rows *sql.Rows) ([]*Memory, error) {
	var memories []*Memory
	for rows.Next() {
		var m Memory
		var tagsJSON string
		var scopeID, source, qualityFactors, invalidatedBy sql.NullString
		var qualityScore sql.NullFloat64
		var lastAccessed sql.NullTime
		var validUntil sql.NullTime
		var embedding []byte

		err := rows.Scan(
			&m.ID, &scopeID, &m.Content, &tagsJSON, &source, &m.Kind, &qualityScore, &qualityFactors,
			&embedding, &m.AccessCount, &lastAccessed, &m.ValidFrom, &validUntil,
			&invalidatedBy, &m.CorrectionCount, &m.IsInvariant, &m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}

		m.ScopeID = scopeID.String
		m.Source = source.String
		m.InvalidatedBy = invalidatedBy.String
		m.Tags = ParseTags(tagsJSON)
		m.Embedding = DecodeEmbedding(embedding)
		if qualityScore.Valid {
			m.QualityScore = &qualityScore.Float64
		}
		if qualityFactors.Valid {
			m.QualityFactors = ParseQualityFactors(qualityFactors.String)
		}
		if lastAccessed.Valid {
			m.LastAccessed = &lastAccessed.Time
		}
		if validUntil.Valid {
			m.ValidUntil = &validUntil.Time
		}

		memories = append(memories, &m)
	}
	return memories, nil
}

// CreateCategory creates a new category.
func (d *Database) CreateCategory(c *Category) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	_, err := d.db.Exec(`
		INSERT INTO categories (id, name, description, parent_category_id, auto_generated, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID, c.Name, c.Description, nullString(c.ParentCategoryID), c.AutoGenerated, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

// ListCategories retrieves all categories.
func (d *Database) ListCategories() ([]*Category, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`
		SELECT id, name, description, parent_category_id, auto_generated, created_at
		FROM categories ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []*Category
	for rows.Next() {
		var c Category
		var parentID sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &parentID, &c.AutoGenerated, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		c.ParentCategoryID = parentID.String
		categories = append(categories, &c)
	}
	return categories, nil
}

// CategorizeMemory assigns a memory to a category.
func (d *Database) CategorizeMemory(memoryID, categoryID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.Exec(`
		INSERT OR REPLACE INTO memory_categorizations (memory_id, category_id, created_at)
		VALUES (?, ?, ?)
	`, memoryID, categoryID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to categorize memory: %w", err)
	}
	return nil
}

// CreateDomain creates a new domain within a scope.
func (d *Database) CreateDomain(dom *Domain) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if dom.ID == "" {
		dom.ID = uuid.New().String()
	}
	now := time.Now()
	if dom.CreatedAt.IsZero() {
		dom.CreatedAt = now
	}
	dom.UpdatedAt = now

	_, err := d.db.Exec(`
		INSERT INTO domains (id, scope_id, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, dom.ID, nullString(dom.ScopeID), dom.Name, dom.Description, dom.CreatedAt, dom.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create domain: %w", err)
	}
	return nil
}

// ListDomains retrieves all domains visible within a scope (plus global
// domains).
func (d *Database) ListDomains(scopeID string) ([]*Domain, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`
		SELECT id, scope_id, name, description, created_at, updated_at
		FROM domains WHERE scope_id = ? OR scope_id IS NULL
		ORDER BY name
	`, scopeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	defer rows.Close()

	var domains []*Domain
	for rows.Next() {
		var dom Domain
		var scope, description sql.NullString
		if err := rows.Scan(&dom.ID, &scope, &dom.Name, &description, &dom.CreatedAt, &dom.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan domain: %w", err)
		}
		dom.ScopeID = scope.String
		dom.Description = description.String
		domains = append(domains, &dom)
	}
	return domains, nil
}

// RecordMetric records a performance metric for an operation.
func (d *Database) RecordMetric(operationType string, executionTimeMs int, itemCount int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.Exec(`
		INSERT INTO performance_metrics (operation_type, execution_time_ms, item_count, timestamp)
		VALUES (?, ?, ?, ?)
	`, operationType, executionTimeMs, itemCount, time.Now())
	return err
}

// BatchResult is the per-candidate outcome of BatchInsertMemories.
type BatchResult struct {
	ID          string
	Saved       bool
	DuplicateOf string
	Similarity  float64
}

// BatchInsertMemories loads every active memory embedding once, then scans
// each candidate against that set (plus candidates already accepted earlier
// in the same call) for a near-duplicate at or above dedupThreshold. Accepted
// candidates are inserted in a single transaction; duplicates are reported
// but never written. O(N·M) where M is the existing active corpus size.
func (d *Database) BatchInsertMemories(candidates []*Memory, dedupThreshold float64) ([]BatchResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	existing := make(map[string][]float32)
	rows, err := d.db.Query(`
		SELECT id, embedding FROM memories
		WHERE invalidated_by IS NULL AND (valid_until IS NULL OR valid_until > CURRENT_TIMESTAMP)
	`)
	if err != nil {
		return nil, fmt.Errorf("batch insert: load existing embeddings: %w", err)
	}
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			rows.Close()
			return nil, fmt.Errorf("batch insert: scan existing embedding: %w", err)
		}
		existing[id] = DecodeEmbedding(blob)
	}
	rows.Close()

	tx, err := d.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("batch insert: begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	results := make([]BatchResult, len(candidates))

	for i, m := range candidates {
		bestID, bestSim := "", 0.0
		for id, vec := range existing {
			if sim := cosineSimilarity(m.Embedding, vec); sim > bestSim {
				bestID, bestSim = id, sim
			}
		}

		if bestID != "" && bestSim >= dedupThreshold {
			results[i] = BatchResult{ID: bestID, Saved: false, DuplicateOf: bestID, Similarity: bestSim}
			continue
		}

		if strings.TrimSpace(m.Content) == "" {
			return nil, fmt.Errorf("batch insert: candidate %d has empty content", i)
		}
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		if m.ValidFrom.IsZero() {
			m.ValidFrom = m.CreatedAt
		}
		if m.Kind == "" {
			m.Kind = "observation"
		}

		_, err := tx.Exec(`
			INSERT INTO memories (
				id, scope_id, content, tags, source, kind, quality_score, quality_factors,
				embedding, access_count, last_accessed, valid_from, valid_until,
				invalidated_by, correction_count, is_invariant, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			m.ID, nullString(m.ScopeID), m.Content, m.TagsJSON(), nullString(m.Source), m.Kind,
			m.QualityScore, nullString(m.QualityFactorsJSON()), EncodeEmbedding(m.Embedding),
			m.AccessCount, m.LastAccessed, m.ValidFrom, m.ValidUntil, nullString(m.InvalidatedBy),
			m.CorrectionCount, m.IsInvariant, m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("batch insert: insert candidate %d: %w", i, err)
		}

		existing[m.ID] = m.Embedding
		results[i] = BatchResult{ID: m.ID, Saved: true}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("batch insert: commit: %w", err)
	}
	return results, nil
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0 if
// either vector is empty or they differ in length.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
