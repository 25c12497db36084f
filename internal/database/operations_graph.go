package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateLink creates a typed edge between two memories. Idempotent on
// (source_id, target_id, relation): on conflict the existing edge is left
// unchanged and l is overwritten in place with its stored values, so
// repeated auto-link derivations never flap a weight that's already set.
func (d *Database) CreateLink(l *MemoryLink) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !IsValidRelationType(l.Relation) {
		return fmt.Errorf("invalid relation type: %s", l.Relation)
	}
	if l.Weight <= 0 || l.Weight > 1.0 {
		return fmt.Errorf("link weight must be in (0, 1], got %f", l.Weight)
	}

	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	now := time.Now()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	if l.ValidFrom.IsZero() {
		l.ValidFrom = l.CreatedAt
	}

	result, err := d.db.Exec(`
		INSERT INTO memory_links (id, source_id, target_id, relation, weight, valid_from, valid_until, llm_enriched, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_id, target_id, relation) DO NOTHING
	`, l.ID, l.SourceID, l.TargetID, l.Relation, l.Weight, l.ValidFrom, l.ValidUntil, l.LLMEnriched, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		var existing MemoryLink
		var validUntil sql.NullTime
		err := d.db.QueryRow(`
			SELECT id, source_id, target_id, relation, weight, valid_from, valid_until, llm_enriched, created_at
			FROM memory_links WHERE source_id = ? AND target_id = ? AND relation = ?
		`, l.SourceID, l.TargetID, l.Relation).Scan(
			&existing.ID, &existing.SourceID, &existing.TargetID, &existing.Relation, &existing.Weight,
			&existing.ValidFrom, &validUntil, &existing.LLMEnriched, &existing.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to load existing link: %w", err)
		}
		if validUntil.Valid {
			existing.ValidUntil = &validUntil.Time
		}
		*l = existing
	}
	return nil
}

// InvalidateLink soft-invalidates a single link by setting valid_until=now.
func (d *Database) InvalidateLink(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	result, err := d.db.Exec(`UPDATE memory_links SET valid_until = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to invalidate link: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("link not found: %s", id)
	}
	return nil
}

// GetLinksForMemory retrieves all active links touching memoryID, in
// either direction, optionally filtered by relation.
func (d *Database) GetLinksForMemory(memoryID string, filters *RelationshipFilters) ([]*MemoryLink, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	query := `
		SELECT id, source_id, target_id, relation, weight, valid_from, valid_until, llm_enriched, created_at
		FROM memory_links
		WHERE (source_id = ? OR target_id = ?) AND valid_until IS NULL
	`
	args := []interface{}{memoryID, memoryID}

	if filters != nil {
		if filters.Relation != "" {
			query += " AND relation = ?"
			args = append(args, filters.Relation)
		}
		if filters.MinStrength > 0 {
			query += " AND weight >= ?"
			args = append(args, filters.MinStrength)
		}
	}
	query += " ORDER BY weight DESC"
	if filters != nil && filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filters.Limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get links: %w", err)
	}
	defer rows.Close()

	return scanLinks(rows)
}

// GetLinksBetween retrieves all active links directly connecting two
// memories, in either direction.
func (d *Database) GetLinksBetween(aID, bID string) ([]*MemoryLink, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`
		SELECT id, source_id, target_id, relation, weight, valid_from, valid_until, llm_enriched, created_at
		FROM memory_links
		WHERE valid_until IS NULL AND (
			(source_id = ? AND target_id = ?) OR (source_id = ? AND target_id = ?)
		)
	`, aID, bID, bID, aID)
	if err != nil {
		return nil, fmt.Errorf("failed to get links between memories: %w", err)
	}
	defer rows.Close()

	return scanLinks(rows)
}

func scanLinks(rows *sql.Rows) ([]*MemoryLink, error) {
	var links []*MemoryLink
	for rows.Next() {
		var l MemoryLink
		var validUntil sql.NullTime
		if err := rows.Scan(&l.ID, &l.SourceID, &l.TargetID, &l.Relation, &l.Weight, &l.ValidFrom, &validUntil, &l.LLMEnriched, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		if validUntil.Valid {
			l.ValidUntil = &validUntil.Time
		}
		links = append(links, &l)
	}
	return links, nil
}

// GetGraph performs a bounded breadth-first traversal over active memory
// links starting at rootID, up to maxDepth hops (clamped to 4), optionally
// evaluated as of a point in time rather than now. The traversal stops
// adding nodes once 1000 have been visited.
func (d *Database) GetGraph(rootID string, maxDepth int, asOf *time.Time) (*Graph, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if maxDepth <= 0 {
		maxDepth = 2
	}
	if maxDepth > 4 {
		maxDepth = 4
	}

	cutoff := time.Now()
	if asOf != nil {
		cutoff = *asOf
	}

	graph := &Graph{}
	visited := map[string]int{rootID: 0}
	edgeSeen := map[string]bool{}
	frontier := []string{rootID}

	root, err := d.getMemoryLocked(rootID)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return graph, nil
	}
	graph.Nodes = append(graph.Nodes, GraphNode{ID: root.ID, Content: root.Content, Distance: 0})

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			rows, err := d.db.Query(`
				SELECT id, source_id, target_id, relation, weight, valid_from, valid_until, llm_enriched, created_at
				FROM memory_links
				WHERE (source_id = ? OR target_id = ?)
				  AND valid_from <= ?
				  AND (valid_until IS NULL OR ? < valid_until)
			`, id, id, cutoff, cutoff)
			if err != nil {
				return nil, fmt.Errorf("failed to query links at depth %d: %w", depth, err)
			}
			links, err := scanLinks(rows)
			rows.Close()
			if err != nil {
				return nil, err
			}

			for _, l := range links {
				edgeKey := l.SourceID + "|" + l.TargetID + "|" + l.Relation
				if !edgeSeen[edgeKey] {
					edgeSeen[edgeKey] = true
					graph.Edges = append(graph.Edges, GraphEdge{
						SourceID: l.SourceID, TargetID: l.TargetID, Relation: l.Relation, Weight: l.Weight,
					})
				}

				neighbor := l.TargetID
				if neighbor == id {
					neighbor = l.SourceID
				}
				if _, seen := visited[neighbor]; seen {
					continue
				}
				if len(visited) >= 1000 {
					continue
				}
				visited[neighbor] = depth + 1

				mem, err := d.getMemoryLocked(neighbor)
				if err != nil {
					return nil, err
				}
				if mem == nil {
					continue
				}
				graph.Nodes = append(graph.Nodes, GraphNode{ID: mem.ID, Content: mem.Content, Distance: depth + 1})
				next = append(next, neighbor)
			}
		}
		frontier = next
	}

	return graph, nil
}

// getMemoryLocked is GetMemory without re-acquiring d.mu, for use from
// within methods that already hold the read lock.
func (d *Database) getMemoryLocked(id string) (*Memory, error) {
	row := d.db.QueryRow(`
		SELECT id, scope_id, content, tags, source, kind, quality_score, quality_factors,
		       embedding, access_count, last_accessed, valid_from, valid_until,
		       invalidated_by, correction_count, is_invariant, created_at
		FROM memories WHERE id = ?
	`, id)
	return scanMemory(row)
}

// UpsertCentralityScore writes or replaces a memory's cached centrality
// measurement.
func (d *Database) UpsertCentralityScore(c *CentralityScore) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}

	_, err := d.db.Exec(`
		INSERT INTO centrality_scores (memory_id, degree, normalized_degree, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (memory_id) DO UPDATE SET
			degree = excluded.degree,
			normalized_degree = excluded.normalized_degree,
			updated_at = excluded.updated_at
	`, c.MemoryID, c.Degree, c.NormalizedDegree, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert centrality score: %w", err)
	}
	return nil
}

// GetCentralityScore retrieves the cached centrality score for a memory.
// Returns (nil, nil) if never computed.
func (d *Database) GetCentralityScore(memoryID string) (*CentralityScore, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var c CentralityScore
	err := d.db.QueryRow(`
		SELECT memory_id, degree, normalized_degree, updated_at FROM centrality_scores WHERE memory_id = ?
	`, memoryID).Scan(&c.MemoryID, &c.Degree, &c.NormalizedDegree, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get centrality score: %w", err)
	}
	return &c, nil
}

// CountActiveLinks returns the number of distinct active links touching
// memoryID, the raw degree centrality feeds on.
func (d *Database) CountActiveLinks(memoryID string) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var count int
	err := d.db.QueryRow(`
		SELECT COUNT(*) FROM memory_links
		WHERE (source_id = ? OR target_id = ?) AND valid_until IS NULL
	`, memoryID, memoryID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count links: %w", err)
	}
	return count, nil
}

// CountLinksByRelation tallies active links grouped by relation type, used
// by the graph service's Stats summary.
func (d *Database) CountLinksByRelation() (map[string]int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`
		SELECT relation, COUNT(*) FROM memory_links WHERE valid_until IS NULL GROUP BY relation
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to tally links by relation: %w", err)
	}
	defer rows.Close()

	tally := make(map[string]int)
	for rows.Next() {
		var relation string
		var count int
		if err := rows.Scan(&relation, &count); err != nil {
			return nil, fmt.Errorf("failed to scan link tally: %w", err)
		}
		tally[relation] = count
	}
	return tally, nil
}

// AllMemoryIDs returns every memory id currently in the store, used by the
// centrality recompute job to iterate the full graph.
func (d *Database) AllMemoryIDs() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`SELECT id FROM memories`)
	if err != nil {
		return nil, fmt.Errorf("failed to list memory ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan memory id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
