// Package sqlitevec implements the embedded ANN profile of
// internal/vectorstore.ANNIndex on top of sqlite-vec's vec0 virtual tables.
package sqlitevec

import (
	"context"
	"database/sql"
	"fmt"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/synapsedb/synapse/internal/logging"
	"github.com/synapsedb/synapse/internal/vectorstore"
)

var log = logging.GetLogger("vectorstore.sqlitevec")

// Index is the embedded ANN backend. It addresses the vec_documents and
// vec_memories virtual tables created by internal/database's schema,
// through the entity-id mapping tables that translate vec0's internal
// integer rowids to the application's string ids.
type Index struct {
	db *sql.DB
}

// New wraps an already-initialized database handle. The caller owns
// opening the connection and running schema initialization; this type
// only issues vec0 DML/DQL against it.
func New(db *sql.DB) *Index {
	return &Index{db: db}
}

func tableNames(corpus vectorstore.Corpus) (vecTable, mapTable string, err error) {
	switch corpus {
	case vectorstore.CorpusDocuments:
		return "vec_documents", "vec_documents_map", nil
	case vectorstore.CorpusMemories:
		return "vec_memories", "vec_memories_map", nil
	default:
		return "", "", fmt.Errorf("unknown corpus: %s", corpus)
	}
}

// Upsert writes an embedding for id, replacing any prior vector for the
// same entity. vec0 has no native UPSERT, so this deletes by mapped rowid
// (if one exists) before inserting.
func (idx *Index) Upsert(ctx context.Context, corpus vectorstore.Corpus, id string, embedding []float32) error {
	vecTable, mapTable, err := tableNames(corpus)
	if err != nil {
		return err
	}

	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return fmt.Errorf("serialize embedding: %w", err)
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existingRowid sql.NullInt64
	err = tx.QueryRowContext(ctx, fmt.Sprintf("SELECT vec_rowid FROM %s WHERE entity_id = ?", mapTable), id).Scan(&existingRowid)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("lookup existing rowid: %w", err)
	}
	if existingRowid.Valid {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE rowid = ?", vecTable), existingRowid.Int64); err != nil {
			return fmt.Errorf("delete stale vector: %w", err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE entity_id = ?", mapTable), id); err != nil {
			return fmt.Errorf("delete stale map entry: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s(embedding) VALUES (?)", vecTable), blob)
	if err != nil {
		return fmt.Errorf("insert vector: %w", err)
	}
	rowid, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("get inserted rowid: %w", err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (vec_rowid, entity_id) VALUES (?, ?)", mapTable), rowid, id); err != nil {
		return fmt.Errorf("insert map entry: %w", err)
	}

	return tx.Commit()
}

// Delete removes id's vector from corpus, if present.
func (idx *Index) Delete(ctx context.Context, corpus vectorstore.Corpus, id string) error {
	vecTable, mapTable, err := tableNames(corpus)
	if err != nil {
		return err
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var rowid sql.NullInt64
	err = tx.QueryRowContext(ctx, fmt.Sprintf("SELECT vec_rowid FROM %s WHERE entity_id = ?", mapTable), id).Scan(&rowid)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup rowid: %w", err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE rowid = ?", vecTable), rowid.Int64); err != nil {
		return fmt.Errorf("delete vector: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE entity_id = ?", mapTable), id); err != nil {
		return fmt.Errorf("delete map entry: %w", err)
	}

	return tx.Commit()
}

// Search performs a k-nearest-neighbor MATCH query against corpus's vec0
// table and translates rowids back to entity ids via the map table.
func (idx *Index) Search(ctx context.Context, corpus vectorstore.Corpus, query []float32, k int) ([]vectorstore.Match, error) {
	vecTable, mapTable, err := tableNames(corpus)
	if err != nil {
		return nil, err
	}

	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, fmt.Errorf("serialize query embedding: %w", err)
	}
	if k <= 0 {
		k = 10
	}

	rows, err := idx.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT m.entity_id, v.distance
		FROM %s v
		JOIN %s m ON m.vec_rowid = v.rowid
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, vecTable, mapTable), blob, k)
	if err != nil {
		return nil, fmt.Errorf("vec0 search: %w", err)
	}
	defer rows.Close()

	var matches []vectorstore.Match
	for rows.Next() {
		var id string
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		// vec0's default distance metric is L2 over normalized cosine
		// space; convert to a similarity score in [0,1] so ranker fusion
		// logic never has to know which backend produced a score.
		matches = append(matches, vectorstore.Match{ID: id, Score: distanceToSimilarity(distance)})
	}

	return matches, nil
}

// Available reports whether the index holds a database handle: the embedded
// backend shares the process's own sqlite connection and has no separate
// liveness to probe.
func (idx *Index) Available(ctx context.Context) bool {
	return idx.db != nil
}

// distanceToSimilarity converts an L2 distance over (approximately)
// unit-normalized vectors to a cosine-like similarity in [0, 1].
func distanceToSimilarity(distance float64) float64 {
	sim := 1.0 - (distance * distance / 2.0)
	if sim < 0 {
		sim = 0
	}
	if sim > 1 {
		sim = 1
	}
	return sim
}
