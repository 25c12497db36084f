// Package app wires the core services — database, vector store, graph,
// ranker, memory store, consolidation, and the reference embedder — from a
// single config.Config. Both cmd/synapse and anything else that needs the
// full stack (the REST API is built on top, not wired here directly) build
// their dependency graph through Open so there is exactly one place that
// knows how the pieces fit together.
package app

import (
	"fmt"

	"github.com/synapsedb/synapse/internal/bm25index"
	"github.com/synapsedb/synapse/internal/consolidation"
	"github.com/synapsedb/synapse/internal/database"
	"github.com/synapsedb/synapse/internal/embed"
	"github.com/synapsedb/synapse/internal/graph"
	"github.com/synapsedb/synapse/internal/memorystore"
	"github.com/synapsedb/synapse/internal/ranker"
	"github.com/synapsedb/synapse/internal/vectorstore"
	"github.com/synapsedb/synapse/internal/vectorstore/qdrant"
	"github.com/synapsedb/synapse/internal/vectorstore/sqlitevec"
	"github.com/synapsedb/synapse/pkg/config"
)

// App holds every long-lived service, opened once at startup and shared by
// the CLI and the REST API.
type App struct {
	Config *config.Config

	DB            *database.Database
	Vector        *vectorstore.Store
	Graph         *graph.Service
	Ranker        *ranker.Engine
	Memory        *memorystore.Service
	Consolidation *consolidation.Service // nil unless consolidation or retention is enabled
	Embedder      *embed.Client
}

// Open builds the full service graph for cfg, including opening the
// database and running schema migration if cfg.Database.AutoMigrate is set.
// Callers must call Close when done.
func Open(cfg *config.Config) (*App, error) {
	db, err := database.Open(cfg.Database.Path, cfg.Embedding.Dimension)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := db.InitSchema(); err != nil {
			db.Close()
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}

	ann, err := buildANNIndex(cfg, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	vec := vectorstore.NewStore(ann, database.NewCandidateSource(db), cfg.VectorStore.BruteForceMaxCorpus, cfg.VectorStore.ANNBackoffWindow, cfg.Embedding.Dimension)
	graphSvc := graph.New(db, vec, &cfg.Ranker)
	rankEngine := ranker.New(db, vec, graphSvc, &cfg.Ranker, bm25index.Params{K1: cfg.BM25.K1, B: cfg.BM25.B})
	memSvc := memorystore.New(db, vec, graphSvc, rankEngine, &cfg.Ranker)
	embedder := embed.NewClient(&cfg.Ollama, cfg.Embedding.Timeout)

	var cons *consolidation.Service
	if cfg.Consolidation.Enabled || cfg.Retention.Enabled {
		cons = consolidation.New(db, memSvc, graphSvc, vec, &cfg.Consolidation, &cfg.Retention, mergeFunc(embedder))
	}

	return &App{
		Config:        cfg,
		DB:            db,
		Vector:        vec,
		Graph:         graphSvc,
		Ranker:        rankEngine,
		Memory:        memSvc,
		Consolidation: cons,
		Embedder:      embedder,
	}, nil
}

// mergeFunc exposes the embedder's Merge method as a consolidation.MergeFunc
// only when the embedder is actually usable; consolidation falls back to
// plain concatenation (service.go's mergedContent) whenever RequireLLMMerge
// is off, so passing a disabled client through is harmless either way.
func mergeFunc(embedder *embed.Client) consolidation.MergeFunc {
	if !embedder.IsEnabled() {
		return nil
	}
	return embedder.Merge
}

func buildANNIndex(cfg *config.Config, db *database.Database) (vectorstore.ANNIndex, error) {
	switch cfg.VectorStore.Profile {
	case config.ProfileServer:
		return qdrant.New(&cfg.Qdrant, cfg.Embedding.Dimension), nil
	case config.ProfileEmbedded, "":
		return sqlitevec.New(db.DB()), nil
	default:
		return nil, fmt.Errorf("unknown vector store profile: %s", cfg.VectorStore.Profile)
	}
}

// Close releases every resource Open acquired.
func (a *App) Close() error {
	return a.DB.Close()
}
