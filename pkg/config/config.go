package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Profile       string              `mapstructure:"profile"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	RestAPI       RestAPIConfig       `mapstructure:"rest_api"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	VectorStore   VectorStoreConfig   `mapstructure:"vector_store"`
	Qdrant        QdrantConfig        `mapstructure:"qdrant"`
	Ollama        OllamaConfig        `mapstructure:"ollama"`
	BM25          BM25Config          `mapstructure:"bm25"`
	Ranker        RankerConfig        `mapstructure:"ranker"`
	Consolidation ConsolidationConfig `mapstructure:"consolidation"`
	Retention     RetentionConfig     `mapstructure:"retention"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path           string        `mapstructure:"path"`
	BackupInterval time.Duration `mapstructure:"backup_interval"`
	MaxBackups     int           `mapstructure:"max_backups"`
	AutoMigrate    bool          `mapstructure:"auto_migrate"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RestAPIConfig holds REST API server configuration.
type RestAPIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Host    string `mapstructure:"host"`
	CORS    bool   `mapstructure:"cors"`
}

// EmbeddingConfig describes the vector shape the store expects from the
// externally-owned embedder (see spec §6). The store never computes
// embeddings itself; it only validates the dimension it is handed.
type EmbeddingConfig struct {
	Dimension int           `mapstructure:"dimension"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// VectorStoreProfile selects one of the two deployment profiles from spec §6.
type VectorStoreProfile string

const (
	// ProfileEmbedded uses an embedded single-file DB with a bundled ANN
	// extension (sqlite-vec).
	ProfileEmbedded VectorStoreProfile = "embedded"
	// ProfileServer uses a server DB with a native vector extension (Qdrant).
	ProfileServer VectorStoreProfile = "server"
)

// VectorStoreConfig selects and configures the ANN backend.
type VectorStoreConfig struct {
	Profile              VectorStoreProfile `mapstructure:"profile"`
	BruteForceMaxCorpus  int                 `mapstructure:"brute_force_max_corpus"`
	ANNBackoffWindow     time.Duration       `mapstructure:"ann_backoff_window"`
}

// QdrantConfig holds Qdrant vector database configuration (server profile).
type QdrantConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	AutoDetect bool   `mapstructure:"auto_detect"`
	URL        string `mapstructure:"url"`
}

// OllamaConfig holds the reference Embedder/LLM client configuration. Both
// are external collaborators (spec §6); the core never imports Ollama
// directly, only the Embedder/LLM interfaces in internal/embed.
type OllamaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	AutoDetect     bool   `mapstructure:"auto_detect"`
	BaseURL        string `mapstructure:"base_url"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	ChatModel      string `mapstructure:"chat_model"`
}

// BM25Config holds the standard Okapi BM25 parameters (spec §4.3).
type BM25Config struct {
	K1               float64 `mapstructure:"k1"`
	B                float64 `mapstructure:"b"`
	SegmentThreshold int     `mapstructure:"segment_threshold"` // T in spec §4.2
}

// DecayShape selects the temporal-decay formula for recency boost / retention.
type DecayShape string

const (
	DecayExponential DecayShape = "exponential"
	DecayHyperbolic  DecayShape = "hyperbolic"
)

// RankerConfig holds the hybrid ranker's tunables (spec §4.4).
type RankerConfig struct {
	Alpha                float64       `mapstructure:"alpha"`
	KBM25                int           `mapstructure:"k_bm25"`
	KVector              int           `mapstructure:"k_vector"`
	SymbolExactBoost     float64       `mapstructure:"symbol_exact_boost"`
	SymbolPartialBoost   float64       `mapstructure:"symbol_partial_boost"`
	MaxRegexLen          int           `mapstructure:"max_regex_len"`
	QualityBoostWeight   float64       `mapstructure:"quality_boost_weight"`
	QualityBoostEnabled  bool          `mapstructure:"quality_boost_enabled"`
	RecencyDecayShape    DecayShape    `mapstructure:"recency_decay_shape"`
	RecencyHalfLifeHours float64       `mapstructure:"recency_half_life_hours"`
	RecencyFloor         float64       `mapstructure:"recency_floor"`
	RecencyAutoSkipHours float64       `mapstructure:"recency_auto_skip_hours"`
	CentralityEnabled    bool          `mapstructure:"centrality_enabled"`
	CentralityWeight     float64       `mapstructure:"centrality_weight"`
	CentralityTTL        time.Duration `mapstructure:"centrality_ttl"`
	MMREnabled           bool          `mapstructure:"mmr_enabled"`
	MMRLambda            float64       `mapstructure:"mmr_lambda"`
	DedupThreshold       float64       `mapstructure:"dedup_threshold"`     // 0.92 — "is a duplicate"
	AutoLinkThreshold    float64       `mapstructure:"auto_link_threshold"` // 0.7 — "similar enough to link"
	AutoLinkMax          int           `mapstructure:"auto_link_max"`
}

// ConsolidationConfig gates the consolidation engine (spec §4.7). It is
// off by default; a project-level config may only disable it further, never
// enable it when the global flag is off.
type ConsolidationConfig struct {
	Enabled            bool    `mapstructure:"enabled"`
	SimilarityForMerge float64 `mapstructure:"similarity_for_merge"`
	MinMemoryAgeDays   int     `mapstructure:"min_memory_age_days"`
	MinCorpusSize      int     `mapstructure:"min_corpus_size"`
	RequireLLMMerge    bool    `mapstructure:"require_llm_merge"`
}

// RetentionConfig gates the retention/eviction engine (spec §4.7).
type RetentionConfig struct {
	Enabled          bool       `mapstructure:"enabled"`
	DecayShape       DecayShape `mapstructure:"decay_shape"`
	HalfLifeHours    float64    `mapstructure:"half_life_hours"`
	DecayRatePerDay  float64    `mapstructure:"decay_rate_per_day"`
	AccessWeight     float64    `mapstructure:"access_weight"`
	MaxAccessBoost   float64    `mapstructure:"max_access_boost"`
	KeepThreshold    float64    `mapstructure:"keep_threshold"`
	DeleteThreshold  float64    `mapstructure:"delete_threshold"`
	MinMemoryAgeDays int        `mapstructure:"min_memory_age_days"`
}

// RateLimitConfig bounds incoming REST API requests (global token bucket).
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	configDir := filepath.Join(homeDir, ".synapse")

	return &Config{
		Profile: "default",
		Database: DatabaseConfig{
			Path:           filepath.Join(configDir, "synapse.db"),
			BackupInterval: 24 * time.Hour,
			MaxBackups:     7,
			AutoMigrate:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		RestAPI: RestAPIConfig{
			Enabled: true,
			Port:    7780,
			Host:    "localhost",
			CORS:    true,
		},
		Embedding: EmbeddingConfig{
			Dimension: 384,
			Timeout:   10 * time.Second,
		},
		VectorStore: VectorStoreConfig{
			Profile:             ProfileEmbedded,
			BruteForceMaxCorpus: 200,
			ANNBackoffWindow:    30 * time.Second,
		},
		Qdrant: QdrantConfig{
			Enabled:    false,
			AutoDetect: true,
			URL:        "http://localhost:6333",
		},
		Ollama: OllamaConfig{
			Enabled:        true,
			AutoDetect:     true,
			BaseURL:        "http://localhost:11434",
			EmbeddingModel: "nomic-embed-text",
			ChatModel:      "qwen2.5:3b",
		},
		BM25: BM25Config{
			K1:               1.2,
			B:                0.75,
			SegmentThreshold: 10000,
		},
		Ranker: RankerConfig{
			Alpha:                0.4,
			KBM25:                50,
			KVector:              50,
			SymbolExactBoost:     0.15,
			SymbolPartialBoost:   0.08,
			MaxRegexLen:          500,
			QualityBoostWeight:   0.1,
			QualityBoostEnabled:  true,
			RecencyDecayShape:    DecayExponential,
			RecencyHalfLifeHours: 168,
			RecencyFloor:         0.1,
			RecencyAutoSkipHours: 24,
			CentralityEnabled:    true,
			CentralityWeight:     0.05,
			CentralityTTL:        10 * time.Minute,
			MMREnabled:           true,
			MMRLambda:            0.8,
			DedupThreshold:       0.92,
			AutoLinkThreshold:    0.7,
			AutoLinkMax:          3,
		},
		Consolidation: ConsolidationConfig{
			Enabled:            false,
			SimilarityForMerge: 0.92,
			MinMemoryAgeDays:   7,
			MinCorpusSize:      20,
			RequireLLMMerge:    false,
		},
		Retention: RetentionConfig{
			Enabled:          false,
			DecayShape:       DecayExponential,
			HalfLifeHours:    168,
			DecayRatePerDay:  0.05,
			AccessWeight:     0.2,
			MaxAccessBoost:   2.0,
			KeepThreshold:    0.3,
			DeleteThreshold:  0.05,
			MinMemoryAgeDays: 7,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 5,
			BurstSize:         10,
		},
	}
}

// Load loads configuration from YAML file with fallback to defaults.
// Searches in multiple locations:
//  1. ./config.yaml (current directory)
//  2. ~/.synapse/config.yaml (user home)
//  3. /etc/synapse/config.yaml (system-wide)
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	homeDir, _ := os.UserHomeDir()
	v.AddConfigPath(filepath.Join(homeDir, ".synapse"))
	v.AddConfigPath("/etc/synapse")

	setDefaults(v, DefaultConfig())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults seeds viper with the zero-config defaults so a partial YAML
// file only needs to override what it cares about.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("profile", d.Profile)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.backup_interval", d.Database.BackupInterval)
	v.SetDefault("database.max_backups", d.Database.MaxBackups)
	v.SetDefault("database.auto_migrate", d.Database.AutoMigrate)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("rest_api.enabled", d.RestAPI.Enabled)
	v.SetDefault("rest_api.port", d.RestAPI.Port)
	v.SetDefault("rest_api.host", d.RestAPI.Host)
	v.SetDefault("rest_api.cors", d.RestAPI.CORS)

	v.SetDefault("embedding.dimension", d.Embedding.Dimension)
	v.SetDefault("embedding.timeout", d.Embedding.Timeout)

	v.SetDefault("vector_store.profile", string(d.VectorStore.Profile))
	v.SetDefault("vector_store.brute_force_max_corpus", d.VectorStore.BruteForceMaxCorpus)
	v.SetDefault("vector_store.ann_backoff_window", d.VectorStore.ANNBackoffWindow)

	v.SetDefault("qdrant.enabled", d.Qdrant.Enabled)
	v.SetDefault("qdrant.auto_detect", d.Qdrant.AutoDetect)
	v.SetDefault("qdrant.url", d.Qdrant.URL)

	v.SetDefault("ollama.enabled", d.Ollama.Enabled)
	v.SetDefault("ollama.auto_detect", d.Ollama.AutoDetect)
	v.SetDefault("ollama.base_url", d.Ollama.BaseURL)
	v.SetDefault("ollama.embedding_model", d.Ollama.EmbeddingModel)
	v.SetDefault("ollama.chat_model", d.Ollama.ChatModel)

	v.SetDefault("bm25.k1", d.BM25.K1)
	v.SetDefault("bm25.b", d.BM25.B)
	v.SetDefault("bm25.segment_threshold", d.BM25.SegmentThreshold)

	v.SetDefault("ranker.alpha", d.Ranker.Alpha)
	v.SetDefault("ranker.k_bm25", d.Ranker.KBM25)
	v.SetDefault("ranker.k_vector", d.Ranker.KVector)
	v.SetDefault("ranker.symbol_exact_boost", d.Ranker.SymbolExactBoost)
	v.SetDefault("ranker.symbol_partial_boost", d.Ranker.SymbolPartialBoost)
	v.SetDefault("ranker.max_regex_len", d.Ranker.MaxRegexLen)
	v.SetDefault("ranker.quality_boost_weight", d.Ranker.QualityBoostWeight)
	v.SetDefault("ranker.quality_boost_enabled", d.Ranker.QualityBoostEnabled)
	v.SetDefault("ranker.recency_decay_shape", string(d.Ranker.RecencyDecayShape))
	v.SetDefault("ranker.recency_half_life_hours", d.Ranker.RecencyHalfLifeHours)
	v.SetDefault("ranker.recency_floor", d.Ranker.RecencyFloor)
	v.SetDefault("ranker.recency_auto_skip_hours", d.Ranker.RecencyAutoSkipHours)
	v.SetDefault("ranker.centrality_enabled", d.Ranker.CentralityEnabled)
	v.SetDefault("ranker.centrality_weight", d.Ranker.CentralityWeight)
	v.SetDefault("ranker.centrality_ttl", d.Ranker.CentralityTTL)
	v.SetDefault("ranker.mmr_enabled", d.Ranker.MMREnabled)
	v.SetDefault("ranker.mmr_lambda", d.Ranker.MMRLambda)
	v.SetDefault("ranker.dedup_threshold", d.Ranker.DedupThreshold)
	v.SetDefault("ranker.auto_link_threshold", d.Ranker.AutoLinkThreshold)
	v.SetDefault("ranker.auto_link_max", d.Ranker.AutoLinkMax)

	v.SetDefault("consolidation.enabled", d.Consolidation.Enabled)
	v.SetDefault("consolidation.similarity_for_merge", d.Consolidation.SimilarityForMerge)
	v.SetDefault("consolidation.min_memory_age_days", d.Consolidation.MinMemoryAgeDays)
	v.SetDefault("consolidation.min_corpus_size", d.Consolidation.MinCorpusSize)
	v.SetDefault("consolidation.require_llm_merge", d.Consolidation.RequireLLMMerge)

	v.SetDefault("retention.enabled", d.Retention.Enabled)
	v.SetDefault("retention.decay_shape", string(d.Retention.DecayShape))
	v.SetDefault("retention.half_life_hours", d.Retention.HalfLifeHours)
	v.SetDefault("retention.decay_rate_per_day", d.Retention.DecayRatePerDay)
	v.SetDefault("retention.access_weight", d.Retention.AccessWeight)
	v.SetDefault("retention.max_access_boost", d.Retention.MaxAccessBoost)
	v.SetDefault("retention.keep_threshold", d.Retention.KeepThreshold)
	v.SetDefault("retention.delete_threshold", d.Retention.DeleteThreshold)
	v.SetDefault("retention.min_memory_age_days", d.Retention.MinMemoryAgeDays)

	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.requests_per_second", d.RateLimit.RequestsPerSecond)
	v.SetDefault("rate_limit.burst_size", d.RateLimit.BurstSize)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.MaxBackups < 0 {
		return fmt.Errorf("database.max_backups must be >= 0")
	}

	if c.RestAPI.Enabled {
		if c.RestAPI.Port < 1 || c.RestAPI.Port > 65535 {
			return fmt.Errorf("rest_api.port must be between 1 and 65535")
		}
		if c.RestAPI.Host == "" {
			return fmt.Errorf("rest_api.host is required when REST API is enabled")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: console, json")
	}

	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be > 0")
	}

	switch c.VectorStore.Profile {
	case ProfileEmbedded, ProfileServer:
	default:
		return fmt.Errorf("vector_store.profile must be 'embedded' or 'server'")
	}

	if c.VectorStore.Profile == ProfileServer && c.Qdrant.URL == "" {
		return fmt.Errorf("qdrant.url is required when vector_store.profile is 'server'")
	}

	if c.Ollama.Enabled && c.Ollama.BaseURL == "" {
		return fmt.Errorf("ollama.base_url is required when ollama is enabled")
	}

	if c.Ranker.Alpha < 0 || c.Ranker.Alpha > 1 {
		return fmt.Errorf("ranker.alpha must be between 0 and 1")
	}
	if c.Ranker.MMRLambda < 0 || c.Ranker.MMRLambda > 1 {
		return fmt.Errorf("ranker.mmr_lambda must be between 0 and 1")
	}
	if c.Ranker.DedupThreshold <= c.Ranker.AutoLinkThreshold {
		return fmt.Errorf("ranker.dedup_threshold must be greater than ranker.auto_link_threshold")
	}

	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func (c *Config) EnsureConfigDir() error {
	configDir := filepath.Dir(c.Database.Path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}

// ConfigPath returns the path to the configuration directory.
func ConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".synapse")
}

// DatabasePath returns the default database path.
func DatabasePath() string {
	return filepath.Join(ConfigPath(), "synapse.db")
}
