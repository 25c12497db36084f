package database

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"time"
)

// Document is a chunk of a source artifact (code or prose). The "code:"
// path prefix distinguishes source code from prose for the tokenizer.
type Document struct {
	ID         string
	ScopeID    string
	Path       string
	ChunkIndex int
	Content    string
	StartLine  int
	EndLine    int
	Embedding  []float32
	SymbolName string
	SymbolType string
	Signature  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// FileHash tracks the last-indexed content hash of a file, so re-ingest of
// an unchanged file can be skipped.
type FileHash struct {
	ScopeID     string
	Path        string
	ContentHash string
	IndexedAt   time.Time
}

// Memory is a durable fact. ScopeID == "" means globally visible.
type Memory struct {
	ID              string
	ScopeID         string
	Content         string
	Tags            []string
	Source          string
	Kind            string
	QualityScore    *float64
	QualityFactors  map[string]float64
	Embedding       []float32
	AccessCount     float64
	LastAccessed    *time.Time
	ValidFrom       time.Time
	ValidUntil      *time.Time
	InvalidatedBy   string
	CorrectionCount int
	IsInvariant     bool
	CreatedAt       time.Time
}

// Active reports whether m is active as of t: not invalidated, and within
// its validity window.
func (m *Memory) Active(t time.Time) bool {
	if m.InvalidatedBy != "" {
		return false
	}
	if m.ValidFrom.After(t) {
		return false
	}
	if m.ValidUntil != nil && !t.Before(*m.ValidUntil) {
		return false
	}
	return true
}

// TagsJSON serializes Tags to a JSON array string.
func (m *Memory) TagsJSON() string {
	if len(m.Tags) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(m.Tags)
	return string(b)
}

// ParseTags parses a JSON array string into a tag slice.
func ParseTags(s string) []string {
	if s == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return nil
	}
	return tags
}

// QualityFactorsJSON serializes QualityFactors to a JSON object string.
func (m *Memory) QualityFactorsJSON() string {
	if len(m.QualityFactors) == 0 {
		return ""
	}
	b, _ := json.Marshal(m.QualityFactors)
	return string(b)
}

// ParseQualityFactors parses a JSON object string into a factor map.
func ParseQualityFactors(s string) map[string]float64 {
	if s == "" {
		return nil
	}
	var factors map[string]float64
	if err := json.Unmarshal([]byte(s), &factors); err != nil {
		return nil
	}
	return factors
}

// MemoryLink is a typed directed edge between two memories.
type MemoryLink struct {
	ID          string
	SourceID    string
	TargetID    string
	Relation    string
	Weight      float64
	ValidFrom   time.Time
	ValidUntil  *time.Time
	LLMEnriched bool
	CreatedAt   time.Time
}

// Active reports whether the link is active as of t.
func (l *MemoryLink) Active(t time.Time) bool {
	if l.ValidFrom.After(t) {
		return false
	}
	if l.ValidUntil != nil && !t.Before(*l.ValidUntil) {
		return false
	}
	return true
}

// CentralityScore is a cached per-memory graph centrality measurement.
type CentralityScore struct {
	MemoryID         string
	Degree           int
	NormalizedDegree float64
	UpdatedAt        time.Time
}

// Category is an optional classification layer over memories.
type Category struct {
	ID               string
	Name             string
	Description      string
	ParentCategoryID string
	AutoGenerated    bool
	CreatedAt        time.Time
}

// Domain is a coarser-grained partition within a scope (e.g. "backend").
type Domain struct {
	ID          string
	ScopeID     string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// GraphNode is a traversal result node from Database.GetGraph.
type GraphNode struct {
	ID       string
	Content  string
	Distance int
}

// GraphEdge is a traversal result edge from Database.GetGraph.
type GraphEdge struct {
	SourceID string
	TargetID string
	Relation string
	Weight   float64
}

// Graph is the result of a bounded BFS traversal over memory links.
type Graph struct {
	Nodes []GraphNode
	Edges []GraphEdge
}

// SearchResult pairs a Memory with a BM25-assigned relevance score.
type SearchResult struct {
	Memory    *Memory
	Relevance float64
}

// MemoryFilters narrows ListMemories results.
type MemoryFilters struct {
	ScopeID       string
	IncludeGlobal bool
	Kind          string
	Tags          []string
	StartDate     *time.Time
	EndDate       *time.Time
	IncludeExpired bool
	AsOf          *time.Time
	Limit         int
	Offset        int
}

// RelationshipFilters narrows FindRelated results.
type RelationshipFilters struct {
	Relation    string
	MinStrength float64
	Limit       int
}

// EncodeEmbedding serializes a float32 vector to little-endian bytes, the
// format stored in the documents/memories embedding columns and fed to
// sqlite-vec's SerializeFloat32-compatible blob format.
func EncodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeEmbedding parses the little-endian byte encoding back to a float32
// vector.
func DecodeEmbedding(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
