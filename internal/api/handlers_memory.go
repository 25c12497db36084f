package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/synapsedb/synapse/internal/memorystore"
)

// saveMemoryRequest is the body for POST /memories.
type saveMemoryRequest struct {
	Content     string    `json:"content" binding:"required"`
	Embedding   []float32 `json:"embedding"`
	Tags        []string  `json:"tags"`
	Source      string    `json:"source"`
	Kind        string    `json:"kind"`
	ScopeID     string    `json:"scope_id"`
	Global      bool      `json:"global"`
	IsInvariant bool      `json:"is_invariant"`
	Dedup       *bool     `json:"dedup"`
	AutoLink    *bool     `json:"auto_link"`
}

func (s *Server) createMemory(c *gin.Context) {
	var req saveMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "invalid request body: "+err.Error())
		return
	}

	result, err := s.mem.Save(c.Request.Context(), memorystore.SaveOptions{
		Content:     req.Content,
		Embedding:   req.Embedding,
		Tags:        req.Tags,
		Source:      req.Source,
		Kind:        req.Kind,
		ScopeID:     req.ScopeID,
		Global:      req.Global,
		IsInvariant: req.IsInvariant,
		Dedup:       req.Dedup,
		AutoLink:    req.AutoLink,
	})
	if err != nil {
		HandleError(c, err)
		return
	}
	if result.Duplicate {
		SuccessResponse(c, "duplicate of existing memory", gin.H{
			"duplicate":    true,
			"duplicate_of": result.DuplicateOf,
			"similarity":   result.Similarity,
		})
		return
	}
	CreatedResponse(c, "memory saved", gin.H{"memory": result.Memory, "links": result.Links})
}

func (s *Server) getMemory(c *gin.Context) {
	id := c.Param("id")
	mem, err := s.mem.Get(id)
	if err != nil {
		HandleError(c, err)
		return
	}
	if mem == nil {
		NotFoundError(c, "memory not found: "+id)
		return
	}
	SuccessResponse(c, "ok", mem)
}

func (s *Server) listMemories(c *gin.Context) {
	opts := memorystore.ListOptions{
		ScopeID:        c.Query("scope_id"),
		IncludeGlobal:  c.Query("scope_id") != "",
		Kind:           c.Query("kind"),
		IncludeExpired: c.Query("include_expired") == "true",
		Limit:          clampLimit(parseIntQuery(c, "limit", DefaultLimit)),
		Offset:         parseIntQuery(c, "offset", 0),
	}
	if asOf, ok := parseTimeQuery(c, "as_of"); ok {
		opts.AsOf = &asOf
	}

	memories, err := s.mem.List(opts)
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, "ok", memories)
}

type searchMemoriesRequest struct {
	Query          string     `json:"query"`
	QueryEmbedding []float32  `json:"query_embedding"`
	Limit          int        `json:"limit"`
	Threshold      float64    `json:"threshold"`
	Alpha          float64    `json:"alpha"`
	ScopeID        string     `json:"scope_id"`
	Regex          string     `json:"regex"`
	IncludeExpired bool       `json:"include_expired"`
	AsOf           *time.Time `json:"as_of"`
}

func (s *Server) searchMemories(c *gin.Context) {
	var req searchMemoriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "invalid request body: "+err.Error())
		return
	}
	if err := validateQuery(req.Query); err != nil {
		BadRequestError(c, err.Error())
		return
	}

	results, err := s.mem.Search(c.Request.Context(), memorystore.SearchOptions{
		QueryText:      req.Query,
		QueryEmbedding: req.QueryEmbedding,
		Limit:          clampLimit(req.Limit),
		Threshold:      req.Threshold,
		Alpha:          req.Alpha,
		ScopeID:        req.ScopeID,
		Regex:          req.Regex,
		IncludeExpired: req.IncludeExpired,
		AsOf:           req.AsOf,
	})
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, "ok", results)
}

func (s *Server) deleteMemory(c *gin.Context) {
	id := c.Param("id")
	mem, err := s.mem.Get(id)
	if err != nil {
		HandleError(c, err)
		return
	}
	if mem == nil {
		NotFoundError(c, "memory not found: "+id)
		return
	}
	if err := s.mem.Delete(c.Request.Context(), id); err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, "memory deleted", gin.H{"id": id})
}

func (s *Server) restoreMemory(c *gin.Context) {
	id := c.Param("id")
	if err := s.mem.Restore(id); err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, "memory restored", gin.H{"id": id})
}

type accessMemoryRequest struct {
	Weight float64 `json:"weight"`
}

func (s *Server) accessMemory(c *gin.Context) {
	id := c.Param("id")
	var req accessMemoryRequest
	_ = c.ShouldBindJSON(&req)
	if req.Weight == 0 {
		req.Weight = 1.0
	}
	if err := s.mem.Access([]string{id}, req.Weight); err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, "access recorded", gin.H{"id": id})
}

// parseIntQuery parses an unsigned integer query parameter, falling back to
// defaultVal on anything else (missing, negative, non-numeric).
func parseIntQuery(c *gin.Context, key string, defaultVal int) int {
	val := c.Query(key)
	if val == "" {
		return defaultVal
	}
	n := 0
	for _, r := range val {
		if r < '0' || r > '9' {
			return defaultVal
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func parseTimeQuery(c *gin.Context, key string) (time.Time, bool) {
	val := c.Query(key)
	if val == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
