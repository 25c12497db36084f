package api

import (
	"github.com/gin-gonic/gin"

	"github.com/synapsedb/synapse/internal/graph"
)

type createLinkRequest struct {
	SourceID    string  `json:"source_id" binding:"required"`
	TargetID    string  `json:"target_id" binding:"required"`
	Relation    string  `json:"relation" binding:"required"`
	Weight      float64 `json:"weight"`
	LLMEnriched bool    `json:"llm_enriched"`
}

func (s *Server) createLink(c *gin.Context) {
	var req createLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "invalid request body: "+err.Error())
		return
	}

	link, err := s.graph.Link(graph.LinkOptions{
		SourceID:    req.SourceID,
		TargetID:    req.TargetID,
		Relation:    req.Relation,
		Weight:      req.Weight,
		LLMEnriched: req.LLMEnriched,
	})
	if err != nil {
		HandleError(c, err)
		return
	}
	CreatedResponse(c, "link created", link)
}

func (s *Server) deleteLink(c *gin.Context) {
	id := c.Param("id")
	if err := s.graph.InvalidateLink(id); err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, "link invalidated", gin.H{"id": id})
}

func (s *Server) memoryGraph(c *gin.Context) {
	id := c.Param("id")
	maxDepth := parseIntQuery(c, "max_depth", 2)

	var g interface{}
	var err error
	if asOf, ok := parseTimeQuery(c, "as_of"); ok {
		g, err = s.graph.ConnectedAsOf(id, maxDepth, asOf)
	} else {
		g, err = s.graph.Connected(id, maxDepth)
	}
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, "ok", g)
}

func (s *Server) memoryCentrality(c *gin.Context) {
	id := c.Param("id")
	score, err := s.graph.Centrality(id)
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, "ok", score)
}

func (s *Server) graphStats(c *gin.Context) {
	stats, err := s.graph.Stats()
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, "ok", stats)
}
