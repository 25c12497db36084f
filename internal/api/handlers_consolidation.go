package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// consolidationUnavailable is returned when the server was built without a
// consolidation.Service (the opt-in passes aren't enabled for this
// deployment).
func (s *Server) consolidationUnavailable(c *gin.Context) bool {
	if s.cons == nil {
		ErrorResponse(c, http.StatusServiceUnavailable, "consolidation is not enabled for this deployment")
		return true
	}
	return false
}

type consolidateRequest struct {
	ScopeID string `json:"scope_id"`
}

func (s *Server) runConsolidate(c *gin.Context) {
	if s.consolidationUnavailable(c) {
		return
	}
	var req consolidateRequest
	_ = c.ShouldBindJSON(&req)

	report, err := s.cons.Consolidate(c.Request.Context(), req.ScopeID)
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, "consolidation complete", report)
}

func (s *Server) undoConsolidate(c *gin.Context) {
	if s.consolidationUnavailable(c) {
		return
	}
	id := c.Param("id")
	if err := s.cons.Undo(c.Request.Context(), id); err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, "consolidation undone", gin.H{"id": id})
}

type retentionRequest struct {
	ScopeID string `json:"scope_id"`
}

func (s *Server) runRetention(c *gin.Context) {
	if s.consolidationUnavailable(c) {
		return
	}
	var req retentionRequest
	_ = c.ShouldBindJSON(&req)

	report, err := s.cons.RunRetention(c.Request.Context(), req.ScopeID)
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, "retention pass complete", report)
}
