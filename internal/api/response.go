package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/synapsedb/synapse/internal/apperrors"
)

// Response is the standard API response envelope.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// SuccessResponse sends a success response
func SuccessResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, &Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// CreatedResponse sends a 201 created response
func CreatedResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, &Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse sends an error response
func ErrorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, &Response{
		Success: false,
		Message: message,
	})
}

// BadRequestError sends a 400 error
func BadRequestError(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusBadRequest, message)
}

// NotFoundError sends a 404 error
func NotFoundError(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusNotFound, message)
}

// InternalError sends a 500 error
func InternalError(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusInternalServerError, message)
}

// HandleError maps a service-layer error to the right HTTP status using
// the apperrors taxonomy (spec §7): NotFound -> 404, Contract -> 400,
// ScopeMismatch -> 400, anything else -> 500.
func HandleError(c *gin.Context, err error) {
	switch {
	case apperrors.IsNotFound(err):
		ErrorResponse(c, http.StatusNotFound, err.Error())
	case apperrors.IsContract(err):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	case apperrors.IsScopeMismatch(err):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	default:
		InternalError(c, err.Error())
	}
}
