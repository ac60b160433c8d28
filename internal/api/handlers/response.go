package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Message string `json:"message"`
}

// CountResponse carries the result of a count query
type CountResponse struct {
	Count int64 `json:"count"`
}

// RespondError sends an error response
func RespondError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, ErrorResponse{Message: message})
}

// RespondSuccess sends a success response
func RespondSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}
