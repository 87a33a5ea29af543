// internal/handlers/errors.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"prediagnostic-back/internal/apperrors"
)

// respondError maps the error taxonomy to a fixed externally visible
// outcome category. Client faults keep their message; server faults get a
// generic body so driver internals never leak.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrDecode), errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrModelNotLoaded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Prediction service not available"})
	case errors.Is(err, apperrors.ErrInference):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Inference failed"})
	case errors.Is(err, apperrors.ErrStorage):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Storage failure"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
