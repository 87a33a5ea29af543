// internal/handlers/cases.go
package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"prediagnostic-back/internal/models"
)

// maxUploadSize caps uploaded X-rays at 10MB.
const maxUploadSize = 10 << 20

// CaseService is the orchestrator surface the transport consumes.
type CaseService interface {
	SubmitCase(ctx context.Context, imageBytes []byte, ownerID string) (*models.Case, error)
	GetCase(ctx context.Context, caseID string) (*models.Case, error)
	ListProcessedCases(ctx context.Context) ([]models.CaseSummary, error)
	ListCasesForOwner(ctx context.Context, ownerID string) ([]models.OwnerCaseSummary, error)
	SubmitReview(ctx context.Context, caseID string, approved bool, comment string) (*models.DiagnosticReview, error)
	GetReviewForCase(ctx context.Context, caseID string) (*models.DiagnosticReview, error)
}

// URLSigner produces time-limited download URLs for stored X-rays.
type URLSigner interface {
	PresignedURL(ctx context.Context, objectName string) (string, error)
}

func SubmitCase(svc CaseService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID := c.GetString("userID")

		file, err := c.FormFile("image")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No image file provided"})
			return
		}
		if file.Size > maxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large. Maximum size is 10MB"})
			return
		}

		f, err := file.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
			return
		}
		defer f.Close()

		data, err := io.ReadAll(io.LimitReader(f, maxUploadSize+1))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
			return
		}
		if len(data) > maxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large. Maximum size is 10MB"})
			return
		}

		contentType := http.DetectContentType(data)
		if contentType != "image/jpeg" && contentType != "image/png" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Only JPEG and PNG files are allowed"})
			return
		}

		created, err := svc.SubmitCase(c.Request.Context(), data, ownerID)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"case_id":         created.CaseID,
			"image_reference": created.ImageReference,
			"state":           created.State,
		})
	}
}

func GetCase(svc CaseService, signer URLSigner) gin.HandlerFunc {
	return func(c *gin.Context) {
		caseID := c.Param("id")

		found, err := svc.GetCase(c.Request.Context(), caseID)
		if err != nil {
			respondError(c, err)
			return
		}

		response := gin.H{
			"case_id":         found.CaseID,
			"owner_id":        found.OwnerID,
			"image_reference": found.ImageReference,
			"state":           found.State,
			"created_at":      found.CreatedAt,
		}
		if found.ProcessedAt != nil {
			response["processed_at"] = found.ProcessedAt
		}
		if result := found.Result(); result != nil {
			response["model_result"] = result
		}
		if url, err := signer.PresignedURL(c.Request.Context(), found.ImageReference); err == nil {
			response["image_url"] = url
		}

		c.JSON(http.StatusOK, response)
	}
}

// ListProcessedCases serves the doctor queue: cases awaiting review.
func ListProcessedCases(svc CaseService) gin.HandlerFunc {
	return func(c *gin.Context) {
		summaries, err := svc.ListProcessedCases(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"cases": summaries, "total": len(summaries)})
	}
}

// GetHistory serves the authenticated user's own cases, all states.
func GetHistory(svc CaseService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID := c.GetString("userID")

		summaries, err := svc.ListCasesForOwner(c.Request.Context(), ownerID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"cases": summaries, "total": len(summaries)})
	}
}

type ReviewRequest struct {
	Approved *bool  `json:"approved" binding:"required"`
	Comment  string `json:"comment" binding:"required,min=10"`
}

func SubmitReview(svc CaseService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caseID := c.Param("id")

		var req ReviewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		review, err := svc.SubmitReview(c.Request.Context(), caseID, *req.Approved, req.Comment)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, review)
	}
}

func GetReview(svc CaseService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caseID := c.Param("id")

		review, err := svc.GetReviewForCase(c.Request.Context(), caseID)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, review)
	}
}
