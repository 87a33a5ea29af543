// internal/prediagnosis/service.go
package prediagnosis

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"prediagnostic-back/internal/apperrors"
	"prediagnostic-back/internal/inference"
	"prediagnostic-back/internal/models"
	"prediagnostic-back/pkg/imaging"
)

// MinCommentLength is the shortest accepted review comment, in runes.
const MinCommentLength = 10

// CaseStore is the persistence surface the orchestrator drives. It is
// implemented by casestore.Store.
type CaseStore interface {
	CreateCase(ctx context.Context, c *models.Case) error
	GetCase(ctx context.Context, caseID string) (*models.Case, error)
	TransitionState(ctx context.Context, caseID, from, to string, fields map[string]any) (bool, error)
	ListCasesByState(ctx context.Context, state string) ([]models.Case, error)
	ListCasesByOwner(ctx context.Context, ownerID string) ([]models.Case, error)
	CreateReview(ctx context.Context, r *models.DiagnosticReview) error
	GetReviewByCase(ctx context.Context, caseID string) (*models.DiagnosticReview, error)
	DeleteReview(ctx context.Context, reviewID string) error
}

// BlobStore persists original image bytes. Implemented by storage.MinIOClient.
type BlobStore interface {
	UploadBytes(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
}

// Normalizer converts raw image bytes into a model-ready tensor.
type Normalizer interface {
	Normalize(raw []byte) (*imaging.Tensor, error)
}

// Predictor runs inference on a normalized tensor.
type Predictor interface {
	Predict(ctx context.Context, t *imaging.Tensor) (*inference.Result, error)
}

// Service drives a case through its lifecycle:
// create -> run inference -> processed -> doctor review -> validated.
// It owns all transition legality; the store just executes guarded writes.
type Service struct {
	store  CaseStore
	blobs  BlobStore
	norm   Normalizer
	engine Predictor
	log    *slog.Logger
}

func New(store CaseStore, blobs BlobStore, norm Normalizer, engine Predictor, log *slog.Logger) *Service {
	return &Service{store: store, blobs: blobs, norm: norm, engine: engine, log: log}
}

// SubmitCase stores the uploaded image, creates a pending case record and
// synchronously runs the normalize -> predict -> mark-processed pipeline.
// If normalization or inference fails the case record stays pending and the
// typed error propagates; a pending case with no later update is a stalled
// submission requiring external intervention.
func (s *Service) SubmitCase(ctx context.Context, imageBytes []byte, ownerID string) (*models.Case, error) {
	caseID := uuid.New().String()

	contentType := http.DetectContentType(imageBytes)
	ext := ".jpg"
	if contentType == "image/png" {
		ext = ".png"
	}
	objectName := fmt.Sprintf("xrays/%s/original/%s%s", ownerID, caseID, ext)

	ref, err := s.blobs.UploadBytes(ctx, objectName, imageBytes, contentType)
	if err != nil {
		return nil, fmt.Errorf("save image for case %s: %w", caseID, err)
	}

	c := &models.Case{
		CaseID:         caseID,
		OwnerID:        ownerID,
		ImageReference: ref,
		State:          models.CaseStatePending,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateCase(ctx, c); err != nil {
		return nil, err
	}

	tensor, err := s.norm.Normalize(imageBytes)
	if err != nil {
		s.log.Warn("normalization failed, case left pending", "case_id", caseID, "error", err)
		return nil, fmt.Errorf("normalize case %s: %w", caseID, err)
	}

	result, err := s.engine.Predict(ctx, tensor)
	if err != nil {
		s.log.Warn("inference failed, case left pending", "case_id", caseID, "error", err)
		return nil, fmt.Errorf("predict case %s: %w", caseID, err)
	}

	processedAt := time.Now().UTC()
	matched, err := s.store.TransitionState(ctx, caseID, models.CaseStatePending, models.CaseStateProcessed, map[string]any{
		"result_probability": result.Confidence,
		"result_label":       result.PredictedLabel,
		"processed_at":       processedAt,
	})
	if err != nil {
		return nil, err
	}
	if !matched {
		return nil, fmt.Errorf("%w: case %s is no longer pending", apperrors.ErrInvalidState, caseID)
	}

	c.State = models.CaseStateProcessed
	c.ResultProbability = &result.Confidence
	c.ResultLabel = &result.PredictedLabel
	c.ProcessedAt = &processedAt

	s.log.Info("case processed",
		"case_id", caseID,
		"owner_id", ownerID,
		"label", result.PredictedLabel,
		"confidence", result.Confidence)
	return c, nil
}

func (s *Service) GetCase(ctx context.Context, caseID string) (*models.Case, error) {
	return s.store.GetCase(ctx, caseID)
}

// ListProcessedCases returns the doctor queue: cases in state processed
// only. Validated cases have left the queue.
func (s *Service) ListProcessedCases(ctx context.Context) ([]models.CaseSummary, error) {
	cases, err := s.store.ListCasesByState(ctx, models.CaseStateProcessed)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.CaseSummary, 0, len(cases))
	for _, c := range cases {
		summaries = append(summaries, summarize(&c))
	}
	return summaries, nil
}

// ListCasesForOwner returns all of an owner's cases regardless of state,
// annotated with the AI label and probability where inference has completed.
func (s *Service) ListCasesForOwner(ctx context.Context, ownerID string) ([]models.OwnerCaseSummary, error) {
	cases, err := s.store.ListCasesByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.OwnerCaseSummary, 0, len(cases))
	for _, c := range cases {
		summaries = append(summaries, models.OwnerCaseSummary{
			CaseSummary: summarize(&c),
			Label:       c.ResultLabel,
			Probability: c.ResultProbability,
		})
	}
	return summaries, nil
}

// SubmitReview validates the doctor's verdict against the current case
// state, persists the review and transitions the case to validated, in that
// order. The transition is a guarded write: if another review won the race
// the insert is compensated and the invalid-state error surfaces.
func (s *Service) SubmitReview(ctx context.Context, caseID string, approved bool, comment string) (*models.DiagnosticReview, error) {
	if utf8.RuneCountInString(comment) < MinCommentLength {
		return nil, fmt.Errorf("%w: comment must be at least %d characters", apperrors.ErrValidation, MinCommentLength)
	}

	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.State != models.CaseStateProcessed {
		return nil, fmt.Errorf("%w: case %s is %s, review requires %s",
			apperrors.ErrInvalidState, caseID, c.State, models.CaseStateProcessed)
	}

	review := &models.DiagnosticReview{
		ReviewID:   uuid.New().String(),
		CaseID:     caseID,
		Approved:   approved,
		Comment:    comment,
		ReviewedAt: time.Now().UTC(),
	}
	if err := s.store.CreateReview(ctx, review); err != nil {
		return nil, err
	}

	matched, err := s.store.TransitionState(ctx, caseID, models.CaseStateProcessed, models.CaseStateValidated, nil)
	if err != nil {
		// The review is persisted but the case is not validated. This
		// inconsistency window is surfaced, not retried.
		s.log.Error("case transition failed after review insert",
			"case_id", caseID, "review_id", review.ReviewID, "error", err)
		return nil, err
	}
	if !matched {
		if delErr := s.store.DeleteReview(ctx, review.ReviewID); delErr != nil {
			s.log.Error("compensating review delete failed",
				"case_id", caseID, "review_id", review.ReviewID, "error", delErr)
		}
		return nil, fmt.Errorf("%w: case %s left state %s before the review was recorded",
			apperrors.ErrInvalidState, caseID, models.CaseStateProcessed)
	}

	s.log.Info("case validated", "case_id", caseID, "review_id", review.ReviewID, "approved", approved)
	return review, nil
}

// GetReviewForCase returns the review for a case. A not-found error is the
// expected outcome for cases that have not been reviewed yet.
func (s *Service) GetReviewForCase(ctx context.Context, caseID string) (*models.DiagnosticReview, error) {
	return s.store.GetReviewByCase(ctx, caseID)
}

func summarize(c *models.Case) models.CaseSummary {
	ts := c.CreatedAt
	if c.ProcessedAt != nil {
		ts = *c.ProcessedAt
	}
	return models.CaseSummary{
		CaseID:    c.CaseID,
		OwnerID:   c.OwnerID,
		Timestamp: ts,
		State:     c.State,
	}
}
