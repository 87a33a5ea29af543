// internal/prediagnosis/service_test.go
package prediagnosis

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prediagnostic-back/internal/apperrors"
	"prediagnostic-back/internal/inference"
	"prediagnostic-back/internal/models"
	"prediagnostic-back/pkg/imaging"
)

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type caseStoreMock struct {
	CreateCaseFunc      func(ctx context.Context, c *models.Case) error
	GetCaseFunc         func(ctx context.Context, caseID string) (*models.Case, error)
	TransitionStateFunc func(ctx context.Context, caseID, from, to string, fields map[string]any) (bool, error)
	ListByStateFunc     func(ctx context.Context, state string) ([]models.Case, error)
	ListByOwnerFunc     func(ctx context.Context, ownerID string) ([]models.Case, error)
	CreateReviewFunc    func(ctx context.Context, r *models.DiagnosticReview) error
	GetReviewFunc       func(ctx context.Context, caseID string) (*models.DiagnosticReview, error)
	DeleteReviewFunc    func(ctx context.Context, reviewID string) error

	createdCases   []*models.Case
	createdReviews []*models.DiagnosticReview
	transitions    []string
	deletedReviews []string
}

func (m *caseStoreMock) CreateCase(ctx context.Context, c *models.Case) error {
	// Snapshot: the orchestrator mutates the same pointer after transitions.
	snapshot := *c
	m.createdCases = append(m.createdCases, &snapshot)
	if m.CreateCaseFunc != nil {
		return m.CreateCaseFunc(ctx, c)
	}
	return nil
}

func (m *caseStoreMock) GetCase(ctx context.Context, caseID string) (*models.Case, error) {
	if m.GetCaseFunc != nil {
		return m.GetCaseFunc(ctx, caseID)
	}
	return nil, fmt.Errorf("%w: case %s", apperrors.ErrNotFound, caseID)
}

func (m *caseStoreMock) TransitionState(ctx context.Context, caseID, from, to string, fields map[string]any) (bool, error) {
	m.transitions = append(m.transitions, from+"->"+to)
	if m.TransitionStateFunc != nil {
		return m.TransitionStateFunc(ctx, caseID, from, to, fields)
	}
	return true, nil
}

func (m *caseStoreMock) ListCasesByState(ctx context.Context, state string) ([]models.Case, error) {
	if m.ListByStateFunc != nil {
		return m.ListByStateFunc(ctx, state)
	}
	return nil, nil
}

func (m *caseStoreMock) ListCasesByOwner(ctx context.Context, ownerID string) ([]models.Case, error) {
	if m.ListByOwnerFunc != nil {
		return m.ListByOwnerFunc(ctx, ownerID)
	}
	return nil, nil
}

func (m *caseStoreMock) CreateReview(ctx context.Context, r *models.DiagnosticReview) error {
	m.createdReviews = append(m.createdReviews, r)
	if m.CreateReviewFunc != nil {
		return m.CreateReviewFunc(ctx, r)
	}
	return nil
}

func (m *caseStoreMock) GetReviewByCase(ctx context.Context, caseID string) (*models.DiagnosticReview, error) {
	if m.GetReviewFunc != nil {
		return m.GetReviewFunc(ctx, caseID)
	}
	return nil, fmt.Errorf("%w: review for case %s", apperrors.ErrNotFound, caseID)
}

func (m *caseStoreMock) DeleteReview(ctx context.Context, reviewID string) error {
	m.deletedReviews = append(m.deletedReviews, reviewID)
	if m.DeleteReviewFunc != nil {
		return m.DeleteReviewFunc(ctx, reviewID)
	}
	return nil
}

type blobStoreMock struct {
	UploadBytesFunc func(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
	uploads         []string
}

func (m *blobStoreMock) UploadBytes(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	m.uploads = append(m.uploads, objectName)
	if m.UploadBytesFunc != nil {
		return m.UploadBytesFunc(ctx, objectName, data, contentType)
	}
	return objectName, nil
}

type normalizerMock struct {
	NormalizeFunc func(raw []byte) (*imaging.Tensor, error)
}

func (m *normalizerMock) Normalize(raw []byte) (*imaging.Tensor, error) {
	if m.NormalizeFunc != nil {
		return m.NormalizeFunc(raw)
	}
	return &imaging.Tensor{Shape: [4]int{1, 720, 500, 3}, Data: make([]float32, 720*500*3)}, nil
}

type predictorMock struct {
	PredictFunc func(ctx context.Context, t *imaging.Tensor) (*inference.Result, error)
}

func (m *predictorMock) Predict(ctx context.Context, t *imaging.Tensor) (*inference.Result, error) {
	if m.PredictFunc != nil {
		return m.PredictFunc(ctx, t)
	}
	return &inference.Result{
		Probabilities:  []float64{0.1, 0.8, 0.1},
		PredictedIndex: 1,
		PredictedLabel: "Viral Pneumonia",
		Confidence:     0.8,
	}, nil
}

func newService(store *caseStoreMock, blobs *blobStoreMock, norm *normalizerMock, pred *predictorMock) *Service {
	return New(store, blobs, norm, pred, slog.New(slog.DiscardHandler))
}

func validComment() string {
	return "Findings inconsistent with AI label, recommend re-scan"
}

// ---------------------------------------------------------------------------
// SubmitCase
// ---------------------------------------------------------------------------

func TestSubmitCase_Success(t *testing.T) {
	store := &caseStoreMock{}
	blobs := &blobStoreMock{}

	c, err := newService(store, blobs, &normalizerMock{}, &predictorMock{}).
		SubmitCase(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0xE0}, "patient-1")
	require.NoError(t, err)

	assert.NotEmpty(t, c.CaseID)
	assert.Equal(t, "patient-1", c.OwnerID)
	assert.Equal(t, models.CaseStateProcessed, c.State)
	require.NotNil(t, c.Result())
	assert.Equal(t, "Viral Pneumonia", c.Result().Label)
	assert.Equal(t, 0.8, c.Result().Probability)
	assert.NotNil(t, c.ProcessedAt)

	require.Len(t, store.createdCases, 1)
	assert.Equal(t, models.CaseStatePending, store.createdCases[0].State)
	assert.Nil(t, store.createdCases[0].Result())
	assert.Equal(t, []string{"pending->processed"}, store.transitions)
	require.Len(t, blobs.uploads, 1)
	assert.Contains(t, blobs.uploads[0], "xrays/patient-1/original/")
}

func TestSubmitCase_TransitionWritesResultFields(t *testing.T) {
	store := &caseStoreMock{
		TransitionStateFunc: func(ctx context.Context, caseID, from, to string, fields map[string]any) (bool, error) {
			assert.Equal(t, models.CaseStatePending, from)
			assert.Equal(t, models.CaseStateProcessed, to)
			assert.Equal(t, "Viral Pneumonia", fields["result_label"])
			assert.Equal(t, 0.8, fields["result_probability"])
			assert.IsType(t, time.Time{}, fields["processed_at"])
			return true, nil
		},
	}

	_, err := newService(store, &blobStoreMock{}, &normalizerMock{}, &predictorMock{}).
		SubmitCase(context.Background(), []byte("img"), "patient-1")
	require.NoError(t, err)
}

func TestSubmitCase_NormalizationFailureLeavesCasePending(t *testing.T) {
	store := &caseStoreMock{}
	norm := &normalizerMock{
		NormalizeFunc: func(raw []byte) (*imaging.Tensor, error) {
			return nil, fmt.Errorf("%w: image 30x30 is below the 50px minimum", apperrors.ErrValidation)
		},
	}

	c, err := newService(store, &blobStoreMock{}, norm, &predictorMock{}).
		SubmitCase(context.Background(), []byte("tiny"), "patient-1")
	assert.Nil(t, c)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	// The pending record exists but no transition was attempted: no case is
	// left processed with a result.
	require.Len(t, store.createdCases, 1)
	assert.Equal(t, models.CaseStatePending, store.createdCases[0].State)
	assert.Empty(t, store.transitions)
}

func TestSubmitCase_InferenceFailureLeavesCasePending(t *testing.T) {
	store := &caseStoreMock{}
	pred := &predictorMock{
		PredictFunc: func(ctx context.Context, tensor *imaging.Tensor) (*inference.Result, error) {
			return nil, apperrors.ErrModelNotLoaded
		},
	}

	c, err := newService(store, &blobStoreMock{}, &normalizerMock{}, pred).
		SubmitCase(context.Background(), []byte("img"), "patient-1")
	assert.Nil(t, c)
	assert.ErrorIs(t, err, apperrors.ErrModelNotLoaded)
	assert.Empty(t, store.transitions)
}

func TestSubmitCase_BlobFailureCreatesNoCase(t *testing.T) {
	store := &caseStoreMock{}
	blobs := &blobStoreMock{
		UploadBytesFunc: func(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
			return "", fmt.Errorf("%w: bucket gone", apperrors.ErrStorage)
		},
	}

	c, err := newService(store, blobs, &normalizerMock{}, &predictorMock{}).
		SubmitCase(context.Background(), []byte("img"), "patient-1")
	assert.Nil(t, c)
	assert.ErrorIs(t, err, apperrors.ErrStorage)
	assert.Empty(t, store.createdCases)
}

// ---------------------------------------------------------------------------
// lookups and lists
// ---------------------------------------------------------------------------

func TestGetCase_NotFound(t *testing.T) {
	svc := newService(&caseStoreMock{}, &blobStoreMock{}, &normalizerMock{}, &predictorMock{})

	c, err := svc.GetCase(context.Background(), "nonexistent")
	assert.Nil(t, c)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestListProcessedCases_UsesProcessedStateOnly(t *testing.T) {
	created := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	processed := created.Add(5 * time.Second)

	store := &caseStoreMock{
		ListByStateFunc: func(ctx context.Context, state string) ([]models.Case, error) {
			assert.Equal(t, models.CaseStateProcessed, state)
			return []models.Case{
				{CaseID: "c1", OwnerID: "patient-1", State: state, CreatedAt: created, ProcessedAt: &processed},
				{CaseID: "c2", OwnerID: "patient-2", State: state, CreatedAt: created},
			}, nil
		},
	}

	summaries, err := newService(store, &blobStoreMock{}, &normalizerMock{}, &predictorMock{}).
		ListProcessedCases(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, "c1", summaries[0].CaseID)
	assert.Equal(t, processed, summaries[0].Timestamp)
	// Falls back to the creation timestamp when processed_at is absent.
	assert.Equal(t, created, summaries[1].Timestamp)
	assert.Equal(t, models.CaseStateProcessed, summaries[0].State)
}

func TestListCasesForOwner_AnnotatesResults(t *testing.T) {
	label := "No Pneumonia"
	prob := 0.91

	store := &caseStoreMock{
		ListByOwnerFunc: func(ctx context.Context, ownerID string) ([]models.Case, error) {
			assert.Equal(t, "patient-1", ownerID)
			return []models.Case{
				{CaseID: "c1", OwnerID: ownerID, State: models.CaseStateProcessed, ResultLabel: &label, ResultProbability: &prob},
				{CaseID: "c2", OwnerID: ownerID, State: models.CaseStatePending},
			}, nil
		},
	}

	summaries, err := newService(store, &blobStoreMock{}, &normalizerMock{}, &predictorMock{}).
		ListCasesForOwner(context.Background(), "patient-1")
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	require.NotNil(t, summaries[0].Label)
	assert.Equal(t, label, *summaries[0].Label)
	assert.Equal(t, prob, *summaries[0].Probability)

	assert.Nil(t, summaries[1].Label)
	assert.Nil(t, summaries[1].Probability)
}

// ---------------------------------------------------------------------------
// SubmitReview
// ---------------------------------------------------------------------------

func processedCase(caseID string) *models.Case {
	label := "Bacterial Pneumonia"
	prob := 0.92
	now := time.Now().UTC()
	return &models.Case{
		CaseID:            caseID,
		OwnerID:           "patient-1",
		State:             models.CaseStateProcessed,
		ResultLabel:       &label,
		ResultProbability: &prob,
		CreatedAt:         now,
		ProcessedAt:       &now,
	}
}

func TestSubmitReview_Success(t *testing.T) {
	store := &caseStoreMock{
		GetCaseFunc: func(ctx context.Context, caseID string) (*models.Case, error) {
			return processedCase(caseID), nil
		},
	}

	review, err := newService(store, &blobStoreMock{}, &normalizerMock{}, &predictorMock{}).
		SubmitReview(context.Background(), "c1", false, validComment())
	require.NoError(t, err)

	assert.NotEmpty(t, review.ReviewID)
	assert.Equal(t, "c1", review.CaseID)
	assert.False(t, review.Approved)
	assert.Equal(t, validComment(), review.Comment)
	assert.Equal(t, []string{"processed->validated"}, store.transitions)
	assert.Empty(t, store.deletedReviews)
}

func TestSubmitReview_ShortCommentNoWrite(t *testing.T) {
	store := &caseStoreMock{}

	review, err := newService(store, &blobStoreMock{}, &normalizerMock{}, &predictorMock{}).
		SubmitReview(context.Background(), "c1", true, "OK")
	assert.Nil(t, review)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Empty(t, store.createdReviews)
	assert.Empty(t, store.transitions)
}

func TestSubmitReview_PendingCaseRejected(t *testing.T) {
	store := &caseStoreMock{
		GetCaseFunc: func(ctx context.Context, caseID string) (*models.Case, error) {
			return &models.Case{CaseID: caseID, State: models.CaseStatePending}, nil
		},
	}

	review, err := newService(store, &blobStoreMock{}, &normalizerMock{}, &predictorMock{}).
		SubmitReview(context.Background(), "c1", true, validComment())
	assert.Nil(t, review)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	assert.Empty(t, store.createdReviews)
}

func TestSubmitReview_ValidatedCaseRejected(t *testing.T) {
	store := &caseStoreMock{
		GetCaseFunc: func(ctx context.Context, caseID string) (*models.Case, error) {
			c := processedCase(caseID)
			c.State = models.CaseStateValidated
			return c, nil
		},
	}

	review, err := newService(store, &blobStoreMock{}, &normalizerMock{}, &predictorMock{}).
		SubmitReview(context.Background(), "c1", true, validComment())
	assert.Nil(t, review)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	assert.Empty(t, store.createdReviews)
}

func TestSubmitReview_CaseNotFound(t *testing.T) {
	store := &caseStoreMock{}

	review, err := newService(store, &blobStoreMock{}, &normalizerMock{}, &predictorMock{}).
		SubmitReview(context.Background(), "nonexistent", true, validComment())
	assert.Nil(t, review)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSubmitReview_LostRaceCompensatesReview(t *testing.T) {
	store := &caseStoreMock{
		GetCaseFunc: func(ctx context.Context, caseID string) (*models.Case, error) {
			return processedCase(caseID), nil
		},
		TransitionStateFunc: func(ctx context.Context, caseID, from, to string, fields map[string]any) (bool, error) {
			return false, nil // another review won the guard
		},
	}

	review, err := newService(store, &blobStoreMock{}, &normalizerMock{}, &predictorMock{}).
		SubmitReview(context.Background(), "c1", true, validComment())
	assert.Nil(t, review)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	require.Len(t, store.createdReviews, 1)
	assert.Equal(t, []string{store.createdReviews[0].ReviewID}, store.deletedReviews)
}

func TestSubmitReview_TransitionStorageFault(t *testing.T) {
	store := &caseStoreMock{
		GetCaseFunc: func(ctx context.Context, caseID string) (*models.Case, error) {
			return processedCase(caseID), nil
		},
		TransitionStateFunc: func(ctx context.Context, caseID, from, to string, fields map[string]any) (bool, error) {
			return false, fmt.Errorf("%w: connection reset", apperrors.ErrStorage)
		},
	}

	review, err := newService(store, &blobStoreMock{}, &normalizerMock{}, &predictorMock{}).
		SubmitReview(context.Background(), "c1", true, validComment())
	assert.Nil(t, review)
	assert.ErrorIs(t, err, apperrors.ErrStorage)
	// The review insert is not compensated on a storage fault: acknowledged
	// inconsistency window, surfaced rather than retried.
	assert.Empty(t, store.deletedReviews)
}

// ---------------------------------------------------------------------------
// GetReviewForCase
// ---------------------------------------------------------------------------

func TestGetReviewForCase_UnreviewedIsNotFound(t *testing.T) {
	svc := newService(&caseStoreMock{}, &blobStoreMock{}, &normalizerMock{}, &predictorMock{})

	review, err := svc.GetReviewForCase(context.Background(), "c1")
	assert.Nil(t, review)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGetReviewForCase_Found(t *testing.T) {
	want := &models.DiagnosticReview{ReviewID: "r1", CaseID: "c1", Approved: true, Comment: validComment()}
	store := &caseStoreMock{
		GetReviewFunc: func(ctx context.Context, caseID string) (*models.DiagnosticReview, error) {
			return want, nil
		},
	}

	review, err := newService(store, &blobStoreMock{}, &normalizerMock{}, &predictorMock{}).
		GetReviewForCase(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, want, review)
}
