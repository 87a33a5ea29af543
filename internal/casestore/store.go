// internal/casestore/store.go
package casestore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"prediagnostic-back/internal/apperrors"
	"prediagnostic-back/internal/models"
)

// Store is the persistence adapter for cases and diagnostic reviews. It has
// no transition awareness: it performs the reads and guarded writes it is
// told to perform and wraps driver faults as storage errors. No retries.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateCase(ctx context.Context, c *models.Case) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("%w: create case %s: %v", apperrors.ErrStorage, c.CaseID, err)
	}
	return nil
}

func (s *Store) GetCase(ctx context.Context, caseID string) (*models.Case, error) {
	var c models.Case
	err := s.db.WithContext(ctx).Where("case_id = ?", caseID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: case %s", apperrors.ErrNotFound, caseID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get case %s: %v", apperrors.ErrStorage, caseID, err)
	}
	return &c, nil
}

// UpdateCaseFields applies a partial field update. The returned bool reports
// whether a record matched, regardless of whether any value changed.
func (s *Store) UpdateCaseFields(ctx context.Context, caseID string, fields map[string]any) (bool, error) {
	tx := s.db.WithContext(ctx).Model(&models.Case{}).
		Where("case_id = ?", caseID).
		Updates(fields)
	if tx.Error != nil {
		return false, fmt.Errorf("%w: update case %s: %v", apperrors.ErrStorage, caseID, tx.Error)
	}
	return tx.RowsAffected > 0, nil
}

// TransitionState performs the forward transition as one atomic conditional
// write: the update only applies while the case is still in the expected
// source state. The returned bool reports whether the guard matched.
func (s *Store) TransitionState(ctx context.Context, caseID, from, to string, fields map[string]any) (bool, error) {
	updates := map[string]any{"state": to}
	for k, v := range fields {
		updates[k] = v
	}

	tx := s.db.WithContext(ctx).Model(&models.Case{}).
		Where("case_id = ? AND state = ?", caseID, from).
		Updates(updates)
	if tx.Error != nil {
		return false, fmt.Errorf("%w: transition case %s %s->%s: %v", apperrors.ErrStorage, caseID, from, to, tx.Error)
	}
	return tx.RowsAffected > 0, nil
}

func (s *Store) ListCasesByState(ctx context.Context, state string) ([]models.Case, error) {
	var cases []models.Case
	err := s.db.WithContext(ctx).
		Select("case_id", "owner_id", "state", "created_at", "processed_at").
		Where("state = ?", state).
		Order("created_at DESC").
		Find(&cases).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list cases by state %s: %v", apperrors.ErrStorage, state, err)
	}
	return cases, nil
}

func (s *Store) ListCasesByOwner(ctx context.Context, ownerID string) ([]models.Case, error) {
	var cases []models.Case
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&cases).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list cases for owner %s: %v", apperrors.ErrStorage, ownerID, err)
	}
	return cases, nil
}

func (s *Store) CreateReview(ctx context.Context, r *models.DiagnosticReview) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("%w: create review %s: %v", apperrors.ErrStorage, r.ReviewID, err)
	}
	return nil
}

func (s *Store) GetReviewByCase(ctx context.Context, caseID string) (*models.DiagnosticReview, error) {
	var r models.DiagnosticReview
	err := s.db.WithContext(ctx).Where("case_id = ?", caseID).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: review for case %s", apperrors.ErrNotFound, caseID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get review for case %s: %v", apperrors.ErrStorage, caseID, err)
	}
	return &r, nil
}

// DeleteReview is the compensation step for a review whose case transition
// lost the state guard.
func (s *Store) DeleteReview(ctx context.Context, reviewID string) error {
	if err := s.db.WithContext(ctx).Delete(&models.DiagnosticReview{}, "review_id = ?", reviewID).Error; err != nil {
		return fmt.Errorf("%w: delete review %s: %v", apperrors.ErrStorage, reviewID, err)
	}
	return nil
}
