package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/courseloop/courseloop-backend/internal/logger"
	"github.com/courseloop/courseloop-backend/internal/types"
)

// ErrPoolExhausted means every pre-seeded allocation for the course has
// already been claimed. Callers treat this as an operator problem (seed
// more numbers), not a learner error.
var ErrPoolExhausted = errors.New("certificate allocation pool exhausted")

type CertificateAllocationRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, rows []*types.CertificateAllocation) error
	// ClaimNext atomically takes the lowest unused number for the course
	// and marks it used. Safe under concurrent claimers; rows locked by a
	// competing transaction are skipped rather than waited on.
	ClaimNext(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (*types.CertificateAllocation, error)
	CountRemaining(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (int64, error)
}

type certificateAllocationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCertificateAllocationRepo(db *gorm.DB, baseLog *logger.Logger) CertificateAllocationRepo {
	return &certificateAllocationRepo{db: db, log: baseLog.With("repo", "CertificateAllocationRepo")}
}

func (r *certificateAllocationRepo) CreateBatch(ctx context.Context, tx *gorm.DB, rows []*types.CertificateAllocation) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).Create(&rows).Error
}

func (r *certificateAllocationRepo) ClaimNext(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (*types.CertificateAllocation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var claimed *types.CertificateAllocation
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var row types.CertificateAllocation
		err := txx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("course_id = ? AND is_used = ?", courseID, false).
			Order("number ASC").
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPoolExhausted
		}
		if err != nil {
			return err
		}
		if err := txx.Model(&types.CertificateAllocation{}).
			Where("id = ?", row.ID).
			Update("is_used", true).Error; err != nil {
			return err
		}
		row.IsUsed = true
		claimed = &row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *certificateAllocationRepo) CountRemaining(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(ctx).
		Model(&types.CertificateAllocation{}).
		Where("course_id = ? AND is_used = ?", courseID, false).
		Count(&n).Error
	return n, err
}
