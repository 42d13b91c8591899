package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courseloop/courseloop-backend/internal/logger"
	"github.com/courseloop/courseloop-backend/internal/types"
)

type CertificateFormRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, row *types.CertificateFormSubmission) error
	GetByUserAndCourse(ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID) (*types.CertificateFormSubmission, error)
}

type certificateFormRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCertificateFormRepo(db *gorm.DB, baseLog *logger.Logger) CertificateFormRepo {
	return &certificateFormRepo{db: db, log: baseLog.With("repo", "CertificateFormRepo")}
}

func (r *certificateFormRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.CertificateFormSubmission) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", row.UserID, row.CourseID).
		Assign(map[string]interface{}{"fields": row.Fields}).
		FirstOrCreate(row).Error
}

func (r *certificateFormRepo) GetByUserAndCourse(ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID) (*types.CertificateFormSubmission, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.CertificateFormSubmission
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
