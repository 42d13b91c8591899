package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courseloop/courseloop-backend/internal/logger"
	"github.com/courseloop/courseloop-backend/internal/types"
)

type EnrollmentRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.UserCourseEnrollment) (*types.UserCourseEnrollment, error)
	GetByUserAndCourse(ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID) (*types.UserCourseEnrollment, error)
	GrantAccess(ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID) (*types.UserCourseEnrollment, error)
	MarkCertificateIssued(ctx context.Context, tx *gorm.DB, id uuid.UUID, number string, issuedAt time.Time) error
	SetCertificateAsset(ctx context.Context, tx *gorm.DB, id uuid.UUID, bucketKey, url string) error
	ListIssuedMissingAsset(ctx context.Context, tx *gorm.DB, limit int) ([]*types.UserCourseEnrollment, error)
}

type enrollmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEnrollmentRepo(db *gorm.DB, baseLog *logger.Logger) EnrollmentRepo {
	return &enrollmentRepo{db: db, log: baseLog.With("repo", "EnrollmentRepo")}
}

func (r *enrollmentRepo) Create(ctx context.Context, tx *gorm.DB, row *types.UserCourseEnrollment) (*types.UserCourseEnrollment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil {
		return nil, nil
	}
	if err := transaction.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *enrollmentRepo) GetByUserAndCourse(ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID) (*types.UserCourseEnrollment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil || courseID == uuid.Nil {
		return nil, nil
	}
	var row types.UserCourseEnrollment
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

// GrantAccess upserts the enrollment row with has_access = true. Used by
// the payment notification path, which may fire before any enrollment row
// exists.
func (r *enrollmentRepo) GrantAccess(ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID) (*types.UserCourseEnrollment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	row := &types.UserCourseEnrollment{UserID: userID, CourseID: courseID, HasAccess: true}
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Assign(map[string]interface{}{"has_access": true}).
		FirstOrCreate(row).Error
	if err != nil {
		return nil, err
	}
	return row, nil
}

// MarkCertificateIssued is the single write that both records the
// allocated certificate number and flips the enrollment to completed.
func (r *enrollmentRepo) MarkCertificateIssued(ctx context.Context, tx *gorm.DB, id uuid.UUID, number string, issuedAt time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.UserCourseEnrollment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_completed":          true,
			"completed_at":          issuedAt,
			"certificate_number":    number,
			"certificate_issued_at": issuedAt,
			"updated_at":            time.Now(),
		}).Error
}

func (r *enrollmentRepo) SetCertificateAsset(ctx context.Context, tx *gorm.DB, id uuid.UUID, bucketKey, url string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.UserCourseEnrollment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"certificate_bucket_key": bucketKey,
			"certificate_url":        url,
			"updated_at":             time.Now(),
		}).Error
}

// ListIssuedMissingAsset finds enrollments holding a certificate number
// but no uploaded asset: the partial-failure window between allocation
// persistence and render/upload. The reconciliation job feeds on this.
func (r *enrollmentRepo) ListIssuedMissingAsset(ctx context.Context, tx *gorm.DB, limit int) ([]*types.UserCourseEnrollment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var rows []*types.UserCourseEnrollment
	err := transaction.WithContext(ctx).
		Where("certificate_number <> '' AND (certificate_bucket_key IS NULL OR certificate_bucket_key = '')").
		Order("certificate_issued_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
