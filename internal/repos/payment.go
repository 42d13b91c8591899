package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courseloop/courseloop-backend/internal/logger"
	"github.com/courseloop/courseloop-backend/internal/types"
)

type PaymentRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.PaymentRecord) error
	GetByOrderID(ctx context.Context, tx *gorm.DB, orderID string) (*types.PaymentRecord, error)
	GetPendingByUserAndCourse(ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID) (*types.PaymentRecord, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, orderID, status string) error
}

type paymentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPaymentRepo(db *gorm.DB, baseLog *logger.Logger) PaymentRepo {
	return &paymentRepo{db: db, log: baseLog.With("repo", "PaymentRepo")}
}

func (r *paymentRepo) Create(ctx context.Context, tx *gorm.DB, row *types.PaymentRecord) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(row).Error
}

func (r *paymentRepo) GetByOrderID(ctx context.Context, tx *gorm.DB, orderID string) (*types.PaymentRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if orderID == "" {
		return nil, nil
	}
	var row types.PaymentRecord
	err := transaction.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *paymentRepo) GetPendingByUserAndCourse(ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID) (*types.PaymentRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.PaymentRecord
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND course_id = ? AND status = ?", userID, courseID, types.PaymentStatusPending).
		Order("created_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *paymentRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, orderID, status string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.PaymentRecord{}).
		Where("order_id = ?", orderID).
		Update("status", status).Error
}
