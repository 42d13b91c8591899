package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courseloop/courseloop-backend/internal/logger"
	"github.com/courseloop/courseloop-backend/internal/types"
)

type QuizProgressRepo interface {
	GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.QuizProgress, error)
	GetByUserAndQuiz(ctx context.Context, tx *gorm.DB, userID, quizID uuid.UUID) (*types.QuizProgress, error)
	Upsert(ctx context.Context, tx *gorm.DB, row *types.QuizProgress) error
	DeleteAllForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, quizIDs []uuid.UUID) error
}

type quizProgressRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuizProgressRepo(db *gorm.DB, baseLog *logger.Logger) QuizProgressRepo {
	return &quizProgressRepo{db: db, log: baseLog.With("repo", "QuizProgressRepo")}
}

func (r *quizProgressRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.QuizProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.QuizProgress
	if userID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *quizProgressRepo) GetByUserAndQuiz(ctx context.Context, tx *gorm.DB, userID, quizID uuid.UUID) (*types.QuizProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil || quizID == uuid.Nil {
		return nil, nil
	}
	var row types.QuizProgress
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND quiz_id = ?", userID, quizID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *quizProgressRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.QuizProgress) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil {
		return nil
	}
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND quiz_id = ?", row.UserID, row.QuizID).
		Assign(map[string]interface{}{
			"score":        row.Score,
			"is_completed": row.IsCompleted,
		}).
		FirstOrCreate(row).Error; err != nil {
		return err
	}
	return nil
}

func (r *quizProgressRepo) DeleteAllForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, quizIDs []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil {
		return nil
	}
	q := transaction.WithContext(ctx).Where("user_id = ?", userID)
	if len(quizIDs) > 0 {
		q = q.Where("quiz_id IN ?", quizIDs)
	}
	return q.Delete(&types.QuizProgress{}).Error
}
