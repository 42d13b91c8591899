package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/courseloop/courseloop-backend/internal/apierr"
	"github.com/courseloop/courseloop-backend/internal/cms"
	"github.com/courseloop/courseloop-backend/internal/grading"
	"github.com/courseloop/courseloop-backend/internal/logger"
	"github.com/courseloop/courseloop-backend/internal/repos"
	"github.com/courseloop/courseloop-backend/internal/types"
)

type QuizSubmission struct {
	CourseID uuid.UUID `json:"course_id"`
	// Answers[i] is the submitted answer index for question i.
	Answers []int `json:"answers"`
}

type QuizResult struct {
	Score   int  `json:"score"`
	Passed  bool `json:"passed"`
	Correct int  `json:"correct"`
	Total   int  `json:"total"`
}

type QuizService interface {
	SubmitQuiz(ctx context.Context, userID, quizID uuid.UUID, sub QuizSubmission) (*QuizResult, error)
}

type quizService struct {
	log            *logger.Logger
	resolver       cms.Resolver
	enrollmentRepo repos.EnrollmentRepo
	quizProgress   repos.QuizProgressRepo
}

func NewQuizService(
	log *logger.Logger,
	resolver cms.Resolver,
	enrollmentRepo repos.EnrollmentRepo,
	quizProgressRepo repos.QuizProgressRepo,
) QuizService {
	return &quizService{
		log:            log.With("service", "QuizService"),
		resolver:       resolver,
		enrollmentRepo: enrollmentRepo,
		quizProgress:   quizProgressRepo,
	}
}

// SubmitQuiz grades a submission against the CMS's declared correct
// answers. Grading is stateless; only a passing result writes anything,
// so failed attempts can be retried without limit or trace.
func (qs *quizService) SubmitQuiz(ctx context.Context, userID, quizID uuid.UUID, sub QuizSubmission) (*QuizResult, error) {
	enrollment, err := qs.enrollmentRepo.GetByUserAndCourse(ctx, nil, userID, sub.CourseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load enrollment: %w", err)
	}
	if enrollment == nil || !enrollment.HasAccess {
		return nil, apierr.New(http.StatusForbidden, "no_course_access", fmt.Errorf("user has no access to course"))
	}

	quiz, err := qs.resolver.GetQuizWithAnswers(ctx, quizID)
	if err != nil {
		if errors.Is(err, cms.ErrNotFound) {
			return nil, apierr.New(http.StatusNotFound, "quiz_not_found", fmt.Errorf("quiz %s not found", quizID))
		}
		return nil, fmt.Errorf("failed to resolve quiz: %w", err)
	}

	correct := grading.CorrectIndices(quiz)
	result, err := grading.Grade(correct, sub.Answers, quiz.PassingScorePercent)
	if err != nil {
		if errors.Is(err, grading.ErrNoQuestions) {
			return nil, apierr.New(http.StatusUnprocessableEntity, "quiz_has_no_questions", err)
		}
		return nil, fmt.Errorf("failed to grade quiz: %w", err)
	}

	if result.Passed {
		row := &types.QuizProgress{
			UserID:      userID,
			QuizID:      quizID,
			Score:       result.Score,
			IsCompleted: true,
		}
		if err := qs.quizProgress.Upsert(ctx, nil, row); err != nil {
			return nil, fmt.Errorf("failed to persist quiz pass: %w", err)
		}
		qs.log.Info("Quiz passed", "user_id", userID, "quiz_id", quizID, "score", result.Score)
	}

	return &QuizResult{
		Score:   result.Score,
		Passed:  result.Passed,
		Correct: result.Correct,
		Total:   result.Total,
	}, nil
}
