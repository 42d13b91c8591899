package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courseloop/courseloop-backend/internal/apierr"
	"github.com/courseloop/courseloop-backend/internal/clients/redis"
	"github.com/courseloop/courseloop-backend/internal/cms"
	"github.com/courseloop/courseloop-backend/internal/logger"
	"github.com/courseloop/courseloop-backend/internal/progression"
	"github.com/courseloop/courseloop-backend/internal/repos"
	"github.com/courseloop/courseloop-backend/internal/types"
)

// SubmitInterval is the fixed duration credited per ping. The client is
// expected to call on this cadence but its reported elapsed time is never
// trusted; each accepted ping credits exactly this much.
const SubmitInterval = 15 * time.Second

const (
	PingStatusInProgress       = "in_progress"
	PingStatusCompleted        = "completed"
	PingStatusAlreadyCompleted = "already_completed"
)

const progressSnapshotTTL = 60 * time.Second

type PingResult struct {
	Status            string `json:"status"`
	DurationInSeconds int    `json:"duration_in_seconds"`
	RequiredDuration  int    `json:"required_duration_in_seconds"`
}

type ProgressService interface {
	RecordPing(ctx context.Context, userID, courseID, lessonID uuid.UUID) (*PingResult, error)
	MarkComplete(ctx context.Context, userID, courseID, lessonID uuid.UUID) (*PingResult, error)
	LessonStates(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]progression.LessonState, error)
	QuizStates(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]progression.QuizState, error)
	ResetCourseProgress(ctx context.Context, userID, courseID uuid.UUID) error
}

type progressService struct {
	db               *gorm.DB
	log              *logger.Logger
	resolver         cms.Resolver
	cache            redis.Cache
	enrollmentRepo   repos.EnrollmentRepo
	lessonProgress   repos.LessonProgressRepo
	quizProgressRepo repos.QuizProgressRepo
}

func NewProgressService(
	db *gorm.DB,
	log *logger.Logger,
	resolver cms.Resolver,
	cache redis.Cache,
	enrollmentRepo repos.EnrollmentRepo,
	lessonProgressRepo repos.LessonProgressRepo,
	quizProgressRepo repos.QuizProgressRepo,
) ProgressService {
	return &progressService{
		db:               db,
		log:              log.With("service", "ProgressService"),
		resolver:         resolver,
		cache:            cache,
		enrollmentRepo:   enrollmentRepo,
		lessonProgress:   lessonProgressRepo,
		quizProgressRepo: quizProgressRepo,
	}
}

func progressSnapshotKey(userID uuid.UUID) string {
	return "progress:lessons:" + userID.String()
}

// RecordPing advances a timed lesson by one fixed interval. Completion
// fires on the ping that would cross the required duration, with the
// stored duration capped at the requirement. Pings against a completed
// row change nothing.
func (ps *progressService) RecordPing(ctx context.Context, userID, courseID, lessonID uuid.UUID) (*PingResult, error) {
	lesson, err := ps.findLesson(ctx, userID, courseID, lessonID)
	if err != nil {
		return nil, err
	}
	timing := lesson.Timing()
	if !timing.Timed() {
		return nil, apierr.New(http.StatusBadRequest, "lesson_untimed", fmt.Errorf("untimed lessons complete via mark-complete, not pings"))
	}

	row, err := ps.lessonProgress.GetByUserAndLesson(ctx, nil, userID, lessonID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lesson progress: %w", err)
	}
	required := timing.Seconds()
	interval := int(SubmitInterval.Seconds())

	if row != nil && row.IsCompleted {
		return &PingResult{
			Status:            PingStatusAlreadyCompleted,
			DurationInSeconds: row.DurationInSeconds,
			RequiredDuration:  required,
		}, nil
	}

	current := 0
	if row != nil {
		current = row.DurationInSeconds
	}

	// Evaluated before incrementing: the ping that would cross the
	// threshold completes the lesson and the duration never exceeds
	// the requirement.
	next := current + interval
	completed := next >= required
	if completed {
		next = required
	}

	upserted := &types.LessonProgress{
		UserID:            userID,
		LessonID:          lessonID,
		DurationInSeconds: next,
		IsCompleted:       completed,
	}
	if err := ps.lessonProgress.Upsert(ctx, nil, upserted); err != nil {
		return nil, fmt.Errorf("failed to upsert lesson progress: %w", err)
	}
	ps.invalidateSnapshot(ctx, userID)

	status := PingStatusInProgress
	if completed {
		status = PingStatusCompleted
		ps.log.Info("Lesson completed", "user_id", userID, "lesson_id", lessonID)
	}
	return &PingResult{
		Status:            status,
		DurationInSeconds: next,
		RequiredDuration:  required,
	}, nil
}

// MarkComplete transitions an untimed lesson straight to completed. Timed
// lessons must earn completion through pings and are rejected here.
func (ps *progressService) MarkComplete(ctx context.Context, userID, courseID, lessonID uuid.UUID) (*PingResult, error) {
	lesson, err := ps.findLesson(ctx, userID, courseID, lessonID)
	if err != nil {
		return nil, err
	}
	if lesson.Timing().Timed() {
		return nil, apierr.New(http.StatusBadRequest, "lesson_timed", fmt.Errorf("timed lessons complete via duration pings"))
	}

	row, err := ps.lessonProgress.GetByUserAndLesson(ctx, nil, userID, lessonID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lesson progress: %w", err)
	}
	if row != nil && row.IsCompleted {
		return &PingResult{Status: PingStatusAlreadyCompleted}, nil
	}

	upserted := &types.LessonProgress{
		UserID:      userID,
		LessonID:    lessonID,
		IsCompleted: true,
	}
	if err := ps.lessonProgress.Upsert(ctx, nil, upserted); err != nil {
		return nil, fmt.Errorf("failed to upsert lesson progress: %w", err)
	}
	ps.invalidateSnapshot(ctx, userID)
	ps.log.Info("Untimed lesson marked complete", "user_id", userID, "lesson_id", lessonID)
	return &PingResult{Status: PingStatusCompleted}, nil
}

func (ps *progressService) LessonStates(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]progression.LessonState, error) {
	key := progressSnapshotKey(userID)
	var cached []*types.LessonProgress
	if hit, err := ps.cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return lessonStateMap(cached), nil
	}

	rows, err := ps.lessonProgress.GetByUserID(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lesson progress rows: %w", err)
	}
	if err := ps.cache.SetJSON(ctx, key, rows, progressSnapshotTTL); err != nil {
		ps.log.Warn("Failed to cache progress snapshot", "user_id", userID, "error", err)
	}
	return lessonStateMap(rows), nil
}

func (ps *progressService) QuizStates(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]progression.QuizState, error) {
	rows, err := ps.quizProgressRepo.GetByUserID(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load quiz progress rows: %w", err)
	}
	out := make(map[uuid.UUID]progression.QuizState, len(rows))
	for _, r := range rows {
		out[r.QuizID] = progression.QuizState{Score: r.Score, IsCompleted: r.IsCompleted}
	}
	return out, nil
}

// ResetCourseProgress wipes every lesson and quiz row the user holds for
// the course. Admin-only; the enrollment itself is untouched.
func (ps *progressService) ResetCourseProgress(ctx context.Context, userID, courseID uuid.UUID) error {
	layout, err := ps.resolver.GetCourseLayout(ctx, courseID)
	if err != nil {
		return fmt.Errorf("failed to resolve course layout: %w", err)
	}
	lessonIDs := []uuid.UUID{}
	quizIDs := []uuid.UUID{}
	for _, s := range layout.Sections {
		for _, l := range s.Lessons {
			lessonIDs = append(lessonIDs, l.ID)
		}
		if s.Quiz != nil {
			quizIDs = append(quizIDs, s.Quiz.ID)
		}
	}

	err = ps.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ps.lessonProgress.DeleteAllForUser(ctx, tx, userID, lessonIDs); err != nil {
			return err
		}
		return ps.quizProgressRepo.DeleteAllForUser(ctx, tx, userID, quizIDs)
	})
	if err != nil {
		return fmt.Errorf("failed to reset course progress: %w", err)
	}
	ps.invalidateSnapshot(ctx, userID)
	ps.log.Info("Course progress reset", "user_id", userID, "course_id", courseID)
	return nil
}

func (ps *progressService) invalidateSnapshot(ctx context.Context, userID uuid.UUID) {
	if err := ps.cache.Delete(ctx, progressSnapshotKey(userID)); err != nil {
		ps.log.Warn("Failed to invalidate progress snapshot", "user_id", userID, "error", err)
	}
}

// findLesson resolves the lesson through the course layout, enforcing
// that the user is enrolled with access before any write.
func (ps *progressService) findLesson(ctx context.Context, userID, courseID, lessonID uuid.UUID) (*cms.Lesson, error) {
	enrollment, err := ps.enrollmentRepo.GetByUserAndCourse(ctx, nil, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load enrollment: %w", err)
	}
	if enrollment == nil || !enrollment.HasAccess {
		return nil, apierr.New(http.StatusForbidden, "no_course_access", fmt.Errorf("user has no access to course"))
	}

	layout, err := ps.resolver.GetCourseLayout(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve course layout: %w", err)
	}
	for _, s := range layout.Sections {
		for i := range s.Lessons {
			if s.Lessons[i].ID == lessonID {
				return &s.Lessons[i], nil
			}
		}
	}
	return nil, apierr.New(http.StatusNotFound, "lesson_not_found", fmt.Errorf("lesson %s not in course %s", lessonID, courseID))
}

func lessonStateMap(rows []*types.LessonProgress) map[uuid.UUID]progression.LessonState {
	out := make(map[uuid.UUID]progression.LessonState, len(rows))
	for _, r := range rows {
		out[r.LessonID] = progression.LessonState{
			DurationInSeconds: r.DurationInSeconds,
			IsCompleted:       r.IsCompleted,
		}
	}
	return out
}
