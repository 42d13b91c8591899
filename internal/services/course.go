package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/courseloop/courseloop-backend/internal/apierr"
	"github.com/courseloop/courseloop-backend/internal/cms"
	"github.com/courseloop/courseloop-backend/internal/logger"
	"github.com/courseloop/courseloop-backend/internal/progression"
	"github.com/courseloop/courseloop-backend/internal/repos"
)

// CourseView is the full per-learner picture of a course: the layout, the
// flattened lessons with completion state, and the derived lock/up-next/
// progress evaluation. It is recomputed from fresh progress rows on every
// request; only the CMS layout behind it is cached.
type CourseView struct {
	Layout     *cms.CourseLayout           `json:"layout"`
	Lessons    []progression.LessonInOrder `json:"lessons"`
	Evaluation progression.Evaluation      `json:"evaluation"`
	HasAccess  bool                        `json:"has_access"`
}

type CourseService interface {
	GetCourseView(ctx context.Context, userID, courseID uuid.UUID) (*CourseView, error)
}

type courseService struct {
	log            *logger.Logger
	resolver       cms.Resolver
	enrollmentRepo repos.EnrollmentRepo
	progress       ProgressService
}

func NewCourseService(
	log *logger.Logger,
	resolver cms.Resolver,
	enrollmentRepo repos.EnrollmentRepo,
	progress ProgressService,
) CourseService {
	return &courseService{
		log:            log.With("service", "CourseService"),
		resolver:       resolver,
		enrollmentRepo: enrollmentRepo,
		progress:       progress,
	}
}

func (cs *courseService) GetCourseView(ctx context.Context, userID, courseID uuid.UUID) (*CourseView, error) {
	layout, err := cs.resolver.GetCourseLayout(ctx, courseID)
	if err != nil {
		if errors.Is(err, cms.ErrNotFound) {
			return nil, apierr.New(http.StatusNotFound, "course_not_found", fmt.Errorf("course %s not found", courseID))
		}
		return nil, fmt.Errorf("failed to resolve course layout: %w", err)
	}

	hasAccess := false
	enrollment, err := cs.enrollmentRepo.GetByUserAndCourse(ctx, nil, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load enrollment: %w", err)
	}
	if enrollment != nil {
		hasAccess = enrollment.HasAccess
	}

	lessonStates, err := cs.progress.LessonStates(ctx, userID)
	if err != nil {
		return nil, err
	}
	quizStates, err := cs.progress.QuizStates(ctx, userID)
	if err != nil {
		return nil, err
	}

	lessons := progression.BuildLessonsInOrder(layout, lessonStates)
	eval := progression.Evaluate(layout, lessons, quizStates, hasAccess)

	return &CourseView{
		Layout:     layout,
		Lessons:    lessons,
		Evaluation: eval,
		HasAccess:  hasAccess,
	}, nil
}
