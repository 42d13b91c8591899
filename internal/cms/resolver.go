package cms

import (
	"context"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/courseloop/courseloop-backend/internal/clients/redis"
	"github.com/courseloop/courseloop-backend/internal/logger"
)

// Resolver is the Client contract plus short-TTL caching. Cache failures
// are logged and swallowed; the CMS is always the fallback.
type Resolver interface {
	Client
}

const DefaultLayoutTTL = 90 * time.Second

type cachedResolver struct {
	log    *logger.Logger
	client Client
	cache  redisclient.Cache
	ttl    time.Duration
}

// NewResolver wraps a Client with redis caching. A nil cache disables
// caching entirely and every call goes straight to the CMS.
func NewResolver(log *logger.Logger, client Client, cache redisclient.Cache, ttl time.Duration) Resolver {
	if ttl <= 0 {
		ttl = DefaultLayoutTTL
	}
	return &cachedResolver{
		log:    log.With("service", "ContentResolver"),
		client: client,
		cache:  cache,
		ttl:    ttl,
	}
}

func courseLayoutKey(courseID uuid.UUID) string { return "cms:course_layout:" + courseID.String() }
func quizKey(quizID uuid.UUID) string           { return "cms:quiz:" + quizID.String() }

func (r *cachedResolver) GetCourseLayout(ctx context.Context, courseID uuid.UUID) (*CourseLayout, error) {
	if r.cache != nil {
		var cached CourseLayout
		hit, err := r.cache.GetJSON(ctx, courseLayoutKey(courseID), &cached)
		if err != nil {
			r.log.Warn("Course layout cache read failed", "course_id", courseID, "error", err)
		} else if hit {
			return &cached, nil
		}
	}

	layout, err := r.client.GetCourseLayout(ctx, courseID)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.SetJSON(ctx, courseLayoutKey(courseID), layout, r.ttl); err != nil {
			r.log.Warn("Course layout cache write failed", "course_id", courseID, "error", err)
		}
	}
	return layout, nil
}

func (r *cachedResolver) GetQuizWithAnswers(ctx context.Context, quizID uuid.UUID) (*Quiz, error) {
	if r.cache != nil {
		var cached Quiz
		hit, err := r.cache.GetJSON(ctx, quizKey(quizID), &cached)
		if err != nil {
			r.log.Warn("Quiz cache read failed", "quiz_id", quizID, "error", err)
		} else if hit {
			return &cached, nil
		}
	}

	quiz, err := r.client.GetQuizWithAnswers(ctx, quizID)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.SetJSON(ctx, quizKey(quizID), quiz, r.ttl); err != nil {
			r.log.Warn("Quiz cache write failed", "quiz_id", quizID, "error", err)
		}
	}
	return quiz, nil
}
