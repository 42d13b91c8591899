package services

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/courseloop/courseloop-backend/internal/apierr"
	"github.com/courseloop/courseloop-backend/internal/cms"
	"github.com/courseloop/courseloop-backend/internal/types"
)

var (
	testUserID        = uuid.MustParse("10000000-0000-0000-0000-000000000001")
	testCourseID      = uuid.MustParse("20000000-0000-0000-0000-000000000001")
	timedLessonID     = uuid.MustParse("30000000-0000-0000-0000-000000000001")
	untimedLessonID   = uuid.MustParse("30000000-0000-0000-0000-000000000002")
	testSectionQuizID = uuid.MustParse("40000000-0000-0000-0000-000000000001")
)

func progressTestLayout() *cms.CourseLayout {
	return &cms.CourseLayout{
		ID:    testCourseID,
		Title: "Test course",
		Sections: []cms.Section{
			{
				ID: uuid.MustParse("50000000-0000-0000-0000-000000000001"),
				Lessons: []cms.Lesson{
					{ID: timedLessonID, Slug: "timed", RequiredDurationInSeconds: 60},
					{ID: untimedLessonID, Slug: "untimed"},
				},
				Quiz: &cms.QuizSummary{ID: testSectionQuizID, PassingScorePercent: 70},
			},
		},
	}
}

func newProgressFixture(hasAccess bool) (ProgressService, *fakeLessonProgressRepo, *fakeCache) {
	resolver := &fakeResolver{layout: progressTestLayout()}
	cache := newFakeCache()
	lessonRepo := newFakeLessonProgressRepo()
	quizRepo := newFakeQuizProgressRepo()
	enrollments := &fakeEnrollmentRepo{enrollment: &types.UserCourseEnrollment{
		ID:        uuid.MustParse("60000000-0000-0000-0000-000000000001"),
		UserID:    testUserID,
		CourseID:  testCourseID,
		HasAccess: hasAccess,
	}}
	svc := NewProgressService(nil, testLogger(), resolver, cache, enrollments, lessonRepo, quizRepo)
	return svc, lessonRepo, cache
}

func apiStatus(t *testing.T, err error) (int, string) {
	t.Helper()
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected an api error, got %v", err)
	}
	return apiErr.Status, apiErr.Code
}

func TestRecordPing_CreditsOneFixedInterval(t *testing.T) {
	svc, lessonRepo, _ := newProgressFixture(true)

	res, err := svc.RecordPing(context.Background(), testUserID, testCourseID, timedLessonID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != PingStatusInProgress {
		t.Fatalf("expected in_progress, got %q", res.Status)
	}
	if res.DurationInSeconds != 15 || res.RequiredDuration != 60 {
		t.Fatalf("expected 15/60 seconds, got %d/%d", res.DurationInSeconds, res.RequiredDuration)
	}
	if len(lessonRepo.upserted) != 1 {
		t.Fatalf("expected one upsert, got %d", len(lessonRepo.upserted))
	}
}

func TestRecordPing_CompletesOnThresholdCrossingAndCaps(t *testing.T) {
	svc, lessonRepo, _ := newProgressFixture(true)
	lessonRepo.rows[timedLessonID] = &types.LessonProgress{
		UserID: testUserID, LessonID: timedLessonID, DurationInSeconds: 50,
	}

	res, err := svc.RecordPing(context.Background(), testUserID, testCourseID, timedLessonID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != PingStatusCompleted {
		t.Fatalf("expected completed, got %q", res.Status)
	}
	if res.DurationInSeconds != 60 {
		t.Fatalf("expected duration capped at 60, got %d", res.DurationInSeconds)
	}
	row := lessonRepo.rows[timedLessonID]
	if !row.IsCompleted || row.DurationInSeconds != 60 {
		t.Fatalf("persisted row not capped and completed: %+v", row)
	}
}

func TestRecordPing_CompletedRowIsTerminal(t *testing.T) {
	svc, lessonRepo, _ := newProgressFixture(true)
	lessonRepo.rows[timedLessonID] = &types.LessonProgress{
		UserID: testUserID, LessonID: timedLessonID, DurationInSeconds: 60, IsCompleted: true,
	}

	res, err := svc.RecordPing(context.Background(), testUserID, testCourseID, timedLessonID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != PingStatusAlreadyCompleted {
		t.Fatalf("expected already_completed, got %q", res.Status)
	}
	if len(lessonRepo.upserted) != 0 {
		t.Fatalf("completed row must not be rewritten, got %d upserts", len(lessonRepo.upserted))
	}
}

func TestRecordPing_RejectsUntimedLesson(t *testing.T) {
	svc, _, _ := newProgressFixture(true)

	_, err := svc.RecordPing(context.Background(), testUserID, testCourseID, untimedLessonID)
	status, code := apiStatus(t, err)
	if status != http.StatusBadRequest || code != "lesson_untimed" {
		t.Fatalf("expected 400 lesson_untimed, got %d %q", status, code)
	}
}

func TestRecordPing_RequiresCourseAccess(t *testing.T) {
	svc, _, _ := newProgressFixture(false)

	_, err := svc.RecordPing(context.Background(), testUserID, testCourseID, timedLessonID)
	status, code := apiStatus(t, err)
	if status != http.StatusForbidden || code != "no_course_access" {
		t.Fatalf("expected 403 no_course_access, got %d %q", status, code)
	}
}

func TestRecordPing_UnknownLesson(t *testing.T) {
	svc, _, _ := newProgressFixture(true)

	_, err := svc.RecordPing(context.Background(), testUserID, testCourseID, uuid.New())
	status, code := apiStatus(t, err)
	if status != http.StatusNotFound || code != "lesson_not_found" {
		t.Fatalf("expected 404 lesson_not_found, got %d %q", status, code)
	}
}

func TestMarkComplete_UntimedLesson(t *testing.T) {
	svc, lessonRepo, _ := newProgressFixture(true)

	res, err := svc.MarkComplete(context.Background(), testUserID, testCourseID, untimedLessonID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != PingStatusCompleted {
		t.Fatalf("expected completed, got %q", res.Status)
	}
	if row := lessonRepo.rows[untimedLessonID]; row == nil || !row.IsCompleted {
		t.Fatalf("expected a completed row, got %+v", row)
	}

	res, err = svc.MarkComplete(context.Background(), testUserID, testCourseID, untimedLessonID)
	if err != nil {
		t.Fatalf("unexpected error on repeat: %v", err)
	}
	if res.Status != PingStatusAlreadyCompleted {
		t.Fatalf("expected already_completed on repeat, got %q", res.Status)
	}
	if len(lessonRepo.upserted) != 1 {
		t.Fatalf("repeat mark-complete must not rewrite, got %d upserts", len(lessonRepo.upserted))
	}
}

func TestMarkComplete_RejectsTimedLesson(t *testing.T) {
	svc, _, _ := newProgressFixture(true)

	_, err := svc.MarkComplete(context.Background(), testUserID, testCourseID, timedLessonID)
	status, code := apiStatus(t, err)
	if status != http.StatusBadRequest || code != "lesson_timed" {
		t.Fatalf("expected 400 lesson_timed, got %d %q", status, code)
	}
}

func TestLessonStates_CachesSnapshotAndInvalidatesOnWrite(t *testing.T) {
	svc, lessonRepo, cache := newProgressFixture(true)
	lessonRepo.rows[timedLessonID] = &types.LessonProgress{
		UserID: testUserID, LessonID: timedLessonID, DurationInSeconds: 30,
	}

	states, err := svc.LessonStates(context.Background(), testUserID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if states[timedLessonID].DurationInSeconds != 30 {
		t.Fatalf("unexpected state: %+v", states[timedLessonID])
	}
	if cache.sets != 1 {
		t.Fatalf("expected the snapshot to be cached once, got %d sets", cache.sets)
	}

	// A second read must come from the cache.
	lessonRepo.rows[timedLessonID].DurationInSeconds = 45
	states, err = svc.LessonStates(context.Background(), testUserID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if states[timedLessonID].DurationInSeconds != 30 {
		t.Fatalf("expected the cached value 30, got %d", states[timedLessonID].DurationInSeconds)
	}

	if _, err := svc.RecordPing(context.Background(), testUserID, testCourseID, timedLessonID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cache.deleted) == 0 {
		t.Fatalf("expected the snapshot to be invalidated after a write")
	}
	states, err = svc.LessonStates(context.Background(), testUserID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if states[timedLessonID].DurationInSeconds != 60 {
		t.Fatalf("expected the fresh value 60 after invalidation, got %d", states[timedLessonID].DurationInSeconds)
	}
}
