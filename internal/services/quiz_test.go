package services

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/courseloop/courseloop-backend/internal/cms"
	"github.com/courseloop/courseloop-backend/internal/types"
)

func testQuiz() *cms.Quiz {
	return &cms.Quiz{
		ID:                  testSectionQuizID,
		Title:               "Basics quiz",
		PassingScorePercent: 70,
		Questions: []cms.QuizQuestion{
			{Answers: []cms.QuizAnswer{{Text: "a", IsCorrect: true}, {Text: "b"}}},
			{Answers: []cms.QuizAnswer{{Text: "a"}, {Text: "b", IsCorrect: true}}},
			{Answers: []cms.QuizAnswer{{Text: "a", IsCorrect: true}, {Text: "b"}}},
		},
	}
}

func newQuizFixture(hasAccess bool, quiz *cms.Quiz) (QuizService, *fakeQuizProgressRepo, *fakeResolver) {
	resolver := &fakeResolver{quiz: quiz}
	quizRepo := newFakeQuizProgressRepo()
	enrollments := &fakeEnrollmentRepo{enrollment: &types.UserCourseEnrollment{
		ID:        uuid.MustParse("60000000-0000-0000-0000-000000000001"),
		UserID:    testUserID,
		CourseID:  testCourseID,
		HasAccess: hasAccess,
	}}
	svc := NewQuizService(testLogger(), resolver, enrollments, quizRepo)
	return svc, quizRepo, resolver
}

func TestSubmitQuiz_PassPersistsProgress(t *testing.T) {
	svc, quizRepo, _ := newQuizFixture(true, testQuiz())

	res, err := svc.SubmitQuiz(context.Background(), testUserID, testSectionQuizID, QuizSubmission{
		CourseID: testCourseID,
		Answers:  []int{0, 1, 0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Passed || res.Score != 100 || res.Correct != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(quizRepo.upserted) != 1 {
		t.Fatalf("expected one persisted pass, got %d", len(quizRepo.upserted))
	}
	row := quizRepo.rows[testSectionQuizID]
	if row == nil || !row.IsCompleted || row.Score != 100 {
		t.Fatalf("unexpected persisted row: %+v", row)
	}
}

func TestSubmitQuiz_FailLeavesNoTrace(t *testing.T) {
	svc, quizRepo, _ := newQuizFixture(true, testQuiz())

	res, err := svc.SubmitQuiz(context.Background(), testUserID, testSectionQuizID, QuizSubmission{
		CourseID: testCourseID,
		Answers:  []int{0, 0, 1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Passed {
		t.Fatalf("expected a fail, got %+v", res)
	}
	if res.Score != 34 {
		t.Fatalf("expected score 34 for one of three, got %d", res.Score)
	}
	if len(quizRepo.upserted) != 0 {
		t.Fatalf("failing submission must not persist, got %d upserts", len(quizRepo.upserted))
	}
}

func TestSubmitQuiz_RetakeAfterFailSucceeds(t *testing.T) {
	svc, quizRepo, _ := newQuizFixture(true, testQuiz())

	if _, err := svc.SubmitQuiz(context.Background(), testUserID, testSectionQuizID, QuizSubmission{
		CourseID: testCourseID, Answers: []int{0, 1, 1},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.SubmitQuiz(context.Background(), testUserID, testSectionQuizID, QuizSubmission{
		CourseID: testCourseID, Answers: []int{0, 1, 0},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row := quizRepo.rows[testSectionQuizID]
	if row == nil || row.Score != 100 {
		t.Fatalf("expected the retake score to win, got %+v", row)
	}
}

func TestSubmitQuiz_RequiresCourseAccess(t *testing.T) {
	svc, _, _ := newQuizFixture(false, testQuiz())

	_, err := svc.SubmitQuiz(context.Background(), testUserID, testSectionQuizID, QuizSubmission{
		CourseID: testCourseID, Answers: []int{0, 1, 0},
	})
	status, code := apiStatus(t, err)
	if status != http.StatusForbidden || code != "no_course_access" {
		t.Fatalf("expected 403 no_course_access, got %d %q", status, code)
	}
}

func TestSubmitQuiz_UnknownQuiz(t *testing.T) {
	svc, _, resolver := newQuizFixture(true, nil)
	resolver.quizErr = cms.ErrNotFound

	_, err := svc.SubmitQuiz(context.Background(), testUserID, testSectionQuizID, QuizSubmission{
		CourseID: testCourseID, Answers: []int{0},
	})
	status, code := apiStatus(t, err)
	if status != http.StatusNotFound || code != "quiz_not_found" {
		t.Fatalf("expected 404 quiz_not_found, got %d %q", status, code)
	}
}

func TestSubmitQuiz_EmptyQuizRejected(t *testing.T) {
	svc, _, _ := newQuizFixture(true, &cms.Quiz{ID: testSectionQuizID, PassingScorePercent: 70})

	_, err := svc.SubmitQuiz(context.Background(), testUserID, testSectionQuizID, QuizSubmission{
		CourseID: testCourseID, Answers: []int{},
	})
	status, code := apiStatus(t, err)
	if status != http.StatusUnprocessableEntity || code != "quiz_has_no_questions" {
		t.Fatalf("expected 422 quiz_has_no_questions, got %d %q", status, code)
	}
}
