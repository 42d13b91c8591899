package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/courseloop/courseloop-backend/internal/clients/gcp"
	"github.com/courseloop/courseloop-backend/internal/cms"
	"github.com/courseloop/courseloop-backend/internal/logger"
	"github.com/courseloop/courseloop-backend/internal/types"
)

func testLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

type fakeResolver struct {
	layout    *cms.CourseLayout
	layoutErr error
	quiz      *cms.Quiz
	quizErr   error
}

func (f *fakeResolver) GetCourseLayout(ctx context.Context, courseID uuid.UUID) (*cms.CourseLayout, error) {
	if f.layoutErr != nil {
		return nil, f.layoutErr
	}
	return f.layout, nil
}

func (f *fakeResolver) GetQuizWithAnswers(ctx context.Context, quizID uuid.UUID) (*cms.Quiz, error) {
	if f.quizErr != nil {
		return nil, f.quizErr
	}
	return f.quiz, nil
}

type fakeCache struct {
	store   map[string][]byte
	sets    int
	deleted []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{store: map[string][]byte{}}
}

func (f *fakeCache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	raw, ok := f.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (f *fakeCache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.store[key] = raw
	f.sets++
	return nil
}

func (f *fakeCache) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.store, k)
		f.deleted = append(f.deleted, k)
	}
	return nil
}

func (f *fakeCache) Close() error { return nil }

type fakeEnrollmentRepo struct {
	enrollment *types.UserCourseEnrollment
	err        error
}

func (f *fakeEnrollmentRepo) Create(ctx context.Context, tx *gorm.DB, row *types.UserCourseEnrollment) (*types.UserCourseEnrollment, error) {
	return row, nil
}

func (f *fakeEnrollmentRepo) GetByUserAndCourse(ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID) (*types.UserCourseEnrollment, error) {
	return f.enrollment, f.err
}

func (f *fakeEnrollmentRepo) GrantAccess(ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID) (*types.UserCourseEnrollment, error) {
	return f.enrollment, nil
}

func (f *fakeEnrollmentRepo) MarkCertificateIssued(ctx context.Context, tx *gorm.DB, id uuid.UUID, number string, issuedAt time.Time) error {
	return nil
}

func (f *fakeEnrollmentRepo) SetCertificateAsset(ctx context.Context, tx *gorm.DB, id uuid.UUID, bucketKey, url string) error {
	return nil
}

func (f *fakeEnrollmentRepo) ListIssuedMissingAsset(ctx context.Context, tx *gorm.DB, limit int) ([]*types.UserCourseEnrollment, error) {
	return nil, nil
}

type fakeLessonProgressRepo struct {
	rows     map[uuid.UUID]*types.LessonProgress
	upserted []*types.LessonProgress
}

func newFakeLessonProgressRepo() *fakeLessonProgressRepo {
	return &fakeLessonProgressRepo{rows: map[uuid.UUID]*types.LessonProgress{}}
}

func (f *fakeLessonProgressRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.LessonProgress, error) {
	out := []*types.LessonProgress{}
	for _, r := range f.rows {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeLessonProgressRepo) GetByUserAndLesson(ctx context.Context, tx *gorm.DB, userID, lessonID uuid.UUID) (*types.LessonProgress, error) {
	return f.rows[lessonID], nil
}

func (f *fakeLessonProgressRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.LessonProgress) error {
	f.rows[row.LessonID] = row
	f.upserted = append(f.upserted, row)
	return nil
}

func (f *fakeLessonProgressRepo) DeleteByUserAndLesson(ctx context.Context, tx *gorm.DB, userID, lessonID uuid.UUID) error {
	delete(f.rows, lessonID)
	return nil
}

func (f *fakeLessonProgressRepo) DeleteAllForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, lessonIDs []uuid.UUID) error {
	for _, id := range lessonIDs {
		delete(f.rows, id)
	}
	return nil
}

type fakeQuizProgressRepo struct {
	rows     map[uuid.UUID]*types.QuizProgress
	upserted []*types.QuizProgress
}

func newFakeQuizProgressRepo() *fakeQuizProgressRepo {
	return &fakeQuizProgressRepo{rows: map[uuid.UUID]*types.QuizProgress{}}
}

func (f *fakeQuizProgressRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.QuizProgress, error) {
	out := []*types.QuizProgress{}
	for _, r := range f.rows {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeQuizProgressRepo) GetByUserAndQuiz(ctx context.Context, tx *gorm.DB, userID, quizID uuid.UUID) (*types.QuizProgress, error) {
	return f.rows[quizID], nil
}

func (f *fakeQuizProgressRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.QuizProgress) error {
	f.rows[row.QuizID] = row
	f.upserted = append(f.upserted, row)
	return nil
}

func (f *fakeQuizProgressRepo) DeleteAllForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, quizIDs []uuid.UUID) error {
	for _, id := range quizIDs {
		delete(f.rows, id)
	}
	return nil
}

type fakeBucket struct {
	objects   map[string]string
	downloads []string
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string]string{}}
}

func (f *fakeBucket) UploadFile(ctx context.Context, category gcp.BucketCategory, key string, file io.Reader) error {
	raw, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	f.objects[key] = string(raw)
	return nil
}

func (f *fakeBucket) DeleteFile(ctx context.Context, category gcp.BucketCategory, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *fakeBucket) DownloadFile(ctx context.Context, category gcp.BucketCategory, key string) (io.ReadCloser, error) {
	f.downloads = append(f.downloads, key)
	body, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeBucket) GetPublicURL(category gcp.BucketCategory, key string) string {
	return "https://cdn.test/" + key
}
