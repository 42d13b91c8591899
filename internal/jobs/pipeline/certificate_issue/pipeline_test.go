package certificate_issue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/courseloop/courseloop-backend/internal/certificates"
	"github.com/courseloop/courseloop-backend/internal/clients/gcp"
	jobrt "github.com/courseloop/courseloop-backend/internal/jobs/runtime"
	"github.com/courseloop/courseloop-backend/internal/cms"
	"github.com/courseloop/courseloop-backend/internal/logger"
	"github.com/courseloop/courseloop-backend/internal/progression"
	"github.com/courseloop/courseloop-backend/internal/repos"
	"github.com/courseloop/courseloop-backend/internal/services"
	"github.com/courseloop/courseloop-backend/internal/types"
)

var (
	testUserID   = uuid.MustParse("10000000-0000-0000-0000-000000000001")
	testCourseID = uuid.MustParse("20000000-0000-0000-0000-000000000001")
	testLessonID = uuid.MustParse("30000000-0000-0000-0000-000000000001")
)

func testLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

type fakeJobRunRepo struct {
	updates []map[string]interface{}
}

func (f *fakeJobRunRepo) Create(ctx context.Context, tx *gorm.DB, jobs []*types.JobRun) ([]*types.JobRun, error) {
	return jobs, nil
}
func (f *fakeJobRunRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.JobRun, error) {
	return nil, nil
}
func (f *fakeJobRunRepo) GetLatestByEntity(ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID, entityType string, entityID uuid.UUID, jobType string) (*types.JobRun, error) {
	return nil, nil
}
func (f *fakeJobRunRepo) ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, retryDelay, staleRunning time.Duration) (*types.JobRun, error) {
	return nil, nil
}
func (f *fakeJobRunRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	f.updates = append(f.updates, updates)
	return nil
}
func (f *fakeJobRunRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return nil
}

type fakeUserRepo struct {
	user *types.User
}

func (f *fakeUserRepo) Create(ctx context.Context, tx *gorm.DB, user *types.User) (*types.User, error) {
	return user, nil
}
func (f *fakeUserRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.User, error) {
	return f.user, nil
}
func (f *fakeUserRepo) GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*types.User, error) {
	return f.user, nil
}
func (f *fakeUserRepo) EmailExists(ctx context.Context, tx *gorm.DB, email string) (bool, error) {
	return f.user != nil, nil
}

type fakeEnrollmentRepo struct {
	enrollment   *types.UserCourseEnrollment
	issuedNumber string
	assetKey     string
	assetURL     string
	persistErr   error
}

func (f *fakeEnrollmentRepo) Create(ctx context.Context, tx *gorm.DB, row *types.UserCourseEnrollment) (*types.UserCourseEnrollment, error) {
	return row, nil
}
func (f *fakeEnrollmentRepo) GetByUserAndCourse(ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID) (*types.UserCourseEnrollment, error) {
	return f.enrollment, nil
}
func (f *fakeEnrollmentRepo) GrantAccess(ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID) (*types.UserCourseEnrollment, error) {
	return f.enrollment, nil
}
func (f *fakeEnrollmentRepo) MarkCertificateIssued(ctx context.Context, tx *gorm.DB, id uuid.UUID, number string, issuedAt time.Time) error {
	if f.persistErr != nil {
		return f.persistErr
	}
	f.issuedNumber = number
	return nil
}
func (f *fakeEnrollmentRepo) SetCertificateAsset(ctx context.Context, tx *gorm.DB, id uuid.UUID, bucketKey, url string) error {
	f.assetKey = bucketKey
	f.assetURL = url
	return nil
}
func (f *fakeEnrollmentRepo) ListIssuedMissingAsset(ctx context.Context, tx *gorm.DB, limit int) ([]*types.UserCourseEnrollment, error) {
	return nil, nil
}

type fakeAllocationRepo struct {
	next      *types.CertificateAllocation
	err       error
	claims    int
	remaining int64
}

func (f *fakeAllocationRepo) CreateBatch(ctx context.Context, tx *gorm.DB, rows []*types.CertificateAllocation) error {
	return nil
}
func (f *fakeAllocationRepo) ClaimNext(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (*types.CertificateAllocation, error) {
	f.claims++
	if f.err != nil {
		return nil, f.err
	}
	return f.next, nil
}
func (f *fakeAllocationRepo) CountRemaining(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (int64, error) {
	return f.remaining, nil
}

type fakeFormRepo struct {
	form *types.CertificateFormSubmission
}

func (f *fakeFormRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.CertificateFormSubmission) error {
	f.form = row
	return nil
}
func (f *fakeFormRepo) GetByUserAndCourse(ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID) (*types.CertificateFormSubmission, error) {
	return f.form, nil
}

type fakeProgress struct {
	lessonStates map[uuid.UUID]progression.LessonState
	quizStates   map[uuid.UUID]progression.QuizState
}

func (f *fakeProgress) RecordPing(ctx context.Context, userID, courseID, lessonID uuid.UUID) (*services.PingResult, error) {
	return nil, nil
}
func (f *fakeProgress) MarkComplete(ctx context.Context, userID, courseID, lessonID uuid.UUID) (*services.PingResult, error) {
	return nil, nil
}
func (f *fakeProgress) LessonStates(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]progression.LessonState, error) {
	return f.lessonStates, nil
}
func (f *fakeProgress) QuizStates(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]progression.QuizState, error) {
	return f.quizStates, nil
}
func (f *fakeProgress) ResetCourseProgress(ctx context.Context, userID, courseID uuid.UUID) error {
	return nil
}

type fakeResolver struct {
	layout *cms.CourseLayout
}

func (f *fakeResolver) GetCourseLayout(ctx context.Context, courseID uuid.UUID) (*cms.CourseLayout, error) {
	return f.layout, nil
}
func (f *fakeResolver) GetQuizWithAnswers(ctx context.Context, quizID uuid.UUID) (*cms.Quiz, error) {
	return nil, nil
}

type fakeRenderer struct {
	err       error
	renders   int
	lastInput certificates.RenderInput
}

func (f *fakeRenderer) Render(courseID string, in certificates.RenderInput) (*bytes.Buffer, error) {
	f.renders++
	f.lastInput = in
	if f.err != nil {
		return nil, f.err
	}
	return bytes.NewBufferString("png-bytes"), nil
}

type fakeBucket struct {
	uploadedKey string
	uploadErr   error
}

func (f *fakeBucket) UploadFile(ctx context.Context, category gcp.BucketCategory, key string, file io.Reader) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploadedKey = key
	return nil
}
func (f *fakeBucket) DeleteFile(ctx context.Context, category gcp.BucketCategory, key string) error {
	return nil
}
func (f *fakeBucket) DownloadFile(ctx context.Context, category gcp.BucketCategory, key string) (io.ReadCloser, error) {
	return nil, nil
}
func (f *fakeBucket) GetPublicURL(category gcp.BucketCategory, key string) string {
	return "https://cdn.test/" + key
}

type fakeMailer struct {
	readySent   int
	issueSent   int
	claimedSent int
	sendErr     error
}

func (f *fakeMailer) SendCertificateReady(ctx context.Context, user *types.User, courseName, certificateURL, certificateNumber string) error {
	f.readySent++
	return f.sendErr
}
func (f *fakeMailer) SendCertificateIssue(ctx context.Context, user *types.User, courseName string) error {
	f.issueSent++
	return f.sendErr
}
func (f *fakeMailer) SendCertificateAlreadyClaimed(ctx context.Context, user *types.User, courseName, certificateURL string) error {
	f.claimedSent++
	return f.sendErr
}

type fakeReporter struct {
	exceptions int
	messages   int
}

func (f *fakeReporter) CaptureException(ctx context.Context, err error, meta map[string]any) {
	f.exceptions++
}
func (f *fakeReporter) CaptureMessage(ctx context.Context, severity, msg string, meta map[string]any) {
	f.messages++
}

type fixture struct {
	pipeline    *Pipeline
	job         *types.JobRun
	jobs        *fakeJobRunRepo
	enrollments *fakeEnrollmentRepo
	allocations *fakeAllocationRepo
	forms       *fakeFormRepo
	renderer    *fakeRenderer
	bucket      *fakeBucket
	mailer      *fakeMailer
	reporter    *fakeReporter
}

const baseCertConfigYAML = `
default:
  template_path: assets/default.png
  font_path: assets/font.ttf
  name: {x: 400, y: 300, font_size: 42}
  date: {x: 400, y: 500, font_size: 18}
  number: {x: 700, y: 560, font_size: 14}
`

const licensedCertConfigYAML = baseCertConfigYAML + `
courses:
  20000000-0000-0000-0000-000000000001:
    template_path: assets/default.png
    font_path: assets/font.ttf
    name: {x: 400, y: 300, font_size: 42}
    date: {x: 400, y: 500, font_size: 18}
    number: {x: 700, y: 560, font_size: 14}
    form:
      - name: license_number
        required: true
        pattern: "^LN-[0-9]{4}$"
        placement: {x: 400, y: 420, font_size: 20}
`

func testCertConfig(t *testing.T, body string) *certificates.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "certificates.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := certificates.LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	layout := &cms.CourseLayout{
		ID:    testCourseID,
		Title: "Intro to Go",
		Sections: []cms.Section{
			{
				ID:      uuid.MustParse("50000000-0000-0000-0000-000000000001"),
				Lessons: []cms.Lesson{{ID: testLessonID, Slug: "l1"}},
			},
		},
	}

	f := &fixture{
		jobs: &fakeJobRunRepo{},
		enrollments: &fakeEnrollmentRepo{enrollment: &types.UserCourseEnrollment{
			ID:        uuid.MustParse("60000000-0000-0000-0000-000000000001"),
			UserID:    testUserID,
			CourseID:  testCourseID,
			HasAccess: true,
		}},
		allocations: &fakeAllocationRepo{next: &types.CertificateAllocation{
			ID:       uuid.MustParse("70000000-0000-0000-0000-000000000001"),
			CourseID: testCourseID,
			Number:   "CERT-0001",
		}},
		forms:    &fakeFormRepo{},
		renderer: &fakeRenderer{},
		bucket:   &fakeBucket{},
		mailer:   &fakeMailer{},
		reporter: &fakeReporter{},
	}

	f.pipeline = New(Deps{
		DB:          &gorm.DB{},
		Log:         testLogger(),
		Reporter:    f.reporter,
		Resolver:    &fakeResolver{layout: layout},
		Progress: &fakeProgress{
			lessonStates: map[uuid.UUID]progression.LessonState{
				testLessonID: {IsCompleted: true},
			},
		},
		Users:       &fakeUserRepo{user: &types.User{ID: testUserID, Email: "a@b.test", FirstName: "Ada", LastName: "L"}},
		Enrollments: f.enrollments,
		Allocations: f.allocations,
		Forms:       f.forms,
		Cfg:         testCertConfig(t, baseCertConfigYAML),
		Renderer:    f.renderer,
		Bucket:      f.bucket,
		Mailer:      f.mailer,
	})

	payload, _ := json.Marshal(map[string]string{
		"user_id":     testUserID.String(),
		"course_id":   testCourseID.String(),
		"course_name": "Intro to Go",
	})
	f.job = &types.JobRun{
		ID:      uuid.New(),
		JobType: JobType,
		Status:  types.JobStatusRunning,
		Payload: datatypes.JSON(payload),
	}
	return f
}

func (f *fixture) run(t *testing.T) Result {
	t.Helper()
	jc := jobrt.NewContext(context.Background(), &gorm.DB{}, f.job, f.jobs)
	if err := f.pipeline.Run(jc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res Result
	if len(f.job.Result) > 0 {
		if err := json.Unmarshal(f.job.Result, &res); err != nil {
			t.Fatalf("bad result payload: %v", err)
		}
	}
	return res
}

func TestRun_IssuesCertificateEndToEnd(t *testing.T) {
	f := newFixture(t)
	res := f.run(t)

	if f.job.Status != types.JobStatusSucceeded || f.job.Stage != "done" {
		t.Fatalf("expected succeeded/done, got %s/%s", f.job.Status, f.job.Stage)
	}
	if !res.Issued || res.Number != "CERT-0001" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if f.enrollments.issuedNumber != "CERT-0001" {
		t.Fatalf("certificate not persisted, got %q", f.enrollments.issuedNumber)
	}
	if f.renderer.renders != 1 {
		t.Fatalf("expected one render, got %d", f.renderer.renders)
	}
	if f.bucket.uploadedKey == "" || f.enrollments.assetKey != f.bucket.uploadedKey {
		t.Fatalf("asset key mismatch: uploaded %q recorded %q", f.bucket.uploadedKey, f.enrollments.assetKey)
	}
	if res.URL != "https://cdn.test/"+f.bucket.uploadedKey {
		t.Fatalf("unexpected url %q", res.URL)
	}
	if f.mailer.readySent != 1 {
		t.Fatalf("expected one ready email, got %d", f.mailer.readySent)
	}
}

func TestRun_PriorIssuanceShortCircuits(t *testing.T) {
	f := newFixture(t)
	f.enrollments.enrollment.CertificateNumber = "CERT-0009"
	f.enrollments.enrollment.CertificateURL = "https://cdn.test/old"

	res := f.run(t)
	if f.job.Status != types.JobStatusSucceeded {
		t.Fatalf("expected success, got %s", f.job.Status)
	}
	if res.Issued || res.Reason != "already_issued" || res.Number != "CERT-0009" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if f.allocations.claims != 0 {
		t.Fatalf("short circuit must not touch the allocation pool")
	}
	if f.mailer.claimedSent != 1 {
		t.Fatalf("expected one already-claimed email, got %d", f.mailer.claimedSent)
	}
}

func TestRun_PoolExhaustionIsGracefulAndTerminal(t *testing.T) {
	f := newFixture(t)
	f.allocations.err = repos.ErrPoolExhausted

	res := f.run(t)
	if f.job.Status != types.JobStatusSucceeded {
		t.Fatalf("an exhausted pool must not leave a retryable failure, got %s", f.job.Status)
	}
	if res.Issued || res.Reason != "allocation_exhausted" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if f.mailer.issueSent != 1 {
		t.Fatalf("expected exactly one apology email, got %d", f.mailer.issueSent)
	}
	if f.reporter.messages != 1 {
		t.Fatalf("expected an operator alert, got %d", f.reporter.messages)
	}
	if f.enrollments.issuedNumber != "" {
		t.Fatalf("nothing may be persisted on exhaustion, got %q", f.enrollments.issuedNumber)
	}
}

func TestRun_MissingEnrollmentFails(t *testing.T) {
	f := newFixture(t)
	f.enrollments.enrollment = nil

	f.run(t)
	if f.job.Status != types.JobStatusFailed || f.job.Stage != "load_enrollment" {
		t.Fatalf("expected failed/load_enrollment, got %s/%s", f.job.Status, f.job.Stage)
	}
}

func TestRun_IncompleteCourseFails(t *testing.T) {
	f := newFixture(t)
	f.pipeline.progress = &fakeProgress{}

	f.run(t)
	if f.job.Status != types.JobStatusFailed || f.job.Stage != "preconditions" {
		t.Fatalf("expected failed/preconditions, got %s/%s", f.job.Status, f.job.Stage)
	}
	if f.allocations.claims != 0 {
		t.Fatalf("incomplete course must not claim an allocation")
	}
}

func TestRun_PersistFailureReportsWithNumber(t *testing.T) {
	f := newFixture(t)
	f.enrollments.persistErr = fmt.Errorf("db down")

	f.run(t)
	if f.job.Status != types.JobStatusFailed || f.job.Stage != "persist" {
		t.Fatalf("expected failed/persist, got %s/%s", f.job.Status, f.job.Stage)
	}
	if f.reporter.exceptions != 1 {
		t.Fatalf("expected the consumed allocation to be reported, got %d", f.reporter.exceptions)
	}
}

func TestRun_NotifyFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.mailer.sendErr = fmt.Errorf("smtp 550")

	res := f.run(t)
	if f.job.Status != types.JobStatusSucceeded {
		t.Fatalf("a failed email must not fail an issued certificate, got %s", f.job.Status)
	}
	if !res.Issued {
		t.Fatalf("unexpected result: %+v", res)
	}
	if f.reporter.exceptions != 1 {
		t.Fatalf("expected the send failure to be captured, got %d", f.reporter.exceptions)
	}
}

func TestRun_MissingRequiredFormFieldFailsBeforeAllocation(t *testing.T) {
	f := newFixture(t)
	f.pipeline.cfg = testCertConfig(t, licensedCertConfigYAML)

	f.run(t)
	if f.job.Status != types.JobStatusFailed || f.job.Stage != "preconditions" {
		t.Fatalf("expected failed/preconditions, got %s/%s", f.job.Status, f.job.Stage)
	}
	if f.allocations.claims != 0 {
		t.Fatalf("a run without the required form must not consume an allocation, got %d claims", f.allocations.claims)
	}
	if f.reporter.exceptions != 1 {
		t.Fatalf("expected the rejected enqueue to be reported, got %d", f.reporter.exceptions)
	}
	if f.enrollments.issuedNumber != "" {
		t.Fatalf("nothing may be issued without the required form, got %q", f.enrollments.issuedNumber)
	}
}

func TestRun_InvalidFormValueFailsBeforeRender(t *testing.T) {
	f := newFixture(t)
	f.pipeline.cfg = testCertConfig(t, licensedCertConfigYAML)
	f.forms.form = &types.CertificateFormSubmission{
		UserID:   testUserID,
		CourseID: testCourseID,
		Fields:   datatypes.JSON(`{"license_number":"bogus"}`),
	}

	f.run(t)
	if f.job.Status != types.JobStatusFailed || f.job.Stage != "render" {
		t.Fatalf("expected failed/render, got %s/%s", f.job.Status, f.job.Stage)
	}
	if f.renderer.renders != 0 {
		t.Fatalf("an invalid form must not reach the renderer, got %d renders", f.renderer.renders)
	}
	if f.reporter.exceptions != 1 {
		t.Fatalf("expected the invalid submission to be reported, got %d", f.reporter.exceptions)
	}
}

func TestRun_ValidFormIssuesAndRendersValues(t *testing.T) {
	f := newFixture(t)
	f.pipeline.cfg = testCertConfig(t, licensedCertConfigYAML)
	f.forms.form = &types.CertificateFormSubmission{
		UserID:   testUserID,
		CourseID: testCourseID,
		Fields:   datatypes.JSON(`{"license_number":"LN-1234"}`),
	}

	res := f.run(t)
	if f.job.Status != types.JobStatusSucceeded || !res.Issued {
		t.Fatalf("expected an issued certificate, got %s (%+v)", f.job.Status, res)
	}
	if f.renderer.lastInput.FormValues["license_number"] != "LN-1234" {
		t.Fatalf("form values did not reach the renderer: %+v", f.renderer.lastInput.FormValues)
	}
}

func TestRun_MalformedPayloadFails(t *testing.T) {
	f := newFixture(t)
	f.job.Payload = datatypes.JSON(`{"course_id":"` + testCourseID.String() + `"}`)

	f.run(t)
	if f.job.Status != types.JobStatusFailed || f.job.Stage != "validate" {
		t.Fatalf("expected failed/validate, got %s/%s", f.job.Status, f.job.Stage)
	}
}
