package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/courseloop/courseloop-backend/internal/apierr"
	"github.com/courseloop/courseloop-backend/internal/certificates"
	"github.com/courseloop/courseloop-backend/internal/clients/gcp"
	"github.com/courseloop/courseloop-backend/internal/cms"
	"github.com/courseloop/courseloop-backend/internal/logger"
	"github.com/courseloop/courseloop-backend/internal/progression"
	"github.com/courseloop/courseloop-backend/internal/repos"
	"github.com/courseloop/courseloop-backend/internal/types"
)

// CertificateIssueJobType names the queued pipeline; kept here so the
// service does not import the pipeline package it feeds.
const CertificateIssueJobType = "certificate_issue"

const CertificateReconcileJobType = "certificate_reconcile"

type ClaimResult struct {
	JobID uuid.UUID `json:"job_id"`
}

type CertificateService interface {
	// ClaimCertificate validates entitlement and completion from fresh
	// progress, persists the claim form, and enqueues the issuance job.
	// The heavy work happens in the background; callers get a job id.
	ClaimCertificate(ctx context.Context, userID, courseID uuid.UUID, form map[string]string) (*ClaimResult, error)
	// OpenCertificate streams the stored certificate image. The caller
	// owns the returned reader and must close it.
	OpenCertificate(ctx context.Context, userID, courseID uuid.UUID) (io.ReadCloser, error)
	EnqueueReconcile(ctx context.Context, requestedBy uuid.UUID) (*ClaimResult, error)
}

type certificateService struct {
	db             *gorm.DB
	log            *logger.Logger
	resolver       cms.Resolver
	progress       ProgressService
	enrollmentRepo repos.EnrollmentRepo
	formRepo       repos.CertificateFormRepo
	certCfg        *certificates.Config
	bucket         gcp.BucketService
	jobs           JobService
}

func NewCertificateService(
	db *gorm.DB,
	log *logger.Logger,
	resolver cms.Resolver,
	progress ProgressService,
	enrollmentRepo repos.EnrollmentRepo,
	formRepo repos.CertificateFormRepo,
	certCfg *certificates.Config,
	bucket gcp.BucketService,
	jobs JobService,
) CertificateService {
	return &certificateService{
		db:             db,
		log:            log.With("service", "CertificateService"),
		resolver:       resolver,
		progress:       progress,
		enrollmentRepo: enrollmentRepo,
		formRepo:       formRepo,
		certCfg:        certCfg,
		bucket:         bucket,
		jobs:           jobs,
	}
}

func (cs *certificateService) ClaimCertificate(ctx context.Context, userID, courseID uuid.UUID, form map[string]string) (*ClaimResult, error) {
	enrollment, err := cs.enrollmentRepo.GetByUserAndCourse(ctx, nil, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load enrollment: %w", err)
	}
	if enrollment == nil || !enrollment.HasAccess {
		return nil, apierr.New(http.StatusForbidden, "no_course_access", fmt.Errorf("user has no access to course"))
	}

	layout, err := cs.resolver.GetCourseLayout(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve course layout: %w", err)
	}

	// Completion is checked here for fast feedback and re-checked inside
	// the job; only the job's check is authoritative.
	lessonStates, err := cs.progress.LessonStates(ctx, userID)
	if err != nil {
		return nil, err
	}
	quizStates, err := cs.progress.QuizStates(ctx, userID)
	if err != nil {
		return nil, err
	}
	lessons := progression.BuildLessonsInOrder(layout, lessonStates)
	eval := progression.Evaluate(layout, lessons, quizStates, enrollment.HasAccess)
	if !eval.ContentComplete && !enrollment.IsCertificateIssued() {
		return nil, apierr.New(http.StatusUnprocessableEntity, "course_not_complete", fmt.Errorf("course content not complete"))
	}

	if err := cs.certCfg.ValidateForm(courseID.String(), form); err != nil {
		return nil, apierr.New(http.StatusBadRequest, "invalid_certificate_form", err)
	}

	var job *types.JobRun
	err = cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(form) > 0 {
			raw, mErr := json.Marshal(form)
			if mErr != nil {
				return fmt.Errorf("failed to encode form fields: %w", mErr)
			}
			if fErr := cs.formRepo.Upsert(ctx, tx, &types.CertificateFormSubmission{
				ID:       uuid.New(),
				UserID:   userID,
				CourseID: courseID,
				Fields:   datatypes.JSON(raw),
			}); fErr != nil {
				return fmt.Errorf("failed to persist certificate form: %w", fErr)
			}
		}
		j, eErr := cs.jobs.Enqueue(ctx, tx, CertificateIssueJobType, userID, "course", courseID, map[string]any{
			"user_id":     userID.String(),
			"course_id":   courseID.String(),
			"course_name": layout.Title,
		})
		if eErr != nil {
			return eErr
		}
		job = j
		return nil
	})
	if err != nil {
		return nil, err
	}

	cs.log.Info("Certificate claim accepted", "user_id", userID, "course_id", courseID, "job_id", job.ID)
	return &ClaimResult{JobID: job.ID}, nil
}

func (cs *certificateService) OpenCertificate(ctx context.Context, userID, courseID uuid.UUID) (io.ReadCloser, error) {
	enrollment, err := cs.enrollmentRepo.GetByUserAndCourse(ctx, nil, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load enrollment: %w", err)
	}
	if enrollment == nil || !enrollment.HasAccess {
		return nil, apierr.New(http.StatusForbidden, "no_course_access", fmt.Errorf("user has no access to course"))
	}
	if !enrollment.IsCertificateIssued() || enrollment.CertificateBucketKey == "" {
		return nil, apierr.New(http.StatusNotFound, "certificate_not_found", fmt.Errorf("no stored certificate for course"))
	}
	rd, err := cs.bucket.DownloadFile(ctx, gcp.BucketCategoryCertificate, enrollment.CertificateBucketKey)
	if err != nil {
		return nil, fmt.Errorf("failed to open certificate %q: %w", enrollment.CertificateBucketKey, err)
	}
	return rd, nil
}

func (cs *certificateService) EnqueueReconcile(ctx context.Context, requestedBy uuid.UUID) (*ClaimResult, error) {
	job, err := cs.jobs.Enqueue(ctx, nil, CertificateReconcileJobType, requestedBy, "", uuid.Nil, map[string]any{})
	if err != nil {
		return nil, err
	}
	return &ClaimResult{JobID: job.ID}, nil
}
