package certificate_issue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/courseloop/courseloop-backend/internal/certificates"
	"github.com/courseloop/courseloop-backend/internal/clients/gcp"
	jobrt "github.com/courseloop/courseloop-backend/internal/jobs/runtime"
	"github.com/courseloop/courseloop-backend/internal/observability"
	"github.com/courseloop/courseloop-backend/internal/progression"
	"github.com/courseloop/courseloop-backend/internal/repos"
)

// Result is the job_run.result payload. Issued=false covers the graceful
// terminal states (already issued, pool exhausted) that must not be
// replayed automatically.
type Result struct {
	Issued bool   `json:"issued"`
	Reason string `json:"reason,omitempty"`
	Number string `json:"number,omitempty"`
	URL    string `json:"url,omitempty"`
}

// Run executes issuance end to end. The trigger payload carries only
// user_id, course_id and course_name; entitlement, completion and prior
// issuance are all re-derived here so a stale or forged trigger cannot
// mint a certificate.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	if p == nil || p.db == nil || p.resolver == nil || p.cfg == nil || p.renderer == nil || p.bucket == nil || p.mailer == nil {
		jc.Fail("validate", fmt.Errorf("certificate_issue: pipeline not configured"))
		return nil
	}

	userID, ok := jc.PayloadUUID("user_id")
	if !ok || userID == uuid.Nil {
		jc.Fail("validate", fmt.Errorf("missing user_id"))
		return nil
	}
	courseID, ok := jc.PayloadUUID("course_id")
	if !ok || courseID == uuid.Nil {
		jc.Fail("validate", fmt.Errorf("missing course_id"))
		return nil
	}
	courseName := jc.PayloadString("course_name")

	// Step 1: the user must still exist and be reachable.
	jc.Progress("load_user", 5, "Loading user")
	user, err := p.users.GetByID(jc.Ctx, nil, userID)
	if err != nil {
		jc.Fail("load_user", fmt.Errorf("failed to load user: %w", err))
		return nil
	}
	if user == nil || user.Email == "" {
		jc.Fail("load_user", fmt.Errorf("user %s missing or has no email", userID))
		return nil
	}

	// Step 2: entitlement.
	jc.Progress("load_enrollment", 10, "Checking enrollment")
	enrollment, err := p.enrollments.GetByUserAndCourse(jc.Ctx, nil, userID, courseID)
	if err != nil {
		jc.Fail("load_enrollment", fmt.Errorf("failed to load enrollment: %w", err))
		return nil
	}
	if enrollment == nil || !enrollment.HasAccess {
		jc.Fail("load_enrollment", fmt.Errorf("user %s has no enrollment with access for course %s", userID, courseID))
		return nil
	}

	// Step 3: prior-issuance short-circuit. A re-trigger after success
	// resends the notification instead of allocating twice.
	if enrollment.IsCertificateIssued() {
		jc.Progress("short_circuit", 90, "Certificate already issued, resending")
		if enrollment.CertificateURL != "" {
			if mailErr := p.mailer.SendCertificateAlreadyClaimed(jc.Ctx, user, courseName, enrollment.CertificateURL); mailErr != nil {
				p.log.Warn("Failed to resend already-claimed email", "user_id", userID, "error", mailErr)
			}
		}
		jc.Succeed("short_circuit", Result{Issued: false, Reason: "already_issued", Number: enrollment.CertificateNumber, URL: enrollment.CertificateURL})
		return nil
	}

	// Step 4: completion preconditions from fresh progress rows.
	jc.Progress("preconditions", 20, "Verifying course completion")
	layout, err := p.resolver.GetCourseLayout(jc.Ctx, courseID)
	if err != nil {
		jc.Fail("preconditions", fmt.Errorf("failed to resolve course layout: %w", err))
		return nil
	}
	if courseName == "" {
		courseName = layout.Title
	}
	lessonStates, err := p.progress.LessonStates(jc.Ctx, userID)
	if err != nil {
		jc.Fail("preconditions", fmt.Errorf("failed to load lesson progress: %w", err))
		return nil
	}
	quizStates, err := p.progress.QuizStates(jc.Ctx, userID)
	if err != nil {
		jc.Fail("preconditions", fmt.Errorf("failed to load quiz progress: %w", err))
		return nil
	}
	lessons := progression.BuildLessonsInOrder(layout, lessonStates)
	eval := progression.Evaluate(layout, lessons, quizStates, enrollment.HasAccess)
	if !eval.ContentComplete {
		jc.Fail("preconditions", fmt.Errorf("course %s not complete for user %s", courseID, userID))
		return nil
	}

	// The course's required form fields are a business precondition on
	// the same footing as completion: a stale or forged enqueue without
	// the stored submission must not consume an allocation.
	form, err := p.forms.GetByUserAndCourse(jc.Ctx, nil, userID, courseID)
	if err != nil {
		jc.Fail("preconditions", fmt.Errorf("failed to load certificate form: %w", err))
		return nil
	}
	formValues := map[string]string{}
	if form != nil && len(form.Fields) > 0 {
		if uErr := json.Unmarshal(form.Fields, &formValues); uErr != nil {
			p.reporter.CaptureException(jc.Ctx, uErr, map[string]any{
				"stage": "preconditions", "user_id": userID.String(), "course_id": courseID.String(),
			})
			jc.Fail("preconditions", fmt.Errorf("certificate form fields unreadable: %w", uErr))
			return nil
		}
	}
	missing, err := p.cfg.MissingRequiredFields(courseID.String(), formValues)
	if err != nil {
		jc.Fail("preconditions", fmt.Errorf("failed to resolve certificate requirements: %w", err))
		return nil
	}
	if len(missing) > 0 {
		err := fmt.Errorf("required certificate form fields missing: %s", strings.Join(missing, ", "))
		p.reporter.CaptureException(jc.Ctx, err, map[string]any{
			"stage": "preconditions", "user_id": userID.String(), "course_id": courseID.String(),
		})
		jc.Fail("preconditions", err)
		return nil
	}

	// Step 5: atomic allocation claim. An empty pool is an operator
	// problem, not a retryable failure: apologize once and stop.
	jc.Progress("allocate", 35, "Allocating certificate number")
	allocation, err := p.allocations.ClaimNext(jc.Ctx, nil, courseID)
	if err != nil {
		if errors.Is(err, repos.ErrPoolExhausted) {
			p.reporter.CaptureMessage(jc.Ctx, observability.SeverityHigh,
				"certificate allocation pool exhausted",
				map[string]any{"course_id": courseID.String(), "user_id": userID.String()})
			if mailErr := p.mailer.SendCertificateIssue(jc.Ctx, user, courseName); mailErr != nil {
				p.log.Error("Failed to send allocation issue email", "user_id", userID, "error", mailErr)
			}
			jc.Succeed("allocate", Result{Issued: false, Reason: "allocation_exhausted"})
			return nil
		}
		jc.Fail("allocate", fmt.Errorf("failed to claim allocation: %w", err))
		return nil
	}

	// Step 6: persist the certificate and complete the enrollment in one
	// update. If this fails the allocation is consumed with no
	// certificate recorded; that window is accepted and reconciled by
	// hand, so the report must carry the number.
	jc.Progress("persist", 50, "Recording certificate")
	issuedAt := time.Now()
	if err := p.enrollments.MarkCertificateIssued(jc.Ctx, nil, enrollment.ID, allocation.Number, issuedAt); err != nil {
		p.reporter.CaptureException(jc.Ctx, err, map[string]any{
			"stage":     "persist",
			"user_id":   userID.String(),
			"course_id": courseID.String(),
			"number":    allocation.Number,
		})
		jc.Fail("persist", fmt.Errorf("failed to persist certificate: %w", err))
		return nil
	}

	// Step 7: render. From here on the certificate legally exists; any
	// failure leaves an enrollment with a number but no asset, which the
	// reconcile job picks up.
	jc.Progress("render", 65, "Rendering certificate image")
	if err := p.cfg.ValidateForm(courseID.String(), formValues); err != nil {
		p.reporter.CaptureException(jc.Ctx, err, map[string]any{
			"stage": "render", "user_id": userID.String(), "course_id": courseID.String(), "number": allocation.Number,
		})
		jc.Fail("render", fmt.Errorf("certificate form invalid: %w", err))
		return nil
	}
	img, err := p.renderer.Render(courseID.String(), certificates.RenderInput{
		LearnerName: user.FullName(),
		CourseTitle: courseName,
		Number:      allocation.Number,
		IssuedAt:    issuedAt,
		FormValues:  formValues,
	})
	if err != nil {
		p.reporter.CaptureException(jc.Ctx, err, map[string]any{
			"stage": "render", "user_id": userID.String(), "course_id": courseID.String(), "number": allocation.Number,
		})
		jc.Fail("render", fmt.Errorf("failed to render certificate: %w", err))
		return nil
	}

	// Step 8: upload and record the asset location.
	jc.Progress("upload", 80, "Uploading certificate")
	key := certificates.BucketKey(courseName, issuedAt, userID)
	if err := p.bucket.UploadFile(jc.Ctx, gcp.BucketCategoryCertificate, key, img); err != nil {
		p.reporter.CaptureException(jc.Ctx, err, map[string]any{
			"stage": "upload", "user_id": userID.String(), "course_id": courseID.String(), "number": allocation.Number,
		})
		jc.Fail("upload", fmt.Errorf("failed to upload certificate: %w", err))
		return nil
	}
	url := p.bucket.GetPublicURL(gcp.BucketCategoryCertificate, key)
	if err := p.enrollments.SetCertificateAsset(jc.Ctx, nil, enrollment.ID, key, url); err != nil {
		p.reporter.CaptureException(jc.Ctx, err, map[string]any{
			"stage": "upload", "user_id": userID.String(), "course_id": courseID.String(), "number": allocation.Number,
		})
		jc.Fail("upload", fmt.Errorf("failed to record certificate asset: %w", err))
		return nil
	}

	// Step 9: notify. Best effort; the certificate is already issued and
	// a failed send must not fail the run.
	jc.Progress("notify", 95, "Sending certificate email")
	if err := p.mailer.SendCertificateReady(jc.Ctx, user, courseName, url, allocation.Number); err != nil {
		p.reporter.CaptureException(jc.Ctx, err, map[string]any{
			"stage": "notify", "user_id": userID.String(), "course_id": courseID.String(),
		})
	}

	p.log.Info("Certificate issued", "user_id", userID, "course_id", courseID, "number", allocation.Number)
	jc.Succeed("done", Result{Issued: true, Number: allocation.Number, URL: url})
	return nil
}
