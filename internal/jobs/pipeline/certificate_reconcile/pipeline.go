package certificate_reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/courseloop/courseloop-backend/internal/certificates"
	"github.com/courseloop/courseloop-backend/internal/clients/gcp"
	jobrt "github.com/courseloop/courseloop-backend/internal/jobs/runtime"
	"github.com/courseloop/courseloop-backend/internal/cms"
	"github.com/courseloop/courseloop-backend/internal/logger"
	"github.com/courseloop/courseloop-backend/internal/observability"
	"github.com/courseloop/courseloop-backend/internal/repos"
	"github.com/courseloop/courseloop-backend/internal/services"
	"github.com/courseloop/courseloop-backend/internal/types"
)

const JobType = "certificate_reconcile"

const scanLimit = 100

// Pipeline repairs the accepted inconsistency window of issuance: an
// enrollment holding a certificate number but no stored asset, left when
// a run died between persisting and uploading. It re-renders and
// re-uploads; the deterministic bucket key makes re-runs overwrite, not
// duplicate.
type Pipeline struct {
	db          *gorm.DB
	log         *logger.Logger
	reporter    observability.Reporter
	resolver    cms.Resolver
	users       repos.UserRepo
	enrollments repos.EnrollmentRepo
	forms       repos.CertificateFormRepo
	cfg         *certificates.Config
	renderer    certificates.Renderer
	bucket      gcp.BucketService
	mailer      services.MailerService
}

type Deps struct {
	DB          *gorm.DB
	Log         *logger.Logger
	Reporter    observability.Reporter
	Resolver    cms.Resolver
	Users       repos.UserRepo
	Enrollments repos.EnrollmentRepo
	Forms       repos.CertificateFormRepo
	Cfg         *certificates.Config
	Renderer    certificates.Renderer
	Bucket      gcp.BucketService
	Mailer      services.MailerService
}

func New(d Deps) *Pipeline {
	return &Pipeline{
		db:          d.DB,
		log:         d.Log.With("pipeline", JobType),
		reporter:    d.Reporter,
		resolver:    d.Resolver,
		users:       d.Users,
		enrollments: d.Enrollments,
		forms:       d.Forms,
		cfg:         d.Cfg,
		renderer:    d.Renderer,
		bucket:      d.Bucket,
		mailer:      d.Mailer,
	}
}

func (p *Pipeline) Type() string { return JobType }

type Result struct {
	Scanned  int `json:"scanned"`
	Repaired int `json:"repaired"`
	Failed   int `json:"failed"`
}

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	if p == nil || p.cfg == nil || p.renderer == nil || p.bucket == nil {
		jc.Fail("validate", fmt.Errorf("certificate_reconcile: pipeline not configured"))
		return nil
	}

	jc.Progress("scan", 10, "Scanning for certificates missing assets")
	rows, err := p.enrollments.ListIssuedMissingAsset(jc.Ctx, nil, scanLimit)
	if err != nil {
		jc.Fail("scan", fmt.Errorf("failed to scan enrollments: %w", err))
		return nil
	}
	if len(rows) == 0 {
		jc.Succeed("done", Result{})
		return nil
	}

	jc.Progress("repair", 40, fmt.Sprintf("Repairing %d certificates", len(rows)))

	var repaired, failed int64
	g, gctx := errgroup.WithContext(jc.Ctx)
	g.SetLimit(4)
	for _, row := range rows {
		row := row
		g.Go(func() error {
			if err := p.repairOne(gctx, row); err != nil {
				atomic.AddInt64(&failed, 1)
				p.reporter.CaptureException(gctx, err, map[string]any{
					"stage":         "repair",
					"enrollment_id": row.ID.String(),
					"number":        row.CertificateNumber,
				})
				// Individual failures are recorded, not fatal to the scan.
				return nil
			}
			atomic.AddInt64(&repaired, 1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		jc.Fail("repair", err)
		return nil
	}

	p.log.Info("Certificate reconcile finished", "scanned", len(rows), "repaired", repaired, "failed", failed)
	jc.Succeed("done", Result{Scanned: len(rows), Repaired: int(repaired), Failed: int(failed)})
	return nil
}

func (p *Pipeline) repairOne(ctx context.Context, row *types.UserCourseEnrollment) error {
	user, err := p.users.GetByID(ctx, nil, row.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("user %s missing for enrollment %s", row.UserID, row.ID)
	}

	layout, err := p.resolver.GetCourseLayout(ctx, row.CourseID)
	if err != nil {
		return fmt.Errorf("resolve course: %w", err)
	}

	issuedAt := time.Now()
	if row.CertificateIssuedAt != nil {
		issuedAt = *row.CertificateIssuedAt
	}

	form, err := p.forms.GetByUserAndCourse(ctx, nil, row.UserID, row.CourseID)
	if err != nil {
		return fmt.Errorf("load certificate form: %w", err)
	}
	formValues := map[string]string{}
	if form != nil && len(form.Fields) > 0 {
		if err := json.Unmarshal(form.Fields, &formValues); err != nil {
			return fmt.Errorf("certificate form fields unreadable: %w", err)
		}
	}
	if err := p.cfg.ValidateForm(row.CourseID.String(), formValues); err != nil {
		return fmt.Errorf("certificate form invalid: %w", err)
	}

	img, err := p.renderer.Render(row.CourseID.String(), certificates.RenderInput{
		LearnerName: user.FullName(),
		CourseTitle: layout.Title,
		Number:      row.CertificateNumber,
		IssuedAt:    issuedAt,
		FormValues:  formValues,
	})
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	key := certificates.BucketKey(layout.Title, issuedAt, row.UserID)
	if err := p.bucket.UploadFile(ctx, gcp.BucketCategoryCertificate, key, img); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	url := p.bucket.GetPublicURL(gcp.BucketCategoryCertificate, key)
	if err := p.enrollments.SetCertificateAsset(ctx, nil, row.ID, key, url); err != nil {
		return fmt.Errorf("record asset: %w", err)
	}

	if err := p.mailer.SendCertificateReady(ctx, user, layout.Title, url, row.CertificateNumber); err != nil {
		p.log.Warn("Failed to send certificate-ready email during reconcile", "enrollment_id", row.ID, "error", err)
	}
	return nil
}
