package certificate_issue

import (
	"gorm.io/gorm"

	"github.com/courseloop/courseloop-backend/internal/certificates"
	"github.com/courseloop/courseloop-backend/internal/clients/gcp"
	"github.com/courseloop/courseloop-backend/internal/cms"
	"github.com/courseloop/courseloop-backend/internal/logger"
	"github.com/courseloop/courseloop-backend/internal/observability"
	"github.com/courseloop/courseloop-backend/internal/repos"
	"github.com/courseloop/courseloop-backend/internal/services"
)

const JobType = "certificate_issue"

type Pipeline struct {
	db          *gorm.DB
	log         *logger.Logger
	reporter    observability.Reporter
	resolver    cms.Resolver
	progress    services.ProgressService
	users       repos.UserRepo
	enrollments repos.EnrollmentRepo
	allocations repos.CertificateAllocationRepo
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
	Progress    services.ProgressService
	Users       repos.UserRepo
	Enrollments repos.EnrollmentRepo
	Allocations repos.CertificateAllocationRepo
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
		progress:    d.Progress,
		users:       d.Users,
		enrollments: d.Enrollments,
		allocations: d.Allocations,
		forms:       d.Forms,
		cfg:         d.Cfg,
		renderer:    d.Renderer,
		bucket:      d.Bucket,
		mailer:      d.Mailer,
	}
}

func (p *Pipeline) Type() string { return JobType }
