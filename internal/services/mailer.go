package services

import (
	"context"
	"fmt"

	"github.com/courseloop/courseloop-backend/internal/clients/sendgrid"
	"github.com/courseloop/courseloop-backend/internal/logger"
	"github.com/courseloop/courseloop-backend/internal/types"
)

// MailerService sends the three certificate notifications. Failures are
// returned to the caller; whether a send failure is fatal depends on the
// step (the pipeline treats the final "ready" email as best-effort).
type MailerService interface {
	SendCertificateReady(ctx context.Context, user *types.User, courseName, certificateURL, certificateNumber string) error
	SendCertificateIssue(ctx context.Context, user *types.User, courseName string) error
	SendCertificateAlreadyClaimed(ctx context.Context, user *types.User, courseName, certificateURL string) error
}

type mailerService struct {
	log    *logger.Logger
	client sendgrid.Client
}

func NewMailerService(log *logger.Logger, client sendgrid.Client) MailerService {
	return &mailerService{
		log:    log.With("service", "MailerService"),
		client: client,
	}
}

func (ms *mailerService) SendCertificateReady(ctx context.Context, user *types.User, courseName, certificateURL, certificateNumber string) error {
	return ms.send(ctx, user, fmt.Sprintf("Your %s certificate is ready", courseName),
		fmt.Sprintf(
			"Hi %s,\n\nCongratulations on completing %s! Your certificate (number %s) is ready:\n\n%s\n\nWell done,\nThe Courseloop team\n",
			user.FirstName, courseName, certificateNumber, certificateURL,
		))
}

// SendCertificateIssue is the "we hit a snag" notification sent when the
// allocation pool is empty. The job must not auto-retry after this or the
// learner gets the same apology email on every attempt.
func (ms *mailerService) SendCertificateIssue(ctx context.Context, user *types.User, courseName string) error {
	return ms.send(ctx, user, fmt.Sprintf("Issue creating your %s certificate", courseName),
		fmt.Sprintf(
			"Hi %s,\n\nWe hit a snag while creating your certificate for %s. Our team has been notified and is on it; you don't need to do anything. We'll email you as soon as it's ready.\n\nSorry for the wait,\nThe Courseloop team\n",
			user.FirstName, courseName,
		))
}

func (ms *mailerService) SendCertificateAlreadyClaimed(ctx context.Context, user *types.User, courseName, certificateURL string) error {
	return ms.send(ctx, user, fmt.Sprintf("Your %s certificate", courseName),
		fmt.Sprintf(
			"Hi %s,\n\nYou've already claimed your certificate for %s. Here it is again:\n\n%s\n\nThe Courseloop team\n",
			user.FirstName, courseName, certificateURL,
		))
}

func (ms *mailerService) send(ctx context.Context, user *types.User, subject, body string) error {
	if user == nil || user.Email == "" {
		return fmt.Errorf("recipient email required")
	}
	res, err := ms.client.Send(ctx, sendgrid.SendEmailRequest{
		To:      []sendgrid.EmailAddress{{Email: user.Email, Name: user.FullName()}},
		Subject: subject,
		Text:    body,
	})
	if err != nil {
		return fmt.Errorf("failed to send %q email: %w", subject, err)
	}
	ms.log.Info("Email sent", "to", user.Email, "subject", subject, "message_id", res.MessageID)
	return nil
}
