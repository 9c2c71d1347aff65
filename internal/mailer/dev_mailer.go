package mailer

import (
	"context"

	"github.com/diagnosis/visitor-management/pkg/logger"
)

// DevMailer writes emails to the log instead of sending them.
type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) SendPreRegistration(ctx context.Context, msg PreRegistration) error {
	e := msg.render()
	logger.InfoContext(ctx, "[DEV MAIL] Pre-registration",
		"to", e.toEmail,
		"subject", e.subject,
		"access_code", msg.AccessCode,
		"check_in_url", msg.CheckInURL,
	)
	return nil
}

func (d *DevMailer) SendVisitorArrived(ctx context.Context, msg VisitorArrived) error {
	e := msg.render()
	logger.InfoContext(ctx, "[DEV MAIL] Visitor arrived",
		"to", e.toEmail,
		"subject", e.subject,
		"body", e.text,
	)
	return nil
}
