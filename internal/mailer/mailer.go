package mailer

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/diagnosis/visitor-management/pkg/config"
)

// FromConfig picks the log mailer in dev mode, MailerSend when an API key is
// configured and SMTP otherwise.
func FromConfig(cfg config.EmailConfig) Service {
	switch {
	case cfg.DevMode:
		return NewDevMailer()
	case cfg.MailerSendKey != "":
		return NewMailerSend(cfg.MailerSendKey, cfg.FromName, cfg.SMTPFrom)
	default:
		return NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPUseTLS)
	}
}

type Service interface {
	SendPreRegistration(ctx context.Context, msg PreRegistration) error
	SendVisitorArrived(ctx context.Context, msg VisitorArrived) error
}

// PreRegistration is the invitation sent to a visitor with kiosk credentials.
type PreRegistration struct {
	VisitorEmail string
	VisitorName  string
	HostName     string
	LocationName string
	ScheduledAt  time.Time
	AccessCode   string
	CheckInURL   string
}

// VisitorArrived tells a host their visitor checked in.
type VisitorArrived struct {
	HostEmail    string
	HostName     string
	VisitorName  string
	Company      string
	LocationName string
	ArrivedAt    time.Time
}

type email struct {
	toEmail string
	toName  string
	subject string
	text    string
	html    string
}

const timeLayout = "Mon, 02 Jan 2006 15:04 MST"

func (m PreRegistration) render() email {
	when := m.ScheduledAt.Format(timeLayout)
	return email{
		toEmail: m.VisitorEmail,
		toName:  m.VisitorName,
		subject: fmt.Sprintf("Your visit with %s", m.HostName),
		text: fmt.Sprintf("Hi %s,\n\nYou are expected at %s on %s to meet %s.\n\n"+
			"At the kiosk, scan your QR link or enter your email with access code %s.\n\nCheck-in link: %s\n",
			m.VisitorName, m.LocationName, when, m.HostName, m.AccessCode, m.CheckInURL),
		html: fmt.Sprintf(`
		<h2>You're expected</h2>
		<p>Hi %s,</p>
		<p>You are expected at <strong>%s</strong> on %s to meet %s.</p>
		<p>Your access code: <strong style="font-size: 24px; color: #3366FF;">%s</strong></p>
		<p><a href="%s" style="background-color: #3366FF; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px;">Open check-in pass</a></p>
	`, html.EscapeString(m.VisitorName), html.EscapeString(m.LocationName), when,
			html.EscapeString(m.HostName), m.AccessCode, html.EscapeString(m.CheckInURL)),
	}
}

func (m VisitorArrived) render() email {
	who := m.VisitorName
	if m.Company != "" {
		who = fmt.Sprintf("%s (%s)", m.VisitorName, m.Company)
	}
	at := m.ArrivedAt.Format(timeLayout)
	return email{
		toEmail: m.HostEmail,
		toName:  m.HostName,
		subject: fmt.Sprintf("%s has arrived", m.VisitorName),
		text:    fmt.Sprintf("Hi %s,\n\n%s checked in at %s on %s.\n", m.HostName, who, m.LocationName, at),
		html: fmt.Sprintf(`
		<h2>Your visitor has arrived</h2>
		<p>Hi %s,</p>
		<p><strong>%s</strong> checked in at %s on %s.</p>
	`, html.EscapeString(m.HostName), html.EscapeString(who), html.EscapeString(m.LocationName), at),
	}
}
