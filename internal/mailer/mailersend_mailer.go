package mailer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"
)

var ErrNotConfigured = errors.New("mailersend not configured")

type MailerSendClient struct {
	client  *mailersend.Mailersend
	from    mailersend.From
	enabled bool
}

func NewMailerSend(apiKey, fromName, fromEmail string) *MailerSendClient {
	m := &MailerSendClient{
		enabled: apiKey != "" && fromEmail != "",
		from: mailersend.From{
			Name:  fromName,
			Email: fromEmail,
		},
	}

	if m.enabled {
		m.client = mailersend.NewMailersend(apiKey)
	}

	return m
}

func (m *MailerSendClient) SendPreRegistration(ctx context.Context, msg PreRegistration) error {
	return m.send(ctx, msg.render())
}

func (m *MailerSendClient) SendVisitorArrived(ctx context.Context, msg VisitorArrived) error {
	return m.send(ctx, msg.render())
}

func (m *MailerSendClient) send(ctx context.Context, e email) error {
	if !m.enabled {
		return ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	msg := m.client.Email.NewMessage()
	msg.SetFrom(m.from)
	msg.SetRecipients([]mailersend.Recipient{{Name: e.toName, Email: e.toEmail}})
	msg.SetSubject(e.subject)

	if strings.TrimSpace(e.text) != "" {
		msg.SetText(e.text)
	}
	if strings.TrimSpace(e.html) != "" {
		msg.SetHTML(e.html)
	}

	_, err := m.client.Email.Send(ctx, msg)
	return err
}
