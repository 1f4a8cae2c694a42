package notify

import (
	"context"
	"time"

	"stock-tracker-alerts/config"
	"stock-tracker-alerts/internal/types"
	"stock-tracker-alerts/lib/translation"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/mail.v2"
)

type mailSender interface {
	DialAndSend(m ...*mail.Message) error
}

// MailChannel sends plain-text alert emails over SMTP with STARTTLS.
type MailChannel struct {
	dialer    mailSender
	sender    string
	recipient string
}

func NewMailChannel(c config.MailConfig, timeout time.Duration) *MailChannel {
	d := mail.NewDialer(c.Server, c.Port, c.Sender, c.Password)
	d.Timeout = timeout
	if !d.SSL {
		d.StartTLSPolicy = mail.MandatoryStartTLS
	}
	return &MailChannel{dialer: d, sender: c.Sender, recipient: c.Recipient}
}

func (m *MailChannel) Name() string { return "email" }

func (m *MailChannel) Send(ctx context.Context, batch []types.AlertPayload) error {
	subject, body := FormatPlain(batch)
	return m.send(ctx, subject, body)
}

func (m *MailChannel) SendTest(ctx context.Context) error {
	return m.send(ctx,
		translation.Translate("Stock Tracker test message"),
		translation.Translate("Email notifications are configured correctly."))
}

func (m *MailChannel) send(ctx context.Context, subject, body string) error {
	msg := mail.NewMessage()
	msg.SetHeader("From", m.sender)
	msg.SetHeader("To", m.recipient)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	done := make(chan error, 1)
	go func() { done <- m.dialer.DialAndSend(msg) }()

	select {
	case err := <-done:
		if err != nil {
			return errors.Wrapf(err, "could not send email to %s", m.recipient)
		}
		log.Debugf("email sent to %s", m.recipient)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
