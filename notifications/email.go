package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/linesmerrill/chama-disputes-api/disputes"
	"github.com/linesmerrill/chama-disputes-api/models"
	templates "github.com/linesmerrill/chama-disputes-api/templates/html"
)

const emailSenderName = "Chama Disputes"

type mailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// EmailChannel sends dispute emails through SendGrid
type EmailChannel struct {
	client  mailSender
	from    *mail.Email
	baseURL string
}

// NewEmailChannel creates a SendGrid backed channel. baseURL is the web app
// root used for dispute links.
func NewEmailChannel(apiKey, fromAddress, baseURL string) *EmailChannel {
	return &EmailChannel{
		client:  sendgrid.NewSendClient(apiKey),
		from:    mail.NewEmail(emailSenderName, fromAddress),
		baseURL: baseURL,
	}
}

// Name implements Channel
func (e *EmailChannel) Name() string { return "email" }

// Send emails every contact that has an address. A failed recipient does not
// stop the rest.
func (e *EmailChannel) Send(ctx context.Context, n disputes.Notification, contacts []models.UserContact) error {
	subject, htmlContent, plainText := templates.RenderDisputeEmail(n.Template, n.Payload, e.baseURL)

	var errs []error
	sent := 0
	for _, c := range contacts {
		if c.Email == "" {
			continue
		}
		to := mail.NewEmail(c.Name, c.Email)
		message := mail.NewSingleEmail(e.from, subject, to, plainText, htmlContent)
		response, err := e.client.SendWithContext(ctx, message)
		if err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", c.ID.Hex(), err))
			continue
		}
		if response.StatusCode >= 400 {
			errs = append(errs, fmt.Errorf("send to %s: sendgrid returned status %d", c.ID.Hex(), response.StatusCode))
			continue
		}
		sent++
	}

	zap.S().Debugw("dispute emails sent", "template", n.Template, "sent", sent, "failed", len(errs))
	return errors.Join(errs...)
}
