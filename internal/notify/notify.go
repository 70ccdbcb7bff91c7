// Package notify sends users mail about finished background work. Delivery
// is a side channel: senders return their error for logging, but callers
// never propagate it into the work's own outcome. A lost mail must not fail
// a parsed network.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/mailgun/mailgun-go/v4"

	"github.com/bel-commons/bel-commons/pkg/logger"
)

// Notification is one message to a user.
type Notification struct {
	Recipient string
	Subject   string
	Body      string
}

// Notifier delivers notifications. Implementations return delivery errors
// so the caller can log them; the caller must not let them change control
// flow.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// Dispatch sends on a best effort basis and logs the outcome. This is the
// only place notification errors go.
func Dispatch(ctx context.Context, notifier Notifier, n Notification) {
	if notifier == nil || n.Recipient == "" {
		return
	}
	if err := notifier.Send(ctx, n); err != nil {
		logger.Warn("[Notify] Delivery failed", "recipient", n.Recipient, "subject", n.Subject, "error", err)
		return
	}
	logger.Debug("[Notify] Delivered", "recipient", n.Recipient, "subject", n.Subject)
}

// MailgunNotifier sends mail through Mailgun.
type MailgunNotifier struct {
	client *mailgun.MailgunImpl
	sender string
}

// NewMailgunNotifier returns a notifier over the given Mailgun domain.
func NewMailgunNotifier(domain, apiKey, sender string) *MailgunNotifier {
	return &MailgunNotifier{
		client: mailgun.NewMailgun(domain, apiKey),
		sender: sender,
	}
}

func (m *MailgunNotifier) Send(ctx context.Context, n Notification) error {
	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	message := m.client.NewMessage(m.sender, n.Subject, n.Body, n.Recipient)
	_, _, err := m.client.Send(sendCtx, message)
	if err != nil {
		return fmt.Errorf("mailgun send: %w", err)
	}
	return nil
}

// LogNotifier writes notifications to the log. Used when no Mailgun
// credentials are configured.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, n Notification) error {
	logger.Info("[Notify] "+n.Subject, "recipient", n.Recipient, "body", n.Body)
	return nil
}
