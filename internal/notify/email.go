package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/solar-symphony/internal/common"
	"github.com/noah-isme/solar-symphony/internal/invoice"
	"github.com/noah-isme/solar-symphony/internal/resilience"
)

func receiptSubject(inv invoice.Invoice) string {
	return fmt.Sprintf("Your Solar Symphony receipt %s", inv.InvoiceNo)
}

func receiptBody(inv invoice.Invoice) string {
	var b strings.Builder
	name := strings.TrimSpace(inv.Customer.Name)
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "Hi %s,\n\n", name)
	fmt.Fprintf(&b, "Thanks for your order. Invoice #%s totals %s.\n\n", inv.InvoiceNo, invoice.FormatMoney(inv.Totals.Total))
	b.WriteString(invoice.RenderReceipt(inv))
	return b.String()
}

// LogMailer writes outgoing mail to the structured log instead of an SMTP relay.
type LogMailer struct {
	From   string
	Logger zerolog.Logger
}

// Send implements common.EmailSender.
func (m LogMailer) Send(to, subject, body string) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("mail: recipient is required")
	}
	m.Logger.Info().
		Str("from", m.From).
		Str("to", to).
		Str("subject", subject).
		Int("body_bytes", len(body)).
		Msg("email dispatched")
	return nil
}

// GuardedMailer stops calling Mail while its breaker is open so a failing
// relay pushes tasks back onto the retry schedule without waiting on timeouts.
type GuardedMailer struct {
	Mail    common.EmailSender
	Breaker *resilience.Breaker
}

// Send implements common.EmailSender.
func (g GuardedMailer) Send(to, subject, body string) error {
	return g.Breaker.Do(context.Background(), func(context.Context) error {
		return g.Mail.Send(to, subject, body)
	})
}
