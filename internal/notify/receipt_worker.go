package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/solar-symphony/internal/common"
	"github.com/noah-isme/solar-symphony/internal/invoice"
	"github.com/noah-isme/solar-symphony/internal/obs"
)

// ReceiptWorker delivers receipt emails for issued invoices.
type ReceiptWorker struct {
	Store     invoice.Store
	Mail      common.EmailSender
	Replay    ReplayProtector
	ReplayTTL time.Duration
	Logger    *zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (w ReceiptWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if w.Store == nil || w.Mail == nil {
		return errors.New("receipt worker: not configured")
	}
	var p InvoiceIssuedPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode payload: %w: %w", err, asynq.SkipRetry)
	}
	if strings.TrimSpace(p.InvoiceID) == "" || strings.TrimSpace(p.Owner) == "" {
		return fmt.Errorf("empty invoice reference: %w", asynq.SkipRetry)
	}

	inv, err := w.Store.Get(ctx, p.Owner, p.InvoiceID)
	if err != nil {
		if errors.Is(err, invoice.ErrNotFound) {
			w.log().Warn().Str("invoice_id", p.InvoiceID).Msg("receipt for unknown invoice dropped")
			return nil
		}
		return err
	}
	to := strings.TrimSpace(p.Email)
	if to == "" {
		to = strings.TrimSpace(inv.Customer.Email)
	}
	if to == "" {
		return nil
	}

	key := "notify:receipt:" + inv.ID
	if w.Replay != nil {
		ttl := w.ReplayTTL
		if ttl <= 0 {
			ttl = 7 * 24 * time.Hour
		}
		ok, err := w.Replay.Acquire(ctx, key, ttl)
		if err != nil {
			return err
		}
		if !ok {
			obs.IncReceiptEmail("duplicate")
			return nil
		}
	}
	if err := w.Mail.Send(to, receiptSubject(inv), receiptBody(inv)); err != nil {
		if w.Replay != nil {
			_ = w.Replay.Release(ctx, key)
		}
		obs.IncReceiptEmail("failed")
		return fmt.Errorf("send receipt: %w", err)
	}
	obs.IncReceiptEmail("sent")
	w.log().Info().Str("invoice_id", inv.ID).Str("invoice_no", inv.InvoiceNo).Msg("receipt sent")
	return nil
}

func (w ReceiptWorker) log() *zerolog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	nop := zerolog.Nop()
	return &nop
}
