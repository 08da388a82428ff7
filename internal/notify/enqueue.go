package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/solar-symphony/internal/invoice"
	"github.com/noah-isme/solar-symphony/internal/resilience"
)

// TypeInvoiceIssued is the asynq task type for receipt delivery.
const TypeInvoiceIssued = "invoice:issued"

// InvoiceIssuedPayload identifies the invoice whose receipt should be sent.
type InvoiceIssuedPayload struct {
	InvoiceID string `json:"invoiceId"`
	Owner     string `json:"owner"`
	Email     string `json:"email"`
}

// NewInvoiceIssuedTask encodes payload as an asynq task.
func NewInvoiceIssuedTask(p InvoiceIssuedPayload) (*asynq.Task, error) {
	if strings.TrimSpace(p.InvoiceID) == "" || strings.TrimSpace(p.Owner) == "" {
		return nil, errors.New("notify: invoice id and owner are required")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeInvoiceIssued, body), nil
}

// TaskClient is the subset of *asynq.Client used by Enqueuer.
type TaskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer publishes receipt tasks for the worker.
type Enqueuer struct {
	Client    TaskClient
	Queue     string
	MaxRetry  int
	Retention time.Duration
	// Breaker, when set, fails fast while the queue is unreachable.
	Breaker *resilience.Breaker
}

// EnqueueInvoiceIssued schedules receipt delivery for inv. The invoice id is
// the task id, so enqueueing the same invoice twice is a no-op.
func (e Enqueuer) EnqueueInvoiceIssued(ctx context.Context, inv invoice.Invoice) error {
	if e.Client == nil {
		return nil
	}
	task, err := NewInvoiceIssuedTask(InvoiceIssuedPayload{
		InvoiceID: inv.ID,
		Owner:     inv.Owner,
		Email:     inv.Customer.Email,
	})
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.TaskID(inv.ID)}
	if e.Queue != "" {
		opts = append(opts, asynq.Queue(e.Queue))
	}
	maxRetry := e.MaxRetry
	if maxRetry <= 0 {
		maxRetry = 6
	}
	opts = append(opts, asynq.MaxRetry(maxRetry))
	if e.Retention > 0 {
		opts = append(opts, asynq.Retention(e.Retention))
	}
	err = e.Breaker.Do(ctx, func(ctx context.Context) error {
		_, err := e.Client.EnqueueContext(ctx, task, opts...)
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("enqueue receipt: %w", err)
	}
	return nil
}
