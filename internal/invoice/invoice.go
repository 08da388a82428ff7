package invoice

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/solar-symphony/internal/pricing"
)

// ErrNotFound is returned when an invoice does not exist for the owner.
var ErrNotFound = errors.New("invoice not found")

// DateLayout is the calendar date format stamped on invoices.
const DateLayout = "2006-01-02"

// Customer holds the billing details captured at checkout.
type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	TRN     string `json:"trn"`
	DOB     string `json:"dob"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// Invoice is an immutable snapshot of a completed checkout.
type Invoice struct {
	ID               string             `json:"id"`
	InvoiceNo        string             `json:"invoiceNo"`
	Owner            string             `json:"owner"`
	Customer         Customer           `json:"customer"`
	PaymentMethod    string             `json:"paymentMethod"`
	ShippingMethod   string             `json:"shippingMethod"`
	AppliedPromoCode *string            `json:"appliedPromoCode"`
	Items            []pricing.LineItem `json:"cart"`
	Totals           pricing.Totals     `json:"totals"`
	Date             string             `json:"date"`
	CreatedAt        time.Time          `json:"createdAt"`
}

// Store persists invoices per owner.
type Store interface {
	Save(ctx context.Context, inv Invoice) error
	// List returns the owner's invoices, newest first.
	List(ctx context.Context, owner string) ([]Invoice, error)
	Get(ctx context.Context, owner, id string) (Invoice, error)
	Latest(ctx context.Context, owner string) (Invoice, error)
	Clear(ctx context.Context, owner string) error
}

// NewID builds an identifier of the form INV-<unix millis>-<9 random chars>.
func NewID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("INV-%d-%s", now.UnixMilli(), suffix)
}

// NewNumber returns a display number SOLAR-NNNN with NNNN in [1000, 9999].
func NewNumber() string {
	return fmt.Sprintf("SOLAR-%d", 1000+rand.IntN(9000))
}

func validate(inv Invoice) error {
	if strings.TrimSpace(inv.ID) == "" || strings.TrimSpace(inv.Owner) == "" {
		return errors.New("invoice id and owner are required")
	}
	return nil
}
