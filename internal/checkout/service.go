package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/solar-symphony/internal/cart"
	"github.com/noah-isme/solar-symphony/internal/common"
	"github.com/noah-isme/solar-symphony/internal/invoice"
	"github.com/noah-isme/solar-symphony/internal/obs"
	"github.com/noah-isme/solar-symphony/internal/pricing"
)

// Input is the checkout form.
type Input struct {
	FirstName      string `json:"firstName" validate:"required"`
	LastName       string `json:"lastName" validate:"required"`
	Email          string `json:"email" validate:"required,email"`
	TRN            string `json:"trn" validate:"required,trn"`
	DOB            string `json:"dob" validate:"required,adult"`
	Phone          string `json:"phone" validate:"required"`
	Address1       string `json:"address1" validate:"required"`
	Address2       string `json:"address2" validate:"required"`
	PaymentMethod  string `json:"paymentMethod" validate:"required"`
	ShippingMethod string `json:"shippingMethod"`
}

func (in Input) trimmed() Input {
	return Input{
		FirstName:      strings.TrimSpace(in.FirstName),
		LastName:       strings.TrimSpace(in.LastName),
		Email:          strings.TrimSpace(in.Email),
		TRN:            strings.TrimSpace(in.TRN),
		DOB:            strings.TrimSpace(in.DOB),
		Phone:          strings.TrimSpace(in.Phone),
		Address1:       strings.TrimSpace(in.Address1),
		Address2:       strings.TrimSpace(in.Address2),
		PaymentMethod:  strings.TrimSpace(in.PaymentMethod),
		ShippingMethod: strings.TrimSpace(in.ShippingMethod),
	}
}

// Output is returned after a successful checkout.
type Output struct {
	Invoice invoice.Invoice `json:"invoice"`
	Message string          `json:"message"`
}

// ReceiptEnqueuer schedules receipt delivery for an issued invoice.
type ReceiptEnqueuer interface {
	EnqueueInvoiceIssued(ctx context.Context, inv invoice.Invoice) error
}

// ErrEmptyCart is returned when checking out a cart with no lines.
var ErrEmptyCart = &common.AppError{Code: "CART_EMPTY", Message: "your cart is empty", HTTPStatus: http.StatusUnprocessableEntity}

// Service turns a cart into an invoice.
type Service struct {
	Carts    *cart.Service
	Invoices invoice.Store
	Receipts ReceiptEnqueuer
	Engine   *pricing.Engine
	Validate *validator.Validate
	Now      func() time.Time
	Logger   *zerolog.Logger
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) engine() *pricing.Engine {
	if s.Engine != nil {
		return s.Engine
	}
	if s.Carts != nil && s.Carts.Engine != nil {
		return s.Carts.Engine
	}
	return defaultEngine
}

var defaultEngine = pricing.Default()

// Checkout validates in, prices the owner's cart with its stored promo code,
// saves the invoice, empties the cart and schedules the receipt email.
func (s *Service) Checkout(ctx context.Context, userID string, in Input) (Output, error) {
	if s == nil || s.Carts == nil || s.Invoices == nil {
		return Output{}, errors.New("checkout service not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return Output{}, &common.AppError{Code: "UNAUTHORIZED", Message: "please log in to check out", HTTPStatus: http.StatusUnauthorized}
	}
	ctx, span := otel.Tracer("solar-symphony/checkout").Start(ctx, "checkout.Checkout")
	defer span.End()

	in = in.trimmed()
	v := s.Validate
	if v == nil {
		v = NewValidator(s.now)
	}
	if err := v.Struct(in); err != nil {
		span.SetAttributes(attribute.String("checkout.result", "invalid"))
		obs.IncCheckout("invalid")
		return Output{}, validationError(err)
	}

	var issued invoice.Invoice
	err := s.Carts.Drain(ctx, cart.UserOwner(userID), func(ctx context.Context, items []cart.Item, promo string) error {
		if len(items) == 0 {
			return ErrEmptyCart
		}
		issued = s.buildInvoice(userID, in, items, promo)
		if err := s.Invoices.Save(ctx, issued); err != nil {
			return fmt.Errorf("save invoice: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrEmptyCart) {
			obs.IncCheckout("empty")
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, "checkout failed")
			obs.IncCheckout("error")
		}
		return Output{}, err
	}

	span.SetAttributes(
		attribute.String("checkout.result", "success"),
		attribute.String("invoice.id", issued.ID),
		attribute.Int("invoice.items", issued.Totals.TotalItems),
	)
	obs.IncCheckout("success")
	obs.ObserveInvoiceIssued(issued.Totals.Total.InexactFloat64())
	if s.Receipts != nil {
		if err := s.Receipts.EnqueueInvoiceIssued(ctx, issued); err != nil {
			s.log().Error().Err(err).Str("invoice_id", issued.ID).Msg("enqueue receipt")
		}
	}
	return Output{
		Invoice: issued,
		Message: fmt.Sprintf("Purchase successful! Invoice #%s has been created.", issued.InvoiceNo),
	}, nil
}

func (s *Service) buildInvoice(owner string, in Input, items []cart.Item, promo string) invoice.Invoice {
	lines := make([]pricing.LineItem, 0, len(items))
	for _, it := range items {
		lines = append(lines, it.LineItem())
	}
	eng := s.engine()
	totals := eng.ComputeTotals(lines, in.ShippingMethod, promo)

	var applied *string
	if totals.ValidPromoCode != "" {
		code := totals.ValidPromoCode
		applied = &code
	}
	now := s.now()
	return invoice.Invoice{
		ID:        invoice.NewID(now),
		InvoiceNo: invoice.NewNumber(),
		Owner:     owner,
		Customer: invoice.Customer{
			Name:    in.FirstName + " " + in.LastName,
			Email:   in.Email,
			TRN:     in.TRN,
			DOB:     in.DOB,
			Phone:   in.Phone,
			Address: in.Address1 + ", " + in.Address2,
		},
		PaymentMethod:    in.PaymentMethod,
		ShippingMethod:   totals.ShippingMethod,
		AppliedPromoCode: applied,
		Items:            pricing.Sanitize(lines),
		Totals:           totals,
		Date:             now.Format(invoice.DateLayout),
		CreatedAt:        now.UTC(),
	}
}

func (s *Service) log() *zerolog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	nop := zerolog.Nop()
	return &nop
}
