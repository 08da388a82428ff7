package checkout

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/solar-symphony/internal/cart"
	"github.com/noah-isme/solar-symphony/internal/common"
	"github.com/noah-isme/solar-symphony/internal/invoice"
	"github.com/noah-isme/solar-symphony/internal/lock"
	"github.com/noah-isme/solar-symphony/internal/pricing"
)

var fixedNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

type recordingReceipts struct {
	issued []invoice.Invoice
	err    error
}

func (r *recordingReceipts) EnqueueInvoiceIssued(_ context.Context, inv invoice.Invoice) error {
	r.issued = append(r.issued, inv)
	return r.err
}

type fixture struct {
	svc      *Service
	carts    *cart.Service
	invoices *invoice.RedisStore
	receipts *recordingReceipts
	mr       *miniredis.Miniredis
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	carts := &cart.Service{
		Store:  &cart.Store{R: client},
		Locker: lock.Locker{R: client, Prefix: "lock:cart:", RetryBackoff: time.Millisecond},
		Engine: pricing.Default(),
	}
	invoices := invoice.NewRedisStore(client)
	receipts := &recordingReceipts{}
	now := func() time.Time { return fixedNow }
	return fixture{
		svc: &Service{
			Carts:    carts,
			Invoices: invoices,
			Receipts: receipts,
			Validate: NewValidator(now),
			Now:      now,
		},
		carts:    carts,
		invoices: invoices,
		receipts: receipts,
		mr:       mr,
	}
}

func validInput() Input {
	return Input{
		FirstName:      " Ada ",
		LastName:       "Lovelace",
		Email:          "ada@example.com",
		TRN:            "123456789",
		DOB:            "1990-02-01",
		Phone:          "876-555-0100",
		Address1:       "1 Sun Way",
		Address2:       "Kingston",
		PaymentMethod:  "card",
		ShippingMethod: "express",
	}
}

func TestAgeOn(t *testing.T) {
	dob := time.Date(2008, 6, 15, 0, 0, 0, 0, time.UTC)
	require.Equal(t, 18, AgeOn(dob, fixedNow))
	require.Equal(t, 17, AgeOn(dob, fixedNow.AddDate(0, 0, -1)))
	require.Equal(t, 17, AgeOn(time.Date(2008, 6, 16, 0, 0, 0, 0, time.UTC), fixedNow))
}

func TestValidationFailures(t *testing.T) {
	f := newFixture(t)
	cases := map[string]func(*Input){
		"trn":       func(in *Input) { in.TRN = "12345678" },
		"dob":       func(in *Input) { in.DOB = "2008-06-16" },
		"email":     func(in *Input) { in.Email = "not-an-email" },
		"address2":  func(in *Input) { in.Address2 = "   " },
		"firstName": func(in *Input) { in.FirstName = "" },
	}
	for field, mutate := range cases {
		in := validInput()
		mutate(&in)
		_, err := f.svc.Checkout(context.Background(), "user-1", in)
		var appErr *common.AppError
		require.True(t, errors.As(err, &appErr), field)
		require.Equal(t, "VALIDATION_ERROR", appErr.Code)
		details, ok := appErr.Details.(map[string]string)
		require.True(t, ok)
		require.Contains(t, details, field)
	}
}

func TestDOBMustBeISODate(t *testing.T) {
	f := newFixture(t)
	in := validInput()
	in.DOB = "01/02/1990"
	_, err := f.svc.Checkout(context.Background(), "user-1", in)
	require.Error(t, err)
}

func TestCheckoutRequiresUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Checkout(context.Background(), "", validInput())
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusUnauthorized, appErr.HTTPStatus)
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Checkout(context.Background(), "user-1", validInput())
	require.ErrorIs(t, err, ErrEmptyCart)
	require.Empty(t, f.receipts.issued)
}

func TestCheckoutIssuesInvoiceAndClearsCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.carts.Add(ctx, cart.UserOwner("user-1"), cart.AddInput{ID: "inst-1", Name: "Installation", Price: "$25,000.00", Quantity: 1})
	require.NoError(t, err)
	_, err = f.carts.ApplyPromo(ctx, cart.UserOwner("user-1"), "SUNNY25", "")
	require.NoError(t, err)

	out, err := f.svc.Checkout(ctx, "user-1", validInput())
	require.NoError(t, err)

	inv := out.Invoice
	require.Regexp(t, `^INV-\d+-[0-9a-f]{9}$`, inv.ID)
	require.Regexp(t, `^SOLAR-\d{4}$`, inv.InvoiceNo)
	require.Equal(t, "Ada Lovelace", inv.Customer.Name)
	require.Equal(t, "1 Sun Way, Kingston", inv.Customer.Address)
	require.Equal(t, "express", inv.ShippingMethod)
	require.NotNil(t, inv.AppliedPromoCode)
	require.Equal(t, "SUNNY25", *inv.AppliedPromoCode)
	require.Equal(t, "2026-06-15", inv.Date)
	require.True(t, inv.Totals.Shipping.Equal(decimal.NewFromInt(10000)))
	require.True(t, inv.Totals.Total.Equal(decimal.RequireFromString("29406.25")), inv.Totals.Total.String())
	require.Equal(t, "Purchase successful! Invoice #"+inv.InvoiceNo+" has been created.", out.Message)

	saved, err := f.invoices.Latest(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, inv.ID, saved.ID)

	items, err := f.carts.Items(ctx, cart.UserOwner("user-1"))
	require.NoError(t, err)
	require.Empty(t, items)
	require.False(t, f.mr.Exists("cart:user:user-1:promo"))

	require.Len(t, f.receipts.issued, 1)
	require.Equal(t, inv.ID, f.receipts.issued[0].ID)
}

func TestCheckoutSurvivesEnqueueFailure(t *testing.T) {
	f := newFixture(t)
	f.receipts.err = errors.New("queue down")
	ctx := context.Background()
	_, err := f.carts.Add(ctx, cart.UserOwner("user-1"), cart.AddInput{ID: "x1", Name: "Panel", Price: "100"})
	require.NoError(t, err)

	_, err = f.svc.Checkout(ctx, "user-1", validInput())
	require.NoError(t, err)
	list, err := f.invoices.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestCheckoutHandler(t *testing.T) {
	f := newFixture(t)
	h := &Handler{Svc: f.svc}
	body := `{"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com","trn":"123456789","dob":"1990-02-01","phone":"1","address1":"a","address2":"b","paymentMethod":"card"}`

	rec := httptest.NewRecorder()
	h.Checkout(rec, httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	_, err := f.carts.Add(context.Background(), cart.UserOwner("user-1"), cart.AddInput{ID: "x1", Name: "Panel", Price: "100"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body))
	req = req.WithContext(common.WithUserID(req.Context(), "user-1"))
	rec = httptest.NewRecorder()
	h.Checkout(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"shippingMethod":"standard"`)

	req = httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body))
	req = req.WithContext(common.WithUserID(req.Context(), "user-1"))
	rec = httptest.NewRecorder()
	h.Checkout(rec, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "CART_EMPTY")
}
