package pricing

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// LineItem describes a cart line used for pricing calculation.
type LineItem struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Category        Category         `json:"category"`
	Price           decimal.Decimal  `json:"price"`
	DiscountedPrice *decimal.Decimal `json:"discountedPrice"`
	Quantity        int              `json:"quantity"`
}

// UnitPrice returns the price charged per unit: the discounted price when present.
func (it LineItem) UnitPrice() decimal.Decimal {
	if it.DiscountedPrice != nil {
		return *it.DiscountedPrice
	}
	return it.Price
}

// LineTotal returns UnitPrice multiplied by Quantity.
func (it LineItem) LineTotal() decimal.Decimal {
	return it.UnitPrice().Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// Totals aggregates computed pricing components. Monetary fields are rounded to cents.
type Totals struct {
	TotalItems           int             `json:"totalItems"`
	SubTotal             decimal.Decimal `json:"subTotal"`
	ProductDiscount      decimal.Decimal `json:"productDiscount"`
	PromoDiscount        decimal.Decimal `json:"promoDiscount"`
	TotalDiscount        decimal.Decimal `json:"totalDiscount"`
	Shipping             decimal.Decimal `json:"shipping"`
	Taxes                decimal.Decimal `json:"taxes"`
	Total                decimal.Decimal `json:"total"`
	ValidPromoCode       string          `json:"validPromoCode"`
	ShippingMethod       string          `json:"shippingMethod"`
	FreeShippingEligible bool            `json:"freeShippingEligible"`
}

// Engine computes cart totals from an immutable pricing table. It holds no
// per-call state and is safe for concurrent use.
type Engine struct {
	categoryRates   map[Category]decimal.Decimal
	shippingFees    map[string]decimal.Decimal
	defaultShipping string
	promoRates      map[string]decimal.Decimal
	taxRate         decimal.Decimal
	threshold       decimal.Decimal
}

// NewEngine validates cfg and builds an Engine from a private copy of its tables.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		categoryRates:   make(map[Category]decimal.Decimal, len(cfg.CategoryRates)),
		shippingFees:    make(map[string]decimal.Decimal, len(cfg.ShippingFees)),
		defaultShipping: cfg.DefaultShipping,
		promoRates:      make(map[string]decimal.Decimal, len(cfg.PromoRates)),
		taxRate:         cfg.TaxRate,
		threshold:       cfg.FreeShippingThreshold,
	}
	for k, v := range cfg.CategoryRates {
		e.categoryRates[k] = v
	}
	for k, v := range cfg.ShippingFees {
		e.shippingFees[k] = v
	}
	for k, v := range cfg.PromoRates {
		e.promoRates[normalizePromo(k)] = v
	}
	return e, nil
}

// Default returns an Engine built from DefaultConfig.
func Default() *Engine {
	e, err := NewEngine(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return e
}

// ClassifyCategory maps a product identifier to its category by prefix.
func ClassifyCategory(id string) Category {
	switch {
	case strings.HasPrefix(id, "inst"):
		return CategoryInstallation
	case strings.HasPrefix(id, "y"):
		return CategoryPolycrystalline
	case strings.HasPrefix(id, "x"):
		return CategoryMonocrystalline
	default:
		return CategoryGeneral
	}
}

// DiscountRate reports the product discount configured for category.
func (e *Engine) DiscountRate(category Category) (decimal.Decimal, bool) {
	rate, ok := e.categoryRates[category]
	return rate, ok
}

// ApplyCategoryDiscount returns the discounted unit price for category, or nil
// when the category carries no discount.
func (e *Engine) ApplyCategoryDiscount(price decimal.Decimal, category Category) *decimal.Decimal {
	rate, ok := e.categoryRates[category]
	if !ok {
		return nil
	}
	discounted := round2(price.Mul(one.Sub(rate)))
	return &discounted
}

// PromoRate looks up a promo code case-insensitively.
func (e *Engine) PromoRate(code string) (decimal.Decimal, bool) {
	rate, ok := e.promoRates[normalizePromo(code)]
	return rate, ok
}

// PromoCodes lists the recognised promo codes in lexical order.
func (e *Engine) PromoCodes() []string {
	codes := make([]string, 0, len(e.promoRates))
	for code := range e.promoRates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// ShippingFee returns the fee for method and the method actually charged.
// Unknown methods fall back to the default tier.
func (e *Engine) ShippingFee(method string) (decimal.Decimal, string) {
	if fee, ok := e.shippingFees[method]; ok {
		return fee, method
	}
	return e.shippingFees[e.defaultShipping], e.defaultShipping
}

// FreeShippingThreshold returns the subtotal at which shipping becomes free.
func (e *Engine) FreeShippingThreshold() decimal.Decimal {
	return e.threshold
}

// FreeShippingRemaining returns how much more must be spent to qualify for free shipping.
func (e *Engine) FreeShippingRemaining(subTotal decimal.Decimal) decimal.Decimal {
	remaining := e.threshold.Sub(subTotal)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return round2(remaining)
}

// ComputeTotals prices items for the given shipping method and promo code.
// items is never modified.
func (e *Engine) ComputeTotals(items []LineItem, shippingMethod, promoCode string) Totals {
	lines := Sanitize(items)

	var totalItems int
	subTotal := decimal.Zero
	productDiscount := decimal.Zero
	for _, it := range lines {
		qty := decimal.NewFromInt(int64(it.Quantity))
		totalItems += it.Quantity
		subTotal = subTotal.Add(it.UnitPrice().Mul(qty))
		if it.DiscountedPrice != nil {
			productDiscount = productDiscount.Add(it.Price.Sub(*it.DiscountedPrice).Mul(qty))
		}
	}

	fee, method := e.ShippingFee(shippingMethod)
	shipping := decimal.Zero
	if subTotal.LessThan(e.threshold) {
		shipping = fee
	}

	promoDiscount := decimal.Zero
	validPromo := ""
	if rate, ok := e.PromoRate(promoCode); ok {
		promoDiscount = subTotal.Mul(rate)
		validPromo = normalizePromo(promoCode)
	}

	taxable := subTotal.Sub(promoDiscount)
	if taxable.IsNegative() {
		taxable = decimal.Zero
	}
	taxes := taxable.Mul(e.taxRate)
	total := subTotal.Add(shipping).Add(taxes).Sub(promoDiscount)

	return Totals{
		TotalItems:           totalItems,
		SubTotal:             round2(subTotal),
		ProductDiscount:      round2(productDiscount),
		PromoDiscount:        round2(promoDiscount),
		TotalDiscount:        round2(productDiscount.Add(promoDiscount)),
		Shipping:             round2(shipping),
		Taxes:                round2(taxes),
		Total:                round2(total),
		ValidPromoCode:       validPromo,
		ShippingMethod:       method,
		FreeShippingEligible: subTotal.GreaterThanOrEqual(e.threshold),
	}
}

// normalizePromo upper-cases code and also drops surrounding whitespace, so
// " solar10 " pasted from an email matches SOLAR10.
func normalizePromo(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// round2 rounds half away from zero at the cent boundary.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
