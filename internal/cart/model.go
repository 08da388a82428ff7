package cart

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/solar-symphony/internal/pricing"
)

// Item is a stored cart line.
type Item struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Image           string           `json:"image,omitempty"`
	Category        pricing.Category `json:"category"`
	Price           decimal.Decimal  `json:"price"`
	DiscountedPrice *decimal.Decimal `json:"discountedPrice"`
	Quantity        int              `json:"quantity"`
}

// storedItem accepts both the current layout and the older one that carried
// "qty" and display-formatted prices.
type storedItem struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Image           string          `json:"image"`
	Category        string          `json:"category"`
	Price           json.RawMessage `json:"price"`
	DiscountedPrice json.RawMessage `json:"discountedPrice"`
	Quantity        *int            `json:"quantity"`
	Qty             *int            `json:"qty"`
}

// UnmarshalJSON decodes an item, migrating legacy fields.
func (it *Item) UnmarshalJSON(data []byte) error {
	var raw storedItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := Item{ID: raw.ID, Name: raw.Name, Image: raw.Image}

	out.Category = pricing.Category(raw.Category)
	if raw.Category == "" {
		out.Category = pricing.ClassifyCategory(raw.ID)
	}

	switch {
	case raw.Quantity != nil:
		out.Quantity = *raw.Quantity
	case raw.Qty != nil:
		out.Quantity = *raw.Qty
	}
	out.Quantity = pricing.NormalizeQuantity(out.Quantity)

	out.Price = pricing.PriceFromAny(looseValue(raw.Price))
	if v := looseValue(raw.DiscountedPrice); v != nil {
		dp := pricing.PriceFromAny(v)
		out.DiscountedPrice = &dp
	}
	*it = out
	return nil
}

// LineItem converts the stored line into the pricing engine's shape.
func (it Item) LineItem() pricing.LineItem {
	return pricing.LineItem{
		ID:              it.ID,
		Name:            it.Name,
		Category:        it.Category,
		Price:           it.Price,
		DiscountedPrice: it.DiscountedPrice,
		Quantity:        it.Quantity,
	}
}

func lineItems(items []Item) []pricing.LineItem {
	out := make([]pricing.LineItem, 0, len(items))
	for _, it := range items {
		out = append(out, it.LineItem())
	}
	return out
}

// looseValue decodes a raw JSON scalar, keeping numbers as json.Number.
// null and absent values yield nil.
func looseValue(raw json.RawMessage) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

// RawPrice extracts a price from a request field that may be a JSON number
// or a display string. It returns "" when the field is absent, null or blank.
func RawPrice(raw json.RawMessage) string {
	switch v := looseValue(raw).(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// Summary is a priced view of a cart.
type Summary struct {
	Owner                 string          `json:"owner"`
	Items                 []Item          `json:"items"`
	PromoCode             string          `json:"promoCode,omitempty"`
	Totals                pricing.Totals  `json:"totals"`
	FreeShippingRemaining decimal.Decimal `json:"freeShippingRemaining"`
}

// PromoResult reports the outcome of a promo code submission.
type PromoResult struct {
	Applied bool    `json:"applied"`
	Message string  `json:"message"`
	Summary Summary `json:"summary"`
}
