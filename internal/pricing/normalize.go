package pricing

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"

	"github.com/shopspring/decimal"
)

var nonNumeric = regexp.MustCompile(`[^0-9.\-]+`)

// ParsePrice converts display strings such as "$25,000.00" into a decimal.
// Unparsable input yields zero.
func ParsePrice(value string) decimal.Decimal {
	cleaned := nonNumeric.ReplaceAllString(value, "")
	if cleaned == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// PriceFromFloat converts a float price, mapping NaN and infinities to zero.
func PriceFromFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

// PriceFromAny coerces a decoded JSON value (string, number or nil) into a price.
func PriceFromAny(v any) decimal.Decimal {
	switch p := v.(type) {
	case nil:
		return decimal.Zero
	case string:
		return ParsePrice(p)
	case float64:
		return PriceFromFloat(p)
	case float32:
		return PriceFromFloat(float64(p))
	case int:
		return decimal.NewFromInt(int64(p))
	case int64:
		return decimal.NewFromInt(p)
	case json.Number:
		return ParsePrice(p.String())
	case decimal.Decimal:
		return p
	default:
		return decimal.Zero
	}
}

// QuantityFromAny coerces a decoded JSON value into a quantity of at least one.
func QuantityFromAny(v any) int {
	switch q := v.(type) {
	case float64:
		if math.IsNaN(q) || math.IsInf(q, 0) {
			return 1
		}
		return NormalizeQuantity(int(q))
	case int:
		return NormalizeQuantity(q)
	case int64:
		return NormalizeQuantity(int(q))
	case json.Number:
		n, err := q.Int64()
		if err != nil {
			return 1
		}
		return NormalizeQuantity(int(n))
	case string:
		n, err := strconv.Atoi(q)
		if err != nil {
			return 1
		}
		return NormalizeQuantity(n)
	default:
		return 1
	}
}

// NormalizeQuantity clamps q to a minimum of one.
func NormalizeQuantity(q int) int {
	if q < 1 {
		return 1
	}
	return q
}

// Sanitize returns a copy of items safe for pricing: quantities are at least
// one, negative prices become zero, and a discounted price that is negative or
// above the list price is dropped.
func Sanitize(items []LineItem) []LineItem {
	out := make([]LineItem, 0, len(items))
	for _, it := range items {
		clean := it
		clean.Quantity = NormalizeQuantity(it.Quantity)
		if clean.Price.IsNegative() {
			clean.Price = decimal.Zero
		}
		if it.DiscountedPrice != nil {
			dp := *it.DiscountedPrice
			if dp.IsNegative() || dp.GreaterThan(clean.Price) {
				clean.DiscountedPrice = nil
			} else {
				clean.DiscountedPrice = &dp
			}
		}
		out = append(out, clean)
	}
	return out
}
