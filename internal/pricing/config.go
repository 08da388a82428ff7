package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Category keys product-level discounts.
type Category string

const (
	CategoryInstallation    Category = "Installation"
	CategoryPolycrystalline Category = "Polycrystalline"
	CategoryMonocrystalline Category = "Monocrystalline"
	CategoryGeneral         Category = "General"
)

// Shipping tiers offered at checkout.
const (
	ShippingStandard = "standard"
	ShippingExpress  = "express"
	ShippingFree     = "free"
)

// Config describes the discount, shipping, promo and tax tables used by an Engine.
// An Engine copies the tables on construction; later changes to a Config value
// do not affect engines already built from it.
type Config struct {
	CategoryRates         map[Category]decimal.Decimal
	ShippingFees          map[string]decimal.Decimal
	DefaultShipping       string
	PromoRates            map[string]decimal.Decimal
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
}

// DefaultConfig returns the storefront's fixed pricing table.
func DefaultConfig() Config {
	return Config{
		CategoryRates: map[Category]decimal.Decimal{
			CategoryInstallation:    decimal.RequireFromString("0.10"),
			CategoryPolycrystalline: decimal.RequireFromString("0.05"),
		},
		ShippingFees: map[string]decimal.Decimal{
			ShippingStandard: decimal.NewFromInt(5000),
			ShippingExpress:  decimal.NewFromInt(10000),
			ShippingFree:     decimal.Zero,
		},
		DefaultShipping: ShippingStandard,
		PromoRates: map[string]decimal.Decimal{
			"SOLAR10": decimal.RequireFromString("0.10"),
			"SUNNY25": decimal.RequireFromString("0.25"),
			"GREEN50": decimal.RequireFromString("0.50"),
		},
		TaxRate:               decimal.RequireFromString("0.15"),
		FreeShippingThreshold: decimal.NewFromInt(100000),
	}
}

var one = decimal.NewFromInt(1)

func (c Config) validate() error {
	for cat, rate := range c.CategoryRates {
		if rate.IsNegative() || rate.GreaterThan(one) {
			return fmt.Errorf("category %q rate out of range: %s", cat, rate)
		}
	}
	for code, rate := range c.PromoRates {
		if strings.TrimSpace(code) == "" {
			return errors.New("promo code must not be blank")
		}
		if rate.IsNegative() || rate.GreaterThan(one) {
			return fmt.Errorf("promo %q rate out of range: %s", code, rate)
		}
	}
	for method, fee := range c.ShippingFees {
		if fee.IsNegative() {
			return fmt.Errorf("shipping %q fee is negative", method)
		}
	}
	if _, ok := c.ShippingFees[c.DefaultShipping]; !ok {
		return fmt.Errorf("default shipping %q has no fee", c.DefaultShipping)
	}
	if c.TaxRate.IsNegative() {
		return errors.New("tax rate is negative")
	}
	if c.FreeShippingThreshold.IsNegative() {
		return errors.New("free shipping threshold is negative")
	}
	return nil
}
