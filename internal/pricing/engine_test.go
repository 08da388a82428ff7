package pricing

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func requireMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, got.Equal(money(want)), "expected %s, got %s", want, got)
}

func item(id string, price string, qty int) LineItem {
	e := Default()
	cat := ClassifyCategory(id)
	p := money(price)
	return LineItem{ID: id, Name: id, Category: cat, Price: p, DiscountedPrice: e.ApplyCategoryDiscount(p, cat), Quantity: qty}
}

func TestClassifyCategory(t *testing.T) {
	cases := map[string]Category{
		"inst-roof":  CategoryInstallation,
		"y200":       CategoryPolycrystalline,
		"x450":       CategoryMonocrystalline,
		"battery-1":  CategoryGeneral,
		"Inst-upper": CategoryGeneral,
		"":           CategoryGeneral,
		"yinst":      CategoryPolycrystalline,
	}
	for id, want := range cases {
		require.Equal(t, want, ClassifyCategory(id), "id %q", id)
	}
}

func TestApplyCategoryDiscount(t *testing.T) {
	e := Default()

	got := e.ApplyCategoryDiscount(money("1000"), CategoryInstallation)
	require.NotNil(t, got)
	requireMoney(t, "900.00", *got)

	got = e.ApplyCategoryDiscount(money("10.01"), CategoryPolycrystalline)
	require.NotNil(t, got)
	requireMoney(t, "9.51", *got)

	// 0.05 * 0.9 = 0.045 sits exactly on the half-cent boundary.
	got = e.ApplyCategoryDiscount(money("0.05"), CategoryInstallation)
	require.NotNil(t, got)
	requireMoney(t, "0.05", *got)

	require.Nil(t, e.ApplyCategoryDiscount(money("1000"), CategoryMonocrystalline))
	require.Nil(t, e.ApplyCategoryDiscount(money("1000"), CategoryGeneral))
}

func TestComputeTotalsScenarioA(t *testing.T) {
	cart := []LineItem{{ID: "battery", Category: CategoryGeneral, Price: money("1000"), Quantity: 2}}
	totals := Default().ComputeTotals(cart, ShippingStandard, "")

	require.Equal(t, 2, totals.TotalItems)
	requireMoney(t, "2000", totals.SubTotal)
	requireMoney(t, "5000", totals.Shipping)
	requireMoney(t, "300", totals.Taxes)
	requireMoney(t, "7300", totals.Total)
	requireMoney(t, "0", totals.TotalDiscount)
	require.Empty(t, totals.ValidPromoCode)
	require.False(t, totals.FreeShippingEligible)
	require.Equal(t, ShippingStandard, totals.ShippingMethod)
}

func TestComputeTotalsScenarioBFreeShipping(t *testing.T) {
	cart := []LineItem{{ID: "battery", Category: CategoryGeneral, Price: money("60000"), Quantity: 2}}
	totals := Default().ComputeTotals(cart, ShippingExpress, "")

	requireMoney(t, "120000", totals.SubTotal)
	requireMoney(t, "0", totals.Shipping)
	require.True(t, totals.FreeShippingEligible)
	requireMoney(t, "138000", totals.Total)
}

func TestComputeTotalsScenarioCCategoryDiscount(t *testing.T) {
	cart := []LineItem{item("inst-basic", "1000", 1)}
	require.NotNil(t, cart[0].DiscountedPrice)
	requireMoney(t, "900.00", *cart[0].DiscountedPrice)

	totals := Default().ComputeTotals(cart, ShippingStandard, "")
	requireMoney(t, "900", totals.SubTotal)
	requireMoney(t, "100", totals.ProductDiscount)
	requireMoney(t, "100", totals.TotalDiscount)
	requireMoney(t, "135", totals.Taxes)
}

func TestComputeTotalsScenarioDPromo(t *testing.T) {
	cart := []LineItem{{ID: "battery", Category: CategoryGeneral, Price: money("1000"), Quantity: 1}}
	totals := Default().ComputeTotals(cart, ShippingStandard, "GREEN50")

	requireMoney(t, "500", totals.PromoDiscount)
	requireMoney(t, "75", totals.Taxes)
	requireMoney(t, "5575", totals.Total)
	require.Equal(t, "GREEN50", totals.ValidPromoCode)
}

func TestComputeTotalsThresholdBoundary(t *testing.T) {
	cart := []LineItem{{ID: "battery", Category: CategoryGeneral, Price: money("100000"), Quantity: 1}}
	totals := Default().ComputeTotals(cart, ShippingExpress, "")
	requireMoney(t, "0", totals.Shipping)
	require.True(t, totals.FreeShippingEligible)

	cart[0].Price = money("99999.99")
	totals = Default().ComputeTotals(cart, ShippingExpress, "")
	requireMoney(t, "10000", totals.Shipping)
	require.False(t, totals.FreeShippingEligible)
}

func TestComputeTotalsPromoCaseInsensitive(t *testing.T) {
	cart := []LineItem{item("x450", "2500", 3), item("y200", "1200", 1)}
	e := Default()

	lower := e.ComputeTotals(cart, ShippingStandard, "solar10")
	upper := e.ComputeTotals(cart, ShippingStandard, "SOLAR10")

	require.Equal(t, "SOLAR10", lower.ValidPromoCode)
	require.Equal(t, upper.ValidPromoCode, lower.ValidPromoCode)
	require.True(t, lower.PromoDiscount.Equal(upper.PromoDiscount))
}

func TestComputeTotalsPromoIgnoresSurroundingSpace(t *testing.T) {
	cart := []LineItem{item("x450", "2500", 1)}
	totals := Default().ComputeTotals(cart, ShippingStandard, " solar10 ")
	require.Equal(t, "SOLAR10", totals.ValidPromoCode)
	requireMoney(t, "250", totals.PromoDiscount)

	inner := Default().ComputeTotals(cart, ShippingStandard, "SOLAR 10")
	require.Empty(t, inner.ValidPromoCode)
}

func TestComputeTotalsInvalidPromo(t *testing.T) {
	cart := []LineItem{item("x450", "2500", 1)}
	totals := Default().ComputeTotals(cart, ShippingStandard, "SOLAR99")
	require.Empty(t, totals.ValidPromoCode)
	requireMoney(t, "0", totals.PromoDiscount)
}

func TestComputeTotalsUnknownShippingFallsBack(t *testing.T) {
	cart := []LineItem{item("x450", "2500", 1)}
	e := Default()

	totals := e.ComputeTotals(cart, "overnight", "")
	requireMoney(t, "5000", totals.Shipping)
	require.Equal(t, ShippingStandard, totals.ShippingMethod)

	totals = e.ComputeTotals(cart, "", "")
	requireMoney(t, "5000", totals.Shipping)

	totals = e.ComputeTotals(cart, ShippingFree, "")
	requireMoney(t, "0", totals.Shipping)
	require.Equal(t, ShippingFree, totals.ShippingMethod)
}

func TestComputeTotalsInvariants(t *testing.T) {
	carts := [][]LineItem{
		nil,
		{item("inst-a", "333.33", 3)},
		{item("y1", "10.01", 7), item("x2", "0.99", 13), item("general", "12345.67", 2)},
		{item("inst-b", "99999.99", 1), item("y9", "0.01", 1)},
	}
	promos := []string{"", "SOLAR10", "sunny25", "GREEN50", "bogus"}
	methods := []string{ShippingStandard, ShippingExpress, ShippingFree, "unknown"}
	tolerance := money("0.01")
	e := Default()

	for _, cart := range carts {
		for _, promo := range promos {
			for _, method := range methods {
				totals := e.ComputeTotals(cart, method, promo)
				sum := totals.SubTotal.Add(totals.Shipping).Add(totals.Taxes).Sub(totals.PromoDiscount)
				require.True(t, sum.Sub(totals.Total).Abs().LessThanOrEqual(tolerance),
					"total %s vs components %s", totals.Total, sum)
				require.True(t, totals.TotalDiscount.Sub(totals.ProductDiscount.Add(totals.PromoDiscount)).Abs().LessThanOrEqual(tolerance))
				require.False(t, totals.Taxes.IsNegative())
			}
		}
	}
}

func TestComputeTotalsIdempotentAndPure(t *testing.T) {
	cart := []LineItem{item("inst-a", "1500", 2), {ID: "g", Price: money("-5"), Quantity: 0}}
	snapshot := make([]LineItem, len(cart))
	copy(snapshot, cart)
	e := Default()

	first := e.ComputeTotals(cart, ShippingExpress, "SUNNY25")
	second := e.ComputeTotals(cart, ShippingExpress, "SUNNY25")
	require.Equal(t, first, second)
	require.Equal(t, snapshot, cart)
	require.Equal(t, 0, cart[1].Quantity)
}

func TestComputeTotalsMonotonicInQuantity(t *testing.T) {
	e := Default()
	for _, promo := range []string{"", "GREEN50"} {
		prev := e.ComputeTotals([]LineItem{item("inst-a", "7000", 1), item("x1", "250.5", 1)}, ShippingStandard, promo)
		for q := 2; q <= 30; q++ {
			cur := e.ComputeTotals([]LineItem{item("inst-a", "7000", q), item("x1", "250.5", 1)}, ShippingStandard, promo)
			require.True(t, cur.SubTotal.GreaterThanOrEqual(prev.SubTotal), "subtotal dropped at qty %d", q)
			if cur.FreeShippingEligible == prev.FreeShippingEligible {
				require.True(t, cur.Total.GreaterThanOrEqual(prev.Total), "total dropped at qty %d", q)
			}
			prev = cur
		}
	}
}

func TestComputeTotalsDefensiveClamps(t *testing.T) {
	bad := money("-100")
	above := money("2000")
	cart := []LineItem{
		{ID: "a", Price: money("-10"), Quantity: 3},
		{ID: "b", Price: money("100"), Quantity: -4},
		{ID: "c", Price: money("100"), DiscountedPrice: &bad, Quantity: 1},
		{ID: "d", Price: money("100"), DiscountedPrice: &above, Quantity: 1},
	}
	totals := Default().ComputeTotals(cart, ShippingStandard, "")
	require.Equal(t, 6, totals.TotalItems)
	requireMoney(t, "300", totals.SubTotal)
	requireMoney(t, "0", totals.ProductDiscount)
}

func TestComputeTotalsRoundsOnceAtEnd(t *testing.T) {
	// Three lines of 0.333 would be 0.99 if rounded per line.
	cart := []LineItem{
		{ID: "a", Price: money("0.333"), Quantity: 1},
		{ID: "b", Price: money("0.333"), Quantity: 1},
		{ID: "c", Price: money("0.334"), Quantity: 1},
	}
	totals := Default().ComputeTotals(cart, ShippingStandard, "")
	requireMoney(t, "1", totals.SubTotal)
}

func TestComputeTotalsConcurrentUse(t *testing.T) {
	e := Default()
	cart := []LineItem{item("inst-a", "1234.56", 3), item("y1", "78.9", 2)}
	want := e.ComputeTotals(cart, ShippingExpress, "SOLAR10")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, e.ComputeTotals(cart, ShippingExpress, "SOLAR10"))
		}()
	}
	wg.Wait()
}

func TestNewEngineCopiesTables(t *testing.T) {
	cfg := DefaultConfig()
	e, err := NewEngine(cfg)
	require.NoError(t, err)

	cfg.PromoRates["FREEBIE"] = money("1")
	cfg.ShippingFees[ShippingStandard] = money("1")

	_, ok := e.PromoRate("freebie")
	require.False(t, ok)
	fee, _ := e.ShippingFee(ShippingStandard)
	requireMoney(t, "5000", fee)
}

func TestNewEngineRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultShipping = "drone"
	_, err := NewEngine(cfg)
	require.Error(t, err)

	cfg = DefaultConfig()
	cfg.PromoRates["HALF"] = money("1.5")
	_, err = NewEngine(cfg)
	require.Error(t, err)

	cfg = DefaultConfig()
	cfg.TaxRate = money("-0.1")
	_, err = NewEngine(cfg)
	require.Error(t, err)
}

func TestFreeShippingRemaining(t *testing.T) {
	e := Default()
	requireMoney(t, "99000", e.FreeShippingRemaining(money("1000")))
	requireMoney(t, "0", e.FreeShippingRemaining(money("150000")))
}
