package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/solar-symphony/internal/obs"
	"github.com/noah-isme/solar-symphony/internal/pricing"
)

// ErrNotFound indicates the requested cart line could not be located.
var ErrNotFound = errors.New("cart item not found")

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("invalid input")

const maxOwnerLen = 128

// Locker serializes mutations of a single cart.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// Service encapsulates cart domain operations.
type Service struct {
	Store  *Store
	Locker Locker
	Engine *pricing.Engine
}

// AddInput describes a product being added to the cart.
type AddInput struct {
	ID       string
	Name     string
	Image    string
	Price    string
	Quantity int
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil || s.Store.R == nil {
		return errors.New("cart service not configured")
	}
	return nil
}

var defaultEngine = pricing.Default()

func (s *Service) engine() *pricing.Engine {
	if s.Engine == nil {
		return defaultEngine
	}
	return s.Engine
}

func checkOwner(owner string) error {
	if strings.TrimSpace(owner) == "" || len(owner) > maxOwnerLen {
		return fmt.Errorf("%w: cart owner is required", ErrInvalidInput)
	}
	return nil
}

// mutate loads the owner's items, applies fn and saves the result while
// holding the owner's lock.
func (s *Service) mutate(ctx context.Context, owner string, fn func([]Item) ([]Item, error)) ([]Item, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := checkOwner(owner); err != nil {
		return nil, err
	}
	var out []Item
	run := func(ctx context.Context) error {
		items, err := s.Store.Load(ctx, owner)
		if err != nil {
			return err
		}
		next, err := fn(items)
		if err != nil {
			return err
		}
		if err := s.Store.Save(ctx, owner, next); err != nil {
			return err
		}
		out = next
		return nil
	}
	err := s.withLock(ctx, owner, run)
	return out, err
}

// Add inserts a product or increases the quantity of an existing line.
func (s *Service) Add(ctx context.Context, owner string, in AddInput) ([]Item, error) {
	id := strings.TrimSpace(in.ID)
	name := strings.TrimSpace(in.Name)
	rawPrice := strings.TrimSpace(in.Price)
	if id == "" || name == "" || rawPrice == "" {
		return nil, fmt.Errorf("%w: id, name and price are required", ErrInvalidInput)
	}
	qty := pricing.NormalizeQuantity(in.Quantity)
	price := pricing.ParsePrice(rawPrice)
	if price.IsNegative() {
		price = decimal.Zero
	}

	return s.mutate(ctx, owner, func(items []Item) ([]Item, error) {
		for i := range items {
			if items[i].ID == id {
				items[i].Quantity += qty
				return items, nil
			}
		}
		category := pricing.ClassifyCategory(id)
		return append(items, Item{
			ID:              id,
			Name:            name,
			Image:           strings.TrimSpace(in.Image),
			Category:        category,
			Price:           price,
			DiscountedPrice: s.engine().ApplyCategoryDiscount(price, category),
			Quantity:        qty,
		}), nil
	})
}

// UpdateQuantity sets a line's quantity. Values below one are stored as one.
func (s *Service) UpdateQuantity(ctx context.Context, owner, id string, qty int) ([]Item, error) {
	return s.mutate(ctx, owner, func(items []Item) ([]Item, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, ErrNotFound
		}
		items[i].Quantity = pricing.NormalizeQuantity(qty)
		return items, nil
	})
}

// Increase adds one unit to a line.
func (s *Service) Increase(ctx context.Context, owner, id string) ([]Item, error) {
	return s.mutate(ctx, owner, func(items []Item) ([]Item, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, ErrNotFound
		}
		items[i].Quantity++
		return items, nil
	})
}

// Decrease removes one unit from a line, dropping the line when it reaches zero.
func (s *Service) Decrease(ctx context.Context, owner, id string) ([]Item, error) {
	return s.mutate(ctx, owner, func(items []Item) ([]Item, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, ErrNotFound
		}
		if items[i].Quantity <= 1 {
			return append(items[:i], items[i+1:]...), nil
		}
		items[i].Quantity--
		return items, nil
	})
}

// Remove drops a line from the cart.
func (s *Service) Remove(ctx context.Context, owner, id string) ([]Item, error) {
	return s.mutate(ctx, owner, func(items []Item) ([]Item, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, ErrNotFound
		}
		return append(items[:i], items[i+1:]...), nil
	})
}

// Clear empties the cart and forgets its promo code.
func (s *Service) Clear(ctx context.Context, owner string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := checkOwner(owner); err != nil {
		return err
	}
	run := func(ctx context.Context) error { return s.Store.Delete(ctx, owner) }
	return s.withLock(ctx, owner, run)
}

// Items returns the owner's cart lines.
func (s *Service) Items(ctx context.Context, owner string) ([]Item, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := checkOwner(owner); err != nil {
		return nil, err
	}
	return s.Store.Load(ctx, owner)
}

// Count returns the total number of units in the cart.
func (s *Service) Count(ctx context.Context, owner string) (int, error) {
	items, err := s.Items(ctx, owner)
	if err != nil {
		return 0, err
	}
	var n int
	for _, it := range items {
		n += it.Quantity
	}
	return n, nil
}

// Summary prices the cart with its stored promo code.
func (s *Service) Summary(ctx context.Context, owner, shippingMethod string) (Summary, error) {
	items, err := s.Items(ctx, owner)
	if err != nil {
		return Summary{}, err
	}
	code, err := s.Store.Promo(ctx, owner)
	if err != nil {
		return Summary{}, err
	}
	return s.price(owner, items, shippingMethod, code), nil
}

func (s *Service) price(owner string, items []Item, shippingMethod, code string) Summary {
	eng := s.engine()
	totals := eng.ComputeTotals(lineItems(items), shippingMethod, code)
	obs.IncCartTotals()
	return Summary{
		Owner:                 owner,
		Items:                 items,
		PromoCode:             totals.ValidPromoCode,
		Totals:                totals,
		FreeShippingRemaining: eng.FreeShippingRemaining(totals.SubTotal),
	}
}

// ApplyPromo stores code when it is recognised and clears any stored code
// otherwise. The returned summary reflects the outcome.
func (s *Service) ApplyPromo(ctx context.Context, owner, code, shippingMethod string) (PromoResult, error) {
	items, err := s.Items(ctx, owner)
	if err != nil {
		return PromoResult{}, err
	}
	code = strings.TrimSpace(code)
	summary := s.price(owner, items, shippingMethod, code)

	var res PromoResult
	switch {
	case summary.Totals.ValidPromoCode != "":
		if err := s.Store.SetPromo(ctx, owner, summary.Totals.ValidPromoCode); err != nil {
			return PromoResult{}, err
		}
		rate, _ := s.engine().PromoRate(summary.Totals.ValidPromoCode)
		res.Applied = true
		res.Message = fmt.Sprintf("Promo code %s applied! %s%% discount.",
			summary.Totals.ValidPromoCode, rate.Mul(decimal.NewFromInt(100)).String())
		obs.IncPromoApply("applied")
	case code != "":
		if err := s.Store.ClearPromo(ctx, owner); err != nil {
			return PromoResult{}, err
		}
		res.Message = "Invalid promo code. Try " + strings.Join(s.suggestions(2), " or ") + "."
		obs.IncPromoApply("invalid")
	default:
		if err := s.Store.ClearPromo(ctx, owner); err != nil {
			return PromoResult{}, err
		}
		res.Message = "Please enter a promo code."
		obs.IncPromoApply("empty")
	}
	res.Summary = summary
	return res, nil
}

// suggestions lists up to n known promo codes, smallest discount first.
func (s *Service) suggestions(n int) []string {
	eng := s.engine()
	codes := eng.PromoCodes()
	sort.SliceStable(codes, func(i, j int) bool {
		ri, _ := eng.PromoRate(codes[i])
		rj, _ := eng.PromoRate(codes[j])
		if ri.Equal(rj) {
			return codes[i] < codes[j]
		}
		return ri.LessThan(rj)
	})
	if len(codes) > n {
		codes = codes[:n]
	}
	return codes
}

// RemovePromo forgets the stored promo code.
func (s *Service) RemovePromo(ctx context.Context, owner string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := checkOwner(owner); err != nil {
		return err
	}
	return s.Store.ClearPromo(ctx, owner)
}

// Drain hands the cart's items and stored promo code to fn while holding the
// owner's lock, then empties the cart and forgets the promo when fn succeeds.
func (s *Service) Drain(ctx context.Context, owner string, fn func(ctx context.Context, items []Item, promo string) error) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := checkOwner(owner); err != nil {
		return err
	}
	run := func(ctx context.Context) error {
		items, err := s.Store.Load(ctx, owner)
		if err != nil {
			return err
		}
		promo, err := s.Store.Promo(ctx, owner)
		if err != nil {
			return err
		}
		if err := fn(ctx, items, promo); err != nil {
			return err
		}
		return s.Store.Delete(ctx, owner)
	}
	return s.withLock(ctx, owner, run)
}

// Merge moves the lines of a guest cart into target, summing quantities of
// shared products. The target keeps its own promo code; the guest's code is
// adopted only when the target has none. Both carts are locked and the guest
// cart is deleted in the same transaction that writes the target.
func (s *Service) Merge(ctx context.Context, guest, target string) ([]Item, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := checkOwner(guest); err != nil {
		return nil, err
	}
	if err := checkOwner(target); err != nil {
		return nil, err
	}
	if guest == target {
		return s.Items(ctx, target)
	}
	var merged []Item
	err := s.withLock(ctx, guest, func(ctx context.Context) error {
		guestItems, err := s.Store.Load(ctx, guest)
		if err != nil {
			return err
		}
		guestPromo, err := s.Store.Promo(ctx, guest)
		if err != nil {
			return err
		}
		return s.withLock(ctx, target, func(ctx context.Context) error {
			items, err := s.Store.Load(ctx, target)
			if err != nil {
				return err
			}
			promo, err := s.Store.Promo(ctx, target)
			if err != nil {
				return err
			}
			for _, g := range guestItems {
				if i := indexOf(items, g.ID); i >= 0 {
					items[i].Quantity += g.Quantity
					continue
				}
				items = append(items, g)
			}
			if promo == "" {
				promo = guestPromo
			}
			if err := s.Store.Transfer(ctx, guest, target, items, promo); err != nil {
				return err
			}
			merged = items
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

func (s *Service) withLock(ctx context.Context, owner string, fn func(context.Context) error) error {
	if s.Locker == nil {
		return fn(ctx)
	}
	return s.Locker.WithLock(ctx, owner, fn)
}

func indexOf(items []Item, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}
