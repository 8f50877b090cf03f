package discount

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/haliltoma/commerce-pricing/internal/money"
)

// ErrUnknownKind indicates a discount row with an unrecognised type.
var ErrUnknownKind = errors.New("discount: unknown kind")

// Evaluate checks eligibility and computes the discount amount against the
// cart state as-is. Ineligibility is not an error: the result carries
// Applies=false with a structured reason. Errors are reserved for invalid
// configuration or money arithmetic faults.
func Evaluate(d Discount, cart Cart, ctx Context) (Result, error) {
	if reason, ok := gate(d, cart, ctx); !ok {
		return Result{Reason: reason, Amount: money.Zero(cart.Currency)}, nil
	}

	eligible := eligibleLines(d, cart.Lines)
	if d.Kind != KindFreeShipping && len(eligible) == 0 {
		return Result{Reason: ReasonNoEligibleLines, Amount: money.Zero(cart.Currency)}, nil
	}

	var (
		amount   int64
		affected []uuid.UUID
		err      error
	)
	switch d.Kind {
	case KindPercentage:
		amount, affected = percentageAmount(d, cart, eligible)
	case KindFixedAmount:
		amount, affected = fixedAmount(d, cart, eligible)
	case KindFreeShipping:
		amount = cart.ShippingTotal.Amount
	case KindBuyXGetY:
		amount, affected, err = buyXGetYAmount(d, cart, eligible)
		if err != nil {
			return Result{}, err
		}
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownKind, d.Kind)
	}

	if d.MaximumDiscountAmount != nil && amount > *d.MaximumDiscountAmount {
		amount = *d.MaximumDiscountAmount
	}
	if amount <= 0 {
		return Result{Reason: ReasonZeroAmount, Amount: money.Zero(cart.Currency)}, nil
	}
	return Result{Applies: true, Amount: money.New(amount, cart.Currency), AffectedLineIDs: affected}, nil
}

// ShippingQuoteFunc returns the shipping total for the cart as discounted so
// far. EvaluateAllWithShipping calls it at most once per run.
type ShippingQuoteFunc func(cart Cart) (money.Money, error)

// EvaluateAll applies discounts in priority order, each one seeing the cart
// as discounted by everything before it. The first applying non-combinable
// discount terminates the run. Non-applying discounts are reported but do
// not stop evaluation. Free-shipping discounts evaluate against the cart's
// given ShippingTotal.
func EvaluateAll(discounts []Discount, cart Cart, ctx Context) (Outcome, error) {
	return EvaluateAllWithShipping(discounts, cart, ctx, nil)
}

// EvaluateAllWithShipping is EvaluateAll with the shipping total quoted
// lazily inside the run. The quote fires when the first free-shipping
// discount is reached, over the cart as discounted by the higher-priority
// rules before it, or after the run if none is reached, so that a
// non-combinable discount of any kind suppresses every lower-priority
// discount of any kind. When quote is non-nil it replaces cart.ShippingTotal.
func EvaluateAllWithShipping(discounts []Discount, cart Cart, ctx Context, quote ShippingQuoteFunc) (Outcome, error) {
	ordered := make([]Discount, len(discounts))
	copy(ordered, discounts)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	state := Cart{Currency: cart.Currency, ShippingTotal: cart.ShippingTotal}
	state.Lines = make([]Line, len(cart.Lines))
	copy(state.Lines, cart.Lines)

	quoted := quote == nil
	out := Outcome{Total: money.Zero(cart.Currency)}
	for _, d := range ordered {
		if d.Kind == KindFreeShipping && !quoted {
			q, err := quote(state)
			if err != nil {
				return Outcome{}, err
			}
			state.ShippingTotal = q
			quoted = true
		}
		res, err := Evaluate(d, state, ctx)
		if err != nil {
			return Outcome{}, err
		}
		out.Applied = append(out.Applied, Applied{Discount: d, Result: res})
		if !res.Applies {
			continue
		}
		out.Total.Amount += res.Amount.Amount
		if d.Kind == KindFreeShipping {
			state.ShippingTotal.Amount -= res.Amount.Amount
			if state.ShippingTotal.Amount < 0 {
				state.ShippingTotal.Amount = 0
			}
		} else {
			allocate(res.Amount.Amount, res.AffectedLineIDs, state.Lines)
		}
		if !d.Combinable {
			break
		}
	}
	if !quoted {
		q, err := quote(state)
		if err != nil {
			return Outcome{}, err
		}
		state.ShippingTotal = q
	}
	out.Lines = state.Lines
	out.ShippingTotal = state.ShippingTotal
	return out, nil
}

// gate runs the eligibility checks shared by every kind.
func gate(d Discount, cart Cart, ctx Context) (Reason, bool) {
	if !d.Active {
		return ReasonInactive, false
	}
	if d.StartsAt != nil && ctx.Now.Before(*d.StartsAt) {
		return ReasonNotStarted, false
	}
	if d.EndsAt != nil && ctx.Now.After(*d.EndsAt) {
		return ReasonExpired, false
	}
	if d.UsageLimit != nil && d.UsageCount >= *d.UsageLimit {
		return ReasonUsageLimit, false
	}
	if d.MinimumOrderAmount != nil && cart.Subtotal() < *d.MinimumOrderAmount {
		return ReasonMinimumOrder, false
	}
	if d.FirstOrderOnly && ctx.CustomerOrderCount > 0 {
		return ReasonFirstOrderOnly, false
	}
	if len(d.CustomerGroupIDs) > 0 && !contains(d.CustomerGroupIDs, ctx.CustomerGroupID) {
		return ReasonCustomerGroup, false
	}
	return "", true
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// eligibleLines narrows the cart to the discount's product/category scope.
// A discount with no scope sees every line.
func eligibleLines(d Discount, lines []Line) []int {
	scoped := len(d.ProductIDs) > 0 || len(d.CategoryIDs) > 0
	idx := make([]int, 0, len(lines))
	for i, ln := range lines {
		if ln.Subtotal.Amount <= 0 {
			continue
		}
		if !scoped || scopeMatchesLine(d, ln) {
			idx = append(idx, i)
		}
	}
	return idx
}

func scopeMatchesLine(d Discount, ln Line) bool {
	for _, id := range d.ProductIDs {
		if ln.ProductID != nil && id == *ln.ProductID {
			return true
		}
	}
	for _, id := range d.CategoryIDs {
		if ln.CategoryID != nil && id == *ln.CategoryID {
			return true
		}
	}
	return false
}

func eligibleAmount(cart Cart, eligible []int) int64 {
	var total int64
	for _, i := range eligible {
		total += cart.Lines[i].Subtotal.Amount
	}
	return total
}

func affectedIDs(cart Cart, eligible []int) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(eligible))
	for _, i := range eligible {
		ids = append(ids, cart.Lines[i].ID)
	}
	return ids
}

func percentageAmount(d Discount, cart Cart, eligible []int) (int64, []uuid.UUID) {
	base := money.New(eligibleAmount(cart, eligible), cart.Currency)
	amount := base.Percent(d.Percent).Amount
	if amount > base.Amount {
		amount = base.Amount
	}
	return amount, affectedIDs(cart, eligible)
}

// fixedAmount never exceeds the eligible amount, so a large fixed discount
// cannot drive the cart negative.
func fixedAmount(d Discount, cart Cart, eligible []int) (int64, []uuid.UUID) {
	amount := d.Amount
	if base := eligibleAmount(cart, eligible); amount > base {
		amount = base
	}
	return amount, affectedIDs(cart, eligible)
}

type unit struct {
	lineIdx int
	price   int64
}

// buyXGetYAmount expands eligible lines into per-unit prices, grants the
// cheapest qualifying units, and applies the configured percentage to their
// sum. Giving away the lowest-value units is deliberate store policy.
func buyXGetYAmount(d Discount, cart Cart, eligible []int) (int64, []uuid.UUID, error) {
	if d.BuyQuantity <= 0 || d.GetQuantity <= 0 {
		return 0, nil, fmt.Errorf("discount %s: buy_x_get_y requires positive buy and get quantities", d.Code)
	}
	units := make([]unit, 0)
	for _, i := range eligible {
		ln := cart.Lines[i]
		for q := 0; q < ln.Quantity; q++ {
			units = append(units, unit{lineIdx: i, price: ln.UnitPrice.Amount})
		}
	}
	sets := len(units) / d.BuyQuantity
	free := sets * d.GetQuantity
	if free == 0 {
		return 0, nil, nil
	}
	if free > len(units) {
		free = len(units)
	}
	sort.SliceStable(units, func(i, j int) bool { return units[i].price < units[j].price })

	var sum int64
	touched := map[int]bool{}
	for _, u := range units[:free] {
		sum += u.price
		touched[u.lineIdx] = true
	}
	amount := money.New(sum, cart.Currency).Percent(d.GetDiscountPercent).Amount

	ids := make([]uuid.UUID, 0, len(touched))
	for _, i := range eligible {
		if touched[i] {
			ids = append(ids, cart.Lines[i].ID)
		}
	}
	return amount, ids, nil
}

// allocate distributes a discount across its affected lines proportionally
// to their current subtotals, handing rounding leftovers to the largest
// shares first so the allocated parts sum exactly to the amount.
func allocate(amount int64, affected []uuid.UUID, lines []Line) {
	idx := make([]int, 0, len(affected))
	var base int64
	for i := range lines {
		for _, id := range affected {
			if lines[i].ID == id {
				idx = append(idx, i)
				base += lines[i].Subtotal.Amount
				break
			}
		}
	}
	if len(idx) == 0 || base <= 0 {
		return
	}
	if amount > base {
		amount = base
	}

	shares := make([]int64, len(idx))
	remainders := make([]int64, len(idx))
	var allocated int64
	for k, i := range idx {
		num := amount * lines[i].Subtotal.Amount
		shares[k] = num / base
		remainders[k] = num % base
		allocated += shares[k]
	}
	order := make([]int, len(idx))
	for k := range order {
		order[k] = k
	}
	sort.SliceStable(order, func(a, b int) bool { return remainders[order[a]] > remainders[order[b]] })
	for _, k := range order {
		if allocated >= amount {
			break
		}
		shares[k]++
		allocated++
	}
	for k, i := range idx {
		lines[i].Subtotal.Amount -= shares[k]
		if lines[i].Subtotal.Amount < 0 {
			lines[i].Subtotal.Amount = 0
		}
	}
}
