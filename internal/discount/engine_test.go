package discount

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/haliltoma/commerce-pricing/internal/money"
)

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func usd(amount int64) money.Money { return money.New(amount, "USD") }

func line(unitPrice int64, qty int) Line {
	return Line{
		ID:        uuid.New(),
		VariantID: uuid.New(),
		Quantity:  qty,
		UnitPrice: usd(unitPrice),
		Subtotal:  usd(unitPrice * int64(qty)),
	}
}

func cartOf(lines ...Line) Cart {
	return Cart{Currency: "USD", Lines: lines, ShippingTotal: usd(0)}
}

func active(d Discount) Discount {
	d.Active = true
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return d
}

func TestEvaluatePercentage(t *testing.T) {
	cart := cartOf(line(50_00, 2))
	d := active(Discount{Kind: KindPercentage, Percent: decimal.NewFromInt(10)})
	res, err := Evaluate(d, cart, Context{Now: now})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.Applies || res.Amount.Amount != 10_00 {
		t.Fatalf("expected 1000 off, got %+v", res)
	}
	if len(res.AffectedLineIDs) != 1 {
		t.Fatalf("expected one affected line, got %v", res.AffectedLineIDs)
	}
}

func TestEvaluateFixedCapsAtEligibleAmount(t *testing.T) {
	cart := cartOf(line(10_00, 1))
	d := active(Discount{Kind: KindFixedAmount, Amount: 25_00})
	res, err := Evaluate(d, cart, Context{Now: now})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Amount.Amount != 10_00 {
		t.Fatalf("fixed discount must cap at the eligible amount, got %d", res.Amount.Amount)
	}
}

func TestEvaluateFreeShippingMatchesShippingTotal(t *testing.T) {
	cart := cartOf(line(20_00, 1))
	cart.ShippingTotal = usd(7_50)
	d := active(Discount{Kind: KindFreeShipping})
	res, err := Evaluate(d, cart, Context{Now: now})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Amount.Amount != 7_50 {
		t.Fatalf("expected the shipping total, got %d", res.Amount.Amount)
	}

	cart.ShippingTotal = usd(0)
	res, err = Evaluate(d, cart, Context{Now: now})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Applies {
		t.Fatalf("zero shipping yields a zero, non-applying discount: %+v", res)
	}
	if res.Reason != ReasonZeroAmount {
		t.Fatalf("expected zero_amount reason, got %q", res.Reason)
	}
}

func TestEvaluateBuyThreeGetOne(t *testing.T) {
	// Canonical fixture: 2x10 + 3x20 + 2x30 units, buy 3 get 1 free.
	cart := cartOf(line(10_00, 2), line(20_00, 3), line(30_00, 2))
	d := active(Discount{
		Kind:               KindBuyXGetY,
		BuyQuantity:        3,
		GetQuantity:        1,
		GetDiscountPercent: decimal.NewFromInt(100),
	})
	res, err := Evaluate(d, cart, Context{Now: now})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	// 7 units, two full sets of three, two free units, cheapest two are both 10.
	if res.Amount.Amount != 20_00 {
		t.Fatalf("expected 2000 off, got %d", res.Amount.Amount)
	}
	if len(res.AffectedLineIDs) != 1 {
		t.Fatalf("only the cheapest line contributes free units, got %v", res.AffectedLineIDs)
	}
}

func TestEvaluateBuyXGetYPartialPercent(t *testing.T) {
	cart := cartOf(line(10_00, 4))
	d := active(Discount{
		Kind:               KindBuyXGetY,
		BuyQuantity:        2,
		GetQuantity:        1,
		GetDiscountPercent: decimal.NewFromInt(50),
	})
	res, err := Evaluate(d, cart, Context{Now: now})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	// Two sets, two discounted units at 50% of 10.00 each.
	if res.Amount.Amount != 10_00 {
		t.Fatalf("expected 1000 off, got %d", res.Amount.Amount)
	}
}

func TestEvaluateMaximumDiscountCap(t *testing.T) {
	cap := int64(5_00)
	cart := cartOf(line(100_00, 1))
	d := active(Discount{Kind: KindPercentage, Percent: decimal.NewFromInt(20), MaximumDiscountAmount: &cap})
	res, err := Evaluate(d, cart, Context{Now: now})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Amount.Amount != 5_00 {
		t.Fatalf("expected cap at 500, got %d", res.Amount.Amount)
	}
}

func TestEvaluateGateReasons(t *testing.T) {
	minOrder := int64(100_00)
	limit := int32(5)
	later := now.Add(time.Hour)
	earlier := now.Add(-time.Hour)
	cart := cartOf(line(10_00, 1))

	cases := []struct {
		name string
		d    Discount
		ctx  Context
		want Reason
	}{
		{"inactive", Discount{Kind: KindPercentage, Percent: decimal.NewFromInt(10)}, Context{Now: now}, ReasonInactive},
		{"not started", active(Discount{Kind: KindPercentage, Percent: decimal.NewFromInt(10), StartsAt: &later}), Context{Now: now}, ReasonNotStarted},
		{"expired", active(Discount{Kind: KindPercentage, Percent: decimal.NewFromInt(10), EndsAt: &earlier}), Context{Now: now}, ReasonExpired},
		{"usage limit", active(Discount{Kind: KindPercentage, Percent: decimal.NewFromInt(10), UsageLimit: &limit, UsageCount: 5}), Context{Now: now}, ReasonUsageLimit},
		{"minimum order", active(Discount{Kind: KindPercentage, Percent: decimal.NewFromInt(10), MinimumOrderAmount: &minOrder}), Context{Now: now}, ReasonMinimumOrder},
		{"first order only", active(Discount{Kind: KindPercentage, Percent: decimal.NewFromInt(10), FirstOrderOnly: true}), Context{Now: now, CustomerOrderCount: 3}, ReasonFirstOrderOnly},
		{"customer group", active(Discount{Kind: KindPercentage, Percent: decimal.NewFromInt(10), CustomerGroupIDs: []string{"vip"}}), Context{Now: now, CustomerGroupID: "retail"}, ReasonCustomerGroup},
	}
	for _, tc := range cases {
		res, err := Evaluate(tc.d, cart, tc.ctx)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if res.Applies {
			t.Fatalf("%s: expected not applying", tc.name)
		}
		if res.Reason != tc.want {
			t.Fatalf("%s: expected reason %q, got %q", tc.name, tc.want, res.Reason)
		}
	}
}

func TestEvaluateProductScopeLimitsEligibleAmount(t *testing.T) {
	inScope := uuid.New()
	outScope := uuid.New()
	l1 := line(40_00, 1)
	l1.ProductID = &inScope
	l2 := line(60_00, 1)
	l2.ProductID = &outScope
	cart := cartOf(l1, l2)

	d := active(Discount{Kind: KindPercentage, Percent: decimal.NewFromInt(50), ProductIDs: []uuid.UUID{inScope}})
	res, err := Evaluate(d, cart, Context{Now: now})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Amount.Amount != 20_00 {
		t.Fatalf("scoped discount must only see eligible lines, got %d", res.Amount.Amount)
	}
	if len(res.AffectedLineIDs) != 1 || res.AffectedLineIDs[0] != l1.ID {
		t.Fatalf("unexpected affected lines %v", res.AffectedLineIDs)
	}
}

func TestEvaluateNoEligibleLines(t *testing.T) {
	other := uuid.New()
	l := line(40_00, 1)
	cart := cartOf(l)
	d := active(Discount{Kind: KindPercentage, Percent: decimal.NewFromInt(10), ProductIDs: []uuid.UUID{other}})
	res, err := Evaluate(d, cart, Context{Now: now})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Applies || res.Reason != ReasonNoEligibleLines {
		t.Fatalf("expected no_eligible_lines, got %+v", res)
	}
}

func TestEvaluateUnknownKind(t *testing.T) {
	cart := cartOf(line(10_00, 1))
	d := active(Discount{Kind: Kind("bogus")})
	if _, err := Evaluate(d, cart, Context{Now: now}); err == nil {
		t.Fatal("expected an error for unknown kind")
	}
}

func TestEvaluateAllSequentialComposition(t *testing.T) {
	// 10% then $5 off: the fixed discount sees the already-reduced state.
	cart := cartOf(line(100_00, 1))
	discounts := []Discount{
		active(Discount{Kind: KindFixedAmount, Amount: 5_00, Priority: 2, Combinable: true}),
		active(Discount{Kind: KindPercentage, Percent: decimal.NewFromInt(10), Priority: 1, Combinable: true}),
	}
	out, err := EvaluateAll(discounts, cart, Context{Now: now})
	if err != nil {
		t.Fatalf("evaluate all: %v", err)
	}
	if out.Total.Amount != 15_00 {
		t.Fatalf("expected 1500 total discount, got %d", out.Total.Amount)
	}
	if out.Applied[0].Discount.Priority != 1 {
		t.Fatalf("expected priority ordering, got %+v", out.Applied)
	}
	if out.Lines[0].Subtotal.Amount != 85_00 {
		t.Fatalf("expected running subtotal 8500, got %d", out.Lines[0].Subtotal.Amount)
	}
}

func TestEvaluateAllNonCombinableStopsRun(t *testing.T) {
	cart := cartOf(line(100_00, 1))
	discounts := []Discount{
		active(Discount{Code: "EXCLUSIVE", Kind: KindPercentage, Percent: decimal.NewFromInt(20), Priority: 1, Combinable: false}),
		active(Discount{Code: "LATER", Kind: KindFixedAmount, Amount: 5_00, Priority: 2, Combinable: true}),
	}
	out, err := EvaluateAll(discounts, cart, Context{Now: now})
	if err != nil {
		t.Fatalf("evaluate all: %v", err)
	}
	if out.Total.Amount != 20_00 {
		t.Fatalf("expected only the exclusive discount, got %d", out.Total.Amount)
	}
	if len(out.Applied) != 1 {
		t.Fatalf("evaluation must stop after a non-combinable apply, got %d results", len(out.Applied))
	}
}

func TestEvaluateAllNonApplyingNonCombinableContinues(t *testing.T) {
	minOrder := int64(500_00)
	cart := cartOf(line(100_00, 1))
	discounts := []Discount{
		active(Discount{Kind: KindPercentage, Percent: decimal.NewFromInt(20), Priority: 1, Combinable: false, MinimumOrderAmount: &minOrder}),
		active(Discount{Kind: KindFixedAmount, Amount: 5_00, Priority: 2, Combinable: true}),
	}
	out, err := EvaluateAll(discounts, cart, Context{Now: now})
	if err != nil {
		t.Fatalf("evaluate all: %v", err)
	}
	if out.Total.Amount != 5_00 {
		t.Fatalf("a non-applying exclusive must not block later discounts, got %d", out.Total.Amount)
	}
}

func TestEvaluateAllFreeShippingZeroesShipping(t *testing.T) {
	cart := cartOf(line(100_00, 1))
	cart.ShippingTotal = usd(12_00)
	discounts := []Discount{
		active(Discount{Kind: KindFreeShipping, Priority: 1, Combinable: true}),
	}
	out, err := EvaluateAll(discounts, cart, Context{Now: now})
	if err != nil {
		t.Fatalf("evaluate all: %v", err)
	}
	if out.Total.Amount != 12_00 {
		t.Fatalf("expected discount equal to shipping, got %d", out.Total.Amount)
	}
	if !out.ShippingTotal.IsZero() {
		t.Fatalf("expected zeroed shipping, got %d", out.ShippingTotal.Amount)
	}
	if out.Lines[0].Subtotal.Amount != 100_00 {
		t.Fatalf("free shipping must not touch line subtotals, got %d", out.Lines[0].Subtotal.Amount)
	}
}

func TestEvaluateAllWithShippingQuotesLazily(t *testing.T) {
	cart := cartOf(line(100_00, 1))
	calls := 0
	var quotedOver int64
	quote := func(state Cart) (money.Money, error) {
		calls++
		quotedOver = state.Subtotal()
		return usd(9_00), nil
	}
	discounts := []Discount{
		active(Discount{Kind: KindPercentage, Percent: decimal.NewFromInt(10), Priority: 1, Combinable: true}),
		active(Discount{Kind: KindFreeShipping, Priority: 2, Combinable: true}),
	}
	out, err := EvaluateAllWithShipping(discounts, cart, Context{Now: now}, quote)
	if err != nil {
		t.Fatalf("evaluate all: %v", err)
	}
	if calls != 1 {
		t.Fatalf("quote must run exactly once, got %d", calls)
	}
	if quotedOver != 90_00 {
		t.Fatalf("quote must see the discounted subtotal, got %d", quotedOver)
	}
	if out.Total.Amount != 19_00 {
		t.Fatalf("expected 1900 combined discount, got %d", out.Total.Amount)
	}
	if !out.ShippingTotal.IsZero() {
		t.Fatalf("expected zeroed shipping, got %d", out.ShippingTotal.Amount)
	}
}

func TestEvaluateAllWithShippingExclusiveStopsRun(t *testing.T) {
	cart := cartOf(line(100_00, 1))
	calls := 0
	quote := func(Cart) (money.Money, error) {
		calls++
		return usd(9_00), nil
	}
	discounts := []Discount{
		active(Discount{Kind: KindPercentage, Percent: decimal.NewFromInt(10), Priority: 1, Combinable: false}),
		active(Discount{Kind: KindFreeShipping, Priority: 2, Combinable: true}),
	}
	out, err := EvaluateAllWithShipping(discounts, cart, Context{Now: now}, quote)
	if err != nil {
		t.Fatalf("evaluate all: %v", err)
	}
	if len(out.Applied) != 1 {
		t.Fatalf("free shipping after the exclusive must not be evaluated, got %+v", out.Applied)
	}
	if out.Total.Amount != 10_00 {
		t.Fatalf("expected 1000 discount, got %d", out.Total.Amount)
	}
	// The cart still needs its shipping total even when the run stops early.
	if calls != 1 || out.ShippingTotal.Amount != 9_00 {
		t.Fatalf("expected one quote of 900, got %d calls and %d", calls, out.ShippingTotal.Amount)
	}
}

func TestAllocateProportionalSumsExactly(t *testing.T) {
	l1 := line(33_33, 1)
	l2 := line(33_33, 1)
	l3 := line(33_34, 1)
	lines := []Line{l1, l2, l3}
	allocate(10_00, []uuid.UUID{l1.ID, l2.ID, l3.ID}, lines)
	var taken int64
	for i, before := range []int64{33_33, 33_33, 33_34} {
		taken += before - lines[i].Subtotal.Amount
	}
	if taken != 10_00 {
		t.Fatalf("allocation must sum exactly to the discount, got %d", taken)
	}
}
