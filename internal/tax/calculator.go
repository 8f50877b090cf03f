package tax

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/haliltoma/commerce-pricing/internal/money"
)

// Wildcard matches any value in a rate scope field.
const Wildcard = "*"

// Address is the destination used for rate scoping.
type Address struct {
	Country    string `json:"country"`
	State      string `json:"state"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
}

// Class groups lines and rates, e.g. "standard", "reduced", "exempt".
type Class struct {
	ID   uuid.UUID
	Name string
}

// Rate is a configured tax rate row. Empty scope fields match any address,
// as does the "*" wildcard. ClassID of nil applies to every tax class.
type Rate struct {
	ID         uuid.UUID
	Name       string
	Country    string
	State      string
	City       string
	PostalCode string
	Percent    decimal.Decimal
	Priority   int
	Compound   bool
	ClassID    *uuid.UUID
}

// Matches reports whether the rate applies to the address and class.
func (r Rate) Matches(addr Address, classID *uuid.UUID) bool {
	if !scopeMatches(r.Country, addr.Country) {
		return false
	}
	if !scopeMatches(r.State, addr.State) {
		return false
	}
	if !scopeMatches(r.City, addr.City) {
		return false
	}
	if !scopeMatches(r.PostalCode, addr.PostalCode) {
		return false
	}
	if r.ClassID != nil {
		if classID == nil || *r.ClassID != *classID {
			return false
		}
	}
	return true
}

func scopeMatches(scope, value string) bool {
	scope = strings.TrimSpace(scope)
	if scope == "" || scope == Wildcard {
		return true
	}
	return strings.EqualFold(scope, strings.TrimSpace(value))
}

// BreakdownEntry reports one rate's contribution to the computed tax.
type BreakdownEntry struct {
	Name    string          `json:"name"`
	Rate    decimal.Decimal `json:"rate"`
	Amount  money.Money     `json:"amount"`
	ClassID *uuid.UUID      `json:"classId,omitempty"`
}

// Result aggregates a tax computation. In exclusive mode Subtotal is the
// input amount and Total adds tax on top; in inclusive mode Total is the
// input amount and Subtotal is the recovered pre-tax base.
type Result struct {
	Subtotal  money.Money      `json:"subtotal"`
	TaxAmount money.Money      `json:"taxAmount"`
	Total     money.Money      `json:"total"`
	Breakdown []BreakdownEntry `json:"breakdown"`
}

// Line is a priced cart line presented for tax calculation. Amount is the
// line total net of any allocated discounts.
type Line struct {
	Amount  money.Money
	ClassID *uuid.UUID
	Taxable bool
}

// Calculator resolves applicable rates for an address and computes tax.
// It carries no mutable state and is safe for concurrent use.
type Calculator struct {
	Rates []Rate
	// PricesIncludeTax selects inclusive mode: line amounts already carry
	// tax, and the pre-tax base is derived instead of added onto.
	PricesIncludeTax bool
}

// Calculate computes tax for a single amount. Zero matching rates is not an
// error: the result simply carries no tax.
func (c Calculator) Calculate(amount money.Money, addr Address, classID *uuid.UUID) Result {
	matched := c.matchedRates(addr, classID)
	if len(matched) == 0 {
		return Result{Subtotal: amount, TaxAmount: money.Zero(amount.Currency), Total: amount, Breakdown: []BreakdownEntry{}}
	}
	if c.PricesIncludeTax {
		return calculateInclusive(amount, matched, classID)
	}
	return calculateExclusive(amount, matched, classID)
}

// CalculateForLines groups taxable lines by tax class, computes each group
// independently, and folds non-taxable subtotals through untaxed. Grouping
// matters because classes can carry different applicable rate sets.
func (c Calculator) CalculateForLines(lines []Line, addr Address) Result {
	currency := ""
	if len(lines) > 0 {
		currency = lines[0].Amount.Currency
	}
	res := Result{
		Subtotal:  money.Zero(currency),
		TaxAmount: money.Zero(currency),
		Total:     money.Zero(currency),
		Breakdown: []BreakdownEntry{},
	}

	groups := map[string]*classGroup{}
	order := []string{}
	for _, ln := range lines {
		if !ln.Taxable {
			res.Subtotal.Amount += ln.Amount.Amount
			res.Total.Amount += ln.Amount.Amount
			continue
		}
		key := ""
		if ln.ClassID != nil {
			key = ln.ClassID.String()
		}
		g, ok := groups[key]
		if !ok {
			g = &classGroup{classID: ln.ClassID, amount: money.Zero(ln.Amount.Currency)}
			groups[key] = g
			order = append(order, key)
		}
		g.amount.Amount += ln.Amount.Amount
	}

	for _, key := range order {
		g := groups[key]
		part := c.Calculate(g.amount, addr, g.classID)
		res.Subtotal.Amount += part.Subtotal.Amount
		res.TaxAmount.Amount += part.TaxAmount.Amount
		res.Total.Amount += part.Total.Amount
		for _, b := range part.Breakdown {
			b.ClassID = g.classID
			res.Breakdown = append(res.Breakdown, b)
		}
	}
	return res
}

type classGroup struct {
	classID *uuid.UUID
	amount  money.Money
}

func (c Calculator) matchedRates(addr Address, classID *uuid.UUID) []Rate {
	matched := make([]Rate, 0, len(c.Rates))
	for _, r := range c.Rates {
		if r.Matches(addr, classID) {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Priority < matched[j].Priority })
	return matched
}

// calculateExclusive applies each rate against the original amount in
// priority order. A compound rate taxes the running total instead.
func calculateExclusive(amount money.Money, rates []Rate, classID *uuid.UUID) Result {
	tax := money.Zero(amount.Currency)
	breakdown := make([]BreakdownEntry, 0, len(rates))
	for _, r := range rates {
		base := amount
		if r.Compound {
			base = money.New(amount.Amount+tax.Amount, amount.Currency)
		}
		part := base.Percent(r.Percent)
		tax.Amount += part.Amount
		breakdown = append(breakdown, BreakdownEntry{Name: r.Name, Rate: r.Percent, Amount: part, ClassID: classID})
	}
	return Result{
		Subtotal:  amount,
		TaxAmount: tax,
		Total:     money.New(amount.Amount+tax.Amount, amount.Currency),
		Breakdown: breakdown,
	}
}

// calculateInclusive backs the pre-tax base out of an amount that already
// contains tax, then attributes each rate's share proportionally.
func calculateInclusive(amount money.Money, rates []Rate, classID *uuid.UUID) Result {
	combined := decimal.Zero
	for _, r := range rates {
		combined = combined.Add(r.Percent)
	}
	if combined.IsZero() {
		return Result{Subtotal: amount, TaxAmount: money.Zero(amount.Currency), Total: amount, Breakdown: []BreakdownEntry{}}
	}
	hundred := decimal.NewFromInt(100)
	preTax := decimal.NewFromInt(amount.Amount).Mul(hundred).Div(hundred.Add(combined)).Round(0).IntPart()
	tax := amount.Amount - preTax

	breakdown := make([]BreakdownEntry, 0, len(rates))
	allocated := int64(0)
	for i, r := range rates {
		var share int64
		if i == len(rates)-1 {
			// Last rate absorbs the rounding remainder so shares sum exactly.
			share = tax - allocated
		} else {
			share = decimal.NewFromInt(tax).Mul(r.Percent).Div(combined).Round(0).IntPart()
		}
		allocated += share
		breakdown = append(breakdown, BreakdownEntry{Name: r.Name, Rate: r.Percent, Amount: money.New(share, amount.Currency), ClassID: classID})
	}
	return Result{
		Subtotal:  money.New(preTax, amount.Currency),
		TaxAmount: money.New(tax, amount.Currency),
		Total:     amount,
		Breakdown: breakdown,
	}
}
