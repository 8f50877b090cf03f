package shipping

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/haliltoma/commerce-pricing/internal/money"
	"github.com/haliltoma/commerce-pricing/internal/tax"
)

// ErrUnknownQuoter is returned when resolving a quoter name that was never
// registered.
var ErrUnknownQuoter = errors.New("shipping: unknown quoter")

// QuoteRequest describes the post-discount cart a shipping quote is based on.
type QuoteRequest struct {
	Currency      string
	Subtotal      money.Money
	TotalQuantity int
	Destination   tax.Address
}

// Quoter produces a shipping total for a cart. Invoked once per pricing
// pass, after discounts are known and before tax.
type Quoter interface {
	Quote(ctx context.Context, req QuoteRequest) (money.Money, error)
}

// Registry resolves quoters by name at startup. Lookups after construction
// are read-only, so a Registry is safe for concurrent use.
type Registry struct {
	quoters map[string]Quoter
}

// NewRegistry builds a registry from named quoters.
func NewRegistry(quoters map[string]Quoter) *Registry {
	r := &Registry{quoters: make(map[string]Quoter, len(quoters))}
	for name, q := range quoters {
		r.quoters[strings.ToLower(strings.TrimSpace(name))] = q
	}
	return r
}

// Resolve returns the quoter registered under name.
func (r *Registry) Resolve(name string) (Quoter, error) {
	if r == nil {
		return nil, ErrUnknownQuoter
	}
	q, ok := r.quoters[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		names := make([]string, 0, len(r.quoters))
		for n := range r.quoters {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("%w: %q (registered: %s)", ErrUnknownQuoter, name, strings.Join(names, ", "))
	}
	return q, nil
}

// FlatRate charges a fixed amount regardless of cart contents.
type FlatRate struct {
	Amount money.Money
}

// Quote implements Quoter.
func (f FlatRate) Quote(_ context.Context, req QuoteRequest) (money.Money, error) {
	if req.TotalQuantity <= 0 {
		return money.Zero(req.Currency), nil
	}
	return money.New(f.Amount.Amount, req.Currency), nil
}

// TableRate charges a base amount and waives it above a free-shipping
// threshold on the post-discount subtotal.
type TableRate struct {
	Base          money.Money
	FreeThreshold money.Money
}

// Quote implements Quoter.
func (t TableRate) Quote(_ context.Context, req QuoteRequest) (money.Money, error) {
	if req.TotalQuantity <= 0 {
		return money.Zero(req.Currency), nil
	}
	if t.FreeThreshold.Amount > 0 && req.Subtotal.Amount >= t.FreeThreshold.Amount {
		return money.Zero(req.Currency), nil
	}
	return money.New(t.Base.Amount, req.Currency), nil
}
