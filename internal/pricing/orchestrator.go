package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/haliltoma/commerce-pricing/internal/discount"
	"github.com/haliltoma/commerce-pricing/internal/money"
	"github.com/haliltoma/commerce-pricing/internal/obs"
	"github.com/haliltoma/commerce-pricing/internal/pricelist"
	"github.com/haliltoma/commerce-pricing/internal/shipping"
	"github.com/haliltoma/commerce-pricing/internal/tax"
)

// ErrNotConfigured indicates the engine is missing a required collaborator.
var ErrNotConfigured = errors.New("pricing: engine not configured")

// Line is a raw cart line before pricing.
type Line struct {
	ID         uuid.UUID  `json:"id"`
	VariantID  uuid.UUID  `json:"variantId"`
	ProductID  *uuid.UUID `json:"productId,omitempty"`
	CategoryID *uuid.UUID `json:"categoryId,omitempty"`
	Quantity   int        `json:"quantity"`
	Taxable    bool       `json:"taxable"`
}

// Cart is the raw input to a pricing pass.
type Cart struct {
	ID                 uuid.UUID    `json:"id"`
	Currency           string       `json:"currency"`
	Lines              []Line       `json:"lines"`
	Destination        *tax.Address `json:"destination,omitempty"`
	RegionID           string       `json:"regionId,omitempty"`
	CustomerGroupID    string       `json:"customerGroupId,omitempty"`
	CustomerOrderCount int          `json:"customerOrderCount"`
}

// Config is the read-only store configuration snapshot for one pass. The
// caller loads everything up front; the engine performs no I/O on it.
type Config struct {
	PriceLists       []pricelist.PriceList
	Discounts        []discount.Discount
	TaxRates         []tax.Rate
	PricesIncludeTax bool
	// Now anchors every time comparison in the pass, keeping repeated runs
	// over the same snapshot byte-identical.
	Now time.Time
}

// Catalog supplies variant facts the cart does not carry itself.
type Catalog interface {
	GetBasePrice(ctx context.Context, variantID uuid.UUID) (money.Money, error)
	GetTaxClass(ctx context.Context, variantID uuid.UUID) (*uuid.UUID, error)
}

// PricedLine is a fully priced cart line.
type PricedLine struct {
	ID             uuid.UUID   `json:"id"`
	VariantID      uuid.UUID   `json:"variantId"`
	ProductID      *uuid.UUID  `json:"productId,omitempty"`
	CategoryID     *uuid.UUID  `json:"categoryId,omitempty"`
	Quantity       int         `json:"quantity"`
	UnitPrice      money.Money `json:"unitPrice"`
	Subtotal       money.Money `json:"subtotal"`
	DiscountAmount money.Money `json:"discountAmount"`
	Total          money.Money `json:"total"`
	TaxClassID     *uuid.UUID  `json:"taxClassId,omitempty"`
	Taxable        bool        `json:"taxable"`
	// PriceSource reports whether a price list or the catalog base price won.
	PriceSource string `json:"priceSource"`
}

// Warning is a soft per-line failure surfaced alongside a best-effort cart.
type Warning struct {
	LineID  uuid.UUID `json:"lineId"`
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
}

// PricedCart is the deterministic output of one pricing pass.
type PricedCart struct {
	CartID        uuid.UUID            `json:"cartId"`
	Currency      string               `json:"currency"`
	Lines         []PricedLine         `json:"lines"`
	Subtotal      money.Money          `json:"subtotal"`
	DiscountTotal money.Money          `json:"discountTotal"`
	TaxTotal      money.Money          `json:"taxTotal"`
	ShippingTotal money.Money          `json:"shippingTotal"`
	GrandTotal    money.Money          `json:"grandTotal"`
	Discounts     []discount.Applied   `json:"discounts"`
	TaxBreakdown  []tax.BreakdownEntry `json:"taxBreakdown"`
	Warnings      []Warning            `json:"warnings"`
	// TotalClamped is set when the grand total was floored at zero.
	TotalClamped bool `json:"totalClamped"`
}

// Engine wires the pure calculators to their collaborators. One pricing pass
// reads immutable inputs and returns a new output, so a single Engine is
// safe for concurrent use across requests.
type Engine struct {
	Catalog  Catalog
	Shipping shipping.Quoter
	Logger   zerolog.Logger
}

// PriceCart runs the full pricing pipeline: price resolution, subtotal,
// discounts, shipping, tax, grand total. Per-line soft failures are
// collected as warnings; currency mismatches and arithmetic faults abort
// the pass.
func (e *Engine) PriceCart(ctx context.Context, cart Cart, cfg Config) (PricedCart, error) {
	if e == nil || e.Catalog == nil {
		return PricedCart{}, ErrNotConfigured
	}
	start := time.Now()
	out, err := e.priceCart(ctx, cart, cfg)
	observePass(start, err)
	return out, err
}

func (e *Engine) priceCart(ctx context.Context, cart Cart, cfg Config) (PricedCart, error) {
	out := PricedCart{
		CartID:        cart.ID,
		Currency:      cart.Currency,
		Lines:         make([]PricedLine, 0, len(cart.Lines)),
		Subtotal:      money.Zero(cart.Currency),
		DiscountTotal: money.Zero(cart.Currency),
		TaxTotal:      money.Zero(cart.Currency),
		ShippingTotal: money.Zero(cart.Currency),
		GrandTotal:    money.Zero(cart.Currency),
		TaxBreakdown:  []tax.BreakdownEntry{},
		Warnings:      []Warning{},
	}

	resolver := pricelist.Resolver{Lists: cfg.PriceLists}
	plCtx := pricelist.Context{
		RegionID:        cart.RegionID,
		CustomerGroupID: cart.CustomerGroupID,
		AsOf:            cfg.Now,
	}

	// Step 1: per-line unit price resolution with base-price fallback.
	for _, ln := range cart.Lines {
		if ln.Quantity <= 0 {
			out.warn(ln.ID, "price_resolution", "quantity must be positive")
			continue
		}
		unitPrice, source, err := e.resolveUnitPrice(ctx, resolver, plCtx, ln)
		if err != nil {
			out.warn(ln.ID, "price_resolution", err.Error())
			continue
		}
		if unitPrice.Currency != cart.Currency {
			return PricedCart{}, fmt.Errorf("line %s: %w: price %s in %s cart", ln.ID, money.ErrCurrencyMismatch, unitPrice.Currency, cart.Currency)
		}
		classID, err := e.Catalog.GetTaxClass(ctx, ln.VariantID)
		if err != nil {
			out.warn(ln.ID, "tax_class", err.Error())
			classID = nil
		}
		subtotal := unitPrice.MultiplyQty(ln.Quantity)
		out.Lines = append(out.Lines, PricedLine{
			ID:          ln.ID,
			VariantID:   ln.VariantID,
			ProductID:   ln.ProductID,
			CategoryID:  ln.CategoryID,
			Quantity:    ln.Quantity,
			UnitPrice:   unitPrice,
			Subtotal:    subtotal,
			Total:       subtotal,
			TaxClassID:  classID,
			Taxable:     ln.Taxable,
			PriceSource: source,
		})
	}

	// Step 2: cart subtotal.
	subtotals := make([]money.Money, 0, len(out.Lines))
	for _, pl := range out.Lines {
		subtotals = append(subtotals, pl.Subtotal)
	}
	var err error
	out.Subtotal, err = money.Sum(cart.Currency, subtotals...)
	if err != nil {
		return PricedCart{}, err
	}

	// Steps 3 and 4: discounts and shipping in a single priority-ordered
	// run. The quote fires inside the run, right before the first
	// free-shipping discount is evaluated or after every discount when none
	// is reached, so a non-combinable discount of either kind suppresses
	// everything below it. A free-shipping amount equals the shipping
	// computed in this same pass and joins the discount total rather than
	// mutating the reported shipping line.
	dCtx := discount.Context{
		Now:                cfg.Now,
		CustomerGroupID:    cart.CustomerGroupID,
		CustomerOrderCount: cart.CustomerOrderCount,
	}
	dCart := discountCart(cart.Currency, out.Lines, money.Zero(cart.Currency))
	quotedShipping := money.Zero(cart.Currency)
	var quoteFn discount.ShippingQuoteFunc
	if e.Shipping != nil {
		quoteFn = func(state discount.Cart) (money.Money, error) {
			quote, err := e.Shipping.Quote(ctx, shipping.QuoteRequest{
				Currency:      cart.Currency,
				Subtotal:      money.New(state.Subtotal(), cart.Currency),
				TotalQuantity: totalQuantity(out.Lines),
				Destination:   destinationOrZero(cart),
			})
			if err != nil {
				return money.Money{}, fmt.Errorf("quote shipping: %w", err)
			}
			if quote.Currency != cart.Currency {
				return money.Money{}, fmt.Errorf("shipping quote: %w: %s in %s cart", money.ErrCurrencyMismatch, quote.Currency, cart.Currency)
			}
			quotedShipping = quote
			return quote, nil
		}
	}
	outcome, err := discount.EvaluateAllWithShipping(cfg.Discounts, dCart, dCtx, quoteFn)
	if err != nil {
		return PricedCart{}, err
	}
	out.Discounts = outcome.Applied
	out.DiscountTotal = outcome.Total
	out.ShippingTotal = quotedShipping
	applyLineOutcome(&out, outcome)
	countDiscountOutcomes(out.Discounts)

	// Step 5: tax over post-discount line amounts, grouped by class.
	if cart.Destination != nil {
		calc := tax.Calculator{Rates: cfg.TaxRates, PricesIncludeTax: cfg.PricesIncludeTax}
		taxLines := make([]tax.Line, 0, len(out.Lines))
		for _, pl := range out.Lines {
			taxLines = append(taxLines, tax.Line{Amount: pl.Total, ClassID: pl.TaxClassID, Taxable: pl.Taxable})
		}
		taxRes := calc.CalculateForLines(taxLines, *cart.Destination)
		out.TaxTotal = taxRes.TaxAmount
		out.TaxBreakdown = taxRes.Breakdown
	}

	// Step 6: grand total, floored at zero. In inclusive mode the line
	// amounts already carry tax, so it is not added again.
	grand := out.Subtotal.Amount - out.DiscountTotal.Amount + out.ShippingTotal.Amount
	if !cfg.PricesIncludeTax {
		grand += out.TaxTotal.Amount
	}
	if grand < 0 {
		e.Logger.Warn().
			Str("cart_id", cart.ID.String()).
			Int64("raw_total", grand).
			Msg("grand total clamped to zero")
		if obs.NegativeTotalClamps != nil {
			obs.NegativeTotalClamps.Inc()
		}
		grand = 0
		out.TotalClamped = true
	}
	out.GrandTotal = money.New(grand, cart.Currency)
	return out, nil
}

func (e *Engine) resolveUnitPrice(ctx context.Context, resolver pricelist.Resolver, plCtx pricelist.Context, ln Line) (money.Money, string, error) {
	if price, ok := resolver.Resolve(ln.VariantID, ln.Quantity, plCtx); ok {
		return price, "price_list", nil
	}
	base, err := e.Catalog.GetBasePrice(ctx, ln.VariantID)
	if err != nil {
		return money.Money{}, "", fmt.Errorf("base price: %w", err)
	}
	return base, "base_price", nil
}

func (out *PricedCart) warn(lineID uuid.UUID, stage, message string) {
	out.Warnings = append(out.Warnings, Warning{LineID: lineID, Stage: stage, Message: message})
	if obs.PricingLineFailures != nil {
		obs.PricingLineFailures.WithLabelValues(stage).Inc()
	}
}

// applyLineOutcome copies post-discount subtotals back onto the priced lines
// for line-level reporting.
func applyLineOutcome(out *PricedCart, outcome discount.Outcome) {
	byID := make(map[uuid.UUID]discount.Line, len(outcome.Lines))
	for _, ln := range outcome.Lines {
		byID[ln.ID] = ln
	}
	for i := range out.Lines {
		after, ok := byID[out.Lines[i].ID]
		if !ok {
			continue
		}
		out.Lines[i].DiscountAmount = money.New(out.Lines[i].Subtotal.Amount-after.Subtotal.Amount, out.Lines[i].Subtotal.Currency)
		out.Lines[i].Total = after.Subtotal
	}
}

func discountCart(currency string, lines []PricedLine, shippingTotal money.Money) discount.Cart {
	dLines := make([]discount.Line, 0, len(lines))
	for _, pl := range lines {
		dLines = append(dLines, discount.Line{
			ID:         pl.ID,
			VariantID:  pl.VariantID,
			ProductID:  pl.ProductID,
			CategoryID: pl.CategoryID,
			Quantity:   pl.Quantity,
			UnitPrice:  pl.UnitPrice,
			Subtotal:   pl.Subtotal,
		})
	}
	return discount.Cart{Currency: currency, Lines: dLines, ShippingTotal: shippingTotal}
}

func totalQuantity(lines []PricedLine) int {
	var total int
	for _, pl := range lines {
		total += pl.Quantity
	}
	return total
}

func destinationOrZero(cart Cart) tax.Address {
	if cart.Destination != nil {
		return *cart.Destination
	}
	return tax.Address{}
}

func observePass(start time.Time, err error) {
	if obs.PricingDuration != nil {
		obs.PricingDuration.Observe(obs.DurationMillis(time.Since(start)))
	}
	if obs.PricingTotal != nil {
		result := "ok"
		if err != nil {
			result = "aborted"
		}
		obs.PricingTotal.WithLabelValues(result).Inc()
	}
}

func countDiscountOutcomes(applied []discount.Applied) {
	if obs.DiscountApplications == nil {
		return
	}
	for _, a := range applied {
		outcome := "applied"
		if !a.Result.Applies {
			outcome = string(a.Result.Reason)
		}
		obs.DiscountApplications.WithLabelValues(string(a.Discount.Kind), outcome).Inc()
	}
}
