package discount

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/haliltoma/commerce-pricing/internal/money"
)

// Kind enumerates the supported discount types. Amount computation switches
// exhaustively over this set; an unknown kind is a configuration error.
type Kind string

const (
	KindPercentage   Kind = "percentage"
	KindFixedAmount  Kind = "fixed_amount"
	KindFreeShipping Kind = "free_shipping"
	KindBuyXGetY     Kind = "buy_x_get_y"
)

// Discount is a configured discount rule. Read-only from the engine's
// perspective; operators edit these rows elsewhere.
type Discount struct {
	ID   uuid.UUID
	Code string
	Kind Kind

	// Percent is the rate for percentage discounts; Amount is the minor-unit
	// value for fixed_amount discounts.
	Percent decimal.Decimal
	Amount  int64

	// Scope. Empty slices mean unscoped.
	ProductIDs       []uuid.UUID
	CategoryIDs      []uuid.UUID
	CustomerGroupIDs []string

	MinimumOrderAmount    *int64
	MaximumDiscountAmount *int64
	StartsAt              *time.Time
	EndsAt                *time.Time
	UsageLimit            *int32
	UsageCount            int32
	FirstOrderOnly        bool
	Active                bool

	// Priority orders application, lower first. A non-combinable discount
	// that applies suppresses everything after it.
	Priority   int
	Combinable bool

	// buy_x_get_y parameters.
	BuyQuantity        int
	GetQuantity        int
	GetDiscountPercent decimal.Decimal
}

// Line is a priced cart line presented for evaluation. Subtotal reflects the
// running state: net of discounts already applied by higher-priority rules.
type Line struct {
	ID         uuid.UUID
	VariantID  uuid.UUID
	ProductID  *uuid.UUID
	CategoryID *uuid.UUID
	Quantity   int
	UnitPrice  money.Money
	Subtotal   money.Money
}

// Cart is the priced state a discount evaluates against.
type Cart struct {
	Currency      string
	Lines         []Line
	ShippingTotal money.Money
}

// Subtotal sums the current line subtotals.
func (c Cart) Subtotal() int64 {
	var total int64
	for _, ln := range c.Lines {
		total += ln.Subtotal.Amount
	}
	return total
}

// Context carries the customer facts needed by the eligibility gate.
type Context struct {
	Now                time.Time
	CustomerGroupID    string
	CustomerOrderCount int
}

// Reason explains why a discount did not apply. Empty when it did.
type Reason string

const (
	ReasonInactive        Reason = "inactive"
	ReasonNotStarted      Reason = "not_started"
	ReasonExpired         Reason = "expired"
	ReasonUsageLimit      Reason = "usage_limit_reached"
	ReasonMinimumOrder    Reason = "minimum_order_not_met"
	ReasonFirstOrderOnly  Reason = "first_order_only"
	ReasonCustomerGroup   Reason = "customer_group_mismatch"
	ReasonNoEligibleLines Reason = "no_eligible_lines"
	ReasonZeroAmount      Reason = "zero_amount"
)

// Result is the outcome of evaluating one discount against a cart.
type Result struct {
	Applies         bool        `json:"applies"`
	Reason          Reason      `json:"reason,omitempty"`
	Amount          money.Money `json:"amount"`
	AffectedLineIDs []uuid.UUID `json:"affectedLineIds"`
}

// Applied pairs a discount with its evaluation result inside a stacking run.
type Applied struct {
	Discount Discount
	Result   Result
}

// Outcome is the state after sequentially applying a set of discounts.
type Outcome struct {
	Applied []Applied
	// Lines carries the post-discount subtotals; allocation is proportional
	// with largest-remainder rounding so the sums match exactly.
	Lines         []Line
	ShippingTotal money.Money
	Total         money.Money
}

// ErrUsageExhausted is returned by a UsageRecorder when the usage limit was
// consumed between evaluation and redemption.
var ErrUsageExhausted = errors.New("discount: usage limit exhausted")

// UsageRecorder persists a redemption after an order is finalized. The
// engine only evaluates and never calls this; the checkout caller invokes it
// inside the same transaction that writes the order row.
type UsageRecorder interface {
	IncrementUsage(ctx context.Context, discountID uuid.UUID) error
}
