package pricelist

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haliltoma/commerce-pricing/internal/money"
)

// Type distinguishes promotional sale prices from unconditional overrides.
type Type string

const (
	// TypeSale marks a promotional reduction of the base price.
	TypeSale Type = "sale"
	// TypeOverride replaces the base price unconditionally and wins over sales.
	TypeOverride Type = "override"
)

// Status is the lifecycle state of a price list.
type Status string

const (
	StatusDraft   Status = "draft"
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
)

// Rule attributes understood by the resolver.
const (
	AttrCustomerGroup = "customer_group_id"
	AttrRegion        = "region_id"
)

// Rule operators.
const (
	OpEq = "eq"
	OpNe = "ne"
	OpIn = "in"
)

// Rule scopes a price list to a context attribute. A list with zero rules
// applies universally; an unknown attribute or operator never matches.
type Rule struct {
	Attribute string
	Operator  string
	Values    []string
}

// Entry is one variant price inside a list. Nil quantity bounds are
// unbounded.
type Entry struct {
	VariantID   uuid.UUID
	Amount      int64
	Currency    string
	MinQuantity *int
	MaxQuantity *int
}

// PriceList is a named, optionally time-boxed set of price entries scoped by
// rules. Configuration data, read-only from the resolver's perspective.
type PriceList struct {
	ID       uuid.UUID
	Name     string
	Type     Type
	Status   Status
	StartsAt *time.Time
	EndsAt   *time.Time
	Rules    []Rule
	Entries  []Entry
}

// activeAt reports whether the list is usable at the given instant.
func (l PriceList) activeAt(at time.Time) bool {
	if l.Status != StatusActive {
		return false
	}
	if l.StartsAt != nil && at.Before(*l.StartsAt) {
		return false
	}
	if l.EndsAt != nil && at.After(*l.EndsAt) {
		return false
	}
	return true
}

// Context carries the customer and region scope for a resolution.
type Context struct {
	RegionID        string
	CustomerGroupID string
	AsOf            time.Time
}

// rulesMatch requires every rule on the list to hold against the context.
func rulesMatch(rules []Rule, ctx Context) bool {
	for _, r := range rules {
		if !ruleMatches(r, ctx) {
			return false
		}
	}
	return true
}

func ruleMatches(r Rule, ctx Context) bool {
	var actual string
	switch r.Attribute {
	case AttrCustomerGroup:
		actual = ctx.CustomerGroupID
	case AttrRegion:
		actual = ctx.RegionID
	default:
		return false
	}
	switch r.Operator {
	case OpEq:
		return len(r.Values) == 1 && strings.EqualFold(r.Values[0], actual)
	case OpNe:
		return len(r.Values) == 1 && !strings.EqualFold(r.Values[0], actual)
	case OpIn:
		for _, v := range r.Values {
			if strings.EqualFold(v, actual) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Resolver selects the effective unit price among the configured lists.
// Stateless; safe for concurrent use over an immutable snapshot.
type Resolver struct {
	Lists []PriceList
}

type candidate struct {
	list  PriceList
	entry Entry
}

// Resolve returns the winning unit price for a variant and quantity, or
// false when no list applies and the caller should fall back to the
// variant's base price.
//
// Tie-breaks, in order: override beats sale, then lowest price, then the
// narrowest quantity range.
func (r Resolver) Resolve(variantID uuid.UUID, quantity int, ctx Context) (money.Money, bool) {
	var winner *candidate
	for _, list := range r.Lists {
		if !list.activeAt(ctx.AsOf) {
			continue
		}
		if !rulesMatch(list.Rules, ctx) {
			continue
		}
		for _, e := range list.Entries {
			if e.VariantID != variantID {
				continue
			}
			if e.MinQuantity != nil && quantity < *e.MinQuantity {
				continue
			}
			if e.MaxQuantity != nil && quantity > *e.MaxQuantity {
				continue
			}
			c := candidate{list: list, entry: e}
			if winner == nil || c.beats(*winner) {
				winner = &c
			}
		}
	}
	if winner == nil {
		return money.Money{}, false
	}
	return money.New(winner.entry.Amount, winner.entry.Currency), true
}

// beats implements the selection order between two surviving candidates.
func (c candidate) beats(other candidate) bool {
	if c.list.Type != other.list.Type {
		return c.list.Type == TypeOverride
	}
	if c.entry.Amount != other.entry.Amount {
		return c.entry.Amount < other.entry.Amount
	}
	return c.entry.quantityRange() < other.entry.quantityRange()
}

// quantityRange measures the width of the entry's quantity window; absent
// bounds count as unbounded.
func (e Entry) quantityRange() float64 {
	lo := 0.0
	if e.MinQuantity != nil {
		lo = float64(*e.MinQuantity)
	}
	hi := math.Inf(1)
	if e.MaxQuantity != nil {
		hi = float64(*e.MaxQuantity)
	}
	return hi - lo
}
