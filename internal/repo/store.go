package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/haliltoma/commerce-pricing/internal/discount"
	"github.com/haliltoma/commerce-pricing/internal/pricelist"
	"github.com/haliltoma/commerce-pricing/internal/pricing"
	"github.com/haliltoma/commerce-pricing/internal/tax"
)

// Querier is the database surface the store uses. *pgxpool.Pool satisfies it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store loads the pricing configuration snapshot from Postgres. One
// LoadConfig call reads everything a pricing pass needs, so the engine
// itself stays free of I/O.
type Store struct {
	pool Querier
	// PricesIncludeTax mirrors the store-level tax display setting.
	PricesIncludeTax bool
}

// NewStore constructs a Store.
func NewStore(pool Querier, pricesIncludeTax bool) *Store {
	return &Store{pool: pool, PricesIncludeTax: pricesIncludeTax}
}

// LoadConfig loads tax rates, active price lists, and discounts. The caller
// sets Config.Now.
func (s *Store) LoadConfig(ctx context.Context) (pricing.Config, error) {
	rates, err := s.loadTaxRates(ctx)
	if err != nil {
		return pricing.Config{}, fmt.Errorf("load tax rates: %w", err)
	}
	lists, err := s.loadPriceLists(ctx)
	if err != nil {
		return pricing.Config{}, fmt.Errorf("load price lists: %w", err)
	}
	discounts, err := s.loadDiscounts(ctx)
	if err != nil {
		return pricing.Config{}, fmt.Errorf("load discounts: %w", err)
	}
	return pricing.Config{
		TaxRates:         rates,
		PriceLists:       lists,
		Discounts:        discounts,
		PricesIncludeTax: s.PricesIncludeTax,
	}, nil
}

const taxRatesQuery = `
SELECT id, name, country, state, city, postal_code, percent::text, priority, compound, tax_class_id
FROM tax_rates
ORDER BY priority, id`

func (s *Store) loadTaxRates(ctx context.Context) ([]tax.Rate, error) {
	rows, err := s.pool.Query(ctx, taxRatesQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rates []tax.Rate
	for rows.Next() {
		var (
			r       tax.Rate
			percent string
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Country, &r.State, &r.City, &r.PostalCode, &percent, &r.Priority, &r.Compound, &r.ClassID); err != nil {
			return nil, err
		}
		r.Percent, err = decimal.NewFromString(percent)
		if err != nil {
			return nil, fmt.Errorf("tax rate %s: bad percent %q: %w", r.ID, percent, err)
		}
		rates = append(rates, r)
	}
	return rates, rows.Err()
}

const priceListsQuery = `
SELECT id, name, type, status, starts_at, ends_at
FROM price_lists
WHERE status <> 'draft'
ORDER BY id`

const priceListRulesQuery = `
SELECT price_list_id, attribute, operator, values
FROM price_list_rules
ORDER BY price_list_id`

const priceListEntriesQuery = `
SELECT price_list_id, variant_id, amount, currency, min_quantity, max_quantity
FROM price_list_entries
ORDER BY price_list_id`

func (s *Store) loadPriceLists(ctx context.Context) ([]pricelist.PriceList, error) {
	rows, err := s.pool.Query(ctx, priceListsQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lists []pricelist.PriceList
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var (
			pl               pricelist.PriceList
			typ, status      string
			startsAt, endsAt *time.Time
		)
		if err := rows.Scan(&pl.ID, &pl.Name, &typ, &status, &startsAt, &endsAt); err != nil {
			return nil, err
		}
		pl.Type = pricelist.Type(typ)
		pl.Status = pricelist.Status(status)
		pl.StartsAt = startsAt
		pl.EndsAt = endsAt
		index[pl.ID] = len(lists)
		lists = append(lists, pl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.attachRules(ctx, lists, index); err != nil {
		return nil, err
	}
	if err := s.attachEntries(ctx, lists, index); err != nil {
		return nil, err
	}
	return lists, nil
}

func (s *Store) attachRules(ctx context.Context, lists []pricelist.PriceList, index map[uuid.UUID]int) error {
	rows, err := s.pool.Query(ctx, priceListRulesQuery)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			listID uuid.UUID
			rule   pricelist.Rule
		)
		if err := rows.Scan(&listID, &rule.Attribute, &rule.Operator, &rule.Values); err != nil {
			return err
		}
		i, ok := index[listID]
		if !ok {
			continue
		}
		lists[i].Rules = append(lists[i].Rules, rule)
	}
	return rows.Err()
}

func (s *Store) attachEntries(ctx context.Context, lists []pricelist.PriceList, index map[uuid.UUID]int) error {
	rows, err := s.pool.Query(ctx, priceListEntriesQuery)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			listID uuid.UUID
			entry  pricelist.Entry
		)
		if err := rows.Scan(&listID, &entry.VariantID, &entry.Amount, &entry.Currency, &entry.MinQuantity, &entry.MaxQuantity); err != nil {
			return err
		}
		i, ok := index[listID]
		if !ok {
			continue
		}
		lists[i].Entries = append(lists[i].Entries, entry)
	}
	return rows.Err()
}

const discountsQuery = `
SELECT id, code, kind, percent::text, amount,
       product_ids::text[], category_ids::text[], customer_group_ids,
       min_order_amount, max_discount_amount,
       starts_at, ends_at, usage_limit, usage_count,
       first_order_only, active, priority, combinable,
       buy_quantity, get_quantity, get_discount_percent::text
FROM discounts
WHERE active
ORDER BY priority, id`

func (s *Store) loadDiscounts(ctx context.Context) ([]discount.Discount, error) {
	rows, err := s.pool.Query(ctx, discountsQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var discounts []discount.Discount
	for rows.Next() {
		var (
			d                   discount.Discount
			percent, getPercent string
			productIDs          []string
			categoryIDs         []string
		)
		if err := rows.Scan(
			&d.ID, &d.Code, &d.Kind, &percent, &d.Amount,
			&productIDs, &categoryIDs, &d.CustomerGroupIDs,
			&d.MinimumOrderAmount, &d.MaximumDiscountAmount,
			&d.StartsAt, &d.EndsAt, &d.UsageLimit, &d.UsageCount,
			&d.FirstOrderOnly, &d.Active, &d.Priority, &d.Combinable,
			&d.BuyQuantity, &d.GetQuantity, &getPercent,
		); err != nil {
			return nil, err
		}
		d.ProductIDs, err = parseUUIDs(productIDs)
		if err != nil {
			return nil, fmt.Errorf("discount %s: bad product id: %w", d.ID, err)
		}
		d.CategoryIDs, err = parseUUIDs(categoryIDs)
		if err != nil {
			return nil, fmt.Errorf("discount %s: bad category id: %w", d.ID, err)
		}
		d.Percent, err = decimal.NewFromString(percent)
		if err != nil {
			return nil, fmt.Errorf("discount %s: bad percent %q: %w", d.ID, percent, err)
		}
		d.GetDiscountPercent, err = decimal.NewFromString(getPercent)
		if err != nil {
			return nil, fmt.Errorf("discount %s: bad get percent %q: %w", d.ID, getPercent, err)
		}
		discounts = append(discounts, d)
	}
	return discounts, rows.Err()
}

func parseUUIDs(values []string) ([]uuid.UUID, error) {
	if len(values) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", v, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

const recordUsageQuery = `
UPDATE discounts
SET usage_count = usage_count + 1
WHERE id = $1
  AND (usage_limit IS NULL OR usage_count < usage_limit)`

// IncrementUsage atomically consumes one use of a discount. It fails when
// the usage limit is already exhausted, so concurrent checkouts cannot
// overspend a limited code.
func (s *Store) IncrementUsage(ctx context.Context, discountID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, recordUsageQuery, discountID)
	if err != nil {
		return fmt.Errorf("record discount usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrUsageExhausted
	}
	return nil
}
