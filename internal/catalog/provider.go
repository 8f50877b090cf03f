package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/haliltoma/commerce-pricing/internal/money"
)

// ErrVariantNotFound is returned when a variant does not exist in the catalog.
var ErrVariantNotFound = errors.New("catalog: variant not found")

const variantQuery = `
SELECT base_price, currency, tax_class_id
FROM product_variants
WHERE id = $1`

type dbQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// variantFact is the slice of catalog data pricing needs per variant.
type variantFact struct {
	BasePrice  int64      `json:"basePrice"`
	Currency   string     `json:"currency"`
	TaxClassID *uuid.UUID `json:"taxClassId,omitempty"`
}

// Provider loads variant pricing facts from Postgres with a Redis
// read-through cache in front.
type Provider struct {
	db     dbQuerier
	cache  *Cache
	logger zerolog.Logger
}

// ProviderConfig groups Provider dependencies.
type ProviderConfig struct {
	DB     dbQuerier
	Cache  *Cache
	Logger zerolog.Logger
}

// NewProvider constructs a Provider.
func NewProvider(cfg ProviderConfig) *Provider {
	return &Provider{db: cfg.DB, cache: cfg.Cache, logger: cfg.Logger}
}

// GetBasePrice returns the catalog price for a variant.
func (p *Provider) GetBasePrice(ctx context.Context, variantID uuid.UUID) (money.Money, error) {
	fact, err := p.loadFact(ctx, variantID)
	if err != nil {
		return money.Money{}, err
	}
	return money.New(fact.BasePrice, fact.Currency), nil
}

// GetTaxClass returns the variant's tax class, or nil when it has none.
func (p *Provider) GetTaxClass(ctx context.Context, variantID uuid.UUID) (*uuid.UUID, error) {
	fact, err := p.loadFact(ctx, variantID)
	if err != nil {
		return nil, err
	}
	return fact.TaxClassID, nil
}

func (p *Provider) loadFact(ctx context.Context, variantID uuid.UUID) (variantFact, error) {
	key := variantKey(variantID)
	var fact variantFact
	hit, err := p.cache.GetJSON(ctx, key, &fact)
	if err != nil {
		// A broken cache degrades to a database read.
		p.logger.Warn().Err(err).Str("variant_id", variantID.String()).Msg("catalog cache read failed")
	}
	if hit {
		return fact, nil
	}
	if p.db == nil {
		return variantFact{}, errors.New("catalog: database not configured")
	}
	row := p.db.QueryRow(ctx, variantQuery, variantID)
	if err := row.Scan(&fact.BasePrice, &fact.Currency, &fact.TaxClassID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return variantFact{}, fmt.Errorf("%w: %s", ErrVariantNotFound, variantID)
		}
		return variantFact{}, fmt.Errorf("load variant %s: %w", variantID, err)
	}
	if err := p.cache.SetJSON(ctx, key, fact); err != nil {
		p.logger.Warn().Err(err).Str("variant_id", variantID.String()).Msg("catalog cache write failed")
	}
	return fact, nil
}

func variantKey(variantID uuid.UUID) string {
	return "catalog:variant:" + variantID.String()
}
