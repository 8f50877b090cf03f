package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type fakeRow struct {
	price    int64
	currency string
	classID  *uuid.UUID
	err      error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int64) = r.price
	*dest[1].(*string) = r.currency
	*dest[2].(**uuid.UUID) = r.classID
	return nil
}

type fakeDB struct {
	rows  map[uuid.UUID]fakeRow
	calls int
}

func (f *fakeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	f.calls++
	id := args[0].(uuid.UUID)
	row, ok := f.rows[id]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return row
}

func TestGetBasePrice(t *testing.T) {
	variant := uuid.New()
	db := &fakeDB{rows: map[uuid.UUID]fakeRow{
		variant: {price: 19_99, currency: "USD"},
	}}
	p := NewProvider(ProviderConfig{DB: db})

	price, err := p.GetBasePrice(context.Background(), variant)
	if err != nil {
		t.Fatalf("get base price: %v", err)
	}
	if price.Amount != 19_99 || price.Currency != "USD" {
		t.Fatalf("unexpected price %+v", price)
	}
}

func TestGetBasePriceNotFound(t *testing.T) {
	p := NewProvider(ProviderConfig{DB: &fakeDB{}})
	if _, err := p.GetBasePrice(context.Background(), uuid.New()); !errors.Is(err, ErrVariantNotFound) {
		t.Fatalf("expected ErrVariantNotFound, got %v", err)
	}
}

func TestGetTaxClass(t *testing.T) {
	variant := uuid.New()
	class := uuid.New()
	db := &fakeDB{rows: map[uuid.UUID]fakeRow{
		variant: {price: 10_00, currency: "USD", classID: &class},
	}}
	p := NewProvider(ProviderConfig{DB: db})

	got, err := p.GetTaxClass(context.Background(), variant)
	if err != nil {
		t.Fatalf("get tax class: %v", err)
	}
	if got == nil || *got != class {
		t.Fatalf("expected class %s, got %v", class, got)
	}
}

func TestGetTaxClassNilForUnclassified(t *testing.T) {
	variant := uuid.New()
	db := &fakeDB{rows: map[uuid.UUID]fakeRow{
		variant: {price: 10_00, currency: "USD"},
	}}
	p := NewProvider(ProviderConfig{DB: db})

	got, err := p.GetTaxClass(context.Background(), variant)
	if err != nil {
		t.Fatalf("get tax class: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil class, got %v", got)
	}
}

func TestNilCacheIsNoop(t *testing.T) {
	var c *Cache
	ctx := context.Background()
	var dst variantFact
	hit, err := c.GetJSON(ctx, "k", &dst)
	if err != nil || hit {
		t.Fatalf("nil cache must miss silently, got hit=%v err=%v", hit, err)
	}
	if err := c.SetJSON(ctx, "k", dst); err != nil {
		t.Fatalf("nil cache set: %v", err)
	}
	if err := c.Invalidate(ctx, "k"); err != nil {
		t.Fatalf("nil cache invalidate: %v", err)
	}
}

func TestProviderQueriesOncePerCall(t *testing.T) {
	variant := uuid.New()
	db := &fakeDB{rows: map[uuid.UUID]fakeRow{
		variant: {price: 10_00, currency: "USD"},
	}}
	p := NewProvider(ProviderConfig{DB: db})

	// Without a cache every call reaches the database.
	if _, err := p.GetBasePrice(context.Background(), variant); err != nil {
		t.Fatalf("get base price: %v", err)
	}
	if _, err := p.GetTaxClass(context.Background(), variant); err != nil {
		t.Fatalf("get tax class: %v", err)
	}
	if db.calls != 2 {
		t.Fatalf("expected 2 queries, got %d", db.calls)
	}
}
