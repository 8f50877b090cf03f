package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrDivisionByZero is returned when a Money value is divided by zero.
	ErrDivisionByZero = errors.New("money: division by zero")
	// ErrCurrencyMismatch is returned when two Money values of different currencies are combined.
	ErrCurrencyMismatch = errors.New("money: currency mismatch")
)

// minorUnitExponent is the number of decimal digits in one major unit.
// All supported currencies use two (cents, sen, centavos).
const minorUnitExponent = 2

// Money is a monetary amount stored as an integer count of minor units.
// Arithmetic never leaves the integer domain; decimals appear only at the
// formatting boundary via FromDecimal and Decimal.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// New constructs a Money value from minor units.
func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// Zero returns the zero amount in the given currency.
func Zero(currency string) Money {
	return Money{Currency: currency}
}

// FromDecimal converts a major-unit decimal (e.g. 19.99) into minor units,
// rounding half-up once.
func FromDecimal(d decimal.Decimal, currency string) Money {
	return Money{Amount: d.Shift(minorUnitExponent).Round(0).IntPart(), Currency: currency}
}

// Decimal returns the major-unit decimal representation.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -minorUnitExponent)
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Equal reports exact minor-unit and currency equality.
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// Add returns m + other. Currencies must match.
func (m Money) Add(other Money) (Money, error) {
	if err := m.checkCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Subtract returns m - other. Currencies must match.
func (m Money) Subtract(other Money) (Money, error) {
	if err := m.checkCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

// MultiplyQty scales the amount by an integer quantity.
func (m Money) MultiplyQty(qty int) Money {
	return Money{Amount: m.Amount * int64(qty), Currency: m.Currency}
}

// Divide splits the amount by a divisor with half-up rounding.
func (m Money) Divide(divisor int64) (Money, error) {
	if divisor == 0 {
		return Money{}, ErrDivisionByZero
	}
	return Money{Amount: divRoundHalfUp(m.Amount, divisor), Currency: m.Currency}, nil
}

// Percent computes the given percentage of the amount, rounding half-up once.
func (m Money) Percent(percent decimal.Decimal) Money {
	amount := decimal.NewFromInt(m.Amount).Mul(percent).Div(decimal.NewFromInt(100)).Round(0).IntPart()
	return Money{Amount: amount, Currency: m.Currency}
}

// Convert multiplies the amount by an exchange rate into a target currency.
// It is a plain rate multiplication with one half-up rounding, nothing more.
func (m Money) Convert(rate decimal.Decimal, currency string) Money {
	amount := decimal.NewFromInt(m.Amount).Mul(rate).Round(0).IntPart()
	return Money{Amount: amount, Currency: currency}
}

// Min returns the smaller of two amounts. Currencies must match.
func Min(a, b Money) (Money, error) {
	if err := a.checkCurrency(b); err != nil {
		return Money{}, err
	}
	if b.Amount < a.Amount {
		return b, nil
	}
	return a, nil
}

// Max returns the larger of two amounts. Currencies must match.
func Max(a, b Money) (Money, error) {
	if err := a.checkCurrency(b); err != nil {
		return Money{}, err
	}
	if b.Amount > a.Amount {
		return b, nil
	}
	return a, nil
}

// Sum adds all values in the given currency. An empty list yields zero.
func Sum(currency string, values ...Money) (Money, error) {
	total := Money{Currency: currency}
	for _, v := range values {
		var err error
		total, err = total.Add(v)
		if err != nil {
			return Money{}, err
		}
	}
	return total, nil
}

// String renders the amount as a decimal with its currency code.
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Decimal().StringFixed(minorUnitExponent), m.Currency)
}

func (m Money) checkCurrency(other Money) error {
	if m.Currency != other.Currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return nil
}

// divRoundHalfUp divides n by d rounding halves away from zero.
func divRoundHalfUp(n, d int64) int64 {
	if d < 0 {
		n, d = -n, -d
	}
	if n >= 0 {
		return (2*n + d) / (2 * d)
	}
	return -((2*(-n) + d) / (2 * d))
}
