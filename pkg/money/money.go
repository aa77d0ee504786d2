// Package money holds the ledger's fixed-point cents arithmetic. Values are
// integer minor units; conversion to display strings happens only in Format.
package money

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/wildroots/wildroots-backend/pkg/enums"
)

// Cents is an amount in minor currency units.
type Cents int64

var (
	ErrNegative = errors.New("money: result would be negative")
	ErrOverflow = errors.New("money: arithmetic overflow")
)

// Int64 returns the raw cents value.
func (c Cents) Int64() int64 {
	return int64(c)
}

// IsNegative reports whether c is below zero.
func (c Cents) IsNegative() bool {
	return c < 0
}

// Add sums two non-negative amounts, rejecting negative inputs and overflow.
func Add(a, b Cents) (Cents, error) {
	if a < 0 || b < 0 {
		return 0, ErrNegative
	}
	if a > math.MaxInt64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// SubtractNonNegative returns a-b and fails instead of going below zero.
func SubtractNonNegative(a, b Cents) (Cents, error) {
	if a < 0 || b < 0 {
		return 0, ErrNegative
	}
	if b > a {
		return 0, ErrNegative
	}
	return a - b, nil
}

// Sub is signed subtraction for derived figures that may legitimately go
// negative, such as a realized site tip after fees.
func Sub(a, b Cents) Cents {
	return a - b
}

// SplitFee splits a charged amount into the project's credited portion and
// the platform's site tip. Neither portion may be negative.
func SplitFee(amount, projectAmount Cents) (Cents, error) {
	if projectAmount < 0 {
		return 0, fmt.Errorf("project amount %d: %w", projectAmount, ErrNegative)
	}
	tip, err := SubtractNonNegative(amount, projectAmount)
	if err != nil {
		return 0, fmt.Errorf("amount %d below project amount %d: %w", amount, projectAmount, err)
	}
	return tip, nil
}

// FeeSchedule is a percentage-plus-fixed processing fee.
type FeeSchedule struct {
	PercentBasisPoints int64
	Fixed              Cents
}

func (f FeeSchedule) rate() decimal.Decimal {
	return decimal.NewFromInt(f.PercentBasisPoints).Div(decimal.NewFromInt(10000))
}

// EstimateFee returns the fee the schedule charges on amount, rounded up to the cent.
func EstimateFee(amount Cents, schedule FeeSchedule) (Cents, error) {
	if amount < 0 {
		return 0, ErrNegative
	}
	fee := decimal.NewFromInt(int64(amount)).Mul(schedule.rate()).Add(decimal.NewFromInt(int64(schedule.Fixed)))
	return Cents(fee.Ceil().IntPart()), nil
}

// GrossUp returns the smallest charge whose net after fees is at least base.
func GrossUp(base Cents, schedule FeeSchedule) (Cents, error) {
	if base < 0 {
		return 0, ErrNegative
	}
	if base == 0 {
		return 0, nil
	}
	one := decimal.NewFromInt(1)
	rate := schedule.rate()
	if !rate.LessThan(one) {
		return 0, fmt.Errorf("fee rate %s must be below 100%%", rate.String())
	}
	gross := decimal.NewFromInt(int64(base)).
		Add(decimal.NewFromInt(int64(schedule.Fixed))).
		Div(one.Sub(rate)).
		Ceil()
	total := Cents(gross.IntPart())
	// ceil on the quotient can still leave the net one cent short after the fee rounds up
	for {
		fee, err := EstimateFee(total, schedule)
		if err != nil {
			return 0, err
		}
		if total-fee >= base {
			return total, nil
		}
		total++
	}
}

// Format renders c for display, e.g. "$97.00". Only presentation code should call it.
func Format(c Cents, currency enums.Currency) string {
	value := decimal.New(int64(c), -2).StringFixed(2)
	if currency == "" {
		currency = enums.CurrencyUSD
	}
	symbol := currency.Symbol()
	switch {
	case symbol == "":
		return value + " " + currency.String()
	case c < 0:
		return "-" + symbol + value[1:]
	default:
		return symbol + value
	}
}
