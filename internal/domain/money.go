package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnitsPerMajor is the scale between major and minor units for the supported currencies.
const MinorUnitsPerMajor = 100

var (
	// ErrNegativeAmount indicates an amount below zero was supplied where only non-negative values are valid.
	ErrNegativeAmount = errors.New("domain: amount must not be negative")
	// ErrInvalidAmount indicates an amount could not be parsed or is not a finite number.
	ErrInvalidAmount = errors.New("domain: amount is not a finite decimal")
)

var minorScale = decimal.NewFromInt(MinorUnitsPerMajor)

// ToMinorUnits converts a major-unit amount to minor units using round-half-up.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, ErrNegativeAmount
	}
	scaled := amount.Mul(minorScale)
	// decimal.Round rounds half away from zero, which is half-up for non-negative input.
	rounded := scaled.Round(0)
	if rounded.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAmount, amount.String())
	}
	return rounded.IntPart(), nil
}

// FromMinorUnits converts a minor-unit integer back to a major-unit decimal.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// ToMinorUnitsFloat converts a float amount, rejecting NaN and infinities.
func ToMinorUnitsFloat(amount float64) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, ErrInvalidAmount
	}
	return ToMinorUnits(decimal.NewFromFloat(amount))
}

// ParseAmount parses a major-unit decimal string such as "16.24".
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	switch strings.ToLower(strings.TrimLeft(raw, "+-")) {
	case "nan", "inf", "infinity":
		return decimal.Zero, ErrInvalidAmount
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if amount.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}
	return amount, nil
}

// FormatAmount renders a major-unit amount with exactly two fraction digits.
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}
