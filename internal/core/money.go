// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// and converting between cents and the decimal representation persisted
// by the record store.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

var errInvalidAmount = &ValidationError{Field: "amount", Reason: "must be a positive decimal number"}

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. The result is always positive cents.
// Returns a ValidationError for invalid formats, negative values, or zero amounts.
//
// Examples:
//
//	ParseDecimalToCents("12.34") -> 1234, nil
//	ParseDecimalToCents("12,34") -> 1234, nil
//	ParseDecimalToCents("12.345") -> 1235, nil (rounds up)
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, errInvalidAmount
	}
	// ASCII digits with at most one separator; no exponent, no other scripts.
	dot := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '.' && !dot:
			dot = true
		case c < '0' || c > '9':
			return 0, errInvalidAmount
		}
	}
	if s[0] == '.' {
		s = "0" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errInvalidAmount
	}
	// Round is half away from zero, which is half-up for positive values.
	cents := d.Shift(2).Round(0)
	const maxSafeInt64 = 1<<63 - 1
	if !cents.IsPositive() || cents.GreaterThan(decimal.NewFromInt(maxSafeInt64)) {
		return 0, errInvalidAmount
	}
	return cents.IntPart(), nil
}

// MoneyFromFloat converts a persisted decimal amount back to cents,
// rounding half away from zero at the second decimal place.
func MoneyFromFloat(f float64) Money {
	return Money{Cents: decimal.NewFromFloat(f).Round(2).Shift(2).IntPart()}
}

// Decimal returns the amount as an exact two-place decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Float returns the amount in major units for the record store.
// Use cents for arithmetic.
func (m Money) Float() float64 {
	return m.Decimal().InexactFloat64()
}

// String renders the amount with two decimal places, e.g. "-125.50".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}
