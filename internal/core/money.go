// Package core provides the domain model of the ledger together with the
// field parsers used on untrusted input.
//
// This file contains functions for parsing monetary amounts from strings
// and converting between cents and their decimal representation.
package core

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmountCents is the largest amount a record may carry (999,999,999.00).
const MaxAmountCents int64 = 99_999_999_900

type Money struct {
	Cents int64
}

var (
	maxParsedCents  = decimal.New(1, 15)
	plainNumber     = regexp.MustCompile(`^\d*\.?\d*$`)
	currencyCodes   = []string{"ARS", "USD", "EUR", "MXN", "CLP", "COP", "UYU", "PEN"}
	currencySymbols = strings.NewReplacer("$", "", "€", "", "£", "", " ", "", "\u00a0", "", "'", "")
)

// ParseAmount converts free-form text into signed cents.
//
// It understands currency symbols and ISO codes, both decimal separators,
// thousands separators, a leading or trailing minus and accounting-style
// parentheses. Values are rounded half away from zero to two decimals.
//
// Examples:
//
//	ParseAmount("1.234,56")  -> 123456
//	ParseAmount("$ -50")     -> -5000
//	ParseAmount("(12.345)")  -> -1235
//	ParseAmount("1,500")     -> 150000
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.ToUpper(s)
	for _, code := range currencyCodes {
		s = strings.ReplaceAll(s, code, "")
	}
	s = currencySymbols.Replace(s)
	switch {
	case strings.HasPrefix(s, "-"):
		neg = !neg
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	case strings.HasSuffix(s, "-"):
		neg = !neg
		s = s[:len(s)-1]
	}
	s = normalizeSeparators(s)
	if !plainNumber.MatchString(s) || strings.Trim(s, ".") == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	s = strings.TrimSuffix(s, ".")
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	cents := d.Round(2).Shift(2)
	if cents.GreaterThanOrEqual(maxParsedCents) {
		return 0, fmt.Errorf("%w: out of range", ErrInvalidAmount)
	}
	c := cents.IntPart()
	if neg {
		c = -c
	}
	return c, nil
}

// normalizeSeparators rewrites s so that "." is the only (optional) decimal
// separator. With both separators present the rightmost one is decimal. A lone
// comma is decimal unless exactly three digits follow it; repeated separators
// of one kind are grouping.
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 || len(s)-lastComma-1 == 3 {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(s, ",", ".", 1)
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 {
			return strings.ReplaceAll(s, ".", "")
		}
	}
	return s
}

// ParseMoney is the lenient reader for amounts coming from forms or CSV
// cells. It never fails: the result is the absolute value rounded to two
// decimals, or zero when s cannot be read as a number.
func ParseMoney(s string) Money {
	c, err := ParseAmount(s)
	if err != nil {
		return Money{}
	}
	if c < 0 {
		c = -c
	}
	return Money{Cents: c}
}

// FormatAmount renders m with exactly two decimals and a dot separator.
func FormatAmount(m Money) string {
	return decimal.New(m.Cents, -2).StringFixed(2)
}

func (m Money) String() string {
	return FormatAmount(m)
}

// Validate accepts amounts in [0, MaxAmountCents].
func (m Money) Validate() error {
	if m.Cents < 0 || m.Cents > MaxAmountCents {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

// Units returns the amount as a float64 for display and percentage maths.
// Use cents for sums to avoid floating-point drift.
func (m Money) Units() float64 {
	return float64(m.Cents) / 100.0
}

// MarshalJSON renders the amount as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(FormatAmount(m)), nil
}

// UnmarshalJSON accepts a JSON number or a string in any format ParseAmount reads.
func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*m = Money{}
		return nil
	}
	s := strings.Trim(string(b), `"`)
	c, err := ParseAmount(s)
	if err != nil {
		return err
	}
	m.Cents = c
	return nil
}
