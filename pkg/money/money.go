// Package money converts integer minor-unit amounts into decimal major units
// for presentation. Ledger arithmetic never leaves int64.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ISO 4217 minor unit exponents that differ from the default of 2.
var exponents = map[string]int32{
	"BHD": 3,
	"CLP": 0,
	"IQD": 3,
	"ISK": 0,
	"JOD": 3,
	"JPY": 0,
	"KRW": 0,
	"KWD": 3,
	"LYD": 3,
	"OMR": 3,
	"PYG": 0,
	"TND": 3,
	"UGX": 0,
	"VND": 0,
	"XAF": 0,
	"XOF": 0,
}

const defaultExponent int32 = 2

// Exponent returns the number of minor-unit digits for the currency.
func Exponent(currencyCode string) int32 {
	if exp, ok := exponents[strings.ToUpper(currencyCode)]; ok {
		return exp
	}
	return defaultExponent
}

// FromMinor converts an amount in minor units into major units.
func FromMinor(amount int64, currencyCode string) decimal.Decimal {
	return decimal.New(amount, -Exponent(currencyCode))
}

// Format renders the amount with the currency's fixed number of decimals.
func Format(amount int64, currencyCode string) string {
	return FromMinor(amount, currencyCode).StringFixed(Exponent(currencyCode))
}
