package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts travel as JSON numbers, never as quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// DefaultCurrency is applied when a customer record carries no currency.
const DefaultCurrency = "INR"

// currencyMinorUnits maps ISO 4217 codes to their number of decimal places.
// Codes not listed use two places.
var currencyMinorUnits = map[string]int32{
	"INR": 2,
	"USD": 2,
	"EUR": 2,
	"GBP": 2,
	"AED": 2,
	"SGD": 2,
	"JPY": 0,
	"KRW": 0,
	"KWD": 3,
	"BHD": 3,
	"OMR": 3,
}

// MaxCurrencyPrecision is the finest minor unit of any supported currency.
const MaxCurrencyPrecision int32 = 3

// CurrencyPrecision returns the minor-unit precision for a currency code.
func CurrencyPrecision(currency string) int32 {
	if places, ok := currencyMinorUnits[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return places
	}
	return 2
}

// RoundMoney rounds an amount to the currency's minor unit, half away from zero.
func RoundMoney(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Round(CurrencyPrecision(currency))
}

// TruncateMoney drops digits below the currency's minor unit, toward zero.
func TruncateMoney(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Truncate(CurrencyPrecision(currency))
}

// MinorUnit returns the smallest representable amount in a currency (0.01 for INR).
func MinorUnit(currency string) decimal.Decimal {
	return decimal.New(1, -CurrencyPrecision(currency))
}
