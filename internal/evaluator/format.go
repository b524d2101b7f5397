package evaluator

import (
	"strings"

	"github.com/shopspring/decimal"
)

// formatDecimal prints whole numbers without decimals and everything else
// at its exact stored precision. Formatting is deterministic: the same
// stored value always renders the same string.
func formatDecimal(d decimal.Decimal) string {
	if d.IsInteger() {
		return d.Truncate(0).String()
	}
	return exact(d)
}

// exact renders a decimal at its stored scale. Decimal.String trims
// trailing zeros, which would drop stored precision like "2.50".
func exact(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

// formatAmount renders a monetary amount with its currency code.
func formatAmount(d decimal.Decimal, currency string) string {
	if currency == "" {
		return formatDecimal(d)
	}
	return formatDecimal(d) + " " + currency
}

// formatPercent renders a percentage at its exact stored precision,
// never rounded.
func formatPercent(d decimal.Decimal) string {
	return exact(d) + "%"
}

// basisText renders a charging basis as schedule wording.
func basisText(basis string) string {
	switch basis {
	case "PER_TXN":
		return "per transaction"
	case "PER_YEAR":
		return "per year"
	case "PER_MONTH":
		return "per month"
	case "ON_OUTSTANDING":
		return "on outstanding balance"
	case "FLAT", "":
		return ""
	default:
		return strings.ToLower(strings.ReplaceAll(basis, "_", " "))
	}
}
