package ticket

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Money formats an amount with thousands separators and two decimals,
// e.g. 1234.5 as "1,234.50".
func Money(v decimal.Decimal) string {
	return printer.Sprintf("%.2f", v.Round(2).InexactFloat64())
}

// Quantity formats a line quantity without trailing zeros.
func Quantity(v decimal.Decimal) string {
	return v.String()
}
