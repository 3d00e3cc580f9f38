package invoice

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// symbols maps the currency symbols users type to ISO 4217 codes.
// Ambiguous symbols ($) resolve to the most common currency.
var symbols = map[string]string{
	"₦":     "NGN",
	"NAIRA": "NGN",
	"$":     "USD",
	"US$":   "USD",
	"£":     "GBP",
	"€":     "EUR",
	"GH₵":   "GHS",
	"₵":     "GHS",
	"KSH":   "KES",
	"R":     "ZAR",
	"¥":     "JPY",
	"₹":     "INR",
}

// display is the reverse of symbols for rendering amounts
var display = map[string]string{
	"NGN": "₦",
	"USD": "$",
	"GBP": "£",
	"EUR": "€",
	"GHS": "GH₵",
	"KES": "KSh ",
	"ZAR": "R",
	"JPY": "¥",
	"INR": "₹",
}

// NormalizeCurrency turns a symbol, name or code into an upper-case code.
// Unknown input is returned upper-cased so the validator can reject it.
func NormalizeCurrency(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if code, ok := symbols[s]; ok {
		return code
	}
	return s
}

// KnownCurrency reports whether code is a recognized ISO 4217 currency
func KnownCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	_, err := currency.ParseISO(code)
	return err == nil
}

// FormatMoney renders an amount with its currency symbol and thousands grouping,
// e.g. ₦50,000 or $1,250.50. Cents are shown only when non-zero.
func FormatMoney(amount decimal.Decimal, code string) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Abs()
	}

	whole, frac, _ := strings.Cut(amount.StringFixed(2), ".")
	num := groupThousands(whole)
	if frac != "" && frac != "00" {
		num += "." + frac
	}

	if sym, ok := display[code]; ok {
		return sign + sym + num
	}
	if code == "" {
		return sign + num
	}
	return sign + code + " " + num
}

// groupThousands inserts commas into a string of digits
func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
