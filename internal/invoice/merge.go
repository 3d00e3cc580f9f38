package invoice

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Merger folds extractions into a draft
type Merger struct {
	// DefaultCurrency is applied once an amount is known and no currency was stated
	DefaultCurrency string
}

// MergeResult is the merged draft plus the fields whose earlier value was replaced
type MergeResult struct {
	Draft       *Draft
	Overwritten []Field
}

// Merge folds an extraction into a draft without a default currency
func Merge(prior *Draft, in *Extraction) *Draft {
	return Merger{}.Merge(prior, in).Draft
}

// Merge applies the extraction on top of prior and returns a new draft.
// Extracted fields replace prior values; unrecognized fields keep them.
// Line items are appended when the extraction carries the append intent,
// otherwise a non-empty incoming list replaces the prior one.
// The result is nil when there is no prior draft and nothing was extracted.
func (m Merger) Merge(prior *Draft, in *Extraction) MergeResult {
	if in == nil {
		in = EmptyExtraction()
	}
	if in.IsEmpty() {
		return MergeResult{Draft: prior.Clone()}
	}

	d := prior.Clone()
	if d == nil {
		d = &Draft{Status: StatusDraft}
	}
	var overwritten []Field

	if in.Has(FieldRecipient) {
		if r := strings.TrimSpace(in.Recipient); r != "" {
			if d.Recipient != "" && d.Recipient != r {
				overwritten = append(overwritten, FieldRecipient)
			}
			d.Recipient = r
		}
	}

	if in.Has(FieldAmount) {
		amount, ok := ParseAmount(in.Amount)
		if ok && amount.IsPositive() {
			if d.Amount != nil && !d.Amount.Equal(amount) {
				overwritten = append(overwritten, FieldAmount)
			}
			d.Amount = &amount
			d.RejectedAmount = ""
		} else {
			d.Amount = nil
			d.RejectedAmount = strings.TrimSpace(in.Amount)
			if d.RejectedAmount == "" {
				d.RejectedAmount = "(empty)"
			}
		}
	}

	if in.Has(FieldCurrency) {
		if c := NormalizeCurrency(in.Currency); c != "" {
			if d.Currency != "" && d.Currency != c {
				overwritten = append(overwritten, FieldCurrency)
			}
			d.Currency = c
		}
	}
	if d.Amount != nil && d.Currency == "" {
		d.Currency = NormalizeCurrency(m.DefaultCurrency)
	}

	if in.Has(FieldLineItems) {
		items := cleanItems(in.LineItems)
		switch {
		case in.Append:
			d.LineItems = append(d.LineItems, items...)
		case len(items) > 0:
			if len(d.LineItems) > 0 {
				overwritten = append(overwritten, FieldLineItems)
			}
			d.LineItems = items
		}
	}

	if in.Has(FieldDueDate) && in.DueDate != nil {
		t := *in.DueDate
		if d.DueDate != nil && !d.DueDate.Equal(t) {
			overwritten = append(overwritten, FieldDueDate)
		}
		d.DueDate = &t
	}

	d.Status = StatusDraft
	return MergeResult{Draft: d, Overwritten: overwritten}
}

func cleanItems(items []LineItem) []LineItem {
	out := make([]LineItem, 0, len(items))
	for _, item := range items {
		item.Label = strings.TrimSpace(item.Label)
		if item.Label == "" {
			continue
		}
		out = append(out, item.clone())
	}
	return out
}

// ParseAmount reads a decimal from free-form amount text, ignoring currency
// symbols, codes, spaces and thousands separators ("₦50,000", "NGN 1 200.50",
// "50000 naira"). Any other trailing text makes the amount unreadable.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	var b strings.Builder
	digits := false
	for i, r := range s {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
			digits = true
		case r == '.':
			b.WriteRune(r)
		case r == '-' && !digits && b.Len() == 0:
			b.WriteRune(r)
		case r == ',' || r == '_' || unicode.IsSpace(r):
		case unicode.IsLetter(r) || unicode.Is(unicode.Sc, r):
			if digits {
				tail := NormalizeCurrency(s[i:])
				if !KnownCurrency(tail) {
					return decimal.Decimal{}, false
				}
				return finishAmount(b.String())
			}
		default:
			return decimal.Decimal{}, false
		}
	}
	return finishAmount(b.String())
}

func finishAmount(s string) (decimal.Decimal, bool) {
	if s == "" || s == "-" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
