package extraction

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/invoiceai/internal/invoice"
)

// wireItem and wireExtraction are the JSON shape backends answer with
type wireItem struct {
	Label      string `json:"label"`
	Quantity   string `json:"quantity"`
	UnitAmount string `json:"unit_amount"`
}

type wireExtraction struct {
	Recipient   string     `json:"recipient"`
	Amount      string     `json:"amount"`
	Currency    string     `json:"currency"`
	LineItems   []wireItem `json:"line_items"`
	DueDate     string     `json:"due_date"`
	AppendItems bool       `json:"append_items"`
	Confidence  *float64   `json:"confidence"`
}

var dueDateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"2 January 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"Jan 2, 2006",
}

// parseResponse turns raw backend text into an Extraction. Any failure is
// reported as ErrMalformedResponse so the caller can retry.
func parseResponse(text string, logger *slog.Logger) (*invoice.Extraction, error) {
	text = isolateObject(text)
	if text == "" {
		return nil, fmt.Errorf("%w: no JSON object found in response", ErrMalformedResponse)
	}

	cleaned, err := sanitize([]byte(text), logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := validateAgainstSchema(cleaned); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var w wireExtraction
	if err := json.Unmarshal(cleaned, &w); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling json: %v", ErrMalformedResponse, err)
	}
	return w.toExtraction(), nil
}

// isolateObject strips code fences and anything outside the outermost braces
func isolateObject(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end < start {
		return ""
	}
	return text[start : end+1]
}

// sanitize normalizes what models commonly get slightly wrong before the
// strict schema check: synonym keys, numbers for money, currency symbols,
// bare strings for line items, nulls and unknown keys.
func sanitize(raw []byte, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var dropped []string
	rename := func(from, to string) {
		v, ok := m[from]
		if !ok {
			return
		}
		if _, exists := m[to]; !exists {
			m[to] = v
		}
		delete(m, from)
		dropped = append(dropped, from+"->"+to)
	}
	rename("client", "recipient")
	rename("customer", "recipient")
	rename("bill_to", "recipient")
	rename("total", "amount")
	rename("currency_code", "currency")
	rename("items", "line_items")
	rename("description", "line_items")
	rename("due", "due_date")
	rename("append", "append_items")

	for _, k := range []string{"recipient", "amount", "currency", "due_date"} {
		v, ok := m[k]
		if !ok {
			continue
		}
		s, ok := scalarString(v)
		if !ok || s == "" {
			delete(m, k)
			dropped = append(dropped, k+"(empty)")
			continue
		}
		m[k] = s
	}
	if c, ok := m["currency"].(string); ok {
		m["currency"] = invoice.NormalizeCurrency(c)
	}

	if v, ok := m["line_items"]; ok {
		items := sanitizeItems(v)
		if len(items) == 0 {
			delete(m, "line_items")
			dropped = append(dropped, "line_items(empty)")
		} else {
			m["line_items"] = items
		}
	}

	if v, ok := m["append_items"]; ok {
		if _, isBool := v.(bool); !isBool {
			delete(m, "append_items")
			dropped = append(dropped, "append_items(type)")
		}
	}
	if v, ok := m["confidence"]; ok {
		c, isNum := v.(float64)
		if s, isStr := v.(string); isStr {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			c, isNum = f, err == nil
		}
		if isNum {
			m["confidence"] = c
		} else {
			delete(m, "confidence")
			dropped = append(dropped, "confidence(type)")
		}
	}

	allowed := map[string]struct{}{
		"recipient": {}, "amount": {}, "currency": {}, "line_items": {},
		"due_date": {}, "append_items": {}, "confidence": {},
	}
	for k := range maps.Clone(m) {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Debug("llm.extract.normalize_sanitize", "dropped", dropped)
	}
	return out, nil
}

// sanitizeItems accepts a string, a list of strings or a list of objects
func sanitizeItems(v any) []any {
	var list []any
	switch t := v.(type) {
	case string:
		list = []any{t}
	case []any:
		list = t
	default:
		return nil
	}

	items := make([]any, 0, len(list))
	for _, raw := range list {
		switch it := raw.(type) {
		case string:
			if s := strings.TrimSpace(it); s != "" {
				items = append(items, map[string]any{"label": s})
			}
		case map[string]any:
			if _, ok := it["label"]; !ok {
				if d, ok := it["description"]; ok {
					it["label"] = d
				}
			}
			item := map[string]any{}
			for _, k := range []string{"label", "quantity", "unit_amount"} {
				if s, ok := scalarString(it[k]); ok && s != "" {
					item[k] = s
				}
			}
			if _, ok := item["label"]; ok {
				items = append(items, item)
			}
		}
	}
	return items
}

// scalarString renders strings and numbers as trimmed text
func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}

func (w wireExtraction) toExtraction() *invoice.Extraction {
	out := invoice.EmptyExtraction()
	mark := func(f invoice.Field, ok bool) {
		if ok {
			out.Provenance[f] = invoice.Extracted
		} else {
			out.Provenance[f] = invoice.Unrecognized
		}
	}

	out.Recipient = strings.TrimSpace(w.Recipient)
	mark(invoice.FieldRecipient, out.Recipient != "")

	out.Amount = strings.TrimSpace(w.Amount)
	mark(invoice.FieldAmount, out.Amount != "")

	out.Currency = w.Currency
	mark(invoice.FieldCurrency, out.Currency != "")

	for _, wi := range w.LineItems {
		label := strings.TrimSpace(wi.Label)
		if label == "" {
			continue
		}
		item := invoice.LineItem{Label: label}
		if q, err := decimal.NewFromString(wi.Quantity); err == nil && q.IsPositive() {
			item.Quantity = &q
		}
		if u, ok := invoice.ParseAmount(wi.UnitAmount); ok && u.IsPositive() {
			item.UnitAmount = &u
		}
		out.LineItems = append(out.LineItems, item)
	}
	mark(invoice.FieldLineItems, len(out.LineItems) > 0)
	out.Append = w.AppendItems && len(out.LineItems) > 0

	out.DueDate = parseDueDate(w.DueDate)
	mark(invoice.FieldDueDate, out.DueDate != nil)

	switch {
	case w.Confidence != nil:
		out.Confidence = *w.Confidence
	case !out.IsEmpty():
		out.Confidence = 1
	}
	return out
}

func parseDueDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, format := range dueDateFormats {
		if d, err := time.Parse(format, s); err == nil {
			return &d
		}
	}
	return nil
}
