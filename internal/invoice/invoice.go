package invoice

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status tags a draft as still editable or confirmed by the user
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusConfirmed Status = "CONFIRMED"
)

// Field names an invoice field in prompts, verdicts and replies
type Field string

const (
	FieldRecipient Field = "recipient"
	FieldAmount    Field = "amount"
	FieldCurrency  Field = "currency"
	FieldLineItems Field = "line_items"
	FieldDueDate   Field = "due_date"
)

// Fields lists every field in the order clarification questions ask for them
var Fields = []Field{FieldRecipient, FieldAmount, FieldCurrency, FieldLineItems, FieldDueDate}

// LineItem is one billed good or service
type LineItem struct {
	Label      string           `json:"label"`
	Quantity   *decimal.Decimal `json:"quantity,omitempty"`
	UnitAmount *decimal.Decimal `json:"unit_amount,omitempty"`
}

// Draft is the in-progress invoice assembled across a conversation
type Draft struct {
	Recipient      string           `json:"recipient,omitempty"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	Currency       string           `json:"currency,omitempty"`
	LineItems      []LineItem       `json:"line_items,omitempty"`
	DueDate        *time.Time       `json:"due_date,omitempty"`
	Status         Status           `json:"status"`
	RejectedAmount string           `json:"rejected_amount,omitempty"` // literal text of an unusable amount the user gave
}

// Clone returns a deep copy of the draft
func (d *Draft) Clone() *Draft {
	if d == nil {
		return nil
	}
	c := *d
	if d.Amount != nil {
		a := *d.Amount
		c.Amount = &a
	}
	if d.DueDate != nil {
		t := *d.DueDate
		c.DueDate = &t
	}
	if d.LineItems != nil {
		c.LineItems = make([]LineItem, len(d.LineItems))
		for i, item := range d.LineItems {
			c.LineItems[i] = item.clone()
		}
	}
	return &c
}

func (li LineItem) clone() LineItem {
	c := li
	if li.Quantity != nil {
		q := *li.Quantity
		c.Quantity = &q
	}
	if li.UnitAmount != nil {
		u := *li.UnitAmount
		c.UnitAmount = &u
	}
	return c
}

// Labels returns the non-empty line item labels
func (d *Draft) Labels() []string {
	if d == nil {
		return nil
	}
	labels := make([]string, 0, len(d.LineItems))
	for _, item := range d.LineItems {
		if l := strings.TrimSpace(item.Label); l != "" {
			labels = append(labels, l)
		}
	}
	return labels
}

// Invoice is a finalized draft that has been persisted
type Invoice struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"session_id"`
	TemplateID string          `json:"template_id,omitempty"`
	Recipient  string          `json:"recipient"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	LineItems  []LineItem      `json:"line_items"`
	DueDate    *time.Time      `json:"due_date,omitempty"`
	Status     Status          `json:"status"`
	Filename   string          `json:"filename,omitempty"` // archived XLSX copy
	CreatedAt  time.Time       `json:"created_at"`
}

// Event is the analytics record emitted once per finalized invoice
type Event struct {
	Timestamp  time.Time       `json:"timestamp"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	TemplateID string          `json:"template_id,omitempty"`
	InvoiceID  string          `json:"invoice_id,omitempty"`
}
