package chat

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/zombor/invoiceai/internal/invoice"
)

// ErrInternalFault marks a broken invariant reaching the composer. It is a
// programming error, never a user-facing reply.
var ErrInternalFault = errors.New("internal fault")

// ReplyKind tells the chat UI what the reply asks of the user
type ReplyKind string

const (
	Clarification ReplyKind = "CLARIFICATION"
	Confirmation  ReplyKind = "CONFIRMATION"
	FinalizedKind ReplyKind = "FINALIZED"
	Correction    ReplyKind = "CORRECTION"
)

// Reply is the payload returned for every user message
type Reply struct {
	Kind      ReplyKind      `json:"kind"`
	Text      string         `json:"text"`
	Draft     *invoice.Draft `json:"draft"`
	State     State          `json:"state"`
	InvoiceID string         `json:"invoice_id,omitempty"`
	SaveError string         `json:"save_error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

var fieldQuestions = map[invoice.Field]string{
	invoice.FieldRecipient: "who the invoice is for",
	invoice.FieldAmount:    "the amount",
	invoice.FieldCurrency:  "the currency (for example NGN or USD)",
	invoice.FieldLineItems: "a description of the work or items being billed",
	invoice.FieldDueDate:   "the due date",
}

var fieldNames = map[invoice.Field]string{
	invoice.FieldRecipient: "recipient",
	invoice.FieldAmount:    "amount",
	invoice.FieldCurrency:  "currency",
	invoice.FieldLineItems: "description",
	invoice.FieldDueDate:   "due date",
}

const (
	startPrompt       = "Tell me who the invoice is for, the amount, and what it covers. For example: \"Create an invoice for ₦50,000 to Adamu Musa for web design services\"."
	emptyPrefix       = "I didn't catch that. "
	resetText         = "This conversation was reset, so I dropped that message. Start a new invoice whenever you're ready."
	saveFailedSuffix  = " I couldn't save it just now. Please try saving again."
	nothingUnderstood = "I couldn't pick out any invoice details from that. "
	unsavedReminder   = "Your invoice is finalized but hasn't been saved yet. Reply \"retry\" to save it again, or start a new invoice to discard it."
	dueDateHint       = " Please include the due date too."
)

// Compose turns the outcome of a turn into the reply text. It is
// deterministic: the same inputs always give the same reply. The caller
// attaches the timestamp.
func Compose(state State, draft *invoice.Draft, verdict invoice.Verdict) (Reply, error) {
	if draft != nil && draft.Amount != nil && draft.Currency == "" {
		return Reply{}, fmt.Errorf("%w: draft has an amount but no currency", ErrInternalFault)
	}

	reply := Reply{State: state, Draft: draft.Clone()}

	switch {
	case state == Finalized:
		if draft == nil || verdict.Kind != invoice.Complete {
			return Reply{}, fmt.Errorf("%w: finalized without a complete draft", ErrInternalFault)
		}
		reply.Kind = FinalizedKind
		reply.Text = "Done! Your invoice is finalized: " + summarize(draft) + "."

	case verdict.Kind == invoice.Invalid:
		reply.Kind = Correction
		reply.Text = correctionText(verdict)

	case verdict.Kind == invoice.Incomplete:
		reply.Kind = Clarification
		reply.Text = clarificationText(draft, verdict.Missing)

	default:
		reply.Kind = Confirmation
		reply.Text = "Here's your invoice: " + summarize(draft) + ". Shall I finalize it? Reply \"yes\" to confirm, or tell me what to change."
	}
	return reply, nil
}

func correctionText(v invoice.Verdict) string {
	name := fieldNames[v.Field]
	if name == "" {
		name = string(v.Field)
	}
	if v.Field == invoice.FieldAmount {
		return fmt.Sprintf("The amount needs fixing: %s. Please give the amount as a positive number, for example ₦50,000.", v.Reason)
	}
	return fmt.Sprintf("The %s needs fixing: %s. Please send the correct %s.", name, v.Reason, name)
}

func clarificationText(draft *invoice.Draft, missing []invoice.Field) string {
	if draft == nil {
		if slices.Contains(missing, invoice.FieldDueDate) {
			return startPrompt + dueDateHint
		}
		return startPrompt
	}
	questions := make([]string, 0, len(missing))
	for _, f := range missing {
		questions = append(questions, fieldQuestions[f])
	}
	return "So far I have " + summarize(draft) + ". I still need " + joinList(questions) + "."
}

// summarize describes the fields a draft has, e.g.
// "₦50,000 to Adamu Musa for web design services, due 1 November 2026"
func summarize(d *invoice.Draft) string {
	if d == nil {
		return ""
	}
	parts := []string{"an invoice"}
	if d.Amount != nil {
		parts[0] = invoice.FormatMoney(*d.Amount, d.Currency)
	}
	if r := strings.TrimSpace(d.Recipient); r != "" {
		parts = append(parts, "to "+r)
	}
	if labels := d.Labels(); len(labels) > 0 {
		parts = append(parts, "for "+joinList(labels))
	}
	s := strings.Join(parts, " ")
	if d.DueDate != nil {
		s += ", due " + d.DueDate.Format("2 January 2006")
	}
	return s
}

func joinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}
