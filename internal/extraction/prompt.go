package extraction

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zombor/invoiceai/internal/invoice"
)

const extractionPrompt = `You read chat messages from a small business owner who is describing an invoice they want to send. Extract the invoice details the message states and answer with JSON only.

Fields:
1. **recipient**: the person or company being billed. Example: "Invoice Adamu Musa for..." gives "Adamu Musa".
2. **amount**: the total amount as plain digits with an optional decimal point, e.g. "50000" or "1250.50". Keep the sign if the user wrote a negative number. If the user wrote the amount in words you cannot turn into digits, copy their words.
3. **currency**: the ISO 4217 code. Symbols map as follows: ₦ or naira is NGN, $ is USD, £ is GBP, € is EUR, GH₵ is GHS, KSh is KES, R is ZAR, ¥ is JPY, ₹ is INR. If the message states no currency, leave it out (the default is %s).
4. **line_items**: what was sold or done, as a list of objects with "label" and optional "quantity" and "unit_amount" digits.
5. **due_date**: the payment due date as YYYY-MM-DD. Today is %s; resolve relative dates against it.
6. **append_items**: true only if the user asks to add items to the ones already on the invoice.
7. **confidence**: a number from 0 to 1 for how sure you are.

Response JSON schema:
%s

Important:
- Only include fields the latest message actually states. Leave out everything else.
- When the user corrects a value ("make it ₦60,000 instead"), return only the corrected field.
- Never copy values from the current draft into your answer; it is context only.
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// draftView is the prior draft as shown to the model
type draftView struct {
	Recipient string     `json:"recipient,omitempty"`
	Amount    string     `json:"amount,omitempty"`
	Currency  string     `json:"currency,omitempty"`
	LineItems []wireItem `json:"line_items,omitempty"`
	DueDate   string     `json:"due_date,omitempty"`
}

// buildInstructions renders the system instructions for one request
func buildInstructions(defaultCurrency string, today time.Time, prior *invoice.Draft) string {
	schema, _ := json.MarshalIndent(responseSchema(), "", "  ")

	var b strings.Builder
	fmt.Fprintf(&b, extractionPrompt, defaultCurrency, today.Format("2006-01-02 (Monday)"), schema)

	if view := viewDraft(prior); view != nil {
		js, err := json.Marshal(view)
		if err == nil {
			b.WriteString("\n\nCurrent invoice draft:\n")
			b.Write(js)
		}
	}
	return b.String()
}

func viewDraft(d *invoice.Draft) *draftView {
	if d == nil {
		return nil
	}
	v := &draftView{Recipient: d.Recipient, Currency: d.Currency}
	if d.Amount != nil {
		v.Amount = d.Amount.String()
	}
	for _, item := range d.LineItems {
		wi := wireItem{Label: item.Label}
		if item.Quantity != nil {
			wi.Quantity = item.Quantity.String()
		}
		if item.UnitAmount != nil {
			wi.UnitAmount = item.UnitAmount.String()
		}
		v.LineItems = append(v.LineItems, wi)
	}
	if d.DueDate != nil {
		v.DueDate = d.DueDate.Format("2006-01-02")
	}
	return v
}
