package invoice

import (
	"fmt"
	"strings"
)

// VerdictKind classifies a draft's readiness to finalize
type VerdictKind string

const (
	Complete   VerdictKind = "COMPLETE"
	Incomplete VerdictKind = "INCOMPLETE"
	Invalid    VerdictKind = "INVALID"
)

// Verdict is the validator's classification of a draft.
// Missing is set for Incomplete, Field and Reason for Invalid.
type Verdict struct {
	Kind    VerdictKind `json:"kind"`
	Missing []Field     `json:"missing,omitempty"`
	Field   Field       `json:"field,omitempty"`
	Reason  string      `json:"reason,omitempty"`
}

func (v Verdict) String() string {
	switch v.Kind {
	case Incomplete:
		names := make([]string, len(v.Missing))
		for i, f := range v.Missing {
			names[i] = string(f)
		}
		return fmt.Sprintf("INCOMPLETE(%s)", strings.Join(names, ", "))
	case Invalid:
		return fmt.Sprintf("INVALID(%s: %s)", v.Field, v.Reason)
	default:
		return string(v.Kind)
	}
}

// Validator applies the domain rules that decide whether a draft can be finalized
type Validator struct {
	// RequireDueDate makes a missing due date block completion
	RequireDueDate bool
}

// Validate checks a draft with the default rules
func Validate(d *Draft) Verdict {
	return Validator{}.Validate(d)
}

// Validate classifies the draft. An explicitly rejected amount is reported
// immediately; every other gap is collected into one Incomplete verdict.
func (v Validator) Validate(d *Draft) Verdict {
	if d == nil {
		d = &Draft{}
	}

	if d.RejectedAmount != "" {
		return Verdict{
			Kind:   Invalid,
			Field:  FieldAmount,
			Reason: fmt.Sprintf("%q is not a positive amount", d.RejectedAmount),
		}
	}
	if d.Amount != nil && !d.Amount.IsPositive() {
		return Verdict{
			Kind:   Invalid,
			Field:  FieldAmount,
			Reason: fmt.Sprintf("%s is not a positive amount", d.Amount.String()),
		}
	}

	missing := make([]Field, 0, len(Fields))
	if strings.TrimSpace(d.Recipient) == "" {
		missing = append(missing, FieldRecipient)
	}
	if d.Amount == nil {
		missing = append(missing, FieldAmount)
	}
	if d.Amount != nil && !KnownCurrency(d.Currency) {
		missing = append(missing, FieldCurrency)
	}
	if len(d.Labels()) == 0 {
		missing = append(missing, FieldLineItems)
	}
	if v.RequireDueDate && d.DueDate == nil {
		missing = append(missing, FieldDueDate)
	}

	if len(missing) > 0 {
		return Verdict{Kind: Incomplete, Missing: missing}
	}
	return Verdict{Kind: Complete}
}
