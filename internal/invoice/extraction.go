package invoice

import "time"

// Provenance records whether the extractor found evidence for a field
type Provenance string

const (
	Extracted    Provenance = "EXTRACTED"
	Unrecognized Provenance = "UNRECOGNIZED"
)

// Extraction is the best-effort structured reading of one user message.
// Values are only meaningful for fields whose provenance is Extracted.
type Extraction struct {
	Recipient  string
	Amount     string // literal amount text as understood, e.g. "50000" or "-100"
	Currency   string
	LineItems  []LineItem
	DueDate    *time.Time
	Append     bool // the user asked to add items rather than restate them
	Confidence float64
	Provenance map[Field]Provenance
}

// EmptyExtraction is the result of a message nothing could be understood from
func EmptyExtraction() *Extraction {
	return &Extraction{Provenance: map[Field]Provenance{}}
}

// Has reports whether the field was extracted
func (e *Extraction) Has(f Field) bool {
	if e == nil {
		return false
	}
	return e.Provenance[f] == Extracted
}

// IsEmpty reports whether no field was extracted
func (e *Extraction) IsEmpty() bool {
	for _, f := range Fields {
		if e.Has(f) {
			return false
		}
	}
	return true
}
