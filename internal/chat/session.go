package chat

import (
	"time"

	"github.com/zombor/invoiceai/internal/invoice"
)

// State is where a session is in the conversation
type State string

const (
	AwaitingRequest State = "AWAITING_REQUEST"
	Drafting        State = "DRAFTING"
	Confirming      State = "CONFIRMING"
	Finalized       State = "FINALIZED"
)

// Role identifies who wrote a turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one recorded message. Assistant turns carry the state they were
// produced under.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	State     State     `json:"state,omitempty"`
	Kind      ReplyKind `json:"kind,omitempty"`
}

// Session is a snapshot of one chat's conversation and draft
type Session struct {
	ID         string         `json:"id"`
	TemplateID string         `json:"template_id,omitempty"`
	State      State          `json:"state"`
	Draft      *invoice.Draft `json:"draft"`
	Turns      []Turn         `json:"turns"`
	InvoiceID  string         `json:"invoice_id,omitempty"`
	SaveError  string         `json:"save_error,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func newSession(id string, now time.Time) Session {
	return Session{
		ID:        id,
		State:     AwaitingRequest,
		Turns:     []Turn{},
		UpdatedAt: now,
	}
}

func (s *Session) snapshot() Session {
	c := *s
	c.Draft = s.Draft.Clone()
	c.Turns = append([]Turn{}, s.Turns...)
	return c
}

// unsaved reports whether a finalized invoice is waiting for a save retry
func (s *Session) unsaved() bool {
	return s.State == Finalized && s.InvoiceID == "" && s.SaveError != "" && s.Draft != nil
}

// startDraft drops the finished invoice so the next message begins a new
// one. The conversation history stays.
func (s *Session) startDraft() {
	s.State = AwaitingRequest
	s.Draft = nil
	s.InvoiceID = ""
	s.SaveError = ""
}

// clear starts a new invoice and a new conversation, keeping the template choice
func (s *Session) clear() {
	s.State = AwaitingRequest
	s.Draft = nil
	s.Turns = []Turn{}
	s.InvoiceID = ""
	s.SaveError = ""
}
