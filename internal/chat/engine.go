package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zombor/invoiceai/internal/extraction"
	"github.com/zombor/invoiceai/internal/invoice"
)

var (
	// ErrSessionNotFound is returned for unknown or empty session IDs
	ErrSessionNotFound = errors.New("session not found")
	// ErrNothingToSave is returned by RetrySave when no failed save is pending
	ErrNothingToSave = errors.New("nothing to save")
)

// Extractor reads invoice fields out of a message
type Extractor interface {
	Extract(ctx context.Context, text string, prior *invoice.Draft) (*invoice.Extraction, error)
}

// InvoiceSaver persists finalized drafts
type InvoiceSaver interface {
	SaveFinalizedInvoice(ctx context.Context, req invoice.FinalizeRequest) (string, error)
}

// EventEmitter records analytics events
type EventEmitter interface {
	Emit(ctx context.Context, event invoice.Event) error
}

// Options configures an Engine
type Options struct {
	DefaultCurrency string
	RequireDueDate  bool
	Logger          *slog.Logger
	Now             func() time.Time
}

// Engine runs the invoice conversation for every session
type Engine struct {
	store     *SessionStore
	extractor Extractor
	saver     InvoiceSaver
	events    EventEmitter
	merger    invoice.Merger
	validator invoice.Validator
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine creates an Engine with an empty session store
func NewEngine(extractor Extractor, saver InvoiceSaver, events EventEmitter, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = "NGN"
	}
	store := NewSessionStore()
	store.now = opts.Now
	return &Engine{
		store:     store,
		extractor: extractor,
		saver:     saver,
		events:    events,
		merger:    invoice.Merger{DefaultCurrency: opts.DefaultCurrency},
		validator: invoice.Validator{RequireDueDate: opts.RequireDueDate},
		logger:    opts.Logger,
		now:       opts.Now,
	}
}

// PostMessage handles one user message. Messages for the same session are
// processed one at a time in arrival order.
func (eng *Engine) PostMessage(ctx context.Context, sessionID, text string, clientTimestamp time.Time) (*Reply, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: empty session id", ErrSessionNotFound)
	}

	e, err := eng.store.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer e.release()

	if clientTimestamp.IsZero() {
		clientTimestamp = eng.now()
	}

	if strings.TrimSpace(text) == "" {
		return eng.repromptEmpty(e), nil
	}

	userTurn := Turn{Role: RoleUser, Text: text, Timestamp: clientTimestamp}

	e.mu.Lock()
	s := &e.session
	if s.unsaved() {
		e.mu.Unlock()
		return eng.handleUnsaved(ctx, e, sessionID, userTurn)
	}
	if s.State == Finalized {
		s.startDraft()
	}
	gen := e.generation
	state := s.State
	prior := s.Draft.Clone()
	templateID := s.TemplateID
	e.lastActive = eng.now()
	e.mu.Unlock()

	if state == Confirming && isAffirmative(text) {
		verdict := eng.validator.Validate(prior)
		if verdict.Kind == invoice.Complete {
			return eng.finalize(ctx, e, gen, sessionID, templateID, prior, verdict, userTurn)
		}
	}

	xctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	x, xerr := eng.extractor.Extract(xctx, text, prior)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancel = nil

	if e.generation != gen {
		eng.logger.Info("Discarding extraction for reset session", "session_id", sessionID)
		return &Reply{
			Kind:      Clarification,
			Text:      resetText,
			State:     e.session.State,
			Draft:     e.session.Draft.Clone(),
			Timestamp: eng.now(),
		}, nil
	}

	if xerr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		eng.logger.Warn("Extraction failed", "session_id", sessionID, "error", xerr)
		x = invoice.EmptyExtraction()
	}

	merged := eng.merger.Merge(prior, x)
	if len(merged.Overwritten) > 0 {
		eng.logger.Info("Draft fields corrected", "session_id", sessionID, "fields", merged.Overwritten)
	}
	verdict := eng.validator.Validate(merged.Draft)
	next := nextState(merged.Draft, verdict)

	reply, err := Compose(next, merged.Draft, verdict)
	if err != nil {
		eng.logger.Error("Internal fault", "session_id", sessionID, "verdict", verdict.String(), "error", err)
		return nil, err
	}
	if x.IsEmpty() && reply.Kind == Clarification && merged.Draft != nil {
		reply.Text = nothingUnderstood + reply.Text
	}

	s = &e.session
	s.Draft = merged.Draft
	s.State = next
	s.Turns = append(s.Turns, userTurn)
	eng.recordReply(e, &reply)

	eng.logger.Info("Processed message",
		"session_id", sessionID,
		"from", state,
		"to", next,
		"verdict", verdict.String(),
	)
	return &reply, nil
}

// nextState maps a verdict to the state the session moves to
func nextState(draft *invoice.Draft, verdict invoice.Verdict) State {
	switch verdict.Kind {
	case invoice.Complete:
		return Confirming
	case invoice.Incomplete:
		if draft == nil {
			return AwaitingRequest
		}
		return Drafting
	default:
		return Drafting
	}
}

// repromptEmpty answers a blank message without touching the session
func (eng *Engine) repromptEmpty(e *entry) *Reply {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := &e.session

	text := clarificationText(nil, eng.validator.Validate(nil).Missing)
	switch s.State {
	case Finalized:
		if s.unsaved() {
			text = unsavedReminder
		}
	case Drafting:
		v := eng.validator.Validate(s.Draft)
		if v.Kind == invoice.Incomplete {
			text = clarificationText(s.Draft, v.Missing)
		} else if v.Kind == invoice.Invalid {
			text = correctionText(v)
		}
	case Confirming:
		text = "Reply \"yes\" to finalize the invoice, or tell me what to change."
	}

	return &Reply{
		Kind:      Clarification,
		Text:      emptyPrefix + text,
		State:     s.State,
		Draft:     s.Draft.Clone(),
		Timestamp: eng.now(),
	}
}

// finalize confirms the draft, saves it once and emits one analytics event
func (eng *Engine) finalize(ctx context.Context, e *entry, gen uint64, sessionID, templateID string, draft *invoice.Draft, verdict invoice.Verdict, userTurn Turn) (*Reply, error) {
	draft.Status = invoice.StatusConfirmed

	reply, err := Compose(Finalized, draft, verdict)
	if err != nil {
		eng.logger.Error("Internal fault", "session_id", sessionID, "error", err)
		return nil, err
	}

	e.mu.Lock()
	if e.generation != gen {
		e.mu.Unlock()
		return &Reply{Kind: Clarification, Text: resetText, State: AwaitingRequest, Timestamp: eng.now()}, nil
	}
	e.session.Draft = draft.Clone()
	e.session.State = Finalized
	e.session.Turns = append(e.session.Turns, userTurn)
	e.mu.Unlock()

	invoiceID, saveErr := eng.saver.SaveFinalizedInvoice(ctx, invoice.FinalizeRequest{
		SessionID:  sessionID,
		TemplateID: templateID,
		Draft:      draft.Clone(),
	})

	event := invoice.Event{
		Timestamp:  eng.now(),
		Amount:     *draft.Amount,
		Currency:   draft.Currency,
		TemplateID: templateID,
		InvoiceID:  invoiceID,
	}
	if err := eng.events.Emit(ctx, event); err != nil {
		eng.logger.Warn("Failed to emit analytics event", "session_id", sessionID, "error", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if saveErr != nil {
		eng.logger.Error("Failed to save invoice", "session_id", sessionID, "error", saveErr)
		reply.SaveError = saveErr.Error()
		reply.Text += saveFailedSuffix
	} else {
		reply.InvoiceID = invoiceID
		eng.logger.Info("Invoice finalized", "session_id", sessionID, "invoice_id", invoiceID)
	}
	if e.generation == gen {
		e.session.InvoiceID = reply.InvoiceID
		e.session.SaveError = reply.SaveError
		eng.recordReply(e, &reply)
	} else {
		reply.Timestamp = eng.now()
	}
	return &reply, nil
}

// RetrySave saves a finalized draft whose earlier save failed
func (eng *Engine) RetrySave(ctx context.Context, sessionID string) (*Reply, error) {
	if _, ok := eng.store.get(sessionID); !ok {
		return nil, ErrSessionNotFound
	}
	e, err := eng.store.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer e.release()
	return eng.retrySave(ctx, e, sessionID)
}

// handleUnsaved answers a message that arrives while a finalized invoice is
// still unsaved. A retry request saves it again; anything else gets a
// reminder and leaves the draft in place.
func (eng *Engine) handleUnsaved(ctx context.Context, e *entry, sessionID string, userTurn Turn) (*Reply, error) {
	e.mu.Lock()
	e.session.Turns = append(e.session.Turns, userTurn)
	e.lastActive = eng.now()
	if isRetryRequest(userTurn.Text) {
		e.mu.Unlock()
		return eng.retrySave(ctx, e, sessionID)
	}
	defer e.mu.Unlock()

	reply := Reply{
		Kind:      Clarification,
		Text:      unsavedReminder,
		State:     Finalized,
		Draft:     e.session.Draft.Clone(),
		SaveError: e.session.SaveError,
	}
	eng.recordReply(e, &reply)
	return &reply, nil
}

// retrySave saves the session's finalized draft again. The caller holds
// the turn slot.
func (eng *Engine) retrySave(ctx context.Context, e *entry, sessionID string) (*Reply, error) {
	e.mu.Lock()
	s := &e.session
	if !s.unsaved() {
		e.mu.Unlock()
		return nil, ErrNothingToSave
	}
	gen := e.generation
	draft := s.Draft.Clone()
	templateID := s.TemplateID
	e.mu.Unlock()

	reply, err := Compose(Finalized, draft, eng.validator.Validate(draft))
	if err != nil {
		eng.logger.Error("Internal fault", "session_id", sessionID, "error", err)
		return nil, err
	}

	invoiceID, saveErr := eng.saver.SaveFinalizedInvoice(ctx, invoice.FinalizeRequest{
		SessionID:  sessionID,
		TemplateID: templateID,
		Draft:      draft,
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	if saveErr != nil {
		eng.logger.Error("Failed to save invoice", "session_id", sessionID, "error", saveErr)
		reply.SaveError = saveErr.Error()
		reply.Text += saveFailedSuffix
	} else {
		reply.InvoiceID = invoiceID
		eng.logger.Info("Invoice saved on retry", "session_id", sessionID, "invoice_id", invoiceID)
	}
	if e.generation == gen {
		e.session.InvoiceID = reply.InvoiceID
		e.session.SaveError = reply.SaveError
		eng.recordReply(e, &reply)
	}
	return &reply, nil
}

// recordReply stamps the reply and appends it as an assistant turn.
// e.mu must be held.
func (eng *Engine) recordReply(e *entry, reply *Reply) {
	now := eng.now()
	reply.Timestamp = now
	e.session.Turns = append(e.session.Turns, Turn{
		Role:      RoleAssistant,
		Text:      reply.Text,
		Timestamp: now,
		State:     reply.State,
		Kind:      reply.Kind,
	})
	e.session.UpdatedAt = now
	e.lastActive = now
}

// Reset starts a new invoice for the session. An extraction in flight is
// cancelled and its result discarded.
func (eng *Engine) Reset(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("%w: empty session id", ErrSessionNotFound)
	}
	e := eng.store.getOrCreate(sessionID)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.session.clear()
	e.session.UpdatedAt = eng.now()
	e.lastActive = e.session.UpdatedAt

	eng.logger.Info("Session reset", "session_id", sessionID)
	return nil
}

// SetTemplate records the invoice template the user picked
func (eng *Engine) SetTemplate(sessionID, templateID string) error {
	if sessionID == "" {
		return fmt.Errorf("%w: empty session id", ErrSessionNotFound)
	}
	e := eng.store.getOrCreate(sessionID)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.TemplateID = strings.TrimSpace(templateID)
	e.lastActive = eng.now()
	return nil
}

// Session returns a snapshot of the session
func (eng *Engine) Session(sessionID string) (Session, error) {
	e, ok := eng.store.get(sessionID)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.snapshot(), nil
}

// SweepIdle drops sessions idle for longer than ttl and returns how many went
func (eng *Engine) SweepIdle(ttl time.Duration) int {
	removed := eng.store.sweep(ttl)
	if len(removed) > 0 {
		eng.logger.Info("Expired idle sessions", "count", len(removed), "remaining", eng.store.Len())
	}
	return len(removed)
}

// RunSessionSweeper expires idle sessions every interval until ctx is done
func (eng *Engine) RunSessionSweeper(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eng.SweepIdle(ttl)
		}
	}
}

var _ Extractor = (*extraction.Extractor)(nil)
var _ InvoiceSaver = (*invoice.Service)(nil)
var _ EventEmitter = (*invoice.Service)(nil)
