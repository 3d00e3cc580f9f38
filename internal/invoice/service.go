package invoice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ErrPersistence wraps every failure to store a finalized invoice
var ErrPersistence = errors.New("persisting invoice")

// IDGenerator generates unique IDs for invoices
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.New().String()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// FinalizeRequest carries a confirmed draft to persistence
type FinalizeRequest struct {
	SessionID  string
	TemplateID string
	Draft      *Draft
}

// Service persists finalized invoices and analytics events
type Service struct {
	db          DB
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a Service. storage may be nil to skip the XLSX archive.
func NewService(db DB, storage Storage) *Service {
	return &Service{
		db:          db,
		storage:     storage,
		idGenerator: &uuidGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// SaveFinalizedInvoice stores a confirmed draft and returns the new invoice ID
func (s *Service) SaveFinalizedInvoice(ctx context.Context, req FinalizeRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d := req.Draft
	if d == nil || d.Amount == nil || d.Currency == "" {
		return "", fmt.Errorf("%w: draft is not complete", ErrPersistence)
	}

	now := s.timeSource.Now()
	inv := &Invoice{
		ID:         s.idGenerator.Generate(),
		SessionID:  req.SessionID,
		TemplateID: req.TemplateID,
		Recipient:  d.Recipient,
		Amount:     *d.Amount,
		Currency:   d.Currency,
		LineItems:  d.Clone().LineItems,
		DueDate:    d.DueDate,
		Status:     StatusConfirmed,
		CreatedAt:  now,
	}

	if s.storage != nil {
		doc, err := RenderXLSX(inv)
		if err != nil {
			return "", fmt.Errorf("%w: rendering xlsx: %w", ErrPersistence, err)
		}
		filename, err := s.storage.Save(inv.ID+".xlsx", doc)
		if err != nil {
			return "", fmt.Errorf("%w: saving file: %w", ErrPersistence, err)
		}
		inv.Filename = filename
	}

	if err := s.db.SaveInvoice(inv); err != nil {
		if inv.Filename != "" {
			if delErr := s.storage.Delete(inv.Filename); delErr != nil {
				slog.Warn("Failed to delete archived invoice", "filename", inv.Filename, "error", delErr)
			}
		}
		return "", fmt.Errorf("%w: saving invoice to database: %w", ErrPersistence, err)
	}

	slog.Info("Invoice saved", "id", inv.ID, "session_id", inv.SessionID, "currency", inv.Currency, "amount", inv.Amount.String())
	return inv.ID, nil
}

// Emit records an analytics event
func (s *Service) Emit(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.timeSource.Now()
	}
	if err := s.db.RecordEvent(&event); err != nil {
		return fmt.Errorf("recording event: %w", err)
	}
	return nil
}

// GetInvoice retrieves an invoice by ID
func (s *Service) GetInvoice(id string) (*Invoice, error) {
	inv, err := s.db.GetInvoice(id)
	if err != nil {
		return nil, fmt.Errorf("getting invoice: %w", err)
	}
	return inv, nil
}

// ListInvoices returns all invoices
func (s *Service) ListInvoices() ([]*Invoice, error) {
	invoices, err := s.db.ListInvoices()
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	return invoices, nil
}

// GetInvoiceFile retrieves the archived XLSX copy of an invoice
func (s *Service) GetInvoiceFile(id string) ([]byte, error) {
	inv, err := s.db.GetInvoice(id)
	if err != nil {
		return nil, fmt.Errorf("getting invoice: %w", err)
	}
	if s.storage == nil || inv.Filename == "" {
		return nil, fmt.Errorf("%w: no archived file for %s", ErrNotFound, id)
	}

	data, err := s.storage.Get(inv.Filename)
	if err != nil {
		return nil, fmt.Errorf("getting invoice file: %w", err)
	}
	return data, nil
}

// ListEvents returns every recorded analytics event
func (s *Service) ListEvents() ([]*Event, error) {
	events, err := s.db.ListEvents()
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return events, nil
}

// DeleteInvoice removes an invoice and its archived file. Analytics events
// already recorded for it are kept.
func (s *Service) DeleteInvoice(id string) error {
	inv, err := s.db.GetInvoice(id)
	if err != nil {
		return fmt.Errorf("getting invoice for deletion: %w", err)
	}

	if s.storage != nil && inv.Filename != "" {
		if err := s.storage.Delete(inv.Filename); err != nil {
			slog.Warn("Failed to delete archived invoice", "filename", inv.Filename, "error", err)
		}
	}

	if err := s.db.DeleteInvoice(id); err != nil {
		return fmt.Errorf("deleting invoice from database: %w", err)
	}
	return nil
}
