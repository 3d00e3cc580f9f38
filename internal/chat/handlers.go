package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/zombor/invoiceai/internal/invoice"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes {"error": message} with the given status
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// engineError maps conversation errors to responses
func engineError(w http.ResponseWriter, sessionID string, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		jsonError(w, "Session not found", http.StatusNotFound)
	case errors.Is(err, ErrNothingToSave):
		jsonError(w, "There is no unsaved invoice in this session", http.StatusConflict)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		jsonError(w, "Request cancelled", http.StatusServiceUnavailable)
	default:
		slog.Error("Error handling session request", "session_id", sessionID, "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// handlePostMessage runs one conversation turn
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		Text            string     `json:"text"`
		ClientTimestamp *time.Time `json:"client_timestamp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var ts time.Time
	if req.ClientTimestamp != nil {
		ts = *req.ClientTimestamp
	}

	reply, err := s.engine.PostMessage(r.Context(), id, req.Text, ts)
	if err != nil {
		engineError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// handleReset starts a new invoice in the session
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.engine.Reset(id); err != nil {
		engineError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRetrySave retries a failed save of a finalized invoice
func (s *Server) handleRetrySave(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	reply, err := s.engine.RetrySave(r.Context(), id)
	if err != nil {
		engineError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// handleSetTemplate records the template picked in the UI
func (s *Server) handleSetTemplate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		TemplateID string `json:"template_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.engine.SetTemplate(id, req.TemplateID); err != nil {
		engineError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetSession returns the session history and draft
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	session, err := s.engine.Session(id)
	if err != nil {
		engineError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleListInvoices returns a list of all finalized invoices
func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := s.invoices.ListInvoices()
	if err != nil {
		slog.Error("Error listing invoices", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// Ensure we always return an array, not nil
	if invoices == nil {
		invoices = []*invoice.Invoice{}
	}
	writeJSON(w, http.StatusOK, invoices)
}

// handleGetInvoice returns a single invoice
func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	inv, err := s.invoices.GetInvoice(id)
	if err != nil {
		if !errors.Is(err, invoice.ErrNotFound) {
			slog.Error("Error getting invoice", "id", id, "error", err)
		}
		corsError(w, "Invoice not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// handleGetInvoiceFile returns the archived XLSX copy of an invoice
func (s *Server) handleGetInvoiceFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, err := s.invoices.GetInvoiceFile(id)
	if err != nil {
		corsError(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="invoice-%s.xlsx"`, id))
	w.Write(data)
}

// handleDeleteInvoice deletes a finalized invoice and its archived file
func (s *Server) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.invoices.DeleteInvoice(id); err != nil {
		if errors.Is(err, invoice.ErrNotFound) {
			corsError(w, "Invoice not found", http.StatusNotFound)
			return
		}
		slog.Error("Error deleting invoice", "id", id, "error", err)
		corsError(w, "Error deleting invoice", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListEvents returns every analytics event
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.invoices.ListEvents()
	if err != nil {
		slog.Error("Error listing events", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if events == nil {
		events = []*invoice.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}
