package extraction

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/zombor/invoiceai/internal/invoice"
)

// Request is everything a backend needs for one completion
type Request struct {
	Instructions string
	Schema       map[string]any
	UserText     string
}

// Backend is a language model that answers a Request with JSON text
type Backend interface {
	// Complete returns the raw model output for req
	Complete(ctx context.Context, req Request) (string, error)
	// Close releases resources held by the backend
	Close() error
}

// Config tunes how the extractor talks to its backend
type Config struct {
	DefaultCurrency string
	AttemptTimeout  time.Duration
	MaxAttempts     int
	BackoffBase     time.Duration
	BackoffMax      time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = "NGN"
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 20 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 4 * time.Second
	}
	return c
}

// Extractor turns free-form messages into partial invoice fields
type Extractor struct {
	backend Backend
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
}

// New creates an Extractor around backend
func New(backend Backend, cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		backend: backend,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		now:     time.Now,
		sleep:   sleepWithContext,
	}
}

// Close closes the backend
func (e *Extractor) Close() error {
	return e.backend.Close()
}

// Extract reads text in the context of the prior draft. Backend failures
// degrade to an empty extraction; only a cancelled ctx is returned as an error.
func (e *Extractor) Extract(ctx context.Context, text string, prior *invoice.Draft) (*invoice.Extraction, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	rid := uuid.NewString()
	start := time.Now()
	req := Request{
		Instructions: buildInstructions(e.cfg.DefaultCurrency, e.now(), prior),
		Schema:       responseSchema(),
		UserText:     text,
	}
	e.logger.Info("llm.extract.start", "req_id", rid, "chars", len(text), "has_draft", prior != nil)

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		out, err := e.attempt(ctx, req)
		if err == nil {
			e.logger.Info("llm.extract.ok",
				"req_id", rid,
				"attempt", attempt,
				"extracted", extractedFields(out),
				"confidence", out.Confidence,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return out, nil
		}
		if ctx.Err() != nil {
			e.logger.Info("llm.extract.cancelled", "req_id", rid, "elapsed_ms", time.Since(start).Milliseconds())
			return nil, ctx.Err()
		}

		lastErr = err
		if !retryable(err) {
			e.logger.Error("llm.extract.permanent_error", "req_id", rid, "attempt", attempt, "error", err)
			break
		}
		if attempt == e.cfg.MaxAttempts {
			break
		}

		wait := e.backoff(attempt)
		e.logger.Warn("llm.extract.retry", "req_id", rid, "attempt", attempt, "wait_ms", wait.Milliseconds(), "error", err)
		if err := e.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	e.logger.Error("llm.extract.degraded",
		"req_id", rid,
		"error", lastErr,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return invoice.EmptyExtraction(), nil
}

type completion struct {
	text string
	err  error
}

// attempt bounds one backend call by the attempt timeout, even when the
// backend does not watch its context.
func (e *Extractor) attempt(ctx context.Context, req Request) (*invoice.Extraction, error) {
	actx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
	defer cancel()

	done := make(chan completion, 1)
	go func() {
		text, err := e.backend.Complete(actx, req)
		done <- completion{text: text, err: err}
	}()

	select {
	case <-actx.Done():
		return nil, actx.Err()
	case c := <-done:
		if c.err != nil {
			return nil, c.err
		}
		return parseResponse(c.text, e.logger)
	}
}

func (e *Extractor) backoff(attempt int) time.Duration {
	wait := e.cfg.BackoffBase << (attempt - 1)
	if wait <= 0 || wait > e.cfg.BackoffMax {
		wait = e.cfg.BackoffMax
	}
	return wait
}

// retryable reports whether err is a transient failure
func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrMalformedResponse),
		errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Internal, codes.Aborted:
			return true
		case codes.Unknown:
			// not a gRPC status; fall through to the network check
		default:
			return false
		}
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func sleepWithContext(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func extractedFields(x *invoice.Extraction) []string {
	var out []string
	for _, f := range invoice.Fields {
		if x.Has(f) {
			out = append(out, string(f))
		}
	}
	return out
}
