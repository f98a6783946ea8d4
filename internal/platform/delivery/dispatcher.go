package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/fhirgen/internal/platform/blobstore"
)

// Attempt statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Attempt records the outcome of delivering one stored document.
type Attempt struct {
	ID         string                 `json:"id"`
	Key        string                 `json:"key"`
	Status     string                 `json:"status"`
	StatusCode int                    `json:"status_code,omitempty"`
	Response   map[string]interface{} `json:"response,omitempty"`
	Duration   time.Duration          `json:"duration_ns"`
	Error      string                 `json:"error,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Summary counts attempts by status.
type Summary struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Summarize tallies attempts.
func Summarize(attempts []Attempt) Summary {
	var s Summary
	for _, a := range attempts {
		switch a.Status {
		case StatusSuccess:
			s.Success++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		}
	}
	return s
}

// Dispatcher delivers every stored document through a Sender.
type Dispatcher struct {
	store  blobstore.Store
	sender Sender
	logger zerolog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(store blobstore.Store, sender Sender, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{store: store, sender: sender, logger: logger}
}

// SendAll delivers each .json document under the folder prefix that sits in
// a subfolder, in key order. prefix names a folder, so "output" does not match
// "output_old/...". Documents that are not valid JSON are skipped and
// failed deliveries are recorded; neither stops the walk. The error is
// non-nil only when the store cannot be listed or ctx is canceled.
func (d *Dispatcher) SendAll(ctx context.Context, prefix string) ([]Attempt, error) {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	items, err := d.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	var attempts []Attempt
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return attempts, err
		}
		rel := strings.TrimPrefix(item.Key, prefix)
		if !strings.HasSuffix(item.Key, ".json") || !strings.Contains(rel, "/") {
			continue
		}
		attempt := d.deliver(ctx, item.Key)
		attempts = append(attempts, attempt)
	}

	s := Summarize(attempts)
	d.logger.Info().
		Int("success", s.Success).
		Int("failed", s.Failed).
		Int("skipped", s.Skipped).
		Msg("delivery complete")
	return attempts, nil
}

func (d *Dispatcher) deliver(ctx context.Context, key string) Attempt {
	attempt := Attempt{
		ID:        uuid.New().String(),
		Key:       key,
		CreatedAt: time.Now().UTC(),
	}

	payload, _, err := d.store.Get(ctx, key)
	if err != nil {
		attempt.Status = StatusFailed
		attempt.Error = err.Error()
		d.logger.Error().Err(err).Str("key", key).Msg("failed to read document")
		return attempt
	}

	if !json.Valid(payload) {
		attempt.Status = StatusSkipped
		attempt.Error = "invalid JSON"
		d.logger.Warn().Str("key", key).Msg("skipping document, invalid JSON")
		return attempt
	}

	result, err := d.sender.Send(ctx, Message{Key: key, Payload: payload})
	if result != nil {
		attempt.StatusCode = result.StatusCode
		attempt.Response = result.Body
		attempt.Duration = result.Duration
	}
	if err != nil {
		attempt.Status = StatusFailed
		attempt.Error = err.Error()
		d.logger.Error().Err(err).Str("key", key).Int("status", attempt.StatusCode).Msg("delivery failed")
		return attempt
	}

	attempt.Status = StatusSuccess
	d.logger.Info().Str("key", key).Int("status", attempt.StatusCode).Dur("latency", attempt.Duration).Msg("document delivered")
	return attempt
}
