package stage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/minhpq/hoard/internal/model"
	"github.com/minhpq/hoard/internal/service"
)

// batchNamespace seeds deterministic batch ids.
var batchNamespace = uuid.MustParse("9f2c1e9e-41d7-4b0a-8a4e-6a3cf6a1a0d5")

// NewBatchID derives a deterministic batch id from the bulk source name and
// its processing timestamp, so every row of one upload shares it and a
// redelivered upload reproduces it.
func NewBatchID(sourceName string, processedAt time.Time) string {
	seed := sourceName + "|" + processedAt.UTC().Format(time.RFC3339)
	return uuid.NewSHA1(batchNamespace, []byte(seed)).String()
}

// Input is one candidate ready for staging. Action is nil when extraction or
// validation failed; the raw text is then all that survives for manual entry.
type Input struct {
	Action     *model.Action
	Meta       map[string]string
	BatchID    string
	RawText    string
	Source     model.Source
	Confidence float64
}

// Stager persists candidates as pending actions. Delivery is idempotent: a
// retried delivery of the same payload in the same batch returns the
// already-staged record instead of creating another.
type Stager struct {
	store  service.Storage
	logger *slog.Logger
	secret string
}

// NewStager creates a stager signing payloads with the shared secret.
func NewStager(store service.Storage, secret string, logger *slog.Logger) (*Stager, error) {
	if secret == "" {
		return nil, fmt.Errorf("signing secret is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Stager{store: store, secret: secret, logger: logger}, nil
}

// VerifyDelivery authenticates an externally delivered payload against its
// signature header before anything is staged.
func (s *Stager) VerifyDelivery(body []byte, signature string) error {
	return Verify(s.secret, body, signature)
}

// Stage signs and persists one candidate. The returned bool is false when
// the delivery was a duplicate and the existing record is returned.
func (s *Stager) Stage(ctx context.Context, in Input) (*model.PendingAction, bool, error) {
	body, err := CanonicalPayload(in.Source, in.Action, in.RawText, in.Meta)
	if err != nil {
		return nil, false, err
	}

	pending := &model.PendingAction{
		ID:         uuid.NewString(),
		BatchID:    in.BatchID,
		Source:     in.Source,
		Action:     in.Action,
		RawText:    in.RawText,
		Confidence: in.Confidence,
		Status:     model.StatusPending,
		Signature:  Sign(s.secret, body),
		Meta:       in.Meta,
		CreatedAt:  time.Now().UTC(),
	}

	staged, created, err := s.store.CreatePendingAction(ctx, pending)
	if err != nil {
		return nil, false, fmt.Errorf("failed to stage pending action: %w", err)
	}

	if !created {
		s.logger.Info("duplicate delivery, returning existing pending action",
			"pending_id", staged.ID,
			"batch_id", staged.BatchID)
		return staged, false, nil
	}

	s.logger.Info("staged pending action",
		"pending_id", staged.ID,
		"batch_id", staged.BatchID,
		"source", staged.Source,
		"has_action", staged.Action != nil,
		"confidence", staged.Confidence)

	return staged, true, nil
}
