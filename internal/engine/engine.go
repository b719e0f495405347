// Package engine wires extraction, validation, staging, review, and ledger
// commit into the operations the CLI exposes. Every ingested report ends as
// a pending record, even when extraction or validation failed; nothing
// reaches the ledger without passing the review gate.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/minhpq/hoard/internal/action"
	"github.com/minhpq/hoard/internal/grounding"
	"github.com/minhpq/hoard/internal/ledger"
	"github.com/minhpq/hoard/internal/llm"
	"github.com/minhpq/hoard/internal/model"
	"github.com/minhpq/hoard/internal/review"
	"github.com/minhpq/hoard/internal/stage"
)

// Meta keys recorded on pending actions.
const (
	MetaReason  = "reason"
	MetaBankRef = "bank_ref"
)

// Engine orchestrates the report-to-ledger pipeline.
type Engine struct {
	extractor *llm.Extractor
	validator *action.Validator
	stager    *stage.Stager
	gate      *review.Gate
	committer *ledger.Committer
	grounding grounding.Provider
	logger    *slog.Logger
}

// New assembles an engine from its components.
func New(
	extractor *llm.Extractor,
	validator *action.Validator,
	stager *stage.Stager,
	gate *review.Gate,
	committer *ledger.Committer,
	groundingProvider grounding.Provider,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		extractor: extractor,
		validator: validator,
		stager:    stager,
		gate:      gate,
		committer: committer,
		grounding: groundingProvider,
		logger:    logger,
	}
}

// IngestResult is one staged report.
type IngestResult struct {
	Pending *model.PendingAction
	Created bool
}

// IngestText runs one informal text report through extraction and validation
// and stages the outcome. Redelivering the same text with the same receipt
// time returns the already-staged record.
func (e *Engine) IngestText(ctx context.Context, text string, receivedAt time.Time) (*IngestResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("report text is empty")
	}

	snap, err := e.grounding.Get(ctx)
	if err != nil {
		return nil, err
	}

	candidate, err := e.extractor.ExtractText(ctx, text, snap)
	if err != nil {
		return nil, err
	}

	batchID := stage.NewBatchID(string(model.SourceText), receivedAt)
	return e.stageCandidate(ctx, candidate, stage.Input{
		BatchID: batchID,
		Source:  model.SourceText,
		RawText: text,
	})
}

// IngestImage runs one receipt photo (plus optional caption) through the
// pipeline.
func (e *Engine) IngestImage(ctx context.Context, img llm.Image, caption string, receivedAt time.Time) (*IngestResult, error) {
	if len(img.Data) == 0 {
		return nil, fmt.Errorf("image data is empty")
	}

	snap, err := e.grounding.Get(ctx)
	if err != nil {
		return nil, err
	}

	candidate, err := e.extractor.ExtractImage(ctx, img, caption, snap)
	if err != nil {
		return nil, err
	}

	batchID := stage.NewBatchID(string(model.SourceImage), receivedAt)
	return e.stageCandidate(ctx, candidate, stage.Input{
		BatchID: batchID,
		Source:  model.SourceImage,
		RawText: caption,
	})
}

// IngestRows processes a bank statement: every row becomes its own pending
// record under one deterministic batch id, so re-importing the same export
// is a no-op. The batch id is returned for bulk approval.
func (e *Engine) IngestRows(ctx context.Context, sourceName string, rows []model.StatementRow, processedAt time.Time) (string, []IngestResult, error) {
	if len(rows) == 0 {
		return "", nil, fmt.Errorf("statement has no rows")
	}

	snap, err := e.grounding.Get(ctx)
	if err != nil {
		return "", nil, err
	}

	candidates, err := e.extractor.ExtractRows(ctx, rows, snap)
	if err != nil {
		return "", nil, err
	}

	batchID := stage.NewBatchID(sourceName, processedAt)
	results := make([]IngestResult, 0, len(rows))
	for i, row := range rows {
		meta := map[string]string{}
		if row.Reference != "" {
			meta[MetaBankRef] = row.Reference
		}

		result, err := e.stageCandidate(ctx, candidates[i], stage.Input{
			BatchID: batchID,
			Source:  model.SourceSpreadsheetRow,
			RawText: rawRowText(row),
			Meta:    meta,
		})
		if err != nil {
			return batchID, results, fmt.Errorf("failed to stage row %d (%s): %w", i+1, row.Reference, err)
		}
		results = append(results, *result)
	}

	e.logger.Info("ingested statement",
		"source", sourceName,
		"batch_id", batchID,
		"rows", len(rows))

	return batchID, results, nil
}

// stageCandidate validates one extraction candidate and stages the outcome.
// Extraction and validation failures stage an action-less record carrying
// the failure reason, never an error.
func (e *Engine) stageCandidate(ctx context.Context, candidate llm.Candidate, in stage.Input) (*IngestResult, error) {
	if in.Meta == nil {
		in.Meta = map[string]string{}
	}

	if !candidate.Extracted() {
		in.Meta[MetaReason] = "extraction produced no parseable action"
	} else {
		result := e.validator.Validate(candidate.Fields, candidate.Confidence, in.Source)
		if result.Action == nil {
			in.Meta[MetaReason] = result.Reason
		} else {
			in.Action = result.Action
			in.Confidence = result.Confidence
		}
	}

	pending, created, err := e.stager.Stage(ctx, in)
	if err != nil {
		return nil, err
	}
	return &IngestResult{Pending: pending, Created: created}, nil
}

// Approve approves one pending action and, if approval succeeded, commits it
// to the ledger. A commit failure leaves the record approved but uncommitted
// for manual correction; the returned pending state reflects that.
func (e *Engine) Approve(ctx context.Context, id string) (*model.PendingAction, *model.Transaction, error) {
	pending, err := e.gate.Approve(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if pending.Status != model.StatusApproved {
		return pending, nil, nil
	}

	txn, err := e.committer.Commit(ctx, pending)
	if err != nil {
		e.logger.Warn("approved action failed to commit",
			"pending_id", id, "error", err)
		return pending, nil, fmt.Errorf("approved but not committed: %w", err)
	}
	return pending, txn, nil
}

// Reject rejects one pending action.
func (e *Engine) Reject(ctx context.Context, id string) (*model.PendingAction, error) {
	return e.gate.Reject(ctx, id)
}

// BatchOutcome summarizes a bulk approval and its commits.
type BatchOutcome struct {
	Approved    []model.PendingAction
	Skipped     []model.PendingAction
	Committed   []model.Transaction
	Uncommitted []model.PendingAction
}

// ApproveBatch bulk-approves a batch at a confidence threshold and commits
// every approval. Commit failures do not stop the batch; the affected
// records stay approved and are reported as uncommitted.
func (e *Engine) ApproveBatch(ctx context.Context, batchID string, threshold float64) (*BatchOutcome, error) {
	result, err := e.gate.ApproveBatch(ctx, batchID, threshold)
	if err != nil {
		return nil, err
	}

	outcome := &BatchOutcome{
		Approved: result.Approved,
		Skipped:  result.Skipped,
	}
	for i := range result.Approved {
		pending := result.Approved[i]
		txn, err := e.committer.Commit(ctx, &pending)
		if err != nil {
			e.logger.Warn("batch member failed to commit",
				"pending_id", pending.ID, "batch_id", batchID, "error", err)
			outcome.Uncommitted = append(outcome.Uncommitted, pending)
			continue
		}
		outcome.Committed = append(outcome.Committed, *txn)
	}

	return outcome, nil
}

// rawRowText preserves a statement row for the pending record.
func rawRowText(row model.StatementRow) string {
	parts := []string{row.Reference, row.Date, row.Description, row.Debit, row.Credit, row.Currency}
	return strings.Join(parts, " | ")
}
