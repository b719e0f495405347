package llm

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/minhpq/hoard/internal/common"
	"github.com/minhpq/hoard/internal/grounding"
	"github.com/minhpq/hoard/internal/model"
	"github.com/minhpq/hoard/internal/service"
)

// How many statement rows go into one bulk extraction call.
const rowBatchSize = 20

// Fallback confidence when the model omits the confidence field.
const defaultExtractionConfidence = 0.5

const extractSystemPrompt = "You are a personal finance extraction engine. " +
	"You convert informal reports of financial events into the exact table format requested. " +
	"Respond with only the table, no commentary."

// Candidate is the outcome of one extraction. Fields is nil when the model
// output could not be parsed; Raw always preserves the original response (or
// input) so nothing is lost for manual entry.
type Candidate struct {
	Fields     map[string]string
	Raw        string
	Confidence float64
}

// Extracted reports whether the candidate carries a parsed field table.
func (c Candidate) Extracted() bool {
	return c.Fields != nil
}

// Extractor converts raw input plus grounding context into candidate action
// tables. It performs no writes; staging is the caller's concern.
type Extractor struct {
	client    Client
	cache     *extractionCache
	limiter   *rateLimiter
	logger    *slog.Logger
	retryOpts service.RetryOptions
}

// NewExtractor creates an extractor over the configured provider.
func NewExtractor(cfg Config, logger *slog.Logger) (*Extractor, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	retryOpts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}

	return &Extractor{
		client:    client,
		cache:     newExtractionCache(cfg.CacheTTL),
		limiter:   newRateLimiter(cfg.RateLimit),
		logger:    logger,
		retryOpts: retryOpts,
	}, nil
}

// NewExtractorWithClient creates an extractor over an existing client.
// Used by tests to substitute a mock provider.
func NewExtractorWithClient(client Client, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		client:    client,
		cache:     newExtractionCache(0),
		limiter:   newRateLimiter(0),
		logger:    logger,
		retryOpts: service.RetryOptions{MaxAttempts: 3, InitialDelay: time.Second},
	}
}

// Close releases background resources.
func (e *Extractor) Close() error {
	if e.cache != nil {
		e.cache.Close()
	}
	return nil
}

// ExtractText extracts a candidate action from a free-form message.
func (e *Extractor) ExtractText(ctx context.Context, text string, snap grounding.Snapshot) (Candidate, error) {
	key := contentHash("text", text)
	if cached, found := e.cache.get(key); found {
		e.logger.Debug("extraction cache hit", "source", "text")
		return cached, nil
	}

	prompt := e.buildTextPrompt(text, snap)
	candidate, err := e.extract(ctx, Request{System: extractSystemPrompt, Prompt: prompt})
	if err != nil {
		return Candidate{}, err
	}

	e.cache.set(key, candidate)
	return candidate, nil
}

// ExtractImage extracts a candidate action from a photo (e.g. a receipt).
// The image is opaque multimodal input; the caption, when present, is the
// user's accompanying message.
func (e *Extractor) ExtractImage(ctx context.Context, img Image, caption string, snap grounding.Snapshot) (Candidate, error) {
	key := contentHash("image", string(img.Data), caption)
	if cached, found := e.cache.get(key); found {
		e.logger.Debug("extraction cache hit", "source", "image")
		return cached, nil
	}

	prompt := e.buildImagePrompt(caption, snap)
	candidate, err := e.extract(ctx, Request{
		System: extractSystemPrompt,
		Prompt: prompt,
		Images: []Image{img},
	})
	if err != nil {
		return Candidate{}, err
	}

	e.cache.set(key, candidate)
	return candidate, nil
}

// ExtractRows extracts one candidate per statement row. Rows are sent in
// batches using the header + row matrix output format, but every row yields
// its own independent candidate; a row the model skipped or mangled comes
// back as an unparsed candidate carrying the raw response.
func (e *Extractor) ExtractRows(ctx context.Context, rows []model.StatementRow, snap grounding.Snapshot) ([]Candidate, error) {
	candidates := make([]Candidate, len(rows))

	for start := 0; start < len(rows); start += rowBatchSize {
		end := start + rowBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := e.extractRowBatch(ctx, rows[start:end], candidates[start:end], snap); err != nil {
			return nil, err
		}
	}

	return candidates, nil
}

func (e *Extractor) extractRowBatch(ctx context.Context, rows []model.StatementRow, out []Candidate, snap grounding.Snapshot) error {
	prompt := e.buildRowsPrompt(rows, snap)

	if err := e.limiter.wait(ctx); err != nil {
		return fmt.Errorf("rate limit error: %w", err)
	}

	var content string
	err := common.WithRetry(ctx, func() error {
		resp, callErr := e.client.Extract(ctx, Request{System: extractSystemPrompt, Prompt: prompt})
		if callErr != nil {
			e.logger.Warn("row extraction attempt failed", "error", callErr, "rows", len(rows))
			return &common.RetryableError{Err: callErr, Retryable: true}
		}
		content = resp.Content
		return nil
	}, e.retryOpts)
	if err != nil {
		return fmt.Errorf("row extraction failed: %w", err)
	}

	parsed, parseErr := parseRowTable(content)
	if parseErr != nil {
		// Whole batch unparsable: preserve the raw response per row
		e.logger.Warn("row table unparsable, staging raw rows", "error", parseErr, "rows", len(rows))
		for i := range out {
			out[i] = Candidate{Raw: content}
		}
		return nil
	}

	byRef := make(map[string]map[string]string, len(parsed))
	for _, row := range parsed {
		if ref := row["ref"]; ref != "" {
			byRef[ref] = row
		}
	}

	for i, row := range rows {
		fields, ok := byRef[row.Reference]
		if !ok && i < len(parsed) && len(byRef) == 0 {
			// No ref column came back; fall back to positional mapping
			fields, ok = parsed[i], true
		}
		if !ok {
			out[i] = Candidate{Raw: content}
			continue
		}
		out[i] = Candidate{
			Fields:     fields,
			Raw:        content,
			Confidence: parseConfidence(fields[FieldConfidence], defaultExtractionConfidence),
		}
	}

	return nil
}

// extract runs one model call with rate limiting and retries, then parses
// the response tolerantly. A response that cannot be parsed at all is not an
// error: the candidate keeps the raw text with confidence 0 so the action
// can be completed manually.
func (e *Extractor) extract(ctx context.Context, req Request) (Candidate, error) {
	if err := e.limiter.wait(ctx); err != nil {
		return Candidate{}, fmt.Errorf("rate limit error: %w", err)
	}

	var content string
	err := common.WithRetry(ctx, func() error {
		resp, callErr := e.client.Extract(ctx, req)
		if callErr != nil {
			e.logger.Warn("extraction attempt failed", "error", callErr)
			return &common.RetryableError{Err: callErr, Retryable: true}
		}
		content = resp.Content
		return nil
	}, e.retryOpts)
	if err != nil {
		return Candidate{}, fmt.Errorf("extraction failed: %w", err)
	}

	fields, parseErr := parseFieldTable(content)
	if parseErr != nil {
		e.logger.Warn("unparsable extraction output, keeping raw text", "error", parseErr)
		return Candidate{Raw: content}, nil
	}

	return Candidate{
		Fields:     fields,
		Raw:        content,
		Confidence: parseConfidence(fields[FieldConfidence], defaultExtractionConfidence),
	}, nil
}

// FieldConfidence is the self-reported confidence key in extraction output.
const FieldConfidence = "confidence"

func contentHash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

func groundingSection(snap grounding.Snapshot) string {
	var b strings.Builder
	if len(snap.Accounts) > 0 {
		b.WriteString("Known accounts (prefer exact matches):\n")
		for _, a := range snap.Accounts {
			b.WriteString("- " + a + "\n")
		}
	}
	if len(snap.Tags) > 0 {
		b.WriteString("Known tags (prefer exact matches):\n")
		for _, t := range snap.Tags {
			b.WriteString("- " + t + "\n")
		}
	}
	return b.String()
}

func (e *Extractor) buildTextPrompt(text string, snap grounding.Snapshot) string {
	return fmt.Sprintf(`Extract the financial action from this message.

Message:
%s

%s
Respond with exactly one fenced block in this format:

`+"```"+`action
verb: <spend|income|transfer|stake|unstake|borrow|repay_borrow>
amount: <number, shorthand like 120k allowed>
currency: <ISO code, e.g. VND, USD>
account: <account name if mentioned>
counterparty: <who was paid or paid you>
tag: <category tag if one fits>
note: <short free-text summary>
date: <YYYY-MM-DD if mentioned, otherwise omit>
confidence: <0.0-1.0, your certainty in this extraction>
`+"```"+`

Omit any line whose value is unknown. Never invent an account that is not in the known list.`,
		text, groundingSection(snap))
}

func (e *Extractor) buildImagePrompt(caption string, snap grounding.Snapshot) string {
	captionSection := ""
	if caption != "" {
		captionSection = "The sender added this caption:\n" + caption + "\n\n"
	}
	return fmt.Sprintf(`This photo documents a financial event (usually a receipt or invoice).
Extract the financial action from it.

%s%s
Respond with exactly one fenced block in this format:

`+"```"+`action
verb: <spend|income|transfer|stake|unstake|borrow|repay_borrow>
amount: <total amount>
currency: <ISO code>
account: <account name if identifiable>
counterparty: <merchant name>
tag: <category tag if one fits>
note: <short free-text summary>
date: <YYYY-MM-DD from the receipt, otherwise omit>
confidence: <0.0-1.0>
`+"```"+`

Omit any line whose value is unknown.`,
		captionSection, groundingSection(snap))
}

func (e *Extractor) buildRowsPrompt(rows []model.StatementRow, snap grounding.Snapshot) string {
	var rowLines strings.Builder
	for _, row := range rows {
		rowLines.WriteString(fmt.Sprintf("%s|%s|%s|%s|%s|%s\n",
			row.Reference, row.Date, row.Description, row.Debit, row.Credit, row.Currency))
	}

	return fmt.Sprintf(`These are bank statement rows in the format
ref|date|description|debit|credit|currency. A debit is money leaving the
account (verb spend), a credit is money arriving (verb income).

Rows:
%s
%s
Respond with exactly one fenced block: a header line followed by one output
row per input row, in this format:

`+"```"+`rows
ref|verb|amount|currency|account|counterparty|tag|note|date|confidence
`+"```"+`

Every output row must keep its input ref and repeat the row's date as
YYYY-MM-DD. Use "-" for unknown cells. Every row must have exactly 10 columns.`,
		rowLines.String(), groundingSection(snap))
}
