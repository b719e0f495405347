// Package valuation resolves conversion rates for committed transactions.
// Rates come from a day-keyed local cache first and an external HTTP provider
// second; when the provider is unreachable the resolver degrades instead of
// blocking the commit.
package valuation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/minhpq/hoard/internal/common"
	"github.com/minhpq/hoard/internal/config"
	"github.com/minhpq/hoard/internal/model"
)

// Provider fetches one conversion rate for a pair on a given day. Fiat pairs
// are FX rates; crypto assets are quoted as asset->USD prices through the
// same shape.
type Provider interface {
	FetchRate(ctx context.Context, from, to string, date time.Time) (decimal.Decimal, error)
}

// HTTPProvider queries an exchangerate.host-compatible historical endpoint.
type HTTPProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	source  string
}

// NewHTTPProvider creates a provider from rates configuration.
func NewHTTPProvider(cfg config.RatesConfig) *HTTPProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		client:  &http.Client{Timeout: timeout},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		source:  cfg.Source,
	}
}

// Source identifies the provider in cached rate rows.
func (p *HTTPProvider) Source() string {
	if p.source == "" {
		return "exchangerate.host"
	}
	return p.source
}

type rateResponse struct {
	Rates   map[string]json.Number `json:"rates"`
	Success *bool                  `json:"success"`
}

// FetchRate fetches the historical rate for one pair. Any transport or
// payload failure is reported as ErrProviderUnavailable so callers can
// degrade uniformly.
func (p *HTTPProvider) FetchRate(ctx context.Context, from, to string, date time.Time) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/%s", p.baseURL, date.Format(model.RateDateLayout))

	q := url.Values{}
	q.Set("base", from)
	q.Set("symbols", to)
	if p.apiKey != "" {
		q.Set("access_key", p.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create rate request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rate request for %s/%s failed: %w: %v",
			from, to, common.ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("rate provider returned status %d for %s/%s: %w",
			resp.StatusCode, from, to, common.ErrProviderUnavailable)
	}

	var payload rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode rate response: %w: %v",
			common.ErrProviderUnavailable, err)
	}
	if payload.Success != nil && !*payload.Success {
		return decimal.Zero, fmt.Errorf("rate provider reported failure for %s/%s: %w",
			from, to, common.ErrProviderUnavailable)
	}

	raw, ok := payload.Rates[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("rate provider response missing %s/%s: %w",
			from, to, common.ErrProviderUnavailable)
	}

	rate, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("rate provider returned invalid rate %q for %s/%s: %w",
			raw.String(), from, to, common.ErrProviderUnavailable)
	}
	if rate.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("rate provider returned non-positive rate for %s/%s: %w",
			from, to, common.ErrProviderUnavailable)
	}

	return rate, nil
}
