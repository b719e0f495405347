package valuation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/minhpq/hoard/internal/common"
	"github.com/minhpq/hoard/internal/model"
	"github.com/minhpq/hoard/internal/service"
)

// fiatCodes is the set of currencies quoted directly against both reporting
// currencies. Anything outside it is treated as a crypto or commodity asset
// priced in USD first.
var fiatCodes = map[string]bool{
	"USD": true,
	"VND": true,
	"EUR": true,
	"GBP": true,
	"JPY": true,
	"SGD": true,
	"AUD": true,
	"THB": true,
}

// Valuation is the resolved conversion for one transaction. Either fx field
// may be nil when the rate could not be determined; Pending is set whenever
// at least one leg is missing.
type Valuation struct {
	FxToUSD *decimal.Decimal
	FxToVND *decimal.Decimal
	Pending bool
}

// Resolver answers "what was one unit of this asset worth in USD and VND on
// this day", consulting the cache before the provider and caching every
// provider answer.
type Resolver struct {
	store    service.Storage
	provider Provider
	source   string
	logger   *slog.Logger
}

// NewResolver creates a resolver. The provider may be nil, in which case
// only cached and identity rates resolve and everything else degrades.
func NewResolver(store service.Storage, provider Provider, source string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if source == "" {
		source = "external"
	}
	return &Resolver{store: store, provider: provider, source: source, logger: logger}
}

// IsFiat reports whether the code is a directly-quoted fiat currency.
func IsFiat(code string) bool {
	return fiatCodes[strings.ToUpper(code)]
}

// Resolve determines the USD and VND conversion rates for an asset on a
// given day. Provider outages never fail the call; the affected leg comes
// back nil with Pending set.
func (r *Resolver) Resolve(ctx context.Context, asset string, date time.Time) (*Valuation, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == "" {
		return nil, fmt.Errorf("asset code is required")
	}

	if IsFiat(asset) {
		return r.resolveFiat(ctx, asset, date)
	}
	return r.resolveAsset(ctx, asset, date)
}

func (r *Resolver) resolveFiat(ctx context.Context, currency string, date time.Time) (*Valuation, error) {
	v := &Valuation{}

	fxUSD, err := r.rate(ctx, currency, "USD", date)
	if err != nil {
		return nil, err
	}
	fxVND, err := r.rate(ctx, currency, "VND", date)
	if err != nil {
		return nil, err
	}

	v.FxToUSD = fxUSD
	v.FxToVND = fxVND
	v.Pending = fxUSD == nil || fxVND == nil
	return v, nil
}

// resolveAsset prices a non-fiat asset through USD: the asset's USD price
// comes from the provider and the VND leg is derived via the USD/VND rate.
func (r *Resolver) resolveAsset(ctx context.Context, asset string, date time.Time) (*Valuation, error) {
	v := &Valuation{}

	priceUSD, err := r.rate(ctx, asset, "USD", date)
	if err != nil {
		return nil, err
	}
	v.FxToUSD = priceUSD

	if priceUSD != nil {
		usdVND, err := r.rate(ctx, "USD", "VND", date)
		if err != nil {
			return nil, err
		}
		if usdVND != nil {
			derived := priceUSD.Mul(*usdVND)
			v.FxToVND = &derived
		}
	}

	v.Pending = v.FxToUSD == nil || v.FxToVND == nil
	return v, nil
}

// rate resolves one pair for one day: identity, then cache, then provider.
// A nil rate with nil error means the pair could not be resolved right now.
func (r *Resolver) rate(ctx context.Context, from, to string, date time.Time) (*decimal.Decimal, error) {
	if from == to {
		one := decimal.NewFromInt(1)
		return &one, nil
	}

	cached, err := r.store.GetRate(ctx, from, to, date)
	if err == nil {
		return &cached.Rate, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("rate cache lookup failed for %s/%s: %w", from, to, err)
	}

	if r.provider == nil {
		r.logger.Warn("no rate provider configured, valuation degraded",
			"from", from, "to", to, "date", date.Format(model.RateDateLayout))
		return nil, nil
	}

	fetched, err := r.provider.FetchRate(ctx, from, to, date)
	if err != nil {
		if errors.Is(err, common.ErrProviderUnavailable) {
			r.logger.Warn("rate provider unavailable, valuation degraded",
				"from", from, "to", to,
				"date", date.Format(model.RateDateLayout),
				"error", err)
			return nil, nil
		}
		return nil, err
	}

	rate := &model.Rate{
		From:   from,
		To:     to,
		Date:   date,
		Source: r.source,
		Rate:   fetched,
	}
	if err := r.store.SaveRate(ctx, rate); err != nil {
		return nil, fmt.Errorf("failed to cache rate for %s/%s: %w", from, to, err)
	}

	return &fetched, nil
}
