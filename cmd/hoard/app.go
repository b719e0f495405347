package main

import (
	"fmt"
	"log/slog"

	"github.com/minhpq/hoard/internal/action"
	"github.com/minhpq/hoard/internal/config"
	"github.com/minhpq/hoard/internal/engine"
	"github.com/minhpq/hoard/internal/grounding"
	"github.com/minhpq/hoard/internal/ledger"
	"github.com/minhpq/hoard/internal/llm"
	"github.com/minhpq/hoard/internal/review"
	"github.com/minhpq/hoard/internal/stage"
	"github.com/minhpq/hoard/internal/storage"
	"github.com/minhpq/hoard/internal/valuation"
)

// app bundles the wired components a command needs, plus their teardown.
type app struct {
	cfg       *config.Config
	store     *storage.SQLiteStorage
	engine    *engine.Engine
	committer *ledger.Committer
	extractor *llm.Extractor
	logger    *slog.Logger
}

// newApp loads configuration, opens storage, and wires the pipeline. withLLM
// commands pay for an extractor; review-only commands do not need one and
// must not require an API key.
func newApp(withLLM bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default()

	store, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	stager, err := stage.NewStager(store, cfg.SigningSecret, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	router, err := ledger.NewRouter(cfg.DefaultSpendVault, cfg.DefaultIncomeVault, cfg.BorrowVault)
	if err != nil {
		store.Close()
		return nil, err
	}

	provider := valuation.NewHTTPProvider(cfg.Rates)
	resolver := valuation.NewResolver(store, provider, provider.Source(), logger)
	committer := ledger.NewCommitter(store, resolver, router, logger)
	gate := review.NewGate(store, logger)

	a := &app{
		cfg:       cfg,
		store:     store,
		committer: committer,
		logger:    logger,
	}

	var extractor *llm.Extractor
	if withLLM {
		extractor, err = llm.NewExtractor(llm.Config(cfg.LLM), logger)
		if err != nil {
			store.Close()
			return nil, err
		}
		a.extractor = extractor
	}

	validator := action.NewValidator(cfg.Location(), "VND")
	ground := grounding.NewCached(
		grounding.NewStorageProvider(store, cfg.ExtraTags),
		cfg.GroundingTTL,
		logger,
	)
	a.engine = engine.New(extractor, validator, stager, gate, committer, ground, logger)

	return a, nil
}

// Close releases the app's resources.
func (a *app) Close() {
	if a.extractor != nil {
		_ = a.extractor.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}
