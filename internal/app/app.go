// Package app wires configuration into a running store, knowledge base,
// extractor and enrichment engine. Both commands build on it.
package app

import (
	"context"
	"fmt"

	"github.com/scrypster/luminaries/internal/config"
	"github.com/scrypster/luminaries/internal/engine"
	"github.com/scrypster/luminaries/internal/extract"
	"github.com/scrypster/luminaries/internal/identity"
	"github.com/scrypster/luminaries/internal/llm"
	"github.com/scrypster/luminaries/internal/logging"
	"github.com/scrypster/luminaries/internal/scoring"
	"github.com/scrypster/luminaries/internal/sources"
	"github.com/scrypster/luminaries/internal/storage"
	"github.com/scrypster/luminaries/internal/storage/postgres"
	"github.com/scrypster/luminaries/internal/storage/sqlite"
)

// App holds the long-lived components.
type App struct {
	Config   *config.Config
	Store    storage.Store
	KB       identity.KnowledgeBase
	Resolver *identity.Resolver
	Engine   *engine.Engine
}

// New opens the store and builds every component from cfg. The engine is
// not started.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	kb := identity.NewWikidata(identity.WikidataConfig{
		BaseURL:    cfg.Sources.WikidataURL,
		Rate:       cfg.Sources.WikidataRate,
		Timeout:    cfg.Sources.RequestTimeout,
		MaxRetries: cfg.Sources.MaxRetries,
		UserAgent:  cfg.Sources.UserAgent,
	})

	feed, err := scoring.LoadFeed(cfg.Scoring.InfluenceFeed)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	extractor, err := NewExtractor(cfg.LLM)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	adapters := sources.NewAdapters(cfg.Sources, kb)
	configured := 0
	for _, a := range adapters {
		if a.Configured() {
			configured++
		}
	}

	eng, err := engine.New(store, engine.Dependencies{
		KnowledgeBase: kb,
		Adapters:      adapters,
		Extractor:     extractor,
		Feed:          feed,
	}, engine.ConfigFrom(cfg.Engine))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	logging.Info().
		Str("storage", cfg.Storage.Engine).
		Str("llm_provider", cfg.LLM.Provider).
		Bool("extraction", extractor != nil).
		Int("adapters", len(adapters)).
		Int("configured_adapters", configured).
		Msg("Components initialized")

	return &App{
		Config:   cfg,
		Store:    store,
		KB:       kb,
		Resolver: identity.NewResolver(store, kb),
		Engine:   eng,
	}, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}

// OpenStore opens the configured storage engine.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Engine {
	case "postgres":
		return postgres.Open(ctx, cfg.PostgresDSN)
	case "sqlite", "":
		return sqlite.OpenDir(ctx, cfg.DataPath)
	default:
		return nil, fmt.Errorf("unsupported storage engine: %q", cfg.Engine)
	}
}

// NewExtractor returns nil when the selected hosted provider has no API key,
// which marks extraction unconfigured on every run.
func NewExtractor(cfg config.LLMConfig) (*extract.Extractor, error) {
	switch {
	case cfg.Provider == "openai" && cfg.OpenAIAPIKey == "",
		cfg.Provider == "anthropic" && cfg.AnthropicAPIKey == "":
		return nil, nil
	}
	gen, err := llm.NewTextGenerator(cfg)
	if err != nil {
		return nil, err
	}
	return extract.New(llm.NewStructured(gen, cfg.Temperature), extract.Window{}), nil
}
