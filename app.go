package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Seungwon-Robin/Chatbot/config"
	"github.com/Seungwon-Robin/Chatbot/services"
	"github.com/Seungwon-Robin/Chatbot/storage"
)

// loadCatalog reads the catalog from the configured source.
func loadCatalog(ctx context.Context, cfg *config.Config) (*storage.Catalog, error) {
	switch cfg.Catalog.Source {
	case config.SourceCSV:
		return storage.LoadCatalog(cfg.Catalog.Path)
	case config.SourceMongo:
		store, err := storage.NewMongoStore(cfg)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.LoadCatalog(ctx)
	case config.SourceSQLite:
		db, err := storage.OpenSQLite(cfg.Catalog.SQLitePath)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		return db.LoadCatalog(ctx)
	default:
		return nil, fmt.Errorf("unknown catalog source %q", cfg.Catalog.Source)
	}
}

// newChatbot wires catalog, embedder, generator and index. Every error it
// returns is a *services.StartupError.
func newChatbot(ctx context.Context, cfg *config.Config) (*services.Chatbot, error) {
	catalog, err := loadCatalog(ctx, cfg)
	if err != nil {
		return nil, &services.StartupError{Stage: "catalog", Err: err}
	}

	embedder, err := services.NewEmbedder(ctx, cfg.Embedder.BaseURL, cfg.Embedder.Model, time.Duration(cfg.Embedder.TimeoutSecs)*time.Second)
	if err != nil {
		return nil, &services.StartupError{Stage: "embedding model", Err: err}
	}

	return services.NewChatbot(ctx, catalog, embedder, newGenerator(cfg), services.Options{
		IndexPath: cfg.Index.Path,
		TopK:      cfg.Retrieval.TopK,
	})
}

func newGenerator(cfg *config.Config) *services.Generator {
	return services.NewGenerator(cfg.Generator.BaseURL, cfg.ModelName, cfg.APIKey, time.Duration(cfg.Generator.TimeoutSecs)*time.Second).
		WithRateLimit(cfg.Generator.RequestsPerMinute)
}
