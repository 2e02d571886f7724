package main

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"symptom-triage/internal/config"
	"symptom-triage/internal/db"
	"symptom-triage/internal/keystore"
	"symptom-triage/internal/llm"
	"symptom-triage/internal/places"
)

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database.url is not configured")
	}
	return db.Open(ctx, db.Options{
		URL:            cfg.URL,
		MaxConnections: cfg.MaxConnections,
		MaxIdle:        cfg.MaxIdle,
	})
}

// poolStore uses Redis when configured and reachable, memory otherwise.
func poolStore(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) llm.PoolStore {
	if cfg.Address == "" {
		log.Info("redis not configured, api key pool kept in memory")
		return llm.NewMemoryStore()
	}
	client := keystore.NewClient(keystore.Options{
		Address:  cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	store := keystore.NewRedisStore(client, cfg.Key)
	if err := store.Ping(ctx); err != nil {
		log.Warn("redis unreachable, api key pool kept in memory", zap.String("address", cfg.Address), zap.Error(err))
		_ = client.Close()
		return llm.NewMemoryStore()
	}
	return store
}

func newBackend(cfg *config.Config) llm.Backend {
	if cfg.Gemini.Backend == "openai" {
		return llm.NewOpenAIClient(cfg.OpenAI.BaseURL, cfg.OpenAI.Model)
	}
	return llm.NewGeminiClient(cfg.Gemini.BaseURL, cfg.Gemini.Model, config.GetDuration(cfg.Gemini.Timeout))
}

func newPlaces(cfg config.PlacesConfig, log *zap.Logger) *places.Client {
	return places.New(places.Options{
		GeoapifyURL:  cfg.GeoapifyURL,
		NominatimURL: cfg.NominatimURL,
		APIKey:       cfg.GeoapifyKey,
		UserAgent:    cfg.UserAgent,
		Timeout:      config.GetDuration(cfg.Timeout),
		RadiusMeters: cfg.Radius,
	}, log)
}
