//go:build js && wasm

package main

import (
	"strconv"

	"github.com/dvcrn/turmeric/internal/app"
	"github.com/dvcrn/turmeric/internal/config"
	"github.com/dvcrn/turmeric/internal/credentials"
	"github.com/dvcrn/turmeric/internal/env"
	"github.com/dvcrn/turmeric/internal/logger"
	"github.com/dvcrn/turmeric/internal/paprika"
	"github.com/dvcrn/turmeric/internal/server"
	"github.com/dvcrn/turmeric/internal/store"
	"github.com/syumai/workers"
)

// KV binding configured in wrangler.toml
const kvNamespace = "TURMERIC_KV"

func intervalFromEnv(name string, fallback int) int {
	raw, ok := env.Get(name)
	if !ok {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func main() {
	log := logger.New()

	log.Info().Msg("📦 Using Cloudflare KV credentials and state")
	kvCreds, err := credentials.NewCloudflareKVFetcher(kvNamespace)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Cloudflare KV fetcher")
	}
	creds, err := kvCreds.GetCredentials()
	if err != nil {
		log.Fatal().Err(err).Msg("No Paprika credentials in KV")
	}

	kvStore, err := store.NewKV(kvNamespace, creds.UniqueID(), paprika.Resources())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create KV store")
	}

	cfg := config.Default()
	cfg.GroceriesRefresh = intervalFromEnv("GROCERIES_REFRESH", config.DefaultGroceriesRefresh)
	cfg.MealsRefresh = intervalFromEnv("MEALS_REFRESH", config.DefaultMealsRefresh)

	a, err := app.New(cfg, kvCreds, app.Options{
		Store:       kvStore,
		NoScheduler: true,
		Logger:      log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// No goroutine survives between requests, so every read runs a regular tick
	srv := app.NewServer(a, log, server.WithRefreshOnRead())

	workers.Serve(srv)
}
