package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/vantage-run/optigate/background"
	"github.com/vantage-run/optigate/config"
	"github.com/vantage-run/optigate/datahaven"
	"github.com/vantage-run/optigate/handler"
	"github.com/vantage-run/optigate/logger"
	"github.com/vantage-run/optigate/memory"
	"github.com/vantage-run/optigate/orchestrator"
	"github.com/vantage-run/optigate/pii"
	"github.com/vantage-run/optigate/policyengine"
	"github.com/vantage-run/optigate/provider"
	"github.com/vantage-run/optigate/ratelimit"
	"github.com/vantage-run/optigate/redisclient"
	"github.com/vantage-run/optigate/router"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	log.Info().Str("env", cfg.Env).Msg("optigate starting")

	pool := provider.DefaultConnectionPool()
	registry := provider.NewRegistry()
	registerProviders(cfg, pool, registry, log)

	var memStore memory.Store
	if cfg.RedisURL != "" {
		rc, err := redisclient.New(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("redis init failed — falling back to in-memory recency store")
			memStore = memory.NewRecencyStore(500)
		} else if err := rc.Ping(context.Background()); err != nil {
			log.Warn().Err(err).Msg("redis ping failed — falling back to in-memory recency store")
			memStore = memory.NewRecencyStore(500)
		} else {
			log.Info().Msg("redis connected, using redis-backed memory store")
			memStore = memory.NewRedisStore(rc, "optigate:memory", 500, log)
		}
	} else {
		memStore = memory.NewRecencyStore(500)
	}

	piiGuard := pii.New(nil, log)
	piiGuard.StartReaper(5*time.Minute, 30*time.Minute)

	dhClient := datahaven.New(cfg.DataHavenServiceURL, cfg.DataHavenTimeout, log)

	cloudModels := map[string]string{
		"GROQ":       cfg.GroqModel,
		"OPENAI":     cfg.OpenAIModel,
		"MISTRAL":    cfg.MistralModel,
		"OPENROUTER": cfg.OpenRouterModel,
	}
	policyEngine := policyengine.New(dhClient, cfg.LocalModel, cloudModels, cfg.TokenThreshold)

	bgQueue := background.New(256, 4, log)
	bgQueue.Start()

	orch := orchestrator.New(policyEngine, piiGuard, memStore, registry, dhClient, bgQueue, log, orchestrator.Config{
		MemoryTopK:      cfg.MemoryTopK,
		CostPer1kInput:  cfg.CostPer1kInput,
		CostPer1kOutput: cfg.CostPer1kOutput,
	})

	gatewayHandler := handler.NewGatewayHandler(orch, log)
	healthHandler := handler.NewHealthHandler(memStore, registry, dhClient)

	limiter := ratelimit.New(cfg.RateLimitRequests, cfg.RateLimitWindow)

	r := router.NewRouter(cfg, log, gatewayHandler, healthHandler, limiter)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 150 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	healthPoller := provider.NewHealthPoller(registry, log, 30*time.Second)
	healthPoller.OnStatusChange(func(name string, healthy bool, status provider.HealthStatus) {
		if healthy {
			log.Info().Str("provider", name).Msg("provider recovered")
		} else {
			log.Error().Str("provider", name).Str("error", status.Error).Msg("provider degraded")
		}
	})
	healthPoller.Start()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	healthPoller.Stop()
	piiGuard.StopReaper()
	bgQueue.Stop()
	pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("gateway stopped gracefully")
	}
}

// registerProviders wires up the inference backends this gateway can
// route to: a local Ollama install plus whichever cloud providers have
// credentials configured. Every provider shares the connection pool so
// per-host transports and their metrics are tracked centrally.
func registerProviders(cfg *config.Config, pool *provider.ConnectionPool, registry *provider.Registry, log zerolog.Logger) {
	local := provider.NewOllamaProvider(pool, cfg.OllamaBaseURL, cfg.LocalModel, 120*time.Second)
	registry.Register(local)
	log.Info().Str("url", cfg.OllamaBaseURL).Str("model", cfg.LocalModel).Msg("registered local ollama provider")

	if cfg.GroqAPIKey != "" {
		groq := provider.NewGroqProvider(pool, cfg.GroqAPIKey, cfg.GroqModel, 60*time.Second)
		registry.Register(groq)
		log.Info().Msg("registered groq provider")
	}

	if cfg.OpenAIAPIKey != "" {
		openai := provider.NewOpenAIProvider(pool, cfg.OpenAIAPIKey, cfg.OpenAIModel, 60*time.Second)
		registry.Register(openai)
		log.Info().Msg("registered openai provider")
	}

	if cfg.MistralAPIKey != "" {
		mistral := provider.NewMistralProvider(pool, cfg.MistralBaseURL, cfg.MistralAPIKey, cfg.MistralModel, 60*time.Second)
		registry.Register(mistral)
		log.Info().Msg("registered mistral provider")
	}

	if cfg.OpenRouterAPIKey != "" {
		openrouter := provider.NewOpenRouterProvider(
			pool,
			cfg.OpenRouterAPIKey,
			cfg.OpenRouterModel,
			cfg.OpenRouterBaseURL,
			cfg.OpenRouterSiteURL,
			cfg.OpenRouterAppName,
			60*time.Second,
		)
		registry.Register(openrouter)
		log.Info().Msg("registered openrouter provider")
	}

	log.Info().Int("providers", len(registry.List())).Msg("provider registration complete")
}
