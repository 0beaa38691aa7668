package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cipherhub/cipher-core/internal/config"
	"github.com/cipherhub/cipher-core/internal/inference"
	"github.com/cipherhub/cipher-core/internal/logging"
	"github.com/cipherhub/cipher-core/internal/memory"
	"github.com/cipherhub/cipher-core/internal/scheduler"
	"github.com/cipherhub/cipher-core/internal/server"
	"github.com/cipherhub/cipher-core/internal/telemetry"
)

var version = "1.0.0"

func main() {
	configPath := flag.String("config", "cipher.yaml", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("cipher-core v%s\n", version)
		os.Exit(0)
	}

	logger := logging.WithComponent("main")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	logger.Info("starting cipher-core", "version", version)

	// persistence backend: redis when enabled, volatile otherwise
	var rdb *redis.Client
	var backend memory.Backend
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, memory features degrade until it returns", "addr", cfg.Redis.Addr, "error", err)
		}
		cancel()
		backend = memory.NewRedisBackend(rdb)
	} else {
		logger.Warn("redis disabled, memory will not survive a restart")
		backend = memory.NewMemoryBackend()
	}

	store := memory.NewStore(backend, logging.WithComponent("memory"))
	classifier := memory.NewClassifier(store, logging.WithComponent("writeback"))
	decayEngine := memory.NewDecayEngine(store, logging.WithComponent("decay"))

	tel := telemetry.NewStore(telemetry.DefaultCapacity, rdb, logging.WithComponent("telemetry"))

	clients := []inference.Client{
		inference.NewOpenAIClient(&inference.OpenAIConfig{
			APIKey:  cfg.Providers.OpenAI.APIKey,
			Model:   cfg.Providers.OpenAI.Model,
			BaseURL: cfg.Providers.OpenAI.BaseURL,
		}),
		inference.NewAnthropicClient(&inference.AnthropicConfig{
			APIKey:  cfg.Providers.Anthropic.APIKey,
			Model:   cfg.Providers.Anthropic.Model,
			BaseURL: cfg.Providers.Anthropic.BaseURL,
		}),
		inference.NewGeminiClient(&inference.GeminiConfig{
			APIKey:  cfg.Providers.Gemini.APIKey,
			Model:   cfg.Providers.Gemini.Model,
			BaseURL: cfg.Providers.Gemini.BaseURL,
		}),
	}
	orch := inference.NewOrchestrator(clients, tel, logging.WithComponent("orchestrator"))

	sched, err := scheduler.NewScheduler(decayEngine, cfg.Memory.Users, cfg.Scheduler.DecaySpec, logging.WithComponent("scheduler"))
	if err != nil {
		logger.Error("invalid decay schedule", "spec", cfg.Scheduler.DecaySpec, "error", err)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(cfg, store, classifier, decayEngine, orch, tel, logging.WithComponent("server"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}

	if rdb != nil {
		rdb.Close()
	}
}
