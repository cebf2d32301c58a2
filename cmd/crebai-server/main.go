package main

import (
	"context"
	"log"

	"github.com/cdreetz/crebAI/api/server"
	"github.com/cdreetz/crebAI/config"
	"github.com/cdreetz/crebAI/llm"
	"github.com/cdreetz/crebAI/logger"
	"github.com/cdreetz/crebAI/metrics"
	"github.com/cdreetz/crebAI/stream"
	taskHandlers "github.com/cdreetz/crebAI/tasks/handlers"
	"github.com/cdreetz/crebAI/tasks/queue"
	handlerRegistry "github.com/cdreetz/crebAI/tasks/registry"
	"github.com/cdreetz/crebAI/tasks/scheduler"
	"github.com/cdreetz/crebAI/tasks/store"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	lg := logger.New(cfg.LogLevel, nil)

	lg.Info("Starting inference server", map[string]any{
		"version":       cfg.Version,
		"port":          cfg.ServerPort,
		"log_level":     cfg.LogLevel,
		"backend_url":   cfg.BackendURL,
		"default_model": cfg.DefaultModel,
	})

	m := metrics.New()

	// Models are created lazily by name against the configured backend.
	models := llm.NewRegistry(func(name string) llm.Model {
		return llm.NewHTTPModel(name, cfg.BackendURL, lg)
	}, lg)

	taskStore := store.NewMemoryTaskStore()
	taskQueue, err := newTaskQueue(cfg)
	if err != nil {
		log.Fatalf("failed to create task queue: %v", err)
	}
	defer taskQueue.Close()

	registry := createHandlerRegistry(models, cfg, lg)

	sched := scheduler.New(taskStore, taskQueue, registry, m, lg, scheduler.Config{
		PollInterval:    cfg.PollInterval,
		ErrorBackoff:    cfg.ErrorBackoff,
		CleanupInterval: cfg.CleanupInterval,
		TaskMaxAge:      cfg.TaskMaxAge,
		DrainTimeout:    cfg.DrainTimeout,
	})
	sched.Start(context.Background())
	defer sched.Stop()

	bridge := stream.NewBridge(models, cfg.DefaultModel, m, lg)

	srv := server.New(server.Dependencies{
		Submitter: sched,
		Store:     taskStore,
		Streams:   bridge,
		Models:    models,
		Registry:  registry,
		Metrics:   m,
		Config:    cfg,
		Logger:    lg,
	})
	if err := srv.Start(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

// newTaskQueue selects the queue backend from config.
func newTaskQueue(cfg *config.Config) (queue.TaskQueue, error) {
	if cfg.QueueBackend == config.QueueBackendRedis {
		return queue.NewRedisTaskQueue(cfg.RedisURL, cfg.QueueName)
	}
	return queue.NewChannelTaskQueue(cfg.QueueCapacity), nil
}

// createHandlerRegistry sets up all task handlers
func createHandlerRegistry(models *llm.Registry, cfg *config.Config, lg *logger.Logger) *handlerRegistry.HandlerRegistry {
	registry := handlerRegistry.NewRegistry()
	registry.Register(taskHandlers.TypeTextGeneration, taskHandlers.NewTextGenerationHandler(models, cfg.DefaultModel, lg))
	registry.Register(taskHandlers.TypeChatCompletion, taskHandlers.NewChatCompletionHandler(models, cfg.DefaultModel, lg))

	lg.Info("Registered task handlers", map[string]any{
		"count": len(registry.GetRegisteredTypes()),
		"types": registry.GetRegisteredTypes(),
	})

	return registry
}
