package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"WealthPilot/internal/api"
	"WealthPilot/internal/benchmark"
	"WealthPilot/internal/broker"
	"WealthPilot/internal/capability"
	"WealthPilot/internal/capability/handlers"
	"WealthPilot/internal/cities"
	"WealthPilot/internal/config"
	"WealthPilot/internal/executor"
	"WealthPilot/internal/feedback"
	"WealthPilot/internal/gate"
	"WealthPilot/internal/intent"
	"WealthPilot/internal/llm"
	"WealthPilot/internal/llm/anthropic"
	"WealthPilot/internal/market"
	"WealthPilot/internal/observability/alerting"
	"WealthPilot/internal/orchestrator"
	"WealthPilot/internal/router"
	"WealthPilot/internal/session"
	"WealthPilot/internal/storage"
	"WealthPilot/internal/storage/mysql"
	"WealthPilot/internal/synth"
	"WealthPilot/internal/verify"
	"WealthPilot/pkg/logger"
)

// main 是 WealthPilot 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("wealthpilotd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("WEALTHPILOT_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "wealthpilot.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.AuditEnabled,
			Path:       cfg.Logging.AuditPath,
			MaxSizeMB:  cfg.Logging.AuditMaxMB,
			MaxBackups: cfg.Logging.AuditBackups,
			MaxAgeDays: cfg.Logging.AuditMaxDays,
		},
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	llmClient, err := createLLMClient(cfg)
	if err != nil {
		return err
	}

	// 外部数据面。每个客户端都带内置降级数据,启动不依赖上游可达。
	marketClient := market.NewClient(market.Config{
		BaseURL: cfg.Upstreams.Market.BaseURL,
		Timeout: time.Duration(cfg.Upstreams.Market.TimeoutSeconds) * time.Second,
	})
	brokerClient := broker.NewClient(broker.Config{
		BaseURL:     cfg.Upstreams.Broker.BaseURL,
		AccessToken: cfg.Upstreams.Broker.AccessToken,
		Timeout:     time.Duration(cfg.Upstreams.Broker.TimeoutSeconds) * time.Second,
	})
	cityClient := cities.NewClient(cities.Config{
		BaseURL: cfg.Upstreams.Cities.BaseURL,
		Timeout: time.Duration(cfg.Upstreams.Cities.TimeoutSeconds) * time.Second,
	})

	benchProvider, err := benchmark.LoadStaticProvider(cfg.Features.BenchmarkPath)
	if err != nil {
		return err
	}

	registry := capability.NewRegistry()
	if err := handlers.RegisterAll(registry, handlers.Config{
		Broker:            brokerClient,
		Market:            marketClient,
		Cities:            cityClient,
		Benchmark:         benchProvider,
		RealEstateEnabled: cfg.Features.EnableRealEstate,
		LargeOrderHint:    cfg.Features.LargeOrderUSD,
	}); err != nil {
		return err
	}

	sessionStore, err := createSessionStore(cfg)
	if err != nil {
		return err
	}
	defer sessionStore.Close()

	invocationRepo, feedbackRepo, err := createRepositories(ctx, cfg)
	if err != nil {
		return err
	}
	defer invocationRepo.Close()
	defer feedbackRepo.Close()

	queue, err := createQueue(cfg)
	if err != nil {
		return err
	}
	defer queue.Close()

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	defer pipelineCancel()
	pipeline := feedback.NewPipeline(queue, feedbackRepo, cfg.Queue.Workers)
	go func() {
		if err := pipeline.Run(pipelineCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("feedback pipeline exited", "error", err.Error())
		}
	}()

	rules, err := intent.LoadRuleTable(cfg.Intent.RulesPath)
	if err != nil {
		return err
	}

	exec := executor.New(registry,
		executor.WithAlertDispatcher(alerting.NewFanout(alerting.NewLogNotifier())))
	orch := orchestrator.New(orchestrator.Config{
		Store:      sessionStore,
		Classifier: intent.NewClassifier(rules, llmClient, 5*time.Second),
		Router: router.New(router.Config{
			PendingWritePolicy: router.PendingWritePolicy(cfg.Router.PendingWritePolicy),
		}),
		Executor:    exec,
		Gate:        gate.New(registry, exec),
		Verifier:    verify.New(exec.HighReliability),
		Synthesizer: synth.New(llmClient, synth.WithTimeout(time.Duration(cfg.LLM.TimeoutSeconds)*time.Second)),
		Invocations: invocationRepo,
		TurnTimeout: cfg.TurnTimeout(),
	})

	server := api.NewServer(api.Config{
		Address:     cfg.Server.Address,
		AuthToken:   cfg.Server.AuthToken,
		Orch:        orch,
		Feedback:    feedback.NewService(queue),
		Invocations: invocationRepo,
		Upstreams: api.Upstreams{
			Broker: brokerClient,
			Market: marketClient,
			Cities: cityClient,
		},
	})

	logger.L().Info("wealthpilotd starting", "address", cfg.Server.Address)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func createLLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "", "anthropic":
		if cfg.LLM.APIKey == "" {
			// 没有密钥时分类与渲染都走确定性路径,服务仍可运行。
			logger.L().Warn("no LLM api key configured, using deterministic fallbacks only")
			return nil, nil
		}
		return anthropic.NewClient(anthropic.Config{
			APIKey:    cfg.LLM.APIKey,
			BaseURL:   cfg.LLM.BaseURL,
			Model:     cfg.LLM.Model,
			MaxTokens: cfg.LLM.MaxTokens,
			Timeout:   time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.LLM.Provider)
	}
}

func createSessionStore(cfg *config.Config) (session.Store, error) {
	switch cfg.Session.Driver {
	case "", "memory":
		return session.NewMemoryStore(cfg.SessionTTL()), nil
	case "redis":
		return session.NewRedisStore(session.RedisStoreConfig{
			Address: cfg.Session.RedisAddr,
			DB:      cfg.Session.RedisDB,
			TTL:     cfg.SessionTTL(),
		})
	default:
		return nil, fmt.Errorf("未知的会话存储驱动: %s", cfg.Session.Driver)
	}
}

func createRepositories(ctx context.Context, cfg *config.Config) (storage.InvocationRepository, storage.FeedbackRepository, error) {
	switch cfg.Storage.Driver {
	case "", "memory":
		invRepo, err := storage.NewMemoryInvocationRepository(cfg.Runtime.DataDir)
		if err != nil {
			return nil, nil, err
		}
		fbRepo, err := storage.NewMemoryFeedbackRepository(cfg.Runtime.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return invRepo, fbRepo, nil
	case "mysql":
		invRepo, err := mysql.NewSQLInvocationRepository(ctx, mysql.Config{DSN: cfg.Storage.DSN})
		if err != nil {
			return nil, nil, err
		}
		fbRepo, err := mysql.NewSQLFeedbackRepository(ctx, mysql.Config{DSN: cfg.Storage.DSN})
		if err != nil {
			invRepo.Close()
			return nil, nil, err
		}
		return invRepo, fbRepo, nil
	default:
		return nil, nil, fmt.Errorf("未知的存储驱动: %s", cfg.Storage.Driver)
	}
}

func createQueue(cfg *config.Config) (feedback.Queue, error) {
	switch cfg.Queue.Driver {
	case "", "memory":
		return feedback.NewMemoryQueue(1024), nil
	case "rabbitmq":
		return feedback.NewRabbitMQQueue(feedback.RabbitMQConfig{
			URL:     cfg.Queue.URL,
			Queue:   cfg.Queue.QueueName,
			Durable: true,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Queue.Driver)
	}
}
