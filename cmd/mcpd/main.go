package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"VoiceMCP-Chain/internal/agent"
	"VoiceMCP-Chain/internal/config"
	"VoiceMCP-Chain/internal/llm"
	"VoiceMCP-Chain/internal/llm/gemini"
	"VoiceMCP-Chain/internal/llm/groq"
	"VoiceMCP-Chain/internal/rpc"
	"VoiceMCP-Chain/pkg/logger"
)

// main 是智能体派发守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("mcpd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv(config.EnvConfigPath)
	if configPath == "" {
		configPath = filepath.Join("configs", "voicemcp.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	completer, closeFn, err := buildCompleter(ctx, cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	logger.L().Info("派发服务启动中",
		"addr", cfg.Server.DispatcherAddress,
		"provider", cfg.LLM.Provider,
		"agents", registry.Len(),
	)

	dispatcher := rpc.NewDispatcher(registry, completer)
	return rpc.NewServer(cfg.Server.DispatcherAddress, dispatcher).Start(ctx)
}

func buildRegistry(cfg *config.Config) (*agent.Registry, error) {
	agents := agent.DefaultCatalog()
	if cfg.Agents.CatalogPath != "" {
		loaded, err := agent.LoadCatalog(cfg.Agents.CatalogPath)
		if err != nil {
			return nil, err
		}
		agents = loaded
	}
	return agent.NewRegistry(agents)
}

func buildCompleter(ctx context.Context, cfg *config.Config) (llm.Client, func(), error) {
	apiKey, err := config.RequireSecret(cfg.LLM.APIKeyEnv, "推理 Provider API Key")
	if err != nil {
		return nil, nil, err
	}

	switch cfg.LLM.Provider {
	case "gemini":
		client, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:  apiKey,
			Timeout: cfg.LLMTimeout(),
		})
		if err != nil {
			return nil, nil, err
		}
		return client, func() { _ = client.Close() }, nil
	case "groq":
		client, err := groq.NewClient(groq.Config{
			APIKey:  apiKey,
			BaseURL: cfg.LLM.BaseURL,
			Timeout: cfg.LLMTimeout(),
		})
		if err != nil {
			return nil, nil, err
		}
		return client, nil, nil
	default:
		return nil, nil, fmt.Errorf("不支持的推理 Provider: %s", cfg.LLM.Provider)
	}
}
