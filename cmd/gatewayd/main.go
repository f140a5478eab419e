package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"VoiceMCP-Chain/internal/artifact"
	"VoiceMCP-Chain/internal/config"
	"VoiceMCP-Chain/internal/gateway"
	"VoiceMCP-Chain/internal/rpc"
	"VoiceMCP-Chain/internal/speech"
	"VoiceMCP-Chain/internal/speech/openai"
	"VoiceMCP-Chain/pkg/logger"
)

// main 是语音网关守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("gatewayd 运行失败: %v", err)
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

	dispatcher, err := rpc.NewClient(cfg.Server.DispatcherEndpoint, nil)
	if err != nil {
		return err
	}

	var bridge speech.Bridge
	if cfg.Speech.Enabled {
		apiKey, err := config.RequireSecret(cfg.Speech.APIKeyEnv, "语音服务 API Key")
		if err != nil {
			return err
		}
		bridge, err = openai.NewClient(openai.Config{
			APIKey:          apiKey,
			BaseURL:         cfg.Speech.BaseURL,
			TranscribeModel: cfg.Speech.TranscribeModel,
			SynthesizeModel: cfg.Speech.SynthesizeModel,
			Voice:           cfg.Speech.Voice,
			Timeout:         cfg.SpeechTimeout(),
		})
		if err != nil {
			return err
		}
	}

	artifacts, err := buildArtifactStore(ctx, cfg)
	if err != nil {
		return err
	}

	logger.L().Info("语音网关启动中",
		"addr", cfg.Server.GatewayAddress,
		"dispatcher", cfg.Server.DispatcherEndpoint,
		"speech_enabled", cfg.Speech.Enabled,
		"artifact_driver", cfg.Artifacts.Driver,
	)

	server := gateway.NewServer(cfg.Server.GatewayAddress, dispatcher, bridge, artifacts, cfg.Agents.DefaultAgent)
	return server.Start(ctx)
}

func buildArtifactStore(ctx context.Context, cfg *config.Config) (artifact.Store, error) {
	switch cfg.Artifacts.Driver {
	case "fs":
		return artifact.NewFSStore(cfg.Artifacts.Dir)
	case "minio":
		return artifact.NewMinIOStore(ctx, artifact.MinIOConfig{
			Endpoint:  cfg.Artifacts.Endpoint,
			AccessKey: config.OptionalSecret(cfg.Artifacts.AccessKeyEnv),
			SecretKey: config.OptionalSecret(cfg.Artifacts.SecretKeyEnv),
			Bucket:    cfg.Artifacts.Bucket,
			Secure:    cfg.Artifacts.Secure,
		})
	default:
		return nil, fmt.Errorf("不支持的产物存储驱动: %s", cfg.Artifacts.Driver)
	}
}
