package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"VoiceMCP-Chain/internal/config"
	"VoiceMCP-Chain/internal/mint"
	"VoiceMCP-Chain/internal/mint/ethereum"
	"VoiceMCP-Chain/internal/mint/ipfs"
	"VoiceMCP-Chain/internal/observability/alerting"
	"VoiceMCP-Chain/pkg/logger"
)

// main 是铸造网关守护进程的入口,同时承载 REST 接口与
// 消费铸造队列的工作协程。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("mintd 运行失败: %v", err)
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

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}

	queue, err := buildQueue(cfg)
	if err != nil {
		return err
	}

	idempotency, err := buildIdempotency(cfg)
	if err != nil {
		return err
	}

	uploader, err := ipfs.NewClient(ipfs.Config{
		Endpoint:      cfg.Mint.IPFS.Endpoint,
		ProjectID:     config.OptionalSecret(cfg.Mint.IPFS.ProjectIDEnv),
		ProjectSecret: config.OptionalSecret(cfg.Mint.IPFS.ProjectSecretEnv),
	})
	if err != nil {
		return err
	}

	privateKey, err := config.RequireSecret(cfg.Mint.Ethereum.PrivateKeyEnv, "铸造账户私钥")
	if err != nil {
		return err
	}
	ledger, err := ethereum.NewClient(ctx, ethereum.Config{
		RPCURL:          cfg.Mint.Ethereum.RPCURL,
		PrivateKeyHex:   privateKey,
		ContractAddress: cfg.Mint.Ethereum.ContractAddress,
		ChainID:         cfg.Mint.Ethereum.ChainID,
		ConfirmTimeout:  time.Duration(cfg.Mint.Ethereum.ConfirmTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return err
	}
	defer ledger.Close()

	service := mint.NewService(store, queue, idempotency)
	defer func() { _ = service.Close() }()

	processor := mint.NewProcessor(store, queue, uploader, ledger,
		mint.WithWorkerCount(cfg.Mint.Workers),
		mint.WithProcessorLogger(logger.Named("mint.processor")),
		mint.WithAlertDispatcher(alerting.NewFanoutDispatcher(alerting.NewLogNotifier())),
	)

	logger.L().Info("铸造网关启动中",
		"addr", cfg.Server.MintAddress,
		"store_driver", cfg.Mint.Store.Driver,
		"queue_driver", cfg.Mint.Queue.Driver,
		"workers", cfg.Mint.Workers,
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return processor.Start(groupCtx)
	})
	group.Go(func() error {
		return mint.NewServer(cfg.Server.MintAddress, service).Start(groupCtx)
	})
	return group.Wait()
}

func buildStore(cfg *config.Config) (mint.Store, error) {
	switch cfg.Mint.Store.Driver {
	case "memory":
		return mint.NewMemoryStore(), nil
	case "mysql":
		return mint.NewMySQLStore(cfg.Mint.Store.DSN)
	default:
		return nil, fmt.Errorf("不支持的铸造存储驱动: %s", cfg.Mint.Store.Driver)
	}
}

func buildQueue(cfg *config.Config) (mint.Queue, error) {
	switch cfg.Mint.Queue.Driver {
	case "memory":
		return mint.NewMemoryQueue(0), nil
	case "redis":
		return mint.NewRedisQueue(mint.RedisQueueConfig{
			Address:  cfg.Mint.Queue.RedisAddress,
			Password: cfg.Mint.Queue.RedisPassword,
			DB:       cfg.Mint.Queue.RedisDB,
			Queue:    cfg.Mint.Queue.QueueName,
		})
	case "rabbitmq":
		return mint.NewRabbitMQQueue(mint.RabbitMQConfig{
			URL:     cfg.Mint.Queue.RabbitURL,
			Queue:   cfg.Mint.Queue.QueueName,
			Durable: true,
		})
	default:
		return nil, fmt.Errorf("不支持的铸造队列驱动: %s", cfg.Mint.Queue.Driver)
	}
}

func buildIdempotency(cfg *config.Config) (mint.IdempotencyStore, error) {
	switch cfg.Mint.Idempotency.Driver {
	case "memory":
		return mint.NewMemoryIdempotency(), nil
	case "redis":
		return mint.NewRedisIdempotency(mint.RedisIdempotencyConfig{
			Address:  cfg.Mint.Idempotency.RedisAddress,
			Password: cfg.Mint.Idempotency.RedisPassword,
			DB:       cfg.Mint.Idempotency.RedisDB,
			TTL:      time.Duration(cfg.Mint.Idempotency.TTLHours) * time.Hour,
		})
	default:
		return nil, fmt.Errorf("不支持的幂等存储驱动: %s", cfg.Mint.Idempotency.Driver)
	}
}
