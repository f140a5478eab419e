package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	xerrors "VoiceMCP-Chain/internal/errors"
	"VoiceMCP-Chain/pkg/logger"
)

// EnvConfigPath 指定配置文件路径的环境变量。
const EnvConfigPath = "VOICEMCP_CONFIG"

// Config 描述了三个服务在启动阶段需要加载的全部配置。
// 密钥一律通过 *_env 字段指向环境变量,配置文件本身不落密钥。
type Config struct {
	Server    ServerConfig    `json:"server"`
	Logging   logger.Config   `json:"logging"`
	Agents    AgentsConfig    `json:"agents"`
	LLM       LLMConfig       `json:"llm"`
	Speech    SpeechConfig    `json:"speech"`
	Artifacts ArtifactsConfig `json:"artifacts"`
	Mint      MintConfig      `json:"mint"`
}

// ServerConfig 控制各服务的监听地址与网关指向的派发端点。
type ServerConfig struct {
	DispatcherAddress  string `json:"dispatcher_address"`
	GatewayAddress     string `json:"gateway_address"`
	MintAddress        string `json:"mint_address"`
	DispatcherEndpoint string `json:"dispatcher_endpoint"`
}

// AgentsConfig 指向智能体目录文件,留空时使用内置目录。
type AgentsConfig struct {
	CatalogPath  string `json:"catalog_path"`
	DefaultAgent string `json:"default_agent"`
}

// LLMConfig 配置推理 Provider。provider 取 gemini 或 groq。
type LLMConfig struct {
	Provider       string `json:"provider"`
	APIKeyEnv      string `json:"api_key_env"`
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// SpeechConfig 配置语音转写与合成。
type SpeechConfig struct {
	Enabled         bool   `json:"enabled"`
	APIKeyEnv       string `json:"api_key_env"`
	BaseURL         string `json:"base_url"`
	TranscribeModel string `json:"transcribe_model"`
	SynthesizeModel string `json:"synthesize_model"`
	Voice           string `json:"voice"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
}

// ArtifactsConfig 配置产物存储。driver 取 fs 或 minio。
type ArtifactsConfig struct {
	Driver       string `json:"driver"`
	Dir          string `json:"dir"`
	Endpoint     string `json:"endpoint"`
	AccessKeyEnv string `json:"access_key_env"`
	SecretKeyEnv string `json:"secret_key_env"`
	Bucket       string `json:"bucket"`
	Secure       bool   `json:"secure"`
}

// MintConfig 配置铸造网关的存储、队列与链上访问。
type MintConfig struct {
	Store       MintStoreConfig   `json:"store"`
	Queue       MintQueueConfig   `json:"queue"`
	Idempotency IdempotencyConfig `json:"idempotency"`
	IPFS        IPFSConfig        `json:"ipfs"`
	Ethereum    EthereumConfig    `json:"ethereum"`
	Workers     int               `json:"workers"`
}

// MintStoreConfig 选择铸造记录存储。driver 取 memory 或 mysql。
type MintStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// MintQueueConfig 选择铸造队列。driver 取 memory、redis 或 rabbitmq。
type MintQueueConfig struct {
	Driver        string `json:"driver"`
	RedisAddress  string `json:"redis_address"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
	RabbitURL     string `json:"rabbit_url"`
	QueueName     string `json:"queue_name"`
}

// IdempotencyConfig 选择幂等存储。driver 取 memory 或 redis。
type IdempotencyConfig struct {
	Driver        string `json:"driver"`
	RedisAddress  string `json:"redis_address"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
	TTLHours      int    `json:"ttl_hours"`
}

// IPFSConfig 配置 metadata 上传端点。
type IPFSConfig struct {
	Endpoint         string `json:"endpoint"`
	ProjectIDEnv     string `json:"project_id_env"`
	ProjectSecretEnv string `json:"project_secret_env"`
}

// EthereumConfig 配置账本访问与铸造账户。
type EthereumConfig struct {
	RPCURL                string `json:"rpc_url"`
	PrivateKeyEnv         string `json:"private_key_env"`
	ContractAddress       string `json:"contract_address"`
	ChainID               int64  `json:"chain_id"`
	ConfirmTimeoutSeconds int    `json:"confirm_timeout_seconds"`
}

// Load 解析指定路径的 JSON 配置文件。path 为空时回退到
// VOICEMCP_CONFIG 环境变量。
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未指定配置文件路径")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "打开配置文件失败")
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "读取配置文件失败")
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "解析配置失败")
	}

	cfg.applyDefaults(filepath.Dir(path))
	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.DispatcherAddress == "" {
		c.Server.DispatcherAddress = ":8080"
	}
	if c.Server.GatewayAddress == "" {
		c.Server.GatewayAddress = ":8081"
	}
	if c.Server.MintAddress == "" {
		c.Server.MintAddress = ":8082"
	}
	if c.Server.DispatcherEndpoint == "" {
		c.Server.DispatcherEndpoint = "http://127.0.0.1:8080"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "gemini"
	}
	if c.LLM.APIKeyEnv == "" {
		switch c.LLM.Provider {
		case "groq":
			c.LLM.APIKeyEnv = "GROQ_API_KEY"
		default:
			c.LLM.APIKeyEnv = "GEMINI_API_KEY"
		}
	}

	if c.Speech.APIKeyEnv == "" {
		c.Speech.APIKeyEnv = "OPENAI_API_KEY"
	}

	if c.Artifacts.Driver == "" {
		c.Artifacts.Driver = "fs"
	}
	if c.Artifacts.Dir == "" {
		c.Artifacts.Dir = filepath.Join(baseDir, "artifacts")
	} else if !filepath.IsAbs(c.Artifacts.Dir) {
		c.Artifacts.Dir = filepath.Join(baseDir, c.Artifacts.Dir)
	}

	if c.Agents.CatalogPath != "" && !filepath.IsAbs(c.Agents.CatalogPath) {
		c.Agents.CatalogPath = filepath.Join(baseDir, c.Agents.CatalogPath)
	}

	if c.Mint.Store.Driver == "" {
		c.Mint.Store.Driver = "memory"
	}
	if c.Mint.Queue.Driver == "" {
		c.Mint.Queue.Driver = "memory"
	}
	if c.Mint.Idempotency.Driver == "" {
		c.Mint.Idempotency.Driver = "memory"
	}
	if c.Mint.Ethereum.PrivateKeyEnv == "" {
		c.Mint.Ethereum.PrivateKeyEnv = "MINT_PRIVATE_KEY"
	}
	if c.Mint.Workers <= 0 {
		c.Mint.Workers = 2
	}
}

// LLMTimeout 返回推理调用超时。
func (c *Config) LLMTimeout() time.Duration {
	if c.LLM.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// SpeechTimeout 返回语音调用超时。
func (c *Config) SpeechTimeout() time.Duration {
	if c.Speech.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Speech.TimeoutSeconds) * time.Second
}

// RequireSecret 从 envName 指向的环境变量读取密钥。缺失的密钥
// 是启动期致命错误,而不是请求期错误。
func RequireSecret(envName, what string) (string, error) {
	value := strings.TrimSpace(os.Getenv(envName))
	if value == "" {
		return "", xerrors.New(xerrors.CodeInitializationFailure,
			fmt.Sprintf("%s 未配置: 环境变量 %s 为空", what, envName))
	}
	return value, nil
}

// OptionalSecret 读取可选密钥,未配置时返回空串。
func OptionalSecret(envName string) string {
	if envName == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(envName))
}
