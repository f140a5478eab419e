package mint

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "VoiceMCP-Chain/internal/errors"
)

// RedisIdempotencyConfig 描述 Redis 幂等存储的连接参数。
type RedisIdempotencyConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// RedisIdempotency 用 SETNX 实现跨实例的幂等登记。
type RedisIdempotency struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisIdempotency 创建 Redis 幂等存储。
func NewRedisIdempotency(cfg RedisIdempotencyConfig) (*RedisIdempotency, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "voicemcp:mint:idem:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 Redis 失败")
	}
	return &RedisIdempotency{client: client, prefix: prefix, ttl: ttl}, nil
}

// Reserve 实现 IdempotencyStore 接口。SETNX 成功说明本次调用抢到键,
// 否则读回已登记的铸造 ID。
func (r *RedisIdempotency) Reserve(ctx context.Context, key, mintID string) (string, bool, error) {
	if strings.TrimSpace(key) == "" || strings.TrimSpace(mintID) == "" {
		return "", false, xerrors.New(xerrors.CodeInvalidArgument, "幂等键和铸造 ID 不能为空")
	}
	full := r.prefix + key
	set, err := r.client.SetNX(ctx, full, mintID, r.ttl).Result()
	if err != nil {
		return "", false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "幂等登记失败")
	}
	if set {
		return mintID, true, nil
	}
	existing, err := r.client.Get(ctx, full).Result()
	if err == redis.Nil {
		// 键在 SETNX 与 GET 之间过期,按新登记处理。
		return r.Reserve(ctx, key, mintID)
	}
	if err != nil {
		return "", false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取幂等登记失败")
	}
	return existing, false, nil
}

// Close 关闭 Redis 连接。
func (r *RedisIdempotency) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
