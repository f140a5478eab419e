package mint

import (
	"context"
	"strings"
	"sync"

	xerrors "VoiceMCP-Chain/internal/errors"
)

// IdempotencyStore 把幂等键映射到铸造 ID。Reserve 是先到先得的
// CAS:第一个调用者登记自己的铸造 ID,后来者拿到已登记的 ID。
type IdempotencyStore interface {
	Reserve(ctx context.Context, key, mintID string) (winner string, reserved bool, err error)
	Close() error
}

// MemoryIdempotency 以互斥锁保护的 map 实现幂等登记。
type MemoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

// NewMemoryIdempotency 创建内存幂等存储。
func NewMemoryIdempotency() *MemoryIdempotency {
	return &MemoryIdempotency{keys: make(map[string]string)}
}

// Reserve 实现 IdempotencyStore 接口。
func (m *MemoryIdempotency) Reserve(_ context.Context, key, mintID string) (string, bool, error) {
	if strings.TrimSpace(key) == "" || strings.TrimSpace(mintID) == "" {
		return "", false, xerrors.New(xerrors.CodeInvalidArgument, "幂等键和铸造 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.keys[key]; ok {
		return existing, false, nil
	}
	m.keys[key] = mintID
	return mintID, true, nil
}

// Close 实现 IdempotencyStore 接口。
func (m *MemoryIdempotency) Close() error { return nil }
