package mint

import (
	"context"
	"sort"
	"sync"
	"time"

	xerrors "VoiceMCP-Chain/internal/errors"
)

// MemoryStore 以内存方式保存铸造记录，主要用于测试与单机部署。
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	byToken map[string]string
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		byToken: make(map[string]string),
	}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, record *Record) error {
	if record == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "record 不能为空")
	}
	if record.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "铸造 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[record.ID]; ok {
		return ErrMintConflict
	}
	now := time.Now().Unix()
	if record.CreatedAt == 0 {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.Status == "" {
		record.Status = StatusPending
	}
	m.records[record.ID] = cloneRecord(record)
	return nil
}

// Get 返回铸造记录。
func (m *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[id]
	if !ok {
		return nil, ErrMintNotFound
	}
	return cloneRecord(record), nil
}

// GetByToken 按链上 token ID 反查记录。
func (m *MemoryStore) GetByToken(_ context.Context, tokenID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byToken[tokenID]
	if !ok {
		return nil, ErrMintNotFound
	}
	record, ok := m.records[id]
	if !ok {
		return nil, ErrMintNotFound
	}
	return cloneRecord(record), nil
}

// Claim 将记录从 pending 推进到 uploading,供工作协程独占处理。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return nil, ErrMintNotFound
	}
	if !canTransition(record.Status, StatusUploading) {
		return cloneRecord(record), ErrMintConflict
	}
	record.Status = StatusUploading
	record.UpdatedAt = time.Now().Unix()
	return cloneRecord(record), nil
}

// MarkSubmitted 记录内容地址与交易哈希。
func (m *MemoryStore) MarkSubmitted(_ context.Context, id, contentURI, txHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return ErrMintNotFound
	}
	if !canTransition(record.Status, StatusSubmitted) {
		return ErrMintConflict
	}
	record.Status = StatusSubmitted
	record.ContentURI = contentURI
	record.TxHash = txHash
	record.UpdatedAt = time.Now().Unix()
	return nil
}

// MarkConfirmed 记录链上确认结果,并建立 token ID 反查索引。
func (m *MemoryStore) MarkConfirmed(_ context.Context, id, tokenID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return ErrMintNotFound
	}
	if !canTransition(record.Status, StatusConfirmed) {
		return ErrMintConflict
	}
	record.Status = StatusConfirmed
	record.TokenID = tokenID
	record.UpdatedAt = time.Now().Unix()
	if tokenID != "" {
		m.byToken[tokenID] = id
	}
	return nil
}

// MarkFailed 将记录置为终态失败。终态不可再推进。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, code xerrors.Code, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return ErrMintNotFound
	}
	if !canTransition(record.Status, StatusFailed) {
		return ErrMintConflict
	}
	record.Status = StatusFailed
	record.ErrorCode = string(code)
	record.FailureReason = reason
	record.UpdatedAt = time.Now().Unix()
	return nil
}

// List 返回最近的铸造记录,按更新时间倒序。
func (m *MemoryStore) List(_ context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 20
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]*Record, 0, len(m.records))
	for _, record := range m.records {
		records = append(records, cloneRecord(record))
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].UpdatedAt == records[j].UpdatedAt {
			return records[i].ID < records[j].ID
		}
		return records[i].UpdatedAt > records[j].UpdatedAt
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Close 实现 Store 接口。
func (m *MemoryStore) Close() error { return nil }
