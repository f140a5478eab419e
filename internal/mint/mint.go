package mint

import (
	xerrors "VoiceMCP-Chain/internal/errors"
)

// Status 表示铸造记录在生命周期中的状态。
// 状态机只允许单向推进:
// pending → uploading → submitted → confirmed | failed。
// failed 与 confirmed 是终态,失败不自动重试。
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Terminal 报告状态是否为终态。
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// canTransition 描述状态机允许的推进。failed 可以从任意非终态进入。
func canTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case StatusUploading:
		return from == StatusPending
	case StatusSubmitted:
		return from == StatusUploading
	case StatusConfirmed:
		return from == StatusSubmitted
	case StatusFailed:
		return true
	default:
		return false
	}
}

// Metadata 是待上链资产的描述信息。
type Metadata struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Image       string            `json:"image,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// Request 是一次铸造请求。IdempotencyKey 可选,
// 相同的键永远解析到同一条铸造记录。
type Request struct {
	Metadata       Metadata `json:"metadata"`
	Requester      string   `json:"requester"`
	IdempotencyKey string   `json:"idempotency_key,omitempty"`
}

// Record 描述了一次铸造的完整状态。
type Record struct {
	ID             string   `json:"mint_id"`
	Requester      string   `json:"requester"`
	Metadata       Metadata `json:"metadata"`
	IdempotencyKey string   `json:"idempotency_key,omitempty"`
	Status         Status   `json:"status"`
	ContentURI     string   `json:"content_uri,omitempty"`
	TokenID        string   `json:"token_id,omitempty"`
	TxHash         string   `json:"transaction_hash,omitempty"`
	FailureReason  string   `json:"failure_reason,omitempty"`
	ErrorCode      string   `json:"error_code,omitempty"`
	CreatedAt      int64    `json:"created_at"`
	UpdatedAt      int64    `json:"updated_at"`
}

var (
	// ErrMintNotFound 表示指定的铸造记录不存在。
	ErrMintNotFound = xerrors.New(xerrors.CodeNotFound, "铸造记录不存在")
	// ErrMintConflict 表示记录在当前状态下无法进行所请求的状态推进。
	ErrMintConflict = xerrors.New(xerrors.CodeConflict, "铸造记录状态冲突")
)

func cloneRecord(r *Record) *Record {
	clone := *r
	clone.Metadata.Attributes = cloneAttributes(r.Metadata.Attributes)
	return &clone
}

func cloneAttributes(attrs map[string]string) map[string]string {
	if attrs == nil {
		return nil
	}
	cloned := make(map[string]string, len(attrs))
	for k, v := range attrs {
		cloned[k] = v
	}
	return cloned
}
