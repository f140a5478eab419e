package mint

import (
	"context"

	xerrors "VoiceMCP-Chain/internal/errors"
)

// Store 抽象了铸造记录的持久化接口。所有状态推进都由存储层
// 校验,非法推进返回 ErrMintConflict。
type Store interface {
	Create(ctx context.Context, record *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	GetByToken(ctx context.Context, tokenID string) (*Record, error)
	Claim(ctx context.Context, id string) (*Record, error)
	MarkSubmitted(ctx context.Context, id, contentURI, txHash string) error
	MarkConfirmed(ctx context.Context, id, tokenID string) error
	MarkFailed(ctx context.Context, id string, code xerrors.Code, reason string) error
	List(ctx context.Context, limit int) ([]*Record, error)
	Close() error
}
