package mint

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	xerrors "VoiceMCP-Chain/internal/errors"
	"VoiceMCP-Chain/pkg/logger"
)

// Service 负责铸造请求的受理与查询。
type Service struct {
	store       Store
	producer    Producer
	idempotency IdempotencyStore
}

// NewService 构造铸造服务。idempotency 可以为 nil,
// 此时不提供幂等保障。
func NewService(store Store, producer Producer, idempotency IdempotencyStore) *Service {
	return &Service{store: store, producer: producer, idempotency: idempotency}
}

// Submit 受理一次铸造请求。携带幂等键的重复提交返回已登记的
// 记录,不会再次入队。
func (s *Service) Submit(ctx context.Context, req Request) (*Record, error) {
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "铸造服务未初始化")
	}
	if strings.TrimSpace(req.Metadata.Name) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "metadata.name 不能为空")
	}
	if strings.TrimSpace(req.Requester) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "requester 不能为空")
	}

	mintID := uuid.NewString()

	if key := strings.TrimSpace(req.IdempotencyKey); key != "" && s.idempotency != nil {
		winner, reserved, err := s.idempotency.Reserve(ctx, key, mintID)
		if err != nil {
			return nil, err
		}
		if !reserved {
			existing, err := s.store.Get(ctx, winner)
			if err == nil {
				return existing, nil
			}
			if !stdErrors.Is(err, ErrMintNotFound) {
				return nil, err
			}
			// 抢到键的提交还没写入存储,等价于重复提交竞争,
			// 告知调用方稍后用状态接口查询。
			return nil, xerrors.New(xerrors.CodeConflict, "相同幂等键的请求正在处理中")
		}
	}

	record := &Record{
		ID:             mintID,
		Requester:      req.Requester,
		Metadata:       req.Metadata,
		IdempotencyKey: req.IdempotencyKey,
		Status:         StatusPending,
	}
	if err := s.store.Create(ctx, record); err != nil {
		return nil, err
	}
	if err := s.producer.Publish(ctx, mintID); err != nil {
		logger.L().Error("铸造任务入队失败", slog.Any("error", err), slog.String("mint_id", mintID))
		wrapped := xerrors.Wrap(xerrors.CodeQueueFailure, err, "发布铸造任务失败")
		_ = s.store.MarkFailed(ctx, mintID, xerrors.CodeQueueFailure, wrapped.Error())
		return nil, wrapped
	}

	logger.Audit().Info("铸造请求已受理",
		slog.String("mint_id", mintID),
		slog.String("requester", record.Requester),
		slog.String("asset", record.Metadata.Name),
	)
	return record, nil
}

// Status 按铸造 ID 查询记录;查不到时再按链上 token ID 反查。
func (s *Service) Status(ctx context.Context, ref string) (*Record, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "铸造存储未初始化")
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "查询标识不能为空")
	}
	record, err := s.store.Get(ctx, ref)
	if err == nil {
		return record, nil
	}
	if !stdErrors.Is(err, ErrMintNotFound) {
		return nil, err
	}
	return s.store.GetByToken(ctx, ref)
}

// List 返回最近的铸造记录。
func (s *Service) List(ctx context.Context, limit int) ([]*Record, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "铸造存储未初始化")
	}
	return s.store.List(ctx, limit)
}

// Close 释放资源。
func (s *Service) Close() error {
	var firstErr error
	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			firstErr = err
		}
	}
	if s.idempotency != nil {
		if err := s.idempotency.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
