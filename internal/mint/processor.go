package mint

import (
	"context"
	stdErrors "errors"
	"log/slog"

	xerrors "VoiceMCP-Chain/internal/errors"
	"VoiceMCP-Chain/internal/observability/alerting"
	"VoiceMCP-Chain/pkg/logger"
)

// Uploader 把资产描述上传到内容寻址存储,返回内容 URI。
type Uploader interface {
	Upload(ctx context.Context, metadata Metadata) (string, error)
}

// Ledger 定义了处理器所需的链上能力。SubmitMint 广播铸造交易,
// WaitConfirmed 阻塞等待回执并解析 token ID。
type Ledger interface {
	SubmitMint(ctx context.Context, requester, contentURI string) (txHash string, err error)
	WaitConfirmed(ctx context.Context, txHash string) (tokenID string, err error)
}

// Processor 负责从队列消费铸造任务并驱动状态机走完全程:
// 认领 → 上传 metadata → 广播交易 → 等待确认。
// 任何一步失败都把记录落成终态 failed,不自动重试。
type Processor struct {
	store       Store
	consumer    Consumer
	uploader    Uploader
	ledger      Ledger
	workerCount int
	logger      *slog.Logger
	alerts      alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(log *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = log
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithAlertDispatcher 指定铸造失败时的告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerts = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(store Store, consumer Consumer, uploader Uploader, ledger Ledger, opts ...ProcessorOption) *Processor {
	p := &Processor{
		store:       store,
		consumer:    consumer,
		uploader:    uploader,
		ledger:      ledger,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start 启动铸造处理循环。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置铸造消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.Handle)
}

// Handle 处理单条铸造任务。导出是为了让内存队列之外的调用方
// (比如测试)可以直接驱动一次完整流程。
func (p *Processor) Handle(ctx context.Context, mintID string) error {
	if p.store == nil || p.uploader == nil || p.ledger == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}

	record, err := p.store.Claim(ctx, mintID)
	if err != nil {
		if stdErrors.Is(err, ErrMintNotFound) || stdErrors.Is(err, ErrMintConflict) {
			p.logDebug("跳过铸造任务", slog.String("mint_id", mintID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("认领铸造任务失败", slog.Any("error", err), slog.String("mint_id", mintID))
		return err
	}

	contentURI, err := p.uploader.Upload(ctx, record.Metadata)
	if err != nil {
		return p.fail(ctx, record, xerrors.CodeMintUpload, err)
	}

	txHash, err := p.ledger.SubmitMint(ctx, record.Requester, contentURI)
	if err != nil {
		return p.fail(ctx, record, xerrors.CodeMintSubmission, err)
	}
	if err := p.store.MarkSubmitted(ctx, record.ID, contentURI, txHash); err != nil {
		logger.L().Error("记录交易哈希失败", slog.Any("error", err), slog.String("mint_id", record.ID))
		return err
	}
	logger.Audit().Info("铸造交易已广播",
		slog.String("mint_id", record.ID),
		slog.String("tx_hash", txHash),
		slog.String("content_uri", contentURI),
	)

	tokenID, err := p.ledger.WaitConfirmed(ctx, txHash)
	if err != nil {
		code := xerrors.CodeOf(err)
		if code == xerrors.CodeUnknown {
			code = xerrors.CodeMintSubmission
		}
		return p.fail(ctx, record, code, err)
	}
	if err := p.store.MarkConfirmed(ctx, record.ID, tokenID); err != nil {
		logger.L().Error("记录确认结果失败", slog.Any("error", err), slog.String("mint_id", record.ID))
		return err
	}

	logger.Audit().Info("铸造已确认",
		slog.String("mint_id", record.ID),
		slog.String("token_id", tokenID),
		slog.String("tx_hash", txHash),
		slog.String("requester", record.Requester),
	)
	return nil
}

func (p *Processor) fail(ctx context.Context, record *Record, code xerrors.Code, cause error) error {
	if markErr := p.store.MarkFailed(ctx, record.ID, code, cause.Error()); markErr != nil {
		logger.L().Error("记录铸造失败状态失败", slog.Any("error", markErr), slog.String("mint_id", record.ID))
	}
	logger.Audit().Warn("铸造失败",
		slog.String("mint_id", record.ID),
		slog.String("code", string(code)),
		slog.String("reason", cause.Error()),
	)
	if p.alerts != nil && xerrors.AttributesOf(code).Alert {
		event := alerting.EventForFailure(record.ID, record.Requester, code, cause.Error())
		if dispatchErr := p.alerts.Dispatch(ctx, event); dispatchErr != nil {
			logger.L().Error("派发铸造告警失败", slog.Any("error", dispatchErr), slog.String("mint_id", record.ID))
		}
	}
	return cause
}

func (p *Processor) logDebug(msg string, attrs ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, attrs...)
		return
	}
	logger.L().Debug(msg, attrs...)
}
