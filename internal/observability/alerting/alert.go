package alerting

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	xerrors "VoiceMCP-Chain/internal/errors"
	"VoiceMCP-Chain/pkg/logger"
)

// Event 描述一次需要告警的铸造失败。
type Event struct {
	Code       xerrors.Code      `json:"code"`
	Message    string            `json:"message"`
	Severity   xerrors.Severity  `json:"severity"`
	MintID     string            `json:"mint_id"`
	Requester  string            `json:"requester,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Notifier 将告警事件投递到某个具体渠道。
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Dispatcher 决定一个事件要发往哪些渠道。
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event) error
}

// FanoutDispatcher 把事件广播给全部渠道，任一渠道失败不阻断其余渠道。
type FanoutDispatcher struct {
	notifiers []Notifier
}

// NewFanoutDispatcher 构造广播派发器。
func NewFanoutDispatcher(notifiers ...Notifier) *FanoutDispatcher {
	return &FanoutDispatcher{notifiers: notifiers}
}

// Dispatch 实现 Dispatcher。
func (d *FanoutDispatcher) Dispatch(ctx context.Context, event Event) error {
	var errs []error
	for _, notifier := range d.notifiers {
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return stdErrors.Join(errs...)
}

// LogNotifier 将告警写入审计日志，是默认兜底渠道。
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier 构造日志告警渠道。
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logger.Audit()}
}

// Notify 实现 Notifier。
func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	n.log.Warn("mint alert",
		slog.String("code", string(event.Code)),
		slog.String("mint_id", event.MintID),
		slog.String("severity", string(event.Severity)),
		slog.String("message", event.Message),
	)
	return nil
}

// EventForFailure 根据错误码与失败原因构造告警事件。
func EventForFailure(mintID, requester string, code xerrors.Code, reason string) Event {
	attrs := xerrors.AttributesOf(code)
	return Event{
		Code:       code,
		Message:    reason,
		Severity:   attrs.Severity,
		MintID:     mintID,
		Requester:  requester,
		OccurredAt: time.Now(),
	}
}
