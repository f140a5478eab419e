package alerting

import (
	"context"
	stdErrors "errors"
	"testing"

	xerrors "VoiceMCP-Chain/internal/errors"
)

type recordingNotifier struct {
	events []Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, event Event) error {
	n.events = append(n.events, event)
	return n.err
}

func TestFanoutDispatchesToAllChannels(t *testing.T) {
	first := &recordingNotifier{}
	second := &recordingNotifier{}
	dispatcher := NewFanoutDispatcher(first, second)

	event := EventForFailure("mint-1", "0xabc", xerrors.CodeMintSubmission, "gas too low")
	if err := dispatcher.Dispatch(context.Background(), event); err != nil {
		t.Fatalf("派发失败: %v", err)
	}
	if len(first.events) != 1 || len(second.events) != 1 {
		t.Fatalf("期望每个渠道各收到一条, 实际 %d/%d", len(first.events), len(second.events))
	}
	if first.events[0].MintID != "mint-1" {
		t.Fatalf("mint_id 错误: %q", first.events[0].MintID)
	}
}

func TestFanoutContinuesPastFailedChannel(t *testing.T) {
	broken := &recordingNotifier{err: stdErrors.New("webhook down")}
	healthy := &recordingNotifier{}
	dispatcher := NewFanoutDispatcher(broken, healthy)

	err := dispatcher.Dispatch(context.Background(), EventForFailure("mint-2", "", xerrors.CodeQueueFailure, "redis unreachable"))
	if err == nil {
		t.Fatal("期望聚合错误")
	}
	if len(healthy.events) != 1 {
		t.Fatal("失败渠道不应阻断其余渠道")
	}
}

func TestEventForFailureCarriesSeverity(t *testing.T) {
	event := EventForFailure("mint-3", "0xdef", xerrors.CodeMintRejected, "receipt status 0")
	if event.Severity != xerrors.AttributesOf(xerrors.CodeMintRejected).Severity {
		t.Fatalf("严重程度未按错误码填充: %q", event.Severity)
	}
	if event.OccurredAt.IsZero() {
		t.Fatal("发生时间未填充")
	}
}
