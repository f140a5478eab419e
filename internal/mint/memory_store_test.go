package mint

import (
	"context"
	stdErrors "errors"
	"testing"

	xerrors "VoiceMCP-Chain/internal/errors"
)

func newRecord(id string) *Record {
	return &Record{
		ID:        id,
		Requester: "0x2222222222222222222222222222222222222222",
		Metadata:  Metadata{Name: "Voice NFT", Attributes: map[string]string{"voice": "alloy"}},
		Status:    StatusPending,
	}
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, newRecord("m1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := store.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusPending {
		t.Fatalf("unexpected status: %s", got.Status)
	}

	// 返回的是副本,修改不应影响存储。
	got.Metadata.Attributes["voice"] = "echo"
	again, _ := store.Get(ctx, "m1")
	if again.Metadata.Attributes["voice"] != "alloy" {
		t.Fatal("stored record was mutated through a returned copy")
	}
}

func TestMemoryStoreDuplicateCreate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, newRecord("m1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, newRecord("m1")); !stdErrors.Is(err, ErrMintConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestMemoryStoreLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, newRecord("m1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	claimed, err := store.Claim(ctx, "m1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != StatusUploading {
		t.Fatalf("claim status: %s", claimed.Status)
	}

	// 已被认领的记录不能再次认领。
	if _, err := store.Claim(ctx, "m1"); !stdErrors.Is(err, ErrMintConflict) {
		t.Fatalf("expected conflict on second claim, got %v", err)
	}

	if err := store.MarkSubmitted(ctx, "m1", "ipfs://QmX", "0xabc"); err != nil {
		t.Fatalf("mark submitted: %v", err)
	}
	if err := store.MarkConfirmed(ctx, "m1", "42"); err != nil {
		t.Fatalf("mark confirmed: %v", err)
	}

	got, err := store.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusConfirmed || got.TokenID != "42" || got.TxHash != "0xabc" {
		t.Fatalf("unexpected final record: %+v", got)
	}

	byToken, err := store.GetByToken(ctx, "42")
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if byToken.ID != "m1" {
		t.Fatalf("token lookup returned %s", byToken.ID)
	}

	// confirmed 是终态,不允许再失败。
	if err := store.MarkFailed(ctx, "m1", xerrors.CodeMintSubmission, "boom"); !stdErrors.Is(err, ErrMintConflict) {
		t.Fatalf("expected conflict on terminal record, got %v", err)
	}
}

func TestMemoryStoreIllegalTransitions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, newRecord("m1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	// pending 不能直接 submitted 或 confirmed。
	if err := store.MarkSubmitted(ctx, "m1", "ipfs://QmX", "0xabc"); !stdErrors.Is(err, ErrMintConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := store.MarkConfirmed(ctx, "m1", "1"); !stdErrors.Is(err, ErrMintConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	// 但任何非终态都可以失败。
	if err := store.MarkFailed(ctx, "m1", xerrors.CodeMintUpload, "upload broke"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	got, _ := store.Get(ctx, "m1")
	if got.Status != StatusFailed || got.ErrorCode != string(xerrors.CodeMintUpload) {
		t.Fatalf("unexpected failed record: %+v", got)
	}

	// failed 之后不能复活。
	if _, err := store.Claim(ctx, "m1"); !stdErrors.Is(err, ErrMintConflict) {
		t.Fatalf("expected conflict after terminal failure, got %v", err)
	}
}

func TestMemoryStoreNotFound(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, err := store.Get(ctx, "missing"); !stdErrors.Is(err, ErrMintNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.GetByToken(ctx, "999"); !stdErrors.Is(err, ErrMintNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusUploading},
		{StatusUploading, StatusSubmitted},
		{StatusSubmitted, StatusConfirmed},
		{StatusPending, StatusFailed},
		{StatusUploading, StatusFailed},
		{StatusSubmitted, StatusFailed},
	}
	for _, tc := range allowed {
		if !canTransition(tc.from, tc.to) {
			t.Errorf("%s → %s should be allowed", tc.from, tc.to)
		}
	}

	forbidden := []struct{ from, to Status }{
		{StatusPending, StatusSubmitted},
		{StatusPending, StatusConfirmed},
		{StatusUploading, StatusConfirmed},
		{StatusConfirmed, StatusFailed},
		{StatusFailed, StatusUploading},
		{StatusConfirmed, StatusUploading},
	}
	for _, tc := range forbidden {
		if canTransition(tc.from, tc.to) {
			t.Errorf("%s → %s must be rejected", tc.from, tc.to)
		}
	}
}
