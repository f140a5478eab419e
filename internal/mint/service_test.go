package mint

import (
	"context"
	stdErrors "errors"
	"testing"

	xerrors "VoiceMCP-Chain/internal/errors"
)

type recordingProducer struct {
	published []string
	failWith  error
}

func (p *recordingProducer) Publish(_ context.Context, mintID string) error {
	if p.failWith != nil {
		return p.failWith
	}
	p.published = append(p.published, mintID)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func validRequest() Request {
	return Request{
		Metadata:  Metadata{Name: "Voice NFT"},
		Requester: "0x2222222222222222222222222222222222222222",
	}
}

func TestServiceSubmit(t *testing.T) {
	producer := &recordingProducer{}
	service := NewService(NewMemoryStore(), producer, NewMemoryIdempotency())

	record, err := service.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if record.Status != StatusPending {
		t.Fatalf("unexpected status: %s", record.Status)
	}
	if len(producer.published) != 1 || producer.published[0] != record.ID {
		t.Fatalf("publish mismatch: %v", producer.published)
	}
}

func TestServiceSubmitValidation(t *testing.T) {
	service := NewService(NewMemoryStore(), &recordingProducer{}, nil)

	req := validRequest()
	req.Metadata.Name = " "
	if _, err := service.Submit(context.Background(), req); err == nil {
		t.Fatal("expected error for empty metadata name")
	}

	req = validRequest()
	req.Requester = ""
	if _, err := service.Submit(context.Background(), req); err == nil {
		t.Fatal("expected error for empty requester")
	}
}

func TestServiceIdempotentResubmission(t *testing.T) {
	producer := &recordingProducer{}
	service := NewService(NewMemoryStore(), producer, NewMemoryIdempotency())

	req := validRequest()
	req.IdempotencyKey = "voice-session-7"

	first, err := service.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := service.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate submission created a new mint: %s vs %s", second.ID, first.ID)
	}
	if len(producer.published) != 1 {
		t.Fatalf("duplicate submission must not enqueue again, published %d", len(producer.published))
	}
}

func TestServicePublishFailureMarksFailed(t *testing.T) {
	store := NewMemoryStore()
	producer := &recordingProducer{failWith: xerrors.New(xerrors.CodeQueueFailure, "broker down")}
	service := NewService(store, producer, nil)

	_, err := service.Submit(context.Background(), validRequest())
	if err == nil {
		t.Fatal("expected publish failure")
	}
	if got := xerrors.CodeOf(err); got != xerrors.CodeQueueFailure {
		t.Fatalf("unexpected code: %s", got)
	}

	records, listErr := store.List(context.Background(), 10)
	if listErr != nil {
		t.Fatalf("list: %v", listErr)
	}
	if len(records) != 1 || records[0].Status != StatusFailed {
		t.Fatalf("record was not marked failed: %+v", records)
	}
}

func TestServiceStatusLookup(t *testing.T) {
	store := NewMemoryStore()
	service := NewService(store, &recordingProducer{}, nil)

	record, err := service.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := store.Claim(context.Background(), record.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkSubmitted(context.Background(), record.ID, "ipfs://QmX", "0xabc"); err != nil {
		t.Fatalf("mark submitted: %v", err)
	}
	if err := store.MarkConfirmed(context.Background(), record.ID, "42"); err != nil {
		t.Fatalf("mark confirmed: %v", err)
	}

	byID, err := service.Status(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("status by id: %v", err)
	}
	if byID.Status != StatusConfirmed {
		t.Fatalf("unexpected status: %s", byID.Status)
	}

	byToken, err := service.Status(context.Background(), "42")
	if err != nil {
		t.Fatalf("status by token: %v", err)
	}
	if byToken.ID != record.ID {
		t.Fatalf("token lookup returned %s", byToken.ID)
	}

	if _, err := service.Status(context.Background(), "missing"); !stdErrors.Is(err, ErrMintNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryIdempotencyReserve(t *testing.T) {
	idem := NewMemoryIdempotency()

	winner, reserved, err := idem.Reserve(context.Background(), "k", "m1")
	if err != nil || !reserved || winner != "m1" {
		t.Fatalf("first reserve: winner=%s reserved=%v err=%v", winner, reserved, err)
	}
	winner, reserved, err = idem.Reserve(context.Background(), "k", "m2")
	if err != nil || reserved || winner != "m1" {
		t.Fatalf("second reserve: winner=%s reserved=%v err=%v", winner, reserved, err)
	}
}
