package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"VoiceMCP-Chain/internal/agent"
	xerrors "VoiceMCP-Chain/internal/errors"
	"VoiceMCP-Chain/internal/llm"
)

type stubCompleter struct {
	completion *llm.Completion
	err        error
	lastAgent  agent.Agent
	lastText   string
}

func (s *stubCompleter) Complete(ctx context.Context, ag agent.Agent, userText string, history []llm.Message) (*llm.Completion, error) {
	s.lastAgent = ag
	s.lastText = userText
	if s.err != nil {
		return nil, s.err
	}
	return s.completion, nil
}

func newTestDispatcher(t *testing.T, completer llm.Client) *Dispatcher {
	t.Helper()
	reg, err := agent.NewRegistry(agent.DefaultCatalog())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return NewDispatcher(reg, completer)
}

func makeRequest(t *testing.T, method string, params any, id string) Request {
	t.Helper()
	req := Request{JSONRPC: Version, Method: method}
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
		req.Params = encoded
	}
	if id != "" {
		req.ID = json.RawMessage(id)
	}
	return req
}

func TestHandleEchoesRequestID(t *testing.T) {
	completer := &stubCompleter{completion: &llm.Completion{Reply: "ok", TokensUsed: 7, Duration: time.Millisecond}}
	d := newTestDispatcher(t, completer)

	for _, id := range []string{"1", `"abc"`, "42"} {
		req := makeRequest(t, MethodProcessText,
			ProcessTextParams{AgentID: "agent_001", UserText: "hi"}, id)
		resp := d.Handle(context.Background(), req)
		if !bytes.Equal(resp.ID, json.RawMessage(id)) {
			t.Fatalf("id not echoed: got %s want %s", resp.ID, id)
		}
	}
}

func TestHandleMissingIDBecomesNull(t *testing.T) {
	d := newTestDispatcher(t, &stubCompleter{})
	resp := d.Handle(context.Background(), makeRequest(t, MethodListAgents, nil, ""))
	if string(resp.ID) != "null" {
		t.Fatalf("expected null id, got %s", resp.ID)
	}
}

func TestHandleListAgents(t *testing.T) {
	d := newTestDispatcher(t, &stubCompleter{})
	resp := d.Handle(context.Background(), makeRequest(t, MethodListAgents, nil, "1"))
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}

	var result ListAgentsResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	catalog := agent.DefaultCatalog()
	if len(result.Agents) != len(catalog) {
		t.Fatalf("unexpected agent count: got %d want %d", len(result.Agents), len(catalog))
	}
	for i, summary := range result.Agents {
		if summary.ID != catalog[i].ID {
			t.Fatalf("order mismatch at %d: got %s want %s", i, summary.ID, catalog[i].ID)
		}
	}
}

func TestHandleProcessTextSuccess(t *testing.T) {
	completer := &stubCompleter{
		completion: &llm.Completion{Reply: "a blockchain is a distributed ledger", TokensUsed: 31, Duration: 120 * time.Millisecond},
	}
	d := newTestDispatcher(t, completer)

	req := makeRequest(t, MethodProcessText,
		ProcessTextParams{AgentID: "agent_002", UserText: "What is a blockchain?"}, "1")
	resp := d.Handle(context.Background(), req)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}

	var result ProcessTextResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.AgentID != "agent_002" {
		t.Fatalf("unexpected agent id: %s", result.AgentID)
	}
	if result.ReplyText == "" {
		t.Fatal("empty reply text")
	}
	if result.Metadata.TokensUsed != 31 || result.Metadata.ProcessingTimeMS != 120 {
		t.Fatalf("unexpected metadata: %+v", result.Metadata)
	}
	if result.Metadata.Confidence < 0 || result.Metadata.Confidence > 1 {
		t.Fatalf("confidence out of range: %f", result.Metadata.Confidence)
	}
	if completer.lastAgent.ID != "agent_002" {
		t.Fatalf("completer saw wrong agent: %s", completer.lastAgent.ID)
	}
}

func TestHandleProcessTextMissingUsageDefaultsToZero(t *testing.T) {
	completer := &stubCompleter{completion: &llm.Completion{Reply: "ok"}}
	d := newTestDispatcher(t, completer)

	resp := d.Handle(context.Background(), makeRequest(t, MethodProcessText,
		ProcessTextParams{AgentID: "agent_001", UserText: "hi"}, "1"))

	var result ProcessTextResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Metadata.TokensUsed != 0 || result.Metadata.ProcessingTimeMS != 0 {
		t.Fatalf("expected zero metadata, got %+v", result.Metadata)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(resp.Result, &raw); err != nil {
		t.Fatalf("decode raw: %v", err)
	}
	var metadata map[string]json.RawMessage
	if err := json.Unmarshal(raw["metadata"], &metadata); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	// 字段必须存在而不是缺省。
	for _, key := range []string{"tokens_used", "processing_time_ms"} {
		if _, ok := metadata[key]; !ok {
			t.Fatalf("metadata field %s absent", key)
		}
	}
}

func TestHandleUnknownAgent(t *testing.T) {
	d := newTestDispatcher(t, &stubCompleter{})
	resp := d.Handle(context.Background(), makeRequest(t, MethodProcessText,
		ProcessTextParams{AgentID: "agent_999", UserText: "hi"}, "7"))

	if resp.Result != nil {
		t.Fatal("expected no result")
	}
	if resp.Error == nil || resp.Error.Code != CodeAgentNotFound {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	// 应用层错误码必须与协议校验错误码不同。
	if resp.Error.Code == CodeInvalidParams || resp.Error.Code == CodeInvalidRequest {
		t.Fatalf("agent-not-found must not reuse protocol codes: %d", resp.Error.Code)
	}
}

func TestHandleProtocolErrors(t *testing.T) {
	d := newTestDispatcher(t, &stubCompleter{})

	cases := []struct {
		name string
		req  Request
		code int
	}{
		{"bad version", Request{JSONRPC: "1.0", Method: MethodListAgents, ID: json.RawMessage("1")}, CodeInvalidRequest},
		{"missing method", Request{JSONRPC: Version, ID: json.RawMessage("1")}, CodeInvalidRequest},
		{"unknown method", Request{JSONRPC: Version, Method: "frob", ID: json.RawMessage("1")}, CodeMethodNotFound},
		{"missing params", Request{JSONRPC: Version, Method: MethodProcessText, ID: json.RawMessage("1")}, CodeInvalidParams},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := d.Handle(context.Background(), tc.req)
			if resp.Error == nil || resp.Error.Code != tc.code {
				t.Fatalf("unexpected error: %+v", resp.Error)
			}
			if resp.Result != nil {
				t.Fatal("error response must not carry result")
			}
		})
	}
}

func TestHandleEmptyParams(t *testing.T) {
	d := newTestDispatcher(t, &stubCompleter{})
	resp := d.Handle(context.Background(), makeRequest(t, MethodProcessText,
		ProcessTextParams{AgentID: "", UserText: " "}, "1"))
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
}

func TestHandleProviderFailure(t *testing.T) {
	completer := &stubCompleter{err: xerrors.New(xerrors.CodeProviderTimeout, "provider call timed out")}
	d := newTestDispatcher(t, completer)

	resp := d.Handle(context.Background(), makeRequest(t, MethodProcessText,
		ProcessTextParams{AgentID: "agent_001", UserText: "hi"}, "9"))
	if resp.Error == nil || resp.Error.Code != CodeProviderFailure {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	data, ok := resp.Error.Data.(map[string]string)
	if !ok {
		t.Fatalf("unexpected data type: %T", resp.Error.Data)
	}
	if data["code"] != string(xerrors.CodeProviderTimeout) {
		t.Fatalf("provider subcode missing: %+v", data)
	}
}
