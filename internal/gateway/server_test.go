package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"VoiceMCP-Chain/internal/artifact"
	xerrors "VoiceMCP-Chain/internal/errors"
	"VoiceMCP-Chain/internal/rpc"
	"VoiceMCP-Chain/internal/speech"
)

type stubDispatcher struct {
	listErr    error
	processErr error
	lastParams rpc.ProcessTextParams
}

func (d *stubDispatcher) ListAgents(ctx context.Context) (*rpc.ListAgentsResult, error) {
	if d.listErr != nil {
		return nil, d.listErr
	}
	return &rpc.ListAgentsResult{}, nil
}

func (d *stubDispatcher) ProcessText(ctx context.Context, params rpc.ProcessTextParams) (*rpc.ProcessTextResult, error) {
	d.lastParams = params
	if d.processErr != nil {
		return nil, d.processErr
	}
	return &rpc.ProcessTextResult{
		AgentID:   params.AgentID,
		ReplyText: "回声: " + params.UserText,
		Metadata:  rpc.ProcessingMetadata{Model: "gemini-2.0-flash-exp", Confidence: 0.95},
	}, nil
}

type stubBridge struct {
	transcript      string
	transcribeErr   error
	audio           []byte
	synthesizeErr   error
	synthesizeCalls int
}

func (b *stubBridge) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if b.transcribeErr != nil {
		return "", b.transcribeErr
	}
	return b.transcript, nil
}

func (b *stubBridge) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	b.synthesizeCalls++
	if b.synthesizeErr != nil {
		return nil, "", b.synthesizeErr
	}
	return b.audio, "audio/mpeg", nil
}

func newTestServer(t *testing.T, dispatcher Dispatcher, bridge *stubBridge, dir string) *httptest.Server {
	t.Helper()
	var store artifact.Store
	if dir != "" {
		fs, err := artifact.NewFSStore(dir)
		if err != nil {
			t.Fatalf("new fs store: %v", err)
		}
		store = fs
	}
	var sb speech.Bridge
	if bridge != nil {
		sb = bridge
	}
	srv := httptest.NewServer(NewServer("", dispatcher, sb, store, "agent_001").Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func TestTextInputWithoutSynthesis(t *testing.T) {
	dispatcher := &stubDispatcher{}
	srv := newTestServer(t, dispatcher, nil, "")

	resp := postJSON(t, srv.URL+"/input/text", TextRequest{AgentID: "agent_002", Text: "介绍一下你自己"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	var decoded PipelineResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.AgentID != "agent_002" {
		t.Fatalf("unexpected agent: %s", decoded.AgentID)
	}
	if decoded.ReplyText != "回声: 介绍一下你自己" {
		t.Fatalf("unexpected reply: %s", decoded.ReplyText)
	}
	if decoded.Audio != nil {
		t.Fatal("audio should be absent without synthesis")
	}
	if dispatcher.lastParams.UserText != "介绍一下你自己" {
		t.Fatalf("dispatcher saw wrong text: %s", dispatcher.lastParams.UserText)
	}
}

func TestTextInputDefaultsAgent(t *testing.T) {
	dispatcher := &stubDispatcher{}
	srv := newTestServer(t, dispatcher, nil, "")

	resp := postJSON(t, srv.URL+"/input/text", TextRequest{Text: "hello"})
	resp.Body.Close()
	if dispatcher.lastParams.AgentID != "agent_001" {
		t.Fatalf("default agent not applied: %s", dispatcher.lastParams.AgentID)
	}
}

func TestTextInputWithSynthesisStoresArtifact(t *testing.T) {
	dir := t.TempDir()
	bridge := &stubBridge{audio: []byte("ID3\x03fake")}
	srv := newTestServer(t, &stubDispatcher{}, bridge, dir)

	resp := postJSON(t, srv.URL+"/input/text", TextRequest{Text: "说句话", Synthesize: true})
	defer resp.Body.Close()
	var decoded PipelineResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Audio == nil {
		t.Fatal("expected audio reference")
	}
	if !strings.HasPrefix(decoded.Audio.URL, "/public/audio/") {
		t.Fatalf("unexpected url: %s", decoded.Audio.URL)
	}

	download, err := http.Get(srv.URL + decoded.Audio.URL)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer download.Body.Close()
	if download.StatusCode != http.StatusOK {
		t.Fatalf("download status: %d", download.StatusCode)
	}
	if got := download.Header.Get("Content-Type"); got != "audio/mpeg" {
		t.Fatalf("download mime: %s", got)
	}
}

func TestSynthesisFailureDegradesToText(t *testing.T) {
	dir := t.TempDir()
	bridge := &stubBridge{synthesizeErr: xerrors.New(xerrors.CodeSpeechProvider, "合成挂了")}
	srv := newTestServer(t, &stubDispatcher{}, bridge, dir)

	resp := postJSON(t, srv.URL+"/input/text", TextRequest{Text: "说句话", Synthesize: true})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("degrade should keep 200, got %d", resp.StatusCode)
	}
	var decoded PipelineResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Audio != nil {
		t.Fatal("audio must be absent when synthesis fails")
	}
	if decoded.Warning == "" {
		t.Fatal("warning must explain the degraded response")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("no artifact may be written on synthesis failure, found %d files", len(entries))
	}
}

func TestAudioInputPipeline(t *testing.T) {
	dispatcher := &stubDispatcher{}
	bridge := &stubBridge{transcript: "帮我铸造一个代币", audio: []byte("ID3\x03fake")}
	srv := newTestServer(t, dispatcher, bridge, t.TempDir())

	resp, err := http.Post(srv.URL+"/input/audio?agent_id=agent_003", "audio/wav", bytes.NewReader([]byte("RIFFxxxxWAVE")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	var decoded PipelineResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Transcript != "帮我铸造一个代币" {
		t.Fatalf("transcript: %s", decoded.Transcript)
	}
	if dispatcher.lastParams.AgentID != "agent_003" {
		t.Fatalf("agent: %s", dispatcher.lastParams.AgentID)
	}
	if dispatcher.lastParams.UserText != "帮我铸造一个代币" {
		t.Fatalf("dispatched text: %s", dispatcher.lastParams.UserText)
	}
	if decoded.Audio == nil {
		t.Fatal("expected synthesized audio reference")
	}
}

func TestAudioInputSynthesisOptOut(t *testing.T) {
	dispatcher := &stubDispatcher{}
	bridge := &stubBridge{transcript: "只要文字回复", audio: []byte("ID3\x03fake")}
	dir := t.TempDir()
	srv := newTestServer(t, dispatcher, bridge, dir)

	resp, err := http.Post(srv.URL+"/input/audio?synthesize=false", "audio/wav", bytes.NewReader([]byte("RIFFxxxxWAVE")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	var decoded PipelineResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Transcript != "只要文字回复" {
		t.Fatalf("transcript: %s", decoded.Transcript)
	}
	if decoded.Audio != nil {
		t.Fatal("audio must be absent when synthesis is opted out")
	}
	if bridge.synthesizeCalls != 0 {
		t.Fatalf("synthesizer called %d times despite opt-out", bridge.synthesizeCalls)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("no artifact should be written, found %d entries", len(entries))
	}
}

func TestAudioInputUnsupportedFormat(t *testing.T) {
	bridge := &stubBridge{transcribeErr: xerrors.New(xerrors.CodeSpeechFormat, "不支持的音频格式")}
	srv := newTestServer(t, &stubDispatcher{}, bridge, t.TempDir())

	resp, err := http.Post(srv.URL+"/input/audio", "image/png", bytes.NewReader([]byte("\x89PNG")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", resp.StatusCode)
	}
}

func TestDispatcherErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"unreachable", xerrors.New(xerrors.CodeUpstreamUnavailable, "派发服务不可达"), http.StatusServiceUnavailable},
		{"agent not found", xerrors.New(xerrors.CodeNotFound, "智能体不存在"), http.StatusNotFound},
		{"protocol", xerrors.New(xerrors.CodeProtocol, "请求畸形"), http.StatusBadRequest},
		{"rate limit", xerrors.New(xerrors.CodeProviderRateLimit, "限流"), http.StatusTooManyRequests},
		{"provider auth", xerrors.New(xerrors.CodeProviderAuth, "密钥无效"), http.StatusBadGateway},
		{"provider timeout", xerrors.New(xerrors.CodeProviderTimeout, "超时"), http.StatusGatewayTimeout},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, &stubDispatcher{processErr: tc.err}, nil, "")
			resp := postJSON(t, srv.URL+"/input/text", TextRequest{Text: "hi"})
			defer resp.Body.Close()
			if resp.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.StatusCode)
			}
			var decoded struct {
				Error struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if decoded.Error.Code != string(xerrors.CodeOf(tc.err)) {
				t.Fatalf("code %s does not survive the mapping", decoded.Error.Code)
			}
		})
	}
}

func TestAudioDownloadUnknownID(t *testing.T) {
	srv := newTestServer(t, &stubDispatcher{}, nil, t.TempDir())
	resp, err := http.Get(srv.URL + "/public/audio/does-not-exist")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubDispatcher{}, nil, "")
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}
