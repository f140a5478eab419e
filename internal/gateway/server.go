package gateway

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"VoiceMCP-Chain/internal/artifact"
	xerrors "VoiceMCP-Chain/internal/errors"
	"VoiceMCP-Chain/internal/llm"
	"VoiceMCP-Chain/internal/observability/metrics"
	"VoiceMCP-Chain/internal/rpc"
	"VoiceMCP-Chain/internal/speech"
	"VoiceMCP-Chain/pkg/logger"
)

// maxAudioBody 限制上传音频的大小，超出即拒绝。
const maxAudioBody = 25 << 20

// Dispatcher 是网关依赖的派发能力，由 JSON-RPC 客户端实现。
type Dispatcher interface {
	ListAgents(ctx context.Context) (*rpc.ListAgentsResult, error)
	ProcessText(ctx context.Context, params rpc.ProcessTextParams) (*rpc.ProcessTextResult, error)
}

// Server 对外暴露语音网关的 REST 接口。
// 每次请求的流水线是: (可选)转写 → 派发补全 → (可选)合成 → 产物落盘。
type Server struct {
	addr         string
	dispatcher   Dispatcher
	bridge       speech.Bridge
	artifacts    artifact.Store
	defaultAgent string
	log          *slog.Logger
}

// NewServer 构造网关服务。bridge 与 artifacts 可以为 nil，
// 此时网关只提供纯文本链路。
func NewServer(addr string, dispatcher Dispatcher, bridge speech.Bridge, artifacts artifact.Store, defaultAgent string) *Server {
	if defaultAgent == "" {
		defaultAgent = "agent_001"
	}
	return &Server{
		addr:         addr,
		dispatcher:   dispatcher,
		bridge:       bridge,
		artifacts:    artifacts,
		defaultAgent: defaultAgent,
		log:          logger.Named("gateway"),
	}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.log.Info("语音网关已启动", "addr", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler 返回路由表，测试可以直接挂在 httptest 上。
func (s *Server) Handler() http.Handler {
	collector := metrics.Default()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/agents", collector.Middleware("gateway_agents", http.HandlerFunc(s.handleAgents)))
	mux.Handle("/input/text", collector.Middleware("gateway_text", http.HandlerFunc(s.handleTextInput)))
	mux.Handle("/input/audio", collector.Middleware("gateway_audio", http.HandlerFunc(s.handleAudioInput)))
	mux.Handle("/public/audio/", collector.Middleware("gateway_download", http.HandlerFunc(s.handleAudioDownload)))
	mux.Handle("/metrics", collector.Handler())
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	result, err := s.dispatcher.ListAgents(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// TextRequest 是文本入口的请求体。
type TextRequest struct {
	AgentID             string        `json:"agent_id,omitempty"`
	Text                string        `json:"text"`
	ConversationHistory []llm.Message `json:"conversation_history,omitempty"`
	Synthesize          bool          `json:"synthesize,omitempty"`
}

// PipelineResponse 是文本与音频两个入口共用的响应结构。
// Audio 仅在合成成功并落盘后出现；合成失败时降级为纯文本，
// Warning 说明降级原因。
type PipelineResponse struct {
	AgentID    string                 `json:"agent_id"`
	Transcript string                 `json:"transcript,omitempty"`
	ReplyText  string                 `json:"reply_text"`
	Metadata   rpc.ProcessingMetadata `json:"metadata"`
	Audio      *AudioRef              `json:"audio,omitempty"`
	Warning    string                 `json:"warning,omitempty"`
}

// AudioRef 指向一份已经落盘的合成音频。
type AudioRef struct {
	ArtifactID string `json:"artifact_id"`
	URL        string `json:"url"`
	MIMEType   string `json:"mime_type"`
}

func (s *Server) handleTextInput(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}

	var req TextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, xerrors.Wrap(xerrors.CodeProtocol, err, "请求体解析失败"))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, xerrors.New(xerrors.CodeProtocol, "text 不能为空"))
		return
	}

	resp, err := s.runPipeline(r.Context(), req.AgentID, req.Text, req.ConversationHistory, req.Synthesize)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAudioInput(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.bridge == nil {
		s.writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "语音能力未启用"))
		return
	}

	audio, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioBody))
	if err != nil {
		s.writeError(w, xerrors.Wrap(xerrors.CodeProtocol, err, "读取音频请求体失败"))
		return
	}

	// 转写失败中止整个请求,不会继续走补全链路。
	transcript, err := s.bridge.Transcribe(r.Context(), audio)
	if err != nil {
		s.writeError(w, err)
		return
	}

	agentID := r.URL.Query().Get("agent_id")
	// 默认回复语音,synthesize=false 时跳过合成只返回文本。
	synthesize := r.URL.Query().Get("synthesize") != "false"
	resp, err := s.runPipeline(r.Context(), agentID, transcript, nil, synthesize)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp.Transcript = transcript
	writeJSON(w, http.StatusOK, resp)
}

// runPipeline 执行派发与可选的语音合成。合成或落盘失败不会使
// 请求失败:响应降级为纯文本,不写任何产物。
func (s *Server) runPipeline(ctx context.Context, agentID, text string, history []llm.Message, synthesize bool) (*PipelineResponse, error) {
	if agentID == "" {
		agentID = s.defaultAgent
	}

	result, err := s.dispatcher.ProcessText(ctx, rpc.ProcessTextParams{
		AgentID:             agentID,
		UserText:            text,
		ConversationHistory: history,
	})
	if err != nil {
		return nil, err
	}

	resp := &PipelineResponse{
		AgentID:   result.AgentID,
		ReplyText: result.ReplyText,
		Metadata:  result.Metadata,
	}

	if !synthesize || s.bridge == nil || s.artifacts == nil {
		return resp, nil
	}

	audio, mimeType, err := s.bridge.Synthesize(ctx, result.ReplyText)
	if err != nil {
		s.log.Warn("语音合成失败,降级为纯文本响应",
			"agent_id", result.AgentID,
			"error", err,
		)
		resp.Warning = "语音合成失败，已降级为纯文本"
		return resp, nil
	}

	art, err := s.artifacts.Save(ctx, audio, mimeType)
	if err != nil {
		s.log.Warn("产物落盘失败,降级为纯文本响应",
			"agent_id", result.AgentID,
			"error", err,
		)
		resp.Warning = "音频保存失败，已降级为纯文本"
		return resp, nil
	}

	resp.Audio = &AudioRef{
		ArtifactID: art.ID,
		URL:        "/public/audio/" + art.ID,
		MIMEType:   art.MIMEType,
	}
	return resp, nil
}

func (s *Server) handleAudioDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.artifacts == nil {
		s.writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "产物存储未启用"))
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/public/audio/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, xerrors.New(xerrors.CodeNotFound, "产物不存在"))
		return
	}

	reader, art, err := s.artifacts.Open(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", art.MIMEType)
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

// writeError 把内部错误码映射为 HTTP 状态。派发服务不可达必须
// 以 503 暴露,不能伪装成应用层错误。
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	status := httpStatusFor(code)
	if status >= http.StatusInternalServerError {
		s.log.Error("请求处理失败", "code", string(code), "error", err)
	} else {
		s.log.Debug("请求被拒绝", "code", string(code), "error", err)
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    string(code),
			"message": err.Error(),
		},
	})
}

func httpStatusFor(code xerrors.Code) int {
	switch code {
	case xerrors.CodeProtocol, xerrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case xerrors.CodeNotFound:
		return http.StatusNotFound
	case xerrors.CodeConflict:
		return http.StatusConflict
	case xerrors.CodeSpeechFormat:
		return http.StatusUnsupportedMediaType
	case xerrors.CodeProviderRateLimit:
		return http.StatusTooManyRequests
	case xerrors.CodeProviderAuth, xerrors.CodeProviderTransport, xerrors.CodeSpeechProvider:
		return http.StatusBadGateway
	case xerrors.CodeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case xerrors.CodeProviderTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
