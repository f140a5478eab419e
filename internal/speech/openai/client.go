package openai

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	xerrors "VoiceMCP-Chain/internal/errors"
	"VoiceMCP-Chain/internal/speech"
)

const (
	defaultBaseURL         = "https://api.openai.com/v1"
	defaultTimeout         = 60 * time.Second
	defaultTranscribeModel = "whisper-1"
	defaultSynthesizeModel = "tts-1"
	defaultVoice           = "alloy"
	synthesizedMIME        = "audio/mpeg"
)

// Config 描述了调用 OpenAI 兼容语音接口所需的信息。
type Config struct {
	APIKey          string
	BaseURL         string
	TranscribeModel string
	SynthesizeModel string
	Voice           string
	Timeout         time.Duration
}

// Client 通过 OpenAI 兼容协议提供双向语音能力。
type Client struct {
	apiKey          string
	baseURL         string
	transcribeModel string
	synthesizeModel string
	voice           string
	httpClient      *http.Client
}

var _ speech.Bridge = (*Client)(nil)

// NewClient 根据配置创建语音客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未提供语音服务 API Key")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	transcribeModel := strings.TrimSpace(cfg.TranscribeModel)
	if transcribeModel == "" {
		transcribeModel = defaultTranscribeModel
	}
	synthesizeModel := strings.TrimSpace(cfg.SynthesizeModel)
	if synthesizeModel == "" {
		synthesizeModel = defaultSynthesizeModel
	}
	voice := strings.TrimSpace(cfg.Voice)
	if voice == "" {
		voice = defaultVoice
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		apiKey:          apiKey,
		baseURL:         baseURL,
		transcribeModel: transcribeModel,
		synthesizeModel: synthesizeModel,
		voice:           voice,
		httpClient:      &http.Client{Timeout: timeout},
	}, nil
}

// Transcribe 将音频转写为文本。先在本地嗅探容器格式，
// 不支持的格式不会产生任何网络调用。
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	_, ext, err := speech.DetectFormat(audio)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "input."+ext)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeSpeechProvider, err, "构建转写请求失败")
	}
	if _, err := part.Write(audio); err != nil {
		return "", xerrors.Wrap(xerrors.CodeSpeechProvider, err, "写入音频数据失败")
	}
	if err := writer.WriteField("model", c.transcribeModel); err != nil {
		return "", xerrors.Wrap(xerrors.CodeSpeechProvider, err, "构建转写请求失败")
	}
	if err := writer.Close(); err != nil {
		return "", xerrors.Wrap(xerrors.CodeSpeechProvider, err, "构建转写请求失败")
	}

	endpoint := c.baseURL + "/audio/transcriptions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeSpeechProvider, err, "构建转写请求失败")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", wrapTransport(err, "转写")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", xerrors.New(xerrors.CodeSpeechProvider,
			fmt.Sprintf("转写服务返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))))
	}

	var decoded struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", xerrors.Wrap(xerrors.CodeSpeechProvider, err, "解析转写响应失败")
	}
	text := strings.TrimSpace(decoded.Text)
	if text == "" {
		return "", xerrors.New(xerrors.CodeSpeechProvider, "转写结果为空")
	}
	return text, nil
}

// Synthesize 将文本合成为音频，返回 MP3 字节流。
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, "", xerrors.New(xerrors.CodeInvalidArgument, "合成文本不能为空")
	}

	payload, err := json.Marshal(map[string]string{
		"model": c.synthesizeModel,
		"input": text,
		"voice": c.voice,
	})
	if err != nil {
		return nil, "", xerrors.Wrap(xerrors.CodeSpeechProvider, err, "序列化合成请求失败")
	}

	endpoint := c.baseURL + "/audio/speech"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, "", xerrors.Wrap(xerrors.CodeSpeechProvider, err, "构建合成请求失败")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, "", wrapTransport(err, "合成")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, "", xerrors.New(xerrors.CodeSpeechProvider,
			fmt.Sprintf("合成服务返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", xerrors.Wrap(xerrors.CodeSpeechProvider, err, "读取合成音频失败")
	}
	if len(audio) == 0 {
		return nil, "", xerrors.New(xerrors.CodeSpeechProvider, "合成音频为空")
	}
	return audio, synthesizedMIME, nil
}

func wrapTransport(err error, op string) error {
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return xerrors.Wrap(xerrors.CodeSpeechProvider, err, op+"调用超时")
	}
	var netErr net.Error
	if stdErrors.As(err, &netErr) && netErr.Timeout() {
		return xerrors.Wrap(xerrors.CodeSpeechProvider, err, op+"调用超时")
	}
	return xerrors.Wrap(xerrors.CodeSpeechProvider, err, op+"请求失败")
}
