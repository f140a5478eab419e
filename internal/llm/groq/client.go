package groq

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"VoiceMCP-Chain/internal/agent"
	xerrors "VoiceMCP-Chain/internal/errors"
	"VoiceMCP-Chain/internal/llm"
)

const (
	defaultBaseURL = "https://api.groq.com/openai/v1"
	defaultTimeout = 60 * time.Second
	maxTokens      = 1024
	temperature    = 0.7
)

// Config 描述了调用 Groq（OpenAI 兼容协议）所需的信息。
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client 通过 HTTP 调用 Groq 的 chat/completions 接口。
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient 根据配置创建 Groq 客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未提供 Groq API Key")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Complete 调用 Groq 生成回复。单次调用，不自动重试。
func (c *Client) Complete(ctx context.Context, ag agent.Agent, userText string, history []llm.Message) (*llm.Completion, error) {
	payload, err := c.buildPayload(ag, userText, history)
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeProviderTransport, err, "构建 Groq 请求失败")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	elapsed := time.Since(started)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, classifyStatus(resp.StatusCode, string(body))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeProviderTransport, err, "解析 Groq 响应失败")
	}
	if len(decoded.Choices) == 0 {
		return nil, xerrors.New(xerrors.CodeProviderTransport, "Groq 响应中没有有效的 choices")
	}

	reply := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if reply == "" {
		return nil, xerrors.New(xerrors.CodeProviderTransport, "Groq 响应内容为空")
	}

	tokens := decoded.Usage.TotalTokens
	if tokens < 0 {
		tokens = 0
	}

	return &llm.Completion{
		Reply:      reply,
		TokensUsed: tokens,
		Duration:   elapsed,
	}, nil
}

func (c *Client) buildPayload(ag agent.Agent, userText string, history []llm.Message) ([]byte, error) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	messages := make([]message, 0, len(history)+2)
	messages = append(messages, message{Role: "system", Content: ag.SystemPrompt})
	for _, msg := range history {
		role := msg.Role
		if role != "user" && role != "assistant" {
			continue
		}
		messages = append(messages, message{Role: role, Content: msg.Content})
	}
	messages = append(messages, message{Role: "user", Content: userText})

	body := map[string]any{
		"model":       ag.Model,
		"messages":    messages,
		"temperature": temperature,
		"max_tokens":  maxTokens,
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeProviderTransport, err, "序列化 Groq 请求失败")
	}
	return encoded, nil
}

// classifyTransport 将网络层错误归入超时或传输失败。
func classifyTransport(err error) error {
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return xerrors.Wrap(xerrors.CodeProviderTimeout, err, "Groq 调用超时")
	}
	var netErr net.Error
	if stdErrors.As(err, &netErr) && netErr.Timeout() {
		return xerrors.Wrap(xerrors.CodeProviderTimeout, err, "Groq 调用超时")
	}
	return xerrors.Wrap(xerrors.CodeProviderTransport, err, "请求 Groq 失败")
}

// classifyStatus 按 HTTP 状态码区分认证、限流与其他失败。
func classifyStatus(status int, body string) error {
	detail := strings.TrimSpace(body)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return xerrors.New(xerrors.CodeProviderAuth,
			fmt.Sprintf("Groq 认证失败 (%d): %s", status, detail))
	case http.StatusTooManyRequests:
		return xerrors.New(xerrors.CodeProviderRateLimit,
			fmt.Sprintf("Groq 触发限流 (%d): %s", status, detail))
	default:
		return xerrors.New(xerrors.CodeProviderTransport,
			fmt.Sprintf("Groq 返回错误状态 %d: %s", status, detail))
	}
}
