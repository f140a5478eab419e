package gemini

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"VoiceMCP-Chain/internal/agent"
	xerrors "VoiceMCP-Chain/internal/errors"
	"VoiceMCP-Chain/internal/llm"
)

const defaultTimeout = 60 * time.Second

// Config 描述了调用 Google Gemini 所需的信息。
type Config struct {
	APIKey  string
	Timeout time.Duration
}

// Client 通过官方 SDK 调用 Gemini generateContent。
type Client struct {
	client  *genai.Client
	timeout time.Duration
}

// NewClient 根据配置创建 Gemini 客户端。
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未提供 Gemini API Key")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "创建 Gemini 客户端失败")
	}
	return &Client{client: client, timeout: timeout}, nil
}

// Complete 调用 Gemini 生成回复。单次调用，不自动重试。
func (c *Client) Complete(ctx context.Context, ag agent.Agent, userText string, history []llm.Message) (*llm.Completion, error) {
	model := c.client.GenerativeModel(ag.Model)
	if prompt := strings.TrimSpace(ag.SystemPrompt); prompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(prompt)},
		}
	}

	session := model.StartChat()
	session.History = convertHistory(history)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	resp, err := session.SendMessage(callCtx, genai.Text(userText))
	elapsed := time.Since(started)
	if err != nil {
		return nil, classify(err)
	}

	reply := extractReply(resp)
	if reply == "" {
		return nil, xerrors.New(xerrors.CodeProviderTransport, "Gemini 响应中没有有效内容")
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
		if tokens < 0 {
			tokens = 0
		}
	}

	return &llm.Completion{
		Reply:      reply,
		TokensUsed: tokens,
		Duration:   elapsed,
	}, nil
}

// Close 释放底层连接。
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// convertHistory 将对话历史转换为 Gemini 的 Content 表示。
// Gemini 用 "model" 表示助手角色，其他角色直接丢弃。
func convertHistory(history []llm.Message) []*genai.Content {
	if len(history) == 0 {
		return nil
	}
	contents := make([]*genai.Content, 0, len(history))
	for _, msg := range history {
		var role string
		switch msg.Role {
		case "user":
			role = "user"
		case "assistant":
			role = "model"
		default:
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	return contents
}

func extractReply(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	content := resp.Candidates[0].Content
	if content == nil {
		return ""
	}
	var builder strings.Builder
	for _, part := range content.Parts {
		if text, ok := part.(genai.Text); ok {
			builder.WriteString(string(text))
		}
	}
	return strings.TrimSpace(builder.String())
}

// classify 将 SDK 错误归入统一的 Provider 错误类别。
func classify(err error) error {
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return xerrors.Wrap(xerrors.CodeProviderTimeout, err, "Gemini 调用超时")
	}
	var apiErr *googleapi.Error
	if stdErrors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return xerrors.Wrap(xerrors.CodeProviderAuth, err,
				fmt.Sprintf("Gemini 认证失败 (%d)", apiErr.Code))
		case http.StatusTooManyRequests:
			return xerrors.Wrap(xerrors.CodeProviderRateLimit, err,
				fmt.Sprintf("Gemini 触发限流 (%d)", apiErr.Code))
		default:
			return xerrors.Wrap(xerrors.CodeProviderTransport, err,
				fmt.Sprintf("Gemini 返回错误状态 %d", apiErr.Code))
		}
	}
	return xerrors.Wrap(xerrors.CodeProviderTransport, err, "请求 Gemini 失败")
}
