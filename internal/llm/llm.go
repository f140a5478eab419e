package llm

import (
	"context"
	"time"

	"VoiceMCP-Chain/internal/agent"
)

// Message 表示一条对话消息，role 为 "user" 或 "assistant"。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion 是一次补全调用的结构化结果。
type Completion struct {
	// Reply 是模型生成的回复文本。
	Reply string
	// TokensUsed 来自 Provider 的用量统计；Provider 未返回时为 0，不视为失败。
	TokensUsed int
	// Duration 是本次外部调用的真实耗时（墙钟时间）。
	Duration time.Duration
}

// Client 定义了调用补全 Provider 的统一接口。
//
// 实现约定：单次调用、带超时、不自动重试——Provider 调用不保证幂等，
// 重复调用会产生重复计费。失败时返回的错误必须携带
// PROVIDER_AUTH / PROVIDER_RATE_LIMIT / PROVIDER_TIMEOUT / PROVIDER_TRANSPORT
// 中的一个错误码，供上层区分展示。
//
// 已知限制：调用方断开连接时上下文会被取消并传播到出站请求，但 Provider
// 可能已经在处理并完成计费，这部分无法保证取消。
type Client interface {
	Complete(ctx context.Context, ag agent.Agent, userText string, history []Message) (*Completion, error)
}
