package rpc

import (
	"encoding/json"

	"VoiceMCP-Chain/internal/agent"
	"VoiceMCP-Chain/internal/llm"
)

// Version 是协议版本号，请求与响应的 jsonrpc 字段必须等于它。
const Version = "2.0"

// 支持的方法名。
const (
	MethodListAgents  = "list_agents"
	MethodProcessText = "process_text"
)

// 协议层错误码（信封不合法，本地立即返回，永不重试）。
const (
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// 应用层错误码，与协议层错误严格区分。
const (
	CodeAgentNotFound   = -32001
	CodeProviderFailure = -32002
)

// Request 是 JSON-RPC 2.0 请求信封。ID 原样保存以便逐字节回显，
// 缺失时为 nil，对应通知语义。
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// Response 是 JSON-RPC 2.0 响应信封。Result 与 Error 二者只会出现一个。
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// ErrorObject 是响应中的错误对象。
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ListAgentsResult 是 list_agents 的返回结构。
type ListAgentsResult struct {
	Agents []agent.Summary `json:"agents"`
}

// ProcessTextParams 是 process_text 的参数。
type ProcessTextParams struct {
	AgentID             string        `json:"agent_id"`
	UserText            string        `json:"user_text"`
	ConversationHistory []llm.Message `json:"conversation_history,omitempty"`
}

// ProcessTextResult 是 process_text 的返回结构。
type ProcessTextResult struct {
	AgentID   string             `json:"agent_id"`
	ReplyText string             `json:"reply_text"`
	Metadata  ProcessingMetadata `json:"metadata"`
}

// ProcessingMetadata 描述一次补全调用的元信息。TokensUsed 与
// ProcessingTimeMS 永远存在且非负，即使 Provider 没有返回用量统计。
type ProcessingMetadata struct {
	Model            string  `json:"model"`
	TokensUsed       int     `json:"tokens_used"`
	ProcessingTimeMS int64   `json:"processing_time_ms"`
	Confidence       float64 `json:"confidence"`
}

// placeholderConfidence 是固定的占位置信度。当前没有真实的打分方法，
// 调用方不得把它当作概率使用，测试也只应断言取值范围。
const placeholderConfidence = 0.95
