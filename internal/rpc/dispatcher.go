package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"VoiceMCP-Chain/internal/agent"
	xerrors "VoiceMCP-Chain/internal/errors"
	"VoiceMCP-Chain/internal/llm"
	"VoiceMCP-Chain/pkg/logger"
)

// Dispatcher 将过程调用解析、校验并路由到对应的处理逻辑。
// 每次调用单趟走完 接收→校验→路由→执行→封装，执行阶段（Provider 调用）
// 是唯一的挂起点。Dispatcher 自身不做任何重试。
type Dispatcher struct {
	registry  *agent.Registry
	completer llm.Client
	log       *slog.Logger
}

// NewDispatcher 构造 Dispatcher。
func NewDispatcher(registry *agent.Registry, completer llm.Client) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		completer: completer,
		log:       logger.Named("rpc"),
	}
}

// Handle 处理一次过程调用，始终返回回显原始 id 的响应。
func (d *Dispatcher) Handle(ctx context.Context, req Request) Response {
	if req.JSONRPC != Version {
		return errorResponse(req.ID, CodeInvalidRequest,
			fmt.Sprintf("Invalid Request: jsonrpc must be %q", Version), nil)
	}

	switch req.Method {
	case MethodListAgents:
		return d.handleListAgents(req)
	case MethodProcessText:
		return d.handleProcessText(ctx, req)
	case "":
		return errorResponse(req.ID, CodeInvalidRequest, "Invalid Request: method is required", nil)
	default:
		return errorResponse(req.ID, CodeMethodNotFound, "Method not found: "+req.Method, nil)
	}
}

func (d *Dispatcher) handleListAgents(req Request) Response {
	agents := d.registry.List()
	summaries := make([]agent.Summary, 0, len(agents))
	for _, ag := range agents {
		summaries = append(summaries, ag.Summary())
	}
	return resultResponse(req.ID, ListAgentsResult{Agents: summaries})
}

func (d *Dispatcher) handleProcessText(ctx context.Context, req Request) Response {
	var params ProcessTextParams
	if len(req.Params) == 0 {
		return errorResponse(req.ID, CodeInvalidParams,
			"Invalid params: agent_id and user_text are required", nil)
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "Invalid params: "+err.Error(), nil)
	}
	if strings.TrimSpace(params.AgentID) == "" || strings.TrimSpace(params.UserText) == "" {
		return errorResponse(req.ID, CodeInvalidParams,
			"Invalid params: agent_id and user_text must be non-empty", nil)
	}

	ag, ok := d.registry.Find(params.AgentID)
	if !ok {
		return errorResponse(req.ID, CodeAgentNotFound, "Agent not found: "+params.AgentID, nil)
	}

	completion, err := d.completer.Complete(ctx, ag, params.UserText, params.ConversationHistory)
	if err != nil {
		d.log.Error("补全调用失败",
			slog.String("agent_id", ag.ID),
			slog.String("code", string(xerrors.CodeOf(err))),
			slog.Any("error", err),
		)
		return errorResponse(req.ID, CodeProviderFailure, "Provider processing failed",
			map[string]string{
				"code":    string(xerrors.CodeOf(err)),
				"details": err.Error(),
			})
	}

	tokens := completion.TokensUsed
	if tokens < 0 {
		tokens = 0
	}
	elapsedMS := completion.Duration.Milliseconds()
	if elapsedMS < 0 {
		elapsedMS = 0
	}

	return resultResponse(req.ID, ProcessTextResult{
		AgentID:   ag.ID,
		ReplyText: completion.Reply,
		Metadata: ProcessingMetadata{
			Model:            ag.Model,
			TokensUsed:       tokens,
			ProcessingTimeMS: elapsedMS,
			Confidence:       placeholderConfidence,
		},
	})
}

func resultResponse(id json.RawMessage, result any) Response {
	encoded, err := json.Marshal(result)
	if err != nil {
		return errorResponse(id, CodeInternalError, "Internal error: encode result", nil)
	}
	return Response{JSONRPC: Version, Result: encoded, ID: normalizeID(id)}
}

func errorResponse(id json.RawMessage, code int, message string, data any) Response {
	return Response{
		JSONRPC: Version,
		Error:   &ErrorObject{Code: code, Message: message, Data: data},
		ID:      normalizeID(id),
	}
}

// normalizeID 保证缺失的 id 编码为 null 而不是被省略。
func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}
