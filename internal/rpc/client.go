package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	xerrors "VoiceMCP-Chain/internal/errors"
)

// DefaultClientTimeout 是未提供自定义 http.Client 时的默认超时。
// 故意设得比 Provider 超时更长，避免内层还在等待时外层先行放弃。
const DefaultClientTimeout = 90 * time.Second

// Client 封装对派发服务的 HTTP 过程调用，由网关使用。
type Client struct {
	endpoint   string
	httpClient *http.Client
	nextID     atomic.Int64
}

// NewClient 创建协议客户端。httpClient 为 nil 时使用带默认超时的客户端。
func NewClient(endpoint string, httpClient *http.Client) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置派发服务地址")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultClientTimeout}
	}
	return &Client{endpoint: endpoint, httpClient: httpClient}, nil
}

// ListAgents 调用 list_agents。
func (c *Client) ListAgents(ctx context.Context) (*ListAgentsResult, error) {
	var result ListAgentsResult
	if err := c.call(ctx, MethodListAgents, struct{}{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ProcessText 调用 process_text。
func (c *Client) ProcessText(ctx context.Context, params ProcessTextParams) (*ProcessTextResult, error) {
	var result ProcessTextResult
	if err := c.call(ctx, MethodProcessText, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// call 发送一次过程调用并解析结果。传输层失败统一归为上游不可用，
// 与派发服务自身返回的应用错误严格区分。
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	encodedParams, err := json.Marshal(params)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化参数失败")
	}

	id := c.nextID.Add(1)
	envelope := Request{
		JSONRPC: Version,
		Method:  method,
		Params:  encodedParams,
		ID:      json.RawMessage(strconv.FormatInt(id, 10)),
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化请求信封失败")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "构建派发请求失败")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return xerrors.Wrap(xerrors.CodeProviderTimeout, err, "派发服务调用超时")
		}
		var netErr net.Error
		if stdErrors.As(err, &netErr) && netErr.Timeout() {
			return xerrors.Wrap(xerrors.CodeProviderTimeout, err, "派发服务调用超时")
		}
		return xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "无法连接派发服务")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return xerrors.New(xerrors.CodeUpstreamUnavailable,
			fmt.Sprintf("派发服务返回异常状态 %d", httpResp.StatusCode))
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "解析派发响应失败")
	}
	if resp.Error != nil {
		return translateError(resp.Error)
	}
	if len(resp.Result) == 0 {
		return xerrors.New(xerrors.CodeUpstreamUnavailable, "派发响应缺少 result")
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "解析 result 失败")
	}
	return nil
}

// translateError 将协议错误对象还原为系统内的错误码，
// 保持派发服务给出的错误类别可区分地向上传播。
func translateError(errObj *ErrorObject) error {
	switch errObj.Code {
	case CodeAgentNotFound:
		return xerrors.New(xerrors.CodeNotFound, errObj.Message)
	case CodeProviderFailure:
		if code, ok := providerCodeFromData(errObj.Data); ok {
			return xerrors.New(code, errObj.Message)
		}
		return xerrors.New(xerrors.CodeProviderTransport, errObj.Message)
	case CodeInvalidRequest, CodeMethodNotFound, CodeInvalidParams:
		return xerrors.New(xerrors.CodeProtocol, errObj.Message)
	default:
		return xerrors.New(xerrors.CodeUnknown, errObj.Message)
	}
}

func providerCodeFromData(data any) (xerrors.Code, bool) {
	m, ok := data.(map[string]any)
	if !ok {
		return "", false
	}
	raw, ok := m["code"].(string)
	if !ok {
		return "", false
	}
	code := xerrors.Code(raw)
	switch code {
	case xerrors.CodeProviderAuth, xerrors.CodeProviderRateLimit,
		xerrors.CodeProviderTimeout, xerrors.CodeProviderTransport:
		return code, true
	}
	return "", false
}
