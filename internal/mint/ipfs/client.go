package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	xerrors "VoiceMCP-Chain/internal/errors"
	"VoiceMCP-Chain/internal/mint"
)

const (
	defaultTimeout = 30 * time.Second
	addPath        = "/api/v0/add"
)

// Config 描述 IPFS 网关的连接信息。ProjectID/ProjectSecret 用于
// 托管网关的 Basic 认证,连本地节点时留空即可。
type Config struct {
	Endpoint      string
	ProjectID     string
	ProjectSecret string
	Timeout       time.Duration
}

// Client 把铸造 metadata 作为 JSON 文档 pin 到 IPFS,
// 返回内容寻址的 ipfs:// URI。
type Client struct {
	endpoint      string
	projectID     string
	projectSecret string
	httpClient    *http.Client
}

var _ mint.Uploader = (*Client)(nil)

// NewClient 根据配置创建 IPFS 客户端。
func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置 IPFS 端点")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		endpoint:      strings.TrimRight(endpoint, "/"),
		projectID:     cfg.ProjectID,
		projectSecret: cfg.ProjectSecret,
		httpClient:    &http.Client{Timeout: timeout},
	}, nil
}

// Upload 实现 mint.Uploader 接口。
func (c *Client) Upload(ctx context.Context, metadata mint.Metadata) (string, error) {
	payload, err := json.Marshal(metadata)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeMintUpload, err, "序列化 metadata 失败")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "metadata.json")
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeMintUpload, err, "构建上传请求失败")
	}
	if _, err := part.Write(payload); err != nil {
		return "", xerrors.Wrap(xerrors.CodeMintUpload, err, "写入 metadata 失败")
	}
	if err := writer.Close(); err != nil {
		return "", xerrors.Wrap(xerrors.CodeMintUpload, err, "构建上传请求失败")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+addPath+"?pin=true", &body)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeMintUpload, err, "构建上传请求失败")
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	if c.projectID != "" {
		httpReq.SetBasicAuth(c.projectID, c.projectSecret)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return "", xerrors.Wrap(xerrors.CodeMintUpload, err, "上传 metadata 超时")
		}
		return "", xerrors.Wrap(xerrors.CodeMintUpload, err, "上传 metadata 失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", xerrors.New(xerrors.CodeMintUpload,
			fmt.Sprintf("IPFS 网关返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))))
	}

	var decoded struct {
		Hash string `json:"Hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", xerrors.Wrap(xerrors.CodeMintUpload, err, "解析 IPFS 响应失败")
	}
	if decoded.Hash == "" {
		return "", xerrors.New(xerrors.CodeMintUpload, "IPFS 响应缺少内容哈希")
	}
	return "ipfs://" + decoded.Hash, nil
}
