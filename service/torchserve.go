package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
)

// TorchServeClient 是 TorchServe 的 REST 客户端，调用句向量模型的自定义 Handler。
//
// REST API 格式：
//   - 推理端点：POST /predictions/{model_name}
//   - 请求体：{"data": ["text", ...], "max_length": 128}
//   - 响应：[{"token_embeddings": [[...]], "attention_mask": [...]}, ...]
//     或 {"outputs": [...]}
type TorchServeClient struct {
	// Endpoint 服务端点
	// REST: "http://localhost:8080"
	Endpoint string

	// ModelName 模型名称
	ModelName string

	// ModelVersion 模型版本（可选，TorchServe 通过模型版本管理）
	ModelVersion string

	// Timeout 超时时间
	Timeout time.Duration

	// Auth 认证信息
	Auth *AuthConfig

	httpClient *http.Client
}

// NewTorchServeClient 创建一个新的 TorchServe 客户端。
func NewTorchServeClient(endpoint, modelName string, opts ...TorchServeOption) *TorchServeClient {
	client := &TorchServeClient{
		Endpoint:  endpoint,
		ModelName: modelName,
		Timeout:   30 * time.Second,
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{
			Timeout: client.Timeout,
		}
	}

	return client
}

// TorchServeOption TorchServe 客户端配置选项
type TorchServeOption func(*TorchServeClient)

// WithTorchServeVersion 设置模型版本
func WithTorchServeVersion(version string) TorchServeOption {
	return func(c *TorchServeClient) {
		c.ModelVersion = version
	}
}

// WithTorchServeTimeout 设置超时时间
func WithTorchServeTimeout(timeout time.Duration) TorchServeOption {
	return func(c *TorchServeClient) {
		c.Timeout = timeout
		if c.httpClient != nil {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithTorchServeAuth 设置认证信息
func WithTorchServeAuth(auth *AuthConfig) TorchServeOption {
	return func(c *TorchServeClient) {
		c.Auth = auth
	}
}

// WithTorchServeHTTPClient 设置自定义 HTTP 客户端
func WithTorchServeHTTPClient(httpClient *http.Client) TorchServeOption {
	return func(c *TorchServeClient) {
		c.httpClient = httpClient
	}
}

// EmbedTokens 批量编码
func (c *TorchServeClient) EmbedTokens(ctx context.Context, req *EmbedRequest) (*EmbedResponse, error) {
	if len(req.Texts) == 0 {
		return &EmbedResponse{ModelVersion: c.ModelVersion}, nil
	}

	endpoint := fmt.Sprintf("%s/predictions/%s", c.Endpoint, url.PathEscape(c.ModelName))
	if c.ModelVersion != "" {
		endpoint = fmt.Sprintf("%s?version=%s", endpoint, url.QueryEscape(c.ModelVersion))
	}

	body := map[string]any{"data": req.Texts}
	if req.MaxLength > 0 {
		body["max_length"] = req.MaxLength
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.addAuth(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("torchserve request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("torchserve error: status=%d, body=%s", resp.StatusCode, string(bodyBytes))
	}

	outputs, err := decodeOutputs(bodyBytes)
	if err != nil {
		return nil, err
	}
	if len(outputs) != len(req.Texts) {
		return nil, fmt.Errorf("torchserve returned %d outputs for %d texts", len(outputs), len(req.Texts))
	}
	for i, o := range outputs {
		if len(o.Mask) != len(o.Hidden) {
			return nil, fmt.Errorf("torchserve output %d: %d tokens but %d mask entries", i, len(o.Hidden), len(o.Mask))
		}
	}

	return &EmbedResponse{
		Outputs:      outputs,
		ModelVersion: c.ModelVersion,
	}, nil
}

// decodeOutputs 兼容裸数组与 {"outputs": [...]} 两种响应。
func decodeOutputs(body []byte) ([]TokenStates, error) {
	var arr []TokenStates
	if err := json.Unmarshal(body, &arr); err == nil {
		return arr, nil
	}
	var obj struct {
		Outputs []TokenStates `json:"outputs"`
	}
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("unable to parse response: %w", err)
	}
	return obj.Outputs, nil
}

// addAuth 添加认证信息到 HTTP 请求
func (c *TorchServeClient) addAuth(req *http.Request) {
	if c.Auth == nil {
		return
	}

	switch c.Auth.Type {
	case "basic":
		req.SetBasicAuth(c.Auth.Username, c.Auth.Password)
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+c.Auth.Token)
	case "api_key":
		req.Header.Set("X-API-Key", c.Auth.APIKey)
	}
}

// Health 健康检查
func (c *TorchServeClient) Health(ctx context.Context) error {
	// TorchServe 健康检查端点：/ping
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint+"/ping", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.addAuth(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check failed: status=%d, body=%s", resp.StatusCode, string(bodyBytes))
	}

	return nil
}

// Close 关闭连接
func (c *TorchServeClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

var _ EmbeddingService = (*TorchServeClient)(nil)
