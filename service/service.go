package service

import (
	"context"
)

// EmbeddingService 是远端句向量骨干模型的统一接口。
// 返回 token 级隐状态与 attention mask，由调用方做 mask 加权池化。
//
// 使用示例：
//
//	svc := service.NewTorchServeClient("http://localhost:8080", "minilm")
//	out, err := svc.EmbedTokens(ctx, &service.EmbedRequest{Texts: docs, MaxLength: 128})
type EmbeddingService interface {
	// EmbedTokens 批量编码
	EmbedTokens(ctx context.Context, req *EmbedRequest) (*EmbedResponse, error)

	// Health 健康检查
	Health(ctx context.Context) error

	// Close 关闭连接
	Close() error
}

// EmbedRequest 编码请求
type EmbedRequest struct {
	// Texts 待编码文本，顺序即返回顺序
	Texts []string

	// MaxLength 截断长度（token 数），0 表示由服务端决定
	MaxLength int
}

// TokenStates 是单个文本的编码结果。
type TokenStates struct {
	// Hidden 每个 token 的隐状态 (tokens × dim)
	Hidden [][]float64 `json:"token_embeddings"`

	// Mask 每个 token 的 attention mask，padding 为 0
	Mask []float64 `json:"attention_mask"`
}

// EmbedResponse 编码响应
type EmbedResponse struct {
	Outputs []TokenStates

	// ModelVersion 模型版本（如果服务返回）
	ModelVersion string
}

// ServiceType 服务类型
type ServiceType string

const (
	ServiceTypeTorchServe ServiceType = "torchserve" // TorchServe
)

// ServiceConfig 服务配置
type ServiceConfig struct {
	// Type 服务类型
	Type ServiceType

	// Endpoint 服务端点，如 "http://localhost:8080"
	Endpoint string

	// ModelName 模型名称
	ModelName string

	// ModelVersion 模型版本
	ModelVersion string

	// Timeout 超时时间（秒）
	Timeout int

	// Auth 认证信息（可选）
	Auth *AuthConfig
}

// AuthConfig 认证配置
type AuthConfig struct {
	Type     string // "basic", "bearer", "api_key"
	Username string
	Password string
	Token    string
	APIKey   string
}
