package service

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// NewEmbeddingService 根据配置创建 EmbeddingService 实例（工厂方法）。
func NewEmbeddingService(config *ServiceConfig) (EmbeddingService, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	timeout := time.Duration(config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	switch config.Type {
	case ServiceTypeTorchServe:
		opts := []TorchServeOption{
			WithTorchServeTimeout(timeout),
		}
		if config.ModelVersion != "" {
			opts = append(opts, WithTorchServeVersion(config.ModelVersion))
		}
		if config.Auth != nil {
			opts = append(opts, WithTorchServeAuth(config.Auth))
		}
		return NewTorchServeClient(config.Endpoint, config.ModelName, opts...), nil

	default:
		return nil, fmt.Errorf("unsupported service type: %s", config.Type)
	}
}

// ValidateConfig 验证服务配置
func ValidateConfig(config *ServiceConfig) error {
	if config == nil {
		return fmt.Errorf("config is required")
	}
	if config.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if !strings.HasPrefix(config.Endpoint, "http://") && !strings.HasPrefix(config.Endpoint, "https://") {
		return fmt.Errorf("endpoint must be an http(s) url: %s", config.Endpoint)
	}
	if config.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	return nil
}

// TestConnection 测试服务连接
func TestConnection(ctx context.Context, svc EmbeddingService) error {
	if svc == nil {
		return fmt.Errorf("service is nil")
	}
	return svc.Health(ctx)
}
