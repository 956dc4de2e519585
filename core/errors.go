package core

import (
	"errors"
	"fmt"
)

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 支持错误检查函数（IsXXX），可穿透 fmt.Errorf("%w") 包装
//
// 使用场景：
//   - 图构建：DATA_INTEGRITY（离线批处理致命错误）
//   - 打分：MODEL_UNAVAILABLE / COLD_START（请求期可恢复，走兜底打分）
//   - Store：NOT_FOUND, NOT_SUPPORTED
type DomainError struct {
	Code    string // 错误代码（如 "NOT_FOUND", "DATA_INTEGRITY"）
	Message string // 错误消息
	Module  string // 模块名称（如 "store", "graph", "model"）
	Cause   error  // 底层原因（可选）
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is 让 errors.Is 按 Module+Code 匹配哨兵错误。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Module == t.Module && e.Code == t.Code
}

// IsDomainError 检查错误是否为 DomainError 类型
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取 DomainError，如果不是则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// 错误代码常量
const (
	ErrorCodeNotFound         = "NOT_FOUND"         // 资源不存在
	ErrorCodeNotSupported     = "NOT_SUPPORTED"     // 操作不支持
	ErrorCodeUnavailable      = "UNAVAILABLE"       // 服务不可用
	ErrorCodeInvalidInput     = "INVALID_INPUT"     // 输入无效
	ErrorCodeInternalError    = "INTERNAL_ERROR"    // 内部错误
	ErrorCodeDataIntegrity    = "DATA_INTEGRITY"    // 引用不一致（交互引用了不存在的菜谱等）
	ErrorCodeModelUnavailable = "MODEL_UNAVAILABLE" // 模型/图未加载
	ErrorCodeColdStart        = "COLD_START"        // 实体不在图中，没有学到的向量
	ErrorCodeAlreadyExists    = "ALREADY_EXISTS"    // 资源已存在
)

// 模块名称常量
const (
	ModuleStore   = "store"   // 存储模块
	ModuleGraph   = "graph"   // 图构建
	ModuleModel   = "model"   // 模型
	ModuleProfile = "profile" // 饮食画像
	ModuleService = "service" // 服务模块
	ModuleTrain   = "train"   // 训练
)

var (
	// ErrModelUnavailable 表示训练好的权重或图未加载，调用方应切换到兜底打分。
	ErrModelUnavailable = NewDomainError(ModuleModel, ErrorCodeModelUnavailable, "model: trained weights or graph not loaded")

	// ErrColdStart 表示用户或菜谱不在图中。
	ErrColdStart = NewDomainError(ModuleModel, ErrorCodeColdStart, "model: entity absent from graph embeddings")

	// ErrProfileNotFound 表示用户没有保存过画像。
	ErrProfileNotFound = NewDomainError(ModuleProfile, ErrorCodeNotFound, "profile: not found")

	// ErrProfileExists 表示创建时画像已存在。
	ErrProfileExists = NewDomainError(ModuleProfile, ErrorCodeAlreadyExists, "profile: already exists")
)

// NewDataIntegrityError 创建图构建阶段的引用不一致错误，record 描述出错记录。
func NewDataIntegrityError(record string, format string, args ...any) *DomainError {
	return &DomainError{
		Module:  ModuleGraph,
		Code:    ErrorCodeDataIntegrity,
		Message: fmt.Sprintf("data integrity: %s: %s", record, fmt.Sprintf(format, args...)),
	}
}

// NewInvalidInputError 创建输入校验错误（如画像字段不合法）。
func NewInvalidInputError(module string, cause error) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    ErrorCodeInvalidInput,
		Message: module + ": invalid input",
		Cause:   cause,
	}
}

func hasCode(err error, code string) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == code
	}
	return false
}

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool { return hasCode(err, ErrorCodeNotFound) }

// IsNotSupported 检查错误是否为 NOT_SUPPORTED
func IsNotSupported(err error) bool { return hasCode(err, ErrorCodeNotSupported) }

// IsUnavailable 检查错误是否为 UNAVAILABLE
func IsUnavailable(err error) bool { return hasCode(err, ErrorCodeUnavailable) }

// IsDataIntegrity 检查错误是否为 DATA_INTEGRITY
func IsDataIntegrity(err error) bool { return hasCode(err, ErrorCodeDataIntegrity) }

// IsModelUnavailable 检查错误是否为 MODEL_UNAVAILABLE
func IsModelUnavailable(err error) bool { return hasCode(err, ErrorCodeModelUnavailable) }

// IsColdStart 检查错误是否为 COLD_START
func IsColdStart(err error) bool { return hasCode(err, ErrorCodeColdStart) }

// IsInvalidInput 检查错误是否为 INVALID_INPUT
func IsInvalidInput(err error) bool { return hasCode(err, ErrorCodeInvalidInput) }

// IsAlreadyExists 检查错误是否为 ALREADY_EXISTS
func IsAlreadyExists(err error) bool { return hasCode(err, ErrorCodeAlreadyExists) }
