// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// 通用错误类型
	ErrorTypeValidation ErrorType = "validation_error"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeError      ErrorType = "processing_error"
	ErrorTypeConflict   ErrorType = "conflict"

	// 存档错误：可恢复，拒绝操作并保留原状态
	ErrorTypeSaveCorrupt       ErrorType = "save_corrupt"
	ErrorTypeSchemaUnsupported ErrorType = "schema_unsupported"

	// 编写错误：发布前应由离线校验拦截
	ErrorTypeAuthoring ErrorType = "authoring_error"

	// 守卫缺口：分支点无变体命中且无默认，逻辑致命
	ErrorTypeGuardGap ErrorType = "guard_gap"

	// 运行已因致命错误终止，只能重新开局
	ErrorTypeRunFaulted ErrorType = "run_faulted"
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // 用户友好的错误代码
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewProcessingError 创建处理错误
func NewProcessingError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeError, message, originalError)
}

// NewConflictError 创建冲突错误
func NewConflictError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeConflict, message, originalError)
}

// NewSaveCorruptError 创建存档损坏错误
func NewSaveCorruptError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeSaveCorrupt, message, originalError)
}

// NewSchemaUnsupportedError 创建存档版本不受支持错误
func NewSchemaUnsupportedError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeSchemaUnsupported, message, originalError)
}

// NewAuthoringError 创建剧情编写错误
func NewAuthoringError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeAuthoring, message, originalError)
}

// NewGuardGapError 创建守卫缺口错误
func NewGuardGapError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeGuardGap, message, originalError)
}

// NewRunFaultedError 创建运行已终止错误
func NewRunFaultedError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeRunFaulted, message, originalError)
}

// TypeOf 返回错误链中第一个 AppError 的类型
func TypeOf(err error) (ErrorType, bool) {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type, true
	}
	return "", false
}

func isType(err error, errType ErrorType) bool {
	t, ok := TypeOf(err)
	return ok && t == errType
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool {
	return isType(err, ErrorTypeNotFound)
}

// IsConflictError 检查是否为冲突错误
func IsConflictError(err error) bool {
	return isType(err, ErrorTypeConflict)
}

// IsSaveCorruptError 检查是否为存档损坏错误
func IsSaveCorruptError(err error) bool {
	return isType(err, ErrorTypeSaveCorrupt)
}

// IsSchemaUnsupportedError 检查是否为存档版本不受支持错误
func IsSchemaUnsupportedError(err error) bool {
	return isType(err, ErrorTypeSchemaUnsupported)
}

// IsAuthoringError 检查是否为编写错误
func IsAuthoringError(err error) bool {
	return isType(err, ErrorTypeAuthoring)
}

// IsGuardGapError 检查是否为守卫缺口
func IsGuardGapError(err error) bool {
	return isType(err, ErrorTypeGuardGap)
}

// IsRunFaultedError 检查是否为运行终止错误
func IsRunFaultedError(err error) bool {
	return isType(err, ErrorTypeRunFaulted)
}

// IsRecoverable 存档类错误和输入错误不影响当前运行
func IsRecoverable(err error) bool {
	t, ok := TypeOf(err)
	if !ok {
		return false
	}
	switch t {
	case ErrorTypeAuthoring, ErrorTypeGuardGap, ErrorTypeRunFaulted:
		return false
	}
	return true
}

// IsFatal 编写错误和守卫缺口会终止当前运行
func IsFatal(err error) bool {
	return IsAuthoringError(err) || IsGuardGapError(err)
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeError:
		return "PROCESSING_ERROR"
	case ErrorTypeConflict:
		return "CONFLICT"
	case ErrorTypeSaveCorrupt:
		return "SAVE_CORRUPT"
	case ErrorTypeSchemaUnsupported:
		return "SCHEMA_UNSUPPORTED"
	case ErrorTypeAuthoring:
		return "AUTHORING_ERROR"
	case ErrorTypeGuardGap:
		return "GUARD_GAP"
	case ErrorTypeRunFaulted:
		return "RUN_FAULTED"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		// 如果已经是 AppError，只更新消息
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
		}
	}

	// 否则创建新的 AppError
	return NewAppError(errType, message, err)
}
