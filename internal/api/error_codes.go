// internal/api/error_codes.go
package api

import (
	"net/http"

	apperrors "github.com/yzy0324/neon-tape-vn/internal/errors"
)

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"
	ErrorRateLimited   = "RATE_LIMIT_EXCEEDED"

	// 运行相关错误
	ErrorRunNotFound   = "RUN_NOT_FOUND"
	ErrorChoiceInvalid = "CHOICE_INVALID"
	ErrorRunFaulted    = "RUN_FAULTED"
	ErrorGuardGap      = "GUARD_GAP"
	ErrorAuthoring     = "AUTHORING_ERROR"

	// 存档相关错误
	ErrorSlotInvalid       = "SLOT_INVALID"
	ErrorSlotEmpty         = "SLOT_EMPTY"
	ErrorSaveCorrupt       = "SAVE_CORRUPT"
	ErrorSchemaUnsupported = "SCHEMA_UNSUPPORTED"
	ErrorStepNotFound      = "STEP_NOT_FOUND"
)

// statusForError 把应用错误类型映射为 HTTP 状态码与错误代码。
// 存档类错误是可恢复的输入问题（422），剧情错误是服务端问题（500），
// 已终止的运行需要客户端重新开局（409）。
func statusForError(err error) (int, string) {
	errType, ok := apperrors.TypeOf(err)
	if !ok {
		return http.StatusInternalServerError, ErrorInternalError
	}
	switch errType {
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest, ErrorBadRequest
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound, ErrorNotFound
	case apperrors.ErrorTypeConflict:
		return http.StatusConflict, ErrorConflict
	case apperrors.ErrorTypeSaveCorrupt:
		return http.StatusUnprocessableEntity, ErrorSaveCorrupt
	case apperrors.ErrorTypeSchemaUnsupported:
		return http.StatusUnprocessableEntity, ErrorSchemaUnsupported
	case apperrors.ErrorTypeRunFaulted:
		return http.StatusConflict, ErrorRunFaulted
	case apperrors.ErrorTypeGuardGap:
		return http.StatusInternalServerError, ErrorGuardGap
	case apperrors.ErrorTypeAuthoring:
		return http.StatusInternalServerError, ErrorAuthoring
	default:
		return http.StatusInternalServerError, ErrorInternalError
	}
}
