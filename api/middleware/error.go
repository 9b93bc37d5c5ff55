package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/fyerfyer/pdf-splitter/api/model"
	"github.com/fyerfyer/pdf-splitter/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// 定义应用中的错误类型常量
const (
	ErrorTypeValidation = "VALIDATION_ERROR" // 输入验证错误
	ErrorTypeNotFound   = "NOT_FOUND_ERROR"  // 资源不存在错误
	ErrorTypeConflict   = "CONFLICT_ERROR"   // 资源状态冲突
	ErrorTypeTooLarge   = "TOO_LARGE_ERROR"  // 上传内容过大
	ErrorTypeInternal   = "INTERNAL_ERROR"   // 内部服务器错误
	ErrorTypePipeline   = "PIPELINE_ERROR"   // 拆分流水线错误
)

// AppError 应用错误结构体
type AppError struct {
	Type    string           // 错误类型
	Kind    models.ErrorKind // 流水线错误类型，非流水线错误为空
	Message string           // 错误消息
	Details string           // 详细错误信息
	Code    int              // HTTP状态码
	Err     error            // 原始错误
}

// Error 实现error接口的方法
func (e AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap 返回原始错误
func (e AppError) Unwrap() error {
	return e.Err
}

// NewValidationError 创建输入验证错误
func NewValidationError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeValidation,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadRequest,
	}
}

// NewNotFoundError 创建资源不存在错误
func NewNotFoundError(message string) AppError {
	return AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

// NewConflictError 创建状态冲突错误
func NewConflictError(message string) AppError {
	return AppError{
		Type:    ErrorTypeConflict,
		Message: message,
		Code:    http.StatusConflict,
	}
}

// NewTooLargeError 创建上传过大错误
func NewTooLargeError(message string) AppError {
	return AppError{
		Type:    ErrorTypeTooLarge,
		Message: message,
		Code:    http.StatusRequestEntityTooLarge,
	}
}

// NewInternalError 创建内部服务器错误
func NewInternalError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusInternalServerError,
	}
}

// NewPipelineError 把流水线错误转换为应用错误
// Internal 对应500，MissingColumns 对应422，其余输入错误对应400
func NewPipelineError(pe *models.PipelineError) AppError {
	code := http.StatusBadRequest
	switch pe.Kind {
	case models.KindInternal:
		code = http.StatusInternalServerError
	case models.KindMissingColumns:
		code = http.StatusUnprocessableEntity
	}

	details := ""
	if pe.Err != nil {
		details = pe.Err.Error()
	}

	return AppError{
		Type:    ErrorTypePipeline,
		Kind:    pe.Kind,
		Message: pe.Message,
		Details: details,
		Code:    code,
		Err:     pe,
	}
}

// ToAppError 把任意错误归类为应用错误
func ToAppError(err error) AppError {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var appErrPtr *AppError
	if errors.As(err, &appErrPtr) {
		return *appErrPtr
	}

	var pe *models.PipelineError
	switch {
	case errors.As(err, &pe):
		return NewPipelineError(pe)
	case errors.Is(err, models.ErrJobNotFound):
		e := NewNotFoundError("job not found")
		e.Err = err
		return e
	case errors.Is(err, models.ErrJobNotReady):
		e := NewConflictError("job archive is not ready")
		e.Err = err
		return e
	}

	e := NewInternalError("Internal server error", err.Error())
	e.Err = err
	return e
}

// ErrorMiddleware 统一错误处理中间件
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 捕获 panic
		defer func() {
			if err := recover(); err != nil {
				log.WithFields(logrus.Fields{
					FieldError:   err,
					"stack":      string(debug.Stack()),
					FieldPath:    c.Request.URL.Path,
					FieldTraceID: TraceID(c),
				}).Error("Panic recovered in API request")

				errorResponse := model.NewErrorResponse(
					http.StatusInternalServerError,
					"An unexpected error occurred",
				)
				errorResponse.ErrorKind = string(models.KindInternal)
				errorResponse.TraceID = TraceID(c)

				// 在开发环境中可以返回详细错误
				if gin.Mode() == gin.DebugMode {
					errorResponse.Message = fmt.Sprintf("Panic: %v", err)
				}

				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse)
			}
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		// 取最后一个错误进行处理
		appErr := ToAppError(c.Errors.Last().Err)
		traceID := TraceID(c)

		entry := log.WithFields(logrus.Fields{
			"error_type": appErr.Type,
			"error_kind": appErr.Kind,
			FieldTraceID: traceID,
			FieldPath:    c.Request.URL.Path,
			FieldStatus:  appErr.Code,
		})
		if appErr.Details != "" {
			entry = entry.WithField("details", appErr.Details)
		}
		if appErr.Code >= http.StatusInternalServerError {
			entry.Error(appErr.Message)
		} else {
			entry.Warn(appErr.Message)
		}

		errResp := model.NewErrorResponse(appErr.Code, appErr.Message)
		errResp.TraceID = traceID
		errResp.ErrorKind = string(appErr.Kind)
		if appErr.Kind == "" && appErr.Code >= http.StatusInternalServerError {
			errResp.ErrorKind = string(models.KindInternal)
		}

		// 在开发环境下显示具体错误信息
		if gin.Mode() == gin.DebugMode && appErr.Details != "" {
			errResp.Message = appErr.Message + ": " + appErr.Details
		}

		c.AbortWithStatusJSON(appErr.Code, errResp)
	}
}

// HandleError 在处理器中使用的错误处理辅助函数
func HandleError(c *gin.Context, err error) {
	// 添加错误到上下文中
	_ = c.Error(err)
}
