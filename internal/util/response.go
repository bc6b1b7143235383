package util

import (
	"examhub_backend/pkg/logger"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse 所有错误响应的统一结构
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse 无数据的操作结果
type MessageResponse struct {
	Message string `json:"message"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

func Message(c *gin.Context, message string) {
	c.JSON(http.StatusOK, MessageResponse{Message: message})
}

func Error(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, ErrorResponse{Error: message})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error",
		zap.String("path", c.FullPath()),
		zap.String("method", c.Request.Method),
		zap.String("cause", errorDetail(err)),
	)
	InternalServerError(c)
}

// RespondError 将业务错误映射为 HTTP 响应，未知错误按 500 处理并记录日志
func RespondError(c *gin.Context, err error) {
	if appErr, ok := AsAppError(err); ok {
		if appErr.Kind == KindInternal {
			LogInternalError(c, err)
			return
		}
		Error(c, appErr.Status(), appErr.Message)
		return
	}
	LogInternalError(c, err)
}

// errorDetail 带 pkg/errors 堆栈的完整错误信息
func errorDetail(err error) string {
	return fmt.Sprintf("%+v", err)
}
