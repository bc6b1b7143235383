package util

import (
	"errors"
	"net/http"
)

// ErrorKind 错误分类，决定返回给客户端的 HTTP 状态码
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindUnauthorized
	KindForbidden
	KindPolicy
	KindNotFound
	KindInternal
)

// AppError 可直接返回给调用方的业务错误
type AppError struct {
	Kind    ErrorKind
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Status() int {
	switch e.Kind {
	case KindValidation, KindPolicy:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{Kind: KindValidation, Message: message}
}

func newError(kind ErrorKind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

var (
	// 认证
	ErrCredentialRequired = newError(KindValidation, "password is required for administrators")
	ErrInvalidCredential  = newError(KindUnauthorized, "invalid password")
	ErrTokenMissing       = newError(KindUnauthorized, "token not provided")
	ErrTokenExpired       = newError(KindUnauthorized, "token expired")
	ErrTokenInvalid       = newError(KindForbidden, "invalid token")
	ErrTokenRevoked       = newError(KindUnauthorized, "token revoked")
	ErrIdentityNotFound   = newError(KindUnauthorized, "user not found")
	ErrForbidden          = newError(KindForbidden, "access denied, administrator role required")

	// 资源
	ErrExamNotFound    = newError(KindNotFound, "exam not found")
	ErrAttemptNotFound = newError(KindNotFound, "attempt not found")

	// 考试策略
	ErrDeadlinePassed     = newError(KindPolicy, "the deadline for this exam has passed")
	ErrAlreadyPassed      = newError(KindPolicy, "you have already passed this exam")
	ErrAttemptsExhausted  = newError(KindPolicy, "you have used all attempts for this exam")
	ErrTimeExpired        = newError(KindPolicy, "the time for this exam has expired")
	ErrInvalidAttempt     = newError(KindPolicy, "invalid or already finished attempt")
	ErrNoQuestions        = newError(KindPolicy, "this exam has no questions")
	ErrAlreadyFinalized   = newError(KindPolicy, "attempt has already been finalized")
	ErrAttemptNotFinished = newError(KindPolicy, "attempt is still in progress")
	ErrNotPassed          = newError(KindPolicy, "certificates are only issued for passed exams")
)

// AsAppError 提取错误链中的 AppError
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
