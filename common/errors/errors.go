package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode 에러 코드 정의
type ErrorCode string

const (
	// Not Found
	ErrCodeOrderNotFound   ErrorCode = "ORDER_NOT_FOUND"
	ErrCodeProductNotFound ErrorCode = "PRODUCT_NOT_FOUND"
	ErrCodeUserNotFound    ErrorCode = "USER_NOT_FOUND"

	// Validation Errors
	ErrCodeEmptyOrder         ErrorCode = "EMPTY_ORDER"
	ErrCodeInsufficientStock  ErrorCode = "INSUFFICIENT_STOCK"
	ErrCodeInvalidStatus      ErrorCode = "INVALID_STATUS"
	ErrCodeInvalidTransition  ErrorCode = "INVALID_TRANSITION"
	ErrCodeInvalidOrder       ErrorCode = "INVALID_ORDER"
	ErrCodeProductUnavailable ErrorCode = "PRODUCT_UNAVAILABLE"
	ErrCodeInvalidRequest     ErrorCode = "INVALID_REQUEST"

	// Access Errors
	ErrCodeUnauthenticated ErrorCode = "UNAUTHENTICATED"
	ErrCodeForbidden       ErrorCode = "FORBIDDEN"

	// Technical Errors
	ErrCodeDatabaseError       ErrorCode = "DATABASE_ERROR"
	ErrCodeConcurrencyConflict ErrorCode = "CONCURRENCY_CONFLICT"
	ErrCodeNetworkError        ErrorCode = "NETWORK_ERROR"
	ErrCodeTimeoutError        ErrorCode = "TIMEOUT_ERROR"
	ErrCodeSerializationError  ErrorCode = "SERIALIZATION_ERROR"
	ErrCodeUnknownError        ErrorCode = "UNKNOWN_ERROR"
)

// DomainError 도메인 에러 구조체
type DomainError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// New 새로운 도메인 에러 생성
func New(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Newf 포맷 메시지로 도메인 에러 생성
func Newf(code ErrorCode, format string, args ...interface{}) *DomainError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 기존 에러를 래핑한 도메인 에러 생성
func Wrap(code ErrorCode, message string, cause error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// CodeOf 에러 체인에서 첫 번째 도메인 에러 코드 추출
func CodeOf(err error) ErrorCode {
	var domainErr *DomainError
	if stderrors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ErrCodeUnknownError
}

// Is 에러 체인에 해당 코드가 포함되어 있는지 확인
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsNotFound 404 계열 에러인지 판단
func IsNotFound(err error) bool {
	switch CodeOf(err) {
	case ErrCodeOrderNotFound, ErrCodeProductNotFound, ErrCodeUserNotFound:
		return true
	}
	return false
}

// IsValidation 입력 검증 에러인지 판단 (400 계열)
func IsValidation(err error) bool {
	switch CodeOf(err) {
	case ErrCodeEmptyOrder, ErrCodeInsufficientStock, ErrCodeInvalidStatus,
		ErrCodeInvalidTransition, ErrCodeInvalidOrder, ErrCodeProductUnavailable, ErrCodeInvalidRequest:
		return true
	}
	return false
}

// IsRetryable 재시도 가능한 에러인지 판단
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case ErrCodeDatabaseError, ErrCodeConcurrencyConflict, ErrCodeNetworkError, ErrCodeTimeoutError:
		return true
	}
	return false
}

// IsBusinessError 비즈니스 에러인지 판단 (재시도 불필요)
func IsBusinessError(err error) bool {
	return IsNotFound(err) || IsValidation(err) ||
		Is(err, ErrCodeForbidden) || Is(err, ErrCodeUnauthenticated)
}

// MessageOf 가장 바깥 도메인 에러의 메시지 (원인 제외)
func MessageOf(err error) string {
	var domainErr *DomainError
	if stderrors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}
