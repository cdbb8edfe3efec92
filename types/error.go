package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the relay.
type ErrorCode string

// Pipeline error codes
const (
	// ErrUpstreamUnavailable 上游连接被拒绝、被重置或读取中断，由 ingest 重连恢复
	ErrUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"
	// ErrMalformedRecord 单条记录无法解析（JSON 错误、元数不符、非整数）
	ErrMalformedRecord ErrorCode = "MALFORMED_RECORD"
	// ErrSubscriberDelivery 订阅者连接已关闭、损坏或发送超时
	ErrSubscriberDelivery ErrorCode = "SUBSCRIBER_DELIVERY"
	// ErrSubscriberProtocol 非法的 WebSocket 升级请求
	ErrSubscriberProtocol ErrorCode = "SUBSCRIBER_PROTOCOL"
)

// API error codes
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	// Raw 保存触发错误的原始输入（如上游的一行记录），便于诊断
	Raw   string `json:"raw,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithRaw attaches the offending raw input.
func (e *Error) WithRaw(raw string) *Error {
	e.Raw = raw
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
