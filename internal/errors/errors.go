package errors

import (
	stdErrors "errors"
	"fmt"
	"sync"
)

// Code 表示系统内的统一错误码。
type Code string

// Severity 描述错误的严重程度，用于告警和审计。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const (
	CodeUnknown         Code = "UNKNOWN"
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"

	// 协议层错误：请求信封本身不合法，永远在本地立即返回。
	CodeProtocol Code = "PROTOCOL_ERROR"

	// 大模型 Provider 错误的细分类别。
	CodeProviderAuth      Code = "PROVIDER_AUTH"
	CodeProviderRateLimit Code = "PROVIDER_RATE_LIMIT"
	CodeProviderTimeout   Code = "PROVIDER_TIMEOUT"
	CodeProviderTransport Code = "PROVIDER_TRANSPORT"

	// 语音桥接错误。
	CodeSpeechFormat   Code = "SPEECH_UNSUPPORTED_FORMAT"
	CodeSpeechProvider Code = "SPEECH_PROVIDER_FAILURE"

	// 网关调用内部派发服务失败。
	CodeUpstreamUnavailable Code = "UPSTREAM_UNAVAILABLE"

	// 铸造流水线错误。
	CodeMintUpload     Code = "MINT_UPLOAD_FAILURE"
	CodeMintSubmission Code = "MINT_SUBMISSION_FAILURE"
	CodeMintRejected   Code = "MINT_LEDGER_REJECTED"

	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodeQueueFailure          Code = "QUEUE_FAILURE"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
)

// Attributes 为错误码提供默认行为。
type Attributes struct {
	Message   string
	Severity  Severity
	Retryable bool
	Alert     bool
}

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnknown:         {Message: "unknown error", Severity: SeverityCritical, Alert: true},
		CodeInvalidArgument: {Message: "invalid argument", Severity: SeverityInfo},
		CodeNotFound:        {Message: "resource not found", Severity: SeverityInfo},
		CodeConflict:        {Message: "resource conflict", Severity: SeverityWarning},
		CodeProtocol:        {Message: "malformed request envelope", Severity: SeverityInfo},

		CodeProviderAuth:      {Message: "provider authentication failed", Severity: SeverityCritical, Alert: true},
		CodeProviderRateLimit: {Message: "provider rate limit exceeded", Severity: SeverityWarning, Retryable: true},
		CodeProviderTimeout:   {Message: "provider call timed out", Severity: SeverityWarning, Retryable: true, Alert: true},
		CodeProviderTransport: {Message: "provider transport failure", Severity: SeverityWarning, Retryable: true},

		CodeSpeechFormat:   {Message: "unsupported audio format", Severity: SeverityInfo},
		CodeSpeechProvider: {Message: "speech provider failure", Severity: SeverityWarning, Retryable: true},

		CodeUpstreamUnavailable: {Message: "upstream service unavailable", Severity: SeverityCritical, Retryable: true, Alert: true},

		CodeMintUpload:     {Message: "metadata upload failed", Severity: SeverityWarning, Alert: true},
		CodeMintSubmission: {Message: "ledger submission failed", Severity: SeverityCritical, Alert: true},
		CodeMintRejected:   {Message: "ledger rejected transaction", Severity: SeverityCritical, Alert: true},

		CodeStorageFailure:        {Message: "storage failure", Severity: SeverityCritical, Retryable: true, Alert: true},
		CodeQueueFailure:          {Message: "queue failure", Severity: SeverityCritical, Retryable: true, Alert: true},
		CodeInitializationFailure: {Message: "service not initialized", Severity: SeverityWarning, Alert: true},
	}
)

// Register 允许业务模块在初始化阶段注册新的错误码描述。
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code] = attr
}

// AttributesOf 返回错误码对应的属性。若未注册则返回 UNKNOWN 的属性。
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// Error 是系统内统一的错误类型。
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
}

// Option 定义可选配置。
type Option func(*Error)

// WithMetadata 附加额外信息。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// New 创建一个新的错误实例。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 在已有错误外包裹统一错误类型。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

// Error 实现 error 接口。
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

// Unwrap 实现 errors.Unwrap。
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 允许通过 errors.Is 判断是否相同错误码。
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回错误信息。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回附加信息。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

// Retryable 判断是否可重试。重试与否始终是调用方的策略，这里只提供默认建议。
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	return AttributesOf(e.code).Retryable
}

// Severity 返回错误严重程度。
func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	return AttributesOf(e.code).Severity
}

// From 尝试从 error 中解析统一错误类型。
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var target *Error
	if stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误对应的错误码。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// IsCode 判断错误是否携带指定错误码。
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsProvider 判断错误是否属于 Provider 类别。
func IsProvider(err error) bool {
	switch CodeOf(err) {
	case CodeProviderAuth, CodeProviderRateLimit, CodeProviderTimeout, CodeProviderTransport:
		return true
	}
	return false
}
