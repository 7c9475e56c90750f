package speech

import (
	"errors"
	"fmt"
)

// ErrorKind 稳定的错误类别标识，随错误响应一起返回给调用方。
type ErrorKind string

const (
	KindValidation          ErrorKind = "validation_error"
	KindCredential          ErrorKind = "credential_error"
	KindUpstreamRejected    ErrorKind = "upstream_rejected"
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
	KindUpstreamTimeout     ErrorKind = "upstream_timeout"
	KindInternal            ErrorKind = "internal_error"
)

// ValidationError 表示调用方输入缺陷，网关在任何上游调用之前返回。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NewValidationError 构造字段级校验错误。
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// CredentialError 表示凭证文件缺失、损坏或供应商拒绝了刷新探测。
// 凭证本身绝不出现在错误文本里。
type CredentialError struct {
	Reason string
	Err    error
}

func (e *CredentialError) Error() string {
	return "credential: " + e.Reason
}

func (e *CredentialError) Unwrap() error { return e.Err }

// UpstreamKind 区分上游失败的可重试性。
type UpstreamKind int

const (
	UpstreamRejected UpstreamKind = iota
	UpstreamUnavailable
	UpstreamTimeout
)

// UpstreamError 表示单次供应商调用失败；网关不做重试，原样上抛。
type UpstreamError struct {
	Kind    UpstreamKind
	Status  int // vendor HTTP status, 0 when the call never completed
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	switch e.Kind {
	case UpstreamTimeout:
		return "upstream timeout: " + e.Message
	case UpstreamUnavailable:
		return "upstream unavailable: " + e.Message
	default:
		if e.Status != 0 {
			return fmt.Sprintf("upstream rejected [%d]: %s", e.Status, e.Message)
		}
		return "upstream rejected: " + e.Message
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// KindOf 将任意错误归入稳定类别，未知错误归为 internal。
func KindOf(err error) ErrorKind {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}

	var ce *CredentialError
	if errors.As(err, &ce) {
		return KindCredential
	}

	var ue *UpstreamError
	if errors.As(err, &ue) {
		switch ue.Kind {
		case UpstreamTimeout:
			return KindUpstreamTimeout
		case UpstreamUnavailable:
			return KindUpstreamUnavailable
		default:
			return KindUpstreamRejected
		}
	}

	return KindInternal
}
