package speech

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	speechmodel "github.com/ssalazarv/voicegate/internal/model/speech"
)

// wrapTransport 把传输层失败归入上游错误类别。调用方主动取消的错误
// 原样保留，网关据此放弃写响应。
func wrapTransport(err error, op string) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &speechmodel.UpstreamError{
			Kind:    speechmodel.UpstreamTimeout,
			Message: op + " deadline exceeded",
			Err:     err,
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return &speechmodel.UpstreamError{
			Kind:    speechmodel.UpstreamTimeout,
			Message: op + " timed out",
			Err:     err,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &speechmodel.UpstreamError{
			Kind:    speechmodel.UpstreamTimeout,
			Message: op + " timed out",
			Err:     err,
		}
	}

	return &speechmodel.UpstreamError{
		Kind:    speechmodel.UpstreamUnavailable,
		Message: op + " transport failure",
		Err:     err,
	}
}

// vendorStatusError 把供应商的非 2xx 状态码归类：5xx 与 429 视为暂时
// 不可用，其余 4xx 视为拒绝。响应体截断后并入消息，便于排障。
func vendorStatusError(status int, body []byte, op string) error {
	detail := truncate(string(body), 200)
	msg := op
	if detail != "" {
		msg = fmt.Sprintf("%s: %s", op, detail)
	}

	kind := speechmodel.UpstreamRejected
	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
		kind = speechmodel.UpstreamUnavailable
	}

	return &speechmodel.UpstreamError{Kind: kind, Status: status, Message: msg}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
