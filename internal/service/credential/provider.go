package credential

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	speechmodel "github.com/ssalazarv/voicegate/internal/model/speech"
)

// expirySkew 在到期前提前刷新，避免把临界的凭证交给上游调用。
const expirySkew = 60 * time.Second

// refreshTimeout 单次刷新回路的上限，与调用方的取消解耦。
const refreshTimeout = 15 * time.Second

// Credential 短时有效的供应商访问凭证。值不参与序列化与日志。
type Credential struct {
	Value     string
	ExpiresAt time.Time
}

// Valid 判断凭证在考虑安全余量后是否仍可用。
func (c Credential) Valid(now time.Time) bool {
	if c.Value == "" {
		return false
	}
	return now.Add(expirySkew).Before(c.ExpiresAt)
}

// Provider 按需提供供应商凭证。
type Provider interface {
	Token(ctx context.Context) (Credential, error)
}

// cachingProvider 缓存底层凭证并通过 singleflight 合并并发刷新：
// N 个并发请求最多只观察到一次刷新。
type cachingProvider struct {
	source Provider

	mu     sync.RWMutex
	cached Credential

	group singleflight.Group
}

// NewCaching 包装一个底层提供者，增加缓存与刷新合并。
func NewCaching(source Provider) Provider {
	return &cachingProvider{source: source}
}

func (p *cachingProvider) Token(ctx context.Context) (Credential, error) {
	p.mu.RLock()
	cached := p.cached
	p.mu.RUnlock()

	if cached.Valid(time.Now()) {
		return cached, nil
	}

	// 刷新在与调用方取消解耦的上下文里执行；被取消的调用方放弃等待，
	// 但不会中断为其他请求服务的那次刷新。
	ch := p.group.DoChan("refresh", func() (interface{}, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		cred, err := p.source.Token(refreshCtx)
		if err != nil {
			return Credential{}, err
		}

		p.mu.Lock()
		p.cached = cred
		p.mu.Unlock()

		return cred, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Credential{}, asCredentialError(res.Err)
		}
		return res.Val.(Credential), nil
	case <-ctx.Done():
		return Credential{}, &speechmodel.CredentialError{Reason: "request canceled while waiting for refresh", Err: ctx.Err()}
	}
}

// asCredentialError 保证对外的失败总是 CredentialError。
func asCredentialError(err error) error {
	if _, ok := err.(*speechmodel.CredentialError); ok {
		return err
	}
	return &speechmodel.CredentialError{Reason: "refresh failed", Err: err}
}
