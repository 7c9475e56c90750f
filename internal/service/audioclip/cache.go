package audioclip

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ssalazarv/voicegate/internal/config"
)

var (
	ErrNotFound     = errors.New("audio clip not found")
	ErrInvalidToken = errors.New("invalid or expired clip token")
)

// Clip 一段缓存的合成音频，通过带签名的短时 URL 对外回放。
type Clip struct {
	ID        string
	SessionID string
	Audio     []byte
	Format    string
	CreatedAt time.Time
}

// Cache 进程内音频片段缓存。片段的生命周期与签名令牌一致，
// 过期片段在写入时顺带清理。
type Cache struct {
	mu    sync.RWMutex
	clips map[string]Clip

	secret  string
	ttl     time.Duration
	baseURL string
}

// NewCache 创建片段缓存；未配置 TTS_SECRET 时 Enabled 为假，
// 网关退回内联音频响应。
func NewCache(cfg config.ClipConfig) *Cache {
	return &Cache{
		clips:   make(map[string]Clip),
		secret:  cfg.Secret,
		ttl:     time.Duration(cfg.TokenTTL) * time.Second,
		baseURL: cfg.BaseURL,
	}
}

// Enabled 表示是否可以签发回放链接。
func (c *Cache) Enabled() bool {
	return c.secret != ""
}

// Put 缓存一段音频并返回签名回放 URL。
func (c *Cache) Put(sessionID string, audio []byte, format string) (Clip, string) {
	clip := Clip{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Audio:     audio,
		Format:    format,
		CreatedAt: time.Now().UTC(),
	}

	c.mu.Lock()
	c.purgeLocked()
	c.clips[clip.ID] = clip
	c.mu.Unlock()

	return clip, c.signedURL(clip.ID)
}

// Get 校验令牌并返回片段。
func (c *Cache) Get(id, token string) (Clip, error) {
	if !c.validateToken(id, token) {
		return Clip{}, ErrInvalidToken
	}

	c.mu.RLock()
	clip, ok := c.clips[id]
	c.mu.RUnlock()

	if !ok {
		return Clip{}, ErrNotFound
	}
	return clip, nil
}

func (c *Cache) signedURL(id string) string {
	return fmt.Sprintf("%s/api/audio/%s?token=%s", c.baseURL, id, c.createToken(id))
}

// createToken 生成 "expiry.signature" 形态的令牌。
func (c *Cache) createToken(id string) string {
	expires := time.Now().Add(c.ttl).Unix()
	return fmt.Sprintf("%d.%s", expires, c.sign(id, expires))
}

func (c *Cache) validateToken(id, token string) bool {
	expiresStr, signature, ok := strings.Cut(token, ".")
	if !ok {
		return false
	}

	expires, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil || time.Now().Unix() > expires {
		return false
	}

	return hmac.Equal([]byte(signature), []byte(c.sign(id, expires)))
}

func (c *Cache) sign(id string, expires int64) string {
	mac := hmac.New(sha256.New, []byte(c.secret))
	fmt.Fprintf(mac, "%s:%d", id, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Cache) purgeLocked() {
	cutoff := time.Now().Add(-c.ttl)
	for id, clip := range c.clips {
		if clip.CreatedAt.Before(cutoff) {
			delete(c.clips, id)
		}
	}
}
