package cache

import (
	"errors"
	"time"

	"github.com/jellydator/ttlcache/v2"
	"golang.org/x/sync/singleflight"
)

// Memo 是带过期时间的进程内缓存：过期或缺失时调用 load 重建，
// 并发的重建请求只执行一次。
type Memo struct {
	c  *ttlcache.Cache
	sf singleflight.Group
}

// NewMemo 创建 Memo；maxAge<=0 表示永不过期。
func NewMemo(maxAge time.Duration) *Memo {
	c := ttlcache.NewCache()
	if maxAge > 0 {
		_ = c.SetTTL(maxAge)
	}
	// 命中不续期：数据最多陈旧 maxAge。
	c.SkipTTLExtensionOnHit(true)
	return &Memo{c: c}
}

// Get 返回 key 的缓存值；缺失时用 load 重建并写回。
func (m *Memo) Get(key string, load func() (any, error)) (any, error) {
	v, err := m.c.Get(key)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, ttlcache.ErrNotFound) {
		return nil, err
	}

	v, err, _ = m.sf.Do(key, func() (any, error) {
		// 等待期间可能已被另一轮重建写入。
		if v, err := m.c.Get(key); err == nil {
			return v, nil
		}
		v, err := load()
		if err != nil {
			return nil, err
		}
		if err := m.c.Set(key, v); err != nil {
			return nil, err
		}
		return v, nil
	})
	return v, err
}

// Peek 只读缓存，不触发重建。
func (m *Memo) Peek(key string) (any, bool) {
	v, err := m.c.Get(key)
	return v, err == nil
}

// Invalidate 丢弃 key，下一次 Get 会重建。
func (m *Memo) Invalidate(key string) {
	_ = m.c.Remove(key)
}

func (m *Memo) Close() error { return m.c.Close() }
