package api

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// 公开列表缓存时长。
const publicListTTL = 5 * time.Minute

// ReadCache 缓存公开只读接口的结果，任意写操作后按资源失效。
type ReadCache struct {
	items *cache.Cache
}

// NewReadCache 构造读缓存，ttl<=0 时使用默认值。
func NewReadCache(ttl time.Duration) *ReadCache {
	if ttl <= 0 {
		ttl = publicListTTL
	}
	return &ReadCache{items: cache.New(ttl, 2*ttl)}
}

func (r *ReadCache) get(key string) (any, bool) {
	if r == nil {
		return nil, false
	}
	return r.items.Get(key)
}

func (r *ReadCache) set(key string, value any) {
	if r == nil {
		return
	}
	r.items.SetDefault(key, value)
}

// Invalidate 删除资源对应的缓存。
func (r *ReadCache) Invalidate(key string) {
	if r == nil {
		return
	}
	r.items.Delete(key)
}
