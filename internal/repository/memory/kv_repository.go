package memory

import (
	"context"
	"strings"
	"time"

	"servicelines-be/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

type KVRepository struct {
	cache *cache.Cache
}

var _ contract.KVRepository = (*KVRepository)(nil)

// NewKVRepository keeps entries for ttl after their last write and purges
// expired items every 10 minutes. A non-positive ttl never expires.
func NewKVRepository(ttl time.Duration) *KVRepository {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &KVRepository{
		cache: cache.New(ttl, 10*time.Minute),
	}
}

func cacheKey(sessionID, key string) string {
	return sessionID + "/" + key
}

func (r *KVRepository) Get(_ context.Context, sessionID, key string) ([]byte, bool, error) {
	if x, found := r.cache.Get(cacheKey(sessionID, key)); found {
		value := x.([]byte)
		return append([]byte(nil), value...), true, nil
	}
	return nil, false, nil
}

func (r *KVRepository) Set(_ context.Context, sessionID, key string, value []byte) error {
	r.cache.Set(cacheKey(sessionID, key), append([]byte(nil), value...), cache.DefaultExpiration)
	return nil
}

func (r *KVRepository) Delete(_ context.Context, sessionID, key string) error {
	r.cache.Delete(cacheKey(sessionID, key))
	return nil
}

func (r *KVRepository) Clear(_ context.Context, sessionID string) error {
	prefix := sessionID + "/"
	for k := range r.cache.Items() {
		if strings.HasPrefix(k, prefix) {
			r.cache.Delete(k)
		}
	}
	return nil
}
