package cache

import (
	"errors"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// ErrMiss is returned by Store.Get for absent or expired keys.
var ErrMiss = errors.New("cache miss")

// Store is a byte-oriented key/value cache with expiry.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte, expiration time.Duration) error
	Delete(key string) error
}

// MemcacheStore implements Store on memcached.
type MemcacheStore struct {
	client *memcache.Client
}

var _ Store = (*MemcacheStore)(nil)

func NewMemcacheStore(servers ...string) *MemcacheStore {
	return &MemcacheStore{
		client: memcache.New(servers...),
	}
}

func (m *MemcacheStore) Get(key string) ([]byte, error) {
	item, err := m.client.Get(key)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, ErrMiss
		}
		return nil, err
	}
	return item.Value, nil
}

func (m *MemcacheStore) Set(key string, value []byte, expiration time.Duration) error {
	return m.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: int32(expiration.Seconds()),
	})
}

func (m *MemcacheStore) Delete(key string) error {
	err := m.client.Delete(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}

// Ping checks that at least one server answers.
func (m *MemcacheStore) Ping() error {
	return m.client.Ping()
}
