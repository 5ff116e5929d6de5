package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"
)

const DefaultValkeyTimeout = 5 * time.Second

// Valkey layout:
//
//	<prefix>namespaces       set of namespace names
//	<prefix>ns:<namespace>   hash of key -> serialized response
type ValkeyCache struct {
	inner     valkeylib.Client
	keyPrefix string
	timeout   time.Duration
}

// NewValkeyCache connects to the Valkey server at address and checks the connection with a ping.
func NewValkeyCache(address, keyPrefix string) (ValkeyCache, error) {
	inner, err := valkeylib.NewClient(valkeylib.ClientOption{
		InitAddress: []string{address},
	})
	if err != nil {
		return ValkeyCache{}, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultValkeyTimeout)
	defer cancel()
	if err := inner.Do(ctx, inner.B().Ping().Build()).Error(); err != nil {
		inner.Close()
		return ValkeyCache{}, fmt.Errorf("failed to ping valkey: %w", err)
	}

	if keyPrefix != "" && !strings.HasSuffix(keyPrefix, ":") {
		keyPrefix += ":"
	}
	return ValkeyCache{inner: inner, keyPrefix: keyPrefix, timeout: DefaultValkeyTimeout}, nil
}

func (v ValkeyCache) setKey() string {
	return v.keyPrefix + "namespaces"
}

func (v ValkeyCache) hashKey(namespace string) string {
	return v.keyPrefix + "ns:" + namespace
}

func (v ValkeyCache) withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), v.timeout)
}

func (v ValkeyCache) OpenNamespace(name string) error {
	if err := validNamespace(name); err != nil {
		return err
	}
	ctx, cancel := v.withTimeout()
	defer cancel()
	return v.inner.Do(ctx, v.inner.B().Sadd().Key(v.setKey()).Member(name).Build()).Error()
}

func (v ValkeyCache) Match(namespace, key string) ([]byte, bool, error) {
	ctx, cancel := v.withTimeout()
	defer cancel()
	b, err := v.inner.Do(ctx, v.inner.B().Hget().Key(v.hashKey(namespace)).Field(key).Build()).AsBytes()
	if valkeylib.IsValkeyNil(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (v ValkeyCache) Put(namespace, key string, bytes []byte) error {
	return v.PutAll(namespace, []CacheEntry{{Key: key, Bytes: bytes}})
}

// PutAll writes all entries with a single HSET, which the server applies atomically.
func (v ValkeyCache) PutAll(namespace string, entries []CacheEntry) error {
	if err := validNamespace(namespace); err != nil {
		return err
	}
	ctx, cancel := v.withTimeout()
	defer cancel()
	if len(entries) == 0 {
		return v.OpenNamespace(namespace)
	}
	hset := v.inner.B().Hset().Key(v.hashKey(namespace)).FieldValue()
	for _, entry := range entries {
		hset = hset.FieldValue(entry.Key, string(entry.Bytes))
	}
	for _, result := range v.inner.DoMulti(ctx,
		v.inner.B().Sadd().Key(v.setKey()).Member(namespace).Build(),
		hset.Build(),
	) {
		if err := result.Error(); err != nil {
			return err
		}
	}
	return nil
}

func (v ValkeyCache) Delete(namespace, key string) (bool, error) {
	ctx, cancel := v.withTimeout()
	defer cancel()
	n, err := v.inner.Do(ctx, v.inner.B().Hdel().Key(v.hashKey(namespace)).Field(key).Build()).AsInt64()
	return n > 0, err
}

func (v ValkeyCache) Keys(namespace string) ([]string, error) {
	ctx, cancel := v.withTimeout()
	defer cancel()
	keys, err := v.inner.Do(ctx, v.inner.B().Hkeys().Key(v.hashKey(namespace)).Build()).AsStrSlice()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (v ValkeyCache) Namespaces() ([]string, error) {
	ctx, cancel := v.withTimeout()
	defer cancel()
	names, err := v.inner.Do(ctx, v.inner.B().Smembers().Key(v.setKey()).Build()).AsStrSlice()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (v ValkeyCache) DeleteNamespace(name string) (bool, error) {
	ctx, cancel := v.withTimeout()
	defer cancel()
	// entries go first so a failure never leaves entries without their namespace record
	if err := v.inner.Do(ctx, v.inner.B().Del().Key(v.hashKey(name)).Build()).Error(); err != nil {
		return false, err
	}
	n, err := v.inner.Do(ctx, v.inner.B().Srem().Key(v.setKey()).Member(name).Build()).AsInt64()
	return n > 0, err
}

func (v ValkeyCache) Close() error {
	v.inner.Close()
	return nil
}
