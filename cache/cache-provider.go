package cache

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
)

var ErrorInvalidNamespace = fmt.Errorf("Invalid namespace name")

// CacheProvider is an interface for a cache provider.
// It stores and retrieves []byte values, which represent HTTP responses,
// in named namespaces. Values are stored under canonical request keys.
//
// Implementations must be thread-safe!
// Single operations must be atomic, and PutAll must write all entries or none.
type CacheProvider interface {
	// OpenNamespace creates the namespace if it does not exist yet.
	OpenNamespace(name string) error
	// Match returns the stored value for the key in the namespace.
	// It also returns a boolean indicating whether retrieval was successful.
	// A namespace that does not exist is a miss, not an error.
	Match(namespace, key string) ([]byte, bool, error)
	// Put stores the value under the key, replacing any previous value.
	// The namespace is created if needed.
	Put(namespace, key string, bytes []byte) error
	// PutAll stores all entries in a single all-or-nothing write.
	PutAll(namespace string, entries []CacheEntry) error
	// Delete removes a single entry and reports whether it existed.
	Delete(namespace, key string) (bool, error)
	// Keys returns the sorted keys stored in the namespace.
	Keys(namespace string) ([]string, error)
	// Namespaces returns the sorted names of all namespaces.
	Namespaces() ([]string, error)
	// DeleteNamespace removes the namespace and all of its entries,
	// and reports whether it existed.
	DeleteNamespace(name string) (bool, error)
	// Close releases the underlying storage.
	Close() error
}

type CacheEntry struct {
	Key   string
	Bytes []byte
}

func validNamespace(name string) error {
	if name == "" || bytes.IndexByte([]byte(name), 0) >= 0 {
		return fmt.Errorf("%w: %q", ErrorInvalidNamespace, name)
	}
	return nil
}

type MemCache struct {
	mutex *sync.RWMutex
	db    map[string]map[string][]byte
}

func NewMemCache() MemCache {
	return MemCache{
		mutex: &sync.RWMutex{},
		db:    make(map[string]map[string][]byte),
	}
}

func (m MemCache) OpenNamespace(name string) error {
	if err := validNamespace(name); err != nil {
		return err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.open(name)
	return nil
}

// open must be called with the write lock held.
func (m MemCache) open(name string) map[string][]byte {
	ns, ok := m.db[name]
	if !ok {
		ns = make(map[string][]byte)
		m.db[name] = ns
	}
	return ns
}

func (m MemCache) Match(namespace, key string) ([]byte, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	ns, ok := m.db[namespace]
	if !ok {
		return nil, false, nil
	}
	value, ok := ns[key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(value), true, nil
}

func (m MemCache) Put(namespace, key string, value []byte) error {
	return m.PutAll(namespace, []CacheEntry{{Key: key, Bytes: value}})
}

func (m MemCache) PutAll(namespace string, entries []CacheEntry) error {
	if err := validNamespace(namespace); err != nil {
		return err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	ns := m.open(namespace)
	for _, entry := range entries {
		ns[entry.Key] = bytes.Clone(entry.Bytes)
	}
	return nil
}

func (m MemCache) Delete(namespace, key string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	ns, ok := m.db[namespace]
	if !ok {
		return false, nil
	}
	_, ok = ns[key]
	delete(ns, key)
	return ok, nil
}

func (m MemCache) Keys(namespace string) ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	keys := make([]string, 0, len(m.db[namespace]))
	for key := range m.db[namespace] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m MemCache) Namespaces() ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	names := make([]string, 0, len(m.db))
	for name := range m.db {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m MemCache) DeleteNamespace(name string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	_, ok := m.db[name]
	delete(m.db, name)
	return ok, nil
}

func (m MemCache) Close() error {
	return nil
}
