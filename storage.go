package shellcache

import (
	"fmt"

	"github.com/always-cache/shellcache/cache"
)

// OpenStore opens the cache provider named in the configuration.
func OpenStore(config StorageConfig) (cache.CacheProvider, error) {
	var store cache.CacheProvider
	var err error
	switch config.Provider {
	case ProviderMemory:
		store = cache.NewMemCache()
	case ProviderSQLite:
		store, err = cache.NewSQLiteCache(config.Path)
	case ProviderLevelDB:
		store, err = cache.NewLevelDBCache(config.Path)
	case ProviderValkey:
		store, err = cache.NewValkeyCache(config.Address, config.KeyPrefix)
	default:
		return nil, fmt.Errorf("Unknown storage provider %q", config.Provider)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

type NamespaceStats struct {
	Name    string `json:"name"`
	Current bool   `json:"current"`
	Entries int    `json:"entries"`
	Bytes   int64  `json:"bytes"`
}

// Stats reports the entry count and stored size of every namespace in the store.
func (w *Worker) Stats() ([]NamespaceStats, error) {
	names, err := w.cache.Namespaces()
	if err != nil {
		return nil, err
	}
	stats := make([]NamespaceStats, 0, len(names))
	for _, name := range names {
		keys, err := w.cache.Keys(name)
		if err != nil {
			return nil, err
		}
		s := NamespaceStats{Name: name, Current: w.namespaces.IsCurrent(name), Entries: len(keys)}
		for _, key := range keys {
			if b, ok, err := w.cache.Match(name, key); err == nil && ok {
				s.Bytes += int64(len(b))
			}
		}
		stats = append(stats, s)
	}
	return stats, nil
}

type EntryInfo struct {
	Method string `json:"method"`
	URL    string `json:"url"`
	Bytes  int    `json:"bytes"`
}

// Entries lists the requests stored in one of the worker's namespaces.
// Keys that do not decode to a request are skipped.
func (w *Worker) Entries(namespace string) ([]EntryInfo, error) {
	if !w.namespaces.Owns(namespace) {
		return nil, fmt.Errorf("%w: %s", cache.ErrorInvalidNamespace, namespace)
	}
	keys, err := w.cache.Keys(namespace)
	if err != nil {
		return nil, err
	}
	entries := make([]EntryInfo, 0, len(keys))
	for _, key := range keys {
		req, err := w.keyer.GetRequestFromKey(key)
		if err != nil {
			w.log.Warn().Err(err).Str("namespace", namespace).Msg("Skipping entry")
			continue
		}
		info := EntryInfo{Method: req.Method, URL: req.URL.String()}
		if b, ok, err := w.cache.Match(namespace, key); err == nil && ok {
			info.Bytes = len(b)
		}
		entries = append(entries, info)
	}
	return entries, nil
}
