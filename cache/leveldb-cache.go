package cache

import (
	"bytes"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB layout:
//
//	n:<namespace>           -> creation time (unix seconds)
//	e:<namespace>\x00<key>  -> serialized response
type LevelDBCache struct {
	db *leveldb.DB
	// writes that read before they write (namespace deletion) must not interleave
	writeMutex *sync.Mutex
}

func NewLevelDBCache(path string) (LevelDBCache, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return LevelDBCache{}, err
	}
	return LevelDBCache{db: db, writeMutex: &sync.Mutex{}}, nil
}

func namespaceKey(name string) []byte {
	return []byte("n:" + name)
}

func entryPrefix(namespace string) []byte {
	return []byte("e:" + namespace + "\x00")
}

func entryKey(namespace, key string) []byte {
	return append(entryPrefix(namespace), key...)
}

func (l LevelDBCache) OpenNamespace(name string) error {
	if err := validNamespace(name); err != nil {
		return err
	}
	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()
	batch := new(leveldb.Batch)
	if err := l.openIn(batch, name); err != nil {
		return err
	}
	return l.db.Write(batch, nil)
}

// openIn adds the namespace record to the batch unless it already exists.
func (l LevelDBCache) openIn(batch *leveldb.Batch, name string) error {
	ok, err := l.db.Has(namespaceKey(name), nil)
	if err != nil || ok {
		return err
	}
	batch.Put(namespaceKey(name), []byte(strconv.FormatInt(time.Now().Unix(), 10)))
	return nil
}

func (l LevelDBCache) Match(namespace, key string) ([]byte, bool, error) {
	b, err := l.db.Get(entryKey(namespace, key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (l LevelDBCache) Put(namespace, key string, bytes []byte) error {
	return l.PutAll(namespace, []CacheEntry{{Key: key, Bytes: bytes}})
}

func (l LevelDBCache) PutAll(namespace string, entries []CacheEntry) error {
	if err := validNamespace(namespace); err != nil {
		return err
	}
	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()
	batch := new(leveldb.Batch)
	if err := l.openIn(batch, namespace); err != nil {
		return err
	}
	for _, entry := range entries {
		batch.Put(entryKey(namespace, entry.Key), entry.Bytes)
	}
	return l.db.Write(batch, nil)
}

func (l LevelDBCache) Delete(namespace, key string) (bool, error) {
	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()
	ok, err := l.db.Has(entryKey(namespace, key), nil)
	if err != nil || !ok {
		return false, err
	}
	return true, l.db.Delete(entryKey(namespace, key), nil)
}

func (l LevelDBCache) Keys(namespace string) ([]string, error) {
	prefix := entryPrefix(namespace)
	it := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()

	keys := make([]string, 0)
	for it.Next() {
		keys = append(keys, string(bytes.TrimPrefix(it.Key(), prefix)))
	}
	return keys, it.Error()
}

func (l LevelDBCache) Namespaces() ([]string, error) {
	it := l.db.NewIterator(util.BytesPrefix([]byte("n:")), nil)
	defer it.Release()

	names := make([]string, 0)
	for it.Next() {
		names = append(names, string(bytes.TrimPrefix(it.Key(), []byte("n:"))))
	}
	return names, it.Error()
}

func (l LevelDBCache) DeleteNamespace(name string) (bool, error) {
	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()
	ok, err := l.db.Has(namespaceKey(name), nil)
	if err != nil || !ok {
		return false, err
	}

	batch := new(leveldb.Batch)
	it := l.db.NewIterator(util.BytesPrefix(entryPrefix(name)), nil)
	for it.Next() {
		batch.Delete(bytes.Clone(it.Key()))
	}
	it.Release()
	if err := it.Error(); err != nil {
		return false, err
	}
	batch.Delete(namespaceKey(name))
	return true, l.db.Write(batch, nil)
}

func (l LevelDBCache) Close() error {
	return l.db.Close()
}
