package cache

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

type SQLiteCache struct {
	db *sql.DB
}

// NewSQLiteCache creates a new cache with the given filename as the db.
func NewSQLiteCache(filename string) (SQLiteCache, error) {
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return SQLiteCache{}, err
	}
	// one connection: writes are serialized and never see a locked database
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		`CREATE TABLE IF NOT EXISTS namespaces (
			name TEXT PRIMARY KEY,
			created_at INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS entries (
			namespace TEXT NOT NULL REFERENCES namespaces (name) ON DELETE CASCADE,
			cache_key TEXT NOT NULL,
			stored_at INTEGER,
			bytes BLOB,
			PRIMARY KEY (namespace, cache_key)
		)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return SQLiteCache{}, err
		}
	}
	return SQLiteCache{db: db}, nil
}

func (s SQLiteCache) OpenNamespace(name string) error {
	if err := validNamespace(name); err != nil {
		return err
	}
	_, err := s.db.Exec("INSERT OR IGNORE INTO namespaces (name, created_at) VALUES (?, ?)", name, time.Now().Unix())
	return err
}

func (s SQLiteCache) Match(namespace, key string) ([]byte, bool, error) {
	var bytes []byte
	err := s.db.QueryRow("SELECT bytes FROM entries WHERE namespace = ? AND cache_key = ?", namespace, key).Scan(&bytes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bytes, true, nil
}

func (s SQLiteCache) Put(namespace, key string, bytes []byte) error {
	return s.PutAll(namespace, []CacheEntry{{Key: key, Bytes: bytes}})
}

func (s SQLiteCache) PutAll(namespace string, entries []CacheEntry) error {
	if err := validNamespace(namespace); err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	now := time.Now().Unix()
	if _, err := tx.Exec("INSERT OR IGNORE INTO namespaces (name, created_at) VALUES (?, ?)", namespace, now); err != nil {
		return err
	}
	for _, entry := range entries {
		_, err := tx.Exec(`INSERT OR REPLACE INTO entries
			(namespace, cache_key, stored_at, bytes) VALUES (?, ?, ?, ?)`,
			namespace, entry.Key, now, entry.Bytes)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s SQLiteCache) Delete(namespace, key string) (bool, error) {
	result, err := s.db.Exec("DELETE FROM entries WHERE namespace = ? AND cache_key = ?", namespace, key)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows > 0, err
}

func (s SQLiteCache) Keys(namespace string) ([]string, error) {
	return s.strings("SELECT cache_key FROM entries WHERE namespace = ? ORDER BY cache_key", namespace)
}

func (s SQLiteCache) Namespaces() ([]string, error) {
	return s.strings("SELECT name FROM namespaces ORDER BY name")
}

func (s SQLiteCache) strings(query string, args ...any) ([]string, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make([]string, 0)
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return values, err
		}
		values = append(values, value)
	}
	return values, rows.Err()
}

func (s SQLiteCache) DeleteNamespace(name string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	if _, err := tx.Exec("DELETE FROM entries WHERE namespace = ?", name); err != nil {
		return false, err
	}
	result, err := tx.Exec("DELETE FROM namespaces WHERE name = ?", name)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, tx.Commit()
}

func (s SQLiteCache) Close() error {
	return s.db.Close()
}
