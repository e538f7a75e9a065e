package cache

import (
	"database/sql"
	"errors"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// CacheProvider is an interface for a cache provider.
// It stores full file bodies together with the metadata needed for
// conditional requests: the last-modified timestamp and the content type.
// Entries are keyed by the normalized request path.
//
// Implementations must be thread-safe!
type CacheProvider interface {
	// Get returns the cache entry for the given path, if it exists.
	// It also returns a boolean indicating whether retrieval was successful.
	Get(path string) (CacheEntry, bool, error)
	// Put stores the given entry, replacing any previous entry for its path.
	Put(CacheEntry) error
	// Purge removes the cache entry for the given path.
	Purge(path string)
	// Has checks if the specified path exists in the cache.
	Has(path string) bool
	// Keys calls the given callback for each cached path.
	Keys(cb func(string))
}

// CacheEntry is one cached file: its full contents at read time plus the
// metadata needed to validate and serve it.
type CacheEntry struct {
	Path         string
	LastModified time.Time // second precision, matches HTTP-date granularity
	ContentType  string
	Body         []byte
}

type MemCache struct {
	mutex *sync.RWMutex
	db    map[string]CacheEntry
}

func NewMemCache() MemCache {
	return MemCache{
		mutex: &sync.RWMutex{},
		db:    make(map[string]CacheEntry),
	}
}

func (m MemCache) Get(path string) (CacheEntry, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entry, ok := m.db[path]
	return entry, ok, nil
}

func (m MemCache) Put(entry CacheEntry) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.db[entry.Path] = entry
	return nil
}

func (m MemCache) Purge(path string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db, path)
}

func (m MemCache) Has(path string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, ok := m.db[path]
	return ok
}

func (m MemCache) Keys(cb func(string)) {
	m.mutex.RLock()
	paths := make([]string, 0, len(m.db))
	for path := range m.db {
		paths = append(paths, path)
	}
	m.mutex.RUnlock()
	for _, path := range paths {
		cb(path)
	}
}

type SQLiteCache struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteCache creates a new cache with the given filename as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteCache(filename string) SQLiteCache {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS files (
		path TEXT PRIMARY KEY,
		last_modified INTEGER,
		content_type TEXT,
		body BLOB
	)`)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		panic(err)
	}
	return SQLiteCache{
		db:         db,
		writeMutex: &sync.Mutex{},
	}
}

func (s SQLiteCache) Get(path string) (CacheEntry, bool, error) {
	entry := CacheEntry{Path: path}
	var lastModified int64
	err := s.db.QueryRow(
		"SELECT last_modified, content_type, body FROM files WHERE path = ?", path,
	).Scan(&lastModified, &entry.ContentType, &entry.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return CacheEntry{}, false, nil
	}
	if err != nil {
		return CacheEntry{}, false, err
	}
	entry.LastModified = time.Unix(lastModified, 0)
	return entry, true, nil
}

func (s SQLiteCache) Put(entry CacheEntry) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO files (path, last_modified, content_type, body) VALUES (?, ?, ?, ?)",
		entry.Path, entry.LastModified.Unix(), entry.ContentType, entry.Body)
	return err
}

func (s SQLiteCache) Purge(path string) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM files WHERE path = ?", path)
	if err != nil {
		panic(err)
	}
}

func (s SQLiteCache) Has(path string) bool {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM files WHERE path = ?", path).Scan(&one)
	return err == nil
}

func (s SQLiteCache) Keys(cb func(string)) {
	rows, err := s.db.Query("SELECT path FROM files")
	if err != nil {
		return
	}
	defer rows.Close()

	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return
		}
		cb(path)
	}
}
