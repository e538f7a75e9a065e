package cache

import (
	"bytes"
	"encoding/gob"

	"github.com/syndtr/goleveldb/leveldb"
)

// LevelDBCache persists entries in a LevelDB database, gob-encoded.
// The underlying database handles concurrent readers and writers.
type LevelDBCache struct {
	db *leveldb.DB
}

// NewLevelDBCache opens (or creates) the database at the given directory.
func NewLevelDBCache(path string) (LevelDBCache, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return LevelDBCache{}, err
	}
	return LevelDBCache{db: db}, nil
}

func (l LevelDBCache) Close() error {
	return l.db.Close()
}

func (l LevelDBCache) Get(path string) (CacheEntry, bool, error) {
	b, err := l.db.Get([]byte(path), nil)
	if err == leveldb.ErrNotFound {
		return CacheEntry{}, false, nil
	}
	if err != nil {
		return CacheEntry{}, false, err
	}
	var entry CacheEntry
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&entry); err != nil {
		return CacheEntry{}, false, err
	}
	return entry, true, nil
}

func (l LevelDBCache) Put(entry CacheEntry) error {
	buf := &bytes.Buffer{}
	if err := gob.NewEncoder(buf).Encode(entry); err != nil {
		return err
	}
	return l.db.Put([]byte(entry.Path), buf.Bytes(), nil)
}

func (l LevelDBCache) Purge(path string) {
	_ = l.db.Delete([]byte(path), nil)
}

func (l LevelDBCache) Has(path string) bool {
	ok, err := l.db.Has([]byte(path), nil)
	return ok && err == nil
}

func (l LevelDBCache) Keys(cb func(string)) {
	it := l.db.NewIterator(nil, nil)
	defer it.Release()
	for it.Next() {
		cb(string(it.Key()))
	}
}
