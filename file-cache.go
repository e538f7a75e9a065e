package staticache

import (
	"errors"
	"io/fs"

	"github.com/rs/zerolog"

	"github.com/staticache/staticache/cache"
)

// LookupResult classifies the outcome of a cache lookup.
type LookupResult int

const (
	LookupHit LookupResult = iota
	LookupMiss
	LookupLocked
)

// FileCache serves file entries out of a CacheProvider, validating them
// against on-disk modification times. An entry is refreshed only when
// the disk timestamp is strictly newer than the cached one, so a file
// that appears older than what is cached is treated as unchanged and
// the cached LastModified never goes backwards.
//
// The provider is safe for concurrent use. Two handlers racing on the
// same stale path may both re-read the file; both write equivalent
// entries and the last write wins.
type FileCache struct {
	provider cache.CacheProvider
	root     *DocRoot
	locked   map[string]struct{}
	log      zerolog.Logger
}

func NewFileCache(provider cache.CacheProvider, root *DocRoot, locked []string, log zerolog.Logger) *FileCache {
	set := make(map[string]struct{}, len(locked))
	for _, p := range locked {
		if norm, ok := normalizePath(p); ok {
			set[norm] = struct{}{}
		}
	}
	return &FileCache{
		provider: provider,
		root:     root,
		locked:   set,
		log:      log,
	}
}

// Lookup resolves a normalized path to a cache entry. Locked paths
// short-circuit before any filesystem or provider access: locked status
// wins over an existing cache entry and over the file's presence.
func (c *FileCache) Lookup(p string) (cache.CacheEntry, LookupResult) {
	if _, ok := c.locked[p]; ok {
		return cache.CacheEntry{}, LookupLocked
	}

	mtime, err := c.root.ModTime(p)
	if err != nil {
		// Any stat failure looks like 404 to the client, so permission
		// errors and the like are folded into a miss rather than
		// treated as fatal.
		if !errors.Is(err, fs.ErrNotExist) {
			c.log.Debug().Err(err).Str("path", p).Msg("Stat failed, treating as missing")
		}
		return cache.CacheEntry{}, LookupMiss
	}

	entry, ok, err := c.provider.Get(p)
	if err != nil {
		c.log.Error().Err(err).Str("path", p).Msg("Could not read from cache")
	}
	if ok && !mtime.After(entry.LastModified) {
		return entry, LookupHit
	}

	body, contentType, err := c.root.ReadFile(p)
	if err != nil {
		return cache.CacheEntry{}, LookupMiss
	}
	entry = cache.CacheEntry{
		Path:         p,
		LastModified: mtime,
		ContentType:  contentType,
		Body:         body,
	}
	if err := c.provider.Put(entry); err != nil {
		// Failing to cache is not failing to serve.
		c.log.Error().Err(err).Str("path", p).Msg("Could not write to cache")
	}
	return entry, LookupHit
}
