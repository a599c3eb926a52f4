// Package storage provides the two stores a shared HTTP cache is built
// on: a metastore holding per-key lists of response variants, and a
// content-addressed entitystore holding response bodies. Stores are
// selected by URI; a Storage value resolves URIs to live instances and
// caches the resolutions so one URI maps to one shared store.
package storage

import (
	"fmt"
	"strings"
	"sync"
)

// Storage resolves metastore and entitystore URIs.
//
// Supported schemes:
//
//	heap:/                          in-process volatile map
//	file:/abs/path (or file:rel)    directory tree, one file per entry
//	memcached://host:port[/ns]      network-attached, ns prefixes keys
//	sqlite:/path (or sqlite:)       sqlite database, empty path is in-memory
//	leveldb:/path                   leveldb database
type Storage struct {
	mu       sync.Mutex
	metas    map[string]*MetaStore
	entities map[string]EntityStore
}

func New() *Storage {
	return &Storage{
		metas:    make(map[string]*MetaStore),
		entities: make(map[string]EntityStore),
	}
}

var (
	defaultStorage *Storage
	defaultOnce    sync.Once
)

// Default returns the lazily initialized process-wide Storage, used when
// no explicit Storage is configured.
func Default() *Storage {
	defaultOnce.Do(func() {
		defaultStorage = New()
	})
	return defaultStorage
}

// MetaStore resolves a metastore URI. The same URI always returns the
// same instance.
func (s *Storage) MetaStore(uri string) (*MetaStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.metas[uri]; ok {
		return m, nil
	}
	driver, err := resolveMetaDriver(uri)
	if err != nil {
		return nil, err
	}
	m := newMetaStore(driver)
	s.metas[uri] = m
	return m, nil
}

// EntityStore resolves an entitystore URI. The same URI always returns
// the same instance.
func (s *Storage) EntityStore(uri string) (EntityStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entities[uri]; ok {
		return e, nil
	}
	e, err := resolveEntityStore(uri)
	if err != nil {
		return nil, err
	}
	s.entities[uri] = e
	return e, nil
}

func resolveMetaDriver(uri string) (metaDriver, error) {
	scheme, rest, err := splitScheme(uri)
	if err != nil {
		return nil, err
	}
	switch scheme {
	case "heap":
		return newHeapMeta(), nil
	case "file":
		return &fileMeta{dir: filePath(rest)}, nil
	case "memcached":
		return newMemcachedMeta(uri)
	case "sqlite":
		return newSQLiteMeta(filePath(rest))
	case "leveldb":
		return newLevelDBMeta(filePath(rest))
	}
	return nil, fmt.Errorf("storage: unsupported metastore scheme %q in %s", scheme, uri)
}

func resolveEntityStore(uri string) (EntityStore, error) {
	scheme, rest, err := splitScheme(uri)
	if err != nil {
		return nil, err
	}
	switch scheme {
	case "heap":
		return newHeapEntity(), nil
	case "file":
		return &fileEntity{dir: filePath(rest)}, nil
	case "memcached":
		return newMemcachedEntity(uri)
	case "sqlite":
		return newSQLiteEntity(filePath(rest))
	case "leveldb":
		return newLevelDBEntity(filePath(rest))
	}
	return nil, fmt.Errorf("storage: unsupported entitystore scheme %q in %s", scheme, uri)
}

func splitScheme(uri string) (scheme, rest string, err error) {
	scheme, rest, found := strings.Cut(uri, ":")
	if !found || scheme == "" {
		return "", "", fmt.Errorf("storage: malformed store URI %q", uri)
	}
	return scheme, rest, nil
}

// filePath turns the remainder of a file-like URI into a filesystem path.
// Both file:/abs/path and file:relative/path are accepted.
func filePath(rest string) string {
	return strings.TrimPrefix(rest, "//")
}
