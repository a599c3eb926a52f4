package storage

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/bradfitz/gomemcache/memcache"
)

// memcached keys are limited to 250 characters with no whitespace, so
// cache keys are hashed before use. Metastore and entitystore records get
// distinct prefixes, letting both URIs share one server and namespace.

// memcachedMeta keeps variant lists as gob values on a memcached server.
type memcachedMeta struct {
	client    *memcache.Client
	namespace string
}

func newMemcachedMeta(uri string) (*memcachedMeta, error) {
	client, namespace, err := memcachedTarget(uri)
	if err != nil {
		return nil, err
	}
	return &memcachedMeta{client: client, namespace: namespace}, nil
}

func (m *memcachedMeta) mcKey(key string) string {
	return m.namespace + "m" + keyDigest(key)
}

func (m *memcachedMeta) read(key string) ([]Variant, error) {
	item, err := m.client.Get(m.mcKey(key))
	if err == memcache.ErrCacheMiss {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeVariants(item.Value)
}

func (m *memcachedMeta) write(key string, variants []Variant) error {
	data, err := encodeVariants(variants)
	if err != nil {
		return err
	}
	return m.client.Set(&memcache.Item{Key: m.mcKey(key), Value: data})
}

func (m *memcachedMeta) purge(key string) (bool, error) {
	err := m.client.Delete(m.mcKey(key))
	if err == memcache.ErrCacheMiss {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// memcachedEntity stores bodies by digest on a memcached server.
type memcachedEntity struct {
	client    *memcache.Client
	namespace string
}

func newMemcachedEntity(uri string) (*memcachedEntity, error) {
	client, namespace, err := memcachedTarget(uri)
	if err != nil {
		return nil, err
	}
	return &memcachedEntity{client: client, namespace: namespace}, nil
}

func (m *memcachedEntity) mcKey(digest string) string {
	return m.namespace + "e" + digest
}

func (m *memcachedEntity) Open(digest string) (io.ReadCloser, error) {
	body, err := m.Read(digest)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (m *memcachedEntity) Read(digest string) ([]byte, error) {
	item, err := m.client.Get(m.mcKey(digest))
	if err == memcache.ErrCacheMiss {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.Value, nil
}

func (m *memcachedEntity) Write(r io.Reader) (string, int64, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return "", 0, err
	}
	digest := contentDigest(body)
	err = m.client.Set(&memcache.Item{Key: m.mcKey(digest), Value: body})
	if err != nil {
		return "", 0, err
	}
	return digest, int64(len(body)), nil
}

func (m *memcachedEntity) Purge(digest string) error {
	err := m.client.Delete(m.mcKey(digest))
	if err == memcache.ErrCacheMiss {
		return ErrNotFound
	}
	return err
}

func memcachedTarget(uri string) (*memcache.Client, string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, "", fmt.Errorf("storage: malformed memcached URI %q: %w", uri, err)
	}
	if u.Host == "" {
		return nil, "", fmt.Errorf("storage: memcached URI %q has no host", uri)
	}
	namespace := strings.Trim(u.Path, "/")
	if namespace != "" {
		namespace += ":"
	}
	return memcache.New(u.Host), namespace, nil
}
