package storage

import (
	"bytes"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rack-cache/rack-cache/pkg/header"
)

// DigestHeader carries the entitystore body handle inside stored
// response headers.
const DigestHeader = "X-Content-Digest"

// ErrVaryAsterisk is returned by Store for responses carrying "Vary: *",
// which match no request and therefore cannot be stored.
var ErrVaryAsterisk = errors.New("storage: response varies on *, not storable")

// Variant is one stored (request snapshot, response headers, body handle)
// tuple under a cache key. The body handle lives in ResponseHeader under
// DigestHeader. Request and response clock values are kept so corrected
// age survives the store boundary.
type Variant struct {
	RequestHeader  http.Header
	ResponseHeader http.Header
	Status         int
	RequestTime    time.Time
	ResponseTime   time.Time
}

// Entry is a stored response selected for a specific request, bound to
// its body.
type Entry struct {
	Status       int
	Header       http.Header
	Body         []byte
	RequestTime  time.Time
	ResponseTime time.Time
}

// metaDriver is the raw variant-list persistence underneath a MetaStore.
// read returns nil for an unknown key; purge reports whether the key
// existed. Drivers must be safe for concurrent use.
type metaDriver interface {
	read(key string) ([]Variant, error)
	write(key string, variants []Variant) error
	purge(key string) (bool, error)
}

// MetaStore holds response metadata and body references under opaque
// cache keys, possibly many variants per key. Selection, storage and
// invalidation logic is shared; persistence is delegated to a driver.
type MetaStore struct {
	driver metaDriver
}

func newMetaStore(driver metaDriver) *MetaStore {
	return &MetaStore{driver: driver}
}

// Lookup reads the variant list under key and selects the first variant
// whose stored request headers match the incoming request on every field
// named in the stored Vary header. The body is bound from the entity
// store. A missing body drops the variant opportunistically and counts
// as no match.
func (m *MetaStore) Lookup(req *http.Request, key string, ents EntityStore) (*Entry, error) {
	variants, err := m.driver.read(key)
	if err != nil {
		return nil, err
	}
	for i, variant := range variants {
		if !varyMatches(variant, req.Header) {
			continue
		}
		digest := variant.ResponseHeader.Get(DigestHeader)
		body, err := ents.Read(digest)
		if err != nil {
			log.Debug().Err(err).Str("key", key).Str("digest", digest).
				Msg("Stored body unreadable, dropping variant")
			m.dropVariant(key, variants, i)
			return nil, nil
		}
		return &Entry{
			Status:       variant.Status,
			Header:       variant.ResponseHeader.Clone(),
			Body:         body,
			RequestTime:  variant.RequestTime,
			ResponseTime: variant.ResponseTime,
		}, nil
	}
	return nil, nil
}

// Store writes the entry body to the entity store and prepends a variant
// carrying the body digest to the list under key. Older variants with an
// identical vary snapshot are removed, so storing the same response twice
// leaves one current variant. Returns the body digest.
func (m *MetaStore) Store(req *http.Request, key string, e *Entry, ents EntityStore) (string, error) {
	for _, field := range header.GetList(e.Header, "Vary") {
		if field == "*" {
			return "", ErrVaryAsterisk
		}
	}
	digest, size, err := ents.Write(bytes.NewReader(e.Body))
	if err != nil {
		return "", err
	}
	stored := Variant{
		RequestHeader:  req.Header.Clone(),
		ResponseHeader: e.Header.Clone(),
		Status:         e.Status,
		RequestTime:    e.RequestTime,
		ResponseTime:   e.ResponseTime,
	}
	if stored.RequestHeader == nil {
		stored.RequestHeader = make(http.Header)
	}
	stored.ResponseHeader.Set(DigestHeader, digest)
	stored.ResponseHeader.Set("Content-Length", strconv.FormatInt(size, 10))
	stored.ResponseHeader.Set("Age", "0")

	variants, err := m.driver.read(key)
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Variant list unreadable, rewriting")
		variants = nil
	}
	kept := []Variant{stored}
	snapshot := varySnapshot(stored)
	for _, old := range variants {
		if varySnapshot(old) != snapshot {
			kept = append(kept, old)
		}
	}
	if err := m.driver.write(key, kept); err != nil {
		return "", err
	}
	return digest, nil
}

// Invalidate marks every variant under key as expired, leaving bodies in
// place for possible revalidation.
func (m *MetaStore) Invalidate(key string) error {
	variants, err := m.driver.read(key)
	if err != nil {
		return err
	}
	if len(variants) == 0 {
		return nil
	}
	for i := range variants {
		expireVariant(&variants[i])
	}
	return m.driver.write(key, variants)
}

// Purge drops every variant under key and best-effort purges the bodies
// they referenced. Reports whether the key existed.
func (m *MetaStore) Purge(key string, ents EntityStore) (bool, error) {
	variants, _ := m.driver.read(key)
	found, err := m.driver.purge(key)
	if err != nil {
		return false, err
	}
	for _, variant := range variants {
		if digest := variant.ResponseHeader.Get(DigestHeader); digest != "" {
			if err := ents.Purge(digest); err != nil && !errors.Is(err, ErrNotFound) {
				log.Debug().Err(err).Str("digest", digest).Msg("Could not purge body")
			}
		}
	}
	return found || len(variants) > 0, nil
}

func (m *MetaStore) dropVariant(key string, variants []Variant, i int) {
	kept := make([]Variant, 0, len(variants)-1)
	kept = append(kept, variants[:i]...)
	kept = append(kept, variants[i+1:]...)
	var err error
	if len(kept) == 0 {
		_, err = m.driver.purge(key)
	} else {
		err = m.driver.write(key, kept)
	}
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Could not drop variant")
	}
}

// varyMatches reports whether the stored variant may be used for a
// request with the given headers. Comparison is byte-exact on values
// after stripping surrounding whitespace; absent and empty are equal.
// "Vary: *" matches no request.
func varyMatches(variant Variant, reqHeader http.Header) bool {
	for _, field := range header.GetList(variant.ResponseHeader, "Vary") {
		if field == "*" {
			return false
		}
		stored := strings.TrimSpace(variant.RequestHeader.Get(field))
		received := strings.TrimSpace(reqHeader.Get(field))
		if stored != received {
			return false
		}
	}
	return true
}

// varySnapshot renders the vary-relevant request headers of a variant
// into a comparable string.
func varySnapshot(variant Variant) string {
	fields := header.GetList(variant.ResponseHeader, "Vary")
	for i, field := range fields {
		fields[i] = strings.ToLower(field)
	}
	sort.Strings(fields)
	var b strings.Builder
	for _, field := range fields {
		b.WriteString(field)
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(variant.RequestHeader.Get(field)))
		b.WriteString("\n")
	}
	return b.String()
}

// expireVariant rewrites freshness information so the variant computes as
// stale: Expires is forced into the past and any max-age or s-maxage
// directives collapse to zero. Validators stay intact.
func expireVariant(variant *Variant) {
	h := variant.ResponseHeader
	h.Set("Expires", header.FormatHTTPDate(time.Unix(0, 0)))
	cc := header.ParseCacheControl(h.Values("Cache-Control"))
	if cc.Has("max-age") || cc.Has("s-maxage") {
		cc.Del("s-maxage")
		cc.Set("max-age", "0")
		h.Set("Cache-Control", cc.String())
	}
}
