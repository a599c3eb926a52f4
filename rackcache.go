// Package rackcache implements an HTTP/1.1 caching reverse proxy
// middleware. It sits between a client and a backend handler, serving
// cacheable content from storage when possible, revalidating stale
// entries with conditional requests, and invalidating stored entries on
// unsafe methods.
package rackcache

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rack-cache/rack-cache/pkg/header"
	"github.com/rack-cache/rack-cache/storage"
)

// TraceHeader carries the request trace in responses.
const TraceHeader = "X-Rack-Cache"

// Cache is the caching engine. It is immutable after New and safe for
// concurrent use: per-request state lives in a transaction value created
// on each call.
type Cache struct {
	config Config
	log    zerolog.Logger
}

// New creates a caching engine from the given configuration. The
// configured stores are resolved eagerly so a misconfigured URI fails
// fast.
func New(config Config) (*Cache, error) {
	cfg := config.withDefaults()
	logger := log.Logger
	if config.Logger != nil {
		logger = *config.Logger
	}
	if _, err := cfg.Storage.MetaStore(cfg.Metastore); err != nil {
		return nil, err
	}
	if _, err := cfg.Storage.EntityStore(cfg.Entitystore); err != nil {
		return nil, err
	}
	return &Cache{config: cfg, log: logger}, nil
}

// Middleware wraps a backend handler with the caching engine.
func (c *Cache) Middleware(backend http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.serve(w, r, backend)
	})
}

// transaction is the mutable state of one request through the engine.
type transaction struct {
	cfg     Config
	backend http.Handler
	req     *Request
	trace   Trace
	meta    *storage.MetaStore
	entity  storage.EntityStore
	log     zerolog.Logger

	cacheKey string
}

func (c *Cache) serve(w http.ResponseWriter, r *http.Request, backend http.Handler) {
	cfg := c.config.overlay(optionsFrom(r.Context()))
	txn := &transaction{
		cfg:     cfg,
		backend: backend,
		req:     newRequest(r),
		log:     c.log,
	}
	meta, err := cfg.Storage.MetaStore(cfg.Metastore)
	if err == nil {
		txn.meta = meta
		txn.entity, err = cfg.Storage.EntityStore(cfg.Entitystore)
	}
	if err != nil {
		c.log.Error().Err(err).Msg("Could not resolve cache store")
		http.Error(w, "cache store misconfigured", http.StatusInternalServerError)
		return
	}

	var res *Response
	switch {
	case r.Method == "PURGE":
		res = txn.purge()
	case r.Method == http.MethodGet || r.Method == http.MethodHead:
		if r.Header.Get("Expect") != "" {
			res = txn.pass()
		} else {
			res = txn.lookup()
		}
	default:
		res = txn.invalidate()
	}

	txn.finish(w, res)
}

func (t *transaction) record(event Event) {
	t.trace = append(t.trace, event)
}

func (t *transaction) key() string {
	if t.cacheKey == "" {
		t.cacheKey = t.cfg.CacheKey(t.req.Request)
	}
	return t.cacheKey
}

// pass forwards the request unchanged, never consulting the cache.
func (t *transaction) pass() *Response {
	t.record(EventPass)
	return t.forward(t.req.Request)
}

// invalidate marks every stored variant under the request's key as
// expired, then proceeds as pass. Invalidation failure only costs
// freshness of later reads, so the request still goes through.
func (t *transaction) invalidate() *Response {
	t.record(EventInvalidate)
	if err := t.meta.Invalidate(t.key()); err != nil {
		t.log.Error().Err(err).Str("key", t.key()).Msg("Could not invalidate cache entries")
	}
	return t.pass()
}

// purge drops every stored variant under the request's key and answers
// 200 with no body. Purging a nonexistent key is a no-op.
func (t *transaction) purge() *Response {
	t.record(EventPurge)
	if _, err := t.meta.Purge(t.key(), t.entity); err != nil {
		t.log.Error().Err(err).Str("key", t.key()).Msg("Could not purge cache entries")
	}
	return NewResponse(http.StatusOK, make(http.Header), nil)
}

// lookup tries to serve the request from cache, falling through to fetch
// on a miss and to validate on a stale hit.
func (t *transaction) lookup() *Response {
	if t.req.NoCache() && t.cfg.AllowReload {
		t.record(EventReload)
		return t.fetch()
	}
	entry, err := t.meta.Lookup(t.req.Request, t.key(), t.entity)
	if err != nil {
		t.log.Error().Err(err).Str("key", t.key()).Msg("Cache lookup failed, treating as miss")
		entry = nil
	}
	if entry == nil {
		t.record(EventMiss)
		return t.fetch()
	}
	res := entryResponse(entry)
	if t.freshEnough(res) {
		t.record(EventFresh)
		res.setAgeHeader()
		return res
	}
	t.record(EventStale)
	return t.validate(res)
}

// freshEnough reports whether a stored response may be served without
// revalidation: it must be fresh, and when revalidation is allowed a
// request max-age additionally bounds the acceptable age.
func (t *transaction) freshEnough(res *Response) bool {
	if !res.Fresh() {
		return false
	}
	if t.cfg.AllowRevalidate {
		if maxAge, ok := t.req.MaxAge(); ok {
			return maxAge > 0 && maxAge >= res.Age()
		}
	}
	return true
}

// validate revalidates a stale entry with a conditional GET. A 304 keeps
// the stored body under refreshed headers; anything else is served as
// the backend sent it and replaces the entry only if it is cacheable.
func (t *transaction) validate(entry *Response) *Response {
	vreq := t.req.Clone(t.req.Context())
	vreq.Method = http.MethodGet
	if lastModified := entry.LastModified(); lastModified != "" {
		vreq.Header.Set("If-Modified-Since", lastModified)
	} else {
		vreq.Header.Del("If-Modified-Since")
	}
	if etag := entry.ETag(); etag != "" {
		vreq.Header.Set("If-None-Match", etag)
	} else {
		vreq.Header.Del("If-None-Match")
	}

	res := t.forward(vreq)
	if res.Status == http.StatusNotModified {
		t.record(EventValid)
		merged := mergeValidated(entry, res)
		if merged.Cacheable() {
			t.store(merged)
		}
		return merged
	}
	t.record(EventInvalid)
	if res.Cacheable() {
		t.store(res)
	}
	return res
}

// mergeValidated clones the stored entry and refreshes the headers a 304
// is allowed to update.
func mergeValidated(entry, res *Response) *Response {
	h := entry.Header.Clone()
	h.Del("Age")
	for _, field := range []string{"Date", "Expires", "Cache-Control", "ETag", "Last-Modified"} {
		if value := res.Header.Get(field); value != "" {
			h.Set(field, value)
		}
	}
	merged := NewResponse(entry.Status, h, entry.Body)
	merged.RequestTime = res.RequestTime
	merged.ResponseTime = res.ResponseTime
	return merged
}

// fetch obtains the response from the backend with an unconditional GET
// and stores it if cacheable.
func (t *transaction) fetch() *Response {
	freq := t.req.Clone(t.req.Context())
	freq.Method = http.MethodGet
	freq.Header.Del("If-Modified-Since")
	freq.Header.Del("If-None-Match")

	res := t.forward(freq)

	if t.req.IsPrivate(t.cfg.PrivateHeaders) && !res.IsPublic() {
		res.MarkPrivate()
	} else if t.cfg.DefaultTTL > 0 && !res.MustRevalidate() {
		if _, ok := res.FreshnessLifetime(); !ok {
			res.SetTTL(t.cfg.DefaultTTL)
		}
	}

	if res.Cacheable() {
		t.store(res)
	}
	return res
}

// store persists the response. Storage is an optimization: on failure
// the response is still served, no entry persists, and the trace shows
// no store event.
func (t *transaction) store(res *Response) {
	entry := &storage.Entry{
		Status:       res.Status,
		Header:       res.Header,
		Body:         res.Body,
		RequestTime:  res.RequestTime,
		ResponseTime: res.ResponseTime,
	}
	if _, err := t.meta.Store(t.req.Request, t.key(), entry, t.entity); err != nil {
		t.log.Error().Err(err).Str("key", t.key()).Msg("Could not store response")
		return
	}
	t.record(EventStore)
	res.setAgeHeader()
}

// forward sends the request to the backend and captures its response
// along with the clock values needed for age correction.
func (t *transaction) forward(req *http.Request) *Response {
	saver := newResponseSaver()
	requestTime := time.Now()
	t.backend.ServeHTTP(saver, req)
	res := NewResponse(saver.StatusCode(), saver.Header(), saver.body.Bytes())
	res.RequestTime = requestTime
	res.ResponseTime = time.Now()
	return res
}

// finish post-processes the state machine's response and writes it to
// the client: conditional downgrade to 304, HEAD body stripping, the
// trace header, and the verbose log line.
func (t *transaction) finish(w http.ResponseWriter, res *Response) {
	if res.Status == http.StatusOK && t.notModified(res) {
		res.Status = http.StatusNotModified
		res.Body = nil
		res.Header.Del("Content-Type")
		res.Header.Del("Content-Length")
	}
	if t.req.Method == http.MethodHead {
		res.Body = nil
	}
	res.Header.Del(storage.DigestHeader)
	res.Header.Set(TraceHeader, t.trace.String())
	if !t.cfg.Quiet {
		t.log.Info().Msgf("cache: [%s %s] %s", t.req.Method, t.req.URL.RequestURI(), t.trace)
	}
	header.Copy(w.Header(), res.Header)
	w.WriteHeader(res.Status)
	if len(res.Body) > 0 {
		w.Write(res.Body)
	}
}

// notModified reports whether the client's conditional headers are
// satisfied by the response, allowing a 304 downgrade.
func (t *transaction) notModified(res *Response) bool {
	if candidates := header.GetList(t.req.Header, "If-None-Match"); len(candidates) > 0 {
		etag := res.ETag()
		if etag == "" {
			return false
		}
		for _, candidate := range candidates {
			if candidate == "*" || candidate == etag {
				return true
			}
		}
		return false
	}
	if imsStr := t.req.Header.Get("If-Modified-Since"); imsStr != "" {
		ims, err := header.HTTPDate(imsStr)
		if err != nil {
			return false
		}
		lmStr := res.LastModified()
		if lmStr == "" {
			return false
		}
		lastModified, err := header.HTTPDate(lmStr)
		if err != nil {
			return false
		}
		return !lastModified.After(ims)
	}
	return false
}

// entryResponse rebuilds a Response from a stored entry. Entries from
// older records without clock values fall back to the Date header.
func entryResponse(e *storage.Entry) *Response {
	res := NewResponse(e.Status, e.Header, e.Body)
	if !e.RequestTime.IsZero() {
		res.RequestTime = e.RequestTime
	}
	if !e.ResponseTime.IsZero() {
		res.ResponseTime = e.ResponseTime
	} else {
		res.ResponseTime = res.Date()
	}
	return res
}
