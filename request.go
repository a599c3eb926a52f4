package rackcache

import (
	"net/http"
	"time"

	"github.com/rack-cache/rack-cache/pkg/header"
)

// Request is the engine's parsed view of an incoming HTTP request: the
// underlying request plus its Cache-Control directives.
type Request struct {
	*http.Request
	cc header.CacheControl
}

func newRequest(r *http.Request) *Request {
	return &Request{
		Request: r,
		cc:      header.ParseCacheControl(r.Header.Values("Cache-Control")),
	}
}

// NoCache reports whether the request forbids serving from cache without
// revalidation.
func (r *Request) NoCache() bool {
	return r.cc.Has("no-cache")
}

// MaxAge returns the request's max-age directive.
func (r *Request) MaxAge() (time.Duration, bool) {
	return r.cc.Duration("max-age")
}

// MaxStale returns the request's max-stale directive.
func (r *Request) MaxStale() (time.Duration, bool) {
	return r.cc.Duration("max-stale")
}

// MinFresh returns the request's min-fresh directive.
func (r *Request) MinFresh() (time.Duration, bool) {
	return r.cc.Duration("min-fresh")
}

// OnlyIfCached reports whether the client wants an answer from cache
// only.
func (r *Request) OnlyIfCached() bool {
	return r.cc.Has("only-if-cached")
}

// IsPrivate reports whether any of the given header fields is present on
// the request, forcing private treatment of the response.
func (r *Request) IsPrivate(privateHeaders []string) bool {
	for _, field := range privateHeaders {
		if !header.FieldAbsent(r.Header, field) {
			return true
		}
	}
	return false
}
