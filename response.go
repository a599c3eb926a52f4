package rackcache

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rack-cache/rack-cache/pkg/header"
)

// Response is a backend or cached response together with the freshness
// arithmetic a shared cache performs on it. RequestTime and ResponseTime
// are the clock values around the backend call that produced it; they
// feed the corrected age calculation and survive the store boundary.
type Response struct {
	Status       int
	Header       http.Header
	Body         []byte
	RequestTime  time.Time
	ResponseTime time.Time

	cc header.CacheControl
}

// statuses eligible for storage by a shared cache
var cacheableStatus = map[int]bool{
	http.StatusOK:                   true,
	http.StatusNonAuthoritativeInfo: true,
	http.StatusMultipleChoices:      true,
	http.StatusMovedPermanently:     true,
	http.StatusFound:                true,
	http.StatusNotFound:             true,
	http.StatusGone:                 true,
}

// NewResponse builds a Response over the given status, headers and body.
// A missing Date header is synthesized as now; request and response
// times default to now and may be overwritten by the caller.
func NewResponse(status int, h http.Header, body []byte) *Response {
	if h == nil {
		h = make(http.Header)
	}
	now := time.Now()
	if h.Get("Date") == "" {
		h.Set("Date", header.FormatHTTPDate(now))
	}
	return &Response{
		Status:       status,
		Header:       h,
		Body:         body,
		RequestTime:  now,
		ResponseTime: now,
		cc:           header.ParseCacheControl(h.Values("Cache-Control")),
	}
}

func (r *Response) setCacheControl() {
	r.Header.Set("Cache-Control", r.cc.String())
}

// Date returns the value of the Date header. The constructor guarantees
// the header is present; an unparsable value falls back to the response
// clock.
func (r *Response) Date() time.Time {
	date, err := header.HTTPDate(r.Header.Get("Date"))
	if err != nil {
		return r.ResponseTime
	}
	return date
}

// Age returns the current age of the response: the greater of its
// apparent age and its corrected age at reception, plus the time elapsed
// since ResponseTime. It is never negative.
func (r *Response) Age() time.Duration {
	resident := time.Since(r.ResponseTime)
	if resident < 0 {
		resident = 0
	}
	apparent := r.ResponseTime.Sub(r.Date())
	if apparent < 0 {
		apparent = 0
	}
	delay := r.ResponseTime.Sub(r.RequestTime)
	if delay < 0 {
		delay = 0
	}
	corrected := r.headerAge() + delay
	age := apparent
	if corrected > age {
		age = corrected
	}
	return age + resident
}

func (r *Response) headerAge() time.Duration {
	seconds, err := strconv.ParseUint(r.Header.Get("Age"), 10, 32)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// FreshnessLifetime returns how long the response stays fresh from the
// moment it was generated: s-maxage, else max-age, else Expires minus
// Date. The boolean is false when the response carries no freshness
// information at all.
func (r *Response) FreshnessLifetime() (time.Duration, bool) {
	if lifetime, ok := r.cc.Duration("s-maxage"); ok {
		return lifetime, true
	}
	if lifetime, ok := r.cc.Duration("max-age"); ok {
		return lifetime, true
	}
	if expiresStr := r.Header.Get("Expires"); expiresStr != "" {
		expires, err := header.HTTPDate(expiresStr)
		if err != nil {
			// an unparsable Expires means "already expired"
			return 0, true
		}
		lifetime := expires.Sub(r.Date())
		if lifetime < 0 {
			lifetime = 0
		}
		return lifetime, true
	}
	return 0, false
}

// TTL returns the remaining freshness lifetime. The boolean is false
// when the response has no freshness information.
func (r *Response) TTL() (time.Duration, bool) {
	lifetime, ok := r.FreshnessLifetime()
	if !ok {
		return 0, false
	}
	return lifetime - r.Age(), true
}

// Fresh reports whether the response's TTL is known and positive.
func (r *Response) Fresh() bool {
	ttl, ok := r.TTL()
	return ok && ttl > 0
}

// SetTTL sets the freshness lifetime to d by writing a max-age directive
// and removing any stale Expires header. The remaining TTL is then d minus
// the current age.
func (r *Response) SetTTL(d time.Duration) {
	r.cc.Del("s-maxage")
	r.cc.Set("max-age", strconv.Itoa(int(d/time.Second)))
	r.setCacheControl()
	r.Header.Del("Expires")
}

// MarkPrivate flags the response as private, clearing any public
// directive.
func (r *Response) MarkPrivate() {
	r.cc.Del("public")
	r.cc.Set("private", "")
	r.setCacheControl()
}

// IsPublic reports an explicit public directive.
func (r *Response) IsPublic() bool { return r.cc.Has("public") }

// IsPrivate reports an explicit private directive.
func (r *Response) IsPrivate() bool { return r.cc.Has("private") }

// NoStore reports an explicit no-store directive.
func (r *Response) NoStore() bool { return r.cc.Has("no-store") }

// MustRevalidate reports whether the response forbids serving stale,
// via either must-revalidate or proxy-revalidate.
func (r *Response) MustRevalidate() bool {
	return r.cc.Has("must-revalidate") || r.cc.Has("proxy-revalidate")
}

// ETag returns the response's entity tag validator, if any.
func (r *Response) ETag() string {
	return r.Header.Get("ETag")
}

// LastModified returns the response's modification time validator, if
// any.
func (r *Response) LastModified() string {
	return r.Header.Get("Last-Modified")
}

// HasValidator reports whether the response can be revalidated with a
// conditional request.
func (r *Response) HasValidator() bool {
	return r.ETag() != "" || r.LastModified() != ""
}

// Cacheable reports whether the response may be stored by a shared
// cache: an eligible status, no no-store or private directive, and
// either current freshness or a validator for later revalidation. The
// engine additionally guarantees the originating request method was
// cacheable before asking.
func (r *Response) Cacheable() bool {
	if !cacheableStatus[r.Status] {
		return false
	}
	if r.NoStore() || r.IsPrivate() {
		return false
	}
	return r.Fresh() || r.HasValidator()
}

// setAgeHeader writes the computed current age, in whole seconds, into
// the Age header.
func (r *Response) setAgeHeader() {
	r.Header.Set("Age", strconv.FormatInt(int64(r.Age()/time.Second), 10))
}
