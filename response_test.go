package rackcache

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rack-cache/rack-cache/pkg/header"
)

func responseWith(headers map[string]string) *Response {
	h := make(http.Header)
	for name, value := range headers {
		h.Set(name, value)
	}
	return NewResponse(200, h, []byte("body"))
}

func TestDateSynthesized(t *testing.T) {
	res := responseWith(nil)
	if res.Header.Get("Date") == "" {
		t.Fatal("Date header not synthesized")
	}
	if age := res.Age(); age > time.Second {
		t.Fatalf("fresh response has age %v", age)
	}
}

func TestAgeFromDateHeader(t *testing.T) {
	res := responseWith(map[string]string{
		"Date": header.FormatHTTPDate(time.Now().Add(-10 * time.Second)),
	})
	if age := res.Age(); age < 9*time.Second || age > 12*time.Second {
		t.Fatalf("age is %v", age)
	}
}

func TestAgeFromAgeHeader(t *testing.T) {
	res := responseWith(map[string]string{"Age": "30"})
	if age := res.Age(); age < 30*time.Second || age > 32*time.Second {
		t.Fatalf("age is %v", age)
	}
}

func TestAgeNeverNegative(t *testing.T) {
	// a Date in the future must clamp, not go negative
	res := responseWith(map[string]string{
		"Date": header.FormatHTTPDate(time.Now().Add(time.Hour)),
	})
	if age := res.Age(); age < 0 {
		t.Fatalf("age is %v", age)
	}
}

func TestTTLFromMaxAge(t *testing.T) {
	res := responseWith(map[string]string{"Cache-Control": "max-age=60"})
	ttl, ok := res.TTL()
	if !ok || ttl < 58*time.Second || ttl > 60*time.Second {
		t.Fatalf("ttl is %v (known: %v)", ttl, ok)
	}
	if !res.Fresh() {
		t.Fatal("response not fresh")
	}
}

func TestTTLPrefersSharedMaxAge(t *testing.T) {
	res := responseWith(map[string]string{"Cache-Control": "max-age=0, s-maxage=60"})
	if !res.Fresh() {
		t.Fatal("s-maxage not preferred over max-age")
	}
}

func TestTTLFromExpires(t *testing.T) {
	res := responseWith(map[string]string{
		"Expires": header.FormatHTTPDate(time.Now().Add(time.Minute)),
	})
	if !res.Fresh() {
		t.Fatal("response with future Expires not fresh")
	}
}

func TestTTLUnsetWithoutFreshnessInfo(t *testing.T) {
	res := responseWith(nil)
	if _, ok := res.TTL(); ok {
		t.Fatal("ttl known without freshness info")
	}
	if res.Fresh() {
		t.Fatal("response without freshness info is fresh")
	}
}

func TestExpiredResponseIsStale(t *testing.T) {
	res := responseWith(map[string]string{"Cache-Control": "max-age=0"})
	if res.Fresh() {
		t.Fatal("max-age=0 response is fresh")
	}
}

func TestSetTTL(t *testing.T) {
	res := responseWith(map[string]string{
		"Expires": header.FormatHTTPDate(time.Now().Add(-time.Hour)),
	})
	res.SetTTL(60 * time.Second)
	if cc := res.Header.Get("Cache-Control"); !strings.Contains(cc, "max-age=60") {
		t.Fatalf("cache-control is %q", cc)
	}
	if res.Header.Get("Expires") != "" {
		t.Fatal("stale Expires not removed")
	}
	if !res.Fresh() {
		t.Fatal("response not fresh after SetTTL")
	}
}

func TestMarkPrivate(t *testing.T) {
	res := responseWith(map[string]string{"Cache-Control": "public, max-age=60"})
	res.MarkPrivate()
	if res.IsPublic() {
		t.Fatal("public flag survived MarkPrivate")
	}
	if !res.IsPrivate() {
		t.Fatal("private flag not set")
	}
}

func TestCacheable(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		headers   map[string]string
		cacheable bool
	}{
		{"fresh 200", 200, map[string]string{"Cache-Control": "max-age=60"}, true},
		{"fresh 404", 404, map[string]string{"Cache-Control": "max-age=60"}, true},
		{"fresh 500", 500, map[string]string{"Cache-Control": "max-age=60"}, false},
		{"no-store", 200, map[string]string{"Cache-Control": "no-store, max-age=60"}, false},
		{"private", 200, map[string]string{"Cache-Control": "private, max-age=60"}, false},
		{"validator only", 200, map[string]string{"ETag": `"v1"`}, true},
		{"no freshness, no validator", 200, nil, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := make(http.Header)
			for name, value := range c.headers {
				h.Set(name, value)
			}
			res := NewResponse(c.status, h, nil)
			if res.Cacheable() != c.cacheable {
				t.Fatalf("cacheable is %v", res.Cacheable())
			}
		})
	}
}

func TestMustRevalidate(t *testing.T) {
	if !responseWith(map[string]string{"Cache-Control": "must-revalidate"}).MustRevalidate() {
		t.Fatal("must-revalidate not detected")
	}
	if !responseWith(map[string]string{"Cache-Control": "proxy-revalidate"}).MustRevalidate() {
		t.Fatal("proxy-revalidate not detected")
	}
}
