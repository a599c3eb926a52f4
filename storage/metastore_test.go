package storage

import (
	"net/http"
	"strings"
	"testing"
	"time"
)

func testRequest(t *testing.T, headers map[string]string) *http.Request {
	req, err := http.NewRequest("GET", "http://example.com/test", nil)
	if err != nil {
		t.Fatal(err)
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	return req
}

func testEntry(headers map[string]string, body string) *Entry {
	h := make(http.Header)
	for name, value := range headers {
		h.Set(name, value)
	}
	now := time.Now()
	return &Entry{
		Status:       200,
		Header:       h,
		Body:         []byte(body),
		RequestTime:  now,
		ResponseTime: now,
	}
}

func newTestMetaStore() (*MetaStore, EntityStore) {
	return newMetaStore(newHeapMeta()), newHeapEntity()
}

func TestStoreThenLookup(t *testing.T) {
	meta, ents := newTestMetaStore()
	req := testRequest(t, nil)

	digest, err := meta.Store(req, "key", testEntry(map[string]string{"Content-Type": "text/plain"}, "hello"), ents)
	if err != nil {
		t.Fatal(err)
	}
	if digest == "" {
		t.Fatal("no digest returned")
	}

	entry, err := meta.Lookup(req, "key", ents)
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil {
		t.Fatal("stored entry not found")
	}
	if string(entry.Body) != "hello" {
		t.Fatalf("body is %q", entry.Body)
	}
	if entry.Header.Get(DigestHeader) != digest {
		t.Fatalf("digest header is %q", entry.Header.Get(DigestHeader))
	}
	if entry.Header.Get("Age") != "0" {
		t.Fatalf("age header is %q", entry.Header.Get("Age"))
	}
}

func TestLookupUnknownKey(t *testing.T) {
	meta, ents := newTestMetaStore()
	entry, err := meta.Lookup(testRequest(t, nil), "nope", ents)
	if err != nil {
		t.Fatal(err)
	}
	if entry != nil {
		t.Fatal("entry found for unknown key")
	}
}

func TestVarySelectsMatchingVariant(t *testing.T) {
	meta, ents := newTestMetaStore()
	jsonReq := testRequest(t, map[string]string{"Accept": "application/json"})
	htmlReq := testRequest(t, map[string]string{"Accept": "text/html"})

	if _, err := meta.Store(jsonReq, "key", testEntry(map[string]string{"Vary": "Accept"}, "json"), ents); err != nil {
		t.Fatal(err)
	}
	if _, err := meta.Store(htmlReq, "key", testEntry(map[string]string{"Vary": "Accept"}, "html"), ents); err != nil {
		t.Fatal(err)
	}

	entry, err := meta.Lookup(jsonReq, "key", ents)
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || string(entry.Body) != "json" {
		t.Fatalf("selected wrong variant: %+v", entry)
	}
	entry, err = meta.Lookup(htmlReq, "key", ents)
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || string(entry.Body) != "html" {
		t.Fatalf("selected wrong variant: %+v", entry)
	}
}

func TestVaryAbsentEqualsEmpty(t *testing.T) {
	meta, ents := newTestMetaStore()
	withEmpty := testRequest(t, map[string]string{"Accept": ""})
	if _, err := meta.Store(withEmpty, "key", testEntry(map[string]string{"Vary": "Accept"}, "body"), ents); err != nil {
		t.Fatal(err)
	}
	entry, err := meta.Lookup(testRequest(t, nil), "key", ents)
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil {
		t.Fatal("absent header did not match empty stored header")
	}
}

func TestVaryAsteriskNotStorable(t *testing.T) {
	meta, ents := newTestMetaStore()
	_, err := meta.Store(testRequest(t, nil), "key", testEntry(map[string]string{"Vary": "*"}, "body"), ents)
	if err != ErrVaryAsterisk {
		t.Fatalf("err is %v", err)
	}
}

func TestVaryAsteriskNeverMatches(t *testing.T) {
	meta, ents := newTestMetaStore()
	// hand-write a Vary: * variant past the store check
	driver := meta.driver.(*heapMeta)
	driver.write("key", []Variant{{
		RequestHeader:  make(http.Header),
		ResponseHeader: http.Header{"Vary": []string{"*"}},
		Status:         200,
	}})
	entry, err := meta.Lookup(testRequest(t, nil), "key", ents)
	if err != nil {
		t.Fatal(err)
	}
	if entry != nil {
		t.Fatal("Vary: * variant matched a request")
	}
}

func TestStoreTwiceKeepsOneVariant(t *testing.T) {
	meta, ents := newTestMetaStore()
	req := testRequest(t, nil)
	if _, err := meta.Store(req, "key", testEntry(nil, "one"), ents); err != nil {
		t.Fatal(err)
	}
	if _, err := meta.Store(req, "key", testEntry(nil, "two"), ents); err != nil {
		t.Fatal(err)
	}
	variants, err := meta.driver.read("key")
	if err != nil {
		t.Fatal(err)
	}
	if len(variants) != 1 {
		t.Fatalf("%d variants stored", len(variants))
	}
	entry, _ := meta.Lookup(req, "key", ents)
	if entry == nil || string(entry.Body) != "two" {
		t.Fatalf("most recent variant did not win: %+v", entry)
	}
}

func TestInvalidateMarksVariantsStale(t *testing.T) {
	meta, ents := newTestMetaStore()
	req := testRequest(t, nil)
	entry := testEntry(map[string]string{"Cache-Control": "max-age=60", "ETag": `"v1"`}, "body")
	if _, err := meta.Store(req, "key", entry, ents); err != nil {
		t.Fatal(err)
	}
	if err := meta.Invalidate("key"); err != nil {
		t.Fatal(err)
	}
	variants, _ := meta.driver.read("key")
	if len(variants) != 1 {
		t.Fatalf("%d variants after invalidate", len(variants))
	}
	cc := variants[0].ResponseHeader.Get("Cache-Control")
	if !strings.Contains(cc, "max-age=0") {
		t.Fatalf("cache-control after invalidate is %q", cc)
	}
	if variants[0].ResponseHeader.Get("ETag") != `"v1"` {
		t.Fatal("validator lost on invalidate")
	}
	// body must remain for revalidation
	got, _ := meta.Lookup(req, "key", ents)
	if got == nil || string(got.Body) != "body" {
		t.Fatal("body not available after invalidate")
	}
}

func TestPurgeDropsVariantsAndBodies(t *testing.T) {
	meta, ents := newTestMetaStore()
	req := testRequest(t, nil)
	digest, err := meta.Store(req, "key", testEntry(nil, "body"), ents)
	if err != nil {
		t.Fatal(err)
	}
	found, err := meta.Purge("key", ents)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("purge did not report existing key")
	}
	if entry, _ := meta.Lookup(req, "key", ents); entry != nil {
		t.Fatal("entry still found after purge")
	}
	if _, err := ents.Read(digest); err != ErrNotFound {
		t.Fatalf("body still readable after purge: %v", err)
	}
}

func TestPurgeUnknownKey(t *testing.T) {
	meta, ents := newTestMetaStore()
	found, err := meta.Purge("nope", ents)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("purge reported unknown key as existing")
	}
}

func TestMissingBodyDropsVariant(t *testing.T) {
	meta, ents := newTestMetaStore()
	req := testRequest(t, nil)
	if _, err := meta.Store(req, "key", testEntry(nil, "body"), ents); err != nil {
		t.Fatal(err)
	}
	variants, _ := meta.driver.read("key")
	ents.Purge(variants[0].ResponseHeader.Get(DigestHeader))

	entry, err := meta.Lookup(req, "key", ents)
	if err != nil {
		t.Fatal(err)
	}
	if entry != nil {
		t.Fatal("entry with missing body returned")
	}
	if variants, _ := meta.driver.read("key"); len(variants) != 0 {
		t.Fatal("variant with missing body not dropped")
	}
}
