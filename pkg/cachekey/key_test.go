package cachekey

import (
	"net/http"
	"testing"
)

func TestDefaultKey(t *testing.T) {
	req, _ := http.NewRequest("GET", "http://example.com/some/path", nil)
	if key := Default(req); key != "http://example.com/some/path" {
		t.Fatalf("key is %q", key)
	}
}

func TestDefaultKeySortsQuery(t *testing.T) {
	first, _ := http.NewRequest("GET", "http://example.com/p?b=2&a=1", nil)
	second, _ := http.NewRequest("GET", "http://example.com/p?a=1&b=2", nil)
	if Default(first) != Default(second) {
		t.Fatalf("%q != %q", Default(first), Default(second))
	}
	if key := Default(first); key != "http://example.com/p?a=1&b=2" {
		t.Fatalf("key is %q", key)
	}
}

func TestDefaultKeyNormalizesEncoding(t *testing.T) {
	encoded, _ := http.NewRequest("GET", "http://example.com/p?a=%62", nil)
	plain, _ := http.NewRequest("GET", "http://example.com/p?a=b", nil)
	if Default(encoded) != Default(plain) {
		t.Fatalf("%q != %q", Default(encoded), Default(plain))
	}
}

func TestDefaultKeyNoQuerySeparator(t *testing.T) {
	req, _ := http.NewRequest("GET", "http://example.com/p", nil)
	if key := Default(req); key[len(key)-1] == '?' {
		t.Fatalf("key has trailing separator: %q", key)
	}
}

func TestDefaultKeyUsesHostHeader(t *testing.T) {
	req, _ := http.NewRequest("GET", "/p", nil)
	req.Host = "front.example.com"
	if key := Default(req); key != "http://front.example.com/p" {
		t.Fatalf("key is %q", key)
	}
}
