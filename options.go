package rackcache

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rack-cache/rack-cache/pkg/cachekey"
	"github.com/rack-cache/rack-cache/storage"
)

// optionNamespace prefixes option names set without a dotted prefix.
const optionNamespace = "rack-cache."

// Config is the typed configuration surface the engine reads on each
// call. The zero value is usable: heap-backed stores, built-in key
// derivation, no default TTL, Authorization and Cookie as private
// headers, and a verbose per-request trace line.
type Config struct {
	// CacheKey derives the cache key for a request. Nil means the
	// built-in derivation.
	CacheKey cachekey.KeyFn
	// Storage resolves metastore and entitystore URIs. Nil means the
	// lazily initialized process default.
	Storage *storage.Storage
	// Metastore and Entitystore are store URIs. Empty means heap:/.
	Metastore   string
	Entitystore string
	// DefaultTTL is assigned to cacheable responses lacking any
	// freshness information.
	DefaultTTL time.Duration
	// PrivateHeaders are request headers whose presence forces private
	// treatment. Nil means Authorization and Cookie.
	PrivateHeaders []string
	// AllowReload honors Cache-Control: no-cache on requests.
	AllowReload bool
	// AllowRevalidate honors Cache-Control: max-age=0 on requests.
	AllowRevalidate bool
	// Quiet suppresses the per-request trace log line.
	Quiet bool
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
	// Extra carries options for extension store backends only.
	Extra map[string]string
}

func (c Config) withDefaults() Config {
	if c.CacheKey == nil {
		c.CacheKey = cachekey.Default
	}
	if c.Storage == nil {
		c.Storage = storage.Default()
	}
	if c.Metastore == "" {
		c.Metastore = "heap:/"
	}
	if c.Entitystore == "" {
		c.Entitystore = "heap:/"
	}
	if c.PrivateHeaders == nil {
		c.PrivateHeaders = []string{"Authorization", "Cookie"}
	}
	return c
}

// Options is a flat mapping from dotted option keys to values, the form
// in which configuration travels alongside a request.
type Options map[string]string

// Set stores an option. An unprefixed name is stored under the
// rack-cache namespace; a dotted name is stored verbatim.
func (o Options) Set(name, value string) {
	if !strings.Contains(name, ".") {
		name = optionNamespace + name
	}
	o[name] = value
}

// Get reads an option by unprefixed or dotted name.
func (o Options) Get(name string) (string, bool) {
	if !strings.Contains(name, ".") {
		name = optionNamespace + name
	}
	val, ok := o[name]
	return val, ok
}

type optionsContextKey struct{}

// WithOptions attaches per-request option overrides to a context. They
// overlay the engine configuration for that request only.
func WithOptions(ctx context.Context, o Options) context.Context {
	return context.WithValue(ctx, optionsContextKey{}, o)
}

func optionsFrom(ctx context.Context) Options {
	o, _ := ctx.Value(optionsContextKey{}).(Options)
	return o
}

// overlay applies recognized option values on top of a copy of the
// configuration.
func (c Config) overlay(o Options) Config {
	if len(o) == 0 {
		return c
	}
	if v, ok := o.Get("metastore"); ok {
		c.Metastore = v
	}
	if v, ok := o.Get("entitystore"); ok {
		c.Entitystore = v
	}
	if v, ok := o.Get("default_ttl"); ok {
		if seconds, err := strconv.Atoi(v); err == nil {
			c.DefaultTTL = time.Duration(seconds) * time.Second
		}
	}
	if v, ok := o.Get("private_headers"); ok {
		fields := make([]string, 0)
		for _, field := range strings.Split(v, ",") {
			if field = strings.TrimSpace(field); field != "" {
				fields = append(fields, field)
			}
		}
		c.PrivateHeaders = fields
	}
	if v, ok := o.Get("allow_reload"); ok {
		c.AllowReload = parseBool(v)
	}
	if v, ok := o.Get("allow_revalidate"); ok {
		c.AllowRevalidate = parseBool(v)
	}
	if v, ok := o.Get("verbose"); ok {
		c.Quiet = !parseBool(v)
	}
	return c
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
