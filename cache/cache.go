// Package cache provides the ConfigCache used by vacation.ConfigService.
package cache

import (
	"unsafe"

	"github.com/coocood/freecache"
	"github.com/rs/zerolog"
)

// Cache is a byte cache keyed by string.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	Del(key string)
}

// Options configure the freecache backend.
type Options struct {
	Enabled    bool
	SizeMB     int
	TTLSeconds int
}

type Freecache struct {
	cache *freecache.Cache
	ttl   int
}

// New returns a freecache-backed Cache, or a no-op when disabled.
func New(opts Options, logger zerolog.Logger) Cache {
	if !opts.Enabled || opts.SizeMB <= 0 {
		logger.Info().Msg("cache disabled")
		return Noop{}
	}
	ttl := max(opts.TTLSeconds, 0)
	logger.Info().Int("size_mb", opts.SizeMB).Int("ttl_seconds", ttl).Msg("cache initialized")
	return &Freecache{
		cache: freecache.NewCache(opts.SizeMB * 1024 * 1024),
		ttl:   ttl,
	}
}

// unsafeStringToBytes converts without allocation. freecache copies keys.
func unsafeStringToBytes(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

func (c *Freecache) Get(key string) ([]byte, bool) {
	val, err := c.cache.Get(unsafeStringToBytes(key))
	if err != nil {
		return nil, false
	}
	return val, true
}

func (c *Freecache) Set(key string, value []byte) {
	_ = c.cache.Set(unsafeStringToBytes(key), value, c.ttl)
}

func (c *Freecache) Del(key string) {
	c.cache.Del(unsafeStringToBytes(key))
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(string) ([]byte, bool) { return nil, false }
func (Noop) Set(string, []byte)        {}
func (Noop) Del(string)                {}

// HitCounter receives hit and miss events.
type HitCounter interface {
	IncCacheHits()
	IncCacheMisses()
}

// Instrumented counts hits and misses on every Get.
type Instrumented struct {
	inner   Cache
	metrics HitCounter
}

// NewInstrumented wraps inner. A Noop inner is returned unwrapped so
// disabled caches do not report misses.
func NewInstrumented(inner Cache, metrics HitCounter) Cache {
	if _, ok := inner.(Noop); ok || metrics == nil {
		return inner
	}
	return &Instrumented{inner: inner, metrics: metrics}
}

func (c *Instrumented) Get(key string) ([]byte, bool) {
	val, ok := c.inner.Get(key)
	if ok {
		c.metrics.IncCacheHits()
	} else {
		c.metrics.IncCacheMisses()
	}
	return val, ok
}

func (c *Instrumented) Set(key string, value []byte) { c.inner.Set(key, value) }
func (c *Instrumented) Del(key string)               { c.inner.Del(key) }
