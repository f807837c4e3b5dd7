// Package cache keeps recently completed crawls in memory so identical
// searches can be answered without touching the storefront.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/use-agent/smarteraz/models"
)

// Entry is one cached crawl.
type Entry struct {
	Items     []models.ResultItem
	Pages     int
	CreatedAt time.Time
}

// Cache is a bounded, expiring cache of crawls. It is safe for concurrent use.
type Cache struct {
	lru *expirable.LRU[string, *Entry]
	now func() time.Time
}

// New creates a Cache holding at most maxEntries crawls, each dropped after
// ttl regardless of how it is read.
func New(maxEntries int, ttl time.Duration) *Cache {
	return &Cache{
		lru: expirable.NewLRU[string, *Entry](maxEntries, nil, ttl),
		now: time.Now,
	}
}

// Key identifies a crawl by the URL of its first page and the options that
// change its output.
func Key(firstPageURL string, dedupe bool, maxPages int) string {
	h := sha256.New()
	h.Write([]byte(firstPageURL))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatBool(dedupe)))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.Itoa(maxPages)))
	return hex.EncodeToString(h.Sum(nil))
}

// Get retrieves a cached crawl if it exists and is younger than maxAgeMs
// milliseconds. If maxAgeMs <= 0, no lookup is performed.
func (c *Cache) Get(key string, maxAgeMs int) (*Entry, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}
	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.CreatedAt) > time.Duration(maxAgeMs)*time.Millisecond {
		return nil, false
	}
	return e, true
}

// Set stores a crawl, evicting the least recently used one when full.
func (c *Cache) Set(key string, items []models.ResultItem, pages int) {
	c.lru.Add(key, &Entry{Items: items, Pages: pages, CreatedAt: c.now()})
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}
