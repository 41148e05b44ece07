package service

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

type contextPair struct {
	full    string
	compact string
}

// ContextCache keeps rendered patient contexts in an in-memory LRU so a
// patient regenerated across runs is only rendered once. Safe for concurrent
// use.
type ContextCache struct {
	cache *lru.Cache[string, contextPair]
}

// NewContextCache creates a cache holding up to size patients. Size must be
// positive.
func NewContextCache(size int) (*ContextCache, error) {
	cache, err := lru.New[string, contextPair](size)
	if err != nil {
		return nil, err
	}
	return &ContextCache{cache: cache}, nil
}

// Get returns the cached full and compact contexts for a patient.
func (c *ContextCache) Get(patientID string) (string, string, bool) {
	pair, ok := c.cache.Get(patientID)
	if !ok {
		return "", "", false
	}
	return pair.full, pair.compact, true
}

// Put stores both context variants for a patient.
func (c *ContextCache) Put(patientID, full, compact string) {
	c.cache.Add(patientID, contextPair{full: full, compact: compact})
}

// Len returns the number of cached patients.
func (c *ContextCache) Len() int {
	return c.cache.Len()
}

// Purge drops every cached context.
func (c *ContextCache) Purge() {
	c.cache.Purge()
}
