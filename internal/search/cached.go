package search

import (
	"context"
	"encoding/json"
	"time"

	"github.com/guardspine/docsync/internal/cache"
	"github.com/guardspine/docsync/internal/model"
)

// CachedSearcher memoizes another adapter's results. Entries are keyed
// by adapter, pattern, and scope; they say nothing about file content,
// so the cache must be flushed whenever the inspected tree changes
// (watch mode does this on every filesystem event burst).
type CachedSearcher struct {
	inner Searcher
	store cache.Cache
	ttl   time.Duration
}

// NewCachedSearcher wraps an adapter with a cache
func NewCachedSearcher(inner Searcher, store cache.Cache, ttl time.Duration) *CachedSearcher {
	return &CachedSearcher{inner: inner, store: store, ttl: ttl}
}

// NewCachedRegistry creates a registry whose built-in adapters memoize
// results in store. Worth it when the same manifest is evaluated
// repeatedly over an unchanged tree, as watch mode does between events.
func NewCachedRegistry(root string, store cache.Cache, ttl time.Duration) *Registry {
	registry := &Registry{}
	registry.Register(NewCachedSearcher(NewCodeSearcher(root), store, ttl))
	registry.Register(NewCachedSearcher(NewMarkdownSearcher(root), store, ttl))
	return registry
}

// Name returns the wrapped adapter's name
func (s *CachedSearcher) Name() string {
	return s.inner.Name()
}

// CanHandle defers to the wrapped adapter
func (s *CachedSearcher) CanHandle(sourceType string) bool {
	return s.inner.CanHandle(sourceType)
}

// Search returns cached refs when available, else searches and caches
func (s *CachedSearcher) Search(ctx context.Context, pattern, scope string) ([]model.EvidenceRef, error) {
	key := cache.Key(s.inner.Name(), pattern, scope)

	if data, found := s.store.Get(key); found {
		var refs []model.EvidenceRef
		if err := json.Unmarshal(data, &refs); err == nil {
			return refs, nil
		}
		// Unreadable entry; fall through and overwrite it.
	}

	refs, err := s.inner.Search(ctx, pattern, scope)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(refs); err == nil {
		_ = s.store.Set(key, data, s.ttl)
	}
	return refs, nil
}
