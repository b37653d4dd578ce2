// Package cache implements a scope-keyed cache over a remote fetch function.
//
// One store instance serves every scope of a single entity kind. Reads inside
// the TTL are served locally; expired or forced reads go to the fetch
// function, with at most one fetch in flight per scope. When a refresh fails
// and a previous set exists, the store degrades to a stale read instead of
// failing the caller.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/edusync/assignsync/internal/models"
)

// FetchFunc retrieves the authoritative entity set for a scope.
type FetchFunc[T any] func(ctx context.Context, scope models.Scope) ([]T, error)

// Store caches entity sets per scope with a freshness TTL.
type Store[T any] struct {
	fetch  FetchFunc[T]
	ttl    time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry[T]
}

type entry[T any] struct {
	data      []T
	hasData   bool
	stale     bool
	lastFetch time.Time
	lastErr   error

	// inflight is non-nil while a fetch is running; it is closed when the
	// fetch completes so that concurrent callers share one remote call.
	inflight chan struct{}
}

// NewStore creates a cache store around the given fetch function.
func NewStore[T any](fetch FetchFunc[T], ttl time.Duration, logger *slog.Logger) *Store[T] {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &Store[T]{
		fetch:   fetch,
		ttl:     ttl,
		logger:  logger,
		entries: make(map[string]*entry[T]),
	}
}

// Get returns the scope's entities along with a staleness snapshot.
//
// Fresh cached data is returned without a remote call unless forceRefresh is
// set. A failed refresh falls back to the last good set, marked stale; the
// error is returned only when no prior data exists.
func (s *Store[T]) Get(ctx context.Context, scope models.Scope, forceRefresh bool) ([]T, models.CacheStatus, error) {
	key := scope.Key()

	for {
		s.mu.Lock()
		e, ok := s.entries[key]
		if !ok {
			e = &entry[T]{}
			s.entries[key] = e
		}

		if !forceRefresh && e.hasData && time.Since(e.lastFetch) < s.ttl {
			data, status := e.snapshot()
			s.mu.Unlock()
			return data, status, nil
		}

		if e.inflight != nil {
			// Another caller is already fetching this scope; await its
			// result instead of issuing a duplicate remote call.
			wait := e.inflight
			s.mu.Unlock()

			select {
			case <-ctx.Done():
				return nil, models.CacheStatus{}, ctx.Err()
			case <-wait:
			}

			s.mu.Lock()
			data, status := e.snapshot()
			hasData := e.hasData
			lastErr := e.lastErr
			s.mu.Unlock()

			if hasData {
				return data, status, nil
			}
			if lastErr != nil {
				return nil, status, fmt.Errorf("fetch %s: %w", scope.Key(), lastErr)
			}
			// Entry was cleared between fetches; retry the loop.
			continue
		}

		done := make(chan struct{})
		e.inflight = done
		s.mu.Unlock()

		s.logger.Debug("Fetching scope from remote source",
			"scope", scope.Key(),
			"force_refresh", forceRefresh)

		data, err := s.fetch(ctx, scope)

		s.mu.Lock()
		e.inflight = nil
		close(done)

		if err != nil {
			e.lastErr = err
			if e.hasData {
				e.stale = true
				stale, status := e.snapshot()
				s.mu.Unlock()
				s.logger.Warn("Fetch failed, serving stale data",
					"scope", scope.Key(),
					"count", len(stale),
					"error", err)
				return stale, status, nil
			}
			status := e.statusLocked()
			s.mu.Unlock()
			return nil, status, fmt.Errorf("fetch %s: %w", scope.Key(), err)
		}

		e.data = data
		e.hasData = true
		e.stale = false
		e.lastFetch = time.Now()
		e.lastErr = nil
		fresh, status := e.snapshot()
		s.mu.Unlock()

		s.logger.Debug("Scope refreshed", "scope", scope.Key(), "count", len(fresh))
		return fresh, status, nil
	}
}

// Clear evicts a scope's cached data. The next Get forces a remote fetch.
func (s *Store[T]) Clear(scope models.Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[scope.Key()]; ok {
		e.data = nil
		e.hasData = false
		e.stale = false
		e.lastFetch = time.Time{}
		e.lastErr = nil
	}
	s.logger.Debug("Cache cleared", "scope", scope.Key())
}

// Status returns the staleness snapshot for a scope without fetching.
func (s *Store[T]) Status(scope models.Scope) models.CacheStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[scope.Key()]
	if !ok {
		return models.CacheStatus{}
	}
	return e.statusLocked()
}

// snapshot returns a copy of the cached data plus a status. Callers must
// hold the store lock.
func (e *entry[T]) snapshot() ([]T, models.CacheStatus) {
	data := make([]T, len(e.data))
	copy(data, e.data)
	return data, e.statusLocked()
}

func (e *entry[T]) statusLocked() models.CacheStatus {
	return models.CacheStatus{
		LastFetch:  e.lastFetch,
		Count:      len(e.data),
		Stale:      e.stale,
		Refreshing: e.inflight != nil,
	}
}
