// Package query caches the results of remote reads keyed by their request
// parameters and serializes overlapping refetches so the newest request wins.
package query

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Fetcher loads the value for key.
type Fetcher[T any] func(ctx context.Context, key string) (T, error)

// Snapshot is the cached state of a query for its current key.
type Snapshot[T any] struct {
	Key       string
	Data      T
	Err       error
	Loaded    bool
	Fetching  bool
	UpdatedAt time.Time
}

type entry[T any] struct {
	data      T
	err       error
	loaded    bool
	updatedAt time.Time
	applied   uint64
	inflight  int
}

// Query holds cached results per key.
type Query[T any] struct {
	name   string
	fetch  Fetcher[T]
	logger *log.Logger

	mu          sync.RWMutex
	key         string
	seq         uint64
	entries     map[string]*entry[T]
	subscribers []func(Snapshot[T])

	group singleflight.Group
}

// New creates a query. The initial key is empty.
func New[T any](name string, fetch Fetcher[T], logger *log.Logger) *Query[T] {
	if logger == nil {
		logger = log.Default()
	}
	return &Query[T]{
		name:    name,
		fetch:   fetch,
		logger:  logger,
		entries: make(map[string]*entry[T]),
	}
}

// Name returns the query name.
func (q *Query[T]) Name() string {
	return q.name
}

// Key returns the current request key.
func (q *Query[T]) Key() string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.key
}

// SetKey switches the query to key. Cached data for key, if any, becomes
// current immediately. It reports whether the key changed.
func (q *Query[T]) SetKey(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.key == key {
		return false
	}
	q.key = key
	return true
}

// Subscribe registers fn to run after every applied response.
func (q *Query[T]) Subscribe(fn func(Snapshot[T])) {
	q.mu.Lock()
	q.subscribers = append(q.subscribers, fn)
	q.mu.Unlock()
}

// Snapshot returns the cached state for the current key.
func (q *Query[T]) Snapshot() Snapshot[T] {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.snapshotLocked(q.key)
}

// Refetch issues a new request for the current key. A response is applied
// only if no later-issued request for the same key has already been applied.
func (q *Query[T]) Refetch(ctx context.Context) (T, error) {
	q.mu.Lock()
	key := q.key
	q.seq++
	seq := q.seq
	e := q.entryLocked(key)
	e.inflight++
	q.mu.Unlock()

	data, err := q.fetch(ctx, key)

	q.mu.Lock()
	e.inflight--
	if seq < e.applied {
		q.mu.Unlock()
		q.logger.Printf("QUERY: %s discarded stale response for key %q", q.name, key)
		return data, err
	}
	e.applied = seq
	if err != nil {
		e.err = err
	} else {
		e.data = data
		e.err = nil
		e.loaded = true
		e.updatedAt = time.Now()
	}
	snapshot := q.snapshotLocked(key)
	subscribers := append([]func(Snapshot[T]){}, q.subscribers...)
	current := key == q.key
	q.mu.Unlock()

	if current {
		for _, fn := range subscribers {
			fn(snapshot)
		}
	}
	return data, err
}

// Ensure returns cached data for the current key, loading it once if needed.
// Concurrent callers share a single request.
func (q *Query[T]) Ensure(ctx context.Context) (T, error) {
	q.mu.RLock()
	key := q.key
	snapshot := q.snapshotLocked(key)
	q.mu.RUnlock()
	if snapshot.Loaded {
		return snapshot.Data, nil
	}

	result, err, _ := q.group.Do(key, func() (any, error) {
		return q.Refetch(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

// Poll refetches every interval until ctx is cancelled.
func (q *Query[T]) Poll(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.Refetch(ctx); err != nil && ctx.Err() == nil {
				q.logger.Printf("QUERY: %s poll failed: %v", q.name, err)
			}
		}
	}
}

func (q *Query[T]) entryLocked(key string) *entry[T] {
	e, ok := q.entries[key]
	if !ok {
		e = &entry[T]{}
		q.entries[key] = e
	}
	return e
}

func (q *Query[T]) snapshotLocked(key string) Snapshot[T] {
	e, ok := q.entries[key]
	if !ok {
		return Snapshot[T]{Key: key}
	}
	return Snapshot[T]{
		Key:       key,
		Data:      e.data,
		Err:       e.err,
		Loaded:    e.loaded,
		Fetching:  e.inflight > 0,
		UpdatedAt: e.updatedAt,
	}
}
