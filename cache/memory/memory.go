// Package memory implements cache.Cache as a process-local TTL store on top of
// ttlcache. It is the default calculation cache.
package memory

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/calcsite/calculator-sdk-go/cache"
	"github.com/calcsite/calculator-sdk-go/cache/internal/tracking"
)

// DefaultCleanupInterval is how often expired entries are swept.
const DefaultCleanupInterval = time.Minute

// Store is an in-memory cache.Cache.
type Store struct {
	items *ttlcache.Cache[string, []byte]

	closed atomic.Bool
	stop   chan struct{}
	done   chan struct{}
}

var _ cache.Cache = (*Store)(nil)

// Option configures a Store.
type Option func(*options)

type options struct {
	cleanupInterval time.Duration
	capacity        uint64
}

// WithCleanupInterval sets the sweep interval. Zero or negative disables the sweeper;
// expired entries are then only hidden from reads until overwritten or deleted.
func WithCleanupInterval(d time.Duration) Option {
	return func(o *options) { o.cleanupInterval = d }
}

// WithCapacity bounds the number of entries. The least recently used entry is
// evicted first. Zero means unbounded.
func WithCapacity(n uint64) Option {
	return func(o *options) { o.capacity = n }
}

// New creates a Store and starts its sweeper.
func New(opts ...Option) *Store {
	o := options{cleanupInterval: DefaultCleanupInterval}
	for _, opt := range opts {
		opt(&o)
	}

	cacheOpts := []ttlcache.Option[string, []byte]{
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	}
	if o.capacity > 0 {
		cacheOpts = append(cacheOpts, ttlcache.WithCapacity[string, []byte](o.capacity))
	}

	s := &Store{
		items: ttlcache.New(cacheOpts...),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}

	if o.cleanupInterval > 0 {
		go s.sweep(o.cleanupInterval)
	} else {
		close(s.done)
	}
	return s
}

func (s *Store) sweep(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.items.DeleteExpired()
		case <-s.stop:
			return
		}
	}
}

// Get returns cache.ErrNotFound for absent or expired keys.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if s.closed.Load() {
		return nil, cache.ErrClosed
	}

	start := time.Now()
	item := s.items.Get(key)
	hit := item != nil
	tracking.RecordCacheOperation(ctx, tracking.BackendMemory, tracking.OpGet, time.Since(start), hit, nil)
	if !hit {
		return nil, cache.ErrNotFound
	}
	return append([]byte(nil), item.Value()...), nil
}

// Set stores a copy of value. A zero ttl means no expiration.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.closed.Load() {
		return cache.ErrClosed
	}
	if ttl < 0 {
		return cache.ErrInvalidTTL
	}
	if ttl == 0 {
		ttl = ttlcache.NoTTL
	}

	start := time.Now()
	s.items.Set(key, append([]byte(nil), value...), ttl)
	tracking.RecordCacheOperation(ctx, tracking.BackendMemory, tracking.OpSet, time.Since(start), false, nil)
	return nil
}

// Delete removes key; a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if s.closed.Load() {
		return cache.ErrClosed
	}

	start := time.Now()
	s.items.Delete(key)
	tracking.RecordCacheOperation(ctx, tracking.BackendMemory, tracking.OpDelete, time.Since(start), false, nil)
	return nil
}

// Health fails only after Close.
func (s *Store) Health(context.Context) error {
	if s.closed.Load() {
		return cache.ErrClosed
	}
	return nil
}

// Stats reports entry count and hit/miss counters.
func (s *Store) Stats() (map[string]any, error) {
	if s.closed.Load() {
		return nil, cache.ErrClosed
	}

	m := s.items.Metrics()
	return map[string]any{
		"backend":   tracking.BackendMemory,
		"entries":   s.items.Len(),
		"hits":      int64(m.Hits),
		"misses":    int64(m.Misses),
		"evictions": int64(m.Evictions),
	}, nil
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	return s.items.Len()
}

// Close stops the sweeper and drops every entry. A second call returns cache.ErrClosed.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return cache.ErrClosed
	}
	close(s.stop)
	<-s.done

	s.items.DeleteAll()
	return nil
}
