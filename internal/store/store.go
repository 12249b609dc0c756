// Package store implements the typed in-memory keyspace.
//
// The keyspace is a sharded associative store holding one typed value per
// key (string, list or hash) together with an optional absolute expiry and a
// monotonic last-write timestamp used for last-write-wins conflict checks.
// All operations are atomic with respect to the shard that owns the key.
//
// Expiry is eager on read: a lookup that finds an expired entry treats the
// key as absent and removes it. A background sweeper additionally reclaims
// expired entries that nobody reads.
package store

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Kind identifies the value type held by an entry.
type Kind uint8

const (
	KindString Kind = iota + 1
	KindList
	KindHash
)

// String returns the Redis TYPE name for the kind.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindHash:
		return "hash"
	default:
		return "none"
	}
}

// Errors surfaced to the dispatcher. The text of ErrWrongType is written to
// the wire verbatim; the others are prefixed with "ERR ".
var (
	ErrWrongType      = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")
	ErrStaleTimestamp = errors.New("Timestamp is older than existing record")
	ErrNotInteger     = errors.New("value is not an integer or out of range")
	ErrOverflow       = errors.New("increment or decrement would overflow")
	ErrHashNotInteger = errors.New("hash value is not an integer")
	ErrNoSuchKey      = errors.New("no such key")
)

// Backend is the optional durable layer behind the keyspace. Implementations
// must be safe for concurrent use. Entries are stored pre-encoded; the store
// owns the codec (see codec.go).
type Backend interface {
	Put(key string, data []byte) error
	Delete(key string) error
	// Load streams every stored entry into fn. Called once, before the
	// store is visible to clients.
	Load(fn func(key string, data []byte) error) error
	Close() error
}

type entry struct {
	kind     Kind
	str      []byte
	list     [][]byte
	hash     map[string][]byte
	expireAt int64 // unix nanos; 0 means no expiry
	stamp    int64 // unix nanos, strictly increasing per key
}

type storeShard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// Store is the process-global keyspace.
type Store struct {
	shards    []*storeShard
	shardMask uint64

	now      func() int64 // unix nanos
	backend  Backend
	logger   *slog.Logger
	sweepInt time.Duration
	onExpire func(n int)

	stopCh chan struct{}
	doneCh chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source (unix nanoseconds). Used by tests
// to exercise the stale-timestamp path deterministically.
func WithClock(now func() int64) Option {
	return func(s *Store) { s.now = now }
}

// WithBackend attaches a durable backend. Mutations are written through;
// Load must be called by the owner before serving clients.
func WithBackend(b Backend) Option {
	return func(s *Store) { s.backend = b }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithShardCount sets the shard count. n must be a positive power of 2;
// any other value is ignored and the default count is kept.
func WithShardCount(n int) Option {
	return func(s *Store) {
		if n > 0 && n&(n-1) == 0 {
			s.shards = make([]*storeShard, n)
		}
	}
}

// WithSweepInterval sets the background expiry sweep interval.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.sweepInt = d
		}
	}
}

// WithExpireHook registers a callback invoked with the number of entries
// reclaimed by each sweep pass. Used to feed metrics.
func WithExpireHook(fn func(n int)) Option {
	return func(s *Store) { s.onExpire = fn }
}

const defaultShardCount = 256

// New creates a Store and starts its background sweeper.
func New(opts ...Option) *Store {
	s := &Store{
		shards:   make([]*storeShard, defaultShardCount),
		now:      func() int64 { return time.Now().UnixNano() },
		logger:   slog.Default(),
		sweepInt: 100 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	for i := range s.shards {
		s.shards[i] = &storeShard{entries: make(map[string]*entry)}
	}
	s.shardMask = uint64(len(s.shards) - 1)

	go s.sweepLoop()
	return s
}

// Close stops the sweeper and closes the backend, if any.
func (s *Store) Close() error {
	close(s.stopCh)
	<-s.doneCh
	if s.backend != nil {
		return s.backend.Close()
	}
	return nil
}

// Load restores the keyspace from the backend. Expired entries are skipped.
func (s *Store) Load() error {
	if s.backend == nil {
		return nil
	}
	now := s.now()
	restored, skipped := 0, 0
	err := s.backend.Load(func(key string, data []byte) error {
		e, err := decodeEntry(data)
		if err != nil {
			s.logger.Warn("skipping undecodable entry", "key", key, "error", err)
			return nil
		}
		if e.expireAt != 0 && e.expireAt <= now {
			skipped++
			return nil
		}
		sh := s.shard(key)
		sh.mu.Lock()
		sh.entries[key] = e
		sh.mu.Unlock()
		restored++
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("keyspace restored", "keys", restored, "expired_skipped", skipped)
	return nil
}

func (s *Store) shard(key string) *storeShard {
	return s.shards[xxhash.Sum64String(key)&s.shardMask]
}

func (s *Store) expired(e *entry) bool {
	return e.expireAt != 0 && e.expireAt <= s.now()
}

// live returns the entry for key, removing it if expired.
// The caller must hold the shard's write lock.
func (s *Store) live(sh *storeShard, key string) *entry {
	e, ok := sh.entries[key]
	if !ok {
		return nil
	}
	if s.expired(e) {
		delete(sh.entries, key)
		s.backendDelete(key)
		return nil
	}
	return e
}

// nextStamp assigns the mutation timestamp, enforcing per-key monotonicity.
func (s *Store) nextStamp(e *entry) (int64, error) {
	ts := s.now()
	if e != nil && ts <= e.stamp {
		return 0, ErrStaleTimestamp
	}
	return ts, nil
}

func (s *Store) backendDelete(key string) {
	if s.backend == nil {
		return
	}
	if err := s.backend.Delete(key); err != nil {
		s.logger.Error("backend delete failed", "key", key, "error", err)
	}
}

// sweepLoop periodically reclaims expired entries.
func (s *Store) sweepLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.sweepInt)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.sweep(); n > 0 && s.onExpire != nil {
				s.onExpire(n)
			}
		case <-s.stopCh:
			return
		}
	}
}

// sweep removes expired entries across all shards and returns the count.
func (s *Store) sweep() int {
	removed := 0
	for _, sh := range s.shards {
		var dead []string
		sh.mu.Lock()
		for k, e := range sh.entries {
			if s.expired(e) {
				delete(sh.entries, k)
				dead = append(dead, k)
			}
		}
		sh.mu.Unlock()
		for _, k := range dead {
			s.backendDelete(k)
		}
		removed += len(dead)
	}
	return removed
}

// Len returns the number of live keys.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, e := range sh.entries {
			if !s.expired(e) {
				n++
			}
		}
		sh.mu.RUnlock()
	}
	return n
}

// ExpiringLen returns the number of live keys carrying an expiry.
func (s *Store) ExpiringLen() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, e := range sh.entries {
			if e.expireAt != 0 && !s.expired(e) {
				n++
			}
		}
		sh.mu.RUnlock()
	}
	return n
}

// Flush removes every entry.
func (s *Store) Flush() {
	for _, sh := range s.shards {
		var keys []string
		sh.mu.Lock()
		if s.backend != nil {
			for k := range sh.entries {
				keys = append(keys, k)
			}
		}
		sh.entries = make(map[string]*entry)
		sh.mu.Unlock()
		for _, k := range keys {
			s.backendDelete(k)
		}
	}
}

// Type returns the kind of the value at key, or ok=false when absent.
func (s *Store) Type(key string) (Kind, bool) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e := s.live(sh, key)
	if e == nil {
		return 0, false
	}
	return e.kind, true
}
