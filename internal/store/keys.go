package store

import (
	"sort"
	"time"

	"github.com/yndnr/feoxd/pkg/glob"
)

// TTL return values for absent keys and keys without expiry.
const (
	TTLNoKey    = -2
	TTLNoExpiry = -1
)

// Del removes keys and returns the number actually removed.
func (s *Store) Del(keys ...string) int {
	removed := 0
	for _, key := range keys {
		sh := s.shard(key)
		sh.mu.Lock()
		e := s.live(sh, key)
		if e != nil {
			delete(sh.entries, key)
			removed++
		}
		sh.mu.Unlock()
		if e != nil {
			s.backendDelete(key)
		}
	}
	return removed
}

// Exists counts how many of the given keys are present; duplicates count.
func (s *Store) Exists(keys ...string) int {
	n := 0
	for _, key := range keys {
		sh := s.shard(key)
		sh.mu.RLock()
		e, ok := sh.entries[key]
		alive := ok && !s.expired(e)
		sh.mu.RUnlock()
		if alive {
			n++
		} else if ok {
			sh.mu.Lock()
			s.live(sh, key)
			sh.mu.Unlock()
		}
	}
	return n
}

// Expire sets a relative expiry on key. Returns false when the key is absent.
func (s *Store) Expire(key string, d time.Duration) bool {
	sh := s.shard(key)
	sh.mu.Lock()

	e := s.live(sh, key)
	if e == nil {
		sh.mu.Unlock()
		return false
	}
	e.expireAt = s.now() + int64(d)
	data := s.encodeLocked(e)
	sh.mu.Unlock()

	_ = s.putEncoded(key, data)
	return true
}

// Persist clears the expiry on key. Returns true when an expiry was removed.
func (s *Store) Persist(key string) bool {
	sh := s.shard(key)
	sh.mu.Lock()

	e := s.live(sh, key)
	if e == nil || e.expireAt == 0 {
		sh.mu.Unlock()
		return false
	}
	e.expireAt = 0
	data := s.encodeLocked(e)
	sh.mu.Unlock()

	_ = s.putEncoded(key, data)
	return true
}

// TTL returns the remaining time to live of key, TTLNoExpiry when the key
// has no expiry and TTLNoKey when absent. The duration is only meaningful
// for non-negative results.
func (s *Store) TTL(key string) (time.Duration, int) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e := s.live(sh, key)
	if e == nil {
		return 0, TTLNoKey
	}
	if e.expireAt == 0 {
		return 0, TTLNoExpiry
	}
	return time.Duration(e.expireAt - s.now()), 0
}

// Keys returns a snapshot of all live keys matching pattern.
func (s *Store) Keys(pattern string) []string {
	literal := !glob.HasWildcard(pattern)
	var out []string
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k, e := range sh.entries {
			if s.expired(e) {
				continue
			}
			if literal {
				if k == pattern {
					out = append(out, k)
				}
				continue
			}
			if glob.Match(pattern, k) {
				out = append(out, k)
			}
		}
		sh.mu.RUnlock()
	}
	return out
}

// Scan limits, per §4.2: COUNT is a hint clamped to this range.
const (
	scanMinCount = 10
	scanMaxCount = 10000
)

// Scan iterates the keyspace in batches. Cursor 0 starts a scan; a returned
// cursor of 0 ends it. The cursor packs the shard index in the high 32 bits
// and the offset into that shard's sorted key snapshot in the low 32 bits.
func (s *Store) Scan(cursor uint64, match string, count int) (uint64, []string) {
	if count < scanMinCount {
		count = scanMinCount
	}
	if count > scanMaxCount {
		count = scanMaxCount
	}

	shardIdx := int(cursor >> 32)
	offset := int(cursor & 0xFFFFFFFF)
	filtered := match != "" && match != "*"

	var out []string
	examined := 0
	for shardIdx < len(s.shards) {
		sh := s.shards[shardIdx]

		sh.mu.RLock()
		keys := make([]string, 0, len(sh.entries))
		for k, e := range sh.entries {
			if !s.expired(e) {
				keys = append(keys, k)
			}
		}
		sh.mu.RUnlock()
		sort.Strings(keys)

		for offset < len(keys) {
			if examined >= count {
				return uint64(shardIdx)<<32 | uint64(offset), out
			}
			k := keys[offset]
			offset++
			examined++
			if filtered && !glob.Match(match, k) {
				continue
			}
			out = append(out, k)
		}

		shardIdx++
		offset = 0
	}
	return 0, out
}
