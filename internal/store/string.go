package store

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
)

// SetOptions carries the SET command modifiers.
type SetOptions struct {
	// TTL > 0 sets an expiry relative to now.
	TTL time.Duration
	// NX only sets the key when absent; XX only when present.
	NX, XX bool
	// KeepTTL preserves an existing expiry on overwrite.
	KeepTTL bool
}

// Get returns the string value at key. ok is false when the key is absent.
func (s *Store) Get(key string) (val []byte, ok bool, err error) {
	sh := s.shard(key)
	sh.mu.RLock()
	e, present := sh.entries[key]
	if present && !s.expired(e) {
		if e.kind != KindString {
			sh.mu.RUnlock()
			return nil, false, ErrWrongType
		}
		val = append([]byte(nil), e.str...)
		sh.mu.RUnlock()
		return val, true, nil
	}
	sh.mu.RUnlock()

	if present {
		// Eager expiry: remove under the write lock.
		sh.mu.Lock()
		s.live(sh, key)
		sh.mu.Unlock()
	}
	return nil, false, nil
}

// Set stores a string value, replacing any prior entry regardless of type.
// applied is false when an NX/XX guard declined the write.
func (s *Store) Set(key string, value []byte, opt SetOptions) (applied bool, err error) {
	sh := s.shard(key)
	sh.mu.Lock()

	e := s.live(sh, key)
	if (opt.NX && e != nil) || (opt.XX && e == nil) {
		sh.mu.Unlock()
		return false, nil
	}

	ts, err := s.nextStamp(e)
	if err != nil {
		sh.mu.Unlock()
		return false, err
	}

	var expireAt int64
	switch {
	case opt.TTL > 0:
		expireAt = ts + int64(opt.TTL)
	case opt.KeepTTL && e != nil:
		expireAt = e.expireAt
	}

	ne := &entry{kind: KindString, str: append([]byte(nil), value...), expireAt: expireAt, stamp: ts}
	sh.entries[key] = ne
	data := s.encodeLocked(ne)
	sh.mu.Unlock()

	return true, s.putEncoded(key, data)
}

// IncrBy atomically adds delta to the integer value at key, creating it at
// zero when absent.
func (s *Store) IncrBy(key string, delta int64) (int64, error) {
	sh := s.shard(key)
	sh.mu.Lock()

	e := s.live(sh, key)
	var cur int64
	if e != nil {
		if e.kind != KindString {
			sh.mu.Unlock()
			return 0, ErrWrongType
		}
		var err error
		cur, err = parseInt(e.str)
		if err != nil {
			sh.mu.Unlock()
			return 0, ErrNotInteger
		}
	}

	if (delta > 0 && cur > math.MaxInt64-delta) || (delta < 0 && cur < math.MinInt64-delta) {
		sh.mu.Unlock()
		return 0, ErrOverflow
	}

	ts, err := s.nextStamp(e)
	if err != nil {
		sh.mu.Unlock()
		return 0, err
	}

	next := cur + delta
	ne := &entry{kind: KindString, str: strconv.AppendInt(nil, next, 10), stamp: ts}
	if e != nil {
		ne.expireAt = e.expireAt
	}
	sh.entries[key] = ne
	data := s.encodeLocked(ne)
	sh.mu.Unlock()

	return next, s.putEncoded(key, data)
}

// MGet returns the values for keys; absent or non-string keys yield nil.
func (s *Store) MGet(keys ...string) [][]byte {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		v, ok, err := s.Get(k)
		if err != nil || !ok {
			continue
		}
		out[i] = v
	}
	return out
}

// MSet stores all pairs. Pairs are applied in order, each atomically per key.
func (s *Store) MSet(pairs [][2][]byte) error {
	for _, p := range pairs {
		if _, err := s.Set(string(p[0]), p[1], SetOptions{}); err != nil {
			return err
		}
	}
	return nil
}

// CAS swaps the value at key for newValue when the current value equals
// expected. Returns 1 on swap, 0 on mismatch (an absent key never matches).
func (s *Store) CAS(key string, expected, newValue []byte) (int64, error) {
	sh := s.shard(key)
	sh.mu.Lock()

	e := s.live(sh, key)
	if e == nil {
		sh.mu.Unlock()
		return 0, nil
	}
	if e.kind != KindString {
		sh.mu.Unlock()
		return 0, ErrWrongType
	}
	if !bytes.Equal(e.str, expected) {
		sh.mu.Unlock()
		return 0, nil
	}

	ts, err := s.nextStamp(e)
	if err != nil {
		sh.mu.Unlock()
		return 0, err
	}

	ne := &entry{kind: KindString, str: append([]byte(nil), newValue...), expireAt: e.expireAt, stamp: ts}
	sh.entries[key] = ne
	data := s.encodeLocked(ne)
	sh.mu.Unlock()

	return 1, s.putEncoded(key, data)
}

// JSONPatch applies an RFC 6902 patch to the JSON document stored at key and
// replaces the value with the serialised result. The expiry is preserved.
func (s *Store) JSONPatch(key string, patch []byte) error {
	p, err := jsonpatch.DecodePatch(patch)
	if err != nil {
		return err
	}

	sh := s.shard(key)
	sh.mu.Lock()

	e := s.live(sh, key)
	if e == nil {
		sh.mu.Unlock()
		return ErrNoSuchKey
	}
	if e.kind != KindString {
		sh.mu.Unlock()
		return ErrWrongType
	}

	doc, err := p.Apply(e.str)
	if err != nil {
		sh.mu.Unlock()
		return err
	}

	ts, err := s.nextStamp(e)
	if err != nil {
		sh.mu.Unlock()
		return err
	}

	ne := &entry{kind: KindString, str: doc, expireAt: e.expireAt, stamp: ts}
	sh.entries[key] = ne
	data := s.encodeLocked(ne)
	sh.mu.Unlock()

	return s.putEncoded(key, data)
}

// parseInt parses b as a strict signed 64-bit decimal integer.
func parseInt(b []byte) (int64, error) {
	return strconv.ParseInt(string(b), 10, 64)
}

// encodeLocked encodes e for the backend while the caller holds the shard
// lock. Returns nil when no backend is attached.
func (s *Store) encodeLocked(e *entry) []byte {
	if s.backend == nil {
		return nil
	}
	return encodeEntry(e)
}

// putEncoded writes a pre-encoded entry to the backend. A failure is
// surfaced to the caller's client without undoing the in-memory mutation;
// the keyspace stays the source of truth.
func (s *Store) putEncoded(key string, data []byte) error {
	if s.backend == nil || data == nil {
		return nil
	}
	if err := s.backend.Put(key, data); err != nil {
		s.logger.Error("backend write failed", "key", key, "error", err)
		return fmt.Errorf("backend error: %w", err)
	}
	return nil
}
