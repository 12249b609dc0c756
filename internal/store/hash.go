package store

import (
	"math"
	"strconv"
)

// FieldValue is one field/value pair of an HSET request.
type FieldValue struct {
	Field []byte
	Value []byte
}

// HSet stores the given fields, creating the hash when absent.
// Returns the number of fields that did not previously exist.
func (s *Store) HSet(key string, pairs []FieldValue) (int, error) {
	sh := s.shard(key)
	sh.mu.Lock()

	e := s.live(sh, key)
	if e != nil && e.kind != KindHash {
		sh.mu.Unlock()
		return 0, ErrWrongType
	}

	ts, err := s.nextStamp(e)
	if err != nil {
		sh.mu.Unlock()
		return 0, err
	}

	if e == nil {
		e = &entry{kind: KindHash, hash: make(map[string][]byte, len(pairs))}
		sh.entries[key] = e
	}
	e.stamp = ts

	added := 0
	for _, p := range pairs {
		f := string(p.Field)
		if _, ok := e.hash[f]; !ok {
			added++
		}
		e.hash[f] = append([]byte(nil), p.Value...)
	}
	data := s.encodeLocked(e)
	sh.mu.Unlock()

	return added, s.putEncoded(key, data)
}

// HGet returns the value of field; ok is false when key or field is absent.
func (s *Store) HGet(key, field string) ([]byte, bool, error) {
	sh := s.shard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.entries[key]
	if !ok || s.expired(e) {
		return nil, false, nil
	}
	if e.kind != KindHash {
		return nil, false, ErrWrongType
	}
	v, ok := e.hash[field]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// HMGet returns the values of fields; absent fields yield nil.
func (s *Store) HMGet(key string, fields []string) ([][]byte, error) {
	sh := s.shard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	out := make([][]byte, len(fields))
	e, ok := sh.entries[key]
	if !ok || s.expired(e) {
		return out, nil
	}
	if e.kind != KindHash {
		return nil, ErrWrongType
	}
	for i, f := range fields {
		if v, ok := e.hash[f]; ok {
			out[i] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

// HDel removes fields and returns the number removed. An emptied hash is
// deleted atomically with the removal.
func (s *Store) HDel(key string, fields []string) (int, error) {
	sh := s.shard(key)
	sh.mu.Lock()

	e := s.live(sh, key)
	if e == nil {
		sh.mu.Unlock()
		return 0, nil
	}
	if e.kind != KindHash {
		sh.mu.Unlock()
		return 0, ErrWrongType
	}

	ts, err := s.nextStamp(e)
	if err != nil {
		sh.mu.Unlock()
		return 0, err
	}

	removed := 0
	for _, f := range fields {
		if _, ok := e.hash[f]; ok {
			delete(e.hash, f)
			removed++
		}
	}
	e.stamp = ts

	var data []byte
	emptied := len(e.hash) == 0
	if emptied {
		delete(sh.entries, key)
	} else if removed > 0 {
		data = s.encodeLocked(e)
	}
	sh.mu.Unlock()

	if emptied {
		s.backendDelete(key)
		return removed, nil
	}
	return removed, s.putEncoded(key, data)
}

// HExists reports whether field exists in the hash at key.
func (s *Store) HExists(key, field string) (bool, error) {
	_, ok, err := s.HGet(key, field)
	return ok, err
}

// HGetAll returns all field/value pairs as a flat slice.
func (s *Store) HGetAll(key string) ([][]byte, error) {
	sh := s.shard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.entries[key]
	if !ok || s.expired(e) {
		return nil, nil
	}
	if e.kind != KindHash {
		return nil, ErrWrongType
	}

	out := make([][]byte, 0, len(e.hash)*2)
	for f, v := range e.hash {
		out = append(out, []byte(f), append([]byte(nil), v...))
	}
	return out, nil
}

// HLen returns the field count; 0 when the key is absent.
func (s *Store) HLen(key string) (int, error) {
	sh := s.shard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.entries[key]
	if !ok || s.expired(e) {
		return 0, nil
	}
	if e.kind != KindHash {
		return 0, ErrWrongType
	}
	return len(e.hash), nil
}

// HKeys returns all field names.
func (s *Store) HKeys(key string) ([][]byte, error) {
	sh := s.shard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.entries[key]
	if !ok || s.expired(e) {
		return nil, nil
	}
	if e.kind != KindHash {
		return nil, ErrWrongType
	}
	out := make([][]byte, 0, len(e.hash))
	for f := range e.hash {
		out = append(out, []byte(f))
	}
	return out, nil
}

// HVals returns all field values.
func (s *Store) HVals(key string) ([][]byte, error) {
	sh := s.shard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.entries[key]
	if !ok || s.expired(e) {
		return nil, nil
	}
	if e.kind != KindHash {
		return nil, ErrWrongType
	}
	out := make([][]byte, 0, len(e.hash))
	for _, v := range e.hash {
		out = append(out, append([]byte(nil), v...))
	}
	return out, nil
}

// HIncrBy atomically adds delta to the integer value of field, creating the
// hash and/or field at zero when absent.
func (s *Store) HIncrBy(key, field string, delta int64) (int64, error) {
	sh := s.shard(key)
	sh.mu.Lock()

	e := s.live(sh, key)
	if e != nil && e.kind != KindHash {
		sh.mu.Unlock()
		return 0, ErrWrongType
	}

	var cur int64
	if e != nil {
		if raw, ok := e.hash[field]; ok {
			var err error
			cur, err = parseInt(raw)
			if err != nil {
				sh.mu.Unlock()
				return 0, ErrHashNotInteger
			}
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

	if e == nil {
		e = &entry{kind: KindHash, hash: make(map[string][]byte, 1)}
		sh.entries[key] = e
	}
	next := cur + delta
	e.hash[field] = strconv.AppendInt(nil, next, 10)
	e.stamp = ts
	data := s.encodeLocked(e)
	sh.mu.Unlock()

	return next, s.putEncoded(key, data)
}
