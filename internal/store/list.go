package store

// LPush prepends values to the list at key, creating it when absent.
// Values are inserted one at a time, so LPUSH k a b c leaves [c b a].
func (s *Store) LPush(key string, values ...[]byte) (int, error) {
	return s.push(key, values, true)
}

// RPush appends values to the list at key, creating it when absent.
func (s *Store) RPush(key string, values ...[]byte) (int, error) {
	return s.push(key, values, false)
}

func (s *Store) push(key string, values [][]byte, front bool) (int, error) {
	sh := s.shard(key)
	sh.mu.Lock()

	e := s.live(sh, key)
	if e != nil && e.kind != KindList {
		sh.mu.Unlock()
		return 0, ErrWrongType
	}

	ts, err := s.nextStamp(e)
	if err != nil {
		sh.mu.Unlock()
		return 0, err
	}

	var list [][]byte
	var expireAt int64
	if e != nil {
		list = e.list
		expireAt = e.expireAt
	}

	if front {
		head := make([][]byte, 0, len(values)+len(list))
		for i := len(values) - 1; i >= 0; i-- {
			head = append(head, append([]byte(nil), values[i]...))
		}
		list = append(head, list...)
	} else {
		for _, v := range values {
			list = append(list, append([]byte(nil), v...))
		}
	}

	ne := &entry{kind: KindList, list: list, expireAt: expireAt, stamp: ts}
	sh.entries[key] = ne
	data := s.encodeLocked(ne)
	n := len(list)
	sh.mu.Unlock()

	return n, s.putEncoded(key, data)
}

// LPop removes and returns up to count elements from the head of the list.
// A count of 0 means "pop one" (the no-COUNT command form). An emptied list
// is deleted atomically with the pop.
func (s *Store) LPop(key string, count int) ([][]byte, error) {
	return s.pop(key, count, true)
}

// RPop is LPop from the tail.
func (s *Store) RPop(key string, count int) ([][]byte, error) {
	return s.pop(key, count, false)
}

func (s *Store) pop(key string, count int, front bool) ([][]byte, error) {
	n := count
	if n <= 0 {
		n = 1
	}

	sh := s.shard(key)
	sh.mu.Lock()

	e := s.live(sh, key)
	if e == nil {
		sh.mu.Unlock()
		return nil, nil
	}
	if e.kind != KindList {
		sh.mu.Unlock()
		return nil, ErrWrongType
	}

	ts, err := s.nextStamp(e)
	if err != nil {
		sh.mu.Unlock()
		return nil, err
	}

	if n > len(e.list) {
		n = len(e.list)
	}

	out := make([][]byte, n)
	if front {
		copy(out, e.list[:n])
		e.list = e.list[n:]
	} else {
		for i := 0; i < n; i++ {
			out[i] = e.list[len(e.list)-1-i]
		}
		e.list = e.list[:len(e.list)-n]
	}
	e.stamp = ts

	var data []byte
	emptied := len(e.list) == 0
	if emptied {
		delete(sh.entries, key)
	} else {
		data = s.encodeLocked(e)
	}
	sh.mu.Unlock()

	if emptied {
		s.backendDelete(key)
		return out, nil
	}
	return out, s.putEncoded(key, data)
}

// LLen returns the list length; 0 when the key is absent.
func (s *Store) LLen(key string) (int, error) {
	sh := s.shard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.entries[key]
	if !ok || s.expired(e) {
		return 0, nil
	}
	if e.kind != KindList {
		return 0, ErrWrongType
	}
	return len(e.list), nil
}

// LRange returns the elements between start and stop inclusive. Negative
// indices count from the tail; out-of-range bounds are clamped.
func (s *Store) LRange(key string, start, stop int) ([][]byte, error) {
	sh := s.shard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.entries[key]
	if !ok || s.expired(e) {
		return nil, nil
	}
	if e.kind != KindList {
		return nil, ErrWrongType
	}

	n := len(e.list)
	if start < 0 {
		start += n
		if start < 0 {
			start = 0
		}
	}
	if stop < 0 {
		stop += n
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil, nil
	}

	out := make([][]byte, 0, stop-start+1)
	for i := start; i <= stop; i++ {
		out = append(out, append([]byte(nil), e.list[i]...))
	}
	return out, nil
}

// LIndex returns the element at index, or ok=false when out of range.
func (s *Store) LIndex(key string, index int) ([]byte, bool, error) {
	sh := s.shard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.entries[key]
	if !ok || s.expired(e) {
		return nil, false, nil
	}
	if e.kind != KindList {
		return nil, false, ErrWrongType
	}

	n := len(e.list)
	if index < 0 {
		index += n
	}
	if index < 0 || index >= n {
		return nil, false, nil
	}
	return append([]byte(nil), e.list[index]...), true, nil
}
