package store

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Backend entry framing: one self-describing record per key.
//
//	byte    kind
//	varint  expireAt (unix nanos, 0 = none)
//	varint  stamp (unix nanos)
//	payload string: raw bytes
//	        list:   uvarint n, then n × (uvarint len, bytes)
//	        hash:   uvarint n, then n × (field, value) length-prefixed

var errCorruptEntry = errors.New("store: corrupt backend entry")

func encodeEntry(e *entry) []byte {
	buf := make([]byte, 0, 32+len(e.str))
	buf = append(buf, byte(e.kind))
	buf = binary.AppendVarint(buf, e.expireAt)
	buf = binary.AppendVarint(buf, e.stamp)

	switch e.kind {
	case KindString:
		buf = append(buf, e.str...)
	case KindList:
		buf = binary.AppendUvarint(buf, uint64(len(e.list)))
		for _, v := range e.list {
			buf = appendBytes(buf, v)
		}
	case KindHash:
		buf = binary.AppendUvarint(buf, uint64(len(e.hash)))
		for f, v := range e.hash {
			buf = appendBytes(buf, []byte(f))
			buf = appendBytes(buf, v)
		}
	}
	return buf
}

func decodeEntry(data []byte) (*entry, error) {
	if len(data) < 1 {
		return nil, errCorruptEntry
	}
	e := &entry{kind: Kind(data[0])}
	data = data[1:]

	var n int
	e.expireAt, n = binary.Varint(data)
	if n <= 0 {
		return nil, errCorruptEntry
	}
	data = data[n:]
	e.stamp, n = binary.Varint(data)
	if n <= 0 {
		return nil, errCorruptEntry
	}
	data = data[n:]

	switch e.kind {
	case KindString:
		e.str = append([]byte(nil), data...)
	case KindList:
		count, n := binary.Uvarint(data)
		if n <= 0 {
			return nil, errCorruptEntry
		}
		data = data[n:]
		e.list = make([][]byte, 0, count)
		for i := uint64(0); i < count; i++ {
			var v []byte
			v, data, n = readBytes(data)
			if n <= 0 {
				return nil, errCorruptEntry
			}
			e.list = append(e.list, v)
		}
	case KindHash:
		count, n := binary.Uvarint(data)
		if n <= 0 {
			return nil, errCorruptEntry
		}
		data = data[n:]
		e.hash = make(map[string][]byte, count)
		for i := uint64(0); i < count; i++ {
			var f, v []byte
			f, data, n = readBytes(data)
			if n <= 0 {
				return nil, errCorruptEntry
			}
			v, data, n = readBytes(data)
			if n <= 0 {
				return nil, errCorruptEntry
			}
			e.hash[string(f)] = v
		}
	default:
		return nil, fmt.Errorf("%w: unknown kind %d", errCorruptEntry, e.kind)
	}
	return e, nil
}

func appendBytes(buf, v []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(v)))
	return append(buf, v...)
}

func readBytes(data []byte) (v, rest []byte, n int) {
	l, n := binary.Uvarint(data)
	if n <= 0 || uint64(len(data)-n) < l {
		return nil, data, -1
	}
	v = append([]byte(nil), data[n:n+int(l)]...)
	return v, data[n+int(l):], n
}
