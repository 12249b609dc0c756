package respserver

import (
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/feoxd/internal/store"
)

// GET <key>
func (h *Handler) handleGet(c *Conn, args [][]byte) {
	val, ok, err := h.srv.store.Get(string(args[1]))
	if err != nil {
		c.writeStoreErr(err)
		return
	}
	if !ok {
		c.writeNullBulk()
		return
	}
	c.writeBulk(val)
}

// SET <key> <value> [EX seconds | PX milliseconds] [NX | XX] [KEEPTTL]
func (h *Handler) handleSet(c *Conn, args [][]byte) {
	var opt store.SetOptions
	var haveEx, havePx bool

	for i := 3; i < len(args); i++ {
		switch strings.ToUpper(string(args[i])) {
		case "EX", "PX":
			unit := time.Second
			if strings.EqualFold(string(args[i]), "PX") {
				havePx = true
				unit = time.Millisecond
			} else {
				haveEx = true
			}
			if haveEx && havePx {
				c.writeError("ERR syntax error")
				return
			}
			i++
			if i >= len(args) {
				c.writeError("ERR syntax error")
				return
			}
			n, err := strconv.ParseInt(string(args[i]), 10, 64)
			if err != nil {
				c.writeError("ERR value is not an integer or out of range")
				return
			}
			if n <= 0 {
				c.writeError("ERR invalid expire time in 'set' command")
				return
			}
			opt.TTL = time.Duration(n) * unit
		case "NX":
			opt.NX = true
		case "XX":
			opt.XX = true
		case "KEEPTTL":
			opt.KeepTTL = true
		default:
			c.writeError("ERR syntax error")
			return
		}
	}

	if opt.NX && opt.XX {
		c.writeError("ERR syntax error")
		return
	}

	applied, err := h.srv.store.Set(string(args[1]), args[2], opt)
	if err != nil {
		c.writeStoreErr(err)
		return
	}
	if !applied {
		c.writeNullBulk()
		return
	}
	c.writeSimple("OK")
}

// DEL <key> [key ...]
func (h *Handler) handleDel(c *Conn, args [][]byte) {
	keys := make([]string, 0, len(args)-1)
	for _, a := range args[1:] {
		keys = append(keys, string(a))
	}
	c.writeInteger(int64(h.srv.store.Del(keys...)))
}

// EXISTS <key> [key ...]
func (h *Handler) handleExists(c *Conn, args [][]byte) {
	keys := make([]string, 0, len(args)-1)
	for _, a := range args[1:] {
		keys = append(keys, string(a))
	}
	c.writeInteger(int64(h.srv.store.Exists(keys...)))
}

// INCR / DECR
func (h *Handler) handleIncrBy(c *Conn, key []byte, delta int64) {
	val, err := h.srv.store.IncrBy(string(key), delta)
	if err != nil {
		c.writeStoreErr(err)
		return
	}
	c.writeInteger(val)
}

// INCRBY / DECRBY <key> <delta>
func (h *Handler) handleIncrByArg(c *Conn, args [][]byte, negate bool) {
	delta, err := strconv.ParseInt(string(args[2]), 10, 64)
	if err != nil {
		c.writeError("ERR value is not an integer or out of range")
		return
	}
	if negate {
		// DECRBY of math.MinInt64 cannot be negated; it overflows either way.
		if delta == -delta && delta != 0 {
			c.writeError("ERR " + store.ErrOverflow.Error())
			return
		}
		delta = -delta
	}
	h.handleIncrBy(c, args[1], delta)
}

// EXPIRE / PEXPIRE <key> <n>
func (h *Handler) handleExpire(c *Conn, args [][]byte, unit time.Duration) {
	n, err := strconv.ParseInt(string(args[2]), 10, 64)
	if err != nil {
		c.writeError("ERR value is not an integer or out of range")
		return
	}

	key := string(args[1])
	if n <= 0 {
		// A non-positive relative expiry deletes the key outright.
		c.writeInteger(int64(h.srv.store.Del(key)))
		return
	}
	if h.srv.store.Expire(key, time.Duration(n)*unit) {
		c.writeInteger(1)
		return
	}
	c.writeInteger(0)
}

// TTL / PTTL <key>
func (h *Handler) handleTTL(c *Conn, args [][]byte, unit time.Duration) {
	d, code := h.srv.store.TTL(string(args[1]))
	if code != 0 {
		c.writeInteger(int64(code))
		return
	}
	// Round up so TTL immediately after EXPIRE k s reports s.
	c.writeInteger(int64((d + unit - 1) / unit))
}

// PERSIST <key>
func (h *Handler) handlePersist(c *Conn, args [][]byte) {
	if h.srv.store.Persist(string(args[1])) {
		c.writeInteger(1)
		return
	}
	c.writeInteger(0)
}

// MGET <key> [key ...]
func (h *Handler) handleMGet(c *Conn, args [][]byte) {
	keys := make([]string, 0, len(args)-1)
	for _, a := range args[1:] {
		keys = append(keys, string(a))
	}
	c.writeBulkArray(h.srv.store.MGet(keys...))
}

// MSET <key> <value> [key value ...]
func (h *Handler) handleMSet(c *Conn, args [][]byte) {
	if (len(args)-1)%2 != 0 {
		c.writeError("ERR wrong number of arguments for 'MSET'")
		return
	}
	pairs := make([][2][]byte, 0, (len(args)-1)/2)
	for i := 1; i < len(args); i += 2 {
		pairs = append(pairs, [2][]byte{args[i], args[i+1]})
	}
	if err := h.srv.store.MSet(pairs); err != nil {
		c.writeStoreErr(err)
		return
	}
	c.writeSimple("OK")
}

// CAS <key> <expected> <new>
func (h *Handler) handleCAS(c *Conn, args [][]byte) {
	swapped, err := h.srv.store.CAS(string(args[1]), args[2], args[3])
	if err != nil {
		c.writeStoreErr(err)
		return
	}
	c.writeInteger(swapped)
}

// JSONPATCH <key> <patch>
func (h *Handler) handleJSONPatch(c *Conn, args [][]byte) {
	if err := h.srv.store.JSONPatch(string(args[1]), args[2]); err != nil {
		c.writeStoreErr(err)
		return
	}
	c.writeSimple("OK")
}

// KEYS <pattern>
func (h *Handler) handleKeys(c *Conn, args [][]byte) {
	keys := h.srv.store.Keys(string(args[1]))
	b := AppendArrayHeader(nil, len(keys))
	for _, k := range keys {
		b = AppendBulkString(b, k)
	}
	c.send(b)
}

// SCAN <cursor> [MATCH pattern] [COUNT count]
func (h *Handler) handleScan(c *Conn, args [][]byte) {
	cursor, err := strconv.ParseUint(string(args[1]), 10, 64)
	if err != nil {
		c.writeError("ERR invalid cursor")
		return
	}

	var match string
	count := 0
	for i := 2; i < len(args); i += 2 {
		if i+1 >= len(args) {
			c.writeError("ERR syntax error")
			return
		}
		switch strings.ToUpper(string(args[i])) {
		case "MATCH":
			match = string(args[i+1])
		case "COUNT":
			n, err := strconv.Atoi(string(args[i+1]))
			if err != nil || n <= 0 {
				c.writeError("ERR value is not an integer or out of range")
				return
			}
			count = n
		default:
			c.writeError("ERR syntax error")
			return
		}
	}

	next, keys := h.srv.store.Scan(cursor, match, count)

	b := AppendArrayHeader(nil, 2)
	b = AppendBulkString(b, strconv.FormatUint(next, 10))
	b = AppendArrayHeader(b, len(keys))
	for _, k := range keys {
		b = AppendBulkString(b, k)
	}
	c.send(b)
}
