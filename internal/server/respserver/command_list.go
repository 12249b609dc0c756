package respserver

import (
	"strconv"
)

// LPUSH / RPUSH <key> <value> [value ...]
func (h *Handler) handlePush(c *Conn, args [][]byte, front bool) {
	key := string(args[1])
	var (
		n   int
		err error
	)
	if front {
		n, err = h.srv.store.LPush(key, args[2:]...)
	} else {
		n, err = h.srv.store.RPush(key, args[2:]...)
	}
	if err != nil {
		c.writeStoreErr(err)
		return
	}
	c.writeInteger(int64(n))
}

// LPOP / RPOP <key> [count]
//
// Without COUNT the reply is a bulk string (or null); with COUNT it is an
// array (or null array when the key is absent).
func (h *Handler) handlePop(c *Conn, args [][]byte, front bool) {
	if len(args) > 3 {
		c.writeError("ERR wrong number of arguments for '" + normalizeCommandName(args[0]) + "'")
		return
	}

	count := 0
	hasCount := len(args) == 3
	if hasCount {
		n, err := strconv.Atoi(string(args[2]))
		if err != nil || n < 0 {
			c.writeError("ERR value is out of range, must be positive")
			return
		}
		count = n
	}

	key := string(args[1])
	if hasCount && count == 0 {
		if h.srv.store.Exists(key) == 0 {
			c.writeNullArray()
			return
		}
		c.writeBulkArray(nil)
		return
	}

	var (
		vals [][]byte
		err  error
	)
	if front {
		vals, err = h.srv.store.LPop(key, count)
	} else {
		vals, err = h.srv.store.RPop(key, count)
	}
	if err != nil {
		c.writeStoreErr(err)
		return
	}

	if !hasCount {
		if len(vals) == 0 {
			c.writeNullBulk()
			return
		}
		c.writeBulk(vals[0])
		return
	}
	if vals == nil {
		c.writeNullArray()
		return
	}
	c.writeBulkArray(vals)
}

// LLEN <key>
func (h *Handler) handleLLen(c *Conn, args [][]byte) {
	n, err := h.srv.store.LLen(string(args[1]))
	if err != nil {
		c.writeStoreErr(err)
		return
	}
	c.writeInteger(int64(n))
}

// LRANGE <key> <start> <stop>
func (h *Handler) handleLRange(c *Conn, args [][]byte) {
	start, err1 := strconv.Atoi(string(args[2]))
	stop, err2 := strconv.Atoi(string(args[3]))
	if err1 != nil || err2 != nil {
		c.writeError("ERR value is not an integer or out of range")
		return
	}

	vals, err := h.srv.store.LRange(string(args[1]), start, stop)
	if err != nil {
		c.writeStoreErr(err)
		return
	}
	c.writeBulkArray(vals)
}

// LINDEX <key> <index>
func (h *Handler) handleLIndex(c *Conn, args [][]byte) {
	index, err := strconv.Atoi(string(args[2]))
	if err != nil {
		c.writeError("ERR value is not an integer or out of range")
		return
	}

	val, ok, err := h.srv.store.LIndex(string(args[1]), index)
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
