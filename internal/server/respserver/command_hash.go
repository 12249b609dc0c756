package respserver

import (
	"strconv"

	"github.com/yndnr/feoxd/internal/store"
)

// HSET <key> <field> <value> [field value ...]
func (h *Handler) handleHSet(c *Conn, args [][]byte) {
	if (len(args)-2)%2 != 0 {
		c.writeError("ERR wrong number of arguments for 'HSET'")
		return
	}

	pairs := make([]store.FieldValue, 0, (len(args)-2)/2)
	for i := 2; i < len(args); i += 2 {
		pairs = append(pairs, store.FieldValue{Field: args[i], Value: args[i+1]})
	}

	added, err := h.srv.store.HSet(string(args[1]), pairs)
	if err != nil {
		c.writeStoreErr(err)
		return
	}
	c.writeInteger(int64(added))
}

// HGET <key> <field>
func (h *Handler) handleHGet(c *Conn, args [][]byte) {
	val, ok, err := h.srv.store.HGet(string(args[1]), string(args[2]))
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

// HMGET <key> <field> [field ...]
func (h *Handler) handleHMGet(c *Conn, args [][]byte) {
	fields := make([]string, 0, len(args)-2)
	for _, f := range args[2:] {
		fields = append(fields, string(f))
	}

	vals, err := h.srv.store.HMGet(string(args[1]), fields)
	if err != nil {
		c.writeStoreErr(err)
		return
	}
	c.writeBulkArray(vals)
}

// HDEL <key> <field> [field ...]
func (h *Handler) handleHDel(c *Conn, args [][]byte) {
	fields := make([]string, 0, len(args)-2)
	for _, f := range args[2:] {
		fields = append(fields, string(f))
	}

	removed, err := h.srv.store.HDel(string(args[1]), fields)
	if err != nil {
		c.writeStoreErr(err)
		return
	}
	c.writeInteger(int64(removed))
}

// HEXISTS <key> <field>
func (h *Handler) handleHExists(c *Conn, args [][]byte) {
	ok, err := h.srv.store.HExists(string(args[1]), string(args[2]))
	if err != nil {
		c.writeStoreErr(err)
		return
	}
	if ok {
		c.writeInteger(1)
		return
	}
	c.writeInteger(0)
}

// HGETALL <key>
func (h *Handler) handleHGetAll(c *Conn, args [][]byte) {
	pairs, err := h.srv.store.HGetAll(string(args[1]))
	if err != nil {
		c.writeStoreErr(err)
		return
	}
	c.writeBulkArray(pairs)
}

// HLEN <key>
func (h *Handler) handleHLen(c *Conn, args [][]byte) {
	n, err := h.srv.store.HLen(string(args[1]))
	if err != nil {
		c.writeStoreErr(err)
		return
	}
	c.writeInteger(int64(n))
}

// HKEYS <key>
func (h *Handler) handleHKeys(c *Conn, args [][]byte) {
	fields, err := h.srv.store.HKeys(string(args[1]))
	if err != nil {
		c.writeStoreErr(err)
		return
	}
	c.writeBulkArray(fields)
}

// HVALS <key>
func (h *Handler) handleHVals(c *Conn, args [][]byte) {
	vals, err := h.srv.store.HVals(string(args[1]))
	if err != nil {
		c.writeStoreErr(err)
		return
	}
	c.writeBulkArray(vals)
}

// HINCRBY <key> <field> <delta>
func (h *Handler) handleHIncrBy(c *Conn, args [][]byte) {
	delta, err := strconv.ParseInt(string(args[3]), 10, 64)
	if err != nil {
		c.writeError("ERR value is not an integer or out of range")
		return
	}

	val, err := h.srv.store.HIncrBy(string(args[1]), string(args[2]), delta)
	if err != nil {
		c.writeStoreErr(err)
		return
	}
	c.writeInteger(val)
}
