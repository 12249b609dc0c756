package respserver

import (
	"crypto/rand"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/feoxd/internal/store"
)

// cmdSpec drives arity validation, mode gating, CLIENT PAUSE write deferral
// and the COMMAND introspection reply.
//
// arity follows the Redis convention: positive is exact (command included),
// negative is a minimum.
type cmdSpec struct {
	arity int
	write bool
	// subOK marks commands legal in Subscribed mode.
	subOK bool
	// noAuth marks commands legal before authentication.
	noAuth bool
	// firstKey/lastKey/step describe key positions for COMMAND; lastKey -1
	// means "through the final argument".
	firstKey, lastKey, step int
}

var commandTable = map[string]cmdSpec{
	"GET":    {arity: 2, firstKey: 1, lastKey: 1, step: 1},
	"SET":    {arity: -3, write: true, firstKey: 1, lastKey: 1, step: 1},
	"DEL":    {arity: -2, write: true, firstKey: 1, lastKey: -1, step: 1},
	"EXISTS": {arity: -2, firstKey: 1, lastKey: -1, step: 1},

	"INCR":   {arity: 2, write: true, firstKey: 1, lastKey: 1, step: 1},
	"INCRBY": {arity: 3, write: true, firstKey: 1, lastKey: 1, step: 1},
	"DECR":   {arity: 2, write: true, firstKey: 1, lastKey: 1, step: 1},
	"DECRBY": {arity: 3, write: true, firstKey: 1, lastKey: 1, step: 1},

	"EXPIRE":  {arity: 3, write: true, firstKey: 1, lastKey: 1, step: 1},
	"PEXPIRE": {arity: 3, write: true, firstKey: 1, lastKey: 1, step: 1},
	"TTL":     {arity: 2, firstKey: 1, lastKey: 1, step: 1},
	"PTTL":    {arity: 2, firstKey: 1, lastKey: 1, step: 1},
	"PERSIST": {arity: 2, write: true, firstKey: 1, lastKey: 1, step: 1},

	"MGET":      {arity: -2, firstKey: 1, lastKey: -1, step: 1},
	"MSET":      {arity: -3, write: true, firstKey: 1, lastKey: -1, step: 2},
	"CAS":       {arity: 4, write: true, firstKey: 1, lastKey: 1, step: 1},
	"JSONPATCH": {arity: 3, write: true, firstKey: 1, lastKey: 1, step: 1},

	"TYPE":    {arity: 2, firstKey: 1, lastKey: 1, step: 1},
	"KEYS":    {arity: 2},
	"SCAN":    {arity: -2},
	"DBSIZE":  {arity: 1},
	"FLUSHDB": {arity: -1, write: true},

	"LPUSH":  {arity: -3, write: true, firstKey: 1, lastKey: 1, step: 1},
	"RPUSH":  {arity: -3, write: true, firstKey: 1, lastKey: 1, step: 1},
	"LPOP":   {arity: -2, write: true, firstKey: 1, lastKey: 1, step: 1},
	"RPOP":   {arity: -2, write: true, firstKey: 1, lastKey: 1, step: 1},
	"LLEN":   {arity: 2, firstKey: 1, lastKey: 1, step: 1},
	"LRANGE": {arity: 4, firstKey: 1, lastKey: 1, step: 1},
	"LINDEX": {arity: 3, firstKey: 1, lastKey: 1, step: 1},

	"HSET":    {arity: -4, write: true, firstKey: 1, lastKey: 1, step: 1},
	"HGET":    {arity: 3, firstKey: 1, lastKey: 1, step: 1},
	"HMGET":   {arity: -3, firstKey: 1, lastKey: 1, step: 1},
	"HDEL":    {arity: -3, write: true, firstKey: 1, lastKey: 1, step: 1},
	"HEXISTS": {arity: 3, firstKey: 1, lastKey: 1, step: 1},
	"HGETALL": {arity: 2, firstKey: 1, lastKey: 1, step: 1},
	"HLEN":    {arity: 2, firstKey: 1, lastKey: 1, step: 1},
	"HKEYS":   {arity: 2, firstKey: 1, lastKey: 1, step: 1},
	"HVALS":   {arity: 2, firstKey: 1, lastKey: 1, step: 1},
	"HINCRBY": {arity: 4, write: true, firstKey: 1, lastKey: 1, step: 1},

	"SUBSCRIBE":    {arity: -2, subOK: true},
	"UNSUBSCRIBE":  {arity: -1, subOK: true},
	"PSUBSCRIBE":   {arity: -2, subOK: true},
	"PUNSUBSCRIBE": {arity: -1, subOK: true},
	"PUBLISH":      {arity: 3},
	"PUBSUB":       {arity: -2},

	"CLIENT": {arity: -2},

	"PING":    {arity: -1, subOK: true},
	"ECHO":    {arity: 2},
	"AUTH":    {arity: -2, noAuth: true},
	"HELLO":   {arity: -1, noAuth: true},
	"QUIT":    {arity: 1, subOK: true, noAuth: true},
	"RESET":   {arity: 1, subOK: true},
	"INFO":    {arity: -1},
	"CONFIG":  {arity: -2},
	"COMMAND": {arity: -1},
}

// runtimeConfig holds the CONFIG SET tunables.
type runtimeConfig struct {
	pass      atomic.Pointer[string]
	maxMemory atomic.Uint64
	policy    atomic.Pointer[string]
	timeout   atomic.Int64 // seconds, 0 = no idle timeout
}

func newRuntimeConfig(requirepass string) *runtimeConfig {
	rc := &runtimeConfig{}
	rc.pass.Store(&requirepass)
	policy := "noeviction"
	rc.policy.Store(&policy)
	return rc
}

func (rc *runtimeConfig) requirepass() string { return *rc.pass.Load() }

func (rc *runtimeConfig) setRequirepass(p string) { rc.pass.Store(&p) }

func (rc *runtimeConfig) idleTimeout() time.Duration {
	return time.Duration(rc.timeout.Load()) * time.Second
}

// Handler is the command dispatcher: a function of (decoded command,
// connection, store, hub, registry) producing a reply and state transitions.
type Handler struct {
	srv     *Server
	cfg     *runtimeConfig
	limiter *ipLimiter
	logger  *slog.Logger

	startTime time.Time
	runID     string

	commandsProcessed atomic.Uint64
}

func newHandler(s *Server) *Handler {
	h := &Handler{
		srv:       s,
		cfg:       newRuntimeConfig(s.cfg.Requirepass),
		logger:    s.logger,
		startTime: time.Now(),
		runID:     strings.ToLower(ulid.MustNew(ulid.Now(), rand.Reader).String()),
	}
	if s.cfg.RateLimit > 0 {
		h.limiter = newIPLimiter(s.cfg.RateLimit)
	}
	return h
}

// SetRequirepass swaps the AUTH password at runtime (CONFIG SET, config
// file reload).
func (h *Handler) SetRequirepass(p string) {
	h.cfg.setRequirepass(p)
}

// Dispatch validates and executes one decoded command on c.
func (h *Handler) Dispatch(c *Conn, args [][]byte) {
	name := normalizeCommandName(args[0])

	h.commandsProcessed.Add(1)
	h.srv.metrics.CommandsProcessed.WithLabelValues(name).Inc()
	c.client.Touch(name, time.Now())

	spec, known := commandTable[name]

	// Auth gate: before authentication only AUTH, HELLO and QUIT are
	// legal; HELLO reports the auth requirement rather than serving.
	// Clearing requirepass at runtime admits connections that never sent
	// AUTH.
	if !c.authenticated && h.cfg.requirepass() != "" {
		if name == "HELLO" || (!known || !spec.noAuth) {
			c.writeError("NOAUTH Authentication required.")
			return
		}
	}

	if !known {
		c.writeError("ERR unknown command '" + string(args[0]) + "'")
		return
	}

	if !checkArity(spec.arity, len(args)) {
		c.writeError("ERR wrong number of arguments for '" + name + "'")
		return
	}

	if c.subscribed() && !spec.subOK {
		c.writeError("ERR Can't execute '" + strings.ToLower(name) +
			"': only (P)SUBSCRIBE / (P)UNSUBSCRIBE / PING / QUIT allowed in this context")
		return
	}

	// CLIENT PAUSE defers writes until the deadline; reads proceed.
	// Sleeping here keeps this connection's replies in command order.
	if spec.write {
		if d := h.srv.registry.PauseRemaining(); d > 0 {
			time.Sleep(d)
		}
	}

	if h.limiter != nil && !h.limiter.Allow(c.client.Addr) {
		c.writeError("ERR rate limit exceeded")
		return
	}

	switch name {
	case "GET":
		h.handleGet(c, args)
	case "SET":
		h.handleSet(c, args)
	case "DEL":
		h.handleDel(c, args)
	case "EXISTS":
		h.handleExists(c, args)
	case "INCR":
		h.handleIncrBy(c, args[1], 1)
	case "DECR":
		h.handleIncrBy(c, args[1], -1)
	case "INCRBY", "DECRBY":
		h.handleIncrByArg(c, args, name == "DECRBY")
	case "EXPIRE":
		h.handleExpire(c, args, time.Second)
	case "PEXPIRE":
		h.handleExpire(c, args, time.Millisecond)
	case "TTL":
		h.handleTTL(c, args, time.Second)
	case "PTTL":
		h.handleTTL(c, args, time.Millisecond)
	case "PERSIST":
		h.handlePersist(c, args)
	case "MGET":
		h.handleMGet(c, args)
	case "MSET":
		h.handleMSet(c, args)
	case "CAS":
		h.handleCAS(c, args)
	case "JSONPATCH":
		h.handleJSONPatch(c, args)
	case "TYPE":
		kind, ok := h.srv.store.Type(string(args[1]))
		if !ok {
			c.writeSimple("none")
		} else {
			c.writeSimple(kind.String())
		}
	case "KEYS":
		h.handleKeys(c, args)
	case "SCAN":
		h.handleScan(c, args)
	case "DBSIZE":
		c.writeInteger(int64(h.srv.store.Len()))
	case "FLUSHDB":
		h.srv.store.Flush()
		c.writeSimple("OK")
	case "LPUSH", "RPUSH":
		h.handlePush(c, args, name == "LPUSH")
	case "LPOP", "RPOP":
		h.handlePop(c, args, name == "LPOP")
	case "LLEN":
		h.handleLLen(c, args)
	case "LRANGE":
		h.handleLRange(c, args)
	case "LINDEX":
		h.handleLIndex(c, args)
	case "HSET":
		h.handleHSet(c, args)
	case "HGET":
		h.handleHGet(c, args)
	case "HMGET":
		h.handleHMGet(c, args)
	case "HDEL":
		h.handleHDel(c, args)
	case "HEXISTS":
		h.handleHExists(c, args)
	case "HGETALL":
		h.handleHGetAll(c, args)
	case "HLEN":
		h.handleHLen(c, args)
	case "HKEYS":
		h.handleHKeys(c, args)
	case "HVALS":
		h.handleHVals(c, args)
	case "HINCRBY":
		h.handleHIncrBy(c, args)
	case "SUBSCRIBE":
		h.handleSubscribe(c, args)
	case "UNSUBSCRIBE":
		h.handleUnsubscribe(c, args)
	case "PSUBSCRIBE":
		h.handlePSubscribe(c, args)
	case "PUNSUBSCRIBE":
		h.handlePUnsubscribe(c, args)
	case "PUBLISH":
		h.handlePublish(c, args)
	case "PUBSUB":
		h.handlePubSub(c, args)
	case "CLIENT":
		h.handleClient(c, args)
	case "PING":
		h.handlePing(c, args)
	case "ECHO":
		c.writeBulk(args[1])
	case "AUTH":
		h.handleAuth(c, args)
	case "HELLO":
		h.handleHello(c, args)
	case "QUIT":
		c.writeSimple("OK")
		c.quitting = true
		c.scheduleClose()
	case "RESET":
		h.handleReset(c)
	case "INFO":
		h.handleInfo(c, args)
	case "CONFIG":
		h.handleConfig(c, args)
	case "COMMAND":
		h.handleCommand(c)
	}
}

func checkArity(arity, n int) bool {
	if arity >= 0 {
		return n == arity
	}
	return n >= -arity
}

// writeStoreErr maps a store error onto the wire. ErrWrongType carries its
// own prefix; everything else is an ERR.
func (c *Conn) writeStoreErr(err error) {
	if errors.Is(err, store.ErrWrongType) {
		c.writeError(err.Error())
		return
	}
	c.writeError("ERR " + err.Error())
}
