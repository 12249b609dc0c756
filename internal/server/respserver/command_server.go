package respserver

import (
	"crypto/subtle"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/yndnr/feoxd/internal/infra/buildinfo"
	"github.com/yndnr/feoxd/pkg/glob"
)

// PING [message]
func (h *Handler) handlePing(c *Conn, args [][]byte) {
	if len(args) > 2 {
		c.writeError("ERR wrong number of arguments for 'PING'")
		return
	}
	if len(args) == 2 {
		c.writeBulk(args[1])
		return
	}
	c.writeSimple("PONG")
}

// AUTH [username] <password>
func (h *Handler) handleAuth(c *Conn, args [][]byte) {
	if len(args) > 3 {
		c.writeError("ERR wrong number of arguments for 'AUTH'")
		return
	}

	configured := h.cfg.requirepass()
	if configured == "" {
		c.writeError("ERR Client sent AUTH, but no password is set")
		return
	}

	password := string(args[1])
	if len(args) == 3 {
		// Only the default user exists.
		if string(args[1]) != "default" {
			c.writeError("WRONGPASS invalid username-password pair or user is disabled.")
			return
		}
		password = string(args[2])
	}

	if subtle.ConstantTimeCompare([]byte(password), []byte(configured)) != 1 {
		c.writeError("WRONGPASS invalid username-password pair or user is disabled.")
		return
	}

	c.authenticated = true
	c.writeSimple("OK")
}

// HELLO [protover]
func (h *Handler) handleHello(c *Conn, args [][]byte) {
	if len(args) > 2 {
		c.writeError("ERR wrong number of arguments for 'HELLO'")
		return
	}
	if len(args) == 2 && string(args[1]) != "2" {
		c.writeError("NOPROTO unsupported protocol version")
		return
	}

	b := AppendArrayHeader(nil, 14)
	b = AppendBulkString(b, "server")
	b = AppendBulkString(b, "feoxd")
	b = AppendBulkString(b, "version")
	b = AppendBulkString(b, buildinfo.Version)
	b = AppendBulkString(b, "proto")
	b = AppendInteger(b, 2)
	b = AppendBulkString(b, "id")
	b = AppendInteger(b, int64(c.client.ID))
	b = AppendBulkString(b, "mode")
	b = AppendBulkString(b, "standalone")
	b = AppendBulkString(b, "role")
	b = AppendBulkString(b, "master")
	b = AppendBulkString(b, "modules")
	b = AppendArrayHeader(b, 0)
	c.send(b)
}

// RESET returns the connection to its initial state: subscriptions dropped,
// authentication cleared when a password is configured.
func (h *Handler) handleReset(c *Conn) {
	channels := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		channels = append(channels, ch)
	}
	patterns := make([]string, 0, len(c.patterns))
	for p := range c.patterns {
		patterns = append(patterns, p)
	}
	h.srv.hub.Drop(c, channels, patterns)
	clear(c.channels)
	clear(c.patterns)
	c.subCounts()

	if h.cfg.requirepass() != "" {
		c.authenticated = false
	}
	c.writeSimple("RESET")
}

// INFO [section]
func (h *Handler) handleInfo(c *Conn, args [][]byte) {
	var section string
	if len(args) == 2 {
		section = strings.ToLower(string(args[1]))
	}
	want := func(name string) bool {
		return section == "" || section == name
	}

	var b strings.Builder

	if want("server") {
		uptime := int64(time.Since(h.startTime).Seconds())
		fmt.Fprintf(&b, "# Server\r\n")
		fmt.Fprintf(&b, "redis_version:feoxd-%s\r\n", buildinfo.Version)
		fmt.Fprintf(&b, "redis_mode:standalone\r\n")
		fmt.Fprintf(&b, "os:%s %s\r\n", runtime.GOOS, runtime.GOARCH)
		fmt.Fprintf(&b, "arch_bits:%d\r\n", strconv.IntSize)
		fmt.Fprintf(&b, "process_id:%d\r\n", os.Getpid())
		fmt.Fprintf(&b, "run_id:%s\r\n", h.runID)
		fmt.Fprintf(&b, "tcp_port:%d\r\n", h.srv.port())
		fmt.Fprintf(&b, "uptime_in_seconds:%d\r\n", uptime)
		fmt.Fprintf(&b, "uptime_in_days:%d\r\n", uptime/86400)
		b.WriteString("\r\n")
	}

	if want("clients") {
		fmt.Fprintf(&b, "# Clients\r\n")
		fmt.Fprintf(&b, "connected_clients:%d\r\n", h.srv.registry.Count())
		fmt.Fprintf(&b, "blocked_clients:0\r\n")
		b.WriteString("\r\n")
	}

	if want("memory") {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		fmt.Fprintf(&b, "# Memory\r\n")
		fmt.Fprintf(&b, "used_memory:%d\r\n", ms.HeapAlloc)
		fmt.Fprintf(&b, "used_memory_human:%s\r\n", humanize.IBytes(ms.HeapAlloc))
		fmt.Fprintf(&b, "maxmemory:%d\r\n", h.cfg.maxMemory.Load())
		fmt.Fprintf(&b, "maxmemory_policy:%s\r\n", *h.cfg.policy.Load())
		b.WriteString("\r\n")
	}

	if want("stats") {
		fmt.Fprintf(&b, "# Stats\r\n")
		fmt.Fprintf(&b, "total_connections_received:%d\r\n", h.srv.connsTotal.Load())
		fmt.Fprintf(&b, "total_commands_processed:%d\r\n", h.commandsProcessed.Load())
		fmt.Fprintf(&b, "expired_keys:0\r\n")
		b.WriteString("\r\n")
	}

	if want("replication") {
		fmt.Fprintf(&b, "# Replication\r\n")
		fmt.Fprintf(&b, "role:master\r\n")
		fmt.Fprintf(&b, "connected_slaves:0\r\n")
		b.WriteString("\r\n")
	}

	if want("cpu") {
		fmt.Fprintf(&b, "# CPU\r\n")
		fmt.Fprintf(&b, "used_cpu_sys:0.00\r\n")
		fmt.Fprintf(&b, "used_cpu_user:0.00\r\n")
		b.WriteString("\r\n")
	}

	if want("keyspace") {
		fmt.Fprintf(&b, "# Keyspace\r\n")
		fmt.Fprintf(&b, "db0:keys=%d,expires=%d,avg_ttl=0\r\n",
			h.srv.store.Len(), h.srv.store.ExpiringLen())
	}

	c.writeBulkString(b.String())
}

// configParams lists the options CONFIG GET knows about, with their
// current-value accessors.
func (h *Handler) configParams() map[string]func() string {
	return map[string]func() string{
		"requirepass":      func() string { return h.cfg.requirepass() },
		"maxmemory":        func() string { return strconv.FormatUint(h.cfg.maxMemory.Load(), 10) },
		"maxmemory-policy": func() string { return *h.cfg.policy.Load() },
		"timeout":          func() string { return strconv.FormatInt(h.cfg.timeout.Load(), 10) },
		"bind":             func() string { return h.srv.bindAddr() },
		"port":             func() string { return strconv.Itoa(h.srv.port()) },
	}
}

// CONFIG GET <pattern> | SET <param> <value>
func (h *Handler) handleConfig(c *Conn, args [][]byte) {
	switch strings.ToUpper(string(args[1])) {
	case "GET":
		if len(args) != 3 {
			c.writeError("ERR wrong number of arguments for 'CONFIG'")
			return
		}
		pattern := strings.ToLower(string(args[2]))
		params := h.configParams()
		names := make([]string, 0, len(params))
		for name := range params {
			if glob.Match(pattern, name) {
				names = append(names, name)
			}
		}
		sort.Strings(names)

		b := AppendArrayHeader(nil, len(names)*2)
		for _, name := range names {
			b = AppendBulkString(b, name)
			b = AppendBulkString(b, params[name]())
		}
		c.send(b)

	case "SET":
		if len(args) != 4 {
			c.writeError("ERR wrong number of arguments for 'CONFIG'")
			return
		}
		param := strings.ToLower(string(args[2]))
		value := string(args[3])
		switch param {
		case "requirepass":
			h.cfg.setRequirepass(value)
			h.logger.Info("requirepass changed via CONFIG SET", "requirepass", value)
		case "maxmemory":
			n, err := humanize.ParseBytes(value)
			if err != nil {
				c.writeError("ERR argument must be a memory value")
				return
			}
			h.cfg.maxMemory.Store(n)
		case "maxmemory-policy":
			h.cfg.policy.Store(&value)
		case "timeout":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil || n < 0 {
				c.writeError("ERR argument couldn't be parsed into an integer")
				return
			}
			h.cfg.timeout.Store(n)
		default:
			c.writeError("ERR Unsupported CONFIG parameter")
			return
		}
		c.writeSimple("OK")

	default:
		c.writeError("ERR Unknown CONFIG subcommand or wrong number of arguments for '" + string(args[1]) + "'")
	}
}

// COMMAND lists every supported command with its arity, flags and key
// positions, the format redis-cli expects.
func (h *Handler) handleCommand(c *Conn) {
	names := make([]string, 0, len(commandTable))
	for name := range commandTable {
		names = append(names, name)
	}
	sort.Strings(names)

	b := AppendArrayHeader(nil, len(names))
	for _, name := range names {
		spec := commandTable[name]
		b = AppendArrayHeader(b, 6)
		b = AppendBulkString(b, strings.ToLower(name))
		b = AppendInteger(b, int64(spec.arity))
		b = AppendArrayHeader(b, 1)
		if spec.write {
			b = AppendBulkString(b, "write")
		} else {
			b = AppendBulkString(b, "readonly")
		}
		b = AppendInteger(b, int64(spec.firstKey))
		b = AppendInteger(b, int64(spec.lastKey))
		b = AppendInteger(b, int64(spec.step))
	}
	c.send(b)
}
