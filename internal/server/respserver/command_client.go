package respserver

import (
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/feoxd/internal/registry"
)

// CLIENT <subcommand> [args...]
func (h *Handler) handleClient(c *Conn, args [][]byte) {
	sub := strings.ToUpper(string(args[1]))
	rest := args[2:]

	switch sub {
	case "ID":
		c.writeInteger(int64(c.client.ID))

	case "LIST":
		c.writeBulkString(h.srv.registry.List())

	case "INFO":
		line, ok := h.srv.registry.Info(c.client.ID)
		if !ok {
			c.writeError("ERR no such client")
			return
		}
		c.writeBulkString(line)

	case "SETNAME":
		if len(rest) != 1 {
			c.writeError("ERR wrong number of arguments for 'CLIENT SETNAME'")
			return
		}
		name := string(rest[0])
		if strings.ContainsAny(name, " \n\r") {
			c.writeError("ERR Client names cannot contain spaces, newlines or special characters.")
			return
		}
		c.client.SetName(name)
		c.writeSimple("OK")

	case "GETNAME":
		if name := c.client.Name(); name != "" {
			c.writeBulkString(name)
			return
		}
		c.writeBulkString("")

	case "KILL":
		h.handleClientKill(c, rest)

	case "PAUSE":
		if len(rest) != 1 {
			c.writeError("ERR wrong number of arguments for 'CLIENT PAUSE'")
			return
		}
		ms, err := strconv.ParseInt(string(rest[0]), 10, 64)
		if err != nil || ms < 0 {
			c.writeError("ERR timeout is not an integer or out of range")
			return
		}
		h.srv.registry.Pause(time.Duration(ms) * time.Millisecond)
		c.writeSimple("OK")

	case "UNPAUSE":
		h.srv.registry.Unpause()
		c.writeSimple("OK")

	default:
		c.writeError("ERR Unknown CLIENT subcommand or wrong number of arguments for '" + string(args[1]) + "'")
	}
}

// CLIENT KILL ID <id> | ADDR <addr> | TYPE normal|pubsub, or legacy
// CLIENT KILL <addr>.
func (h *Handler) handleClientKill(c *Conn, args [][]byte) {
	if len(args) == 0 {
		c.writeError("ERR wrong number of arguments for 'CLIENT KILL'")
		return
	}

	// Legacy single-address form replies +OK / no such client.
	if len(args) == 1 {
		killed := h.srv.registry.Kill(registry.KillFilter{Addr: string(args[0])})
		if killed == 0 {
			c.writeError("ERR No such client")
			return
		}
		h.srv.metrics.ConnectionsKilled.Add(float64(killed))
		c.writeSimple("OK")
		return
	}

	var filter registry.KillFilter
	for i := 0; i+1 < len(args); i += 2 {
		switch strings.ToUpper(string(args[i])) {
		case "ID":
			id, err := strconv.ParseUint(string(args[i+1]), 10, 64)
			if err != nil {
				c.writeError("ERR value is not an integer or out of range")
				return
			}
			filter.ID = id
		case "ADDR":
			filter.Addr = string(args[i+1])
		case "TYPE":
			t := strings.ToLower(string(args[i+1]))
			if t != "normal" && t != "pubsub" {
				c.writeError("ERR Unknown client type '" + t + "'")
				return
			}
			filter.Type = t
		default:
			c.writeError("ERR syntax error")
			return
		}
	}
	if len(args)%2 != 0 {
		c.writeError("ERR syntax error")
		return
	}

	killed := h.srv.registry.Kill(filter)
	h.srv.metrics.ConnectionsKilled.Add(float64(killed))
	c.writeInteger(int64(killed))
}
