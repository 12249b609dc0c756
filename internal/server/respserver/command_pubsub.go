package respserver

import (
	"strings"
)

// subReply renders one subscribe/unsubscribe confirmation frame:
// [kind, channel|nil, active-subscription-count].
func subReply(kind string, name []byte, count int) []byte {
	b := AppendArrayHeader(nil, 3)
	b = AppendBulkString(b, kind)
	b = AppendBulk(b, name)
	return AppendInteger(b, int64(count))
}

// SUBSCRIBE <channel> [channel ...]
func (h *Handler) handleSubscribe(c *Conn, args [][]byte) {
	for _, a := range args[1:] {
		ch := string(a)
		if _, ok := c.channels[ch]; !ok {
			c.channels[ch] = struct{}{}
			h.srv.hub.Subscribe(c, ch)
		}
		c.subCounts()
		c.send(subReply("subscribe", a, len(c.channels)+len(c.patterns)))
	}
}

// UNSUBSCRIBE [channel ...]
func (h *Handler) handleUnsubscribe(c *Conn, args [][]byte) {
	targets := args[1:]
	if len(targets) == 0 {
		if len(c.channels) == 0 {
			c.send(subReply("unsubscribe", nil, len(c.patterns)))
			return
		}
		for ch := range c.channels {
			targets = append(targets, []byte(ch))
		}
	}

	for _, a := range targets {
		ch := string(a)
		if _, ok := c.channels[ch]; ok {
			delete(c.channels, ch)
			h.srv.hub.Unsubscribe(c, ch)
		}
		c.subCounts()
		c.send(subReply("unsubscribe", a, len(c.channels)+len(c.patterns)))
	}
}

// PSUBSCRIBE <pattern> [pattern ...]
func (h *Handler) handlePSubscribe(c *Conn, args [][]byte) {
	for _, a := range args[1:] {
		p := string(a)
		if _, ok := c.patterns[p]; !ok {
			c.patterns[p] = struct{}{}
			h.srv.hub.PSubscribe(c, p)
		}
		c.subCounts()
		c.send(subReply("psubscribe", a, len(c.channels)+len(c.patterns)))
	}
}

// PUNSUBSCRIBE [pattern ...]
func (h *Handler) handlePUnsubscribe(c *Conn, args [][]byte) {
	targets := args[1:]
	if len(targets) == 0 {
		if len(c.patterns) == 0 {
			c.send(subReply("punsubscribe", nil, len(c.channels)))
			return
		}
		for p := range c.patterns {
			targets = append(targets, []byte(p))
		}
	}

	for _, a := range targets {
		p := string(a)
		if _, ok := c.patterns[p]; ok {
			delete(c.patterns, p)
			h.srv.hub.PUnsubscribe(c, p)
		}
		c.subCounts()
		c.send(subReply("punsubscribe", a, len(c.channels)+len(c.patterns)))
	}
}

// PUBLISH <channel> <message>
func (h *Handler) handlePublish(c *Conn, args [][]byte) {
	n := h.srv.hub.Publish(string(args[1]), args[2])
	c.writeInteger(int64(n))
}

// PUBSUB CHANNELS [pattern] | NUMSUB [channel ...] | NUMPAT
func (h *Handler) handlePubSub(c *Conn, args [][]byte) {
	switch strings.ToUpper(string(args[1])) {
	case "CHANNELS":
		if len(args) > 3 {
			c.writeError("ERR wrong number of arguments for 'PUBSUB'")
			return
		}
		pattern := ""
		if len(args) == 3 {
			pattern = string(args[2])
		}
		channels := h.srv.hub.Channels(pattern)
		b := AppendArrayHeader(nil, len(channels))
		for _, ch := range channels {
			b = AppendBulkString(b, ch)
		}
		c.send(b)

	case "NUMSUB":
		channels := args[2:]
		names := make([]string, 0, len(channels))
		for _, ch := range channels {
			names = append(names, string(ch))
		}
		counts := h.srv.hub.NumSub(names...)
		b := AppendArrayHeader(nil, len(channels)*2)
		for i, ch := range channels {
			b = AppendBulk(b, ch)
			b = AppendInteger(b, int64(counts[i]))
		}
		c.send(b)

	case "NUMPAT":
		if len(args) != 2 {
			c.writeError("ERR wrong number of arguments for 'PUBSUB'")
			return
		}
		c.writeInteger(int64(h.srv.hub.NumPat()))

	default:
		c.writeError("ERR Unknown PUBSUB subcommand or wrong number of arguments for '" + string(args[1]) + "'")
	}
}
