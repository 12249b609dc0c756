// Package registry maintains the process-wide table of live client
// connections: id, remote address, optional name, mode, subscription
// counters, and timing used by CLIENT LIST. It also owns the process-global
// pause deadline set by CLIENT PAUSE.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/feoxd/pkg/cmap"
)

// Client is one live connection's registry record. The owning connection
// goroutine updates it; CLIENT LIST/KILL read it from other goroutines.
type Client struct {
	ID        uint64
	Addr      string
	CreatedAt time.Time

	mu      sync.Mutex
	name    string
	lastCmd string
	lastAt  time.Time

	subs  atomic.Int32
	psubs atomic.Int32

	// closeFn schedules the connection for asynchronous close after the
	// current in-flight reply. Installed by the server at accept time.
	closeFn func()
}

// SetName sets the client-assigned connection name.
func (c *Client) SetName(name string) {
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
}

// Name returns the client-assigned connection name.
func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// Touch records the last executed command and its time.
func (c *Client) Touch(cmd string, at time.Time) {
	c.mu.Lock()
	c.lastCmd = cmd
	c.lastAt = at
	c.mu.Unlock()
}

// SetSubCounts updates the channel and pattern subscription counters.
func (c *Client) SetSubCounts(subs, psubs int) {
	c.subs.Store(int32(subs))
	c.psubs.Store(int32(psubs))
}

// InPubSub reports whether the connection holds any subscription.
func (c *Client) InPubSub() bool {
	return c.subs.Load() > 0 || c.psubs.Load() > 0
}

// Kill schedules the connection for close.
func (c *Client) Kill() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

// line renders the CLIENT LIST representation of the record.
func (c *Client) line(now time.Time) string {
	c.mu.Lock()
	name, lastCmd, lastAt := c.name, c.lastCmd, c.lastAt
	c.mu.Unlock()

	if lastCmd == "" {
		lastCmd = "NULL"
	}
	idle := int64(0)
	if !lastAt.IsZero() {
		idle = int64(now.Sub(lastAt).Seconds())
	}
	flags := "N"
	if c.InPubSub() {
		flags = "P"
	}

	return fmt.Sprintf("id=%d addr=%s name=%s age=%d idle=%d flags=%s db=0 sub=%d psub=%d cmd=%s",
		c.ID, c.Addr, name,
		int64(now.Sub(c.CreatedAt).Seconds()), idle, flags,
		c.subs.Load(), c.psubs.Load(), strings.ToLower(lastCmd))
}

// Registry is the process-global client table.
type Registry struct {
	clients    *cmap.Map[uint64, *Client]
	nextID     atomic.Uint64
	pauseUntil atomic.Int64 // unix nanos; 0 = not paused
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		clients: cmap.New[uint64, *Client](),
	}
}

// Register creates a record for a new connection. closeFn is invoked by
// CLIENT KILL to schedule the connection's close.
func (r *Registry) Register(addr string, closeFn func()) *Client {
	c := &Client{
		ID:        r.nextID.Add(1),
		Addr:      addr,
		CreatedAt: time.Now(),
		closeFn:   closeFn,
	}
	r.clients.Set(c.ID, c)
	return c
}

// Unregister removes a connection's record.
func (r *Registry) Unregister(id uint64) {
	r.clients.Delete(id)
}

// Get returns the record for id.
func (r *Registry) Get(id uint64) (*Client, bool) {
	return r.clients.Get(id)
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	return r.clients.Count()
}

// List renders one CLIENT LIST line per connection, ordered by id.
func (r *Registry) List() string {
	var clients []*Client
	r.clients.Range(func(_ uint64, c *Client) bool {
		clients = append(clients, c)
		return true
	})
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })

	now := time.Now()
	var b strings.Builder
	for _, c := range clients {
		b.WriteString(c.line(now))
		b.WriteByte('\n')
	}
	return b.String()
}

// Info renders the single CLIENT INFO line for id.
func (r *Registry) Info(id uint64) (string, bool) {
	c, ok := r.clients.Get(id)
	if !ok {
		return "", false
	}
	return c.line(time.Now()), true
}

// KillFilter selects connections for CLIENT KILL. Zero values match nothing.
type KillFilter struct {
	ID   uint64
	Addr string
	// Type is "normal" or "pubsub".
	Type string
}

// Kill schedules every matching connection for close and returns the count.
func (r *Registry) Kill(f KillFilter) int {
	killed := 0
	r.clients.Range(func(_ uint64, c *Client) bool {
		match := false
		if f.ID != 0 && c.ID == f.ID {
			match = true
		}
		if f.Addr != "" && c.Addr == f.Addr {
			match = true
		}
		switch f.Type {
		case "normal":
			if !c.InPubSub() {
				match = true
			}
		case "pubsub":
			if c.InPubSub() {
				match = true
			}
		}
		if match {
			c.Kill()
			killed++
		}
		return true
	})
	return killed
}

// Pause sets the process-global pause deadline.
func (r *Registry) Pause(d time.Duration) {
	r.pauseUntil.Store(time.Now().Add(d).UnixNano())
}

// Unpause clears the pause deadline.
func (r *Registry) Unpause() {
	r.pauseUntil.Store(0)
}

// PauseRemaining returns how long writes must still be deferred; zero when
// not paused.
func (r *Registry) PauseRemaining() time.Duration {
	until := r.pauseUntil.Load()
	if until == 0 {
		return 0
	}
	d := time.Until(time.Unix(0, until))
	if d < 0 {
		return 0
	}
	return d
}
