package respserver

import (
	"bufio"
	"net"
	"sync"
	"sync/atomic"

	"github.com/yndnr/feoxd/internal/registry"
)

// Outbound buffering thresholds.
const (
	// defaultHighWater pauses command decoding when the outbound queue
	// holds this many bytes; decoding resumes below defaultLowWater.
	defaultHighWater = 8 << 20
	defaultLowWater  = 4 << 20

	// defaultPubSubHighWater is the queue size past which a slow
	// subscriber is disconnected rather than blocked on.
	defaultPubSubHighWater = 32 << 20

	// outQueueFrames bounds the outbound queue's frame count; byte
	// accounting is the primary limit.
	outQueueFrames = 4096
)

// Conn is one client connection. The reader goroutine owns the decode →
// authorize → dispatch → encode loop and all mode state; the writer
// goroutine drains the outbound queue so Pub/Sub deliveries from other
// connections interleave with replies only at frame boundaries.
type Conn struct {
	srv     *Server
	netConn net.Conn
	reader  *Reader
	client  *registry.Client

	// Outbound queue of complete frames, MPSC: the reader and any
	// publishing connection produce; the writer goroutine consumes.
	out      chan []byte
	outBytes atomic.Int64
	quit     chan struct{}
	quitOnce sync.Once

	flowMu   sync.Mutex
	flowCond *sync.Cond

	killed atomic.Bool
	closed atomic.Bool

	// Reader-goroutine-owned state machine fields.
	authenticated bool
	channels      map[string]struct{}
	patterns      map[string]struct{}
	quitting      bool
}

func newConn(srv *Server, nc net.Conn) *Conn {
	c := &Conn{
		srv:      srv,
		netConn:  nc,
		reader:   NewReader(nc),
		out:      make(chan []byte, outQueueFrames),
		quit:     make(chan struct{}),
		channels: make(map[string]struct{}),
		patterns: make(map[string]struct{}),
	}
	c.flowCond = sync.NewCond(&c.flowMu)
	return c
}

// SubscriberID implements pubsub.Subscriber.
func (c *Conn) SubscriberID() uint64 {
	return c.client.ID
}

// DeliverPubSub implements pubsub.Subscriber. It never blocks: a queue past
// the high-water mark marks the connection for asynchronous close and the
// frame is dropped.
func (c *Conn) DeliverPubSub(frame []byte) bool {
	if c.killed.Load() || c.closed.Load() {
		return false
	}
	if c.outBytes.Load()+int64(len(frame)) > defaultPubSubHighWater {
		c.srv.logger.Warn("pubsub queue overflow, disconnecting slow subscriber",
			"client_id", c.client.ID, "addr", c.client.Addr)
		c.srv.metrics.ConnectionsKilled.Inc()
		c.scheduleClose()
		return false
	}
	select {
	case c.out <- frame:
		c.outBytes.Add(int64(len(frame)))
		return true
	default:
		c.srv.metrics.ConnectionsKilled.Inc()
		c.scheduleClose()
		return false
	}
}

// send enqueues a reply frame. Called only from the reader goroutine, so
// reply order always matches command order on the connection.
func (c *Conn) send(frame []byte) {
	if c.closed.Load() {
		return
	}
	select {
	case c.out <- frame:
		c.outBytes.Add(int64(len(frame)))
	case <-c.quit:
	}
}

// scheduleClose requests an asynchronous close: the writer drains the queue
// (the in-flight reply included), closes the socket, and the reader exits on
// its next read. Used by CLIENT KILL and queue overflow.
func (c *Conn) scheduleClose() {
	c.killed.Store(true)
	c.quitOnce.Do(func() { close(c.quit) })
}

// waitForDrain blocks command decoding while the outbound queue is above the
// high-water mark.
func (c *Conn) waitForDrain() {
	c.flowMu.Lock()
	for c.outBytes.Load() > defaultHighWater && !c.killed.Load() && !c.closed.Load() {
		c.flowCond.Wait()
	}
	c.flowMu.Unlock()
}

// wakeReader signals a reader blocked in waitForDrain. The mutex hand-off
// prevents a wakeup from slipping between the reader's check and its Wait.
func (c *Conn) wakeReader() {
	c.flowMu.Lock()
	c.flowCond.Broadcast()
	c.flowMu.Unlock()
}

// writeLoop is the writer goroutine: drain, write, flush when idle.
func (c *Conn) writeLoop() {
	bw := bufio.NewWriterSize(c.netConn, 16*1024)

	closeConn := func() {
		c.closed.Store(true)
		_ = c.netConn.Close()
		c.wakeReader()
	}

	flushAndClose := func() {
		for {
			select {
			case frame := <-c.out:
				_, _ = bw.Write(frame)
			default:
				_ = bw.Flush()
				closeConn()
				return
			}
		}
	}

	for {
		select {
		case frame := <-c.out:
			if _, err := bw.Write(frame); err != nil {
				closeConn()
				return
			}
			if n := c.outBytes.Add(-int64(len(frame))); n < defaultLowWater {
				c.wakeReader()
			}
			if len(c.out) == 0 {
				if err := bw.Flush(); err != nil {
					closeConn()
					return
				}
			}
		case <-c.quit:
			flushAndClose()
			return
		}
	}
}

// subscribed reports whether the connection is in Subscribed mode.
func (c *Conn) subscribed() bool {
	return len(c.channels)+len(c.patterns) > 0
}

// subCounts pushes the current subscription counters to the registry record.
func (c *Conn) subCounts() {
	c.client.SetSubCounts(len(c.channels), len(c.patterns))
}

// Reply helpers; each builds one complete frame.

func (c *Conn) writeSimple(s string)     { c.send(AppendSimpleString(nil, s)) }
func (c *Conn) writeError(msg string)    { c.send(AppendError(nil, msg)) }
func (c *Conn) writeInteger(n int64)     { c.send(AppendInteger(nil, n)) }
func (c *Conn) writeBulk(v []byte)       { c.send(AppendBulk(nil, v)) }
func (c *Conn) writeBulkString(s string) { c.send(AppendBulkString(nil, s)) }
func (c *Conn) writeNullBulk()           { c.send(AppendNullBulk(nil)) }
func (c *Conn) writeNullArray()          { c.send(AppendNullArray(nil)) }

// writeBulkArray replies with an array of bulk strings; nil elements encode
// as null bulks.
func (c *Conn) writeBulkArray(values [][]byte) {
	b := AppendArrayHeader(nil, len(values))
	for _, v := range values {
		b = AppendBulk(b, v)
	}
	c.send(b)
}
