// Package pubsub implements the process-global publish/subscribe hub.
//
// The hub keeps two reverse maps: channel → subscribers and pattern →
// subscribers. Publishing enumerates the channel's literal subscribers first,
// then every pattern whose glob matches the channel; a connection subscribed
// through both paths receives two deliveries, matching Redis. Delivery never
// blocks: each subscriber exposes a non-blocking Deliver that enqueues the
// pre-encoded frame on the connection's outbound queue.
package pubsub

import (
	"sync"

	"github.com/yndnr/feoxd/pkg/cmap"
	"github.com/yndnr/feoxd/pkg/glob"
)

// Subscriber is one end of a subscription, implemented by the connection.
type Subscriber interface {
	// SubscriberID is the connection id, unique for the process lifetime.
	SubscriberID() uint64
	// DeliverPubSub enqueues an encoded message frame. It must not block;
	// a false return means the frame was dropped (overflow, closing).
	DeliverPubSub(frame []byte) bool
}

// Encoder renders delivery frames. Implemented by the RESP codec; kept as a
// function type so the hub stays protocol-agnostic.
type Encoder func(kind string, pattern, channel, payload []byte) []byte

type subscriberSet struct {
	mu   sync.RWMutex
	subs map[uint64]Subscriber
}

// Hub is the global subscription registry.
type Hub struct {
	channels *cmap.Map[string, *subscriberSet]
	patterns *cmap.Map[string, *subscriberSet]
	encode   Encoder

	onPublish func() // metrics hook, may be nil
}

// Option configures a Hub.
type Option func(*Hub)

// WithPublishHook registers a callback invoked once per PUBLISH.
func WithPublishHook(fn func()) Option {
	return func(h *Hub) { h.onPublish = fn }
}

// New creates a Hub that renders frames with encode.
func New(encode Encoder, opts ...Option) *Hub {
	h := &Hub{
		channels: cmap.New[string, *subscriberSet](),
		patterns: cmap.New[string, *subscriberSet](),
		encode:   encode,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe adds sub to channel. Returns true when the subscription is new.
func (h *Hub) Subscribe(sub Subscriber, channel string) bool {
	return add(h.channels, channel, sub)
}

// Unsubscribe removes sub from channel.
func (h *Hub) Unsubscribe(sub Subscriber, channel string) {
	remove(h.channels, channel, sub.SubscriberID())
}

// PSubscribe adds sub to pattern. Returns true when the subscription is new.
func (h *Hub) PSubscribe(sub Subscriber, pattern string) bool {
	return add(h.patterns, pattern, sub)
}

// PUnsubscribe removes sub from pattern.
func (h *Hub) PUnsubscribe(sub Subscriber, pattern string) {
	remove(h.patterns, pattern, sub.SubscriberID())
}

// Publish fans payload out to channel's subscribers and to every matching
// pattern subscriber. The returned count is the number of deliveries
// scheduled, not confirmed received.
func (h *Hub) Publish(channel string, payload []byte) int {
	if h.onPublish != nil {
		h.onPublish()
	}

	delivered := 0

	if set, ok := h.channels.Get(channel); ok {
		frame := h.encode("message", nil, []byte(channel), payload)
		set.mu.RLock()
		for _, sub := range set.subs {
			sub.DeliverPubSub(frame)
			delivered++
		}
		set.mu.RUnlock()
	}

	h.patterns.Range(func(pattern string, set *subscriberSet) bool {
		if !glob.Match(pattern, channel) {
			return true
		}
		frame := h.encode("pmessage", []byte(pattern), []byte(channel), payload)
		set.mu.RLock()
		for _, sub := range set.subs {
			sub.DeliverPubSub(frame)
			delivered++
		}
		set.mu.RUnlock()
		return true
	})

	return delivered
}

// Channels returns the active channels, optionally filtered by pattern.
func (h *Hub) Channels(pattern string) []string {
	var out []string
	h.channels.Range(func(channel string, set *subscriberSet) bool {
		if !set.empty() && (pattern == "" || glob.Match(pattern, channel)) {
			out = append(out, channel)
		}
		return true
	})
	return out
}

// NumSub returns the subscriber count for each given channel.
func (h *Hub) NumSub(channels ...string) []int {
	out := make([]int, len(channels))
	for i, ch := range channels {
		if set, ok := h.channels.Get(ch); ok {
			out[i] = set.len()
		}
	}
	return out
}

// NumPat returns the number of distinct active patterns.
func (h *Hub) NumPat() int {
	n := 0
	h.patterns.Range(func(_ string, set *subscriberSet) bool {
		if !set.empty() {
			n++
		}
		return true
	})
	return n
}

// Drop removes sub from every channel and pattern. Called on disconnect.
func (h *Hub) Drop(sub Subscriber, channels, patterns []string) {
	id := sub.SubscriberID()
	for _, ch := range channels {
		remove(h.channels, ch, id)
	}
	for _, p := range patterns {
		remove(h.patterns, p, id)
	}
}

func add(m *cmap.Map[string, *subscriberSet], key string, sub Subscriber) bool {
	set, _ := m.GetOrSet(key, &subscriberSet{subs: make(map[uint64]Subscriber)})
	set.mu.Lock()
	defer set.mu.Unlock()
	if _, ok := set.subs[sub.SubscriberID()]; ok {
		return false
	}
	set.subs[sub.SubscriberID()] = sub
	return true
}

func remove(m *cmap.Map[string, *subscriberSet], key string, id uint64) {
	set, ok := m.Get(key)
	if !ok {
		return
	}
	set.mu.Lock()
	delete(set.subs, id)
	empty := len(set.subs) == 0
	set.mu.Unlock()

	if empty {
		// Reap the set only if it is still empty; a concurrent subscribe
		// may have repopulated it.
		m.DeleteIf(key, func(s *subscriberSet) bool {
			s.mu.RLock()
			defer s.mu.RUnlock()
			return len(s.subs) == 0
		})
	}
}

func (s *subscriberSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

func (s *subscriberSet) empty() bool {
	return s.len() == 0
}
