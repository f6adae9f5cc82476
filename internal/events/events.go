package events

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Topics published by the host.
const (
	TopicSidecarLog       = "opencode:log"
	TopicSidecarError     = "opencode:error"
	TopicDownloadProgress = "opencode:download-progress"
	TopicConfigUpdated    = "config:updated"
	TopicDeepLinkConnect  = "deep-link:connect"
)

const (
	defaultBuffer  = 256
	defaultHistory = 500
)

type Event struct {
	Topic   string    `json:"topic"`
	Payload any       `json:"payload"`
	Time    time.Time `json:"time"`
}

// Bus fans events out to subscribers without ever blocking the publisher:
// a subscriber whose buffer is full loses the event. The most recent events
// are also kept in a bounded history.
type Bus struct {
	logger *zap.SugaredLogger

	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  uint64
	history []Event
	head    int
	size    int
}

type Option func(*Bus)

// WithHistory sets how many past events Recent can return.
func WithHistory(n int) Option {
	return func(b *Bus) {
		if n < 1 {
			n = 1
		}
		b.history = make([]Event, n)
	}
}

func New(logger *zap.SugaredLogger, opts ...Option) *Bus {
	b := &Bus{
		logger:  logger,
		subs:    make(map[uint64]*Subscription),
		history: make([]Event, defaultHistory),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish never blocks. A nil bus discards the event.
func (b *Bus) Publish(topic string, payload any) {
	if b == nil {
		return
	}
	ev := Event{Topic: topic, Payload: payload, Time: time.Now().UTC()}

	b.mu.Lock()
	b.history[b.head] = ev
	b.head = (b.head + 1) % len(b.history)
	if b.size < len(b.history) {
		b.size++
	}
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.wants(topic) {
			subs = append(subs, s)
		}
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.deliver(ev, b.logger)
	}
}

// Recent returns up to limit of the latest events, oldest first, optionally
// filtered by topic. A non-positive limit returns everything retained.
func (b *Bus) Recent(limit int, topic string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Event, 0, b.size)
	start := (b.head - b.size + len(b.history)) % len(b.history)
	for i := 0; i < b.size; i++ {
		ev := b.history[(start+i)%len(b.history)]
		if topic == "" || ev.Topic == topic {
			out = append(out, ev)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Subscribe registers for the given topics, or all topics when none are
// named. buffer <= 0 uses the default size.
func (b *Bus) Subscribe(buffer int, topics ...string) *Subscription {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	s := &Subscription{
		ch:  make(chan Event, buffer),
		bus: b,
	}
	if len(topics) > 0 {
		s.topics = make(map[string]struct{}, len(topics))
		for _, t := range topics {
			s.topics[t] = struct{}{}
		}
	}

	b.mu.Lock()
	b.nextID++
	s.id = b.nextID
	b.subs[s.id] = s
	b.mu.Unlock()
	return s
}

type Subscription struct {
	id      uint64
	topics  map[string]struct{}
	ch      chan Event
	bus     *Bus
	mu      sync.Mutex
	closed  bool
	dropped atomic.Uint64
}

func (s *Subscription) C() <-chan Event { return s.ch }

// Dropped reports how many events were discarded because the buffer was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

func (s *Subscription) wants(topic string) bool {
	if s.topics == nil {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}

func (s *Subscription) deliver(ev Event, logger *zap.SugaredLogger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	default:
		if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
			logger.Warnw("event subscriber is not keeping up, dropping events", "topic", ev.Topic, "dropped", n)
		}
	}
}

// Close unregisters the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
