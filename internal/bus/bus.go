// Package bus provides in-process publish/subscribe over the closed set of domain topics.
package bus

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/learnsphere/moderation/internal/model"
)

// DefaultMaxDepth bounds nested dispatch.
const DefaultMaxDepth = 16

// maxDrain bounds how many deferred events one outermost Emit delivers.
const maxDrain = 1024

// ErrUnknownTopic is returned when emitting a topic outside the closed set.
var ErrUnknownTopic = errors.New("unknown topic")

// Handler receives delivered events. It runs on the emitting goroutine.
type Handler func(ev model.Event)

// Token releases a subscription.
type Token uint64

type listener struct {
	token  Token
	topics map[model.Topic]struct{} // nil means every topic
	fn     Handler
}

func (l *listener) wants(t model.Topic) bool {
	if l.topics == nil {
		return true
	}
	_, ok := l.topics[t]
	return ok
}

// Bus dispatches synchronously and depth-first. A handler that emits sees
// its listeners run before its own Emit returns. Past the depth bound,
// events are deferred and delivered by the outermost Emit, in emit order.
type Bus struct {
	mu        sync.Mutex
	listeners []*listener
	nextToken Token
	seq       uint64
	depth     int
	maxDepth  int
	deferred  []model.Event
	logger    *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithMaxDepth sets the nested dispatch bound; values below 1 keep the default.
func WithMaxDepth(depth int) Option {
	return func(b *Bus) {
		if depth > 0 {
			b.maxDepth = depth
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) { b.logger = logger }
}

// New creates a bus with no listeners.
func New(opts ...Option) *Bus {
	b := &Bus{
		maxDepth: DefaultMaxDepth,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	return b
}

// On subscribes fn to one topic.
func (b *Bus) On(topic model.Topic, fn Handler) Token {
	return b.OnEach([]model.Topic{topic}, fn)
}

// OnEach subscribes fn to a set of topics. An empty set subscribes to nothing.
func (b *Bus) OnEach(topics []model.Topic, fn Handler) Token {
	set := make(map[model.Topic]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}

	return b.add(set, fn)
}

// OnAll subscribes fn to every topic.
func (b *Bus) OnAll(fn Handler) Token {
	return b.add(nil, fn)
}

func (b *Bus) add(topics map[model.Topic]struct{}, fn Handler) Token {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextToken++
	b.listeners = append(b.listeners, &listener{token: b.nextToken, topics: topics, fn: fn})

	return b.nextToken
}

// Off releases a subscription. Releasing twice is harmless. A dispatch that
// already started still delivers to the released listener.
func (b *Bus) Off(token Token) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, l := range b.listeners {
		if l.token == token {
			b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
			return
		}
	}
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.listeners)
}

// Emit publishes a local event for entityID.
func (b *Bus) Emit(topic model.Topic, entityID string, payload any) (model.Event, error) {
	return b.Publish(model.Event{Topic: topic, EntityID: entityID, Payload: payload})
}

// Publish assigns the next sequence number to ev and delivers it. The
// returned event carries the assigned sequence number.
func (b *Bus) Publish(ev model.Event) (model.Event, error) {
	if !ev.Topic.IsValid() {
		return ev, fmt.Errorf("failed to emit %q: %w", ev.Topic, ErrUnknownTopic)
	}

	b.mu.Lock()
	b.seq++
	ev.Seq = b.seq

	if b.depth >= b.maxDepth {
		b.deferred = append(b.deferred, ev)
		b.mu.Unlock()
		b.logger.Warn("dispatch depth reached, deferring event",
			slog.String("topic", string(ev.Topic)),
			slog.Uint64("seq", ev.Seq),
			slog.Int("depth", b.maxDepth),
		)
		return ev, nil
	}

	outermost := b.depth == 0
	b.mu.Unlock()

	b.dispatch(ev)

	if outermost {
		b.drain()
	}

	return ev, nil
}

func (b *Bus) dispatch(ev model.Event) {
	b.mu.Lock()
	b.depth++
	snapshot := make([]*listener, 0, len(b.listeners))
	for _, l := range b.listeners {
		if l.wants(ev.Topic) {
			snapshot = append(snapshot, l)
		}
	}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.depth--
		b.mu.Unlock()
	}()

	b.logger.Debug("dispatching event",
		slog.String("topic", string(ev.Topic)),
		slog.Uint64("seq", ev.Seq),
		slog.Int("listeners", len(snapshot)),
		slog.Bool("remote", ev.Remote),
	)

	for _, l := range snapshot {
		l.fn(ev)
	}
}

func (b *Bus) drain() {
	for delivered := 0; ; delivered++ {
		b.mu.Lock()
		if len(b.deferred) == 0 {
			b.mu.Unlock()
			return
		}
		if delivered == maxDrain {
			dropped := len(b.deferred)
			b.deferred = nil
			b.mu.Unlock()
			b.logger.Warn("dropping deferred events, emit cycle suspected", slog.Int("dropped", dropped))
			return
		}
		ev := b.deferred[0]
		b.deferred = b.deferred[1:]
		b.mu.Unlock()

		b.dispatch(ev)
	}
}
