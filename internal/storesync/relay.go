package storesync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/rueidis"

	"github.com/learnsphere/moderation/internal/bus"
	"github.com/learnsphere/moderation/internal/model"
	"github.com/learnsphere/moderation/internal/store"
)

const (
	redisBlockTimeout = 1000 // milliseconds
	readCount         = 100
	errorRetryDelay   = time.Second
)

// Exclusive runs fn while holding the core's single-writer section.
type Exclusive func(fn func())

func unguarded(fn func()) { fn() }

// Deliverer re-emits changes written by other processes on a local bus.
// Changes carrying the local origin are skipped: this process already
// delivered them when it committed.
type Deliverer struct {
	bus       *bus.Bus
	origin    string
	exclusive Exclusive
	logger    *slog.Logger
}

// DelivererOption configures a Deliverer.
type DelivererOption func(*Deliverer)

// WithExclusive serialises deliveries with the rest of the core.
func WithExclusive(fn Exclusive) DelivererOption {
	return func(d *Deliverer) {
		if fn != nil {
			d.exclusive = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) DelivererOption {
	return func(d *Deliverer) { d.logger = logger }
}

// NewDeliverer creates a deliverer for the process identified by origin.
func NewDeliverer(b *bus.Bus, origin string, opts ...DelivererOption) *Deliverer {
	d := &Deliverer{
		bus:       b,
		origin:    origin,
		exclusive: unguarded,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Deliver publishes c on the bus unless it is local. It reports whether c was delivered.
func (d *Deliverer) Deliver(c model.Change) (bool, error) {
	if c.Origin == d.origin {
		return false, nil
	}

	ev, err := EventOf(c)
	if err != nil {
		return false, err
	}

	var pubErr error
	d.exclusive(func() {
		ev, pubErr = d.bus.Publish(ev)
	})
	if pubErr != nil {
		return false, pubErr
	}

	d.logger.Debug("relayed remote change",
		slog.String("topic", string(ev.Topic)),
		slog.String("entity_id", ev.EntityID),
		slog.String("origin", c.Origin),
		slog.Uint64("seq", ev.Seq),
	)

	return true, nil
}

// Relay tails a Redis stream and hands each entry to a Deliverer.
type Relay struct {
	client    rueidis.Client
	stream    string
	deliverer *Deliverer
	logger    *slog.Logger
	lastID    string
}

// NewRelay creates a relay reading entries appended after it starts.
func NewRelay(client rueidis.Client, stream string, d *Deliverer) *Relay {
	if stream == "" {
		stream = DefaultStream
	}

	return &Relay{
		client:    client,
		stream:    stream,
		deliverer: d,
		logger:    d.logger,
		lastID:    "$",
	}
}

// Run reads the stream until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	r.logger.Info("starting change relay",
		slog.String("stream", r.stream),
		slog.String("origin", r.deliverer.origin),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("change relay stopped")
			return
		default:
			if err := r.poll(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("error reading change stream", slog.String("error", err.Error()))
				sleep(ctx, errorRetryDelay)
			}
		}
	}
}

func (r *Relay) poll(ctx context.Context) error {
	cmd := r.client.B().Xread().
		Count(readCount).
		Block(redisBlockTimeout).
		Streams().
		Key(r.stream).
		Id(r.lastID).
		Build()

	result := r.client.Do(ctx, cmd)
	if err := result.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil
		}
		return err
	}

	streams, err := result.AsXRead()
	if err != nil {
		return err
	}

	r.Handle(streams[r.stream])

	return nil
}

// Handle delivers a batch of entries in order and advances the read cursor.
// Malformed entries are logged and skipped. It returns how many were delivered.
func (r *Relay) Handle(entries []rueidis.XRangeEntry) int {
	delivered := 0
	for _, entry := range entries {
		r.lastID = entry.ID

		change, err := ParseEntry(entry)
		if err != nil {
			r.logger.Warn("skipping malformed change entry",
				slog.String("entry_id", entry.ID),
				slog.String("error", err.Error()),
			)

			continue
		}

		ok, err := r.deliverer.Deliver(change)
		if err != nil {
			r.logger.Warn("failed to relay change",
				slog.String("entry_id", entry.ID),
				slog.String("topic", string(change.Topic)),
				slog.String("error", err.Error()),
			)

			continue
		}
		if ok {
			delivered++
		}
	}

	return delivered
}

// LastID returns the id of the last entry handled, or "$" before any.
func (r *Relay) LastID() string {
	return r.lastID
}

// LocalRelay mirrors changes committed through a shared in-process store,
// for several cores over one memory store. The feed calls back on the
// writer's goroutine, so deliveries are queued and made from the relay's
// own goroutine.
type LocalRelay struct {
	deliverer *Deliverer
	cancel    func()

	mu      sync.Mutex
	queue   []model.Change
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// StartLocal subscribes to feed and starts delivering.
func StartLocal(feed store.Feed, d *Deliverer) *LocalRelay {
	l := &LocalRelay{
		deliverer: d,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	l.cancel = feed.Watch(l.enqueue)

	go l.loop()

	return l
}

func (l *LocalRelay) enqueue(c model.Change) {
	if c.Origin == l.deliverer.origin {
		return
	}

	l.mu.Lock()
	l.queue = append(l.queue, c)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *LocalRelay) loop() {
	defer close(l.stopped)

	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
		}

		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, c := range batch {
			if _, err := l.deliverer.Deliver(c); err != nil {
				l.deliverer.logger.Warn("failed to relay local change",
					slog.Int64("change_id", c.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Close stops watching and waits for the delivery goroutine. Queued
// changes not yet delivered are dropped.
func (l *LocalRelay) Close() {
	l.once.Do(func() {
		l.cancel()
		close(l.done)
		<-l.stopped
	})
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
