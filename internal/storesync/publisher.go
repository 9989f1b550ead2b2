package storesync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/rueidis"

	"github.com/learnsphere/moderation/internal/model"
	"github.com/learnsphere/moderation/internal/store"
)

// Sink receives changes leaving the outbox.
type Sink interface {
	Append(ctx context.Context, c model.Change) (string, error)
}

// StreamSink appends changes to a Redis stream.
type StreamSink struct {
	client rueidis.Client
	stream string
}

// NewStreamSink creates a sink over client. An empty stream uses DefaultStream.
func NewStreamSink(client rueidis.Client, stream string) *StreamSink {
	if stream == "" {
		stream = DefaultStream
	}

	return &StreamSink{client: client, stream: stream}
}

// Append XADDs c and returns the entry id.
func (s *StreamSink) Append(ctx context.Context, c model.Change) (string, error) {
	fv := s.client.B().Xadd().Key(s.stream).Id("*").FieldValue()
	for _, f := range Fields(c) {
		fv = fv.FieldValue(f[0], f[1])
	}

	id, err := s.client.Do(ctx, fv.Build()).ToString()
	if err != nil {
		return "", fmt.Errorf("failed to append change %d to %s: %w", c.ID, s.stream, err)
	}

	return id, nil
}

// Stream returns the stream key.
func (s *StreamSink) Stream() string {
	return s.stream
}

// Publisher drains a store outbox into a sink.
type Publisher struct {
	outbox store.Outbox
	sink   Sink
	logger *slog.Logger
}

// NewPublisher creates a publisher. A nil logger uses slog.Default.
func NewPublisher(outbox store.Outbox, sink Sink, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Publisher{outbox: outbox, sink: sink, logger: logger}
}

// ProcessUnpublished publishes up to limit pending changes, oldest first.
// A change that fails to publish stays pending and is retried on the next
// call; later changes are still attempted. It returns how many were published.
func (p *Publisher) ProcessUnpublished(ctx context.Context, limit int) (int, error) {
	changes, err := p.outbox.Unpublished(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to load unpublished changes: %w", err)
	}

	published := 0
	for _, change := range changes {
		entryID, err := p.sink.Append(ctx, change)
		if err != nil {
			p.logger.Error("failed to publish change",
				slog.Int64("change_id", change.ID),
				slog.String("topic", string(change.Topic)),
				slog.String("error", err.Error()),
			)

			continue
		}

		if err := p.outbox.MarkPublished(ctx, change.ID); err != nil {
			p.logger.Error("failed to mark change as published",
				slog.Int64("change_id", change.ID),
				slog.String("error", err.Error()),
			)

			continue
		}

		published++
		p.logger.Debug("published change",
			slog.Int64("change_id", change.ID),
			slog.String("topic", string(change.Topic)),
			slog.String("entry_id", entryID),
		)
	}

	return published, nil
}

// Run polls the outbox every interval until ctx is done.
func (p *Publisher) Run(ctx context.Context, interval time.Duration, batchSize int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("publisher stopped")
			return
		case <-ticker.C:
			if _, err := p.ProcessUnpublished(ctx, batchSize); err != nil {
				p.logger.Error("error processing outbox", slog.String("error", err.Error()))
			}
		}
	}
}
