package notify

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/redis/rueidis"

	"github.com/learnsphere/moderation/internal/storesync"
)

const (
	redisBlockTimeout = 1000 // milliseconds
	readCount         = 10
	errorRetryDelay   = 1 * time.Second
)

// Consumer reads the change stream as a member of a consumer group and
// records notifications for each entry, acknowledging it once recorded.
type Consumer struct {
	client rueidis.Client
	inbox  *Inbox
	stream string
	group  string
	name   string
	logger *slog.Logger
}

// NewConsumer creates a consumer named name in group.
func NewConsumer(client rueidis.Client, inbox *Inbox, stream, group, name string) *Consumer {
	if stream == "" {
		stream = storesync.DefaultStream
	}

	return &Consumer{
		client: client,
		inbox:  inbox,
		stream: stream,
		group:  group,
		name:   name,
		logger: inbox.logger,
	}
}

// CreateGroup creates the consumer group, and the stream if missing. An
// existing group is not an error.
func (c *Consumer) CreateGroup(ctx context.Context) {
	cmd := c.client.B().XgroupCreate().Key(c.stream).Group(c.group).Id("0").Mkstream().Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		c.logger.Info("consumer group creation result (may already exist)", slog.String("error", err.Error()))
	}
}

// Run consumes until ctx is done.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("starting notification consumer",
		slog.String("stream", c.stream),
		slog.String("group", c.group),
		slog.String("consumer", c.name),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopped")
			return
		default:
			if err := c.consume(ctx); err != nil && ctx.Err() == nil {
				c.logger.Error("error consuming messages", slog.String("error", err.Error()))
				time.Sleep(errorRetryDelay)
			}
		}
	}
}

func (c *Consumer) consume(ctx context.Context) error {
	streams, err := c.read(ctx)
	if err != nil {
		return err
	}

	for _, entries := range streams {
		for _, entry := range entries {
			if err := c.Process(ctx, entry); err != nil {
				c.logger.Error("failed to process message",
					slog.String("message_id", entry.ID),
					slog.String("error", err.Error()),
				)

				continue
			}

			c.ack(ctx, entry.ID)
		}
	}

	return nil
}

func (c *Consumer) read(ctx context.Context) (map[string][]rueidis.XRangeEntry, error) {
	cmd := c.client.B().Xreadgroup().Group(c.group, c.name).
		Count(readCount).
		Block(redisBlockTimeout).
		Streams().
		Key(c.stream).
		Id(">").
		Build()

	result := c.client.Do(ctx, cmd)
	if err := result.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}

		return nil, err
	}

	return result.AsXRead()
}

func (c *Consumer) ack(ctx context.Context, id string) {
	cmd := c.client.B().Xack().Key(c.stream).Group(c.group).Id(id).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		c.logger.Error("failed to ACK message",
			slog.String("message_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// Process records the notifications for one stream entry. Entries with
// topics that notify nobody succeed without writing. A malformed entry is
// an error and stays pending in the group.
func (c *Consumer) Process(ctx context.Context, entry rueidis.XRangeEntry) error {
	change, err := storesync.ParseEntry(entry)
	if err != nil {
		return err
	}
	if !slices.Contains(Topics, change.Topic) {
		return nil
	}

	ev, err := storesync.EventOf(change)
	if err != nil {
		return err
	}

	_, err = c.inbox.Record(ctx, ev)

	return err
}
