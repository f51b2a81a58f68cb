package publisher

import (
	"context"
	"fmt"

	"github.com/maxpert/kvstream/aggregator"
	"github.com/maxpert/kvstream/common"
	"github.com/maxpert/kvstream/telemetry"
	"github.com/rs/zerolog/log"
)

// ChannelPublisher sends a message on a pub/sub channel
type ChannelPublisher interface {
	Publish(ctx context.Context, channel, msg string) (int64, error)
}

// Appender records a notification for later delivery
type Appender interface {
	Append(n common.Notification) error
}

// Broadcaster delivers notifications on the store's channel and, when an
// outbox is attached, records them for the sink workers.
type Broadcaster struct {
	channel ChannelPublisher
	outbox  Appender
}

var _ aggregator.Notifier = (*Broadcaster)(nil)

// NewBroadcaster creates a Broadcaster. outbox may be nil.
func NewBroadcaster(channel ChannelPublisher, outbox Appender) *Broadcaster {
	return &Broadcaster{channel: channel, outbox: outbox}
}

// Notify publishes on the channel first. Only a channel failure is returned;
// an outbox failure is logged since subscribers already have the message.
func (b *Broadcaster) Notify(ctx context.Context, n common.Notification) error {
	receivers, err := b.channel.Publish(ctx, n.Channel, n.Body)
	if err != nil {
		telemetry.NotificationsTotal.With("channel", "error").Inc()
		return fmt.Errorf("channel %s: %w", n.Channel, err)
	}
	telemetry.NotificationsTotal.With("channel", "ok").Inc()

	log.Debug().
		Str("channel", n.Channel).
		Str("key", n.Key).
		Int64("receivers", receivers).
		Msg("Notification published")

	if b.outbox == nil {
		return nil
	}

	if err := b.outbox.Append(n); err != nil {
		telemetry.NotificationsTotal.With("outbox", "error").Inc()
		log.Warn().Err(err).Str("channel", n.Channel).Str("key", n.Key).Msg("Failed to record notification in outbox")
		return nil
	}
	telemetry.NotificationsTotal.With("outbox", "ok").Inc()
	return nil
}
