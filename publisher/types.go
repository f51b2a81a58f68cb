package publisher

import (
	"context"

	"github.com/maxpert/kvstream/common"
)

// Event is one outbox record
type Event struct {
	SeqNum      uint64 `msgpack:"seq"`  // Assigned on append
	ID          uint64 `msgpack:"id"`   // Unique across nodes; consumers dedup redeliveries by it
	NodeID      uint64 `msgpack:"node"` // Originating node
	Channel     string `msgpack:"ch"`
	Function    string `msgpack:"fn"`
	KeyType     string `msgpack:"type"`
	Key         string `msgpack:"key"`
	Body        string `msgpack:"body"`
	PublishedAt int64  `msgpack:"ts"` // Unix milliseconds
}

// NewEvent converts a notification into an unsequenced outbox record
func NewEvent(n common.Notification, nodeID uint64, publishedAt int64) Event {
	return Event{
		NodeID:      nodeID,
		Channel:     n.Channel,
		Function:    n.Function,
		KeyType:     n.KeyType.String(),
		Key:         n.Key,
		Body:        n.Body,
		PublishedAt: publishedAt,
	}
}

// Sink is an external destination for events
type Sink interface {
	// Publish sends value to topic, partitioned or tagged by key
	Publish(ctx context.Context, topic, key string, value []byte) error
	// Close releases any resources held by the sink
	Close() error
}

// Transformer renders an event in a sink's wire format
type Transformer interface {
	Transform(event Event) ([]byte, error)
}

// Filter decides whether a worker delivers an event
type Filter interface {
	Match(channel, function string) bool
}
