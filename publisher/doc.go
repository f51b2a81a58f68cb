// Package publisher fans aggregation results out beyond the Redis channel.
//
// Every notification is appended to a durable, ordered outbox backed by
// Pebble. Each configured sink (NATS JetStream, Kafka) has a worker that
// tails the outbox from its own persisted cursor and delivers at-least-once
// with exponential backoff.
//
// Key layout:
//
//	/outbox/{seq:016x}   -> msgpack(Event)
//	/cursor/{sinkName}   -> uint64 little endian
//	/seq                 -> uint64 little endian (last assigned sequence)
//
// Entries below the smallest sink cursor are deleted every 128 sequences.
//
// A worker routes an event to topic `{topic_prefix}.{channel}`, keyed by the
// store key that triggered it, after its GlobFilter accepts the event's
// channel and function.
package publisher
