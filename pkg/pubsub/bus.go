// Package pubsub implements the Pub/Sub Bus (C12, spec §4.11): an abstract
// publish/subscribe interface with two interchangeable backends — Postgres
// NOTIFY/LISTEN and Redis — selected by engine.yaml's pubsub.backend.
//
// Delivery is at-most-once and per-channel FIFO within one publisher
// connection; a subscriber joining after a publish never observes it (spec
// §4.11). Consumers needing history reread checkpoints directly instead.
package pubsub

import "context"

// Handler is invoked once per message delivered on a subscribed channel.
// It must not block for long — a slow handler backs up delivery for every
// other subscriber sharing the same backend connection.
type Handler func(payload []byte)

// Bus is the interface every pub/sub backend implements.
type Bus interface {
	// Publish sends payload on channel. Delivery to any given subscriber is
	// best-effort; Publish does not wait for subscribers to receive it.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe registers handler against channel and returns immediately;
	// delivery happens on an internal goroutine until stop is closed, at
	// which point the subscription is torn down. A channel may have more
	// than one concurrent subscriber.
	Subscribe(ctx context.Context, channel string, handler Handler, stop <-chan struct{}) error

	// Close releases the backend's connections. Subsequent Publish/Subscribe
	// calls return an error.
	Close() error
}

// Envelope is the run_events channel message shape (spec §6 "Pub/Sub message
// envelope"): {thread_id, checkpoint_id, ts, metadata}. Consumers MUST
// tolerate unknown fields, so this struct is never the sole decode target —
// callers should decode leniently (e.g. into map[string]any) where forward
// compatibility matters.
type Envelope struct {
	ThreadID     string         `json:"thread_id"`
	CheckpointID string         `json:"checkpoint_id"`
	Ts           string         `json:"ts"`
	Metadata     map[string]any `json:"metadata"`
}

// RunEventsChannel is the well-known channel the Checkpointer publishes to
// after every durable save (spec §4.10).
const RunEventsChannel = "run_events"
