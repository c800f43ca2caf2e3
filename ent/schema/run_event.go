package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// RunEvent holds the schema definition for the RunEvent entity: the
// persisted half of a pub/sub publish on the run_events channel (spec §4.11
// / §6 "Pub/Sub message envelope"). Persisting lets late-joining UI
// observers reread history directly instead of relying on at-most-once
// delivery.
type RunEvent struct {
	ent.Schema
}

// Fields of the RunEvent.
func (RunEvent) Fields() []ent.Field {
	return []ent.Field{
		field.Int("id").
			StorageKey("event_id"),
		field.String("thread_id").
			Immutable(),
		field.String("checkpoint_id").
			Immutable(),
		field.String("channel").
			Immutable().
			Comment("e.g. \"run_events\" or \"run_events:{thread_id}\""),
		field.JSON("metadata", map[string]any{}).
			Comment("{active_skill, status, ...}"),
		field.Time("ts").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the RunEvent.
func (RunEvent) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("thread", Thread.Type).
			Ref("run_events").
			Field("thread_id").
			Unique().
			Required(),
	}
}

// Indexes of the RunEvent.
func (RunEvent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("channel", "id"),
		index.Fields("thread_id", "id"),
	}
}
