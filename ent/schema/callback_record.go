package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// CallbackRecord holds the schema definition for the CallbackRecord entity:
// ties a paused REST-executor dispatch to its future inbound callback. See
// spec §3 "Callback Record" and §4.5.
type CallbackRecord struct {
	ent.Schema
}

// Fields of the CallbackRecord.
func (CallbackRecord) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("correlation_token").
			Unique().
			Immutable(),
		field.String("thread_id").
			Immutable(),
		field.String("skill_name").
			Immutable(),
		field.Time("deadline_ts").
			Immutable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Bool("consumed").
			Default(false).
			Comment("Idempotency guard: a token is consumed exactly once"),
		field.Time("consumed_at").
			Optional().
			Nillable(),
	}
}

// Edges of the CallbackRecord.
func (CallbackRecord) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("thread", Thread.Type).
			Ref("callback_records").
			Field("thread_id").
			Unique().
			Required(),
	}
}

// Indexes of the CallbackRecord.
func (CallbackRecord) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("thread_id"),
		index.Fields("consumed", "deadline_ts"),
	}
}
