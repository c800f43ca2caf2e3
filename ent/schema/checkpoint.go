package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Checkpoint holds the schema definition for the Checkpoint entity: a
// durable snapshot of a thread's state at a transition boundary. See
// spec §3 "Checkpoint" and §4.10.
//
// The checkpoint store is a table of rows, not a blob log — reads must be
// efficient for "latest for thread_id" and "latest N across a workspace",
// hence the composite indexes below.
type Checkpoint struct {
	ent.Schema
}

// Fields of the Checkpoint.
func (Checkpoint) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("checkpoint_id").
			Unique().
			Immutable(),
		field.String("thread_id").
			Immutable(),
		field.String("checkpoint_ns").
			Default("").
			Immutable(),
		field.String("parent_checkpoint_id").
			Optional().
			Nillable().
			Immutable(),
		field.Time("ts").
			Default(time.Now).
			Immutable(),
		field.JSON("channel_values", map[string]any{}).
			Comment("Authoritative state: data_store, history, active_skill, etc."),
		field.JSON("channel_versions", map[string]any{}).
			Optional(),
		field.JSON("pending_writes", []any{}).
			Optional(),
		// Denormalized UI projection (spec §6 "Persisted state layout").
		field.String("active_skill").
			Optional().
			Nillable(),
		field.Enum("status").
			Values("pending", "running", "paused", "completed", "error").
			Default("pending"),
		field.String("run_name").
			Optional().
			Nillable(),
		field.String("sop_preview").
			Optional().
			Nillable(),
	}
}

// Edges of the Checkpoint.
func (Checkpoint) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("thread", Thread.Type).
			Ref("checkpoints").
			Field("thread_id").
			Unique().
			Required(),
	}
}

// Indexes of the Checkpoint.
func (Checkpoint) Indexes() []ent.Index {
	return []ent.Index{
		// "latest for thread_id"
		index.Fields("thread_id", "ts"),
		index.Fields("thread_id", "checkpoint_ns", "ts"),
		// "latest N across a workspace" is served via a join on Thread;
		// this index keeps the per-thread scan itself fast.
		index.Fields("parent_checkpoint_id"),
	}
}
