package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Thread holds the schema definition for the Thread entity: one execution
// of a plan-driven workflow, identified by thread_id and stable across
// resumes. See spec §3 "Run / Thread".
type Thread struct {
	ent.Schema
}

// Fields of the Thread.
func (Thread) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("thread_id").
			Unique().
			Immutable(),
		field.String("run_name").
			Optional().
			Nillable(),
		field.Text("sop").
			Comment("Plain-language instruction given to the planner"),
		field.JSON("initial_data", map[string]any{}).
			Comment("Seed of the data store"),
		field.Enum("status").
			Values("pending", "running", "paused", "completed", "error").
			Default("pending"),
		field.String("owner_id").
			Comment("User that created the run; used for access control"),
		field.String("workspace_id").
			Comment("Logical grouping namespace"),
		field.String("parent_thread_id").
			Optional().
			Nillable().
			Comment("Set when this run was forked/rerun"),
		field.String("llm_model_override").
			Optional().
			Nillable(),
		field.String("pod_id").
			Optional().
			Nillable().
			Comment("Owning process, for multi-replica coordination"),
		field.Time("last_heartbeat_at").
			Optional().
			Nillable().
			Comment("For orphan detection"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Edges of the Thread.
func (Thread) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("checkpoints", Checkpoint.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("callback_records", CallbackRecord.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("run_events", RunEvent.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Thread.
func (Thread) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status"),
		index.Fields("owner_id"),
		index.Fields("workspace_id"),
		index.Fields("status", "created_at"),
		index.Fields("status", "last_heartbeat_at"),
		index.Fields("pod_id"),
	}
}
