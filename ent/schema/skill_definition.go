package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// SkillDefinition holds the schema definition for database-sourced skills
// (spec §3 "Skill", source metadata). Filesystem-sourced skills are never
// persisted here — they are read-only at runtime and live only in the
// Registry's in-memory snapshot.
type SkillDefinition struct {
	ent.Schema
}

// Fields of the SkillDefinition.
func (SkillDefinition) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("skill_id").
			Unique().
			Immutable(),
		field.String("name").
			Comment("Unique within its source/workspace"),
		field.Text("description").
			Optional(),
		field.JSON("requires", []string{}).
			Optional(),
		field.JSON("produces", []string{}).
			Optional(),
		field.JSON("optional_produces", []string{}).
			Optional(),
		field.Enum("executor").
			Values("llm", "rest", "action"),
		field.Bool("hitl_enabled").
			Default(false),
		field.Text("prompt").
			Optional().
			Nillable(),
		field.Text("system_prompt").
			Optional().
			Nillable(),
		field.JSON("rest_config", map[string]any{}).
			Optional(),
		field.JSON("action_config", map[string]any{}).
			Optional(),
		field.Bool("is_public").
			Default(false),
		field.String("workspace_id").
			Optional().
			Nillable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
		field.Time("deleted_at").
			Optional().
			Nillable().
			Comment("Soft delete"),
	}
}

// Indexes of the SkillDefinition.
func (SkillDefinition) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("name", "workspace_id").
			Unique(),
		index.Fields("is_public"),
		index.Fields("deleted_at"),
	}
}
