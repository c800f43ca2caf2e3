package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skillforge/engine/ent"
	"github.com/skillforge/engine/ent/skilldefinition"
	"github.com/skillforge/engine/pkg/skill"
)

// ErrNoDatabase is returned by the CRUD operations below when the registry
// was constructed without a database client (filesystem-only deployment).
var ErrNoDatabase = fmt.Errorf("registry: no database configured")

// Create persists a new database-sourced skill and reloads the snapshot so
// it is immediately visible. The caller is responsible for supplying a
// unique name within the target workspace; the unique index on
// (name, workspace_id) rejects collisions.
func (r *Registry) Create(ctx context.Context, s *skill.Skill) (*skill.Skill, error) {
	if r.db == nil {
		return nil, ErrNoDatabase
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	restConfig, err := toJSONMap(s.RESTConfig)
	if err != nil {
		return nil, fmt.Errorf("encode rest_config: %w", err)
	}
	actionConfig, err := encodeActionConfig(s.ActionConfig)
	if err != nil {
		return nil, fmt.Errorf("encode action_config: %w", err)
	}

	id := s.ID
	if id == "" {
		id = uuid.NewString()
	}

	builder := r.db.SkillDefinition.Create().
		SetID(id).
		SetName(s.Name).
		SetDescription(s.Description).
		SetRequires(s.Requires).
		SetProduces(s.Produces).
		SetOptionalProduces(s.OptionalProduces).
		SetExecutor(skilldefinition.Executor(s.Executor)).
		SetHitlEnabled(s.HITLEnabled).
		SetIsPublic(s.IsPublic).
		SetRestConfig(restConfig).
		SetActionConfig(actionConfig)

	if s.Prompt != "" {
		builder = builder.SetPrompt(s.Prompt)
	}
	if s.SystemPrompt != "" {
		builder = builder.SetSystemPrompt(s.SystemPrompt)
	}
	if !s.IsPublic && s.WorkspaceID != "" {
		builder = builder.SetWorkspaceID(s.WorkspaceID)
	}

	row, err := builder.Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("create skill_definition: %w", err)
	}

	if _, err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return rowToSkill(row)
}

// Update replaces an existing database-sourced skill's definition in place
// and reloads the snapshot.
func (r *Registry) Update(ctx context.Context, s *skill.Skill) (*skill.Skill, error) {
	if r.db == nil {
		return nil, ErrNoDatabase
	}
	if s.ID == "" {
		return nil, fmt.Errorf("registry: update requires an id")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	restConfig, err := toJSONMap(s.RESTConfig)
	if err != nil {
		return nil, fmt.Errorf("encode rest_config: %w", err)
	}
	actionConfig, err := encodeActionConfig(s.ActionConfig)
	if err != nil {
		return nil, fmt.Errorf("encode action_config: %w", err)
	}

	builder := r.db.SkillDefinition.UpdateOneID(s.ID).
		SetName(s.Name).
		SetDescription(s.Description).
		SetRequires(s.Requires).
		SetProduces(s.Produces).
		SetOptionalProduces(s.OptionalProduces).
		SetExecutor(skilldefinition.Executor(s.Executor)).
		SetHitlEnabled(s.HITLEnabled).
		SetIsPublic(s.IsPublic).
		SetRestConfig(restConfig).
		SetActionConfig(actionConfig).
		SetUpdatedAt(time.Now())

	if s.Prompt != "" {
		builder = builder.SetPrompt(s.Prompt)
	} else {
		builder = builder.ClearPrompt()
	}
	if s.SystemPrompt != "" {
		builder = builder.SetSystemPrompt(s.SystemPrompt)
	} else {
		builder = builder.ClearSystemPrompt()
	}
	if !s.IsPublic && s.WorkspaceID != "" {
		builder = builder.SetWorkspaceID(s.WorkspaceID)
	} else {
		builder = builder.ClearWorkspaceID()
	}

	row, err := builder.Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("update skill_definition %s: %w", s.ID, err)
	}

	if _, err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return rowToSkill(row)
}

// Delete soft-deletes a database-sourced skill (sets deleted_at) and
// reloads the snapshot so it stops resolving immediately.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if r.db == nil {
		return ErrNoDatabase
	}
	now := time.Now()
	if err := r.db.SkillDefinition.UpdateOneID(id).SetDeletedAt(now).Exec(ctx); err != nil {
		return fmt.Errorf("soft-delete skill_definition %s: %w", id, err)
	}
	_, err := r.Reload(ctx)
	return err
}

func toJSONMap(v any) (map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func encodeActionConfig(ac *skill.ActionConfig) (map[string]any, error) {
	if ac == nil {
		return nil, nil
	}
	y := actionConfigYAML{
		Type:          string(ac.Type),
		TimeoutMS:     ac.TimeoutMS,
		FunctionName:  ac.FunctionName,
		Module:        ac.Module,
		Source:        ac.Source,
		CredentialRef: ac.CredentialRef,
		Query:         ac.Query,
		URLTemplate:   ac.URLTemplate,
		Method:        ac.Method,
		Headers:       ac.Headers,
		Body:          ac.Body,
		Interpreter:   ac.Interpreter,
		ScriptPath:    ac.ScriptPath,
		Steps:         fromSteps(ac.Steps),
	}
	return toJSONMap(y)
}
