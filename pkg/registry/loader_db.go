package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/skillforge/engine/ent"
	"github.com/skillforge/engine/ent/skilldefinition"
	"github.com/skillforge/engine/pkg/skill"
)

// loadDatabaseSkills loads every non-deleted database-sourced skill from
// every workspace; snapshot.index sorts them into public and
// workspace-scoped buckets.
func loadDatabaseSkills(ctx context.Context, client *ent.Client) ([]*skill.Skill, []LoadDiagnostic) {
	rows, err := client.SkillDefinition.Query().
		Where(skilldefinition.DeletedAtIsNil()).
		All(ctx)
	if err != nil {
		return nil, []LoadDiagnostic{{Source: skill.SourceDatabase, Name: "*", Err: fmt.Errorf("query skill_definitions: %w", err)}}
	}

	var skills []*skill.Skill
	var diags []LoadDiagnostic
	for _, row := range rows {
		s, err := rowToSkill(row)
		if err != nil {
			diags = append(diags, LoadDiagnostic{Source: skill.SourceDatabase, Name: row.Name, Err: err})
			continue
		}
		if err := s.Validate(); err != nil {
			diags = append(diags, LoadDiagnostic{Source: skill.SourceDatabase, Name: row.Name, Err: err})
			continue
		}
		skills = append(skills, s)
	}
	return skills, diags
}

func rowToSkill(row *ent.SkillDefinition) (*skill.Skill, error) {
	s := &skill.Skill{
		Name:             row.Name,
		Description:      row.Description,
		Requires:         row.Requires,
		Produces:         row.Produces,
		OptionalProduces: row.OptionalProduces,
		Executor:         skill.Executor(row.Executor),
		HITLEnabled:      row.HitlEnabled,
		SourceKind:       skill.SourceDatabase,
		IsPublic:         row.IsPublic,
		ID:               row.ID,
	}
	if row.WorkspaceID != nil {
		s.WorkspaceID = *row.WorkspaceID
	}
	if row.Prompt != nil {
		s.Prompt = *row.Prompt
	}
	if row.SystemPrompt != nil {
		s.SystemPrompt = *row.SystemPrompt
	}
	if len(row.RestConfig) > 0 {
		var rc skill.RESTConfig
		b, err := json.Marshal(row.RestConfig)
		if err != nil {
			return nil, fmt.Errorf("marshal rest_config: %w", err)
		}
		if err := json.Unmarshal(b, &rc); err != nil {
			return nil, fmt.Errorf("decode rest_config: %w", err)
		}
		s.RESTConfig = &rc
	}
	if len(row.ActionConfig) > 0 {
		ac, err := decodeActionConfig(row.ActionConfig)
		if err != nil {
			return nil, fmt.Errorf("decode action_config: %w", err)
		}
		s.ActionConfig = ac
	}
	return s, nil
}

func decodeActionConfig(raw map[string]any) (*skill.ActionConfig, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var y actionConfigYAML
	if err := json.Unmarshal(b, &y); err != nil {
		return nil, err
	}
	return &skill.ActionConfig{
		Type:          skill.ActionKind(y.Type),
		TimeoutMS:     y.TimeoutMS,
		FunctionName:  y.FunctionName,
		Module:        y.Module,
		Source:        y.Source,
		CredentialRef: y.CredentialRef,
		Query:         y.Query,
		URLTemplate:   y.URLTemplate,
		Method:        y.Method,
		Headers:       y.Headers,
		Body:          y.Body,
		Interpreter:   y.Interpreter,
		ScriptPath:    y.ScriptPath,
		Steps:         toSteps(y.Steps),
	}, nil
}
