package registry

import "github.com/skillforge/engine/pkg/skill"

// manifestYAML is the YAML shape of a filesystem skill's skill.yaml. Prose
// documentation (prompt.md, system_prompt.md) is layered on top of this and
// is explicitly NOT part of the validated contract (spec §3: "prose
// documentation is NOT part of the contract").
type manifestYAML struct {
	Name             string   `yaml:"name"`
	Description      string   `yaml:"description"`
	Requires         []string `yaml:"requires"`
	Produces         []string `yaml:"produces"`
	OptionalProduces []string `yaml:"optional_produces"`
	Executor         string   `yaml:"executor"`
	HITLEnabled      bool     `yaml:"hitl_enabled"`

	RESTConfig *restConfigYAML `yaml:"rest_config,omitempty"`

	ActionConfig *actionConfigYAML `yaml:"action_config,omitempty"`
}

type restConfigYAML struct {
	URLTemplate string            `yaml:"url_template"`
	Method      string            `yaml:"method"`
	TimeoutMS   int               `yaml:"timeout_ms"`
	Headers     map[string]string `yaml:"headers"`
}

type actionConfigYAML struct {
	Type      string `yaml:"type" json:"type"`
	TimeoutMS int    `yaml:"timeout_ms" json:"timeout_ms"`

	FunctionName string `yaml:"function_name,omitempty" json:"function_name,omitempty"`
	Module       string `yaml:"module,omitempty" json:"module,omitempty"`

	Source        string `yaml:"source,omitempty" json:"source,omitempty"`
	CredentialRef string `yaml:"credential_ref,omitempty" json:"credential_ref,omitempty"`
	Query         string `yaml:"query,omitempty" json:"query,omitempty"`

	URLTemplate string            `yaml:"url_template,omitempty" json:"url_template,omitempty"`
	Method      string            `yaml:"method,omitempty" json:"method,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body        string            `yaml:"body,omitempty" json:"body,omitempty"`

	Interpreter string `yaml:"interpreter,omitempty" json:"interpreter,omitempty"`
	ScriptPath  string `yaml:"script_path,omitempty" json:"script_path,omitempty"`

	Steps []stepYAML `yaml:"steps,omitempty" json:"steps,omitempty"`
}

type conditionYAML struct {
	Field    string `yaml:"field" json:"field"`
	Operator string `yaml:"operator" json:"operator"`
	Value    any    `yaml:"value,omitempty" json:"value,omitempty"`
}

type stepYAML struct {
	Type   string         `yaml:"type" json:"type"`
	Name   string         `yaml:"name,omitempty" json:"name,omitempty"`
	RunIf  *conditionYAML `yaml:"run_if,omitempty" json:"run_if,omitempty"`
	SkipIf *conditionYAML `yaml:"skip_if,omitempty" json:"skip_if,omitempty"`

	Source        string   `yaml:"source,omitempty" json:"source,omitempty"`
	CredentialRef string   `yaml:"credential_ref,omitempty" json:"credential_ref,omitempty"`
	Query         string   `yaml:"query,omitempty" json:"query,omitempty"`
	Output        string   `yaml:"output,omitempty" json:"output,omitempty"`
	Function      string   `yaml:"function,omitempty" json:"function,omitempty"`
	SkillRef      string   `yaml:"skill,omitempty" json:"skill,omitempty"`
	Inputs        []string `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	MergeInputs   []string `yaml:"merge_inputs,omitempty" json:"merge_inputs,omitempty"`

	Steps []stepYAML     `yaml:"steps,omitempty" json:"steps,omitempty"`
	Then  []stepYAML     `yaml:"then,omitempty" json:"then,omitempty"`
	Else  []stepYAML     `yaml:"else,omitempty" json:"else,omitempty"`
	If    *conditionYAML `yaml:"if,omitempty" json:"if,omitempty"`

	ContextKeys []string `yaml:"context_keys,omitempty" json:"context_keys,omitempty"`
}

func toCondition(c *conditionYAML) *skill.Condition {
	if c == nil {
		return nil
	}
	return &skill.Condition{Field: c.Field, Operator: c.Operator, Value: c.Value}
}

func toSteps(in []stepYAML) []skill.PipelineStepConfig {
	if in == nil {
		return nil
	}
	out := make([]skill.PipelineStepConfig, len(in))
	for i, s := range in {
		out[i] = skill.PipelineStepConfig{
			Type:          s.Type,
			Name:          s.Name,
			RunIf:         toCondition(s.RunIf),
			SkipIf:        toCondition(s.SkipIf),
			Source:        s.Source,
			CredentialRef: s.CredentialRef,
			Query:         s.Query,
			Output:        s.Output,
			Function:      s.Function,
			SkillRef:      s.SkillRef,
			Inputs:        s.Inputs,
			MergeInputs:   s.MergeInputs,
			Steps:         toSteps(s.Steps),
			Then:          toSteps(s.Then),
			Else:          toSteps(s.Else),
			If:            toCondition(s.If),
			ContextKeys:   s.ContextKeys,
		}
	}
	return out
}

func fromCondition(c *skill.Condition) *conditionYAML {
	if c == nil {
		return nil
	}
	return &conditionYAML{Field: c.Field, Operator: c.Operator, Value: c.Value}
}

// fromSteps is the inverse of toSteps, used to re-encode a runtime
// ActionConfig's pipeline steps back into the YAML/JSON DTO shape when
// persisting a database-sourced skill (see crud.go).
func fromSteps(in []skill.PipelineStepConfig) []stepYAML {
	if in == nil {
		return nil
	}
	out := make([]stepYAML, len(in))
	for i, s := range in {
		out[i] = stepYAML{
			Type:          s.Type,
			Name:          s.Name,
			RunIf:         fromCondition(s.RunIf),
			SkipIf:        fromCondition(s.SkipIf),
			Source:        s.Source,
			CredentialRef: s.CredentialRef,
			Query:         s.Query,
			Output:        s.Output,
			Function:      s.Function,
			SkillRef:      s.SkillRef,
			Inputs:        s.Inputs,
			MergeInputs:   s.MergeInputs,
			Steps:         fromSteps(s.Steps),
			Then:          fromSteps(s.Then),
			Else:          fromSteps(s.Else),
			If:            fromCondition(s.If),
			ContextKeys:   s.ContextKeys,
		}
	}
	return out
}

// toSkill converts a parsed manifest (plus the prose loaded alongside it and
// source metadata) into the runtime Skill type.
func (m *manifestYAML) toSkill(prompt, systemPrompt string, src skill.Source, isPublic bool, workspaceID, id, folderPath string) *skill.Skill {
	s := &skill.Skill{
		Name:             m.Name,
		Description:      m.Description,
		Requires:         m.Requires,
		Produces:         m.Produces,
		OptionalProduces: m.OptionalProduces,
		Executor:         skill.Executor(m.Executor),
		HITLEnabled:      m.HITLEnabled,
		Prompt:           prompt,
		SystemPrompt:     systemPrompt,
		SourceKind:       src,
		IsPublic:         isPublic,
		WorkspaceID:      workspaceID,
		ID:               id,
		FolderPath:       folderPath,
	}
	if m.RESTConfig != nil {
		s.RESTConfig = &skill.RESTConfig{
			URLTemplate: m.RESTConfig.URLTemplate,
			Method:      m.RESTConfig.Method,
			TimeoutMS:   m.RESTConfig.TimeoutMS,
			Headers:     m.RESTConfig.Headers,
		}
	}
	if m.ActionConfig != nil {
		s.ActionConfig = &skill.ActionConfig{
			Type:          skill.ActionKind(m.ActionConfig.Type),
			TimeoutMS:     m.ActionConfig.TimeoutMS,
			FunctionName:  m.ActionConfig.FunctionName,
			Module:        m.ActionConfig.Module,
			Source:        m.ActionConfig.Source,
			CredentialRef: m.ActionConfig.CredentialRef,
			Query:         m.ActionConfig.Query,
			URLTemplate:   m.ActionConfig.URLTemplate,
			Method:        m.ActionConfig.Method,
			Headers:       m.ActionConfig.Headers,
			Body:          m.ActionConfig.Body,
			Interpreter:   m.ActionConfig.Interpreter,
			ScriptPath:    m.ActionConfig.ScriptPath,
			Steps:         toSteps(m.ActionConfig.Steps),
		}
	}
	return s
}
