// Package skill defines the Skill value type: an immutable-after-load unit
// of work with typed inputs (Requires), typed outputs (Produces /
// OptionalProduces), and one of three execution strategies. See spec §3.
package skill

import "fmt"

// Executor is the skill's top-level execution strategy.
type Executor string

const (
	ExecutorLLM    Executor = "llm"
	ExecutorREST   Executor = "rest"
	ExecutorAction Executor = "action"
)

// ActionKind discriminates action_config.type for ExecutorAction skills.
type ActionKind string

const (
	ActionPythonFunction ActionKind = "python_function"
	ActionDataQuery      ActionKind = "data_query"
	ActionDataPipeline   ActionKind = "data_pipeline"
	ActionHTTPCall       ActionKind = "http_call"
	ActionScript         ActionKind = "script"
)

// Source discriminates where a skill definition came from.
type Source string

const (
	SourceFilesystem Source = "filesystem"
	SourceDatabase   Source = "database"
)

// RESTConfig configures an ExecutorREST skill.
type RESTConfig struct {
	URLTemplate string
	Method      string
	TimeoutMS   int
	Headers     map[string]string
}

// ActionConfig configures an ExecutorAction skill, discriminated on Type.
type ActionConfig struct {
	Type      ActionKind
	TimeoutMS int

	// python_function
	FunctionName string
	Module       string // optional; auto-discovered from the skill folder when empty

	// data_query
	Source        string // "postgres" | "mysql" | "sqlite" | "mongodb"
	CredentialRef string
	Query         string

	// http_call
	URLTemplate string
	Method      string
	Headers     map[string]string
	Body        string

	// script
	Interpreter string
	ScriptPath  string

	// data_pipeline
	Steps []PipelineStepConfig
}

// PipelineStepConfig is the shape of one pipeline step, as parsed from
// YAML. pkg/pipeline executes steps in this shape directly; no separate
// AST is built from it.
type PipelineStepConfig struct {
	Type   string
	Name   string
	RunIf  *Condition
	SkipIf *Condition

	// query
	Source        string
	CredentialRef string
	Query         string
	Output        string

	// transform / skill
	Function string
	SkillRef string
	Inputs   []string

	// merge
	MergeInputs []string

	// parallel / then / else branches
	Steps []PipelineStepConfig
	Then  []PipelineStepConfig
	Else  []PipelineStepConfig
	If    *Condition

	// pipeline (nested sub-pipeline)
	ContextKeys []string
}

// Condition is a {field, operator, value?} guard evaluated over a pipeline's
// local context. See spec §4.7.
type Condition struct {
	Field    string
	Operator string
	Value    any
}

// Skill is the immutable-after-load runtime representation of a skill
// definition (spec §3).
type Skill struct {
	Name             string
	Description      string
	Requires         []string
	Produces         []string
	OptionalProduces []string
	Executor         Executor
	HITLEnabled      bool

	Prompt       string
	SystemPrompt string

	RESTConfig   *RESTConfig
	ActionConfig *ActionConfig

	SourceKind  Source
	IsPublic    bool
	WorkspaceID string
	ID          string

	// FolderPath is the filesystem directory a SourceFilesystem skill was
	// loaded from. Empty for SourceDatabase skills: their script_path and
	// python_function module must be absolute or resolvable from the
	// engine's working directory.
	FolderPath string
}

// Validate checks the invariants spec §4.1 requires at load time:
// requires ∩ produces = ∅, executor-specific config presence, and that
// rest_config/action_config are mutually exclusive.
func (s *Skill) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("skill: name is required")
	}
	if err := validatePaths(s.Requires, true); err != nil {
		return fmt.Errorf("skill %q: requires: %w", s.Name, err)
	}
	if err := validatePaths(s.Produces, false); err != nil {
		return fmt.Errorf("skill %q: produces: %w", s.Name, err)
	}
	if err := validatePaths(s.OptionalProduces, false); err != nil {
		return fmt.Errorf("skill %q: optional_produces: %w", s.Name, err)
	}

	required := make(map[string]bool, len(s.Requires))
	for _, p := range s.Requires {
		required[p] = true
	}
	for _, p := range s.Produces {
		if required[p] {
			return fmt.Errorf("skill %q: path %q is in both requires and produces", s.Name, p)
		}
	}

	if s.RESTConfig != nil && s.ActionConfig != nil {
		return fmt.Errorf("skill %q: rest_config and action_config are mutually exclusive", s.Name)
	}

	switch s.Executor {
	case ExecutorLLM:
		// prompt/system_prompt are free text; no structural requirement beyond executor match.
	case ExecutorREST:
		if s.RESTConfig == nil {
			return fmt.Errorf("skill %q: executor=rest requires rest_config", s.Name)
		}
	case ExecutorAction:
		if s.ActionConfig == nil {
			return fmt.Errorf("skill %q: executor=action requires action_config", s.Name)
		}
		if err := validateActionConfig(s.Name, s.ActionConfig); err != nil {
			return err
		}
	default:
		return fmt.Errorf("skill %q: unknown executor %q", s.Name, s.Executor)
	}

	return nil
}

func validateActionConfig(skillName string, ac *ActionConfig) error {
	switch ac.Type {
	case ActionPythonFunction:
		if ac.FunctionName == "" {
			return fmt.Errorf("skill %q: action_config.type=python_function requires function_name", skillName)
		}
	case ActionDataQuery:
		if ac.Source == "" || ac.Query == "" {
			return fmt.Errorf("skill %q: action_config.type=data_query requires source and query", skillName)
		}
	case ActionDataPipeline:
		if len(ac.Steps) == 0 {
			return fmt.Errorf("skill %q: action_config.type=data_pipeline requires at least one step", skillName)
		}
		if err := validatePipelineSteps(skillName, ac.Steps); err != nil {
			return err
		}
	case ActionHTTPCall:
		if ac.URLTemplate == "" {
			return fmt.Errorf("skill %q: action_config.type=http_call requires url_template", skillName)
		}
	case ActionScript:
		if ac.ScriptPath == "" {
			return fmt.Errorf("skill %q: action_config.type=script requires script_path", skillName)
		}
	default:
		return fmt.Errorf("skill %q: unknown action_config.type %q", skillName, ac.Type)
	}
	return nil
}

// knownPipelineStepTypes mirrors the switch in pkg/pipeline.Engine.runStep;
// kept in sync by hand since runStep only meets a step's type at
// execution time and load-time validation must reject an unknown step
// type before then.
var knownPipelineStepTypes = map[string]bool{
	"query":       true,
	"transform":   true,
	"skill":       true,
	"merge":       true,
	"parallel":    true,
	"conditional": true,
	"pipeline":    true,
}

// validatePipelineSteps recursively walks a data_pipeline's embedded steps
// (including parallel/conditional branches) and rejects any unknown step
// type, so a typo'd step fails skill load instead of surfacing mid-run.
func validatePipelineSteps(skillName string, steps []PipelineStepConfig) error {
	for _, st := range steps {
		if !knownPipelineStepTypes[st.Type] {
			return fmt.Errorf("skill %q: data_pipeline step has unknown type %q", skillName, st.Type)
		}
		if err := validatePipelineSteps(skillName, st.Steps); err != nil {
			return err
		}
		if err := validatePipelineSteps(skillName, st.Then); err != nil {
			return err
		}
		if err := validatePipelineSteps(skillName, st.Else); err != nil {
			return err
		}
	}
	return nil
}

// validatePaths checks that every dotted path is syntactically valid
// (non-empty, dot-separated tokens). allowIntegerTokens permits purely
// numeric tokens (read-only requires paths may index into lists);
// produces/optional_produces paths are always write targets and must not
// contain an integer token in any segment — the resolver itself refuses
// sparse-list creation, so this is purely a shape check.
func validatePaths(paths []string, allowIntegerTokens bool) error {
	for _, p := range paths {
		if p == "" {
			return fmt.Errorf("empty path")
		}
		tokens := splitDots(p)
		for _, tok := range tokens {
			if tok == "" {
				return fmt.Errorf("path %q has an empty segment", p)
			}
			if !allowIntegerTokens && isAllDigits(tok) {
				return fmt.Errorf("path %q: integer tokens are only allowed in read (requires) paths", p)
			}
		}
	}
	return nil
}

func splitDots(p string) []string {
	var out []string
	start := 0
	for i := 0; i < len(p); i++ {
		if p[i] == '.' {
			out = append(out, p[start:i])
			start = i + 1
		}
	}
	out = append(out, p[start:])
	return out
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
