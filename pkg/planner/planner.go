// Package planner implements the Planner (C9, spec §4.8): a single closed-
// enum LLM decision over the skills whose requires are currently
// satisfiable, plus "END". It also implements the candidate-set /
// cycle-prevention rules spec §4.8 assigns to the Planner ("a skill that
// has executed successfully is removed from the candidate set...").
package planner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/skillforge/engine/pkg/llm"
	"github.com/skillforge/engine/pkg/pathresolver"
	"github.com/skillforge/engine/pkg/skill"
)

// End is the planner's sentinel decision meaning the run is complete.
const End = "END"

// decisionField is the synthetic output field the enum schema constrains.
const decisionField = "next_skill_name"

// HistoryEntry is one past skill execution the Planner conditions on.
type HistoryEntry struct {
	SkillName  string
	Succeeded  bool
	InputsHash string // hash of the resolved requires values at that attempt
}

// CandidateSkills filters all down to the skills eligible for the
// Planner's next decision (spec §4.8 cycle prevention):
//   - requires must all resolve against dataStore.
//   - a skill that succeeded is excluded, unless its hitl_enabled resume
//     path is currently active (resumable[name] == true).
//   - a skill that failed is excluded unless its resolved-requires hash
//     has since changed (a dependency produced a new value).
func CandidateSkills(all []*skill.Skill, dataStore map[string]any, history []HistoryEntry, resumable map[string]bool) []*skill.Skill {
	lastAttempt := make(map[string]HistoryEntry, len(history))
	for _, h := range history {
		lastAttempt[h.SkillName] = h // last write wins; history is append-ordered
	}

	var out []*skill.Skill
	for _, sk := range all {
		if !requiresSatisfied(sk, dataStore) {
			continue
		}
		attempt, ran := lastAttempt[sk.Name]
		if !ran {
			out = append(out, sk)
			continue
		}
		if attempt.Succeeded {
			if resumable[sk.Name] {
				out = append(out, sk)
			}
			continue
		}
		// failed: eligible again only if its requires now hash differently.
		if InputsHash(sk, dataStore) != attempt.InputsHash {
			out = append(out, sk)
		}
	}
	return out
}

func requiresSatisfied(sk *skill.Skill, dataStore map[string]any) bool {
	for _, r := range sk.Requires {
		if !pathresolver.Has(dataStore, r) {
			return false
		}
	}
	return true
}

// InputsHash hashes a skill's currently-resolved requires values, used to
// detect "a dependency has since produced new values" for failed-skill
// retry eligibility.
func InputsHash(sk *skill.Skill, dataStore map[string]any) string {
	resolved := make(map[string]any, len(sk.Requires))
	for _, r := range sk.Requires {
		resolved[r] = pathresolver.Get(dataStore, r)
	}
	b, _ := json.Marshal(resolved) // map keys are skill.Requires strings; always marshals
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Decide makes exactly one planner call: an LLM structured decision
// constrained to the candidate names plus END.
func Decide(ctx context.Context, clients *llm.ClientSet, sop string, dataStore map[string]any, historyLines []string, candidates []*skill.Skill) (string, error) {
	if len(candidates) == 0 {
		return End, nil
	}

	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	choices := append(append([]string{}, names...), End)

	client, err := clients.Planner()
	if err != nil {
		return "", fmt.Errorf("planner: %w", err)
	}

	schema := llm.BuildEnumSchema(decisionField, choices)

	dataJSON, err := json.Marshal(dataStore)
	if err != nil {
		return "", fmt.Errorf("planner: marshal data store: %w", err)
	}

	prompt := buildPrompt(sop, string(dataJSON), historyLines, candidates)
	resp, err := client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You are the planner for a skill-orchestration workflow. Choose exactly one next skill to run, or END if the workflow is complete."},
			{Role: llm.RoleUser, Content: prompt},
		},
		Schema:     schema,
		SchemaName: "planner_decision",
	})
	if err != nil {
		return "", fmt.Errorf("planner: llm call: %w", err)
	}

	if err := llm.ValidateOutput(schema, resp.Raw); err != nil {
		return "", fmt.Errorf("planner: %w", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(resp.Raw, &decoded); err != nil {
		return "", fmt.Errorf("planner: decode decision: %w", err)
	}
	choice, _ := decoded[decisionField].(string)
	if choice == "" {
		return "", fmt.Errorf("planner: empty decision")
	}
	return choice, nil
}

func buildPrompt(sop, dataStoreJSON string, historyLines []string, candidates []*skill.Skill) string {
	var b strings.Builder
	b.WriteString("## Standard Operating Procedure\n")
	b.WriteString(sop)
	b.WriteString("\n\n## Current data store\n")
	b.WriteString(dataStoreJSON)
	b.WriteString("\n\n## Workflow history\n")
	if len(historyLines) == 0 {
		b.WriteString("(none yet)\n")
	}
	for _, line := range historyLines {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n## Eligible skills\n")
	for _, c := range candidates {
		b.WriteString(fmt.Sprintf("- %s: %s (requires %v, produces %v)\n", c.Name, c.Description, c.Requires, c.Produces))
	}
	return b.String()
}
