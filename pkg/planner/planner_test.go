package planner

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/engine/pkg/llm"
	"github.com/skillforge/engine/pkg/skill"
)

type fakeClient struct {
	resp *llm.Response
	err  error
	req  llm.Request
}

func (f *fakeClient) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.req = req
	return f.resp, f.err
}

func singleProviderClientSet(c llm.Client) *llm.ClientSet {
	return llm.NewClientSetFromMap(map[string]llm.Client{"default": c}, "default", "default")
}

func TestCandidateSkills_ExcludesUnsatisfiedRequires(t *testing.T) {
	all := []*skill.Skill{
		{Name: "fetch_user", Requires: []string{"user_id"}},
		{Name: "send_email", Requires: []string{"email_body"}},
	}
	out := CandidateSkills(all, map[string]any{"user_id": 7}, nil, nil)
	require.Len(t, out, 1)
	assert.Equal(t, "fetch_user", out[0].Name)
}

func TestCandidateSkills_ExcludesSucceededSkillUnlessResumable(t *testing.T) {
	all := []*skill.Skill{{Name: "fetch_user"}}
	history := []HistoryEntry{{SkillName: "fetch_user", Succeeded: true}}

	out := CandidateSkills(all, map[string]any{}, history, nil)
	assert.Empty(t, out)

	out = CandidateSkills(all, map[string]any{}, history, map[string]bool{"fetch_user": true})
	require.Len(t, out, 1)
}

func TestCandidateSkills_RetriesFailedSkillOnlyWhenInputsChanged(t *testing.T) {
	sk := &skill.Skill{Name: "fetch_user", Requires: []string{"user_id"}}
	history := []HistoryEntry{{SkillName: "fetch_user", Succeeded: false, InputsHash: InputsHash(sk, map[string]any{"user_id": 1})}}

	out := CandidateSkills([]*skill.Skill{sk}, map[string]any{"user_id": 1}, history, nil)
	assert.Empty(t, out, "same inputs as the failed attempt: not yet eligible for retry")

	out = CandidateSkills([]*skill.Skill{sk}, map[string]any{"user_id": 2}, history, nil)
	require.Len(t, out, 1, "changed inputs since the failed attempt: eligible for retry")
}

func TestDecide_NoCandidatesReturnsEndWithoutCallingLLM(t *testing.T) {
	fake := &fakeClient{}
	choice, err := Decide(context.Background(), singleProviderClientSet(fake), "sop", map[string]any{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, End, choice)
	assert.Empty(t, fake.req.Messages, "must not call the LLM when there are no eligible skills")
}

func TestDecide_ReturnsAuthoritativeEnumChoice(t *testing.T) {
	fake := &fakeClient{resp: &llm.Response{Raw: json.RawMessage(`{"next_skill_name":"fetch_user"}`)}}
	candidates := []*skill.Skill{{Name: "fetch_user", Description: "fetches the user"}}

	choice, err := Decide(context.Background(), singleProviderClientSet(fake), "sop", map[string]any{}, nil, candidates)
	require.NoError(t, err)
	assert.Equal(t, "fetch_user", choice)
	assert.Contains(t, string(fake.req.Schema), `"enum":["fetch_user","END"]`)
}

func TestDecide_RejectsChoiceOutsideSchema(t *testing.T) {
	fake := &fakeClient{resp: &llm.Response{Raw: json.RawMessage(`{"next_skill_name":"not_a_candidate"}`)}}
	candidates := []*skill.Skill{{Name: "fetch_user"}}

	_, err := Decide(context.Background(), singleProviderClientSet(fake), "sop", map[string]any{}, nil, candidates)
	require.Error(t, err)
}
