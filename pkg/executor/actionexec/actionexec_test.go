package actionexec

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/engine/pkg/actionfn"
	"github.com/skillforge/engine/pkg/credentials"
	"github.com/skillforge/engine/pkg/datasource"
	"github.com/skillforge/engine/pkg/executor"
	"github.com/skillforge/engine/pkg/skill"
)

type fakeCredClient struct {
	desc *credentials.ConnectionDescriptor
	err  error
}

func (f *fakeCredClient) Get(_ context.Context, _, _ string) (*credentials.ConnectionDescriptor, error) {
	return f.desc, f.err
}

type fakeResolver struct {
	result *datasource.Result
	err    error
	gotDSN string
}

func (f *fakeResolver) ResolveAndQuery(_ context.Context, credClient credentials.Client, ownerID, source, credentialRef, _ string, _ map[string]any) (*datasource.Result, error) {
	if credClient == nil {
		return nil, fmt.Errorf("no credential client configured")
	}
	desc, err := credClient.Get(context.Background(), ownerID, credentialRef)
	if err != nil {
		return nil, err
	}
	_ = source
	f.gotDSN = desc.DSN
	return f.result, f.err
}

func TestExecute_PythonFunction_HappyPath(t *testing.T) {
	funcs := actionfn.NewTable()
	funcs.Register("send_email", func(_ context.Context, inputs map[string]any) (any, error) {
		return map[string]any{"sent": true, "to": inputs["to"]}, nil
	})
	e := New(funcs, nil, nil)
	sk := &skill.Skill{
		Name:         "SendEmail",
		Executor:     skill.ExecutorAction,
		Produces:     []string{"result"},
		ActionConfig: &skill.ActionConfig{Type: skill.ActionPythonFunction, FunctionName: "send_email"},
	}
	result, err := e.Execute(context.Background(), sk, map[string]any{"to": "a@b.com"}, &executor.Context{})
	require.NoError(t, err)
	require.Nil(t, result.Error)
	assert.Equal(t, true, result.Outputs["sent"])
	assert.Equal(t, "a@b.com", result.Outputs["to"])
}

func TestExecute_PythonFunction_AutoDiscoversSkillLocalModule(t *testing.T) {
	funcs := actionfn.NewTable()
	funcs.Register("fetch_weather.get_forecast", func(_ context.Context, _ map[string]any) (any, error) {
		return map[string]any{"forecast": "sunny"}, nil
	})
	e := New(funcs, nil, nil)
	sk := &skill.Skill{
		Name:         "FetchWeather",
		Executor:     skill.ExecutorAction,
		FolderPath:   "/skills/fetch_weather",
		ActionConfig: &skill.ActionConfig{Type: skill.ActionPythonFunction, FunctionName: "get_forecast"},
	}
	result, err := e.Execute(context.Background(), sk, nil, &executor.Context{})
	require.NoError(t, err)
	require.Nil(t, result.Error)
	assert.Equal(t, "sunny", result.Outputs["forecast"])
}

func TestExecute_DataQuery_HappyPath(t *testing.T) {
	q := &fakeResolver{result: &datasource.Result{Rows: []map[string]any{{"id": 1}}, RowCount: 1}}
	cred := &fakeCredClient{desc: &credentials.ConnectionDescriptor{Kind: "postgres", DSN: "postgres://x"}}
	e := New(nil, q, nil)
	sk := &skill.Skill{
		Name:     "LookupUser",
		Executor: skill.ExecutorAction,
		ActionConfig: &skill.ActionConfig{
			Type: skill.ActionDataQuery, Source: "postgres", CredentialRef: "users-db",
			Query: "select * from users where id = {user_id}",
		},
	}
	ec := &executor.Context{OwnerID: "owner-1", Credentials: cred}
	result, err := e.Execute(context.Background(), sk, map[string]any{"user_id": 1}, ec)
	require.NoError(t, err)
	require.Nil(t, result.Error)
	assert.EqualValues(t, 1, result.Outputs["row_count"])
	assert.Equal(t, "postgres://x", q.gotDSN)
}

func TestExecute_DataQuery_NoCredentialClientIsActionError(t *testing.T) {
	e := New(nil, &fakeResolver{}, nil)
	sk := &skill.Skill{
		Name:         "LookupUser",
		Executor:     skill.ExecutorAction,
		ActionConfig: &skill.ActionConfig{Type: skill.ActionDataQuery, Source: "postgres", CredentialRef: "x", Query: "select 1"},
	}
	result, err := e.Execute(context.Background(), sk, nil, &executor.Context{})
	require.NoError(t, err)
	require.NotNil(t, result.Error)
	assert.Equal(t, executor.ErrorKindActionError, result.Error.Kind)
}

func TestExecute_HTTPCall_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/42", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	e := New(nil, nil, nil)
	sk := &skill.Skill{
		Name:     "Lookup",
		Executor: skill.ExecutorAction,
		ActionConfig: &skill.ActionConfig{
			Type: skill.ActionHTTPCall, Method: http.MethodGet,
			URLTemplate: srv.URL + "/users/{user_id}",
		},
	}
	result, err := e.Execute(context.Background(), sk, map[string]any{"user_id": 42}, &executor.Context{})
	require.NoError(t, err)
	require.Nil(t, result.Error)
	assert.Equal(t, http.StatusCreated, result.Outputs["status_code"])
	assert.Equal(t, `{"ok":true}`, result.Outputs["response"])
}

func TestExecute_DataPipeline_DispatchesToInjectedRunner(t *testing.T) {
	var gotSteps []skill.PipelineStepConfig
	runner := func(_ context.Context, steps []skill.PipelineStepConfig, seed map[string]any, _ *executor.Context) (map[string]any, error) {
		gotSteps = steps
		return map[string]any{"final": seed["x"]}, nil
	}
	e := New(nil, nil, runner)
	sk := &skill.Skill{
		Name:     "Pipeline",
		Executor: skill.ExecutorAction,
		ActionConfig: &skill.ActionConfig{
			Type:  skill.ActionDataPipeline,
			Steps: []skill.PipelineStepConfig{{Type: "transform", Name: "step1"}},
		},
	}
	result, err := e.Execute(context.Background(), sk, map[string]any{"x": 7}, &executor.Context{})
	require.NoError(t, err)
	require.Nil(t, result.Error)
	assert.Equal(t, 7, result.Outputs["final"])
	require.Len(t, gotSteps, 1)
}

func TestExecute_RejectsNonActionSkill(t *testing.T) {
	e := New(nil, nil, nil)
	sk := &skill.Skill{Name: "X", Executor: skill.ExecutorLLM}
	_, err := e.Execute(context.Background(), sk, nil, &executor.Context{})
	require.Error(t, err)
}
