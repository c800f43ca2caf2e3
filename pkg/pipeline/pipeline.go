// Package pipeline implements the Data Pipeline Sub-Engine (C8, spec
// §4.7): the recursive step walker a data_pipeline action dispatches
// into. It executes with its own local context seeded from the action's
// resolved_inputs and returns that context's final state as the action's
// raw outputs.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/skillforge/engine/pkg/actionfn"
	"github.com/skillforge/engine/pkg/datasource"
	"github.com/skillforge/engine/pkg/executor"
	"github.com/skillforge/engine/pkg/skill"
)

// Engine runs data_pipeline step lists. Its Run method has the exact
// signature actionexec.PipelineRunner expects, so it is wired in as a
// method value rather than through an interface.
type Engine struct {
	Functions  *actionfn.Table
	DataSource datasource.Resolver
	Logger     *slog.Logger
}

// New builds a pipeline Engine.
func New(functions *actionfn.Table, ds datasource.Resolver) *Engine {
	return &Engine{Functions: functions, DataSource: ds, Logger: slog.Default().With("component", "pipeline")}
}

// Run executes steps against a local context seeded from seed (a copy,
// never the caller's map) and returns the final local context.
func (e *Engine) Run(ctx context.Context, steps []skill.PipelineStepConfig, seed map[string]any, ec *executor.Context) (map[string]any, error) {
	localCtx := cloneMap(seed)
	if err := e.runSteps(ctx, steps, localCtx, ec); err != nil {
		return nil, err
	}
	return localCtx, nil
}

// runSteps executes steps sequentially against localCtx: each step
// observes every prior step's writes (spec §4.7 ordering guarantee).
func (e *Engine) runSteps(ctx context.Context, steps []skill.PipelineStepConfig, localCtx map[string]any, ec *executor.Context) error {
	for i := range steps {
		if err := e.runStep(ctx, &steps[i], localCtx, ec); err != nil {
			return fmt.Errorf("pipeline: step %d (%s): %w", i, stepLabel(&steps[i]), err)
		}
	}
	return nil
}

func stepLabel(s *skill.PipelineStepConfig) string {
	if s.Name != "" {
		return s.Name
	}
	return s.Type
}

func (e *Engine) runStep(ctx context.Context, s *skill.PipelineStepConfig, localCtx map[string]any, ec *executor.Context) error {
	if s.RunIf != nil {
		ok, err := evaluate(s.RunIf, localCtx)
		if err != nil {
			return fmt.Errorf("run_if: %w", err)
		}
		if !ok {
			return nil
		}
	}
	if s.SkipIf != nil {
		ok, err := evaluate(s.SkipIf, localCtx)
		if err != nil {
			return fmt.Errorf("skip_if: %w", err)
		}
		if ok {
			return nil
		}
	}

	switch s.Type {
	case "query":
		return e.runQuery(ctx, s, localCtx, ec)
	case "transform":
		return e.runTransform(ctx, s, localCtx)
	case "skill":
		return e.runSkill(ctx, s, localCtx, ec)
	case "merge":
		return e.runMerge(s, localCtx)
	case "parallel":
		return e.runParallel(ctx, s, localCtx, ec)
	case "conditional":
		return e.runConditional(ctx, s, localCtx, ec)
	case "pipeline":
		return e.runNestedPipeline(ctx, s, localCtx, ec)
	default:
		return fmt.Errorf("unknown step type %q", s.Type)
	}
}

func (e *Engine) runQuery(ctx context.Context, s *skill.PipelineStepConfig, localCtx map[string]any, ec *executor.Context) error {
	if e.DataSource == nil {
		return fmt.Errorf("query: no data source configured")
	}
	result, err := e.DataSource.ResolveAndQuery(ctx, ec.Credentials, ec.OwnerID, s.Source, s.CredentialRef, s.Query, localCtx)
	if err != nil {
		return err
	}
	output := s.Output
	if output == "" {
		output = "query_result"
	}
	localCtx[output] = map[string]any{"query_result": result.Rows, "row_count": result.RowCount}
	return nil
}

func (e *Engine) runTransform(ctx context.Context, s *skill.PipelineStepConfig, localCtx map[string]any) error {
	if e.Functions == nil {
		return fmt.Errorf("transform: no function table configured")
	}
	inputs := selectKeys(localCtx, s.Inputs)
	v, err := e.Functions.Call(ctx, s.Function, inputs)
	if err != nil {
		return err
	}
	if s.Output != "" {
		localCtx[s.Output] = v
	}
	return nil
}

func (e *Engine) runSkill(ctx context.Context, s *skill.PipelineStepConfig, localCtx map[string]any, ec *executor.Context) error {
	if ec == nil || ec.InvokeSkill == nil {
		return fmt.Errorf("skill: no InvokeSkill hook configured for recursive invocation")
	}
	inputs := selectKeys(localCtx, s.Inputs)
	mapped, err := ec.InvokeSkill(ctx, s.SkillRef, inputs)
	if err != nil {
		return err
	}
	mergeInto(localCtx, mapped)
	return nil
}

// runMerge combines s.MergeInputs into a single composite object under
// s.Output, nesting each input under its own name so later inputs never
// overwrite earlier ones' keys (spec §4.7: "merge by nesting under the
// input's name").
func (e *Engine) runMerge(s *skill.PipelineStepConfig, localCtx map[string]any) error {
	composite := make(map[string]any, len(s.MergeInputs))
	for _, name := range s.MergeInputs {
		composite[name] = localCtx[name]
	}
	if s.Output == "" {
		return fmt.Errorf("merge: output is required")
	}
	localCtx[s.Output] = composite
	return nil
}

// runParallel executes s.Steps concurrently, each against an isolated
// snapshot of localCtx (spec §4.7: "preserve per-step output isolation
// until merging"), then merges every sub-step's writes into localCtx at
// the top level in completion order — the later-completing write wins,
// logged as a warning (spec §4.7's adopted collision policy), grounded on
// the indexed-goroutine-fan-out-then-merge shape of
// RealSessionExecutor.executeStage.
func (e *Engine) runParallel(ctx context.Context, s *skill.PipelineStepConfig, localCtx map[string]any, ec *executor.Context) error {
	type subResult struct {
		before map[string]any
		after  map[string]any
		err    error
	}
	results := make(chan subResult, len(s.Steps))
	var wg sync.WaitGroup

	for i := range s.Steps {
		wg.Add(1)
		go func(step skill.PipelineStepConfig) {
			defer wg.Done()
			sub := cloneMap(localCtx)
			err := e.runStep(ctx, &step, sub, ec)
			results <- subResult{before: localCtx, after: sub, err: err}
		}(s.Steps[i])
	}
	wg.Wait()
	close(results)

	written := make(map[string]string) // key -> which step last wrote it (by arrival order)
	for res := range results {
		if res.err != nil {
			return res.err
		}
		for k, v := range res.after {
			if before, existed := res.before[k]; existed && fmt.Sprint(before) == fmt.Sprint(v) {
				continue // unchanged by this sub-step
			}
			if _, conflict := written[k]; conflict {
				e.logger().Warn("parallel step write collision, later completion wins", "key", k)
			}
			localCtx[k] = v
			written[k] = "parallel"
		}
	}
	return nil
}

func (e *Engine) runConditional(ctx context.Context, s *skill.PipelineStepConfig, localCtx map[string]any, ec *executor.Context) error {
	ok, err := evaluate(s.If, localCtx)
	if err != nil {
		return fmt.Errorf("conditional: %w", err)
	}
	if ok {
		return e.runSteps(ctx, s.Then, localCtx, ec)
	}
	return e.runSteps(ctx, s.Else, localCtx, ec)
}

// runNestedPipeline runs a sub-pipeline seeded from a subset of the
// parent context (s.ContextKeys) and merges its final context back into
// the parent at the top level, the same convergence rule as `skill`.
func (e *Engine) runNestedPipeline(ctx context.Context, s *skill.PipelineStepConfig, localCtx map[string]any, ec *executor.Context) error {
	seed := selectKeys(localCtx, s.ContextKeys)
	final, err := e.Run(ctx, s.Steps, seed, ec)
	if err != nil {
		return err
	}
	mergeInto(localCtx, final)
	return nil
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func selectKeys(src map[string]any, keys []string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		out[k] = src[k]
	}
	return out
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}

func cloneMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
