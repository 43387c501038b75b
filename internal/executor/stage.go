// Package executor drives one run through the stage registry: it loads a
// preset if requested, walks the default stage order honoring skip sets and
// the style-adaptation insertion point, checks each stage's pre/post
// predicates, and persists the context when the run completes or fails.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/soochol/creativeflow/internal/persistence"
	"github.com/soochol/creativeflow/internal/pipeline"
	"github.com/soochol/creativeflow/internal/preset"
	"github.com/soochol/creativeflow/internal/progress"
	"github.com/soochol/creativeflow/internal/stageregistry"
)

// Stage is the interface every registry stage implementation satisfies. The
// Executor never inspects stage internals beyond this contract.
type Stage interface {
	Run(ctx context.Context, pctx *pipeline.Context) error
}

// Executor wires the stage registry, preset loader, persistence, and
// progress bus into the single run_async entry point. It holds no per-run
// state, so one Executor serves every concurrent run in the process.
type Executor struct {
	loader *preset.Loader
	store  *persistence.RunStore
	busFor func(runID string) *progress.Bus
	stages map[string]Stage
}

// New builds an Executor. stages must contain an entry for every
// stageregistry.Default name, plus "style_adaptation".
func New(loader *preset.Loader, store *persistence.RunStore, busFor func(runID string) *progress.Bus, stages map[string]Stage) *Executor {
	return &Executor{loader: loader, store: store, busFor: busFor, stages: stages}
}

// RunAsync executes the default stage graph against pctx to completion,
// persisting pipeline_metadata.json on both success and failure.
func (e *Executor) RunAsync(ctx context.Context, pctx *pipeline.Context, userID string) error {
	bus := e.busFor(pctx.RunID)
	bus.Publish(progress.Event{Type: progress.RunStarted})

	if pctx.PresetID != "" {
		if err := e.loader.LoadAndApplyPreset(ctx, pctx, pctx.PresetID, userID); err != nil {
			return e.failRun(bus, pctx, "preset_loader", err)
		}
	}

	for _, stage := range stageregistry.Default {
		if pctx.IsSkipped(stage.Name) {
			bus.Publish(progress.Event{Type: progress.StageSkipped, Stage: stage.Name, Reason: "preset skip_stages"})
			continue
		}

		if stage.Name == "prompt_assembly" && stageregistry.NeedsStyleAdaptation(pctx) {
			if err := e.execStage(ctx, bus, pctx, "style_adaptation", nil); err != nil {
				return e.failRun(bus, pctx, "style_adaptation", err)
			}
		}

		if err := e.execStage(ctx, bus, pctx, stage.Name, &stage); err != nil {
			return e.failRun(bus, pctx, stage.Name, err)
		}
	}

	if err := e.store.WriteMetadata(pctx); err != nil {
		return e.failRun(bus, pctx, "persist", err)
	}

	bus.Publish(progress.Event{Type: progress.RunCompleted, Status: runStatus(pctx)})
	return nil
}

// runStatus classifies the run outcome from the generated-image results: all
// successes is "success", a mix is "partial_success". Zero successes never
// reaches here — the image_generation stage returns a ContractViolation when
// every variant fails, which short-circuits RunAsync before this point.
func runStatus(pctx *pipeline.Context) string {
	successes := 0
	for _, r := range pctx.GeneratedImageResults {
		if r.Status == "success" {
			successes++
		}
	}
	if successes == len(pctx.GeneratedImageResults) {
		return "success"
	}
	return "partial_success"
}

type payloadCtxKey struct{}

// WithPayload attaches a single-stage invocation's request payload (e.g. a
// stages.CaptionRequest) to ctx, since Stage.Run's signature is fixed to
// (ctx, pctx) and most stages need no payload at all.
func WithPayload(ctx context.Context, payload any) context.Context {
	return context.WithValue(ctx, payloadCtxKey{}, payload)
}

// PayloadFromContext retrieves the value attached by WithPayload.
func PayloadFromContext(ctx context.Context) any {
	return ctx.Value(payloadCtxKey{})
}

// RunSingleStage implements run_single_stage: resumes a persisted run's
// context and executes exactly one stage outside the default graph,
// persisting only that stage's own artifacts (the stage implementation is
// responsible for its own persistence, e.g. caption files). payload carries
// stage-specific request data (e.g. image_index, settings) that the default
// graph's Stage.Run signature has no room for.
func (e *Executor) RunSingleStage(ctx context.Context, runID, stageName string, payload any) error {
	pctx, err := e.store.ReadMetadata(runID)
	if err != nil {
		return fmt.Errorf("load run %q: %w", runID, err)
	}
	impl, ok := e.stages[stageName]
	if !ok {
		return fmt.Errorf("no implementation registered for stage %q", stageName)
	}
	bus := e.busFor(runID)
	ctx = progress.WithBus(ctx, bus)
	ctx = WithPayload(ctx, payload)
	return impl.Run(ctx, pctx)
}

func (e *Executor) execStage(ctx context.Context, bus *progress.Bus, pctx *pipeline.Context, name string, reg *stageregistry.Stage) error {
	impl, ok := e.stages[name]
	if !ok {
		return fmt.Errorf("no implementation registered for stage %q", name)
	}

	if reg != nil {
		if pErr := reg.CheckRequired(pctx); pErr != nil {
			return pErr
		}
	}

	bus.Publish(progress.Event{Type: progress.StageStarted, Stage: name})

	start := time.Now()
	err := impl.Run(progress.WithBus(ctx, bus), pctx)
	duration := time.Since(start)

	if err != nil {
		bus.Publish(progress.Event{Type: progress.StageFailed, Stage: name, ErrorKind: errorKind(err), Message: err.Error()})
		return err
	}
	pctx.RecordStageTiming(name, duration)

	if reg != nil {
		if cErr := reg.CheckProduced(pctx); cErr != nil {
			bus.Publish(progress.Event{Type: progress.StageFailed, Stage: name, ErrorKind: errorKind(cErr), Message: cErr.Error()})
			return cErr
		}
	}

	usage := pctx.LLMUsage[name]
	bus.Publish(progress.Event{
		Type:       progress.StageCompleted,
		Stage:      name,
		DurationMs: duration.Milliseconds(),
		Message:    fmt.Sprintf("usage total=%d", usage.TotalTokens),
	})
	return nil
}

func errorKind(err error) string {
	switch err.(type) {
	case *pipeline.PreconditionError:
		return "PreconditionError"
	case *pipeline.ProviderError:
		return "ProviderError"
	case *pipeline.ContractViolation:
		return "ContractViolation"
	case *pipeline.StageTimeout:
		return "StageTimeout"
	case *pipeline.Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

func (e *Executor) failRun(bus *progress.Bus, pctx *pipeline.Context, stage string, err error) error {
	_ = e.store.WriteMetadata(pctx)
	bus.Publish(progress.Event{Type: progress.RunFailed, Stage: stage, ErrorKind: errorKind(err)})
	return fmt.Errorf("stage %q: %w", stage, err)
}
