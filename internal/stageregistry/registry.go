// Package stageregistry holds the compile-time ordered stage list the
// Executor walks, each entry declaring its name, kind, and the precondition
// and postcondition predicates checked around its execution.
package stageregistry

import (
	"fmt"

	"github.com/soochol/creativeflow/internal/pipeline"
)

// Kind classifies how a stage's internal work is structured.
type Kind string

const (
	Sequential        Kind = "sequential"
	PerVariantParallel Kind = "per-variant-parallel"
)

// Predicate inspects ctx and reports whether it holds.
type Predicate func(ctx *pipeline.Context) bool

// Stage is one compile-time registry entry.
type Stage struct {
	Name             string
	Kind             Kind
	RequiredInputs   []Predicate
	ProducedOutputs  []Predicate
}

// CheckRequired runs every required-input predicate, returning the first
// that fails (nil if all hold).
func (s Stage) CheckRequired(ctx *pipeline.Context) *pipeline.PreconditionError {
	for i, p := range s.RequiredInputs {
		if !p(ctx) {
			return &pipeline.PreconditionError{
				Stage: s.Name,
				Field: "required_inputs",
				Msg:   predicateFailureMsg(s.Name, i),
			}
		}
	}
	return nil
}

// CheckProduced runs every produced-output predicate, returning the first
// that fails (nil if all hold).
func (s Stage) CheckProduced(ctx *pipeline.Context) *pipeline.ContractViolation {
	for i, p := range s.ProducedOutputs {
		if !p(ctx) {
			return &pipeline.ContractViolation{
				Stage: s.Name,
				Msg:   predicateFailureMsg(s.Name, i),
			}
		}
	}
	return nil
}

func predicateFailureMsg(stage string, index int) string {
	return fmt.Sprintf("%s: predicate %d unmet", stage, index)
}

func lenMatches(f func(*pipeline.Context) int, want func(*pipeline.Context) int) Predicate {
	return func(ctx *pipeline.Context) bool { return f(ctx) == want(ctx) }
}

func numVariants(ctx *pipeline.Context) int { return ctx.NumVariants }

// Default is the default stage order from the registry (subject to
// skipping). Caption is intentionally absent — it runs via a single-stage
// entry point, never as part of this graph.
var Default = []Stage{
	{
		Name: "image_eval",
		Kind: Sequential,
		// image_reference, prompt, and logo path are all optional; the stage
		// itself decides which of its three modes applies.
		RequiredInputs: nil,
		ProducedOutputs: []Predicate{
			func(ctx *pipeline.Context) bool { return ctx.ImageAnalysisResult != nil },
		},
	},
	{
		Name:           "strategy",
		Kind:           Sequential,
		RequiredInputs: nil,
		ProducedOutputs: []Predicate{
			lenMatches(func(ctx *pipeline.Context) int { return len(ctx.SuggestedMarketingStrategies) }, numVariants),
		},
	},
	{
		Name: "style_guide",
		Kind: Sequential,
		RequiredInputs: []Predicate{
			func(ctx *pipeline.Context) bool { return len(ctx.SuggestedMarketingStrategies) == ctx.NumVariants },
		},
		ProducedOutputs: []Predicate{
			lenMatches(func(ctx *pipeline.Context) int { return len(ctx.StyleGuidanceSets) }, numVariants),
		},
	},
	{
		Name: "creative_expert",
		Kind: PerVariantParallel,
		RequiredInputs: []Predicate{
			func(ctx *pipeline.Context) bool { return len(ctx.StyleGuidanceSets) == ctx.NumVariants },
		},
		ProducedOutputs: []Predicate{
			lenMatches(func(ctx *pipeline.Context) int { return len(ctx.GeneratedImagePrompts) }, numVariants),
		},
	},
	{
		Name: "prompt_assembly",
		Kind: PerVariantParallel,
		RequiredInputs: []Predicate{
			func(ctx *pipeline.Context) bool { return len(ctx.GeneratedImagePrompts) == ctx.NumVariants },
		},
		ProducedOutputs: []Predicate{
			lenMatches(func(ctx *pipeline.Context) int { return len(ctx.FinalAssembledPrompts) }, numVariants),
		},
	},
	{
		Name: "image_generation",
		Kind: PerVariantParallel,
		RequiredInputs: []Predicate{
			func(ctx *pipeline.Context) bool { return len(ctx.FinalAssembledPrompts) == ctx.NumVariants },
		},
		ProducedOutputs: []Predicate{
			lenMatches(func(ctx *pipeline.Context) int { return len(ctx.GeneratedImageResults) }, numVariants),
		},
	},
	{
		Name: "image_assessment",
		Kind: PerVariantParallel,
		RequiredInputs: []Predicate{
			func(ctx *pipeline.Context) bool { return len(ctx.GeneratedImageResults) == ctx.NumVariants },
		},
		ProducedOutputs: []Predicate{
			lenMatches(func(ctx *pipeline.Context) int { return len(ctx.ImageAssessments) }, numVariants),
		},
	},
}

// NeedsStyleAdaptation reports whether Style Adaptation must run immediately
// before prompt_assembly: true iff the run is a STYLE_RECIPE run and either
// the caller supplied a non-empty prompt override or image_eval produced a
// fresh analysis this run.
func NeedsStyleAdaptation(ctx *pipeline.Context) bool {
	if ctx.PresetType != pipeline.PresetStyleRecipe {
		return false
	}
	return ctx.Overrides.HasPromptOverride() || ctx.ImageAnalysisResult != nil
}
