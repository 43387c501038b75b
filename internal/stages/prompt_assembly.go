package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/soochol/creativeflow/internal/pipeline"
	"github.com/soochol/creativeflow/internal/stages/prompts"
)

// PromptAssembly is a pure stage: it renders each visual concept into one
// fluent final prompt string, with no I/O and no LLM calls.
type PromptAssembly struct {
	Cfg Config
}

func (s *PromptAssembly) Run(_ context.Context, pctx *pipeline.Context) error {
	literalFamily := s.Cfg.Image.Family() == "literal-directive"

	out := make([]string, len(pctx.GeneratedImagePrompts))
	for i, gp := range pctx.GeneratedImagePrompts {
		scenario := selectScenario(pctx)
		instruction := ""
		if pctx.ImageReference != nil {
			instruction = pctx.ImageReference.Instruction
		}
		prefix, err := prompts.Prefix(scenario, literalFamily, prompts.PrefixData{Instruction: instruction})
		if err != nil {
			return err
		}
		out[i] = assemble(prefix, gp.VisualConcept, pctx, literalFamily)
	}
	pctx.FinalAssembledPrompts = out
	return nil
}

// selectScenario picks one of the six recognized input configurations.
// Style adaptation and logo-only take precedence over the general edit
// scenarios since they involve a narrower, more specific contract.
func selectScenario(pctx *pipeline.Context) prompts.Scenario {
	switch {
	case pctx.PresetType == pipeline.PresetStyleRecipe:
		return prompts.StyleAdaptation
	case pctx.ImageReference == nil && pctx.BrandKit != nil && pctx.BrandKit.LogoAnalysis != nil:
		return prompts.LogoOnly
	case pctx.ImageReference == nil:
		return prompts.FullGeneration
	case pctx.ImageReference.Instruction == "":
		return prompts.DefaultEdit
	case pctx.ImageAnalysisResult != nil && len(pctx.ImageAnalysisResult.SecondaryElements) > 0:
		return prompts.ComplexEdit
	default:
		return prompts.InstructedEdit
	}
}

// assemble renders one visual concept as a single fluent paragraph in the
// field order the spec's visual_concept schema declares, appending the
// text-rendering and branding directives when applicable, and the
// aspect-ratio directive only for the literal-directive provider family.
func assemble(prefix string, vc pipeline.VisualConcept, pctx *pipeline.Context, literalFamily bool) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(" ")

	writeField := func(s string) {
		if s == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(strings.TrimSpace(s))
		if !strings.HasSuffix(strings.TrimSpace(s), ".") {
			b.WriteString(".")
		}
	}

	writeField(vc.MainSubject)
	writeField(vc.CompositionAndFraming)
	writeField(vc.BackgroundEnvironment)
	writeField(vc.ForegroundElements)
	writeField(vc.LightingAndMood)
	writeField(vc.ColorPalette)
	writeField(vc.VisualStyle)
	writeField(vc.TextureAndDetails)

	if pctx.RenderText && vc.PromotionalTextVisuals != "" {
		if vc.HasLiteralText {
			writeField(fmt.Sprintf("Render the following text precisely as specified: %s", vc.PromotionalTextVisuals))
		} else {
			writeField(vc.PromotionalTextVisuals)
		}
	}
	if pctx.ApplyBranding && vc.BrandingVisuals != "" {
		writeField(vc.BrandingVisuals)
	}
	writeField(vc.NegativeElements)

	if literalFamily {
		writeField(fmt.Sprintf("Aspect ratio: %s.", aspectRatioFor(pctx.PlatformName)))
	}

	return b.String()
}

func aspectRatioFor(p pipeline.Platform) string {
	switch p {
	case pipeline.PlatformInstagramStory, pipeline.PlatformTikTok:
		return "9:16"
	case pipeline.PlatformPinterest:
		return "2:3"
	case pipeline.PlatformFacebook, pipeline.PlatformX:
		return "1.91:1"
	default:
		return "1:1"
	}
}
