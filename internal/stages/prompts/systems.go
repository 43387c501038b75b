package prompts

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"
)

//go:embed templates/system_niche.txt
var NicheSystemPrompt string

//go:embed templates/system_strategy.txt
var strategySystemTemplate string

//go:embed templates/system_style_guide.txt
var StyleGuideSystemPrompt string

//go:embed templates/system_creative_expert.txt
var CreativeExpertSystemPrompt string

//go:embed templates/system_style_adaptation.txt
var StyleAdaptationSystemPrompt string

//go:embed templates/system_image_eval_minimal.txt
var ImageEvalMinimalSystemPrompt string

//go:embed templates/system_image_eval_detailed.txt
var ImageEvalDetailedSystemPrompt string

//go:embed templates/system_logo_analysis.txt
var LogoAnalysisSystemPrompt string

//go:embed templates/system_image_assessment.txt
var ImageAssessmentSystemPrompt string

//go:embed templates/system_caption_analyst.txt
var CaptionAnalystSystemPrompt string

//go:embed templates/system_caption_writer.txt
var CaptionWriterSystemPrompt string

var strategyTmpl = template.Must(template.New("strategy-system").Parse(strategySystemTemplate))

// StrategySystemPrompt renders the strategy-composition system prompt for n
// requested strategies.
func StrategySystemPrompt(n int) string {
	var buf bytes.Buffer
	_ = strategyTmpl.Execute(&buf, struct{ N int }{N: n})
	return buf.String()
}

// MustRender is a small helper for ad-hoc one-off templates built inline by
// a stage (e.g. embedding resolved directives into a user prompt).
func MustRender(name, text string, data any) string {
	tmpl := template.Must(template.New(name).Parse(text))
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Sprintf("<template error: %v>", err)
	}
	return buf.String()
}
