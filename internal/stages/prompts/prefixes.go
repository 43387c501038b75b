// Package prompts holds the embedded prefix templates Prompt Assembly
// chooses between by (scenario, provider_family), grounded in the teacher
// pack's go:embed + text/template prompt-asset pattern.
package prompts

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"
)

// Scenario is one of the six input configurations Prompt Assembly recognizes.
type Scenario string

const (
	FullGeneration   Scenario = "full_generation"
	DefaultEdit      Scenario = "default_edit"
	InstructedEdit   Scenario = "instructed_edit"
	ComplexEdit      Scenario = "complex_edit"
	LogoOnly         Scenario = "logo_only"
	StyleAdaptation  Scenario = "style_adaptation"
)

//go:embed templates/full_generation_literal.txt
var fullGenerationLiteral string

//go:embed templates/full_generation_narrative.txt
var fullGenerationNarrative string

//go:embed templates/default_edit_literal.txt
var defaultEditLiteral string

//go:embed templates/default_edit_narrative.txt
var defaultEditNarrative string

//go:embed templates/instructed_edit_literal.txt
var instructedEditLiteral string

//go:embed templates/instructed_edit_narrative.txt
var instructedEditNarrative string

//go:embed templates/complex_edit_literal.txt
var complexEditLiteral string

//go:embed templates/complex_edit_narrative.txt
var complexEditNarrative string

//go:embed templates/logo_only_literal.txt
var logoOnlyLiteral string

//go:embed templates/logo_only_narrative.txt
var logoOnlyNarrative string

//go:embed templates/style_adaptation_literal.txt
var styleAdaptationLiteral string

//go:embed templates/style_adaptation_narrative.txt
var styleAdaptationNarrative string

type prefixKey struct {
	scenario Scenario
	literal  bool
}

var prefixTemplates = map[prefixKey]*template.Template{}

func init() {
	register(FullGeneration, true, fullGenerationLiteral)
	register(FullGeneration, false, fullGenerationNarrative)
	register(DefaultEdit, true, defaultEditLiteral)
	register(DefaultEdit, false, defaultEditNarrative)
	register(InstructedEdit, true, instructedEditLiteral)
	register(InstructedEdit, false, instructedEditNarrative)
	register(ComplexEdit, true, complexEditLiteral)
	register(ComplexEdit, false, complexEditNarrative)
	register(LogoOnly, true, logoOnlyLiteral)
	register(LogoOnly, false, logoOnlyNarrative)
	register(StyleAdaptation, true, styleAdaptationLiteral)
	register(StyleAdaptation, false, styleAdaptationNarrative)
}

func register(s Scenario, literal bool, text string) {
	name := fmt.Sprintf("%s-%v", s, literal)
	prefixTemplates[prefixKey{scenario: s, literal: literal}] = template.Must(template.New(name).Parse(text))
}

// PrefixData is the dynamic data a prefix template may reference.
type PrefixData struct {
	Instruction string
}

// Prefix renders the prefix text for (scenario, literalFamily), filling in
// instruction text when the scenario's template references it.
func Prefix(scenario Scenario, literalFamily bool, data PrefixData) (string, error) {
	tmpl, ok := prefixTemplates[prefixKey{scenario: scenario, literal: literalFamily}]
	if !ok {
		return "", fmt.Errorf("no prefix template for scenario %q (literal=%v)", scenario, literalFamily)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prefix: %w", err)
	}
	return buf.String(), nil
}
