package chainer

import (
	"strings"

	"github.com/effective-security/toolrouter/entities"
)

// Step types
const (
	StepDataCollection   = "data_collection"
	StepTemporalAnalysis = "temporal_analysis"
	StepEntityAnalysis   = "entity_analysis"
	StepSynthesis        = "synthesis"
)

// MinComplexity is the complexity score that requires chaining
const MinComplexity = 3

// Indicators are the phrases of multi-step requests
var Indicators = []string{
	"analyze and summarize",
	"research and report",
	"find and compare",
	"gather information and create",
	"collect data and analyze",
	"step by step",
	"comprehensive report",
	"detailed analysis",
}

// Step is a planned chain step
type Step struct {
	ID             int      `json:"step_id" yaml:"step_id"`
	Type           string   `json:"type" yaml:"type"`
	Description    string   `json:"description" yaml:"description"`
	ToolsNeeded    []string `json:"tools_needed" yaml:"tools_needed"`
	PromptTemplate string   `json:"prompt_template" yaml:"prompt_template"`
}

// Analysis describes whether the query needs chaining
type Analysis struct {
	NeedsChaining   bool    `json:"needs_chaining" yaml:"needs_chaining"`
	ComplexityScore int     `json:"complexity_score" yaml:"complexity_score"`
	Steps           []*Step `json:"suggested_steps,omitempty" yaml:"suggested_steps,omitempty"`
}

// Analyze returns the chain requirements of the query.
// Chaining is needed when the query has a multi-step indicator phrase
// or the entity complexity reaches MinComplexity.
func Analyze(query string, e *entities.Entities) *Analysis {
	lower := strings.ToLower(query)
	indicated := false
	for _, ind := range Indicators {
		if strings.Contains(lower, ind) {
			indicated = true
			break
		}
	}

	score := e.ComplexityScore()
	if !indicated && score < MinComplexity {
		return &Analysis{ComplexityScore: score}
	}
	return &Analysis{
		NeedsChaining:   true,
		ComplexityScore: score,
		Steps:           Plan(query, e),
	}
}

// Plan returns the ordered steps for the query, the last step is always synthesis.
func Plan(_ string, e *entities.Entities) []*Step {
	var steps []*Step
	add := func(s *Step) {
		s.ID = len(steps) + 1
		steps = append(steps, s)
	}

	if e.AnyPopulated(entities.FieldSearchTerms, entities.FieldCategories) {
		add(&Step{
			Type:           StepDataCollection,
			Description:    "Gather relevant articles and information",
			ToolsNeeded:    []string{"search", "category_filter"},
			PromptTemplate: "Find articles about {search_terms} in {categories}",
		})
	}
	if e.HasDateSignal() || e.Populated(entities.FieldTimeKeywords) {
		add(&Step{
			Type:           StepTemporalAnalysis,
			Description:    "Analyze information within specified time frames",
			ToolsNeeded:    []string{"date_range_search"},
			PromptTemplate: "Filter and analyze data from {date_range}",
		})
	}
	if e.AnyPopulated(entities.FieldAuthors, entities.FieldLocations) {
		add(&Step{
			Type:           StepEntityAnalysis,
			Description:    "Analyze by specific entities (authors, locations)",
			ToolsNeeded:    []string{"author_search", "location_filter"},
			PromptTemplate: "Focus analysis on {authors} and {locations}",
		})
	}
	add(&Step{
		Type:           StepSynthesis,
		Description:    "Synthesize findings and create comprehensive response",
		ToolsNeeded:    []string{},
		PromptTemplate: "Synthesize all collected information into a comprehensive response",
	})
	return steps
}
