package selector

import (
	"slices"
	"strings"

	"github.com/effective-security/toolrouter/entities"
	"github.com/effective-security/toolrouter/tools"
	"github.com/effective-security/xlog"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolrouter", "selector")

// MaxSelectedTools is the upper bound of tools in a selection
const MaxSelectedTools = 5

// analyticWords boost entity analysis tools
var analyticWords = []string{"top", "most", "popular", "frequent", "analysis", "related"}

// Selected is a scored tool
type Selected struct {
	Tool     *tools.Descriptor `json:"tool"`
	Score    int               `json:"score"`
	Category string            `json:"category"`
}

// Result is the outcome of tool selection for one query
type Result struct {
	Entities           *entities.Entities                        `json:"entities"`
	RelevantCategories []string                                  `json:"relevant_categories"`
	SelectedTools      *orderedmap.OrderedMap[string, *Selected] `json:"selected_tools"`
	ToolCount          int                                       `json:"tool_count"`
}

// ToolNames returns selected tool names, best first
func (r *Result) ToolNames() []string {
	names := make([]string, 0, r.SelectedTools.Len())
	for pair := r.SelectedTools.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Selector scores registered tools against a query
type Selector struct {
	extractor   entities.Extractor
	categorizer *Categorizer
	registry    *tools.Registry
}

// New returns Selector
func New(registry *tools.Registry, extractor entities.Extractor, categorizer *Categorizer) *Selector {
	return &Selector{
		extractor:   extractor,
		categorizer: categorizer,
		registry:    registry,
	}
}

// Extractor returns the entity extractor
func (s *Selector) Extractor() entities.Extractor {
	return s.extractor
}

// Categorizer returns the categorizer
func (s *Selector) Categorizer() *Categorizer {
	return s.categorizer
}

// Select extracts entities from the query and returns at most MaxSelectedTools
// tools with positive score, best first; ties keep the registry order.
func (s *Selector) Select(query string) *Result {
	e := s.extractor.Extract(query)
	relevant := s.categorizer.RelevantCategories(e)

	categoryScore := map[string]int{}
	for _, cat := range relevant {
		for _, tool := range s.categorizer.Tools(cat) {
			categoryScore[tool] += 10
		}
	}

	lowerQuery := strings.ToLower(query)
	analytic := false
	for _, w := range analyticWords {
		if strings.Contains(lowerQuery, w) {
			analytic = true
			break
		}
	}

	var scored []*Selected
	for _, d := range s.registry.Snapshot() {
		score := categoryScore[d.Name] + bonus(d.Name, e, analytic)
		if score <= 0 {
			continue
		}
		scored = append(scored, &Selected{
			Tool:     d,
			Score:    score,
			Category: s.categorizer.CategoryOf(d.Name),
		})
	}

	slices.SortStableFunc(scored, func(a, b *Selected) int {
		return b.Score - a.Score
	})
	if len(scored) > MaxSelectedTools {
		scored = scored[:MaxSelectedTools]
	}

	selected := orderedmap.New[string, *Selected]()
	for _, sel := range scored {
		selected.Set(sel.Tool.Name, sel)
	}

	logger.KV(xlog.DEBUG,
		"status", "selected",
		"intent", e.Intent,
		"categories", relevant,
		"tools", selected.Len(),
	)

	return &Result{
		Entities:           e,
		RelevantCategories: relevant,
		SelectedTools:      selected,
		ToolCount:          selected.Len(),
	}
}

// bonus returns the heuristic score of the tool name against populated entities
func bonus(name string, e *entities.Entities, analytic bool) int {
	score := 0
	has := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(name, s) {
				return true
			}
		}
		return false
	}

	if e.AnyPopulated(entities.FieldNames, entities.FieldSearchTerms) {
		if has("entity") {
			score += 5
		}
		if has("co_occurring", "top_mentioned") {
			score += 3
		}
	}
	if e.AnyPopulated(entities.FieldSearchTerms, entities.FieldKeywords) {
		if has("find_articles_by_entity") {
			score += 5
		}
		if has("entity") && has("keyword") {
			score += 7
		}
		if has("search", "fulltext") {
			score += 5
		}
	}
	if e.AnyPopulated(entities.FieldCategories, entities.FieldAuthors) && has("find_articles_by_entity") {
		score += 3
	}
	if e.Populated(entities.FieldCategories) && has("category") {
		score += 5
	}
	if e.Populated(entities.FieldAuthors) && has("author") {
		score += 5
	}
	if (e.HasDateSignal() || e.HasTimeKeyword("recent")) && has("date", "recent") {
		score += 5
	}
	if analytic && has("top_mentioned", "co_occurring") {
		score += 5
	}
	return score
}
