package selector

import (
	"strings"

	"github.com/effective-security/toolrouter/entities"
)

// CategoryOther is reported for tools outside of the taxonomy
const CategoryOther = "other"

// Categorizer resolves relevant categories for extracted entities.
type Categorizer struct {
	taxonomy   *Taxonomy
	byName     map[string]*Category
	toolToCat  map[string]string
	toolsInCat map[string][]string
}

// NewCategorizer returns Categorizer for the taxonomy
func NewCategorizer(t *Taxonomy) *Categorizer {
	c := &Categorizer{
		taxonomy:   t,
		byName:     map[string]*Category{},
		toolToCat:  map[string]string{},
		toolsInCat: map[string][]string{},
	}
	for i := range t.Categories {
		cat := &t.Categories[i]
		c.byName[cat.Name] = cat
		c.toolsInCat[cat.Name] = cat.Tools
		for _, tool := range cat.Tools {
			// first category wins
			if _, ok := c.toolToCat[tool]; !ok {
				c.toolToCat[tool] = cat.Name
			}
		}
	}
	return c
}

// Taxonomy returns the taxonomy
func (c *Categorizer) Taxonomy() *Taxonomy {
	return c.taxonomy
}

// Category returns the category by name
func (c *Categorizer) Category(name string) (*Category, bool) {
	cat, ok := c.byName[name]
	return cat, ok
}

// Tools returns tool names of the category
func (c *Categorizer) Tools(category string) []string {
	return c.toolsInCat[category]
}

// CategoryOf returns the category owning the tool, or CategoryOther
func (c *Categorizer) CategoryOf(tool string) string {
	if cat, ok := c.toolToCat[tool]; ok {
		return cat
	}
	return CategoryOther
}

// RelevantCategories returns de-duplicated category names in first-seen order.
func (c *Categorizer) RelevantCategories(e *entities.Entities) []string {
	t := c.taxonomy
	var res []string
	seen := map[string]bool{}
	add := func(names ...string) {
		for _, n := range names {
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			res = append(res, n)
		}
	}

	add(t.IntentCategories[e.Intent]...)

	for _, r := range t.Rules {
		if rulePopulated(e, r.When) {
			add(r.Add...)
		}
	}

	if t.TrackComplexity {
		count := e.FilterScore()
		if count >= 2 {
			add(t.MultiEntityCategory)
		}
		if count >= 3 {
			add(t.ComplexCategory)
		}
	}

	if len(t.AnalysisKeywords) > 0 {
		text := strings.ToLower(strings.Join(append(append([]string{}, e.SearchTerms...), e.Keywords...), " "))
		for _, kw := range t.AnalysisKeywords {
			if strings.Contains(text, kw) {
				add(t.AnalysisCategory)
				break
			}
		}
	}

	if len(res) == 0 {
		add(t.Default...)
	}
	return res
}

func rulePopulated(e *entities.Entities, fields []string) bool {
	for _, f := range fields {
		if f == FieldDateSignal {
			if e.HasDateSignal() {
				return true
			}
			continue
		}
		if e.Populated(f) {
			return true
		}
	}
	return false
}
