package selector

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolrouter/entities"
	"gopkg.in/yaml.v3"
)

// Names of the built-in taxonomies
const (
	TaxonomyEntity   = "entity"
	TaxonomyFlexible = "flexible"
)

// Category groups tools by their function
type Category struct {
	Name  string   `json:"name" yaml:"name"`
	Tools []string `json:"tools" yaml:"tools"`
	// Keywords and EntityFields document what kind of query the category serves
	Keywords     []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	EntityFields []string `json:"entity_fields,omitempty" yaml:"entity_fields,omitempty"`
}

// Rule adds categories when any of the entity fields is populated.
// The pseudo field "date_signal" is populated when dates or date ranges were found.
type Rule struct {
	When []string `json:"when" yaml:"when"`
	Add  []string `json:"add" yaml:"add"`
}

// FieldDateSignal is the rule field for dates or date ranges
const FieldDateSignal = "date_signal"

// Taxonomy maps tools to categories and entities to relevant categories.
type Taxonomy struct {
	Name             string              `json:"name" yaml:"name"`
	Categories       []Category          `json:"categories" yaml:"categories"`
	IntentCategories map[string][]string `json:"intent_categories" yaml:"intent_categories"`
	Rules            []Rule              `json:"rules" yaml:"rules"`
	Default          []string            `json:"default" yaml:"default"`

	// TrackComplexity adds MultiEntityCategory and ComplexCategory
	// when enough filter fields are populated.
	TrackComplexity     bool   `json:"track_complexity,omitempty" yaml:"track_complexity,omitempty"`
	MultiEntityCategory string `json:"multi_entity_category,omitempty" yaml:"multi_entity_category,omitempty"`
	ComplexCategory     string `json:"complex_category,omitempty" yaml:"complex_category,omitempty"`

	// AnalysisKeywords found in search terms or keywords add AnalysisCategory
	AnalysisKeywords []string `json:"analysis_keywords,omitempty" yaml:"analysis_keywords,omitempty"`
	AnalysisCategory string   `json:"analysis_category,omitempty" yaml:"analysis_category,omitempty"`
}

// Validate checks that rules and defaults reference declared categories
func (t *Taxonomy) Validate() error {
	if len(t.Categories) == 0 {
		return errors.Newf("taxonomy %q: no categories", t.Name)
	}
	declared := map[string]bool{}
	for _, c := range t.Categories {
		if c.Name == "" {
			return errors.Newf("taxonomy %q: category name is required", t.Name)
		}
		if declared[c.Name] {
			return errors.Newf("taxonomy %q: duplicate category %q", t.Name, c.Name)
		}
		declared[c.Name] = true
	}
	check := func(names []string) error {
		for _, n := range names {
			if !declared[n] {
				return errors.Newf("taxonomy %q: unknown category %q", t.Name, n)
			}
		}
		return nil
	}
	for _, cats := range t.IntentCategories {
		if err := check(cats); err != nil {
			return err
		}
	}
	for _, r := range t.Rules {
		if err := check(r.Add); err != nil {
			return err
		}
	}
	if err := check(t.Default); err != nil {
		return err
	}
	if t.TrackComplexity {
		if err := check([]string{t.MultiEntityCategory, t.ComplexCategory}); err != nil {
			return err
		}
	}
	if len(t.AnalysisKeywords) > 0 {
		if err := check([]string{t.AnalysisCategory}); err != nil {
			return err
		}
	}
	return nil
}

// LoadTaxonomy loads a taxonomy from YAML file
func LoadTaxonomy(file string) (*Taxonomy, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	t := &Taxonomy{}
	if err = yaml.Unmarshal(b, t); err != nil {
		return nil, errors.Wrapf(err, "failed to parse taxonomy: %s", file)
	}
	if err = t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// BuiltinTaxonomy returns the built-in taxonomy by name
func BuiltinTaxonomy(name string) (*Taxonomy, error) {
	switch name {
	case TaxonomyEntity, "":
		return EntityTaxonomy(), nil
	case TaxonomyFlexible:
		return FlexibleTaxonomy(), nil
	}
	return nil, errors.Newf("unknown taxonomy: %s", name)
}

// EntityTaxonomy serves tool backends built around entity mentions in articles.
func EntityTaxonomy() *Taxonomy {
	return &Taxonomy{
		Name: TaxonomyEntity,
		Categories: []Category{
			{
				Name:         "entity_search",
				Tools:        []string{"find_articles_by_entity", "find_articles_by_entity_and_keywords"},
				Keywords:     []string{"search", "find", "look for", "entity", "person", "organization", "location"},
				EntityFields: []string{entities.FieldSearchTerms, entities.FieldKeywords, entities.FieldNames},
			},
			{
				Name:         "entity_analysis",
				Tools:        []string{"get_top_mentioned_entities", "find_co_occurring_entities"},
				Keywords:     []string{"top", "most", "mentioned", "popular", "frequent", "co-occurring", "related", "associated"},
				EntityFields: []string{entities.FieldNames},
			},
			{
				Name:         "browse_paginated",
				Tools:        []string{"get_paginated_articles_with_entities"},
				Keywords:     []string{"list", "all", "browse", "display", "paginated", "page"},
				EntityFields: []string{entities.FieldKeywords, entities.FieldNumbers},
			},
		},
		IntentCategories: map[string][]string{
			"search":   {"entity_search"},
			"list":     {"browse_paginated"},
			"recent":   {"entity_search"},
			"specific": {"entity_search"},
		},
		Rules: []Rule{
			{When: []string{entities.FieldNames, entities.FieldSearchTerms}, Add: []string{"entity_analysis"}},
			{When: []string{entities.FieldCategories, entities.FieldAuthors, entities.FieldSearchTerms}, Add: []string{"entity_search"}},
		},
		Default: []string{"entity_search", "browse_paginated"},
	}
}

// FlexibleTaxonomy serves tool backends with search, date and association tools.
func FlexibleTaxonomy() *Taxonomy {
	filters := []string{entities.FieldAuthors, entities.FieldCategories, entities.FieldSources, entities.FieldLocations, entities.FieldDates}
	return &Taxonomy{
		Name: TaxonomyFlexible,
		Categories: []Category{
			{
				Name: "search",
				Tools: []string{
					"flexible_fulltext_search_articles",
					"flexible_fulltext_search_documents",
					"flexible_search_articles_by_category",
					"flexible_search_articles_by_author",
					"flexible_articles_by_entity",
				},
				Keywords:     []string{"search", "find", "look for", "get"},
				EntityFields: []string{entities.FieldSearchTerms, entities.FieldKeywords, entities.FieldCategories, entities.FieldAuthors, entities.FieldNames},
			},
			{
				Name: "date_time",
				Tools: []string{
					"flexible_articles_by_date_range",
					"flexible_documents_by_date_range",
					"flexible_recent_articles",
					"get_system_time",
				},
				Keywords:     []string{"date", "time", "recent", "latest", "when", "published"},
				EntityFields: []string{entities.FieldDates, entities.FieldDateRanges, entities.FieldTimeKeywords},
			},
			{
				Name: "list_browse",
				Tools: []string{
					"flexible_paginated_article_list",
					"flexible_list_authors",
					"flexible_list_categories",
					"flexible_list_document_authors",
					"flexible_list_document_categories",
				},
				Keywords:     []string{"list", "all", "show all", "browse", "display"},
				EntityFields: []string{entities.FieldKeywords},
			},
			{
				Name:         "specific_retrieval",
				Tools:        []string{"flexible_article_by_key", "flexible_document_by_key"},
				Keywords:     []string{"specific", "particular", "exact", "id", "key"},
				EntityFields: []string{entities.FieldKeywords, entities.FieldNumbers},
			},
			{
				Name: "related_content",
				Tools: []string{
					"get_crlr_related_articles",
					"get_path_related_articles",
					"get_related_articles_graph",
					"get_crlr_related_docs",
					"get_path_related_docs",
					"get_crlr_related_articles_unset",
					"get_path_related_articles_unset",
				},
				Keywords:     []string{"related", "similar", "connected", "linked"},
				EntityFields: []string{entities.FieldSearchTerms, entities.FieldKeywords},
			},
			{
				Name: "association_search",
				Tools: []string{
					"find_articles_by_author_date",
					"find_articles_by_author_category",
					"find_articles_by_author_source",
					"find_articles_by_category_date",
					"find_articles_by_category_source",
					"find_articles_by_source_date",
					"find_articles_by_location_date",
					"find_articles_by_location_category",
				},
				Keywords:     []string{"by author", "by category", "by source", "by location", "written by", "in category", "from source"},
				EntityFields: filters,
			},
			{
				Name: "multi_entity_search",
				Tools: []string{
					"find_articles_by_author_category_date",
					"find_articles_by_author_source_date",
					"find_articles_by_author_source_category",
					"find_articles_by_category_source_date",
					"find_articles_by_location_category_date",
					"find_articles_by_location_source_date",
					"find_articles_by_location_source_category",
				},
				Keywords:     []string{"author and category", "source and date", "location and category", "multiple criteria"},
				EntityFields: filters,
			},
			{
				Name: "complex_association_search",
				Tools: []string{
					"find_articles_by_author_category_source_date",
					"find_articles_by_location_category_source_date",
				},
				Keywords:     []string{"complex search", "multiple filters", "all criteria", "comprehensive search"},
				EntityFields: filters,
			},
			{
				Name: "analysis_discovery",
				Tools: []string{
					"analyze_article_associations",
					"discover_missing_associations",
					"suggest_related_searches",
				},
				Keywords:     []string{"analyze", "discover", "patterns", "associations", "trends", "suggestions"},
				EntityFields: []string{entities.FieldKeywords},
			},
			{
				Name: "database_ops",
				Tools: []string{
					"arango_query",
					"arango_insert",
					"arango_update",
					"arango_remove",
					"arango_backup",
					"arango_list_collections",
					"arango_create_collection",
				},
				Keywords:     []string{"database", "query", "insert", "update", "delete"},
				EntityFields: []string{entities.FieldKeywords},
			},
			{
				Name:         "graph_analysis",
				Tools:        []string{"get_document_edges"},
				Keywords:     []string{"edges", "graph", "connections"},
				EntityFields: []string{entities.FieldKeywords},
			},
		},
		IntentCategories: map[string][]string{
			"search":   {"search", "association_search", "date_time"},
			"list":     {"list_browse"},
			"related":  {"related_content"},
			"category": {"search", "association_search"},
			"author":   {"search", "association_search"},
			"date":     {"date_time", "association_search"},
			"recent":   {"date_time"},
			"specific": {"specific_retrieval"},
			"analyze":  {"analysis_discovery"},
			"discover": {"analysis_discovery"},
		},
		Rules: []Rule{
			{When: []string{FieldDateSignal, entities.FieldTimeKeywords}, Add: []string{"date_time", "association_search"}},
			{When: []string{entities.FieldCategories, entities.FieldAuthors, entities.FieldSearchTerms}, Add: []string{"search", "association_search"}},
		},
		Default:             []string{"search", "list_browse"},
		TrackComplexity:     true,
		MultiEntityCategory: "multi_entity_search",
		ComplexCategory:     "complex_association_search",
		AnalysisKeywords:    []string{"analyze", "pattern", "trend", "association", "discover", "suggest"},
		AnalysisCategory:    "analysis_discovery",
	}
}
