package entities

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Field names of Entities, as used by taxonomy rules and tool-data summaries.
const (
	FieldDates        = "dates"
	FieldDateRanges   = "date_ranges"
	FieldTimeKeywords = "time_keywords"
	FieldNames        = "names"
	FieldSearchTerms  = "search_terms"
	FieldCategories   = "categories"
	FieldAuthors      = "authors"
	FieldKeywords     = "keywords"
	FieldSources      = "sources"
	FieldLocations    = "locations"
	FieldNumbers      = "numbers"
)

// Entities are the signals extracted from one query.
// The value is created by Extract and must not be modified afterwards.
type Entities struct {
	Intent       string      `json:"intent" yaml:"intent"`
	Dates        []string    `json:"dates" yaml:"dates"`
	DateRanges   []DateRange `json:"date_ranges" yaml:"date_ranges"`
	TimeKeywords []string    `json:"time_keywords" yaml:"time_keywords"`
	Names        []string    `json:"names" yaml:"names"`
	SearchTerms  []string    `json:"search_terms" yaml:"search_terms"`
	Categories   []string    `json:"categories" yaml:"categories"`
	Authors      []string    `json:"authors" yaml:"authors"`
	Keywords     []string    `json:"keywords" yaml:"keywords"`
	Sources      []string    `json:"sources" yaml:"sources"`
	Locations    []string    `json:"locations" yaml:"locations"`
	Numbers      []int       `json:"numbers" yaml:"numbers"`
}

// DateRange is a (start, end) pair, either side may be empty or "now".
// It is encoded as a two-element JSON array.
type DateRange struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// MarshalJSON implements json.Marshaler
func (r DateRange) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{r.Start, r.End})
}

// UnmarshalJSON implements json.Unmarshaler
func (r *DateRange) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return errors.Wrap(err, "invalid date range")
	}
	if len(pair) != 2 {
		return errors.Newf("invalid date range: expected 2 elements, got %d", len(pair))
	}
	r.Start, r.End = pair[0], pair[1]
	return nil
}

// HasDateSignal returns true when explicit dates or date ranges were found.
func (e *Entities) HasDateSignal() bool {
	return len(e.Dates) > 0 || len(e.DateRanges) > 0
}

// HasTimeKeyword returns true if the time keyword category was found.
func (e *Entities) HasTimeKeyword(category string) bool {
	for _, k := range e.TimeKeywords {
		if k == category {
			return true
		}
	}
	return false
}

// Populated returns true if the named field is non-empty.
// Unknown field names are reported as not populated.
func (e *Entities) Populated(field string) bool {
	switch field {
	case FieldDates:
		return len(e.Dates) > 0
	case FieldDateRanges:
		return len(e.DateRanges) > 0
	case FieldTimeKeywords:
		return len(e.TimeKeywords) > 0
	case FieldNames:
		return len(e.Names) > 0
	case FieldSearchTerms:
		return len(e.SearchTerms) > 0
	case FieldCategories:
		return len(e.Categories) > 0
	case FieldAuthors:
		return len(e.Authors) > 0
	case FieldKeywords:
		return len(e.Keywords) > 0
	case FieldSources:
		return len(e.Sources) > 0
	case FieldLocations:
		return len(e.Locations) > 0
	case FieldNumbers:
		return len(e.Numbers) > 0
	}
	return false
}

// AnyPopulated returns true if any of the named fields is non-empty.
func (e *Entities) AnyPopulated(fields ...string) bool {
	for _, f := range fields {
		if e.Populated(f) {
			return true
		}
	}
	return false
}

// ComplexityScore counts the populated complexity fields:
// date signal, categories, authors, search terms and locations,
// each contributing at most 1.
func (e *Entities) ComplexityScore() int {
	score := 0
	if e.HasDateSignal() {
		score++
	}
	for _, f := range []string{FieldCategories, FieldAuthors, FieldSearchTerms, FieldLocations} {
		if e.Populated(f) {
			score++
		}
	}
	return score
}

// FilterScore counts the populated filter fields:
// authors, categories, sources, locations and date signal.
// It drives the multi-entity categories of the tool taxonomy.
func (e *Entities) FilterScore() int {
	score := 0
	for _, f := range []string{FieldAuthors, FieldCategories, FieldSources, FieldLocations} {
		if e.Populated(f) {
			score++
		}
	}
	if e.HasDateSignal() {
		score++
	}
	return score
}

func newEntities() *Entities {
	return &Entities{
		Dates:        []string{},
		DateRanges:   []DateRange{},
		TimeKeywords: []string{},
		Names:        []string{},
		SearchTerms:  []string{},
		Categories:   []string{},
		Authors:      []string{},
		Keywords:     []string{},
		Sources:      []string{},
		Locations:    []string{},
		Numbers:      []int{},
	}
}
