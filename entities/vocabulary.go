package entities

import (
	"regexp"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Vocabulary holds the keyword tables used by the rule-based extractor.
// Iteration order of the ordered tables is significant:
// intent ties are resolved in favour of the first label.
type Vocabulary struct {
	Intents      *orderedmap.OrderedMap[string, []string]
	TimeKeywords *orderedmap.OrderedMap[string, []string]
	Categories   []string
	Sources      []string
	Locations    []string
	Stopwords    map[string]struct{}
	// AuthorCues move capitalized tokens into names instead of search terms
	AuthorCues []string
}

// DefaultIntent is returned when no intent keyword matches.
const DefaultIntent = "search"

// DefaultVocabulary returns the news domain vocabulary.
func DefaultVocabulary() *Vocabulary {
	intents := orderedmap.New[string, []string]()
	intents.Set("search", []string{"find", "search", "look for", "show me", "get", "fetch"})
	intents.Set("list", []string{"list", "all", "show all", "browse", "display"})
	intents.Set("related", []string{"related", "similar", "connected", "linked"})
	intents.Set("category", []string{"category", "topic", "section", "type"})
	intents.Set("author", []string{"author", "writer", "journalist", "by"})
	intents.Set("date", []string{"date", "time", "when", "published"})
	intents.Set("recent", []string{"recent", "latest", "new"})
	intents.Set("specific", []string{"specific", "particular", "exact"})
	intents.Set("analyze", []string{"analyze", "analyse", "analysis", "statistics", "trend", "trends"})
	intents.Set("discover", []string{"discover", "explore", "insights"})

	tk := orderedmap.New[string, []string]()
	tk.Set("recent", []string{"recent", "latest", "new", "current", "fresh"})
	tk.Set("past", []string{"past", "previous", "earlier", "before", "ago"})
	tk.Set("today", []string{"today", "today's"})
	tk.Set("yesterday", []string{"yesterday", "yesterday's"})
	tk.Set("week", []string{"week", "weekly", "this week", "last week"})
	tk.Set("month", []string{"month", "monthly", "this month", "last month"})
	tk.Set("year", []string{"year", "yearly", "this year", "last year"})
	tk.Set("range", []string{"from", "to", "between", "since", "until", "during"})

	stop := map[string]struct{}{}
	for _, w := range []string{"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for", "of", "with", "by", "is", "are", "was", "were"} {
		stop[w] = struct{}{}
	}

	return &Vocabulary{
		Intents:      intents,
		TimeKeywords: tk,
		Categories: []string{
			"politics", "sports", "technology", "business", "entertainment",
			"health", "science", "world", "national",
			"opinion", "lifestyle", "travel", "food", "fashion", "education",
		},
		Sources: []string{"zee_news", "wion"},
		Locations: []string{
			"usa", "uk", "canada", "australia", "europe", "asia",
			"africa", "america", "china", "russia", "india", "japan",
			"new york", "london", "paris", "tokyo", "washington", "israel",
		},
		Stopwords:  stop,
		AuthorCues: []string{"by ", "author ", "written by"},
	}
}

// keywordMatcher matches keywords and phrases on word boundaries, case-insensitive.
type keywordMatcher struct {
	res map[string]*regexp.Regexp
}

func newKeywordMatcher(tables ...*orderedmap.OrderedMap[string, []string]) *keywordMatcher {
	m := &keywordMatcher{res: map[string]*regexp.Regexp{}}
	for _, t := range tables {
		for pair := t.Oldest(); pair != nil; pair = pair.Next() {
			for _, kw := range pair.Value {
				m.add(kw)
			}
		}
	}
	return m
}

func (m *keywordMatcher) add(kw string) {
	if _, ok := m.res[kw]; ok {
		return
	}
	m.res[kw] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
}

func (m *keywordMatcher) match(text, kw string) bool {
	re, ok := m.res[kw]
	if !ok {
		return strings.Contains(strings.ToLower(text), strings.ToLower(kw))
	}
	return re.MatchString(text)
}

// containsAll returns the vocabulary terms present as substrings in the lowercased text.
func containsAll(lower string, terms []string) []string {
	found := []string{}
	for _, t := range terms {
		if strings.Contains(lower, t) {
			found = append(found, t)
		}
	}
	return found
}
