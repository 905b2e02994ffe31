package entities

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolrouter", "entities")

// Extractor pulls structured signals out of raw query text.
// Extract never fails: a missing signal yields an empty list.
type Extractor interface {
	Extract(query string) *Entities
}

var (
	authorPatterns = []*regexp.Regexp{
		regexp.MustCompile(`by\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)`),
		regexp.MustCompile(`author\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)`),
		regexp.MustCompile(`written\s+by\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)`),
	}
	wordRe   = regexp.MustCompile(`\b[a-zA-Z]+\b`)
	numberRe = regexp.MustCompile(`\b\d+\b`)
)

// RuleExtractor is the rule-based Extractor,
// name recognition is delegated to a NameRecognizer strategy.
type RuleExtractor struct {
	vocab   *Vocabulary
	names   NameRecognizer
	matcher *keywordMatcher
}

var _ Extractor = (*RuleExtractor)(nil)

// Option configures RuleExtractor
type Option func(*RuleExtractor)

// WithNameRecognizer sets the name recognition strategy
func WithNameRecognizer(r NameRecognizer) Option {
	return func(e *RuleExtractor) {
		e.names = r
	}
}

// WithVocabulary replaces the keyword tables
func WithVocabulary(v *Vocabulary) Option {
	return func(e *RuleExtractor) {
		e.vocab = v
	}
}

// New returns RuleExtractor with the default vocabulary and
// the CapitalizedNames recognizer, unless overridden by options.
func New(opts ...Option) *RuleExtractor {
	e := &RuleExtractor{}
	for _, opt := range opts {
		opt(e)
	}
	if e.vocab == nil {
		e.vocab = DefaultVocabulary()
	}
	if e.names == nil {
		e.names = &CapitalizedNames{AuthorCues: e.vocab.AuthorCues}
	}
	e.matcher = newKeywordMatcher(e.vocab.Intents, e.vocab.TimeKeywords)
	return e
}

// Extract implements Extractor
func (e *RuleExtractor) Extract(query string) *Entities {
	lower := strings.ToLower(query)
	res := newEntities()

	res.Intent = e.intent(query)
	res.Dates = extractDates(query)
	res.DateRanges = extractDateRanges(query)
	res.TimeKeywords = e.timeKeywords(query)
	res.Names, res.SearchTerms = e.names.Recognize(query)
	res.Categories = containsAll(lower, e.vocab.Categories)
	res.Sources = containsAll(lower, e.vocab.Sources)
	res.Locations = containsAll(lower, e.vocab.Locations)
	res.Authors = extractAuthors(query)
	res.Keywords = e.keywords(lower)
	res.Numbers = extractNumbers(query)

	logger.KV(xlog.DEBUG,
		"status", "extracted",
		"intent", res.Intent,
		"dates", len(res.Dates),
		"categories", res.Categories,
		"complexity", res.ComplexityScore(),
	)
	return res
}

// intent scores every label by the number of its keywords present in the query,
// the first label with the highest score wins.
func (e *RuleExtractor) intent(query string) string {
	best := ""
	bestScore := 0
	for pair := e.vocab.Intents.Oldest(); pair != nil; pair = pair.Next() {
		score := 0
		for _, kw := range pair.Value {
			// whole words only, a substring match counts "news" as "new"
			if e.matcher.match(query, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = pair.Key, score
		}
	}
	if best == "" {
		return DefaultIntent
	}
	return best
}

func (e *RuleExtractor) timeKeywords(query string) []string {
	found := []string{}
	for pair := e.vocab.TimeKeywords.Oldest(); pair != nil; pair = pair.Next() {
		for _, kw := range pair.Value {
			if e.matcher.match(query, kw) {
				found = append(found, pair.Key)
				break
			}
		}
	}
	return found
}

func (e *RuleExtractor) keywords(lower string) []string {
	found := []string{}
	for _, w := range wordRe.FindAllString(lower, -1) {
		if _, stop := e.vocab.Stopwords[w]; stop || len(w) <= 2 {
			continue
		}
		found = append(found, w)
	}
	return found
}

func extractAuthors(query string) []string {
	found := []string{}
	seen := map[string]struct{}{}
	for _, re := range authorPatterns {
		for _, m := range re.FindAllStringSubmatch(query, -1) {
			if _, ok := seen[m[1]]; ok {
				continue
			}
			seen[m[1]] = struct{}{}
			found = append(found, m[1])
		}
	}
	return found
}

func extractNumbers(query string) []int {
	found := []int{}
	for _, m := range numberRe.FindAllString(query, -1) {
		n, err := strconv.Atoi(m)
		if err != nil {
			// out of int range
			continue
		}
		found = append(found, n)
	}
	return found
}
