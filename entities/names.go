package entities

import (
	"strings"
	"unicode"

	"github.com/effective-security/xlog"
	prose "github.com/jdkato/prose/v2"
)

// NameRecognizer splits a query into person names and other named terms.
type NameRecognizer interface {
	Recognize(query string) (names []string, searchTerms []string)
}

// CapitalizedNames is the heuristic recognizer:
// capitalized alphabetic tokens longer than 2 characters are names
// when the query carries an authorship cue, search terms otherwise.
type CapitalizedNames struct {
	AuthorCues []string
}

var _ NameRecognizer = (*CapitalizedNames)(nil)

// Recognize implements NameRecognizer
func (c *CapitalizedNames) Recognize(query string) ([]string, []string) {
	names := []string{}
	terms := []string{}

	cues := c.AuthorCues
	if len(cues) == 0 {
		cues = DefaultVocabulary().AuthorCues
	}
	lower := strings.ToLower(query)
	authorship := false
	for _, cue := range cues {
		if strings.Contains(lower, cue) {
			authorship = true
			break
		}
	}

	for _, word := range strings.Fields(query) {
		r := []rune(word)
		if len(r) <= 2 || !unicode.IsUpper(r[0]) || !isAlpha(r) {
			continue
		}
		if authorship {
			names = append(names, word)
		} else {
			terms = append(terms, word)
		}
	}
	return names, terms
}

// ProseNames recognizes entities with the prose NER tagger:
// PERSON mentions become names, ORG, GPE and EVENT mentions become search terms.
// When tagging fails or finds nothing, the Fallback recognizer is used.
type ProseNames struct {
	Fallback NameRecognizer
}

var _ NameRecognizer = (*ProseNames)(nil)

// NewProseNames returns the tagger-backed recognizer with the heuristic fallback.
func NewProseNames() *ProseNames {
	return &ProseNames{Fallback: &CapitalizedNames{}}
}

// Recognize implements NameRecognizer
func (p *ProseNames) Recognize(query string) ([]string, []string) {
	doc, err := prose.NewDocument(query,
		prose.WithSegmentation(false),
	)
	if err != nil {
		logger.KV(xlog.WARNING,
			"status", "ner_failed",
			"err", err.Error(),
		)
		return p.fallback(query)
	}

	names := []string{}
	terms := []string{}
	for _, ent := range doc.Entities() {
		switch ent.Label {
		case "PERSON":
			names = append(names, ent.Text)
		case "ORG", "GPE", "EVENT":
			terms = append(terms, ent.Text)
		}
	}
	if len(names) == 0 && len(terms) == 0 {
		return p.fallback(query)
	}
	return names, terms
}

func (p *ProseNames) fallback(query string) ([]string, []string) {
	if p.Fallback == nil {
		return []string{}, []string{}
	}
	return p.Fallback.Recognize(query)
}

func isAlpha(r []rune) bool {
	for _, c := range r {
		if !unicode.IsLetter(c) {
			return false
		}
	}
	return true
}
