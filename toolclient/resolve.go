package toolclient

import (
	"slices"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Similarity cutoffs
const (
	ResolveCutoff  = 0.6
	SuggestCutoff  = 0.3
	MaxSuggestions = 3
)

// Resolve maps a possibly misspelled tool name to a registered one:
// exact name, then underscore/hyphen and case variants, then the closest
// name with similarity of at least ResolveCutoff.
func (c *Client) Resolve(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	if c.registry.Has(name) {
		return name, true
	}
	variants := []string{
		strings.ReplaceAll(name, "_", "-"),
		strings.ReplaceAll(name, "-", "_"),
		strings.ToLower(name),
		strings.ToUpper(name),
		// a hyphenated upper-case name needs both
		strings.ToLower(strings.ReplaceAll(name, "-", "_")),
	}
	for _, v := range variants {
		if c.registry.Has(v) {
			return v, true
		}
	}
	matches := CloseMatches(name, c.registry.Names(), 1, ResolveCutoff)
	if len(matches) > 0 {
		return matches[0], true
	}
	return "", false
}

// Suggest returns up to MaxSuggestions registered names similar to the name
func (c *Client) Suggest(name string) []string {
	return CloseMatches(name, c.registry.Names(), MaxSuggestions, SuggestCutoff)
}

type scored struct {
	name  string
	score float64
}

// CloseMatches returns up to n candidates with similarity ratio of at least cutoff,
// best first; equal scores are ordered by name, descending.
func CloseMatches(word string, candidates []string, n int, cutoff float64) []string {
	if n <= 0 || len(candidates) == 0 {
		return nil
	}
	seq2 := strings.Split(word, "")
	var list []scored
	for _, cand := range candidates {
		m := difflib.NewMatcher(strings.Split(cand, ""), seq2)
		if m.RealQuickRatio() < cutoff || m.QuickRatio() < cutoff {
			continue
		}
		if r := m.Ratio(); r >= cutoff {
			list = append(list, scored{name: cand, score: r})
		}
	}
	slices.SortStableFunc(list, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return strings.Compare(b.name, a.name)
	})
	if len(list) > n {
		list = list[:n]
	}
	res := make([]string, len(list))
	for i, s := range list {
		res[i] = s.name
	}
	return res
}
