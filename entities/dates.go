package entities

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
)

// ISODate is the layout of all dates produced by the extractor.
const ISODate = "2006-01-02"

const monthNames = `Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|Jun(?:e)?|Jul(?:y)?|Aug(?:ust)?|Sep(?:t(?:ember)?)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?`

var (
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
		regexp.MustCompile(`\b\d{2}/\d{2}/\d{4}\b`),
		regexp.MustCompile(`\b\d{2}-\d{2}-\d{4}\b`),
		regexp.MustCompile(`(?i)\b\d{1,2}\s+(?:` + monthNames + `)\s+\d{4}\b`),
		regexp.MustCompile(`(?i)\b(?:` + monthNames + `)\s+\d{1,2},?\s+\d{4}\b`),
	}

	monthRe       = regexp.MustCompile(`(?i)^(?:` + monthNames + `)$`)
	numericDateRe = regexp.MustCompile(`^\d{1,4}[-/.]\d{1,2}(?:[-/.]\d{1,4})?$`)

	rangeFromTo   = regexp.MustCompile(`(?i)\bfrom\s+(.+?)\s+to\s+(\S+(?:\s+\S+){0,2})`)
	rangeBetween  = regexp.MustCompile(`(?i)\bbetween\s+(.+?)\s+and\s+(\S+(?:\s+\S+){0,2})`)
	rangeSince    = regexp.MustCompile(`(?i)\bsince\s+(\S+(?:\s+\S+){0,2})`)
	rangeUntil    = regexp.MustCompile(`(?i)\buntil\s+(\S+(?:\s+\S+){0,2})`)
	trimDateChars = ",.;:!?()[]\"'"
)

// extractDates returns the union of regex-matched dates and
// fuzzy-parsed 1-3 word windows, de-duplicated.
// Regex matches that parse are normalized to ISODate, others are kept as written.
func extractDates(query string) []string {
	var found []string
	seen := map[string]struct{}{}
	add := func(d string) {
		if _, ok := seen[d]; ok {
			return
		}
		seen[d] = struct{}{}
		found = append(found, d)
	}

	for _, re := range datePatterns {
		for _, m := range re.FindAllString(query, -1) {
			if t, ok := parseDate(m); ok {
				add(t.Format(ISODate))
			} else {
				add(m)
			}
		}
	}

	words := strings.Fields(query)
	for i := range words {
		for j := i + 1; j <= i+3 && j <= len(words); j++ {
			window := words[i:j]
			if !dateLike(window) {
				continue
			}
			if t, ok := parseDate(strings.Join(window, " ")); ok {
				add(t.Format(ISODate))
			}
		}
	}

	if found == nil {
		return []string{}
	}
	return found
}

// extractDateRanges finds from/to, between/and, since and until phrases.
// Phrases whose endpoints do not parse are dropped.
func extractDateRanges(query string) []DateRange {
	ranges := []DateRange{}

	for _, re := range []*regexp.Regexp{rangeFromTo, rangeBetween} {
		for _, m := range re.FindAllStringSubmatch(query, -1) {
			start, ok1 := parseLongestPrefix(m[1])
			end, ok2 := parseLongestPrefix(m[2])
			if ok1 && ok2 {
				ranges = append(ranges, DateRange{Start: start.Format(ISODate), End: end.Format(ISODate)})
			}
		}
	}
	for _, m := range rangeSince.FindAllStringSubmatch(query, -1) {
		if d, ok := parseLongestPrefix(m[1]); ok {
			ranges = append(ranges, DateRange{Start: d.Format(ISODate), End: "now"})
		}
	}
	for _, m := range rangeUntil.FindAllStringSubmatch(query, -1) {
		if d, ok := parseLongestPrefix(m[1]); ok {
			ranges = append(ranges, DateRange{Start: "", End: d.Format(ISODate)})
		}
	}
	return ranges
}

// dateLike limits fuzzy parsing to windows that contain a digit and
// either a month name or a numeric date token, so plain counts
// like "top 10" are never read as dates.
func dateLike(window []string) bool {
	hasDigit := false
	hasDatePart := false
	for _, w := range window {
		w = strings.Trim(w, trimDateChars)
		if strings.IndexFunc(w, unicode.IsDigit) >= 0 {
			hasDigit = true
		}
		if monthRe.MatchString(w) || numericDateRe.MatchString(w) {
			hasDatePart = true
		}
	}
	return hasDigit && hasDatePart
}

// parseLongestPrefix tries the longest word prefix of the phrase first.
func parseLongestPrefix(phrase string) (time.Time, bool) {
	words := strings.Fields(phrase)
	for n := len(words); n > 0; n-- {
		if !dateLike(words[:n]) {
			continue
		}
		if t, ok := parseDate(strings.Join(words[:n], " ")); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseDate(s string) (time.Time, bool) {
	s = strings.Trim(strings.TrimSpace(s), trimDateChars)
	if s == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseIn(titleWords(s), time.UTC)
	// partial phrases like "March 15" parse without a year
	if err != nil || t.Year() < 1900 {
		return time.Time{}, false
	}
	return t, true
}

// titleWords upper-cases the first letter of each word, month names parse reliably that way.
func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
