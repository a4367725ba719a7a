package style

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// RuleSet is an externally loaded set of style rules. Immutable for the
// duration of a check.
type RuleSet struct {
	MustUse      []string `json:"must_use"`
	MustAvoid    []string `json:"must_avoid"`
	ReadingLevel string   `json:"reading_level"`
}

// Report is the result of checking one text against one rule set.
type Report struct {
	Banned          []string `json:"banned"`
	MissingRequired []string `json:"missing_required"`
	Grade           float64  `json:"grade"`
	InBand          bool     `json:"in_band"`
	Compliant       bool     `json:"compliant"`
}

var (
	sentenceRe = regexp.MustCompile(`[.!?]+`)
	wordRe     = regexp.MustCompile(`[a-z]+`)
	// Grades are non-negative, so a band like "Grade 8-10" reads as
	// 8 and 10 rather than 8 and -10.
	integerRe  = regexp.MustCompile(`\d+`)
)

// Band defaults when the reading-level string carries no parseable
// integers.
const (
	defaultBandMin = 0
	defaultBandMax = 20
)

// Check scores text against rules. It is a pure function of its two
// inputs: identical arguments always produce an identical report, and
// malformed or empty text never fails, it just scores low.
func Check(text string, rules RuleSet) Report {
	lower := strings.ToLower(text)

	report := Report{
		Grade: FleschKincaidGrade(text),
	}

	for _, term := range rules.MustAvoid {
		if term == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(term)) {
			report.Banned = append(report.Banned, term)
		}
	}

	for _, term := range rules.MustUse {
		if term == "" {
			continue
		}
		if !strings.Contains(lower, strings.ToLower(term)) {
			report.MissingRequired = append(report.MissingRequired, term)
		}
	}

	min, max := parseBand(rules.ReadingLevel)
	report.InBand = float64(min) <= report.Grade && report.Grade <= float64(max)
	report.Compliant = len(report.Banned) == 0 && len(report.MissingRequired) == 0 && report.InBand

	return report
}

// FleschKincaidGrade estimates the reading grade of text as
// 0.39*(words/sentences) + 11.8*(syllables/words) - 15.59, floored at
// zero and rounded to one decimal place.
func FleschKincaidGrade(text string) float64 {
	sentences := len(sentenceRe.FindAllString(text, -1))
	if sentences < 1 {
		sentences = 1
	}

	tokens := wordRe.FindAllString(strings.ToLower(text), -1)
	words := len(tokens)
	if words < 1 {
		words = 1
	}

	syllables := 0
	for _, token := range tokens {
		syllables += countSyllables(token)
	}

	grade := 0.39*(float64(words)/float64(sentences)) +
		11.8*(float64(syllables)/float64(words)) - 15.59

	if grade < 0 {
		grade = 0
	}
	return math.Round(grade*10) / 10
}

// countSyllables estimates syllables in a lowercase alphabetic token by
// counting maximal vowel runs after stripping a silent suffix and a
// leading y.
func countSyllables(token string) int {
	switch {
	case strings.HasSuffix(token, "ed"), strings.HasSuffix(token, "es"):
		token = token[:len(token)-2]
	case strings.HasSuffix(token, "e"):
		token = token[:len(token)-1]
	}
	token = strings.TrimPrefix(token, "y")

	count := 0
	inRun := false
	for _, r := range token {
		if strings.ContainsRune("aeiouy", r) {
			if !inRun {
				count++
				inRun = true
			}
		} else {
			inRun = false
		}
	}

	if count == 0 {
		return 1
	}
	return count
}

// parseBand extracts the first two integers from a reading-level string
// such as "Grade 8-10". Unparseable bands fall back to (0, 20); a
// reversed pair is swapped.
func parseBand(band string) (int, int) {
	matches := integerRe.FindAllString(band, 2)
	if len(matches) < 2 {
		return defaultBandMin, defaultBandMax
	}

	min, err1 := strconv.Atoi(matches[0])
	max, err2 := strconv.Atoi(matches[1])
	if err1 != nil || err2 != nil {
		return defaultBandMin, defaultBandMax
	}

	if min > max {
		min, max = max, min
	}
	return min, max
}
