// Package readingtime estimates how long a post takes to read.
package readingtime

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/dgallion1/spacetraveling/internal/content"
	"github.com/dgallion1/spacetraveling/internal/richtext"
)

// Metric selects how text is counted.
type Metric string

const (
	// Fragments counts every piece produced by splitting on delimiters,
	// including empty pieces between adjacent delimiters and one seed entry.
	// This is the figure the published site has always shown.
	Fragments Metric = "fragments"
	// Words counts non-empty pieces only.
	Words Metric = "words"
)

// DefaultWordsPerMinute is the assumed reading speed.
const DefaultWordsPerMinute = 200

// delimiters matches comma, period, semicolon and ECMAScript whitespace.
// Go's \s is ASCII-only, so the Unicode spaces are listed explicitly.
var delimiters = regexp.MustCompile(`[,.;\t\n\v\f\r \x{00a0}\x{1680}\x{2000}-\x{200a}\x{2028}\x{2029}\x{202f}\x{205f}\x{3000}\x{feff}]`)

func isDelimiter(r rune) bool {
	switch r {
	case ',', '.', ';', '\t', '\n', '\v', '\f', '\r', ' ',
		'\u00a0', '\u1680', '\u2028', '\u2029', '\u202f', '\u205f', '\u3000', '\ufeff':
		return true
	}
	return r >= '\u2000' && r <= '\u200a'
}

// Estimator turns a document into a "<n> min" label.
type Estimator struct {
	Converter      richtext.Converter
	Metric         Metric
	WordsPerMinute int
}

// New returns an Estimator using the fragment metric at 200 words per minute.
func New(conv richtext.Converter) *Estimator {
	return &Estimator{
		Converter:      conv,
		Metric:         Fragments,
		WordsPerMinute: DefaultWordsPerMinute,
	}
}

// Estimate is shorthand for New(conv).Estimate(doc).
func Estimate(doc []content.Section, conv richtext.Converter) (string, error) {
	return New(conv).Estimate(doc)
}

// Estimate returns the reading time label for doc.
func (e *Estimator) Estimate(doc []content.Section) (string, error) {
	count, err := e.Count(doc)
	if err != nil {
		return "", err
	}
	return Label(count, e.wpm()), nil
}

// Count returns the number of units the configured metric sees in doc.
func (e *Estimator) Count(doc []content.Section) (int, error) {
	conv := e.Converter
	if conv == nil {
		conv = richtext.Plain{}
	}

	count := 0
	if e.Metric != Words {
		count = 1 // seed entry
	}
	for i, section := range doc {
		body, err := conv.AsText(section.Body)
		if err != nil {
			return 0, fmt.Errorf("section %d to text: %w", i, err)
		}
		chunk := body + section.Heading
		if e.Metric == Words {
			count += len(strings.FieldsFunc(chunk, isDelimiter))
		} else {
			count += len(splitFragments(chunk))
		}
	}
	return count, nil
}

func (e *Estimator) wpm() int {
	if e.WordsPerMinute <= 0 {
		return DefaultWordsPerMinute
	}
	return e.WordsPerMinute
}

// splitFragments splits s on every delimiter occurrence, keeping empty
// fragments. An empty s yields a single empty fragment.
func splitFragments(s string) []string {
	matches := delimiters.FindAllStringIndex(s, -1)
	out := make([]string, 0, len(matches)+1)
	beg := 0
	for _, m := range matches {
		out = append(out, s[beg:m[0]])
		beg = m[1]
	}
	return append(out, s[beg:])
}

// Label formats count units at wpm as "<minutes> min", rounding up.
func Label(count, wpm int) string {
	minutes := int(math.Ceil(float64(count) / float64(wpm)))
	return strconv.Itoa(minutes) + " min"
}

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case Fragments, Words:
		return m, nil
	case "":
		return Fragments, nil
	}
	return "", fmt.Errorf("unknown reading time metric %q", s)
}
