// Package placeholder extracts printf-style format placeholders from catalog
// strings so translations can be checked for interpolation drift.
//
// Recognized tokens are "%" optionally followed by a positional index
// ("%1$") and one conversion specifier from the set Xcode emits:
//
//	@ lld ld d f s u i o x X e E g G c C p a A F
//
// Order and multiplicity are significant: "%@ %d" and "%d %@" are different
// sequences, as are "%@" and "%@ %@".
package placeholder

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

var pattern = regexp.MustCompile(`%(?:\d+\$)?(?:@|lld|ld|d|f|s|u|i|o|x|X|e|E|g|G|c|C|p|a|A|F)`)

var positional = regexp.MustCompile(`^%\d+\$`)

// Extract returns the placeholders in text, left to right, duplicates kept.
// It never returns nil.
func Extract(text string) []string {
	found := pattern.FindAllString(text, -1)
	if found == nil {
		return []string{}
	}
	return found
}

// Drift describes how a translation's placeholders differ from its source.
type Drift struct {
	Source     []string
	Translated []string
	// Positional is set when the translation uses "%N$" tokens that the
	// source did not have.
	Positional bool
}

// Check compares the placeholders of source and translated. ok is true when
// both sequences are equal; otherwise the returned Drift describes the change.
func Check(source, translated string) (Drift, bool) {
	d := Drift{
		Source:     Extract(source),
		Translated: Extract(translated),
	}
	if slices.Equal(d.Source, d.Translated) {
		return d, true
	}
	d.Positional = countPositional(d.Translated) > countPositional(d.Source)
	return d, false
}

// String renders the drift for log lines and skip reasons.
func (d Drift) String() string {
	s := fmt.Sprintf("expected [%s], got [%s]",
		strings.Join(d.Source, " "), strings.Join(d.Translated, " "))
	if d.Positional {
		s += " (positional index added)"
	}
	return s
}

func countPositional(tokens []string) int {
	n := 0
	for _, t := range tokens {
		if positional.MatchString(t) {
			n++
		}
	}
	return n
}
