package workflow

import (
	"fmt"
	"sort"
	"strings"
)

// Mode identifies the operation that produced a Summary.
type Mode string

const (
	ModeTranslate    Mode = "translate"
	ModeApplyAll     Mode = "apply"
	ModeApplyMissing Mode = "apply-missing"
)

// Summary is the outcome of a single-language operation.
type Summary struct {
	Mode     Mode
	Path     string
	Language string
	// Keys are the keys that were requested, in catalog order.
	Keys []string
	// Total is the number of base strings in the catalog.
	Total int
	// Existing is the number of keys that already had a localization
	// (apply-missing only).
	Existing   int
	Translated map[string]string
	Skipped    map[string]string
	Backup     string
	Written    bool
	// Exists is set when apply refused to overwrite an existing language.
	Exists bool
}

// Line returns the one-line summary.
func (s *Summary) Line() string {
	done, skipped := len(s.Translated), len(s.Skipped)
	switch s.Mode {
	case ModeApplyAll:
		switch {
		case s.Exists:
			return fmt.Sprintf("%s translations already exist in %s", s.Language, s.Path)
		case done == 0:
			return fmt.Sprintf("No %s translations added to %s (all %d translations failed)", s.Language, s.Path, len(s.Keys))
		case done == s.Total:
			return fmt.Sprintf("%s added to %s (%d translations completed)", s.Language, s.Path, done)
		case skipped > 0:
			return fmt.Sprintf("%s added to %s (%d/%d translations completed, %d failed/skipped)", s.Language, s.Path, done, s.Total, skipped)
		default:
			return fmt.Sprintf("%s added to %s (%d/%d translations completed)", s.Language, s.Path, done, s.Total)
		}
	case ModeApplyMissing:
		missing := len(s.Keys)
		now := s.Existing + done
		switch {
		case missing == 0:
			return fmt.Sprintf("All %d strings already have %s translations in %s", s.Total, s.Language, s.Path)
		case done == 0:
			return fmt.Sprintf("No new %s translations added to %s (all %d missing translations failed)", s.Language, s.Path, missing)
		case done == missing:
			return fmt.Sprintf("%s missing translations added to %s (%d new, %d/%d total)", s.Language, s.Path, done, now, s.Total)
		default:
			return fmt.Sprintf("%s missing translations added to %s (%d/%d new translations completed, %d/%d total)", s.Language, s.Path, done, missing, now, s.Total)
		}
	default:
		return fmt.Sprintf("Translated %d strings to %s", done, s.Language)
	}
}

// Format renders the full report printed by the CLI. Entries follow catalog
// order.
func (s *Summary) Format() string {
	var b strings.Builder
	switch s.Mode {
	case ModeTranslate:
		if len(s.Translated) > 0 {
			fmt.Fprintf(&b, "Translated %d strings to %s:\n", len(s.Translated), s.Language)
			s.writePairs(&b, s.Translated)
		}
		if len(s.Skipped) > 0 {
			fmt.Fprintf(&b, "\nSkipped %d strings:\n", len(s.Skipped))
			s.writePairs(&b, s.Skipped)
		}
		return strings.TrimLeft(b.String(), "\n")

	case ModeApplyAll:
		if s.Exists {
			fmt.Fprintf(&b, "Warning: %s translations already exist in this file.\n", s.Language)
			b.WriteString("Using apply will overwrite existing translations.\n")
			b.WriteString("Consider using apply-missing instead to only translate missing keys, or pass --force.\n")
			return b.String()
		}
		fmt.Fprintf(&b, "Summary: %s\n", s.Line())
		if s.Backup != "" {
			fmt.Fprintf(&b, "Backup created: %s\n", s.Backup)
		}
		if len(s.Translated) > 0 {
			fmt.Fprintf(&b, "\nTranslated strings (%d):\n", len(s.Translated))
			s.writePairs(&b, s.Translated)
		}

	case ModeApplyMissing:
		fmt.Fprintf(&b, "Summary: %s\n", s.Line())
		if s.Backup != "" {
			fmt.Fprintf(&b, "Backup created: %s\n", s.Backup)
		}
		if len(s.Translated) > 0 {
			fmt.Fprintf(&b, "\nNew translations added (%d):\n", len(s.Translated))
			s.writePairs(&b, s.Translated)
		}
	}
	if len(s.Skipped) > 0 {
		fmt.Fprintf(&b, "\nSkipped strings (%d):\n", len(s.Skipped))
		s.writePairs(&b, s.Skipped)
	}
	return b.String()
}

func (s *Summary) writePairs(b *strings.Builder, m map[string]string) {
	for _, key := range s.Keys {
		if v, ok := m[key]; ok {
			fmt.Fprintf(b, "%s: %s\n", key, v)
		}
	}
}

// KeySummary is the outcome of TranslateKey.
type KeySummary struct {
	Path      string
	Key       string
	Languages []string
	// Translations maps language codes to the translated value.
	Translations map[string]string
	// Errors maps language codes to why the key was not translated.
	Errors  map[string]string
	Backup  string
	Written bool
}

// Format renders the report printed by the CLI.
func (s *KeySummary) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Translated key '%s' to %d language(s)\n", s.Key, len(s.Translations))
	if s.Backup != "" {
		fmt.Fprintf(&b, "Backup created: %s\n", s.Backup)
	}
	if len(s.Translations) > 0 {
		b.WriteString("\nSuccessful translations:\n")
		for _, lang := range s.ordered(s.Translations) {
			fmt.Fprintf(&b, "  %s: %s\n", lang, s.Translations[lang])
		}
	}
	if len(s.Errors) > 0 {
		b.WriteString("\nFailed translations:\n")
		for _, lang := range s.ordered(s.Errors) {
			fmt.Fprintf(&b, "  %s: %s\n", lang, s.Errors[lang])
		}
	}
	return b.String()
}

// ordered returns the languages of m in request order, then any others
// sorted.
func (s *KeySummary) ordered(m map[string]string) []string {
	seen := make(map[string]bool, len(m))
	var out []string
	for _, lang := range s.Languages {
		if _, ok := m[lang]; ok && !seen[lang] {
			seen[lang] = true
			out = append(out, lang)
		}
	}
	var rest []string
	for lang := range m {
		if !seen[lang] {
			rest = append(rest, lang)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
