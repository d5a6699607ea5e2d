// Package langmeta validates language codes and provides display metadata
// (English name, native name, emoji flag) used in prompts and CLI output.
//
// Codes are BCP 47 tags as Xcode writes them: "de", "pt-BR", "zh-Hans",
// "es-419". Parsing and names come from golang.org/x/text.
package langmeta

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// ErrInvalidLanguage is returned for codes that are not well-formed BCP 47
// language tags.
var ErrInvalidLanguage = errors.New("invalid language code")

// Meta describes language display metadata.
type Meta struct {
	Code   string
	Name   string // English name, e.g. "German"
	Native string // Self name, e.g. "Deutsch"
	Flag   string
}

// Validate checks that code is a well-formed language tag with a known base
// language. Underscores and whitespace are rejected because catalogs key
// localizations by the exact hyphenated code.
func Validate(code string) error {
	if code == "" || strings.ContainsAny(code, "_ \t\n") {
		return fmt.Errorf("%w: %q", ErrInvalidLanguage, code)
	}
	tag, err := language.Parse(code)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLanguage, code)
	}
	if _, conf := tag.Base(); conf == language.No {
		return fmt.Errorf("%w: %q", ErrInvalidLanguage, code)
	}
	return nil
}

// ParseList splits a comma-separated list of codes, trims blanks and drops
// empty items. Every code is validated.
func ParseList(s string) ([]string, error) {
	var langs []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		code := strings.TrimSpace(part)
		if code == "" || seen[code] {
			continue
		}
		if err := Validate(code); err != nil {
			return nil, err
		}
		seen[code] = true
		langs = append(langs, code)
	}
	return langs, nil
}

// Resolve returns best-effort metadata for a language code. Unknown or
// malformed codes resolve to a Meta whose names are the code itself.
func Resolve(code string) Meta {
	m := Meta{Code: code, Name: code, Native: code}
	tag, err := language.Parse(code)
	if err != nil {
		return m
	}
	if name := display.English.Tags().Name(tag); name != "" {
		m.Name = name
	}
	if native := display.Self.Name(tag); native != "" {
		m.Native = native
	}
	if region, conf := tag.Region(); conf != language.No {
		m.Flag = flagFromRegion(region.String())
	}
	return m
}

// Name returns the English display name of code, falling back to the code.
func Name(code string) string {
	return Resolve(code).Name
}

// flagFromRegion converts a two-letter region code into its regional
// indicator emoji. Numeric regions such as "419" have no flag.
func flagFromRegion(region string) string {
	if len(region) != 2 {
		return ""
	}
	region = strings.ToUpper(region)
	var b strings.Builder
	for _, r := range region {
		if r < 'A' || r > 'Z' {
			return ""
		}
		b.WriteRune(0x1F1E6 + (r - 'A'))
	}
	return b.String()
}
