// Package xcstrings implements reading and writing of Apple String Catalog
// (.xcstrings) files.
//
// A catalog is a JSON document:
//
//	{
//	  "sourceLanguage": "en",
//	  "strings": {
//	    "Hello %@": {
//	      "localizations": {
//	        "de": { "stringUnit": { "state": "translated", "value": "Hallo %@" } }
//	      }
//	    }
//	  },
//	  "version": "1.0"
//	}
//
// Keys of "strings" are the source-language phrases themselves.
//
// Round-trip fidelity: key order is preserved at every level, and fields this
// package does not interpret (comments, extractionState, variations,
// substitutions) are written back byte-for-byte.
package xcstrings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/natefinch/atomic"
)

// Extension is the file extension of string catalogs.
const Extension = ".xcstrings"

// String unit states written by Xcode.
const (
	StateTranslated  = "translated"
	StateNeedsReview = "needs_review"
	StateNew         = "new"
)

// ErrInvalidPath is returned when a path does not name an existing
// .xcstrings file.
var ErrInvalidPath = errors.New("invalid file path or not an .xcstrings file")

// ---------------------------------------------------------------------------
// File model
// ---------------------------------------------------------------------------

// Unit is the stringUnit of one localization.
type Unit struct {
	State string `json:"state"`
	Value string `json:"value"`
}

// entry is one key of the "strings" object.
type entry struct {
	key    string
	fields *object
	// locs is nil when the entry has no "localizations" field.
	locs *object
}

// File represents a parsed string catalog.
type File struct {
	top     *object
	entries []*entry
	index   map[string]int
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// ValidatePath checks that path exists, is a regular file and carries the
// .xcstrings extension.
func ValidatePath(path string) error {
	if !strings.HasSuffix(strings.ToLower(path), Extension) {
		return fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}
	return nil
}

// ParseFile reads and parses a catalog from disk.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse parses catalog content from a byte slice.
func Parse(data []byte) (*File, error) {
	top, err := parseObject(data)
	if err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	f := &File{top: top, index: make(map[string]int)}

	raw, ok := top.get("strings")
	if !ok {
		return f, nil
	}
	strs, err := parseObject(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing strings: %w", err)
	}

	for _, m := range strs.members {
		e := &entry{key: m.key}
		e.fields, err = parseObject(m.raw)
		if err != nil {
			return nil, fmt.Errorf("parsing entry %q: %w", m.key, err)
		}
		if locRaw, ok := e.fields.get("localizations"); ok {
			e.locs, err = parseObject(locRaw)
			if err != nil {
				return nil, fmt.Errorf("parsing localizations of %q: %w", m.key, err)
			}
		}
		f.index[m.key] = len(f.entries)
		f.entries = append(f.entries, e)
	}

	return f, nil
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// SourceLanguage returns the catalog's sourceLanguage, or "" when absent.
func (f *File) SourceLanguage() string {
	raw, ok := f.top.get("sourceLanguage")
	if !ok {
		return ""
	}
	var s string
	_ = json.Unmarshal(raw, &s)
	return s
}

// Keys returns all string keys in document order.
func (f *File) Keys() []string {
	keys := make([]string, len(f.entries))
	for i, e := range f.entries {
		keys[i] = e.key
	}
	return keys
}

// TranslatableKeys returns keys in document order, leaving out entries marked
// "shouldTranslate": false.
func (f *File) TranslatableKeys() []string {
	keys := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		if raw, ok := e.fields.get("shouldTranslate"); ok && string(raw) == "false" {
			continue
		}
		keys = append(keys, e.key)
	}
	return keys
}

// Has reports whether key exists in the catalog.
func (f *File) Has(key string) bool {
	_, ok := f.index[key]
	return ok
}

// Languages returns the sorted union of the source language and every
// language that has at least one localization.
func (f *File) Languages() []string {
	seen := make(map[string]bool)
	if src := f.SourceLanguage(); src != "" {
		seen[src] = true
	}
	for _, e := range f.entries {
		if e.locs == nil {
			continue
		}
		for _, lang := range e.locs.keys() {
			seen[lang] = true
		}
	}
	langs := make([]string, 0, len(seen))
	for l := range seen {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// HasLanguage reports whether lang is the source language or is localized
// for at least one key.
func (f *File) HasLanguage(lang string) bool {
	for _, l := range f.Languages() {
		if l == lang {
			return true
		}
	}
	return false
}

// HasLocalization reports whether key has any localization for lang,
// regardless of its state or shape.
func (f *File) HasLocalization(key, lang string) bool {
	idx, ok := f.index[key]
	if !ok || f.entries[idx].locs == nil {
		return false
	}
	return f.entries[idx].locs.has(lang)
}

// Unit returns the stringUnit of key for lang. ok is false when the key, the
// localization, or its stringUnit (plural variations) is missing.
func (f *File) Unit(key, lang string) (Unit, bool) {
	idx, ok := f.index[key]
	if !ok || f.entries[idx].locs == nil {
		return Unit{}, false
	}
	raw, ok := f.entries[idx].locs.get(lang)
	if !ok {
		return Unit{}, false
	}
	var loc struct {
		StringUnit *Unit `json:"stringUnit"`
	}
	if err := json.Unmarshal(raw, &loc); err != nil || loc.StringUnit == nil {
		return Unit{}, false
	}
	return *loc.StringUnit, true
}

// Partition splits the translatable keys into those that already have a
// localization for lang and those that are missing one. Both keep document
// order.
func (f *File) Partition(lang string) (existing, missing []string) {
	for _, key := range f.TranslatableKeys() {
		if f.HasLocalization(key, lang) {
			existing = append(existing, key)
		} else {
			missing = append(missing, key)
		}
	}
	return existing, missing
}

// Stats returns (total, translated, percentTranslated) for lang, counting only
// units in the translated state.
func (f *File) Stats(lang string) (int, int, float64) {
	keys := f.TranslatableKeys()
	translated := 0
	for _, key := range keys {
		if u, ok := f.Unit(key, lang); ok && u.State == StateTranslated && u.Value != "" {
			translated++
		}
	}
	pct := 0.0
	if len(keys) > 0 {
		pct = float64(translated) / float64(len(keys)) * 100
	}
	return len(keys), translated, pct
}

// ---------------------------------------------------------------------------
// Mutation
// ---------------------------------------------------------------------------

// SetUnit sets the localization of key for lang to a plain stringUnit,
// creating the entry and its localizations map when needed. Any previous
// localization for lang, including variations, is replaced.
func (f *File) SetUnit(key, lang string, u Unit) {
	idx, ok := f.index[key]
	if !ok {
		idx = len(f.entries)
		f.entries = append(f.entries, &entry{key: key, fields: newObject()})
		f.index[key] = idx
	}
	e := f.entries[idx]
	if e.locs == nil {
		e.locs = newObject()
	}

	unit := newObject()
	unit.set("state", marshalString(u.State))
	unit.set("value", marshalString(u.Value))
	loc := newObject()
	loc.set("stringUnit", unit.bytes())
	e.locs.set(lang, loc.bytes())
}

// Apply writes every translation as a translated unit for lang and returns
// the number of units written. Other languages and keys absent from
// translations are left untouched. New keys are appended in sorted order so
// the output is deterministic.
func (f *File) Apply(lang string, translations map[string]string) int {
	var existing, added []string
	for key := range translations {
		if f.Has(key) {
			existing = append(existing, key)
		} else {
			added = append(added, key)
		}
	}
	sort.Strings(existing)
	sort.Strings(added)

	for _, key := range append(existing, added...) {
		f.SetUnit(key, lang, Unit{State: StateTranslated, Value: translations[key]})
	}
	return len(translations)
}

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

// Marshal serialises the catalog with 2-space indentation, UTF-8 text left
// unescaped, and a trailing newline.
func (f *File) Marshal() ([]byte, error) {
	strs := newObject()
	for _, e := range f.entries {
		if e.locs != nil {
			e.fields.set("localizations", e.locs.bytes())
		}
		strs.set(e.key, e.fields.bytes())
	}
	if len(f.entries) > 0 || f.top.has("strings") {
		f.top.set("strings", strs.bytes())
	}

	var compact, out bytes.Buffer
	f.top.compact(&compact)
	if err := json.Indent(&out, compact.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("formatting catalog: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// WriteFile serialises the catalog and replaces path atomically.
func (f *File) WriteFile(path string) error {
	data, err := f.Marshal()
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
