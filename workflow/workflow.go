// Package workflow implements the catalog operations exposed by the CLI:
// listing languages and keys, translating without writing, and applying
// translations with the overwrite, fill-missing and single-key policies.
//
// Every write is preceded by a backup of the catalog. When nothing was
// translated the catalog is neither backed up nor written.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/minios-linux/xcloc/langmeta"
	"github.com/minios-linux/xcloc/translate"
	"github.com/minios-linux/xcloc/xcstrings"
)

// Input errors. They are returned before any backend call.
var (
	ErrUnknownKey  = errors.New("key not found in catalog")
	ErrNoKeys      = errors.New("no base language keys found")
	ErrNoLanguages = errors.New("no target languages provided")
	// ErrAllFailed is returned by TranslateKey when no language succeeded.
	ErrAllFailed = errors.New("all translations failed")
)

// defaultSourceLanguage is assumed for catalogs without sourceLanguage.
const defaultSourceLanguage = "en"

// Translator runs one translation job. *translate.Translator implements it.
type Translator interface {
	TranslateMany(ctx context.Context, req translate.Request) translate.Result
}

// Service runs catalog operations.
type Service struct {
	translator Translator
	store      Store
	logger     zerolog.Logger
}

// New creates a Service. A nil store means FileStore.
func New(tr Translator, store Store, logger zerolog.Logger) *Service {
	if store == nil {
		store = FileStore{}
	}
	return &Service{translator: tr, store: store, logger: logger}
}

// ---------------------------------------------------------------------------
// Read-only operations
// ---------------------------------------------------------------------------

// Languages returns the sorted languages present in the catalog.
func (s *Service) Languages(path string) ([]string, error) {
	f, err := s.store.Load(path)
	if err != nil {
		return nil, err
	}
	return f.Languages(), nil
}

// Keys returns every key of the catalog in document order.
func (s *Service) Keys(path string) ([]string, error) {
	f, err := s.store.Load(path)
	if err != nil {
		return nil, err
	}
	return f.Keys(), nil
}

// BaseStrings returns the keys to translate in document order. Entries
// marked shouldTranslate=false are left out.
func (s *Service) BaseStrings(path string) ([]string, error) {
	f, err := s.store.Load(path)
	if err != nil {
		return nil, err
	}
	return f.TranslatableKeys(), nil
}

// ---------------------------------------------------------------------------
// Translating operations
// ---------------------------------------------------------------------------

// TranslateOnly translates every base string into lang without touching the
// catalog.
func (s *Service) TranslateOnly(ctx context.Context, path, lang, appContext string) (*Summary, error) {
	f, keys, err := s.prepare(path, lang)
	if err != nil {
		return nil, err
	}
	res := s.translator.TranslateMany(ctx, request(f, keys, lang, appContext))
	return &Summary{
		Mode:       ModeTranslate,
		Path:       path,
		Language:   lang,
		Keys:       keys,
		Total:      len(keys),
		Translated: res.Translated,
		Skipped:    res.Skipped,
	}, nil
}

// ApplyAll translates every base string into lang and writes the results,
// overwriting existing lang values. When lang already exists in the catalog
// and force is false, nothing is translated and the summary carries a
// warning instead.
func (s *Service) ApplyAll(ctx context.Context, path, lang, appContext string, force bool) (*Summary, error) {
	f, keys, err := s.prepare(path, lang)
	if err != nil {
		return nil, err
	}
	sum := &Summary{Mode: ModeApplyAll, Path: path, Language: lang, Keys: keys, Total: len(keys)}
	if f.HasLanguage(lang) && !force {
		sum.Exists = true
		s.logger.Warn().Str("lang", lang).Msg("language already exists, not overwriting without force")
		return sum, nil
	}

	res := s.translator.TranslateMany(ctx, request(f, keys, lang, appContext))
	sum.Translated, sum.Skipped = res.Translated, res.Skipped
	if err := s.apply(path, f, lang, sum); err != nil {
		return sum, err
	}
	return sum, nil
}

// ApplyMissing translates only the base strings that have no lang
// localization and writes the results. Existing lang values are never
// changed.
func (s *Service) ApplyMissing(ctx context.Context, path, lang, appContext string) (*Summary, error) {
	f, keys, err := s.prepare(path, lang)
	if err != nil {
		return nil, err
	}
	existing, missing := f.Partition(lang)
	sum := &Summary{
		Mode:     ModeApplyMissing,
		Path:     path,
		Language: lang,
		Keys:     missing,
		Total:    len(keys),
		Existing: len(existing),
	}
	if len(missing) == 0 {
		s.logger.Info().Str("lang", lang).Int("keys", len(keys)).Msg("nothing missing")
		return sum, nil
	}
	s.logger.Info().Str("lang", lang).Int("existing", len(existing)).Int("missing", len(missing)).Msg("translating missing keys")

	res := s.translator.TranslateMany(ctx, request(f, missing, lang, appContext))
	sum.Translated, sum.Skipped = res.Translated, res.Skipped
	if err := s.apply(path, f, lang, sum); err != nil {
		return sum, err
	}
	return sum, nil
}

// TranslateKey translates one base string key into each of langs, one
// language at a time, and writes the successful results in a single update.
// Keys marked shouldTranslate=false are reported as unknown.
func (s *Service) TranslateKey(ctx context.Context, path, key string, langs []string, appContext string) (*KeySummary, error) {
	if len(langs) == 0 {
		return nil, ErrNoLanguages
	}
	for _, lang := range langs {
		if err := langmeta.Validate(lang); err != nil {
			return nil, err
		}
	}
	f, err := s.store.Load(path)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(f.TranslatableKeys(), key) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	sum := &KeySummary{
		Path:         path,
		Key:          key,
		Languages:    langs,
		Translations: make(map[string]string),
		Errors:       make(map[string]string),
	}
	for _, lang := range langs {
		res := s.translator.TranslateMany(ctx, request(f, []string{key}, lang, appContext))
		if value, ok := res.Translated[key]; ok {
			sum.Translations[lang] = value
			continue
		}
		reason := res.Skipped[key]
		if reason == "" {
			reason = "Translation failed"
		}
		sum.Errors[lang] = reason
	}

	if len(sum.Translations) == 0 {
		var lines []string
		for _, lang := range langs {
			lines = append(lines, fmt.Sprintf("%s: %s", lang, sum.Errors[lang]))
		}
		return sum, fmt.Errorf("%w:\n%s", ErrAllFailed, strings.Join(lines, "\n"))
	}

	codes := make([]string, 0, len(sum.Translations))
	for lang := range sum.Translations {
		codes = append(codes, lang)
	}
	sort.Strings(codes)
	for _, lang := range codes {
		f.Apply(lang, map[string]string{key: sum.Translations[lang]})
	}
	backup, err := s.persist(path, f)
	sum.Backup = backup
	if err != nil {
		return sum, err
	}
	sum.Written = true
	return sum, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// prepare validates lang, loads the catalog and returns its base strings.
func (s *Service) prepare(path, lang string) (*xcstrings.File, []string, error) {
	if err := langmeta.Validate(lang); err != nil {
		return nil, nil, err
	}
	f, err := s.store.Load(path)
	if err != nil {
		return nil, nil, err
	}
	keys := f.TranslatableKeys()
	if len(keys) == 0 {
		return nil, nil, ErrNoKeys
	}
	return f, keys, nil
}

// apply writes sum.Translated into the catalog when there is anything to
// write.
func (s *Service) apply(path string, f *xcstrings.File, lang string, sum *Summary) error {
	if len(sum.Translated) == 0 {
		s.logger.Warn().Str("lang", lang).Int("skipped", len(sum.Skipped)).Msg("nothing translated, catalog left untouched")
		return nil
	}
	f.Apply(lang, sum.Translated)
	backup, err := s.persist(path, f)
	sum.Backup = backup
	if err != nil {
		return err
	}
	sum.Written = true
	return nil
}

// persist backs up path and then writes f over it. If the write fails the
// backup stays in place and its path is still returned.
func (s *Service) persist(path string, f *xcstrings.File) (string, error) {
	backup, err := s.store.Backup(path)
	if err != nil {
		return "", fmt.Errorf("creating backup: %w", err)
	}
	s.logger.Info().Str("backup", backup).Msg("created backup")

	if err := s.store.Save(path, f); err != nil {
		return backup, fmt.Errorf("saving catalog (backup kept at %s): %w", backup, err)
	}
	s.logger.Info().Str("path", path).Msg("catalog written")
	return backup, nil
}

func request(f *xcstrings.File, keys []string, lang, appContext string) translate.Request {
	src := f.SourceLanguage()
	if src == "" {
		src = defaultSourceLanguage
	}
	return translate.Request{
		Keys:           keys,
		SourceLanguage: src,
		TargetLanguage: lang,
		AppContext:     appContext,
	}
}
