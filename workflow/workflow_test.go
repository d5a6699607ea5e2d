package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minios-linux/xcloc/langmeta"
	"github.com/minios-linux/xcloc/translate"
	"github.com/minios-linux/xcloc/xcstrings"
)

const catalog = `{
  "sourceLanguage" : "en",
  "strings" : {
    "Hello %@" : {
      "localizations" : {
        "de" : {
          "stringUnit" : {
            "state" : "translated",
            "value" : "Hallo %@"
          }
        }
      }
    },
    "Cancel" : {

    },
    "Save" : {

    },
    "Internal" : {
      "shouldTranslate" : false
    }
  },
  "version" : "1.0"
}
`

// countingBackend prefixes every source value with "T:" and counts calls.
type countingBackend struct {
	calls atomic.Int32
	fail  func(c translate.Completion) bool
}

func (b *countingBackend) Complete(ctx context.Context, c translate.Completion) (string, error) {
	b.calls.Add(1)
	if b.fail != nil && b.fail(c) {
		return "", errors.New("backend down")
	}
	_, payload, _ := strings.Cut(c.User, "\n")
	in := make(map[string]string)
	if err := json.Unmarshal([]byte(payload), &in); err != nil {
		return "", err
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = "T:" + v
	}
	data, err := json.Marshal(out)
	return string(data), err
}

// failingSave is a FileStore whose Save always fails.
type failingSave struct {
	FileStore
}

func (failingSave) Save(path string, f *xcstrings.File) error {
	return errors.New("disk full")
}

func writeCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Localizable.xcstrings")
	require.NoError(t, os.WriteFile(path, []byte(catalog), 0644))
	return path
}

func newService(b *countingBackend, store Store) *Service {
	tr := translate.New(b, translate.Options{RateLimitDelay: -1})
	return New(tr, store, zerolog.Nop())
}

func backups(t *testing.T, path string) []string {
	t.Helper()
	matches, err := filepath.Glob(path + ".bak.*")
	require.NoError(t, err)
	return matches
}

func unit(t *testing.T, path, key, lang string) (xcstrings.Unit, bool) {
	t.Helper()
	f, err := xcstrings.ParseFile(path)
	require.NoError(t, err)
	return f.Unit(key, lang)
}

// ---------------------------------------------------------------------------
// Read-only operations
// ---------------------------------------------------------------------------

func TestReadOperations(t *testing.T) {
	path := writeCatalog(t)
	s := newService(&countingBackend{}, nil)

	langs, err := s.Languages(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"de", "en"}, langs)

	keys, err := s.Keys(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello %@", "Cancel", "Save", "Internal"}, keys)

	base, err := s.BaseStrings(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello %@", "Cancel", "Save"}, base)
}

func TestInputErrors(t *testing.T) {
	path := writeCatalog(t)
	b := &countingBackend{}
	s := newService(b, nil)
	ctx := context.Background()

	_, err := s.Keys(filepath.Join(t.TempDir(), "missing.xcstrings"))
	assert.ErrorIs(t, err, xcstrings.ErrInvalidPath)

	_, err = s.TranslateOnly(ctx, path, "not a language", "")
	assert.ErrorIs(t, err, langmeta.ErrInvalidLanguage)

	_, err = s.TranslateKey(ctx, path, "Unknown", []string{"es"}, "")
	assert.ErrorIs(t, err, ErrUnknownKey)

	_, err = s.TranslateKey(ctx, path, "Internal", []string{"es"}, "")
	assert.ErrorIs(t, err, ErrUnknownKey, "shouldTranslate=false keys are not base strings")

	_, err = s.TranslateKey(ctx, path, "Save", nil, "")
	assert.ErrorIs(t, err, ErrNoLanguages)

	empty := filepath.Join(t.TempDir(), "Empty.xcstrings")
	require.NoError(t, os.WriteFile(empty, []byte(`{"sourceLanguage":"en","strings":{}}`), 0644))
	_, err = s.ApplyMissing(ctx, empty, "fr", "")
	assert.ErrorIs(t, err, ErrNoKeys)

	assert.Zero(t, b.calls.Load())
}

// ---------------------------------------------------------------------------
// Translate only
// ---------------------------------------------------------------------------

func TestTranslateOnly_DoesNotWrite(t *testing.T) {
	path := writeCatalog(t)
	s := newService(&countingBackend{}, nil)

	sum, err := s.TranslateOnly(context.Background(), path, "fr", "a notes app")
	require.NoError(t, err)
	assert.Len(t, sum.Translated, 3)
	assert.False(t, sum.Written)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, catalog, string(data))
	assert.Empty(t, backups(t, path))

	out := sum.Format()
	assert.True(t, strings.HasPrefix(out, "Translated 3 strings to fr:\nHello %@: T:Hello %@\nCancel: T:Cancel\n"), out)
}

// ---------------------------------------------------------------------------
// Apply all
// ---------------------------------------------------------------------------

func TestApplyAll_RefusesExistingLanguageWithoutForce(t *testing.T) {
	path := writeCatalog(t)
	b := &countingBackend{}
	s := newService(b, nil)

	sum, err := s.ApplyAll(context.Background(), path, "de", "", false)
	require.NoError(t, err)
	assert.True(t, sum.Exists)
	assert.Zero(t, b.calls.Load())
	assert.Empty(t, backups(t, path))
	assert.Contains(t, sum.Format(), "Warning: de translations already exist in this file.")

	sum, err = s.ApplyAll(context.Background(), path, "de", "", true)
	require.NoError(t, err)
	assert.True(t, sum.Written)
	u, ok := unit(t, path, "Hello %@", "de")
	require.True(t, ok)
	assert.Equal(t, "T:Hello %@", u.Value)
}

func TestApplyAll_WritesNewLanguage(t *testing.T) {
	path := writeCatalog(t)
	s := newService(&countingBackend{}, nil)

	sum, err := s.ApplyAll(context.Background(), path, "fr", "", false)
	require.NoError(t, err)
	assert.True(t, sum.Written)
	require.Len(t, backups(t, path), 1)
	assert.Equal(t, backups(t, path)[0], sum.Backup)
	assert.Equal(t, "fr added to "+path+" (3 translations completed)", sum.Line())

	for _, key := range []string{"Hello %@", "Cancel", "Save"} {
		u, ok := unit(t, path, key, "fr")
		require.True(t, ok, key)
		assert.Equal(t, xcstrings.StateTranslated, u.State)
	}
	_, ok := unit(t, path, "Internal", "fr")
	assert.False(t, ok, "shouldTranslate=false entries are left alone")

	u, _ := unit(t, path, "Hello %@", "de")
	assert.Equal(t, "Hallo %@", u.Value, "other languages untouched")
}

func TestApplyAll_BackupSurvivesWriteFailure(t *testing.T) {
	path := writeCatalog(t)
	s := newService(&countingBackend{}, failingSave{})

	sum, err := s.ApplyAll(context.Background(), path, "fr", "", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.False(t, sum.Written)

	require.NotEmpty(t, sum.Backup)
	data, err := os.ReadFile(sum.Backup)
	require.NoError(t, err)
	assert.Equal(t, catalog, string(data), "backup must match the catalog before the failed write")

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, catalog, string(data))
}

func TestApplyAll_NothingTranslatedLeavesCatalog(t *testing.T) {
	path := writeCatalog(t)
	b := &countingBackend{fail: func(translate.Completion) bool { return true }}
	s := newService(b, nil)

	sum, err := s.ApplyAll(context.Background(), path, "fr", "", false)
	require.NoError(t, err)
	assert.False(t, sum.Written)
	assert.Empty(t, backups(t, path))
	assert.Len(t, sum.Skipped, 3)
	assert.Equal(t, "No fr translations added to "+path+" (all 3 translations failed)", sum.Line())
}

// ---------------------------------------------------------------------------
// Apply missing
// ---------------------------------------------------------------------------

func TestApplyMissing_OnlyMissingAndIdempotent(t *testing.T) {
	path := writeCatalog(t)
	b := &countingBackend{}
	clock := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	s := newService(b, FileStore{Now: func() time.Time { return clock }})

	sum, err := s.ApplyMissing(context.Background(), path, "de", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Cancel", "Save"}, sum.Keys)
	assert.Equal(t, path+".bak.20240309140507", sum.Backup)
	assert.Equal(t, "de missing translations added to "+path+" (2 new, 3/3 total)", sum.Line())

	u, _ := unit(t, path, "Hello %@", "de")
	assert.Equal(t, "Hallo %@", u.Value, "existing translation preserved")
	u, _ = unit(t, path, "Save", "de")
	assert.Equal(t, "T:Save", u.Value)

	calls := b.calls.Load()
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	sum, err = s.ApplyMissing(context.Background(), path, "de", "")
	require.NoError(t, err)
	assert.Equal(t, calls, b.calls.Load(), "second run makes no backend calls")
	assert.False(t, sum.Written)
	assert.Empty(t, sum.Backup)
	assert.Equal(t, "All 3 strings already have de translations in "+path, sum.Line())

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Len(t, backups(t, path), 1)
}

// ---------------------------------------------------------------------------
// Translate key
// ---------------------------------------------------------------------------

func TestTranslateKey_PartialFailure(t *testing.T) {
	path := writeCatalog(t)
	b := &countingBackend{fail: func(c translate.Completion) bool {
		return strings.Contains(c.System, "(it)")
	}}
	s := newService(b, nil)

	sum, err := s.TranslateKey(context.Background(), path, "Save", []string{"es", "it", "fr"}, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"es": "T:Save", "fr": "T:Save"}, sum.Translations)
	assert.Equal(t, "Translation not returned by API (backend down)", sum.Errors["it"])
	assert.True(t, sum.Written)
	assert.NotEmpty(t, sum.Backup)

	for _, lang := range []string{"es", "fr"} {
		u, ok := unit(t, path, "Save", lang)
		require.True(t, ok)
		assert.Equal(t, "T:Save", u.Value)
	}
	_, ok := unit(t, path, "Save", "it")
	assert.False(t, ok)

	out := sum.Format()
	assert.Contains(t, out, "Translated key 'Save' to 2 language(s)")
	assert.Contains(t, out, "\nSuccessful translations:\n  es: T:Save\n  fr: T:Save\n")
	assert.Contains(t, out, "\nFailed translations:\n  it: Translation not returned by API (backend down)\n")
}

func TestTranslateKey_AllFailed(t *testing.T) {
	path := writeCatalog(t)
	b := &countingBackend{fail: func(translate.Completion) bool { return true }}
	s := newService(b, nil)

	sum, err := s.TranslateKey(context.Background(), path, "Save", []string{"es", "fr"}, "")
	require.ErrorIs(t, err, ErrAllFailed)
	assert.Contains(t, err.Error(), "es: Translation not returned by API")
	assert.False(t, sum.Written)
	assert.Empty(t, backups(t, path))
}

// ---------------------------------------------------------------------------
// Summary lines
// ---------------------------------------------------------------------------

func TestSummaryLine(t *testing.T) {
	tests := []struct {
		name string
		sum  Summary
		want string
	}{
		{
			"apply partial with skips",
			Summary{Mode: ModeApplyAll, Path: "L.xcstrings", Language: "fr", Keys: []string{"a", "b", "c"}, Total: 3,
				Translated: map[string]string{"a": "A", "b": "B"}, Skipped: map[string]string{"c": "x"}},
			"fr added to L.xcstrings (2/3 translations completed, 1 failed/skipped)",
		},
		{
			"apply-missing partial",
			Summary{Mode: ModeApplyMissing, Path: "L.xcstrings", Language: "fr", Keys: []string{"b", "c"}, Total: 3, Existing: 1,
				Translated: map[string]string{"b": "B"}, Skipped: map[string]string{"c": "x"}},
			"fr missing translations added to L.xcstrings (1/2 new translations completed, 2/3 total)",
		},
		{
			"apply-missing all failed",
			Summary{Mode: ModeApplyMissing, Path: "L.xcstrings", Language: "fr", Keys: []string{"b", "c"}, Total: 3, Existing: 1,
				Skipped: map[string]string{"b": "x", "c": "x"}},
			"No new fr translations added to L.xcstrings (all 2 missing translations failed)",
		},
		{
			"translate",
			Summary{Mode: ModeTranslate, Language: "ja", Translated: map[string]string{"a": "A"}},
			"Translated 1 strings to ja",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sum.Line())
		})
	}
}

func TestSummaryFormat_Skipped(t *testing.T) {
	sum := Summary{
		Mode: ModeApplyMissing, Path: "L.xcstrings", Language: "fr",
		Keys: []string{"b", "c"}, Total: 2, Backup: "L.xcstrings.bak.1",
		Translated: map[string]string{"b": "B"},
		Skipped:    map[string]string{"c": "Not returned by API in chunk 1"},
	}
	want := "Summary: fr missing translations added to L.xcstrings (1/2 new translations completed, 1/2 total)\n" +
		"Backup created: L.xcstrings.bak.1\n" +
		"\nNew translations added (1):\nb: B\n" +
		"\nSkipped strings (1):\nc: Not returned by API in chunk 1\n"
	assert.Equal(t, want, sum.Format())
}

// ---------------------------------------------------------------------------
// Status
// ---------------------------------------------------------------------------

func TestStatus(t *testing.T) {
	path := writeCatalog(t)
	s := newService(&countingBackend{}, nil)

	src, total, langs, err := s.Status(path)
	require.NoError(t, err)
	assert.Equal(t, "en", src)
	assert.Equal(t, 3, total)
	require.Len(t, langs, 1)
	assert.Equal(t, LanguageStatus{Code: "de", Translated: 1, Missing: 2, Percent: 33}, langs[0])
}
