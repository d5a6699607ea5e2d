package workflow

import "github.com/minios-linux/xcloc/xcstrings"

// LanguageStatus is the translation progress of one language.
type LanguageStatus struct {
	Code        string
	Translated  int
	NeedsReview int
	Missing     int
	Percent     int
}

// Status returns the source language, the number of base strings, and the
// progress of every language in the catalog other than the source.
func (s *Service) Status(path string) (string, int, []LanguageStatus, error) {
	f, err := s.store.Load(path)
	if err != nil {
		return "", 0, nil, err
	}
	src := f.SourceLanguage()
	keys := f.TranslatableKeys()

	var out []LanguageStatus
	for _, lang := range f.Languages() {
		if lang == src {
			continue
		}
		st := LanguageStatus{Code: lang}
		for _, key := range keys {
			if !f.HasLocalization(key, lang) {
				st.Missing++
				continue
			}
			if u, ok := f.Unit(key, lang); ok && u.State == xcstrings.StateNeedsReview {
				st.NeedsReview++
			}
		}
		_, st.Translated, _ = f.Stats(lang)
		if len(keys) > 0 {
			st.Percent = st.Translated * 100 / len(keys)
		}
		out = append(out, st)
	}
	return src, len(keys), out, nil
}
