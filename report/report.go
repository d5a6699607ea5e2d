// Package report writes a YAML record of one xcloc run: which catalog and
// languages were processed, how many keys were translated or skipped (with
// reasons), and which backup was taken.
package report

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Version is the report format version.
const Version = 1

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Report is the run report file structure.
type Report struct {
	Version   int        `yaml:"version"`
	RunID     string     `yaml:"run_id"`
	Operation string     `yaml:"operation"`
	Catalog   string     `yaml:"catalog"`
	Model     string     `yaml:"model,omitempty"`
	Started   time.Time  `yaml:"started"`
	Finished  time.Time  `yaml:"finished"`
	Languages []Language `yaml:"languages"`

	mu   sync.Mutex `yaml:"-"`
	path string     `yaml:"-"`
}

// Language is the outcome for one target language.
type Language struct {
	Code       string `yaml:"code"`
	Translated int    `yaml:"translated"`
	Skipped    int    `yaml:"skipped"`
	Written    bool   `yaml:"written"`
	Backup     string `yaml:"backup,omitempty"`
	Error      string `yaml:"error,omitempty"`
	// Reasons maps skipped keys to why they were skipped.
	Reasons map[string]string `yaml:"reasons,omitempty"`
}

// ---------------------------------------------------------------------------
// Loading and saving
// ---------------------------------------------------------------------------

// New creates an empty report that Save writes to path.
func New(path, runID, operation, catalog string, started time.Time) *Report {
	return &Report{
		Version:   Version,
		RunID:     runID,
		Operation: operation,
		Catalog:   catalog,
		Started:   started.UTC(),
		path:      path,
	}
}

// Save writes the report to disk, stamping Finished.
func (r *Report) Save(finished time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.path == "" {
		return fmt.Errorf("report path not set")
	}
	r.Finished = finished.UTC()

	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", r.path, err)
	}
	return nil
}

// Path returns the report path.
func (r *Report) Path() string {
	return r.path
}

// ---------------------------------------------------------------------------
// Recording
// ---------------------------------------------------------------------------

// Add records the outcome for one language, replacing an earlier record for
// the same code. Languages are kept sorted by code.
func (r *Report) Add(l Language) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.Languages {
		if r.Languages[i].Code == l.Code {
			r.Languages[i] = l
			return
		}
	}
	r.Languages = append(r.Languages, l)
	sort.Slice(r.Languages, func(i, j int) bool {
		return r.Languages[i].Code < r.Languages[j].Code
	})
}

// Totals returns the translated and skipped counts across all languages.
func (r *Report) Totals() (translated, skipped int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, l := range r.Languages {
		translated += l.Translated
		skipped += l.Skipped
	}
	return translated, skipped
}
