package workflow

import (
	"time"

	"github.com/minios-linux/xcloc/xcstrings"
)

// Store loads, backs up and saves catalogs.
type Store interface {
	Load(path string) (*xcstrings.File, error)
	// Backup copies the catalog at path and returns the copy's path.
	Backup(path string) (string, error)
	Save(path string, f *xcstrings.File) error
}

// FileStore is the filesystem Store.
type FileStore struct {
	// Now returns the backup timestamp. Nil means time.Now.
	Now func() time.Time
}

// Load validates path and parses the catalog.
func (s FileStore) Load(path string) (*xcstrings.File, error) {
	if err := xcstrings.ValidatePath(path); err != nil {
		return nil, err
	}
	return xcstrings.ParseFile(path)
}

// Backup writes a timestamped copy next to path.
func (s FileStore) Backup(path string) (string, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return xcstrings.Backup(path, now())
}

// Save replaces path atomically.
func (s FileStore) Save(path string, f *xcstrings.File) error {
	return f.WriteFile(path)
}
