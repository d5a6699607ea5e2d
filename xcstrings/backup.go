package xcstrings

import (
	"fmt"
	"os"
	"time"
)

// BackupTimeFormat is the timestamp layout appended to backup file names.
const BackupTimeFormat = "20060102150405"

// Backup copies path to a sibling "<path>.bak.<YYYYMMDDHHMMSS>" and returns
// the backup path. The copy is byte-identical and keeps the file mode. An
// existing backup is never overwritten: when the name is taken, a ".N" suffix
// is added.
func Backup(path string, now time.Time) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	base := fmt.Sprintf("%s.bak.%s", path, now.Format(BackupTimeFormat))
	for n := 0; n < 100; n++ {
		name := base
		if n > 0 {
			name = fmt.Sprintf("%s.%d", base, n)
		}
		out, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("creating %s: %w", name, err)
		}
		if _, err := out.Write(data); err != nil {
			out.Close()
			os.Remove(name)
			return "", fmt.Errorf("writing %s: %w", name, err)
		}
		if err := out.Close(); err != nil {
			os.Remove(name)
			return "", fmt.Errorf("writing %s: %w", name, err)
		}
		return name, nil
	}
	return "", fmt.Errorf("no free backup name for %s", base)
}
