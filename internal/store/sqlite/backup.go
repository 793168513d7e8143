package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const backupPrefix = "autobot-"

// Backup writes a consistent copy of the database into dir with VACUUM INTO
// and deletes all but the newest keep backups. It returns the new file's
// path.
func (s *Store) Backup(ctx context.Context, dir string, keep int) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("sqlite: backup: create dir: %w", err)
	}

	name := backupPrefix + time.Now().UTC().Format("20060102-150405.000000") + ".db"
	dst := filepath.Join(dir, name)
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, dst); err != nil {
		return "", fmt.Errorf("sqlite: backup to %s: %w", dst, err)
	}

	if keep > 0 {
		if err := pruneBackups(dir, keep); err != nil {
			return dst, fmt.Errorf("sqlite: prune backups: %w", err)
		}
	}
	return dst, nil
}

// Backups lists backup files in dir, oldest first.
func Backups(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), backupPrefix) || filepath.Ext(e.Name()) != ".db" {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	// the timestamp in the name sorts chronologically
	sort.Strings(out)
	return out, nil
}

func pruneBackups(dir string, keep int) error {
	files, err := Backups(dir)
	if err != nil {
		return err
	}
	if len(files) <= keep {
		return nil
	}
	for _, f := range files[:len(files)-keep] {
		if err := os.Remove(f); err != nil {
			return err
		}
	}
	return nil
}
