package file

import (
	"os"
	"path/filepath"
	"time"
)

// FindOlderThan returns regular files directly under dir whose base name
// matches pattern and whose modification time is before cutoff.
func FindOlderThan(dir, pattern string, cutoff time.Time) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, err
	}

	var stale []string
	for _, path := range matches {
		info, err := os.Lstat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return stale, err
		}
		if info.Mode().IsRegular() && info.ModTime().Before(cutoff) {
			stale = append(stale, path)
		}
	}
	return stale, nil
}

// RemoveAll deletes every path and returns how many were removed along
// with the first error encountered.
func RemoveAll(paths []string) (int, error) {
	var (
		removed  int
		firstErr error
	)
	for _, path := range paths {
		if err := os.Remove(path); err != nil {
			if !os.IsNotExist(err) && firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}
