package disktier

import (
	"fmt"
	"os"
	"path/filepath"
)

// writeSidecar atomically writes data under digest(key) inside dataDir: it
// writes to a fresh temp file, fsyncs it, then renames it over the final
// name, per spec.md §4.2 step 2.
func writeSidecar(dataDir, key string, data []byte) (filename string, err error) {
	filename = digest(key)
	tmpPath := filepath.Join(dataDir, tempName())
	finalPath := filepath.Join(dataDir, filename)

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("disktier: create sidecar temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("disktier: write sidecar temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("disktier: fsync sidecar temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("disktier: close sidecar temp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("disktier: rename sidecar into place: %w", err)
	}
	return filename, nil
}

// readSidecar loads filename's full contents from dataDir.
func readSidecar(dataDir, filename string) ([]byte, error) {
	return os.ReadFile(filepath.Join(dataDir, filename))
}

// removeSidecar unlinks filename from dataDir. A missing file is not an
// error, per spec.md §4.2's "unlink the sidecar (best-effort; ENOENT is
// not an error)" rule.
func removeSidecar(dataDir, filename string) error {
	err := os.Remove(filepath.Join(dataDir, filename))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
