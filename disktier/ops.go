package disktier

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/coredao-org/tiercache/log"
)

func logWarn(msg string, ctx ...any) { log.Warn(msg, ctx...) }

// nowSeconds is overridable in tests; stored as a field-less package var
// since all callers run on the single actor goroutine.
var nowSeconds = func() float64 { return float64(time.Now().UnixNano()) / 1e9 }

func (t *Tier) readLocked(key string) ([]byte, bool, error) {
	if t.db == nil {
		return nil, false, t.storeUnavailableErr()
	}
	now := nowSeconds()

	var (
		inlineValue []byte
		filename    sql.NullString
		expireAt    sql.NullFloat64
	)
	row := t.db.QueryRow(
		`SELECT inline_value, filename, expire_at FROM records WHERE key = ?`, key)
	err := row.Scan(&inlineValue, &filename, &expireAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("disktier: read %q: %w", key, err)
	}

	if expireAt.Valid && expireAt.Float64 <= now {
		t.deleteRowAndSidecar(key)
		return nil, false, nil
	}

	if inlineValue != nil {
		t.touchAccessTime(key, now)
		return inlineValue, true, nil
	}
	if !filename.Valid {
		return nil, false, nil
	}
	data, err := readSidecar(t.dataDir, filename.String)
	if err != nil {
		logSidecarIOFailure(key, err)
		return nil, false, nil
	}
	t.touchAccessTime(key, now)
	return data, true, nil
}

func (t *Tier) touchAccessTime(key string, now float64) {
	if _, err := t.db.Exec(`UPDATE records SET last_access_time = ? WHERE key = ?`, now, key); err != nil {
		logUpdateFailure(key, err)
	}
}

func (t *Tier) writeLocked(key string, data []byte, ttl time.Duration) error {
	if t.db == nil {
		return t.storeUnavailableErr()
	}
	now := nowSeconds()
	var expireAt sql.NullFloat64
	if ttl > 0 {
		expireAt = sql.NullFloat64{Float64: now + ttl.Seconds(), Valid: true}
	}

	inline := t.shouldInline(int64(len(data)))

	var filename sql.NullString
	var inlineValue []byte
	if inline {
		inlineValue = data
	} else {
		name, err := writeSidecar(t.dataDir, key, data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
		filename = sql.NullString{String: name, Valid: true}
	}

	_, err := t.db.Exec(
		`REPLACE INTO records (key, filename, size, last_access_time, last_modified_time, inline_value, expire_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key, filename, len(data), now, now, inlineValue, expireAt)
	if err != nil {
		if filename.Valid {
			removeSidecar(t.dataDir, filename.String)
		}
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	t.trimLocked()
	return nil
}

func (t *Tier) shouldInline(size int64) bool {
	switch t.cfg.StorageMode {
	case StorageInline:
		return true
	case StorageFile:
		return false
	default: // StorageMixed
		return size <= t.cfg.InlineThreshold
	}
}

func (t *Tier) removeLocked(key string) error {
	if t.db == nil {
		return t.storeUnavailableErr()
	}
	t.deleteRowAndSidecar(key)
	return nil
}

// deleteRowAndSidecar deletes key's row and, if it had a sidecar file,
// unlinks it. Errors removing the sidecar are logged, not propagated: the
// row deletion is what matters for correctness.
func (t *Tier) deleteRowAndSidecar(key string) (deletedSize int64) {
	var filename sql.NullString
	var size int64
	row := t.db.QueryRow(`SELECT filename, size FROM records WHERE key = ?`, key)
	if err := row.Scan(&filename, &size); err != nil {
		return 0
	}
	if _, err := t.db.Exec(`DELETE FROM records WHERE key = ?`, key); err != nil {
		logUpdateFailure(key, err)
		return 0
	}
	if filename.Valid {
		if err := removeSidecar(t.dataDir, filename.String); err != nil {
			logSidecarIOFailure(key, err)
		}
	}
	return size
}

func (t *Tier) containsLocked(key string) (bool, error) {
	if t.db == nil {
		return false, t.storeUnavailableErr()
	}
	now := nowSeconds()
	var expireAt sql.NullFloat64
	row := t.db.QueryRow(`SELECT expire_at FROM records WHERE key = ?`, key)
	err := row.Scan(&expireAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("disktier: contains %q: %w", key, err)
	}
	if expireAt.Valid && expireAt.Float64 <= now {
		return false, nil
	}
	return true, nil
}

func (t *Tier) clearLocked() error {
	if t.db == nil {
		return t.storeUnavailableErr()
	}
	if _, err := t.db.Exec(`DELETE FROM records`); err != nil {
		return fmt.Errorf("disktier: clear: %w", err)
	}
	if _, err := t.db.Exec(`VACUUM`); err != nil {
		return fmt.Errorf("disktier: vacuum: %w", err)
	}
	if err := os.RemoveAll(t.dataDir); err != nil {
		return fmt.Errorf("disktier: remove data dir: %w", err)
	}
	if err := os.MkdirAll(t.dataDir, 0o755); err != nil {
		return fmt.Errorf("disktier: recreate data dir: %w", err)
	}
	return nil
}

// storeUnavailableErr reports why the manifest database isn't open, so
// callers see the original open/migrate failure instead of a bare
// ErrStoreUnavailable.
func (t *Tier) storeUnavailableErr() error {
	if t.openErr != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, t.openErr)
	}
	return ErrStoreUnavailable
}

func logUpdateFailure(key string, err error) {
	logWarn("disktier: manifest update failed", "key", key, "err", err)
}

func logSidecarIOFailure(key string, err error) {
	logWarn("disktier: sidecar io failed, treating as miss", "key", key, "err", err)
}
