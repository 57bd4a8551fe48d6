package disktier

import "database/sql"

// trimLocked runs the four trim passes in spec.md §4.2's order: TTL, age,
// count, size. The age, count and size passes run only when their limit
// is positive. Each pass that deleted at least one row reports its own
// (deletedCount, deletedBytes) to onTrim, if set.
func (t *Tier) trimLocked() {
	if t.db == nil {
		return
	}
	now := nowSeconds()

	t.report(t.trimExpired(now))
	if t.cfg.AgeLimit > 0 {
		t.report(t.trimByAge(now))
	}
	if t.cfg.CountLimit > 0 {
		t.report(t.trimByCount())
	}
	if t.cfg.ByteLimit > 0 {
		t.report(t.trimBySize())
	}
}

func (t *Tier) report(count, bytes int64) {
	if count == 0 {
		return
	}
	if t.onTrim != nil {
		t.onTrim(count, bytes)
	}
}

// trimByAge deletes up to ageTrimBatch rows whose last_access_time has
// fallen past AgeLimit, oldest first.
func (t *Tier) trimByAge(now float64) (int64, int64) {
	cutoff := now - t.cfg.AgeLimit.Seconds()
	rows, err := t.db.Query(
		`SELECT key, size FROM records WHERE last_access_time <= ? ORDER BY last_access_time ASC LIMIT ?`,
		cutoff, ageTrimBatch)
	if err != nil {
		logWarn("disktier: age trim query failed", "err", err)
		return 0, 0
	}
	return t.deleteRows(rows)
}

// trimExpired deletes up to ttlTrimBatch rows whose expire_at has passed.
func (t *Tier) trimExpired(now float64) (int64, int64) {
	rows, err := t.db.Query(
		`SELECT key, size FROM records WHERE expire_at IS NOT NULL AND expire_at <= ? LIMIT ?`,
		now, ttlTrimBatch)
	if err != nil {
		logWarn("disktier: ttl trim query failed", "err", err)
		return 0, 0
	}
	return t.deleteRows(rows)
}

func (t *Tier) trimByCount() (int64, int64) {
	var count int64
	if err := t.db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&count); err != nil {
		logWarn("disktier: count trim: failed to count rows", "err", err)
		return 0, 0
	}
	over := count - t.cfg.CountLimit
	if over <= 0 {
		return 0, 0
	}
	rows, err := t.db.Query(
		`SELECT key, size FROM records ORDER BY last_access_time ASC LIMIT ?`, over)
	if err != nil {
		logWarn("disktier: count trim query failed", "err", err)
		return 0, 0
	}
	return t.deleteRows(rows)
}

func (t *Tier) trimBySize() (int64, int64) {
	var total int64
	if err := t.db.QueryRow(`SELECT COALESCE(SUM(size), 0) FROM records`).Scan(&total); err != nil {
		logWarn("disktier: size trim: failed to sum size", "err", err)
		return 0, 0
	}
	over := total - t.cfg.ByteLimit
	if over <= 0 {
		return 0, 0
	}

	rows, err := t.db.Query(`SELECT key, size FROM records ORDER BY last_access_time ASC`)
	if err != nil {
		logWarn("disktier: size trim query failed", "err", err)
		return 0, 0
	}
	defer rows.Close()

	var toDelete []string
	var cumulative, deletedBytes int64
	for cumulative < over && rows.Next() {
		var key string
		var size int64
		if err := rows.Scan(&key, &size); err != nil {
			logWarn("disktier: size trim scan failed", "err", err)
			break
		}
		toDelete = append(toDelete, key)
		cumulative += size
		deletedBytes += size
	}
	rows.Close()

	for _, key := range toDelete {
		t.deleteRowAndSidecar(key)
	}
	return int64(len(toDelete)), deletedBytes
}

// deleteRows consumes a key/size result set and deletes each row and its
// sidecar, returning the total count and bytes removed.
func (t *Tier) deleteRows(rows *sql.Rows) (deletedCount, deletedBytes int64) {
	var keys []string
	for rows.Next() {
		var key string
		var size int64
		if err := rows.Scan(&key, &size); err != nil {
			logWarn("disktier: trim scan failed", "err", err)
			continue
		}
		keys = append(keys, key)
		deletedBytes += size
	}
	rows.Close()

	for _, key := range keys {
		t.deleteRowAndSidecar(key)
		deletedCount++
	}
	return deletedCount, deletedBytes
}
