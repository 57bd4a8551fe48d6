//go:build !darwin

package disktier

// excludeFromBackup is a no-op on platforms with no backup-exclusion
// flag. spec.md's "excluded from system backup when the platform
// supports such a flag" is opt-in per platform.
func excludeFromBackup(dir string) {}
