//go:build darwin

package disktier

import "golang.org/x/sys/unix"

// excludeFromBackup sets the com.apple.metadata:com_apple_backup_excludeItem
// extended attribute Time Machine honors to skip a directory, matching
// spec.md's "excluded from system backup when the platform supports such
// a flag". Failure is non-fatal: it's a best-effort hint, not a
// correctness requirement.
func excludeFromBackup(dir string) {
	_ = unix.Setxattr(dir, "com.apple.metadata:com_apple_backup_excludeItem", []byte("com.apple.backupd"), 0)
}
