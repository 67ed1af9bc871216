package storagemgr

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// BackupInfo describes one artifact under BackupDir, as returned by
// ListBackups.
type BackupInfo struct {
	Path      string
	Timestamp string
	Encrypted bool
	Zipped    bool
	SizeBytes int64
}

// ListBackups scans BackupDir for artifacts, newest first. Artifacts are
// recognized as <timestamp>, <timestamp>.zip, or <timestamp>.enc; any
// leftover <timestamp>.tmp staging directory from an interrupted backup is
// skipped.
func (m *Manager) ListBackups() ([]BackupInfo, error) {
	entries, err := os.ReadDir(m.cfg.BackupDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errorRegistry.NewWithCause(ErrBackupFailed, err)
	}

	var infos []BackupInfo
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".tmp") || strings.HasSuffix(name, ".restore.tmp") {
			continue
		}
		ts := name
		encrypted := false
		zipped := false
		switch {
		case strings.HasSuffix(name, ".enc"):
			ts = strings.TrimSuffix(name, ".enc")
			ts = strings.TrimSuffix(ts, ".zip")
			encrypted = true
			zipped = strings.HasSuffix(strings.TrimSuffix(name, ".enc"), ".zip")
		case strings.HasSuffix(name, ".zip"):
			ts = strings.TrimSuffix(name, ".zip")
			zipped = true
		}

		path := filepath.Join(m.cfg.BackupDir, name)
		var size int64
		if e.IsDir() {
			size, _, _ = dirSize(path)
		} else if info, err := e.Info(); err == nil {
			size = info.Size()
		}

		infos = append(infos, BackupInfo{
			Path:      path,
			Timestamp: ts,
			Encrypted: encrypted,
			Zipped:    zipped,
			SizeBytes: size,
		})
	}

	sortBackupsNewestFirst(infos)
	return infos, nil
}

// DeleteBackup removes a single artifact by its path (as returned by
// ListBackups or CreateBackup).
func (m *Manager) DeleteBackup(path string) error {
	if !strings.HasPrefix(filepath.Clean(path), filepath.Clean(m.cfg.BackupDir)) {
		return errorRegistry.NewWithMessage(ErrInvalidArtifact, "refusing to delete a path outside the backup directory")
	}
	if _, err := os.Stat(path); err != nil {
		return errorRegistry.NewWithCause(ErrNotFound, err)
	}
	if err := os.RemoveAll(path); err != nil {
		return errorRegistry.NewWithCause(ErrBackupFailed, err)
	}
	return nil
}

// CleanupOldBackups enforces retention: keeps at most maxCount artifacts
// and drops anything older than maxAge, matching config.BackupConfig's
// MaxCount/MaxAge fields. A zero value disables that half of the policy.
func (m *Manager) CleanupOldBackups(ctx context.Context, maxCount int, maxAge time.Duration) error {
	infos, err := m.ListBackups()
	if err != nil {
		return err
	}

	now := time.Now()
	var toDelete []BackupInfo

	if maxCount > 0 && len(infos) > maxCount {
		toDelete = append(toDelete, infos[maxCount:]...)
		infos = infos[:maxCount]
	}

	if maxAge > 0 {
		var kept []BackupInfo
		for _, info := range infos {
			t, err := time.Parse(timestampFormat, info.Timestamp)
			if err == nil && now.Sub(t) > maxAge {
				toDelete = append(toDelete, info)
				continue
			}
			kept = append(kept, info)
		}
		infos = kept
	}

	for _, info := range toDelete {
		if err := m.DeleteBackup(info.Path); err != nil {
			return err
		}
	}
	return nil
}
