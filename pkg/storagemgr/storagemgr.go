// Package storagemgr handles backup/restore, export/import, optimize,
// and stats over the aggregate {metadata store file, vector store
// directory, user files directory}. Backups are staged directory
// snapshots, optionally zipped and sealed into a single .enc artifact,
// with a retention sweep over old artifacts. The fsx.FileSystem seam is
// kept for the user-files component so a cloud-storage collaborator can
// plug in a remote implementation without touching this package.
package storagemgr

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/abraxas-365/personal-ai-core/pkg/cryptx"
	"github.com/abraxas-365/personal-ai-core/pkg/eventx"
	"github.com/abraxas-365/personal-ai-core/pkg/fsx"
	"github.com/abraxas-365/personal-ai-core/pkg/logx"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/metastore"
)

// BackupFormatVersion is written into every metadata.json so a future
// restore can detect format drift.
const BackupFormatVersion = 1

// Config points the manager at the files it aggregates
// (personal_ai.db, vectors/, documents/, backups/).
type Config struct {
	MetadataDBPath string
	VectorDir      string
	DocumentsDir   string
	BackupDir      string

	// ExcludePatterns are filepath.Match globs (matched against the
	// file's base name) skipped when copying DocumentsDir into a backup.
	ExcludePatterns []string

	EncryptByDefault bool
}

// Manager operates on the data directory as a whole.
type Manager struct {
	store metastore.Store
	files fsx.FileSystem // rooted at DocumentsDir; nil disables file backup/restore
	key   []byte         // master key for .enc artifacts; nil disables encryption
	bus   *eventx.Bus
	cfg   Config
}

// New builds a Manager. files and key may both be nil: a nil files
// disables backing up DocumentsDir, a nil key disables Encrypt requests.
func New(store metastore.Store, files fsx.FileSystem, key []byte, bus *eventx.Bus, cfg Config) *Manager {
	return &Manager{store: store, files: files, key: key, bus: bus, cfg: cfg}
}

func (m *Manager) publish(eventType string, payload map[string]any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventType, payload)
}

// contentsManifest is the "contents" object inside metadata.json.
type contentsManifest struct {
	SQLite    bool `json:"sqlite"`
	Vector    bool `json:"vector"`
	Files     bool `json:"files"`
	FileCount int  `json:"file_count,omitempty"`
	FileSize  int64 `json:"file_size,omitempty"`
}

// backupManifest is the metadata.json written alongside every backup.
type backupManifest struct {
	Timestamp string            `json:"timestamp"`
	Version   int               `json:"version"`
	Contents  contentsManifest  `json:"contents"`
	Encrypted bool              `json:"encrypted"`
}

// Stats reports byte sizes per component plus record counts by entity.
type Stats struct {
	MetadataDBBytes int64
	VectorDirBytes  int64
	DocumentsBytes  int64
	Counts          map[string]int
}

// GetStorageStats reports byte sizes of each component plus record counts
// by entity type.
func (m *Manager) GetStorageStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Counts: map[string]int{}}

	if sz, err := fileSize(m.cfg.MetadataDBPath); err == nil {
		stats.MetadataDBBytes = sz
	}
	if sz, _, err := dirSize(m.cfg.VectorDir); err == nil {
		stats.VectorDirBytes = sz
	}
	if sz, _, err := dirSize(m.cfg.DocumentsDir); err == nil {
		stats.DocumentsBytes = sz
	}

	convCount, err := m.store.CountConversations(ctx)
	if err != nil {
		return nil, err
	}
	stats.Counts["conversations"] = convCount

	memCount, err := m.store.CountMemoryItems(ctx, metastore.MemoryItemFilter{})
	if err != nil {
		return nil, err
	}
	stats.Counts["memory_items"] = memCount

	byCategory, err := m.store.CountMemoryItemsByCategory(ctx)
	if err != nil {
		return nil, err
	}
	for cat, n := range byCategory {
		stats.Counts["memory_items:"+string(cat)] = n
	}

	docs, err := m.store.ListDocuments(ctx, metastore.ListFilter{Limit: 1 << 30})
	if err != nil {
		return nil, err
	}
	stats.Counts["documents"] = len(docs)

	pages, err := m.store.ListWebPages(ctx, metastore.ListFilter{Limit: 1 << 30})
	if err != nil {
		return nil, err
	}
	stats.Counts["web_pages"] = len(pages)

	return stats, nil
}

// OptimizeStorage delegates to the metadata store's Optimize and removes any
// leftover temp directories from interrupted backups.
func (m *Manager) OptimizeStorage(ctx context.Context) error {
	if err := m.store.Optimize(ctx); err != nil {
		return err
	}
	return m.cleanupTempDirs()
}

func (m *Manager) cleanupTempDirs() error {
	entries, err := os.ReadDir(m.cfg.BackupDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errorRegistry.NewWithCause(ErrBackupFailed, err)
	}
	for _, e := range entries {
		if e.IsDir() && filepath.Ext(e.Name()) == ".tmp" {
			if rmErr := os.RemoveAll(filepath.Join(m.cfg.BackupDir, e.Name())); rmErr != nil {
				logx.WithError(rmErr).WithField("dir", e.Name()).Warn("storagemgr: failed to remove stale temp dir")
			}
		}
	}
	return nil
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// dirSize walks path recursively, returning total bytes and file count.
func dirSize(path string) (int64, int, error) {
	var total int64
	var count int
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
			count++
		}
		return nil
	})
	return total, count, err
}

// timestampFormat is sortable and filesystem-safe.
const timestampFormat = "20060102T150405Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampFormat)
}

func marshalManifest(manifest backupManifest) ([]byte, error) {
	return json.MarshalIndent(manifest, "", "  ")
}

func readManifest(path string) (*backupManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errorRegistry.NewWithCause(ErrInvalidArtifact, err).WithDetail("path", path)
	}
	var manifest backupManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, errorRegistry.NewWithCause(ErrInvalidArtifact, err).WithDetail("path", path)
	}
	if manifest.Version != BackupFormatVersion {
		return nil, errorRegistry.NewWithMessage(ErrInvalidArtifact,
			fmt.Sprintf("unsupported backup format version %d", manifest.Version))
	}
	return &manifest, nil
}

func shouldExclude(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

// sortBackupsNewestFirst orders by timestamp string descending (the
// sortable format makes lexical order equal chronological order).
func sortBackupsNewestFirst(infos []BackupInfo) {
	sort.Slice(infos, func(i, j int) bool { return infos[i].Timestamp > infos[j].Timestamp })
}

// sealBytes/unsealBytes wrap cryptx.Seal/Unseal and centralize the "key
// configured?" check so backup.go/restore.go don't each repeat it.
func (m *Manager) sealBytes(plaintext []byte) ([]byte, error) {
	if len(m.key) == 0 {
		return nil, errorRegistry.NewWithMessage(ErrBackupFailed, "encryption requested but no master key is configured")
	}
	return cryptx.Seal(plaintext, m.key)
}

func (m *Manager) unsealBytes(ciphertext []byte) ([]byte, error) {
	if len(m.key) == 0 {
		return nil, errorRegistry.NewWithMessage(ErrRestoreFailed, "artifact is encrypted but no master key is configured")
	}
	return cryptx.Unseal(ciphertext, m.key)
}
