package storagemgr_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abraxas-365/personal-ai-core/pkg/kernel"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/model"
	"github.com/abraxas-365/personal-ai-core/pkg/storagemgr"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func newTestManager(t *testing.T) (*storagemgr.Manager, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := storagemgr.Config{
		MetadataDBPath: filepath.Join(dir, "personal_ai.db"),
		VectorDir:      filepath.Join(dir, "vectors"),
		DocumentsDir:   filepath.Join(dir, "documents"),
		BackupDir:      filepath.Join(dir, "backups"),
	}
	return storagemgr.New(nil, nil, nil, nil, cfg), dir
}

// newTestManagerWithStore is newTestManager plus a live fakeStore, for tests
// that exercise CreateBackup/RestoreFromBackup/ExportData/ImportData rather
// than only the pure-filesystem retention helpers.
func newTestManagerWithStore(t *testing.T) (*storagemgr.Manager, *fakeStore, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := storagemgr.Config{
		MetadataDBPath: filepath.Join(dir, "personal_ai.db"),
		VectorDir:      filepath.Join(dir, "vectors"),
		DocumentsDir:   filepath.Join(dir, "documents"),
		BackupDir:      filepath.Join(dir, "backups"),
	}
	store := newFakeStore()
	return storagemgr.New(store, nil, nil, nil, cfg), store, dir
}

func TestListBackupsEmptyDir(t *testing.T) {
	mgr, _ := newTestManager(t)
	backups, err := mgr.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups on a missing dir should not error: %v", err)
	}
	if len(backups) != 0 {
		t.Fatalf("expected no backups, got %d", len(backups))
	}
}

func TestListBackupsSkipsTempDirsAndOrdersNewestFirst(t *testing.T) {
	mgr, dir := newTestManager(t)
	backupDir := filepath.Join(dir, "backups")

	older := "20260101T000000Z"
	newer := "20260201T000000Z"
	for _, ts := range []string{older, newer} {
		if err := os.MkdirAll(filepath.Join(backupDir, ts), 0o700); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(filepath.Join(backupDir, "20260301T000000Z.tmp"), 0o700); err != nil {
		t.Fatal(err)
	}

	backups, err := mgr.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(backups) != 2 {
		t.Fatalf("expected 2 backups (temp dir excluded), got %d", len(backups))
	}
	if backups[0].Timestamp != newer || backups[1].Timestamp != older {
		t.Fatalf("expected newest-first ordering, got %+v", backups)
	}
}

func TestDeleteBackupRefusesPathOutsideBackupDir(t *testing.T) {
	mgr, dir := newTestManager(t)
	outside := filepath.Join(dir, "not-a-backup")
	if err := os.MkdirAll(outside, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := mgr.DeleteBackup(outside); err == nil {
		t.Fatal("expected DeleteBackup to refuse a path outside BackupDir")
	}
}

func TestDeleteBackupRemovesArtifact(t *testing.T) {
	mgr, dir := newTestManager(t)
	backupDir := filepath.Join(dir, "backups")
	target := filepath.Join(backupDir, "20260101T000000Z")
	if err := os.MkdirAll(target, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := mgr.DeleteBackup(target); err != nil {
		t.Fatalf("DeleteBackup: %v", err)
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Fatal("expected backup directory to be removed")
	}
}

func TestCleanupOldBackupsEnforcesMaxCount(t *testing.T) {
	mgr, dir := newTestManager(t)
	backupDir := filepath.Join(dir, "backups")
	timestamps := []string{
		"20260101T000000Z",
		"20260102T000000Z",
		"20260103T000000Z",
	}
	for _, ts := range timestamps {
		if err := os.MkdirAll(filepath.Join(backupDir, ts), 0o700); err != nil {
			t.Fatal(err)
		}
	}

	if err := mgr.CleanupOldBackups(nil, 1, 0); err != nil {
		t.Fatalf("CleanupOldBackups: %v", err)
	}

	remaining, err := mgr.ListBackups()
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected 1 backup to remain, got %d", len(remaining))
	}
	if remaining[0].Timestamp != "20260103T000000Z" {
		t.Fatalf("expected the newest backup to survive, got %s", remaining[0].Timestamp)
	}
}

func TestCleanupOldBackupsEnforcesMaxAge(t *testing.T) {
	mgr, dir := newTestManager(t)
	backupDir := filepath.Join(dir, "backups")

	old := time.Now().Add(-48 * time.Hour)
	fresh := time.Now().Add(-1 * time.Minute)
	oldTS := old.UTC().Format("20060102T150405Z")
	freshTS := fresh.UTC().Format("20060102T150405Z")

	for _, ts := range []string{oldTS, freshTS} {
		if err := os.MkdirAll(filepath.Join(backupDir, ts), 0o700); err != nil {
			t.Fatal(err)
		}
	}

	if err := mgr.CleanupOldBackups(nil, 0, 24*time.Hour); err != nil {
		t.Fatalf("CleanupOldBackups: %v", err)
	}

	remaining, err := mgr.ListBackups()
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 || remaining[0].Timestamp != freshTS {
		t.Fatalf("expected only the fresh backup to survive, got %+v", remaining)
	}
}

func seedMemoryItem(t *testing.T, store *fakeStore, content string, importance int) *model.MemoryItem {
	t.Helper()
	item := &model.MemoryItem{
		ID:         kernel.NewID(),
		Content:    content,
		Category:   model.CategoryUserDefined,
		Importance: importance,
		CreatedAt:  time.Now(),
	}
	if err := store.CreateMemoryItem(context.Background(), item); err != nil {
		t.Fatal(err)
	}
	return item
}

func TestCreateBackupProducesListableArtifact(t *testing.T) {
	mgr, store, _ := newTestManagerWithStore(t)
	seedMemoryItem(t, store, "remember the wifi password", 3)

	result, err := mgr.CreateBackup(context.Background(), storagemgr.BackupOptions{})
	if err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}
	if result.Encrypted {
		t.Fatal("expected an unencrypted backup by default")
	}
	if _, err := os.Stat(result.Path); err != nil {
		t.Fatalf("expected the backup artifact to exist on disk: %v", err)
	}
	if _, err := os.Stat(filepath.Join(result.Path, "metadata.json")); err != nil {
		t.Fatalf("expected metadata.json inside the backup: %v", err)
	}
	if _, err := os.Stat(filepath.Join(result.Path, "personal_ai.db")); err != nil {
		t.Fatalf("expected a metadata db snapshot inside the backup: %v", err)
	}

	backups, err := mgr.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(backups) != 1 {
		t.Fatalf("expected 1 backup, got %d", len(backups))
	}
}

func TestCreateBackupLeavesNoStagingDirOnSuccess(t *testing.T) {
	mgr, store, dir := newTestManagerWithStore(t)
	seedMemoryItem(t, store, "note", 1)

	if _, err := mgr.CreateBackup(context.Background(), storagemgr.BackupOptions{}); err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "backups"))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Fatalf("expected no leftover staging dir, found %s", e.Name())
		}
	}
}

func TestRestoreFromBackupRoundTripsMetadataStore(t *testing.T) {
	mgr, store, _ := newTestManagerWithStore(t)
	item := seedMemoryItem(t, store, "my dog's name is Buddy", 4)

	result, err := mgr.CreateBackup(context.Background(), storagemgr.BackupOptions{})
	if err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}

	// Mutate the live store after the backup, then restore and confirm the
	// pre-backup state comes back.
	if err := store.DeleteMemoryItem(context.Background(), item.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetMemoryItem(context.Background(), item.ID); err == nil {
		t.Fatal("expected the item to be gone before restoring")
	}

	if err := mgr.RestoreFromBackup(context.Background(), result.Path); err != nil {
		t.Fatalf("RestoreFromBackup: %v", err)
	}

	restored, err := store.GetMemoryItem(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("expected the memory item to reappear after restore: %v", err)
	}
	if restored.Content != "my dog's name is Buddy" {
		t.Fatalf("unexpected restored content: %q", restored.Content)
	}
}

func TestRestoreFromBackupRejectsUnknownArtifact(t *testing.T) {
	mgr, _, dir := newTestManagerWithStore(t)
	missing := filepath.Join(dir, "does-not-exist")
	if err := mgr.RestoreFromBackup(context.Background(), missing); err == nil {
		t.Fatal("expected an error restoring a nonexistent artifact")
	}
}

func TestExportDataRoundTripsThroughImportMerge(t *testing.T) {
	mgr, store, _ := newTestManagerWithStore(t)
	seedMemoryItem(t, store, "item one", 2)
	seedMemoryItem(t, store, "item two", 5)

	bundle, err := mgr.ExportData(context.Background())
	if err != nil {
		t.Fatalf("ExportData: %v", err)
	}
	if len(bundle.MemoryItems) != 2 {
		t.Fatalf("expected 2 exported memory items, got %d", len(bundle.MemoryItems))
	}

	// Re-importing the same bundle in merge mode must not duplicate rows:
	// every id is already present.
	if err := mgr.ImportData(context.Background(), bundle, storagemgr.ImportMerge); err != nil {
		t.Fatalf("ImportData: %v", err)
	}
	after, err := mgr.ExportData(context.Background())
	if err != nil {
		t.Fatalf("ExportData (after merge import): %v", err)
	}
	if len(after.MemoryItems) != 2 {
		t.Fatalf("expected merge import to leave 2 memory items, got %d", len(after.MemoryItems))
	}
}

func TestImportDataReplaceModeClearsExistingRows(t *testing.T) {
	mgr, store, _ := newTestManagerWithStore(t)
	seedMemoryItem(t, store, "will be replaced", 1)

	bundle := &storagemgr.ExportBundle{
		Version: storagemgr.BackupFormatVersion,
		MemoryItems: []*model.MemoryItem{
			{ID: kernel.NewID(), Content: "replacement item", Category: model.CategoryUserDefined, Importance: 3, CreatedAt: time.Now()},
		},
	}

	if err := mgr.ImportData(context.Background(), bundle, storagemgr.ImportReplace); err != nil {
		t.Fatalf("ImportData (replace): %v", err)
	}

	after, err := mgr.ExportData(context.Background())
	if err != nil {
		t.Fatalf("ExportData: %v", err)
	}
	if len(after.MemoryItems) != 1 || after.MemoryItems[0].Content != "replacement item" {
		t.Fatalf("expected replace mode to leave only the new item, got %+v", after.MemoryItems)
	}
}
