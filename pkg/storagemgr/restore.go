package storagemgr

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/abraxas-365/personal-ai-core/pkg/eventx"
)

// RestoreFromBackup is the reverse of CreateBackup: given
// a path previously returned by CreateBackup (a directory, a .zip, or a
// sealed .enc), reconstruct a usable staging tree, validate its
// metadata.json, then swap the metadata DB and the vector/documents
// directories in place. The metadata store is closed and reopened by
// Store.Restore itself (msqlite's close→rename→reopen idiom); this method
// never touches the live db file directly.
func (m *Manager) RestoreFromBackup(ctx context.Context, path string) error {
	stagingDir, cleanup, err := m.materializeArtifact(path)
	if err != nil {
		return err
	}
	defer cleanup()

	manifest, err := readManifest(filepath.Join(stagingDir, "metadata.json"))
	if err != nil {
		return err
	}

	dbSrc := filepath.Join(stagingDir, "personal_ai.db")
	if manifest.Contents.SQLite {
		if err := m.store.Restore(ctx, dbSrc); err != nil {
			return errorRegistry.NewWithCause(ErrRestoreFailed, err).WithDetail("component", "metadata")
		}
	}

	if manifest.Contents.Vector {
		vectorSrc := filepath.Join(stagingDir, "vectors")
		if err := swapDir(vectorSrc, m.cfg.VectorDir); err != nil {
			return errorRegistry.NewWithCause(ErrRestoreFailed, err).WithDetail("component", "vector")
		}
	}

	if manifest.Contents.Files && m.cfg.DocumentsDir != "" {
		documentsSrc := filepath.Join(stagingDir, "documents")
		if err := swapDir(documentsSrc, m.cfg.DocumentsDir); err != nil {
			return errorRegistry.NewWithCause(ErrRestoreFailed, err).WithDetail("component", "documents")
		}
	}

	m.publish(eventx.EventStorageBackupRestored, map[string]any{
		"path":      path,
		"timestamp": manifest.Timestamp,
	})
	return nil
}

// materializeArtifact resolves path to a plain staging directory
// containing metadata.json, decrypting and/or unzipping as needed. The
// returned cleanup removes any temp directory it created; callers must
// always invoke it.
func (m *Manager) materializeArtifact(path string) (string, func(), error) {
	noop := func() {}

	switch {
	case strings.HasSuffix(path, ".enc"):
		ciphertext, err := os.ReadFile(path)
		if err != nil {
			return "", noop, errorRegistry.NewWithCause(ErrInvalidArtifact, err)
		}
		plaintext, err := m.unsealBytes(ciphertext)
		if err != nil {
			return "", noop, err
		}
		tmpZip := path + ".decrypted.zip"
		if err := os.WriteFile(tmpZip, plaintext, 0o600); err != nil {
			return "", noop, errorRegistry.NewWithCause(ErrRestoreFailed, err)
		}
		defer os.Remove(tmpZip)
		stagingDir := strings.TrimSuffix(path, ".enc") + ".restore.tmp"
		if err := os.MkdirAll(stagingDir, 0o700); err != nil {
			return "", noop, errorRegistry.NewWithCause(ErrRestoreFailed, err)
		}
		if err := unzipDir(tmpZip, stagingDir); err != nil {
			os.RemoveAll(stagingDir)
			return "", noop, errorRegistry.NewWithCause(ErrInvalidArtifact, err)
		}
		return stagingDir, func() { os.RemoveAll(stagingDir) }, nil

	case strings.HasSuffix(path, ".zip"):
		stagingDir := strings.TrimSuffix(path, ".zip") + ".restore.tmp"
		if err := os.MkdirAll(stagingDir, 0o700); err != nil {
			return "", noop, errorRegistry.NewWithCause(ErrRestoreFailed, err)
		}
		if err := unzipDir(path, stagingDir); err != nil {
			os.RemoveAll(stagingDir)
			return "", noop, errorRegistry.NewWithCause(ErrInvalidArtifact, err)
		}
		return stagingDir, func() { os.RemoveAll(stagingDir) }, nil

	default:
		info, err := os.Stat(path)
		if err != nil {
			return "", noop, errorRegistry.NewWithCause(ErrNotFound, err)
		}
		if !info.IsDir() {
			return "", noop, errorRegistry.NewWithMessage(ErrInvalidArtifact, "artifact is neither a directory, .zip, nor .enc file")
		}
		return path, noop, nil
	}
}

// swapDir replaces dst's contents with src's: dst is moved aside, src is
// renamed into dst's place, and the old dst is removed only once the swap
// has succeeded, so a failed rename never leaves dst missing.
func swapDir(src, dst string) error {
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil
	}

	backup := dst + ".prerestore"
	os.RemoveAll(backup)

	if _, err := os.Stat(dst); err == nil {
		if err := os.Rename(dst, backup); err != nil {
			return err
		}
	}

	if err := os.Rename(src, dst); err != nil {
		// best-effort roll back
		os.Rename(backup, dst)
		return err
	}

	os.RemoveAll(backup)
	return nil
}
