package storagemgr

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/abraxas-365/personal-ai-core/pkg/eventx"
)

// BackupOptions tunes a single CreateBackup call.
type BackupOptions struct {
	// Encrypt seals the artifact with the manager's master key. Falls back
	// to cfg.EncryptByDefault when nil.
	Encrypt *bool
	// Zip packages the staged directory into a single .zip artifact
	// instead of leaving it as a directory tree.
	Zip bool
}

// BackupResult names the artifact CreateBackup produced.
type BackupResult struct {
	Path      string
	Timestamp string
	Encrypted bool
}

// CreateBackup stages a snapshot of the metadata DB, vector directory,
// and documents directory under BackupDir/<timestamp>.tmp, writes
// metadata.json, then atomically renames into place. Zipping and sealing
// are optional follow-on steps applied before the artifact becomes
// listable, so a reader never observes a partial artifact.
func (m *Manager) CreateBackup(ctx context.Context, opts BackupOptions) (*BackupResult, error) {
	encrypt := m.cfg.EncryptByDefault
	if opts.Encrypt != nil {
		encrypt = *opts.Encrypt
	}

	ts := formatTimestamp(time.Now())
	stagingDir := filepath.Join(m.cfg.BackupDir, ts+".tmp")
	finalDir := filepath.Join(m.cfg.BackupDir, ts)

	if err := os.MkdirAll(stagingDir, 0o700); err != nil {
		return nil, errorRegistry.NewWithCause(ErrBackupFailed, err)
	}
	// cleanup on any failure path below; a successful run renames
	// stagingDir away so this becomes a no-op.
	succeeded := false
	defer func() {
		if !succeeded {
			os.RemoveAll(stagingDir)
		}
	}()

	dbDest := filepath.Join(stagingDir, "personal_ai.db")
	if err := m.store.Backup(ctx, dbDest); err != nil {
		return nil, errorRegistry.NewWithCause(ErrBackupFailed, err).WithDetail("component", "metadata")
	}

	vectorDest := filepath.Join(stagingDir, "vectors")
	if err := copyDirFiltered(m.cfg.VectorDir, vectorDest, nil); err != nil {
		return nil, errorRegistry.NewWithCause(ErrBackupFailed, err).WithDetail("component", "vector")
	}

	filesIncluded := false
	fileCount := 0
	var fileSize int64
	if m.cfg.DocumentsDir != "" {
		documentsDest := filepath.Join(stagingDir, "documents")
		if err := copyDirFiltered(m.cfg.DocumentsDir, documentsDest, m.cfg.ExcludePatterns); err != nil {
			return nil, errorRegistry.NewWithCause(ErrBackupFailed, err).WithDetail("component", "documents")
		}
		filesIncluded = true
		fileSize, fileCount, _ = dirSize(documentsDest)
	}

	manifest := backupManifest{
		Timestamp: ts,
		Version:   BackupFormatVersion,
		Contents: contentsManifest{
			SQLite:    true,
			Vector:    true,
			Files:     filesIncluded,
			FileCount: fileCount,
			FileSize:  fileSize,
		},
		Encrypted: encrypt,
	}
	manifestBytes, err := marshalManifest(manifest)
	if err != nil {
		return nil, errorRegistry.NewWithCause(ErrBackupFailed, err)
	}
	if err := os.WriteFile(filepath.Join(stagingDir, "metadata.json"), manifestBytes, 0o600); err != nil {
		return nil, errorRegistry.NewWithCause(ErrBackupFailed, err)
	}

	// WRITTEN: staging tree is complete. Promote to its final listable
	// name, optionally wrapping it as a single sealed or zipped artifact.
	if err := os.Rename(stagingDir, finalDir); err != nil {
		return nil, errorRegistry.NewWithCause(ErrBackupFailed, err)
	}
	succeeded = true

	resultPath := finalDir
	if opts.Zip {
		zipPath := finalDir + ".zip"
		if err := zipDir(finalDir, zipPath); err != nil {
			return nil, errorRegistry.NewWithCause(ErrBackupFailed, err).WithDetail("stage", "zip")
		}
		os.RemoveAll(finalDir)
		resultPath = zipPath
	}

	if encrypt {
		sealedPath, err := m.sealArtifact(resultPath)
		if err != nil {
			return nil, err
		}
		if resultPath != sealedPath {
			if resultPath == finalDir {
				os.RemoveAll(resultPath)
			} else {
				os.Remove(resultPath)
			}
		}
		resultPath = sealedPath
	}

	m.publish(eventx.EventStorageBackupCreated, map[string]any{
		"path":      resultPath,
		"timestamp": ts,
		"encrypted": encrypt,
	})

	return &BackupResult{Path: resultPath, Timestamp: ts, Encrypted: encrypt}, nil
}

// sealArtifact encrypts a file or directory tree (zipping it first if it
// is a directory) into a single <name>.enc file.
func (m *Manager) sealArtifact(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", errorRegistry.NewWithCause(ErrBackupFailed, err)
	}

	srcPath := path
	if info.IsDir() {
		tmpZip := path + ".zip"
		if err := zipDir(path, tmpZip); err != nil {
			return "", errorRegistry.NewWithCause(ErrBackupFailed, err).WithDetail("stage", "zip-before-seal")
		}
		srcPath = tmpZip
		defer os.Remove(tmpZip)
	}

	plaintext, err := os.ReadFile(srcPath)
	if err != nil {
		return "", errorRegistry.NewWithCause(ErrBackupFailed, err)
	}
	ciphertext, err := m.sealBytes(plaintext)
	if err != nil {
		return "", err
	}
	encPath := path + ".enc"
	if err := os.WriteFile(encPath, ciphertext, 0o600); err != nil {
		return "", errorRegistry.NewWithCause(ErrBackupFailed, err)
	}
	return encPath, nil
}

// copyDirFiltered recursively copies src into dst, skipping any entry whose
// base name matches one of excludePatterns.
func copyDirFiltered(src, dst string, excludePatterns []string) error {
	info, err := os.Stat(src)
	if os.IsNotExist(err) {
		return os.MkdirAll(dst, 0o700)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(src, dst, info.Mode())
	}

	if err := os.MkdirAll(dst, 0o700); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if shouldExclude(e.Name(), excludePatterns) {
			continue
		}
		srcPath := filepath.Join(src, e.Name())
		dstPath := filepath.Join(dst, e.Name())
		if e.IsDir() {
			if err := copyDirFiltered(srcPath, dstPath, excludePatterns); err != nil {
				return err
			}
			continue
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		if err := copyFile(srcPath, dstPath, info.Mode()); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// zipDir packages dir's tree into a single zip artifact at destZip.
func zipDir(dir, destZip string) error {
	out, err := os.Create(destZip)
	if err != nil {
		return err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	defer zw.Close()

	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(rel)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
}

// unzipDir extracts a zip artifact produced by zipDir into destDir.
func unzipDir(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		destPath := filepath.Join(destDir, f.Name)
		if !isWithinDir(destDir, destPath) {
			return errorRegistry.NewWithMessage(ErrInvalidArtifact, "zip entry escapes destination directory: "+f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0o700); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(destPath), 0o700); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, f.Mode())
		if err != nil {
			rc.Close()
			return err
		}
		_, err = io.Copy(out, rc)
		rc.Close()
		out.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func isWithinDir(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel != ".." && !filepathHasDotDotPrefix(rel)
}

func filepathHasDotDotPrefix(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}
