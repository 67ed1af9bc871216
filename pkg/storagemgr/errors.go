package storagemgr

import (
	"net/http"

	"github.com/abraxas-365/personal-ai-core/pkg/errx"
)

var errorRegistry = errx.NewRegistry("STORAGEMGR")

var (
	ErrBackupFailed = errorRegistry.Register(
		"BACKUP_FAILED", errx.TypeInternal, http.StatusInternalServerError, "failed to produce backup artifact",
	)
	ErrRestoreFailed = errorRegistry.Register(
		"RESTORE_FAILED", errx.TypeInternal, http.StatusInternalServerError, "failed to restore from backup artifact",
	)
	ErrInvalidArtifact = errorRegistry.Register(
		"INVALID_ARTIFACT", errx.TypeValidation, http.StatusBadRequest, "backup artifact is malformed or unreadable",
	)
	ErrNotFound = errorRegistry.Register(
		"BACKUP_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "backup artifact not found",
	)
	ErrExportFailed = errorRegistry.Register(
		"EXPORT_FAILED", errx.TypeInternal, http.StatusInternalServerError, "failed to export data",
	)
	ErrImportFailed = errorRegistry.Register(
		"IMPORT_FAILED", errx.TypeInternal, http.StatusInternalServerError, "failed to import data",
	)
)
