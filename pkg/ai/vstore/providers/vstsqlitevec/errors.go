package vstsqlitevec

import (
	"net/http"

	"github.com/abraxas-365/personal-ai-core/pkg/errx"
)

var errorRegistry = errx.NewRegistry("SQLITEVEC")

var (
	ErrStorage = errorRegistry.Register(
		"STORAGE_IO", errx.TypeInternal, http.StatusInternalServerError, "sqlite-vec store I/O failure",
	)
	ErrDimensionMismatch = errorRegistry.Register(
		"DIMENSION_MISMATCH", errx.TypeValidation, http.StatusBadRequest, "vector dimension does not match the store's configured dimension",
	)
)

func wrapStorage(err error) *errx.Error {
	return errorRegistry.NewWithCause(ErrStorage, err)
}

func dimensionMismatch(expected, got int) *errx.Error {
	return errorRegistry.New(ErrDimensionMismatch).WithDetail("expected", expected).WithDetail("got", got)
}
