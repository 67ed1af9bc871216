package memory

import (
	"net/http"

	"github.com/abraxas-365/personal-ai-core/pkg/errx"
)

var errorRegistry = errx.NewRegistry("MEMORY")

var (
	ErrInvalidCategory = errorRegistry.Register(
		"INVALID_CATEGORY", errx.TypeValidation, http.StatusBadRequest, "category is not one of the fixed set",
	)
	ErrInvalidImportance = errorRegistry.Register(
		"INVALID_IMPORTANCE", errx.TypeValidation, http.StatusBadRequest, "importance must be in [1,5]",
	)
	ErrNotFound = errorRegistry.Register(
		"NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "memory item not found",
	)
)

func invalidCategory(c string) *errx.Error {
	return errorRegistry.New(ErrInvalidCategory).WithDetail("category", c)
}

func invalidImportance(v int) *errx.Error {
	return errorRegistry.New(ErrInvalidImportance).WithDetail("importance", v)
}

func notFound(id string) *errx.Error {
	return errorRegistry.New(ErrNotFound).WithDetail("id", id)
}
