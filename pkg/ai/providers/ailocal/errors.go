package ailocal

import (
	"net/http"

	"github.com/abraxas-365/personal-ai-core/pkg/errx"
)

var (
	errorRegistry = errx.NewRegistry("LOCAL_LLM")

	// ErrNotLoaded reports a local model that is not loaded. Provider
	// itself does not return it: every call loads the engine on demand,
	// including the first call after Unload().
	ErrNotLoaded = errorRegistry.Register(
		"NOT_LOADED",
		errx.TypeUnavailable,
		http.StatusServiceUnavailable,
		"local model is not loaded",
	)

	ErrLoadFailed = errorRegistry.Register(
		"LOAD_FAILED",
		errx.TypeInternal,
		http.StatusInternalServerError,
		"failed to load local model weights",
	)

	ErrEmptyMessages = errorRegistry.Register(
		"EMPTY_MESSAGES",
		errx.TypeValidation,
		http.StatusBadRequest,
		"messages array cannot be empty",
	)

	ErrEmptyInput = errorRegistry.Register(
		"EMPTY_INPUT",
		errx.TypeValidation,
		http.StatusBadRequest,
		"embedding input cannot be empty",
	)
)
