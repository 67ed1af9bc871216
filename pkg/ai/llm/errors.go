package llm

import (
	"net/http"

	"github.com/abraxas-365/personal-ai-core/pkg/errx"
)

var (
	errorRegistry = errx.NewRegistry("LLM")

	ErrEmbeddingNotSupported = errorRegistry.Register(
		"EMBEDDING_NOT_SUPPORTED",
		errx.TypeValidation,
		http.StatusBadRequest,
		"model does not support embeddings",
	)

	ErrNoModelAvailable = errorRegistry.Register(
		"NO_MODEL_AVAILABLE",
		errx.TypeExternal,
		http.StatusServiceUnavailable,
		"no primary or fallback model is available",
	)

	// ErrAuth covers a rejected API key or expired credential. Not
	// retryable against the same provider, but the fallback model holds
	// its own credentials, so the router still tries it.
	ErrAuth = errorRegistry.Register(
		"AUTH",
		errx.TypeAuthorization,
		http.StatusUnauthorized,
		"provider rejected credentials",
	)

	// ErrRateLimited is retryable with backoff and triggers fallback once
	// retries are exhausted.
	ErrRateLimited = errorRegistry.Register(
		"RATE_LIMITED",
		errx.TypeUnavailable,
		http.StatusTooManyRequests,
		"provider rate limit exceeded",
	)

	// ErrServerError is the provider's own 5xx; retryable and triggers
	// fallback.
	ErrServerError = errorRegistry.Register(
		"SERVER_ERROR",
		errx.TypeUnavailable,
		http.StatusBadGateway,
		"provider returned a server error",
	)

	// ErrUnavailable covers a local model still loading or otherwise not
	// yet ready to serve.
	ErrUnavailable = errorRegistry.Register(
		"UNAVAILABLE",
		errx.TypeUnavailable,
		http.StatusServiceUnavailable,
		"model is not currently available",
	)

	// ErrInvalidRequest marks a malformed request (bad options, oversized
	// input). The Router's retry loop re-sends it like any other error,
	// but it never triggers fallback, since the fallback model would
	// reject it identically.
	ErrInvalidRequest = errorRegistry.Register(
		"INVALID_REQUEST",
		errx.TypeValidation,
		http.StatusBadRequest,
		"request rejected by provider as malformed",
	)
)

// ShouldFallback reports whether err reflects a provider/availability
// failure the Router should retry against a fallback model, as opposed to
// a validation error that would fail identically against any model.
func ShouldFallback(err error) bool {
	var customErr *errx.Error
	if !errx.As(err, &customErr) {
		// Unrecognized errors (network errors, context deadlines that
		// escaped retry, etc.) are treated as fallback-worthy: most such
		// failures are transient infrastructure problems, not programming
		// errors.
		return true
	}
	// Only validation failures are programming errors that would fail
	// identically against any model. Auth failures do fall back: the
	// fallback model holds its own credentials.
	return customErr.Type != errx.TypeValidation
}
