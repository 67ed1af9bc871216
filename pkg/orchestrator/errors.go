package orchestrator

import (
	"net/http"

	"github.com/abraxas-365/personal-ai-core/pkg/errx"
)

var errorRegistry = errx.NewRegistry("ORCHESTRATOR")

var (
	ErrConversationNotFound = errorRegistry.Register(
		"CONVERSATION_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "conversation not found",
	)
	ErrLLM = errorRegistry.Register(
		"LLM_FAILURE", errx.TypeExternal, http.StatusBadGateway, "router call failed",
	)
)

func conversationNotFound(id string) *errx.Error {
	return errorRegistry.New(ErrConversationNotFound).WithDetail("id", id)
}

func wrapLLM(err error) *errx.Error {
	return errorRegistry.NewWithCause(ErrLLM, err)
}
