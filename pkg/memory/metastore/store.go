// Package metastore defines the relational persistence contract for
// every domain entity (Conversation, Message, MemoryItem,
// Document/DocumentChunk, WebPage/WebContentChunk, VectorEmbeddingRecord,
// UserSettings). Concrete providers (msqlite, mspostgres) implement
// Store; encryption of content fields is the provider's responsibility so
// it stays transparent to callers.
package metastore

import (
	"context"
	"net/http"
	"time"

	"github.com/abraxas-365/personal-ai-core/pkg/errx"
	"github.com/abraxas-365/personal-ai-core/pkg/kernel"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/model"
)

var errorRegistry = errx.NewRegistry("METASTORE")

var (
	ErrNotFound = errorRegistry.Register(
		"NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "entity not found",
	)
	ErrConstraintViolation = errorRegistry.Register(
		"CONSTRAINT_VIOLATION", errx.TypeValidation, http.StatusBadRequest, "entity violates a stored invariant",
	)
	ErrStorage = errorRegistry.Register(
		"STORAGE_IO", errx.TypeInternal, http.StatusInternalServerError, "metadata store I/O failure",
	)
	// ErrUnsupported marks an operation a particular backend cannot
	// perform directly (e.g. mspostgres.Backup, which defers to pg_dump).
	ErrUnsupported = errorRegistry.Register(
		"UNSUPPORTED", errx.TypeInternal, http.StatusNotImplemented, "operation not supported by this backend",
	)
)

// Unsupported builds an ErrUnsupported error tagged with a reason.
func Unsupported(reason string) *errx.Error {
	return errorRegistry.NewWithMessage(ErrUnsupported, reason)
}

// NotFound builds a Store-level NotFound error tagged with the entity kind.
func NotFound(entity string, id string) *errx.Error {
	return errorRegistry.New(ErrNotFound).WithDetail("entity", entity).WithDetail("id", id)
}

// ConstraintViolation builds a validation error for an out-of-range or
// out-of-set field value.
func ConstraintViolation(reason string) *errx.Error {
	return errorRegistry.NewWithMessage(ErrConstraintViolation, reason)
}

// Wrap tags a low-level I/O error as a StorageError.
func Wrap(err error, context string) *errx.Error {
	return errorRegistry.NewWithCause(ErrStorage, err).WithDetail("context", context)
}

// ListFilter is shared by every List method: filters are equality
// constraints, limit/offset paginate the deterministically ordered result.
type ListFilter struct {
	Limit  int
	Offset int
}

// MemoryItemFilter narrows MemoryItem listing/counting. Zero-valued fields
// are not applied.
type MemoryItemFilter struct {
	Category      model.Category
	SourceType    model.SourceType
	SourceID      string
	MinImportance int
	ConversationID string // matched against metadata["conversation_id"] when set
	Limit         int
	Offset        int
}

// Store is the full relational persistence contract. Every method is
// fail-atomic per call; deleting a Conversation, Document, or WebPage
// cascades to its children.
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, c *model.Conversation) error
	GetConversation(ctx context.Context, id kernel.ID) (*model.Conversation, error)
	UpdateConversation(ctx context.Context, c *model.Conversation) error
	// DeleteConversation cascades to delete every Message whose
	// conversation_id equals id.
	DeleteConversation(ctx context.Context, id kernel.ID) error
	ListConversations(ctx context.Context, f ListFilter) ([]*model.Conversation, error)
	CountConversations(ctx context.Context) (int, error)

	// Messages
	CreateMessage(ctx context.Context, m *model.Message) error
	GetMessage(ctx context.Context, id kernel.ID) (*model.Message, error)
	// ListMessages returns Messages for a conversation ordered ascending by
	// created_at.
	ListMessages(ctx context.Context, conversationID kernel.ID, f ListFilter) ([]*model.Message, error)
	CountMessages(ctx context.Context, conversationID kernel.ID) (int, error)

	// MemoryItems
	CreateMemoryItem(ctx context.Context, m *model.MemoryItem) error
	GetMemoryItem(ctx context.Context, id kernel.ID) (*model.MemoryItem, error)
	UpdateMemoryItem(ctx context.Context, m *model.MemoryItem) error
	DeleteMemoryItem(ctx context.Context, id kernel.ID) error
	// ListMemoryItems returns items ordered descending by created_at, also
	// when f narrows by importance.
	ListMemoryItems(ctx context.Context, f MemoryItemFilter) ([]*model.MemoryItem, error)
	GetMemoryItemsByIDs(ctx context.Context, ids []kernel.ID) ([]*model.MemoryItem, error)
	CountMemoryItems(ctx context.Context, f MemoryItemFilter) (int, error)
	CountMemoryItemsByCategory(ctx context.Context) (map[model.Category]int, error)

	// Documents
	CreateDocument(ctx context.Context, d *model.Document) error
	GetDocument(ctx context.Context, id kernel.ID) (*model.Document, error)
	UpdateDocument(ctx context.Context, d *model.Document) error
	DeleteDocument(ctx context.Context, id kernel.ID) error // cascades to DocumentChunks
	ListDocuments(ctx context.Context, f ListFilter) ([]*model.Document, error)

	CreateDocumentChunk(ctx context.Context, c *model.DocumentChunk) error
	ListDocumentChunks(ctx context.Context, documentID kernel.ID) ([]*model.DocumentChunk, error)

	// WebPages
	CreateWebPage(ctx context.Context, w *model.WebPage) error
	GetWebPage(ctx context.Context, id kernel.ID) (*model.WebPage, error)
	UpdateWebPage(ctx context.Context, w *model.WebPage) error
	DeleteWebPage(ctx context.Context, id kernel.ID) error // cascades to WebContentChunks
	ListWebPages(ctx context.Context, f ListFilter) ([]*model.WebPage, error)

	CreateWebContentChunk(ctx context.Context, c *model.WebContentChunk) error
	ListWebContentChunks(ctx context.Context, webPageID kernel.ID) ([]*model.WebContentChunk, error)

	// VectorEmbeddingRecords
	UpsertEmbeddingRecord(ctx context.Context, r *model.VectorEmbeddingRecord) error
	GetEmbeddingRecord(ctx context.Context, sourceType model.SourceType, sourceID string) (*model.VectorEmbeddingRecord, error)
	DeleteEmbeddingRecord(ctx context.Context, sourceType model.SourceType, sourceID string) error
	// ListUnindexedEmbeddingRecords returns up to limit records with
	// indexed=false, oldest first, for the memory service's self-healing pass.
	ListUnindexedEmbeddingRecords(ctx context.Context, limit int) ([]*model.VectorEmbeddingRecord, error)

	// UserSettings (singleton)
	GetUserSettings(ctx context.Context) (*model.UserSettings, error)
	SaveUserSettings(ctx context.Context, s *model.UserSettings) error

	// Maintenance
	Optimize(ctx context.Context) error
	Backup(ctx context.Context, path string) error
	Restore(ctx context.Context, path string) error
	Close() error
}

// now is overridable in tests that need deterministic timestamps.
var now = time.Now
