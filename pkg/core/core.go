// Package core is the single programmatic surface external collaborators
// (an HTTP handler, a CLI, a voice front-end) call against. It is a thin
// façade: every method delegates to one of the subsystems wired in by the
// composition root, so a wrapper never has to know about the memory
// service, orchestrator, or storage manager individually.
package core

import (
	"context"
	"time"

	"github.com/abraxas-365/personal-ai-core/pkg/eventx"
	"github.com/abraxas-365/personal-ai-core/pkg/ingest"
	"github.com/abraxas-365/personal-ai-core/pkg/kernel"
	"github.com/abraxas-365/personal-ai-core/pkg/memory"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/metastore"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/model"
	"github.com/abraxas-365/personal-ai-core/pkg/orchestrator"
	"github.com/abraxas-365/personal-ai-core/pkg/storagemgr"
)

// Core wires every subsystem behind one entry-point surface. It holds no
// state of its own; everything is delegated to one of its collaborators.
type Core struct {
	Store        metastore.Store
	Memory       *memory.Service
	Orchestrator *orchestrator.Orchestrator
	Storage      *storagemgr.Manager
	Ingest       *ingest.Service
	Bus          *eventx.Bus
}

// New assembles a Core from its already-constructed collaborators. Building
// those collaborators (picking a metastore/vstore provider, loading the
// master key, constructing the llm.Router) is the composition root's job,
// not this package's.
func New(store metastore.Store, mem *memory.Service, orch *orchestrator.Orchestrator, storage *storagemgr.Manager, ing *ingest.Service, bus *eventx.Bus) *Core {
	return &Core{Store: store, Memory: mem, Orchestrator: orch, Storage: storage, Ingest: ing, Bus: bus}
}

// ProcessMessageResult carries the assistant reply plus the conversation
// it landed in (newly allocated when the caller passed nil).
type ProcessMessageResult struct {
	Response       string
	ConversationID kernel.ID
}

// ProcessMessage runs one full conversation turn: retrieve context,
// assemble a prompt, generate a reply, persist both messages.
func (c *Core) ProcessMessage(ctx context.Context, msg string, conversationID *kernel.ID) (*ProcessMessageResult, error) {
	resp, err := c.Orchestrator.ProcessMessage(ctx, msg, conversationID)
	if err != nil {
		return nil, err
	}
	return &ProcessMessageResult{Response: resp.Response, ConversationID: resp.ConversationID}, nil
}

// CreateConversation creates an empty conversation and returns it.
func (c *Core) CreateConversation(ctx context.Context) (*model.Conversation, error) {
	now := time.Now()
	conv := &model.Conversation{ID: kernel.NewID(), CreatedAt: now, UpdatedAt: now}
	if err := c.Store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (c *Core) GetConversation(ctx context.Context, id kernel.ID) (*model.Conversation, error) {
	return c.Store.GetConversation(ctx, id)
}

func (c *Core) UpdateConversation(ctx context.Context, conv *model.Conversation) error {
	conv.UpdatedAt = time.Now()
	return c.Store.UpdateConversation(ctx, conv)
}

// DeleteConversation cascades to every Message in the conversation.
// MemoryItems sourced from those messages are intentionally left in
// place: what the system learned can outlive the transcript that taught
// it, and a caller who wants both gone can walk GetBySource.
func (c *Core) DeleteConversation(ctx context.Context, id kernel.ID) error {
	return c.Store.DeleteConversation(ctx, id)
}

// GetConversationHistory returns Messages ascending by created_at.
func (c *Core) GetConversationHistory(ctx context.Context, conversationID kernel.ID, limit, offset int) ([]*model.Message, error) {
	return c.Store.ListMessages(ctx, conversationID, metastore.ListFilter{Limit: limit, Offset: offset})
}

// SummarizeConversation asks the model for a short summary of the
// conversation and writes it into the Conversation's summary field.
func (c *Core) SummarizeConversation(ctx context.Context, conversationID kernel.ID) (string, error) {
	return c.Orchestrator.SummarizeConversation(ctx, conversationID)
}

// StoreMemory persists a new memory item and indexes its embedding.
func (c *Core) StoreMemory(ctx context.Context, content string, category model.Category, sourceType model.SourceType, sourceID string, importance int, metadata map[string]any) (*model.MemoryItem, error) {
	return c.Memory.StoreMemory(ctx, content, category, sourceType, sourceID, importance, metadata)
}

func (c *Core) GetMemory(ctx context.Context, id kernel.ID) (*model.MemoryItem, error) {
	return c.Memory.GetMemory(ctx, id)
}

func (c *Core) UpdateMemory(ctx context.Context, item *model.MemoryItem) error {
	return c.Memory.UpdateMemory(ctx, item)
}

func (c *Core) DeleteMemory(ctx context.Context, id kernel.ID) error {
	return c.Memory.DeleteMemory(ctx, id)
}

// SearchMemory returns memory items ranked by the composite retrieval
// score, without the formatted context block.
func (c *Core) SearchMemory(ctx context.Context, query string, limit int, categories []model.Category, filters map[string]any) ([]*model.MemoryItem, error) {
	return c.Memory.SearchMemory(ctx, query, limit, categories, filters)
}

// RetrieveContext returns ranked memory items together with the
// formatted context block ready for prompt injection.
func (c *Core) RetrieveContext(ctx context.Context, query string, limit int, categories []model.Category, filters map[string]any, conversationID string) (*memory.RetrievalResult, error) {
	return c.Memory.RetrieveContext(ctx, query, limit, categories, filters, conversationID)
}

func (c *Core) GetByCategory(ctx context.Context, category model.Category, limit, offset int) ([]*model.MemoryItem, error) {
	return c.Memory.GetByCategory(ctx, category, limit, offset)
}

func (c *Core) GetBySource(ctx context.Context, sourceType model.SourceType, sourceID string, limit, offset int) ([]*model.MemoryItem, error) {
	return c.Memory.GetBySource(ctx, sourceType, sourceID, limit, offset)
}

func (c *Core) GetByImportance(ctx context.Context, min, limit, offset int) ([]*model.MemoryItem, error) {
	return c.Memory.GetByImportance(ctx, min, limit, offset)
}

func (c *Core) GetRecentMemories(ctx context.Context, limit int) ([]*model.MemoryItem, error) {
	return c.Memory.GetRecentMemories(ctx, limit)
}

// MarkAsImportant sets an item's importance; level validation in [1,5]
// is enforced by memory.Service.
func (c *Core) MarkAsImportant(ctx context.Context, id kernel.ID, level int) error {
	return c.Memory.MarkAsImportant(ctx, id, level)
}

func (c *Core) CountMemories(ctx context.Context) (int, error) {
	return c.Memory.CountMemories(ctx)
}

func (c *Core) CountByCategory(ctx context.Context) (map[model.Category]int, error) {
	return c.Memory.CountByCategory(ctx)
}

// CreateBackup snapshots the metadata store, vector store, and
// (optionally) user files into a single backup artifact.
func (c *Core) CreateBackup(ctx context.Context, opts storagemgr.BackupOptions) (*storagemgr.BackupResult, error) {
	return c.Storage.CreateBackup(ctx, opts)
}

func (c *Core) RestoreFromBackup(ctx context.Context, path string) error {
	return c.Storage.RestoreFromBackup(ctx, path)
}

func (c *Core) ListBackups() ([]storagemgr.BackupInfo, error) {
	return c.Storage.ListBackups()
}

func (c *Core) DeleteBackup(path string) error {
	return c.Storage.DeleteBackup(path)
}

// ExportData produces a human-portable JSON bundle of every entity,
// preserving ids. Vectors are excluded; they regenerate lazily.
func (c *Core) ExportData(ctx context.Context) (*storagemgr.ExportBundle, error) {
	return c.Storage.ExportData(ctx)
}

// ImportData loads a bundle; merge mode inserts only missing ids,
// replace mode drops existing rows first.
func (c *Core) ImportData(ctx context.Context, bundle *storagemgr.ExportBundle, mode storagemgr.ImportMode) error {
	return c.Storage.ImportData(ctx, bundle, mode)
}

func (c *Core) GetStorageStats(ctx context.Context) (*storagemgr.Stats, error) {
	return c.Storage.GetStorageStats(ctx)
}

func (c *Core) OptimizeStorage(ctx context.Context) error {
	return c.Storage.OptimizeStorage(ctx)
}

// GetUserSettings reads the singleton settings record.
func (c *Core) GetUserSettings(ctx context.Context) (*model.UserSettings, error) {
	return c.Store.GetUserSettings(ctx)
}

// UpdateUserSettings is the write half of the singleton read-modify-write:
// callers obtain settings via GetUserSettings first and mutate the
// returned value before calling this.
func (c *Core) UpdateUserSettings(ctx context.Context, settings *model.UserSettings) error {
	settings.Version++
	settings.UpdatedAt = time.Now()
	return c.Store.SaveUserSettings(ctx, settings)
}

// RegisterDocument and IngestDocumentChunks/RegisterWebPage/
// IngestWebContentChunks form the document/web ingestion consumer
// surface, delegated straight to pkg/ingest. Parsing and fetching happen
// upstream; this side only accepts already-extracted chunks.
func (c *Core) RegisterDocument(ctx context.Context, filename, fileType, storagePath string, metadata map[string]any) (*model.Document, error) {
	return c.Ingest.RegisterDocument(ctx, filename, fileType, storagePath, metadata)
}

func (c *Core) IngestDocumentChunks(ctx context.Context, documentID kernel.ID, chunks []ingest.ChunkInput) error {
	return c.Ingest.IngestDocumentChunks(ctx, documentID, chunks)
}

func (c *Core) RegisterWebPage(ctx context.Context, url, title string, metadata map[string]any) (*model.WebPage, error) {
	return c.Ingest.RegisterWebPage(ctx, url, title, metadata)
}

func (c *Core) IngestWebContentChunks(ctx context.Context, webPageID kernel.ID, chunks []ingest.ChunkInput) error {
	return c.Ingest.IngestWebContentChunks(ctx, webPageID, chunks)
}

// Shutdown publishes app:shutdown and closes the metadata store. Stopping
// new work first is the caller's responsibility — they own the
// listener/queue; the store is the only collaborator this package itself
// owns a Close for.
func (c *Core) Shutdown(ctx context.Context) error {
	if c.Bus != nil {
		c.Bus.Publish(eventx.EventAppShutdown, map[string]any{"time": time.Now().Format(time.RFC3339)})
	}
	return c.Store.Close()
}
