package storagemgr

import (
	"context"
	"encoding/json"
	"time"

	"github.com/abraxas-365/personal-ai-core/pkg/kernel"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/metastore"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/model"
)

// exportPageSize is the page size ExportData uses when listing memory
// items; the assembled ExportBundle still holds every row in memory.
const exportPageSize = 500

// ExportBundle is the JSON-serializable payload of ExportData/ImportData.
// Vectors are intentionally excluded: a restore
// re-embeds via the memory service's self-healing path rather than
// shipping raw float slices across an export boundary.
type ExportBundle struct {
	Version       int                      `json:"version"`
	Conversations []*model.Conversation    `json:"conversations"`
	Messages      []*model.Message         `json:"messages"`
	MemoryItems   []*model.MemoryItem      `json:"memory_items"`
	Documents     []*model.Document        `json:"documents"`
	DocumentChunks []*model.DocumentChunk  `json:"document_chunks"`
	WebPages      []*model.WebPage         `json:"web_pages"`
	WebChunks     []*model.WebContentChunk `json:"web_chunks"`
}

// ImportMode selects how ImportData reconciles an ExportBundle against
// existing rows.
type ImportMode int

const (
	// ImportMerge inserts only entities whose id is not already present.
	ImportMerge ImportMode = iota
	// ImportReplace deletes every existing row of each entity type
	// present in the bundle before inserting the bundle's rows.
	ImportReplace
)

// ExportData walks every entity table to produce a full ExportBundle.
func (m *Manager) ExportData(ctx context.Context) (*ExportBundle, error) {
	bundle := &ExportBundle{Version: BackupFormatVersion}

	convs, err := m.store.ListConversations(ctx, metastore.ListFilter{Limit: 1 << 30})
	if err != nil {
		return nil, errorRegistry.NewWithCause(ErrExportFailed, err).WithDetail("entity", "conversations")
	}
	bundle.Conversations = convs
	for _, c := range convs {
		msgs, err := m.store.ListMessages(ctx, c.ID, metastore.ListFilter{Limit: 1 << 30})
		if err != nil {
			return nil, errorRegistry.NewWithCause(ErrExportFailed, err).WithDetail("entity", "messages")
		}
		bundle.Messages = append(bundle.Messages, msgs...)
	}

	offset := 0
	for {
		page, err := m.store.ListMemoryItems(ctx, metastore.MemoryItemFilter{Limit: exportPageSize, Offset: offset})
		if err != nil {
			return nil, errorRegistry.NewWithCause(ErrExportFailed, err).WithDetail("entity", "memory_items")
		}
		bundle.MemoryItems = append(bundle.MemoryItems, page...)
		if len(page) < exportPageSize {
			break
		}
		offset += exportPageSize
	}

	docs, err := m.store.ListDocuments(ctx, metastore.ListFilter{Limit: 1 << 30})
	if err != nil {
		return nil, errorRegistry.NewWithCause(ErrExportFailed, err).WithDetail("entity", "documents")
	}
	bundle.Documents = docs
	for _, d := range docs {
		chunks, err := m.store.ListDocumentChunks(ctx, d.ID)
		if err != nil {
			return nil, errorRegistry.NewWithCause(ErrExportFailed, err).WithDetail("entity", "document_chunks")
		}
		bundle.DocumentChunks = append(bundle.DocumentChunks, chunks...)
	}

	pages, err := m.store.ListWebPages(ctx, metastore.ListFilter{Limit: 1 << 30})
	if err != nil {
		return nil, errorRegistry.NewWithCause(ErrExportFailed, err).WithDetail("entity", "web_pages")
	}
	bundle.WebPages = pages
	for _, w := range pages {
		chunks, err := m.store.ListWebContentChunks(ctx, w.ID)
		if err != nil {
			return nil, errorRegistry.NewWithCause(ErrExportFailed, err).WithDetail("entity", "web_chunks")
		}
		bundle.WebChunks = append(bundle.WebChunks, chunks...)
	}

	return bundle, nil
}

// ExportDataJSON is ExportData marshaled to indented JSON, the shape
// external collaborators actually write to disk or ship over a transport.
func (m *Manager) ExportDataJSON(ctx context.Context) ([]byte, error) {
	bundle, err := m.ExportData(ctx)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(bundle, "", "  ")
}

// ImportData reconciles bundle into the live store per mode.
func (m *Manager) ImportData(ctx context.Context, bundle *ExportBundle, mode ImportMode) error {
	if mode == ImportReplace {
		if err := m.replaceClear(ctx, bundle); err != nil {
			return err
		}
	}

	existingConvs := map[string]bool{}
	if mode == ImportMerge {
		convs, err := m.store.ListConversations(ctx, metastore.ListFilter{Limit: 1 << 30})
		if err != nil {
			return errorRegistry.NewWithCause(ErrImportFailed, err)
		}
		for _, c := range convs {
			existingConvs[c.ID.String()] = true
		}
	}

	for _, c := range bundle.Conversations {
		if existingConvs[c.ID.String()] {
			continue
		}
		if err := m.store.CreateConversation(ctx, c); err != nil {
			return errorRegistry.NewWithCause(ErrImportFailed, err).WithDetail("entity", "conversation").WithDetail("id", c.ID.String())
		}
	}
	for _, msg := range bundle.Messages {
		if _, err := m.store.GetMessage(ctx, msg.ID); err == nil {
			continue
		}
		if err := m.store.CreateMessage(ctx, msg); err != nil {
			return errorRegistry.NewWithCause(ErrImportFailed, err).WithDetail("entity", "message").WithDetail("id", msg.ID.String())
		}
	}
	for _, mi := range bundle.MemoryItems {
		if _, err := m.store.GetMemoryItem(ctx, mi.ID); err == nil {
			continue
		}
		if err := m.store.CreateMemoryItem(ctx, mi); err != nil {
			return errorRegistry.NewWithCause(ErrImportFailed, err).WithDetail("entity", "memory_item").WithDetail("id", mi.ID.String())
		}
		// An unindexed crosswalk record queues the item for self-heal re-embedding.
		rec := &model.VectorEmbeddingRecord{
			ID: kernel.NewID(), SourceType: model.EmbeddingSourceMemoryItem, SourceID: mi.ID.String(), CreatedAt: time.Now(),
		}
		if err := m.store.UpsertEmbeddingRecord(ctx, rec); err != nil {
			return errorRegistry.NewWithCause(ErrImportFailed, err).WithDetail("entity", "vector_embedding_record").WithDetail("id", mi.ID.String())
		}
	}
	for _, d := range bundle.Documents {
		if _, err := m.store.GetDocument(ctx, d.ID); err == nil {
			continue
		}
		if err := m.store.CreateDocument(ctx, d); err != nil {
			return errorRegistry.NewWithCause(ErrImportFailed, err).WithDetail("entity", "document").WithDetail("id", d.ID.String())
		}
	}
	for _, c := range bundle.DocumentChunks {
		if err := m.store.CreateDocumentChunk(ctx, c); err != nil {
			return errorRegistry.NewWithCause(ErrImportFailed, err).WithDetail("entity", "document_chunk").WithDetail("id", c.ID.String())
		}
	}
	for _, w := range bundle.WebPages {
		if _, err := m.store.GetWebPage(ctx, w.ID); err == nil {
			continue
		}
		if err := m.store.CreateWebPage(ctx, w); err != nil {
			return errorRegistry.NewWithCause(ErrImportFailed, err).WithDetail("entity", "web_page").WithDetail("id", w.ID.String())
		}
	}
	for _, c := range bundle.WebChunks {
		if err := m.store.CreateWebContentChunk(ctx, c); err != nil {
			return errorRegistry.NewWithCause(ErrImportFailed, err).WithDetail("entity", "web_chunk").WithDetail("id", c.ID.String())
		}
	}

	return nil
}

// replaceClear deletes every existing row of each entity type the bundle
// touches, so ImportReplace starts from a clean slate. Deleting
// Conversations/Documents/WebPages cascades to their children per the
// Store contract.
func (m *Manager) replaceClear(ctx context.Context, bundle *ExportBundle) error {
	if len(bundle.Conversations) > 0 {
		existing, err := m.store.ListConversations(ctx, metastore.ListFilter{Limit: 1 << 30})
		if err != nil {
			return errorRegistry.NewWithCause(ErrImportFailed, err)
		}
		for _, c := range existing {
			if err := m.store.DeleteConversation(ctx, c.ID); err != nil {
				return errorRegistry.NewWithCause(ErrImportFailed, err)
			}
		}
	}
	if len(bundle.MemoryItems) > 0 {
		existing, err := m.store.ListMemoryItems(ctx, metastore.MemoryItemFilter{Limit: 1 << 30})
		if err != nil {
			return errorRegistry.NewWithCause(ErrImportFailed, err)
		}
		for _, mi := range existing {
			if err := m.store.DeleteMemoryItem(ctx, mi.ID); err != nil {
				return errorRegistry.NewWithCause(ErrImportFailed, err)
			}
		}
	}
	if len(bundle.Documents) > 0 {
		existing, err := m.store.ListDocuments(ctx, metastore.ListFilter{Limit: 1 << 30})
		if err != nil {
			return errorRegistry.NewWithCause(ErrImportFailed, err)
		}
		for _, d := range existing {
			if err := m.store.DeleteDocument(ctx, d.ID); err != nil {
				return errorRegistry.NewWithCause(ErrImportFailed, err)
			}
		}
	}
	if len(bundle.WebPages) > 0 {
		existing, err := m.store.ListWebPages(ctx, metastore.ListFilter{Limit: 1 << 30})
		if err != nil {
			return errorRegistry.NewWithCause(ErrImportFailed, err)
		}
		for _, w := range existing {
			if err := m.store.DeleteWebPage(ctx, w.ID); err != nil {
				return errorRegistry.NewWithCause(ErrImportFailed, err)
			}
		}
	}
	return nil
}
