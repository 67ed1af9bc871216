package memory_test

import (
	"context"
	"sort"
	"sync"

	"github.com/abraxas-365/personal-ai-core/pkg/kernel"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/metastore"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/model"
)

// fakeStore is a minimal in-memory metastore.Store for testing the
// memory service in isolation.
type fakeStore struct {
	mu         sync.Mutex
	items      map[kernel.ID]*model.MemoryItem
	embeddings map[string]*model.VectorEmbeddingRecord // key: sourceType|sourceID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		items:      map[kernel.ID]*model.MemoryItem{},
		embeddings: map[string]*model.VectorEmbeddingRecord{},
	}
}

func embKey(st model.SourceType, sid string) string { return string(st) + "|" + sid }

func (f *fakeStore) CreateMemoryItem(ctx context.Context, m *model.MemoryItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[m.ID] = m
	return nil
}

func (f *fakeStore) GetMemoryItem(ctx context.Context, id kernel.ID) (*model.MemoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.items[id]
	if !ok {
		return nil, metastore.NotFound("memory_item", id.String())
	}
	return m, nil
}

func (f *fakeStore) UpdateMemoryItem(ctx context.Context, m *model.MemoryItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[m.ID]; !ok {
		return metastore.NotFound("memory_item", m.ID.String())
	}
	f.items[m.ID] = m
	return nil
}

func (f *fakeStore) DeleteMemoryItem(ctx context.Context, id kernel.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	return nil
}

func (f *fakeStore) ListMemoryItems(ctx context.Context, flt metastore.MemoryItemFilter) ([]*model.MemoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.MemoryItem
	for _, m := range f.items {
		if flt.Category != "" && m.Category != flt.Category {
			continue
		}
		if flt.SourceType != "" && m.SourceType != flt.SourceType {
			continue
		}
		if flt.MinImportance > 0 && m.Importance < flt.MinImportance {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) GetMemoryItemsByIDs(ctx context.Context, ids []kernel.ID) ([]*model.MemoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.MemoryItem
	for _, id := range ids {
		if m, ok := f.items[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) CountMemoryItems(ctx context.Context, flt metastore.MemoryItemFilter) (int, error) {
	items, _ := f.ListMemoryItems(ctx, flt)
	return len(items), nil
}

func (f *fakeStore) CountMemoryItemsByCategory(ctx context.Context) (map[model.Category]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[model.Category]int{}
	for _, m := range f.items {
		out[m.Category]++
	}
	return out, nil
}

func (f *fakeStore) UpsertEmbeddingRecord(ctx context.Context, r *model.VectorEmbeddingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embeddings[embKey(r.SourceType, r.SourceID)] = r
	return nil
}

func (f *fakeStore) GetEmbeddingRecord(ctx context.Context, st model.SourceType, sid string) (*model.VectorEmbeddingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.embeddings[embKey(st, sid)]
	if !ok {
		return nil, metastore.NotFound("vector_embedding_record", sid)
	}
	return r, nil
}

func (f *fakeStore) DeleteEmbeddingRecord(ctx context.Context, st model.SourceType, sid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.embeddings, embKey(st, sid))
	return nil
}

func (f *fakeStore) ListUnindexedEmbeddingRecords(ctx context.Context, limit int) ([]*model.VectorEmbeddingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.VectorEmbeddingRecord
	for _, r := range f.embeddings {
		if !r.Indexed {
			out = append(out, r)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// The remainder of metastore.Store is unused by the memory service; stub it
// so fakeStore satisfies the interface.

func (f *fakeStore) CreateConversation(ctx context.Context, c *model.Conversation) error { return nil }
func (f *fakeStore) GetConversation(ctx context.Context, id kernel.ID) (*model.Conversation, error) {
	return nil, metastore.NotFound("conversation", id.String())
}
func (f *fakeStore) UpdateConversation(ctx context.Context, c *model.Conversation) error { return nil }
func (f *fakeStore) DeleteConversation(ctx context.Context, id kernel.ID) error          { return nil }
func (f *fakeStore) ListConversations(ctx context.Context, flt metastore.ListFilter) ([]*model.Conversation, error) {
	return nil, nil
}
func (f *fakeStore) CountConversations(ctx context.Context) (int, error) { return 0, nil }

func (f *fakeStore) CreateMessage(ctx context.Context, m *model.Message) error { return nil }
func (f *fakeStore) GetMessage(ctx context.Context, id kernel.ID) (*model.Message, error) {
	return nil, metastore.NotFound("message", id.String())
}
func (f *fakeStore) ListMessages(ctx context.Context, conversationID kernel.ID, flt metastore.ListFilter) ([]*model.Message, error) {
	return nil, nil
}
func (f *fakeStore) CountMessages(ctx context.Context, conversationID kernel.ID) (int, error) {
	return 0, nil
}

func (f *fakeStore) CreateDocument(ctx context.Context, d *model.Document) error { return nil }
func (f *fakeStore) GetDocument(ctx context.Context, id kernel.ID) (*model.Document, error) {
	return nil, metastore.NotFound("document", id.String())
}
func (f *fakeStore) UpdateDocument(ctx context.Context, d *model.Document) error { return nil }
func (f *fakeStore) DeleteDocument(ctx context.Context, id kernel.ID) error      { return nil }
func (f *fakeStore) ListDocuments(ctx context.Context, flt metastore.ListFilter) ([]*model.Document, error) {
	return nil, nil
}
func (f *fakeStore) CreateDocumentChunk(ctx context.Context, c *model.DocumentChunk) error {
	return nil
}
func (f *fakeStore) ListDocumentChunks(ctx context.Context, documentID kernel.ID) ([]*model.DocumentChunk, error) {
	return nil, nil
}

func (f *fakeStore) CreateWebPage(ctx context.Context, w *model.WebPage) error { return nil }
func (f *fakeStore) GetWebPage(ctx context.Context, id kernel.ID) (*model.WebPage, error) {
	return nil, metastore.NotFound("web_page", id.String())
}
func (f *fakeStore) UpdateWebPage(ctx context.Context, w *model.WebPage) error { return nil }
func (f *fakeStore) DeleteWebPage(ctx context.Context, id kernel.ID) error     { return nil }
func (f *fakeStore) ListWebPages(ctx context.Context, flt metastore.ListFilter) ([]*model.WebPage, error) {
	return nil, nil
}
func (f *fakeStore) CreateWebContentChunk(ctx context.Context, c *model.WebContentChunk) error {
	return nil
}
func (f *fakeStore) ListWebContentChunks(ctx context.Context, webPageID kernel.ID) ([]*model.WebContentChunk, error) {
	return nil, nil
}

func (f *fakeStore) GetUserSettings(ctx context.Context) (*model.UserSettings, error) {
	s := model.DefaultUserSettings()
	return &s, nil
}
func (f *fakeStore) SaveUserSettings(ctx context.Context, s *model.UserSettings) error { return nil }

func (f *fakeStore) Optimize(ctx context.Context) error              { return nil }
func (f *fakeStore) Backup(ctx context.Context, path string) error   { return nil }
func (f *fakeStore) Restore(ctx context.Context, path string) error  { return nil }
func (f *fakeStore) Close() error                                    { return nil }
