package storagemgr_test

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/abraxas-365/personal-ai-core/pkg/kernel"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/metastore"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/model"
)

// fakeStore is a full in-memory metastore.Store, fleshed out beyond
// pkg/memory's test double to cover every entity export_data/import_data and
// backup/restore touch. Backup/Restore round-trip the whole state through a
// JSON snapshot file, mirroring the shape (not the format) of msqlite's
// close-dump-file/reopen idiom closely enough to exercise storagemgr's
// staging/rename control flow against a real file on disk.
type fakeStore struct {
	mu sync.Mutex

	conversations map[kernel.ID]*model.Conversation
	messages      map[kernel.ID]*model.Message
	memoryItems   map[kernel.ID]*model.MemoryItem
	documents     map[kernel.ID]*model.Document
	docChunks     map[kernel.ID]*model.DocumentChunk
	webPages      map[kernel.ID]*model.WebPage
	webChunks     map[kernel.ID]*model.WebContentChunk
	settings      model.UserSettings
}

func newFakeStore() *fakeStore {
	s := model.DefaultUserSettings()
	return &fakeStore{
		conversations: map[kernel.ID]*model.Conversation{},
		messages:      map[kernel.ID]*model.Message{},
		memoryItems:   map[kernel.ID]*model.MemoryItem{},
		documents:     map[kernel.ID]*model.Document{},
		docChunks:     map[kernel.ID]*model.DocumentChunk{},
		webPages:      map[kernel.ID]*model.WebPage{},
		webChunks:     map[kernel.ID]*model.WebContentChunk{},
		settings:      s,
	}
}

// snapshot is the JSON shape written by Backup and read back by Restore.
type snapshot struct {
	Conversations []*model.Conversation    `json:"conversations"`
	Messages      []*model.Message         `json:"messages"`
	MemoryItems   []*model.MemoryItem      `json:"memory_items"`
	Documents     []*model.Document        `json:"documents"`
	DocChunks     []*model.DocumentChunk   `json:"document_chunks"`
	WebPages      []*model.WebPage         `json:"web_pages"`
	WebChunks     []*model.WebContentChunk `json:"web_chunks"`
}

func (f *fakeStore) Backup(ctx context.Context, path string) error {
	f.mu.Lock()
	snap := snapshot{}
	for _, c := range f.conversations {
		snap.Conversations = append(snap.Conversations, c)
	}
	for _, m := range f.messages {
		snap.Messages = append(snap.Messages, m)
	}
	for _, m := range f.memoryItems {
		snap.MemoryItems = append(snap.MemoryItems, m)
	}
	for _, d := range f.documents {
		snap.Documents = append(snap.Documents, d)
	}
	for _, c := range f.docChunks {
		snap.DocChunks = append(snap.DocChunks, c)
	}
	for _, w := range f.webPages {
		snap.WebPages = append(snap.WebPages, w)
	}
	for _, c := range f.webChunks {
		snap.WebChunks = append(snap.WebChunks, c)
	}
	f.mu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func (f *fakeStore) Restore(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations = map[kernel.ID]*model.Conversation{}
	f.messages = map[kernel.ID]*model.Message{}
	f.memoryItems = map[kernel.ID]*model.MemoryItem{}
	f.documents = map[kernel.ID]*model.Document{}
	f.docChunks = map[kernel.ID]*model.DocumentChunk{}
	f.webPages = map[kernel.ID]*model.WebPage{}
	f.webChunks = map[kernel.ID]*model.WebContentChunk{}
	for _, c := range snap.Conversations {
		f.conversations[c.ID] = c
	}
	for _, m := range snap.Messages {
		f.messages[m.ID] = m
	}
	for _, m := range snap.MemoryItems {
		f.memoryItems[m.ID] = m
	}
	for _, d := range snap.Documents {
		f.documents[d.ID] = d
	}
	for _, c := range snap.DocChunks {
		f.docChunks[c.ID] = c
	}
	for _, w := range snap.WebPages {
		f.webPages[w.ID] = w
	}
	for _, c := range snap.WebChunks {
		f.webChunks[c.ID] = c
	}
	return nil
}

func (f *fakeStore) Optimize(ctx context.Context) error { return nil }
func (f *fakeStore) Close() error                       { return nil }

func (f *fakeStore) CreateConversation(ctx context.Context, c *model.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations[c.ID] = c
	return nil
}

func (f *fakeStore) GetConversation(ctx context.Context, id kernel.ID) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[id]
	if !ok {
		return nil, metastore.NotFound("conversation", id.String())
	}
	return c, nil
}

func (f *fakeStore) UpdateConversation(ctx context.Context, c *model.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations[c.ID] = c
	return nil
}

func (f *fakeStore) DeleteConversation(ctx context.Context, id kernel.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.conversations, id)
	for mid, m := range f.messages {
		if m.ConversationID == id {
			delete(f.messages, mid)
		}
	}
	return nil
}

func (f *fakeStore) ListConversations(ctx context.Context, flt metastore.ListFilter) ([]*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Conversation
	for _, c := range f.conversations {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (f *fakeStore) CountConversations(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conversations), nil
}

func (f *fakeStore) CreateMessage(ctx context.Context, m *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[m.ID] = m
	return nil
}

func (f *fakeStore) GetMessage(ctx context.Context, id kernel.ID) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return nil, metastore.NotFound("message", id.String())
	}
	return m, nil
}

func (f *fakeStore) ListMessages(ctx context.Context, conversationID kernel.ID, flt metastore.ListFilter) ([]*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Message
	for _, m := range f.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) CountMessages(ctx context.Context, conversationID kernel.ID) (int, error) {
	msgs, _ := f.ListMessages(ctx, conversationID, metastore.ListFilter{})
	return len(msgs), nil
}

func (f *fakeStore) CreateMemoryItem(ctx context.Context, m *model.MemoryItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memoryItems[m.ID] = m
	return nil
}

func (f *fakeStore) GetMemoryItem(ctx context.Context, id kernel.ID) (*model.MemoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memoryItems[id]
	if !ok {
		return nil, metastore.NotFound("memory_item", id.String())
	}
	return m, nil
}

func (f *fakeStore) UpdateMemoryItem(ctx context.Context, m *model.MemoryItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memoryItems[m.ID] = m
	return nil
}

func (f *fakeStore) DeleteMemoryItem(ctx context.Context, id kernel.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.memoryItems, id)
	return nil
}

func (f *fakeStore) ListMemoryItems(ctx context.Context, flt metastore.MemoryItemFilter) ([]*model.MemoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.MemoryItem
	for _, m := range f.memoryItems {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if flt.Offset > 0 && flt.Offset < len(out) {
		out = out[flt.Offset:]
	} else if flt.Offset >= len(out) {
		out = nil
	}
	if flt.Limit > 0 && flt.Limit < len(out) {
		out = out[:flt.Limit]
	}
	return out, nil
}

func (f *fakeStore) GetMemoryItemsByIDs(ctx context.Context, ids []kernel.ID) ([]*model.MemoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.MemoryItem
	for _, id := range ids {
		if m, ok := f.memoryItems[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) CountMemoryItems(ctx context.Context, flt metastore.MemoryItemFilter) (int, error) {
	items, _ := f.ListMemoryItems(ctx, metastore.MemoryItemFilter{})
	return len(items), nil
}

func (f *fakeStore) CountMemoryItemsByCategory(ctx context.Context) (map[model.Category]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[model.Category]int{}
	for _, m := range f.memoryItems {
		out[m.Category]++
	}
	return out, nil
}

func (f *fakeStore) CreateDocument(ctx context.Context, d *model.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents[d.ID] = d
	return nil
}

func (f *fakeStore) GetDocument(ctx context.Context, id kernel.ID) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.documents[id]
	if !ok {
		return nil, metastore.NotFound("document", id.String())
	}
	return d, nil
}

func (f *fakeStore) UpdateDocument(ctx context.Context, d *model.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents[d.ID] = d
	return nil
}

func (f *fakeStore) DeleteDocument(ctx context.Context, id kernel.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.documents, id)
	for cid, c := range f.docChunks {
		if c.DocumentID == id {
			delete(f.docChunks, cid)
		}
	}
	return nil
}

func (f *fakeStore) ListDocuments(ctx context.Context, flt metastore.ListFilter) ([]*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Document
	for _, d := range f.documents {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (f *fakeStore) CreateDocumentChunk(ctx context.Context, c *model.DocumentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docChunks[c.ID] = c
	return nil
}

func (f *fakeStore) ListDocumentChunks(ctx context.Context, documentID kernel.ID) ([]*model.DocumentChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.DocumentChunk
	for _, c := range f.docChunks {
		if c.DocumentID == documentID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (f *fakeStore) CreateWebPage(ctx context.Context, w *model.WebPage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webPages[w.ID] = w
	return nil
}

func (f *fakeStore) GetWebPage(ctx context.Context, id kernel.ID) (*model.WebPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.webPages[id]
	if !ok {
		return nil, metastore.NotFound("web_page", id.String())
	}
	return w, nil
}

func (f *fakeStore) UpdateWebPage(ctx context.Context, w *model.WebPage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webPages[w.ID] = w
	return nil
}

func (f *fakeStore) DeleteWebPage(ctx context.Context, id kernel.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.webPages, id)
	for cid, c := range f.webChunks {
		if c.WebPageID == id {
			delete(f.webChunks, cid)
		}
	}
	return nil
}

func (f *fakeStore) ListWebPages(ctx context.Context, flt metastore.ListFilter) ([]*model.WebPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.WebPage
	for _, w := range f.webPages {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (f *fakeStore) CreateWebContentChunk(ctx context.Context, c *model.WebContentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webChunks[c.ID] = c
	return nil
}

func (f *fakeStore) ListWebContentChunks(ctx context.Context, webPageID kernel.ID) ([]*model.WebContentChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.WebContentChunk
	for _, c := range f.webChunks {
		if c.WebPageID == webPageID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (f *fakeStore) UpsertEmbeddingRecord(ctx context.Context, r *model.VectorEmbeddingRecord) error {
	return nil
}

func (f *fakeStore) GetEmbeddingRecord(ctx context.Context, st model.SourceType, sid string) (*model.VectorEmbeddingRecord, error) {
	return nil, metastore.NotFound("vector_embedding_record", sid)
}

func (f *fakeStore) DeleteEmbeddingRecord(ctx context.Context, st model.SourceType, sid string) error {
	return nil
}

func (f *fakeStore) ListUnindexedEmbeddingRecords(ctx context.Context, limit int) ([]*model.VectorEmbeddingRecord, error) {
	return nil, nil
}

func (f *fakeStore) GetUserSettings(ctx context.Context) (*model.UserSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.settings
	return &s, nil
}

func (f *fakeStore) SaveUserSettings(ctx context.Context, s *model.UserSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = *s
	return nil
}
