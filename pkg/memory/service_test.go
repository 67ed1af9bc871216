package memory_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/abraxas-365/personal-ai-core/pkg/ai/embedding"
	"github.com/abraxas-365/personal-ai-core/pkg/ai/llm"
	"github.com/abraxas-365/personal-ai-core/pkg/ai/vstore"
	"github.com/abraxas-365/personal-ai-core/pkg/ai/vstore/providers/vstmemory"
	"github.com/abraxas-365/personal-ai-core/pkg/eventx"
	"github.com/abraxas-365/personal-ai-core/pkg/memory"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/model"
)

const testDimension = 4

// fakeEmbeddingModel is a deterministic llm.Model+llm.EmbeddingCapable test
// double: EmbedQuery returns whatever vector was registered for the exact
// input text via setVector, so a test can place items at chosen points in
// vector space instead of depending on a real embedding provider. Chat is
// unused by the memory service and left unimplemented.
type fakeEmbeddingModel struct {
	mu      sync.Mutex
	fail    bool
	vectors map[string][]float32
}

func newFakeEmbeddingModel() *fakeEmbeddingModel {
	return &fakeEmbeddingModel{vectors: map[string][]float32{}}
}

func (f *fakeEmbeddingModel) setVector(text string, v []float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors[text] = v
}

func (f *fakeEmbeddingModel) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *fakeEmbeddingModel) Chat(ctx context.Context, messages []llm.Message, opts ...llm.Option) (llm.Response, error) {
	return llm.Response{}, errors.New("chat not supported by fakeEmbeddingModel")
}

func (f *fakeEmbeddingModel) ChatStream(ctx context.Context, messages []llm.Message, opts ...llm.Option) (llm.Stream, error) {
	return nil, errors.New("chat stream not supported by fakeEmbeddingModel")
}

func (f *fakeEmbeddingModel) GetTokenCount(text string) int { return len(text) }
func (f *fakeEmbeddingModel) GetMaxTokens() int              { return 8000 }
func (f *fakeEmbeddingModel) IsAvailable(ctx context.Context) bool { return true }

func (f *fakeEmbeddingModel) GetModelInfo() llm.ModelInfo {
	return llm.ModelInfo{Name: "fake-embedder", Provider: "fake", MaxContextTokens: 8000, SupportsEmbedding: true}
}

func (f *fakeEmbeddingModel) EmbedQuery(ctx context.Context, text string, opts ...embedding.Option) (embedding.Embedding, error) {
	f.mu.Lock()
	fail := f.fail
	v, ok := f.vectors[text]
	f.mu.Unlock()
	if fail {
		return embedding.Embedding{}, errors.New("embedding backend unavailable")
	}
	if !ok {
		v = make([]float32, testDimension)
	}
	return embedding.Embedding{Vector: v}, nil
}

func (f *fakeEmbeddingModel) EmbedDocuments(ctx context.Context, texts []string, opts ...embedding.Option) ([]embedding.Embedding, error) {
	out := make([]embedding.Embedding, len(texts))
	for i, t := range texts {
		e, err := f.EmbedQuery(ctx, t, opts...)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func newTestService(t *testing.T, embedder *fakeEmbeddingModel) (*memory.Service, *fakeStore, *eventx.Bus) {
	t.Helper()
	store := newFakeStore()
	vec := vstore.NewClient(vstmemory.NewMemoryVectorStore(testDimension, vstore.MetricCosine))
	router := llm.NewRouter(embedder, nil, nil, llm.DefaultRouterConfig())
	bus := eventx.New(eventx.WithHistoryLimit(50))
	svc := memory.New(store, vec, router, bus, memory.DefaultConfig())
	return svc, store, bus
}

func TestStoreMemory_RejectsInvalidCategory(t *testing.T) {
	svc, _, _ := newTestService(t, newFakeEmbeddingModel())
	_, err := svc.StoreMemory(context.Background(), "hello", model.Category("not_a_category"), "", "", 1, nil)
	if err == nil {
		t.Fatal("expected an error for an invalid category")
	}
}

func TestStoreMemory_RejectsInvalidImportance(t *testing.T) {
	svc, _, _ := newTestService(t, newFakeEmbeddingModel())
	_, err := svc.StoreMemory(context.Background(), "hello", model.CategoryUserDefined, "", "", 9, nil)
	if err == nil {
		t.Fatal("expected an error for an out-of-range importance")
	}
}

func TestStoreMemory_DefaultsImportanceAndIndexes(t *testing.T) {
	embedder := newFakeEmbeddingModel()
	embedder.setVector("hello", []float32{1, 0, 0, 0})
	svc, store, bus := newTestService(t, embedder)

	item, err := svc.StoreMemory(context.Background(), "hello", model.CategoryUserDefined, "", "", 0, nil)
	if err != nil {
		t.Fatalf("StoreMemory: %v", err)
	}
	if item.Importance != model.DefaultImportance {
		t.Fatalf("expected default importance %d, got %d", model.DefaultImportance, item.Importance)
	}

	rec, err := store.GetEmbeddingRecord(context.Background(), model.EmbeddingSourceMemoryItem, item.ID.String())
	if err != nil {
		t.Fatalf("GetEmbeddingRecord: %v", err)
	}
	if !rec.Indexed {
		t.Fatal("expected embedding record to be marked indexed after a successful embed")
	}

	if len(bus.History(eventx.EventMemoryStored)) != 1 {
		t.Fatalf("expected one %s event, got %d", eventx.EventMemoryStored, len(bus.History(eventx.EventMemoryStored)))
	}
}

// TestRetrieveContext_RanksBySemanticSimilarity: a query close in vector
// space to one stored item and far from the others should return that
// item first, and the formatted context block should lead with it.
func TestRetrieveContext_RanksBySemanticSimilarity(t *testing.T) {
	embedder := newFakeEmbeddingModel()
	embedder.setVector("my dog's name is Buddy", []float32{1, 0, 0, 0})
	embedder.setVector("the weather was nice today", []float32{0, 1, 0, 0})
	embedder.setVector("I had pasta for lunch", []float32{0, 0, 1, 0})
	embedder.setVector("what's my dog's name?", []float32{0.99, 0.05, 0, 0})

	svc, _, _ := newTestService(t, embedder)
	ctx := context.Background()

	if _, err := svc.StoreMemory(ctx, "my dog's name is Buddy", model.CategoryUserDefined, "", "", 1, nil); err != nil {
		t.Fatalf("StoreMemory: %v", err)
	}
	if _, err := svc.StoreMemory(ctx, "the weather was nice today", model.CategoryConversation, "", "", 1, nil); err != nil {
		t.Fatalf("StoreMemory: %v", err)
	}
	if _, err := svc.StoreMemory(ctx, "I had pasta for lunch", model.CategoryConversation, "", "", 1, nil); err != nil {
		t.Fatalf("StoreMemory: %v", err)
	}

	result, err := svc.RetrieveContext(ctx, "what's my dog's name?", 2, nil, nil, "")
	if err != nil {
		t.Fatalf("RetrieveContext: %v", err)
	}
	if len(result.Items) == 0 {
		t.Fatal("expected at least one retrieved item")
	}
	if result.Items[0].Item.Content != "my dog's name is Buddy" {
		t.Fatalf("expected the Buddy memory to rank first, got %q", result.Items[0].Item.Content)
	}
	if len(result.Items) > 1 && result.Items[0].Similarity < result.Items[1].Similarity {
		t.Fatal("expected the top result's similarity to be at least the runner-up's")
	}
	if !strings.Contains(result.FormattedContext, "Buddy") {
		t.Fatalf("expected formatted context to contain the retrieved content, got %q", result.FormattedContext)
	}
}

// TestRetrieveContext_ImportanceBreaksNearTie: two items with
// (near-)identical similarity and recency are ordered by importance.
func TestRetrieveContext_ImportanceBreaksNearTie(t *testing.T) {
	embedder := newFakeEmbeddingModel()
	embedder.setVector("low importance note", []float32{1, 0, 0, 0})
	embedder.setVector("high importance note", []float32{1, 0, 0, 0})
	embedder.setVector("query", []float32{1, 0, 0, 0})

	svc, _, _ := newTestService(t, embedder)
	ctx := context.Background()

	if _, err := svc.StoreMemory(ctx, "low importance note", model.CategoryUserDefined, "", "", 1, nil); err != nil {
		t.Fatalf("StoreMemory: %v", err)
	}
	if _, err := svc.StoreMemory(ctx, "high importance note", model.CategoryUserDefined, "", "", 5, nil); err != nil {
		t.Fatalf("StoreMemory: %v", err)
	}

	result, err := svc.RetrieveContext(ctx, "query", 2, nil, nil, "")
	if err != nil {
		t.Fatalf("RetrieveContext: %v", err)
	}
	if len(result.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(result.Items))
	}
	if result.Items[0].Item.Content != "high importance note" {
		t.Fatalf("expected the higher-importance item to rank first at equal similarity, got %q", result.Items[0].Item.Content)
	}
}

func TestRetrieveContext_EmptyStoreReturnsEmptyResult(t *testing.T) {
	svc, _, _ := newTestService(t, newFakeEmbeddingModel())
	result, err := svc.RetrieveContext(context.Background(), "anything", 5, nil, nil, "")
	if err != nil {
		t.Fatalf("RetrieveContext: %v", err)
	}
	if len(result.Items) != 0 {
		t.Fatalf("expected no items, got %d", len(result.Items))
	}
	if result.FormattedContext != "" {
		t.Fatalf("expected empty formatted context, got %q", result.FormattedContext)
	}
}

// TestRetrieveContext_EmbeddingFailureDegradesToEmptyResult: a query
// embedding failure must surface as an empty result plus a warning event,
// not an error, so the orchestrator never aborts a user turn over a
// transient embedding outage.
func TestRetrieveContext_EmbeddingFailureDegradesToEmptyResult(t *testing.T) {
	embedder := newFakeEmbeddingModel()
	embedder.setFail(true)
	svc, _, bus := newTestService(t, embedder)

	result, err := svc.RetrieveContext(context.Background(), "anything", 5, nil, nil, "")
	if err != nil {
		t.Fatalf("RetrieveContext: expected no error, got %v", err)
	}
	if len(result.Items) != 0 {
		t.Fatalf("expected no items, got %d", len(result.Items))
	}
	if result.FormattedContext != "" {
		t.Fatalf("expected empty formatted context, got %q", result.FormattedContext)
	}

	events := bus.History(eventx.EventMemoryDegraded)
	if len(events) != 1 {
		t.Fatalf("expected one memory:degraded event, got %d", len(events))
	}
	if events[0].Payload["reason"] != "embedding_failed" {
		t.Fatalf("unexpected degraded event payload: %v", events[0].Payload)
	}
}

// TestRetrieveContext_SelfHealsUnindexedItem: an item stored while the
// embedding backend was unavailable gets indexed lazily on the next
// retrieval pass, and becomes retrievable.
func TestRetrieveContext_SelfHealsUnindexedItem(t *testing.T) {
	embedder := newFakeEmbeddingModel()
	embedder.setVector("resilient memory", []float32{1, 0, 0, 0})
	embedder.setVector("find it", []float32{1, 0, 0, 0})

	svc, store, bus := newTestService(t, embedder)
	ctx := context.Background()

	embedder.setFail(true)
	item, err := svc.StoreMemory(ctx, "resilient memory", model.CategoryUserDefined, "", "", 3, nil)
	if err != nil {
		t.Fatalf("StoreMemory: %v", err)
	}

	rec, err := store.GetEmbeddingRecord(ctx, model.EmbeddingSourceMemoryItem, item.ID.String())
	if err != nil {
		t.Fatalf("GetEmbeddingRecord: %v", err)
	}
	if rec.Indexed {
		t.Fatal("expected the embedding record to be unindexed while embedding failed")
	}

	embedder.setFail(false)
	result, err := svc.RetrieveContext(ctx, "find it", 5, nil, nil, "")
	if err != nil {
		t.Fatalf("RetrieveContext: %v", err)
	}
	if len(result.Items) != 1 || result.Items[0].Item.ID != item.ID {
		t.Fatalf("expected the self-healed item to be retrievable, got %+v", result.Items)
	}

	rec, err = store.GetEmbeddingRecord(ctx, model.EmbeddingSourceMemoryItem, item.ID.String())
	if err != nil {
		t.Fatalf("GetEmbeddingRecord: %v", err)
	}
	if !rec.Indexed {
		t.Fatal("expected the embedding record to be indexed after self-healing")
	}
	if len(bus.History(eventx.EventSelfHealRepaired)) != 1 {
		t.Fatalf("expected one %s event, got %d", eventx.EventSelfHealRepaired, len(bus.History(eventx.EventSelfHealRepaired)))
	}
}

func TestMarkAsImportant_RaisesAndLowers(t *testing.T) {
	embedder := newFakeEmbeddingModel()
	embedder.setVector("note", []float32{1, 0, 0, 0})
	svc, _, _ := newTestService(t, embedder)
	ctx := context.Background()

	item, err := svc.StoreMemory(ctx, "note", model.CategoryUserDefined, "", "", 2, nil)
	if err != nil {
		t.Fatalf("StoreMemory: %v", err)
	}

	if err := svc.MarkAsImportant(ctx, item.ID, 5); err != nil {
		t.Fatalf("MarkAsImportant (raise): %v", err)
	}
	got, err := svc.GetMemory(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if got.Importance != 5 {
		t.Fatalf("expected importance 5 after raising, got %d", got.Importance)
	}

	if err := svc.MarkAsImportant(ctx, item.ID, 1); err != nil {
		t.Fatalf("MarkAsImportant (lower): %v", err)
	}
	got, err = svc.GetMemory(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if got.Importance != 1 {
		t.Fatalf("expected importance 1 after an explicit user downgrade, got %d", got.Importance)
	}

	if err := svc.MarkAsImportant(ctx, item.ID, 9); err == nil {
		t.Fatal("expected an error for an out-of-range importance level")
	}
}

func TestDeleteMemory_RemovesFromBothStores(t *testing.T) {
	embedder := newFakeEmbeddingModel()
	embedder.setVector("throwaway", []float32{1, 0, 0, 0})
	svc, store, _ := newTestService(t, embedder)
	ctx := context.Background()

	item, err := svc.StoreMemory(ctx, "throwaway", model.CategoryUserDefined, "", "", 1, nil)
	if err != nil {
		t.Fatalf("StoreMemory: %v", err)
	}
	if err := svc.DeleteMemory(ctx, item.ID); err != nil {
		t.Fatalf("DeleteMemory: %v", err)
	}

	if _, err := store.GetMemoryItem(ctx, item.ID); err == nil {
		t.Fatal("expected the memory item to be gone from the metadata store")
	}
	if _, err := store.GetEmbeddingRecord(ctx, model.EmbeddingSourceMemoryItem, item.ID.String()); err == nil {
		t.Fatal("expected the embedding crosswalk record to be gone")
	}

	result, err := svc.RetrieveContext(ctx, "throwaway", 5, nil, nil, "")
	if err != nil {
		t.Fatalf("RetrieveContext: %v", err)
	}
	for _, it := range result.Items {
		if it.Item.ID == item.ID {
			t.Fatal("expected the deleted item to not be retrievable")
		}
	}
}

// brokenDeleteVectorStore wraps the in-memory provider with a Delete that
// always fails, to exercise the abort path.
type brokenDeleteVectorStore struct {
	*vstmemory.MemoryVectorStore
}

func (b *brokenDeleteVectorStore) Delete(ctx context.Context, ids []string, opts ...vstore.Option) error {
	return errors.New("vector store unavailable")
}

func TestDeleteMemory_VectorDeleteFailureLeavesMetadataIntact(t *testing.T) {
	embedder := newFakeEmbeddingModel()
	embedder.setVector("sticky", []float32{1, 0, 0, 0})

	store := newFakeStore()
	vec := vstore.NewClient(&brokenDeleteVectorStore{vstmemory.NewMemoryVectorStore(testDimension, vstore.MetricCosine)})
	router := llm.NewRouter(embedder, nil, nil, llm.DefaultRouterConfig())
	svc := memory.New(store, vec, router, nil, memory.DefaultConfig())
	ctx := context.Background()

	item, err := svc.StoreMemory(ctx, "sticky", model.CategoryUserDefined, "", "", 1, nil)
	if err != nil {
		t.Fatalf("StoreMemory: %v", err)
	}

	if err := svc.DeleteMemory(ctx, item.ID); err == nil {
		t.Fatal("expected DeleteMemory to fail when the vector delete fails")
	}

	// The authoritative row and the crosswalk record are both untouched, so
	// a retry can complete the cascade.
	if _, err := store.GetMemoryItem(ctx, item.ID); err != nil {
		t.Fatalf("expected the memory item to survive a failed delete, got %v", err)
	}
	if _, err := store.GetEmbeddingRecord(ctx, model.EmbeddingSourceMemoryItem, item.ID.String()); err != nil {
		t.Fatalf("expected the embedding record to survive a failed delete, got %v", err)
	}
}

func TestGetByCategoryAndCount(t *testing.T) {
	embedder := newFakeEmbeddingModel()
	embedder.setVector("a", []float32{1, 0, 0, 0})
	embedder.setVector("b", []float32{0, 1, 0, 0})
	svc, _, _ := newTestService(t, embedder)
	ctx := context.Background()

	if _, err := svc.StoreMemory(ctx, "a", model.CategoryUserDefined, "", "", 1, nil); err != nil {
		t.Fatalf("StoreMemory: %v", err)
	}
	if _, err := svc.StoreMemory(ctx, "b", model.CategoryConversation, "", "", 1, nil); err != nil {
		t.Fatalf("StoreMemory: %v", err)
	}

	items, err := svc.GetByCategory(ctx, model.CategoryUserDefined, 10, 0)
	if err != nil {
		t.Fatalf("GetByCategory: %v", err)
	}
	if len(items) != 1 || items[0].Content != "a" {
		t.Fatalf("expected exactly the user_defined item, got %+v", items)
	}

	counts, err := svc.CountByCategory(ctx)
	if err != nil {
		t.Fatalf("CountByCategory: %v", err)
	}
	if counts[model.CategoryUserDefined] != 1 || counts[model.CategoryConversation] != 1 {
		t.Fatalf("unexpected category counts: %+v", counts)
	}

	total, err := svc.CountMemories(ctx)
	if err != nil {
		t.Fatalf("CountMemories: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 total memories, got %d", total)
	}
}
