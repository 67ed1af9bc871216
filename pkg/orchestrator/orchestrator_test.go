package orchestrator_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/abraxas-365/personal-ai-core/pkg/ai/embedding"
	"github.com/abraxas-365/personal-ai-core/pkg/ai/llm"
	"github.com/abraxas-365/personal-ai-core/pkg/ai/vstore"
	"github.com/abraxas-365/personal-ai-core/pkg/ai/vstore/providers/vstmemory"
	"github.com/abraxas-365/personal-ai-core/pkg/errx"
	"github.com/abraxas-365/personal-ai-core/pkg/eventx"
	"github.com/abraxas-365/personal-ai-core/pkg/kernel"
	"github.com/abraxas-365/personal-ai-core/pkg/memory"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/metastore"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/model"
	"github.com/abraxas-365/personal-ai-core/pkg/orchestrator"
)

const testDimension = 4

// scriptedModel answers every chat with a fixed reply and embeds every text
// to the same unit vector, so a full turn can run offline.
type scriptedModel struct {
	reply string
}

func (s *scriptedModel) Chat(ctx context.Context, messages []llm.Message, opts ...llm.Option) (llm.Response, error) {
	return llm.Response{Message: llm.NewAssistantMessage(s.reply), Model: "scripted"}, nil
}

func (s *scriptedModel) ChatStream(ctx context.Context, messages []llm.Message, opts ...llm.Option) (llm.Stream, error) {
	resp, err := s.Chat(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	return &singleStream{msg: resp.Message}, nil
}

type singleStream struct {
	msg  llm.Message
	done bool
}

func (s *singleStream) Next() (llm.Message, error) {
	if s.done {
		return llm.Message{}, io.EOF
	}
	s.done = true
	return s.msg, nil
}

func (s *scriptedModel) GetTokenCount(text string) int        { return len(text) / 4 }
func (s *scriptedModel) GetMaxTokens() int                    { return 8192 }
func (s *scriptedModel) IsAvailable(ctx context.Context) bool { return true }
func (s *scriptedModel) GetModelInfo() llm.ModelInfo {
	return llm.ModelInfo{Name: "scripted", Provider: "fake", MaxContextTokens: 8192, SupportsEmbedding: true}
}

func (s *scriptedModel) EmbedQuery(ctx context.Context, text string, opts ...embedding.Option) (embedding.Embedding, error) {
	return embedding.Embedding{Vector: []float32{1, 0, 0, 0}}, nil
}

func (s *scriptedModel) EmbedDocuments(ctx context.Context, texts []string, opts ...embedding.Option) ([]embedding.Embedding, error) {
	out := make([]embedding.Embedding, len(texts))
	for i := range texts {
		out[i] = embedding.Embedding{Vector: []float32{1, 0, 0, 0}}
	}
	return out, nil
}

// turnStore is an in-memory metastore.Store double covering the entities a
// conversation turn touches. The embedded interface panics on anything
// else, which is what a test wants from an unexpected call.
type turnStore struct {
	metastore.Store
	mu            sync.Mutex
	conversations map[kernel.ID]*model.Conversation
	messages      map[kernel.ID][]*model.Message
	items         map[kernel.ID]*model.MemoryItem
	itemOrder     []kernel.ID
	embeddings    map[string]*model.VectorEmbeddingRecord
}

func newTurnStore() *turnStore {
	return &turnStore{
		conversations: map[kernel.ID]*model.Conversation{},
		messages:      map[kernel.ID][]*model.Message{},
		items:         map[kernel.ID]*model.MemoryItem{},
		embeddings:    map[string]*model.VectorEmbeddingRecord{},
	}
}

func (f *turnStore) CreateConversation(ctx context.Context, c *model.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations[c.ID] = c
	return nil
}

func (f *turnStore) GetConversation(ctx context.Context, id kernel.ID) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[id]
	if !ok {
		return nil, metastore.NotFound("conversation", id.String())
	}
	return c, nil
}

func (f *turnStore) UpdateConversation(ctx context.Context, c *model.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations[c.ID] = c
	return nil
}

func (f *turnStore) CreateMessage(ctx context.Context, m *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[m.ConversationID] = append(f.messages[m.ConversationID], m)
	return nil
}

func (f *turnStore) ListMessages(ctx context.Context, conversationID kernel.ID, flt metastore.ListFilter) ([]*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.Message(nil), f.messages[conversationID]...), nil
}

func (f *turnStore) GetUserSettings(ctx context.Context) (*model.UserSettings, error) {
	s := model.DefaultUserSettings()
	return &s, nil
}

func (f *turnStore) CreateMemoryItem(ctx context.Context, m *model.MemoryItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[m.ID] = m
	f.itemOrder = append(f.itemOrder, m.ID)
	return nil
}

func (f *turnStore) GetMemoryItem(ctx context.Context, id kernel.ID) (*model.MemoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.items[id]
	if !ok {
		return nil, metastore.NotFound("memory_item", id.String())
	}
	return m, nil
}

func (f *turnStore) CountMemoryItems(ctx context.Context, flt metastore.MemoryItemFilter) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items), nil
}

func (f *turnStore) UpsertEmbeddingRecord(ctx context.Context, r *model.VectorEmbeddingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embeddings[string(r.SourceType)+"|"+r.SourceID] = r
	return nil
}

func (f *turnStore) ListUnindexedEmbeddingRecords(ctx context.Context, limit int) ([]*model.VectorEmbeddingRecord, error) {
	return nil, nil
}

func newTestOrchestrator(t *testing.T, m llm.Model) (*orchestrator.Orchestrator, *turnStore, *eventx.Bus) {
	t.Helper()
	store := newTurnStore()
	vec := vstore.NewClient(vstmemory.NewMemoryVectorStore(testDimension, vstore.MetricCosine))
	router := llm.NewRouter(m, nil, nil, llm.RouterConfig{Attempts: 1, InitialDelay: time.Millisecond})
	bus := eventx.New(eventx.WithHistoryLimit(50))
	mem := memory.New(store, vec, router, bus, memory.DefaultConfig())
	return orchestrator.New(store, mem, router, bus, orchestrator.DefaultConfig()), store, bus
}

func TestProcessMessage_EmptyStoreSimpleTurn(t *testing.T) {
	orch, store, bus := newTestOrchestrator(t, &scriptedModel{reply: "Hi."})

	resp, err := orch.ProcessMessage(context.Background(), "Hello", nil)
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if resp.Response != "Hi." {
		t.Fatalf("expected reply %q, got %q", "Hi.", resp.Response)
	}
	if resp.ConversationID == "" {
		t.Fatal("expected a freshly allocated conversation id")
	}

	count, err := store.CountMemoryItems(context.Background(), metastore.MemoryItemFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("expected 2 memory items (user + assistant), got %d", count)
	}

	// The two memory items were created user-first, assistant-second.
	roles := make([]string, 0, 2)
	for _, id := range store.itemOrder {
		item := store.items[id]
		role, _ := item.Metadata["role"].(string)
		roles = append(roles, role)
	}
	if len(roles) != 2 || roles[0] != string(model.RoleUser) || roles[1] != string(model.RoleAssistant) {
		t.Fatalf("expected memory items in user,assistant order, got %v", roles)
	}

	msgs, err := store.ListMessages(context.Background(), resp.ConversationID, metastore.ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || msgs[0].Content != "Hello" {
		t.Fatalf("expected the user message first, got %+v", msgs[0])
	}
	if msgs[1].Role != model.RoleAssistant || msgs[1].Content != "Hi." {
		t.Fatalf("expected the assistant message second, got %+v", msgs[1])
	}

	if len(bus.History(eventx.EventMessageProcessed)) != 1 {
		t.Fatalf("expected one %s event", eventx.EventMessageProcessed)
	}
}

func TestProcessMessage_BumpsConversationUpdatedAt(t *testing.T) {
	orch, store, _ := newTestOrchestrator(t, &scriptedModel{reply: "noted"})

	resp, err := orch.ProcessMessage(context.Background(), "remember this", nil)
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	conv := store.conversations[resp.ConversationID]
	if conv == nil {
		t.Fatal("expected the conversation to exist")
	}
	if conv.UpdatedAt.Before(conv.CreatedAt) {
		t.Fatalf("expected UpdatedAt >= CreatedAt, got %v < %v", conv.UpdatedAt, conv.CreatedAt)
	}
}

// outageModel embeds like scriptedModel but fails every chat call, so the
// router exhausts both attempts and degrades.
type outageModel struct {
	scriptedModel
}

func (o *outageModel) Chat(ctx context.Context, messages []llm.Message, opts ...llm.Option) (llm.Response, error) {
	return llm.Response{}, &errx.Error{
		Code:       "LLM_SERVER_ERROR",
		Message:    "provider returned a server error",
		Type:       errx.TypeUnavailable,
		HTTPStatus: 502,
	}
}

func TestProcessMessage_TotalLLMOutageDegradesToStableReply(t *testing.T) {
	orch, store, _ := newTestOrchestrator(t, &outageModel{})

	resp, err := orch.ProcessMessage(context.Background(), "Hello", nil)
	if err != nil {
		t.Fatalf("expected a degraded reply, not an error, got %v", err)
	}
	if resp.Response != llm.StableErrorResponse {
		t.Fatalf("expected the stable error string, got %q", resp.Response)
	}

	// The turn is still persisted: the user message and the apology reply.
	msgs, err := store.ListMessages(context.Background(), resp.ConversationID, metastore.ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[1].Content != llm.StableErrorResponse {
		t.Fatalf("expected the degraded reply to be persisted, got %+v", msgs)
	}
}

func TestProcessMessage_UnknownConversationFails(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, &scriptedModel{reply: "x"})

	missing := kernel.NewID()
	_, err := orch.ProcessMessage(context.Background(), "Hello", &missing)
	if err == nil {
		t.Fatal("expected an error for an unknown conversation id")
	}
}

func TestSummarizeConversation_WritesSummary(t *testing.T) {
	orch, store, _ := newTestOrchestrator(t, &scriptedModel{reply: "A short chat about greetings."})

	resp, err := orch.ProcessMessage(context.Background(), "Hello", nil)
	if err != nil {
		t.Fatal(err)
	}

	summary, err := orch.SummarizeConversation(context.Background(), resp.ConversationID)
	if err != nil {
		t.Fatalf("SummarizeConversation: %v", err)
	}
	if summary == "" {
		t.Fatal("expected a non-empty summary")
	}
	if store.conversations[resp.ConversationID].Summary != summary {
		t.Fatal("expected the summary to be persisted on the conversation")
	}
}
