// Package orchestrator drives one request/response turn: retrieve
// context, assemble a prompt, call the router, persist both sides of the
// exchange against the metadata and vector stores.
package orchestrator

import (
	"context"
	"time"

	"github.com/abraxas-365/personal-ai-core/pkg/ai/llm"
	ctxasm "github.com/abraxas-365/personal-ai-core/pkg/context"
	"github.com/abraxas-365/personal-ai-core/pkg/eventx"
	"github.com/abraxas-365/personal-ai-core/pkg/kernel"
	"github.com/abraxas-365/personal-ai-core/pkg/memory"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/metastore"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/model"
)

// Config carries the orchestrator's tunables: the base system prompt and
// the retrieval/assembly limits applied on every turn.
type Config struct {
	BaseSystemPrompt string
	RetrievalLimit   int
	HistoryLimit     int
	Budget           ctxasm.Budget
}

// DefaultConfig returns the stock prompt and retrieval limits.
func DefaultConfig() Config {
	return Config{
		BaseSystemPrompt: "You are a helpful personal assistant.",
		RetrievalLimit:   10,
		HistoryLimit:     20,
		Budget:           ctxasm.DefaultBudget(),
	}
}

// Orchestrator owns the per-request flow: ProcessMessage and
// SummarizeConversation.
type Orchestrator struct {
	store     metastore.Store
	memory    *memory.Service
	router    *llm.Router
	assembler *ctxasm.Assembler
	bus       *eventx.Bus
	cfg       Config
}

// New builds an Orchestrator from its collaborators.
func New(store metastore.Store, mem *memory.Service, router *llm.Router, bus *eventx.Bus, cfg Config) *Orchestrator {
	return &Orchestrator{
		store:     store,
		memory:    mem,
		router:    router,
		assembler: ctxasm.New(cfg.Budget, bus),
		bus:       bus,
		cfg:       cfg,
	}
}

// Response is the result of ProcessMessage.
type Response struct {
	Response       string
	ConversationID kernel.ID
}

// ProcessMessage runs one turn: resolve the conversation, retrieve
// context, assemble the prompt, generate, persist, publish.
func (o *Orchestrator) ProcessMessage(ctx context.Context, userMessage string, conversationID *kernel.ID) (*Response, error) {
	convID, err := o.resolveConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	retrieval, err := o.memory.RetrieveContext(ctx, userMessage, o.cfg.RetrievalLimit, nil, nil, convID.String())
	if err != nil {
		return nil, err
	}

	history, err := o.recentHistory(ctx, convID)
	if err != nil {
		return nil, err
	}

	settings, err := o.store.GetUserSettings(ctx)
	if err != nil {
		return nil, err
	}

	modelInfo := o.router.ActiveModel(ctx).GetModelInfo()

	assembled := o.assembler.Assemble(ctxasm.Request{
		Mode:             ctxasm.ModeCombined,
		ModelMaxTokens:   modelInfo.MaxContextTokens,
		Personality:      settings.Personality,
		BaseSystemPrompt: o.cfg.BaseSystemPrompt,
		Memory:           retrieval.FormattedContext,
		History:          history,
		UserMessage:      userMessage,
	})

	resp, err := o.router.Chat(ctx, assembled.Messages)
	if err != nil {
		return nil, wrapLLM(err)
	}

	if err := o.persistTurn(ctx, convID, userMessage, resp.Message.Content); err != nil {
		return nil, err
	}

	o.publish(eventx.EventMessageProcessed, map[string]any{
		"conversation_id": convID.String(),
	})

	return &Response{Response: resp.Message.Content, ConversationID: convID}, nil
}

// resolveConversation allocates a new Conversation when conversationID is
// nil, per step 1; otherwise validates the existing one.
func (o *Orchestrator) resolveConversation(ctx context.Context, conversationID *kernel.ID) (kernel.ID, error) {
	if conversationID == nil {
		now := time.Now()
		conv := &model.Conversation{ID: kernel.NewID(), CreatedAt: now, UpdatedAt: now}
		if err := o.store.CreateConversation(ctx, conv); err != nil {
			return "", err
		}
		return conv.ID, nil
	}
	if _, err := o.store.GetConversation(ctx, *conversationID); err != nil {
		return "", err
	}
	return *conversationID, nil
}

// recentHistory loads the tail of a conversation's messages as llm.Message,
// ascending chronological order, for use as history in context assembly.
func (o *Orchestrator) recentHistory(ctx context.Context, convID kernel.ID) ([]llm.Message, error) {
	msgs, err := o.store.ListMessages(ctx, convID, metastore.ListFilter{})
	if err != nil {
		return nil, err
	}
	if len(msgs) > o.cfg.HistoryLimit {
		msgs = msgs[len(msgs)-o.cfg.HistoryLimit:]
	}
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	return out, nil
}

// persistTurn persists the user then the assistant message, each also
// creating a category=conversation MemoryItem. Each insert bumps the
// parent Conversation's updated_at, which CreateMessage itself does not
// enforce.
func (o *Orchestrator) persistTurn(ctx context.Context, convID kernel.ID, userText, assistantText string) error {
	userMsg := &model.Message{ID: kernel.NewID(), ConversationID: convID, Role: model.RoleUser, Content: userText, CreatedAt: time.Now()}
	if err := o.store.CreateMessage(ctx, userMsg); err != nil {
		return err
	}
	if err := o.touchConversation(ctx, convID); err != nil {
		return err
	}
	if err := o.storeMessageMemory(ctx, convID, userMsg); err != nil {
		return err
	}

	assistantMsg := &model.Message{ID: kernel.NewID(), ConversationID: convID, Role: model.RoleAssistant, Content: assistantText, CreatedAt: time.Now()}
	if err := o.store.CreateMessage(ctx, assistantMsg); err != nil {
		return err
	}
	if err := o.touchConversation(ctx, convID); err != nil {
		return err
	}
	return o.storeMessageMemory(ctx, convID, assistantMsg)
}

// touchConversation bumps a Conversation's updated_at to now.
func (o *Orchestrator) touchConversation(ctx context.Context, convID kernel.ID) error {
	conv, err := o.store.GetConversation(ctx, convID)
	if err != nil {
		return err
	}
	conv.UpdatedAt = time.Now()
	return o.store.UpdateConversation(ctx, conv)
}

func (o *Orchestrator) storeMessageMemory(ctx context.Context, convID kernel.ID, m *model.Message) error {
	_, err := o.memory.StoreMemory(ctx, m.Content, model.CategoryConversation, model.SourceTypeMessage, m.ID.String(), model.DefaultImportance,
		map[string]any{"conversation_id": convID.String(), "role": string(m.Role)})
	return err
}

func (o *Orchestrator) publish(eventType string, payload map[string]any) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(eventType, payload)
}

// SummarizeConversation fetches a conversation's full history, asks the
// router for a short summary, and writes it into Conversation.Summary.
func (o *Orchestrator) SummarizeConversation(ctx context.Context, conversationID kernel.ID) (string, error) {
	conv, err := o.store.GetConversation(ctx, conversationID)
	if err != nil {
		return "", err
	}

	msgs, err := o.store.ListMessages(ctx, conversationID, metastore.ListFilter{})
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "", nil
	}

	prompt := make([]llm.Message, 0, len(msgs)+1)
	prompt = append(prompt, llm.NewSystemMessage("Summarize the following conversation in 2-3 sentences."))
	for _, m := range msgs {
		prompt = append(prompt, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	prompt = append(prompt, llm.NewUserMessage("Provide the summary now."))

	resp, err := o.router.Chat(ctx, prompt)
	if err != nil {
		return "", wrapLLM(err)
	}

	conv.Summary = resp.Message.Content
	if err := o.store.UpdateConversation(ctx, conv); err != nil {
		return "", err
	}
	return conv.Summary, nil
}
