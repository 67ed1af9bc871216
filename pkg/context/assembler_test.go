package context_test

import (
	"strings"
	"testing"

	"github.com/abraxas-365/personal-ai-core/pkg/ai/llm"
	ctxasm "github.com/abraxas-365/personal-ai-core/pkg/context"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/model"
)

func TestAssemble_MemoryOnly(t *testing.T) {
	a := ctxasm.New(ctxasm.DefaultBudget(), nil)

	out := a.Assemble(ctxasm.Request{
		Mode:             ctxasm.ModeMemoryOnly,
		ModelMaxTokens:   4000,
		BaseSystemPrompt: "You are an assistant.",
		Memory:           "- the user's dog is named Buddy",
		UserMessage:      "what is my dog's name?",
	})

	if len(out.Messages) != 2 {
		t.Fatalf("expected system+user messages, got %d", len(out.Messages))
	}
	if out.Messages[0].Role != llm.RoleSystem {
		t.Fatalf("expected system message first, got %s", out.Messages[0].Role)
	}
	if !strings.Contains(out.SystemPrompt, "Buddy") {
		t.Fatalf("expected system prompt to contain memory content, got %q", out.SystemPrompt)
	}
	if out.Messages[1].Content != "what is my dog's name?" {
		t.Fatalf("unexpected user message: %q", out.Messages[1].Content)
	}
}

func TestAssemble_TokenBudgetRespected(t *testing.T) {
	// Invariant #6: token_count(system) + sum(token_count(messages)) <=
	// model_max_tokens - reserved_response_tokens.
	budget := ctxasm.DefaultBudget()
	a := ctxasm.New(budget, nil)

	longMemory := strings.Repeat("the user likes bananas. ", 500)
	out := a.Assemble(ctxasm.Request{
		Mode:             ctxasm.ModeMemoryOnly,
		ModelMaxTokens:   2000,
		BaseSystemPrompt: "base",
		Memory:           longMemory,
		UserMessage:      "hi",
	})

	total := len(out.SystemPrompt) / 4
	for _, m := range out.Messages[1:] {
		total += len(m.Content) / 4
	}
	limit := 2000 - budget.ReservedResponseTokens
	if total > limit {
		t.Fatalf("assembled prompt exceeds budget: %d tokens > limit %d", total, limit)
	}
}

func TestAssemble_HistorySelectsChronologicalTail(t *testing.T) {
	a := ctxasm.New(ctxasm.DefaultBudget(), nil)

	history := []llm.Message{
		llm.NewUserMessage("first"),
		llm.NewAssistantMessage("second"),
		llm.NewUserMessage("third"),
	}

	out := a.Assemble(ctxasm.Request{
		Mode:             ctxasm.ModeHistory,
		ModelMaxTokens:   4000,
		BaseSystemPrompt: "base",
		History:          history,
		UserMessage:      "fourth",
	})

	// system, first, second, third, user(fourth)
	if len(out.Messages) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(out.Messages))
	}
	if out.Messages[1].Content != "first" || out.Messages[2].Content != "second" || out.Messages[3].Content != "third" {
		t.Fatalf("history not in chronological order: %+v", out.Messages[1:4])
	}
}

func TestAssemble_Combined_AllSourcesPresent(t *testing.T) {
	a := ctxasm.New(ctxasm.DefaultBudget(), nil)

	history := []llm.Message{llm.NewUserMessage("earlier turn")}

	out := a.Assemble(ctxasm.Request{
		Mode:             ctxasm.ModeCombined,
		ModelMaxTokens:   4000,
		BaseSystemPrompt: "base",
		Memory:           "- likes hiking",
		Document:         "quarterly report contents",
		Web:              "latest news snippet",
		History:          history,
		UserMessage:      "what's new?",
	})

	if !strings.Contains(out.SystemPrompt, "hiking") {
		t.Fatalf("expected memory content in system prompt: %q", out.SystemPrompt)
	}
	if !strings.Contains(out.SystemPrompt, "quarterly report") {
		t.Fatalf("expected document content in system prompt: %q", out.SystemPrompt)
	}
	if !strings.Contains(out.SystemPrompt, "latest news") {
		t.Fatalf("expected web content in system prompt: %q", out.SystemPrompt)
	}
	if out.Messages[1].Content != "earlier turn" {
		t.Fatalf("expected history message carried into Messages, got %+v", out.Messages)
	}
}

func TestAssemble_PersonalityClausesOmitNoneLevels(t *testing.T) {
	a := ctxasm.New(ctxasm.DefaultBudget(), nil)

	p := model.PersonalitySettings{
		Style:      model.StyleConcise,
		Formality:  model.FormalityNeutral,
		Verbosity:  model.VerbosityMinimal,
		Empathy:    model.LevelNone,
		Humor:      model.LevelNone,
		Creativity: model.LevelHigh,
	}

	out := a.Assemble(ctxasm.Request{
		Mode:             ctxasm.ModeMemoryOnly,
		ModelMaxTokens:   4000,
		Personality:      p,
		BaseSystemPrompt: "base",
		UserMessage:      "hi",
	})

	if strings.Contains(out.SystemPrompt, "empathy") {
		t.Fatalf("level none should omit its clause: %q", out.SystemPrompt)
	}
	if !strings.Contains(out.SystemPrompt, "imaginative") {
		t.Fatalf("expected the creativity=high clause present: %q", out.SystemPrompt)
	}
}

func TestAssemble_EmptySourcesProduceNoContextBlock(t *testing.T) {
	a := ctxasm.New(ctxasm.DefaultBudget(), nil)

	out := a.Assemble(ctxasm.Request{
		Mode:             ctxasm.ModeMemoryOnly,
		ModelMaxTokens:   4000,
		BaseSystemPrompt: "base",
		Memory:           "",
		UserMessage:      "hi",
	})

	if out.SystemPrompt != "base" {
		t.Fatalf("expected bare base prompt with no context block, got %q", out.SystemPrompt)
	}
}
