package context

import (
	"strings"

	"github.com/abraxas-365/personal-ai-core/pkg/ai/llm"
	"github.com/abraxas-365/personal-ai-core/pkg/eventx"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/model"
)

// Mode selects which sources feed the assembled context.
type Mode string

const (
	ModeMemoryOnly Mode = "memory"
	ModeDocument   Mode = "document"
	ModeWeb        Mode = "web"
	ModeHistory    Mode = "history"
	ModeCombined   Mode = "combined"
)

const (
	documentPreamble = "Here is a document provided for reference:\n\n"
	webPreamble      = "Here is web content provided for reference:\n\n"
)

// Request carries every input the assembler needs for one call. Fields
// unused by the chosen Mode are ignored.
type Request struct {
	Mode Mode

	ModelMaxTokens int
	Personality    model.PersonalitySettings
	BaseSystemPrompt string

	// Memory is the pre-formatted context block from memory.RetrieveContext.
	Memory string
	// Document is raw document content (mode Document or Combined).
	Document string
	// Web is raw web content (mode Web or Combined).
	Web string
	// History is the full known conversation, ascending chronological
	// order; the assembler selects a chronological tail that fits budget.
	History []llm.Message

	UserMessage string

	// Counter overrides token estimation; nil uses the 4-char heuristic.
	Counter TokenCounter
}

// Assembled is the {system_prompt, messages[]} pair ready for the router.
type Assembled struct {
	SystemPrompt string
	Messages     []llm.Message
}

// Assembler builds Assembled prompts under a fixed token Budget.
type Assembler struct {
	cfg Budget
	bus *eventx.Bus
}

// New builds an Assembler. bus may be nil, disabling event publication.
func New(cfg Budget, bus *eventx.Bus) *Assembler {
	return &Assembler{cfg: cfg, bus: bus}
}

// Assemble builds the system prompt and chat message list for req.Mode.
func (a *Assembler) Assemble(req Request) *Assembled {
	count := req.Counter
	if count == nil {
		count = defaultTokenCounter
	}
	total := a.cfg.availableForContext(req.ModelMaxTokens)

	var contextBlock string
	var history []llm.Message

	switch req.Mode {
	case ModeMemoryOnly:
		contextBlock = truncateParagraphs(req.Memory, total, count)
	case ModeDocument:
		contextBlock = wrapSource(documentPreamble, req.Document, total, count)
	case ModeWeb:
		contextBlock = wrapSource(webPreamble, req.Web, total, count)
	case ModeHistory:
		history = selectRecentHistory(req.History, total, count)
	case ModeCombined:
		contextBlock, history = a.assembleCombined(req, total, count)
	default:
		contextBlock = truncateParagraphs(req.Memory, total, count)
	}

	systemPrompt := a.buildSystemPrompt(req.BaseSystemPrompt, req.Personality, contextBlock)

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.NewSystemMessage(systemPrompt))
	messages = append(messages, history...)
	messages = append(messages, llm.NewUserMessage(req.UserMessage))

	a.publish(contextBlock, history)
	return &Assembled{SystemPrompt: systemPrompt, Messages: messages}
}

func (a *Assembler) assembleCombined(req Request, total int, count TokenCounter) (string, []llm.Message) {
	hasMemory := strings.TrimSpace(req.Memory) != ""
	hasDocument := strings.TrimSpace(req.Document) != ""
	hasWeb := strings.TrimSpace(req.Web) != ""
	hasHistory := len(req.History) > 0

	subBudgets := a.cfg.partition(total, hasMemory, hasDocument, hasWeb, hasHistory)

	var parts []string
	if hasMemory {
		if s := truncateParagraphs(req.Memory, subBudgets["memory"], count); s != "" {
			parts = append(parts, s)
		}
	}
	if hasDocument {
		if s := wrapSource(documentPreamble, req.Document, subBudgets["document"], count); s != "" {
			parts = append(parts, s)
		}
	}
	if hasWeb {
		if s := wrapSource(webPreamble, req.Web, subBudgets["web"], count); s != "" {
			parts = append(parts, s)
		}
	}

	var history []llm.Message
	if hasHistory {
		history = selectRecentHistory(req.History, subBudgets["history"], count)
	}

	return strings.Join(parts, "\n\n"), history
}

func wrapSource(preamble, content string, budget int, count TokenCounter) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	preambleTokens := count(preamble)
	remaining := budget - preambleTokens
	body := truncateParagraphs(content, remaining, count)
	if body == "" {
		return ""
	}
	return preamble + body
}

// selectRecentHistory returns the chronological tail of history that fits
// budget tokens, preserving original order.
func selectRecentHistory(history []llm.Message, budget int, count TokenCounter) []llm.Message {
	if budget <= 0 || len(history) == 0 {
		return nil
	}
	var selected []llm.Message
	used := 0
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		t := count(m.TextContent()) + 4 // per-message overhead, mirroring CharBasedEstimator
		if used+t > budget {
			break
		}
		selected = append(selected, m)
		used += t
	}
	// selected was built newest-first; reverse for chronological order.
	for i, j := 0, len(selected)-1; i < j; i, j = i+1, j-1 {
		selected[i], selected[j] = selected[j], selected[i]
	}
	return selected
}

func (a *Assembler) buildSystemPrompt(base string, p model.PersonalitySettings, contextBlock string) string {
	var b strings.Builder
	b.WriteString(base)
	for _, clause := range personalityClauses(p) {
		b.WriteString(" ")
		b.WriteString(clause)
	}
	if contextBlock != "" {
		b.WriteString("\n\n")
		b.WriteString(contextBlock)
	}
	return b.String()
}

func (a *Assembler) publish(contextBlock string, history []llm.Message) {
	if a.bus == nil {
		return
	}
	payload := map[string]any{
		"context_chars":  len(contextBlock),
		"history_count":  len(history),
	}
	a.bus.Publish(eventx.EventContextBuilt, payload)
	a.bus.Publish(eventx.EventContextAssembled, payload)
}
