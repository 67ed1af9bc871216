// Package eventx is an in-process publish/subscribe bus used to decouple the
// memory service, orchestrator, and storage manager from one another.
// Subscriptions and publishes all happen within a single process — there is
// no durable queue or cross-process delivery.
package eventx

import (
	"sync"
	"time"

	"github.com/abraxas-365/personal-ai-core/pkg/asyncx"
	"github.com/abraxas-365/personal-ai-core/pkg/logx"
)

// Event is a single published occurrence.
type Event struct {
	Type      string
	Payload   map[string]any
	Timestamp time.Time
}

// Handler reacts to a published event. A handler that returns is
// considered to have completed successfully; a panic is recovered and
// logged as a failure, never propagated to the publisher.
type Handler func(Event)

// Bus is a synchronous-and-asynchronous pub/sub dispatcher with a bounded
// ring of recent event history.
type Bus struct {
	mu           sync.RWMutex
	subscribers  map[string][]Handler
	history      []Event
	historyLimit int
	debugMode    bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithHistoryLimit sets the maximum number of retained events. Default 100.
func WithHistoryLimit(n int) Option {
	return func(b *Bus) { b.historyLimit = n }
}

// WithDebugMode enables verbose per-publish logging.
func WithDebugMode(enabled bool) Option {
	return func(b *Bus) { b.debugMode = enabled }
}

// New creates an event bus. It is not a package-level singleton: the
// composition root owns one instance and threads it through constructors.
func New(opts ...Option) *Bus {
	b := &Bus{
		subscribers:  make(map[string][]Handler),
		historyLimit: 100,
	}
	for _, opt := range opts {
		opt(b)
	}
	logx.WithFields(logx.Fields{
		"history_limit": b.historyLimit,
		"debug_mode":    b.debugMode,
	}).Info("eventx: bus initialized")
	return b
}

// Subscribe registers handler for eventType. Handlers for the same type fire
// in subscription order on Publish.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
	if b.debugMode {
		logx.WithField("event_type", eventType).Debug("eventx: subscribed handler")
	}
}

// Token identifies one registration made by SubscribeToken; Unsubscribe
// takes it to remove exactly that handler. Go has no stable function
// identity comparison across closures, so handlers added with Subscribe
// get no token and cannot be removed.
type Token struct {
	eventType string
	index     int
}

// SubscribeToken registers handler and returns a token that Unsubscribe can
// use to remove exactly this registration.
func (b *Bus) SubscribeToken(eventType string, handler Handler) Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
	return Token{eventType: eventType, index: len(b.subscribers[eventType]) - 1}
}

// Unsubscribe removes the handler identified by tok. Returns false if it was
// already removed.
func (b *Bus) Unsubscribe(tok Token) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	handlers := b.subscribers[tok.eventType]
	if tok.index < 0 || tok.index >= len(handlers) || handlers[tok.index] == nil {
		return false
	}
	handlers[tok.index] = nil
	return true
}

// Publish notifies every subscriber of eventType synchronously, in
// subscription order. A handler that panics is recovered, logged, and
// skipped — it never aborts delivery to the remaining subscribers.
func (b *Bus) Publish(eventType string, payload map[string]any) {
	event := b.record(eventType, payload)

	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[eventType]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if h == nil {
			continue
		}
		b.dispatch(eventType, h, event)
	}
}

// PublishAsync notifies every subscriber of eventType concurrently and waits
// for all of them to finish. Use this when handlers do meaningful I/O (e.g.
// re-embedding a memory item) and should not block the caller of Publish
// sequentially.
func (b *Bus) PublishAsync(eventType string, payload map[string]any) {
	event := b.record(eventType, payload)

	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[eventType]...)
	b.mu.RUnlock()

	fns := make([]func(), 0, len(handlers))
	for _, h := range handlers {
		if h == nil {
			continue
		}
		h := h
		fns = append(fns, func() { b.dispatch(eventType, h, event) })
	}

	var wg sync.WaitGroup
	wg.Add(len(fns))
	for _, fn := range fns {
		fn := fn
		asyncx.Do(func() {
			defer wg.Done()
			fn()
		})
	}
	wg.Wait()
}

func (b *Bus) dispatch(eventType string, h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			logx.WithFields(logx.Fields{
				"event_type": eventType,
				"panic":      r,
			}).Error("eventx: handler panicked, skipping")
		}
	}()
	h(event)
}

func (b *Bus) record(eventType string, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	event := Event{Type: eventType, Payload: payload, Timestamp: time.Now()}

	b.mu.Lock()
	b.history = append(b.history, event)
	if len(b.history) > b.historyLimit {
		b.history = b.history[len(b.history)-b.historyLimit:]
	}
	b.mu.Unlock()

	if b.debugMode {
		logx.WithFields(logx.Fields{
			"event_type": eventType,
			"payload":    payload,
		}).Debug("eventx: published event")
	}
	return event
}

// History returns a copy of the recent event history, optionally filtered by
// type.
func (b *Bus) History(eventType string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if eventType == "" {
		out := make([]Event, len(b.history))
		copy(out, b.history)
		return out
	}

	var out []Event
	for _, e := range b.history {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// ClearHistory discards all retained event history.
func (b *Bus) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = nil
}

// SubscriberCount returns how many live handlers are registered for
// eventType.
func (b *Bus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	count := 0
	for _, h := range b.subscribers[eventType] {
		if h != nil {
			count++
		}
	}
	return count
}

// SetDebugMode toggles verbose per-publish logging at runtime.
func (b *Bus) SetDebugMode(enabled bool) {
	b.mu.Lock()
	b.debugMode = enabled
	b.mu.Unlock()
	logx.WithField("debug_mode", enabled).Info("eventx: debug mode changed")
}

// Event type constants published by the packages in this module.
const (
	EventMemoryStored         = "memory:stored"
	EventMemoryUpdated        = "memory:updated"
	EventMemoryDeleted        = "memory:deleted"
	EventConversationCreated  = "conversation:created"
	EventConversationDeleted  = "conversation:deleted"
	EventMessageAdded         = "message:added"
	EventContextAssembled     = "context:assembled"
	EventLLMFallbackTriggered = "llm:fallback_triggered"
	EventSelfHealRepaired     = "memory:self_heal_repaired"
	EventBackupCompleted      = "storage:backup_completed"
	EventRestoreCompleted     = "storage:restore_completed"
	EventAppShutdown          = "app:shutdown"

	// EventMemoryRetrieved fires once per retrieve_context call with the
	// ranked result set.
	EventMemoryRetrieved = "memory:retrieved"
	// EventMessageProcessed fires once the orchestrator has produced an
	// assistant reply for an incoming message.
	EventMessageProcessed = "message:processed"
	// EventContextBuilt is the stable external name for what
	// EventContextAssembled also denotes; both are published together by
	// the assembler.
	EventContextBuilt = "context:built"
	// EventLLMResponseGenerated fires after a successful Router.Chat call.
	EventLLMResponseGenerated = "llm:response_generated"
	// EventLLMEmbeddingGenerated fires after a successful Router.Embed call.
	EventLLMEmbeddingGenerated = "llm:embedding_generated"
	// EventLLMError fires whenever a model call fails definitively:
	// after the primary exhausts its retries (even if a fallback then
	// succeeds), and again if the fallback also fails.
	EventLLMError = "llm:error"
	// EventStorageBackupCreated is the stable external name published
	// alongside EventBackupCompleted.
	EventStorageBackupCreated = "storage:backup_created"
	// EventStorageBackupRestored fires after a restore swaps the live
	// stores back in.
	EventStorageBackupRestored = "storage:backup_restored"
	// EventMemoryDegraded fires when context retrieval falls back to an
	// empty result because the embedding call or the vector store query
	// failed.
	EventMemoryDegraded = "memory:degraded"
)
