// Package model holds the domain entities persisted by the metadata and
// vector stores: conversations, messages, memory items, ingested
// documents/web pages, vector embedding crosswalk records, and user
// settings.
package model

import (
	"time"

	"github.com/abraxas-365/personal-ai-core/pkg/kernel"
)

// Role identifies who authored a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the fixed roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Category classifies a MemoryItem for filtered retrieval. The set is fixed
// and closed: store_memory rejects anything outside it.
type Category string

const (
	CategoryConversation Category = "conversation"
	CategoryDocument     Category = "document"
	CategoryWeb          Category = "web"
	CategoryImportant    Category = "important"
	CategoryUserDefined  Category = "user_defined"
)

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryConversation, CategoryDocument, CategoryWeb, CategoryImportant, CategoryUserDefined:
		return true
	}
	return false
}

// Categories lists the fixed category set, in a stable order, for callers
// that need to enumerate it (e.g. count_by_category).
func Categories() []Category {
	return []Category{CategoryConversation, CategoryDocument, CategoryWeb, CategoryImportant, CategoryUserDefined}
}

// SourceType identifies what kind of entity a MemoryItem or
// VectorEmbeddingRecord was derived from.
type SourceType string

const (
	SourceTypeMessage         SourceType = "message"
	SourceTypeDocumentChunk   SourceType = "document_chunk"
	SourceTypeWebContentChunk SourceType = "web_content_chunk"
	SourceTypeUser            SourceType = "user"
)

// Conversation groups an ordered sequence of Messages. Deleting a
// Conversation deletes all its Messages (enforced by the metadata store).
type Conversation struct {
	ID        kernel.ID
	Title     string
	Summary   string
	CreatedAt time.Time
	UpdatedAt time.Time
	Metadata  map[string]any
}

// Message is a single turn in a Conversation. Content is stored encrypted
// at rest for every role except RoleSystem.
type Message struct {
	ID             kernel.ID
	ConversationID kernel.ID
	Role           Role
	Content        string
	CreatedAt      time.Time
	Metadata       map[string]any
}

// MinImportance and MaxImportance bound the valid importance range.
const (
	MinImportance = 1
	MaxImportance = 5
	// DefaultImportance is assigned to a MemoryItem when the caller omits one.
	DefaultImportance = 1
)

// ValidImportance reports whether v is in [MinImportance, MaxImportance].
func ValidImportance(v int) bool {
	return v >= MinImportance && v <= MaxImportance
}

// ClampImportance forces an importance value into the valid range. Used only
// where the caller has already validated intent (e.g. defaulting); rejecting
// invalid input is handled separately via ValidImportance so a bad explicit
// value surfaces ValidationError instead of being silently clamped.
func ClampImportance(v int) int {
	if v < MinImportance {
		return MinImportance
	}
	if v > MaxImportance {
		return MaxImportance
	}
	return v
}

// MemoryItem is the unit of retrievable knowledge: a metadata-store row
// mirrored by a vector-store entry sharing the same ID once indexed.
type MemoryItem struct {
	ID         kernel.ID
	Content    string
	Category   Category
	SourceType SourceType // optional; empty if not source-linked
	SourceID   string     // optional; empty if not source-linked
	Importance int        // 1-5; monotonic only under automatic updates, not direct user edits
	CreatedAt  time.Time
	Metadata   map[string]any
}

// VectorEmbeddingRecord crosswalks a MemoryItem/DocumentChunk/WebContentChunk
// to its vector-store entry. (SourceType, SourceID) is unique.
type VectorEmbeddingRecord struct {
	ID             kernel.ID
	SourceType     SourceType // memory_item | document_chunk | web_content_chunk
	SourceID       string
	EmbeddingModel string
	Indexed        bool
	CreatedAt      time.Time
}

const (
	EmbeddingSourceMemoryItem       SourceType = "memory_item"
	EmbeddingSourceDocumentChunk    SourceType = "document_chunk"
	EmbeddingSourceWebContentChunk  SourceType = "web_content_chunk"
)

// Document is an ingested source document, chunked for retrieval.
type Document struct {
	ID           kernel.ID
	Filename     string
	FileType     string
	StoragePath  string
	Processed    bool
	Summary      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Metadata     map[string]any
}

// DocumentChunk is one retrievable slice of a Document. ChunkIndex is unique
// per parent Document.
type DocumentChunk struct {
	ID         kernel.ID
	DocumentID kernel.ID
	ChunkIndex int
	Content    string
	PageNumber *int
	CreatedAt  time.Time
	Metadata   map[string]any
}

// WebPage is an ingested web resource, chunked for retrieval like Document.
type WebPage struct {
	ID           kernel.ID
	URL          string
	Title        string
	LastAccessed time.Time
	Processed    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Metadata     map[string]any
}

// WebContentChunk is one retrievable slice of a WebPage.
type WebContentChunk struct {
	ID         kernel.ID
	WebPageID  kernel.ID
	ChunkIndex int
	Content    string
	CreatedAt  time.Time
	Metadata   map[string]any
}

// Personality level vocabularies (closed sets; empathy/humor/creativity
// share LevelNone..LevelHigh, style/formality/verbosity each have their own
// fixed vocabulary). Clause text for each is looked up in pkg/context.
const (
	LevelNone    = "none"
	LevelMinimal = "minimal"
	LevelLight   = "light"
	LevelMedium  = "medium"
	LevelHigh    = "high"

	StyleHelpful      = "helpful"
	StyleProfessional = "professional"
	StyleFriendly     = "friendly"
	StyleConcise      = "concise"
	StyleDetailed     = "detailed"

	FormalityCasual  = "casual"
	FormalityNeutral = "neutral"
	FormalityFormal  = "formal"

	VerbosityMinimal  = "minimal"
	VerbosityBalanced = "balanced"
	VerbosityDetailed = "detailed"
)

// PersonalitySettings configures the context assembler's system-prompt
// clause vocabulary.
type PersonalitySettings struct {
	Style      string // one of Style*
	Formality  string // one of Formality*
	Verbosity  string // one of Verbosity*
	Empathy    string // Level*
	Humor      string // Level*
	Creativity string // Level*
}

// DefaultPersonality is the out-of-the-box personality.
func DefaultPersonality() PersonalitySettings {
	return PersonalitySettings{
		Style:      StyleHelpful,
		Formality:  FormalityNeutral,
		Verbosity:  VerbosityBalanced,
		Empathy:    LevelMedium,
		Humor:      LevelLight,
		Creativity: LevelMedium,
	}
}

// VoiceSettings, PrivacySettings, StorageSettings, LLMSettings, and
// SearchSettings are free-form grouped option bags: the core never
// interprets their keys beyond passing them to the relevant collaborator
// (voice/STT-TTS, privacy policy, storage backend choice, LLM provider
// selection, search tuning), so they're modeled as maps rather than fixed
// structs.
type VoiceSettings map[string]any
type PrivacySettings map[string]any
type StorageSettings map[string]any
type LLMSettings map[string]any
type SearchSettings map[string]any
type MemorySettings map[string]any

// UserSettings is the singleton record holding the seven grouped settings
// maps. Version increments on every UpdateUserSettings call so callers
// can detect a concurrent modification.
type UserSettings struct {
	Version     int
	Voice       VoiceSettings
	Personality PersonalitySettings
	Privacy     PrivacySettings
	Storage     StorageSettings
	LLM         LLMSettings
	Search      SearchSettings
	Memory      MemorySettings
	UpdatedAt   time.Time
}

// DefaultUserSettings returns the singleton's zero-state defaults.
func DefaultUserSettings() UserSettings {
	return UserSettings{
		Version:     1,
		Voice:       VoiceSettings{},
		Personality: DefaultPersonality(),
		Privacy:     PrivacySettings{},
		Storage:     StorageSettings{},
		LLM:         LLMSettings{"primary": "anthropic", "fallback": "openai"},
		Search:      SearchSettings{},
		Memory:      MemorySettings{},
	}
}
