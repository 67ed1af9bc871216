package msqlite

// schema defines every table backing metastore.Store. Content columns that
// hold user text (messages, memory items, document/web chunks) are stored
// as opaque TEXT: the provider seals them with cryptx before INSERT and
// unseals on read, so the DDL itself has no notion of encryption.
const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id),
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS memory_items (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	category TEXT NOT NULL,
	source_type TEXT NOT NULL DEFAULT '',
	source_id TEXT NOT NULL DEFAULT '',
	importance INTEGER NOT NULL DEFAULT 1,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memory_items_category ON memory_items(category);
CREATE INDEX IF NOT EXISTS idx_memory_items_source ON memory_items(source_type, source_id);
CREATE INDEX IF NOT EXISTS idx_memory_items_importance ON memory_items(importance);
CREATE INDEX IF NOT EXISTS idx_memory_items_created ON memory_items(created_at);

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	file_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	processed INTEGER NOT NULL DEFAULT 0,
	summary TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS document_chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	page_number INTEGER,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL,
	UNIQUE(document_id, chunk_index)
);
CREATE INDEX IF NOT EXISTS idx_document_chunks_document ON document_chunks(document_id);

CREATE TABLE IF NOT EXISTS web_pages (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	last_accessed INTEGER NOT NULL,
	processed INTEGER NOT NULL DEFAULT 0,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS web_content_chunks (
	id TEXT PRIMARY KEY,
	web_page_id TEXT NOT NULL REFERENCES web_pages(id),
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL,
	UNIQUE(web_page_id, chunk_index)
);
CREATE INDEX IF NOT EXISTS idx_web_content_chunks_page ON web_content_chunks(web_page_id);

CREATE TABLE IF NOT EXISTS vector_embedding_records (
	id TEXT PRIMARY KEY,
	source_type TEXT NOT NULL,
	source_id TEXT NOT NULL,
	embedding_model TEXT NOT NULL,
	indexed INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	UNIQUE(source_type, source_id)
);

CREATE TABLE IF NOT EXISTS user_settings (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	version INTEGER NOT NULL,
	voice TEXT NOT NULL DEFAULT '{}',
	personality TEXT NOT NULL DEFAULT '{}',
	privacy TEXT NOT NULL DEFAULT '{}',
	storage TEXT NOT NULL DEFAULT '{}',
	llm TEXT NOT NULL DEFAULT '{}',
	search TEXT NOT NULL DEFAULT '{}',
	memory TEXT NOT NULL DEFAULT '{}',
	updated_at INTEGER NOT NULL
);
`
