// Package mspostgres is the optional multi-device metastore.Store
// backend: PostgreSQL reached through jmoiron/sqlx. NamedExecContext for
// writes, Get/Select for reads, pq.Error code "23505" for
// unique-violation detection.
package mspostgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/abraxas-365/personal-ai-core/pkg/cryptx"
	"github.com/abraxas-365/personal-ai-core/pkg/kernel"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/metastore"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/model"
	"github.com/abraxas-365/personal-ai-core/pkg/ptrx"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id),
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
CREATE TABLE IF NOT EXISTS memory_items (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	category TEXT NOT NULL,
	source_type TEXT NOT NULL DEFAULT '',
	source_id TEXT NOT NULL DEFAULT '',
	importance INTEGER NOT NULL DEFAULT 1,
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memory_items_category ON memory_items(category);
CREATE INDEX IF NOT EXISTS idx_memory_items_source ON memory_items(source_type, source_id);
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	file_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	processed BOOLEAN NOT NULL DEFAULT FALSE,
	summary TEXT NOT NULL DEFAULT '',
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS document_chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	page_number INTEGER,
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE(document_id, chunk_index)
);
CREATE TABLE IF NOT EXISTS web_pages (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	last_accessed TIMESTAMPTZ NOT NULL,
	processed BOOLEAN NOT NULL DEFAULT FALSE,
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS web_content_chunks (
	id TEXT PRIMARY KEY,
	web_page_id TEXT NOT NULL REFERENCES web_pages(id),
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE(web_page_id, chunk_index)
);
CREATE TABLE IF NOT EXISTS vector_embedding_records (
	id TEXT PRIMARY KEY,
	source_type TEXT NOT NULL,
	source_id TEXT NOT NULL,
	embedding_model TEXT NOT NULL,
	indexed BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE(source_type, source_id)
);
CREATE TABLE IF NOT EXISTS user_settings (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	version INTEGER NOT NULL,
	voice JSONB NOT NULL DEFAULT '{}',
	personality JSONB NOT NULL DEFAULT '{}',
	privacy JSONB NOT NULL DEFAULT '{}',
	storage JSONB NOT NULL DEFAULT '{}',
	llm JSONB NOT NULL DEFAULT '{}',
	search JSONB NOT NULL DEFAULT '{}',
	memory JSONB NOT NULL DEFAULT '{}',
	updated_at TIMESTAMPTZ NOT NULL
);
`

// Store is the PostgreSQL-backed metastore.Store, for deployments that
// keep metadata and vectors in one shared database.
type Store struct {
	db  *sqlx.DB
	key []byte
}

// Open connects to dsn, applies the schema, and returns a ready Store.
func Open(dsn string, key []byte) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, metastore.Wrap(err, "connect to postgres")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, metastore.Wrap(err, "apply schema")
	}
	return &Store{db: db, key: key}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) seal(plaintext string) (string, error) {
	if s.key == nil {
		return plaintext, nil
	}
	return cryptx.SealString(plaintext, s.key)
}

func (s *Store) unseal(stored string) (string, error) {
	if s.key == nil || !cryptx.IsSealed(stored) {
		return stored, nil
	}
	return cryptx.UnsealString(stored, s.key)
}

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}

type jsonMeta map[string]any

func (j jsonMeta) Value() ([]byte, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(j))
}

// ---- Conversations ----

type conversationRow struct {
	ID        string    `db:"id"`
	Title     string    `db:"title"`
	Summary   string    `db:"summary"`
	Metadata  []byte    `db:"metadata"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r conversationRow) toDomain() *model.Conversation {
	var meta map[string]any
	json.Unmarshal(r.Metadata, &meta)
	return &model.Conversation{
		ID: kernel.ParseID(r.ID), Title: r.Title, Summary: r.Summary,
		Metadata: meta, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func (s *Store) CreateConversation(ctx context.Context, c *model.Conversation) error {
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return metastore.Wrap(err, "marshal conversation metadata")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, title, summary, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID.String(), c.Title, c.Summary, meta, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return metastore.Wrap(err, "create conversation")
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, id kernel.ID) (*model.Conversation, error) {
	var row conversationRow
	err := s.db.GetContext(ctx, &row, `SELECT id, title, summary, metadata, created_at, updated_at FROM conversations WHERE id = $1`, id.String())
	if err == sql.ErrNoRows {
		return nil, metastore.NotFound("conversation", id.String())
	}
	if err != nil {
		return nil, metastore.Wrap(err, "get conversation")
	}
	return row.toDomain(), nil
}

func (s *Store) UpdateConversation(ctx context.Context, c *model.Conversation) error {
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return metastore.Wrap(err, "marshal conversation metadata")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET title=$1, summary=$2, metadata=$3, updated_at=$4 WHERE id=$5`,
		c.Title, c.Summary, meta, c.UpdatedAt, c.ID.String())
	if err != nil {
		return metastore.Wrap(err, "update conversation")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return metastore.NotFound("conversation", c.ID.String())
	}
	return nil
}

func (s *Store) DeleteConversation(ctx context.Context, id kernel.ID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return metastore.Wrap(err, "begin delete conversation tx")
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = $1`, id.String()); err != nil {
		return metastore.Wrap(err, "cascade delete messages")
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, id.String())
	if err != nil {
		return metastore.Wrap(err, "delete conversation")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return metastore.NotFound("conversation", id.String())
	}
	return tx.Commit()
}

func (s *Store) ListConversations(ctx context.Context, f metastore.ListFilter) ([]*model.Conversation, error) {
	query := `SELECT id, title, summary, metadata, created_at, updated_at FROM conversations ORDER BY updated_at DESC`
	var args []any
	if f.Limit > 0 {
		query += ` LIMIT $1`
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += ` OFFSET $2`
			args = append(args, f.Offset)
		}
	}
	var rows []conversationRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, metastore.Wrap(err, "list conversations")
	}
	out := make([]*model.Conversation, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) CountConversations(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM conversations`); err != nil {
		return 0, metastore.Wrap(err, "count conversations")
	}
	return n, nil
}

// ---- Messages ----

type messageRow struct {
	ID             string    `db:"id"`
	ConversationID string    `db:"conversation_id"`
	Role           string    `db:"role"`
	Content        string    `db:"content"`
	Metadata       []byte    `db:"metadata"`
	CreatedAt      time.Time `db:"created_at"`
}

func (s *Store) rowToMessage(r messageRow) (*model.Message, error) {
	plain, err := s.unseal(r.Content)
	if err != nil {
		return nil, err
	}
	var meta map[string]any
	json.Unmarshal(r.Metadata, &meta)
	return &model.Message{
		ID: kernel.ParseID(r.ID), ConversationID: kernel.ParseID(r.ConversationID),
		Role: model.Role(r.Role), Content: plain, Metadata: meta, CreatedAt: r.CreatedAt,
	}, nil
}

func (s *Store) CreateMessage(ctx context.Context, m *model.Message) error {
	// System messages stay plaintext so they remain queryable; user and
	// assistant content is sealed at rest.
	content := m.Content
	if m.Role != model.RoleSystem {
		var err error
		content, err = s.seal(m.Content)
		if err != nil {
			return metastore.Wrap(err, "seal message content")
		}
	}
	meta, err := json.Marshal(m.Metadata)
	if err != nil {
		return metastore.Wrap(err, "marshal message metadata")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID.String(), m.ConversationID.String(), string(m.Role), content, meta, m.CreatedAt)
	if err != nil {
		return metastore.Wrap(err, "create message")
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id kernel.ID) (*model.Message, error) {
	var row messageRow
	err := s.db.GetContext(ctx, &row, `SELECT id, conversation_id, role, content, metadata, created_at FROM messages WHERE id = $1`, id.String())
	if err == sql.ErrNoRows {
		return nil, metastore.NotFound("message", id.String())
	}
	if err != nil {
		return nil, metastore.Wrap(err, "get message")
	}
	return s.rowToMessage(row)
}

func (s *Store) ListMessages(ctx context.Context, conversationID kernel.ID, f metastore.ListFilter) ([]*model.Message, error) {
	query := `SELECT id, conversation_id, role, content, metadata, created_at FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC`
	args := []any{conversationID.String()}
	if f.Limit > 0 {
		query += ` LIMIT $2`
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += ` OFFSET $3`
			args = append(args, f.Offset)
		}
	}
	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, metastore.Wrap(err, "list messages")
	}
	out := make([]*model.Message, 0, len(rows))
	for _, r := range rows {
		msg, err := s.rowToMessage(r)
		if err != nil {
			return nil, metastore.Wrap(err, "decode message")
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *Store) CountMessages(ctx context.Context, conversationID kernel.ID) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM messages WHERE conversation_id = $1`, conversationID.String()); err != nil {
		return 0, metastore.Wrap(err, "count messages")
	}
	return n, nil
}

// ---- MemoryItems ----

type memoryItemRow struct {
	ID         string    `db:"id"`
	Content    string    `db:"content"`
	Category   string    `db:"category"`
	SourceType string    `db:"source_type"`
	SourceID   string    `db:"source_id"`
	Importance int       `db:"importance"`
	Metadata   []byte    `db:"metadata"`
	CreatedAt  time.Time `db:"created_at"`
}

func (s *Store) rowToMemoryItem(r memoryItemRow) (*model.MemoryItem, error) {
	plain, err := s.unseal(r.Content)
	if err != nil {
		return nil, err
	}
	var meta map[string]any
	json.Unmarshal(r.Metadata, &meta)
	return &model.MemoryItem{
		ID: kernel.ParseID(r.ID), Content: plain, Category: model.Category(r.Category),
		SourceType: model.SourceType(r.SourceType), SourceID: r.SourceID,
		Importance: r.Importance, Metadata: meta, CreatedAt: r.CreatedAt,
	}, nil
}

func (s *Store) CreateMemoryItem(ctx context.Context, m *model.MemoryItem) error {
	content, err := s.seal(m.Content)
	if err != nil {
		return metastore.Wrap(err, "seal memory item content")
	}
	meta, err := json.Marshal(m.Metadata)
	if err != nil {
		return metastore.Wrap(err, "marshal memory item metadata")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memory_items (id, content, category, source_type, source_id, importance, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID.String(), content, string(m.Category), string(m.SourceType), m.SourceID, m.Importance, meta, m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return metastore.ConstraintViolation("memory item already exists")
		}
		return metastore.Wrap(err, "create memory item")
	}
	return nil
}

func (s *Store) GetMemoryItem(ctx context.Context, id kernel.ID) (*model.MemoryItem, error) {
	var row memoryItemRow
	err := s.db.GetContext(ctx, &row, `SELECT id, content, category, source_type, source_id, importance, metadata, created_at FROM memory_items WHERE id = $1`, id.String())
	if err == sql.ErrNoRows {
		return nil, metastore.NotFound("memory_item", id.String())
	}
	if err != nil {
		return nil, metastore.Wrap(err, "get memory item")
	}
	return s.rowToMemoryItem(row)
}

func (s *Store) UpdateMemoryItem(ctx context.Context, m *model.MemoryItem) error {
	content, err := s.seal(m.Content)
	if err != nil {
		return metastore.Wrap(err, "seal memory item content")
	}
	meta, err := json.Marshal(m.Metadata)
	if err != nil {
		return metastore.Wrap(err, "marshal memory item metadata")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE memory_items SET content=$1, category=$2, importance=$3, metadata=$4 WHERE id=$5`,
		content, string(m.Category), m.Importance, meta, m.ID.String())
	if err != nil {
		return metastore.Wrap(err, "update memory item")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return metastore.NotFound("memory_item", m.ID.String())
	}
	return nil
}

func (s *Store) DeleteMemoryItem(ctx context.Context, id kernel.ID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memory_items WHERE id = $1`, id.String())
	if err != nil {
		return metastore.Wrap(err, "delete memory item")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return metastore.NotFound("memory_item", id.String())
	}
	return nil
}

func (s *Store) ListMemoryItems(ctx context.Context, f metastore.MemoryItemFilter) ([]*model.MemoryItem, error) {
	query := `SELECT id, content, category, source_type, source_id, importance, metadata, created_at FROM memory_items WHERE 1=1`
	var args []any
	n := 0
	addArg := func(clause string, val any) {
		n++
		query += clause + "$" + itoa(n)
		args = append(args, val)
	}
	if f.Category != "" {
		addArg(" AND category = ", string(f.Category))
	}
	if f.SourceType != "" {
		addArg(" AND source_type = ", string(f.SourceType))
	}
	if f.SourceID != "" {
		addArg(" AND source_id = ", f.SourceID)
	}
	if f.MinImportance > 0 {
		addArg(" AND importance >= ", f.MinImportance)
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		addArg(" LIMIT ", f.Limit)
		if f.Offset > 0 {
			addArg(" OFFSET ", f.Offset)
		}
	}
	var rows []memoryItemRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, metastore.Wrap(err, "list memory items")
	}
	out := make([]*model.MemoryItem, 0, len(rows))
	for _, r := range rows {
		item, err := s.rowToMemoryItem(r)
		if err != nil {
			return nil, metastore.Wrap(err, "decode memory item")
		}
		if f.ConversationID != "" {
			if cid, ok := item.Metadata["conversation_id"].(string); !ok || cid != f.ConversationID {
				continue
			}
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *Store) GetMemoryItemsByIDs(ctx context.Context, ids []kernel.ID) ([]*model.MemoryItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	var rows []memoryItemRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, content, category, source_type, source_id, importance, metadata, created_at FROM memory_items WHERE id = ANY($1)`, pq.Array(strs)); err != nil {
		return nil, metastore.Wrap(err, "get memory items by ids")
	}
	byID := map[string]*model.MemoryItem{}
	for _, r := range rows {
		item, err := s.rowToMemoryItem(r)
		if err != nil {
			return nil, metastore.Wrap(err, "decode memory item")
		}
		byID[r.ID] = item
	}
	out := make([]*model.MemoryItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := byID[id.String()]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *Store) CountMemoryItems(ctx context.Context, f metastore.MemoryItemFilter) (int, error) {
	query := `SELECT COUNT(*) FROM memory_items WHERE 1=1`
	var args []any
	if f.Category != "" {
		args = append(args, string(f.Category))
		query += ` AND category = $` + itoa(len(args))
	}
	if f.MinImportance > 0 {
		args = append(args, f.MinImportance)
		query += ` AND importance >= $` + itoa(len(args))
	}
	var n int
	if err := s.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, metastore.Wrap(err, "count memory items")
	}
	return n, nil
}

func (s *Store) CountMemoryItemsByCategory(ctx context.Context) (map[model.Category]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM memory_items GROUP BY category`)
	if err != nil {
		return nil, metastore.Wrap(err, "count memory items by category")
	}
	defer rows.Close()
	out := map[model.Category]int{}
	for _, c := range model.Categories() {
		out[c] = 0
	}
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, metastore.Wrap(err, "scan category count")
		}
		out[model.Category(cat)] = n
	}
	return out, rows.Err()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	if neg {
		digits = "-" + digits
	}
	return digits
}

// ---- Documents ----

type documentRow struct {
	ID          string    `db:"id"`
	Filename    string    `db:"filename"`
	FileType    string    `db:"file_type"`
	StoragePath string    `db:"storage_path"`
	Processed   bool      `db:"processed"`
	Summary     string    `db:"summary"`
	Metadata    []byte    `db:"metadata"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r documentRow) toDomain() *model.Document {
	var meta map[string]any
	json.Unmarshal(r.Metadata, &meta)
	return &model.Document{
		ID: kernel.ParseID(r.ID), Filename: r.Filename, FileType: r.FileType, StoragePath: r.StoragePath,
		Processed: r.Processed, Summary: r.Summary, Metadata: meta, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func (s *Store) CreateDocument(ctx context.Context, d *model.Document) error {
	meta, err := json.Marshal(d.Metadata)
	if err != nil {
		return metastore.Wrap(err, "marshal document metadata")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, filename, file_type, storage_path, processed, summary, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID.String(), d.Filename, d.FileType, d.StoragePath, d.Processed, d.Summary, meta, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return metastore.Wrap(err, "create document")
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, id kernel.ID) (*model.Document, error) {
	var row documentRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM documents WHERE id = $1`, id.String())
	if err == sql.ErrNoRows {
		return nil, metastore.NotFound("document", id.String())
	}
	if err != nil {
		return nil, metastore.Wrap(err, "get document")
	}
	return row.toDomain(), nil
}

func (s *Store) UpdateDocument(ctx context.Context, d *model.Document) error {
	meta, err := json.Marshal(d.Metadata)
	if err != nil {
		return metastore.Wrap(err, "marshal document metadata")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET processed=$1, summary=$2, metadata=$3, updated_at=$4 WHERE id=$5`,
		d.Processed, d.Summary, meta, d.UpdatedAt, d.ID.String())
	if err != nil {
		return metastore.Wrap(err, "update document")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return metastore.NotFound("document", d.ID.String())
	}
	return nil
}

func (s *Store) DeleteDocument(ctx context.Context, id kernel.ID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return metastore.Wrap(err, "begin delete document tx")
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, id.String()); err != nil {
		return metastore.Wrap(err, "cascade delete document chunks")
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id.String())
	if err != nil {
		return metastore.Wrap(err, "delete document")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return metastore.NotFound("document", id.String())
	}
	return tx.Commit()
}

func (s *Store) ListDocuments(ctx context.Context, f metastore.ListFilter) ([]*model.Document, error) {
	query := `SELECT * FROM documents ORDER BY created_at DESC`
	var args []any
	if f.Limit > 0 {
		query += ` LIMIT $1`
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += ` OFFSET $2`
			args = append(args, f.Offset)
		}
	}
	var rows []documentRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, metastore.Wrap(err, "list documents")
	}
	out := make([]*model.Document, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

type documentChunkRow struct {
	ID         string        `db:"id"`
	DocumentID string        `db:"document_id"`
	ChunkIndex int           `db:"chunk_index"`
	Content    string        `db:"content"`
	PageNumber sql.NullInt64 `db:"page_number"`
	Metadata   []byte        `db:"metadata"`
	CreatedAt  time.Time     `db:"created_at"`
}

func (s *Store) CreateDocumentChunk(ctx context.Context, c *model.DocumentChunk) error {
	content, err := s.seal(c.Content)
	if err != nil {
		return metastore.Wrap(err, "seal document chunk content")
	}
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return metastore.Wrap(err, "marshal document chunk metadata")
	}
	var page any
	if c.PageNumber != nil {
		page = ptrx.IntValue(c.PageNumber)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO document_chunks (id, document_id, chunk_index, content, page_number, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID.String(), c.DocumentID.String(), c.ChunkIndex, content, page, meta, c.CreatedAt)
	if err != nil {
		return metastore.Wrap(err, "create document chunk")
	}
	return nil
}

func (s *Store) ListDocumentChunks(ctx context.Context, documentID kernel.ID) ([]*model.DocumentChunk, error) {
	var rows []documentChunkRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM document_chunks WHERE document_id = $1 ORDER BY chunk_index ASC`, documentID.String()); err != nil {
		return nil, metastore.Wrap(err, "list document chunks")
	}
	out := make([]*model.DocumentChunk, 0, len(rows))
	for _, r := range rows {
		plain, err := s.unseal(r.Content)
		if err != nil {
			return nil, metastore.Wrap(err, "unseal document chunk content")
		}
		var meta map[string]any
		json.Unmarshal(r.Metadata, &meta)
		chunk := &model.DocumentChunk{
			ID: kernel.ParseID(r.ID), DocumentID: kernel.ParseID(r.DocumentID), ChunkIndex: r.ChunkIndex,
			Content: plain, Metadata: meta, CreatedAt: r.CreatedAt,
		}
		if r.PageNumber.Valid {
			chunk.PageNumber = ptrx.Int(int(r.PageNumber.Int64))
		}
		out = append(out, chunk)
	}
	return out, nil
}

// ---- WebPages ----

type webPageRow struct {
	ID           string    `db:"id"`
	URL          string    `db:"url"`
	Title        string    `db:"title"`
	LastAccessed time.Time `db:"last_accessed"`
	Processed    bool      `db:"processed"`
	Metadata     []byte    `db:"metadata"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r webPageRow) toDomain() *model.WebPage {
	var meta map[string]any
	json.Unmarshal(r.Metadata, &meta)
	return &model.WebPage{
		ID: kernel.ParseID(r.ID), URL: r.URL, Title: r.Title, LastAccessed: r.LastAccessed,
		Processed: r.Processed, Metadata: meta, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func (s *Store) CreateWebPage(ctx context.Context, w *model.WebPage) error {
	meta, err := json.Marshal(w.Metadata)
	if err != nil {
		return metastore.Wrap(err, "marshal web page metadata")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO web_pages (id, url, title, last_accessed, processed, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		w.ID.String(), w.URL, w.Title, w.LastAccessed, w.Processed, meta, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return metastore.Wrap(err, "create web page")
	}
	return nil
}

func (s *Store) GetWebPage(ctx context.Context, id kernel.ID) (*model.WebPage, error) {
	var row webPageRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM web_pages WHERE id = $1`, id.String())
	if err == sql.ErrNoRows {
		return nil, metastore.NotFound("web_page", id.String())
	}
	if err != nil {
		return nil, metastore.Wrap(err, "get web page")
	}
	return row.toDomain(), nil
}

func (s *Store) UpdateWebPage(ctx context.Context, w *model.WebPage) error {
	meta, err := json.Marshal(w.Metadata)
	if err != nil {
		return metastore.Wrap(err, "marshal web page metadata")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE web_pages SET title=$1, last_accessed=$2, processed=$3, metadata=$4, updated_at=$5 WHERE id=$6`,
		w.Title, w.LastAccessed, w.Processed, meta, w.UpdatedAt, w.ID.String())
	if err != nil {
		return metastore.Wrap(err, "update web page")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return metastore.NotFound("web_page", w.ID.String())
	}
	return nil
}

func (s *Store) DeleteWebPage(ctx context.Context, id kernel.ID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return metastore.Wrap(err, "begin delete web page tx")
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM web_content_chunks WHERE web_page_id = $1`, id.String()); err != nil {
		return metastore.Wrap(err, "cascade delete web content chunks")
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM web_pages WHERE id = $1`, id.String())
	if err != nil {
		return metastore.Wrap(err, "delete web page")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return metastore.NotFound("web_page", id.String())
	}
	return tx.Commit()
}

func (s *Store) ListWebPages(ctx context.Context, f metastore.ListFilter) ([]*model.WebPage, error) {
	query := `SELECT * FROM web_pages ORDER BY created_at DESC`
	var args []any
	if f.Limit > 0 {
		query += ` LIMIT $1`
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += ` OFFSET $2`
			args = append(args, f.Offset)
		}
	}
	var rows []webPageRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, metastore.Wrap(err, "list web pages")
	}
	out := make([]*model.WebPage, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

type webContentChunkRow struct {
	ID         string    `db:"id"`
	WebPageID  string    `db:"web_page_id"`
	ChunkIndex int       `db:"chunk_index"`
	Content    string    `db:"content"`
	Metadata   []byte    `db:"metadata"`
	CreatedAt  time.Time `db:"created_at"`
}

func (s *Store) CreateWebContentChunk(ctx context.Context, c *model.WebContentChunk) error {
	content, err := s.seal(c.Content)
	if err != nil {
		return metastore.Wrap(err, "seal web content chunk")
	}
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return metastore.Wrap(err, "marshal web content chunk metadata")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO web_content_chunks (id, web_page_id, chunk_index, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID.String(), c.WebPageID.String(), c.ChunkIndex, content, meta, c.CreatedAt)
	if err != nil {
		return metastore.Wrap(err, "create web content chunk")
	}
	return nil
}

func (s *Store) ListWebContentChunks(ctx context.Context, webPageID kernel.ID) ([]*model.WebContentChunk, error) {
	var rows []webContentChunkRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM web_content_chunks WHERE web_page_id = $1 ORDER BY chunk_index ASC`, webPageID.String()); err != nil {
		return nil, metastore.Wrap(err, "list web content chunks")
	}
	out := make([]*model.WebContentChunk, 0, len(rows))
	for _, r := range rows {
		plain, err := s.unseal(r.Content)
		if err != nil {
			return nil, metastore.Wrap(err, "unseal web content chunk")
		}
		var meta map[string]any
		json.Unmarshal(r.Metadata, &meta)
		out = append(out, &model.WebContentChunk{
			ID: kernel.ParseID(r.ID), WebPageID: kernel.ParseID(r.WebPageID), ChunkIndex: r.ChunkIndex,
			Content: plain, Metadata: meta, CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

// ---- VectorEmbeddingRecords ----

func (s *Store) UpsertEmbeddingRecord(ctx context.Context, r *model.VectorEmbeddingRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vector_embedding_records (id, source_type, source_id, embedding_model, indexed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_type, source_id) DO UPDATE SET
			embedding_model = excluded.embedding_model, indexed = excluded.indexed`,
		r.ID.String(), string(r.SourceType), r.SourceID, r.EmbeddingModel, r.Indexed, r.CreatedAt)
	if err != nil {
		return metastore.Wrap(err, "upsert vector embedding record")
	}
	return nil
}

func (s *Store) GetEmbeddingRecord(ctx context.Context, sourceType model.SourceType, sourceID string) (*model.VectorEmbeddingRecord, error) {
	var row struct {
		ID             string    `db:"id"`
		SourceType     string    `db:"source_type"`
		SourceID       string    `db:"source_id"`
		EmbeddingModel string    `db:"embedding_model"`
		Indexed        bool      `db:"indexed"`
		CreatedAt      time.Time `db:"created_at"`
	}
	err := s.db.GetContext(ctx, &row, `SELECT * FROM vector_embedding_records WHERE source_type = $1 AND source_id = $2`, string(sourceType), sourceID)
	if err == sql.ErrNoRows {
		return nil, metastore.NotFound("vector_embedding_record", sourceID)
	}
	if err != nil {
		return nil, metastore.Wrap(err, "get vector embedding record")
	}
	return &model.VectorEmbeddingRecord{
		ID: kernel.ParseID(row.ID), SourceType: model.SourceType(row.SourceType), SourceID: row.SourceID,
		EmbeddingModel: row.EmbeddingModel, Indexed: row.Indexed, CreatedAt: row.CreatedAt,
	}, nil
}

func (s *Store) DeleteEmbeddingRecord(ctx context.Context, sourceType model.SourceType, sourceID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM vector_embedding_records WHERE source_type = $1 AND source_id = $2`, string(sourceType), sourceID)
	if err != nil {
		return metastore.Wrap(err, "delete vector embedding record")
	}
	return nil
}

func (s *Store) ListUnindexedEmbeddingRecords(ctx context.Context, limit int) ([]*model.VectorEmbeddingRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []struct {
		ID             string    `db:"id"`
		SourceType     string    `db:"source_type"`
		SourceID       string    `db:"source_id"`
		EmbeddingModel string    `db:"embedding_model"`
		Indexed        bool      `db:"indexed"`
		CreatedAt      time.Time `db:"created_at"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM vector_embedding_records WHERE indexed = false ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, metastore.Wrap(err, "list unindexed vector embedding records")
	}
	out := make([]*model.VectorEmbeddingRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, &model.VectorEmbeddingRecord{
			ID: kernel.ParseID(r.ID), SourceType: model.SourceType(r.SourceType), SourceID: r.SourceID,
			EmbeddingModel: r.EmbeddingModel, Indexed: r.Indexed, CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

// ---- UserSettings ----

func (s *Store) GetUserSettings(ctx context.Context) (*model.UserSettings, error) {
	var row struct {
		Version     int       `db:"version"`
		Voice       []byte    `db:"voice"`
		Personality []byte    `db:"personality"`
		Privacy     []byte    `db:"privacy"`
		Storage     []byte    `db:"storage"`
		LLM         []byte    `db:"llm"`
		Search      []byte    `db:"search"`
		Memory      []byte    `db:"memory"`
		UpdatedAt   time.Time `db:"updated_at"`
	}
	err := s.db.GetContext(ctx, &row, `SELECT version, voice, personality, privacy, storage, llm, search, memory, updated_at FROM user_settings WHERE id = 1`)
	if err == sql.ErrNoRows {
		defaults := model.DefaultUserSettings()
		defaults.UpdatedAt = time.Now().UTC()
		if err := s.SaveUserSettings(ctx, &defaults); err != nil {
			return nil, err
		}
		return &defaults, nil
	}
	if err != nil {
		return nil, metastore.Wrap(err, "get user settings")
	}
	var voice, privacy, storage, llmS, search, memoryS map[string]any
	var personality model.PersonalitySettings
	json.Unmarshal(row.Voice, &voice)
	json.Unmarshal(row.Personality, &personality)
	json.Unmarshal(row.Privacy, &privacy)
	json.Unmarshal(row.Storage, &storage)
	json.Unmarshal(row.LLM, &llmS)
	json.Unmarshal(row.Search, &search)
	json.Unmarshal(row.Memory, &memoryS)
	return &model.UserSettings{
		Version: row.Version, Voice: voice, Personality: personality, Privacy: privacy,
		Storage: storage, LLM: llmS, Search: search, Memory: memoryS, UpdatedAt: row.UpdatedAt,
	}, nil
}

func (s *Store) SaveUserSettings(ctx context.Context, u *model.UserSettings) error {
	voice, _ := json.Marshal(u.Voice)
	personality, err := json.Marshal(u.Personality)
	if err != nil {
		return metastore.Wrap(err, "marshal personality settings")
	}
	privacy, _ := json.Marshal(u.Privacy)
	storage, _ := json.Marshal(u.Storage)
	llmS, _ := json.Marshal(u.LLM)
	search, _ := json.Marshal(u.Search)
	memoryS, _ := json.Marshal(u.Memory)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_settings (id, version, voice, personality, privacy, storage, llm, search, memory, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			version = excluded.version, voice = excluded.voice, personality = excluded.personality,
			privacy = excluded.privacy, storage = excluded.storage, llm = excluded.llm,
			search = excluded.search, memory = excluded.memory, updated_at = excluded.updated_at`,
		u.Version, voice, personality, privacy, storage, llmS, search, memoryS, u.UpdatedAt)
	if err != nil {
		return metastore.Wrap(err, "save user settings")
	}
	return nil
}

// ---- Maintenance ----

func (s *Store) Optimize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `VACUUM ANALYZE`); err != nil {
		return metastore.Wrap(err, "vacuum analyze")
	}
	return nil
}

// Backup and Restore rely on pg_dump/pg_restore being invoked by the
// storage manager's process wrapper; the connection-level store has no
// portable way to stream a full logical dump through database/sql.
func (s *Store) Backup(ctx context.Context, path string) error {
	return metastore.Unsupported("backup not supported directly by the postgres store; use pg_dump").WithDetail("path", path)
}

func (s *Store) Restore(ctx context.Context, path string) error {
	return metastore.Unsupported("restore not supported directly by the postgres store; use pg_restore").WithDetail("path", path)
}
