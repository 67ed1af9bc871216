// Package msqlite is the default metastore.Store implementation: an
// embedded SQLite database reached through ncruces/go-sqlite3's
// database/sql driver. Embedded schema string, blank-imported driver,
// single *sql.DB guarded by a RWMutex for the handful of operations that
// must be serialized.
package msqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"

	"github.com/abraxas-365/personal-ai-core/pkg/cryptx"
	"github.com/abraxas-365/personal-ai-core/pkg/kernel"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/metastore"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/model"
	"github.com/abraxas-365/personal-ai-core/pkg/ptrx"
)

// Store is the SQLite-backed metastore.Store.
type Store struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
	key  []byte // master key used to seal/unseal content columns; nil disables encryption
}

// Open creates (if absent) and migrates the SQLite database at path. key
// may be nil to store content fields in plaintext (e.g. in tests).
func Open(path string, key []byte) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, metastore.Wrap(err, "create database directory")
			}
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, metastore.Wrap(err, "open sqlite database")
	}
	db.SetMaxOpenConns(1) // ncruces/go-sqlite3 connections are not safely shared across goroutines
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, metastore.Wrap(err, "apply schema")
	}
	return &Store{db: db, path: path, key: key}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

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

func marshalMeta(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalMeta(s string) map[string]any {
	if s == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return map[string]any{}
	}
	return m
}

func unixMicro(t time.Time) int64  { return t.UnixMicro() }
func fromMicro(us int64) time.Time { return time.UnixMicro(us).UTC() }

// ---- Conversations ----

func (s *Store) CreateConversation(ctx context.Context, c *model.Conversation) error {
	meta, err := marshalMeta(c.Metadata)
	if err != nil {
		return metastore.Wrap(err, "marshal conversation metadata")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, title, summary, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.Title, c.Summary, meta, unixMicro(c.CreatedAt), unixMicro(c.UpdatedAt))
	if err != nil {
		return metastore.Wrap(err, "create conversation")
	}
	return nil
}

func (s *Store) scanConversation(row *sql.Row) (*model.Conversation, error) {
	var c model.Conversation
	var id, meta string
	var createdAt, updatedAt int64
	if err := row.Scan(&id, &c.Title, &c.Summary, &meta, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	c.ID = kernel.ParseID(id)
	c.Metadata = unmarshalMeta(meta)
	c.CreatedAt = fromMicro(createdAt)
	c.UpdatedAt = fromMicro(updatedAt)
	return &c, nil
}

func (s *Store) GetConversation(ctx context.Context, id kernel.ID) (*model.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, title, summary, metadata, created_at, updated_at FROM conversations WHERE id = ?`, id.String())
	c, err := s.scanConversation(row)
	if err != nil {
		return nil, metastore.Wrap(err, "get conversation")
	}
	if c == nil {
		return nil, metastore.NotFound("conversation", id.String())
	}
	return c, nil
}

func (s *Store) UpdateConversation(ctx context.Context, c *model.Conversation) error {
	meta, err := marshalMeta(c.Metadata)
	if err != nil {
		return metastore.Wrap(err, "marshal conversation metadata")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET title = ?, summary = ?, metadata = ?, updated_at = ? WHERE id = ?`,
		c.Title, c.Summary, meta, unixMicro(c.UpdatedAt), c.ID.String())
	if err != nil {
		return metastore.Wrap(err, "update conversation")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return metastore.NotFound("conversation", c.ID.String())
	}
	return nil
}

func (s *Store) DeleteConversation(ctx context.Context, id kernel.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return metastore.Wrap(err, "begin delete conversation tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id.String()); err != nil {
		return metastore.Wrap(err, "cascade delete messages")
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id.String())
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
	query, args := applyLimitOffset(query, f.Limit, f.Offset)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, metastore.Wrap(err, "list conversations")
	}
	defer rows.Close()

	var out []*model.Conversation
	for rows.Next() {
		var c model.Conversation
		var id, meta string
		var createdAt, updatedAt int64
		if err := rows.Scan(&id, &c.Title, &c.Summary, &meta, &createdAt, &updatedAt); err != nil {
			return nil, metastore.Wrap(err, "scan conversation")
		}
		parsed := kernel.ParseID(id)
		c.ID = parsed
		c.Metadata = unmarshalMeta(meta)
		c.CreatedAt = fromMicro(createdAt)
		c.UpdatedAt = fromMicro(updatedAt)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Store) CountConversations(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n); err != nil {
		return 0, metastore.Wrap(err, "count conversations")
	}
	return n, nil
}

// ---- Messages ----

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
	meta, err := marshalMeta(m.Metadata)
	if err != nil {
		return metastore.Wrap(err, "marshal message metadata")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID.String(), m.ConversationID.String(), string(m.Role), content, meta, unixMicro(m.CreatedAt))
	if err != nil {
		return metastore.Wrap(err, "create message")
	}
	return nil
}

func (s *Store) rowToMessage(id, convID, role, content, meta string, createdAt int64) (*model.Message, error) {
	plain, err := s.unseal(content)
	if err != nil {
		return nil, err
	}
	pid := kernel.ParseID(id)
	cid := kernel.ParseID(convID)
	return &model.Message{
		ID:             pid,
		ConversationID: cid,
		Role:           model.Role(role),
		Content:        plain,
		Metadata:       unmarshalMeta(meta),
		CreatedAt:      fromMicro(createdAt),
	}, nil
}

func (s *Store) GetMessage(ctx context.Context, id kernel.ID) (*model.Message, error) {
	var rid, convID, role, content, meta string
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `SELECT id, conversation_id, role, content, metadata, created_at FROM messages WHERE id = ?`, id.String()).
		Scan(&rid, &convID, &role, &content, &meta, &createdAt)
	if err == sql.ErrNoRows {
		return nil, metastore.NotFound("message", id.String())
	}
	if err != nil {
		return nil, metastore.Wrap(err, "get message")
	}
	return s.rowToMessage(rid, convID, role, content, meta, createdAt)
}

func (s *Store) ListMessages(ctx context.Context, conversationID kernel.ID, f metastore.ListFilter) ([]*model.Message, error) {
	query := `SELECT id, conversation_id, role, content, metadata, created_at FROM messages WHERE conversation_id = ? ORDER BY created_at ASC`
	args := []any{conversationID.String()}
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, f.Offset)
		}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, metastore.Wrap(err, "list messages")
	}
	defer rows.Close()

	var out []*model.Message
	for rows.Next() {
		var rid, convID, role, content, meta string
		var createdAt int64
		if err := rows.Scan(&rid, &convID, &role, &content, &meta, &createdAt); err != nil {
			return nil, metastore.Wrap(err, "scan message")
		}
		msg, err := s.rowToMessage(rid, convID, role, content, meta, createdAt)
		if err != nil {
			return nil, metastore.Wrap(err, "decode message")
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *Store) CountMessages(ctx context.Context, conversationID kernel.ID) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID.String()).Scan(&n); err != nil {
		return 0, metastore.Wrap(err, "count messages")
	}
	return n, nil
}

// ---- MemoryItems ----

func (s *Store) CreateMemoryItem(ctx context.Context, m *model.MemoryItem) error {
	content, err := s.seal(m.Content)
	if err != nil {
		return metastore.Wrap(err, "seal memory item content")
	}
	meta, err := marshalMeta(m.Metadata)
	if err != nil {
		return metastore.Wrap(err, "marshal memory item metadata")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memory_items (id, content, category, source_type, source_id, importance, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID.String(), content, string(m.Category), string(m.SourceType), m.SourceID, m.Importance, meta, unixMicro(m.CreatedAt))
	if err != nil {
		return metastore.Wrap(err, "create memory item")
	}
	return nil
}

func (s *Store) rowToMemoryItem(id, content, category, sourceType, sourceID string, importance int, meta string, createdAt int64) (*model.MemoryItem, error) {
	plain, err := s.unseal(content)
	if err != nil {
		return nil, err
	}
	pid := kernel.ParseID(id)
	return &model.MemoryItem{
		ID:         pid,
		Content:    plain,
		Category:   model.Category(category),
		SourceType: model.SourceType(sourceType),
		SourceID:   sourceID,
		Importance: importance,
		Metadata:   unmarshalMeta(meta),
		CreatedAt:  fromMicro(createdAt),
	}, nil
}

func (s *Store) GetMemoryItem(ctx context.Context, id kernel.ID) (*model.MemoryItem, error) {
	var rid, content, category, sourceType, sourceID, meta string
	var importance int
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `SELECT id, content, category, source_type, source_id, importance, metadata, created_at FROM memory_items WHERE id = ?`, id.String()).
		Scan(&rid, &content, &category, &sourceType, &sourceID, &importance, &meta, &createdAt)
	if err == sql.ErrNoRows {
		return nil, metastore.NotFound("memory_item", id.String())
	}
	if err != nil {
		return nil, metastore.Wrap(err, "get memory item")
	}
	return s.rowToMemoryItem(rid, content, category, sourceType, sourceID, importance, meta, createdAt)
}

func (s *Store) UpdateMemoryItem(ctx context.Context, m *model.MemoryItem) error {
	content, err := s.seal(m.Content)
	if err != nil {
		return metastore.Wrap(err, "seal memory item content")
	}
	meta, err := marshalMeta(m.Metadata)
	if err != nil {
		return metastore.Wrap(err, "marshal memory item metadata")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE memory_items SET content = ?, category = ?, importance = ?, metadata = ? WHERE id = ?`,
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
	res, err := s.db.ExecContext(ctx, `DELETE FROM memory_items WHERE id = ?`, id.String())
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
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(f.Category))
	}
	if f.SourceType != "" {
		query += ` AND source_type = ?`
		args = append(args, string(f.SourceType))
	}
	if f.SourceID != "" {
		query += ` AND source_id = ?`
		args = append(args, f.SourceID)
	}
	if f.MinImportance > 0 {
		query += ` AND importance >= ?`
		args = append(args, f.MinImportance)
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, f.Offset)
		}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, metastore.Wrap(err, "list memory items")
	}
	defer rows.Close()

	var out []*model.MemoryItem
	for rows.Next() {
		var rid, content, category, sourceType, sourceID, meta string
		var importance int
		var createdAt int64
		if err := rows.Scan(&rid, &content, &category, &sourceType, &sourceID, &importance, &meta, &createdAt); err != nil {
			return nil, metastore.Wrap(err, "scan memory item")
		}
		item, err := s.rowToMemoryItem(rid, content, category, sourceType, sourceID, importance, meta, createdAt)
		if err != nil {
			return nil, metastore.Wrap(err, "decode memory item")
		}
		out = append(out, item)
		if f.ConversationID != "" {
			if cid, ok := item.Metadata["conversation_id"].(string); !ok || cid != f.ConversationID {
				out = out[:len(out)-1]
			}
		}
	}
	return out, rows.Err()
}

func (s *Store) GetMemoryItemsByIDs(ctx context.Context, ids []kernel.ID) ([]*model.MemoryItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id.String()
	}
	query := fmt.Sprintf(`SELECT id, content, category, source_type, source_id, importance, metadata, created_at FROM memory_items WHERE id IN (%s)`, joinPlaceholders(placeholders))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, metastore.Wrap(err, "get memory items by ids")
	}
	defer rows.Close()

	byID := map[string]*model.MemoryItem{}
	for rows.Next() {
		var rid, content, category, sourceType, sourceID, meta string
		var importance int
		var createdAt int64
		if err := rows.Scan(&rid, &content, &category, &sourceType, &sourceID, &importance, &meta, &createdAt); err != nil {
			return nil, metastore.Wrap(err, "scan memory item")
		}
		item, err := s.rowToMemoryItem(rid, content, category, sourceType, sourceID, importance, meta, createdAt)
		if err != nil {
			return nil, metastore.Wrap(err, "decode memory item")
		}
		byID[rid] = item
	}
	if err := rows.Err(); err != nil {
		return nil, err
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
		query += ` AND category = ?`
		args = append(args, string(f.Category))
	}
	if f.MinImportance > 0 {
		query += ` AND importance >= ?`
		args = append(args, f.MinImportance)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
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

// ---- Documents ----

func (s *Store) CreateDocument(ctx context.Context, d *model.Document) error {
	meta, err := marshalMeta(d.Metadata)
	if err != nil {
		return metastore.Wrap(err, "marshal document metadata")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, filename, file_type, storage_path, processed, summary, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID.String(), d.Filename, d.FileType, d.StoragePath, boolToInt(d.Processed), d.Summary, meta, unixMicro(d.CreatedAt), unixMicro(d.UpdatedAt))
	if err != nil {
		return metastore.Wrap(err, "create document")
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, id kernel.ID) (*model.Document, error) {
	var rid, filename, fileType, storagePath, summary, meta string
	var processed int
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, `SELECT id, filename, file_type, storage_path, processed, summary, metadata, created_at, updated_at FROM documents WHERE id = ?`, id.String()).
		Scan(&rid, &filename, &fileType, &storagePath, &processed, &summary, &meta, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, metastore.NotFound("document", id.String())
	}
	if err != nil {
		return nil, metastore.Wrap(err, "get document")
	}
	pid := kernel.ParseID(rid)
	return &model.Document{
		ID: pid, Filename: filename, FileType: fileType, StoragePath: storagePath,
		Processed: processed != 0, Summary: summary, Metadata: unmarshalMeta(meta),
		CreatedAt: fromMicro(createdAt), UpdatedAt: fromMicro(updatedAt),
	}, nil
}

func (s *Store) UpdateDocument(ctx context.Context, d *model.Document) error {
	meta, err := marshalMeta(d.Metadata)
	if err != nil {
		return metastore.Wrap(err, "marshal document metadata")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET processed = ?, summary = ?, metadata = ?, updated_at = ? WHERE id = ?`,
		boolToInt(d.Processed), d.Summary, meta, unixMicro(d.UpdatedAt), d.ID.String())
	if err != nil {
		return metastore.Wrap(err, "update document")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return metastore.NotFound("document", d.ID.String())
	}
	return nil
}

func (s *Store) DeleteDocument(ctx context.Context, id kernel.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return metastore.Wrap(err, "begin delete document tx")
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, id.String()); err != nil {
		return metastore.Wrap(err, "cascade delete document chunks")
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id.String())
	if err != nil {
		return metastore.Wrap(err, "delete document")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return metastore.NotFound("document", id.String())
	}
	return tx.Commit()
}

func (s *Store) ListDocuments(ctx context.Context, f metastore.ListFilter) ([]*model.Document, error) {
	query := `SELECT id, filename, file_type, storage_path, processed, summary, metadata, created_at, updated_at FROM documents ORDER BY created_at DESC`
	query, args := applyLimitOffset(query, f.Limit, f.Offset)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, metastore.Wrap(err, "list documents")
	}
	defer rows.Close()

	var out []*model.Document
	for rows.Next() {
		var rid, filename, fileType, storagePath, summary, meta string
		var processed int
		var createdAt, updatedAt int64
		if err := rows.Scan(&rid, &filename, &fileType, &storagePath, &processed, &summary, &meta, &createdAt, &updatedAt); err != nil {
			return nil, metastore.Wrap(err, "scan document")
		}
		pid := kernel.ParseID(rid)
		out = append(out, &model.Document{
			ID: pid, Filename: filename, FileType: fileType, StoragePath: storagePath,
			Processed: processed != 0, Summary: summary, Metadata: unmarshalMeta(meta),
			CreatedAt: fromMicro(createdAt), UpdatedAt: fromMicro(updatedAt),
		})
	}
	return out, rows.Err()
}

func (s *Store) CreateDocumentChunk(ctx context.Context, c *model.DocumentChunk) error {
	content, err := s.seal(c.Content)
	if err != nil {
		return metastore.Wrap(err, "seal document chunk content")
	}
	meta, err := marshalMeta(c.Metadata)
	if err != nil {
		return metastore.Wrap(err, "marshal document chunk metadata")
	}
	var page any
	if c.PageNumber != nil {
		page = ptrx.IntValue(c.PageNumber)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO document_chunks (id, document_id, chunk_index, content, page_number, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.DocumentID.String(), c.ChunkIndex, content, page, meta, unixMicro(c.CreatedAt))
	if err != nil {
		return metastore.Wrap(err, "create document chunk")
	}
	return nil
}

func (s *Store) ListDocumentChunks(ctx context.Context, documentID kernel.ID) ([]*model.DocumentChunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, document_id, chunk_index, content, page_number, metadata, created_at FROM document_chunks WHERE document_id = ? ORDER BY chunk_index ASC`, documentID.String())
	if err != nil {
		return nil, metastore.Wrap(err, "list document chunks")
	}
	defer rows.Close()

	var out []*model.DocumentChunk
	for rows.Next() {
		var rid, docID, content, meta string
		var chunkIndex int
		var page sql.NullInt64
		var createdAt int64
		if err := rows.Scan(&rid, &docID, &chunkIndex, &content, &page, &meta, &createdAt); err != nil {
			return nil, metastore.Wrap(err, "scan document chunk")
		}
		plain, err := s.unseal(content)
		if err != nil {
			return nil, metastore.Wrap(err, "unseal document chunk content")
		}
		pid := kernel.ParseID(rid)
		did := kernel.ParseID(docID)
		chunk := &model.DocumentChunk{
			ID: pid, DocumentID: did, ChunkIndex: chunkIndex, Content: plain,
			Metadata: unmarshalMeta(meta), CreatedAt: fromMicro(createdAt),
		}
		if page.Valid {
			chunk.PageNumber = ptrx.Int(int(page.Int64))
		}
		out = append(out, chunk)
	}
	return out, rows.Err()
}

// ---- WebPages ----

func (s *Store) CreateWebPage(ctx context.Context, w *model.WebPage) error {
	meta, err := marshalMeta(w.Metadata)
	if err != nil {
		return metastore.Wrap(err, "marshal web page metadata")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO web_pages (id, url, title, last_accessed, processed, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID.String(), w.URL, w.Title, unixMicro(w.LastAccessed), boolToInt(w.Processed), meta, unixMicro(w.CreatedAt), unixMicro(w.UpdatedAt))
	if err != nil {
		return metastore.Wrap(err, "create web page")
	}
	return nil
}

func (s *Store) GetWebPage(ctx context.Context, id kernel.ID) (*model.WebPage, error) {
	var rid, url, title, meta string
	var lastAccessed, createdAt, updatedAt int64
	var processed int
	err := s.db.QueryRowContext(ctx, `SELECT id, url, title, last_accessed, processed, metadata, created_at, updated_at FROM web_pages WHERE id = ?`, id.String()).
		Scan(&rid, &url, &title, &lastAccessed, &processed, &meta, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, metastore.NotFound("web_page", id.String())
	}
	if err != nil {
		return nil, metastore.Wrap(err, "get web page")
	}
	pid := kernel.ParseID(rid)
	return &model.WebPage{
		ID: pid, URL: url, Title: title, LastAccessed: fromMicro(lastAccessed),
		Processed: processed != 0, Metadata: unmarshalMeta(meta),
		CreatedAt: fromMicro(createdAt), UpdatedAt: fromMicro(updatedAt),
	}, nil
}

func (s *Store) UpdateWebPage(ctx context.Context, w *model.WebPage) error {
	meta, err := marshalMeta(w.Metadata)
	if err != nil {
		return metastore.Wrap(err, "marshal web page metadata")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE web_pages SET title = ?, last_accessed = ?, processed = ?, metadata = ?, updated_at = ? WHERE id = ?`,
		w.Title, unixMicro(w.LastAccessed), boolToInt(w.Processed), meta, unixMicro(w.UpdatedAt), w.ID.String())
	if err != nil {
		return metastore.Wrap(err, "update web page")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return metastore.NotFound("web_page", w.ID.String())
	}
	return nil
}

func (s *Store) DeleteWebPage(ctx context.Context, id kernel.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return metastore.Wrap(err, "begin delete web page tx")
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM web_content_chunks WHERE web_page_id = ?`, id.String()); err != nil {
		return metastore.Wrap(err, "cascade delete web content chunks")
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM web_pages WHERE id = ?`, id.String())
	if err != nil {
		return metastore.Wrap(err, "delete web page")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return metastore.NotFound("web_page", id.String())
	}
	return tx.Commit()
}

func (s *Store) ListWebPages(ctx context.Context, f metastore.ListFilter) ([]*model.WebPage, error) {
	query := `SELECT id, url, title, last_accessed, processed, metadata, created_at, updated_at FROM web_pages ORDER BY created_at DESC`
	query, args := applyLimitOffset(query, f.Limit, f.Offset)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, metastore.Wrap(err, "list web pages")
	}
	defer rows.Close()

	var out []*model.WebPage
	for rows.Next() {
		var rid, url, title, meta string
		var lastAccessed, createdAt, updatedAt int64
		var processed int
		if err := rows.Scan(&rid, &url, &title, &lastAccessed, &processed, &meta, &createdAt, &updatedAt); err != nil {
			return nil, metastore.Wrap(err, "scan web page")
		}
		pid := kernel.ParseID(rid)
		out = append(out, &model.WebPage{
			ID: pid, URL: url, Title: title, LastAccessed: fromMicro(lastAccessed),
			Processed: processed != 0, Metadata: unmarshalMeta(meta),
			CreatedAt: fromMicro(createdAt), UpdatedAt: fromMicro(updatedAt),
		})
	}
	return out, rows.Err()
}

func (s *Store) CreateWebContentChunk(ctx context.Context, c *model.WebContentChunk) error {
	content, err := s.seal(c.Content)
	if err != nil {
		return metastore.Wrap(err, "seal web content chunk")
	}
	meta, err := marshalMeta(c.Metadata)
	if err != nil {
		return metastore.Wrap(err, "marshal web content chunk metadata")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO web_content_chunks (id, web_page_id, chunk_index, content, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.WebPageID.String(), c.ChunkIndex, content, meta, unixMicro(c.CreatedAt))
	if err != nil {
		return metastore.Wrap(err, "create web content chunk")
	}
	return nil
}

func (s *Store) ListWebContentChunks(ctx context.Context, webPageID kernel.ID) ([]*model.WebContentChunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, web_page_id, chunk_index, content, metadata, created_at FROM web_content_chunks WHERE web_page_id = ? ORDER BY chunk_index ASC`, webPageID.String())
	if err != nil {
		return nil, metastore.Wrap(err, "list web content chunks")
	}
	defer rows.Close()

	var out []*model.WebContentChunk
	for rows.Next() {
		var rid, pageID, content, meta string
		var chunkIndex int
		var createdAt int64
		if err := rows.Scan(&rid, &pageID, &chunkIndex, &content, &meta, &createdAt); err != nil {
			return nil, metastore.Wrap(err, "scan web content chunk")
		}
		plain, err := s.unseal(content)
		if err != nil {
			return nil, metastore.Wrap(err, "unseal web content chunk")
		}
		pid := kernel.ParseID(rid)
		wid := kernel.ParseID(pageID)
		out = append(out, &model.WebContentChunk{
			ID: pid, WebPageID: wid, ChunkIndex: chunkIndex, Content: plain,
			Metadata: unmarshalMeta(meta), CreatedAt: fromMicro(createdAt),
		})
	}
	return out, rows.Err()
}

// ---- VectorEmbeddingRecords ----

func (s *Store) UpsertEmbeddingRecord(ctx context.Context, r *model.VectorEmbeddingRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vector_embedding_records (id, source_type, source_id, embedding_model, indexed, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_type, source_id) DO UPDATE SET
			embedding_model = excluded.embedding_model,
			indexed = excluded.indexed`,
		r.ID.String(), string(r.SourceType), r.SourceID, r.EmbeddingModel, boolToInt(r.Indexed), unixMicro(r.CreatedAt))
	if err != nil {
		return metastore.Wrap(err, "upsert vector embedding record")
	}
	return nil
}

func (s *Store) GetEmbeddingRecord(ctx context.Context, sourceType model.SourceType, sourceID string) (*model.VectorEmbeddingRecord, error) {
	var rid, st, sid, em string
	var indexed int
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `SELECT id, source_type, source_id, embedding_model, indexed, created_at FROM vector_embedding_records WHERE source_type = ? AND source_id = ?`, string(sourceType), sourceID).
		Scan(&rid, &st, &sid, &em, &indexed, &createdAt)
	if err == sql.ErrNoRows {
		return nil, metastore.NotFound("vector_embedding_record", sourceID)
	}
	if err != nil {
		return nil, metastore.Wrap(err, "get vector embedding record")
	}
	pid := kernel.ParseID(rid)
	return &model.VectorEmbeddingRecord{
		ID: pid, SourceType: model.SourceType(st), SourceID: sid, EmbeddingModel: em,
		Indexed: indexed != 0, CreatedAt: fromMicro(createdAt),
	}, nil
}

func (s *Store) DeleteEmbeddingRecord(ctx context.Context, sourceType model.SourceType, sourceID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM vector_embedding_records WHERE source_type = ? AND source_id = ?`, string(sourceType), sourceID)
	if err != nil {
		return metastore.Wrap(err, "delete vector embedding record")
	}
	return nil
}

func (s *Store) ListUnindexedEmbeddingRecords(ctx context.Context, limit int) ([]*model.VectorEmbeddingRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_type, source_id, embedding_model, indexed, created_at
		FROM vector_embedding_records WHERE indexed = 0 ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, metastore.Wrap(err, "list unindexed vector embedding records")
	}
	defer rows.Close()

	var out []*model.VectorEmbeddingRecord
	for rows.Next() {
		var rid, st, sid, em string
		var indexed int
		var createdAt int64
		if err := rows.Scan(&rid, &st, &sid, &em, &indexed, &createdAt); err != nil {
			return nil, metastore.Wrap(err, "scan unindexed vector embedding record")
		}
		out = append(out, &model.VectorEmbeddingRecord{
			ID: kernel.ParseID(rid), SourceType: model.SourceType(st), SourceID: sid, EmbeddingModel: em,
			Indexed: indexed != 0, CreatedAt: fromMicro(createdAt),
		})
	}
	return out, rows.Err()
}

// ---- UserSettings ----

func (s *Store) GetUserSettings(ctx context.Context) (*model.UserSettings, error) {
	var version int
	var voice, personality, privacy, storage, llmS, search, memoryS string
	var updatedAt int64
	err := s.db.QueryRowContext(ctx, `SELECT version, voice, personality, privacy, storage, llm, search, memory, updated_at FROM user_settings WHERE id = 1`).
		Scan(&version, &voice, &personality, &privacy, &storage, &llmS, &search, &memoryS, &updatedAt)
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
	var p model.PersonalitySettings
	_ = json.Unmarshal([]byte(personality), &p)
	return &model.UserSettings{
		Version:     version,
		Voice:       model.VoiceSettings(unmarshalMeta(voice)),
		Personality: p,
		Privacy:     model.PrivacySettings(unmarshalMeta(privacy)),
		Storage:     model.StorageSettings(unmarshalMeta(storage)),
		LLM:         model.LLMSettings(unmarshalMeta(llmS)),
		Search:      model.SearchSettings(unmarshalMeta(search)),
		Memory:      model.MemorySettings(unmarshalMeta(memoryS)),
		UpdatedAt:   fromMicro(updatedAt),
	}, nil
}

func (s *Store) SaveUserSettings(ctx context.Context, u *model.UserSettings) error {
	voice, _ := marshalMeta(map[string]any(u.Voice))
	personality, err := json.Marshal(u.Personality)
	if err != nil {
		return metastore.Wrap(err, "marshal personality settings")
	}
	privacy, _ := marshalMeta(map[string]any(u.Privacy))
	storage, _ := marshalMeta(map[string]any(u.Storage))
	llmS, _ := marshalMeta(map[string]any(u.LLM))
	search, _ := marshalMeta(map[string]any(u.Search))
	memoryS, _ := marshalMeta(map[string]any(u.Memory))

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_settings (id, version, voice, personality, privacy, storage, llm, search, memory, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version = excluded.version, voice = excluded.voice, personality = excluded.personality,
			privacy = excluded.privacy, storage = excluded.storage, llm = excluded.llm,
			search = excluded.search, memory = excluded.memory, updated_at = excluded.updated_at`,
		u.Version, voice, string(personality), privacy, storage, llmS, search, memoryS, unixMicro(u.UpdatedAt))
	if err != nil {
		return metastore.Wrap(err, "save user settings")
	}
	return nil
}

// ---- Maintenance ----

func (s *Store) Optimize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return metastore.Wrap(err, "vacuum")
	}
	if _, err := s.db.ExecContext(ctx, `ANALYZE`); err != nil {
		return metastore.Wrap(err, "analyze")
	}
	return nil
}

func (s *Store) Backup(ctx context.Context, path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return metastore.Wrap(err, "backup database")
	}
	return nil
}

func (s *Store) Restore(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Close(); err != nil {
		return metastore.Wrap(err, "close database before restore")
	}
	if err := os.Rename(path, s.path); err != nil {
		return metastore.Wrap(err, "swap restored database into place")
	}
	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return metastore.Wrap(err, "reopen restored database")
	}
	db.SetMaxOpenConns(1)
	s.db = db
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func applyLimitOffset(query string, limit, offset int) (string, []any) {
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
		if offset > 0 {
			query += ` OFFSET ?`
			args = append(args, offset)
		}
	}
	return query, args
}

func joinPlaceholders(ph []string) string {
	return strings.Join(ph, ",")
}
