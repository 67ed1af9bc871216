// Package vstsqlitevec is a vstore.VectorStorer backed by the sqlite-vec
// extension, for single-file local deployments that want the vector index
// to live in the same database file family as the metadata store.
package vstsqlitevec

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"

	"github.com/abraxas-365/personal-ai-core/pkg/ai/vstore"
)

// Store is a vstore.VectorStorer, vstore.MetadataFilterer,
// vstore.NamespaceManager, and vstore.StatisticsProvider implementation
// over a sqlite-vec vec0 virtual table plus a side metadata table (vec0
// columns support only a narrow set of scalar types, so arbitrary JSON
// metadata is kept separately and joined by rowid).
type Store struct {
	mu        sync.Mutex
	db        *sql.DB
	dimension int
}

// Open creates (if absent) the vec0 virtual table and metadata side table
// at path, sized for dimension-length vectors.
func Open(path string, dimension int) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, wrapStorage(err)
			}
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, wrapStorage(err)
	}
	db.SetMaxOpenConns(1)

	ddl := fmt.Sprintf(`
CREATE VIRTUAL TABLE IF NOT EXISTS vec_items USING vec0(
	namespace TEXT PARTITION KEY,
	embedding float[%d] distance_metric=cosine
);
CREATE TABLE IF NOT EXISTS vec_metadata (
	id TEXT PRIMARY KEY,
	namespace TEXT NOT NULL DEFAULT '',
	rowid_ref INTEGER NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_vec_metadata_rowid ON vec_metadata(rowid_ref);
`, dimension)
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, wrapStorage(err)
	}
	return &Store{db: db, dimension: dimension}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func serializeVector(v []float32) ([]byte, error) {
	return sqlite_vec.SerializeFloat32(v)
}

func (s *Store) Upsert(ctx context.Context, vectors []vstore.Vector, opts ...vstore.Option) error {
	o := vstore.ApplyOptions(opts...)
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapStorage(err)
	}
	defer tx.Rollback()

	for _, v := range vectors {
		if len(v.Values) != s.dimension {
			return dimensionMismatch(s.dimension, len(v.Values))
		}
		blob, err := serializeVector(v.Values)
		if err != nil {
			return wrapStorage(err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM vec_items WHERE rowid IN (SELECT rowid_ref FROM vec_metadata WHERE id = ? AND namespace = ?)`, v.ID, o.Namespace); err != nil {
			return wrapStorage(err)
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO vec_items (namespace, embedding) VALUES (?, ?)`, o.Namespace, blob)
		if err != nil {
			return wrapStorage(err)
		}
		rowID, err := res.LastInsertId()
		if err != nil {
			return wrapStorage(err)
		}
		meta, err := json.Marshal(v.Metadata)
		if err != nil {
			return wrapStorage(err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO vec_metadata (id, namespace, rowid_ref, metadata) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET rowid_ref = excluded.rowid_ref, metadata = excluded.metadata`,
			v.ID, o.Namespace, rowID, meta); err != nil {
			return wrapStorage(err)
		}
	}
	return tx.Commit()
}

func (s *Store) Query(ctx context.Context, vector []float32, opts ...vstore.Option) (*vstore.QueryResult, error) {
	return s.QueryWithFilter(ctx, vector, vstore.Filter{}, opts...)
}

// QueryWithFilter implements vstore.MetadataFilterer. vec0's native MATCH
// query returns nearest neighbors by distance; metadata conditions are
// applied as a post-filter over the joined side table since vec0 does not
// index arbitrary JSON predicates.
func (s *Store) QueryWithFilter(ctx context.Context, vector []float32, filter vstore.Filter, opts ...vstore.Option) (*vstore.QueryResult, error) {
	o := vstore.ApplyOptions(opts...)
	if len(vector) != s.dimension {
		return nil, dimensionMismatch(s.dimension, len(vector))
	}
	blob, err := serializeVector(vector)
	if err != nil {
		return nil, wrapStorage(err)
	}
	topK := o.TopK
	if topK <= 0 {
		topK = 10
	}
	// Over-fetch so the post-filter still has enough candidates to satisfy topK.
	fetchK := topK * 4
	if fetchK < topK {
		fetchK = topK
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, v.distance, m.metadata
		FROM vec_items v
		JOIN vec_metadata m ON m.rowid_ref = v.rowid
		WHERE v.embedding MATCH ? AND v.namespace = ? AND k = ?
		ORDER BY v.distance ASC, m.id ASC`,
		blob, o.Namespace, fetchK)
	if err != nil {
		return nil, wrapStorage(err)
	}
	defer rows.Close()

	var matches []vstore.Match
	for rows.Next() {
		var id, metaJSON string
		var distance float64
		if err := rows.Scan(&id, &distance, &metaJSON); err != nil {
			return nil, wrapStorage(err)
		}
		var meta map[string]any
		json.Unmarshal([]byte(metaJSON), &meta)
		if !matchesFilter(meta, filter) {
			continue
		}
		score := float32(1 - distance) // cosine distance -> cosine similarity
		if score < o.MinScore {
			continue
		}
		match := vstore.Match{ID: id, Score: score}
		if o.IncludeMetadata {
			match.Metadata = meta
		}
		matches = append(matches, match)
		if len(matches) >= topK {
			break
		}
	}
	return &vstore.QueryResult{Matches: matches, Namespace: o.Namespace}, rows.Err()
}

func matchesFilter(meta map[string]any, f vstore.Filter) bool {
	check := func(c vstore.Condition) bool {
		v, ok := meta[c.Field]
		switch c.Operator {
		case vstore.OpExists:
			return ok
		case vstore.OpEqual:
			return ok && fmt.Sprintf("%v", v) == fmt.Sprintf("%v", c.Value)
		case vstore.OpNotEqual:
			return !ok || fmt.Sprintf("%v", v) != fmt.Sprintf("%v", c.Value)
		case vstore.OpIn:
			items, _ := c.Value.([]any)
			for _, it := range items {
				if ok && fmt.Sprintf("%v", v) == fmt.Sprintf("%v", it) {
					return true
				}
			}
			return false
		case vstore.OpContains:
			s, _ := v.(string)
			sub, _ := c.Value.(string)
			return ok && strings.Contains(s, sub)
		default:
			return true
		}
	}
	for _, c := range f.Must {
		if !check(c) {
			return false
		}
	}
	for _, c := range f.MustNot {
		if check(c) {
			return false
		}
	}
	if len(f.Should) > 0 {
		any := false
		for _, c := range f.Should {
			if check(c) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	return true
}

func (s *Store) Delete(ctx context.Context, ids []string, opts ...vstore.Option) error {
	o := vstore.ApplyOptions(opts...)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM vec_items WHERE rowid IN (SELECT rowid_ref FROM vec_metadata WHERE id = ? AND namespace = ?)`, id, o.Namespace); err != nil {
			return wrapStorage(err)
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM vec_metadata WHERE id = ? AND namespace = ?`, id, o.Namespace); err != nil {
			return wrapStorage(err)
		}
	}
	return nil
}

func (s *Store) Fetch(ctx context.Context, ids []string, opts ...vstore.Option) ([]vstore.Vector, error) {
	o := vstore.ApplyOptions(opts...)
	var out []vstore.Vector
	for _, id := range ids {
		var metaJSON string
		err := s.db.QueryRowContext(ctx, `SELECT metadata FROM vec_metadata WHERE id = ? AND namespace = ?`, id, o.Namespace).Scan(&metaJSON)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, wrapStorage(err)
		}
		var meta map[string]any
		json.Unmarshal([]byte(metaJSON), &meta)
		out = append(out, vstore.Vector{ID: id, Metadata: meta})
	}
	return out, nil
}

func (s *Store) ListNamespaces(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT namespace FROM vec_metadata`)
	if err != nil {
		return nil, wrapStorage(err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, wrapStorage(err)
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}

func (s *Store) CreateNamespace(ctx context.Context, namespace string) error {
	return nil // namespaces are implicit partitions; nothing to provision up front
}

func (s *Store) DeleteNamespace(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM vec_items WHERE rowid IN (SELECT rowid_ref FROM vec_metadata WHERE namespace = ?)`, namespace); err != nil {
		return wrapStorage(err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM vec_metadata WHERE namespace = ?`, namespace); err != nil {
		return wrapStorage(err)
	}
	return nil
}

func (s *Store) GetStatistics(ctx context.Context, opts ...vstore.Option) (*vstore.Statistics, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT namespace, COUNT(*) FROM vec_metadata GROUP BY namespace`)
	if err != nil {
		return nil, wrapStorage(err)
	}
	defer rows.Close()
	var total int64
	var namespaces []vstore.NamespaceStats
	for rows.Next() {
		var ns string
		var count int64
		if err := rows.Scan(&ns, &count); err != nil {
			return nil, wrapStorage(err)
		}
		namespaces = append(namespaces, vstore.NamespaceStats{Name: ns, VectorCount: count})
		total += count
	}
	return &vstore.Statistics{TotalVectorCount: total, Dimension: s.dimension, Namespaces: namespaces}, rows.Err()
}
