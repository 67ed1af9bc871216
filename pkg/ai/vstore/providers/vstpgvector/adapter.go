package vstpgvector

import (
	"context"

	"github.com/abraxas-365/personal-ai-core/pkg/ai/vstore"
)

// Store adapts PgVectorProvider's *errx.Error-returning methods onto
// vstore.VectorStorer's plain `error` method set, the same role
// vstsqlitevec.Store plays for the sqlite-vec provider. This is the seam
// that lets vector-store selection stay a one-line switch in
// cmd/container.go regardless of which concrete provider backs it.
type Store struct {
	p *PgVectorProvider
}

// Open connects to Postgres and wraps the pgvector provider as a
// vstore.VectorStorer. Used when the metadata store backend is postgres,
// pairing mspostgres with pgvector in the same database.
func Open(connStr string, dimension int, opts ...ProviderOption) (*Store, error) {
	p, err := NewPgVectorProvider(connStr, dimension, opts...)
	if err != nil {
		return nil, err
	}
	return &Store{p: p}, nil
}

func (s *Store) Close() error { return s.p.Close() }

func (s *Store) Upsert(ctx context.Context, vectors []vstore.Vector, opts ...vstore.Option) error {
	if err := s.p.Upsert(ctx, vectors, opts...); err != nil {
		return err
	}
	return nil
}

func (s *Store) Query(ctx context.Context, vector []float32, opts ...vstore.Option) (*vstore.QueryResult, error) {
	res, err := s.p.Query(ctx, vector, opts...)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) Delete(ctx context.Context, ids []string, opts ...vstore.Option) error {
	if err := s.p.Delete(ctx, ids, opts...); err != nil {
		return err
	}
	return nil
}

func (s *Store) Fetch(ctx context.Context, ids []string, opts ...vstore.Option) ([]vstore.Vector, error) {
	res, err := s.p.Fetch(ctx, ids, opts...)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) QueryWithFilter(ctx context.Context, vector []float32, filter vstore.Filter, opts ...vstore.Option) (*vstore.QueryResult, error) {
	res, err := s.p.QueryWithFilter(ctx, vector, filter, opts...)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) UpsertBatch(ctx context.Context, vectors []vstore.Vector, opts ...vstore.Option) (*vstore.BatchResult, error) {
	res, err := s.p.UpsertBatch(ctx, vectors, opts...)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) DeleteBatch(ctx context.Context, ids []string, opts ...vstore.Option) (*vstore.BatchResult, error) {
	res, err := s.p.DeleteBatch(ctx, ids, opts...)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) ListNamespaces(ctx context.Context) ([]string, error) {
	res, err := s.p.ListNamespaces(ctx)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) CreateNamespace(ctx context.Context, namespace string) error {
	if err := s.p.CreateNamespace(ctx, namespace); err != nil {
		return err
	}
	return nil
}

func (s *Store) DeleteNamespace(ctx context.Context, namespace string) error {
	if err := s.p.DeleteNamespace(ctx, namespace); err != nil {
		return err
	}
	return nil
}

func (s *Store) GetStatistics(ctx context.Context, opts ...vstore.Option) (*vstore.Statistics, error) {
	res, err := s.p.GetStatistics(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return res, nil
}
