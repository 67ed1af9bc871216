package vstpgvector_test

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/abraxas-365/personal-ai-core/pkg/ai/vstore"
	"github.com/abraxas-365/personal-ai-core/pkg/ai/vstore/providers/vstpgvector"
)

// TestQuery_OrdersByDistanceThenIDAscending pins stable result ordering
// at the SQL level: the generated query must sort by distance then id, so two rows at the
// same distance come back in a deterministic order rather than whatever
// the planner feels like.
func TestQuery_OrdersByDistanceThenIDAscending(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	dbx := sqlx.NewDb(db, "postgres")

	mock.ExpectExec("CREATE EXTENSION IF NOT EXISTS vector").WillReturnResult(sqlmock.NewResult(0, 0))

	provider, perr := vstpgvector.NewPgVectorProviderFromDB(dbx, 3,
		vstpgvector.WithAutoCreateTable(false),
	)
	if perr != nil {
		t.Fatalf("NewPgVectorProviderFromDB: %v", perr)
	}

	rows := sqlmock.NewRows([]string{"id", "metadata", "distance"}).
		AddRow("a", "{}", 0.1).
		AddRow("b", "{}", 0.1)
	mock.ExpectQuery("ORDER BY distance ASC, id ASC").WillReturnRows(rows)

	result, qerr := provider.Query(context.Background(), []float32{1, 0, 0}, vstore.WithTopK(10))
	if qerr != nil {
		t.Fatalf("Query: %v", qerr)
	}
	if len(result.Matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(result.Matches))
	}
	if result.Matches[0].ID != "a" || result.Matches[1].ID != "b" {
		t.Fatalf("tie-break order = [%s, %s], want [a, b]", result.Matches[0].ID, result.Matches[1].ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}
